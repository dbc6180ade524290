// Package config loads comparison settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	rerrors "github.com/FocuswithJustin/redline/core/errors"
	"github.com/FocuswithJustin/redline/core/pipeline"
	"github.com/FocuswithJustin/redline/internal/logging"
)

// Config is the file layout. Pointer fields distinguish "unset" from a
// zero value so defaults survive a partial file.
type Config struct {
	Author              string          `yaml:"author"`
	Date                string          `yaml:"date"`
	ReconstructionMode  string          `yaml:"reconstructionMode"`
	Numbering           *bool           `yaml:"numbering"`
	PremergeRuns        *bool           `yaml:"premergeRuns"`
	SimilarityThreshold *float64        `yaml:"similarityThreshold"`
	MoveDetection       MoveDetection   `yaml:"moveDetection"`
	FormatDetection     FormatDetection `yaml:"formatDetection"`
	Logging             Logging         `yaml:"logging"`
	Cache               Cache           `yaml:"cache"`
	Journal             Journal         `yaml:"journal"`
}

// MoveDetection mirrors pipeline.MoveDetection.
type MoveDetection struct {
	Enabled  *bool `yaml:"enabled"`
	MinWords *int  `yaml:"minWords"`
}

// FormatDetection mirrors pipeline.FormatDetection.
type FormatDetection struct {
	Enabled *bool `yaml:"enabled"`
}

// Logging selects log level and format.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Cache locates the result cache. Empty disables it.
type Cache struct {
	Dir string `yaml:"dir"`
}

// Journal locates the comparison journal. Empty disables it.
type Journal struct {
	Path string `yaml:"path"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rerrors.NewIO("read config", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, rerrors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes a configuration document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, rerrors.NewParse("yaml", "", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that can be checked without the inputs.
func (c *Config) Validate() error {
	if _, err := pipeline.ParseMode(c.ReconstructionMode); err != nil {
		return rerrors.NewValidation("reconstructionMode", "must be rebuild or inplace, got "+c.ReconstructionMode)
	}
	if c.Date != "" {
		if _, err := time.Parse(time.RFC3339, c.Date); err != nil {
			return rerrors.NewValidation("date", "must be an RFC 3339 timestamp")
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return err
	}
	return c.Apply(pipeline.DefaultOptions()).Validate()
}

// Apply returns base with every value set in the file applied on top.
func (c *Config) Apply(base pipeline.Options) pipeline.Options {
	opts := base
	if c.Author != "" {
		opts.Author = c.Author
	}
	if c.Date != "" {
		if d, err := time.Parse(time.RFC3339, c.Date); err == nil {
			opts.Date = d
		}
	}
	if c.ReconstructionMode != "" {
		if m, err := pipeline.ParseMode(c.ReconstructionMode); err == nil {
			opts.Mode = m
		}
	}
	if c.Numbering != nil {
		opts.Numbering = *c.Numbering
	}
	if c.PremergeRuns != nil {
		opts.PremergeRuns = *c.PremergeRuns
	}
	if c.SimilarityThreshold != nil {
		opts.SimilarityThreshold = *c.SimilarityThreshold
	}
	if c.MoveDetection.Enabled != nil {
		opts.MoveDetection.Enabled = *c.MoveDetection.Enabled
	}
	if c.MoveDetection.MinWords != nil {
		opts.MoveDetection.MinWords = *c.MoveDetection.MinWords
	}
	if c.FormatDetection.Enabled != nil {
		opts.FormatDetection.Enabled = *c.FormatDetection.Enabled
	}
	return opts
}
