package pipeline

import (
	"strings"
	"time"

	"github.com/FocuswithJustin/redline/core/compare"
	rerrors "github.com/FocuswithJustin/redline/core/errors"
)

// Mode selects how tracked changes are written.
type Mode string

const (
	// ModeRebuild constructs a new body from the merged atom sequence.
	ModeRebuild Mode = "rebuild"
	// ModeInplace edits the revised document and falls back to rebuild
	// when the result does not round-trip.
	ModeInplace Mode = "inplace"
)

// ParseMode parses "rebuild" or "inplace". The empty string is rebuild.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeRebuild:
		return ModeRebuild, nil
	case ModeInplace:
		return ModeInplace, nil
	}
	return "", rerrors.NewUnsupported("reconstruction mode", s)
}

// DefaultAuthor is written on every revision when no author is given.
const DefaultAuthor = "Comparison"

// MoveDetection configures move pairing.
type MoveDetection struct {
	Enabled  bool `json:"enabled" yaml:"enabled"`
	MinWords int  `json:"minWords" yaml:"minWords"`
}

// FormatDetection configures run-property change tracking.
type FormatDetection struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Options is the comparison options surface.
type Options struct {
	Author string    `json:"author"`
	// Date stamps every revision. Zero means the time of the call.
	Date   time.Time `json:"date"`

	Mode                Mode            `json:"reconstructionMode"`
	Numbering           bool            `json:"numbering"`
	PremergeRuns        bool            `json:"premergeRuns"`
	SimilarityThreshold float64         `json:"similarityThreshold"`
	MoveDetection       MoveDetection   `json:"moveDetection"`
	FormatDetection     FormatDetection `json:"formatDetection"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Author:              DefaultAuthor,
		Mode:                ModeRebuild,
		Numbering:           true,
		SimilarityThreshold: compare.DefaultSimilarityThreshold,
		MoveDetection:       MoveDetection{Enabled: true, MinWords: 1},
		FormatDetection:     FormatDetection{Enabled: true},
	}
}

// Validate checks option values.
func (o Options) Validate() error {
	if _, err := ParseMode(string(o.Mode)); err != nil {
		return err
	}
	if o.SimilarityThreshold < 0 || o.SimilarityThreshold > 1 {
		return rerrors.NewValidation("similarityThreshold", "must be between 0 and 1")
	}
	if o.MoveDetection.MinWords < 0 {
		return rerrors.NewValidation("moveDetection.minWords", "must not be negative")
	}
	return nil
}

// Canonical returns the options that affect output bytes, with defaults
// filled in. It is the options part of a cache key.
func (o Options) Canonical() Options {
	c := o
	if c.Author == "" {
		c.Author = DefaultAuthor
	}
	if m, err := ParseMode(string(c.Mode)); err == nil {
		c.Mode = m
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = compare.DefaultSimilarityThreshold
	}
	c.Date = c.Date.UTC().Truncate(time.Second)
	return c
}
