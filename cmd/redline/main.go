// Command redline compares two Word documents and writes a third in which
// every difference is a tracked change.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/redline/core/cas"
	"github.com/FocuswithJustin/redline/core/compare"
	rerrors "github.com/FocuswithJustin/redline/core/errors"
	"github.com/FocuswithJustin/redline/core/pipeline"
	"github.com/FocuswithJustin/redline/core/sqlite"
	"github.com/FocuswithJustin/redline/core/trackchanges"
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
	"github.com/FocuswithJustin/redline/internal/config"
	"github.com/FocuswithJustin/redline/internal/docx"
	"github.com/FocuswithJustin/redline/internal/journal"
	"github.com/FocuswithJustin/redline/internal/logging"
	"github.com/FocuswithJustin/redline/internal/validation"
)

const version = "0.1.0"

// stdout is where command output goes; tests replace it.
var stdout io.Writer = os.Stdout

// Globals are flags shared by every command.
type Globals struct {
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:""`
	LogFormat string `name:"log-format" help:"Log format (json, text)" default:""`
}

// initLogging configures the logger, letting explicit flags win over the
// values from a config file.
func (g *Globals) initLogging(fromFile config.Logging) error {
	level, format := g.LogLevel, g.LogFormat
	if level == "" {
		level = fromFile.Level
	}
	if format == "" {
		format = fromFile.Format
	}
	l, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	f, err := logging.ParseFormat(format)
	if err != nil {
		return err
	}
	logging.InitLogger(l, f)
	return nil
}

// CLI defines the command-line interface for redline.
type CLI struct {
	Globals

	Compare CompareCmd `cmd:"" help:"Compare two documents and write tracked changes"`
	Accept  AcceptCmd  `cmd:"" help:"Accept every tracked change in a document"`
	Reject  RejectCmd  `cmd:"" help:"Reject every tracked change in a document"`
	Text    TextCmd    `cmd:"" help:"Print the paragraph text of a document"`
	History HistoryCmd `cmd:"" help:"List recent comparisons from the journal"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// CompareCmd compares two documents.
type CompareCmd struct {
	Original string `arg:"" help:"Original document (.docx or document.xml)" type:"existingfile"`
	Revised  string `arg:"" help:"Revised document (.docx or document.xml)" type:"existingfile"`
	Out      string `required:"" help:"Output path" type:"path"`

	Author       string `help:"Author written on every revision"`
	Date         string `help:"Revision timestamp (RFC 3339); defaults to now"`
	Mode         string `help:"Reconstruction mode (rebuild, inplace)"`
	NoNumbering  bool   `name:"no-numbering" help:"Do not fold list labels into comparison"`
	PremergeRuns bool   `name:"premerge-runs" help:"Merge adjacent runs with equal formatting first"`
	NoMoves      bool   `name:"no-moves" help:"Disable move detection"`
	NoFormat     bool   `name:"no-format" help:"Disable formatting change detection"`
	Config       string `help:"YAML configuration file" type:"existingfile"`
	Cache        string `help:"Result cache directory" type:"path"`
	Journal      string `help:"Comparison journal database" type:"path"`
	JSON         bool   `name:"json" help:"Print the result summary as JSON"`
}

// options merges defaults, the config file and flags, in that order.
func (c *CompareCmd) options(cfg *config.Config) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	if cfg != nil {
		opts = cfg.Apply(opts)
	}
	if c.Author != "" {
		opts.Author = c.Author
	}
	if c.Date != "" {
		d, err := time.Parse(time.RFC3339, c.Date)
		if err != nil {
			return opts, rerrors.NewValidation("date", "must be an RFC 3339 timestamp")
		}
		opts.Date = d
	}
	if c.Mode != "" {
		m, err := pipeline.ParseMode(c.Mode)
		if err != nil {
			return opts, err
		}
		opts.Mode = m
	}
	if c.NoNumbering {
		opts.Numbering = false
	}
	if c.PremergeRuns {
		opts.PremergeRuns = true
	}
	if c.NoMoves {
		opts.MoveDetection.Enabled = false
	}
	if c.NoFormat {
		opts.FormatDetection.Enabled = false
	}
	return opts, opts.Validate()
}

// cacheKey covers both documents, their numbering parts and the options.
func cacheKey(orig, rev *docx.Package, opts pipeline.Options) (string, error) {
	return cas.Key(orig.Document(), rev.Document(), struct {
		Options           pipeline.Options `json:"options"`
		OriginalNumbering string           `json:"originalNumbering"`
		RevisedNumbering  string           `json:"revisedNumbering"`
	}{opts.Canonical(), cas.Hash(orig.Numbering()), cas.Hash(rev.Numbering())})
}

// summary is what compare prints.
type summary struct {
	ID             string             `json:"id,omitempty"`
	Output         string             `json:"output"`
	Cached         bool               `json:"cached"`
	Requested      pipeline.Mode      `json:"requestedMode"`
	ModeUsed       pipeline.Mode      `json:"reconstructionModeUsed"`
	FallbackReason string             `json:"fallbackReason,omitempty"`
	Stats          compare.Stats      `json:"stats"`
	Attempts       []pipeline.Attempt `json:"attempts,omitempty"`
}

func (c *CompareCmd) Run(g *Globals) error {
	var cfg *config.Config
	if c.Config != "" {
		var err error
		if cfg, err = config.LoadFile(c.Config); err != nil {
			return err
		}
	} else {
		cfg = &config.Config{}
	}
	if err := g.initLogging(cfg.Logging); err != nil {
		return err
	}
	opts, err := c.options(cfg)
	if err != nil {
		return err
	}
	cacheDir, journalPath := c.Cache, c.Journal
	if cacheDir == "" {
		cacheDir = cfg.Cache.Dir
	}
	if journalPath == "" {
		journalPath = cfg.Journal.Path
	}

	orig, err := openInput(c.Original)
	if err != nil {
		return err
	}
	rev, err := openInput(c.Revised)
	if err != nil {
		return err
	}
	if err := validation.ValidatePath(c.Out); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	ctx := context.Background()
	sum := summary{Output: c.Out, Requested: opts.Mode}
	var document []byte

	// Without a pinned date every run stamps a new time, so there is
	// nothing to reuse.
	var store *cas.Store
	var key string
	if cacheDir != "" && !opts.Date.IsZero() {
		if store, err = cas.NewStore(cacheDir); err != nil {
			return err
		}
		if key, err = cacheKey(orig, rev, opts); err != nil {
			return err
		}
		entry, err := store.Get(key)
		switch {
		case err == nil:
			document = entry.Document
			sum.Cached = true
			sum.ModeUsed = pipeline.Mode(entry.Meta.Mode)
			sum.FallbackReason = entry.Meta.FallbackReason
			sum.Stats = entry.Meta.Stats
			logging.Debug("cache_hit", "key", key)
		case errors.Is(err, rerrors.ErrNotFound):
		default:
			logging.Warn("cache_read_failed", "key", key, "error", err.Error())
		}
	} else if cacheDir != "" {
		logging.Debug("cache_skipped", "reason", "revision date not pinned")
	}

	if !sum.Cached {
		res, err := pipeline.Compare(ctx,
			pipeline.Input{Document: orig.Document(), Numbering: orig.Numbering()},
			pipeline.Input{Document: rev.Document(), Numbering: rev.Numbering()},
			opts)
		if err != nil {
			return err
		}
		document = res.Document
		sum.ID = res.ID
		sum.ModeUsed = res.ModeUsed
		sum.FallbackReason = res.FallbackReason
		sum.Stats = res.Stats
		sum.Attempts = res.Attempts
		if store != nil {
			meta := cas.Meta{Mode: string(res.ModeUsed), FallbackReason: res.FallbackReason, Stats: res.Stats}
			if err := store.Put(key, document, meta); err != nil {
				logging.Warn("cache_write_failed", "key", key, "error", err.Error())
			}
		}
	}

	origHash, revHash := cas.Hash(orig.Document()), cas.Hash(rev.Document())
	rev.SetDocument(document)
	if err := writeOutput(rev, c.Out); err != nil {
		return err
	}

	if journalPath != "" {
		if err := record(ctx, journalPath, origHash, revHash, opts, &sum); err != nil {
			return err
		}
	}
	return printSummary(sum, c.JSON)
}

func record(ctx context.Context, path, origHash, revHash string, opts pipeline.Options, sum *summary) error {
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	entry := journal.Entry{
		ID:             sum.ID,
		OriginalHash:   origHash,
		RevisedHash:    revHash,
		RequestedMode:  string(opts.Mode),
		UsedMode:       string(sum.ModeUsed),
		FallbackReason: sum.FallbackReason,
		Cached:         sum.Cached,
		Stats:          sum.Stats,
	}
	id, err := j.Record(ctx, entry)
	if err != nil {
		return err
	}
	sum.ID = id
	return nil
}

func printSummary(sum summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	fmt.Fprintf(stdout, "Wrote: %s\n", sum.Output)
	mode := string(sum.ModeUsed)
	if sum.Cached {
		mode += " (cached)"
	}
	fmt.Fprintf(stdout, "  Mode: %s\n", mode)
	if sum.FallbackReason != "" {
		fmt.Fprintf(stdout, "  Fallback: %s\n", sum.FallbackReason)
	}
	st := sum.Stats
	fmt.Fprintf(stdout, "  Changes: %d (%d insertions, %d deletions, %d modifications, %d moves, %d format changes)\n",
		st.Total(), st.Insertions, st.Deletions, st.Modifications, st.Moves, st.FormatChanges)
	if sum.ID != "" {
		fmt.Fprintf(stdout, "  ID: %s\n", sum.ID)
	}
	return nil
}

// AcceptCmd accepts all tracked changes.
type AcceptCmd struct {
	In  string `arg:"" help:"Input document" type:"existingfile"`
	Out string `required:"" help:"Output path" type:"path"`
}

func (c *AcceptCmd) Run(g *Globals) error {
	return transform(g, c.In, c.Out, trackchanges.Accept)
}

// RejectCmd rejects all tracked changes.
type RejectCmd struct {
	In  string `arg:"" help:"Input document" type:"existingfile"`
	Out string `required:"" help:"Output path" type:"path"`
}

func (c *RejectCmd) Run(g *Globals) error {
	return transform(g, c.In, c.Out, trackchanges.Reject)
}

func transform(g *Globals, in, out string, fn func(*xml.Document) *xml.Document) error {
	if err := g.initLogging(config.Logging{}); err != nil {
		return err
	}
	pkg, err := openInput(in)
	if err != nil {
		return err
	}
	doc, err := xml.Parse(pkg.Document())
	if err != nil {
		return err
	}
	if _, err := wml.Body(doc, in); err != nil {
		return err
	}
	pkg.SetDocument(fn(doc).Serialize())
	if err := writeOutput(pkg, out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote: %s\n", out)
	return nil
}

// TextCmd prints normalised paragraph text, one paragraph per line.
type TextCmd struct {
	In     string `arg:"" help:"Input document" type:"existingfile"`
	Accept bool   `help:"Accept tracked changes first" xor:"view"`
	Reject bool   `help:"Reject tracked changes first" xor:"view"`
}

func (c *TextCmd) Run(g *Globals) error {
	if err := g.initLogging(config.Logging{}); err != nil {
		return err
	}
	pkg, err := openInput(c.In)
	if err != nil {
		return err
	}
	doc, err := xml.Parse(pkg.Document())
	if err != nil {
		return err
	}
	switch {
	case c.Accept:
		doc = trackchanges.Accept(doc)
	case c.Reject:
		doc = trackchanges.Reject(doc)
	}
	body, err := wml.Body(doc, c.In)
	if err != nil {
		return err
	}
	for _, line := range wml.ParagraphTexts(body) {
		fmt.Fprintln(stdout, line)
	}
	return nil
}

// HistoryCmd lists journal entries.
type HistoryCmd struct {
	Journal string `required:"" help:"Comparison journal database" type:"existingfile"`
	Limit   int    `help:"Maximum entries to show" default:"20"`
}

func (c *HistoryCmd) Run(g *Globals) error {
	if err := g.initLogging(config.Logging{}); err != nil {
		return err
	}
	j, err := journal.Open(c.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(context.Background(), c.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "No comparisons recorded")
		return nil
	}
	for _, e := range entries {
		mode := e.UsedMode
		if e.UsedMode != e.RequestedMode {
			mode = e.RequestedMode + "->" + e.UsedMode
		}
		if e.Cached {
			mode += " (cached)"
		}
		fmt.Fprintf(stdout, "%s  %s  %-20s  %3d changes  %s..%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.ID, mode, e.Stats.Total(),
			short(e.OriginalHash), short(e.RevisedHash))
		if e.FallbackReason != "" {
			fmt.Fprintf(stdout, "    fallback: %s\n", e.FallbackReason)
		}
	}
	return nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "redline version %s\n", version)
	fmt.Fprintf(stdout, "  sqlite driver: %s (%s)\n", info.Package, info.DriverType)
	return nil
}

// openInput validates and reads an input document.
func openInput(path string) (*docx.Package, error) {
	if _, err := validation.CheckInput(path); err != nil {
		return nil, fmt.Errorf("invalid input %s: %w", path, err)
	}
	return docx.Open(path)
}

// writeOutput writes a package, or only its document part when out ends
// in .xml.
func writeOutput(pkg *docx.Package, out string) error {
	if strings.EqualFold(filepath.Ext(out), ".xml") {
		if err := os.WriteFile(out, pkg.Document(), 0644); err != nil {
			return rerrors.NewIO("write", out, err)
		}
		return nil
	}
	if pkg.Raw {
		return rerrors.NewValidation("out", "a bare document.xml input can only be written as .xml")
	}
	return pkg.WriteFile(out)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("redline"),
		kong.Description("Compare Word documents into tracked changes"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
