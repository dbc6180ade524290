// Package pipeline runs a complete document comparison: it normalises both
// inputs, correlates them, writes tracked changes with the requested
// strategy and checks in-place output before returning it.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/redline/core/atom"
	"github.com/FocuswithJustin/redline/core/compare"
	rerrors "github.com/FocuswithJustin/redline/core/errors"
	"github.com/FocuswithJustin/redline/core/inplace"
	"github.com/FocuswithJustin/redline/core/rebuild"
	"github.com/FocuswithJustin/redline/core/trackchanges"
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
	"github.com/FocuswithJustin/redline/internal/logging"
)

// Input is one side of a comparison.
type Input struct {
	// Document is the main document part (word/document.xml).
	Document []byte
	// Numbering is the optional numbering part (word/numbering.xml).
	Numbering []byte
}

// Attempt records one in-place candidate.
type Attempt struct {
	Granularity string        `json:"granularity"`
	Passed      bool          `json:"passed"`
	Checks      []CheckResult `json:"checks,omitempty"`

	// Error is set when the candidate could not be produced at all.
	Error string `json:"error,omitempty"`
}

// Failure summarises why the attempt was rejected.
func (a Attempt) Failure() string {
	if a.Error != "" {
		return a.Error
	}
	if f, ok := firstFailure(a.Checks); ok {
		return f.Check + ": " + f.Detail
	}
	return ""
}

// Result is the outcome of Compare.
type Result struct {
	ID        string        `json:"id"`
	Document  []byte        `json:"-"`
	Stats     compare.Stats `json:"stats"`
	Requested Mode          `json:"requestedMode"`
	ModeUsed  Mode          `json:"reconstructionModeUsed"`
	Duration  time.Duration `json:"duration"`

	// FallbackReason is set when in-place output was discarded.
	FallbackReason string    `json:"fallbackReason,omitempty"`
	Attempts       []Attempt `json:"attempts,omitempty"`
}

// inplaceGranularities are tried in order; coarser atoms touch fewer runs.
var inplaceGranularities = []atom.Granularity{atom.Word, atom.Run}

// prepared is a normalised input: pending revisions accepted, serialised
// so each attempt can parse its own tree.
type prepared struct {
	data      []byte
	numbering *atom.Numbering
	expect    snapshot
}

// Compare compares original with revised and returns a document in which
// every difference is a tracked change.
func Compare(ctx context.Context, original, revised Input, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.Canonical()
	if opts.Date.IsZero() {
		opts.Date = time.Now().UTC()
	}

	start := time.Now()
	id := logging.GetComparisonID(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = logging.WithComparisonID(ctx, id)
	}
	res := &Result{ID: id, Requested: opts.Mode}

	orig, err := prepare(ctx, "original", original, opts)
	if err != nil {
		return nil, err
	}
	rev, err := prepare(ctx, "revised", revised, opts)
	if err != nil {
		return nil, err
	}

	if opts.Mode == ModeInplace {
		for _, g := range inplaceGranularities {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			doc, stats, attempt, err := runInplace(orig, rev, g, opts)
			if err != nil {
				return nil, err
			}
			res.Attempts = append(res.Attempts, attempt)
			if attempt.Passed {
				res.Document, res.Stats, res.ModeUsed = doc, stats, ModeInplace
				return finish(ctx, res, start), nil
			}
			if f, ok := firstFailure(attempt.Checks); ok {
				logging.AttemptFailed(ctx, attempt.Granularity, f.Check, f.Detail)
			} else {
				logging.AttemptFailed(ctx, attempt.Granularity, "apply", attempt.Error)
			}
		}
		res.FallbackReason = fallbackReason(res.Attempts)
		logging.Fallback(ctx, res.FallbackReason, len(res.Attempts))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, stats, err := runRebuild(orig, rev, opts)
	if err != nil {
		return nil, err
	}
	res.Document, res.Stats, res.ModeUsed = doc, stats, ModeRebuild
	return finish(ctx, res, start), nil
}

func finish(ctx context.Context, res *Result, start time.Time) *Result {
	res.Duration = time.Since(start)
	logging.ComparisonDone(ctx, string(res.ModeUsed), res.Stats.Total(), res.Duration,
		"requested", string(res.Requested),
		"insertions", res.Stats.Insertions,
		"deletions", res.Stats.Deletions,
		"modifications", res.Stats.Modifications,
		"moves", res.Stats.Moves,
		"format_changes", res.Stats.FormatChanges,
	)
	return res
}

func fallbackReason(attempts []Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.Granularity+" "+a.Failure())
	}
	return strings.Join(parts, "; ")
}

// prepare parses one input, accepts revisions already in it and records
// what the output must reduce to.
func prepare(ctx context.Context, which string, in Input, opts Options) (*prepared, error) {
	doc, err := xml.Parse(in.Document)
	if err != nil {
		return nil, rerrors.Wrapf(err, "%s document", which)
	}
	if _, err := wml.Body(doc, which); err != nil {
		return nil, err
	}
	if wml.HasRevisions(doc.Root()) {
		doc = trackchanges.Accept(doc)
	}
	p := &prepared{data: doc.Serialize()}
	if p.expect, err = snapshotOf(doc); err != nil {
		return nil, err
	}

	if opts.Numbering && len(in.Numbering) > 0 {
		n, err := atom.ParseNumbering(in.Numbering)
		if err != nil {
			logging.NumberingSkipped(ctx, which, err)
		} else {
			p.numbering = n
		}
	}
	return p, nil
}

// correlation is one parse of both inputs and their merged atoms.
type correlation struct {
	original, revised *xml.Document
	merged            []*atom.Atom
	stats             compare.Stats
	revisions         *wml.Revisions
}

func correlate(orig, rev *prepared, g atom.Granularity, opts Options) (*correlation, error) {
	o, err := xml.Parse(orig.data)
	if err != nil {
		return nil, err
	}
	r, err := xml.Parse(rev.data)
	if err != nil {
		return nil, err
	}
	ob, err := wml.Body(o, "original")
	if err != nil {
		return nil, err
	}
	rb, err := wml.Body(r, "revised")
	if err != nil {
		return nil, err
	}
	if opts.PremergeRuns {
		atom.PremergeRuns(ob)
		atom.PremergeRuns(rb)
	}

	a := atom.Atomize(ob, atom.Original, atom.Options{Granularity: g, Numbering: orig.numbering})
	b := atom.Atomize(rb, atom.Revised, atom.Options{Granularity: g, Numbering: rev.numbering})
	cmp := compare.DefaultOptions()
	cmp.SimilarityThreshold = opts.SimilarityThreshold
	res := compare.Compare(a, b, cmp)
	compare.DetectMoves(res.Merged, compare.MoveOptions{
		Enabled:  opts.MoveDetection.Enabled,
		MinWords: opts.MoveDetection.MinWords,
	})
	compare.DetectFormatChanges(res.Merged, compare.FormatOptions{Enabled: opts.FormatDetection.Enabled})

	revs := wml.NewRevisions(opts.Author, opts.Date)
	revs.Reserve(max(wml.MaxID(o.Root()), wml.MaxID(r.Root())))
	return &correlation{
		original:  o,
		revised:   r,
		merged:    res.Merged,
		stats:     compare.Collect(res.Merged),
		revisions: revs,
	}, nil
}

func runRebuild(orig, rev *prepared, opts Options) ([]byte, compare.Stats, error) {
	c, err := correlate(orig, rev, atom.Word, opts)
	if err != nil {
		return nil, compare.Stats{}, err
	}
	out, err := rebuild.Build(c.merged, c.original, c.revised, c.revisions)
	if err != nil {
		return nil, compare.Stats{}, err
	}
	return out.Serialize(), c.stats, nil
}

// runInplace produces and checks one in-place candidate. A candidate that
// fails is reported in the Attempt, not as an error; only structural
// problems with the inputs are returned as errors.
func runInplace(orig, rev *prepared, g atom.Granularity, opts Options) ([]byte, compare.Stats, Attempt, error) {
	attempt := Attempt{Granularity: g.String()}
	c, err := correlate(orig, rev, g, opts)
	if err != nil {
		return nil, compare.Stats{}, attempt, err
	}
	if err := inplace.Apply(c.merged, c.original, c.revised, c.revisions); err != nil {
		if rerrors.Is(err, rerrors.ErrStructure) {
			return nil, compare.Stats{}, attempt, err
		}
		attempt.Error = fmt.Sprintf("apply: %v", err)
		return nil, compare.Stats{}, attempt, nil
	}

	// Re-parse the serialised candidate so the checks see what a reader sees.
	data := c.revised.Serialize()
	candidate, err := xml.Parse(data)
	if err != nil {
		attempt.Error = fmt.Sprintf("reparse: %v", err)
		return nil, compare.Stats{}, attempt, nil
	}
	attempt.Checks = verify(candidate, orig.expect, rev.expect)
	attempt.Passed = passed(attempt.Checks)
	return data, c.stats, attempt, nil
}
