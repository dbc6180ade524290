package pipeline

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/redline/core/trackchanges"
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
)

// Safety checks run against every in-place candidate.
const (
	CheckAcceptText      = "accept-text"
	CheckRejectText      = "reject-text"
	CheckAcceptBookmarks = "accept-bookmarks"
	CheckRejectBookmarks = "reject-bookmarks"
)

// CheckResult is the outcome of one safety check.
type CheckResult struct {
	Check  string `json:"check"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
}

// snapshot is what a document is expected to look like after a transform.
type snapshot struct {
	texts     []string
	bookmarks wml.BookmarkSet
}

func snapshotOf(doc *xml.Document) (snapshot, error) {
	body, err := wml.Body(doc, "")
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{texts: wml.ParagraphTexts(body), bookmarks: wml.Bookmarks(body)}, nil
}

// verify accepts and rejects candidate and compares both results with the
// known revised and original documents.
func verify(candidate *xml.Document, original, revised snapshot) []CheckResult {
	accepted, errA := snapshotOf(trackchanges.Accept(candidate))
	rejected, errR := snapshotOf(trackchanges.Reject(candidate))
	if errA != nil || errR != nil {
		return []CheckResult{{Check: CheckAcceptText, Detail: "candidate has no body"}}
	}
	return []CheckResult{
		textCheck(CheckAcceptText, revised.texts, accepted.texts),
		textCheck(CheckRejectText, original.texts, rejected.texts),
		bookmarkCheck(CheckAcceptBookmarks, revised.bookmarks, accepted.bookmarks),
		bookmarkCheck(CheckRejectBookmarks, original.bookmarks, rejected.bookmarks),
	}
}

// passed reports whether every check passed.
func passed(results []CheckResult) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return len(results) > 0
}

// firstFailure returns the first failed check.
func firstFailure(results []CheckResult) (CheckResult, bool) {
	for _, r := range results {
		if !r.Pass {
			return r, true
		}
	}
	return CheckResult{}, false
}

func textCheck(name string, want, got []string) CheckResult {
	for i := 0; i < len(want) || i < len(got); i++ {
		var w, g string
		if i < len(want) {
			w = want[i]
		}
		if i < len(got) {
			g = got[i]
		}
		if i >= len(want) || i >= len(got) || w != g {
			return CheckResult{
				Check:  name,
				Detail: fmt.Sprintf("paragraph %d: want %q, got %q (%d/%d paragraphs)", i+1, clip(w), clip(g), len(want), len(got)),
			}
		}
	}
	return CheckResult{Check: name, Pass: true}
}

// bookmarkCheck compares names, duplicates and unmatched boundaries.
// Numeric ids are not compared; they are renumbered on output.
func bookmarkCheck(name string, want, got wml.BookmarkSet) CheckResult {
	for _, part := range []struct {
		label     string
		want, got []string
	}{
		{"names", want.Names, got.Names},
		{"duplicates", want.Duplicates, got.Duplicates},
		{"unmatched", unmatchedStarts(want.Unmatched), unmatchedStarts(got.Unmatched)},
	} {
		if strings.Join(part.want, "\x00") != strings.Join(part.got, "\x00") {
			return CheckResult{
				Check:  name,
				Detail: fmt.Sprintf("bookmark %s: want %v, got %v", part.label, part.want, part.got),
			}
		}
	}
	return CheckResult{Check: name, Pass: true}
}

// unmatchedStarts keeps unmatched starts, which are keyed by name, and
// reduces unmatched ends, which are keyed by id, to a count.
func unmatchedStarts(unmatched []string) []string {
	var out []string
	ends := 0
	for _, u := range unmatched {
		if strings.HasPrefix(u, "end:") {
			ends++
			continue
		}
		out = append(out, u)
	}
	if ends > 0 {
		out = append(out, fmt.Sprintf("end:%d", ends))
	}
	return out
}

func clip(s string) string {
	const max = 60
	if r := []rune(s); len(r) > max {
		return string(r[:max]) + "..."
	}
	return s
}
