package compare

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/redline/core/atom"
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
)

// MoveOptions configures move detection.
type MoveOptions struct {
	Enabled bool
	// MinWords is the shortest paragraph, in words, reported as a move.
	MinWords int
}

// DetectMoves pairs wholly deleted paragraphs with wholly inserted
// paragraphs of identical normalized text. Each pair is re-marked
// MovedSource / MovedDestination under a shared name "move<N>". It returns
// the number of pairs found.
func DetectMoves(merged []*atom.Atom, opts MoveOptions) int {
	if !opts.Enabled {
		return 0
	}
	minWords := opts.MinWords
	if minWords < 1 {
		minWords = 1
	}

	type candidate struct {
		atoms []*atom.Atom
		text  string
	}
	var sources, dests []candidate
	for _, unit := range Units(merged) {
		state, ok := wholeState(unit)
		if !ok {
			continue
		}
		text := Normalize(atom.TextOf(unit))
		if len(strings.Fields(text)) < minWords {
			continue
		}
		switch state {
		case atom.Deleted:
			sources = append(sources, candidate{unit, text})
		case atom.Inserted:
			dests = append(dests, candidate{unit, text})
		case atom.Unknown, atom.Equal, atom.MovedSource, atom.MovedDestination, atom.FormatChanged:
		}
	}

	used := make([]bool, len(dests))
	pairs := 0
	for _, src := range sources {
		for k, dst := range dests {
			if used[k] || dst.text != src.text {
				continue
			}
			used[k] = true
			pairs++
			name := "move" + strconv.Itoa(pairs)
			for _, a := range src.atoms {
				a.State, a.MoveName = atom.MovedSource, name
			}
			for _, a := range dst.atoms {
				a.State, a.MoveName = atom.MovedDestination, name
			}
			break
		}
	}
	return pairs
}

// wholeState reports the single state shared by every atom of a paragraph
// unit. Blocks and units without a paragraph mark never qualify.
func wholeState(unit []*atom.Atom) (atom.State, bool) {
	last := unit[len(unit)-1]
	if last.Kind != atom.Mark {
		return atom.Unknown, false
	}
	state := last.State
	for _, a := range unit {
		if a.State != state {
			return atom.Unknown, false
		}
	}
	return state, true
}

// FormatOptions configures format-change detection.
type FormatOptions struct {
	Enabled bool
}

// DetectFormatChanges re-marks Equal atoms whose run properties differ
// between the two documents as FormatChanged, keeping the original run
// properties on the atom. It returns the number of atoms re-marked.
func DetectFormatChanges(merged []*atom.Atom, opts FormatOptions) int {
	if !opts.Enabled {
		return 0
	}
	changed := 0
	for _, a := range merged {
		if a.State != atom.Equal || a.Peer == nil || a.Run == nil || a.Peer.Run == nil {
			continue
		}
		switch a.Kind {
		case atom.Text, atom.Leaf, atom.Field:
		case atom.BookmarkStart, atom.BookmarkEnd, atom.Mark, atom.Block:
			continue
		}
		orig, rev := a, a.Peer
		if a.Tree() == atom.Revised {
			orig, rev = a.Peer, a
		}
		if runPropsKey(orig.RunProperties()) == runPropsKey(rev.RunProperties()) {
			continue
		}
		rev.State, orig.State = atom.FormatChanged, atom.FormatChanged
		rev.OldRunProps = orig.RunProperties()
		changed++
	}
	return changed
}

// runPropsKey is the canonical form of w:rPr without rsids or an existing
// w:rPrChange.
func runPropsKey(rPr *xml.Node) string {
	if rPr == nil {
		return ""
	}
	c := xml.Clone(rPr)
	if ch := wml.Child(c, "rPrChange"); ch != nil {
		xml.Remove(ch)
	}
	if c.FirstChild == nil {
		return ""
	}
	return atom.Canonical(c)
}

// Stats summarises the changes of a comparison.
type Stats struct {
	Insertions    int `json:"insertions"`
	Deletions     int `json:"deletions"`
	Modifications int `json:"modifications"`
	Moves         int `json:"moves"`
	FormatChanges int `json:"formatChanges"`
}

// Total is the number of reported changes.
func (s Stats) Total() int {
	return s.Insertions + s.Deletions + s.Modifications + s.Moves + s.FormatChanges
}

// Collect counts change blocks in a merged sequence: a maximal run of
// inserted and deleted atoms counts once, as a modification when it holds
// both. Moves count once per name; format changes once per run of
// re-formatted atoms.
func Collect(merged []*atom.Atom) Stats {
	var s Stats
	moves := make(map[string]bool)
	var ins, del, inFormat bool
	flush := func() {
		switch {
		case ins && del:
			s.Modifications++
		case ins:
			s.Insertions++
		case del:
			s.Deletions++
		}
		ins, del = false, false
	}
	for _, a := range merged {
		switch a.State {
		case atom.Inserted:
			ins = true
			inFormat = false
			continue
		case atom.Deleted:
			del = true
			inFormat = false
			continue
		case atom.MovedSource, atom.MovedDestination:
			moves[a.MoveName] = true
			inFormat = false
		case atom.FormatChanged:
			if !inFormat {
				s.FormatChanges++
			}
			inFormat = true
		case atom.Equal, atom.Unknown:
			inFormat = false
		}
		flush()
	}
	flush()
	s.Moves = len(moves)
	return s
}
