// Package compare correlates two atom sequences: paragraph-level alignment
// with a similarity fallback, per-paragraph LCS, correlation marking, merge
// into output order with a unified paragraph index, and the move and
// format-change detectors that refine the marking.
package compare

import (
	"strings"

	"github.com/FocuswithJustin/redline/core/atom"
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxGroupAtoms is the paragraph size above which a group is split
// at soft breaks.
const DefaultMaxGroupAtoms = 800

// Group is a paragraph, or a soft-break slice of an oversized one.
type Group struct {
	Atoms []*atom.Atom
	// Start is the index of the first atom in the full sequence.
	Start int
	// Hash covers the atom hashes in order.
	Hash [32]byte
	// NormHash covers the normalized text; zero when the text is empty.
	NormHash [32]byte
	// Empty marks an empty-paragraph group.
	Empty bool

	words map[string]struct{}
}

// Groups cuts atoms into paragraph groups. A paragraph with more than
// maxAtoms atoms is split after each soft break.
func Groups(atoms []*atom.Atom, maxAtoms int) []*Group {
	if maxAtoms <= 0 {
		maxAtoms = DefaultMaxGroupAtoms
	}
	var out []*Group
	start := 0
	for i, a := range atoms {
		if !a.EndsUnit() && i != len(atoms)-1 {
			continue
		}
		unit := atoms[start : i+1]
		if len(unit) > maxAtoms {
			out = append(out, splitOversized(unit, start)...)
		} else {
			out = append(out, newGroup(unit, start))
		}
		start = i + 1
	}
	return out
}

func splitOversized(unit []*atom.Atom, offset int) []*Group {
	var out []*Group
	start := 0
	for i, a := range unit {
		if isSoftBreak(a) && i < len(unit)-1 {
			out = append(out, newGroup(unit[start:i+1], offset+start))
			start = i + 1
		}
	}
	return append(out, newGroup(unit[start:], offset+start))
}

func isSoftBreak(a *atom.Atom) bool {
	if a.Kind != atom.Leaf {
		return false
	}
	switch a.Tag {
	case "cr":
		return true
	case "br":
		n := a.Node.Node
		t := wml.Attr(n, "type")
		return t == "" || t == "textWrapping"
	}
	return false
}

func newGroup(atoms []*atom.Atom, start int) *Group {
	g := &Group{Atoms: atoms, Start: start}
	h := blake3.New()
	for _, a := range atoms {
		h.Write(a.Hash[:])
	}
	copy(g.Hash[:], h.Sum(nil))

	g.Empty = len(atoms) == 1 && atoms[0].Kind == atom.Mark && atoms[0].EmptyParagraph
	text := Normalize(groupText(atoms))
	if text != "" {
		g.NormHash = blake3.Sum256([]byte(text))
	}
	g.words = make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		g.words[w] = struct{}{}
	}
	return g
}

func groupText(atoms []*atom.Atom) string {
	var sb strings.Builder
	for _, a := range atoms {
		if a.Kind == atom.Block {
			if n, ok := a.Node.In(a.Tree()); ok {
				sb.WriteString(xml.TextContent(n))
			}
			continue
		}
		sb.WriteString(a.Visible())
	}
	return sb.String()
}

// Normalize folds compatibility characters (NFKC), lowercases and collapses
// whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFKC.String(s))), " ")
}

// Jaccard is the word-set similarity of two groups; 0 when either has no
// words.
func Jaccard(a, b *Group) float64 {
	if len(a.words) == 0 || len(b.words) == 0 {
		return 0
	}
	inter := 0
	for w := range a.words {
		if _, ok := b.words[w]; ok {
			inter++
		}
	}
	union := len(a.words) + len(b.words) - inter
	return float64(inter) / float64(union)
}

// exactEqual is hash equality confirmed atom by atom.
func exactEqual(a, b *Group) bool {
	if a.Hash != b.Hash || len(a.Atoms) != len(b.Atoms) {
		return false
	}
	for i := range a.Atoms {
		if !atom.Equivalent(a.Atoms[i], b.Atoms[i]) {
			return false
		}
	}
	return true
}

// coarseEqual matches groups exactly, or by normalized text when neither is
// an empty paragraph.
func coarseEqual(a, b *Group) bool {
	if exactEqual(a, b) {
		return true
	}
	if a.Empty || b.Empty {
		return false
	}
	var zero [32]byte
	return a.NormHash != zero && a.NormHash == b.NormHash
}
