package compare

import (
	"github.com/FocuswithJustin/redline/core/atom"
	"github.com/FocuswithJustin/redline/core/lcs"
)

// Mark assigns correlation states from an alignment. Matched atoms become
// Equal and are linked to each other through Peer; the rest are Deleted
// (original) or Inserted (revised).
func Mark(a, b []*atom.Atom, res lcs.Result) {
	for _, m := range res.Matches {
		a[m.A].State, b[m.B].State = atom.Equal, atom.Equal
		a[m.A].Peer, b[m.B].Peer = b[m.B], a[m.A]
	}
	for _, i := range res.OnlyA {
		a[i].State = atom.Deleted
	}
	for _, j := range res.OnlyB {
		b[j].State = atom.Inserted
	}
}

// Merge interleaves both sequences into output order. Before each match it
// emits the deleted atoms, then the inserted atoms, of the gap. When the
// deleted atoms end inside a paragraph that continues into the match, the
// complete inserted units of the gap go first so that the paragraph stays
// contiguous. A matched atom is emitted as its revised copy, except the
// mark of an empty paragraph, which keeps the original copy.
func Merge(a, b []*atom.Atom, res lcs.Result) []*atom.Atom {
	out := make([]*atom.Atom, 0, len(a)+len(b)-len(res.Matches))
	i, j := 0, 0
	emitGap := func(endA, endB int) {
		if endA > i && !a[endA-1].EndsUnit() {
			cut := -1
			for k := endB - 1; k >= j; k-- {
				if b[k].EndsUnit() {
					cut = k
					break
				}
			}
			for ; j <= cut; j++ {
				out = append(out, b[j])
			}
		}
		for ; i < endA; i++ {
			out = append(out, a[i])
		}
		for ; j < endB; j++ {
			out = append(out, b[j])
		}
	}
	for _, m := range res.Matches {
		emitGap(m.A, m.B)
		orig, rev := a[m.A], b[m.B]
		if orig.Kind == atom.Mark && orig.EmptyParagraph && rev.EmptyParagraph {
			out = append(out, orig)
		} else {
			out = append(out, rev)
		}
		i, j = m.A+1, m.B+1
	}
	emitGap(len(a), len(b))
	return out
}

// Unify assigns the unified paragraph index: it starts at zero and grows
// after every paragraph mark or block in the merged sequence. A matched
// atom and its peer share the index.
func Unify(merged []*atom.Atom) int {
	idx := 0
	for _, a := range merged {
		a.ParaIndex = idx
		if a.Peer != nil {
			a.Peer.ParaIndex = idx
		}
		if a.EndsUnit() {
			idx++
		}
	}
	if len(merged) > 0 && !merged[len(merged)-1].EndsUnit() {
		idx++
	}
	return idx
}

// Units splits the merged sequence by unified paragraph index.
func Units(merged []*atom.Atom) [][]*atom.Atom {
	var out [][]*atom.Atom
	start := 0
	for i, a := range merged {
		if i+1 == len(merged) || merged[i+1].ParaIndex != a.ParaIndex {
			out = append(out, merged[start:i+1])
			start = i + 1
		}
	}
	return out
}

// Result is a complete correlation of two atom sequences.
type Result struct {
	Original []*atom.Atom
	Revised  []*atom.Atom
	Merged   []*atom.Atom
	Units    int
}

// Compare runs the hierarchical alignment, marks, merges and unifies.
func Compare(a, b []*atom.Atom, opts Options) *Result {
	res := Hierarchical(a, b, opts)
	Mark(a, b, res)
	merged := Merge(a, b, res)
	units := Unify(merged)
	return &Result{Original: a, Revised: b, Merged: merged, Units: units}
}
