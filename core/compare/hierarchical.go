package compare

import (
	"github.com/FocuswithJustin/redline/core/atom"
	"github.com/FocuswithJustin/redline/core/lcs"
)

// DefaultSimilarityThreshold is the Jaccard score a paragraph pair needs to
// be aligned when its text differs.
const DefaultSimilarityThreshold = 0.25

// Options tunes the hierarchical comparison.
type Options struct {
	SimilarityThreshold float64
	MaxGroupAtoms       int
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxGroupAtoms:       DefaultMaxGroupAtoms,
	}
}

// PairKind records how two groups were aligned.
type PairKind int

const (
	PairExact PairKind = iota
	PairNormalized
	PairSimilar
)

// Pair is an aligned group pair.
type Pair struct {
	A, B  *Group
	Kind  PairKind
	Score float64
}

// AlignGroups aligns paragraph groups: an LCS over coarse equality, then a
// similarity pass inside each gap between coarse matches. Similarity pairs
// increase in both sequences, so the combined alignment stays a
// subsequence.
func AlignGroups(ga, gb []*Group, threshold float64) []Pair {
	coarse := lcs.Compute(len(ga), len(gb), func(i, j int) bool {
		return coarseEqual(ga[i], gb[j])
	})

	var pairs []Pair
	prevA, prevB := -1, -1
	gap := func(endA, endB int) {
		lastB := prevB
		for i := prevA + 1; i < endA; i++ {
			best, bestScore := -1, threshold
			for j := lastB + 1; j < endB; j++ {
				if s := Jaccard(ga[i], gb[j]); s >= bestScore && (best < 0 || s > bestScore) {
					best, bestScore = j, s
				}
			}
			if best >= 0 {
				pairs = append(pairs, Pair{A: ga[i], B: gb[best], Kind: PairSimilar, Score: bestScore})
				lastB = best
			}
		}
	}

	for _, m := range coarse.Matches {
		gap(m.A, m.B)
		kind := PairNormalized
		if exactEqual(ga[m.A], gb[m.B]) {
			kind = PairExact
		}
		pairs = append(pairs, Pair{A: ga[m.A], B: gb[m.B], Kind: kind, Score: Jaccard(ga[m.A], gb[m.B])})
		prevA, prevB = m.A, m.B
	}
	gap(len(ga), len(gb))
	return pairs
}

// Hierarchical aligns two atom sequences paragraph by paragraph and returns
// an atom-level LCS result over the full sequences.
func Hierarchical(a, b []*atom.Atom, opts Options) lcs.Result {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	ga := Groups(a, opts.MaxGroupAtoms)
	gb := Groups(b, opts.MaxGroupAtoms)

	var matches []lcs.Match
	for _, p := range AlignGroups(ga, gb, opts.SimilarityThreshold) {
		if p.Kind != PairExact && p.Score < opts.SimilarityThreshold {
			// Only reachable if coarse equality admits a pair with
			// dissimilar text: the pair is left as a full replace.
			continue
		}
		inner := lcs.Atoms(p.A.Atoms, p.B.Atoms)
		for _, m := range inner.Matches {
			matches = append(matches, lcs.Match{A: p.A.Start + m.A, B: p.B.Start + m.B})
		}
	}

	res := lcs.Result{Matches: matches}
	matchedA := make([]bool, len(a))
	matchedB := make([]bool, len(b))
	for _, m := range matches {
		matchedA[m.A], matchedB[m.B] = true, true
	}
	for i, ok := range matchedA {
		if !ok {
			res.OnlyA = append(res.OnlyA, i)
		}
	}
	for j, ok := range matchedB {
		if !ok {
			res.OnlyB = append(res.OnlyB, j)
		}
	}
	return res
}
