// Package lcs computes longest common subsequences over indexed sequences.
//
// The table is O(n·m) in time and space after common prefix and suffix are
// trimmed. Callers bound the sequence lengths; the hierarchical comparison
// in core/compare keeps each call to one paragraph pair.
package lcs

import "github.com/FocuswithJustin/redline/core/atom"

// Match pairs index A of the first sequence with index B of the second.
type Match struct {
	A, B int
}

// Result is an LCS alignment. Matches increase strictly in both A and B;
// every index of either sequence is either matched or listed in OnlyA or
// OnlyB, never both.
type Result struct {
	Matches []Match
	OnlyA   []int
	OnlyB   []int
}

// Compute aligns sequences of length n and m. eq(i, j) reports whether
// element i of the first equals element j of the second. Ties prefer a
// match, then skipping an element of the first sequence, so output is
// deterministic and deletions come before insertions.
func Compute(n, m int, eq func(i, j int) bool) Result {
	var res Result

	prefix := 0
	for prefix < n && prefix < m && eq(prefix, prefix) {
		res.Matches = append(res.Matches, Match{prefix, prefix})
		prefix++
	}
	suffix := 0
	for suffix < n-prefix && suffix < m-prefix && eq(n-1-suffix, m-1-suffix) {
		suffix++
	}

	middle := align(prefix, n-suffix, prefix, m-suffix, eq)
	res.Matches = append(res.Matches, middle...)
	for k := suffix; k > 0; k-- {
		res.Matches = append(res.Matches, Match{n - k, m - k})
	}

	res.OnlyA, res.OnlyB = complement(res.Matches, n, m)
	return res
}

// align runs the dynamic program on a[a0:a1] against b[b0:b1].
func align(a0, a1, b0, b1 int, eq func(i, j int) bool) []Match {
	rows, cols := a1-a0, b1-b0
	if rows == 0 || cols == 0 {
		return nil
	}
	width := cols + 1
	table := make([]int32, (rows+1)*width)
	at := func(i, j int) int32 { return table[i*width+j] }

	for i := rows - 1; i >= 0; i-- {
		for j := cols - 1; j >= 0; j-- {
			var v int32
			switch {
			case eq(a0+i, b0+j):
				v = at(i+1, j+1) + 1
			case at(i+1, j) >= at(i, j+1):
				v = at(i+1, j)
			default:
				v = at(i, j+1)
			}
			table[i*width+j] = v
		}
	}

	var out []Match
	i, j := 0, 0
	for i < rows && j < cols {
		switch {
		case eq(a0+i, b0+j) && at(i, j) == at(i+1, j+1)+1:
			out = append(out, Match{a0 + i, b0 + j})
			i++
			j++
		case at(i+1, j) >= at(i, j+1):
			i++
		default:
			j++
		}
	}
	return out
}

func complement(matches []Match, n, m int) (onlyA, onlyB []int) {
	inA := make([]bool, n)
	inB := make([]bool, m)
	for _, mt := range matches {
		inA[mt.A] = true
		inB[mt.B] = true
	}
	for i, ok := range inA {
		if !ok {
			onlyA = append(onlyA, i)
		}
	}
	for j, ok := range inB {
		if !ok {
			onlyB = append(onlyB, j)
		}
	}
	return onlyA, onlyB
}

// Atoms aligns two atom sequences by atom equivalence.
func Atoms(a, b []*atom.Atom) Result {
	return Compute(len(a), len(b), func(i, j int) bool {
		return atom.Equivalent(a[i], b[j])
	})
}
