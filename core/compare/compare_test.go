package compare

import (
	"strings"
	"testing"

	"github.com/FocuswithJustin/redline/core/atom"
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
)

func atomize(t *testing.T, tree atom.Tree, content string) []*atom.Atom {
	t.Helper()
	doc, err := xml.Parse([]byte(`<w:document xmlns:w="` + wml.NS + `"><w:body>` + content + `</w:body></w:document>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	body, err := wml.Body(doc, tree.String())
	if err != nil {
		t.Fatal(err)
	}
	return atom.Atomize(body, tree, atom.Options{Granularity: atom.Word})
}

func paras(texts ...string) string {
	var sb strings.Builder
	for _, s := range texts {
		if s == "" {
			sb.WriteString(`<w:p/>`)
			continue
		}
		sb.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + s + `</w:t></w:r></w:p>`)
	}
	return sb.String()
}

func run(t *testing.T, orig, rev string) *Result {
	t.Helper()
	a := atomize(t, atom.Original, orig)
	b := atomize(t, atom.Revised, rev)
	return Compare(a, b, DefaultOptions())
}

// describe renders merged atoms as "state:text" per paragraph unit.
func describe(merged []*atom.Atom) []string {
	var out []string
	for _, unit := range Units(merged) {
		var parts []string
		for _, a := range unit {
			text := a.Content
			if a.Kind == atom.Mark {
				text = "¶"
			}
			parts = append(parts, a.State.String()[:3]+":"+text)
		}
		out = append(out, strings.Join(parts, " "))
	}
	return out
}

func TestCompareScenarios(t *testing.T) {
	tests := []struct {
		name string
		orig string
		rev  string
		want []string
	}{
		{
			name: "pure insertion",
			orig: paras("Hello."),
			rev:  paras("Hello.", "World."),
			want: []string{"equ:Hello. equ:¶", "ins:World. ins:¶"},
		},
		{
			name: "word replaced",
			orig: paras("the cat sat"),
			rev:  paras("the dog sat"),
			want: []string{"equ:the equ:  del:cat ins:dog equ:  equ:sat equ:¶"},
		},
		{
			name: "case change aligns by normalized text",
			orig: paras("Hello world", "tail"),
			rev:  paras("hello world", "tail"),
			want: []string{"del:Hello ins:hello equ:  equ:world equ:¶", "equ:tail equ:¶"},
		},
		{
			name: "deleted paragraph",
			orig: paras("one", "two", "three"),
			rev:  paras("one", "three"),
			want: []string{"equ:one equ:¶", "del:two del:¶", "equ:three equ:¶"},
		},
		{
			name: "empty paragraphs",
			orig: paras("a", "", "b"),
			rev:  paras("a", "", "", "b"),
			want: []string{"equ:a equ:¶", "equ:¶", "ins:¶", "equ:b equ:¶"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.orig, tt.rev)
			got := describe(res.Merged)
			if strings.Join(got, " | ") != strings.Join(tt.want, " | ") {
				t.Errorf("merged =\n  %s\nwant\n  %s", strings.Join(got, " | "), strings.Join(tt.want, " | "))
			}
		})
	}
}

func TestSimilarityAlignsEditedParagraph(t *testing.T) {
	res := run(t,
		paras("intro", "the quick brown fox jumps"),
		paras("intro", "new paragraph here", "the quick red fox jumps"))

	var fox *atom.Atom
	for _, a := range res.Merged {
		if a.Content == "fox" {
			fox = a
		}
	}
	if fox == nil || fox.State != atom.Equal {
		t.Fatalf("fox should stay Equal inside the aligned pair: %+v", fox)
	}
	if fox.Peer == nil || fox.Peer.Tree() != atom.Original {
		t.Error("Equal revised atom should link to its original peer")
	}
}

func TestHierarchicalInvariants(t *testing.T) {
	a := atomize(t, atom.Original, paras("alpha beta", "gamma", "", "delta epsilon zeta", "eta"))
	b := atomize(t, atom.Revised, paras("gamma", "alpha beta", "delta zeta theta", "", "iota"))
	res := Hierarchical(a, b, DefaultOptions())

	for k := 1; k < len(res.Matches); k++ {
		if res.Matches[k].A <= res.Matches[k-1].A || res.Matches[k].B <= res.Matches[k-1].B {
			t.Fatalf("matches not increasing: %v", res.Matches)
		}
	}
	if len(res.Matches)+len(res.OnlyA) != len(a) || len(res.Matches)+len(res.OnlyB) != len(b) {
		t.Fatal("every atom must be matched or unmatched exactly once")
	}
	for _, m := range res.Matches {
		if !atom.Equivalent(a[m.A], b[m.B]) {
			t.Fatalf("matched non-equivalent atoms %q / %q", a[m.A].Content, b[m.B].Content)
		}
	}
}

func TestUnifyOrdering(t *testing.T) {
	res := run(t, paras("a", "b", "c"), paras("x", "b", "c", "d"))
	prev := -1
	for _, a := range res.Merged {
		if a.ParaIndex < prev {
			t.Fatalf("unified index decreased: %d after %d", a.ParaIndex, prev)
		}
		prev = a.ParaIndex
		if a.State == atom.Unknown {
			t.Fatal("no atom may stay Unknown")
		}
		if a.Peer != nil && a.Peer.ParaIndex != a.ParaIndex {
			t.Error("matched atoms must share the unified index")
		}
	}
	if res.Units != len(Units(res.Merged)) {
		t.Errorf("Units = %d, want %d", res.Units, len(Units(res.Merged)))
	}
}

func TestMergeKeepsOriginalEmptyParagraph(t *testing.T) {
	res := run(t, paras("a", ""), paras("a", ""))
	last := res.Merged[len(res.Merged)-1]
	if !last.EmptyParagraph || last.Tree() != atom.Original {
		t.Errorf("empty paragraph mark should come from the original, got %v", last.Tree())
	}
	if res.Merged[0].Tree() != atom.Revised {
		t.Error("other matched atoms come from the revised document")
	}
}

func TestDetectMoves(t *testing.T) {
	res := run(t, paras("A.", "B."), paras("B.", "A."))
	if n := DetectMoves(res.Merged, MoveOptions{Enabled: true, MinWords: 1}); n != 1 {
		t.Fatalf("DetectMoves = %d, want 1", n)
	}
	names := make(map[string][]atom.State)
	for _, a := range res.Merged {
		if a.MoveName != "" {
			names[a.MoveName] = append(names[a.MoveName], a.State)
		}
	}
	if len(names) != 1 {
		t.Fatalf("move names = %v", names)
	}
	for _, states := range names {
		var src, dst int
		for _, s := range states {
			switch s {
			case atom.MovedSource:
				src++
			case atom.MovedDestination:
				dst++
			case atom.Unknown, atom.Equal, atom.Deleted, atom.Inserted, atom.FormatChanged:
				t.Errorf("unexpected state %s in move", s)
			}
		}
		if src == 0 || dst == 0 {
			t.Error("a move needs both a source and a destination")
		}
	}

	res = run(t, paras("A.", "B."), paras("B.", "A."))
	if n := DetectMoves(res.Merged, MoveOptions{Enabled: true, MinWords: 3}); n != 0 {
		t.Errorf("short paragraphs should not be moves with MinWords=3, got %d", n)
	}
	if n := DetectMoves(res.Merged, MoveOptions{}); n != 0 {
		t.Error("disabled detection must not report moves")
	}
}

func TestDetectFormatChanges(t *testing.T) {
	a := atomize(t, atom.Original, `<w:p><w:r><w:t>bold</w:t></w:r></w:p>`)
	b := atomize(t, atom.Revised, `<w:p><w:r w:rsidR="01"><w:rPr><w:b/></w:rPr><w:t>bold</w:t></w:r></w:p>`)
	res := Compare(a, b, DefaultOptions())

	if n := DetectFormatChanges(res.Merged, FormatOptions{Enabled: true}); n != 1 {
		t.Fatalf("DetectFormatChanges = %d, want 1", n)
	}
	word := res.Merged[0]
	if word.State != atom.FormatChanged || word.Tree() != atom.Revised {
		t.Errorf("state = %s", word.State)
	}
	if word.OldRunProps != nil {
		t.Error("original run had no properties")
	}
	if s := Collect(res.Merged); s.FormatChanges != 1 || s.Total() != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestCollect(t *testing.T) {
	res := run(t, paras("keep", "the cat sat", "gone"), paras("keep", "the dog sat", "added here"))
	s := Collect(res.Merged)
	if s.Modifications < 1 {
		t.Errorf("expected a modification: %+v", s)
	}
	if s.Total() == 0 {
		t.Error("changes should be counted")
	}
}

func TestGroupsSplitOversized(t *testing.T) {
	a := atomize(t, atom.Original, `<w:p><w:r><w:t>one two</w:t><w:br/><w:t>three four</w:t><w:br w:type="page"/><w:t>five</w:t></w:r></w:p><w:p/>`)
	groups := Groups(a, 4)
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if groups[0].Atoms[len(groups[0].Atoms)-1].Tag != "br" {
		t.Error("split should happen after the soft break")
	}
	if !groups[2].Empty {
		t.Error("last group is the empty paragraph")
	}
	total := 0
	for _, g := range groups {
		if g.Start != total {
			t.Errorf("group start = %d, want %d", g.Start, total)
		}
		total += len(g.Atoms)
	}
}

func TestJaccard(t *testing.T) {
	a := atomize(t, atom.Original, paras("a b c", "", "A  B"))
	g := Groups(a, 0)
	if got := Jaccard(g[0], g[2]); got < 0.66 || got > 0.67 {
		t.Errorf("Jaccard = %v, want 2/3", got)
	}
	if Jaccard(g[0], g[1]) != 0 {
		t.Error("empty groups have no similarity")
	}
	if !coarseEqual(g[2], newGroup(atomize(t, atom.Revised, paras("a b"))[:4], 0)) {
		t.Error("normalized text should coarse-match")
	}
}
