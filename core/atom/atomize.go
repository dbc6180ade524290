package atom

import (
	"strings"
	"unicode"

	rerrors "github.com/FocuswithJustin/redline/core/errors"
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
	"github.com/antchfx/xmlquery"
)

// Granularity selects how run text is divided into atoms.
type Granularity int

const (
	// Word splits text into alternating word and whitespace atoms.
	Word Granularity = iota
	// Run makes each w:t a single atom.
	Run
)

func (g Granularity) String() string {
	switch g {
	case Word:
		return "word"
	case Run:
		return "run"
	}
	return "unknown"
}

// ParseGranularity parses "word" or "run".
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(s) {
	case "word":
		return Word, nil
	case "run":
		return Run, nil
	}
	return 0, rerrors.NewUnsupported("granularity", s)
}

// Options configures Atomize.
type Options struct {
	Granularity Granularity
	// Numbering, when set, folds rendered list labels into atom hashes.
	Numbering *Numbering
}

type fieldState struct {
	runs      []*xml.Node
	ancestors []*xml.Node
	depth     int
	instr     strings.Builder
}

type atomizer struct {
	tree   Tree
	opts   Options
	labels *Labeler
	names  map[string]string

	out     []*Atom
	para    int
	p       *xml.Node
	pending []*Atom
	field   *fieldState
}

// Atomize decomposes a w:body into atoms in document order. Every paragraph
// ends with a Mark atom; body-level tables and other blocks become single
// Block atoms. ParaIndex is local to the tree.
func Atomize(body *xml.Node, tree Tree, opts Options) []*Atom {
	a := &atomizer{
		tree:  tree,
		opts:  opts,
		names: make(map[string]string),
	}
	if opts.Numbering != nil {
		a.labels = opts.Numbering.NewLabeler()
	}
	for _, bs := range wml.Descendants(body, "bookmarkStart") {
		a.names[wml.Attr(bs, "id")] = wml.Attr(bs, "name")
	}

	for c := body.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type != xmlquery.ElementNode:
		case wml.Is(c, "p"):
			a.paragraph(c)
		case wml.Is(c, "sectPr"):
		case wml.IsAny(c, "bookmarkStart", "bookmarkEnd"):
			a.pending = append(a.pending, a.marker(c, nil))
		case wml.IsRangeMarker(c):
		default:
			a.block(c)
		}
	}
	a.flushTrailingMarkers()
	return a.out
}

func (a *atomizer) ref(n *xml.Node) NodeRef {
	return NodeRef{Tree: a.tree, Node: n}
}

func (a *atomizer) add(at *Atom) {
	at.Paragraph = a.p
	at.ParaIndex = a.para
	a.out = append(a.out, at)
}

func (a *atomizer) paragraph(p *xml.Node) {
	a.p = p
	start := len(a.out)
	for _, m := range a.pending {
		a.add(m)
	}
	a.pending = nil

	a.content(p, nil)
	a.finishField()

	mark := &Atom{Kind: Mark, Tag: "p", Node: a.ref(p), EmptyParagraph: true}
	for _, at := range a.out[start:] {
		if !at.IsMarker() {
			mark.EmptyParagraph = false
			break
		}
	}
	mark.rehash()
	a.add(mark)

	if label := a.labels.Next(p); label != "" {
		for _, at := range a.out[start:] {
			if !at.IsMarker() {
				at.Label = label
				at.rehash()
				break
			}
		}
	}
	a.para++
	a.p = nil
}

func (a *atomizer) content(parent *xml.Node, ancestors []*xml.Node) {
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type != xmlquery.ElementNode:
		case wml.IsProperties(c):
		case wml.Is(c, "r"):
			a.run(c, ancestors)
		case wml.IsAny(c, "bookmarkStart", "bookmarkEnd"):
			a.add(a.marker(c, ancestors))
		case wml.IsRangeMarker(c):
		case wml.IsInlineWrapper(c):
			a.content(c, append(ancestors[:len(ancestors):len(ancestors)], c))
		default:
			a.leaf(c, nil, ancestors)
		}
	}
}

func hasFieldBegin(r *xml.Node) bool {
	for c := r.FirstChild; c != nil; c = c.NextSibling {
		if wml.Is(c, "fldChar") && wml.Attr(c, "fldCharType") == "begin" {
			return true
		}
	}
	return false
}

func (a *atomizer) run(r *xml.Node, ancestors []*xml.Node) {
	if a.field == nil && hasFieldBegin(r) {
		a.field = &fieldState{ancestors: ancestors}
	}
	if a.field != nil {
		a.fieldRun(r)
		return
	}
	for c := r.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type != xmlquery.ElementNode:
		case wml.Is(c, "rPr"):
		case wml.Is(c, "t"):
			a.text(c, r, ancestors)
		case wml.IsAny(c, "delText", "instrText", "delInstrText", "lastRenderedPageBreak"):
		default:
			a.leaf(c, r, ancestors)
		}
	}
}

// fieldRun collects r into the open field. Collection stops at the
// separate of the outermost field, or at its end when it has no result.
func (a *atomizer) fieldRun(r *xml.Node) {
	f := a.field
	f.runs = append(f.runs, r)
	done := false
	for c := r.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case wml.Is(c, "fldChar"):
			switch wml.Attr(c, "fldCharType") {
			case "begin":
				f.depth++
			case "separate":
				if f.depth == 1 {
					done = true
				}
			case "end":
				f.depth--
				if f.depth <= 0 {
					done = true
				}
			}
		case wml.Is(c, "instrText") && f.depth == 1:
			f.instr.WriteString(xml.TextContent(c))
		}
	}
	if done {
		a.finishField()
	}
}

func (a *atomizer) finishField() {
	f := a.field
	if f == nil {
		return
	}
	a.field = nil
	if len(f.runs) == 0 {
		return
	}
	at := &Atom{
		Kind:      Field,
		Tag:       "field",
		Content:   wml.NormalizeSpace(f.instr.String()),
		Node:      a.ref(f.runs[0]),
		Run:       f.runs[0],
		Ancestors: f.ancestors,
		FieldRuns: f.runs,
	}
	at.rehash()
	a.add(at)
}

func (a *atomizer) text(t, r *xml.Node, ancestors []*xml.Node) {
	s := xml.TextContent(t)
	if s == "" {
		return
	}
	spans := [][2]int{{0, len(s)}}
	if a.opts.Granularity == Word {
		spans = SplitWords(s)
	}
	for _, sp := range spans {
		at := &Atom{
			Kind:      Text,
			Tag:       "t",
			Content:   s[sp[0]:sp[1]],
			Node:      a.ref(t),
			Run:       r,
			Ancestors: ancestors,
			TextStart: sp[0],
			TextEnd:   sp[1],
		}
		at.rehash()
		a.add(at)
	}
}

func (a *atomizer) leaf(c, r *xml.Node, ancestors []*xml.Node) {
	tag := c.Data
	if c.Prefix != "" && c.Prefix != wml.Prefix {
		tag = c.Prefix + ":" + c.Data
	}
	at := &Atom{
		Kind:      Leaf,
		Tag:       tag,
		Content:   Canonical(c),
		Node:      a.ref(c),
		Run:       r,
		Ancestors: ancestors,
	}
	at.rehash()
	a.add(at)
}

func (a *atomizer) marker(c *xml.Node, ancestors []*xml.Node) *Atom {
	at := &Atom{Kind: BookmarkStart, Tag: "bookmarkStart", Node: a.ref(c), Ancestors: ancestors}
	if wml.Is(c, "bookmarkStart") {
		at.Content = wml.Attr(c, "name")
	} else {
		at.Kind, at.Tag = BookmarkEnd, "bookmarkEnd"
		id := wml.Attr(c, "id")
		if name, ok := a.names[id]; ok {
			at.Content = name
		} else {
			at.Content = "#" + id
		}
	}
	at.rehash()
	return at
}

func (a *atomizer) block(c *xml.Node) {
	at := &Atom{
		Kind:    Block,
		Tag:     c.Data,
		Content: Canonical(c),
		Node:    a.ref(c),
	}
	at.rehash()
	a.add(at)
	a.para++
}

// flushTrailingMarkers places body-level bookmarks that follow the last
// paragraph just before that paragraph's mark.
func (a *atomizer) flushTrailingMarkers() {
	if len(a.pending) == 0 {
		return
	}
	last := -1
	for i := len(a.out) - 1; i >= 0; i-- {
		if a.out[i].Kind == Mark {
			last = i
			break
		}
	}
	if last < 0 {
		return
	}
	mark := a.out[last]
	for _, m := range a.pending {
		m.Paragraph = mark.Paragraph
		m.ParaIndex = mark.ParaIndex
	}
	tail := append(append([]*Atom{}, a.pending...), a.out[last:]...)
	a.out = append(a.out[:last], tail...)
	a.pending = nil
}

// SplitWords splits s into alternating word and whitespace spans, returned
// as byte offsets.
func SplitWords(s string) [][2]int {
	var spans [][2]int
	start := 0
	inSpace := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if i == 0 {
			inSpace = space
			continue
		}
		if space != inSpace {
			spans = append(spans, [2]int{start, i})
			start = i
			inSpace = space
		}
	}
	if start < len(s) {
		spans = append(spans, [2]int{start, len(s)})
	}
	return spans
}

// PremergeRuns joins adjacent runs that hold only text and share identical
// run properties, so editing-session run splits do not fragment atoms.
func PremergeRuns(body *xml.Node) {
	xml.Walk(body, func(n *xml.Node) bool {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !textOnlyRun(c) {
				continue
			}
			for next := c.NextSibling; next != nil && textOnlyRun(next) &&
				Canonical(wml.Child(c, "rPr")) == Canonical(wml.Child(next, "rPr")); next = c.NextSibling {
				mergeRuns(c, next)
			}
		}
		return true
	})
}

func textOnlyRun(r *xml.Node) bool {
	if !wml.Is(r, "r") {
		return false
	}
	texts := 0
	for c := r.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type != xmlquery.ElementNode:
		case wml.Is(c, "rPr"):
		case wml.Is(c, "t"):
			texts++
		default:
			return false
		}
	}
	return texts > 0
}

func mergeRuns(into, from *xml.Node) {
	var last *xml.Node
	for c := into.FirstChild; c != nil; c = c.NextSibling {
		if wml.Is(c, "t") {
			last = c
		}
	}
	var sb strings.Builder
	sb.WriteString(xml.TextContent(last))
	for c := from.FirstChild; c != nil; c = c.NextSibling {
		if wml.Is(c, "t") {
			sb.WriteString(xml.TextContent(c))
		}
	}
	xml.RemoveChildren(last)
	xml.AppendChild(last, xml.NewText(sb.String()))
	xml.SetAttr(last, "xml", "space", "preserve")
	xml.Remove(from)
}

// TextOf concatenates the visible text of atoms.
func TextOf(atoms []*Atom) string {
	var sb strings.Builder
	for _, a := range atoms {
		sb.WriteString(a.Visible())
	}
	return sb.String()
}
