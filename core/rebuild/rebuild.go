// Package rebuild writes a comparison as a new document body: every
// paragraph is reconstructed from the merged atom sequence with tracked
// change wrappers around what differs. The input trees are never modified.
package rebuild

import (
	"strconv"

	"github.com/FocuswithJustin/redline/core/atom"
	"github.com/FocuswithJustin/redline/core/compare"
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
	"github.com/antchfx/xmlquery"
)

type moveKey struct {
	name    string
	removed bool
}

type builder struct {
	rev *wml.Revisions

	// bookmark IDs are drawn from the revision counter and shared by name
	bookmarks map[string]int
	oldNames  map[atom.Tree]map[string]string

	remaining map[moveKey]int
	opened    map[moveKey]bool
	ended     map[moveKey]bool
}

// Build returns a copy of revised whose body is rebuilt from merged, the
// unified atom sequence of a comparison. The final section properties of
// the revised body are kept.
func Build(merged []*atom.Atom, original, revised *xml.Document, rev *wml.Revisions) (*xml.Document, error) {
	origBody, err := wml.Body(original, "original")
	if err != nil {
		return nil, err
	}
	out := revised.Clone()
	body, err := wml.Body(out, "revised")
	if err != nil {
		return nil, err
	}

	var sectPr *xml.Node
	if els := xml.Elements(body); len(els) > 0 && wml.Is(els[len(els)-1], "sectPr") {
		sectPr = els[len(els)-1]
	}
	revBody, _ := wml.Body(revised, "revised")

	b := &builder{
		rev:       rev,
		bookmarks: make(map[string]int),
		oldNames: map[atom.Tree]map[string]string{
			atom.Original: bookmarkNames(origBody),
			atom.Revised:  bookmarkNames(revBody),
		},
		remaining: make(map[moveKey]int),
		opened:    make(map[moveKey]bool),
		ended:     make(map[moveKey]bool),
	}
	for _, a := range merged {
		if a.MoveName != "" && a.Kind != atom.Mark {
			b.remaining[moveKey{a.MoveName, a.State.Removed()}]++
		}
	}

	xml.RemoveChildren(body)
	for _, unit := range compare.Units(merged) {
		b.unit(body, unit)
	}
	if sectPr != nil {
		xml.AppendChild(body, sectPr)
	}
	return out, nil
}

func bookmarkNames(body *xml.Node) map[string]string {
	names := make(map[string]string)
	for _, bs := range wml.Descendants(body, "bookmarkStart") {
		names[wml.Attr(bs, "id")] = wml.Attr(bs, "name")
	}
	return names
}

func (b *builder) bookmarkID(name string) string {
	id, ok := b.bookmarks[name]
	if !ok {
		id = b.rev.NextID()
		b.bookmarks[name] = id
	}
	return strconv.Itoa(id)
}

// wrapperKind maps a correlation state to its tracked-change wrapper.
func wrapperKind(s atom.State) (wml.Kind, bool) {
	switch s {
	case atom.Inserted:
		return wml.Insert, true
	case atom.Deleted:
		return wml.Delete, true
	case atom.MovedSource:
		return wml.MoveFrom, true
	case atom.MovedDestination:
		return wml.MoveTo, true
	case atom.Unknown, atom.Equal, atom.FormatChanged:
	}
	return 0, false
}

// blockKind is the row-level kind for a block; tables have no move markup.
func blockKind(s atom.State) (wml.Kind, bool) {
	switch s {
	case atom.Inserted, atom.MovedDestination:
		return wml.Insert, true
	case atom.Deleted, atom.MovedSource:
		return wml.Delete, true
	case atom.Unknown, atom.Equal, atom.FormatChanged:
	}
	return 0, false
}

func (b *builder) unit(body *xml.Node, unit []*atom.Atom) {
	last := unit[len(unit)-1]
	switch last.Kind {
	case atom.Block:
		if len(unit) > 1 {
			b.paragraph(body, unit[:len(unit)-1], nil)
		}
		b.block(body, last)
	case atom.Mark:
		b.paragraph(body, unit[:len(unit)-1], last)
	case atom.Text, atom.Leaf, atom.Field, atom.BookmarkStart, atom.BookmarkEnd:
		b.paragraph(body, unit, nil)
	}
}

func (b *builder) block(body *xml.Node, a *atom.Atom) {
	c := xml.Clone(a.Node.Node)
	b.renumberBookmarks(c, a.Tree())
	if k, ok := blockKind(a.State); ok {
		MarkBlock(c, k, b.rev)
	}
	xml.AppendChild(body, c)
}

func (b *builder) renumberBookmarks(n *xml.Node, tree atom.Tree) {
	xml.Walk(n, func(c *xml.Node) bool {
		switch {
		case wml.Is(c, "bookmarkStart"):
			wml.SetAttr(c, "id", b.bookmarkID(wml.Attr(c, "name")))
		case wml.Is(c, "bookmarkEnd"):
			name, ok := b.oldNames[tree][wml.Attr(c, "id")]
			if !ok {
				name = "#" + wml.Attr(c, "id")
			}
			wml.SetAttr(c, "id", b.bookmarkID(name))
		}
		return true
	})
}

// MarkBlock records a whole block as inserted or deleted: table rows get
// row-level markers, runs are wrapped, deleted text becomes w:delText, and
// paragraphs outside tables get paragraph-mark markers.
func MarkBlock(n *xml.Node, k wml.Kind, rev *wml.Revisions) {
	if wml.Is(n, "tbl") {
		for _, tr := range xml.Elements(n) {
			if wml.Is(tr, "tr") {
				rev.MarkRow(tr, k)
			}
		}
	} else {
		for _, p := range wml.Descendants(n, "p") {
			if !insideTable(p, n) {
				wml.SetParagraphMark(p, rev.Wrapper(k))
			}
		}
	}
	WrapRuns(n, k, rev)
}

func insideTable(n, top *xml.Node) bool {
	for p := n.Parent; p != nil && p != top; p = p.Parent {
		if wml.Is(p, "tbl") {
			return true
		}
	}
	return false
}

// WrapRuns wraps every maximal sequence of sibling runs below n in one
// wrapper of kind k. Removed kinds turn text into deleted text.
func WrapRuns(n *xml.Node, k wml.Kind, rev *wml.Revisions) {
	var parents []*xml.Node
	seen := make(map[*xml.Node]bool)
	for _, r := range wml.Descendants(n, "r") {
		if !seen[r.Parent] {
			seen[r.Parent] = true
			parents = append(parents, r.Parent)
		}
	}
	for _, parent := range parents {
		if _, tracked := wml.KindOf(parent); tracked {
			continue
		}
		var wrapper *xml.Node
		for c := parent.FirstChild; c != nil; {
			next := c.NextSibling
			switch {
			case wml.Is(c, "r"):
				if k.Removed() {
					ConvertDeleted(c)
				}
				if wrapper == nil {
					wrapper = rev.Wrapper(k)
					xml.InsertBefore(c, wrapper)
				}
				xml.AppendChild(wrapper, c)
			case c.Type == xmlquery.ElementNode:
				wrapper = nil
			}
			c = next
		}
	}
}

// ConvertDeleted turns w:t and w:instrText below n into their deleted
// forms.
func ConvertDeleted(n *xml.Node) {
	xml.Walk(n, func(c *xml.Node) bool {
		switch {
		case wml.Is(c, "t"):
			c.Data = "delText"
		case wml.Is(c, "instrText"):
			c.Data = "delInstrText"
		}
		return true
	})
}

// StripParagraphIDs drops the w14 paragraph and text ids from p, which must
// stay unique when a paragraph is cloned.
func StripParagraphIDs(p *xml.Node) {
	out := p.Attr[:0]
	for _, a := range p.Attr {
		if a.Name.Local == "paraId" || a.Name.Local == "textId" {
			continue
		}
		out = append(out, a)
	}
	p.Attr = out
}

type item struct {
	a     *atom.Atom
	state atom.State
}

func changed(a *atom.Atom) bool {
	return a.State.Removed() || a.State.Added()
}

// arrange orders a paragraph's atoms for output. Inside each change block
// deletions precede insertions, and equal whitespace between changes is
// written on both sides. A whole-paragraph change takes the mark's state
// for its whitespace too.
func arrange(atoms []*atom.Atom, mark *atom.Atom) []item {
	var items []item
	if whole(atoms, mark) {
		for _, a := range atoms {
			s := a.State
			if a.IsWhitespace() {
				s = mark.State
			}
			items = append(items, item{a, s})
		}
		return items
	}

	for i := 0; i < len(atoms); {
		a := atoms[i]
		if !changed(a) {
			items = append(items, item{a, a.State})
			i++
			continue
		}
		end := i
		for j := i; j < len(atoms); j++ {
			if changed(atoms[j]) {
				end = j
				continue
			}
			if atoms[j].State != atom.Equal || !atoms[j].IsWhitespace() {
				break
			}
		}
		block := atoms[i : end+1]
		var dels, ins []item
		hasDel, hasIns := false, false
		for _, c := range block {
			hasDel = hasDel || c.State.Removed()
			hasIns = hasIns || c.State.Added()
		}
		for _, c := range block {
			switch {
			case c.State.Removed():
				dels = append(dels, item{c, c.State})
			case c.State.Added():
				ins = append(ins, item{c, c.State})
			case hasDel && hasIns:
				dels = append(dels, item{c, atom.Deleted})
				ins = append(ins, item{c, atom.Inserted})
			default:
				dels = append(dels, item{c, c.State})
			}
		}
		items = append(items, dels...)
		items = append(items, ins...)
		i = end + 1
	}
	return items
}

// whole reports whether every contentful atom shares the changed state of
// the paragraph mark.
func whole(atoms []*atom.Atom, mark *atom.Atom) bool {
	if mark == nil || !changed(mark) {
		return false
	}
	for _, a := range atoms {
		if a.IsWhitespace() {
			continue
		}
		if a.IsMarker() && !changed(a) {
			continue
		}
		if a.State != mark.State {
			return false
		}
	}
	return true
}

func (b *builder) paragraph(body *xml.Node, atoms []*atom.Atom, mark *atom.Atom) {
	var src *xml.Node
	switch {
	case mark != nil:
		src = mark.Paragraph
	case len(atoms) > 0:
		src = atoms[0].Paragraph
	}
	var p *xml.Node
	if src != nil {
		p = wml.Shell(src)
		StripParagraphIDs(p)
		wml.ClearParagraphMark(p)
	} else {
		p = wml.El("p")
	}
	xml.AppendChild(body, p)

	e := &emitter{b: b, p: p}
	for _, it := range arrange(atoms, mark) {
		e.emit(it)
	}
	e.closeChain(0)

	if mark != nil {
		if k, ok := wrapperKind(mark.State); ok {
			wml.SetParagraphMark(p, b.rev.Wrapper(k))
		}
	}
}

// emitter writes items into one paragraph, reusing the open wrapper
// shells, tracked-change wrapper and run while consecutive items agree.
type emitter struct {
	b *builder
	p *xml.Node

	chain  []*xml.Node
	shells []*xml.Node

	wrapper *xml.Node
	wKind   wml.Kind
	wMove   string

	run      *xml.Node
	runSrc   *xml.Node
	runState atom.State
}

func (e *emitter) top() *xml.Node {
	if len(e.shells) > 0 {
		return e.shells[len(e.shells)-1]
	}
	return e.p
}

func (e *emitter) container() *xml.Node {
	if e.wrapper != nil {
		return e.wrapper
	}
	return e.top()
}

func (e *emitter) closeRun() {
	e.run, e.runSrc = nil, nil
}

func (e *emitter) closeWrapper() {
	e.closeRun()
	if e.wrapper == nil {
		return
	}
	if e.wMove != "" {
		key := moveKey{e.wMove, e.wKind.Removed()}
		if e.b.remaining[key] == 0 && !e.b.ended[key] {
			xml.InsertAfter(e.wrapper, e.b.rev.RangeEnd(e.wMove, e.wKind))
			e.b.ended[key] = true
		}
	}
	e.wrapper = nil
}

func (e *emitter) closeChain(depth int) {
	e.closeWrapper()
	e.chain = e.chain[:depth]
	e.shells = e.shells[:depth]
}

func (e *emitter) openChain(ancestors []*xml.Node) {
	common := 0
	for common < len(e.chain) && common < len(ancestors) && e.chain[common] == ancestors[common] {
		common++
	}
	if common == len(e.chain) && common == len(ancestors) {
		return
	}
	e.closeChain(common)
	for _, anc := range ancestors[common:] {
		shell := wml.Shell(anc)
		xml.AppendChild(e.top(), shell)
		e.chain = append(e.chain, anc)
		e.shells = append(e.shells, shell)
	}
}

func (e *emitter) setWrapper(s atom.State, move string) {
	k, tracked := wrapperKind(s)
	if !tracked {
		move = ""
	}
	if e.wrapper != nil && tracked && e.wKind == k && e.wMove == move {
		return
	}
	e.closeWrapper()
	if !tracked {
		return
	}
	parent := e.top()
	if move != "" {
		key := moveKey{move, k.Removed()}
		if !e.b.opened[key] {
			xml.AppendChild(parent, e.b.rev.RangeStart(move, k))
			e.b.opened[key] = true
		}
	}
	e.wrapper = e.b.rev.Wrapper(k)
	xml.AppendChild(parent, e.wrapper)
	e.wKind, e.wMove = k, move
}

func (e *emitter) runFor(a *atom.Atom, s atom.State) *xml.Node {
	if e.run != nil && e.runSrc == a.Run && e.runState == s {
		return e.run
	}
	var rPr *xml.Node
	if src := a.RunProperties(); src != nil {
		rPr = xml.Clone(src)
		if ch := wml.Child(rPr, "rPrChange"); ch != nil {
			xml.Remove(ch)
		}
	}
	r := wml.NewRun(rPr)
	if s == atom.FormatChanged {
		e.b.rev.AttachFormatChange(r, a.OldRunProps)
	}
	xml.AppendChild(e.container(), r)
	e.run, e.runSrc, e.runState = r, a.Run, s
	return r
}

func (e *emitter) emit(it item) {
	a := it.a
	e.openChain(a.Ancestors)
	e.setWrapper(it.state, a.MoveName)
	removed := it.state.Removed()

	switch a.Kind {
	case atom.Text:
		appendText(e.runFor(a, it.state), a.Content, removed)
	case atom.Leaf:
		c := xml.Clone(a.Node.Node)
		if removed {
			ConvertDeleted(c)
		}
		if a.Run == nil {
			e.closeRun()
			xml.AppendChild(e.container(), c)
		} else {
			xml.AppendChild(e.runFor(a, it.state), c)
		}
	case atom.Field:
		e.closeRun()
		for _, fr := range a.FieldRuns {
			c := xml.Clone(fr)
			if removed {
				ConvertDeleted(c)
			}
			xml.AppendChild(e.container(), c)
		}
	case atom.BookmarkStart, atom.BookmarkEnd:
		e.closeRun()
		c := xml.Clone(a.Node.Node)
		wml.SetAttr(c, "id", e.b.bookmarkID(a.Content))
		xml.AppendChild(e.container(), c)
	case atom.Mark, atom.Block:
	}

	if a.MoveName != "" && it.state == a.State {
		e.b.remaining[moveKey{a.MoveName, a.State.Removed()}]--
	}
}

// appendText adds s to the run, extending its last text element when the
// kind matches.
func appendText(r *xml.Node, s string, removed bool) {
	name := "t"
	if removed {
		name = "delText"
	}
	if last := r.LastChild; last != nil && wml.Is(last, name) {
		text := xml.TextContent(last)
		xml.RemoveChildren(last)
		xml.AppendChild(last, xml.NewText(text+s))
		return
	}
	xml.AppendChild(r, wml.NewText(s, removed))
}
