// Package inplace writes a comparison into the revised document itself.
// Revised runs are split at change boundaries and wrapped; content that
// exists only in the original is cloned, converted to deleted text and
// spliced in next to its neighbours. The result keeps most of the revised
// serialization but is not guaranteed to round-trip, so callers verify it
// before use.
package inplace

import (
	"strconv"

	"github.com/FocuswithJustin/redline/core/atom"
	"github.com/FocuswithJustin/redline/core/compare"
	"github.com/FocuswithJustin/redline/core/rebuild"
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
	"github.com/antchfx/xmlquery"
)

// segment is a stretch of revised atoms that stays together in one piece:
// same run, same state, nothing removed in between.
type segment struct {
	state atom.State
	move  string
	run   *xml.Node
	atoms []*atom.Atom
	nodes []*xml.Node
	outer *xml.Node
}

type moveKey struct {
	name    string
	removed bool
}

type modifier struct {
	rev  *wml.Revisions
	body *xml.Node

	segOf map[*atom.Atom]*segment
	segs  []*segment

	moveOrder []moveKey
	moves     map[moveKey][]*xml.Node

	bookmarkIDs map[string]string
	startNames  map[string]bool
	endNames    map[string]bool
}

// Apply writes the tracked changes described by merged into revised, which
// must be the tree the revised atoms were taken from. original is only read.
func Apply(merged []*atom.Atom, original, revised *xml.Document, rev *wml.Revisions) error {
	if _, err := wml.Body(original, "original"); err != nil {
		return err
	}
	body, err := wml.Body(revised, "revised")
	if err != nil {
		return err
	}
	m := &modifier{
		rev:         rev,
		body:        body,
		segOf:       make(map[*atom.Atom]*segment),
		moves:       make(map[moveKey][]*xml.Node),
		bookmarkIDs: make(map[string]string),
	}
	m.inventoryBookmarks()

	m.segment(merged)
	m.split()
	m.wrap()
	var prev *xml.Node
	for _, unit := range compare.Units(merged) {
		prev = m.unit(unit, prev)
	}
	m.moveRanges()
	MergeWrappers(body)
	return nil
}

// revisedCopy returns the atom of a that lives in the revised tree, or nil
// when a exists only in the original.
func revisedCopy(a *atom.Atom) *atom.Atom {
	if a.Tree() == atom.Revised {
		return a
	}
	if a.Peer != nil && a.Peer.Tree() == atom.Revised {
		return a.Peer
	}
	return nil
}

func (m *modifier) inventoryBookmarks() {
	m.startNames = make(map[string]bool)
	m.endNames = make(map[string]bool)
	names := make(map[string]string)
	for _, bs := range wml.Descendants(m.body, "bookmarkStart") {
		name := wml.Attr(bs, "name")
		names[wml.Attr(bs, "id")] = name
		m.startNames[name] = true
		m.bookmarkIDs[name] = wml.Attr(bs, "id")
	}
	for _, be := range wml.Descendants(m.body, "bookmarkEnd") {
		if name, ok := names[wml.Attr(be, "id")]; ok {
			m.endNames[name] = true
		}
	}
}

// segment groups the revised atoms of merged.
func (m *modifier) segment(merged []*atom.Atom) {
	var last *segment
	for _, a := range merged {
		if a.State.Removed() {
			last = nil
			continue
		}
		r := revisedCopy(a)
		if r == nil || r.EndsUnit() {
			last = nil
			continue
		}
		state := a.State
		if last != nil && r.Run != nil && r.Kind != atom.Field &&
			last.run == r.Run && last.state == state && last.move == a.MoveName {
			last.atoms = append(last.atoms, r)
			m.segOf[r] = last
			continue
		}
		seg := &segment{state: state, move: a.MoveName, atoms: []*atom.Atom{r}}
		if r.Kind != atom.Field {
			seg.run = r.Run
		}
		m.segs = append(m.segs, seg)
		m.segOf[r] = seg
		last = seg
		if seg.run == nil {
			last = nil
		}
	}
}

// split cuts revised runs so that every segment owns whole runs.
func (m *modifier) split() {
	byRun := make(map[*xml.Node][]*segment)
	var runs []*xml.Node
	for _, seg := range m.segs {
		switch {
		case seg.atoms[0].Kind == atom.Field:
			seg.nodes = seg.atoms[0].FieldRuns
		case seg.run == nil:
			seg.nodes = []*xml.Node{seg.atoms[0].Node.Node}
		default:
			if _, ok := byRun[seg.run]; !ok {
				runs = append(runs, seg.run)
			}
			byRun[seg.run] = append(byRun[seg.run], seg)
		}
	}
	for _, r := range runs {
		segs := byRun[r]
		if len(segs) == 1 {
			segs[0].nodes = []*xml.Node{r}
			continue
		}
		m.splitRun(r, segs)
	}
}

func (m *modifier) splitRun(r *xml.Node, segs []*segment) {
	textAtoms := make(map[*xml.Node][]*atom.Atom)
	nodeAtom := make(map[*xml.Node]*atom.Atom)
	for _, seg := range segs {
		for _, a := range seg.atoms {
			if a.Kind == atom.Text {
				textAtoms[a.Node.Node] = append(textAtoms[a.Node.Node], a)
			} else {
				nodeAtom[a.Node.Node] = a
			}
		}
	}

	cur := segs[0]
	pieceFor := func(seg *segment) *xml.Node {
		if len(seg.nodes) == 0 {
			piece := wml.Shell(r)
			xml.InsertBefore(r, piece)
			seg.nodes = []*xml.Node{piece}
		}
		return seg.nodes[0]
	}
	for c := r.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type != xmlquery.ElementNode:
		case wml.Is(c, "rPr"):
		case wml.Is(c, "t"):
			text := xml.TextContent(c)
			pos := 0
			for _, a := range textAtoms[c] {
				if a.TextStart > pos {
					appendText(pieceFor(cur), text[pos:a.TextStart])
				}
				cur = m.segOf[a]
				appendText(pieceFor(cur), text[a.TextStart:a.TextEnd])
				pos = a.TextEnd
			}
			if pos < len(text) {
				appendText(pieceFor(cur), text[pos:])
			}
		default:
			if a, ok := nodeAtom[c]; ok {
				cur = m.segOf[a]
			}
			xml.AppendChild(pieceFor(cur), c)
		}
		c = next
	}
	xml.Remove(r)
}

func appendText(r *xml.Node, s string) {
	if last := r.LastChild; last != nil && wml.Is(last, "t") {
		text := xml.TextContent(last)
		xml.RemoveChildren(last)
		xml.AppendChild(last, xml.NewText(text+s))
		return
	}
	xml.AppendChild(r, wml.NewText(s, false))
}

func addedKind(s atom.State) (wml.Kind, bool) {
	switch s {
	case atom.Inserted:
		return wml.Insert, true
	case atom.MovedDestination:
		return wml.MoveTo, true
	case atom.Unknown, atom.Equal, atom.Deleted, atom.MovedSource, atom.FormatChanged:
	}
	return 0, false
}

func removedKind(s atom.State) (wml.Kind, bool) {
	switch s {
	case atom.Deleted:
		return wml.Delete, true
	case atom.MovedSource:
		return wml.MoveFrom, true
	case atom.Unknown, atom.Equal, atom.Inserted, atom.MovedDestination, atom.FormatChanged:
	}
	return 0, false
}

// wrap marks every revised segment: added content is wrapped, format
// changes record the old run properties.
func (m *modifier) wrap() {
	for _, seg := range m.segs {
		if len(seg.nodes) == 0 {
			continue
		}
		seg.outer = seg.nodes[len(seg.nodes)-1]
		switch seg.state {
		case atom.Inserted, atom.MovedDestination:
			k, _ := addedKind(seg.state)
			w := m.rev.Wrapper(k)
			xml.InsertBefore(seg.nodes[0], w)
			for _, n := range seg.nodes {
				xml.AppendChild(w, n)
			}
			seg.outer = w
			if seg.move != "" {
				m.trackMove(seg.move, false, w)
			}
		case atom.FormatChanged:
			for _, n := range seg.nodes {
				if wml.Is(n, "r") {
					m.rev.AttachFormatChange(n, seg.atoms[0].OldRunProps)
				}
			}
		case atom.Unknown, atom.Equal, atom.Deleted, atom.MovedSource:
		}
	}
}

func (m *modifier) trackMove(name string, removed bool, w *xml.Node) {
	key := moveKey{name, removed}
	if _, ok := m.moves[key]; !ok {
		m.moveOrder = append(m.moveOrder, key)
	}
	m.moves[key] = append(m.moves[key], w)
}

// moveRanges brackets the wrappers of every move with its range markers.
func (m *modifier) moveRanges() {
	for _, key := range m.moveOrder {
		ws := m.moves[key]
		k := wml.MoveTo
		if key.removed {
			k = wml.MoveFrom
		}
		xml.InsertBefore(ws[0], m.rev.RangeStart(key.name, k))
		xml.InsertAfter(ws[len(ws)-1], m.rev.RangeEnd(key.name, k))
	}
}

// target finds the revised paragraph holding the unit's revised content.
func (m *modifier) target(atoms []*atom.Atom) *xml.Node {
	for _, a := range atoms {
		r := revisedCopy(a)
		if r == nil || r.Paragraph == nil {
			continue
		}
		if r.Kind == atom.Mark || xml.Contains(r.Paragraph, r.Node.Node) {
			return r.Paragraph
		}
	}
	return nil
}

// unit writes one unified paragraph and returns the body-level node that
// now ends it.
func (m *modifier) unit(unit []*atom.Atom, prev *xml.Node) *xml.Node {
	last := unit[len(unit)-1]
	if last.Kind == atom.Block {
		if len(unit) > 1 {
			prev = m.paragraph(unit[:len(unit)-1], nil, prev)
		}
		return m.block(last, prev)
	}
	if last.Kind == atom.Mark {
		return m.paragraph(unit[:len(unit)-1], last, prev)
	}
	return m.paragraph(unit, nil, prev)
}

func (m *modifier) insertAfterBlock(prev, n *xml.Node) {
	if prev != nil {
		xml.InsertAfter(prev, n)
		return
	}
	xml.PrependChild(m.body, n)
}

func (m *modifier) block(a *atom.Atom, prev *xml.Node) *xml.Node {
	if r := revisedCopy(a); r != nil {
		if k, ok := addedKind(a.State); ok {
			if k == wml.MoveTo {
				k = wml.Insert
			}
			rebuild.MarkBlock(r.Node.Node, k, m.rev)
		}
		return r.Node.Node
	}
	c := xml.Clone(a.Node.Node)
	rebuild.MarkBlock(c, wml.Delete, m.rev)
	m.insertAfterBlock(prev, c)
	return c
}

func (m *modifier) paragraph(atoms []*atom.Atom, mark *atom.Atom, prev *xml.Node) *xml.Node {
	all := atoms
	if mark != nil {
		all = append(atoms[:len(atoms):len(atoms)], mark)
	}
	p := m.target(all)
	markRemoved := mark != nil && revisedCopy(mark) == nil

	synthetic := false
	if p == nil {
		var src *xml.Node
		if mark != nil {
			src = mark.Paragraph
		} else if len(atoms) > 0 {
			src = atoms[0].Paragraph
		}
		if src == nil {
			p = wml.El("p")
		} else {
			p = wml.Shell(src)
			rebuild.StripParagraphIDs(p)
		}
		m.insertAfterBlock(prev, p)
		synthetic = true
	}

	f := &fragments{m: m, p: p}
	for _, a := range atoms {
		if a.State.Removed() {
			f.removed(a)
			continue
		}
		f.revised(a)
	}

	switch {
	case markRemoved && !synthetic:
		q := m.splitParagraph(p, mark.Paragraph, f.cursor)
		k, _ := removedKind(mark.State)
		wml.SetParagraphMark(q, m.rev.Wrapper(k))
		return q
	case markRemoved:
		k, _ := removedKind(mark.State)
		wml.SetParagraphMark(p, m.rev.Wrapper(k))
	case mark != nil:
		if k, ok := addedKind(mark.State); ok {
			wml.SetParagraphMark(p, m.rev.Wrapper(k))
		}
	}
	if p.Parent != m.body {
		return prev
	}
	return p
}

// splitParagraph moves the content of p up to and including cursor into a
// new paragraph shaped like src, placed before p.
func (m *modifier) splitParagraph(p, src, cursor *xml.Node) *xml.Node {
	q := wml.El("p")
	if src != nil {
		q = wml.Shell(src)
		rebuild.StripParagraphIDs(q)
	}
	xml.InsertBefore(p, q)
	if cursor == nil {
		return q
	}
	for cursor.Parent != p && cursor.Parent != nil {
		cursor = cursor.Parent
	}
	var moved []*xml.Node
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if wml.Is(c, "pPr") {
			continue
		}
		moved = append(moved, c)
		if c == cursor {
			break
		}
	}
	for _, c := range moved {
		xml.AppendChild(q, c)
	}
	return q
}

// fragments splices removed content into one paragraph, after a cursor
// that follows the revised content written so far.
type fragments struct {
	m      *modifier
	p      *xml.Node
	cursor *xml.Node

	wrapper *xml.Node
	kind    wml.Kind
	move    string
	run     *xml.Node
	runSrc  *xml.Node
}

func (f *fragments) place(n *xml.Node) {
	switch {
	case f.cursor != nil:
		xml.InsertAfter(f.cursor, n)
	case wml.Child(f.p, "pPr") != nil:
		xml.InsertAfter(wml.Child(f.p, "pPr"), n)
	default:
		xml.PrependChild(f.p, n)
	}
	f.cursor = n
}

func (f *fragments) revised(a *atom.Atom) {
	f.wrapper, f.run, f.runSrc = nil, nil, nil
	r := revisedCopy(a)
	if r == nil {
		return
	}
	seg := f.m.segOf[r]
	if seg == nil || seg.outer == nil || !xml.Contains(f.p, seg.outer) {
		return
	}
	f.cursor = seg.outer
}

func (f *fragments) removed(a *atom.Atom) {
	if a.IsMarker() {
		f.wrapper, f.run, f.runSrc = nil, nil, nil
		f.bookmark(a)
		return
	}
	k, _ := removedKind(a.State)
	if f.wrapper == nil || f.kind != k || f.move != a.MoveName {
		f.wrapper = f.m.rev.Wrapper(k)
		f.kind, f.move = k, a.MoveName
		f.run, f.runSrc = nil, nil
		f.place(f.wrapper)
		if a.MoveName != "" {
			f.m.trackMove(a.MoveName, true, f.wrapper)
		}
	}

	switch a.Kind {
	case atom.Text:
		r := f.runFor(a)
		if last := r.LastChild; last != nil && wml.Is(last, "delText") {
			text := xml.TextContent(last)
			xml.RemoveChildren(last)
			xml.AppendChild(last, xml.NewText(text+a.Content))
		} else {
			xml.AppendChild(r, wml.NewText(a.Content, true))
		}
	case atom.Leaf:
		c := xml.Clone(a.Node.Node)
		rebuild.ConvertDeleted(c)
		if a.Run == nil {
			f.run, f.runSrc = nil, nil
			xml.AppendChild(f.wrapper, c)
		} else {
			xml.AppendChild(f.runFor(a), c)
		}
	case atom.Field:
		f.run, f.runSrc = nil, nil
		for _, fr := range a.FieldRuns {
			c := xml.Clone(fr)
			rebuild.ConvertDeleted(c)
			xml.AppendChild(f.wrapper, c)
		}
	case atom.BookmarkStart, atom.BookmarkEnd, atom.Mark, atom.Block:
	}
}

func (f *fragments) runFor(a *atom.Atom) *xml.Node {
	if f.run != nil && f.runSrc == a.Run {
		return f.run
	}
	var rPr *xml.Node
	if src := a.RunProperties(); src != nil {
		rPr = xml.Clone(src)
		if ch := wml.Child(rPr, "rPrChange"); ch != nil {
			xml.Remove(ch)
		}
	}
	f.run, f.runSrc = wml.NewRun(rPr), a.Run
	xml.AppendChild(f.wrapper, f.run)
	return f.run
}

// bookmark relocates a boundary that only the original has, unless the
// revised tree already carries a boundary of that name.
func (f *fragments) bookmark(a *atom.Atom) {
	seen := f.m.startNames
	if a.Kind == atom.BookmarkEnd {
		seen = f.m.endNames
	}
	if seen[a.Content] {
		return
	}
	seen[a.Content] = true
	c := xml.Clone(a.Node.Node)
	wml.SetAttr(c, "id", f.m.bookmarkID(a.Content))
	f.place(c)
}

func (m *modifier) bookmarkID(name string) string {
	id, ok := m.bookmarkIDs[name]
	if !ok {
		id = strconv.Itoa(m.rev.NextID())
		m.bookmarkIDs[name] = id
	}
	return id
}

// MergeWrappers joins adjacent sibling wrappers of the same kind, author
// and date below root.
func MergeWrappers(root *xml.Node) {
	xml.Walk(root, func(n *xml.Node) bool {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if next == nil {
				break
			}
			if sameWrapper(c, next) {
				for g := next.FirstChild; g != nil; {
					gn := g.NextSibling
					xml.AppendChild(c, g)
					g = gn
				}
				xml.Remove(next)
				continue
			}
			c = next
		}
		return true
	})
}

func sameWrapper(a, b *xml.Node) bool {
	ka, ok := wml.KindOf(a)
	if !ok {
		return false
	}
	kb, ok := wml.KindOf(b)
	if !ok || ka != kb {
		return false
	}
	return wml.Attr(a, "author") == wml.Attr(b, "author") && wml.Attr(a, "date") == wml.Attr(b, "date")
}
