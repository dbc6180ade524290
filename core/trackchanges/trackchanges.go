// Package trackchanges resolves tracked changes: Accept produces the
// document with every revision applied, Reject the document with every
// revision undone. Both are total and idempotent; a document without
// revision markup passes through unchanged.
package trackchanges

import (
	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
	"github.com/antchfx/xmlquery"
)

type direction int

const (
	accept direction = iota
	reject
)

// removes reports whether content of kind k disappears in this direction.
func (d direction) removes(k wml.Kind) bool {
	if d == accept {
		return k.Removed()
	}
	return !k.Removed()
}

// Accept returns a copy of doc with all tracked changes accepted.
func Accept(doc *xml.Document) *xml.Document {
	out := doc.Clone()
	AcceptNode(out.Node())
	return out
}

// Reject returns a copy of doc with all tracked changes rejected.
func Reject(doc *xml.Document) *xml.Document {
	out := doc.Clone()
	RejectNode(out.Node())
	return out
}

// AcceptNode accepts all tracked changes below root, in place.
func AcceptNode(root *xml.Node) { resolve(root, accept) }

// RejectNode rejects all tracked changes below root, in place.
func RejectNode(root *xml.Node) { resolve(root, reject) }

var propertyChanges = []string{
	"rPrChange", "pPrChange", "sectPrChange", "tblPrChange", "trPrChange", "tcPrChange", "tblGridChange",
}

var moveRanges = []string{
	"moveFromRangeStart", "moveFromRangeEnd", "moveToRangeStart", "moveToRangeEnd",
}

func resolve(root *xml.Node, d direction) {
	joins := paragraphMarks(root, d)
	emptied := emptiedParagraphs(root, d, joins)
	rows := tableRows(root, d)

	var wrappers, changes, ranges []*xml.Node
	xml.Walk(root, func(n *xml.Node) bool {
		switch {
		case n.Type != xmlquery.ElementNode:
		case wml.IsAny(n, "ins", "del", "moveFrom", "moveTo"):
			wrappers = append(wrappers, n)
		case wml.IsAny(n, propertyChanges...):
			changes = append(changes, n)
			return false
		case wml.IsAny(n, moveRanges...):
			ranges = append(ranges, n)
		}
		return true
	})

	var shells []*xml.Node
	for _, w := range wrappers {
		if !xml.Contains(root, w) {
			continue
		}
		if wml.IsInlineWrapper(w.Parent) {
			shells = append(shells, w.Parent)
		}
		k, _ := wml.KindOf(w)
		if d.removes(k) {
			xml.Remove(w)
			continue
		}
		if d == reject {
			restoreDeletedText(w)
		}
		xml.Unwrap(w)
	}
	for _, r := range ranges {
		xml.Remove(r)
	}
	for _, sh := range shells {
		pruneShell(root, sh)
	}
	for _, c := range changes {
		if !xml.Contains(root, c) {
			continue
		}
		if d == accept {
			xml.Remove(c)
		} else {
			restoreProperties(c)
		}
	}
	for _, tr := range rows {
		xml.Remove(tr)
	}
	for _, p := range joins {
		if xml.Contains(root, p) {
			joinParagraph(p)
		}
	}
	for _, p := range emptied {
		if xml.Contains(root, p) && !wml.HasContent(p) {
			joinParagraph(p)
		}
	}
	cleanup(root)
}

// paragraphMarks clears every paragraph-mark revision and returns the
// paragraphs whose mark disappears in direction d, in document order.
func paragraphMarks(root *xml.Node, d direction) []*xml.Node {
	var joins []*xml.Node
	for _, p := range wml.Descendants(root, "p") {
		k, ok := wml.ParagraphMark(p)
		if !ok {
			continue
		}
		if d.removes(k) {
			joins = append(joins, p)
		}
		wml.ClearParagraphMark(p)
	}
	return joins
}

// emptiedParagraphs returns the paragraphs, other than those in joins, whose
// only content is revision content that disappears in direction d.
func emptiedParagraphs(root *xml.Node, d direction, joins []*xml.Node) []*xml.Node {
	joined := make(map[*xml.Node]bool, len(joins))
	for _, p := range joins {
		joined[p] = true
	}
	var out []*xml.Node
	for _, p := range wml.Descendants(root, "p") {
		if joined[p] {
			continue
		}
		if removed, kept := revisionContent(p, d); removed && !kept {
			out = append(out, p)
		}
	}
	return out
}

// revisionContent reports whether n holds content that disappears in
// direction d and whether it holds content that stays.
func revisionContent(n *xml.Node, d direction) (removed, kept bool) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type != xmlquery.ElementNode:
		case wml.IsProperties(c), wml.IsRangeMarker(c):
		case wml.IsAny(c, "ins", "del", "moveFrom", "moveTo"):
			k, _ := wml.KindOf(c)
			if d.removes(k) {
				removed = true
			} else {
				kept = true
			}
		case wml.IsInlineWrapper(c):
			r, k := revisionContent(c, d)
			removed, kept = removed || r, kept || k
		default:
			kept = true
		}
	}
	return removed, kept
}

// pruneShell removes n, and then each inline wrapper above it, while it no
// longer holds content. Range markers inside move to the wrapper's place.
func pruneShell(root, n *xml.Node) {
	for wml.IsInlineWrapper(n) && xml.Contains(root, n) && !wml.HasContent(n) {
		var markers []*xml.Node
		xml.Walk(n, func(c *xml.Node) bool {
			if c != n && wml.IsRangeMarker(c) {
				markers = append(markers, c)
				return false
			}
			return true
		})
		for _, m := range markers {
			xml.InsertBefore(n, m)
		}
		parent := n.Parent
		xml.Remove(n)
		n = parent
	}
}

// tableRows clears row-level revision markers and returns the rows that
// disappear in direction d.
func tableRows(root *xml.Node, d direction) []*xml.Node {
	var gone []*xml.Node
	for _, tr := range wml.Descendants(root, "tr") {
		trPr := wml.Child(tr, "trPr")
		if trPr == nil {
			continue
		}
		drop := false
		for c := trPr.FirstChild; c != nil; {
			next := c.NextSibling
			if k, ok := wml.KindOf(c); ok {
				drop = drop || d.removes(k)
				xml.Remove(c)
			}
			c = next
		}
		if trPr.FirstChild == nil && len(trPr.Attr) == 0 {
			xml.Remove(trPr)
		}
		if drop {
			gone = append(gone, tr)
		}
	}
	return gone
}

// restoreDeletedText turns deleted text back into visible text.
func restoreDeletedText(n *xml.Node) {
	xml.Walk(n, func(c *xml.Node) bool {
		switch {
		case wml.Is(c, "delText"):
			c.Data = "t"
		case wml.Is(c, "delInstrText"):
			c.Data = "instrText"
		}
		return true
	})
}

// restoreProperties replaces the properties holding change with the
// previous properties recorded inside it. A paragraph keeps its mark
// run properties and section properties.
func restoreProperties(change *xml.Node) {
	parent := change.Parent
	var previous *xml.Node
	for _, c := range xml.Elements(change) {
		previous = c
		break
	}
	xml.Remove(change)

	var anchor *xml.Node
	for _, c := range xml.Elements(parent) {
		if wml.Is(parent, "pPr") && wml.IsAny(c, "rPr", "sectPr") {
			if anchor == nil {
				anchor = c
			}
			continue
		}
		xml.Remove(c)
	}
	if previous == nil {
		return
	}
	for _, c := range xml.Elements(previous) {
		clone := xml.Clone(c)
		if anchor != nil {
			xml.InsertBefore(anchor, clone)
		} else {
			xml.AppendChild(parent, clone)
		}
	}
}

func siblingParagraph(p *xml.Node, forward bool) *xml.Node {
	step := func(n *xml.Node) *xml.Node {
		if forward {
			return n.NextSibling
		}
		return n.PrevSibling
	}
	for n := step(p); n != nil; n = step(n) {
		switch {
		case n.Type != xmlquery.ElementNode:
		case wml.IsRangeMarker(n):
		case wml.Is(n, "p"):
			return n
		default:
			return nil
		}
	}
	return nil
}

// joinParagraph removes p's paragraph mark: its content moves to the start
// of the next paragraph. Without a next paragraph an empty p is removed and
// its range markers move to the previous paragraph; a non-empty p stays.
func joinParagraph(p *xml.Node) {
	var content []*xml.Node
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if !wml.Is(c, "pPr") {
			content = append(content, c)
		}
	}

	if next := siblingParagraph(p, true); next != nil {
		anchor := wml.Child(next, "pPr")
		for _, c := range content {
			if anchor != nil {
				xml.InsertAfter(anchor, c)
			} else if next.FirstChild != nil {
				xml.InsertBefore(next.FirstChild, c)
			} else {
				xml.AppendChild(next, c)
			}
			anchor = c
		}
		xml.Remove(p)
		return
	}

	if wml.HasContent(p) || soleCellParagraph(p) {
		return
	}
	var markers []*xml.Node
	for _, c := range content {
		if c.Type == xmlquery.ElementNode {
			markers = append(markers, c)
		}
	}
	if len(markers) > 0 {
		prev := siblingParagraph(p, false)
		if prev == nil {
			return
		}
		for _, m := range markers {
			xml.AppendChild(prev, m)
		}
	}
	xml.Remove(p)
}

func soleCellParagraph(p *xml.Node) bool {
	if !wml.Is(p.Parent, "tc") {
		return false
	}
	return len(wml.Descendants(p.Parent, "p")) == 1
}

// cleanup removes tables left without rows and content controls left
// without content.
func cleanup(root *xml.Node) {
	for _, tbl := range wml.Descendants(root, "tbl") {
		if xml.Contains(root, tbl) && wml.Child(tbl, "tr") == nil {
			xml.Remove(tbl)
		}
	}
	for _, sdt := range wml.Descendants(root, "sdt") {
		content := wml.Child(sdt, "sdtContent")
		if content != nil && len(xml.Elements(content)) == 0 && xml.Contains(root, sdt) {
			xml.Remove(sdt)
		}
	}
}
