package wml

import (
	"sort"
	"strings"

	"github.com/FocuswithJustin/redline/core/xml"
)

// NormalizeSpace collapses whitespace runs to one space and trims the ends.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParagraphTexts returns the visible text of every w:p below root, in
// document order, with whitespace normalized. Tabs and breaks read as a
// space. Text of nested paragraphs (text boxes) is reported on its own.
func ParagraphTexts(root *xml.Node) []string {
	var out []string
	for _, p := range Descendants(root, "p") {
		out = append(out, NormalizeSpace(ParagraphText(p)))
	}
	return out
}

// ParagraphText returns the raw visible text of p, excluding nested
// paragraphs, deleted text and field instructions.
func ParagraphText(p *xml.Node) string {
	var sb strings.Builder
	xml.Walk(p, func(n *xml.Node) bool {
		if n != p && Is(n, "p") {
			return false
		}
		switch {
		case Is(n, "t"):
			sb.WriteString(xml.TextContent(n))
			return false
		case IsAny(n, "tab", "br", "cr"):
			sb.WriteString(" ")
		case IsAny(n, "delText", "instrText", "delInstrText", "pPr", "rPr"):
			return false
		}
		return true
	})
	return sb.String()
}

// BookmarkSet is an inventory of the bookmarks below a node.
type BookmarkSet struct {
	// Names lists every distinct bookmark name, sorted.
	Names []string
	// Duplicates lists names that start more than once.
	Duplicates []string
	// Unmatched lists starts without an end ("start:<name>") and ends
	// without a start ("end:<id>").
	Unmatched []string
}

// Bookmarks takes the bookmark inventory of root.
func Bookmarks(root *xml.Node) BookmarkSet {
	starts := make(map[string]string)
	counts := make(map[string]int)
	ended := make(map[string]bool)
	var ends []string

	xml.Walk(root, func(n *xml.Node) bool {
		switch {
		case Is(n, "bookmarkStart"):
			name := Attr(n, "name")
			counts[name]++
			starts[Attr(n, "id")] = name
		case Is(n, "bookmarkEnd"):
			ends = append(ends, Attr(n, "id"))
		}
		return true
	})

	var set BookmarkSet
	for name, c := range counts {
		set.Names = append(set.Names, name)
		if c > 1 {
			set.Duplicates = append(set.Duplicates, name)
		}
	}
	for _, id := range ends {
		if _, ok := starts[id]; !ok {
			set.Unmatched = append(set.Unmatched, "end:"+id)
			continue
		}
		ended[id] = true
	}
	for id, name := range starts {
		if !ended[id] {
			set.Unmatched = append(set.Unmatched, "start:"+name)
		}
	}
	sort.Strings(set.Names)
	sort.Strings(set.Duplicates)
	sort.Strings(set.Unmatched)
	return set
}

// SameNames reports whether both sets hold exactly the same names.
func (b BookmarkSet) SameNames(other BookmarkSet) bool {
	if len(b.Names) != len(other.Names) {
		return false
	}
	for i := range b.Names {
		if b.Names[i] != other.Names[i] {
			return false
		}
	}
	return true
}

// Healthy reports whether every bookmark is unique and properly closed.
func (b BookmarkSet) Healthy() bool {
	return len(b.Duplicates) == 0 && len(b.Unmatched) == 0
}

var revisionElements = []string{
	"ins", "del", "moveFrom", "moveTo",
	"moveFromRangeStart", "moveFromRangeEnd", "moveToRangeStart", "moveToRangeEnd",
	"rPrChange", "pPrChange", "sectPrChange", "tblPrChange", "trPrChange", "tcPrChange",
	"delText", "delInstrText",
}

// HasRevisions reports whether root carries any tracked-change markup.
func HasRevisions(root *xml.Node) bool {
	found := false
	xml.Walk(root, func(n *xml.Node) bool {
		if found {
			return false
		}
		if IsAny(n, revisionElements...) {
			found = true
			return false
		}
		return true
	})
	return found
}
