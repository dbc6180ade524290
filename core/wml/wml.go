// Package wml holds the WordprocessingML vocabulary shared by the
// comparison engine: element predicates and builders, paragraph-mark
// revision markers, and the body lookup every strategy starts from.
package wml

import (
	"strings"

	rerrors "github.com/FocuswithJustin/redline/core/errors"
	"github.com/FocuswithJustin/redline/core/xml"
)

// NS is the WordprocessingML main namespace.
const NS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// Prefix is the conventional prefix for NS.
const Prefix = "w"

// Is reports whether n is the w: element named local.
func Is(n *xml.Node, local string) bool {
	if n == nil || n.Type != elementType || n.Data != local {
		return false
	}
	return n.Prefix == Prefix || n.NamespaceURI == NS
}

// IsAny reports whether n is a w: element with one of the given names.
func IsAny(n *xml.Node, locals ...string) bool {
	for _, l := range locals {
		if Is(n, l) {
			return true
		}
	}
	return false
}

// El creates a detached w: element.
func El(local string) *xml.Node {
	return xml.NewElement(Prefix, local, NS)
}

// Attr returns the w: attribute local of n.
func Attr(n *xml.Node, local string) string {
	return xml.Attr(n, Prefix, local)
}

// SetAttr sets the w: attribute local of n.
func SetAttr(n *xml.Node, local, value string) {
	xml.SetAttr(n, Prefix, local, value)
}

// Child returns the first w: child element named local.
func Child(n *xml.Node, local string) *xml.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if Is(c, local) {
			return c
		}
	}
	return nil
}

// Descendants returns every w: descendant named local in document order.
func Descendants(n *xml.Node, local string) []*xml.Node {
	var out []*xml.Node
	xml.Walk(n, func(c *xml.Node) bool {
		if c != n && Is(c, local) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// IsProperties reports whether n is a property container such as w:pPr,
// w:rPr, w:sdtPr or w:tblPr. Shell clones keep these.
func IsProperties(n *xml.Node) bool {
	return n != nil && n.Type == elementType && strings.HasSuffix(n.Data, "Pr")
}

// Shell clones n with its property children only.
func Shell(n *xml.Node) *xml.Node {
	return xml.CloneShell(n, IsProperties)
}

// Body returns the w:body of doc. which names the document in the error.
func Body(doc *xml.Document, which string) (*xml.Node, error) {
	root := doc.Root()
	if root == nil {
		return nil, rerrors.NewStructure(which, "w:document")
	}
	body := Child(root, "body")
	if body == nil {
		return nil, rerrors.NewStructure(which, "w:body")
	}
	return body, nil
}

// NewRun creates a w:r carrying a copy of rPr (which may be nil).
func NewRun(rPr *xml.Node) *xml.Node {
	r := El("r")
	if rPr != nil {
		xml.AppendChild(r, xml.Clone(rPr))
	}
	return r
}

// NewText creates w:t, or w:delText when deleted, with preserved spacing.
func NewText(s string, deleted bool) *xml.Node {
	name := "t"
	if deleted {
		name = "delText"
	}
	t := El(name)
	xml.SetAttr(t, "xml", "space", "preserve")
	xml.AppendChild(t, xml.NewText(s))
	return t
}

// ParagraphProperties returns p's w:pPr, creating it when create is set.
func ParagraphProperties(p *xml.Node, create bool) *xml.Node {
	pPr := Child(p, "pPr")
	if pPr == nil && create {
		pPr = El("pPr")
		xml.PrependChild(p, pPr)
	}
	return pPr
}

// markRunProperties returns the paragraph-mark w:rPr inside pPr, creating
// it in schema position (before w:sectPr and w:pPrChange) when create is set.
func markRunProperties(p *xml.Node, create bool) *xml.Node {
	pPr := ParagraphProperties(p, create)
	if pPr == nil {
		return nil
	}
	if rPr := Child(pPr, "rPr"); rPr != nil || !create {
		return rPr
	}
	rPr := El("rPr")
	for c := pPr.FirstChild; c != nil; c = c.NextSibling {
		if IsAny(c, "sectPr", "pPrChange") {
			xml.InsertBefore(c, rPr)
			return rPr
		}
	}
	xml.AppendChild(pPr, rPr)
	return rPr
}

// SetParagraphMark records a paragraph-mark revision on p: marker must be a
// w:ins, w:del, w:moveFrom or w:moveTo element. Any earlier mark revision
// is replaced.
func SetParagraphMark(p, marker *xml.Node) {
	ClearParagraphMark(p)
	rPr := markRunProperties(p, true)
	xml.PrependChild(rPr, marker)
}

// ParagraphMark returns the kind of paragraph-mark revision on p, if any.
func ParagraphMark(p *xml.Node) (Kind, bool) {
	rPr := markRunProperties(p, false)
	if rPr == nil {
		return 0, false
	}
	for c := rPr.FirstChild; c != nil; c = c.NextSibling {
		if k, ok := KindOf(c); ok {
			return k, true
		}
	}
	return 0, false
}

// ClearParagraphMark removes paragraph-mark revision markers from p, and
// the mark w:rPr / w:pPr when they become empty.
func ClearParagraphMark(p *xml.Node) {
	rPr := markRunProperties(p, false)
	if rPr == nil {
		return
	}
	for c := rPr.FirstChild; c != nil; {
		next := c.NextSibling
		if _, ok := KindOf(c); ok {
			xml.Remove(c)
		}
		c = next
	}
	if rPr.FirstChild == nil {
		pPr := rPr.Parent
		xml.Remove(rPr)
		if pPr.FirstChild == nil && len(pPr.Attr) == 0 {
			xml.Remove(pPr)
		}
	}
}

// IsRangeMarker reports whether n is a range boundary that carries no
// content: bookmarks, comment ranges, permission ranges and move ranges.
func IsRangeMarker(n *xml.Node) bool {
	return IsAny(n,
		"bookmarkStart", "bookmarkEnd",
		"commentRangeStart", "commentRangeEnd",
		"permStart", "permEnd",
		"moveFromRangeStart", "moveFromRangeEnd",
		"moveToRangeStart", "moveToRangeEnd",
		"proofErr")
}

// InlineWrappers sit between a paragraph and its runs.
var InlineWrappers = []string{
	"hyperlink", "smartTag", "sdt", "sdtContent", "fldSimple", "customXml", "dir", "bdo",
}

// IsInlineWrapper reports whether n is one of InlineWrappers.
func IsInlineWrapper(n *xml.Node) bool {
	return IsAny(n, InlineWrappers...)
}

// HasContent reports whether p holds anything beyond its properties and
// range markers. An inline wrapper counts only when it holds content
// itself.
func HasContent(p *xml.Node) bool {
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != elementType {
			continue
		}
		if IsProperties(c) || IsRangeMarker(c) {
			continue
		}
		if IsInlineWrapper(c) && !HasContent(c) {
			continue
		}
		return true
	}
	return false
}
