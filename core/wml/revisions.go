package wml

import (
	"strconv"
	"time"

	"github.com/FocuswithJustin/redline/core/xml"
	"github.com/antchfx/xmlquery"
)

const elementType = xmlquery.ElementNode

// DateLayout is the w:date format: ISO-8601, seconds precision, UTC.
const DateLayout = "2006-01-02T15:04:05Z"

// Kind is the kind of a tracked-change wrapper.
type Kind int

const (
	// Insert marks content present only in the revised document.
	Insert Kind = iota
	// Delete marks content present only in the original document.
	Delete
	// MoveFrom marks the original location of relocated content.
	MoveFrom
	// MoveTo marks the new location of relocated content.
	MoveTo
)

// Element returns the wrapper element name.
func (k Kind) Element() string {
	switch k {
	case Insert:
		return "ins"
	case Delete:
		return "del"
	case MoveFrom:
		return "moveFrom"
	case MoveTo:
		return "moveTo"
	}
	return ""
}

// Removed reports whether content of this kind is absent from the revised
// document.
func (k Kind) Removed() bool {
	return k == Delete || k == MoveFrom
}

// KindOf maps a wrapper element back to its Kind.
func KindOf(n *xml.Node) (Kind, bool) {
	switch {
	case Is(n, "ins"):
		return Insert, true
	case Is(n, "del"):
		return Delete, true
	case Is(n, "moveFrom"):
		return MoveFrom, true
	case Is(n, "moveTo"):
		return MoveTo, true
	}
	return 0, false
}

type moveRange struct {
	fromID, toID int
}

// Revisions allocates revision identifiers for one comparison run. IDs
// grow monotonically; move names map to a stable pair of range IDs. A
// Revisions value is never shared between comparisons.
type Revisions struct {
	Author string
	Date   string

	next  int
	moves map[string]*moveRange
	names int
}

// NewRevisions creates the ID state for one comparison.
func NewRevisions(author string, date time.Time) *Revisions {
	return &Revisions{
		Author: author,
		Date:   date.UTC().Truncate(time.Second).Format(DateLayout),
		next:   1,
		moves:  make(map[string]*moveRange),
	}
}

// NextID returns a fresh w:id.
func (r *Revisions) NextID() int {
	id := r.next
	r.next++
	return id
}

// Reserve makes sure future IDs are greater than id. Used when a tree
// already carries revision IDs that must stay unique.
func (r *Revisions) Reserve(id int) {
	if id >= r.next {
		r.next = id + 1
	}
}

// Wrapper creates a tracked-change element of kind k.
func (r *Revisions) Wrapper(k Kind) *xml.Node {
	n := El(k.Element())
	r.stamp(n)
	return n
}

func (r *Revisions) stamp(n *xml.Node) {
	SetAttr(n, "id", strconv.Itoa(r.NextID()))
	SetAttr(n, "author", r.Author)
	SetAttr(n, "date", r.Date)
}

// NewMoveName returns the next generated move name.
func (r *Revisions) NewMoveName() string {
	r.names++
	return "move" + strconv.Itoa(r.names)
}

func (r *Revisions) moveRange(name string) *moveRange {
	m, ok := r.moves[name]
	if !ok {
		m = &moveRange{fromID: r.NextID(), toID: r.NextID()}
		r.moves[name] = m
	}
	return m
}

// RangeStart creates the w:moveFromRangeStart or w:moveToRangeStart for
// move name on the given side.
func (r *Revisions) RangeStart(name string, k Kind) *xml.Node {
	m := r.moveRange(name)
	var n *xml.Node
	id := m.toID
	if k == MoveFrom {
		n = El("moveFromRangeStart")
		id = m.fromID
	} else {
		n = El("moveToRangeStart")
	}
	SetAttr(n, "id", strconv.Itoa(id))
	SetAttr(n, "name", name)
	SetAttr(n, "author", r.Author)
	SetAttr(n, "date", r.Date)
	return n
}

// RangeEnd creates the matching range end for RangeStart.
func (r *Revisions) RangeEnd(name string, k Kind) *xml.Node {
	m := r.moveRange(name)
	var n *xml.Node
	id := m.toID
	if k == MoveFrom {
		n = El("moveFromRangeEnd")
		id = m.fromID
	} else {
		n = El("moveToRangeEnd")
	}
	SetAttr(n, "id", strconv.Itoa(id))
	return n
}

// FormatChange creates a w:rPrChange recording oldRPr (nil means the run
// had no properties).
func (r *Revisions) FormatChange(oldRPr *xml.Node) *xml.Node {
	change := El("rPrChange")
	r.stamp(change)
	inner := El("rPr")
	if oldRPr != nil {
		for c := oldRPr.FirstChild; c != nil; c = c.NextSibling {
			if Is(c, "rPrChange") || c.Type != elementType {
				continue
			}
			xml.AppendChild(inner, xml.Clone(c))
		}
	}
	xml.AppendChild(change, inner)
	return change
}

// AttachFormatChange records oldRPr as the previous formatting of run.
func (r *Revisions) AttachFormatChange(run, oldRPr *xml.Node) {
	rPr := Child(run, "rPr")
	if rPr == nil {
		rPr = El("rPr")
		xml.PrependChild(run, rPr)
	}
	if prev := Child(rPr, "rPrChange"); prev != nil {
		xml.Remove(prev)
	}
	xml.AppendChild(rPr, r.FormatChange(oldRPr))
}

// MarkRow records a row-level insertion or deletion in w:trPr.
func (r *Revisions) MarkRow(tr *xml.Node, k Kind) {
	trPr := Child(tr, "trPr")
	if trPr == nil {
		trPr = El("trPr")
		if ex := Child(tr, "tblPrEx"); ex != nil {
			xml.InsertAfter(ex, trPr)
		} else {
			xml.PrependChild(tr, trPr)
		}
	}
	kind := k
	if kind == MoveFrom {
		kind = Delete
	} else if kind == MoveTo {
		kind = Insert
	}
	xml.AppendChild(trPr, r.Wrapper(kind))
}

// MaxID returns the largest numeric w:id below root, or 0.
func MaxID(root *xml.Node) int {
	max := 0
	xml.Walk(root, func(n *xml.Node) bool {
		if n.Type != elementType {
			return true
		}
		for _, a := range n.Attr {
			if a.Name.Local != "id" || (a.Name.Space != Prefix && a.Name.Space != NS) {
				continue
			}
			if id, err := strconv.Atoi(a.Value); err == nil && id > max {
				max = id
			}
		}
		return true
	})
	return max
}
