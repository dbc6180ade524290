// Package atom defines the comparison unit of the engine and the reference
// atomizer that decomposes a WordprocessingML body into atoms.
//
// An atom is indivisible: a word or whitespace token (or a whole w:t at run
// granularity), a non-text leaf such as a tab or drawing, a collapsed field
// instruction, a bookmark boundary, a paragraph mark, or a body-level block
// such as a table. Atoms are immutable in content; only the correlation
// metadata (State, Peer, MoveName, OldRunProps, ParaIndex) changes after
// atomization.
package atom

import (
	"strings"

	"github.com/FocuswithJustin/redline/core/wml"
	"github.com/FocuswithJustin/redline/core/xml"
	"github.com/zeebo/blake3"
)

// Tree identifies which input document a node belongs to.
type Tree int

const (
	// Original is the earlier version of the document.
	Original Tree = iota
	// Revised is the later version of the document.
	Revised
)

func (t Tree) String() string {
	switch t {
	case Original:
		return "original"
	case Revised:
		return "revised"
	}
	return "unknown"
}

// NodeRef is a node tagged with the tree that owns it. Consumers that edit
// one tree must check the tag with In before touching the node.
type NodeRef struct {
	Tree Tree
	Node *xml.Node
}

// In returns the node when it belongs to tree t.
func (r NodeRef) In(t Tree) (*xml.Node, bool) {
	if r.Node == nil || r.Tree != t {
		return nil, false
	}
	return r.Node, true
}

// State is the correlation state of an atom.
type State int

const (
	Unknown State = iota
	Equal
	Deleted
	Inserted
	MovedSource
	MovedDestination
	FormatChanged
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Equal:
		return "equal"
	case Deleted:
		return "deleted"
	case Inserted:
		return "inserted"
	case MovedSource:
		return "moved-source"
	case MovedDestination:
		return "moved-destination"
	case FormatChanged:
		return "format-changed"
	}
	return "invalid"
}

// Removed reports whether atoms in this state exist only in the original.
func (s State) Removed() bool {
	switch s {
	case Deleted, MovedSource:
		return true
	case Unknown, Equal, Inserted, MovedDestination, FormatChanged:
		return false
	}
	return false
}

// Added reports whether atoms in this state exist only in the revised.
func (s State) Added() bool {
	switch s {
	case Inserted, MovedDestination:
		return true
	case Unknown, Equal, Deleted, MovedSource, FormatChanged:
		return false
	}
	return false
}

// Kind is what an atom stands for.
type Kind int

const (
	// Text is a word, a whitespace run, or a whole w:t.
	Text Kind = iota
	// Leaf is a non-text run child such as w:tab or w:drawing, or an
	// unrecognised paragraph child kept whole.
	Leaf
	// Field is a collapsed field-code sequence replayed from FieldRuns.
	Field
	// BookmarkStart and BookmarkEnd are contentless boundaries keyed by name.
	BookmarkStart
	BookmarkEnd
	// Mark is the paragraph mark closing every paragraph.
	Mark
	// Block is a body-level element other than a paragraph.
	Block
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Leaf:
		return "leaf"
	case Field:
		return "field"
	case BookmarkStart:
		return "bookmark-start"
	case BookmarkEnd:
		return "bookmark-end"
	case Mark:
		return "mark"
	case Block:
		return "block"
	}
	return "invalid"
}

// Atom is one comparison unit.
type Atom struct {
	Kind    Kind
	Tag     string
	Content string
	Hash    [32]byte

	// Node is the originating node: the w:t for text, the leaf element,
	// the first run of a field, the bookmark element, the w:p for a mark
	// or the block element.
	Node NodeRef
	// Run is the w:r holding the atom, nil for marks, bookmarks and blocks.
	Run *xml.Node
	// Paragraph is the w:p the atom belongs to, nil for blocks.
	Paragraph *xml.Node
	// Ancestors lists the wrappers between Paragraph and Run, outermost first.
	Ancestors []*xml.Node
	// TextStart and TextEnd delimit the atom inside its w:t text.
	TextStart, TextEnd int

	// FieldRuns holds the runs from fldChar begin through separate.
	FieldRuns []*xml.Node
	// EmptyParagraph marks the paragraph mark of a paragraph with no
	// other atoms.
	EmptyParagraph bool
	// Label is the rendered list label folded into the hash.
	Label string

	ParaIndex   int
	State       State
	Peer        *Atom
	MoveName    string
	OldRunProps *xml.Node
}

// Tree reports which document the atom came from.
func (a *Atom) Tree() Tree { return a.Node.Tree }

// EndsUnit reports whether the atom closes a paragraph-level unit.
func (a *Atom) EndsUnit() bool {
	return a.Kind == Mark || a.Kind == Block
}

// IsWhitespace reports whether the atom is a whitespace-only text token.
func (a *Atom) IsWhitespace() bool {
	return a.Kind == Text && strings.TrimSpace(a.Content) == ""
}

// IsMarker reports whether the atom is a bookmark boundary.
func (a *Atom) IsMarker() bool {
	return a.Kind == BookmarkStart || a.Kind == BookmarkEnd
}

// Contentful reports whether the atom carries visible content.
func (a *Atom) Contentful() bool {
	return !a.IsWhitespace() && !a.IsMarker() && a.Kind != Mark
}

// Visible returns the text the atom contributes to paragraph text.
func (a *Atom) Visible() string {
	switch a.Kind {
	case Text:
		return a.Content
	case Leaf:
		if a.Tag == "tab" || a.Tag == "br" || a.Tag == "cr" {
			return " "
		}
	case Field, BookmarkStart, BookmarkEnd, Mark, Block:
	}
	return ""
}

// RunProperties returns the w:rPr of the atom's run, or nil.
func (a *Atom) RunProperties() *xml.Node {
	return wml.Child(a.Run, "rPr")
}

// Equivalent reports whether two atoms stand for the same content. The hash
// is a filter; tag and content are compared so that collisions never match.
// The mark of an empty paragraph only matches another such mark.
func Equivalent(a, b *Atom) bool {
	return a.Hash == b.Hash && a.Tag == b.Tag && a.Content == b.Content &&
		a.EmptyParagraph == b.EmptyParagraph
}

// Hash computes the atom hash of a tag, its content and an optional label.
func Hash(tag, content, label string) [32]byte {
	h := blake3.New()
	h.WriteString(tag)
	h.WriteString("\x00")
	h.WriteString(content)
	if label != "" {
		h.WriteString("\x00")
		h.WriteString(label)
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func (a *Atom) rehash() {
	a.Hash = Hash(a.Tag, a.Content, a.Label)
}

// Canonical serializes n with rsid attributes removed, for content keys
// that must ignore editing-session noise.
func Canonical(n *xml.Node) string {
	if n == nil {
		return ""
	}
	c := xml.Clone(n)
	xml.Walk(c, func(e *xml.Node) bool {
		if len(e.Attr) == 0 {
			return true
		}
		out := e.Attr[:0]
		for _, a := range e.Attr {
			if strings.HasPrefix(a.Name.Local, "rsid") || a.Name.Space == "xmlns" {
				continue
			}
			out = append(out, a)
		}
		e.Attr = out
		return true
	})
	return xml.String(c)
}
