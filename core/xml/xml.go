// Package xml provides the mutable XML tree the comparison engine works on:
// parsing, XPath lookup, structural edits, deep and shallow cloning, and a
// prefix-preserving serializer.
//
// Security Notes:
//   - XXE (External Entity) attacks are mitigated by using Go's xml.Decoder
//     which doesn't fetch external entities by default, and we explicitly
//     disable entity expansion in validation functions.
//   - The xmlquery library is used for parsing, which uses Go's encoding/xml
//     internally and inherits its security properties.
package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/FocuswithJustin/redline/core/encoding"
	rerrors "github.com/FocuswithJustin/redline/core/errors"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// Node is the tree node type shared by every package of the engine.
type Node = xmlquery.Node

// Document represents a parsed XML document.
type Document struct {
	root *xmlquery.Node
}

// ValidationResult contains the result of XML validation.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Line    int
	Column  int
	Message string
}

// Parse parses XML data and returns a Document.
func Parse(data []byte) (*Document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &rerrors.ParseError{Format: "XML", Message: err.Error(), Err: err}
	}
	return &Document{root: root}, nil
}

// NewDocument wraps an existing document node.
func NewDocument(root *xmlquery.Node) *Document {
	return &Document{root: root}
}

// Validate validates XML data and returns a ValidationResult.
// If schema is nil, only well-formedness is checked.
//
// Security: This function is protected against XXE (XML External Entity) attacks
// by disabling entity expansion.
func Validate(data []byte, schema []byte) ValidationResult {
	result := ValidationResult{Valid: true}

	decoder := xml.NewDecoder(bytes.NewReader(data))

	// XXE Protection (CWE-611): Disable entity expansion to prevent XXE attacks.
	decoder.Entity = map[string]string{}

	for {
		_, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, _ := decoder.InputPos()
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Line:    line,
				Message: err.Error(),
			})
			break
		}
	}

	return result
}

// Node returns the document node (the parent of the root element).
func (d *Document) Node() *xmlquery.Node {
	return d.root
}

// Root returns the root element of the document.
func (d *Document) Root() *xmlquery.Node {
	if d.root == nil {
		return nil
	}
	for child := d.root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return child
		}
	}
	return nil
}

// Clone returns a deep copy of the document. Edits to the copy never reach
// the receiver.
func (d *Document) Clone() *Document {
	if d.root == nil {
		return &Document{}
	}
	return &Document{root: Clone(d.root)}
}

// Find executes an XPath query and returns matching nodes.
func (d *Document) Find(expr string) ([]*xmlquery.Node, error) {
	return Find(d.root, expr)
}

// FindOne executes an XPath query and returns the first matching node.
func (d *Document) FindOne(expr string) (*xmlquery.Node, error) {
	return FindOne(d.root, expr)
}

// Serialize converts the document back to XML bytes.
func (d *Document) Serialize() []byte {
	if d.root == nil {
		return nil
	}
	var buf bytes.Buffer
	writeNode(&buf, d.root, nil)
	return buf.Bytes()
}

// Find executes an XPath query relative to top.
func Find(top *xmlquery.Node, expr string) ([]*xmlquery.Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	return xmlquery.QuerySelectorAll(top, compiled), nil
}

// FindOne executes an XPath query relative to top and returns the first match.
func FindOne(top *xmlquery.Node, expr string) (*xmlquery.Node, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}
	return xmlquery.QuerySelector(top, compiled), nil
}

// IsElement reports whether n is an element with the given prefix and local name.
func IsElement(n *xmlquery.Node, prefix, local string) bool {
	return n != nil && n.Type == xmlquery.ElementNode && n.Data == local && n.Prefix == prefix
}

// NewElement creates a detached element.
func NewElement(prefix, local, namespaceURI string) *xmlquery.Node {
	return &xmlquery.Node{
		Type:         xmlquery.ElementNode,
		Data:         local,
		Prefix:       prefix,
		NamespaceURI: namespaceURI,
	}
}

// NewText creates a detached text node.
func NewText(s string) *xmlquery.Node {
	return &xmlquery.Node{Type: xmlquery.TextNode, Data: s}
}

// Attr returns the value of the attribute prefix:local, or "" when absent.
func Attr(n *xmlquery.Node, prefix, local string) string {
	v, _ := LookupAttr(n, prefix, local)
	return v
}

// LookupAttr returns the value of prefix:local and whether it is present.
func LookupAttr(n *xmlquery.Node, prefix, local string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Name.Local == local && a.Name.Space == prefix {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets prefix:local on n, adding it when missing.
func SetAttr(n *xmlquery.Node, prefix, local, value string) {
	for i, a := range n.Attr {
		if a.Name.Local == local && a.Name.Space == prefix {
			n.Attr[i].Value = value
			return
		}
	}
	n.Attr = append(n.Attr, xmlquery.Attr{Name: xml.Name{Space: prefix, Local: local}, Value: value})
}

// RemoveAttr deletes prefix:local from n.
func RemoveAttr(n *xmlquery.Node, prefix, local string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Name.Local == local && a.Name.Space == prefix {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

// Elements returns the element children of n.
func Elements(n *xmlquery.Node) []*xmlquery.Node {
	if n == nil {
		return nil
	}
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Child returns the first element child named prefix:local.
func Child(n *xmlquery.Node, prefix, local string) *xmlquery.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if IsElement(c, prefix, local) {
			return c
		}
	}
	return nil
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the node's children.
func Walk(n *xmlquery.Node, fn func(*xmlquery.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// Descendants returns every descendant element of n named prefix:local, in
// document order.
func Descendants(n *xmlquery.Node, prefix, local string) []*xmlquery.Node {
	var out []*xmlquery.Node
	Walk(n, func(c *xmlquery.Node) bool {
		if c != n && IsElement(c, prefix, local) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Ancestor returns the closest ancestor of n named prefix:local.
func Ancestor(n *xmlquery.Node, prefix, local string) *xmlquery.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if IsElement(p, prefix, local) {
			return p
		}
	}
	return nil
}

// Contains reports whether n is anc or lies below it.
func Contains(anc, n *xmlquery.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == anc {
			return true
		}
	}
	return false
}

// Remove detaches n from its tree.
func Remove(n *xmlquery.Node) {
	xmlquery.RemoveFromTree(n)
}

// AppendChild moves n to the end of parent's children.
func AppendChild(parent, n *xmlquery.Node) {
	xmlquery.RemoveFromTree(n)
	xmlquery.AddChild(parent, n)
}

// PrependChild moves n to the front of parent's children.
func PrependChild(parent, n *xmlquery.Node) {
	if parent.FirstChild == nil {
		AppendChild(parent, n)
		return
	}
	InsertBefore(parent.FirstChild, n)
}

// InsertAfter moves n to directly follow ref.
func InsertAfter(ref, n *xmlquery.Node) {
	xmlquery.RemoveFromTree(n)
	xmlquery.AddImmediateSibling(ref, n)
	if n.NextSibling == nil && ref.Parent != nil {
		ref.Parent.LastChild = n
	}
}

// InsertBefore moves n to directly precede ref.
func InsertBefore(ref, n *xmlquery.Node) {
	xmlquery.RemoveFromTree(n)
	n.Parent = ref.Parent
	n.NextSibling = ref
	n.PrevSibling = ref.PrevSibling
	if ref.PrevSibling != nil {
		ref.PrevSibling.NextSibling = n
	} else if ref.Parent != nil {
		ref.Parent.FirstChild = n
	}
	ref.PrevSibling = n
}

// Wrap inserts wrapper in n's place and moves n inside it.
func Wrap(n, wrapper *xmlquery.Node) {
	InsertBefore(n, wrapper)
	AppendChild(wrapper, n)
}

// Unwrap replaces n with its children.
func Unwrap(n *xmlquery.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		InsertBefore(n, c)
		c = next
	}
	xmlquery.RemoveFromTree(n)
}

// Replace puts n where old was and detaches old.
func Replace(old, n *xmlquery.Node) {
	InsertBefore(old, n)
	xmlquery.RemoveFromTree(old)
}

// RemoveChildren detaches every child of n.
func RemoveChildren(n *xmlquery.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		xmlquery.RemoveFromTree(c)
		c = next
	}
}

// Clone returns a deep, detached copy of n.
func Clone(n *xmlquery.Node) *xmlquery.Node {
	return CloneShell(n, func(*xmlquery.Node) bool { return true })
}

// CloneShell copies n with its attributes and only those children accepted
// by keep, which are deep-copied.
func CloneShell(n *xmlquery.Node, keep func(*xmlquery.Node) bool) *xmlquery.Node {
	c := shallow(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if keep(child) {
			xmlquery.AddChild(c, Clone(child))
		}
	}
	return c
}

func shallow(n *xmlquery.Node) *xmlquery.Node {
	c := &xmlquery.Node{
		Type:         n.Type,
		Data:         n.Data,
		Prefix:       n.Prefix,
		NamespaceURI: n.NamespaceURI,
		LineNumber:   n.LineNumber,
	}
	if len(n.Attr) > 0 {
		c.Attr = append([]xmlquery.Attr(nil), n.Attr...)
	}
	if n.ProcInst != nil {
		pi := *n.ProcInst
		c.ProcInst = &pi
	}
	return c
}

// String serializes n, including n itself.
func String(n *xmlquery.Node) string {
	var buf bytes.Buffer
	writeNode(&buf, n, nil)
	return buf.String()
}

// scope maps namespace URIs to the prefixes declared on the path to a node.
type scope struct {
	parent   *scope
	prefixes map[string]string
}

func (s *scope) lookup(uri string) (string, bool) {
	for c := s; c != nil; c = c.parent {
		if p, ok := c.prefixes[uri]; ok {
			return p, true
		}
	}
	return "", false
}

func elementName(n *xmlquery.Node, sc *scope) string {
	prefix := n.Prefix
	if prefix == "" && n.NamespaceURI != "" {
		if p, ok := sc.lookup(n.NamespaceURI); ok {
			prefix = p
		}
	}
	if prefix == "" {
		return n.Data
	}
	return prefix + ":" + n.Data
}

func writeNode(w *bytes.Buffer, n *xmlquery.Node, sc *scope) {
	switch n.Type {
	case xmlquery.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeNode(w, c, sc)
		}

	case xmlquery.DeclarationNode:
		w.WriteString("<?")
		w.WriteString(n.Data)
		for _, a := range n.Attr {
			w.WriteString(" ")
			w.WriteString(a.Name.Local)
			w.WriteString("=\"")
			w.WriteString(encoding.EscapeXMLAttr(a.Value))
			w.WriteString("\"")
		}
		w.WriteString("?>")

	case xmlquery.ProcessingInstruction:
		if n.ProcInst == nil {
			return
		}
		w.WriteString("<?")
		w.WriteString(n.ProcInst.Target)
		if n.ProcInst.Inst != "" {
			w.WriteString(" ")
			w.WriteString(n.ProcInst.Inst)
		}
		w.WriteString("?>")

	case xmlquery.ElementNode:
		local := &scope{parent: sc}
		for _, a := range n.Attr {
			if a.Name.Space == "xmlns" {
				if local.prefixes == nil {
					local.prefixes = make(map[string]string)
				}
				local.prefixes[a.Value] = a.Name.Local
			}
		}
		name := elementName(n, local)
		w.WriteString("<")
		w.WriteString(name)
		for _, a := range n.Attr {
			w.WriteString(" ")
			if a.Name.Space != "" {
				w.WriteString(a.Name.Space)
				w.WriteString(":")
			}
			w.WriteString(a.Name.Local)
			w.WriteString("=\"")
			w.WriteString(encoding.EscapeXMLAttr(a.Value))
			w.WriteString("\"")
		}
		if n.FirstChild == nil {
			w.WriteString("/>")
			return
		}
		w.WriteString(">")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeNode(w, c, local)
		}
		w.WriteString("</")
		w.WriteString(name)
		w.WriteString(">")

	case xmlquery.TextNode:
		w.WriteString(encoding.EscapeXMLText(n.Data))

	case xmlquery.CharDataNode:
		w.WriteString("<![CDATA[")
		w.WriteString(n.Data)
		w.WriteString("]]>")

	case xmlquery.CommentNode:
		w.WriteString("<!--")
		w.WriteString(n.Data)
		w.WriteString("-->")

	case xmlquery.NotationNode:
		w.WriteString("<!")
		w.WriteString(n.Data)
		w.WriteString(">")
	}
}

// TextContent concatenates the character data below n.
func TextContent(n *xmlquery.Node) string {
	var sb strings.Builder
	Walk(n, func(c *xmlquery.Node) bool {
		if c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}
