package goxq

import (
	"cmp"
	"encoding/xml"
	"io"
	"strings"
	"sync/atomic"
)

// NodeKind is the kind of a node.
type NodeKind uint8

// Node kinds.
const (
	KindDocument NodeKind = iota
	KindElement
	KindAttribute
	KindText
	KindComment
)

func (k NodeKind) String() string {
	return nodeItemType(k).String()
}

func nodeItemType(k NodeKind) ItemType {
	switch k {
	case KindDocument:
		return TypeDocument
	case KindElement:
		return TypeElement
	case KindAttribute:
		return TypeAttribute
	case KindText:
		return TypeText
	case KindComment:
		return TypeComment
	default:
		return TypeNode
	}
}

// Node is a node of a tree. Trees are owned by their implementation; the
// engine only navigates them.
type Node interface {
	Item
	Kind() NodeKind
	Name() QName
	Parent() Node
	Children() []Node
	Attributes() []Node
	// Position returns an identifier of the tree and the preorder index of
	// the node within it.
	Position() (tree uint64, index int)
}

// CompareOrder compares two nodes in document order.
func CompareOrder(a, b Node) int {
	ta, ia := a.Position()
	tb, ib := b.Position()
	if c := cmp.Compare(ta, tb); c != 0 {
		return c
	}
	return cmp.Compare(ia, ib)
}

var treeIDs atomic.Uint64

// TreeNode is the in-memory node implementation.
type TreeNode struct {
	kind     NodeKind
	name     QName
	value    string
	children []Node
	attrs    []Node
	parent   *TreeNode
	tree     uint64
	index    int
}

func (*TreeNode) isItem() {}

// Kind returns the node kind.
func (n *TreeNode) Kind() NodeKind { return n.kind }

// Name returns the node name; unnamed kinds return the zero QName.
func (n *TreeNode) Name() QName { return n.name }

// Children returns the child nodes.
func (n *TreeNode) Children() []Node { return n.children }

// Attributes returns the attribute nodes.
func (n *TreeNode) Attributes() []Node { return n.attrs }

// Position returns the tree identifier and the preorder index.
func (n *TreeNode) Position() (uint64, int) { return n.tree, n.index }

// Parent returns the parent node, or nil for a root.
func (n *TreeNode) Parent() Node {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// StringValue returns the text content of the node.
func (n *TreeNode) StringValue() string {
	switch n.kind {
	case KindDocument, KindElement:
		var sb strings.Builder
		n.writeText(&sb)
		return sb.String()
	default:
		return n.value
	}
}

func (n *TreeNode) writeText(sb *strings.Builder) {
	for _, c := range n.children {
		c := c.(*TreeNode)
		switch c.kind {
		case KindText:
			sb.WriteString(c.value)
		case KindElement:
			c.writeText(sb)
		}
	}
}

// TreeBuilder builds trees from a stream of construction events. Each
// top-level node becomes the root of a new tree.
type TreeBuilder struct {
	open  stack[*TreeNode]
	roots []Node
}

// StartDocument opens a document node.
func (b *TreeBuilder) StartDocument() {
	b.open.push(&TreeNode{kind: KindDocument})
}

// StartElement opens an element node.
func (b *TreeBuilder) StartElement(name QName) {
	b.open.push(&TreeNode{kind: KindElement, name: name})
}

// Attribute adds an attribute to the open element, replacing an attribute
// of the same name.
func (b *TreeBuilder) Attribute(name QName, value string) {
	attr := &TreeNode{kind: KindAttribute, name: name, value: value}
	if b.open.empty() {
		b.finish(attr)
		return
	}
	e := b.open.top()
	attr.parent = e
	for i, a := range e.attrs {
		if a.Name().Equal(name) {
			e.attrs[i] = attr
			return
		}
	}
	e.attrs = append(e.attrs, attr)
}

// EndElement closes the innermost open element or document.
func (b *TreeBuilder) EndElement() {
	n := b.open.pop()
	b.add(n)
}

// Text adds text content; adjacent text is merged and empty text dropped.
func (b *TreeBuilder) Text(s string) {
	if s == "" {
		return
	}
	if !b.open.empty() {
		e := b.open.top()
		if k := len(e.children); k > 0 {
			if last := e.children[k-1].(*TreeNode); last.kind == KindText {
				last.value += s
				return
			}
		}
	}
	b.add(&TreeNode{kind: KindText, value: s})
}

// Comment adds a comment node.
func (b *TreeBuilder) Comment(s string) {
	b.add(&TreeNode{kind: KindComment, value: s})
}

// CopyNode adds a deep copy of n.
func (b *TreeBuilder) CopyNode(n Node) {
	switch n.Kind() {
	case KindDocument:
		for _, c := range n.Children() {
			b.CopyNode(c)
		}
	case KindElement:
		b.StartElement(n.Name())
		for _, a := range n.Attributes() {
			b.Attribute(a.Name(), a.StringValue())
		}
		for _, c := range n.Children() {
			b.CopyNode(c)
		}
		b.EndElement()
	case KindAttribute:
		b.Attribute(n.Name(), n.StringValue())
	case KindText:
		b.Text(n.StringValue())
	case KindComment:
		b.Comment(n.StringValue())
	}
}

// Depth returns the number of open nodes.
func (b *TreeBuilder) Depth() int {
	return b.open.len()
}

// Roots returns the completed top-level nodes and resets the builder.
func (b *TreeBuilder) Roots() []Node {
	roots := b.roots
	b.roots = nil
	return roots
}

func (b *TreeBuilder) add(n *TreeNode) {
	if b.open.empty() {
		b.finish(n)
		return
	}
	e := b.open.top()
	n.parent = e
	e.children = append(e.children, n)
}

func (b *TreeBuilder) finish(root *TreeNode) {
	id := treeIDs.Add(1)
	var index int
	var number func(*TreeNode)
	number = func(n *TreeNode) {
		n.tree, n.index = id, index
		index++
		for _, a := range n.attrs {
			number(a.(*TreeNode))
		}
		for _, c := range n.children {
			number(c.(*TreeNode))
		}
	}
	number(root)
	b.roots = append(b.roots, root)
}

// ParseXML reads an XML document into a tree and returns its document node.
func ParseXML(r io.Reader) (Node, error) {
	var b TreeBuilder
	b.StartDocument()
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			b.StartElement(QName{Space: t.Name.Space, Local: t.Name.Local})
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" && a.Name.Space == "" {
					continue
				}
				b.Attribute(QName{Space: a.Name.Space, Local: a.Name.Local}, a.Value)
			}
		case xml.EndElement:
			b.EndElement()
		case xml.CharData:
			if b.Depth() > 1 {
				b.Text(string(t))
			}
		case xml.Comment:
			b.Comment(string(t))
		}
	}
	if b.Depth() != 1 {
		return nil, io.ErrUnexpectedEOF
	}
	b.EndElement()
	return b.Roots()[0], nil
}
