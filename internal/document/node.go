// Package document defines the tree value that flows between the model,
// the canvases and the export surface.
//
// A document is an ordered tree of named nodes. The root is an "xml" node;
// toolbox documents hold "category" and "sep" children, and every document
// may hold block subtrees ("block", "shadow", "field", "value",
// "statement", "next", "mutation"). Nodes are plain values: the model stores
// clones and never shares a node with a canvas.
package document

import (
	"strings"
)

// Well-known node and attribute names.
const (
	NodeRoot      = "xml"
	NodeCategory  = "category"
	NodeSeparator = "sep"
	NodeBlock     = "block"
	NodeShadow    = "shadow"
	NodeField     = "field"
	NodeValue     = "value"
	NodeStatement = "statement"
	NodeNext      = "next"
	NodeMutation  = "mutation"

	AttrID     = "id"
	AttrType   = "type"
	AttrName   = "name"
	AttrColour = "colour"
	AttrCustom = "custom"
	AttrX      = "x"
	AttrY      = "y"
	AttrStyle  = "style"
	AttrXMLNS  = "xmlns"

	// Namespace written on exported roots.
	Namespace = "https://developers.google.com/blockly/xml"

	ToolboxRootID   = "toolbox"
	WorkspaceRootID = "workspaceBlocks"
)

// Attr is a single ordered attribute.
type Attr struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Node is one element of a document tree.
type Node struct {
	Name     string  `json:"name" yaml:"name"`
	Attrs    []Attr  `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	Text     string  `json:"text,omitempty" yaml:"text,omitempty"`
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`
}

// New creates a node with the given attributes as name/value pairs.
func New(name string, attrs ...string) *Node {
	n := &Node{Name: name}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.SetAttr(attrs[i], attrs[i+1])
	}
	return n
}

// NewRoot creates an empty root. An empty id leaves the root anonymous.
func NewRoot(id string) *Node {
	root := New(NodeRoot)
	if id != "" {
		root.SetAttr(AttrXMLNS, Namespace)
		root.SetAttr(AttrID, id)
		root.SetAttr(AttrStyle, "display: none")
	}
	return root
}

// Attr returns the value of an attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or def when missing.
func (n *Node) AttrOr(name, def string) string {
	if v, ok := n.Attr(name); ok {
		return v
	}
	return def
}

// SetAttr sets an attribute, keeping its position if it already exists.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// RemoveAttr drops an attribute if present.
func (n *Node) RemoveAttr(name string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// Append adds children in order and returns n.
func (n *Node) Append(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// ChildrenNamed returns the direct children with the given name.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// FirstChild returns the first direct child with the given name.
func (n *Node) FirstChild(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Count returns how many direct children have the given name.
func (n *Node) Count(name string) int {
	count := 0
	for _, c := range n.Children {
		if c.Name == name {
			count++
		}
	}
	return count
}

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Name: n.Name, Text: n.Text}
	if len(n.Attrs) > 0 {
		out.Attrs = make([]Attr, len(n.Attrs))
		copy(out.Attrs, n.Attrs)
	}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// Equal reports structural equality, attribute order included.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	if n.Name != o.Name || n.Text != o.Text || len(n.Attrs) != len(o.Attrs) || len(n.Children) != len(o.Children) {
		return false
	}
	for i := range n.Attrs {
		if n.Attrs[i] != o.Attrs[i] {
			return false
		}
	}
	for i := range n.Children {
		if !n.Children[i].Equal(o.Children[i]) {
			return false
		}
	}
	return true
}

// IsBlock reports whether n is a block or native shadow node.
func (n *Node) IsBlock() bool {
	return n != nil && (n.Name == NodeBlock || n.Name == NodeShadow)
}

// TopBlocks returns the block and shadow children of n.
func (n *Node) TopBlocks() []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.IsBlock() {
			out = append(out, c)
		}
	}
	return out
}

// BlockTypes returns every block type referenced anywhere under n.
func (n *Node) BlockTypes() []string {
	var out []string
	n.Walk(func(c *Node) bool {
		if c.IsBlock() {
			if t, ok := c.Attr(AttrType); ok {
				out = append(out, t)
			}
		}
		return true
	})
	return out
}

// HasCategories reports whether a toolbox document is in categorized mode.
func (n *Node) HasCategories() bool {
	return n != nil && n.Count(NodeCategory) > 0
}

// String renders the node as compact XML. Marshal failures cannot happen
// for trees built by this package, so they render as an empty string.
func (n *Node) String() string {
	var sb strings.Builder
	if err := writeXML(&sb, n, ""); err != nil {
		return ""
	}
	return sb.String()
}
