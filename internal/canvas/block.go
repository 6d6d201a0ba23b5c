// Package canvas is a headless block canvas: it holds a connected graph of
// blocks, serializes it to and from document trees, fires change
// notifications and keeps an undo history. It stands in for the visual
// rendering engine, so the same type backs the shared editing canvas, the
// private staging canvas and each preview instance.
package canvas

import (
	"strconv"

	"github.com/conneroisu/blockfactory/internal/document"
)

// InputKind distinguishes value inputs from statement inputs.
type InputKind string

const (
	InputValue     InputKind = document.NodeValue
	InputStatement InputKind = document.NodeStatement
)

// Field is a named editable value on a block.
type Field struct {
	Name  string
	Value string
	Attrs []document.Attr
}

// Input is a named connection slot. A slot may hold a real block, a native
// shadow, or both (the shadow reappears when the block is removed).
type Input struct {
	Name   string
	Kind   InputKind
	Block  *Block
	Shadow *Block
}

// Block is one node of the block graph.
type Block struct {
	ID     string
	Type   string
	Shadow bool

	// Template marks a block as a user-flagged template block. It is a
	// rendering highlight only and is never serialized.
	Template bool

	X, Y   int
	Placed bool

	Fields []*Field
	Inputs []*Input
	Next   *Block

	// Extra holds children the canvas does not interpret (mutation,
	// comment, data) so they survive a round trip.
	Extra []*document.Node
	Attrs []document.Attr

	parent *Block
}

// Parent returns the block this one is connected to, or nil for top blocks.
func (b *Block) Parent() *Block {
	return b.parent
}

func (b *Block) parentInput() *Input {
	if b.parent == nil {
		return nil
	}
	for _, in := range b.parent.Inputs {
		if in.Block == b || in.Shadow == b {
			return in
		}
	}
	return nil
}

// Input returns the named input.
func (b *Block) Input(name string) *Input {
	for _, in := range b.Inputs {
		if in.Name == name {
			return in
		}
	}
	return nil
}

// Field returns the named field.
func (b *Block) Field(name string) *Field {
	for _, f := range b.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Descendants returns b and every block connected below it, including the
// next chain, in depth-first order.
func (b *Block) Descendants() []*Block {
	var out []*Block
	var walk func(*Block)
	walk = func(n *Block) {
		if n == nil {
			return
		}
		out = append(out, n)
		for _, in := range n.Inputs {
			walk(in.Shadow)
			walk(in.Block)
		}
		walk(n.Next)
	}
	walk(b)
	return out
}

// SerializeOptions controls what Serialize writes.
type SerializeOptions struct {
	IDs       bool
	Positions bool
}

func (b *Block) toNode(opts SerializeOptions, top bool) *document.Node {
	name := document.NodeBlock
	if b.Shadow {
		name = document.NodeShadow
	}
	n := document.New(name, document.AttrType, b.Type)
	if opts.IDs && b.ID != "" {
		n.SetAttr(document.AttrID, b.ID)
	}
	for _, a := range b.Attrs {
		n.SetAttr(a.Name, a.Value)
	}
	if top && opts.Positions && b.Placed {
		n.SetAttr(document.AttrX, strconv.Itoa(b.X))
		n.SetAttr(document.AttrY, strconv.Itoa(b.Y))
	}
	for _, e := range b.Extra {
		n.Append(e.Clone())
	}
	for _, f := range b.Fields {
		fn := document.New(document.NodeField, document.AttrName, f.Name)
		for _, a := range f.Attrs {
			fn.SetAttr(a.Name, a.Value)
		}
		fn.Text = f.Value
		n.Append(fn)
	}
	for _, in := range b.Inputs {
		if in.Block == nil && in.Shadow == nil {
			continue
		}
		inNode := document.New(string(in.Kind), document.AttrName, in.Name)
		if in.Shadow != nil {
			inNode.Append(in.Shadow.toNode(opts, false))
		}
		if in.Block != nil {
			inNode.Append(in.Block.toNode(opts, false))
		}
		n.Append(inNode)
	}
	if b.Next != nil {
		n.Append(document.New(document.NodeNext).Append(b.Next.toNode(opts, false)))
	}
	return n
}
