package canvas

import (
	"fmt"

	"github.com/conneroisu/blockfactory/internal/document"
)

// The operations in this file are user edits: each records undo history
// and raises a notification when events are enabled.

// AddBlock creates a new top-level block from a block node.
func (w *Workspace) AddBlock(n *document.Node) (*Block, error) {
	if !n.IsBlock() {
		return nil, fmt.Errorf("%s: %s is not a block", w.name, n.Name)
	}
	w.record()
	staged := make(map[string]*Block)
	b, err := w.blockFromNode(n, staged)
	if err != nil {
		w.dropLastRecord()
		return nil, err
	}
	for id, sb := range staged {
		w.byID[id] = sb
	}
	w.top = append(w.top, b)

	ids := make([]string, 0, len(staged))
	for _, d := range b.Descendants() {
		ids = append(ids, d.ID)
	}
	w.fire(Event{Type: EventCreate, BlockID: b.ID, BlockIDs: ids})
	return b, nil
}

// DeleteBlock removes a block with everything plugged into its inputs. A
// block following it in a stack is reattached in its place.
func (w *Workspace) DeleteBlock(id string) error {
	b, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%s: unknown block %s", w.name, id)
	}
	w.record()

	next := b.Next
	b.Next = nil
	if next != nil {
		next.parent = nil
	}

	w.replace(b, next)

	var removed []string
	for _, d := range b.Descendants() {
		delete(w.byID, d.ID)
		removed = append(removed, d.ID)
	}
	b.parent = nil

	w.fire(Event{Type: EventDelete, BlockID: id, BlockIDs: removed})
	return nil
}

// Connect plugs child into the named input of parent. An empty input name
// attaches child as parent's next block. Whatever occupied the slot is
// bumped to the top level.
func (w *Workspace) Connect(childID, parentID, inputName string) error {
	child, ok := w.byID[childID]
	if !ok {
		return fmt.Errorf("%s: unknown block %s", w.name, childID)
	}
	parent, ok := w.byID[parentID]
	if !ok {
		return fmt.Errorf("%s: unknown block %s", w.name, parentID)
	}
	for _, d := range child.Descendants() {
		if d == parent {
			return fmt.Errorf("%s: connecting %s to %s would create a cycle", w.name, childID, parentID)
		}
	}

	var in *Input
	if inputName != "" {
		in = parent.Input(inputName)
		if in == nil {
			return fmt.Errorf("%s: block %s has no input %s", w.name, parentID, inputName)
		}
	}

	w.record()
	w.replace(child, nil)

	var bumped *Block
	if in == nil {
		bumped, parent.Next = parent.Next, child
	} else if child.Shadow {
		bumped, in.Shadow = in.Shadow, child
	} else {
		bumped, in.Block = in.Block, child
	}
	child.parent = parent
	child.Placed = false

	if bumped != nil {
		bumped.parent = nil
		w.top = append(w.top, bumped)
	}

	w.fire(Event{Type: EventMove, BlockID: childID, BlockIDs: []string{childID}})
	return nil
}

// Disconnect detaches a block from its parent and makes it a top block.
func (w *Workspace) Disconnect(id string) error {
	b, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%s: unknown block %s", w.name, id)
	}
	if b.parent == nil {
		return nil
	}
	w.record()
	w.replace(b, nil)
	b.parent = nil
	w.top = append(w.top, b)
	w.fire(Event{Type: EventMove, BlockID: id, BlockIDs: []string{id}})
	return nil
}

// SetField changes a field value.
func (w *Workspace) SetField(id, name, value string) error {
	b, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%s: unknown block %s", w.name, id)
	}
	f := b.Field(name)
	if f == nil {
		return fmt.Errorf("%s: block %s has no field %s", w.name, id, name)
	}
	if f.Value == value {
		return nil
	}
	w.record()
	f.Value = value
	w.fire(Event{Type: EventChange, BlockID: id, BlockIDs: []string{id}})
	return nil
}

// MoveBlock positions a top-level block.
func (w *Workspace) MoveBlock(id string, x, y int) error {
	b, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%s: unknown block %s", w.name, id)
	}
	if b.parent != nil {
		return fmt.Errorf("%s: block %s is connected and cannot be moved", w.name, id)
	}
	w.record()
	b.X, b.Y, b.Placed = x, y, true
	w.fire(Event{Type: EventMove, BlockID: id, BlockIDs: []string{id}})
	return nil
}

// replace swaps b for with (which may be nil) wherever b is attached.
func (w *Workspace) replace(b, with *Block) {
	parent := b.parent
	if parent == nil {
		for i, t := range w.top {
			if t == b {
				if with != nil {
					with.X, with.Y, with.Placed = b.X, b.Y, b.Placed
					w.top[i] = with
				} else {
					w.top = append(w.top[:i], w.top[i+1:]...)
				}
				return
			}
		}
		return
	}

	if with != nil {
		with.parent = parent
	}
	if parent.Next == b {
		parent.Next = with
		return
	}
	for _, in := range parent.Inputs {
		switch b {
		case in.Block:
			in.Block = with
			return
		case in.Shadow:
			in.Shadow = with
			return
		}
	}
}

func (w *Workspace) dropLastRecord() {
	if w.eventsEnabled && len(w.history) > 0 {
		w.history = w.history[:len(w.history)-1]
	}
}
