package canvas

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/conneroisu/blockfactory/internal/document"
)

// EventType identifies a canvas change notification.
type EventType string

const (
	EventCreate EventType = "create"
	EventDelete EventType = "delete"
	EventChange EventType = "change"
	EventMove   EventType = "move"
	EventClear  EventType = "clear"
	EventLoad   EventType = "load"
	EventUndo   EventType = "undo"
)

// Event is a change notification. BlockIDs lists every block the change
// touched; for deletes it includes all removed descendants.
type Event struct {
	Type     EventType
	BlockID  string
	BlockIDs []string
}

// Listener receives change notifications synchronously.
type Listener func(Event)

const (
	defaultHistoryLimit = 100
	layoutRowHeight     = 30
	layoutGap           = 20
)

// Option configures a Workspace.
type Option func(*Workspace)

// WithIDGenerator replaces the id source used for blocks loaded without ids.
func WithIDGenerator(gen func() string) Option {
	return func(w *Workspace) {
		w.newID = gen
	}
}

// WithHistoryLimit bounds the undo stack.
func WithHistoryLimit(limit int) Option {
	return func(w *Workspace) {
		if limit > 0 {
			w.historyLimit = limit
		}
	}
}

// WithName labels the workspace in errors.
func WithName(name string) Option {
	return func(w *Workspace) {
		w.name = name
	}
}

// Workspace is a headless canvas.
//
// Workspace is not safe for concurrent use; it is driven from a single
// event loop like the rendering engine it replaces.
type Workspace struct {
	name   string
	top    []*Block
	byID   map[string]*Block
	extras []*document.Node

	listeners      []*listenerEntry
	nextListenerID int
	eventsEnabled  bool

	history      []*document.Node
	historyLimit int
	newID        func() string
}

type listenerEntry struct {
	id int
	fn Listener
}

// New creates an empty workspace with events enabled.
func New(opts ...Option) *Workspace {
	w := &Workspace{
		name:          "canvas",
		byID:          make(map[string]*Block),
		eventsEnabled: true,
		historyLimit:  defaultHistoryLimit,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the workspace label.
func (w *Workspace) Name() string {
	return w.name
}

// AddChangeListener registers fn and returns a function that removes it.
func (w *Workspace) AddChangeListener(fn Listener) func() {
	w.nextListenerID++
	id := w.nextListenerID
	w.listeners = append(w.listeners, &listenerEntry{id: id, fn: fn})
	return func() {
		for i, l := range w.listeners {
			if l.id == id {
				w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
				return
			}
		}
	}
}

// EventsEnabled reports whether notifications are delivered.
func (w *Workspace) EventsEnabled() bool {
	return w.eventsEnabled
}

// SetEventsEnabled turns notification delivery on or off. Notifications
// raised while disabled are dropped, and no undo history is recorded.
func (w *Workspace) SetEventsEnabled(enabled bool) {
	w.eventsEnabled = enabled
}

func (w *Workspace) fire(ev Event) {
	if !w.eventsEnabled {
		return
	}
	listeners := make([]*listenerEntry, len(w.listeners))
	copy(listeners, w.listeners)
	for _, l := range listeners {
		l.fn(ev)
	}
}

func (w *Workspace) record() {
	if !w.eventsEnabled {
		return
	}
	w.history = append(w.history, w.Serialize())
	if len(w.history) > w.historyLimit {
		w.history = w.history[len(w.history)-w.historyLimit:]
	}
}

// HistoryDepth returns the number of undoable steps.
func (w *Workspace) HistoryDepth() int {
	return len(w.history)
}

// ClearHistory drops the undo stack.
func (w *Workspace) ClearHistory() {
	w.history = nil
}

// Undo restores the state before the most recent recorded edit.
func (w *Workspace) Undo() bool {
	if len(w.history) == 0 {
		return false
	}
	prev := w.history[len(w.history)-1]
	w.history = w.history[:len(w.history)-1]

	w.reset()
	if err := w.load(prev); err != nil {
		// History entries are produced by Serialize and always reload.
		panic(fmt.Sprintf("canvas: undo snapshot failed to load: %v", err))
	}
	w.fire(Event{Type: EventUndo, BlockIDs: w.AllBlockIDs()})
	return true
}

// Clear removes every block.
func (w *Workspace) Clear() {
	if len(w.top) == 0 && len(w.extras) == 0 {
		return
	}
	w.record()
	ids := w.AllBlockIDs()
	w.reset()
	w.fire(Event{Type: EventClear, BlockIDs: ids})
}

func (w *Workspace) reset() {
	w.top = nil
	w.extras = nil
	w.byID = make(map[string]*Block)
}

// IsEmpty reports whether the canvas holds no blocks.
func (w *Workspace) IsEmpty() bool {
	return len(w.top) == 0
}

// Len returns the number of blocks, connected ones included.
func (w *Workspace) Len() int {
	return len(w.byID)
}

// TopBlocks returns the unconnected blocks in order.
func (w *Workspace) TopBlocks() []*Block {
	out := make([]*Block, len(w.top))
	copy(out, w.top)
	return out
}

// Block looks up a block by id.
func (w *Workspace) Block(id string) *Block {
	return w.byID[id]
}

// AllBlockIDs walks the connection graph and returns every block id.
func (w *Workspace) AllBlockIDs() []string {
	ids := make([]string, 0, len(w.byID))
	for _, b := range w.top {
		for _, d := range b.Descendants() {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// NativeShadowIDs returns the ids of blocks carrying the native shadow flag.
func (w *Workspace) NativeShadowIDs() []string {
	var ids []string
	for _, id := range w.AllBlockIDs() {
		if w.byID[id].Shadow {
			ids = append(ids, id)
		}
	}
	return ids
}

// SetShadow sets the native shadow flag on a block. A block plugged into an
// input moves to the slot matching its new flag; a native shadow that ends
// up hidden under a real block is discarded.
func (w *Workspace) SetShadow(id string, shadow bool) error {
	b, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("%s: unknown block %s", w.name, id)
	}
	if b.Shadow == shadow {
		return nil
	}
	w.record()
	b.Shadow = shadow

	var dropped []*Block
	if in := b.parentInput(); in != nil {
		switch {
		case shadow && in.Block == b:
			in.Block = nil
			if in.Shadow != nil {
				dropped = append(dropped, in.Shadow)
			}
			in.Shadow = b
		case !shadow && in.Shadow == b:
			in.Shadow = nil
			if in.Block != nil {
				dropped = append(dropped, b)
			} else {
				in.Block = b
			}
		}
	}

	touched := []string{id}
	for _, d := range dropped {
		d.parent = nil
		for _, x := range d.Descendants() {
			delete(w.byID, x.ID)
			touched = append(touched, x.ID)
		}
	}
	w.fire(Event{Type: EventChange, BlockID: id, BlockIDs: touched})
	return nil
}

// SetTemplateHighlight marks exactly the given blocks as template blocks.
// Unknown ids are ignored. The highlight is cosmetic and raises no event.
func (w *Workspace) SetTemplateHighlight(ids []string) {
	marked := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		marked[id] = struct{}{}
	}
	for id, b := range w.byID {
		_, b.Template = marked[id]
	}
}

// TemplateIDs returns the highlighted template blocks in graph order.
func (w *Workspace) TemplateIDs() []string {
	var ids []string
	for _, id := range w.AllBlockIDs() {
		if w.byID[id].Template {
			ids = append(ids, id)
		}
	}
	return ids
}

// Serialize writes the full canvas with ids and positions.
func (w *Workspace) Serialize() *document.Node {
	return w.SerializeWith(SerializeOptions{IDs: true, Positions: true})
}

// SerializeWith writes the canvas under an anonymous root.
func (w *Workspace) SerializeWith(opts SerializeOptions) *document.Node {
	root := document.NewRoot("")
	for _, e := range w.extras {
		root.Append(e.Clone())
	}
	for _, b := range w.top {
		root.Append(b.toNode(opts, true))
	}
	return root
}

// LoadDocument appends the blocks of doc to the canvas. Blocks without an
// id, or whose id is already taken, receive a fresh one. On error the
// canvas is left unchanged.
func (w *Workspace) LoadDocument(doc *document.Node) error {
	if doc == nil || (!doc.IsBlock() && len(doc.Children) == 0) {
		return nil
	}
	w.record()
	if err := w.load(doc); err != nil {
		w.dropLastRecord()
		return err
	}
	w.fire(Event{Type: EventLoad, BlockIDs: w.AllBlockIDs()})
	return nil
}

func (w *Workspace) load(doc *document.Node) error {
	var nodes []*document.Node
	if doc.IsBlock() {
		nodes = []*document.Node{doc}
	} else {
		nodes = doc.Children
	}

	staged := make(map[string]*Block)
	var tops []*Block
	var extras []*document.Node
	for _, n := range nodes {
		if !n.IsBlock() {
			extras = append(extras, n.Clone())
			continue
		}
		b, err := w.blockFromNode(n, staged)
		if err != nil {
			return err
		}
		tops = append(tops, b)
	}

	for id, b := range staged {
		w.byID[id] = b
	}
	w.top = append(w.top, tops...)
	w.extras = append(w.extras, extras...)
	return nil
}

func (w *Workspace) blockFromNode(n *document.Node, staged map[string]*Block) (*Block, error) {
	typ, ok := n.Attr(document.AttrType)
	if !ok || typ == "" {
		return nil, fmt.Errorf("%s: block without type", w.name)
	}

	b := &Block{Type: typ, Shadow: n.Name == document.NodeShadow}

	id := n.AttrOr(document.AttrID, "")
	if id == "" || w.byID[id] != nil || staged[id] != nil {
		id = w.freshID(staged)
	}
	b.ID = id
	staged[id] = b

	xs, hasX := n.Attr(document.AttrX)
	ys, hasY := n.Attr(document.AttrY)
	if hasX && hasY {
		x, errX := strconv.Atoi(xs)
		y, errY := strconv.Atoi(ys)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("%s: block %s has a non-integer position", w.name, id)
		}
		b.X, b.Y, b.Placed = x, y, true
	}

	for _, a := range n.Attrs {
		switch a.Name {
		case document.AttrID, document.AttrType, document.AttrX, document.AttrY:
		default:
			b.Attrs = append(b.Attrs, a)
		}
	}

	for _, c := range n.Children {
		switch c.Name {
		case document.NodeField:
			f := &Field{Name: c.AttrOr(document.AttrName, ""), Value: c.Text}
			for _, a := range c.Attrs {
				if a.Name != document.AttrName {
					f.Attrs = append(f.Attrs, a)
				}
			}
			b.Fields = append(b.Fields, f)
		case document.NodeValue, document.NodeStatement:
			in := &Input{Name: c.AttrOr(document.AttrName, ""), Kind: InputKind(c.Name)}
			for _, child := range c.TopBlocks() {
				cb, err := w.blockFromNode(child, staged)
				if err != nil {
					return nil, err
				}
				cb.parent = b
				if cb.Shadow {
					in.Shadow = cb
				} else {
					in.Block = cb
				}
			}
			b.Inputs = append(b.Inputs, in)
		case document.NodeNext:
			blocks := c.TopBlocks()
			if len(blocks) == 0 {
				continue
			}
			nb, err := w.blockFromNode(blocks[0], staged)
			if err != nil {
				return nil, err
			}
			nb.parent = b
			b.Next = nb
		default:
			b.Extra = append(b.Extra, c.Clone())
		}
	}

	return b, nil
}

func (w *Workspace) freshID(staged map[string]*Block) string {
	for {
		id := w.newID()
		if w.byID[id] == nil && staged[id] == nil {
			return id
		}
	}
}

// CleanUpLayout places blocks that have no position in a column below the
// lowest placed block. Positioned blocks are never moved, so running it on
// an already laid-out canvas changes nothing.
func (w *Workspace) CleanUpLayout() {
	cursor := 0
	placedAny := false
	for _, b := range w.top {
		if !b.Placed {
			continue
		}
		bottom := b.Y + blockHeight(b)
		if !placedAny || bottom+layoutGap > cursor {
			cursor = bottom + layoutGap
		}
		placedAny = true
	}

	var moved []string
	for _, b := range w.top {
		if b.Placed {
			continue
		}
		if len(moved) == 0 {
			w.record()
		}
		b.X, b.Y, b.Placed = 0, cursor, true
		cursor += blockHeight(b) + layoutGap
		moved = append(moved, b.ID)
	}
	if len(moved) > 0 {
		w.fire(Event{Type: EventMove, BlockIDs: moved})
	}
}

func blockHeight(b *Block) int {
	return layoutRowHeight * len(b.Descendants())
}
