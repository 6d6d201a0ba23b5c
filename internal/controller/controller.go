// Package controller is the synchronization controller. It time-shares one
// editing canvas between the documents of a session (one per category,
// the flyout, and the pre-loaded workspace), commits the canvas back into
// the model, and drives the preview after every user edit.
//
// The controller is the only writer of the selection and the only code
// that moves documents on and off the editing canvas. It is not safe for
// concurrent use: callers serialize access, as the HTTP server does with a
// mutex.
package controller

import (
	"context"

	"github.com/conneroisu/blockfactory/internal/canonical"
	"github.com/conneroisu/blockfactory/internal/canvas"
	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/logging"
	"github.com/conneroisu/blockfactory/internal/model"
	"github.com/conneroisu/blockfactory/internal/preview"
)

// Mode selects which kind of document the editing canvas shows.
type Mode string

const (
	ModeToolbox Mode = "toolbox"
	ModePreload Mode = "preload"
)

// ParseMode accepts "toolbox" or "preload".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeToolbox, ModePreload:
		return Mode(s), nil
	}
	return "", errors.NewValidationError(errors.ErrCodeInvalidMode, "unknown editing mode: "+s)
}

const maxPromptAttempts = 10

// Canvas is the shared editing canvas.
type Canvas interface {
	canvas.Notifier
	Clear()
	ClearHistory()
	LoadDocument(doc *document.Node) error
	Serialize() *document.Node
	AllBlockIDs() []string
	Block(id string) *canvas.Block
	DeleteBlock(id string) error
	CleanUpLayout()
	SetTemplateHighlight(ids []string)
	AddChangeListener(fn canvas.Listener) func()
	IsEmpty() bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithModel uses m instead of a fresh model.
func WithModel(m *model.Model) Option {
	return func(c *Controller) { c.model = m }
}

// WithView attaches a view.
func WithView(v View) Option {
	return func(c *Controller) { c.view = v }
}

// WithPrompter attaches the prompt implementation.
func WithPrompter(p Prompter) Option {
	return func(c *Controller) { c.prompter = p }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithStaging replaces the canonicalization engine's staging canvas.
func WithStaging(s canonical.Staging) Option {
	return func(c *Controller) { c.staging = s }
}

// WithInstanceFactory replaces the preview instance factory.
func WithInstanceFactory(f preview.InstanceFactory) Option {
	return func(c *Controller) { c.factory = f }
}

// Controller coordinates the model, the editing canvas, the
// canonicalization engine and the preview.
type Controller struct {
	model    *model.Model
	canvas   Canvas
	engine   *canonical.Engine
	policy   *preview.Policy
	view     View
	prompter Prompter
	logger   logging.Logger

	staging canonical.Staging
	factory preview.InstanceFactory

	mode Mode

	unsaved          map[string]bool
	structureUnsaved bool
	preloadUnsaved   bool

	removeListener func()
}

// New creates a controller around the editing canvas, selects the flyout
// and builds the first preview.
func New(ctx context.Context, c Canvas, opts ...Option) (*Controller, error) {
	ctrl := &Controller{
		canvas:   c,
		view:     NopView{},
		prompter: DeclinePrompter{},
		mode:     ModeToolbox,
		unsaved:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	if ctrl.logger == nil {
		ctrl.logger = logging.NewNop()
	}
	ctrl.logger = ctrl.logger.WithComponent("controller")
	if ctrl.model == nil {
		ctrl.model = model.New()
	}
	if ctrl.staging == nil {
		ctrl.staging = canvas.New(canvas.WithName("staging"))
	}
	ctrl.engine = canonical.New(ctrl.staging, ctrl.logger)
	ctrl.policy = preview.NewPolicy(ctrl, ctrl.factory, ctrl.logger)

	ctrl.removeListener = c.AddChangeListener(ctrl.onCanvasChange)

	target := ""
	if ctrl.model.IsEmpty() {
		target = ctrl.model.CreateDefaultSelectedIfEmpty().ID()
	} else if first, err := ctrl.model.ElementByIndex(0); err == nil {
		target = first.ID()
	}
	ctrl.model.ClearSelection()
	if err := ctrl.SwitchTo(ctx, target); err != nil {
		return nil, err
	}
	if err := ctrl.policy.Refresh(ctx); err != nil {
		return nil, err
	}
	return ctrl, nil
}

// Close detaches the controller from the canvas and disposes the preview.
func (c *Controller) Close() {
	if c.removeListener != nil {
		c.removeListener()
		c.removeListener = nil
	}
	c.policy.Close()
}

// SwitchTo makes target the active document of the editing canvas.
//
// Whatever is selected is committed first. The canvas and its undo history
// are then cleared and the target's snapshot is loaded, with template
// blocks highlighted and unplaced blocks laid out. Canvas notifications
// are suppressed throughout. An empty target leaves nothing selected.
// Switching to an unknown id is a programming error and changes nothing.
func (c *Controller) SwitchTo(ctx context.Context, targetID string) error {
	if targetID != "" {
		if _, ok := c.model.ElementByID(targetID); !ok {
			err := errors.ErrUnknownElement(targetID).WithComponent("controller")
			c.logger.Error(ctx, err, "Switch to unknown element")
			return err
		}
	}

	resume := canvas.Suppress(c.canvas)
	defer resume()

	c.commit()
	c.mode = ModeToolbox
	c.canvas.Clear()
	c.canvas.ClearHistory()

	if targetID == "" {
		c.model.ClearSelection()
		c.notifyView()
		return nil
	}

	target, err := c.model.SelectByID(targetID)
	if err != nil {
		return err
	}
	if err := c.loadOnCanvas(target.Snapshot()); err != nil {
		return err
	}
	c.logger.Debug(ctx, "Switched element", "id", targetID, "kind", target.Kind())
	c.notifyView()
	return nil
}

// SetMode switches the editing canvas between the toolbox documents and
// the pre-loaded workspace.
func (c *Controller) SetMode(ctx context.Context, mode Mode) error {
	if mode == c.mode {
		return nil
	}
	if mode == ModeToolbox {
		target := c.model.Selected()
		if target == nil {
			if target = c.model.CreateDefaultSelectedIfEmpty(); target == nil {
				first, err := c.model.ElementByIndex(0)
				if err != nil {
					return err
				}
				target = first
			}
		}
		return c.SwitchTo(ctx, target.ID())
	}

	resume := canvas.Suppress(c.canvas)
	defer resume()

	c.commit()
	c.canvas.Clear()
	c.canvas.ClearHistory()
	c.mode = ModePreload
	if err := c.loadOnCanvas(c.model.Preload()); err != nil {
		return err
	}
	c.logger.Debug(ctx, "Editing pre-loaded workspace")
	c.notifyView()
	return nil
}

// Mode returns the current editing mode.
func (c *Controller) Mode() Mode {
	return c.mode
}

// loadOnCanvas pushes doc onto the cleared canvas. Callers hold the
// suppression guard.
func (c *Controller) loadOnCanvas(doc *document.Node) error {
	if err := c.canvas.LoadDocument(doc); err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "load snapshot onto the editing canvas", err).
			WithComponent("controller")
	}
	c.highlightTemplates()
	c.canvas.CleanUpLayout()
	return nil
}

func (c *Controller) highlightTemplates() {
	c.canvas.SetTemplateHighlight(c.model.ShadowsIn(c.canvas.AllBlockIDs()))
}

// SaveStateFromWorkspace commits the active document without switching.
func (c *Controller) SaveStateFromWorkspace() {
	c.commit()
}

// commit stores the canvas into the active document and raises its
// unsaved flag when the content changed.
func (c *Controller) commit() {
	doc := c.canvas.Serialize()
	if c.mode == ModePreload {
		if !doc.Equal(c.model.Preload()) {
			c.preloadUnsaved = true
			c.model.SetPreload(doc)
		}
		return
	}

	sel := c.model.Selected()
	if sel == nil || sel.IsSeparator() {
		return
	}
	if _, ok := c.model.ElementByID(sel.ID()); !ok {
		return
	}
	if !doc.Equal(sel.Snapshot()) {
		c.unsaved[sel.ID()] = true
		if err := c.model.SetSnapshot(sel.ID(), doc); err != nil {
			c.logger.Error(context.Background(), err, "Commit failed", "element", sel.ID())
		}
	}
}

// onCanvasChange handles a user edit of the editing canvas. Notifications
// raised by the controller itself are suppressed and never arrive here.
func (c *Controller) onCanvasChange(ev canvas.Event) {
	ctx := context.Background()
	switch ev.Type {
	case canvas.EventDelete, canvas.EventClear:
		for _, id := range ev.BlockIDs {
			c.model.RemoveShadow(id)
		}
	}
	if err := c.refresh(ctx); err != nil {
		c.logger.Error(ctx, err, "Preview refresh after canvas edit failed", "event", ev.Type)
	}
}

// refresh commits the active document and updates the preview.
func (c *Controller) refresh(ctx context.Context) error {
	c.commit()
	return c.policy.Refresh(ctx)
}

// CanonicalToolbox returns the canonical toolbox of the committed model.
func (c *Controller) CanonicalToolbox(ctx context.Context) (*document.Node, error) {
	return c.engine.CanonicalizeToolbox(ctx, c.model)
}

// CanonicalWorkspace returns the canonical pre-loaded workspace.
func (c *Controller) CanonicalWorkspace(ctx context.Context) (*document.Node, error) {
	return c.engine.CanonicalizeWorkspace(ctx, c.model)
}

// Options returns the injection options.
func (c *Controller) Options() model.InjectionOptions {
	return c.model.Options()
}

// Model exposes the model for reading.
func (c *Controller) Model() *model.Model {
	return c.model
}

// Preview exposes the preview policy for subscriptions and statistics.
func (c *Controller) Preview() *preview.Policy {
	return c.policy
}

// CanvasDocument serializes the editing canvas as it is now, with ids.
func (c *Controller) CanvasDocument() *document.Node {
	return c.canvas.Serialize()
}

// CanvasTemplates lists the template blocks on the editing canvas.
func (c *Controller) CanvasTemplates() []string {
	return c.model.ShadowsIn(c.canvas.AllBlockIDs())
}

// Elements returns a summary of the toolbox list.
func (c *Controller) Elements() []model.ElementInfo {
	elems := c.model.Elements()
	out := make([]model.ElementInfo, len(elems))
	for i, e := range elems {
		out[i] = e.Info()
	}
	return out
}

// SelectedID returns the selected element id, which is the flyout's while
// the toolbox list is empty.
func (c *Controller) SelectedID() string {
	return c.model.SelectedID()
}

// HasUnsavedToolboxChanges reports toolbox edits since the last toolbox
// export.
func (c *Controller) HasUnsavedToolboxChanges() bool {
	if c.structureUnsaved {
		return true
	}
	for _, dirty := range c.unsaved {
		if dirty {
			return true
		}
	}
	return false
}

// HasUnsavedPreloadChanges reports pre-loaded workspace edits since the
// last workspace export.
func (c *Controller) HasUnsavedPreloadChanges() bool {
	return c.preloadUnsaved
}

// HasUnsavedChanges reports any unexported edit.
func (c *Controller) HasUnsavedChanges() bool {
	return c.HasUnsavedToolboxChanges() || c.HasUnsavedPreloadChanges()
}

// IsUnsaved reports whether one element changed since the last export.
func (c *Controller) IsUnsaved(id string) bool {
	return c.unsaved[id]
}

// Affordances computes the current view state.
func (c *Controller) Affordances() Affordances {
	a := Affordances{Mode: c.mode, Count: c.model.Len(), Index: -1}
	sel := c.model.Selected()
	if c.mode == ModePreload {
		return a
	}
	if sel == nil {
		a.Disabled = true
		return a
	}
	a.SelectedID = sel.ID()
	a.Kind = sel.Kind()
	a.Index = c.model.IndexByID(sel.ID())
	a.CanEdit = sel.IsCategory()
	a.CanDelete = a.Index >= 0
	a.CanMoveUp = a.Index > 0
	a.CanMoveDown = a.Index >= 0 && a.Index < a.Count-1
	return a
}

func (c *Controller) notifyView() {
	c.view.ListChanged(c.Elements(), c.model.SelectedID())
	c.view.UpdateAffordances(c.Affordances())
}
