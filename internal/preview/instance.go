// Package preview keeps the live preview of the exported documents in
// step with the model. It owns the preview instance and decides, on every
// refresh, between an in-place toolbox swap and a full rebuild.
package preview

import (
	"github.com/conneroisu/blockfactory/internal/canvas"
	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/model"
)

// Options are baked into an instance when it is constructed.
type Options struct {
	Toolbox   *document.Node
	Injection model.InjectionOptions
}

// Instance is a running preview editor. An instance presents its toolbox
// either flat or categorized and cannot change between the two: a toolbox
// of the other shape needs a new instance.
type Instance interface {
	Categorized() bool
	UpdateToolbox(toolbox *document.Node) error
	Clear()
	LoadDocument(doc *document.Node) error
	Dispose()
}

// InstanceFactory constructs instances.
type InstanceFactory func(Options) (Instance, error)

// HeadlessInstance is an Instance backed by a headless canvas.
type HeadlessInstance struct {
	ws          *canvas.Workspace
	toolbox     *document.Node
	options     model.InjectionOptions
	categorized bool
	disposed    bool
}

// NewHeadlessInstance is an InstanceFactory.
func NewHeadlessInstance(opts Options) (Instance, error) {
	toolbox := opts.Toolbox
	if toolbox == nil {
		toolbox = document.NewRoot(document.ToolboxRootID)
	}
	return &HeadlessInstance{
		ws:          canvas.New(canvas.WithName("preview")),
		toolbox:     toolbox.Clone(),
		options:     opts.Injection.Clone(),
		categorized: toolbox.HasCategories(),
	}, nil
}

// Categorized reports whether the toolbox is shown as categories.
func (h *HeadlessInstance) Categorized() bool {
	return h.categorized
}

// UpdateToolbox swaps the toolbox in place. The new toolbox must have the
// same shape as the one the instance was built with.
func (h *HeadlessInstance) UpdateToolbox(toolbox *document.Node) error {
	if h.disposed {
		return errDisposed()
	}
	if toolbox.HasCategories() != h.categorized {
		return errors.NewInvariantError(
			errors.ErrCodePreviewModeChange,
			"toolbox shape changed; the preview must be rebuilt",
		).WithComponent("preview")
	}
	h.toolbox = toolbox.Clone()
	return nil
}

// Clear removes every block from the preview canvas.
func (h *HeadlessInstance) Clear() {
	if h.disposed {
		return
	}
	h.ws.Clear()
	h.ws.ClearHistory()
}

// LoadDocument loads blocks onto the preview canvas.
func (h *HeadlessInstance) LoadDocument(doc *document.Node) error {
	if h.disposed {
		return errDisposed()
	}
	return h.ws.LoadDocument(doc)
}

// Dispose releases the instance. Later calls fail.
func (h *HeadlessInstance) Dispose() {
	h.disposed = true
	h.ws = canvas.New()
}

// Disposed reports whether Dispose was called.
func (h *HeadlessInstance) Disposed() bool {
	return h.disposed
}

// Toolbox returns a copy of the current toolbox.
func (h *HeadlessInstance) Toolbox() *document.Node {
	return h.toolbox.Clone()
}

// Workspace returns the blocks currently shown.
func (h *HeadlessInstance) Workspace() *document.Node {
	return h.ws.Serialize()
}

// Options returns the construction options.
func (h *HeadlessInstance) Options() model.InjectionOptions {
	return h.options.Clone()
}

func errDisposed() error {
	return errors.NewInvariantError(errors.ErrCodePreviewDisposed, "preview instance used after dispose").
		WithComponent("preview")
}
