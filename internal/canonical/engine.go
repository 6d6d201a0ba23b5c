// Package canonical turns stored snapshots into the exported toolbox and
// workspace documents. Every replay goes through a private staging canvas
// so the connection graph, and with it every nested block, can be walked.
package canonical

import (
	"context"

	"github.com/conneroisu/blockfactory/internal/canvas"
	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/logging"
	"github.com/conneroisu/blockfactory/internal/model"
)

// Staging is the canvas the engine replays snapshots on.
type Staging interface {
	canvas.Notifier
	Clear()
	ClearHistory()
	LoadDocument(doc *document.Node) error
	SerializeWith(opts canvas.SerializeOptions) *document.Node
	AllBlockIDs() []string
	Block(id string) *canvas.Block
	NativeShadowIDs() []string
	SetShadow(id string, shadow bool) error
	CleanUpLayout()
}

// Source is the read side of the document model.
type Source interface {
	Elements() []*model.Element
	Flyout() *model.Element
	IsShadow(id string) bool
	Preload() *document.Node
}

// Engine produces canonical documents. It never writes to its Source.
type Engine struct {
	staging Staging
	logger  logging.Logger
}

// New creates an engine that owns staging. Nothing else may use staging
// afterwards.
func New(staging Staging, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		staging: staging,
		logger:  logger.WithComponent("canonical"),
	}
}

var (
	toolboxShape   = canvas.SerializeOptions{}
	workspaceShape = canvas.SerializeOptions{IDs: true, Positions: true}
)

// CanonicalizeToolbox builds the toolbox document. With no elements the
// flyout blocks are returned flat under the root. Otherwise every element
// becomes a category or a separator, in list order.
func (e *Engine) CanonicalizeToolbox(ctx context.Context, src Source) (*document.Node, error) {
	perf := logging.StartOperation(e.logger, "canonicalize_toolbox")
	root := document.NewRoot(document.ToolboxRootID)

	elems := src.Elements()
	if len(elems) == 0 {
		var snap *document.Node
		if f := src.Flyout(); f != nil {
			snap = f.Snapshot()
		}
		out, err := e.replay(snap, src, toolboxShape)
		if err != nil {
			perf.EndWithError(ctx, err)
			return nil, err
		}
		root.Append(out.TopBlocks()...)
		perf.End(ctx, "mode", "flyout", "blocks", len(root.Children))
		return root, nil
	}

	for _, el := range elems {
		switch el.Kind() {
		case model.KindSeparator:
			root.Append(document.New(document.NodeSeparator))
		case model.KindCategory:
			cat := document.New(document.NodeCategory, document.AttrName, el.Name())
			if el.Color() != "" {
				cat.SetAttr(document.AttrColour, el.Color())
			}
			if el.Custom() != model.CustomNone {
				cat.SetAttr(document.AttrCustom, string(el.Custom()))
			}
			out, err := e.replay(el.Snapshot(), src, toolboxShape)
			if err != nil {
				err = errors.NewInternalError(errors.ErrCodeInternalError, "replay category "+el.Name(), err).
					WithComponent("canonical")
				perf.EndWithError(ctx, err)
				return nil, err
			}
			cat.Append(out.TopBlocks()...)
			root.Append(cat)
		}
	}

	perf.End(ctx, "mode", "categories", "elements", len(elems))
	return root, nil
}

// CanonicalizeWorkspace builds the pre-loaded workspace document. Ids and
// positions are kept since the document is reloaded verbatim.
func (e *Engine) CanonicalizeWorkspace(ctx context.Context, src Source) (*document.Node, error) {
	perf := logging.StartOperation(e.logger, "canonicalize_workspace")
	out, err := e.replay(src.Preload(), src, workspaceShape)
	if err != nil {
		err = errors.NewInternalError(errors.ErrCodeInternalError, "replay pre-loaded workspace", err).
			WithComponent("canonical")
		perf.EndWithError(ctx, err)
		return nil, err
	}

	root := document.NewRoot(document.WorkspaceRootID)
	root.Append(out.Children...)
	perf.End(ctx, "blocks", len(out.TopBlocks()))
	return root, nil
}

// Normalize replays an external document and returns a snapshot ready to
// be stored: unplaced blocks are laid out and native shadows are turned
// into ordinary blocks. The ids of the converted blocks are returned so
// the caller can flag them as template blocks.
func (e *Engine) Normalize(ctx context.Context, doc *document.Node) (*document.Node, []string, error) {
	resume := canvas.Suppress(e.staging)
	defer resume()

	if err := e.load(doc); err != nil {
		return nil, nil, errors.ErrMalformedDocument(err).WithComponent("canonical")
	}
	e.staging.CleanUpLayout()

	var converted []string
	for _, id := range e.staging.NativeShadowIDs() {
		ok, err := e.setShadow(id, false)
		if err != nil {
			return nil, nil, errors.NewInternalError(errors.ErrCodeInternalError, "convert shadow "+id, err)
		}
		if ok && e.staging.Block(id) != nil {
			converted = append(converted, id)
		}
	}

	out := e.staging.SerializeWith(workspaceShape)
	e.logger.Debug(ctx, "Normalized document", "blocks", len(e.staging.AllBlockIDs()), "converted_shadows", len(converted))
	return out, converted, nil
}

func (e *Engine) replay(doc *document.Node, src Source, shape canvas.SerializeOptions) (*document.Node, error) {
	resume := canvas.Suppress(e.staging)
	defer resume()

	if err := e.load(doc); err != nil {
		return nil, err
	}
	for _, id := range e.staging.AllBlockIDs() {
		if src.IsShadow(id) {
			if _, err := e.setShadow(id, true); err != nil {
				return nil, err
			}
		}
	}
	return e.staging.SerializeWith(shape), nil
}

// setShadow flips the native flag unless an earlier flip already discarded
// the block.
func (e *Engine) setShadow(id string, shadow bool) (bool, error) {
	if e.staging.Block(id) == nil {
		return false, nil
	}
	return true, e.staging.SetShadow(id, shadow)
}

func (e *Engine) load(doc *document.Node) error {
	e.staging.Clear()
	e.staging.ClearHistory()
	if doc == nil {
		return nil
	}
	return e.staging.LoadDocument(doc)
}
