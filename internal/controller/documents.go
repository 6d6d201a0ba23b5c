package controller

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/conneroisu/blockfactory/internal/canvas"
	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/model"
)

// MarkShadow flags a block on the editing canvas as a template block. Only
// blocks connected to another block qualify.
func (c *Controller) MarkShadow(ctx context.Context, blockID string) error {
	b := c.canvas.Block(blockID)
	if b == nil {
		return errUnknownBlock(blockID)
	}
	if b.Parent() == nil {
		return errors.NewValidationError(
			errors.ErrCodeInvalidTemplate,
			"only blocks connected to another block can be template blocks",
		).WithContext("block", blockID)
	}
	if c.model.IsShadow(blockID) {
		return nil
	}
	c.model.AddShadow(blockID)
	c.highlightTemplates()
	c.markActiveUnsaved()
	return c.refresh(ctx)
}

// UnmarkShadow removes a block's template flag.
func (c *Controller) UnmarkShadow(ctx context.Context, blockID string) error {
	if !c.model.IsShadow(blockID) {
		return nil
	}
	c.model.RemoveShadow(blockID)
	c.highlightTemplates()
	c.markActiveUnsaved()
	return c.refresh(ctx)
}

func (c *Controller) markActiveUnsaved() {
	if c.mode == ModePreload {
		c.preloadUnsaved = true
		return
	}
	c.structureUnsaved = true
}

// ClearAll asks for confirmation and then resets the session.
func (c *Controller) ClearAll(ctx context.Context) error {
	if !c.prompter.Confirm(ctx, "Are you sure you want to clear all of your work?") {
		return nil
	}
	return c.Reset(ctx)
}

// Reset drops every element, the registry and the pre-loaded workspace
// and returns to an empty flyout.
func (c *Controller) Reset(ctx context.Context) error {
	resume := canvas.Suppress(c.canvas)
	c.canvas.Clear()
	c.canvas.ClearHistory()
	c.model.Reset()
	c.mode = ModeToolbox
	flyout := c.model.CreateDefaultSelectedIfEmpty()
	c.model.ClearSelection()
	resume()

	c.unsaved = make(map[string]bool)
	c.structureUnsaved = false
	c.preloadUnsaved = false

	if err := c.SwitchTo(ctx, flyout.ID()); err != nil {
		return err
	}
	c.applyCategoryDefaults(false)
	c.logger.Info(ctx, "Session cleared")
	return c.refresh(ctx)
}

// ImportToolbox replaces the toolbox with the contents of a toolbox
// document. A document without categories becomes the flyout. Native
// shadows are converted into template blocks. On error nothing changes.
func (c *Controller) ImportToolbox(ctx context.Context, doc *document.Node) error {
	if doc == nil {
		return errors.ErrMalformedDocument(fmt.Errorf("empty toolbox document"))
	}

	c.commit()
	preload := blockIDs(c.model.Preload())
	taken := blockIDs(c.model.Preload())

	var (
		elems     []*model.Element
		flyout    *document.Node
		converted []string
	)
	if !doc.HasCategories() {
		snap, conv, err := c.engine.Normalize(ctx, rekeyBlocks(doc, taken))
		if err != nil {
			return err
		}
		flyout, converted = snap, conv
	} else {
		for _, child := range doc.Children {
			switch child.Name {
			case document.NodeSeparator:
				elems = append(elems, c.model.NewSeparator())
			case document.NodeCategory:
				e, conv, err := c.importCategory(ctx, child, taken)
				if err != nil {
					return err
				}
				elems = append(elems, e)
				converted = append(converted, conv...)
				for id := range blockIDs(e.Snapshot()) {
					taken[id] = struct{}{}
				}
			default:
				return errors.ErrMalformedDocument(fmt.Errorf("unexpected <%s> in a categorized toolbox", child.Name))
			}
		}
	}

	var target string
	if flyout == nil {
		if err := c.model.ReplaceElements(elems); err != nil {
			return err
		}
		target = elems[0].ID()
	} else {
		c.model.ClearToolboxList()
		f := c.model.CreateDefaultSelectedIfEmpty()
		c.model.ClearSelection()
		if err := c.model.SetSnapshot(f.ID(), flyout); err != nil {
			return err
		}
		target = f.ID()
	}
	c.model.RetainShadows(preload)
	for _, id := range converted {
		c.model.AddShadow(id)
	}
	c.unsaved = make(map[string]bool)
	c.structureUnsaved = false

	if err := c.SwitchTo(ctx, target); err != nil {
		return err
	}
	c.applyCategoryDefaults(flyout == nil)
	c.logger.Info(ctx, "Toolbox imported", "elements", len(elems), "templates", len(converted))
	return c.refresh(ctx)
}

func (c *Controller) importCategory(ctx context.Context, n *document.Node, taken map[string]struct{}) (*model.Element, []string, error) {
	name := n.AttrOr(document.AttrName, "")
	colour := n.AttrOr(document.AttrColour, "")
	if err := ValidateColour(colour); err != nil {
		return nil, nil, err
	}
	custom, err := model.ParseCustomTag(n.AttrOr(document.AttrCustom, ""))
	if err != nil {
		return nil, nil, errors.ErrMalformedDocument(err)
	}

	blocks := document.NewRoot("")
	for _, child := range n.Children {
		if child.Name == document.NodeCategory {
			return nil, nil, errors.ErrMalformedDocument(fmt.Errorf("nested category in %q", name))
		}
		blocks.Append(child.Clone())
	}
	snap, converted, err := c.engine.Normalize(ctx, rekeyBlocks(blocks, taken))
	if err != nil {
		return nil, nil, err
	}
	return c.model.NewCategoryWith(name, colour, custom, snap), converted, nil
}

// ImportWorkspace replaces the pre-loaded workspace and switches the
// editing canvas to it.
func (c *Controller) ImportWorkspace(ctx context.Context, doc *document.Node) error {
	if doc == nil {
		return errors.ErrMalformedDocument(fmt.Errorf("empty workspace document"))
	}
	c.commit()
	toolbox := c.toolboxBlockIDs()
	snap, converted, err := c.engine.Normalize(ctx, rekeyBlocks(doc, toolbox))
	if err != nil {
		return err
	}

	c.model.RetainShadows(toolbox)
	if err := c.showPreload(snap, converted); err != nil {
		return err
	}
	c.logger.Info(ctx, "Workspace imported", "blocks", len(snap.TopBlocks()), "templates", len(converted))
	return c.refresh(ctx)
}

func (c *Controller) showPreload(snap *document.Node, converted []string) error {
	resume := canvas.Suppress(c.canvas)
	defer resume()

	c.commit()
	c.model.SetPreload(snap)
	for _, id := range converted {
		c.model.AddShadow(id)
	}
	c.preloadUnsaved = false
	c.mode = ModePreload
	c.canvas.Clear()
	c.canvas.ClearHistory()
	if err := c.loadOnCanvas(snap); err != nil {
		return err
	}
	c.notifyView()
	return nil
}

// SetOptions validates and stores the injection options and rebuilds the
// preview with them.
func (c *Controller) SetOptions(ctx context.Context, opts model.InjectionOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	c.model.SetOptions(opts)
	c.commit()
	return c.policy.Reinstantiate(ctx)
}

// ExportToolboxDocument commits the active document and returns the
// canonical toolbox. The toolbox counts as saved afterwards.
func (c *Controller) ExportToolboxDocument(ctx context.Context) (*document.Node, error) {
	c.commit()
	doc, err := c.CanonicalToolbox(ctx)
	if err != nil {
		return nil, err
	}
	c.unsaved = make(map[string]bool)
	c.structureUnsaved = false
	return doc, nil
}

// ExportWorkspaceDocument commits the active document and returns the
// canonical pre-loaded workspace.
func (c *Controller) ExportWorkspaceDocument(ctx context.Context) (*document.Node, error) {
	c.commit()
	doc, err := c.CanonicalWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	c.preloadUnsaved = false
	return doc, nil
}

// ExportInjectionOptions returns the injection options record.
func (c *Controller) ExportInjectionOptions() model.InjectionOptions {
	return c.model.Options()
}

// ReplaceCanvas replaces everything on the editing canvas, as a user
// pasting a whole document would. Template flags of blocks that did not
// survive are dropped.
func (c *Controller) ReplaceCanvas(ctx context.Context, doc *document.Node) error {
	before := c.canvas.AllBlockIDs()
	if err := c.swapCanvas(doc); err != nil {
		return err
	}

	after := make(map[string]struct{})
	for _, id := range c.canvas.AllBlockIDs() {
		after[id] = struct{}{}
	}
	for _, id := range before {
		if _, ok := after[id]; !ok {
			c.model.RemoveShadow(id)
		}
	}
	c.highlightTemplates()
	return c.refresh(ctx)
}

func (c *Controller) swapCanvas(doc *document.Node) error {
	resume := canvas.Suppress(c.canvas)
	defer resume()

	doc = rekeyBlocks(doc, c.foreignIDs())
	old := c.canvas.Serialize()
	c.canvas.Clear()
	if err := c.canvas.LoadDocument(doc); err != nil {
		c.canvas.Clear()
		_ = c.canvas.LoadDocument(old)
		return errors.ErrMalformedDocument(err)
	}
	c.canvas.CleanUpLayout()
	return nil
}

// AppendBlocks adds the blocks of doc to the editing canvas.
func (c *Controller) AppendBlocks(ctx context.Context, doc *document.Node) error {
	if err := c.appendToCanvas(doc); err != nil {
		return err
	}
	c.highlightTemplates()
	return c.refresh(ctx)
}

func (c *Controller) appendToCanvas(doc *document.Node) error {
	resume := canvas.Suppress(c.canvas)
	defer resume()

	if err := c.canvas.LoadDocument(rekeyBlocks(doc, c.foreignIDs())); err != nil {
		return errors.ErrMalformedDocument(err)
	}
	c.canvas.CleanUpLayout()
	return nil
}

// DeleteBlock deletes a block from the editing canvas as a user edit.
func (c *Controller) DeleteBlock(ctx context.Context, blockID string) error {
	if c.canvas.Block(blockID) == nil {
		return errUnknownBlock(blockID)
	}
	return c.canvas.DeleteBlock(blockID)
}

func errUnknownBlock(id string) error {
	return errors.NewValidationError(errors.ErrCodeUnknownBlock, "block is not on the editing canvas: "+id).
		WithContext("block", id)
}

// foreignIDs returns the block ids held by documents other than the one on
// the editing canvas. Template flags are keyed by block id across the whole
// session, so blocks entering the canvas must not reuse them.
func (c *Controller) foreignIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	active := ""
	if c.mode == ModeToolbox {
		active = c.model.SelectedID()
	}
	for _, e := range c.model.Elements() {
		if e.ID() != active {
			addBlockIDs(ids, e.Snapshot())
		}
	}
	if f := c.model.Flyout(); f != nil && f.ID() != active {
		addBlockIDs(ids, f.Snapshot())
	}
	if c.mode != ModePreload {
		addBlockIDs(ids, c.model.Preload())
	}
	for _, id := range c.model.Shadows() {
		ids[id] = struct{}{}
	}
	for _, id := range c.canvas.AllBlockIDs() {
		delete(ids, id)
	}
	return ids
}

// toolboxBlockIDs returns the block ids of every category and the flyout.
func (c *Controller) toolboxBlockIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, e := range c.model.Elements() {
		addBlockIDs(ids, e.Snapshot())
	}
	if f := c.model.Flyout(); f != nil {
		addBlockIDs(ids, f.Snapshot())
	}
	return ids
}

func blockIDs(doc *document.Node) map[string]struct{} {
	ids := make(map[string]struct{})
	addBlockIDs(ids, doc)
	return ids
}

func addBlockIDs(ids map[string]struct{}, doc *document.Node) {
	doc.Walk(func(n *document.Node) bool {
		if n.IsBlock() {
			if id, ok := n.Attr(document.AttrID); ok && id != "" {
				ids[id] = struct{}{}
			}
		}
		return true
	})
}

// rekeyBlocks returns a copy of doc in which every block whose id is in
// taken has a fresh id. doc itself is not modified.
func rekeyBlocks(doc *document.Node, taken map[string]struct{}) *document.Node {
	if doc == nil || len(taken) == 0 {
		return doc
	}
	out := doc.Clone()
	out.Walk(func(n *document.Node) bool {
		if !n.IsBlock() {
			return true
		}
		if id, ok := n.Attr(document.AttrID); ok {
			if _, clash := taken[id]; clash {
				n.SetAttr(document.AttrID, uuid.NewString())
			}
		}
		return true
	})
	return out
}
