package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/model"
)

// AddCategory asks for a name and creates a category with it. Declining
// the prompt does nothing.
func (c *Controller) AddCategory(ctx context.Context) error {
	name, ok := c.promptCategoryName(ctx, "Enter the name of your new category:", "", "")
	if !ok {
		c.logger.Debug(ctx, "Category creation cancelled")
		return nil
	}
	_, err := c.CreateCategory(ctx, name)
	return err
}

// CreateCategory creates a category, switches to it and refreshes the
// preview once. When it is the first element, blocks the user placed in
// the flyout move into a category of their own first.
func (c *Controller) CreateCategory(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.ErrEmptyName()
	}
	if c.model.HasCategoryByName(name) {
		return "", errors.ErrDuplicateName(name)
	}
	first := !c.model.HasCategories()

	if err := c.transferFlyout(ctx, name); err != nil {
		return "", err
	}
	e := c.model.NewCategory(name)
	if err := c.model.AddElement(e); err != nil {
		return "", err
	}
	c.structureUnsaved = true

	if err := c.SwitchTo(ctx, e.ID()); err != nil {
		return "", err
	}
	if first {
		c.applyCategoryDefaults(true)
	}
	c.logger.Info(ctx, "Category created", "id", e.ID(), "name", name)
	return e.ID(), c.refresh(ctx)
}

// AddSeparator appends a separator and switches to it.
func (c *Controller) AddSeparator(ctx context.Context) (string, error) {
	if err := c.transferFlyout(ctx, ""); err != nil {
		return "", err
	}
	sep := c.model.NewSeparator()
	if err := c.model.AddElement(sep); err != nil {
		return "", err
	}
	c.structureUnsaved = true

	if err := c.SwitchTo(ctx, sep.ID()); err != nil {
		return "", err
	}
	return sep.ID(), c.refresh(ctx)
}

// transferFlyout moves the flyout blocks into a new category when the
// toolbox list is still empty. reserved is a name the caller is about to
// use and which the new category must avoid.
func (c *Controller) transferFlyout(ctx context.Context, reserved string) error {
	f := c.model.Flyout()
	if f == nil || !c.model.IsEmpty() {
		return nil
	}
	if c.mode == ModeToolbox && c.model.Selected() == f {
		c.commit()
	}
	if !f.HasBlocks() {
		return nil
	}

	snap, converted, err := c.engine.Normalize(ctx, f.Snapshot())
	if err != nil {
		return err
	}
	name := c.freeCategoryName(reserved)
	e := c.model.NewCategoryWith(name, "", model.CustomNone, snap)
	if err := c.model.AddElement(e); err != nil {
		return err
	}
	for _, id := range converted {
		c.model.AddShadow(id)
	}
	c.structureUnsaved = true
	c.logger.Info(ctx, "Moved flyout blocks into a category", "name", name, "blocks", e.Info().Blocks)
	return nil
}

func (c *Controller) freeCategoryName(reserved string) string {
	for n := 1; ; n++ {
		name := fmt.Sprintf("Category %d", n)
		if !c.model.HasCategoryByName(name) && !strings.EqualFold(name, strings.TrimSpace(reserved)) {
			return name
		}
	}
}

// promptCategoryName asks until the answer is a free category name, the
// user declines, or the attempts run out. currentID is the category being
// renamed, whose own name counts as free.
func (c *Controller) promptCategoryName(ctx context.Context, message, def, currentID string) (string, bool) {
	for attempt := 0; attempt < maxPromptAttempts; attempt++ {
		name, ok := c.prompter.PromptName(ctx, message, def)
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return "", false
		}
		if id, taken := c.model.CategoryIDByName(name); !taken || id == currentID {
			return name, true
		}
		c.prompter.Alert(ctx, fmt.Sprintf("There is already a category named %q.", name))
		def = name
	}
	c.logger.Warn(ctx, nil, "Gave up asking for a category name", "attempts", maxPromptAttempts)
	return "", false
}

// RemoveSelected asks for confirmation and removes the selected element.
func (c *Controller) RemoveSelected(ctx context.Context) error {
	sel := c.model.Selected()
	if sel == nil || c.model.IndexByID(sel.ID()) < 0 {
		return nil
	}
	if !c.prompter.Confirm(ctx, fmt.Sprintf("Are you sure you want to delete the currently selected %s?", sel.Kind())) {
		return nil
	}
	return c.RemoveElement(ctx, sel.ID())
}

// RemoveElement removes an element. If it was selected, the element now at
// its position is selected, else the one before it, else the flyout.
func (c *Controller) RemoveElement(ctx context.Context, id string) error {
	index := c.model.IndexByID(id)
	if index < 0 {
		return errors.ErrUnknownElement(id).WithComponent("controller")
	}
	wasSelected := c.model.SelectedID() == id
	hadCategories := c.model.HasCategories()
	if _, err := c.model.RemoveElement(index); err != nil {
		return err
	}
	delete(c.unsaved, id)
	c.structureUnsaved = true
	c.logger.Info(ctx, "Element removed", "id", id, "index", index)

	if wasSelected || c.model.Selected() == nil {
		if err := c.SwitchTo(ctx, c.neighbour(index)); err != nil {
			return err
		}
	} else {
		c.notifyView()
	}
	if hadCategories && !c.model.HasCategories() {
		c.applyCategoryDefaults(false)
	}
	return c.refresh(ctx)
}

// neighbour picks the element to select after removing position index.
// The removed element is gone, so the selection is empty and the switch
// commits nothing.
func (c *Controller) neighbour(index int) string {
	if e, err := c.model.ElementByIndex(index); err == nil {
		return e.ID()
	}
	if e, err := c.model.ElementByIndex(index - 1); err == nil {
		return e.ID()
	}
	f := c.model.CreateDefaultSelectedIfEmpty()
	c.model.ClearSelection()
	return f.ID()
}

// MoveSelected moves the selected element by offset positions. Moving
// past either end does nothing.
func (c *Controller) MoveSelected(ctx context.Context, offset int) error {
	sel := c.model.Selected()
	if sel == nil {
		return nil
	}
	index := c.model.IndexByID(sel.ID())
	target := index + offset
	if index < 0 || target < 0 || target >= c.model.Len() {
		return nil
	}
	return c.MoveElement(ctx, sel.ID(), target)
}

// MoveElement moves an element to newIndex.
func (c *Controller) MoveElement(ctx context.Context, id string, newIndex int) error {
	old := c.model.IndexByID(id)
	if err := c.model.MoveElement(id, newIndex); err != nil {
		return err
	}
	if old == newIndex {
		return nil
	}
	c.structureUnsaved = true
	c.notifyView()
	return c.refresh(ctx)
}

// RenameSelected asks for a new name for the selected category. Declining,
// or having a separator selected, does nothing.
func (c *Controller) RenameSelected(ctx context.Context) error {
	sel := c.model.Selected()
	if sel == nil || !sel.IsCategory() {
		return nil
	}
	name, ok := c.promptCategoryName(ctx, "What do you want to change this category's name to?", sel.Name(), sel.ID())
	if !ok {
		return nil
	}
	return c.RenameElement(ctx, sel.ID(), name)
}

// RenameElement renames a category.
func (c *Controller) RenameElement(ctx context.Context, id, name string) error {
	e, ok := c.model.ElementByID(id)
	if !ok {
		return errors.ErrUnknownElement(id).WithComponent("controller")
	}
	name = strings.TrimSpace(name)
	if e.Name() == name {
		return nil
	}
	if err := c.model.Rename(id, name); err != nil {
		return err
	}
	c.structureUnsaved = true
	c.notifyView()
	return c.refresh(ctx)
}

// SetSelectedColor recolours the selected category.
func (c *Controller) SetSelectedColor(ctx context.Context, colour string) error {
	return c.SetColor(ctx, c.model.SelectedID(), colour)
}

// SetColor recolours a category. The colour is a hue from 0 to 360, a
// #rgb or #rrggbb value, a message reference, or empty.
func (c *Controller) SetColor(ctx context.Context, id, colour string) error {
	colour = strings.TrimSpace(colour)
	if err := ValidateColour(colour); err != nil {
		return err
	}
	if err := c.model.SetColor(id, colour); err != nil {
		return err
	}
	c.structureUnsaved = true
	c.notifyView()
	return c.refresh(ctx)
}

// SetSelectedCustomTag changes the custom tag of the selected category.
func (c *Controller) SetSelectedCustomTag(ctx context.Context, tag model.CustomTag) error {
	return c.SetCustomTag(ctx, c.model.SelectedID(), tag)
}

// SetCustomTag changes a category's custom tag.
func (c *Controller) SetCustomTag(ctx context.Context, id string, tag model.CustomTag) error {
	if err := c.model.SetCustomTag(id, tag); err != nil {
		return err
	}
	c.structureUnsaved = true
	c.notifyView()
	return c.refresh(ctx)
}

// LoadStandardCategory adds one of the standard categories and switches
// to it.
func (c *Controller) LoadStandardCategory(ctx context.Context, name string) (string, error) {
	s, err := model.LookupStandardCategory(name)
	if err != nil {
		return "", err
	}
	if err := c.canAddStandard(s); err != nil {
		return "", err
	}
	first := !c.model.HasCategories()

	id, err := c.addStandard(ctx, s)
	if err != nil {
		return "", err
	}
	if err := c.SwitchTo(ctx, id); err != nil {
		return "", err
	}
	if first {
		c.applyCategoryDefaults(true)
	}
	return id, c.refresh(ctx)
}

// LoadStandardToolbox adds every standard category that can still be
// added, with a separator before the variable and function categories.
func (c *Controller) LoadStandardToolbox(ctx context.Context) error {
	first := !c.model.HasCategories()
	var firstID string

	for _, s := range model.StandardCategories() {
		if err := c.canAddStandard(s); err != nil {
			c.logger.Info(ctx, "Skipping standard category", "name", s.Name, "reason", err.Error())
			continue
		}
		id, err := c.addStandard(ctx, s)
		if err != nil {
			return err
		}
		if s.Custom == model.CustomVariable && c.model.IndexByID(id) > 0 {
			if err := c.insertSeparatorBefore(id); err != nil {
				return err
			}
		}
		if firstID == "" {
			firstID = id
		}
	}
	if firstID == "" {
		return nil
	}

	if err := c.SwitchTo(ctx, firstID); err != nil {
		return err
	}
	if first {
		c.applyCategoryDefaults(true)
	}
	return c.refresh(ctx)
}

func (c *Controller) insertSeparatorBefore(id string) error {
	sep := c.model.NewSeparator()
	if err := c.model.AddElement(sep); err != nil {
		return err
	}
	if err := c.model.MoveElement(sep.ID(), c.model.IndexByID(id)); err != nil {
		_, _ = c.model.RemoveElement(c.model.IndexByID(sep.ID()))
		return err
	}
	return nil
}

func (c *Controller) canAddStandard(s model.StandardCategory) error {
	switch {
	case s.Custom == model.CustomVariable && c.model.HasVariableCategory():
		return errors.ErrCustomTagTaken(string(s.Custom))
	case s.Custom == model.CustomProcedure && c.model.HasProcedureCategory():
		return errors.ErrCustomTagTaken(string(s.Custom))
	case c.model.HasCategoryByName(s.Name):
		return errors.ErrDuplicateName(s.Name)
	}
	return nil
}

func (c *Controller) addStandard(ctx context.Context, s model.StandardCategory) (string, error) {
	if err := c.transferFlyout(ctx, s.Name); err != nil {
		return "", err
	}
	blocks, err := s.Blocks()
	if err != nil {
		return "", err
	}
	snap, converted, err := c.engine.Normalize(ctx, blocks)
	if err != nil {
		return "", err
	}
	e := c.model.NewCategoryFrom(s, snap)
	if err := c.model.AddElement(e); err != nil {
		return "", err
	}
	for _, id := range converted {
		c.model.AddShadow(id)
	}
	c.structureUnsaved = true
	c.logger.Info(ctx, "Standard category loaded", "name", s.Name, "templates", len(converted))
	return e.ID(), nil
}

func (c *Controller) applyCategoryDefaults(hasCategories bool) {
	c.model.SetOptions(c.model.Options().WithCategoryDefaults(hasCategories))
}
