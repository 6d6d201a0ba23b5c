package model

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
)

// Option configures a Model.
type Option func(*Model)

// WithIDGenerator replaces the element id source.
func WithIDGenerator(gen func() string) Option {
	return func(m *Model) {
		m.newID = gen
	}
}

// Model is the document model of one editing session.
//
// Model is not safe for concurrent use. The controller that owns it runs
// every mutation on a single event loop.
type Model struct {
	elements []*Element
	selected *Element
	flyout   *Element

	hasVariable  bool
	hasProcedure bool

	shadows map[string]struct{}
	preload *document.Node
	options InjectionOptions

	newID func() string
}

// New creates an empty model.
func New(opts ...Option) *Model {
	m := &Model{
		shadows: make(map[string]struct{}),
		preload: document.NewRoot(""),
		options: DefaultOptions(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewCategory creates a detached category element with a fresh id.
func (m *Model) NewCategory(name string) *Element {
	return &Element{id: m.newID(), kind: KindCategory, name: name, snapshot: document.NewRoot("")}
}

// NewSeparator creates a detached separator element with a fresh id.
func (m *Model) NewSeparator() *Element {
	return &Element{id: m.newID(), kind: KindSeparator, snapshot: document.NewRoot("")}
}

// AddElement appends e to the toolbox list and drops the flyout
// placeholder. Categories must have a unique name and an unclaimed custom
// tag.
func (m *Model) AddElement(e *Element) error {
	if e.kind == KindFlyout {
		return errors.NewInvariantError(errors.ErrCodeNotACategory, "the flyout cannot be added to the toolbox list")
	}
	if m.IndexByID(e.id) >= 0 {
		return errors.NewInvariantError(errors.ErrCodeUnknownElement, "element already in the toolbox list: "+e.id)
	}
	if e.kind == KindCategory {
		if strings.TrimSpace(e.name) == "" {
			return errors.ErrEmptyName()
		}
		if m.HasCategoryByName(e.name) {
			return errors.ErrDuplicateName(e.name)
		}
		if m.customTaken(e.custom) {
			return errors.ErrCustomTagTaken(string(e.custom))
		}
	}

	if m.flyout != nil {
		if m.selected == m.flyout {
			m.selected = nil
		}
		m.flyout = nil
	}
	m.elements = append(m.elements, e)
	m.claim(e.custom, true)
	return nil
}

// RemoveElement removes the element at index and releases its custom tag.
// Removing the selected element clears the selection.
func (m *Model) RemoveElement(index int) (*Element, error) {
	if index < 0 || index >= len(m.elements) {
		return nil, errors.ErrOutOfRange(index, len(m.elements))
	}
	e := m.elements[index]
	m.elements = append(m.elements[:index:index], m.elements[index+1:]...)
	m.claim(e.custom, false)
	if m.selected == e {
		m.selected = nil
	}
	return e, nil
}

// MoveElement moves the element with the given id to newIndex. The element
// itself, snapshot included, is untouched.
func (m *Model) MoveElement(id string, newIndex int) error {
	oldIndex := m.IndexByID(id)
	if oldIndex < 0 {
		return errors.ErrUnknownElement(id)
	}
	if newIndex < 0 || newIndex >= len(m.elements) {
		return errors.ErrOutOfRange(newIndex, len(m.elements))
	}
	if newIndex == oldIndex {
		return nil
	}

	e := m.elements[oldIndex]
	m.elements = append(m.elements[:oldIndex:oldIndex], m.elements[oldIndex+1:]...)
	m.elements = append(m.elements[:newIndex], append([]*Element{e}, m.elements[newIndex:]...)...)
	return nil
}

// ReplaceElements swaps in a whole new toolbox list. The list is validated
// first and the model is left unchanged on error.
func (m *Model) ReplaceElements(elems []*Element) error {
	names := make(map[string]struct{})
	var variable, procedure bool
	ids := make(map[string]struct{})
	for _, e := range elems {
		if e.kind == KindFlyout {
			return errors.NewInvariantError(errors.ErrCodeNotACategory, "the flyout cannot be added to the toolbox list")
		}
		if _, dup := ids[e.id]; dup {
			return errors.NewInvariantError(errors.ErrCodeUnknownElement, "duplicate element id: "+e.id)
		}
		ids[e.id] = struct{}{}
		if e.kind != KindCategory {
			continue
		}
		if strings.TrimSpace(e.name) == "" {
			return errors.ErrEmptyName()
		}
		key := foldName(e.name)
		if _, dup := names[key]; dup {
			return errors.ErrDuplicateName(e.name)
		}
		names[key] = struct{}{}
		switch e.custom {
		case CustomVariable:
			if variable {
				return errors.ErrCustomTagTaken(string(e.custom))
			}
			variable = true
		case CustomProcedure:
			if procedure {
				return errors.ErrCustomTagTaken(string(e.custom))
			}
			procedure = true
		}
	}

	m.elements = append([]*Element(nil), elems...)
	m.hasVariable, m.hasProcedure = variable, procedure
	m.selected = nil
	if len(m.elements) > 0 {
		m.flyout = nil
	}
	return nil
}

// ClearToolboxList empties the list, the flyout and the selection.
func (m *Model) ClearToolboxList() {
	m.elements = nil
	m.selected = nil
	m.flyout = nil
	m.hasVariable = false
	m.hasProcedure = false
}

// CreateDefaultSelectedIfEmpty installs the flyout element as the
// selection when the toolbox list is empty, and returns it. It returns nil
// when the list has elements.
func (m *Model) CreateDefaultSelectedIfEmpty() *Element {
	if len(m.elements) > 0 {
		return nil
	}
	if m.flyout == nil {
		m.flyout = &Element{id: m.newID(), kind: KindFlyout, snapshot: document.NewRoot("")}
	}
	m.selected = m.flyout
	return m.flyout
}

// Flyout returns the flyout element, or nil when categories exist.
func (m *Model) Flyout() *Element {
	return m.flyout
}

// SelectByID sets the selection. The flyout id is accepted while the list
// is empty.
func (m *Model) SelectByID(id string) (*Element, error) {
	e, ok := m.ElementByID(id)
	if !ok {
		return nil, errors.ErrUnknownElement(id)
	}
	m.selected = e
	return e, nil
}

// ClearSelection drops the selection.
func (m *Model) ClearSelection() {
	m.selected = nil
}

// Selected returns the selected element or nil.
func (m *Model) Selected() *Element {
	return m.selected
}

// SelectedID returns the id of the selected element or "".
func (m *Model) SelectedID() string {
	if m.selected == nil {
		return ""
	}
	return m.selected.id
}

// SelectedSnapshot returns a copy of the selected element's snapshot, or
// nil when nothing is selected.
func (m *Model) SelectedSnapshot() *document.Node {
	if m.selected == nil {
		return nil
	}
	return m.selected.Snapshot()
}

// ElementByID finds an element in the list, or the flyout.
func (m *Model) ElementByID(id string) (*Element, bool) {
	for _, e := range m.elements {
		if e.id == id {
			return e, true
		}
	}
	if m.flyout != nil && m.flyout.id == id {
		return m.flyout, true
	}
	return nil, false
}

// ElementByIndex returns the element at index.
func (m *Model) ElementByIndex(index int) (*Element, error) {
	if index < 0 || index >= len(m.elements) {
		return nil, errors.ErrOutOfRange(index, len(m.elements))
	}
	return m.elements[index], nil
}

// IndexByID returns the list position of id, or -1.
func (m *Model) IndexByID(id string) int {
	for i, e := range m.elements {
		if e.id == id {
			return i
		}
	}
	return -1
}

// Elements returns the toolbox list in order.
func (m *Model) Elements() []*Element {
	out := make([]*Element, len(m.elements))
	copy(out, m.elements)
	return out
}

// Len returns the length of the toolbox list.
func (m *Model) Len() int {
	return len(m.elements)
}

// IsEmpty reports whether the flyout is in effect.
func (m *Model) IsEmpty() bool {
	return len(m.elements) == 0
}

// HasCategories reports whether at least one category exists.
func (m *Model) HasCategories() bool {
	for _, e := range m.elements {
		if e.kind == KindCategory {
			return true
		}
	}
	return false
}

// CategoryIDByName returns the id of the category with the given name,
// compared case-insensitively.
func (m *Model) CategoryIDByName(name string) (string, bool) {
	key := foldName(name)
	for _, e := range m.elements {
		if e.kind == KindCategory && foldName(e.name) == key {
			return e.id, true
		}
	}
	return "", false
}

// HasCategoryByName reports whether a category with the name exists.
func (m *Model) HasCategoryByName(name string) bool {
	_, ok := m.CategoryIDByName(name)
	return ok
}

// HasVariableCategory reports whether a category carries the variable tag.
func (m *Model) HasVariableCategory() bool { return m.hasVariable }

// HasProcedureCategory reports whether a category carries the procedure tag.
func (m *Model) HasProcedureCategory() bool { return m.hasProcedure }

// SetSnapshot replaces an element's snapshot with a copy of doc.
// Separators always keep an empty snapshot.
func (m *Model) SetSnapshot(id string, doc *document.Node) error {
	e, ok := m.ElementByID(id)
	if !ok {
		return errors.ErrUnknownElement(id)
	}
	if e.kind == KindSeparator {
		return nil
	}
	if doc == nil {
		doc = document.NewRoot("")
	}
	e.snapshot = doc.Clone()
	return nil
}

// Rename changes a category name. Names stay unique among categories.
func (m *Model) Rename(id, name string) error {
	e, err := m.category(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return errors.ErrEmptyName()
	}
	if other, ok := m.CategoryIDByName(name); ok && other != id {
		return errors.ErrDuplicateName(name)
	}
	e.name = name
	return nil
}

// SetColor changes a category colour. An empty colour removes it.
func (m *Model) SetColor(id, color string) error {
	e, err := m.category(id)
	if err != nil {
		return err
	}
	e.color = color
	return nil
}

// SetCustomTag changes a category's custom tag. At most one category may
// carry each tag.
func (m *Model) SetCustomTag(id string, tag CustomTag) error {
	e, err := m.category(id)
	if err != nil {
		return err
	}
	if e.custom == tag {
		return nil
	}
	if m.customTaken(tag) {
		return errors.ErrCustomTagTaken(string(tag))
	}
	m.claim(e.custom, false)
	e.custom = tag
	m.claim(tag, true)
	return nil
}

// CheckCategoryEdit reports the error that renaming the category to name
// or tagging it with tag would fail with. Nil arguments are not checked.
// Nothing is changed.
func (m *Model) CheckCategoryEdit(id string, name *string, tag *CustomTag) error {
	e, err := m.category(id)
	if err != nil {
		return err
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return errors.ErrEmptyName()
		}
		if other, ok := m.CategoryIDByName(trimmed); ok && other != id {
			return errors.ErrDuplicateName(trimmed)
		}
	}
	if tag != nil && e.custom != *tag && m.customTaken(*tag) {
		return errors.ErrCustomTagTaken(string(*tag))
	}
	return nil
}

func (m *Model) category(id string) (*Element, error) {
	e, ok := m.ElementByID(id)
	if !ok {
		return nil, errors.ErrUnknownElement(id)
	}
	if e.kind != KindCategory {
		return nil, errors.ErrNotACategory(id)
	}
	return e, nil
}

func (m *Model) customTaken(tag CustomTag) bool {
	switch tag {
	case CustomVariable:
		return m.hasVariable
	case CustomProcedure:
		return m.hasProcedure
	}
	return false
}

func (m *Model) claim(tag CustomTag, on bool) {
	switch tag {
	case CustomVariable:
		m.hasVariable = on
	case CustomProcedure:
		m.hasProcedure = on
	}
}

// AddShadow flags a block id as a template block.
func (m *Model) AddShadow(id string) {
	m.shadows[id] = struct{}{}
}

// RemoveShadow unflags a block id.
func (m *Model) RemoveShadow(id string) {
	delete(m.shadows, id)
}

// RetainShadows unflags every id not in keep.
func (m *Model) RetainShadows(keep map[string]struct{}) {
	for id := range m.shadows {
		if _, ok := keep[id]; !ok {
			delete(m.shadows, id)
		}
	}
}

// IsShadow reports whether a block id is flagged.
func (m *Model) IsShadow(id string) bool {
	_, ok := m.shadows[id]
	return ok
}

// ShadowsIn returns the flagged ids among ids, in their given order.
func (m *Model) ShadowsIn(ids []string) []string {
	var out []string
	for _, id := range ids {
		if m.IsShadow(id) {
			out = append(out, id)
		}
	}
	return out
}

// Shadows returns every flagged id, sorted.
func (m *Model) Shadows() []string {
	out := make([]string, 0, len(m.shadows))
	for id := range m.shadows {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SetPreload replaces the pre-loaded workspace snapshot with a copy of doc.
func (m *Model) SetPreload(doc *document.Node) {
	if doc == nil {
		doc = document.NewRoot("")
	}
	m.preload = doc.Clone()
}

// Preload returns a copy of the pre-loaded workspace snapshot.
func (m *Model) Preload() *document.Node {
	return m.preload.Clone()
}

// SetOptions replaces the injection options.
func (m *Model) SetOptions(o InjectionOptions) {
	m.options = o.Clone()
}

// Options returns a copy of the injection options.
func (m *Model) Options() InjectionOptions {
	return m.options.Clone()
}

// UsedBlockTypes returns the sorted set of block types referenced by the
// flyout, every category and the pre-loaded workspace.
func (m *Model) UsedBlockTypes() []string {
	seen := make(map[string]struct{})
	collect := func(n *document.Node) {
		if n == nil {
			return
		}
		for _, t := range n.BlockTypes() {
			seen[t] = struct{}{}
		}
	}
	if m.flyout != nil {
		collect(m.flyout.snapshot)
	}
	for _, e := range m.elements {
		collect(e.snapshot)
	}
	collect(m.preload)

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Reset clears the toolbox list, the registry and the pre-loaded
// workspace. Injection options are kept.
func (m *Model) Reset() {
	m.ClearToolboxList()
	m.shadows = make(map[string]struct{})
	m.preload = document.NewRoot("")
}

func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
