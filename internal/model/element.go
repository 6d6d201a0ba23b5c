// Package model holds the document model: the ordered toolbox list, the
// selection, the template-block registry, the pre-loaded workspace and the
// injection options. It is pure data. Nothing here touches a canvas.
package model

import (
	"fmt"
	"strings"

	"github.com/conneroisu/blockfactory/internal/document"
)

// Kind identifies what an element represents.
type Kind string

const (
	KindCategory  Kind = "category"
	KindSeparator Kind = "separator"
	KindFlyout    Kind = "flyout"
)

// CustomTag marks a category whose contents the editor generates.
type CustomTag string

const (
	CustomNone      CustomTag = ""
	CustomVariable  CustomTag = "VARIABLE"
	CustomProcedure CustomTag = "PROCEDURE"
)

// ParseCustomTag accepts the tag case-insensitively. An empty string or
// "none" is CustomNone.
func ParseCustomTag(s string) (CustomTag, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return CustomNone, nil
	case string(CustomVariable):
		return CustomVariable, nil
	case string(CustomProcedure):
		return CustomProcedure, nil
	default:
		return CustomNone, fmt.Errorf("unknown custom tag %q", s)
	}
}

// Element is one entry of the toolbox list, or the implicit flyout.
//
// Fields are only changed through Model so that the list invariants hold.
type Element struct {
	id       string
	kind     Kind
	name     string
	color    string
	custom   CustomTag
	snapshot *document.Node
}

// ID returns the element's stable id.
func (e *Element) ID() string { return e.id }

func (e *Element) Kind() Kind { return e.kind }

func (e *Element) Name() string { return e.name }

func (e *Element) Color() string { return e.color }

func (e *Element) Custom() CustomTag { return e.custom }

func (e *Element) IsCategory() bool { return e.kind == KindCategory }

func (e *Element) IsSeparator() bool { return e.kind == KindSeparator }

func (e *Element) IsFlyout() bool { return e.kind == KindFlyout }

// HasBlocks reports whether the committed snapshot holds any block.
func (e *Element) HasBlocks() bool { return e.blockCount() > 0 }

func (e *Element) blockCount() int {
	if e.snapshot == nil {
		return 0
	}
	return len(e.snapshot.TopBlocks())
}

// Snapshot returns a copy of the last committed canvas contents.
func (e *Element) Snapshot() *document.Node {
	if e.snapshot == nil {
		return document.NewRoot("")
	}
	return e.snapshot.Clone()
}

// Label is the name shown for the element in listings.
func (e *Element) Label() string {
	switch e.kind {
	case KindSeparator:
		return "---"
	case KindFlyout:
		return "(flyout)"
	default:
		return e.name
	}
}

// ElementInfo is a read-only view of an element for listings and the API.
type ElementInfo struct {
	ID     string    `json:"id" yaml:"id"`
	Kind   Kind      `json:"kind" yaml:"kind"`
	Name   string    `json:"name,omitempty" yaml:"name,omitempty"`
	Colour string    `json:"colour,omitempty" yaml:"colour,omitempty"`
	Custom CustomTag `json:"custom,omitempty" yaml:"custom,omitempty"`
	Blocks int       `json:"blocks" yaml:"blocks"`
}

// Info returns the element summary.
func (e *Element) Info() ElementInfo {
	return ElementInfo{
		ID:     e.id,
		Kind:   e.kind,
		Name:   e.name,
		Colour: e.color,
		Custom: e.custom,
		Blocks: e.blockCount(),
	}
}
