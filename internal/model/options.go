package model

import (
	"fmt"

	"github.com/conneroisu/blockfactory/internal/errors"
)

// Toolbox positions accepted by the editor.
const (
	ToolboxStart = "start"
	ToolboxEnd   = "end"
)

// GridOptions configures the background grid.
type GridOptions struct {
	Spacing int    `json:"spacing" yaml:"spacing" mapstructure:"spacing"`
	Length  int    `json:"length" yaml:"length" mapstructure:"length"`
	Colour  string `json:"colour" yaml:"colour" mapstructure:"colour"`
	Snap    bool   `json:"snap" yaml:"snap" mapstructure:"snap"`
}

// ZoomOptions configures zoom controls and scale limits.
type ZoomOptions struct {
	Controls   bool    `json:"controls" yaml:"controls" mapstructure:"controls"`
	Wheel      bool    `json:"wheel" yaml:"wheel" mapstructure:"wheel"`
	StartScale float64 `json:"startScale" yaml:"startScale" mapstructure:"startScale"`
	MaxScale   float64 `json:"maxScale" yaml:"maxScale" mapstructure:"maxScale"`
	MinScale   float64 `json:"minScale" yaml:"minScale" mapstructure:"minScale"`
	ScaleSpeed float64 `json:"scaleSpeed" yaml:"scaleSpeed" mapstructure:"scaleSpeed"`
}

// InjectionOptions is the flat presentation record handed to the editor
// when it is injected into a page. Grid and Zoom are omitted when unset.
// MaxBlocks of zero means unlimited.
type InjectionOptions struct {
	Collapse         bool         `json:"collapse" yaml:"collapse" mapstructure:"collapse"`
	Comments         bool         `json:"comments" yaml:"comments" mapstructure:"comments"`
	CSS              bool         `json:"css" yaml:"css" mapstructure:"css"`
	Disable          bool         `json:"disable" yaml:"disable" mapstructure:"disable"`
	HorizontalLayout bool         `json:"horizontalLayout" yaml:"horizontalLayout" mapstructure:"horizontalLayout"`
	MaxBlocks        int          `json:"maxBlocks,omitempty" yaml:"maxBlocks,omitempty" mapstructure:"maxBlocks"`
	Media            string       `json:"media,omitempty" yaml:"media,omitempty" mapstructure:"media"`
	OneBasedIndex    bool         `json:"oneBasedIndex" yaml:"oneBasedIndex" mapstructure:"oneBasedIndex"`
	ReadOnly         bool         `json:"readOnly" yaml:"readOnly" mapstructure:"readOnly"`
	RTL              bool         `json:"rtl" yaml:"rtl" mapstructure:"rtl"`
	Scrollbars       bool         `json:"scrollbars" yaml:"scrollbars" mapstructure:"scrollbars"`
	Sounds           bool         `json:"sounds" yaml:"sounds" mapstructure:"sounds"`
	Trashcan         bool         `json:"trashcan" yaml:"trashcan" mapstructure:"trashcan"`
	ToolboxPosition  string       `json:"toolboxPosition" yaml:"toolboxPosition" mapstructure:"toolboxPosition"`
	Grid             *GridOptions `json:"grid,omitempty" yaml:"grid,omitempty" mapstructure:"grid"`
	Zoom             *ZoomOptions `json:"zoom,omitempty" yaml:"zoom,omitempty" mapstructure:"zoom"`
}

// DefaultOptions returns the options of a fresh session with no
// categories.
func DefaultOptions() InjectionOptions {
	return InjectionOptions{
		CSS:             true,
		OneBasedIndex:   true,
		Sounds:          true,
		ToolboxPosition: ToolboxStart,
	}
}

// DefaultGrid returns the grid settings used when a grid is enabled.
func DefaultGrid() *GridOptions {
	return &GridOptions{Spacing: 20, Length: 1, Colour: "#888", Snap: true}
}

// DefaultZoom returns the zoom settings used when zoom is enabled.
func DefaultZoom() *ZoomOptions {
	return &ZoomOptions{
		Controls:   true,
		Wheel:      true,
		StartScale: 1.0,
		MaxScale:   3,
		MinScale:   0.3,
		ScaleSpeed: 1.2,
	}
}

// WithCategoryDefaults returns o with the switches that only make sense in
// a categorized toolbox turned on or off.
func (o InjectionOptions) WithCategoryDefaults(hasCategories bool) InjectionOptions {
	out := o.Clone()
	out.Collapse = hasCategories
	out.Comments = hasCategories
	out.Disable = hasCategories
	out.Scrollbars = hasCategories
	out.Trashcan = hasCategories
	return out
}

// Clone returns a deep copy.
func (o InjectionOptions) Clone() InjectionOptions {
	out := o
	if o.Grid != nil {
		g := *o.Grid
		out.Grid = &g
	}
	if o.Zoom != nil {
		z := *o.Zoom
		out.Zoom = &z
	}
	return out
}

// Validate checks value ranges.
func (o InjectionOptions) Validate() error {
	var c errors.Collector

	if o.MaxBlocks < 0 {
		c.Add("maxBlocks", o.MaxBlocks, "must not be negative")
	}
	switch o.ToolboxPosition {
	case "", ToolboxStart, ToolboxEnd:
	default:
		c.Addf("toolboxPosition", o.ToolboxPosition, "must be %q or %q", ToolboxStart, ToolboxEnd)
	}
	if g := o.Grid; g != nil {
		if g.Spacing < 0 {
			c.Add("grid.spacing", g.Spacing, "must not be negative")
		}
		if g.Length < 0 {
			c.Add("grid.length", g.Length, "must not be negative")
		}
	}
	if z := o.Zoom; z != nil {
		if z.MinScale <= 0 || z.MaxScale <= 0 || z.StartScale <= 0 {
			c.Add("zoom", fmt.Sprintf("%g/%g/%g", z.MinScale, z.StartScale, z.MaxScale), "scales must be positive")
		} else if z.MinScale > z.StartScale || z.StartScale > z.MaxScale {
			c.Add("zoom.startScale", z.StartScale, "must lie between minScale and maxScale")
		}
		if z.ScaleSpeed <= 0 {
			c.Add("zoom.scaleSpeed", z.ScaleSpeed, "must be positive")
		}
	}

	return c.Err(errors.ErrCodeInvalidOptions)
}
