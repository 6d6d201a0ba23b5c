// Package project reads and writes blockfactory project files.
//
// A project file is YAML. It describes a toolbox, an optional pre-loaded
// workspace and the injection options, with blocks written as XML
// fragments:
//
//	name: demo
//	toolbox:
//	  - standard: Logic
//	  - separator: true
//	  - category: My blocks
//	    colour: "#a5745b"
//	    blocks: |
//	      <block type="controls_if"></block>
//	workspace: |
//	  <block type="text_print" x="10" y="10"></block>
//
// A toolbox or workspace may also live in an XML file next to the project
// (toolbox_file, workspace_file). The project is the import boundary: every
// problem found while parsing is reported as a validation error.
package project

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/blockfactory/internal/controller"
	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/model"
)

// File is the on-disk project.
type File struct {
	Name          string                  `yaml:"name,omitempty"`
	Options       *model.InjectionOptions `yaml:"options,omitempty"`
	Flyout        string                  `yaml:"flyout,omitempty"`
	Toolbox       []Entry                 `yaml:"toolbox,omitempty"`
	ToolboxFile   string                  `yaml:"toolbox_file,omitempty"`
	Workspace     string                  `yaml:"workspace,omitempty"`
	WorkspaceFile string                  `yaml:"workspace_file,omitempty"`

	dir string
}

// Entry is one toolbox list entry. Exactly one of Category, Separator and
// Standard is set.
type Entry struct {
	Category  string `yaml:"category,omitempty"`
	Colour    string `yaml:"colour,omitempty"`
	Custom    string `yaml:"custom,omitempty"`
	Blocks    string `yaml:"blocks,omitempty"`
	Separator bool   `yaml:"separator,omitempty"`
	Standard  string `yaml:"standard,omitempty"`
}

// Load reads and validates the project at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "project file not found: "+path, err)
		}
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "read project file "+path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.dir = filepath.Dir(path)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Parse decodes a project without resolving referenced files. Unknown keys
// are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return &f, nil
		}
		return nil, errors.NewValidationError(errors.ErrCodeProjectInvalid, "parse project: "+err.Error())
	}
	return &f, nil
}

// Validate checks the whole project and reports every problem at once.
func (f *File) Validate() error {
	var c errors.Collector

	if f.Flyout != "" && (len(f.Toolbox) > 0 || f.ToolboxFile != "") {
		c.Add("flyout", nil, "a flyout cannot be combined with a toolbox")
	}
	if len(f.Toolbox) > 0 && f.ToolboxFile != "" {
		c.Add("toolbox_file", f.ToolboxFile, "toolbox and toolbox_file are mutually exclusive")
	}
	if f.Workspace != "" && f.WorkspaceFile != "" {
		c.Add("workspace_file", f.WorkspaceFile, "workspace and workspace_file are mutually exclusive")
	}
	for _, p := range []struct{ field, path string }{
		{"toolbox_file", f.ToolboxFile},
		{"workspace_file", f.WorkspaceFile},
	} {
		if p.path == "" {
			continue
		}
		if err := validatePath(p.path); err != nil {
			c.Add(p.field, p.path, err.Error())
		}
	}

	if f.Flyout != "" {
		if _, err := document.ParseFragment([]byte(f.Flyout)); err != nil {
			c.Add("flyout", nil, err.Error())
		}
	}
	if f.Workspace != "" {
		if _, err := document.ParseFragment([]byte(f.Workspace)); err != nil {
			c.Add("workspace", nil, err.Error())
		}
	}

	names := make(map[string]int)
	for i, e := range f.Toolbox {
		field := fmt.Sprintf("toolbox[%d]", i)
		e.validate(field, &c)
		if name := e.name(); name != "" {
			key := strings.ToLower(name)
			if prev, dup := names[key]; dup {
				c.Addf(field, name, "category name already used by toolbox[%d]", prev)
			} else {
				names[key] = i
			}
		}
	}

	if f.Options != nil {
		if err := f.Options.Validate(); err != nil {
			c.Add("options", nil, err.Error())
		}
	}
	return c.Err(errors.ErrCodeProjectInvalid)
}

func (e Entry) validate(field string, c *errors.Collector) {
	set := 0
	if e.Category != "" {
		set++
	}
	if e.Separator {
		set++
	}
	if e.Standard != "" && e.Category == "" {
		set++
	}
	if set != 1 {
		c.Add(field, nil, "entry must be exactly one of category, separator or standard")
		return
	}
	if e.Separator {
		if e.Colour != "" || e.Custom != "" || e.Blocks != "" {
			c.Add(field, nil, "a separator has no colour, custom tag or blocks")
		}
		return
	}
	if e.Standard != "" {
		if _, err := model.LookupStandardCategory(e.Standard); err != nil {
			c.Add(field+".standard", e.Standard, err.Error())
		}
	}
	if err := controller.ValidateColour(e.Colour); err != nil {
		c.Add(field+".colour", e.Colour, err.Error())
	}
	if _, err := model.ParseCustomTag(e.Custom); err != nil {
		c.Add(field+".custom", e.Custom, err.Error())
	}
	if e.Blocks != "" {
		if _, err := document.ParseFragment([]byte(e.Blocks)); err != nil {
			c.Add(field+".blocks", nil, err.Error())
		}
	}
}

// name is the category name the entry produces.
func (e Entry) name() string {
	if e.Separator {
		return ""
	}
	if e.Category != "" {
		return strings.TrimSpace(e.Category)
	}
	if s, err := model.LookupStandardCategory(e.Standard); err == nil {
		return s.Name
	}
	return ""
}

// validatePath rejects absolute paths and traversal out of the project
// directory.
func validatePath(path string) error {
	clean := filepath.Clean(path)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("path must be relative to the project file: %s", path)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}
	if strings.ContainsAny(clean, ";&|$`<>\"'") {
		return fmt.Errorf("path contains dangerous characters: %s", path)
	}
	return nil
}

// Paths returns the files a watcher should follow for this project, the
// project file itself excluded.
func (f *File) Paths() []string {
	var out []string
	for _, p := range []string{f.ToolboxFile, f.WorkspaceFile} {
		if p != "" {
			out = append(out, filepath.Join(f.dir, p))
		}
	}
	return out
}

// ToolboxDocument builds the toolbox document the project describes, or
// nil when it describes none.
func (f *File) ToolboxDocument() (*document.Node, error) {
	if f.ToolboxFile != "" {
		return f.readDocument(f.ToolboxFile)
	}
	if len(f.Toolbox) == 0 {
		if f.Flyout == "" {
			return nil, nil
		}
		return parseField("flyout", f.Flyout)
	}

	root := document.NewRoot(document.ToolboxRootID)
	for i, e := range f.Toolbox {
		if e.Separator {
			root.Append(document.New(document.NodeSeparator))
			continue
		}
		cat, err := e.categoryNode()
		if err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeProjectInvalid,
				fmt.Sprintf("toolbox[%d]: %v", i, err)).WithContext("entry", i)
		}
		root.Append(cat)
	}
	return root, nil
}

func (e Entry) categoryNode() (*document.Node, error) {
	cat := document.New(document.NodeCategory, document.AttrName, e.name())
	colour, custom := e.Colour, e.Custom

	if e.Standard != "" {
		s, err := model.LookupStandardCategory(e.Standard)
		if err != nil {
			return nil, err
		}
		if colour == "" {
			colour = s.Colour
		}
		if custom == "" {
			custom = string(s.Custom)
		}
		blocks, err := s.Blocks()
		if err != nil {
			return nil, err
		}
		cat.Append(blocks.Children...)
	}

	if colour != "" {
		cat.SetAttr(document.AttrColour, colour)
	}
	if tag, err := model.ParseCustomTag(custom); err != nil {
		return nil, err
	} else if tag != model.CustomNone {
		cat.SetAttr(document.AttrCustom, string(tag))
	}

	if e.Blocks != "" {
		blocks, err := document.ParseFragment([]byte(e.Blocks))
		if err != nil {
			return nil, err
		}
		cat.Append(blocks.Children...)
	}
	return cat, nil
}

// WorkspaceDocument builds the pre-loaded workspace, or nil when the
// project has none.
func (f *File) WorkspaceDocument() (*document.Node, error) {
	if f.WorkspaceFile != "" {
		return f.readDocument(f.WorkspaceFile)
	}
	if f.Workspace == "" {
		return nil, nil
	}
	return parseField("workspace", f.Workspace)
}

func (f *File) readDocument(rel string) (*document.Node, error) {
	path := filepath.Join(f.dir, rel)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "read "+path, err)
	}
	doc, err := document.ParseFragment(data)
	if err != nil {
		return nil, errors.ErrMalformedDocument(err).WithContext("file", path)
	}
	return doc, nil
}

func parseField(field, src string) (*document.Node, error) {
	doc, err := document.ParseFragment([]byte(src))
	if err != nil {
		return nil, errors.ErrMalformedDocument(err).WithContext("field", field)
	}
	return doc, nil
}

// Apply replaces the controller's session with the project. The editing
// canvas ends on the first toolbox element.
func (f *File) Apply(ctx context.Context, c *controller.Controller) error {
	toolbox, err := f.ToolboxDocument()
	if err != nil {
		return err
	}
	workspace, err := f.WorkspaceDocument()
	if err != nil {
		return err
	}

	if err := c.Reset(ctx); err != nil {
		return err
	}
	if toolbox != nil {
		if err := c.ImportToolbox(ctx, toolbox); err != nil {
			return err
		}
	}
	if workspace != nil {
		if err := c.ImportWorkspace(ctx, workspace); err != nil {
			return err
		}
		if err := c.SetMode(ctx, controller.ModeToolbox); err != nil {
			return err
		}
	}
	if f.Options != nil {
		if err := c.SetOptions(ctx, *f.Options); err != nil {
			return err
		}
	}
	return nil
}

// Capture exports the controller's session as a project. Referenced files
// are not used: every document is written inline.
func Capture(ctx context.Context, c *controller.Controller, name string) (*File, error) {
	c.SaveStateFromWorkspace()
	toolbox, err := c.CanonicalToolbox(ctx)
	if err != nil {
		return nil, err
	}
	workspace, err := c.CanonicalWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	opts := c.Options()

	f := &File{Name: name, Options: &opts}
	if toolbox.HasCategories() {
		for _, child := range toolbox.Children {
			switch child.Name {
			case document.NodeSeparator:
				f.Toolbox = append(f.Toolbox, Entry{Separator: true})
			case document.NodeCategory:
				f.Toolbox = append(f.Toolbox, Entry{
					Category: child.AttrOr(document.AttrName, ""),
					Colour:   child.AttrOr(document.AttrColour, ""),
					Custom:   child.AttrOr(document.AttrCustom, ""),
					Blocks:   fragment(child.Children),
				})
			}
		}
	} else {
		f.Flyout = fragment(toolbox.Children)
	}
	f.Workspace = fragment(workspace.Children)
	return f, nil
}

func fragment(nodes []*document.Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(n.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Marshal encodes the project as YAML.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "encode project", err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInternalError, "encode project", err)
	}
	return buf.Bytes(), nil
}

// Save writes the project to path.
func (f *File) Save(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewIOError(errors.ErrCodeInternalError, "write project file "+path, err)
	}
	f.dir = filepath.Dir(path)
	return nil
}
