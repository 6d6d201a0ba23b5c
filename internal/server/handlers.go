package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/blockfactory/internal/controller"
	"github.com/conneroisu/blockfactory/internal/document"
	"github.com/conneroisu/blockfactory/internal/errors"
	"github.com/conneroisu/blockfactory/internal/model"
	"github.com/conneroisu/blockfactory/internal/preview"
	"github.com/conneroisu/blockfactory/internal/version"
)

// SessionState is the response of every call that changes the session.
type SessionState struct {
	Mode        controller.Mode        `json:"mode"`
	Selected    string                 `json:"selected"`
	Affordances controller.Affordances `json:"affordances"`
	Elements    []model.ElementInfo    `json:"elements"`
	Unsaved     UnsavedState           `json:"unsaved"`
	BlockTypes  []string               `json:"blockTypes"`
}

// UnsavedState reports which exports are out of date.
type UnsavedState struct {
	Toolbox   bool `json:"toolbox"`
	Workspace bool `json:"workspace"`
}

// CreatedResponse carries the id of a new element with the new state.
type CreatedResponse struct {
	ID      string       `json:"id"`
	Session SessionState `json:"session"`
}

// CanvasState is the editing canvas as it is now.
type CanvasState struct {
	Document  string   `json:"document"`
	Templates []string `json:"templates"`
}

// PreviewState is the latest published preview.
type PreviewState struct {
	Snapshot *preview.Snapshot `json:"snapshot,omitempty"`
	Stats    preview.Stats     `json:"stats"`
	Clients  int               `json:"clients"`
}

// Must be called with s.mu held.
func (s *PreviewServer) state() SessionState {
	elems := s.ctrl.Elements()
	if elems == nil {
		elems = []model.ElementInfo{}
	}
	types := s.ctrl.Model().UsedBlockTypes()
	if types == nil {
		types = []string{}
	}
	return SessionState{
		Mode:        s.ctrl.Mode(),
		Selected:    s.ctrl.SelectedID(),
		Affordances: s.ctrl.Affordances(),
		Elements:    elems,
		Unsaved: UnsavedState{
			Toolbox:   s.ctrl.HasUnsavedToolboxChanges(),
			Workspace: s.ctrl.HasUnsavedPreloadChanges(),
		},
		BlockTypes: types,
	}
}

// mutate runs fn under the session lock and answers with the new state.
func (s *PreviewServer) mutate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) error) {
	s.mu.Lock()
	err := fn(r.Context())
	state := s.state()
	s.mu.Unlock()

	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// create is mutate for operations that make a new element.
func (s *PreviewServer) create(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (string, error)) {
	s.mu.Lock()
	id, err := fn(r.Context())
	state := s.state()
	s.mu.Unlock()

	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id, Session: state})
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"clients":   s.ws.ClientCount(),
	})
}

func (s *PreviewServer) handleSession(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(context.Context) error { return nil })
}

func (s *PreviewServer) handleElements(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	elems := s.ctrl.Elements()
	s.mu.Unlock()
	if elems == nil {
		elems = []model.ElementInfo{}
	}
	writeJSON(w, http.StatusOK, elems)
}

func (s *PreviewServer) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.ctrl.Reset)
}

func (s *PreviewServer) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(context.Context) error { return nil })
}

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *PreviewServer) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	mode, err := controller.ParseMode(req.Mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(ctx context.Context) error { return s.ctrl.SetMode(ctx, mode) })
}

type categoryRequest struct {
	Name   string `json:"name"`
	Colour string `json:"colour,omitempty"`
	Custom string `json:"custom,omitempty"`
}

func (s *PreviewServer) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := controller.ValidateColour(req.Colour); err != nil {
		s.writeError(w, r, err)
		return
	}
	tag, err := parseCustom(req.Custom)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.create(w, r, func(ctx context.Context) (string, error) {
		if tag != model.CustomNone && s.tagTaken(tag) {
			return "", errors.ErrCustomTagTaken(string(tag))
		}
		id, err := s.ctrl.CreateCategory(ctx, req.Name)
		if err != nil {
			return "", err
		}
		if req.Colour != "" {
			if err := s.ctrl.SetColor(ctx, id, req.Colour); err != nil {
				return id, err
			}
		}
		if tag != model.CustomNone {
			if err := s.ctrl.SetCustomTag(ctx, id, tag); err != nil {
				return id, err
			}
		}
		return id, nil
	})
}

func (s *PreviewServer) tagTaken(tag model.CustomTag) bool {
	switch tag {
	case model.CustomVariable:
		return s.ctrl.Model().HasVariableCategory()
	case model.CustomProcedure:
		return s.ctrl.Model().HasProcedureCategory()
	}
	return false
}

func (s *PreviewServer) handleAddSeparator(w http.ResponseWriter, r *http.Request) {
	s.create(w, r, s.ctrl.AddSeparator)
}

type standardRequest struct {
	Name string `json:"name,omitempty"`
	All  bool   `json:"all,omitempty"`
}

func (s *PreviewServer) handleLoadStandard(w http.ResponseWriter, r *http.Request) {
	var req standardRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	switch {
	case req.All && req.Name != "":
		s.writeError(w, r, badRequest("give either a name or all, not both"))
	case req.All:
		s.mutate(w, r, s.ctrl.LoadStandardToolbox)
	default:
		s.create(w, r, func(ctx context.Context) (string, error) {
			return s.ctrl.LoadStandardCategory(ctx, req.Name)
		})
	}
}

type updateRequest struct {
	Name   *string `json:"name,omitempty"`
	Colour *string `json:"colour,omitempty"`
	Custom *string `json:"custom,omitempty"`
	Index  *int    `json:"index,omitempty"`
}

func (s *PreviewServer) handleUpdateElement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var tag model.CustomTag
	if req.Custom != nil {
		var err error
		if tag, err = parseCustom(*req.Custom); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if req.Colour != nil {
		if err := controller.ValidateColour(*req.Colour); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	s.mutate(w, r, func(ctx context.Context) error {
		m := s.ctrl.Model()
		if m.IndexByID(id) < 0 {
			return errors.ErrUnknownElement(id)
		}
		if req.Index != nil {
			if n := m.Len(); *req.Index < 0 || *req.Index >= n {
				return badRequest("index out of range").WithContext("index", *req.Index).WithContext("length", n)
			}
		}
		if req.Name != nil || req.Colour != nil || req.Custom != nil {
			var tagp *model.CustomTag
			if req.Custom != nil {
				tagp = &tag
			}
			if err := m.CheckCategoryEdit(id, req.Name, tagp); err != nil {
				return err
			}
		}

		if req.Index != nil {
			if err := s.ctrl.MoveElement(ctx, id, *req.Index); err != nil {
				return err
			}
		}
		if req.Name != nil {
			if err := s.ctrl.RenameElement(ctx, id, *req.Name); err != nil {
				return err
			}
		}
		if req.Colour != nil {
			if err := s.ctrl.SetColor(ctx, id, *req.Colour); err != nil {
				return err
			}
		}
		if req.Custom != nil {
			if err := s.ctrl.SetCustomTag(ctx, id, tag); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PreviewServer) handleRemoveElement(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(ctx context.Context) error { return s.ctrl.RemoveElement(ctx, id) })
}

func (s *PreviewServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(ctx context.Context) error {
		if s.ctrl.Model().IndexByID(id) < 0 {
			return errors.ErrUnknownElement(id)
		}
		return s.ctrl.SwitchTo(ctx, id)
	})
}

func (s *PreviewServer) handleCanvas(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc := s.ctrl.CanvasDocument()
	templates := s.ctrl.CanvasTemplates()
	s.mu.Unlock()

	data, err := document.MarshalXML(doc)
	if err != nil {
		s.writeError(w, r, errors.NewInternalError(errors.ErrCodeInternalError, "serialize canvas", err))
		return
	}
	if templates == nil {
		templates = []string{}
	}
	writeJSON(w, http.StatusOK, CanvasState{Document: string(data), Templates: templates})
}

func (s *PreviewServer) handleReplaceCanvas(w http.ResponseWriter, r *http.Request) {
	doc, err := s.readDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(ctx context.Context) error { return s.ctrl.ReplaceCanvas(ctx, doc) })
}

func (s *PreviewServer) handleAppendBlocks(w http.ResponseWriter, r *http.Request) {
	doc, err := s.readDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(ctx context.Context) error { return s.ctrl.AppendBlocks(ctx, doc) })
}

func (s *PreviewServer) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(ctx context.Context) error { return s.ctrl.DeleteBlock(ctx, id) })
}

func (s *PreviewServer) handleMarkTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(ctx context.Context) error { return s.ctrl.MarkShadow(ctx, id) })
}

func (s *PreviewServer) handleUnmarkTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(ctx context.Context) error { return s.ctrl.UnmarkShadow(ctx, id) })
}

func (s *PreviewServer) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	opts := s.ctrl.ExportInjectionOptions()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, opts)
}

func (s *PreviewServer) handleSetOptions(w http.ResponseWriter, r *http.Request) {
	var opts model.InjectionOptions
	if err := decodeJSON(r, &opts); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(ctx context.Context) error { return s.ctrl.SetOptions(ctx, opts) })
}

func (s *PreviewServer) handleExport(w http.ResponseWriter, r *http.Request) {
	what := chi.URLParam(r, "what")
	format, err := s.format(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	s.mu.Lock()
	switch what {
	case "toolbox":
		var doc *document.Node
		if doc, err = s.ctrl.ExportToolboxDocument(r.Context()); err == nil {
			err = document.Encode(&buf, doc, format)
		}
	case "workspace":
		var doc *document.Node
		if doc, err = s.ctrl.ExportWorkspaceDocument(r.Context()); err == nil {
			err = document.Encode(&buf, doc, format)
		}
	case "options":
		err = encodeOptions(&buf, s.ctrl.ExportInjectionOptions(), format)
	default:
		err = errors.NewValidationError(errors.ErrCodeBadRequest, "unknown export: "+what).
			WithContext("available", []string{"toolbox", "workspace", "options"})
	}
	s.mu.Unlock()

	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *PreviewServer) handleImport(w http.ResponseWriter, r *http.Request) {
	what := chi.URLParam(r, "what")
	doc, err := s.readDocument(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	switch what {
	case "toolbox":
		s.mutate(w, r, func(ctx context.Context) error { return s.ctrl.ImportToolbox(ctx, doc) })
	case "workspace":
		s.mutate(w, r, func(ctx context.Context) error { return s.ctrl.ImportWorkspace(ctx, doc) })
	default:
		s.writeError(w, r, errors.NewValidationError(errors.ErrCodeBadRequest, "unknown import: "+what).
			WithContext("available", []string{"toolbox", "workspace"}))
	}
}

func (s *PreviewServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	policy := s.ctrl.Preview()
	s.mu.Lock()
	stats := policy.Stats()
	s.mu.Unlock()

	state := PreviewState{Stats: stats, Clients: s.ws.ClientCount()}
	if snap, ok := policy.Last(); ok {
		state.Snapshot = &snap
	}
	writeJSON(w, http.StatusOK, state)
}

// format reads ?format=, falling back to the configured export format.
func (s *PreviewServer) format(r *http.Request) (document.Format, error) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = s.config.Export.Format
	}
	f, err := document.ParseFormat(name)
	if err != nil {
		return "", badRequest(err.Error())
	}
	return f, nil
}

func (s *PreviewServer) readDocument(r *http.Request) (*document.Node, error) {
	format, err := s.format(r)
	if err != nil {
		return nil, err
	}
	data, err := readBody(r)
	if err != nil {
		return nil, err
	}
	var doc *document.Node
	if format == document.FormatXML {
		doc, err = document.ParseFragment(data)
	} else {
		doc, err = document.Decode(data, format)
	}
	if err != nil {
		return nil, errors.ErrMalformedDocument(err)
	}
	return doc, nil
}

func parseCustom(s string) (model.CustomTag, error) {
	tag, err := model.ParseCustomTag(s)
	if err != nil {
		return "", errors.NewValidationError(errors.ErrCodeBadRequest, err.Error())
	}
	return tag, nil
}

func encodeOptions(buf *bytes.Buffer, opts model.InjectionOptions, format document.Format) error {
	switch format {
	case document.FormatJSON:
		enc := json.NewEncoder(buf)
		enc.SetIndent("", "  ")
		return enc.Encode(opts)
	case document.FormatYAML:
		enc := yaml.NewEncoder(buf)
		enc.SetIndent(2)
		if err := enc.Encode(opts); err != nil {
			return err
		}
		return enc.Close()
	default:
		return badRequest("injection options export as json or yaml")
	}
}

func contentType(f document.Format) string {
	switch f {
	case document.FormatJSON:
		return "application/json"
	case document.FormatYAML:
		return "application/yaml"
	default:
		return "application/xml"
	}
}
