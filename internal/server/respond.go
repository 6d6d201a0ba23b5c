package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/conneroisu/blockfactory/internal/errors"
)

type errorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Type    errors.ErrorType       `json:"type,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// statusFor maps an error to the HTTP status the API reports.
func statusFor(err error) int {
	fe, ok := errors.AsFactoryError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch fe.Code {
	case errors.ErrCodeUnknownElement, errors.ErrCodeUnknownBlock, errors.ErrCodeUnknownStandard:
		return http.StatusNotFound
	case errors.ErrCodeDuplicateName, errors.ErrCodeCustomTagTaken:
		return http.StatusConflict
	case errors.ErrCodeFileNotFound:
		return http.StatusNotFound
	}
	switch fe.Type {
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *PreviewServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.errHandler.Handle(r.Context(), err)
	}

	resp := errorResponse{Error: err.Error()}
	if fe, ok := errors.AsFactoryError(err); ok {
		resp.Error = fe.Message
		resp.Code = fe.Code
		resp.Type = fe.Type
		resp.Context = fe.Context
	}
	writeJSON(w, status, resp)
}

func badRequest(msg string) *errors.FactoryError {
	return errors.NewValidationError(errors.ErrCodeBadRequest, msg)
}

// decodeJSON reads a JSON request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, badRequest("read request body: " + err.Error())
	}
	return data, nil
}
