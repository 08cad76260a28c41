package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	svcerrors "github.com/R3E-Network/vault_portal/internal/errors"
	"github.com/R3E-Network/vault_portal/internal/logging"
)

const maxRequestBody = 1 << 20

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a plain error message.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteServiceError writes err using its ServiceError mapping, or 500 otherwise.
// The underlying cause is never written to the client.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{TraceID: logging.GetTraceID(r.Context())}

	se, ok := svcerrors.As(err)
	if !ok {
		resp.Error = "internal error"
		resp.Code = string(svcerrors.CodeInternal)
		WriteJSON(w, http.StatusInternalServerError, resp)
		return
	}

	resp.Error = se.Message
	resp.Code = string(se.Code)
	resp.Details = se.Details
	WriteJSON(w, se.HTTPStatus, resp)
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: string(svcerrors.CodeBadRequest)})
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: msg, Code: string(svcerrors.CodeNotFound)})
}

// InternalError writes a 500 response.
func InternalError(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: msg, Code: string(svcerrors.CodeInternal)})
}

// DecodeJSON decodes the request body into v, writing a 400 on failure.
// It returns false when the handler should stop.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			BadRequest(w, "request body required")
			return false
		}
		BadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
