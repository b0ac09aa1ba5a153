package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"busbar/pkg/apperror"
	"busbar/pkg/logger"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    apperror.ErrorCode `json:"code"`
	Message string             `json:"message"`
	Status  int                `json:"status"`
	Field   string             `json:"field,omitempty"`
	Details map[string]any     `json:"details,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Warn("failed to encode response", "error", err)
	}
}

// writeError renders err as {"error": {...}}. Errors that are not
// application errors are logged and reported as INTERNAL.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		appErr = apperror.New(apperror.CodeInternal, "internal error")
	} else if appErr.HTTPStatus() >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "code", appErr.Code, "error", err)
	}

	status := appErr.HTTPStatus()
	body := errorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Status:  status,
		Field:   appErr.Field,

		RequestID: GetRequestID(r.Context()),
	}
	if len(appErr.Details) > 0 {
		body.Details = appErr.Details
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.New(apperror.CodeInvalidArgument, "request body is empty")
		}
		return apperror.Wrap(err, apperror.CodeInvalidArgument, fmt.Sprintf("invalid request body: %v", err))
	}
	if dec.More() {
		return apperror.New(apperror.CodeInvalidArgument, "request body must hold a single JSON object")
	}
	return nil
}

func intParam(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		return 0, apperror.NewWithField(apperror.CodeInvalidArgument, name+" must be an integer", name)
	}
	return v, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NewWithField(apperror.CodeInvalidArgument, name+" must be an integer", name)
	}
	return v, nil
}
