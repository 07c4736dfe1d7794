package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//   writeJSON(w, http.StatusOK, data)
//   h.errs.write(w, r, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "profile not found with id abc123", "code": "not_found"}
//
// "error" is the sentence a browser client shows the user as is; "code" is
// for programs. Upstream failures may carry the provider's own words:
//   {"error": "Failed to generate CV", "code": "upstream_error", "details": "..."}
//
// "details" is only sent when the server runs with EXPOSE_UPSTREAM_ERRORS=true.
// Provider messages can contain account ids, quota numbers or bits of the
// prompt, so by default they stay in the logs.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/spanisami/cv-backend/internal/apperror"
)

// maxBodyBytes caps JSON request bodies. Self-descriptions are short.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable summary
	Code    string `json:"code"`              // Machine-readable error type (e.g., "not_found")
	Details string `json:"details,omitempty"` // Provider detail, opt-in
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// You MUST set headers and status code BEFORE writing the body.
// Once you call w.Write() (which Encode does internally), the headers are sent.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// headers are already out, all we can do is log
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// decodeJSON reads a JSON body into dst. An empty body decodes as {} so the
// handler reports the missing field rather than a parse error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperror.ValidationFailed("body", "request body is too large")
		}
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return nil
}

// errorWriter maps domain errors to HTTP responses.
type errorWriter struct {
	exposeDetails bool
	logger        *slog.Logger
}

// write maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	ErrValidation, ErrInvalidCredential → 400
//	ErrNotFound                         → 404
//	ErrConflict                         → 409
//	ErrUpstream                         → 500
//	ErrUnavailable                      → 503
//	ErrUpstreamTimeout                  → 504
//
// errors.Is() walks the entire error chain (via Unwrap()), so a service may
// wrap an AppError with fmt.Errorf("...: %w", err) and still map correctly.
func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError

	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrInvalidCredential):
			status = http.StatusBadRequest // 400
			errorType = "invalid_code"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict // 409
			errorType = "conflict"
		case errors.Is(err, apperror.ErrUpstreamTimeout):
			status = http.StatusGatewayTimeout // 504
			errorType = "upstream_timeout"
		case errors.Is(err, apperror.ErrUpstream):
			status = http.StatusInternalServerError // 500
			errorType = "upstream_error"
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusServiceUnavailable // 503
			errorType = "unavailable"
		}

		resp := ErrorResponse{
			Error: appErr.Message,
			Code:  errorType,
		}
		// timeouts carry a fixed retry hint, never provider text
		if e.exposeDetails || errors.Is(err, apperror.ErrUpstreamTimeout) {
			resp.Details = appErr.Details
		}
		writeJSON(w, status, resp)
		return
	}

	// Unknown error: log it with the request id, return a generic 500.
	// The raw message might contain SQL, file paths or other internals.
	if e.logger != nil {
		e.logger.Error("unhandled error",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "An internal error occurred",
		Code:  "internal_error",
	})
}
