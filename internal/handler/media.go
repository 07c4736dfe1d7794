package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spanisami/cv-backend/internal/apperror"
	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/storage"
)

const (
	// MaxUploadBytes caps a single upload.
	MaxUploadBytes = 20 << 20
	// multipart parts beyond this spill to temp files
	uploadMemory = 8 << 20
)

type MediaService interface {
	Upload(ctx context.Context, profileID, filename, contentType string, r io.Reader, size int64) (*model.MediaFile, error)
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// MediaHandler serves file uploads and signed download links.
type MediaHandler struct {
	svc  MediaService
	errs errorWriter
}

func NewMediaHandler(svc MediaService, opts Options, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{svc: svc, errs: opts.errorWriter(logger)}
}

type SignedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// HandleUpload handles POST /upload (multipart/form-data).
//
// Form fields:
//
//	file        the file (required)
//	profile_id  profile to attach the upload to (optional)
func (h *MediaHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.errs.write(w, r, apperror.ValidationFailed("file", "file is too large"))
			return
		}
		h.errs.write(w, r, apperror.ValidationFailed("file", "expected a multipart form with a file field"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errs.write(w, r, apperror.ValidationFailed("file", "file is required"))
		return
	}
	defer file.Close()

	out, err := h.svc.Upload(r.Context(),
		r.FormValue("profile_id"),
		header.Filename,
		header.Header.Get("Content-Type"),
		file,
		header.Size,
	)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// HandleSignedURL handles GET /files/signed_url?file_name=&expires_in=.
// expires_in is in seconds and defaults to one hour.
func (h *MediaHandler) HandleSignedURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var ttl time.Duration
	if raw := q.Get("expires_in"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			h.errs.write(w, r, apperror.ValidationFailed("expires_in", "expires_in must be a whole number of seconds"))
			return
		}
		if secs <= 0 {
			h.errs.write(w, r, apperror.ValidationFailed("expires_in", "expires_in must be positive"))
			return
		}
		// bounded before converting: a huge count would overflow Duration
		if secs > int(storage.MaxSignedURLTTL/time.Second) {
			h.errs.write(w, r, apperror.ValidationFailed("expires_in", "expires_in must be at most 7 days"))
			return
		}
		ttl = time.Duration(secs) * time.Second
	}

	u, err := h.svc.SignedURL(r.Context(), q.Get("file_name"), ttl)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SignedURLResponse{SignedURL: u})
}
