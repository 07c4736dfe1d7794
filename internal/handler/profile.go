package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/spanisami/cv-backend/internal/model"
	"github.com/spanisami/cv-backend/internal/service"
)

// ProfileService is what ProfileHandler needs from service.ProfileService.
type ProfileService interface {
	Build(ctx context.Context, rawText, language string) (*model.Profile, error)
	GenerateCV(ctx context.Context, in service.ProfileInput, targetRole string) (string, error)
	Stats(ctx context.Context) (service.Stats, error)
}

// ProfileHandler serves profile building, CV generation and the counters.
type ProfileHandler struct {
	svc  ProfileService
	errs errorWriter
}

func NewProfileHandler(svc ProfileService, opts Options, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{svc: svc, errs: opts.errorWriter(logger)}
}

type buildProfileRequest struct {
	RawText           string `json:"raw_text"`
	PreferredLanguage string `json:"preferred_language"`
}

type BuildProfileResponse struct {
	ProfileID string `json:"profile_id"`
	Profile   string `json:"profile"`
}

// generateCVRequest keeps "profile" raw: it may be an object or a string,
// and service.ParseProfileInput decides which.
type generateCVRequest struct {
	Profile    json.RawMessage `json:"profile"`
	ProfileID  string          `json:"profile_id"`
	TargetRole string          `json:"target_role"`
}

type GenerateCVResponse struct {
	CV string `json:"cv"`
}

// HandleBuildProfile handles POST /build_profile.
func (h *ProfileHandler) HandleBuildProfile(w http.ResponseWriter, r *http.Request) {
	var req buildProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	p, err := h.svc.Build(r.Context(), req.RawText, req.PreferredLanguage)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, BuildProfileResponse{ProfileID: p.ID, Profile: p.Content})
}

// HandleGenerateCV handles POST /generate_cv.
func (h *ProfileHandler) HandleGenerateCV(w http.ResponseWriter, r *http.Request) {
	var req generateCVRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	in, err := service.ParseProfileInput(req.Profile, req.ProfileID)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	cv, err := h.svc.GenerateCV(r.Context(), in, req.TargetRole)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, GenerateCVResponse{CV: cv})
}

// HandleStats handles GET /stats.
func (h *ProfileHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
