package handler

import (
	"context"
	"log/slog"
	"net/http"
)

type Greeter interface {
	Greet(ctx context.Context) (string, error)
}

// HealthHandler serves the liveness probe and the LLM connectivity check.
type HealthHandler struct {
	greeter Greeter
	errs    errorWriter
}

func NewHealthHandler(greeter Greeter, opts Options, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{greeter: greeter, errs: opts.errorWriter(logger)}
}

// HandleTest handles GET /test. It makes a real LLM call, so it is a
// credentials check, not a liveness probe.
func (h *HealthHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	msg, err := h.greeter.Greet(r.Context())
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// HandleHealthz handles GET /healthz without touching any collaborator.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
