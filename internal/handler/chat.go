package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/spanisami/cv-backend/internal/service"
)

type ChatService interface {
	Reply(ctx context.Context, req service.ChatRequest) (*service.ChatReply, error)
}

type ChatHandler struct {
	svc  ChatService
	errs errorWriter
}

func NewChatHandler(svc ChatService, opts Options, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, errs: opts.errorWriter(logger)}
}

type chatRequest struct {
	Message   string `json:"message"`
	Language  string `json:"language"`
	Mode      string `json:"mode"`
	SessionID string `json:"session_id"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

// HandleChat handles POST /chat.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	out, err := h.svc.Reply(r.Context(), service.ChatRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		Language:  req.Language,
		Mode:      req.Mode,
	})
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{SessionID: out.SessionID, Reply: out.Reply})
}
