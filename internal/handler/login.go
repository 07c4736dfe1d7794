package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/spanisami/cv-backend/internal/service"
)

// LoginService is what LoginHandler needs from service.LoginService.
type LoginService interface {
	RequestCode(ctx context.Context, rawPhone string) (*service.CodeIssue, error)
	VerifyCode(ctx context.Context, rawPhone, code string) (*service.LoginResult, error)
}

// LoginHandler serves the one-time-code login routes.
type LoginHandler struct {
	svc  LoginService
	errs errorWriter
}

func NewLoginHandler(svc LoginService, opts Options, logger *slog.Logger) *LoginHandler {
	return &LoginHandler{svc: svc, errs: opts.errorWriter(logger)}
}

type requestCodeRequest struct {
	Phone string `json:"phone"`
}

// RequestCodeResponse always carries the code. There is no separate demo
// switch: when SMS is not configured the response is the only channel.
type RequestCodeResponse struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Delivered bool   `json:"delivered"`
}

type verifyCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type VerifyCodeResponse struct {
	NewUser   bool    `json:"new_user"`
	ProfileID string  `json:"profile_id"`
	Name      *string `json:"name,omitempty"`
	Message   string  `json:"message"`
}

// HandleRequestCode handles POST /request_code.
func (h *LoginHandler) HandleRequestCode(w http.ResponseWriter, r *http.Request) {
	var req requestCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	issue, err := h.svc.RequestCode(r.Context(), req.Phone)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	msg := "Code generated"
	if issue.Delivered {
		msg = "Code sent via SMS"
	}
	writeJSON(w, http.StatusOK, RequestCodeResponse{
		Message:   msg,
		Code:      issue.Code,
		Delivered: issue.Delivered,
	})
}

// HandleVerifyCode handles POST /verify_code.
func (h *LoginHandler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}

	res, err := h.svc.VerifyCode(r.Context(), req.Phone, req.Code)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, VerifyCodeResponse{
		NewUser:   res.NewUser,
		ProfileID: res.ProfileID,
		Name:      res.Name,
		Message:   res.Message,
	})
}
