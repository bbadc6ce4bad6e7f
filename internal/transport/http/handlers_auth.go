package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"backoffice/internal/auth/local"
	"backoffice/internal/platform/middleware"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/httputil"
	"backoffice/pkg/requestcontext"
)

// AccountsHandler exposes a credential backend over JSON. Error bodies carry
// the backend's stable codes so remote clients can rebuild them.
type AccountsHandler struct {
	backend local.Backend
	tokens  middleware.TokenValidator
	logger  *slog.Logger
}

func NewAccountsHandler(backend local.Backend, tokens middleware.TokenValidator, logger *slog.Logger) *AccountsHandler {
	return &AccountsHandler{backend: backend, tokens: tokens, logger: logger}
}

func (h *AccountsHandler) Register(r chi.Router) {
	r.Post(local.PathLogin, h.HandleLogin)
	r.Post(local.PathRefresh, h.HandleRefresh)
	r.Post(local.PathPasswordResetAsk, h.HandlePasswordResetRequest)
	r.Post(local.PathPasswordReset, h.HandlePasswordReset)
	r.Post(local.PathStepUpVerify, h.HandleStepUpVerify)
	r.Post(local.PathBackupCodeRedeem, h.HandleBackupRedeem)

	// Step-up handles are opaque and never pass bearer validation.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.tokens, h.logger))
		r.Post(local.PathTOTPEnroll, h.HandleTOTPEnroll)
		r.Post(local.PathTOTPConfirm, h.HandleTOTPConfirm)
	})
}

func (h *AccountsHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req local.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid login request", err)
		return
	}

	res, err := h.backend.Login(ctx, req)
	if err != nil {
		h.writeError(w, r, "login rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *AccountsHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req local.RefreshRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid refresh request", err)
		return
	}
	if req.RefreshToken == "" {
		h.writeError(w, r, "invalid refresh request", dErrors.New(dErrors.CodeBadRequest, "refresh_token is required"))
		return
	}

	tokens, err := h.backend.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, "refresh rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokens)
}

// HandlePasswordResetRequest always answers 202 for a well-formed request.
func (h *AccountsHandler) HandlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req local.PasswordResetAsk
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid password reset request", err)
		return
	}
	if err := h.backend.RequestPasswordReset(r.Context(), req.Identifier); err != nil {
		h.writeError(w, r, "password reset request failed", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *AccountsHandler) HandlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req local.PasswordReset
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid password reset", err)
		return
	}
	if err := h.backend.ResetPassword(r.Context(), req.Token, req.NewSecret); err != nil {
		h.writeError(w, r, "password reset rejected", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountsHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"code", dErrors.CodeOf(err),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteError(w, err)
}
