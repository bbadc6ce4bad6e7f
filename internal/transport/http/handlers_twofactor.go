package httptransport

import (
	"context"
	"net/http"

	"backoffice/internal/auth/local"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/httputil"
	"backoffice/pkg/requestcontext"
)

func (h *AccountsHandler) HandleTOTPEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	enrollment, err := h.backend.BeginTOTPEnrollment(ctx, requestcontext.BearerToken(ctx))
	if err != nil {
		h.writeError(w, r, "totp enrolment failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, enrollment)
}

func (h *AccountsHandler) HandleTOTPConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req local.CodeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid totp confirmation", err)
		return
	}

	codes, err := h.backend.ConfirmTOTPEnrollment(ctx, requestcontext.BearerToken(ctx), req.Code)
	if err != nil {
		h.writeError(w, r, "totp confirmation rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, local.BackupCodes{BackupCodes: codes})
}

func (h *AccountsHandler) HandleStepUpVerify(w http.ResponseWriter, r *http.Request) {
	h.completeStepUp(w, r, h.backend.VerifyStepUp)
}

func (h *AccountsHandler) HandleBackupRedeem(w http.ResponseWriter, r *http.Request) {
	h.completeStepUp(w, r, h.backend.RedeemBackupCode)
}

func (h *AccountsHandler) completeStepUp(w http.ResponseWriter, r *http.Request, complete func(ctx context.Context, stepUpToken, code string) (*local.TokenBundle, error)) {
	var req local.StepUpRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "invalid two-factor verification", err)
		return
	}
	if req.StepUpToken == "" || req.Code == "" {
		h.writeError(w, r, "invalid two-factor verification", dErrors.New(dErrors.CodeBadRequest, "step_up_token and code are required"))
		return
	}

	tokens, err := complete(r.Context(), req.StepUpToken, req.Code)
	if err != nil {
		h.writeError(w, r, "two-factor verification rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokens)
}
