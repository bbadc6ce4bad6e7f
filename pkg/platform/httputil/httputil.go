// Package httputil writes JSON responses and coded errors for chi handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "backoffice/pkg/domain-errors"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to an HTTP status and an ErrorBody.
// Internal errors never leak their description.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := ErrorBody{Error: string(code)}
	var de *dErrors.Error
	if code != dErrors.CodeInternal && errors.As(err, &de) {
		body.ErrorDescription = de.Message
	}
	WriteJSON(w, StatusFor(code), body)
}

// StatusFor returns the HTTP status used for a domain code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput, dErrors.CodeValidation,
		dErrors.CodeWeakSecret, dErrors.CodeInvalidResetToken:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized, dErrors.CodeInvalidCredentials, dErrors.CodeTokenExpired,
		dErrors.CodeTwoFactorMismatch, dErrors.CodeTwoFactorExhausted, dErrors.CodeTwoFactorAbandoned:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeUseFederatedLogin:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeChallengeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeAccountLocked:
		return http.StatusLocked
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON decodes a request body into dst, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid JSON body")
	}
	return nil
}
