// Package httpbackend is a JSON-over-HTTP client for a remote credential
// backend exposing the local.Backend contract.
package httpbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"backoffice/internal/auth/local"
	dErrors "backoffice/pkg/domain-errors"
	"backoffice/pkg/platform/httputil"
	"backoffice/pkg/platform/sentinel"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Client implements local.Backend against a remote base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client, e.g. to add transport
// middleware. Its timeout is left as configured.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "backend base URL is required")
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Login(ctx context.Context, req local.LoginRequest) (*local.LoginResponse, error) {
	var res local.LoginResponse
	if err := c.post(ctx, local.PathLogin, "", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*local.TokenBundle, error) {
	var res local.TokenBundle
	if err := c.post(ctx, local.PathRefresh, "", local.RefreshRequest{RefreshToken: refreshToken}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, identifier string) error {
	return c.post(ctx, local.PathPasswordResetAsk, "", local.PasswordResetAsk{Identifier: identifier}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, newSecret string) error {
	return c.post(ctx, local.PathPasswordReset, "", local.PasswordReset{Token: token, NewSecret: newSecret}, nil)
}

func (c *Client) BeginTOTPEnrollment(ctx context.Context, accessToken string) (*local.TOTPEnrollment, error) {
	var res local.TOTPEnrollment
	if err := c.post(ctx, local.PathTOTPEnroll, accessToken, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ConfirmTOTPEnrollment(ctx context.Context, accessToken, code string) ([]string, error) {
	var res local.BackupCodes
	if err := c.post(ctx, local.PathTOTPConfirm, accessToken, local.CodeRequest{Code: code}, &res); err != nil {
		return nil, err
	}
	return res.BackupCodes, nil
}

func (c *Client) VerifyStepUp(ctx context.Context, stepUpToken, code string) (*local.TokenBundle, error) {
	return c.completeStepUp(ctx, local.PathStepUpVerify, stepUpToken, code)
}

func (c *Client) RedeemBackupCode(ctx context.Context, stepUpToken, code string) (*local.TokenBundle, error) {
	return c.completeStepUp(ctx, local.PathBackupCodeRedeem, stepUpToken, code)
}

func (c *Client) completeStepUp(ctx context.Context, path, stepUpToken, code string) (*local.TokenBundle, error) {
	var res local.TokenBundle
	if err := c.post(ctx, path, "", local.StepUpRequest{StepUpToken: stepUpToken, Code: code}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// post sends body as JSON and decodes a 2xx response into out when out is
// non-nil. Coded error bodies come back as *dErrors.Error; anything else is
// reported as an unavailable backend.
func (c *Client) post(ctx context.Context, path, bearer string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w: %w", path, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w: %w", path, sentinel.ErrUnavailable, err)
	}
	return nil
}

func decodeError(path string, resp *http.Response) error {
	var body httputil.ErrorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("%s returned %s: %w", path, resp.Status, sentinel.ErrUnavailable)
	}
	code := dErrors.Code(body.Error)
	if code == dErrors.CodeInternal {
		return fmt.Errorf("%s returned %s: %w", path, resp.Status, sentinel.ErrUnavailable)
	}
	msg := body.ErrorDescription
	if msg == "" {
		msg = string(code)
	}
	return dErrors.New(code, msg)
}
