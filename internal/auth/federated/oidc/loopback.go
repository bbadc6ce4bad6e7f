package oidc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	dErrors "backoffice/pkg/domain-errors"
)

// AwaitCallback serves the redirect URL on the loopback interface until the
// provider redirects back, then completes flow. It is meant for CLI logins.
func (t *Transport) AwaitCallback(ctx context.Context, flow *Flow) error {
	redirect, err := url.Parse(t.oauth.RedirectURL)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("redirect url %q is not usable for a loopback listener", t.oauth.RedirectURL)
	}
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", redirect.Host, err)
	}

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "Login failed. You can close this window.", http.StatusBadRequest)
			finish(dErrors.New(dErrors.CodeInvalidCredentials, "provider returned "+e))
			return
		}
		if err := t.Complete(r.Context(), flow, q.Get("code"), q.Get("state")); err != nil {
			http.Error(w, "Login failed. You can close this window.", http.StatusBadRequest)
			finish(err)
			return
		}
		_, _ = w.Write([]byte("Login complete. You can close this window."))
		finish(nil)
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			finish(err)
		}
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return err
}
