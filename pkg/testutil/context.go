package testutil

import (
	"context"
	"net/http"
	"time"

	"backoffice/pkg/requestcontext"
)

// WithBearer sets the Authorization header the bearer middleware reads.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// FixedContext returns a context pinned to now with a request ID, as
// middleware would produce for a real request.
func FixedContext(now time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), now)
	return requestcontext.WithRequestID(ctx, "test-request")
}
