package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"backoffice/internal/platform/middleware"
	"backoffice/pkg/platform/httputil"
)

// Registrar mounts a handler's routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires the common middleware chain, health and metrics endpoints,
// then every registrar. metricsHandler may be nil.
func NewRouter(logger *slog.Logger, metricsHandler http.Handler, registrars ...Registrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	for _, reg := range registrars {
		reg.Register(r)
	}
	return r
}
