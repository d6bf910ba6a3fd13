// Package httptransport assembles the feature routers and the operational
// endpoints into the service's single HTTP surface.
package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"referralintake/internal/transport/http/shared"
)

// Registrar is implemented by every feature handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter wires the feature handlers plus /healthz and /metrics. checks may
// be empty when the service runs entirely on in-memory stores.
func NewRouter(checks map[string]HealthChecker, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", healthHandler(checks))
	r.Handle("/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failures := map[string]string{}
		for name, check := range checks {
			if err := check.Health(r.Context()); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":   "degraded",
				"failures": failures,
			})
			return
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
