package httptransport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"callguard/internal/platform/middleware"
	"callguard/internal/retention"
	"callguard/internal/transport/http/shared"
)

// Registrar is implemented by each domain handler so the router stays a thin
// composition point with no business logic of its own.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires all public endpoints plus health, metrics, and the manual
// retention sweep trigger.
func NewRouter(logger *slog.Logger, sweeper *retention.Sweeper, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	for _, registrar := range registrars {
		registrar.Register(r)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	if sweeper != nil {
		r.Post("/retention/sweep", handleSweep(sweeper))
	}

	return r
}

func handleSweep(sweeper *retention.Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := sweeper.Sweep(r.Context(), time.Now())
		if errors.Is(err, retention.ErrSweepInProgress) {
			shared.WriteJSON(w, http.StatusConflict, map[string]string{"error": "sweep_in_progress"})
			return
		}
		if err != nil {
			shared.WriteError(w, err)
			return
		}

		failed := make(map[string]string, len(result.Errors))
		for category, categoryErr := range result.Errors {
			failed[string(category)] = categoryErr.Error()
		}
		shared.WriteJSON(w, http.StatusOK, map[string]any{
			"purged": result.Purged,
			"failed": failed,
		})
	}
}
