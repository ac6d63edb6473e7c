package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"callguard/contracts/events"
	"callguard/internal/platform/metrics"
	"callguard/internal/platform/middleware"
)

// Sink receives verified provider events. The business handlers behind it are
// external collaborators; the engine's obligation ends at verdict + handoff.
type Sink interface {
	HandleProviderEvent(ctx context.Context, event events.ProviderEvent) error
}

// Handler exposes the inbound webhook endpoint.
type Handler struct {
	verifier *Verifier
	sink     Sink
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewHandler(verifier *Verifier, sink Sink, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{verifier: verifier, sink: sink, logger: logger, metrics: m}
}

// Register mounts the webhook routes. No auth middleware here: provider
// authenticity is the signature's job.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/provider", h.handleProviderWebhook)
}

func (h *Handler) handleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		h.reject(w, ctx, requestID, ReasonUnreadableBody)
		return
	}

	verdict := h.verifier.VerifyProviderSignature(Event{
		RawBody:    rawBody,
		Signature:  r.Header.Get(events.HeaderSignature),
		Timestamp:  r.Header.Get(events.HeaderTimestamp),
		ReceivedAt: time.Now(),
	})
	if !verdict.Valid {
		h.reject(w, ctx, requestID, verdict.Reason)
		return
	}

	if h.metrics != nil {
		h.metrics.WebhooksAccepted.Inc()
	}

	var event events.ProviderEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		// Signature verified but the payload is not our contract.
		h.logger.WarnContext(ctx, "verified webhook with undecodable payload",
			"request_id", requestID,
			"error", err.Error(),
		)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_webhook"}`))
		return
	}

	if h.sink != nil {
		if err := h.sink.HandleProviderEvent(ctx, event); err != nil {
			h.logger.ErrorContext(ctx, "provider event handoff failed",
				"request_id", requestID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"internal"}`))
			return
		}
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

// reject answers a uniform 400 so remote callers learn nothing about which
// check failed. The specific reason goes to logs and metrics only.
func (h *Handler) reject(w http.ResponseWriter, ctx context.Context, requestID string, reason Reason) {
	if h.metrics != nil {
		h.metrics.WebhooksRejected.WithLabelValues(string(reason)).Inc()
	}
	h.logger.WarnContext(ctx, "webhook rejected",
		"request_id", requestID,
		"reason", string(reason),
	)
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"error":"invalid_webhook"}`))
}
