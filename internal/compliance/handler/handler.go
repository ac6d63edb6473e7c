package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"callguard/internal/audit"
	"callguard/internal/compliance"
	"callguard/internal/consent"
	"callguard/internal/platform/middleware"
	"callguard/internal/transport/http/shared"
	dErrors "callguard/pkg/domain-errors"
)

// Gate is the compliance decision surface the handler fronts.
type Gate interface {
	CanCall(ctx context.Context, phone string, now time.Time, timezone string) (compliance.Decision, error)
}

// AuditReader lists recorded call attempts for operators.
type AuditReader interface {
	List(ctx context.Context, phone string) ([]audit.CallAttempt, error)
}

// Handler exposes the compliance gate and its audit trail. Dialer logic must
// call /calls/authorize before every outbound attempt and treat a deny as a
// hard stop.
type Handler struct {
	gate         Gate
	auditReader  AuditReader
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(gate Gate, auditReader AuditReader, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{gate: gate, auditReader: auditReader, logger: logger, jwtValidator: jwtValidator}
}

func (h *Handler) Register(r chi.Router) {
	gateRouter := chi.NewRouter()
	gateRouter.Use(middleware.ContentTypeJSON)
	if h.jwtValidator != nil {
		gateRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	}
	gateRouter.Post("/calls/authorize", h.handleAuthorize)
	gateRouter.Get("/audit/calls", h.handleAuditList)

	r.Mount("/", gateRouter)
}

type authorizeRequest struct {
	Phone    string     `json:"phone"`
	Timezone string     `json:"timezone"`
	At       *time.Time `json:"at,omitempty"`
}

type authorizeResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Timezone == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "timezone is required"))
		return
	}
	at := time.Now()
	if req.At != nil {
		at = *req.At
	}

	decision, err := h.gate.CanCall(ctx, req.Phone, at, req.Timezone)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInvalidInput) {
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "gate evaluation failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, authorizeResponse{
		Allowed: decision.Allowed,
		Reason:  string(decision.Reason),
	})
}

type attemptResponse struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"`
	AttemptedAt time.Time `json:"attempted_at"`
	Timezone    string    `json:"timezone"`
	Outcome     string    `json:"outcome"`
	DenyReason  string    `json:"deny_reason"`
}

func (h *Handler) handleAuditList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	phone := r.URL.Query().Get("phone")
	if err := consent.ValidatePhone(phone); err != nil {
		shared.WriteError(w, err)
		return
	}

	attempts, err := h.auditReader.List(ctx, phone)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit list failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptResponse{
			ID:          a.ID,
			Phone:       a.SubjectPhone,
			AttemptedAt: a.AttemptedAt,
			Timezone:    a.Timezone,
			Outcome:     string(a.Outcome),
			DenyReason:  string(a.DenyReason),
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"attempts": out})
}
