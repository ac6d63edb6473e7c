package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"callguard/internal/consent"
	"callguard/internal/platform/middleware"
	"callguard/internal/transport/http/shared"
	dErrors "callguard/pkg/domain-errors"
)

// Service defines the consent ledger operations the handler needs.
type Service interface {
	RecordGrant(ctx context.Context, phone string, channel consent.Channel, source consent.Source, proof string, expiresAt *time.Time) (consent.Record, error)
	Revoke(ctx context.Context, phone string, channel consent.Channel) error
	HasActiveConsent(ctx context.Context, phone string, channel consent.Channel) (bool, error)
	History(ctx context.Context, phone string) ([]consent.Record, error)
}

// Handler exposes the consent ledger over HTTP for internal callers.
type Handler struct {
	consent      Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(consentSvc Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{consent: consentSvc, logger: logger, jwtValidator: jwtValidator}
}

// Register mounts the consent routes behind JWT auth.
func (h *Handler) Register(r chi.Router) {
	consentRouter := chi.NewRouter()
	consentRouter.Use(middleware.ContentTypeJSON)
	if h.jwtValidator != nil {
		consentRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	}
	consentRouter.Post("/grant", h.handleGrant)
	consentRouter.Post("/revoke", h.handleRevoke)
	consentRouter.Get("/history", h.handleHistory)
	consentRouter.Get("/active", h.handleActive)

	r.Mount("/consent", consentRouter)
}

type grantRequest struct {
	Phone     string     `json:"phone"`
	Channel   string     `json:"channel"`
	Source    string     `json:"source"`
	Proof     string     `json:"proof,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type recordResponse struct {
	ID        string     `json:"id"`
	Phone     string     `json:"phone"`
	Channel   string     `json:"channel"`
	GrantedAt time.Time  `json:"granted_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Source    string     `json:"source"`
	Proof     string     `json:"proof,omitempty"`
	Status    string     `json:"status"`
}

func toResponse(rec consent.Record, now time.Time) recordResponse {
	status := "inactive"
	if rec.IsActive(now) {
		status = "active"
	}
	return recordResponse{
		ID:        rec.ID,
		Phone:     rec.SubjectPhone,
		Channel:   string(rec.Channel),
		GrantedAt: rec.GrantedAt,
		RevokedAt: rec.RevokedAt,
		ExpiresAt: rec.ExpiresAt,
		Source:    string(rec.Source),
		Proof:     rec.Proof,
		Status:    status,
	}
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid grant request",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rec, err := h.consent.RecordGrant(ctx, req.Phone, consent.Channel(req.Channel), consent.Source(req.Source), req.Proof, req.ExpiresAt)
	if err != nil {
		h.writeServiceError(w, r, "grant consent", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(rec, time.Now()))
}

type revokeRequest struct {
	Phone   string `json:"phone"`
	Channel string `json:"channel"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.consent.Revoke(ctx, req.Phone, consent.Channel(req.Channel)); err != nil {
		h.writeServiceError(w, r, "revoke consent", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	phone := r.URL.Query().Get("phone")

	records, err := h.consent.History(ctx, phone)
	if err != nil {
		h.writeServiceError(w, r, "consent history", err)
		return
	}

	now := time.Now()
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toResponse(rec, now))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	phone := r.URL.Query().Get("phone")
	channel := consent.Channel(r.URL.Query().Get("channel"))

	if err := consent.ValidatePhone(phone); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := consent.ValidateChannel(channel); err != nil {
		shared.WriteError(w, err)
		return
	}

	active, err := h.consent.HasActiveConsent(ctx, phone, channel)
	if err != nil {
		h.writeServiceError(w, r, "consent lookup", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	if dErrors.Is(err, dErrors.CodeInvalidInput) || dErrors.Is(err, dErrors.CodeBadRequest) {
		shared.WriteError(w, err)
		return
	}
	h.logger.ErrorContext(ctx, "consent operation failed",
		"op", op,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
	shared.WriteError(w, err)
}
