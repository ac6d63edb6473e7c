// Package compliance composes the calling-hours policy and the consent ledger
// into a single allow/deny decision per outbound call attempt. Callers must
// treat a deny as a hard stop, not a warning.
package compliance

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"callguard/internal/audit"
	"callguard/internal/consent"
	"callguard/internal/crypto"
	"callguard/internal/platform/metrics"
	dErrors "callguard/pkg/domain-errors"
)

// ConsentChecker is the slice of the consent ledger the gate needs.
type ConsentChecker interface {
	HasActiveConsent(ctx context.Context, phone string, channel consent.Channel) (bool, error)
}

// Decision is the gate's verdict. Denials are normal control flow; the reason
// surfaces to internal callers and operators only.
type Decision struct {
	Allowed bool
	Reason  audit.DenyReason
}

// Gate evaluates one outbound call attempt. Every evaluation appends exactly
// one immutable CallAttempt, allowed or denied; if the audit record cannot be
// written the evaluation itself fails.
type Gate struct {
	hours   HoursPolicy
	consent ConsentChecker
	audit   *audit.Service
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewGate(hours HoursPolicy, checker ConsentChecker, auditSvc *audit.Service, logger *slog.Logger, m *metrics.Metrics) *Gate {
	return &Gate{
		hours:   hours,
		consent: checker,
		audit:   auditSvc,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("callguard/compliance"),
	}
}

// CanCall decides whether an outbound voice call to phone may be placed now.
// Rule order (fail-fast):
//  1. Calling-hours window, in the recipient's timezone.
//  2. Active voice consent; a ledger failure denies (fail closed), never
//     silently allows.
//
// The gate performs no retries; retry policy belongs to the caller.
func (g *Gate) CanCall(ctx context.Context, phone string, now time.Time, timezone string) (Decision, error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gate.can_call")
	defer span.End()

	if err := consent.ValidatePhone(phone); err != nil {
		return Decision{}, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Decision{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "unknown timezone")
	}
	local := now.In(loc)

	decision := g.evaluate(ctx, phone, local)
	span.SetAttributes(
		attribute.Bool("gate.allowed", decision.Allowed),
		attribute.String("gate.reason", string(decision.Reason)),
	)

	outcome := audit.OutcomeAllowed
	if !decision.Allowed {
		outcome = audit.OutcomeDenied
	}
	if _, err := g.audit.Record(ctx, audit.CallAttempt{
		SubjectPhone: phone,
		AttemptedAt:  local,
		Timezone:     timezone,
		Outcome:      outcome,
		DenyReason:   decision.Reason,
	}); err != nil {
		return Decision{}, err
	}

	g.observe(decision, start)
	g.logger.InfoContext(ctx, "call gate decision",
		"phone", crypto.MaskForDisplay(phone, 4),
		"allowed", decision.Allowed,
		"reason", string(decision.Reason),
		"local_hour", local.Hour(),
	)
	return decision, nil
}

func (g *Gate) evaluate(ctx context.Context, phone string, local time.Time) Decision {
	if !g.hours.Allows(local) {
		return Decision{Allowed: false, Reason: audit.DenyReasonOutsideHours}
	}

	hasConsent, err := g.consent.HasActiveConsent(ctx, phone, consent.ChannelVoice)
	if err != nil {
		// Fail closed: an unreachable ledger is a deny, never an allow.
		g.logger.ErrorContext(ctx, "consent lookup failed, denying call",
			"phone", crypto.MaskForDisplay(phone, 4),
			"error", err.Error(),
		)
		return Decision{Allowed: false, Reason: audit.DenyReasonConsentLookupFailed}
	}
	if !hasConsent {
		return Decision{Allowed: false, Reason: audit.DenyReasonNoConsent}
	}
	return Decision{Allowed: true, Reason: audit.DenyReasonNone}
}

func (g *Gate) observe(decision Decision, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.GateLatencySecs.Observe(time.Since(start).Seconds())
	if decision.Allowed {
		g.metrics.CallsAllowed.Inc()
	} else {
		g.metrics.CallsDenied.WithLabelValues(string(decision.Reason)).Inc()
	}
}
