package compliance

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callguard/internal/audit"
	"callguard/internal/consent"
	dErrors "callguard/pkg/domain-errors"
)

type stubConsent struct {
	active bool
	err    error
}

func (s stubConsent) HasActiveConsent(context.Context, string, consent.Channel) (bool, error) {
	return s.active, s.err
}

type brokenAuditStore struct {
	audit.Store
}

func (brokenAuditStore) Append(context.Context, audit.CallAttempt) error {
	return errors.New("disk full")
}

const gatePhone = "+15551234567"

// noon UTC, inside the window for UTC recipients.
var noon = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

func newTestGate(checker ConsentChecker, store audit.Store) (*Gate, audit.Store) {
	if store == nil {
		store = audit.NewInMemoryStore()
	}
	log := slog.New(slog.DiscardHandler)
	auditSvc := audit.NewService(store, nil, log)
	return NewGate(DefaultHours, checker, auditSvc, log, nil), store
}

func TestCanCallAllowedWithConsentInsideHours(t *testing.T) {
	gate, store := newTestGate(stubConsent{active: true}, nil)

	decision, err := gate.CanCall(context.Background(), gatePhone, noon, "UTC")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, audit.DenyReasonNone, decision.Reason)

	attempts, err := store.ListByPhone(context.Background(), gatePhone)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, audit.OutcomeAllowed, attempts[0].Outcome)
}

func TestCanCallDeniedWithoutConsent(t *testing.T) {
	gate, store := newTestGate(stubConsent{active: false}, nil)

	decision, err := gate.CanCall(context.Background(), gatePhone, noon, "UTC")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, audit.DenyReasonNoConsent, decision.Reason)

	attempts, err := store.ListByPhone(context.Background(), gatePhone)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, audit.OutcomeDenied, attempts[0].Outcome)
	assert.Equal(t, audit.DenyReasonNoConsent, attempts[0].DenyReason)
}

func TestCanCallDeniedOutsideHours(t *testing.T) {
	gate, _ := newTestGate(stubConsent{active: true}, nil)

	late := time.Date(2025, 3, 3, 22, 0, 0, 0, time.UTC)
	decision, err := gate.CanCall(context.Background(), gatePhone, late, "UTC")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, audit.DenyReasonOutsideHours, decision.Reason)
}

func TestCanCallHonorsRecipientTimezone(t *testing.T) {
	gate, _ := newTestGate(stubConsent{active: true}, nil)

	// 02:00 UTC is 18:00 the previous day in Los Angeles: allowed there,
	// denied for a UTC recipient.
	at := time.Date(2025, 3, 3, 2, 0, 0, 0, time.UTC)

	decision, err := gate.CanCall(context.Background(), gatePhone, at, "America/Los_Angeles")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = gate.CanCall(context.Background(), gatePhone, at, "UTC")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, audit.DenyReasonOutsideHours, decision.Reason)
}

func TestCanCallFailsClosedOnLedgerFailure(t *testing.T) {
	gate, store := newTestGate(stubConsent{err: errors.New("ledger unreachable")}, nil)

	decision, err := gate.CanCall(context.Background(), gatePhone, noon, "UTC")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, audit.DenyReasonConsentLookupFailed, decision.Reason)

	attempts, err := store.ListByPhone(context.Background(), gatePhone)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, audit.DenyReasonConsentLookupFailed, attempts[0].DenyReason)
}

func TestCanCallRejectsInvalidInput(t *testing.T) {
	gate, store := newTestGate(stubConsent{active: true}, nil)

	t.Run("bad phone", func(t *testing.T) {
		_, err := gate.CanCall(context.Background(), "5551234567", noon, "UTC")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
	})

	t.Run("unknown timezone", func(t *testing.T) {
		_, err := gate.CanCall(context.Background(), gatePhone, noon, "Mars/Olympus")
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
	})

	// Rejected input never reaches the audit ledger.
	attempts, err := store.ListByPhone(context.Background(), gatePhone)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestCanCallFailsWhenAuditWriteFails(t *testing.T) {
	gate, _ := newTestGate(stubConsent{active: true}, brokenAuditStore{})

	_, err := gate.CanCall(context.Background(), gatePhone, noon, "UTC")
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeStoreUnavailable))
}

func TestEveryEvaluationAppendsExactlyOneAttempt(t *testing.T) {
	gate, store := newTestGate(stubConsent{active: true}, nil)

	for i := 0; i < 5; i++ {
		_, err := gate.CanCall(context.Background(), gatePhone, noon, "UTC")
		require.NoError(t, err)
	}

	attempts, err := store.ListByPhone(context.Background(), gatePhone)
	require.NoError(t, err)
	assert.Len(t, attempts, 5)
}
