package webhook

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callguard/contracts/events"
)

type capturingSink struct {
	received []events.ProviderEvent
	err      error
}

func (s *capturingSink) HandleProviderEvent(_ context.Context, event events.ProviderEvent) error {
	if s.err != nil {
		return s.err
	}
	s.received = append(s.received, event)
	return nil
}

type handlerFixture struct {
	router http.Handler
	sink   *capturingSink
	priv   ed25519.PrivateKey
	now    time.Time
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	verifier, err := NewVerifier(base64.StdEncoding.EncodeToString(pub), "", maxSkew)
	require.NoError(t, err)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	verifier.now = func() time.Time { return now }

	sink := &capturingSink{}
	h := NewHandler(verifier, sink, slog.New(slog.DiscardHandler), nil)

	r := chi.NewRouter()
	h.Register(r)
	return &handlerFixture{router: r, sink: sink, priv: priv, now: now}
}

func (f *handlerFixture) signedRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	ts := fmt.Sprintf("%d", f.now.Unix())
	payload := append([]byte(ts+":"), body...)
	sig := ed25519.Sign(f.priv, payload)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", bytes.NewReader(body))
	req.Header.Set(events.HeaderSignature, base64.StdEncoding.EncodeToString(sig))
	req.Header.Set(events.HeaderTimestamp, ts)
	return req
}

func TestProviderWebhookAccepted(t *testing.T) {
	f := newHandlerFixture(t)
	body, err := json.Marshal(events.ProviderEvent{
		EventID:   "evt-1",
		EventType: "call.completed",
		CallID:    "call-77",
		Phone:     "+15551234567",
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, f.signedRequest(t, body))

	assert.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, f.sink.received, 1)
	assert.Equal(t, "evt-1", f.sink.received[0].EventID)
	assert.Equal(t, "call.completed", f.sink.received[0].EventType)
}

func TestProviderWebhookRejectionIsUniform(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(`{"event_id":"evt-1"}`)

	cases := map[string]func() *http.Request{
		"no signature": func() *http.Request {
			req := f.signedRequest(t, body)
			req.Header.Del(events.HeaderSignature)
			return req
		},
		"no timestamp": func() *http.Request {
			req := f.signedRequest(t, body)
			req.Header.Del(events.HeaderTimestamp)
			return req
		},
		"stale timestamp": func() *http.Request {
			stale := fmt.Sprintf("%d", f.now.Add(-maxSkew-time.Minute).Unix())
			payload := append([]byte(stale+":"), body...)
			sig := ed25519.Sign(f.priv, payload)
			req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", bytes.NewReader(body))
			req.Header.Set(events.HeaderSignature, base64.StdEncoding.EncodeToString(sig))
			req.Header.Set(events.HeaderTimestamp, stale)
			return req
		},
		"tampered body": func() *http.Request {
			req := f.signedRequest(t, body)
			req.Body = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"event_id":"evt-2"}`))).Body
			return req
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			f.router.ServeHTTP(rr, build())

			// Remote callers never learn which check failed.
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.JSONEq(t, `{"error":"invalid_webhook"}`, rr.Body.String())
			assert.Empty(t, f.sink.received)
		})
	}
}

func TestProviderWebhookUndecodablePayload(t *testing.T) {
	f := newHandlerFixture(t)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, f.signedRequest(t, []byte(`not json at all`)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, f.sink.received)
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset") }
func (brokenBody) Close() error             { return nil }

func TestProviderWebhookBodyReadFailureReason(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	verifier, err := NewVerifier(base64.StdEncoding.EncodeToString(pub), "", maxSkew)
	require.NoError(t, err)

	var logs bytes.Buffer
	sink := &capturingSink{}
	h := NewHandler(verifier, sink, slog.New(slog.NewTextHandler(&logs, nil)), nil)
	r := chi.NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", nil)
	req.Body = brokenBody{}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"invalid_webhook"}`, rr.Body.String())
	assert.Empty(t, sink.received)

	// Internally the rejection carries its own reason, not a credentials one.
	assert.Contains(t, logs.String(), string(ReasonUnreadableBody))
	assert.NotContains(t, logs.String(), string(ReasonMissingCredentials))
}

func TestProviderWebhookSinkFailure(t *testing.T) {
	f := newHandlerFixture(t)
	f.sink.err = errors.New("downstream queue full")

	body, err := json.Marshal(events.ProviderEvent{EventID: "evt-1", EventType: "call.started"})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, f.signedRequest(t, body))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
