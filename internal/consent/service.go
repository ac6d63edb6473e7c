package consent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"callguard/internal/crypto"
	"callguard/internal/platform/metrics"
	dErrors "callguard/pkg/domain-errors"
	"callguard/pkg/platform/sentinel"
)

// Service is the consent ledger's orchestration layer. It validates input,
// encrypts proof payloads before they reach the store, and translates store
// sentinels into coded errors.
type Service struct {
	store      Store
	crypto     *crypto.Service
	logger     *slog.Logger
	metrics    *metrics.Metrics
	defaultTTL time.Duration
	now        func() time.Time
}

// NewService builds the ledger service. defaultTTL applies when a grant comes
// without an explicit expiry; zero means such grants never expire. The value
// is required configuration, decided at startup.
func NewService(store Store, cryptoSvc *crypto.Service, logger *slog.Logger, m *metrics.Metrics, defaultTTL time.Duration) *Service {
	return &Service{
		store:      store,
		crypto:     cryptoSvc,
		logger:     logger,
		metrics:    m,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// RecordGrant supersedes any active record for (phone, channel) and inserts
// the new grant atomically.
func (s *Service) RecordGrant(ctx context.Context, phone string, channel Channel, source Source, proof string, expiresAt *time.Time) (Record, error) {
	if err := ValidatePhone(phone); err != nil {
		return Record{}, err
	}
	if err := ValidateChannel(channel); err != nil {
		return Record{}, err
	}
	if err := ValidateSource(source); err != nil {
		return Record{}, err
	}

	now := s.now()
	rec := Record{
		ID:           uuid.NewString(),
		SubjectPhone: phone,
		Channel:      channel,
		GrantedAt:    now,
		ExpiresAt:    expiresAt,
		Source:       source,
		Proof:        proof,
	}
	if rec.ExpiresAt == nil && s.defaultTTL > 0 {
		expiry := now.Add(s.defaultTTL)
		rec.ExpiresAt = &expiry
	}

	if proof != "" {
		blob, err := s.crypto.Encrypt([]byte(proof))
		if err != nil {
			return Record{}, err
		}
		rec.EncryptedProof = &blob
	}

	if err := s.store.GrantSupersede(ctx, rec); err != nil {
		return Record{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "record consent grant")
	}

	if s.metrics != nil {
		s.metrics.ConsentGrants.Inc()
	}
	s.logger.InfoContext(ctx, "consent granted",
		"phone", crypto.MaskForDisplay(phone, 4),
		"channel", string(channel),
		"source", string(source),
	)
	return rec, nil
}

// Revoke deactivates the active record for the key. Revoking when nothing is
// active is a no-op, not an error.
func (s *Service) Revoke(ctx context.Context, phone string, channel Channel) error {
	if err := ValidatePhone(phone); err != nil {
		return err
	}
	if err := ValidateChannel(channel); err != nil {
		return err
	}

	err := s.store.RevokeActive(ctx, phone, channel, s.now())
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "revoke consent")
	}

	if s.metrics != nil {
		s.metrics.ConsentRevocation.Inc()
	}
	s.logger.InfoContext(ctx, "consent revoked",
		"phone", crypto.MaskForDisplay(phone, 4),
		"channel", string(channel),
	)
	return nil
}

// HasActiveConsent reports whether an active record exists for the key.
// Store failures surface as errors so callers can fail closed.
func (s *Service) HasActiveConsent(ctx context.Context, phone string, channel Channel) (bool, error) {
	_, err := s.store.FindActive(ctx, phone, channel, s.now())
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "consent lookup")
	}
	return true, nil
}

// History returns every record for the phone, grantedAt ascending, with proof
// payloads decrypted where possible. A record whose proof no longer decrypts
// (rotated-away key, redacted payload) is returned with an empty proof rather
// than failing the whole audit read.
func (s *Service) History(ctx context.Context, phone string) ([]Record, error) {
	if err := ValidatePhone(phone); err != nil {
		return nil, err
	}

	records, err := s.store.History(ctx, phone)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "consent history")
	}

	for i := range records {
		if records[i].EncryptedProof == nil {
			continue
		}
		plaintext, err := s.crypto.Decrypt(*records[i].EncryptedProof)
		if err != nil {
			s.logger.WarnContext(ctx, "consent proof no longer decryptable",
				"record_id", records[i].ID,
				"key_version", records[i].EncryptedProof.KeyVersion,
			)
			continue
		}
		records[i].Proof = string(plaintext)
	}
	return records, nil
}
