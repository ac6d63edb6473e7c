package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-wide configuration. FromEnv builds it once at
// startup so main stays lean; required security material is validated there
// and missing material is a hard startup failure, never a silent no-op.
type Config struct {
	Addr          string
	JWTSigningKey string

	// Encryption key material. Keys is a comma-separated list of
	// version:suite:base64key entries; CurrentKeyVersion selects the one
	// version used for new encryptions.
	EncryptionKeys    string
	CurrentKeyVersion string

	// Webhook trust.
	WebhookPublicKey string
	WebhookMaxSkew   time.Duration
	HMACSecret       string

	// Allowed calling hours in the recipient's local timezone.
	// Start is inclusive, End exclusive.
	CallHoursStart int
	CallHoursEnd   int

	// Consent policy. Zero means grants never expire; the variable itself
	// is required so the policy decision is always explicit.
	ConsentDefaultTTL time.Duration

	// Retention windows in days per category; 0 means permanent.
	Retention RetentionConfig

	SweepInterval time.Duration

	PostgresURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
}

// RetentionConfig holds per-category retention windows. Zero disables purging
// for that category.
type RetentionConfig struct {
	CallsDays         int
	RecordingsDays    int
	LogsDays          int
	ConsentDays       int
	ConsentProofsDays int
}

// RedisConfig mirrors the connection tuning knobs we expose.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig controls the audit relay. Empty brokers disable publishing.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds the configuration from environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:              getEnv("CALLGUARD_ADDR", ":8080"),
		JWTSigningKey:     getEnv("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		EncryptionKeys:    os.Getenv("ENCRYPTION_KEYS"),
		CurrentKeyVersion: os.Getenv("ENCRYPTION_CURRENT_VERSION"),
		WebhookPublicKey:  os.Getenv("WEBHOOK_PROVIDER_PUBKEY"),
		WebhookMaxSkew:    getDuration("WEBHOOK_MAX_SKEW", 5*time.Minute),
		HMACSecret:        os.Getenv("WEBHOOK_HMAC_SECRET"),
		CallHoursStart:    getInt("CALL_HOURS_START", 8),
		CallHoursEnd:      getInt("CALL_HOURS_END", 21),
		SweepInterval:     getDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		Retention: RetentionConfig{
			CallsDays:         getInt("RETENTION_CALLS_DAYS", 365),
			RecordingsDays:    getInt("RETENTION_RECORDINGS_DAYS", 90),
			LogsDays:          getInt("RETENTION_LOGS_DAYS", 30),
			ConsentDays:       getInt("RETENTION_CONSENT_DAYS", 0),
			ConsentProofsDays: getInt("RETENTION_CONSENT_PROOFS_DAYS", 0),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "callguard.audit.calls"),
		},
	}

	if cfg.EncryptionKeys == "" {
		return Config{}, fmt.Errorf("ENCRYPTION_KEYS is required")
	}
	if cfg.CurrentKeyVersion == "" {
		return Config{}, fmt.Errorf("ENCRYPTION_CURRENT_VERSION is required")
	}

	ttlDays := os.Getenv("CONSENT_DEFAULT_TTL_DAYS")
	if ttlDays == "" {
		return Config{}, fmt.Errorf("CONSENT_DEFAULT_TTL_DAYS is required (0 means grants never expire)")
	}
	days, err := strconv.Atoi(ttlDays)
	if err != nil || days < 0 {
		return Config{}, fmt.Errorf("CONSENT_DEFAULT_TTL_DAYS must be a non-negative integer")
	}
	cfg.ConsentDefaultTTL = time.Duration(days) * 24 * time.Hour

	if cfg.CallHoursStart < 0 || cfg.CallHoursEnd > 24 || cfg.CallHoursStart >= cfg.CallHoursEnd {
		return Config{}, fmt.Errorf("invalid calling hours window %d-%d", cfg.CallHoursStart, cfg.CallHoursEnd)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
