package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"callguard/internal/audit"
	"callguard/internal/compliance"
	compliancehandler "callguard/internal/compliance/handler"
	"callguard/internal/consent"
	consenthandler "callguard/internal/consent/handler"
	"callguard/internal/crypto"
	"callguard/internal/jwttoken"
	"callguard/internal/platform/config"
	"callguard/internal/platform/httpserver"
	"callguard/internal/platform/logger"
	"callguard/internal/platform/metrics"
	platformredis "callguard/internal/platform/redis"
	"callguard/internal/retention"
	httptransport "callguard/internal/transport/http"
	"callguard/internal/webhook"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err.Error())
		os.Exit(1)
	}

	keyring, err := crypto.ParseKeyring(cfg.EncryptionKeys, cfg.CurrentKeyVersion)
	if err != nil {
		log.Error("encryption keyring failed to load", "error", err.Error())
		os.Exit(1)
	}
	cryptoSvc := crypto.NewService(keyring)

	verifier, err := webhook.NewVerifier(cfg.WebhookPublicKey, cfg.HMACSecret, cfg.WebhookMaxSkew)
	if err != nil {
		log.Error("webhook verifier failed to load", "error", err.Error())
		os.Exit(1)
	}

	m := metrics.New()

	var (
		consentStore consent.Store
		auditStore   audit.Store
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("postgres open failed", "error", err.Error())
			os.Exit(1)
		}
		if err := db.Ping(); err != nil {
			log.Error("postgres ping failed", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		consentStore = consent.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
	} else {
		log.Warn("POSTGRES_URL not set, using in-memory stores")
		consentStore = consent.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var publisher audit.Publisher
	var relay *audit.Relay
	if len(cfg.Kafka.Brokers) > 0 {
		relay, err = audit.NewRelay(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, log)
		if err != nil {
			log.Error("audit relay failed to start", "error", err.Error())
			os.Exit(1)
		}
		defer relay.Close()
		publisher = relay
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("audit relay stopped", "error", err.Error())
			}
		}()
	}

	consentSvc := consent.NewService(consentStore, cryptoSvc, log, m, cfg.ConsentDefaultTTL)
	auditSvc := audit.NewService(auditStore, publisher, log)
	gate := compliance.NewGate(
		compliance.HoursPolicy{StartHour: cfg.CallHoursStart, EndHour: cfg.CallHoursEnd},
		consentSvc, auditSvc, log, m,
	)

	var sweepLock retention.Lock
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sweepLock = retention.NewRedisLock(redisClient)
	}

	// Recordings and request logs live in stores owned by excluded
	// collaborators; they register their own purgers in their deployments.
	purgers := map[retention.Category]retention.Purger{
		retention.CategoryCalls:   auditStore,
		retention.CategoryConsent: retention.PurgerFunc(consentStore.PurgeOlderThan),
		retention.CategoryConsentProofs: retention.PurgerFunc(
			consentStore.RedactProofsOlderThan),
	}
	sweeper := retention.NewSweeper(retention.PolicyFromConfig(cfg.Retention), purgers, sweepLock, log, m)
	go func() {
		if err := sweeper.Run(ctx, cfg.SweepInterval); err != nil && ctx.Err() == nil {
			log.Error("retention sweeper stopped", "error", err.Error())
		}
	}()

	jwtSvc := jwttoken.NewService(cfg.JWTSigningKey, "callguard", "callguard-internal")

	router := httptransport.NewRouter(log, sweeper,
		webhook.NewHandler(verifier, webhook.NewLogSink(log), log, m),
		consenthandler.New(consentSvc, log, jwtSvc),
		compliancehandler.New(gate, auditSvc, log, jwtSvc),
	)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting callguard", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
}
