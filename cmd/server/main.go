// Saathi - trust-based peer lending credit engine
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbd888/saathi/internal/auth"
	"github.com/mbd888/saathi/internal/blockchain"
	"github.com/mbd888/saathi/internal/circuitbreaker"
	"github.com/mbd888/saathi/internal/config"
	"github.com/mbd888/saathi/internal/health"
	"github.com/mbd888/saathi/internal/httpapi"
	"github.com/mbd888/saathi/internal/llm"
	"github.com/mbd888/saathi/internal/logging"
	"github.com/mbd888/saathi/internal/messaging"
	"github.com/mbd888/saathi/internal/orchestrator"
	"github.com/mbd888/saathi/internal/payments"
	"github.com/mbd888/saathi/internal/ports"
	"github.com/mbd888/saathi/internal/ratelimit"
	"github.com/mbd888/saathi/internal/receipts"
	"github.com/mbd888/saathi/internal/resilience"
	"github.com/mbd888/saathi/internal/store"
	"github.com/mbd888/saathi/internal/tasks"
	"github.com/mbd888/saathi/internal/tracing"
	"github.com/mbd888/saathi/internal/tts"
	"github.com/mbd888/saathi/internal/vouch"

	_ "github.com/lib/pq"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "text")
	logger.Info("starting saathi", "version", Version, "commit", Commit, "build_time", BuildTime)

	shutdownTracing, err := tracing.Init(context.Background(), cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()

	storeImpl, db, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	receiptSvc, err := buildReceiptService(cfg, db, logger)
	if err != nil {
		logger.Error("failed to initialize receipt store", "error", err)
		os.Exit(1)
	}

	llmBreaker := circuitbreaker.New("llm", cfg.CircuitFailureThreshold, cfg.CircuitSuccessThreshold, cfg.CircuitRecoveryTimeout)
	paymentsBreaker := circuitbreaker.New("payments", cfg.CircuitFailureThreshold, cfg.CircuitSuccessThreshold, cfg.CircuitRecoveryTimeout)
	messagingBreaker := circuitbreaker.New("messaging", cfg.CircuitFailureThreshold, cfg.CircuitSuccessThreshold, cfg.CircuitRecoveryTimeout)
	blockchainBreaker := circuitbreaker.New("blockchain", cfg.CircuitFailureThreshold, cfg.CircuitSuccessThreshold, cfg.CircuitRecoveryTimeout)

	retryPolicy := resilience.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}

	llmClient := resilience.WrapLLM(llm.New(cfg.LLMAPIKey, cfg.LLMModel, logger), llmBreaker, retryPolicy)

	paymentsGateway := resilience.WrapPayments(
		payments.New(cfg.PaymentAPIKey, cfg.PaymentWebhookSecret, cfg.PaymentBaseURL+"/success", cfg.PaymentBaseURL+"/cancel"),
		paymentsBreaker,
		retryPolicy,
	)

	var messagingClient ports.Messaging
	if cfg.MessagingAPIKey != "" {
		messagingClient = resilience.WrapMessaging(
			messaging.New(cfg.MessagingAPIKey, cfg.MessagingAPIKey, "", "", logger),
			messagingBreaker,
		)
	} else {
		logger.Warn("messaging credentials not configured, SMS/voice notifications disabled")
	}

	var chain ports.Blockchain
	if cfg.BlockchainRPCURL != "" && cfg.BlockchainSigningKey != "" {
		notary, err := blockchain.New(blockchain.Config{
			RPCURL:         cfg.BlockchainRPCURL,
			PrivateKey:     cfg.BlockchainSigningKey,
			ChainID:        1,
			NotaryContract: cfg.ContractAddresses["notary"],
		})
		if err != nil {
			logger.Error("failed to initialize blockchain notary, notarization disabled", "error", err)
		} else {
			chain = resilience.WrapBlockchain(notary, blockchainBreaker, retryPolicy)
			defer notary.Close()
		}
	} else {
		logger.Warn("blockchain RPC not configured, loan/vouch/repayment notarization disabled")
	}

	var ttsClient ports.TTS
	if cfg.TTSAPIKey != "" {
		clipStore := tts.NewFileClipStore("./data/clips", "/audio")
		ttsClient = tts.New(cfg.TTSAPIKey, clipStore, logger)
	}

	taskManager := tasks.New(logger, 16)
	defer taskManager.Shutdown(30 * time.Second)

	rateLimiter := ratelimit.New(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})
	defer rateLimiter.Stop()

	verifier := auth.NewVerifier(cfg.JWTSecret)

	orch := orchestrator.New(storeImpl, llmClient, cfg.BlockchainSigningKey, logger)
	vouchSvc := vouch.NewService(storeImpl, logger)

	healthRegistry := health.NewRegistry()
	healthRegistry.Register("store", func(ctx context.Context) health.Status {
		if err := storeImpl.Ping(ctx); err != nil {
			return health.Status{Name: "store", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "store", Healthy: true}
	})

	engine := httpapi.New(httpapi.Deps{
		Store:        storeImpl,
		Orchestrator: orch,
		Vouches:      vouchSvc,
		Payments:     paymentsGateway,
		Blockchain:   chain,
		Messaging:    messagingClient,
		TTS:          ttsClient,
		Tasks:        taskManager,
		Receipts:     receiptSvc,
		RateLimiter:  rateLimiter,
		Verifier:     verifier,
		Health:       healthRegistry,
		Logger:       logger,
		CORSOrigins:  cfg.CORSOrigins,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	if err := run(httpSrv, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildStore opens a Postgres-backed store when DATABASE_URL is set,
// falling back to the in-memory store for local development. The
// returned close func is always safe to defer, even for the in-memory
// store. The *sql.DB is returned alongside so other subsystems (e.g.
// internal/receipts) can share the same connection pool instead of
// opening one of their own.
func buildStore(cfg *config.Config, logger *slog.Logger) (ports.Store, *sql.DB, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), nil, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to postgres store")
	return store.NewPostgresStore(db), db, func() { db.Close() }, nil
}

// buildReceiptService wires a signed money-movement receipt store: Postgres
// when the main store is Postgres-backed (running its own migration),
// otherwise an in-memory store for local development. With no signing
// secret configured it still returns a Service, whose nil signer makes
// receipt issuance a no-op.
func buildReceiptService(cfg *config.Config, db *sql.DB, logger *slog.Logger) (*receipts.Service, error) {
	signer := receipts.NewSigner(cfg.ReceiptSigningSecret)
	if signer == nil {
		logger.Warn("RECEIPT_SIGNING_SECRET not set, receipt issuance disabled")
	}

	if db == nil {
		return receipts.NewService(receipts.NewMemoryStore(), signer), nil
	}

	receiptStore := receipts.NewPostgresStore(db)
	if err := receiptStore.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate receipts: %w", err)
	}
	logger.Info("connected to postgres receipt store")
	return receipts.NewService(receiptStore, signer), nil
}

// run starts httpSrv and blocks until a shutdown signal or a fatal
// listen error, then drains connections within a bounded window.
func run(httpSrv *http.Server, logger *slog.Logger) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("listen: %w", err)
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
