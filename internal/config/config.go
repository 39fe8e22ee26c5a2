// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration (spec §6's configuration table).
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string
	Debug    bool

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Auth
	JWTSecret string `json:"-"`

	// Payments (Dodo-compatible gateway, see internal/payments)
	PaymentAPIKey        string `json:"-"`
	PaymentWebhookSecret string `json:"-"`
	PaymentBaseURL       string

	// ReceiptSigningSecret signs money-movement receipts (see internal/receipts).
	// Falls back to JWTSecret when unset so a dev environment doesn't need a
	// second secret just to exercise the receipts endpoints.
	ReceiptSigningSecret string `json:"-"`

	// LLM
	LLMAPIKey string `json:"-"`
	LLMModel  string

	// Messaging (SMS/voice)
	MessagingAPIKey       string `json:"-"`
	MessagingTemplatesURL string

	// TTS
	TTSAPIKey  string `json:"-"`
	TTSVoiceEN string
	TTSVoiceHI string
	TTSVoiceML string

	// Blockchain
	BlockchainRPCURL     string
	BlockchainSigningKey string `json:"-"` // hex-encoded private key, no 0x prefix
	ContractAddresses    map[string]string

	// CORS
	CORSOrigins []string

	// Rate limiting
	RateLimitPerMinute int

	// Optional external orchestration service
	ExternalOrchestrationURL string

	// Observability
	OTLPEndpoint string

	// HTTP server timeouts
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RequestTimeout   time.Duration

	// Reliability kit defaults
	CircuitFailureThreshold int
	CircuitRecoveryTimeout  time.Duration
	CircuitSuccessThreshold int
	RetryMaxAttempts        int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	StoreCallTimeout        time.Duration // §5: bounded timeout for context-assembly reads
}

const (
	DefaultPort     = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"

	DefaultRateLimitPerMinute = 60

	DefaultHTTPReadTimeout  = 10 * time.Second
	DefaultHTTPWriteTimeout = 30 * time.Second
	DefaultHTTPIdleTimeout  = 60 * time.Second
	DefaultRequestTimeout   = 30 * time.Second

	DefaultCircuitFailureThreshold = 5
	DefaultCircuitRecoveryTimeout  = 30 * time.Second
	DefaultCircuitSuccessThreshold = 2
	DefaultRetryMaxAttempts        = 3
	DefaultRetryBaseDelay          = 200 * time.Millisecond
	DefaultRetryMaxDelay           = 5 * time.Second
	DefaultStoreCallTimeout        = 3 * time.Second
)

// Load reads configuration from environment variables. It loads a .env
// file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", DefaultPort),
		Env:      getEnv("ENVIRONMENT", DefaultEnv),
		LogLevel: getEnv("LOG_LEVEL", DefaultLogLevel),
		Debug:    getEnvBool("DEBUG", false),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaymentAPIKey:        os.Getenv("PAYMENT_API_KEY"),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		PaymentBaseURL:       os.Getenv("PAYMENT_BASE_URL"),

		ReceiptSigningSecret: getEnv("RECEIPT_SIGNING_SECRET", os.Getenv("JWT_SECRET")),

		LLMAPIKey: os.Getenv("LLM_API_KEY"),
		LLMModel:  getEnv("LLM_MODEL", "default"),

		MessagingAPIKey:       os.Getenv("MESSAGING_API_KEY"),
		MessagingTemplatesURL: os.Getenv("MESSAGING_TEMPLATES_URL"),

		TTSAPIKey:  os.Getenv("TTS_API_KEY"),
		TTSVoiceEN: os.Getenv("TTS_VOICE_EN"),
		TTSVoiceHI: os.Getenv("TTS_VOICE_HI"),
		TTSVoiceML: os.Getenv("TTS_VOICE_ML"),

		BlockchainRPCURL:     os.Getenv("BLOCKCHAIN_RPC_URL"),
		BlockchainSigningKey: os.Getenv("BLOCKCHAIN_SIGNING_KEY"),
		ContractAddresses:    parseContractAddresses(os.Getenv("BLOCKCHAIN_CONTRACTS")),

		CORSOrigins: splitCommaList(os.Getenv("CORS_ORIGINS")),

		RateLimitPerMinute: int(getEnvInt64("RATE_LIMIT_PER_MINUTE", int64(DefaultRateLimitPerMinute))),

		ExternalOrchestrationURL: os.Getenv("EXTERNAL_ORCHESTRATION_URL"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		HTTPReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", DefaultHTTPReadTimeout),
		HTTPWriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", DefaultHTTPWriteTimeout),
		HTTPIdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", DefaultHTTPIdleTimeout),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", DefaultRequestTimeout),

		CircuitFailureThreshold: int(getEnvInt64("CIRCUIT_FAILURE_THRESHOLD", int64(DefaultCircuitFailureThreshold))),
		CircuitRecoveryTimeout:  getEnvDuration("CIRCUIT_RECOVERY_TIMEOUT", DefaultCircuitRecoveryTimeout),
		CircuitSuccessThreshold: int(getEnvInt64("CIRCUIT_SUCCESS_THRESHOLD", int64(DefaultCircuitSuccessThreshold))),
		RetryMaxAttempts:        int(getEnvInt64("RETRY_MAX_ATTEMPTS", int64(DefaultRetryMaxAttempts))),
		RetryBaseDelay:          getEnvDuration("RETRY_BASE_DELAY", DefaultRetryBaseDelay),
		RetryMaxDelay:           getEnvDuration("RETRY_MAX_DELAY", DefaultRetryMaxDelay),
		StoreCallTimeout:        getEnvDuration("STORE_CALL_TIMEOUT", DefaultStoreCallTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration is internally consistent. Missing
// external-service credentials are not fatal: cmd/server then uses the
// in-memory store and leaves messaging, blockchain notarization and TTS
// disabled.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	if c.RateLimitPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be at least 1, got %d", c.RateLimitPerMinute)
	}

	if c.HTTPWriteTimeout > 0 && c.RequestTimeout > 0 && c.HTTPWriteTimeout < c.RequestTimeout {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT (%v) must be >= REQUEST_TIMEOUT (%v)", c.HTTPWriteTimeout, c.RequestTimeout)
	}

	if c.IsProduction() && c.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set in production — all authenticated requests will be rejected")
	}
	if c.IsProduction() && c.PaymentWebhookSecret == "" {
		slog.Warn("PAYMENT_WEBHOOK_SECRET not set in production — webhook signature verification will reject everything")
	}

	return nil
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }
func (c *Config) IsProduction() bool  { return c.Env == "production" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseContractAddresses parses "name1=0xabc,name2=0xdef" into a map, per
// spec §6's "contract addresses (per named contract)" config entry.
func parseContractAddresses(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitCommaList(s) {
		name, addr, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(addr)
	}
	return out
}
