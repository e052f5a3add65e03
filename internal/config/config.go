package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	// Payment processor credentials and endpoint.
	ProcessorBaseURL string
	ProcessorAPIKey  string
	WebhookSecret    string
	ProcessorTimeout time.Duration

	// Revenue split policy: share of each sale credited to the seller,
	// in basis points. The remainder is the platform fee.
	SellerShareBps int

	Currency string

	// Pending purchase/top-up intents older than this are expired.
	IntentTTL time.Duration
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	apiKey := os.Getenv("PROCESSOR_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("PROCESSOR_API_KEY environment variable is required")
	}

	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET environment variable is required")
	}

	cfg := &Config{
		DBSource:         dbSource,
		Port:             envOr("SERVER_PORT", "8080"),
		Env:              envOr("ENVIRONMENT", "development"),
		ProcessorBaseURL: envOr("PROCESSOR_BASE_URL", "https://api.stripe.com"),
		ProcessorAPIKey:  apiKey,
		WebhookSecret:    secret,
		ProcessorTimeout: 10 * time.Second,
		SellerShareBps:   9000,
		Currency:         envOr("CURRENCY", "eur"),
		IntentTTL:        24 * time.Hour,
	}

	if v := os.Getenv("PROCESSOR_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PROCESSOR_TIMEOUT: %w", err)
		}
		cfg.ProcessorTimeout = d
	}

	if v := os.Getenv("SELLER_SHARE_BPS"); v != "" {
		bps, err := strconv.Atoi(v)
		if err != nil || bps < 0 || bps > 10000 {
			return nil, fmt.Errorf("SELLER_SHARE_BPS must be an integer in [0,10000], got %q", v)
		}
		cfg.SellerShareBps = bps
	}

	if v := os.Getenv("INTENT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid INTENT_TTL: %w", err)
		}
		cfg.IntentTTL = d
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
