package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all gate configuration, sourced from the process
// environment (with an optional local .env for development).
type Config struct {
	// ChallengeSecret is the opaque HMAC key backing every signed artifact
	// the gate issues.
	ChallengeSecret []byte

	// VerifyURL is the verify service's base URL. Normalised at load time
	// so it always ends in "/verify".
	VerifyURL string

	// APIKey is this merchant's bearer credential against the verify
	// service.
	APIKey string

	// PublicPathAllowlist holds extra exact-match bypass paths beyond
	// /robots.txt and /.well-known/*.
	PublicPathAllowlist []string

	// MinPayment is the decimal USDC amount required per key.
	MinPayment string

	// Debug enables the insecure/debug escape hatch for the default
	// challenge secret.
	Debug bool

	// MetricsEnabled wires the optional Prometheus collector.
	MetricsEnabled bool

	// MetricsAddr, if set, is the address cmd/agentpaymentsd serves
	// /metrics on.
	MetricsAddr string

	// HTTPClientTimeout bounds the outbound call to the verify service.
	HTTPClientTimeout time.Duration

	// UpstreamURL is the protected application the gate proxies
	// passthrough requests to.
	UpstreamURL string

	// Port is the HTTP listen port for the gate itself.
	Port int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded if present (dev convenience).
func Load() (*Config, error) {
	_ = godotenv.Load() // no-op if .env absent (production uses real env vars)

	secret := getEnv("CHALLENGE_SECRET", "default-secret-change-me")

	cfg := &Config{
		ChallengeSecret:     []byte(secret),
		VerifyURL:           normalizeVerifyURL(getEnv("AGENTPAYMENTS_VERIFY_URL", "")),
		APIKey:              getEnv("AGENTPAYMENTS_API_KEY", ""),
		PublicPathAllowlist: splitNonEmpty(getEnv("AGENTPAYMENTS_PUBLIC_PATHS", ""), ","),
		MinPayment:          getEnv("AGENTPAYMENTS_MIN_PAYMENT", "0.01"),
		Debug:               getEnvBool("AGENTPAYMENTS_DEBUG", false),
		MetricsEnabled:      getEnv("AGENTPAYMENTS_METRICS_ADDR", "") != "",
		MetricsAddr:         getEnv("AGENTPAYMENTS_METRICS_ADDR", ""),
		HTTPClientTimeout:   time.Duration(getEnvInt("AGENTPAYMENTS_VERIFY_TIMEOUT_MS", 5000)) * time.Millisecond,
		UpstreamURL:         getEnv("AGENTPAYMENTS_UPSTREAM_URL", "http://localhost:3000"),
		Port:                getEnvInt("PORT", 8080),
	}

	if cfg.UpstreamURL == "" {
		return nil, fmt.Errorf("AGENTPAYMENTS_UPSTREAM_URL env var is required")
	}

	return cfg, nil
}

// normalizeVerifyURL appends "/verify" when the configured URL does not
// already end with it, matching the SDK normalisation rule.
func normalizeVerifyURL(u string) string {
	if u == "" {
		return u
	}
	if strings.HasSuffix(u, "/verify") {
		return u
	}
	return strings.TrimRight(u, "/") + "/verify"
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
