package billing

import (
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/AutoMarkt/internal/pkg/env"
)

const (
	defaultWebhookTolerance   = 5 * time.Minute
	defaultProviderAPITimeout = 10 * time.Second
	defaultReconcileInterval  = 30 * time.Minute
)

// Config holds the deployment settings of the billing engine.
type Config struct {
	SecretKey         string
	WebhookSecret     string
	ReturnURL         string
	WebhookTolerance  time.Duration
	APITimeout        time.Duration
	ReconcileInterval time.Duration
}

// LoadConfigFromEnv reads the billing configuration. Missing secrets are not
// defaulted; they fail at the point of use.
func LoadConfigFromEnv() Config {
	return Config{
		SecretKey:         strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		WebhookSecret:     strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		ReturnURL:         strings.TrimSpace(env.GetEnv("STRIPE_CHECKOUT_RETURN_URL", "")),
		WebhookTolerance:  envSeconds("STRIPE_WEBHOOK_TOLERANCE_SECONDS", defaultWebhookTolerance),
		APITimeout:        envSeconds("STRIPE_API_TIMEOUT_SECONDS", defaultProviderAPITimeout),
		ReconcileInterval: envMinutes("BILLING_RECONCILE_INTERVAL_MINUTES", defaultReconcileInterval),
	}
}

func envSeconds(key string, def time.Duration) time.Duration {
	v, err := strconv.Atoi(strings.TrimSpace(env.GetEnv(key, "")))
	if err != nil || v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

func envMinutes(key string, def time.Duration) time.Duration {
	v, err := strconv.Atoi(strings.TrimSpace(env.GetEnv(key, "")))
	if err != nil || v <= 0 {
		return def
	}
	return time.Duration(v) * time.Minute
}
