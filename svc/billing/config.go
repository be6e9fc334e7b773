package billing

import "time"

// Config controls reconciliation behaviour of webhook handling.
type Config struct {
	GracePeriod    time.Duration `env:"BILLING_GRACE_PERIOD" envDefault:"72h"`    // GracePeriod after a failed payment during which the page stays published.
	HandlerTimeout time.Duration `env:"BILLING_HANDLER_TIMEOUT" envDefault:"10s"` // HandlerTimeout bounds a single webhook dispatch.
	EventLogTTL    time.Duration `env:"BILLING_EVENT_LOG_TTL" envDefault:"72h"`   // EventLogTTL is how long processed event ids are remembered.
}

// StripeConfig holds processor credentials.
type StripeConfig struct {
	SecretKey         string        `env:"STRIPE_SECRET_KEY"`
	WebhookSecret     string        `env:"STRIPE_WEBHOOK_SECRET"`
	Timeout           time.Duration `env:"STRIPE_TIMEOUT" envDefault:"10s"`
	MaxNetworkRetries int64         `env:"STRIPE_MAX_NETWORK_RETRIES" envDefault:"2"`
	PortalReturnURL   string        `env:"STRIPE_PORTAL_RETURN_URL"`
}
