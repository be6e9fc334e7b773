package billing

import "errors"

var (
	ErrMissingWebhookSecret = errors.New("billing: webhook secret not configured")
	ErrMissingSignature     = errors.New("billing: missing signature header")
	ErrInvalidSignature     = errors.New("billing: invalid webhook signature")
	ErrMalformedPayload     = errors.New("billing: malformed event payload")
	ErrProfileUnresolved    = errors.New("billing: event cannot be attributed to a profile")
	ErrProcessorUnavailable = errors.New("billing: payment processor client not configured")
	ErrProcessorRequest     = errors.New("billing: payment processor request failed")
	ErrMissingSecretKey     = errors.New("billing: processor secret key not configured")
)
