package logger

import (
	"fmt"
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// ProfileID records the profile identifier under the key "profile_id".
// Zero values (nil, empty string) produce an empty Attr.
func ProfileID(id any) slog.Attr {
	return optional("profile_id", id)
}

// UserID records the user identifier under the key "user_id".
func UserID(id any) slog.Attr {
	return optional("user_id", id)
}

// SubscriptionID records the processor subscription id under the key "subscription_id".
func SubscriptionID(id string) slog.Attr {
	return optional("subscription_id", id)
}

// CustomerID records the processor customer id under the key "customer_id".
func CustomerID(id string) slog.Attr {
	return optional("customer_id", id)
}

// EventID records the webhook event id under the key "event_id".
func EventID(id string) slog.Attr {
	return optional("event_id", id)
}

// EventType records the webhook event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func optional(key string, v any) slog.Attr {
	switch val := v.(type) {
	case nil:
		return slog.Attr{}
	case string:
		if val == "" {
			return slog.Attr{}
		}
		return slog.String(key, val)
	case fmt.Stringer:
		return slog.String(key, val.String())
	default:
		return slog.Any(key, v)
	}
}
