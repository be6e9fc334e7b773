// Package logger builds log/slog loggers with environment presets and
// context-aware attribute injection.
//
//	log := logger.New(
//		logger.WithEnvironment(os.Getenv("APP_ENV"), "bookpage"),
//		logger.WithContextValue("request_id", middleware.RequestIDKey),
//	)
//	log.InfoContext(ctx, "subscription applied",
//		logger.ProfileID(profileID),
//		logger.SubscriptionID("sub_123"),
//	)
//
// Attribute helpers return an empty slog.Attr for zero values, which slog
// drops, so callers can pass optional identifiers without branching.
package logger
