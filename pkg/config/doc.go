// Package config loads typed configuration structs from environment variables.
//
// Fields are described with github.com/caarlos0/env struct tags. A local .env
// file, when present, is read once through github.com/joho/godotenv before the
// first struct is parsed. Every struct type is parsed only once per process and
// cached, so packages can call Load for their own config independently:
//
//	type StripeConfig struct {
//		SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
//		WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
//	}
//
//	var cfg StripeConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// MustLoad panics instead of returning an error and is meant for main packages.
package config
