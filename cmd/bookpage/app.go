package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	billingmod "github.com/dmitrymomot/bookpage/modules/billing"
	"github.com/dmitrymomot/bookpage/pkg/config"
	"github.com/dmitrymomot/bookpage/pkg/httpserver"
	"github.com/dmitrymomot/bookpage/pkg/jwt"
	"github.com/dmitrymomot/bookpage/pkg/logger"
	"github.com/dmitrymomot/bookpage/pkg/pg"
	"github.com/dmitrymomot/bookpage/pkg/redis"
	"github.com/dmitrymomot/bookpage/svc/billing"
	"github.com/dmitrymomot/bookpage/svc/profile"
	"github.com/dmitrymomot/bookpage/svc/reconcile"
)

type appConfig struct {
	Env            string `env:"APP_ENV" envDefault:"development"`
	Name           string `env:"APP_NAME" envDefault:"bookpage"`
	JWTSecret      string `env:"AUTH_JWT_SECRET"`
	DebugEndpoints bool   `env:"APP_DEBUG_ENDPOINTS" envDefault:"false"`
}

type Config struct {
	App       appConfig
	PG        pg.Config
	Redis     redis.Config
	HTTP      httpserver.Config
	Billing   billing.Config
	Stripe    billing.StripeConfig
	Reconcile reconcile.Config
}

// app holds the wired services shared by every command.
type app struct {
	cfg       Config
	log       *slog.Logger
	pool      *pgxpool.Pool
	redis     *goredis.Client
	store     profile.Store
	events    billing.EventLog
	processor billing.Processor
	rec       *billing.Reconciler
	reconcile *reconcile.Service
	checks    []func(context.Context) error
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg Config) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(cfg.App.Env, cfg.App.Name),
		logger.WithContextValue("request_id", middleware.RequestIDKey),
	)
}

// newApp connects to Postgres, and to Redis when withRedis is set, and wires
// the billing services on top.
func newApp(ctx context.Context, cfg Config, log *slog.Logger, withRedis bool) (*app, error) {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		store:  profile.NewPostgresStore(pool),
		checks: []func(context.Context) error{pg.Healthcheck(pool)},
	}

	if withRedis {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		a.events = billing.NewRedisEventLog(client, cfg.Billing.EventLogTTL)
		a.checks = append(a.checks, redis.Healthcheck(client))
	}

	if cfg.Stripe.SecretKey != "" {
		proc, err := billing.NewStripeClient(cfg.Stripe)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.processor = proc
	} else {
		log.Warn("STRIPE_SECRET_KEY is not set; processor calls are disabled")
	}

	a.wire()
	return a, nil
}

func (a *app) wire() {
	recOpts := []billing.ReconcilerOption{
		billing.WithGracePeriod(a.cfg.Billing.GracePeriod),
		billing.WithLogger(a.log),
	}
	rsOpts := []reconcile.Option{
		reconcile.WithPreviewDuration(a.cfg.Reconcile.PreviewDuration),
		reconcile.WithProcessorTimeout(a.cfg.Reconcile.ProcessorTimeout),
		reconcile.WithLogger(a.log),
	}
	if a.processor != nil {
		recOpts = append(recOpts, billing.WithProcessor(a.processor))
		rsOpts = append(rsOpts, reconcile.WithProcessor(a.processor))
	}
	a.rec = billing.NewReconciler(a.store, recOpts...)
	a.reconcile = reconcile.New(a.store, a.rec, rsOpts...)
}

func (a *app) router() (http.Handler, error) {
	tokens, err := jwt.New(a.cfg.App.JWTSecret, jwt.WithIssuer(a.cfg.App.Name))
	if err != nil {
		return nil, fmt.Errorf("AUTH_JWT_SECRET: %w", err)
	}

	webhookOpts := []billing.RouterOption{
		billing.WithDeadLetterSink(a.store),
		billing.WithHandlerTimeout(a.cfg.Billing.HandlerTimeout),
		billing.WithRouterLogger(a.log),
	}
	if a.events != nil {
		webhookOpts = append(webhookOpts, billing.WithEventLog(a.events))
	}

	handlerOpts := []billingmod.Option{billingmod.WithLogger(a.log)}
	if a.processor != nil {
		handlerOpts = append(handlerOpts, billingmod.WithProcessor(a.processor, a.cfg.Stripe.PortalReturnURL))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/health/live", httpserver.HealthCheckHandler(a.log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(a.log, a.checks...))
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/", billingmod.Router(billingmod.RouterOptions{
		Webhook:  billing.NewRouter(a.cfg.Stripe.WebhookSecret, a.rec, webhookOpts...),
		Handlers: billingmod.NewHandlers(a.store, a.reconcile, handlerOpts...),
		Auth:     jwt.Middleware(tokens, jwt.BearerTokenExtractor, jwt.CookieTokenExtractor("token")),
		Debug:    a.cfg.App.DebugEndpoints,
	}))
	return r, nil
}

func (a *app) Close() {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.log.Error("failed to close connections", logger.Error(err))
	}
}
