package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/bookpage/svc/billing"
	"github.com/dmitrymomot/bookpage/svc/profile"
)

const (
	DefaultPreviewDuration  = 48 * time.Hour
	DefaultProcessorTimeout = 10 * time.Second
)

// Service runs the sweeps, full sync and preview start against one store.
type Service struct {
	store            profile.Store
	rec              *billing.Reconciler
	processor        billing.Processor
	previewDuration  time.Duration
	processorTimeout time.Duration
	now              func() time.Time
	log              *slog.Logger
}

type Option func(*Service)

// WithProcessor sets the processor queried by the preview sweep and full sync.
// Without one, profiles that have a customer id fail those operations.
func WithProcessor(p billing.Processor) Option {
	return func(s *Service) { s.processor = p }
}

func WithPreviewDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.previewDuration = d
		}
	}
}

func WithProcessorTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.processorTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New builds a Service. rec supplies the subscription mirroring and state
// derivation shared with the webhook handlers.
func New(store profile.Store, rec *billing.Reconciler, opts ...Option) *Service {
	s := &Service{
		store:            store,
		rec:              rec,
		previewDuration:  DefaultPreviewDuration,
		processorTimeout: DefaultProcessorTimeout,
		now:              time.Now,
		log:              slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) listSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	if s.processor == nil {
		return nil, ErrProcessorNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.processorTimeout)
	defer cancel()
	return s.processor.ListSubscriptions(ctx, customerID, "all")
}
