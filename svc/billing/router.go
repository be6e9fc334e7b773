package billing

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/bookpage/pkg/logger"
	"github.com/dmitrymomot/bookpage/svc/profile"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// DeadLetterSink stores events that could not be applied.
type DeadLetterSink interface {
	RecordUnresolvedEvent(ctx context.Context, ev *profile.UnresolvedEvent) error
}

// HandlerFunc applies one verified event.
type HandlerFunc func(ctx context.Context, event *stripe.Event) (Result, error)

// Router verifies inbound webhook deliveries and dispatches them by type.
//
// Response codes: 200 once dispatch completes, including logical handler
// failures (recorded as dead letters) and unknown event types; 400 for bad
// signatures or bodies; 500 when a handler hit an infrastructure error so the
// sender redelivers; 503 when no signing secret is configured.
type Router struct {
	secret     string
	handlers   map[string]HandlerFunc
	events     EventLog
	deadLetter DeadLetterSink
	timeout    time.Duration
	log        *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithEventLog enables duplicate suppression.
func WithEventLog(l EventLog) RouterOption {
	return func(r *Router) { r.events = l }
}

// WithDeadLetterSink records logical failures for operators.
func WithDeadLetterSink(s DeadLetterSink) RouterOption {
	return func(r *Router) { r.deadLetter = s }
}

// WithHandlerTimeout bounds each dispatch.
func WithHandlerTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithHandler registers or replaces the handler for an event type.
func WithHandler(eventType string, h HandlerFunc) RouterOption {
	return func(r *Router) { r.handlers[eventType] = h }
}

// NewRouter wires the reconciler handlers for every event type the service
// reacts to.
func NewRouter(secret string, rec *Reconciler, opts ...RouterOption) *Router {
	r := &Router{
		secret:   strings.TrimSpace(secret),
		handlers: make(map[string]HandlerFunc),
		timeout:  10 * time.Second,
		log:      slog.Default(),
	}
	if rec != nil {
		subscriptionHandler := func(apply func(context.Context, Subscription) (Result, error)) HandlerFunc {
			return func(ctx context.Context, e *stripe.Event) (Result, error) {
				sub, err := DecodeSubscription(e.Data.Raw)
				if err != nil {
					return failed("%v", err), nil
				}
				return apply(ctx, sub)
			}
		}
		invoiceHandler := func(apply func(context.Context, Invoice) (Result, error)) HandlerFunc {
			return func(ctx context.Context, e *stripe.Event) (Result, error) {
				inv, err := DecodeInvoice(e.Data.Raw)
				if err != nil {
					return failed("%v", err), nil
				}
				return apply(ctx, inv)
			}
		}

		r.handlers[EventSubscriptionCreated] = subscriptionHandler(rec.HandleSubscriptionCreated)
		r.handlers[EventSubscriptionUpdated] = subscriptionHandler(rec.HandleSubscriptionUpdated)
		r.handlers[EventSubscriptionDeleted] = subscriptionHandler(rec.HandleSubscriptionDeleted)
		r.handlers[EventInvoicePaymentSucceeded] = invoiceHandler(rec.HandleInvoicePaymentSucceeded)
		r.handlers[EventInvoicePaid] = invoiceHandler(rec.HandleInvoicePaymentSucceeded)
		r.handlers[EventInvoicePaymentFailed] = invoiceHandler(rec.HandleInvoicePaymentFailed)
		r.handlers[EventCheckoutCompleted] = func(ctx context.Context, e *stripe.Event) (Result, error) {
			cs, err := DecodeCheckoutSession(e.Data.Raw)
			if err != nil {
				return failed("%v", err), nil
			}
			return rec.HandleCheckoutCompleted(ctx, cs)
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(logger.Component("billing.webhook"))
	return r
}

type webhookResponse struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	Message   string `json:"message,omitempty"`
}

type webhookErrorResponse struct {
	Error string `json:"error"`
}

// ServeHTTP verifies the signature and dispatches the event.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, webhookErrorResponse{Error: "method not allowed"})
		return
	}
	if rt.secret == "" {
		status = http.StatusServiceUnavailable
		rt.log.ErrorContext(r.Context(), "webhook rejected", logger.Error(ErrMissingWebhookSecret))
		writeJSON(w, status, webhookErrorResponse{Error: "webhook secret not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: "failed to read request body"})
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		status = http.StatusBadRequest
		writeJSON(w, status, webhookErrorResponse{Error: ErrMissingSignature.Error()})
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, rt.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		status = http.StatusBadRequest
		rt.log.WarnContext(r.Context(), "webhook signature rejected", logger.Error(err))
		writeJSON(w, status, webhookErrorResponse{Error: ErrInvalidSignature.Error()})
		return
	}
	eventType = string(event.Type)
	log := rt.log.With(logger.EventID(event.ID), logger.EventType(eventType))

	handler, known := rt.handlers[eventType]
	if !known {
		HandlerResultsTotal.WithLabelValues(eventType, "ignored").Inc()
		log.DebugContext(r.Context(), "webhook ignored (unhandled type)")
		writeJSON(w, status, webhookResponse{Received: true, Ignored: true})
		return
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		rt.deadLetterEvent(r.Context(), log, &event, payload, "event has no data object")
		HandlerResultsTotal.WithLabelValues(eventType, "unresolved").Inc()
		writeJSON(w, status, webhookResponse{Received: true, Message: "event has no data object"})
		return
	}

	if rt.events != nil {
		seen, err := rt.events.Seen(r.Context(), event.ID)
		if err != nil {
			log.WarnContext(r.Context(), "event log unavailable; processing anyway", logger.Error(err))
		} else if seen {
			HandlerResultsTotal.WithLabelValues(eventType, "duplicate").Inc()
			writeJSON(w, status, webhookResponse{Received: true, Duplicate: true})
			return
		}
	}

	// Handlers run to completion even if the sender hangs up.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), rt.timeout)
	defer cancel()

	res, err := handler(ctx, &event)
	if err != nil {
		status = http.StatusInternalServerError
		HandlerResultsTotal.WithLabelValues(eventType, "error").Inc()
		log.ErrorContext(ctx, "webhook processing failed", logger.Error(err))
		writeJSON(w, status, webhookErrorResponse{Error: "processing failed"})
		return
	}

	if res.Success {
		HandlerResultsTotal.WithLabelValues(eventType, "applied").Inc()
		log.InfoContext(ctx, "webhook processed", logger.ProfileID(res.ProfileID), slog.String("result", res.Message))
	} else {
		HandlerResultsTotal.WithLabelValues(eventType, "unresolved").Inc()
		rt.deadLetterEvent(ctx, log, &event, payload, res.Message)
	}

	if rt.events != nil {
		if err := rt.events.MarkProcessed(ctx, event.ID); err != nil {
			log.WarnContext(ctx, "failed to mark event processed", logger.Error(err))
		}
	}

	writeJSON(w, status, webhookResponse{Received: true, Message: res.Message})
}

func (rt *Router) deadLetterEvent(ctx context.Context, log *slog.Logger, event *stripe.Event, payload []byte, reason string) {
	log.WarnContext(ctx, "webhook event not applied", slog.String("reason", reason))
	if rt.deadLetter == nil {
		return
	}
	err := rt.deadLetter.RecordUnresolvedEvent(ctx, &profile.UnresolvedEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		Reason:    reason,
		Payload:   payload,
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to record unresolved event", logger.Error(err))
	}
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("billing: encode webhook response", slog.Int("status", status), logger.Error(err))
	}
}
