package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterOptions configures which parts of the billing module are mounted.
// Each part is optional.
type RouterOptions struct {
	// Webhook receives processor events at /webhooks/stripe.
	Webhook http.Handler

	// Handlers serves the /billing endpoints.
	Handlers *Handlers

	// Auth guards the endpoints acting on the caller's own profile.
	Auth func(http.Handler) http.Handler

	// Debug mounts /billing/debug/{profileID}. Keep it off in production.
	Debug bool
}

// Router creates the billing module router.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/", billing.Router(billing.RouterOptions{
//	    Webhook:  billingsvc.NewRouter(stripeCfg.WebhookSecret, rec),
//	    Handlers: billing.NewHandlers(store, sweeper, billing.WithProcessor(proc)),
//	    Auth:     jwt.Middleware(tokens),
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	if opts.Webhook != nil {
		r.Handle("/webhooks/stripe", opts.Webhook)
	}
	if opts.Handlers == nil {
		return r
	}
	h := opts.Handlers

	r.Route("/billing", func(b chi.Router) {
		b.Get("/access/{profileID}", h.Access)

		b.Group(func(own chi.Router) {
			if opts.Auth != nil {
				own.Use(opts.Auth)
			}
			own.Post("/sync", h.Sync)
			own.Post("/portal", h.Portal)
			own.Post("/preview", h.StartPreview)
		})

		if opts.Debug {
			b.Get("/debug/{profileID}", h.Debug)
		}
	})

	return r
}
