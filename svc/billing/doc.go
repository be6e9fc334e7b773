// Package billing keeps profile access state in step with the payment
// processor.
//
// Inbound webhooks enter through Router, which verifies the Stripe signature,
// suppresses redeliveries via an EventLog and dispatches by event type to the
// Reconciler. Payloads are narrowed at that boundary into Subscription,
// Invoice and CheckoutSession, so handlers never see the full upstream
// objects.
//
// Upstream statuses are reduced by NormalizeStatus, and the resulting profile
// state is computed by DeriveState from the latest known status alone. That is
// what makes redelivery safe: applying an event twice writes the same row
// twice.
//
// Two concurrent events for the same subscription are last-writer-wins. The
// processor delivers per-object events mostly in order, and the reconcile
// sweeps repair what slips through.
//
// StripeClient is the Processor used in production:
//
//	proc, err := billing.NewStripeClient(cfg)
//	rec := billing.NewReconciler(store, billing.WithProcessor(proc))
//	http.Handle("/webhooks/stripe", billing.NewRouter(cfg.WebhookSecret, rec))
package billing
