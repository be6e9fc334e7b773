// Package reconcile repairs drift between stored profile state, elapsed time
// and the payment processor.
//
// The grace sweep demotes published, past-due profiles whose grace window has
// ended. The preview sweep closes expired preview windows, asking the
// processor whether the customer has paid in the meantime. FullSync rebuilds
// one profile from the processor's list of subscriptions and is the path of
// last resort when webhooks were lost entirely.
//
// Sweep writes go through the conditional store transitions, so a sweep that
// races a webhook either wins cleanly or changes nothing. Scheduler runs the
// sweeps on fixed intervals.
package reconcile
