// Package profile owns the publishable profile record, the local mirror of
// processor subscriptions and the access policy derived from them.
//
// Two Store implementations are provided. PostgresStore is the production
// store; its schema ships as goose migrations in Migrations. MemoryStore has
// identical conditional-update semantics and backs tests and local runs.
//
// Access decisions are pure functions of a Profile and a point in time:
//
//	if !profile.CanServe(p, time.Now()) {
//		// render the "page unavailable" view
//	}
package profile
