// Package jwt verifies HS256 bearer tokens issued by the account service and
// exposes the authenticated user on the request context.
//
// Only verification and a small signing helper live here; token issuance
// belongs to the auth service that owns user accounts.
//
//	svc, err := jwt.New(secret)
//	r.With(jwt.Middleware(svc)).Post("/billing/sync", handler)
//
//	// inside handler
//	userID, ok := jwt.UserID(r.Context())
package jwt
