package profile

import "errors"

var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrProfileExists        = errors.New("profile already exists for user")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidProfile       = errors.New("invalid profile")
	ErrInvalidSubscription  = errors.New("invalid subscription")
	ErrStoreFailure         = errors.New("profile store failure")
)
