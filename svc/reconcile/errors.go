package reconcile

import "errors"

var (
	ErrPreviewNotAllowed      = errors.New("reconcile: preview can only start from a draft profile")
	ErrProcessorNotConfigured = errors.New("reconcile: payment processor not configured")

	ErrTaskAlreadyRegistered  = errors.New("reconcile: task already registered")
	ErrSchedulerNotConfigured = errors.New("reconcile: scheduler has no tasks")
)
