package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/bookpage/pkg/jwt"
	"github.com/dmitrymomot/bookpage/pkg/logger"
	billingsvc "github.com/dmitrymomot/bookpage/svc/billing"
	"github.com/dmitrymomot/bookpage/svc/profile"
	"github.com/dmitrymomot/bookpage/svc/reconcile"
)

// Handlers serves the billing endpoints for profile owners and operators.
type Handlers struct {
	store     profile.Store
	reconcile *reconcile.Service
	processor billingsvc.Processor
	returnURL string
	now       func() time.Time
	log       *slog.Logger
}

type Option func(*Handlers)

// WithProcessor enables the portal endpoint.
func WithProcessor(p billingsvc.Processor, returnURL string) Option {
	return func(h *Handlers) {
		h.processor = p
		h.returnURL = returnURL
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Handlers) {
		if now != nil {
			h.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handlers) {
		if l != nil {
			h.log = l
		}
	}
}

func NewHandlers(store profile.Store, rs *reconcile.Service, opts ...Option) *Handlers {
	h := &Handlers{
		store:     store,
		reconcile: rs,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Sync rebuilds the caller's profile from the processor.
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownProfile(w, r)
	if !ok {
		return
	}
	synced, err := h.reconcile.FullSync(r.Context(), p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Status:             synced.Status,
		SubscriptionStatus: synced.SubscriptionStatus,
	})
}

// Portal returns a billing portal link, creating the processor customer on
// first use.
func (h *Handlers) Portal(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "billing portal is not configured"})
		return
	}
	p, ok := h.ownProfile(w, r)
	if !ok {
		return
	}

	var req portalRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	ctx := r.Context()
	customerID := p.StripeCustomerID
	if customerID == "" {
		created, err := h.processor.CreateCustomer(ctx, req.Email, p.ID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		customerID, err = h.store.SetCustomerID(ctx, p.ID, created)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.log.InfoContext(ctx, "billing customer attached",
			logger.Component("billing"), logger.ProfileID(p.ID), logger.CustomerID(customerID))
	}

	url, err := h.processor.CreatePortalSession(ctx, customerID, h.returnURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, portalResponse{URL: url})
}

// StartPreview opens the preview window for the caller's draft profile.
func (h *Handlers) StartPreview(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownProfile(w, r)
	if !ok {
		return
	}
	started, err := h.reconcile.StartPreview(r.Context(), p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(started))
}

// Access reports whether a profile may be shown publicly.
func (h *Handlers) Access(w http.ResponseWriter, r *http.Request) {
	id, ok := profileIDParam(w, r)
	if !ok {
		return
	}
	p, err := h.store.GetProfile(r.Context(), id)
	if err != nil && !errors.Is(err, profile.ErrProfileNotFound) {
		h.fail(w, r, err)
		return
	}

	now := h.now()
	_, reason := profile.Explain(p, now)
	status := http.StatusOK
	if p == nil {
		status = http.StatusNotFound
	}
	writeJSON(w, status, accessResponse{
		Allowed: profile.IsAccessAllowed(p, now),
		Serve:   profile.CanServe(p, now),
		Reason:  reason,
	})
}

// Debug returns an operator snapshot of a profile.
func (h *Handlers) Debug(w http.ResponseWriter, r *http.Request) {
	id, ok := profileIDParam(w, r)
	if !ok {
		return
	}
	snap, err := h.reconcile.Snapshot(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDebugResponse(snap))
}

func (h *Handlers) ownProfile(w http.ResponseWriter, r *http.Request) (*profile.Profile, bool) {
	subject, ok := jwt.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return nil, false
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid subject"})
		return nil, false
	}
	p, err := h.store.GetProfileByUserID(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return p, true
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, profile.ErrProfileNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "profile not found"})
	case errors.Is(err, reconcile.ErrPreviewNotAllowed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "preview can only start from a draft profile"})
	case errors.Is(err, billingsvc.ErrProcessorRequest), errors.Is(err, reconcile.ErrProcessorNotConfigured):
		h.log.ErrorContext(r.Context(), "payment processor request failed",
			logger.Component("billing"), slog.String("path", r.URL.Path), logger.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "payment processor unavailable"})
	default:
		h.log.ErrorContext(r.Context(), "billing request failed",
			logger.Component("billing"), slog.String("path", r.URL.Path), logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func profileIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "profileID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid profile id"})
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
