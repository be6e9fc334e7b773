package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/bookpage/pkg/logger"
	"github.com/dmitrymomot/bookpage/svc/billing"
	"github.com/dmitrymomot/bookpage/svc/profile"
)

const webhookSecret = "whsec_test_secret"

func eventPayload(t *testing.T, id, eventType string, object any) []byte {
	t.Helper()
	obj, err := json.Marshal(object)
	require.NoError(t, err)
	return []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","type":%q,"api_version":"2025-03-31.basil","created":%d,"data":{"object":%s}}`,
		id, eventType, testNow.Unix(), obj,
	))
}

func signedRequest(t *testing.T, payload []byte, secret string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func subscriptionObject(profileID, id, status string) map[string]any {
	return map[string]any{
		"id":       id,
		"object":   "subscription",
		"customer": "cus_router",
		"status":   status,
		"metadata": map[string]string{billing.MetadataProfileID: profileID},
		"items": map[string]any{"data": []map[string]any{
			{"current_period_start": testNow.Unix(), "current_period_end": testNow.Add(30 * 24 * time.Hour).Unix()},
		}},
	}
}

type routerFixture struct {
	*fixture
	events *billing.MemoryEventLog
	router *billing.Router
}

func newRouterFixture(t *testing.T, opts ...billing.RouterOption) *routerFixture {
	t.Helper()
	f := newFixture(t)
	events := billing.NewMemoryEventLog(time.Hour)
	opts = append([]billing.RouterOption{
		billing.WithEventLog(events),
		billing.WithDeadLetterSink(f.store),
		billing.WithRouterLogger(logger.Discard()),
	}, opts...)
	return &routerFixture{
		fixture: f,
		events:  events,
		router:  billing.NewRouter(webhookSecret, f.rec, opts...),
	}
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_RejectsBeforeProcessing(t *testing.T) {
	t.Parallel()

	t.Run("method not allowed", func(t *testing.T) {
		t.Parallel()
		rf := newRouterFixture(t)
		rec := serve(rf.router, httptest.NewRequest(http.MethodGet, "/webhooks/stripe", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("secret not configured", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		router := billing.NewRouter("  ", f.rec, billing.WithRouterLogger(logger.Discard()))
		rec := serve(router, signedRequest(t, eventPayload(t, "evt_1", "ping", map[string]any{"id": "x"}), webhookSecret))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()
		rf := newRouterFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
		rec := serve(rf.router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		rf := newRouterFixture(t)
		p := rf.newProfile(t, nil)
		payload := eventPayload(t, "evt_bad", billing.EventSubscriptionCreated, subscriptionObject(p.ID.String(), "sub_1", "active"))
		rec := serve(rf.router, signedRequest(t, payload, "whsec_other"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, profile.StatusDraft, rf.profile(t, p.ID).Status, "no state mutation on bad signature")
	})

	t.Run("tampered body", func(t *testing.T) {
		t.Parallel()
		rf := newRouterFixture(t)
		req := signedRequest(t, eventPayload(t, "evt_t", "ping", map[string]any{"id": "x"}), webhookSecret)
		req.Body = http.NoBody
		rec := serve(rf.router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		t.Parallel()
		rf := newRouterFixture(t)
		big := bytes.Repeat([]byte("a"), 2<<20)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(big))
		req.Header.Set("Stripe-Signature", "t=1,v1=abc")
		rec := serve(rf.router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRouter_DispatchesSubscriptionEvent(t *testing.T) {
	t.Parallel()
	rf := newRouterFixture(t)
	p := rf.newProfile(t, nil)

	payload := eventPayload(t, "evt_created", billing.EventSubscriptionCreated,
		subscriptionObject(p.ID.String(), "sub_R", "active"))
	rec := serve(rf.router, signedRequest(t, payload, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["received"])

	got := rf.profile(t, p.ID)
	assert.Equal(t, profile.StatusPublished, got.Status)
	assert.Equal(t, profile.SubscriptionActive, got.SubscriptionStatus)

	seen, err := rf.events.Seen(context.Background(), "evt_created")
	require.NoError(t, err)
	assert.True(t, seen)

	t.Run("redelivery is acknowledged as duplicate", func(t *testing.T) {
		rec := serve(rf.router, signedRequest(t, payload, webhookSecret))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"duplicate":true`)
	})
}

func TestRouter_InvoiceEvents(t *testing.T) {
	t.Parallel()
	rf := newRouterFixture(t)
	p := rf.newProfile(t, nil)

	rec := serve(rf.router, signedRequest(t, eventPayload(t, "evt_1", billing.EventSubscriptionCreated,
		subscriptionObject(p.ID.String(), "sub_INV", "active")), webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	failed := map[string]any{
		"id": "in_1", "object": "invoice", "customer": "cus_router", "status": "open",
		"amount_due": 900, "currency": "usd",
		"parent": map[string]any{"subscription_details": map[string]any{"subscription": "sub_INV"}},
	}
	rec = serve(rf.router, signedRequest(t, eventPayload(t, "evt_2", billing.EventInvoicePaymentFailed, failed), webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	got := rf.profile(t, p.ID)
	assert.Equal(t, profile.SubscriptionPastDue, got.SubscriptionStatus)
	assert.NotNil(t, got.GracePeriodEndsAt)

	failed["status"] = "paid"
	failed["amount_paid"] = 900
	rec = serve(rf.router, signedRequest(t, eventPayload(t, "evt_3", billing.EventInvoicePaid, failed), webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	got = rf.profile(t, p.ID)
	assert.Equal(t, profile.SubscriptionActive, got.SubscriptionStatus)
	assert.Nil(t, got.GracePeriodEndsAt)
}

func TestRouter_UnknownEventIsNoop(t *testing.T) {
	t.Parallel()
	rf := newRouterFixture(t)

	payload := eventPayload(t, "evt_unknown", "customer.updated", map[string]any{"id": "cus_1", "object": "customer"})
	rec := serve(rf.router, signedRequest(t, payload, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored":true`)
}

func TestRouter_LogicalFailureIsAcknowledgedAndRecorded(t *testing.T) {
	t.Parallel()
	rf := newRouterFixture(t)

	obj := subscriptionObject("", "sub_orphan", "active")
	obj["customer"] = "cus_nobody"
	rec := serve(rf.router, signedRequest(t, eventPayload(t, "evt_orphan", billing.EventSubscriptionCreated, obj), webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	dead, err := rf.store.ListUnresolvedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "evt_orphan", dead[0].EventID)
	assert.Equal(t, billing.EventSubscriptionCreated, dead[0].EventType)
	assert.Contains(t, dead[0].Reason, "cus_nobody")
	assert.NotEmpty(t, dead[0].Payload)
}

func TestRouter_MalformedObjectIsDeadLettered(t *testing.T) {
	t.Parallel()
	rf := newRouterFixture(t)

	payload := eventPayload(t, "evt_malformed", billing.EventInvoicePaymentFailed, map[string]any{"object": "invoice"})
	rec := serve(rf.router, signedRequest(t, payload, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	dead, err := rf.store.ListUnresolvedEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
}

func TestRouter_InfrastructureErrorAsksForRedelivery(t *testing.T) {
	t.Parallel()

	calls := 0
	rf := newRouterFixture(t, billing.WithHandler(billing.EventSubscriptionUpdated,
		func(ctx context.Context, e *stripe.Event) (billing.Result, error) {
			calls++
			if calls == 1 {
				return billing.Result{}, errors.New("store unavailable")
			}
			return billing.Result{Success: true, Message: "ok"}, nil
		}))

	payload := eventPayload(t, "evt_retry", billing.EventSubscriptionUpdated, map[string]any{"id": "sub_1", "object": "subscription"})

	rec := serve(rf.router, signedRequest(t, payload, webhookSecret))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	seen, err := rf.events.Seen(context.Background(), "evt_retry")
	require.NoError(t, err)
	assert.False(t, seen, "failed events are not marked processed")

	rec = serve(rf.router, signedRequest(t, payload, webhookSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, calls)
}

func TestRouter_HandlerGetsBoundedContext(t *testing.T) {
	t.Parallel()

	var deadline time.Time
	var hasDeadline bool
	rf := newRouterFixture(t,
		billing.WithHandlerTimeout(3*time.Second),
		billing.WithHandler(billing.EventSubscriptionDeleted, func(ctx context.Context, _ *stripe.Event) (billing.Result, error) {
			deadline, hasDeadline = ctx.Deadline()
			return billing.Result{Success: true}, nil
		}))

	payload := eventPayload(t, "evt_ctx", billing.EventSubscriptionDeleted, map[string]any{"id": "sub_1"})
	rec := serve(rf.router, signedRequest(t, payload, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, hasDeadline)
	assert.WithinDuration(t, time.Now().Add(3*time.Second), deadline, 2*time.Second)
}
