package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dmitrymomot/bookpage/svc/billing"
)

func TestDecodeSubscription(t *testing.T) {
	t.Parallel()

	t.Run("periods from items and expanded customer", func(t *testing.T) {
		t.Parallel()
		sub, err := billing.DecodeSubscription([]byte(`{
			"id": "sub_1", "object": "subscription", "status": "trialing",
			"customer": {"id": "cus_1", "object": "customer"},
			"trial_start": 100, "trial_end": 200, "created": 90,
			"metadata": {"profile_id": " 6f1c3c1e-7d0c-4f61-9a53-3a2f0d1f8d11 "},
			"items": {"data": [{"current_period_start": 100, "current_period_end": 300}]}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "sub_1", sub.ID)
		assert.Equal(t, "cus_1", sub.CustomerID)
		assert.Equal(t, "trialing", sub.Status)
		assert.EqualValues(t, 100, sub.CurrentPeriodStart)
		assert.EqualValues(t, 300, sub.CurrentPeriodEnd)
		assert.Equal(t, "6f1c3c1e-7d0c-4f61-9a53-3a2f0d1f8d11", sub.ProfileID())
	})

	t.Run("legacy top-level periods", func(t *testing.T) {
		t.Parallel()
		sub, err := billing.DecodeSubscription([]byte(`{
			"id": "sub_2", "customer": "cus_2", "status": "active",
			"current_period_start": 10, "current_period_end": 20
		}`))
		require.NoError(t, err)
		assert.Equal(t, "cus_2", sub.CustomerID)
		assert.EqualValues(t, 10, sub.CurrentPeriodStart)
		assert.EqualValues(t, 20, sub.CurrentPeriodEnd)
		assert.Empty(t, sub.ProfileID())
	})

	t.Run("rejects other objects", func(t *testing.T) {
		t.Parallel()
		_, err := billing.DecodeSubscription([]byte(`{"id": "in_1", "object": "invoice"}`))
		assert.ErrorIs(t, err, billing.ErrMalformedPayload)
		_, err = billing.DecodeSubscription([]byte(`not json`))
		assert.ErrorIs(t, err, billing.ErrMalformedPayload)
	})
}

func TestDecodeInvoice(t *testing.T) {
	t.Parallel()

	t.Run("subscription from parent details", func(t *testing.T) {
		t.Parallel()
		inv, err := billing.DecodeInvoice([]byte(`{
			"id": "in_1", "object": "invoice", "customer": "cus_1", "status": "open",
			"amount_due": 900, "amount_paid": 0, "currency": "usd",
			"hosted_invoice_url": "https://invoice.example/in_1",
			"parent": {"subscription_details": {"subscription": "sub_1", "metadata": {"profile_id": "p-1"}}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "sub_1", inv.SubscriptionID)
		assert.Equal(t, "p-1", inv.ProfileID())
		assert.EqualValues(t, 900, inv.AmountDue)
		assert.Equal(t, "https://invoice.example/in_1", inv.HostedInvoiceURL)
	})

	t.Run("legacy subscription field wins", func(t *testing.T) {
		t.Parallel()
		inv, err := billing.DecodeInvoice([]byte(`{
			"id": "in_2", "subscription": "sub_legacy", "customer": "cus_1",
			"metadata": {"profile_id": "p-own"},
			"parent": {"subscription_details": {"subscription": "sub_other", "metadata": {"profile_id": "p-2"}}}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "sub_legacy", inv.SubscriptionID)
		assert.Equal(t, "p-own", inv.ProfileID())
	})
}

func TestDecodeCheckoutSession(t *testing.T) {
	t.Parallel()

	cs, err := billing.DecodeCheckoutSession([]byte(`{
		"id": "cs_1", "object": "checkout.session", "mode": "subscription",
		"customer": "cus_1", "subscription": "sub_1", "client_reference_id": "ref-1"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "ref-1", cs.ProfileID())
	assert.Equal(t, "sub_1", cs.SubscriptionID)

	cs.Metadata = map[string]string{billing.MetadataProfileID: "meta-1"}
	assert.Equal(t, "meta-1", cs.ProfileID())
}

func TestSubscriptionFromStripe(t *testing.T) {
	t.Parallel()

	assert.Equal(t, billing.Subscription{}, billing.SubscriptionFromStripe(nil))

	got := billing.SubscriptionFromStripe(&stripe.Subscription{
		ID:                "sub_1",
		Status:            stripe.SubscriptionStatusPastDue,
		Customer:          &stripe.Customer{ID: "cus_1"},
		CancelAtPeriodEnd: true,
		Created:           50,
		Metadata:          map[string]string{billing.MetadataProfileID: "p-1"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			nil,
			{CurrentPeriodStart: 100, CurrentPeriodEnd: 200},
		}},
	})
	assert.Equal(t, "sub_1", got.ID)
	assert.Equal(t, "past_due", got.Status)
	assert.Equal(t, "cus_1", got.CustomerID)
	assert.True(t, got.CancelAtPeriodEnd)
	assert.EqualValues(t, 100, got.CurrentPeriodStart)
	assert.EqualValues(t, 200, got.CurrentPeriodEnd)
	assert.Equal(t, "p-1", got.ProfileID())
}
