package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// MetadataProfileID is the metadata key that ties processor objects to a profile.
const MetadataProfileID = "profile_id"

// Event types the service reacts to.
const (
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaid             = "invoice.paid"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventCheckoutCompleted       = "checkout.session.completed"
)

// Subscription carries only the subscription fields reconciliation reads.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string // upstream status, see NormalizeStatus
	CancelAtPeriodEnd  bool
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	TrialStart         int64
	TrialEnd           int64
	CanceledAt         int64
	EndedAt            int64
	Created            int64
	Metadata           map[string]string
}

// ProfileID returns the profile id embedded in metadata, if any.
func (s Subscription) ProfileID() string {
	return strings.TrimSpace(s.Metadata[MetadataProfileID])
}

// Invoice carries only the invoice fields reconciliation reads.
type Invoice struct {
	ID               string
	CustomerID       string
	SubscriptionID   string
	Status           string
	AmountDue        int64
	AmountPaid       int64
	Currency         string
	HostedInvoiceURL string
	Metadata         map[string]string
}

// ProfileID returns the profile id from invoice or subscription metadata.
func (i Invoice) ProfileID() string {
	return strings.TrimSpace(i.Metadata[MetadataProfileID])
}

// CheckoutSession carries only the checkout fields reconciliation reads.
type CheckoutSession struct {
	ID                string
	Mode              string
	CustomerID        string
	SubscriptionID    string
	ClientReferenceID string
	Metadata          map[string]string
}

// ProfileID prefers metadata and falls back to the client reference id.
func (c CheckoutSession) ProfileID() string {
	if id := strings.TrimSpace(c.Metadata[MetadataProfileID]); id != "" {
		return id
	}
	return strings.TrimSpace(c.ClientReferenceID)
}

// expandable decodes a processor reference that is either an id string or an
// expanded object with an "id" field.
type expandable string

func (e *expandable) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*e = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandable(s)
		return nil
	default:
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*e = expandable(obj.ID)
		return nil
	}
}

type periodItem struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

type subscriptionPayload struct {
	ID                 string            `json:"id"`
	Object             string            `json:"object"`
	Customer           expandable        `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	TrialStart         int64             `json:"trial_start"`
	TrialEnd           int64             `json:"trial_end"`
	CanceledAt         int64             `json:"canceled_at"`
	EndedAt            int64             `json:"ended_at"`
	Created            int64             `json:"created"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []periodItem `json:"data"`
	} `json:"items"`
}

// DecodeSubscription narrows a raw subscription object. Billing periods are
// read from the first item when the top-level fields are absent, which is
// where newer API versions report them.
func DecodeSubscription(raw []byte) (Subscription, error) {
	var p subscriptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Subscription{}, errors.Join(ErrMalformedPayload, err)
	}
	if p.ID == "" || (p.Object != "" && p.Object != "subscription") {
		return Subscription{}, errors.Join(ErrMalformedPayload, errors.New("not a subscription object"))
	}

	start, end := p.CurrentPeriodStart, p.CurrentPeriodEnd
	if start == 0 && end == 0 && len(p.Items.Data) > 0 {
		start, end = p.Items.Data[0].CurrentPeriodStart, p.Items.Data[0].CurrentPeriodEnd
	}

	return Subscription{
		ID:                 p.ID,
		CustomerID:         string(p.Customer),
		Status:             p.Status,
		CancelAtPeriodEnd:  p.CancelAtPeriodEnd,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		TrialStart:         p.TrialStart,
		TrialEnd:           p.TrialEnd,
		CanceledAt:         p.CanceledAt,
		EndedAt:            p.EndedAt,
		Created:            p.Created,
		Metadata:           p.Metadata,
	}, nil
}

type invoicePayload struct {
	ID               string            `json:"id"`
	Object           string            `json:"object"`
	Customer         expandable        `json:"customer"`
	Subscription     expandable        `json:"subscription"`
	Status           string            `json:"status"`
	AmountDue        int64             `json:"amount_due"`
	AmountPaid       int64             `json:"amount_paid"`
	Currency         string            `json:"currency"`
	HostedInvoiceURL string            `json:"hosted_invoice_url"`
	Metadata         map[string]string `json:"metadata"`
	Parent           *struct {
		SubscriptionDetails *struct {
			Subscription expandable        `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// DecodeInvoice narrows a raw invoice object. The subscription reference is
// taken from the legacy top-level field or from parent.subscription_details.
func DecodeInvoice(raw []byte) (Invoice, error) {
	var p invoicePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Invoice{}, errors.Join(ErrMalformedPayload, err)
	}
	if p.ID == "" || (p.Object != "" && p.Object != "invoice") {
		return Invoice{}, errors.Join(ErrMalformedPayload, errors.New("not an invoice object"))
	}

	inv := Invoice{
		ID:               p.ID,
		CustomerID:       string(p.Customer),
		SubscriptionID:   string(p.Subscription),
		Status:           p.Status,
		AmountDue:        p.AmountDue,
		AmountPaid:       p.AmountPaid,
		Currency:         p.Currency,
		HostedInvoiceURL: p.HostedInvoiceURL,
		Metadata:         map[string]string{},
	}
	for k, v := range p.Metadata {
		inv.Metadata[k] = v
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		details := p.Parent.SubscriptionDetails
		if inv.SubscriptionID == "" {
			inv.SubscriptionID = string(details.Subscription)
		}
		if _, ok := inv.Metadata[MetadataProfileID]; !ok && details.Metadata[MetadataProfileID] != "" {
			inv.Metadata[MetadataProfileID] = details.Metadata[MetadataProfileID]
		}
	}
	return inv, nil
}

type checkoutPayload struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	Mode              string            `json:"mode"`
	Customer          expandable        `json:"customer"`
	Subscription      expandable        `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// DecodeCheckoutSession narrows a raw checkout session object.
func DecodeCheckoutSession(raw []byte) (CheckoutSession, error) {
	var p checkoutPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return CheckoutSession{}, errors.Join(ErrMalformedPayload, err)
	}
	if p.ID == "" || (p.Object != "" && p.Object != "checkout.session") {
		return CheckoutSession{}, errors.Join(ErrMalformedPayload, errors.New("not a checkout session object"))
	}
	return CheckoutSession{
		ID:                p.ID,
		Mode:              p.Mode,
		CustomerID:        string(p.Customer),
		SubscriptionID:    string(p.Subscription),
		ClientReferenceID: p.ClientReferenceID,
		Metadata:          p.Metadata,
	}, nil
}
