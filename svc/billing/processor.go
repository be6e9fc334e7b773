package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// Processor is the payment processor as seen by reconciliation: a source of
// current truth that can be queried, plus the two write calls the product needs.
type Processor interface {
	GetSubscription(ctx context.Context, id string) (Subscription, error)
	// ListSubscriptions returns the customer's subscriptions with the given
	// upstream status, or all of them when status is "all" or empty.
	ListSubscriptions(ctx context.Context, customerID, status string) ([]Subscription, error)
	CreateCustomer(ctx context.Context, email string, profileID uuid.UUID) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// StripeClient implements Processor with stripe-go. It holds its own backend
// and key, so it never touches the package-level stripe.Key.
type StripeClient struct {
	subscriptions subscription.Client
	customers     customer.Client
	portal        portalsession.Client
}

// NewStripeClient builds a client with a bounded HTTP timeout.
func NewStripeClient(cfg StripeConfig) (*StripeClient, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	})
	return &StripeClient{
		subscriptions: subscription.Client{B: backend, Key: cfg.SecretKey},
		customers:     customer.Client{B: backend, Key: cfg.SecretKey},
		portal:        portalsession.Client{B: backend, Key: cfg.SecretKey},
	}, nil
}

func (c *StripeClient) GetSubscription(ctx context.Context, id string) (Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.subscriptions.Get(id, params)
	if err != nil {
		return Subscription{}, errors.Join(ErrProcessorRequest, fmt.Errorf("get subscription %s: %w", id, err))
	}
	return SubscriptionFromStripe(sub), nil
}

func (c *StripeClient) ListSubscriptions(ctx context.Context, customerID, status string) ([]Subscription, error) {
	if status == "" {
		status = "all"
	}
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(status),
	}
	params.Context = ctx

	var out []Subscription
	it := c.subscriptions.List(params)
	for it.Next() {
		out = append(out, SubscriptionFromStripe(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, errors.Join(ErrProcessorRequest, fmt.Errorf("list subscriptions for %s: %w", customerID, err))
	}
	return out, nil
}

func (c *StripeClient) CreateCustomer(ctx context.Context, email string, profileID uuid.UUID) (string, error) {
	params := &stripe.CustomerParams{}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(MetadataProfileID, profileID.String())
	params.Context = ctx
	// Retried creates for the same profile return the same customer.
	params.SetIdempotencyKey("customer-" + profileID.String())

	cus, err := c.customers.New(params)
	if err != nil {
		return "", errors.Join(ErrProcessorRequest, fmt.Errorf("create customer: %w", err))
	}
	return cus.ID, nil
}

func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer: stripe.String(customerID),
	}
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}
	params.Context = ctx

	sess, err := c.portal.New(params)
	if err != nil {
		return "", errors.Join(ErrProcessorRequest, fmt.Errorf("create portal session: %w", err))
	}
	return sess.URL, nil
}

// SubscriptionFromStripe narrows an SDK subscription to the fields
// reconciliation reads.
func SubscriptionFromStripe(s *stripe.Subscription) Subscription {
	if s == nil {
		return Subscription{}
	}
	out := Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialStart:        s.TrialStart,
		TrialEnd:          s.TrialEnd,
		CanceledAt:        s.CanceledAt,
		EndedAt:           s.EndedAt,
		Created:           s.Created,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, item := range s.Items.Data {
			if item == nil {
				continue
			}
			out.CurrentPeriodStart = item.CurrentPeriodStart
			out.CurrentPeriodEnd = item.CurrentPeriodEnd
			break
		}
	}
	return out
}
