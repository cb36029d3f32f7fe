package billing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements PaymentProvider on top of stripe-go.
type StripeProvider struct {
	api              *client.API
	webhookSecret    string
	webhookTolerance time.Duration
	timeout          time.Duration
}

// NewStripeProvider creates a provider from the billing config. A missing API
// key is accepted here so webhook verification still works; outbound calls
// then fail with a configuration error.
func NewStripeProvider(cfg Config) *StripeProvider {
	p := &StripeProvider{
		webhookSecret:    cfg.WebhookSecret,
		webhookTolerance: cfg.WebhookTolerance,
		timeout:          cfg.APITimeout,
	}
	if p.webhookTolerance <= 0 {
		p.webhookTolerance = defaultWebhookTolerance
	}
	if p.timeout <= 0 {
		p.timeout = defaultProviderAPITimeout
	}
	if cfg.SecretKey != "" {
		p.api = client.New(cfg.SecretKey, nil)
	}
	return p
}

func (p *StripeProvider) VerifySignature(payload []byte, signatureHeader string) (*Event, error) {
	if strings.TrimSpace(p.webhookSecret) == "" {
		return nil, NewConfigurationError("STRIPE_WEBHOOK_SECRET is not configured")
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, NewAuthenticationError(webhook.ErrNotSigned, "missing signature header")
	}

	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                p.webhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidHeader), errors.Is(err, webhook.ErrNotSigned):
			return nil, NewAuthenticationError(err, "malformed signature header")
		case errors.Is(err, webhook.ErrNoValidSignature):
			return nil, NewAuthenticationError(err, "signature mismatch")
		case errors.Is(err, webhook.ErrTooOld):
			return nil, NewAuthenticationError(err, "signature timestamp outside tolerance")
		default:
			return nil, NewAuthenticationError(err, "payload rejected")
		}
	}
	if ev.Data == nil {
		return nil, NewBadRequestError("event %s has no data object", ev.ID)
	}

	return &Event{
		ID:      ev.ID,
		Kind:    EventKind(ev.Type),
		Created: time.Unix(ev.Created, 0).UTC(),
		Object:  ev.Data.Raw,
	}, nil
}

func (p *StripeProvider) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if p.api == nil {
		return nil, NewConfigurationError("STRIPE_SECRET_KEY is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := p.api.Customers.Get(customerID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return nil, NewNotFoundError("customer %s not found at provider", customerID)
		}
		return nil, wrapProviderErr(err, "retrieve customer")
	}
	return &Customer{ID: c.ID, Email: c.Email, Name: c.Name, Deleted: c.Deleted}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	if p.api == nil {
		return nil, NewConfigurationError("STRIPE_SECRET_KEY is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:      stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		UIMode:    stripe.String("embedded"),
		ReturnURL: stripe.String(in.ReturnURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: in.Metadata,
		},
	}
	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	} else if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	if uid, ok := in.Metadata[MetadataUserIDKey]; ok {
		params.ClientReferenceID = stripe.String(uid)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, wrapProviderErr(err, "create checkout session")
	}
	return &CheckoutSession{ID: s.ID, ClientSecret: s.ClientSecret}, nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if p.api == nil {
		return NewConfigurationError("STRIPE_SECRET_KEY is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx
	if _, err := p.api.Subscriptions.Update(subscriptionID, params); err != nil {
		return wrapProviderErr(err, "cancel subscription")
	}
	return nil
}
