package billing

import "context"

// PaymentProvider is the outbound capability of the external payment provider.
// Implementations must be safe for concurrent use.
type PaymentProvider interface {
	// VerifySignature authenticates a raw webhook payload and returns the typed event.
	VerifySignature(payload []byte, signatureHeader string) (*Event, error)
	RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error)
	// CancelSubscription asks the provider to cancel at period end. The local
	// row only changes when the confirming event arrives.
	CancelSubscription(ctx context.Context, subscriptionID string) error
}
