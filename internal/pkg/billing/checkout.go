package billing

import (
	"context"
	"strconv"
	"strings"
)

// CheckoutService opens embedded checkout sessions. It never mutates local
// state; the resulting subscription arrives through the webhook path.
type CheckoutService struct {
	repo      Repository
	provider  PaymentProvider
	returnURL string
}

// NewCheckoutService creates the checkout initiator.
func NewCheckoutService(repo Repository, provider PaymentProvider, returnURL string) *CheckoutService {
	return &CheckoutService{repo: repo, provider: provider, returnURL: strings.TrimSpace(returnURL)}
}

// CreateSession requests a subscription checkout for the user. metadata.user_id
// is attached to the session and the subscription so every later event maps
// back to the user before a customer link exists.
func (s *CheckoutService) CreateSession(ctx context.Context, userID uint, priceID string) (*CheckoutSession, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return nil, NewBadRequestError("price id is required")
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, NewNotFoundError("user %d not found", userID)
		}
		return nil, NewInternalError(err, "load user %d", userID)
	}
	if s.returnURL == "" {
		return nil, NewConfigurationError("STRIPE_CHECKOUT_RETURN_URL is not configured")
	}

	in := CheckoutSessionInput{
		PriceID:   priceID,
		ReturnURL: s.returnURL,
		Metadata: map[string]string{
			MetadataUserIDKey: strconv.FormatUint(uint64(user.ID), 10),
		},
	}
	if user.ExternalCustomerID != nil && *user.ExternalCustomerID != "" {
		in.CustomerID = *user.ExternalCustomerID
	} else {
		in.CustomerEmail = user.Email
	}
	return s.provider.CreateCheckoutSession(ctx, in)
}
