package billing

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

// CustomerSync resolves the local user behind a provider customer.
type CustomerSync struct {
	repo     Repository
	provider PaymentProvider
}

// NewCustomerSync creates the customer link service.
func NewCustomerSync(repo Repository, provider PaymentProvider) *CustomerSync {
	return &CustomerSync{repo: repo, provider: provider}
}

// ResolveUser finds the user for a customer reference. The customer is fetched
// from the provider because event payloads may only carry its opaque id; the
// user is then matched by linked customer id first and by email second, since
// checkout can create the user before the customer.created event arrives.
func (s *CustomerSync) ResolveUser(ctx context.Context, ref CustomerRef) (*models.User, error) {
	customerID := strings.TrimSpace(ref.CustomerID)
	if customerID == "" {
		return nil, NewBadRequestError("event carries no customer reference")
	}

	customer, err := s.provider.RetrieveCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, customer, ref.UserID)
}

// Link resolves the user for a customer and persists the customer id on it.
// This is the only place ExternalCustomerID is written.
func (s *CustomerSync) Link(ctx context.Context, data *CustomerData) (*models.User, error) {
	customerID := strings.TrimSpace(data.ID)
	if customerID == "" {
		return nil, NewBadRequestError("customer payload missing id")
	}
	customer, err := s.provider.RetrieveCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	user, err := s.resolve(ctx, customer, metadataUserID(data.Metadata))
	if err != nil {
		return nil, err
	}
	if user.IsLinkedTo(customer.ID) {
		return user, nil
	}
	if err := s.repo.LinkCustomer(ctx, user.ID, customer.ID); err != nil {
		return nil, NewInternalError(err, "link customer %s to user %d", customer.ID, user.ID)
	}
	user.ExternalCustomerID = &customer.ID
	return user, nil
}

func (s *CustomerSync) resolve(ctx context.Context, customer *Customer, hintUserID uint) (*models.User, error) {
	if customer.Deleted {
		return nil, NewBadRequestError("customer %s is deleted at the provider", customer.ID)
	}
	email := strings.TrimSpace(customer.Email)
	if email == "" {
		return nil, NewBadRequestError("customer %s has no email", customer.ID)
	}

	user, err := s.repo.GetUserByExternalCustomerID(ctx, customer.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewInternalError(err, "lookup user by customer %s", customer.ID)
	}

	user, err = s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewInternalError(err, "lookup user by email")
	}

	if hintUserID != 0 {
		user, err = s.repo.GetUserByID(ctx, hintUserID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewInternalError(err, "lookup user %d", hintUserID)
		}
	}
	return nil, NewNotFoundError("no user for customer %s", customer.ID)
}
