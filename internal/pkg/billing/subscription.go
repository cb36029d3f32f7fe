package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

// SubscriptionSync mirrors provider subscriptions and keeps the user's
// entitlement (role + active subscription pointer) consistent with them.
type SubscriptionSync struct {
	repo     Repository
	provider PaymentProvider
}

// NewSubscriptionSync creates the subscription sync service.
func NewSubscriptionSync(repo Repository, provider PaymentProvider) *SubscriptionSync {
	return &SubscriptionSync{repo: repo, provider: provider}
}

// Create persists a new subscription and points the user at it in the same transaction.
func (s *SubscriptionSync) Create(ctx context.Context, user *models.User, data *SubscriptionData, eventAt time.Time) (*models.Subscription, error) {
	return s.upsert(ctx, user.ID, data, eventAt, true)
}

// Update applies subscription changes. An update for a row that was never
// created locally creates it, so out-of-order delivery converges.
func (s *SubscriptionSync) Update(ctx context.Context, userID uint, data *SubscriptionData, eventAt time.Time) (*models.Subscription, error) {
	return s.upsert(ctx, userID, data, eventAt, false)
}

// Delete stores the final state and revokes entitlement immediately when the
// subscription is the user's active one, regardless of the remaining period.
func (s *SubscriptionSync) Delete(ctx context.Context, userID uint, data *SubscriptionData, eventAt time.Time) (*models.Subscription, bool, error) {
	row, err := subscriptionFromData(userID, data, eventAt)
	if err != nil {
		return nil, false, err
	}

	var stored *models.Subscription
	var revoked bool
	err = s.repo.Transaction(ctx, func(repo Repository) error {
		var err error
		stored, _, err = repo.UpsertSubscription(ctx, row)
		if err != nil {
			return err
		}
		revoked, err = repo.ClearActiveSubscription(ctx, userID, row.ID)
		return err
	})
	if err != nil {
		return nil, false, wrapStoreErr(err, "delete subscription %s", row.ID)
	}
	return stored, revoked, nil
}

// GetActive returns the subscription the user's pointer refers to. A set
// pointer without a matching row is reported as NotFound instead of hidden.
func (s *SubscriptionSync) GetActive(ctx context.Context, userID uint) (*models.Subscription, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("user %d not found", userID)
		}
		return nil, NewInternalError(err, "load user %d", userID)
	}
	if !user.HasActiveSubscription() {
		return nil, NewNotFoundError("user %d has no active subscription", userID)
	}

	sub, err := s.repo.GetSubscription(ctx, *user.ActiveSubscriptionID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("active subscription %s of user %d is missing", *user.ActiveSubscriptionID, userID)
		}
		return nil, NewInternalError(err, "load subscription %s", *user.ActiveSubscriptionID)
	}
	return sub, nil
}

// RequestCancellation asks the provider to cancel the active subscription at
// period end. Nothing changes locally until the confirming event arrives.
func (s *SubscriptionSync) RequestCancellation(ctx context.Context, userID uint) (*models.Subscription, error) {
	sub, err := s.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.CancelAtPeriodEnd {
		return sub, nil
	}
	if err := s.provider.CancelSubscription(ctx, sub.ID); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionSync) upsert(ctx context.Context, userID uint, data *SubscriptionData, eventAt time.Time, created bool) (*models.Subscription, error) {
	row, err := subscriptionFromData(userID, data, eventAt)
	if err != nil {
		return nil, err
	}

	var stored *models.Subscription
	err = s.repo.Transaction(ctx, func(repo Repository) error {
		var err error
		stored, _, err = repo.UpsertSubscription(ctx, row)
		if err != nil {
			return err
		}
		return applyEntitlement(ctx, repo, userID, stored, created)
	})
	if err != nil {
		return nil, wrapStoreErr(err, "sync subscription %s", row.ID)
	}
	return stored, nil
}

// applyEntitlement derives role and pointer from the stored row, so replays and
// stale events converge on the same result.
func applyEntitlement(ctx context.Context, repo Repository, userID uint, sub *models.Subscription, created bool) error {
	if sub.IsEntitling() {
		if err := repo.SetActiveSubscription(ctx, userID, sub.ID, false); err != nil {
			return err
		}
		return repo.SetRole(ctx, userID, models.ROLE_PREMIUM)
	}

	if created && !isTerminalSubscriptionStatus(sub.Status) {
		// A fresh, not yet paid subscription becomes the pointer only if none is set.
		if err := repo.SetActiveSubscription(ctx, userID, sub.ID, true); err != nil {
			return err
		}
	}
	return repo.SetRoleIfActive(ctx, userID, sub.ID, models.ROLE_USER)
}

func subscriptionFromData(userID uint, data *SubscriptionData, eventAt time.Time) (*models.Subscription, error) {
	id := strings.TrimSpace(data.ID)
	if id == "" {
		return nil, NewBadRequestError("subscription payload missing id")
	}
	status := strings.ToLower(strings.TrimSpace(data.Status))
	if !models.IsKnownSubscriptionStatus(status) {
		return nil, NewBadRequestError("subscription %s has unknown status %q", id, data.Status)
	}

	row := &models.Subscription{
		ID:                id,
		UserID:            userID,
		Status:            status,
		CancelAtPeriodEnd: data.CancelAtPeriodEnd,
		CancelAt:          data.CancelAt.Time(),
		CanceledAt:        data.CanceledAt.Time(),
		EndedAt:           data.EndedAt.Time(),
		LastEventAt:       eventAt.UTC(),
	}
	if started := data.StartDate.Time(); started != nil {
		row.StartedAt = *started
	} else {
		row.StartedAt = eventAt.UTC()
	}
	if inv := string(data.LatestInvoice); inv != "" {
		row.LatestInvoiceID = &inv
	}
	return row, nil
}

func isTerminalSubscriptionStatus(status string) bool {
	switch status {
	case models.SubscriptionStatusCanceled, models.SubscriptionStatusIncompleteExpired:
		return true
	default:
		return false
	}
}

// wrapStoreErr keeps typed billing errors and wraps persistence failures.
func wrapStoreErr(err error, format string, args ...any) error {
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return NewInternalError(err, format, args...)
}
