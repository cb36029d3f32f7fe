package billing

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

const reconcileBatchSize = 200

// Service bundles the billing engine behind the operations the HTTP layer
// and the background jobs consume.
type Service struct {
	repo          Repository
	dispatcher    *Dispatcher
	subscriptions *SubscriptionSync
	invoices      *InvoiceSync
	checkout      *CheckoutService
}

// NewService creates a billing service from injected collaborators.
func NewService(repo Repository, provider PaymentProvider, notifier Notifier, cfg Config) *Service {
	return &Service{
		repo:          repo,
		dispatcher:    NewDispatcher(repo, provider, notifier),
		subscriptions: NewSubscriptionSync(repo, provider),
		invoices:      NewInvoiceSync(repo),
		checkout:      NewCheckoutService(repo, provider, cfg.ReturnURL),
	}
}

// NewServiceFromDB creates a billing service backed by GORM and the Stripe provider.
func NewServiceFromDB(db *gorm.DB, notifier Notifier, cfg Config) *Service {
	return NewService(NewRepository(db), NewStripeProvider(cfg), notifier, cfg)
}

// HandleWebhook verifies, records and dispatches one provider delivery.
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload []byte, signatureHeader string) (Outcome, error) {
	return s.dispatcher.Ingest(ctx, provider, payload, signatureHeader)
}

func (s *Service) GetActiveSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	return s.subscriptions.GetActive(ctx, userID)
}

func (s *Service) ListInvoices(ctx context.Context, userID uint) ([]models.Invoice, error) {
	return s.invoices.ListByUser(ctx, userID)
}

func (s *Service) CreateCheckoutSession(ctx context.Context, userID uint, priceID string) (*CheckoutSession, error) {
	return s.checkout.CreateSession(ctx, userID, priceID)
}

func (s *Service) RequestCancellation(ctx context.Context, userID uint) (*models.Subscription, error) {
	return s.subscriptions.RequestCancellation(ctx, userID)
}

// ReconcileReport summarizes one entitlement sweep.
type ReconcileReport struct {
	Checked         int
	PointersCleared int
	Promoted        int
	Demoted         int
}

// ReconcileEntitlements walks users that hold a subscription pointer or the
// premium role and repairs dangling pointers and role drift. Admins are skipped.
func (s *Service) ReconcileEntitlements(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	var afterID uint
	for {
		users, err := s.repo.ListUsersForEntitlementCheck(ctx, afterID, reconcileBatchSize)
		if err != nil {
			return report, NewInternalError(err, "list users for entitlement check")
		}
		if len(users) == 0 {
			break
		}
		for i := range users {
			u := &users[i]
			afterID = u.ID
			if u.IsAdmin() {
				continue
			}
			report.Checked++
			if err := s.reconcileUser(ctx, u, &report); err != nil {
				return report, err
			}
		}
		if len(users) < reconcileBatchSize {
			break
		}
	}

	if report.PointersCleared+report.Promoted+report.Demoted > 0 {
		log.Infof("[Billing] Entitlement sweep: checked=%d cleared=%d promoted=%d demoted=%d",
			report.Checked, report.PointersCleared, report.Promoted, report.Demoted)
	}
	return report, nil
}

func (s *Service) reconcileUser(ctx context.Context, u *models.User, report *ReconcileReport) error {
	if !u.HasActiveSubscription() {
		if u.IsPremium() {
			if err := s.repo.SetRole(ctx, u.ID, models.ROLE_USER); err != nil {
				return NewInternalError(err, "demote user %d", u.ID)
			}
			log.Warnw("[Billing] premium user without subscription demoted", "user_id", u.ID)
			report.Demoted++
		}
		return nil
	}

	subID := *u.ActiveSubscriptionID
	sub, err := s.repo.GetSubscription(ctx, subID, u.ID)
	if err != nil {
		if !IsNotFound(err) {
			return NewInternalError(err, "load subscription %s", subID)
		}
		if _, err := s.repo.ClearActiveSubscription(ctx, u.ID, subID); err != nil {
			return NewInternalError(err, "clear dangling pointer of user %d", u.ID)
		}
		log.Warnw("[Billing] dangling subscription pointer cleared", "user_id", u.ID, "subscription_id", subID)
		report.PointersCleared++
		if u.IsPremium() {
			report.Demoted++
		}
		return nil
	}

	switch {
	case sub.IsEntitling() && !u.IsPremium():
		if err := s.repo.SetRole(ctx, u.ID, models.ROLE_PREMIUM); err != nil {
			return NewInternalError(err, "promote user %d", u.ID)
		}
		report.Promoted++
	case !sub.IsEntitling() && u.IsPremium():
		if err := s.repo.SetRole(ctx, u.ID, models.ROLE_USER); err != nil {
			return NewInternalError(err, "demote user %d", u.ID)
		}
		report.Demoted++
	}
	return nil
}
