package billing

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

// Repository provides DB operations used by the billing service.
// All user mutations are single statements scoped by primary key so concurrent
// deliveries never read-modify-write the same row.
type Repository interface {
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	GetUserByExternalCustomerID(ctx context.Context, customerID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	LinkCustomer(ctx context.Context, userID uint, customerID string) error
	SetActiveSubscription(ctx context.Context, userID uint, subscriptionID string, onlyIfUnset bool) error
	SetRole(ctx context.Context, userID uint, role string) error
	SetRoleIfActive(ctx context.Context, userID uint, subscriptionID, role string) error
	ClearActiveSubscription(ctx context.Context, userID uint, subscriptionID string) (bool, error)
	ListUsersForEntitlementCheck(ctx context.Context, afterID uint, limit int) ([]models.User, error)

	GetSubscription(ctx context.Context, id string, userID uint) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, bool, error)

	UpsertInvoice(ctx context.Context, inv *models.Invoice) (*models.Invoice, bool, error)
	ListInvoicesByUser(ctx context.Context, userID uint) ([]models.Invoice, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetUserByExternalCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("external_customer_id = ?", customerID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) LinkCustomer(ctx context.Context, userID uint, customerID string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("external_customer_id", customerID).Error
}

func (r *gormRepository) SetActiveSubscription(ctx context.Context, userID uint, subscriptionID string, onlyIfUnset bool) error {
	q := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID)
	if onlyIfUnset {
		q = q.Where("active_subscription_id IS NULL")
	}
	return q.Update("active_subscription_id", subscriptionID).Error
}

func (r *gormRepository) SetRole(ctx context.Context, userID uint, role string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND role <> ?", userID, models.ROLE_ADMIN).
		Update("role", role).Error
}

func (r *gormRepository) SetRoleIfActive(ctx context.Context, userID uint, subscriptionID, role string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND active_subscription_id = ? AND role <> ?", userID, subscriptionID, models.ROLE_ADMIN).
		Update("role", role).Error
}

func (r *gormRepository) ClearActiveSubscription(ctx context.Context, userID uint, subscriptionID string) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.User{}).
		Where("id = ? AND active_subscription_id = ?", userID, subscriptionID).
		Update("active_subscription_id", nil)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	err := db.Model(&models.User{}).
		Where("id = ? AND role = ?", userID, models.ROLE_PREMIUM).
		Update("role", models.ROLE_USER).Error
	return true, err
}

func (r *gormRepository) ListUsersForEntitlementCheck(ctx context.Context, afterID uint, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("id > ? AND (active_subscription_id IS NOT NULL OR role = ?)", afterID, models.ROLE_PREMIUM).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

func (r *gormRepository) GetSubscription(ctx context.Context, id string, userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription writes the row keyed by provider id. Events older than the
// stored state are not applied. It returns the stored row and whether the
// write changed it.
func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, bool, error) {
	updates := map[string]interface{}{
		"status":               sub.Status,
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
		"cancel_at":            sub.CancelAt,
		"canceled_at":          sub.CanceledAt,
		"ended_at":             sub.EndedAt,
		"started_at":           sub.StartedAt,
		"latest_invoice_id":    sub.LatestInvoiceID,
		"last_event_at":        sub.LastEventAt,
	}
	applied, err := r.upsert(ctx, &models.Subscription{}, sub, sub.ID, sub.UserID, sub.LastEventAt, updates)
	if err != nil {
		return nil, false, err
	}
	var stored models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", sub.ID).First(&stored).Error; err != nil {
		return nil, false, err
	}
	return &stored, applied, nil
}

func (r *gormRepository) UpsertInvoice(ctx context.Context, inv *models.Invoice) (*models.Invoice, bool, error) {
	updates := map[string]interface{}{
		"subscription_id": inv.SubscriptionID,
		"hosted_url":      inv.HostedURL,
		"pdf_url":         inv.PDFURL,
		"period_start":    inv.PeriodStart,
		"period_end":      inv.PeriodEnd,
		"status":          inv.Status,
		"currency":        inv.Currency,
		"total":           inv.Total,
		"amount_paid":     inv.AmountPaid,
		"last_event_at":   inv.LastEventAt,
	}
	applied, err := r.upsert(ctx, &models.Invoice{}, inv, inv.ID, inv.UserID, inv.LastEventAt, updates)
	if err != nil {
		return nil, false, err
	}
	var stored models.Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", inv.ID).First(&stored).Error; err != nil {
		return nil, false, err
	}
	return &stored, applied, nil
}

// upsert runs a conditional update scoped by (id, user_id, last_event_at) and
// falls back to an insert when the row does not exist yet. The primary key is
// the only point of serialization between concurrent deliveries.
func (r *gormRepository) upsert(ctx context.Context, model, row interface{}, id string, userID uint, eventAt time.Time, updates map[string]interface{}) (bool, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(model).
		Where("id = ? AND user_id = ? AND last_event_at <= ?", id, userID, eventAt).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// The row exists and is either newer than this event or owned by someone else.
	var owners []uint
	if err := db.Model(model).Where("id = ?", id).Pluck("user_id", &owners).Error; err != nil {
		return false, err
	}
	if len(owners) == 0 {
		return false, NewInternalError(nil, "row %s vanished during upsert", id)
	}
	if owners[0] != userID {
		return false, NewStateConflictError("%s belongs to user %d, event resolved user %d", id, owners[0], userID)
	}
	return false, nil
}

func (r *gormRepository) ListInvoicesByUser(ctx context.Context, userID uint) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("period_end DESC").
		Find(&invoices).Error
	return invoices, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
