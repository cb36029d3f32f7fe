package models

import "time"

const (
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusActive            = "active"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusPaused            = "paused"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
)

// Subscription mirrors a provider subscription. The provider id is reused as
// primary key, the row is never created from local input.
type Subscription struct {
	ID                string     `gorm:"primaryKey;type:varchar(191)" json:"id"`
	UserID            uint       `gorm:"not null;index" json:"user_id"`
	Status            string     `gorm:"type:varchar(32);not null;index" json:"status"`
	CancelAtPeriodEnd bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CancelAt          *time.Time `gorm:"type:datetime(3);default:null" json:"cancel_at,omitempty"`
	CanceledAt        *time.Time `gorm:"type:datetime(3);default:null" json:"canceled_at,omitempty"`
	EndedAt           *time.Time `gorm:"type:datetime(3);default:null" json:"ended_at,omitempty"`
	StartedAt         time.Time  `gorm:"type:datetime(3)" json:"started_at"`
	LatestInvoiceID   *string    `gorm:"type:varchar(191);default:null" json:"latest_invoice_id,omitempty"`
	LastEventAt       time.Time  `gorm:"type:datetime(3);index" json:"-"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEntitling reports whether the status grants premium access.
func (s *Subscription) IsEntitling() bool {
	return IsEntitlingSubscriptionStatus(s.Status)
}

// IsEntitlingSubscriptionStatus is true for the statuses that grant premium access.
func IsEntitlingSubscriptionStatus(status string) bool {
	switch status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}

// IsKnownSubscriptionStatus reports whether the status belongs to the provider lifecycle.
func IsKnownSubscriptionStatus(status string) bool {
	switch status {
	case SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
		SubscriptionStatusCanceled,
		SubscriptionStatusUnpaid,
		SubscriptionStatusPaused,
		SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired:
		return true
	default:
		return false
	}
}
