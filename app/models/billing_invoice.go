package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	InvoiceStatusDraft         = "draft"
	InvoiceStatusOpen          = "open"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusUncollectible = "uncollectible"
	InvoiceStatusVoid          = "void"
)

// Invoice mirrors a provider invoice. Amounts are stored in major currency units.
type Invoice struct {
	ID             string          `gorm:"primaryKey;type:varchar(191)" json:"id"`
	UserID         uint            `gorm:"not null;index:idx_invoices_user_period,priority:1" json:"user_id"`
	SubscriptionID *string         `gorm:"type:varchar(191);default:null;index" json:"subscription_id,omitempty"`
	HostedURL      string          `gorm:"type:text" json:"hosted_url"`
	PDFURL         string          `gorm:"type:text" json:"pdf_url"`
	PeriodStart    *time.Time      `gorm:"type:datetime(3);default:null" json:"period_start"`
	PeriodEnd      *time.Time      `gorm:"type:datetime(3);default:null;index:idx_invoices_user_period,priority:2" json:"period_end"`
	Status         *string         `gorm:"type:varchar(32);default:null" json:"status"`
	Currency       string          `gorm:"type:varchar(3);default:''" json:"currency"`
	Total          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total"`
	AmountPaid     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"amount_paid"`
	LastEventAt    time.Time       `gorm:"type:datetime(3);index" json:"-"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsKnownInvoiceStatus reports whether the status is one the provider documents.
func IsKnownInvoiceStatus(status string) bool {
	switch status {
	case InvoiceStatusDraft, InvoiceStatusOpen, InvoiceStatusPaid, InvoiceStatusUncollectible, InvoiceStatusVoid:
		return true
	default:
		return false
	}
}
