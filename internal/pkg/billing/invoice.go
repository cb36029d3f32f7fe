package billing

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

// InvoiceSync mirrors provider invoices into the billing history.
type InvoiceSync struct {
	repo Repository
}

// NewInvoiceSync creates the invoice sync service.
func NewInvoiceSync(repo Repository) *InvoiceSync {
	return &InvoiceSync{repo: repo}
}

// Create stores a new invoice. A replayed create is a no-op.
func (s *InvoiceSync) Create(ctx context.Context, user *models.User, data *InvoiceData, eventAt time.Time) (*models.Invoice, error) {
	return s.upsert(ctx, user.ID, data, eventAt)
}

// Update applies invoice changes, creating the row when the create event was lost or is late.
func (s *InvoiceSync) Update(ctx context.Context, user *models.User, data *InvoiceData, eventAt time.Time) (*models.Invoice, error) {
	return s.upsert(ctx, user.ID, data, eventAt)
}

// ListByUser returns the billing history, most recent period first.
func (s *InvoiceSync) ListByUser(ctx context.Context, userID uint) ([]models.Invoice, error) {
	invoices, err := s.repo.ListInvoicesByUser(ctx, userID)
	if err != nil {
		return nil, NewInternalError(err, "list invoices of user %d", userID)
	}
	return invoices, nil
}

func (s *InvoiceSync) upsert(ctx context.Context, userID uint, data *InvoiceData, eventAt time.Time) (*models.Invoice, error) {
	row, err := invoiceFromData(userID, data, eventAt)
	if err != nil {
		return nil, err
	}
	stored, _, err := s.repo.UpsertInvoice(ctx, row)
	if err != nil {
		return nil, wrapStoreErr(err, "sync invoice %s", row.ID)
	}
	return stored, nil
}

func invoiceFromData(userID uint, data *InvoiceData, eventAt time.Time) (*models.Invoice, error) {
	id := strings.TrimSpace(data.ID)
	if id == "" {
		return nil, NewBadRequestError("invoice payload missing id")
	}

	row := &models.Invoice{
		ID:          id,
		UserID:      userID,
		HostedURL:   data.HostedInvoiceURL,
		PDFURL:      data.InvoicePDF,
		Currency:    strings.ToLower(strings.TrimSpace(data.Currency)),
		Total:       MajorUnits(data.Total),
		AmountPaid:  MajorUnits(data.AmountPaid),
		LastEventAt: eventAt.UTC(),
	}
	if subID := data.SubscriptionID(); subID != "" {
		row.SubscriptionID = &subID
	}
	if status := strings.ToLower(strings.TrimSpace(data.Status)); status != "" {
		if models.IsKnownInvoiceStatus(status) {
			row.Status = &status
		} else {
			log.Warnw("[Billing] unknown invoice status stored as null", "invoice_id", id, "status", data.Status)
		}
	}
	row.PeriodStart = data.PeriodStart.Time()
	row.PeriodEnd = data.PeriodEnd.Time()
	return row, nil
}
