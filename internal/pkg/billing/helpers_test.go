package billing

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

const testWebhookSecret = "whsec_test_secret"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection would get its own in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(&models.User{}, &models.Subscription{}, &models.Invoice{}, &models.BillingWebhookEvent{})
	require.NoError(t, err)
	return db
}

type fakeProvider struct {
	mu          sync.Mutex
	verifier    *StripeProvider
	customers   map[string]*Customer
	retrieveErr error
	sessionErr  error
	cancelErr   error
	sessions    []CheckoutSessionInput
	canceled    []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		verifier:  NewStripeProvider(Config{WebhookSecret: testWebhookSecret}),
		customers: map[string]*Customer{},
	}
}

func (p *fakeProvider) addCustomer(id, email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers[id] = &Customer{ID: id, Email: email}
}

func (p *fakeProvider) VerifySignature(payload []byte, signatureHeader string) (*Event, error) {
	return p.verifier.VerifySignature(payload, signatureHeader)
}

func (p *fakeProvider) RetrieveCustomer(_ context.Context, customerID string) (*Customer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retrieveErr != nil {
		return nil, p.retrieveErr
	}
	c, ok := p.customers[customerID]
	if !ok {
		return nil, NewNotFoundError("customer %s not found at provider", customerID)
	}
	cp := *c
	return &cp, nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	p.sessions = append(p.sessions, in)
	return &CheckoutSession{ID: "cs_test_1", ClientSecret: "cs_test_1_secret_abc"}, nil
}

func (p *fakeProvider) CancelSubscription(_ context.Context, subscriptionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelErr != nil {
		return p.cancelErr
	}
	p.canceled = append(p.canceled, subscriptionID)
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotificationKind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

func seedUser(t *testing.T, db *gorm.DB, name, email, role string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: email, Password: "hashed", Role: role}
	require.NoError(t, db.Create(u).Error)
	return u
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, id).Error)
	return &u
}

func newEvent(t *testing.T, id string, kind EventKind, created time.Time, object any) *Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &Event{ID: id, Kind: kind, Created: created.UTC(), Object: raw}
}

// signedDelivery builds a provider event envelope and signs it like the provider does.
func signedDelivery(t *testing.T, id string, kind EventKind, created time.Time, object any) ([]byte, string) {
	t.Helper()
	obj, err := json.Marshal(object)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"type":        string(kind),
		"created":     created.Unix(),
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": json.RawMessage(obj)},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func customerObject(id, email string) map[string]any {
	return map[string]any{"id": id, "object": "customer", "email": email, "metadata": map[string]string{}}
}

func subscriptionObject(id, customer, status string) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"customer":             customer,
		"status":               status,
		"cancel_at_period_end": false,
		"cancel_at":            nil,
		"canceled_at":          nil,
		"ended_at":             nil,
		"start_date":           1700000000,
		"latest_invoice":       "in_latest",
		"metadata":             map[string]string{},
	}
}

func invoiceObject(id, customer, subscription, status string, total, amountPaid int64) map[string]any {
	return map[string]any{
		"id":                 id,
		"object":             "invoice",
		"customer":           customer,
		"subscription":       subscription,
		"hosted_invoice_url": "https://invoice.example/" + id,
		"invoice_pdf":        "https://invoice.example/" + id + ".pdf",
		"period_start":       1700000000,
		"period_end":         1702592000,
		"status":             status,
		"currency":           "usd",
		"total":              total,
		"amount_paid":        amountPaid,
		"metadata":           map[string]string{},
	}
}
