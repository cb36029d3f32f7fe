package billing

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// EventKind is the provider's event type string.
type EventKind string

const (
	KindCustomerCreated          EventKind = "customer.created"
	KindSubscriptionCreated      EventKind = "customer.subscription.created"
	KindSubscriptionUpdated      EventKind = "customer.subscription.updated"
	KindSubscriptionDeleted      EventKind = "customer.subscription.deleted"
	KindSubscriptionPaused       EventKind = "customer.subscription.paused"
	KindSubscriptionResumed      EventKind = "customer.subscription.resumed"
	KindSubscriptionTrialWillEnd EventKind = "customer.subscription.trial_will_end"
	KindInvoiceCreated           EventKind = "invoice.created"
	KindInvoiceUpdated           EventKind = "invoice.updated"
	KindInvoicePaid              EventKind = "invoice.paid"
	KindInvoicePaymentFailed     EventKind = "invoice.payment_failed"
)

// MetadataUserIDKey is the metadata key checkout sets so later events map back to a user.
const MetadataUserIDKey = "user_id"

// Event is a verified provider notification. Object holds the raw data.object.
type Event struct {
	ID      string
	Kind    EventKind
	Created time.Time
	Object  json.RawMessage
}

// Customer is the provider's view of a customer.
type Customer struct {
	ID      string
	Email   string
	Name    string
	Deleted bool
}

// CustomerRef identifies the acting customer of an event. UserID is the
// metadata.user_id hint set at checkout, 0 when absent.
type CustomerRef struct {
	CustomerID string
	UserID     uint
}

// CustomerData is the data.object of customer.* events.
type CustomerData struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Deleted  bool              `json:"deleted"`
	Metadata map[string]string `json:"metadata"`
}

// SubscriptionData is the data.object of customer.subscription.* events.
type SubscriptionData struct {
	ID                string            `json:"id"`
	Customer          expandableID      `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CancelAt          epochSeconds      `json:"cancel_at"`
	CanceledAt        epochSeconds      `json:"canceled_at"`
	EndedAt           epochSeconds      `json:"ended_at"`
	StartDate         epochSeconds      `json:"start_date"`
	LatestInvoice     expandableID      `json:"latest_invoice"`
	Metadata          map[string]string `json:"metadata"`
}

// CustomerRef returns the customer reference carried by the subscription.
func (s *SubscriptionData) CustomerRef() CustomerRef {
	return CustomerRef{CustomerID: string(s.Customer), UserID: metadataUserID(s.Metadata)}
}

// InvoiceData is the data.object of invoice.* events.
type InvoiceData struct {
	ID               string            `json:"id"`
	Customer         expandableID      `json:"customer"`
	Subscription     expandableID      `json:"subscription"`
	HostedInvoiceURL string            `json:"hosted_invoice_url"`
	InvoicePDF       string            `json:"invoice_pdf"`
	PeriodStart      epochSeconds      `json:"period_start"`
	PeriodEnd        epochSeconds      `json:"period_end"`
	Status           string            `json:"status"`
	Currency         string            `json:"currency"`
	Total            int64             `json:"total"`
	AmountPaid       int64             `json:"amount_paid"`
	Metadata         map[string]string `json:"metadata"`
	Parent           *struct {
		SubscriptionDetails *struct {
			Subscription expandableID      `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID returns the owning subscription, from the parent details when present.
func (i *InvoiceData) SubscriptionID() string {
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil && i.Parent.SubscriptionDetails.Subscription != "" {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return string(i.Subscription)
}

// CustomerRef returns the customer reference carried by the invoice.
func (i *InvoiceData) CustomerRef() CustomerRef {
	userID := metadataUserID(i.Metadata)
	if userID == 0 && i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		userID = metadataUserID(i.Parent.SubscriptionDetails.Metadata)
	}
	return CustomerRef{CustomerID: string(i.Customer), UserID: userID}
}

// CheckoutSessionInput is what the provider needs to open an embedded checkout.
type CheckoutSessionInput struct {
	CustomerID    string
	CustomerEmail string
	PriceID       string
	ReturnURL     string
	Metadata      map[string]string
}

// CheckoutSession is handed to the client-side checkout widget.
type CheckoutSession struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// expandableID decodes a provider reference that is either an id string or an expanded object.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*e = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(strings.TrimSpace(s))
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(strings.TrimSpace(obj.ID))
	return nil
}

// epochSeconds decodes a nullable unix timestamp.
type epochSeconds int64

func (e *epochSeconds) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*e = 0
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*e = epochSeconds(v)
	return nil
}

// Time returns the UTC time or nil when unset.
func (e epochSeconds) Time() *time.Time {
	if e <= 0 {
		return nil
	}
	t := time.Unix(int64(e), 0).UTC()
	return &t
}

func metadataUserID(md map[string]string) uint {
	raw := strings.TrimSpace(md[MetadataUserIDKey])
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
