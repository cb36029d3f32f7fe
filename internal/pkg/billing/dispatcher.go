package billing

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AutoMarkt/app/models"
)

// Outcome reports what happened to an inbound event.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

type failurePolicy int

const (
	// policyStructural propagates failures so the provider redelivers.
	policyStructural failurePolicy = iota
	// policyBestEffort logs failures and acknowledges the event anyway.
	policyBestEffort
)

// dispatchScope collects what a handler resolved, for failure logs.
type dispatchScope struct {
	customerID string
	userID     uint
}

type handlerFunc func(ctx context.Context, ev *Event, scope *dispatchScope) error

type route struct {
	policy failurePolicy
	handle handlerFunc
}

// Dispatcher routes verified events to the sync services through a fixed table.
type Dispatcher struct {
	providerName  string
	provider      PaymentProvider
	repo          Repository
	customers     *CustomerSync
	subscriptions *SubscriptionSync
	invoices      *InvoiceSync
	notifier      Notifier
	routes        map[EventKind]route
}

// NewDispatcher wires the handler table.
func NewDispatcher(repo Repository, provider PaymentProvider, notifier Notifier) *Dispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	d := &Dispatcher{
		providerName:  models.BillingProviderStripe,
		provider:      provider,
		repo:          repo,
		customers:     NewCustomerSync(repo, provider),
		subscriptions: NewSubscriptionSync(repo, provider),
		invoices:      NewInvoiceSync(repo),
		notifier:      notifier,
	}
	d.routes = map[EventKind]route{
		KindCustomerCreated:          {policyStructural, d.onCustomerCreated},
		KindSubscriptionCreated:      {policyStructural, d.onSubscriptionCreated},
		KindSubscriptionUpdated:      {policyStructural, d.onSubscriptionUpdated},
		KindSubscriptionPaused:       {policyStructural, d.onSubscriptionUpdated},
		KindSubscriptionResumed:      {policyStructural, d.onSubscriptionUpdated},
		KindSubscriptionDeleted:      {policyStructural, d.onSubscriptionDeleted},
		KindSubscriptionTrialWillEnd: {policyStructural, noop},
		KindInvoiceCreated:           {policyStructural, d.onInvoiceCreated},
		KindInvoiceUpdated:           {policyStructural, d.onInvoiceUpdated},
		KindInvoicePaid:              {policyBestEffort, d.onInvoicePaid},
		KindInvoicePaymentFailed:     {policyStructural, d.onInvoicePaymentFailed},
	}
	return d
}

// Handles reports whether the kind has an entry in the dispatch table.
func (d *Dispatcher) Handles(kind EventKind) bool {
	_, ok := d.routes[kind]
	return ok
}

// Dispatch runs the handler for the event kind. Kinds without a handler are
// acknowledged without touching any state.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) (Outcome, error) {
	outcome, err, _ := d.dispatch(ctx, ev)
	return outcome, err
}

// dispatch also returns the failure a best-effort route swallowed.
func (d *Dispatcher) dispatch(ctx context.Context, ev *Event) (Outcome, error, error) {
	r, ok := d.routes[ev.Kind]
	if !ok {
		log.Infof("[Billing] Ignoring event %s of unhandled kind %s", ev.ID, ev.Kind)
		return OutcomeIgnored, nil, nil
	}

	scope := &dispatchScope{}
	err := r.handle(ctx, ev, scope)
	if err == nil {
		return OutcomeProcessed, nil, nil
	}
	if r.policy == policyBestEffort {
		log.Errorw("[Billing] best-effort handler failed, acknowledging event",
			"event_id", ev.ID,
			"kind", string(ev.Kind),
			"customer_id", scope.customerID,
			"user_id", scope.userID,
			"error", err.Error(),
		)
		return OutcomeProcessed, nil, err
	}
	return "", err, nil
}

// acknowledged reports whether an earlier delivery of the ledger row was
// already answered with success. Best-effort kinds are acknowledged even when
// their failure was recorded.
func (d *Dispatcher) acknowledged(stored *models.BillingWebhookEvent) bool {
	if stored.ProcessedAt == nil {
		return false
	}
	if r, ok := d.routes[EventKind(stored.EventType)]; ok && r.policy == policyBestEffort {
		return true
	}
	return stored.ProcessedSuccessfully()
}

// Ingest verifies a raw delivery, records it in the webhook ledger and
// dispatches it. Events already acknowledged are answered as duplicates;
// events whose earlier attempt failed structurally are processed again.
func (d *Dispatcher) Ingest(ctx context.Context, provider string, payload []byte, signatureHeader string) (Outcome, error) {
	if strings.ToLower(strings.TrimSpace(provider)) != d.providerName {
		return "", NewNotFoundError("unknown billing provider %q", provider)
	}

	ev, err := d.provider.VerifySignature(payload, signatureHeader)
	if err != nil {
		return "", err
	}

	record := &models.BillingWebhookEvent{
		Provider:        d.providerName,
		ProviderEventID: ev.ID,
		EventType:       string(ev.Kind),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	}
	created, stored, err := d.repo.CreateWebhookEventIfNotExists(ctx, record)
	if err != nil {
		log.Warnw("[Billing] webhook ledger write failed", "event_id", ev.ID, "kind", string(ev.Kind), "error", err.Error())
		stored = nil
	} else if !created && d.acknowledged(stored) {
		log.Infof("[Billing] Duplicate delivery of event %s (%s)", ev.ID, ev.Kind)
		return OutcomeDuplicate, nil
	}

	outcome, dispatchErr, swallowed := d.dispatch(ctx, ev)

	if stored != nil {
		errText := ""
		switch {
		case dispatchErr != nil:
			errText = dispatchErr.Error()
		case swallowed != nil:
			errText = swallowed.Error()
		}
		if err := d.repo.MarkWebhookProcessed(ctx, stored.ID, errText); err != nil {
			log.Warnw("[Billing] webhook ledger update failed", "event_id", ev.ID, "error", err.Error())
		}
	}
	return outcome, dispatchErr
}

func noop(context.Context, *Event, *dispatchScope) error { return nil }

func (d *Dispatcher) onCustomerCreated(ctx context.Context, ev *Event, scope *dispatchScope) error {
	var data CustomerData
	if err := decodeObject(ev, &data); err != nil {
		return err
	}
	scope.customerID = data.ID
	user, err := d.customers.Link(ctx, &data)
	if err != nil {
		return err
	}
	scope.userID = user.ID
	return nil
}

func (d *Dispatcher) onSubscriptionCreated(ctx context.Context, ev *Event, scope *dispatchScope) error {
	data, user, err := d.resolveSubscription(ctx, ev, scope)
	if err != nil {
		return err
	}
	_, err = d.subscriptions.Create(ctx, user, data, ev.Created)
	return err
}

func (d *Dispatcher) onSubscriptionUpdated(ctx context.Context, ev *Event, scope *dispatchScope) error {
	data, user, err := d.resolveSubscription(ctx, ev, scope)
	if err != nil {
		return err
	}
	_, err = d.subscriptions.Update(ctx, user.ID, data, ev.Created)
	return err
}

func (d *Dispatcher) onSubscriptionDeleted(ctx context.Context, ev *Event, scope *dispatchScope) error {
	data, user, err := d.resolveSubscription(ctx, ev, scope)
	if err != nil {
		return err
	}
	sub, revoked, err := d.subscriptions.Delete(ctx, user.ID, data, ev.Created)
	if err != nil {
		return err
	}
	if revoked {
		d.notify(ctx, ev, user, NotificationSubscriptionCanceled, map[string]string{
			"subscription_id": sub.ID,
		})
	}
	return nil
}

func (d *Dispatcher) onInvoiceCreated(ctx context.Context, ev *Event, scope *dispatchScope) error {
	data, user, err := d.resolveInvoice(ctx, ev, scope)
	if err != nil {
		return err
	}
	_, err = d.invoices.Create(ctx, user, data, ev.Created)
	return err
}

func (d *Dispatcher) onInvoiceUpdated(ctx context.Context, ev *Event, scope *dispatchScope) error {
	data, user, err := d.resolveInvoice(ctx, ev, scope)
	if err != nil {
		return err
	}
	_, err = d.invoices.Update(ctx, user, data, ev.Created)
	return err
}

func (d *Dispatcher) onInvoicePaid(ctx context.Context, ev *Event, scope *dispatchScope) error {
	data, user, err := d.resolveInvoice(ctx, ev, scope)
	if err != nil {
		return err
	}
	inv, err := d.invoices.Update(ctx, user, data, ev.Created)
	if err != nil {
		return err
	}
	d.notify(ctx, ev, user, NotificationPaymentSucceeded, invoiceContext(inv))
	return nil
}

func (d *Dispatcher) onInvoicePaymentFailed(ctx context.Context, ev *Event, scope *dispatchScope) error {
	data, user, err := d.resolveInvoice(ctx, ev, scope)
	if err != nil {
		return err
	}
	inv, err := d.invoices.Update(ctx, user, data, ev.Created)
	if err != nil {
		return err
	}
	d.notify(ctx, ev, user, NotificationPaymentFailed, invoiceContext(inv))
	return nil
}

func (d *Dispatcher) resolveSubscription(ctx context.Context, ev *Event, scope *dispatchScope) (*SubscriptionData, *models.User, error) {
	var data SubscriptionData
	if err := decodeObject(ev, &data); err != nil {
		return nil, nil, err
	}
	ref := data.CustomerRef()
	scope.customerID = ref.CustomerID
	user, err := d.customers.ResolveUser(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	scope.userID = user.ID
	return &data, user, nil
}

func (d *Dispatcher) resolveInvoice(ctx context.Context, ev *Event, scope *dispatchScope) (*InvoiceData, *models.User, error) {
	var data InvoiceData
	if err := decodeObject(ev, &data); err != nil {
		return nil, nil, err
	}
	ref := data.CustomerRef()
	scope.customerID = ref.CustomerID
	user, err := d.customers.ResolveUser(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	scope.userID = user.ID
	return &data, user, nil
}

// notify runs after the write committed; its failure is logged and dropped.
func (d *Dispatcher) notify(ctx context.Context, ev *Event, user *models.User, kind NotificationKind, details map[string]string) {
	err := d.notifier.Notify(ctx, Notification{
		Kind:    kind,
		Email:   user.Email,
		Name:    user.Name,
		Context: details,
	})
	if err != nil {
		log.Warnw("[Billing] notification failed",
			"event_id", ev.ID,
			"kind", string(ev.Kind),
			"notification", string(kind),
			"user_id", user.ID,
			"error", err.Error(),
		)
	}
}

func invoiceContext(inv *models.Invoice) map[string]string {
	return map[string]string{
		"invoice_id":  inv.ID,
		"amount_paid": inv.AmountPaid.StringFixed(2),
		"total":       inv.Total.StringFixed(2),
		"currency":    strings.ToUpper(inv.Currency),
		"hosted_url":  inv.HostedURL,
	}
}

func decodeObject(ev *Event, dst any) error {
	if len(ev.Object) == 0 {
		return NewBadRequestError("event %s has an empty data object", ev.ID)
	}
	if err := json.Unmarshal(ev.Object, dst); err != nil {
		return NewBadRequestError("event %s: decode %s object: %v", ev.ID, ev.Kind, err)
	}
	return nil
}
