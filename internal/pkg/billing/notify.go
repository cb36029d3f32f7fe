package billing

import "context"

// NotificationKind names a user-facing billing notification template.
type NotificationKind string

const (
	NotificationPaymentSucceeded     NotificationKind = "payment_succeeded"
	NotificationPaymentFailed        NotificationKind = "payment_failed"
	NotificationSubscriptionCanceled NotificationKind = "subscription_canceled"
)

// Notification is handed to the notification sink after a write committed.
type Notification struct {
	Kind    NotificationKind
	Email   string
	Name    string
	Context map[string]string
}

// Notifier delivers user notifications. Callers treat every error as
// non-fatal: a failed notification never rolls back billing state.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NopNotifier drops all notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }
