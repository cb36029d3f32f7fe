package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AutoMarkt/internal/pkg/billing"
	"github.com/ManuelReschke/AutoMarkt/internal/pkg/mail"
)

// QueueNotifier hands billing notifications to the job queue so mail delivery
// never blocks webhook processing.
type QueueNotifier struct {
	queue *Queue
}

// NewQueueNotifier creates a billing notifier backed by q
func NewQueueNotifier(q *Queue) *QueueNotifier {
	return &QueueNotifier{queue: q}
}

// Notify enqueues one notification job
func (n *QueueNotifier) Notify(ctx context.Context, notification billing.Notification) error {
	if notification.Email == "" {
		return fmt.Errorf("notification %s has no recipient", notification.Kind)
	}
	_, err := n.queue.Enqueue(ctx, JobTypeSendNotification, NotificationJobPayloadFrom(notification))
	return err
}

// processNotificationJob renders and sends one billing notification
func (q *Queue) processNotificationJob(_ context.Context, job *Job) error {
	var payload NotificationJobPayload
	if err := job.DecodePayload(&payload); err != nil {
		return fmt.Errorf("%w: invalid notification payload: %v", ErrPermanent, err)
	}
	if payload.Email == "" {
		return fmt.Errorf("%w: notification without recipient", ErrPermanent)
	}

	msg, err := mail.RenderNotification(payload.Kind, payload.Email, payload.Name, payload.Context)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	mailer := q.getMailer()
	if mailer == nil {
		return fmt.Errorf("no mailer configured")
	}
	if err := mailer.Send(msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", payload.Kind, payload.Email, err)
	}

	log.Infof("[JobQueue] Sent %s notification to %s", payload.Kind, payload.Email)
	return nil
}
