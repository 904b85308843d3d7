package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/fulfillment-engine/internal/application/dispatcher"
	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/event"
)

// NotificationHandlerName is the dispatcher subscription name of the notifier
const NotificationHandlerName = "notification-service"

// NotificationService forwards domain events to the configured notifier
type NotificationService interface {
	// Register subscribes the service to every event on d
	Register(d dispatcher.Dispatcher)
	// Handle turns one event into a notification. Events nobody needs to hear
	// about are skipped.
	Handle(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notifier port.Notifier
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifier port.Notifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		notifier: notifier,
		logger:   logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(dispatcher.AllEvents, NotificationHandlerName, s.Handle)
}

func (s *notificationServiceImpl) Handle(ctx context.Context, evt *event.Event) error {
	n, ok := buildNotification(evt)
	if !ok {
		return nil
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Error("Failed to send notification",
			"error", err,
			"instance_id", evt.InstanceID,
			"event_type", evt.Type,
		)
		return fmt.Errorf("notify: %w", err)
	}

	s.logger.Info("Notification sent", "instance_id", evt.InstanceID, "event_type", evt.Type)
	return nil
}

// buildNotification renders the human-readable message for an event
func buildNotification(evt *event.Event) (port.Notification, bool) {
	n := port.Notification{
		InstanceID: evt.InstanceID,
		Kind:       entity.Kind(evt.Kind),
	}
	subject := fmt.Sprintf("%s %s", strings.ToLower(evt.Kind), evt.InstanceID)

	switch evt.Type {
	case event.TypeInstanceCreated:
		n.Title = "Created " + subject
		n.Body = fmt.Sprintf("Started in %s by %s", evt.GetPayloadString("state"), evt.Actor)
	case event.TypeStatusChanged:
		n.Title = fmt.Sprintf("%s is now %s", subject, evt.GetPayloadString("to"))
		n.Body = fmt.Sprintf("%s -> %s by %s", evt.GetPayloadString("from"), evt.GetPayloadString("to"), evt.Actor)
		if notes := evt.GetPayloadString("notes"); notes != "" {
			n.Body += "\n" + notes
		}
	case event.TypePaymentCaptured:
		n.Title = "Payment captured for " + subject
		n.Body = fmt.Sprintf("Amount %s, payment status %s", evt.GetPayloadString("amount"), evt.GetPayloadString("status"))
	case event.TypePaymentRefunded:
		n.Title = "Payment refunded for " + subject
		n.Body = fmt.Sprintf("Payment %s refunded %s", evt.GetPayloadString("payment_id"), evt.GetPayloadString("amount"))
	case event.TypeInvoiceGenerated:
		n.Title = "Invoice issued for " + subject
		n.Body = fmt.Sprintf("Invoice %s, total %s", evt.GetPayloadString("invoice_number"), evt.GetPayloadString("grand_total"))
	case event.TypeInvoiceVoided:
		n.Title = "Invoice voided for " + subject
		n.Body = fmt.Sprintf("Invoice %s: %s", evt.GetPayloadString("invoice_number"), evt.GetPayloadString("reason"))
	case event.TypeTechnicianAssigned:
		n.Title = "Technician assigned to " + subject
		n.Body = evt.GetPayloadString("technician_name")
	case event.TypeFeedbackRecorded:
		n.Title = "Feedback received for " + subject
		n.Body = fmt.Sprintf("Rating %d/5", evt.GetPayloadInt("rating"))
	default:
		return port.Notification{}, false
	}
	return n, true
}
