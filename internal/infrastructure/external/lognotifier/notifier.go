package lognotifier

import (
	"context"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"go.uber.org/zap"
)

// Notifier writes notifications to the log. It is used when no Lark chat is configured.
type Notifier struct {
	logger *zap.Logger
}

var _ port.Notifier = (*Notifier)(nil)

// New creates a log notifier
func New(logger *zap.Logger) *Notifier {
	return &Notifier{logger: logger.Named("notification")}
}

// Notify logs the notification and never fails
func (n *Notifier) Notify(ctx context.Context, msg port.Notification) error {
	n.logger.Info(msg.Title,
		zap.String("instance_id", msg.InstanceID),
		zap.String("kind", string(msg.Kind)),
		zap.String("body", msg.Body))
	return nil
}
