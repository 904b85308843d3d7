package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/fulfillment-engine/internal/application/dispatcher"
	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	sent       []port.Notification
	notifyFunc func(ctx context.Context, n port.Notification) error
}

func (m *mockNotifier) Notify(ctx context.Context, n port.Notification) error {
	m.sent = append(m.sent, n)
	if m.notifyFunc != nil {
		return m.notifyFunc(ctx, n)
	}
	return nil
}

func TestNotificationService_Handle(t *testing.T) {
	tests := []struct {
		name      string
		evt       *event.Event
		wantSent  bool
		wantTitle string
		wantBody  string
	}{
		{
			name: "status change",
			evt: event.NewEvent(event.TypeStatusChanged, "o-1", "ORDER", "bob", map[string]interface{}{
				"from": "SHIPPED", "to": "CANCELLED", "notes": "customer refused",
			}),
			wantSent:  true,
			wantTitle: "order o-1 is now CANCELLED",
			wantBody:  "SHIPPED -> CANCELLED by bob\ncustomer refused",
		},
		{
			name: "invoice generated",
			evt: event.NewEvent(event.TypeInvoiceGenerated, "o-1", "ORDER", "acct", map[string]interface{}{
				"invoice_number": "INV-7", "grand_total": "2124.00",
			}),
			wantSent:  true,
			wantTitle: "Invoice issued for order o-1",
			wantBody:  "Invoice INV-7, total 2124.00",
		},
		{
			name: "feedback",
			evt: event.NewEvent(event.TypeFeedbackRecorded, "i-1", "INSTALLATION", "c", map[string]interface{}{
				"rating": 5,
			}),
			wantSent:  true,
			wantTitle: "Feedback received for installation i-1",
			wantBody:  "Rating 5/5",
		},
		{
			name:     "payment recorded is not announced",
			evt:      event.NewEvent(event.TypePaymentRecorded, "o-1", "ORDER", "pos", nil),
			wantSent: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &mockNotifier{}
			svc := NewNotificationService(notifier, &mockLogger{})

			err := svc.Handle(context.Background(), tt.evt)

			require.NoError(t, err)
			if !tt.wantSent {
				assert.Empty(t, notifier.sent)
				return
			}
			require.Len(t, notifier.sent, 1)
			assert.Equal(t, tt.wantTitle, notifier.sent[0].Title)
			assert.Equal(t, tt.wantBody, notifier.sent[0].Body)
			assert.Equal(t, tt.evt.InstanceID, notifier.sent[0].InstanceID)
		})
	}
}

func TestNotificationService_NotifierFailure(t *testing.T) {
	notifier := &mockNotifier{notifyFunc: func(ctx context.Context, n port.Notification) error {
		return errors.New("lark unavailable")
	}}
	svc := NewNotificationService(notifier, &mockLogger{})

	err := svc.Handle(context.Background(), event.NewEvent(event.TypeInstanceCreated, "o-1", "ORDER", "a", nil))

	assert.Error(t, err)
}

func TestNotificationService_Register(t *testing.T) {
	d := dispatcher.NewDispatcher()
	defer d.Close()
	svc := NewNotificationService(&mockNotifier{}, &mockLogger{})

	svc.Register(d)

	handlers := d.ListHandlers(dispatcher.AllEvents)
	require.Len(t, handlers, 1)
	assert.Equal(t, NotificationHandlerName, handlers[0].Name)
}
