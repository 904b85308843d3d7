package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceCreated    Type = "instance.created"
	TypeStatusChanged      Type = "instance.status_changed"
	TypeItemsUpdated       Type = "order.items_updated"
	TypePaymentRecorded    Type = "payment.recorded"
	TypePaymentCaptured    Type = "payment.captured"
	TypePaymentFailed      Type = "payment.failed"
	TypePaymentRefunded    Type = "payment.refunded"
	TypeInvoiceGenerated   Type = "invoice.generated"
	TypeInvoiceVoided      Type = "invoice.voided"
	TypeTechnicianAssigned Type = "installation.technician_assigned"
	TypeFeedbackRecorded   Type = "installation.feedback_recorded"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceCreated,
		TypeStatusChanged,
		TypeItemsUpdated,
		TypePaymentRecorded,
		TypePaymentCaptured,
		TypePaymentFailed,
		TypePaymentRefunded,
		TypeInvoiceGenerated,
		TypeInvoiceVoided,
		TypeTechnicianAssigned,
		TypeFeedbackRecorded:
		return true
	default:
		return false
	}
}
