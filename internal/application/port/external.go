package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/pricing"
)

// ErrMasterDataNotFound is returned when a referenced customer, product or technician does not exist
var ErrMasterDataNotFound = errors.New("master data not found")

// Customer is the read-only customer record
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	GSTIN string `json:"gstin,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Product is the read-only product record
type Product struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	HSNCode string `json:"hsn_code,omitempty"`
}

// Technician is the read-only technician record
type Technician struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Active bool   `json:"active"`
}

// MasterData looks up reference records owned by other systems
type MasterData interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetTechnician(ctx context.Context, id string) (*Technician, error)
}

// IssueRequest asks the numbering authority for invoice identifiers
type IssueRequest struct {
	// IdempotencyKey makes retries return the same identifiers
	IdempotencyKey string
	OrderID        string
	CustomerID     string
	Totals         pricing.Totals
	IssuedAt       time.Time
}

// IssuedInvoice holds the identifiers assigned to an invoice
type IssuedInvoice struct {
	InvoiceNumber string
	IRN           string
}

// InvoiceIssuer assigns invoice numbers and registration references
type InvoiceIssuer interface {
	Issue(ctx context.Context, req IssueRequest) (*IssuedInvoice, error)
}

// InvoiceRenderer produces a document for an issued invoice
type InvoiceRenderer interface {
	Render(ctx context.Context, inv *entity.Invoice, order *entity.OrderPayload) ([]byte, error)
}

// Notification is a fire-and-forget message about an instance change
type Notification struct {
	InstanceID string
	Kind       entity.Kind
	Title      string
	Body       string
}

// Notifier delivers notifications to an external channel
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
