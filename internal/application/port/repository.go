package port

import (
	"context"

	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/workflow"
)

// InstanceRepository persists workflow instances together with their history,
// payments and invoices.
type InstanceRepository interface {
	// Create stores a new instance. Its revision is set to 1.
	Create(ctx context.Context, inst *entity.Instance) error

	// GetByID loads a full instance or returns workflow.ErrInstanceNotFound
	GetByID(ctx context.Context, id string) (*entity.Instance, error)

	// List returns instances matching the filter, newest first
	List(ctx context.Context, filter ListFilter, page Page) ([]*entity.Instance, error)

	// Save persists inst if the stored revision still equals expectedRevision,
	// appending any new history entries, and sets inst.Revision to the new value.
	// A lost race returns workflow.ErrConcurrentModification.
	Save(ctx context.Context, inst *entity.Instance, expectedRevision int64) error
}

// ListFilter narrows List results
type ListFilter struct {
	Kind  entity.Kind
	State workflow.State
}

// Page is an offset-based page request
type Page struct {
	Limit  int
	Offset int
}

// DefaultPageLimit applies when a page has no limit
const DefaultPageLimit = 50

// MaxPageLimit caps the page size
const MaxPageLimit = 200

// Normalize applies the default and maximum limits
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// TransactionManager manages database transactions
type TransactionManager interface {
	// WithTransaction runs fn in a transaction carried by the context
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
