package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/workflow"
)

// InstanceRepository keeps instances in process memory. Stored values are
// cloned on every read and write so callers never share state with the store.
type InstanceRepository struct {
	mu        sync.RWMutex
	instances map[string]*entity.Instance
}

var _ port.InstanceRepository = (*InstanceRepository)(nil)

// NewInstanceRepository creates an empty in-memory repository
func NewInstanceRepository() *InstanceRepository {
	return &InstanceRepository{instances: make(map[string]*entity.Instance)}
}

// Create stores a new instance at revision 1
func (r *InstanceRepository) Create(ctx context.Context, inst *entity.Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[inst.ID]; exists {
		return fmt.Errorf("instance %s already exists", inst.ID)
	}
	inst.Revision = 1
	r.instances[inst.ID] = inst.Clone()
	return nil
}

// GetByID returns a copy of the stored instance
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrInstanceNotFound, id)
	}
	return inst.Clone(), nil
}

// List returns matching instances, newest first
func (r *InstanceRepository) List(ctx context.Context, filter port.ListFilter, page port.Page) ([]*entity.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page = page.Normalize()

	r.mu.RLock()
	matched := make([]*entity.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		if filter.Kind != "" && inst.Kind != filter.Kind {
			continue
		}
		if filter.State != "" && inst.State != filter.State {
			continue
		}
		matched = append(matched, inst.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if page.Offset >= len(matched) {
		return []*entity.Instance{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[page.Offset:end], nil
}

// Save replaces the stored instance when its revision matches
func (r *InstanceRepository) Save(ctx context.Context, inst *entity.Instance, expectedRevision int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.instances[inst.ID]
	if !ok {
		return fmt.Errorf("%w: %s", workflow.ErrInstanceNotFound, inst.ID)
	}
	if stored.Revision != expectedRevision {
		return fmt.Errorf("%w: %s at revision %d, expected %d", workflow.ErrConcurrentModification, inst.ID, stored.Revision, expectedRevision)
	}
	if len(inst.History) < len(stored.History) {
		return fmt.Errorf("instance %s: history cannot shrink", inst.ID)
	}

	inst.Revision = expectedRevision + 1
	r.instances[inst.ID] = inst.Clone()
	return nil
}
