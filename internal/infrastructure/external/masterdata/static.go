package masterdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
)

// Static serves master data from memory. It backs local runs without a
// master data service and is seeded from a JSON file.
type Static struct {
	customers   map[string]port.Customer
	products    map[string]port.Product
	technicians map[string]port.Technician
}

var _ port.MasterData = (*Static)(nil)

// Seed is the file layout read by LoadStatic
type Seed struct {
	Customers   []port.Customer   `json:"customers"`
	Products    []port.Product    `json:"products"`
	Technicians []port.Technician `json:"technicians"`
}

// NewStatic indexes the seed by id
func NewStatic(seed Seed) *Static {
	s := &Static{
		customers:   make(map[string]port.Customer, len(seed.Customers)),
		products:    make(map[string]port.Product, len(seed.Products)),
		technicians: make(map[string]port.Technician, len(seed.Technicians)),
	}
	for _, c := range seed.Customers {
		s.customers[c.ID] = c
	}
	for _, p := range seed.Products {
		s.products[p.ID] = p
	}
	for _, t := range seed.Technicians {
		s.technicians[t.ID] = t
	}
	return s
}

// LoadStatic reads a seed file
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read master data seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse master data seed %s: %w", path, err)
	}
	return NewStatic(seed), nil
}

func (s *Static) GetCustomer(ctx context.Context, id string) (*port.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, port.ErrMasterDataNotFound)
	}
	return &c, nil
}

func (s *Static) GetProduct(ctx context.Context, id string) (*port.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, port.ErrMasterDataNotFound)
	}
	return &p, nil
}

func (s *Static) GetTechnician(ctx context.Context, id string) (*port.Technician, error) {
	t, ok := s.technicians[id]
	if !ok {
		return nil, fmt.Errorf("technician %s: %w", id, port.ErrMasterDataNotFound)
	}
	return &t, nil
}
