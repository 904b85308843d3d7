package service

import (
	"context"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/application/workflow"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
	"github.com/google/uuid"
)

// CreateInstallationRequest describes a new installation job
type CreateInstallationRequest struct {
	ID         string
	CustomerID string
	ProductID  string
	Address    string
	Actor      string
}

// InstallationService manages installation jobs
type InstallationService interface {
	CreateInstallation(ctx context.Context, req CreateInstallationRequest) (*entity.Instance, error)
	GetInstallation(ctx context.Context, id string) (*entity.Instance, error)
	ListInstallations(ctx context.Context, state domainwf.State, page port.Page) ([]*entity.Instance, error)
	Transition(ctx context.Context, id string, ev domainwf.Event, actor string, input entity.TransitionInput) (*entity.Instance, error)
	PermittedEvents(ctx context.Context, id string) ([]domainwf.Event, error)
	AssignTechnician(ctx context.Context, id, actor, technicianID string) (*entity.Instance, error)
	Complete(ctx context.Context, id, actor string, record entity.CompletionRecord) (*entity.Instance, error)
	RecordFeedback(ctx context.Context, id, actor string, rating int, comments string) (*entity.Instance, error)
}

type installationServiceImpl struct {
	engine     workflow.FulfillmentEngine
	masterData port.MasterData
	logger     Logger
}

// NewInstallationService creates a new InstallationService
func NewInstallationService(engine workflow.FulfillmentEngine, masterData port.MasterData, logger Logger) InstallationService {
	return &installationServiceImpl{
		engine:     engine,
		masterData: masterData,
		logger:     logger,
	}
}

// CreateInstallation checks references and persists a NEW installation
func (s *installationServiceImpl) CreateInstallation(ctx context.Context, req CreateInstallationRequest) (*entity.Instance, error) {
	if err := checkReferences(ctx, s.masterData, req.CustomerID, req.ProductID); err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	payload := &entity.InstallationPayload{
		CustomerID: req.CustomerID,
		ProductID:  req.ProductID,
		Address:    req.Address,
	}

	inst, err := s.engine.Create(ctx, entity.NewInstallation(id, payload, actorOrSystem(req.Actor), nowUTC()))
	if err != nil {
		s.logger.Error("Failed to create installation", "error", err, "installation_id", id)
		return nil, err
	}

	s.logger.Info("Installation created", "installation_id", inst.ID, "customer_id", req.CustomerID)
	return inst, nil
}

// GetInstallation loads an installation
func (s *installationServiceImpl) GetInstallation(ctx context.Context, id string) (*entity.Instance, error) {
	return s.engine.Get(ctx, entity.KindInstallation, id)
}

// ListInstallations lists installations, optionally filtered by state
func (s *installationServiceImpl) ListInstallations(ctx context.Context, state domainwf.State, page port.Page) ([]*entity.Instance, error) {
	return s.engine.List(ctx, entity.KindInstallation, state, page)
}

// Transition applies a workflow event to an installation
func (s *installationServiceImpl) Transition(ctx context.Context, id string, ev domainwf.Event, actor string, input entity.TransitionInput) (*entity.Instance, error) {
	return s.engine.Transition(ctx, entity.KindInstallation, id, ev, actor, input)
}

// PermittedEvents lists the events the installation's current state defines
func (s *installationServiceImpl) PermittedEvents(ctx context.Context, id string) ([]domainwf.Event, error) {
	return s.engine.PermittedEvents(ctx, entity.KindInstallation, id)
}

// AssignTechnician sets the technician without moving the installation
func (s *installationServiceImpl) AssignTechnician(ctx context.Context, id, actor, technicianID string) (*entity.Instance, error) {
	return s.engine.Apply(ctx, entity.KindInstallation, id, actor, workflow.AssignTechnician(s.masterData, technicianID))
}

// Complete moves an IN_PROGRESS installation to COMPLETED with its record
func (s *installationServiceImpl) Complete(ctx context.Context, id, actor string, record entity.CompletionRecord) (*entity.Instance, error) {
	return s.engine.Transition(ctx, entity.KindInstallation, id, domainwf.To(domainwf.StateCompleted), actor,
		entity.TransitionInput{Completion: &record, Notes: record.Notes})
}

// RecordFeedback stores the customer's rating
func (s *installationServiceImpl) RecordFeedback(ctx context.Context, id, actor string, rating int, comments string) (*entity.Instance, error) {
	return s.engine.Apply(ctx, entity.KindInstallation, id, actor, workflow.RecordFeedback(rating, comments))
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return entity.ActorSystem
	}
	return actor
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
