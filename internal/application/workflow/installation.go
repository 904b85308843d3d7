package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/event"
	domainwf "github.com/garyjia/fulfillment-engine/internal/domain/workflow"
)

// NewInstallationDefinition builds the installation workflow. Master data
// resolves technicians supplied with the ASSIGNED event.
func NewInstallationDefinition(masterData port.MasterData) *Definition {
	b := domainwf.NewBuilder[*Attempt]("installation")
	b.Entry(domainwf.StateNew).
		Terminal(domainwf.StateCompleted, domainwf.StateCancelled)

	b.Configure(domainwf.StateNew).PermitWith(domainwf.Transition[*Attempt]{
		Event:  domainwf.To(domainwf.StateScheduled),
		To:     domainwf.StateScheduled,
		Guard:  requireSchedule,
		Effect: applySchedule,
	})

	b.Configure(domainwf.StateScheduled).PermitWith(domainwf.Transition[*Attempt]{
		Event: domainwf.To(domainwf.StateAssigned),
		To:    domainwf.StateAssigned,
		Effect: func(ctx context.Context, a *Attempt) error {
			if a.Input.TechnicianID == "" {
				return nil
			}
			return assignTechnician(ctx, masterData, a, a.Input.TechnicianID)
		},
	})

	b.Configure(domainwf.StateAssigned).PermitWith(domainwf.Transition[*Attempt]{
		Event:  domainwf.To(domainwf.StateInProgress),
		To:     domainwf.StateInProgress,
		Guard:  requireTechnician,
		Effect: applyChecklist,
	})

	b.Configure(domainwf.StateInProgress).PermitWith(domainwf.Transition[*Attempt]{
		Event:  domainwf.To(domainwf.StateCompleted),
		To:     domainwf.StateCompleted,
		Guard:  requireCompletion,
		Effect: applyCompletion,
	})

	for _, s := range []domainwf.State{domainwf.StateNew, domainwf.StateScheduled, domainwf.StateAssigned, domainwf.StateInProgress} {
		b.Configure(s).PermitIf(domainwf.To(domainwf.StateCancelled), domainwf.StateCancelled, requireReason)
	}

	return b.Build()
}

func requireSchedule(_ context.Context, a *Attempt) error {
	s := a.Input.Schedule
	if s == nil {
		s = a.Instance.Installation.Schedule
	}
	if err := s.Validate(); err != nil {
		return domainwf.Reject(err.Error())
	}
	return nil
}

func applySchedule(_ context.Context, a *Attempt) error {
	if a.Input.Schedule != nil {
		s := *a.Input.Schedule
		a.Instance.Installation.Schedule = &s
	}
	return nil
}

func requireTechnician(_ context.Context, a *Attempt) error {
	if a.Instance.Installation.Technician == nil {
		return domainwf.Reject("technician required")
	}
	return nil
}

// applyChecklist records the pre-work checklist as supplied. Unmet items
// are kept for the record and do not block the start of work.
func applyChecklist(_ context.Context, a *Attempt) error {
	if a.Input.Checklist != nil {
		c := *a.Input.Checklist
		a.Instance.Installation.Checklist = &c
	}
	return nil
}

func requireCompletion(_ context.Context, a *Attempt) error {
	if err := a.Input.Completion.Validate(); err != nil {
		return domainwf.Reject(err.Error())
	}
	return nil
}

// applyCompletion writes the record in the same persisted unit as the state change
func applyCompletion(_ context.Context, a *Attempt) error {
	record := *a.Input.Completion
	if record.Readings != nil {
		readings := make(map[string]string, len(record.Readings))
		for k, v := range record.Readings {
			readings[k] = v
		}
		record.Readings = readings
	}
	if record.CompletedAt.IsZero() {
		record.CompletedAt = a.Now
	}
	a.Instance.Installation.Completion = &record
	return nil
}

// assignTechnician resolves and records a technician on the working copy
func assignTechnician(ctx context.Context, masterData port.MasterData, a *Attempt, technicianID string) error {
	if masterData == nil {
		return &domainwf.SideEffectError{Action: "assign_technician", Err: errors.New("master data not configured")}
	}
	tech, err := masterData.GetTechnician(ctx, technicianID)
	if err != nil {
		if errors.Is(err, port.ErrMasterDataNotFound) {
			return domainwf.Reject(fmt.Sprintf("unknown technician %s", technicianID))
		}
		return &domainwf.SideEffectError{Action: "assign_technician", Err: err}
	}
	if !tech.Active {
		return domainwf.Reject(fmt.Sprintf("technician %s is not active", technicianID))
	}

	a.Instance.Installation.Technician = &entity.TechnicianAssignment{
		ID:         tech.ID,
		Name:       tech.Name,
		Phone:      tech.Phone,
		AssignedAt: a.Now,
	}
	a.Emit(event.TypeTechnicianAssigned, map[string]interface{}{
		"technician_id":   tech.ID,
		"technician_name": tech.Name,
	})
	return nil
}
