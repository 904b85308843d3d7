package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/fulfillment-engine/internal/domain/workflow"
)

var (
	// ErrInvalidCompletion is returned for an incomplete completion record
	ErrInvalidCompletion = errors.New("invalid completion record")

	// ErrInvalidFeedback is returned for out-of-range feedback
	ErrInvalidFeedback = errors.New("invalid feedback")
)

// InstallationPayload is the installation-specific part of an instance
type InstallationPayload struct {
	CustomerID string                `json:"customer_id"`
	ProductID  string                `json:"product_id"`
	Address    string                `json:"address,omitempty"`
	Technician *TechnicianAssignment `json:"technician,omitempty"`
	Schedule   *Schedule             `json:"schedule,omitempty"`
	Checklist  *Checklist            `json:"checklist,omitempty"`
	Completion *CompletionRecord     `json:"completion,omitempty"`
	Feedback   *Feedback             `json:"feedback,omitempty"`
}

// TechnicianAssignment records who will perform the installation
type TechnicianAssignment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Schedule is the agreed visit window
type Schedule struct {
	Date time.Time `json:"date"`
	Slot string    `json:"slot"`
}

// Validate checks the schedule has a date and a slot
func (s *Schedule) Validate() error {
	if s == nil || s.Date.IsZero() {
		return errors.New("schedule date required")
	}
	if s.Slot == "" {
		return errors.New("schedule slot required")
	}
	return nil
}

// Checklist is the pre-work site inspection
type Checklist struct {
	SiteReady            bool   `json:"site_ready"`
	PowerAvailable       bool   `json:"power_available"`
	WaterSupplyAvailable bool   `json:"water_supply_available"`
	CustomerPresent      bool   `json:"customer_present"`
	Notes                string `json:"notes,omitempty"`
}

// CompletionRecord is captured when the technician finishes
type CompletionRecord struct {
	Readings    map[string]string `json:"readings,omitempty"`
	DemoGiven   bool              `json:"demo_given"`
	Notes       string            `json:"notes,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Validate requires at least readings or notes
func (c *CompletionRecord) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: record required", ErrInvalidCompletion)
	}
	if len(c.Readings) == 0 && c.Notes == "" {
		return fmt.Errorf("%w: readings or notes required", ErrInvalidCompletion)
	}
	return nil
}

// Feedback is the customer's rating after completion
type Feedback struct {
	Rating     int       `json:"rating"`
	Comments   string    `json:"comments,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Validate checks the rating range
func (f *Feedback) Validate() error {
	if f == nil || f.Rating < 1 || f.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidFeedback)
	}
	return nil
}

// Clone returns a deep copy
func (p *InstallationPayload) Clone() *InstallationPayload {
	c := *p
	if p.Technician != nil {
		t := *p.Technician
		c.Technician = &t
	}
	if p.Schedule != nil {
		s := *p.Schedule
		c.Schedule = &s
	}
	if p.Checklist != nil {
		cl := *p.Checklist
		c.Checklist = &cl
	}
	if p.Completion != nil {
		cr := *p.Completion
		if p.Completion.Readings != nil {
			cr.Readings = make(map[string]string, len(p.Completion.Readings))
			for k, v := range p.Completion.Readings {
				cr.Readings[k] = v
			}
		}
		c.Completion = &cr
	}
	if p.Feedback != nil {
		f := *p.Feedback
		c.Feedback = &f
	}
	return &c
}

func (p *InstallationPayload) checkInvariants(id string, state workflow.State) error {
	if p.Completion != nil && state != workflow.StateCompleted {
		return fmt.Errorf("instance %s: completion record present in %s", id, state)
	}
	if p.Feedback != nil && p.Completion == nil {
		return fmt.Errorf("instance %s: feedback without completion", id)
	}
	if state == workflow.StateCompleted && p.Completion == nil {
		return fmt.Errorf("instance %s: completed without completion record", id)
	}
	return nil
}

// TransitionInput carries the caller-supplied context of a transition
type TransitionInput struct {
	Notes        string            `json:"notes,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Schedule     *Schedule         `json:"schedule,omitempty"`
	TechnicianID string            `json:"technician_id,omitempty"`
	Checklist    *Checklist        `json:"checklist,omitempty"`
	Completion   *CompletionRecord `json:"completion,omitempty"`
}

// HistoryNotes picks the text recorded on the audit entry
func (in TransitionInput) HistoryNotes() string {
	switch {
	case in.Reason != "" && in.Notes != "":
		return in.Reason + ": " + in.Notes
	case in.Reason != "":
		return in.Reason
	default:
		return in.Notes
	}
}
