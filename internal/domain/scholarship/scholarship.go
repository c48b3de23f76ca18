// Package scholarship defines funding programs: their type, slots, deadline,
// required documents and the fixed stipend each type pays per period.
package scholarship

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

const domainName = "scholarship"

// Type is the kind of scholarship program.
type Type string

const (
	TypeAcademicFull          Type = "academic_full"
	TypeAcademicPartial       Type = "academic_partial"
	TypeStudentAssistantship  Type = "student_assistantship"
	TypePerformingArtsFull    Type = "performing_arts_full"
	TypePerformingArtsPartial Type = "performing_arts_partial"
	TypeEconomicAssistance    Type = "economic_assistance"
)

// AllTypes lists every scholarship type.
var AllTypes = []Type{
	TypeAcademicFull,
	TypeAcademicPartial,
	TypeStudentAssistantship,
	TypePerformingArtsFull,
	TypePerformingArtsPartial,
	TypeEconomicAssistance,
}

// IsValid checks if the type is known.
func (t Type) IsValid() bool {
	for _, v := range AllTypes {
		if v == t {
			return true
		}
	}
	return false
}

// IsAssistantship reports whether the program pays by approved work hours.
func (t Type) IsAssistantship() bool {
	return t == TypeStudentAssistantship
}

// IsPerformingArts reports whether the program is gated by membership.
func (t Type) IsPerformingArts() bool {
	return t == TypePerformingArtsFull || t == TypePerformingArtsPartial
}

// Label returns a human-readable program name.
func (t Type) Label() string {
	switch t {
	case TypeAcademicFull:
		return "Academic Scholarship (Full)"
	case TypeAcademicPartial:
		return "Academic Scholarship (Partial)"
	case TypeStudentAssistantship:
		return "Student Assistantship"
	case TypePerformingArtsFull:
		return "Performing Arts Scholarship (Full)"
	case TypePerformingArtsPartial:
		return "Performing Arts Scholarship (Partial)"
	case TypeEconomicAssistance:
		return "Economic Assistance"
	}
	return string(t)
}

var stipendTable = map[Type]decimal.Decimal{
	TypeAcademicFull:          decimal.NewFromInt(500),
	TypeAcademicPartial:       decimal.NewFromInt(300),
	TypePerformingArtsFull:    decimal.NewFromInt(500),
	TypePerformingArtsPartial: decimal.NewFromInt(300),
	TypeEconomicAssistance:    decimal.NewFromInt(400),
}

// StipendAmount returns the fixed stipend per disbursement period. The
// assistantship has none; it is paid by approved hours.
func StipendAmount(t Type) (decimal.Decimal, bool) {
	amount, ok := stipendTable[t]
	return amount, ok
}

// Status is the publication status of a program.
type Status string

const (
	StatusOpen     Status = "open"
	StatusClosed   Status = "closed"
	StatusUpcoming Status = "upcoming"
)

// IsValid checks if the status is known.
func (s Status) IsValid() bool {
	return s == StatusOpen || s == StatusClosed || s == StatusUpcoming
}

// Scholarship is a funding program definition.
type Scholarship struct {
	ID                string
	Name              string
	Description       string
	Type              Type
	Amount            decimal.Decimal // per-period amount; defaults to the stipend table
	SlotsAvailable    int
	Deadline          time.Time
	RequiredDocuments []document.Type
	Criteria          Criteria
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Criteria overrides the default eligibility thresholds for one program.
// Zero values mean "use the evaluator default".
type Criteria struct {
	MinUnits                int     `json:"min_units,omitempty"`
	MaxUnits                int     `json:"max_units,omitempty"`
	MaxGWA                  float64 `json:"max_gwa,omitempty"`
	MinMembershipMonths     int     `json:"min_membership_months,omitempty"`
	CertificateMaxAgeMonths int     `json:"certificate_max_age_months,omitempty"`
}

// NewParams holds the input for defining a program.
type NewParams struct {
	ID                string
	Name              string
	Description       string
	Type              Type
	Amount            *decimal.Decimal
	SlotsAvailable    int
	Deadline          time.Time
	RequiredDocuments []document.Type
	Criteria          Criteria
	Status            Status
}

// New validates and creates a program definition.
func New(p NewParams, now time.Time) (*Scholarship, error) {
	const op = "New"

	if p.ID == "" {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "id is required")
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "name is required")
	}
	if !p.Type.IsValid() {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "unknown scholarship type %q", p.Type)
	}
	if p.SlotsAvailable < 0 {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "slots cannot be negative")
	}
	if p.Deadline.IsZero() {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "deadline is required")
	}
	status := p.Status
	if status == "" {
		status = StatusUpcoming
	}
	if !status.IsValid() {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "unknown status %q", p.Status)
	}

	required := make([]document.Type, 0, len(p.RequiredDocuments))
	seen := make(map[document.Type]bool, len(p.RequiredDocuments))
	for _, t := range p.RequiredDocuments {
		if !t.IsValid() {
			return nil, shared.Errorf(domainName, op, shared.ErrValidation, "unknown document type %q", t)
		}
		if !seen[t] {
			seen[t] = true
			required = append(required, t)
		}
	}

	amount := decimal.Zero
	if p.Amount != nil {
		if p.Amount.IsNegative() {
			return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "amount cannot be negative")
		}
		amount = *p.Amount
	} else if v, ok := StipendAmount(p.Type); ok {
		amount = v
	}

	return &Scholarship{
		ID:                p.ID,
		Name:              name,
		Description:       strings.TrimSpace(p.Description),
		Type:              p.Type,
		Amount:            shared.RoundMoney(amount),
		SlotsAvailable:    p.SlotsAvailable,
		Deadline:          p.Deadline,
		RequiredDocuments: required,
		Criteria:          p.Criteria,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// IsOpen reports whether applications are accepted at t. The deadline is
// inclusive.
func (s *Scholarship) IsOpen(t time.Time) bool {
	return s.Status == StatusOpen && !t.After(s.Deadline)
}

// HasSlots reports whether another approval fits given the number already
// approved.
func (s *Scholarship) HasSlots(approvedCount int) bool {
	return s.SlotsAvailable-approvedCount > 0
}

// RemainingSlots returns slots − approved, never below zero.
func (s *Scholarship) RemainingSlots(approvedCount int) int {
	if r := s.SlotsAvailable - approvedCount; r > 0 {
		return r
	}
	return 0
}

// Requires reports whether t is in the required-document set.
func (s *Scholarship) Requires(t document.Type) bool {
	for _, r := range s.RequiredDocuments {
		if r == t {
			return true
		}
	}
	return false
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Type   Type
}

// Repository persists program definitions.
type Repository interface {
	Create(ctx context.Context, s *Scholarship) error
	Update(ctx context.Context, s *Scholarship) error
	GetByID(ctx context.Context, id string) (*Scholarship, error)
	List(ctx context.Context, filter ListFilter) ([]*Scholarship, error)
}

// SetStatus opens, closes or re-schedules the program.
func (s *Scholarship) SetStatus(status Status, now time.Time) error {
	if !status.IsValid() {
		return shared.Errorf(domainName, "SetStatus", shared.ErrValidation, "unknown status %q", status)
	}
	s.Status = status
	s.UpdatedAt = now
	return nil
}

// Revise changes the slot count and deadline. Slots may not drop below the
// number of applications already approved.
func (s *Scholarship) Revise(slots int, deadline time.Time, approvedCount int, now time.Time) error {
	const op = "Revise"
	if slots < approvedCount {
		return shared.Errorf(domainName, op, shared.ErrValidation, "slots %d below %d approved applications", slots, approvedCount)
	}
	if deadline.IsZero() {
		return shared.NewDomainError(domainName, op, shared.ErrValidation, "deadline is required")
	}
	s.SlotsAvailable = slots
	s.Deadline = deadline
	s.UpdatedAt = now
	return nil
}
