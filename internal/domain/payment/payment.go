package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
)

// Payment is the pay of a student assistant for one payroll period.
type Payment struct {
	ID           string
	AssignmentID string
	StudentID    string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	TotalHours   decimal.Decimal
	HourlyRate   decimal.Decimal
	GrossAmount  decimal.Decimal
	Deductions   decimal.Decimal
	NetAmount    decimal.Decimal
	Disbursement
}

// Clone returns a deep copy of p.
func (p *Payment) Clone() *Payment {
	c := *p
	c.Disbursement = p.Disbursement.clone()
	return &c
}

// Overlaps reports whether p covers any day of [start, end].
func (p *Payment) Overlaps(start, end time.Time) bool {
	return !p.PeriodStart.After(end) && !p.PeriodEnd.Before(start)
}

// Stipend is a fixed monthly allowance paid to a scholar.
type Stipend struct {
	ID              string
	ApplicationID   string
	StudentID       string
	ScholarshipType scholarship.Type
	Month           time.Month
	Year            int
	Amount          decimal.Decimal
	Disbursement
}

// Clone returns a deep copy of s.
func (s *Stipend) Clone() *Stipend {
	c := *s
	c.Disbursement = s.Disbursement.clone()
	return &c
}

// Period returns the stipend month as "YYYY-MM".
func (s *Stipend) Period() string {
	return time.Date(s.Year, s.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}
