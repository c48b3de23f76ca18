// Package student holds the read-only view of a student that eligibility
// rules are evaluated against. Enrollment data is owned by the registrar;
// this package only describes what the workflow needs from it.
package student

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

const domainName = "student"

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentStatus is the registrar's enrollment status for the current term.
type EnrollmentStatus string

const (
	EnrollmentEnrolled       EnrollmentStatus = "enrolled"
	EnrollmentNotEnrolled    EnrollmentStatus = "not_enrolled"
	EnrollmentLeaveOfAbsence EnrollmentStatus = "leave_of_absence"
	EnrollmentGraduated      EnrollmentStatus = "graduated"
)

// IsValid checks if the status is known.
func (s EnrollmentStatus) IsValid() bool {
	switch s {
	case EnrollmentEnrolled, EnrollmentNotEnrolled, EnrollmentLeaveOfAbsence, EnrollmentGraduated:
		return true
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// GWA bounds on the 1.0 (best) to 5.0 (worst) scale.
const (
	BestGrade  = 1.0
	WorstGrade = 5.0
)

// Grade is one subject grade from the last completed term.
type Grade struct {
	Subject string  `json:"subject"`
	Units   int     `json:"units"`
	Value   float64 `json:"value"`
}

// Certificate is a dated document on file, such as a certificate of
// indigency. A zero ExpiresAt means the certificate does not expire.
type Certificate struct {
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ValidAt reports whether the certificate is unexpired at now and was
// issued no more than maxAgeMonths before now.
func (c Certificate) ValidAt(now time.Time, maxAgeMonths int) bool {
	if c.IssuedAt.IsZero() || c.IssuedAt.After(now) {
		return false
	}
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return false
	}
	return !c.IssuedAt.AddDate(0, maxAgeMonths, 0).Before(now)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is the student data eligibility is decided on, captured at one
// point in time.
type Snapshot struct {
	StudentID            string
	Name                 string
	Course               string
	YearLevel            int
	EnrollmentStatus     EnrollmentStatus
	Units                int
	GWA                  float64
	Grades               []Grade
	ExistingScholarships []string
	IndigencyCertificate *Certificate
	ArtsMembershipSince  *time.Time
	CapturedAt           time.Time
}

// Validate checks the snapshot for values outside their domain.
func (s Snapshot) Validate() error {
	const op = "Validate"

	if s.StudentID == "" {
		return shared.NewDomainError(domainName, op, shared.ErrValidation, "student id is required")
	}
	if !s.EnrollmentStatus.IsValid() {
		return shared.Errorf(domainName, op, shared.ErrValidation, "unknown enrollment status %q", s.EnrollmentStatus)
	}
	if s.Units < 0 {
		return shared.NewDomainError(domainName, op, shared.ErrValidation, "units cannot be negative")
	}
	if s.GWA != 0 && !ValidGrade(s.GWA) {
		return shared.Errorf(domainName, op, shared.ErrValidation, "gwa %.3f outside 1.0-5.0", s.GWA)
	}
	for _, g := range s.Grades {
		if !ValidGrade(g.Value) {
			return shared.Errorf(domainName, op, shared.ErrValidation, "grade %.2f for %s outside 1.0-5.0", g.Value, g.Subject)
		}
	}
	return nil
}

// ValidGrade reports whether g lies on the grading scale.
func ValidGrade(g float64) bool {
	return g >= BestGrade && g <= WorstGrade
}

// HasGWA reports whether a GWA is on record.
func (s Snapshot) HasGWA() bool {
	return ValidGrade(s.GWA)
}

// IsEnrolled reports whether the student is enrolled this term.
func (s Snapshot) IsEnrolled() bool {
	return s.EnrollmentStatus == EnrollmentEnrolled
}

// HasExistingScholarship reports whether the student already holds one.
func (s Snapshot) HasExistingScholarship() bool {
	for _, sch := range s.ExistingScholarships {
		if strings.TrimSpace(sch) != "" {
			return true
		}
	}
	return false
}

// LowestGrade returns the numerically highest (worst) individual grade.
func (s Snapshot) LowestGrade() (float64, bool) {
	if len(s.Grades) == 0 {
		return 0, false
	}
	worst := s.Grades[0].Value
	for _, g := range s.Grades[1:] {
		worst = math.Max(worst, g.Value)
	}
	return worst, true
}

// MembershipMonths returns the number of whole months of performing-arts
// membership at now, or 0 when the student is not a member.
func (s Snapshot) MembershipMonths(now time.Time) int {
	if s.ArtsMembershipSince == nil || s.ArtsMembershipSince.After(now) {
		return 0
	}
	return timeutil.MonthsBetween(*s.ArtsMembershipSince, now)
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotProvider loads the current snapshot for a student.
// Returns shared.ErrNotFound for unknown students.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, studentID string) (*Snapshot, error)
}

// Repository stores snapshots pushed by the registrar integration.
type Repository interface {
	SnapshotProvider
	Save(ctx context.Context, s *Snapshot) error
}
