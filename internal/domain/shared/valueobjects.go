package shared

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════
// Clock
// ═══════════════════════════════════════════════════════════════════════════

// Clock supplies "now" to the workflow core so transitions stay deterministic
// under test.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// ═══════════════════════════════════════════════════════════════════════════
// Actor
// ═══════════════════════════════════════════════════════════════════════════

// Role is the role an actor performs an action in.
type Role string

const (
	RoleStudent     Role = "student"
	RoleOSAS        Role = "osas_staff"
	RoleInterviewer Role = "interviewer"
	RoleSupervisor  Role = "supervisor"
	RoleSystem      Role = "system"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleOSAS, RoleInterviewer, RoleSupervisor, RoleSystem:
		return true
	}
	return false
}

// SystemActorID is recorded as the actor of scheduler-driven changes.
const SystemActorID = "system"

// ═══════════════════════════════════════════════════════════════════════════
// Academic Period
// ═══════════════════════════════════════════════════════════════════════════

// Semester is one term of an academic year.
type Semester string

const (
	SemesterFirst  Semester = "first"
	SemesterSecond Semester = "second"
	SemesterSummer Semester = "summer"
)

// IsValid checks if the semester is known.
func (s Semester) IsValid() bool {
	return s == SemesterFirst || s == SemesterSecond || s == SemesterSummer
}

// AcademicYear has the form "2025-2026".
type AcademicYear string

var academicYearRegex = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// IsValid checks the format and that the second year follows the first.
func (y AcademicYear) IsValid() bool {
	m := academicYearRegex.FindStringSubmatch(string(y))
	if m == nil {
		return false
	}
	var start, end int
	fmt.Sscanf(m[1], "%d", &start)
	fmt.Sscanf(m[2], "%d", &end)
	return end == start+1
}

// String returns the string representation.
func (y AcademicYear) String() string {
	return string(y)
}

// NewAcademicYear creates a new AcademicYear with validation.
func NewAcademicYear(value string) (AcademicYear, error) {
	y := AcademicYear(strings.TrimSpace(value))
	if !y.IsValid() {
		return "", NewDomainError("shared", "NewAcademicYear", ErrValidation, "academic year must look like 2025-2026")
	}
	return y, nil
}

// AcademicYearFor returns the academic year containing t. Years start in August.
func AcademicYearFor(t time.Time) AcademicYear {
	start := t.Year()
	if t.Month() < time.August {
		start--
	}
	return AcademicYear(fmt.Sprintf("%d-%d", start, start+1))
}

// ═══════════════════════════════════════════════════════════════════════════
// Money and Hours
// ═══════════════════════════════════════════════════════════════════════════

// MoneyPlaces is the number of decimal places amounts are rounded to.
const MoneyPlaces = 2

// RoundMoney rounds an amount half away from zero to centavos.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// RoundHours rounds hours to two decimal places.
func RoundHours(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ParseAmount parses a non-negative decimal amount.
func ParseAmount(value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, WrapError("shared", "ParseAmount", ErrValidation, "invalid amount", err)
	}
	if d.IsNegative() {
		return decimal.Zero, NewDomainError("shared", "ParseAmount", ErrValidation, "amount cannot be negative")
	}
	return d, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Reasons
// ═══════════════════════════════════════════════════════════════════════════

// RequireReason returns a MissingReason error when reason is blank.
func RequireReason(domain, op, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return NewDomainError(domain, op, ErrMissingReason, "a reason is required")
	}
	return nil
}
