// Package eligibility decides whether a student qualifies for a scholarship.
// Every rule is evaluated and every failure reason is collected; nothing
// short-circuits on the first failure.
package eligibility

import (
	"fmt"
	"math"
	"time"

	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/domain/student"
)

// Tag names one eligibility requirement.
type Tag string

const (
	TagBonaFideStudent       Tag = "bona_fide_student"
	TagRegularLoad           Tag = "regular_load"
	TagMaxUnits              Tag = "max_units"
	TagNoExistingScholarship Tag = "no_existing_scholarship"
	TagGWAFullScholar        Tag = "gwa_full_scholar"
	TagGWAPartialScholar     Tag = "gwa_partial_scholar"
	TagGWARequirement        Tag = "gwa_requirement"
	TagMembershipDuration    Tag = "membership_duration"
)

// Verdict is the result of evaluating one student against one scholarship.
type Verdict struct {
	Eligible bool     `json:"eligible"`
	Met      []Tag    `json:"met_requirements"`
	Failed   []Tag    `json:"failed_requirements"`
	Reasons  []string `json:"reasons"`
}

// HasMet reports whether tag is among the met requirements.
func (v Verdict) HasMet(tag Tag) bool {
	return contains(v.Met, tag)
}

// HasFailed reports whether tag is among the failed requirements.
func (v Verdict) HasFailed(tag Tag) bool {
	return contains(v.Failed, tag)
}

func contains(tags []Tag, tag Tag) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Rules holds the default thresholds. Scholarship criteria override them.
type Rules struct {
	RegularLoadUnits        int
	AssistantshipMaxUnits   int
	CertificateMaxAgeMonths int
	FullMembershipMonths    int
	PartialMembershipMonths int
}

// DefaultRules returns the university's published thresholds.
func DefaultRules() Rules {
	return Rules{
		RegularLoadUnits:        18,
		AssistantshipMaxUnits:   21,
		CertificateMaxAgeMonths: 6,
		FullMembershipMonths:    12,
		PartialMembershipMonths: 4,
	}
}

// Band is an inclusive GWA range with a ceiling on any single grade.
type Band struct {
	Min        float64
	Max        float64
	WorstGrade float64 // 0 means no per-grade limit
}

// GWA bands per scholarship type.
var (
	BandAcademicFull    = Band{Min: 1.000, Max: 1.450, WorstGrade: 1.75}
	BandAcademicPartial = Band{Min: 1.460, Max: 1.750, WorstGrade: 2.00}
	BandEconomic        = Band{Min: 1.000, Max: 2.250}
)

// BandFor returns the GWA band of a scholarship type, if it has one.
func BandFor(t scholarship.Type) (Band, bool) {
	switch t {
	case scholarship.TypeAcademicFull:
		return BandAcademicFull, true
	case scholarship.TypeAcademicPartial:
		return BandAcademicPartial, true
	case scholarship.TypeEconomicAssistance:
		return BandEconomic, true
	}
	return Band{}, false
}

// Contains reports whether gwa lies inside the band, compared at three
// decimal places.
func (b Band) Contains(gwa float64) bool {
	g := millis(gwa)
	return g >= millis(b.Min) && g <= millis(b.Max)
}

func millis(v float64) int64 {
	return int64(math.Round(v * 1000))
}

// Evaluator applies eligibility rules. It is pure apart from reading the
// clock for certificate age and membership duration.
type Evaluator struct {
	rules Rules
	clock shared.Clock
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(rules Rules, clock shared.Clock) *Evaluator {
	if clock == nil {
		clock = shared.SystemClock()
	}
	return &Evaluator{rules: rules, clock: clock}
}

type evaluation struct {
	verdict Verdict
}

func (e *evaluation) pass(tag Tag) {
	e.verdict.Met = append(e.verdict.Met, tag)
}

func (e *evaluation) fail(tag Tag, format string, args ...any) {
	e.verdict.Failed = append(e.verdict.Failed, tag)
	e.verdict.Reasons = append(e.verdict.Reasons, fmt.Sprintf(format, args...))
}

// settle records tag as met when reasons is empty, otherwise as failed once
// with every reason.
func (e *evaluation) settle(tag Tag, reasons []string) {
	if len(reasons) == 0 {
		e.pass(tag)
		return
	}
	e.verdict.Failed = append(e.verdict.Failed, tag)
	e.verdict.Reasons = append(e.verdict.Reasons, reasons...)
}

// Evaluate checks s against sch.
func (ev *Evaluator) Evaluate(s student.Snapshot, sch scholarship.Scholarship) Verdict {
	now := ev.clock.Now()
	e := &evaluation{verdict: Verdict{Met: []Tag{}, Failed: []Tag{}, Reasons: []string{}}}

	if s.IsEnrolled() {
		e.pass(TagBonaFideStudent)
	} else {
		e.fail(TagBonaFideStudent, "Student is not currently enrolled (status: %s)", s.EnrollmentStatus)
	}

	if sch.Type.IsAssistantship() {
		maxUnits := pick(sch.Criteria.MaxUnits, ev.rules.AssistantshipMaxUnits)
		if s.Units <= maxUnits {
			e.pass(TagMaxUnits)
		} else {
			e.fail(TagMaxUnits, "Student assistants may carry at most %d units (enrolled: %d)", maxUnits, s.Units)
		}
	} else {
		minUnits := pick(sch.Criteria.MinUnits, ev.rules.RegularLoadUnits)
		if s.Units >= minUnits {
			e.pass(TagRegularLoad)
		} else {
			e.fail(TagRegularLoad, "A regular load of at least %d units is required (enrolled: %d)", minUnits, s.Units)
		}
	}

	if s.HasExistingScholarship() {
		e.fail(TagNoExistingScholarship, "Student already holds a scholarship: %v", s.ExistingScholarships)
	} else {
		e.pass(TagNoExistingScholarship)
	}

	switch sch.Type {
	case scholarship.TypeAcademicFull:
		ev.checkAcademic(e, s, TagGWAFullScholar, BandAcademicFull)
	case scholarship.TypeAcademicPartial:
		ev.checkAcademic(e, s, TagGWAPartialScholar, BandAcademicPartial)
	case scholarship.TypeEconomicAssistance:
		ev.checkEconomic(e, s, sch.Criteria, now)
	case scholarship.TypePerformingArtsFull:
		ev.checkMembership(e, s, pick(sch.Criteria.MinMembershipMonths, ev.rules.FullMembershipMonths), now)
	case scholarship.TypePerformingArtsPartial:
		ev.checkMembership(e, s, pick(sch.Criteria.MinMembershipMonths, ev.rules.PartialMembershipMonths), now)
	}

	e.verdict.Eligible = len(e.verdict.Failed) == 0
	return e.verdict
}

func (ev *Evaluator) checkAcademic(e *evaluation, s student.Snapshot, tag Tag, band Band) {
	var reasons []string
	if !s.HasGWA() {
		reasons = append(reasons, "No GWA on record")
	} else if !band.Contains(s.GWA) {
		reasons = append(reasons, fmt.Sprintf("GWA %.3f is outside the required range %.3f-%.3f", s.GWA, band.Min, band.Max))
	}
	if worst, ok := s.LowestGrade(); ok && band.WorstGrade > 0 && millis(worst) > millis(band.WorstGrade) {
		reasons = append(reasons, fmt.Sprintf("A grade of %.2f is below the minimum individual grade of %.2f", worst, band.WorstGrade))
	}
	e.settle(tag, reasons)
}

func (ev *Evaluator) checkEconomic(e *evaluation, s student.Snapshot, c scholarship.Criteria, now time.Time) {
	maxGWA := BandEconomic.Max
	if c.MaxGWA > 0 {
		maxGWA = c.MaxGWA
	}
	maxAge := pick(c.CertificateMaxAgeMonths, ev.rules.CertificateMaxAgeMonths)

	var reasons []string
	if !s.HasGWA() {
		reasons = append(reasons, "No GWA on record")
	} else if millis(s.GWA) > millis(maxGWA) {
		reasons = append(reasons, fmt.Sprintf("GWA %.3f exceeds the maximum of %.3f", s.GWA, maxGWA))
	}
	switch {
	case s.IndigencyCertificate == nil:
		reasons = append(reasons, "No certificate of indigency on file")
	case !s.IndigencyCertificate.ValidAt(now, maxAge):
		reasons = append(reasons, fmt.Sprintf("Certificate of indigency is expired or older than %d months", maxAge))
	}
	e.settle(TagGWARequirement, reasons)
}

func (ev *Evaluator) checkMembership(e *evaluation, s student.Snapshot, minMonths int, now time.Time) {
	months := s.MembershipMonths(now)
	if months >= minMonths {
		e.pass(TagMembershipDuration)
		return
	}
	e.fail(TagMembershipDuration, "At least %d months of performing-arts membership required (current: %d)", minMonths, months)
}

func pick(override, def int) int {
	if override > 0 {
		return override
	}
	return def
}
