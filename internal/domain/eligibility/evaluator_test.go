package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/domain/student"
)

var now = time.Date(2026, time.June, 15, 10, 0, 0, 0, time.UTC)

func evaluator() *Evaluator {
	return NewEvaluator(DefaultRules(), shared.FixedClock(now))
}

func goodStudent(gwa float64) student.Snapshot {
	return student.Snapshot{
		StudentID:        "stu-1",
		EnrollmentStatus: student.EnrollmentEnrolled,
		Units:            18,
		GWA:              gwa,
	}
}

func program(t scholarship.Type) scholarship.Scholarship {
	return scholarship.Scholarship{ID: string(t), Name: string(t), Type: t, Status: scholarship.StatusOpen, Deadline: now.AddDate(0, 1, 0), SlotsAvailable: 10}
}

func TestEvaluate_AcademicFull(t *testing.T) {
	v := evaluator().Evaluate(goodStudent(1.25), program(scholarship.TypeAcademicFull))
	assert.True(t, v.Eligible)
	assert.True(t, v.HasMet(TagGWAFullScholar))
	assert.Empty(t, v.Failed)

	v = evaluator().Evaluate(goodStudent(2.00), program(scholarship.TypeAcademicFull))
	assert.False(t, v.Eligible)
	assert.True(t, v.HasFailed(TagGWAFullScholar))
}

func TestEvaluate_BandEdgesAreInclusive(t *testing.T) {
	ev := evaluator()
	assert.True(t, ev.Evaluate(goodStudent(1.45), program(scholarship.TypeAcademicFull)).Eligible)
	assert.False(t, ev.Evaluate(goodStudent(1.451), program(scholarship.TypeAcademicFull)).Eligible)
	assert.True(t, ev.Evaluate(goodStudent(1.46), program(scholarship.TypeAcademicPartial)).Eligible)
	assert.True(t, ev.Evaluate(goodStudent(1.75), program(scholarship.TypeAcademicPartial)).Eligible)
	assert.False(t, ev.Evaluate(goodStudent(1.755), program(scholarship.TypeAcademicPartial)).Eligible)
}

func TestEvaluate_IndividualGradeCeiling(t *testing.T) {
	s := goodStudent(1.30)
	s.Grades = []student.Grade{{Subject: "Math", Value: 1.0}, {Subject: "PE", Value: 2.0}}

	v := evaluator().Evaluate(s, program(scholarship.TypeAcademicFull))
	assert.False(t, v.Eligible)
	assert.True(t, v.HasFailed(TagGWAFullScholar))

	s.GWA = 1.60
	assert.True(t, evaluator().Evaluate(s, program(scholarship.TypeAcademicPartial)).Eligible)
}

func TestEvaluate_CollectsAllReasons(t *testing.T) {
	s := student.Snapshot{
		StudentID:            "stu-2",
		EnrollmentStatus:     student.EnrollmentLeaveOfAbsence,
		Units:                12,
		GWA:                  2.5,
		ExistingScholarships: []string{"CHED"},
	}
	v := evaluator().Evaluate(s, program(scholarship.TypeAcademicFull))

	assert.False(t, v.Eligible)
	assert.ElementsMatch(t, []Tag{TagBonaFideStudent, TagRegularLoad, TagNoExistingScholarship, TagGWAFullScholar}, v.Failed)
	assert.Len(t, v.Reasons, 4)
}

func TestEvaluate_Assistantship(t *testing.T) {
	s := goodStudent(3.0)
	s.Units = 21
	v := evaluator().Evaluate(s, program(scholarship.TypeStudentAssistantship))
	assert.True(t, v.Eligible)
	assert.True(t, v.HasMet(TagMaxUnits))
	assert.False(t, v.HasMet(TagRegularLoad))

	s.Units = 22
	v = evaluator().Evaluate(s, program(scholarship.TypeStudentAssistantship))
	assert.True(t, v.HasFailed(TagMaxUnits))
}

func TestEvaluate_Economic(t *testing.T) {
	s := goodStudent(2.25)
	v := evaluator().Evaluate(s, program(scholarship.TypeEconomicAssistance))
	assert.True(t, v.HasFailed(TagGWARequirement), "certificate missing")

	s.IndigencyCertificate = &student.Certificate{IssuedAt: now.AddDate(0, -2, 0)}
	v = evaluator().Evaluate(s, program(scholarship.TypeEconomicAssistance))
	assert.True(t, v.Eligible)

	s.IndigencyCertificate = &student.Certificate{IssuedAt: now.AddDate(0, -7, 0)}
	v = evaluator().Evaluate(s, program(scholarship.TypeEconomicAssistance))
	assert.False(t, v.Eligible)

	s.IndigencyCertificate = &student.Certificate{IssuedAt: now.AddDate(0, -1, 0)}
	s.GWA = 2.30
	v = evaluator().Evaluate(s, program(scholarship.TypeEconomicAssistance))
	assert.True(t, v.HasFailed(TagGWARequirement))
}

func TestEvaluate_PerformingArtsMembership(t *testing.T) {
	s := goodStudent(2.5)
	since := now.AddDate(0, -5, 0)
	s.ArtsMembershipSince = &since

	assert.True(t, evaluator().Evaluate(s, program(scholarship.TypePerformingArtsPartial)).Eligible)
	v := evaluator().Evaluate(s, program(scholarship.TypePerformingArtsFull))
	assert.True(t, v.HasFailed(TagMembershipDuration))
}

func TestEvaluate_CriteriaOverrides(t *testing.T) {
	p := program(scholarship.TypeAcademicFull)
	p.Criteria.MinUnits = 15
	s := goodStudent(1.2)
	s.Units = 15
	assert.True(t, evaluator().Evaluate(s, p).Eligible)
}

func TestScoreAndPriority(t *testing.T) {
	assert.Equal(t, 100.0, Score(scholarship.TypeAcademicFull, 1.0))
	assert.Equal(t, 50.0, Score(scholarship.TypeAcademicFull, 1.45))
	assert.Equal(t, 75.0, Score(scholarship.TypeStudentAssistantship, 3.0))

	assert.Equal(t, PriorityHigh, PriorityFor(scholarship.TypeAcademicFull, 1.2, true))
	assert.Equal(t, PriorityMedium, PriorityFor(scholarship.TypeAcademicFull, 1.4, true))
	assert.Equal(t, PriorityMedium, PriorityFor(scholarship.TypeAcademicFull, 1.2, false))
	assert.Equal(t, PriorityMedium, PriorityFor(scholarship.TypePerformingArtsFull, 1.2, true))
}

func TestRecommend_FiltersAndSorts(t *testing.T) {
	full := program(scholarship.TypeAcademicFull)
	econ := program(scholarship.TypeEconomicAssistance)
	partial := program(scholarship.TypeAcademicPartial)
	closed := program(scholarship.TypeStudentAssistantship)
	closed.Status = scholarship.StatusClosed

	s := goodStudent(1.30)
	s.IndigencyCertificate = &student.Certificate{IssuedAt: now.AddDate(0, -1, 0)}

	recs := evaluator().Recommend(s, []*scholarship.Scholarship{&partial, &econ, &full, &closed})
	require.Len(t, recs, 2)
	assert.Equal(t, scholarship.TypeEconomicAssistance, recs[0].Scholarship.Type)
	assert.Equal(t, scholarship.TypeAcademicFull, recs[1].Scholarship.Type)
	assert.Greater(t, recs[0].Score, recs[1].Score)
}
