package application

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/domain/student"
)

var now = time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)

func workflow() *Workflow {
	return NewWorkflow(nil, document.NewChecker(), shared.FixedClock(now))
}

func app(status Status) *Application {
	return &Application{
		ID:             "app-1",
		StudentID:      "stu-1",
		ScholarshipID:  "sch-1",
		Status:         status,
		Priority:       PriorityNormal,
		AmountReceived: decimal.Zero,
		AcademicYear:   "2025-2026",
		Semester:       shared.SemesterFirst,
		Purpose:        "I need support to continue my studies.",
		Version:        3,
	}
}

func academicFull() *scholarship.Scholarship {
	return &scholarship.Scholarship{
		ID:                "sch-1",
		Name:              "Academic Excellence",
		Type:              scholarship.TypeAcademicFull,
		SlotsAvailable:    2,
		Deadline:          now.AddDate(0, 1, 0),
		Status:            scholarship.StatusOpen,
		RequiredDocuments: []document.Type{document.TypeCertificateOfGrades, document.TypeCertificateOfRegistration},
	}
}

func honorStudent() *student.Snapshot {
	return &student.Snapshot{StudentID: "stu-1", EnrollmentStatus: student.EnrollmentEnrolled, Units: 18, GWA: 1.25}
}

func TestTransition_OnlyTableEdgesSucceed(t *testing.T) {
	w := workflow()
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			if from.CanTransitionTo(to) {
				continue
			}
			a := app(from)
			_, err := w.Transition(a, TransitionRequest{Target: to, ActorID: "staff-1", Comment: "x"}, Facts{})
			assert.Truef(t, errors.Is(err, shared.ErrInvalidTransition), "%s -> %s", from, to)
			assert.Equal(t, from, a.Status)
		}
	}
}

func TestTransition_SelfLoopAlwaysFails(t *testing.T) {
	for _, s := range AllStatuses {
		_, err := workflow().Transition(app(s), TransitionRequest{Target: s, ActorID: "staff-1", Comment: "x"}, Facts{})
		assert.Truef(t, errors.Is(err, shared.ErrInvalidTransition), "status %s", s)
	}
}

func TestTransition_SubmitRequiresPurpose(t *testing.T) {
	a := app(StatusDraft)
	a.Purpose = ""
	_, err := workflow().Transition(a, TransitionRequest{Target: StatusSubmitted, ActorID: "stu-1"}, Facts{})
	assert.True(t, errors.Is(err, shared.ErrIncompleteSubmission))

	a.Purpose = "letter"
	out, err := workflow().Transition(a, TransitionRequest{Target: StatusSubmitted, ActorID: "stu-1"}, Facts{Scholarship: academicFull()})
	require.NoError(t, err)
	require.NotNil(t, out.Application.AppliedAt)
	assert.Equal(t, now, *out.Application.AppliedAt)
	assert.Nil(t, a.AppliedAt, "input is not mutated")

	closed := academicFull()
	closed.Status = scholarship.StatusClosed
	_, err = workflow().Transition(a, TransitionRequest{Target: StatusSubmitted, ActorID: "stu-1"}, Facts{Scholarship: closed})
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestTransition_EffectsAndEventOrder(t *testing.T) {
	out, err := workflow().Transition(app(StatusDraft), TransitionRequest{Target: StatusSubmitted, ActorID: "stu-1"}, Facts{})
	require.NoError(t, err)

	require.Len(t, out.Effects, 2)
	assert.Equal(t, shared.EffectAudit, out.Effects[0].Kind)
	assert.Equal(t, shared.EffectNotify, out.Effects[1].Kind)
	assert.Equal(t, "stu-1", out.Effects[1].Notification.UserID)

	require.Len(t, out.Events, 1)
	ev, ok := out.Events[0].(shared.ApplicationTransitionedEvent)
	require.True(t, ok)
	assert.Equal(t, "draft", ev.From)
	assert.Equal(t, "submitted", ev.To)

	out, err = workflow().Transition(app(StatusSubmitted), TransitionRequest{Target: StatusUnderVerification, ActorID: "staff-1"}, Facts{})
	require.NoError(t, err)
	assert.Len(t, out.Effects, 1, "under_verification is not applicant facing")
}

func TestTransition_VerificationGate(t *testing.T) {
	sch := academicFull()
	a := app(StatusUnderVerification)
	docs := []document.Document{{ID: "d1", Type: document.TypeCertificateOfGrades, Status: document.StatusVerified}}

	out, err := workflow().Transition(a, TransitionRequest{Target: StatusVerified, ActorID: "staff-1"}, Facts{Scholarship: sch, Documents: docs})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrDocumentsIncomplete))
	require.NotNil(t, out, "redirect outcome is returned with the error")
	assert.Equal(t, StatusIncomplete, out.Application.Status)
	assert.Equal(t, []document.Type{document.TypeCertificateOfRegistration}, out.Report.Missing)
	assert.Equal(t, StatusUnderVerification, a.Status)

	again, err := workflow().Transition(out.Application, TransitionRequest{Target: StatusUnderVerification, ActorID: "stu-1"}, Facts{})
	require.NoError(t, err)

	docs = append(docs, document.Document{ID: "d2", Type: document.TypeCertificateOfRegistration, Status: document.StatusPending})
	_, err = workflow().Transition(again.Application, TransitionRequest{Target: StatusVerified, ActorID: "staff-1"}, Facts{Scholarship: sch, Documents: docs})
	assert.True(t, errors.Is(err, shared.ErrDocumentsIncomplete), "pending upload is not enough")

	docs[1].Status = document.StatusVerified
	ok, err := workflow().Transition(again.Application, TransitionRequest{Target: StatusVerified, ActorID: "staff-1"}, Facts{Scholarship: sch, Documents: docs})
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, ok.Application.Status)
	assert.True(t, ok.Report.Complete)
}

func TestTransition_ApprovalGate(t *testing.T) {
	sch := academicFull()
	a := app(StatusUnderEvaluation)

	weak := honorStudent()
	weak.GWA = 2.0
	out, err := workflow().Transition(a, TransitionRequest{Target: StatusApproved, ActorID: "staff-1"}, Facts{Student: weak, Scholarship: sch})
	assert.True(t, errors.Is(err, shared.ErrEligibilityNotMet))
	assert.Nil(t, out)

	_, err = workflow().Transition(a, TransitionRequest{Target: StatusApproved, ActorID: "staff-1"}, Facts{Student: honorStudent(), Scholarship: sch, ApprovedCount: 2})
	assert.True(t, errors.Is(err, shared.ErrNoSlotsAvailable))

	out, err = workflow().Transition(a, TransitionRequest{Target: StatusApproved, ActorID: "staff-1"}, Facts{Student: honorStudent(), Scholarship: sch, ApprovedCount: 1})
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, out.Application.Status)
	assert.Equal(t, payment.StatusPending, out.Application.StipendStatus)
	require.NotNil(t, out.Verdict)
	assert.True(t, out.Verdict.Eligible)
}

func TestTransition_RejectRequiresReason(t *testing.T) {
	a := app(StatusUnderEvaluation)
	_, err := workflow().Transition(a, TransitionRequest{Target: StatusRejected, ActorID: "staff-1", Comment: "   "}, Facts{})
	assert.True(t, errors.Is(err, shared.ErrMissingReason))

	out, err := workflow().Transition(a, TransitionRequest{Target: StatusRejected, ActorID: "staff-1", Comment: "GWA too low"}, Facts{})
	require.NoError(t, err)
	assert.Equal(t, "GWA too low", out.Application.Remarks)
	require.NotNil(t, out.Application.RejectedAt)
}

func TestTransition_TimestampsNeverMove(t *testing.T) {
	applied := now.AddDate(0, -1, 0)
	approved := now.AddDate(0, 0, -3)
	a := app(StatusApproved)
	a.AppliedAt = &applied
	a.ApprovedAt = &approved

	out, err := workflow().Transition(a, TransitionRequest{Target: StatusEnd, ActorID: "staff-1"}, Facts{})
	require.NoError(t, err)
	assert.Equal(t, applied, *out.Application.AppliedAt)
	assert.Equal(t, approved, *out.Application.ApprovedAt)
	assert.Nil(t, out.Application.RejectedAt)
}

func TestTransition_ArchivedIsFrozen(t *testing.T) {
	a := app(StatusDraft)
	at := now
	a.ArchivedAt = &at
	_, err := workflow().Transition(a, TransitionRequest{Target: StatusSubmitted, ActorID: "stu-1"}, Facts{})
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestApplyCascade(t *testing.T) {
	a := app(StatusUnderEvaluation)
	a.InterviewID = "iv-1"

	out, err := workflow().ApplyCascade(a, CascadeInterviewCancelled, "staff-1", "interviewer ill")
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, out.Application.Status)
	assert.Empty(t, out.Application.InterviewID)
	ev := out.Events[0].(shared.ApplicationTransitionedEvent)
	assert.Equal(t, string(CascadeInterviewCancelled), ev.Cascade)

	out, err = workflow().ApplyCascade(a, CascadeInterviewNoShow, "staff-1", "")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Application.Status)
	assert.Equal(t, NoShowReason, out.Application.Remarks)
	require.NotNil(t, out.Application.RejectedAt)

	_, err = workflow().ApplyCascade(app(StatusVerified), CascadeInterviewNoShow, "staff-1", "")
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
}

func TestRecordDisbursement(t *testing.T) {
	a := app(StatusApproved)
	approved := now
	a.ApprovedAt = &approved
	a.StipendStatus = payment.StatusPending

	out, err := workflow().RecordDisbursement(a, decimal.NewFromInt(500), payment.StatusReleased)
	require.NoError(t, err)
	assert.Equal(t, "500.00", out.Application.AmountReceived.StringFixed(2))

	out, err = workflow().RecordDisbursement(out.Application, decimal.NewFromInt(500), payment.StatusReleased)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", out.Application.AmountReceived.StringFixed(2))

	held, err := workflow().RecordDisbursement(out.Application, decimal.NewFromInt(500), payment.StatusOnHold)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", held.Application.AmountReceived.StringFixed(2))
	assert.Equal(t, payment.StatusOnHold, held.Application.StipendStatus)

	_, err = workflow().RecordDisbursement(app(StatusSubmitted), decimal.NewFromInt(1), payment.StatusReleased)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestArchive(t *testing.T) {
	out, err := workflow().Archive(app(StatusEnd), "staff-1")
	require.NoError(t, err)
	require.NotNil(t, out.Application.ArchivedAt)

	_, err = workflow().Archive(out.Application, "staff-1")
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	_, err = workflow().Archive(app(StatusUnderEvaluation), "staff-1")
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestNewDraftAndAttachDocument(t *testing.T) {
	out, err := NewDraft(NewDraftParams{ID: "app-9", StudentID: "stu-9", ScholarshipID: "sch-1", Semester: shared.SemesterFirst}, now)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, out.Application.Status)
	assert.Equal(t, shared.AcademicYear("2025-2026"), out.Application.AcademicYear)
	assert.Equal(t, PriorityNormal, out.Application.Priority)

	withDoc, err := out.Application.AttachDocument("doc-1", now)
	require.NoError(t, err)
	withDoc, err = withDoc.AttachDocument("doc-1", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, withDoc.UploadedDocuments)
	assert.Empty(t, out.Application.UploadedDocuments)

	_, err = app(StatusApproved).AttachDocument("doc-2", now)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))

	_, err = NewDraft(NewDraftParams{ID: "app-9", StudentID: "stu-9", ScholarshipID: "sch-1", Semester: "winter"}, now)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}
