package document

import (
	"testing"
	"time"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC)

var required = []Type{TypeApplicationLetter, TypeCertificateOfGrades, TypeCertificateOfRegistration}

func doc(id string, t Type, s Status) Document {
	return Document{ID: id, ApplicationID: "app-1", Type: t, Status: s}
}

func TestChecker_MissingIsSetDifference(t *testing.T) {
	r := NewChecker().Check(required, []Document{
		doc("d1", TypeApplicationLetter, StatusVerified),
		doc("d2", TypeValidID, StatusPending),
	})

	assert.False(t, r.Complete)
	assert.Equal(t, []Type{TypeCertificateOfGrades, TypeCertificateOfRegistration}, r.Missing)
	assert.Equal(t, 2, r.UploadedCount)
	assert.Equal(t, 1, r.VerifiedCount)
	require.Len(t, r.PendingVerification, 1)
	assert.Equal(t, "d2", r.PendingVerification[0].ID)
}

func TestChecker_PendingDoesNotCountAsComplete(t *testing.T) {
	docs := []Document{
		doc("d1", TypeApplicationLetter, StatusVerified),
		doc("d2", TypeCertificateOfGrades, StatusVerified),
		doc("d3", TypeCertificateOfRegistration, StatusPending),
	}
	r := NewChecker().Check(required, docs)
	assert.Empty(t, r.Missing)
	assert.False(t, r.Complete)

	docs[2].Status = StatusVerified
	assert.True(t, NewChecker().IsComplete(required, docs))
}

func TestChecker_RejectedOnlyUploadsAreReported(t *testing.T) {
	r := NewChecker().Check(required, []Document{
		doc("d1", TypeApplicationLetter, StatusRejected),
		doc("d2", TypeCertificateOfGrades, StatusRejected),
		doc("d3", TypeCertificateOfGrades, StatusVerified),
	})
	assert.Equal(t, []Type{TypeApplicationLetter}, r.Rejected)
	assert.False(t, r.Complete)
}

func TestChecker_NoRequirementsIsComplete(t *testing.T) {
	assert.True(t, NewChecker().IsComplete(nil, nil))
}

func TestNew_RejectsTypesOutsideRequiredSet(t *testing.T) {
	_, err := New(NewParams{
		ID: "d1", ApplicationID: "app-1", Type: TypeIncomeTaxReturn, FileRef: "s3://x",
	}, required, now)
	assert.ErrorIs(t, err, shared.ErrValidation)

	out, err := New(NewParams{
		ID: "d2", ApplicationID: "app-1", Type: TypeValidID, FileRef: "s3://y", UploaderID: "stu-1",
	}, required, now)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, out.Document.Status)
	require.Len(t, out.Effects, 1)
	assert.Equal(t, shared.EffectAudit, out.Effects[0].Kind)
}

func TestVerifyAndReject(t *testing.T) {
	d := doc("d1", TypeApplicationLetter, StatusPending)

	out, err := d.Verify("staff-1", "stu-1", now)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, out.Document.Status)
	assert.Equal(t, StatusPending, d.Status, "input must not be mutated")
	require.Len(t, out.Effects, 2)
	assert.Equal(t, shared.EffectAudit, out.Effects[0].Kind)
	assert.Equal(t, shared.EffectNotify, out.Effects[1].Kind)

	_, err = out.Document.Verify("staff-1", "stu-1", now)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = d.Reject("staff-1", "stu-1", " ", now)
	assert.ErrorIs(t, err, shared.ErrMissingReason)

	rej, err := d.Reject("staff-1", "stu-1", "blurry scan", now)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rej.Document.Status)
	assert.Equal(t, "blurry scan", rej.Document.RejectionReason)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" Certificate_Of_Grades ")
	require.NoError(t, err)
	assert.Equal(t, TypeCertificateOfGrades, typ)

	_, err = ParseType("selfie")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
