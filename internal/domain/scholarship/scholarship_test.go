package scholarship

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

var now = time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

func TestStipendAmount(t *testing.T) {
	cases := map[Type]int64{
		TypeAcademicFull:          500,
		TypeAcademicPartial:       300,
		TypePerformingArtsFull:    500,
		TypePerformingArtsPartial: 300,
		TypeEconomicAssistance:    400,
	}
	for typ, want := range cases {
		got, ok := StipendAmount(typ)
		require.True(t, ok, typ)
		assert.True(t, got.Equal(decimal.NewFromInt(want)), typ)
	}

	_, ok := StipendAmount(TypeStudentAssistantship)
	assert.False(t, ok)
}

func TestNew_DefaultsAndDedup(t *testing.T) {
	s, err := New(NewParams{
		ID:       "sch-1",
		Name:     "  Dean's Lister ",
		Type:     TypeAcademicFull,
		Deadline: now.AddDate(0, 1, 0),
		RequiredDocuments: []document.Type{
			document.TypeCertificateOfGrades,
			document.TypeCertificateOfGrades,
			document.TypeApplicationLetter,
		},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, "Dean's Lister", s.Name)
	assert.Equal(t, StatusUpcoming, s.Status)
	assert.True(t, s.Amount.Equal(decimal.NewFromInt(500)))
	assert.Len(t, s.RequiredDocuments, 2)
	assert.True(t, s.Requires(document.TypeApplicationLetter))
}

func TestNew_Validation(t *testing.T) {
	base := NewParams{ID: "x", Name: "n", Type: TypeAcademicFull, Deadline: now}

	p := base
	p.Type = "sports"
	_, err := New(p, now)
	assert.ErrorIs(t, err, shared.ErrValidation)

	p = base
	p.SlotsAvailable = -1
	_, err = New(p, now)
	assert.ErrorIs(t, err, shared.ErrValidation)

	p = base
	p.RequiredDocuments = []document.Type{"selfie"}
	_, err = New(p, now)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSlotsAndOpen(t *testing.T) {
	s := &Scholarship{Status: StatusOpen, SlotsAvailable: 2, Deadline: now}

	assert.True(t, s.HasSlots(1))
	assert.False(t, s.HasSlots(2))
	assert.Equal(t, 0, s.RemainingSlots(5))

	assert.True(t, s.IsOpen(now))
	assert.False(t, s.IsOpen(now.Add(time.Second)))
	s.Status = StatusClosed
	assert.False(t, s.IsOpen(now.Add(-time.Hour)))
}

func TestSetStatusAndRevise(t *testing.T) {
	s := &Scholarship{Status: StatusUpcoming, SlotsAvailable: 5, Deadline: now}
	later := now.Add(time.Hour)

	require.NoError(t, s.SetStatus(StatusOpen, later))
	assert.Equal(t, StatusOpen, s.Status)
	assert.Equal(t, later, s.UpdatedAt)
	assert.ErrorIs(t, s.SetStatus("paused", later), shared.ErrValidation)

	assert.ErrorIs(t, s.Revise(2, now, 3, later), shared.ErrValidation)
	assert.ErrorIs(t, s.Revise(4, time.Time{}, 0, later), shared.ErrValidation)
	require.NoError(t, s.Revise(3, now.AddDate(0, 1, 0), 3, later))
	assert.Equal(t, 3, s.SlotsAvailable)
}
