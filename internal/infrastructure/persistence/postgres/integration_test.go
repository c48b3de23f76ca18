//go:build integration

package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/internal/application/command"
	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/domain/student"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./...

func setup(t *testing.T) (*Connection, context.Context) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := NewConnectionFromURL(ctx, url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	_, err = NewMigrator(conn).Migrate(ctx)
	require.NoError(t, err)
	return conn, ctx
}

func seedScholarship(t *testing.T, ctx context.Context, conn *Connection) *scholarship.Scholarship {
	t.Helper()
	s, err := scholarship.New(scholarship.NewParams{
		ID:             uuid.NewString(),
		Name:           "Dean's List",
		Type:           scholarship.TypeAcademicFull,
		SlotsAvailable: 10,
		Deadline:       time.Now().Add(30 * 24 * time.Hour),
		Status:         scholarship.StatusOpen,
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, NewScholarshipRepository(conn).Create(ctx, s))
	return s
}

func newApplication(scholarshipID string) *application.Application {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &application.Application{
		ID:             uuid.NewString(),
		StudentID:      "stu-" + uuid.NewString()[:8],
		ScholarshipID:  scholarshipID,
		Status:         application.StatusDraft,
		Priority:       application.PriorityNormal,
		AmountReceived: decimal.Zero,
		AcademicYear:   shared.AcademicYear("2026-2027"),
		Semester:       shared.SemesterFirst,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestIntegration_ApplicationVersioning(t *testing.T) {
	conn, ctx := setup(t)
	s := seedScholarship(t, ctx, conn)
	repo := NewApplicationRepository(conn)

	app := newApplication(s.ID)
	require.NoError(t, repo.Create(ctx, app))
	assert.ErrorIs(t, repo.Create(ctx, app), shared.ErrAlreadyExists)

	got, err := repo.GetByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, application.StatusDraft, got.Status)

	got.Status = application.StatusSubmitted
	require.NoError(t, repo.Update(ctx, got, 1))
	assert.Equal(t, 2, got.Version)

	stale := app.Clone()
	stale.Remarks = "late writer"
	assert.ErrorIs(t, repo.Update(ctx, stale, 1), shared.ErrConcurrentModification)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	list, err := repo.List(ctx, application.ListFilter{ScholarshipID: s.ID, Status: application.StatusSubmitted})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, app.ID, list[0].ID)
}

func TestIntegration_ConcurrentApprovalsRespectSlots(t *testing.T) {
	conn, ctx := setup(t)
	s := seedScholarship(t, ctx, conn)
	repo := NewApplicationRepository(conn)

	const contenders = 5
	ids := make([]string, contenders)
	for i := range ids {
		app := newApplication(s.ID)
		app.Status = application.StatusUnderEvaluation
		require.NoError(t, repo.Create(ctx, app))
		ids[i] = app.ID
	}

	// each approval counts, pauses so the others reach their count, then saves
	approve := func(id string) error {
		return NewUnitOfWork(conn).Do(ctx, func(ctx context.Context, repos command.Repositories) error {
			n, err := repos.Applications.CountApproved(ctx, s.ID)
			if err != nil {
				return err
			}
			if n >= 2 {
				return shared.NewDomainError("test", "approve", shared.ErrNoSlotsAvailable, "full")
			}
			time.Sleep(50 * time.Millisecond)
			app, err := repos.Applications.GetByID(ctx, id)
			if err != nil {
				return err
			}
			version := app.Version
			app.Status = application.StatusApproved
			return repos.Applications.Update(ctx, app, version)
		})
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := approve(id)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	var approved, refused int
	for _, err := range errs {
		if err == nil {
			approved++
			continue
		}
		require.ErrorIs(t, err, shared.ErrNoSlotsAvailable)
		refused++
	}
	assert.Equal(t, 2, approved)
	assert.Equal(t, contenders-2, refused)

	n, err := repo.CountApproved(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIntegration_LiveRecordsAreUnique(t *testing.T) {
	conn, ctx := setup(t)
	s := seedScholarship(t, ctx, conn)
	now := time.Now().UTC().Truncate(time.Microsecond)

	apps := NewApplicationRepository(conn)
	app := newApplication(s.ID)
	require.NoError(t, apps.Create(ctx, app))
	twin := newApplication(s.ID)
	twin.StudentID = app.StudentID
	assert.ErrorIs(t, apps.Create(ctx, twin), shared.ErrAlreadyExists)

	a, err := payment.NewAssignment(payment.NewAssignmentParams{
		ID:            uuid.NewString(),
		ApplicationID: app.ID,
		StudentID:     app.StudentID,
		Office:        "Library",
		SupervisorID:  "sup-1",
		HourlyRate:    decimal.NewFromInt(50),
		StartDate:     timeutil.Date(2026, time.January, 5),
	}, now)
	require.NoError(t, err)
	require.NoError(t, NewAssignmentRepository(conn).Create(ctx, a))

	newPayment := func() *payment.Payment {
		return &payment.Payment{
			ID:           uuid.NewString(),
			AssignmentID: a.ID,
			StudentID:    a.StudentID,
			PeriodStart:  timeutil.Date(2026, time.February, 16),
			PeriodEnd:    timeutil.Date(2026, time.February, 28),
			TotalHours:   decimal.NewFromInt(8),
			HourlyRate:   a.HourlyRate,
			GrossAmount:  decimal.NewFromInt(400),
			Deductions:   decimal.Zero,
			NetAmount:    decimal.NewFromInt(400),
			Disbursement: payment.Disbursement{Status: payment.StatusPending, Version: 1, CreatedAt: now, UpdatedAt: now},
		}
	}
	payments := NewPaymentRepository(conn)
	first := newPayment()
	require.NoError(t, payments.Create(ctx, first))
	assert.ErrorIs(t, payments.Create(ctx, newPayment()), shared.ErrAlreadyExists)

	first.Status = payment.StatusCancelled
	require.NoError(t, payments.Update(ctx, first, 1))
	require.NoError(t, payments.Create(ctx, newPayment()), "a cancelled payment frees its period")

	calc := payment.NewCalculator(shared.FixedClock(now))
	newStipend := func() *payment.Stipend {
		out, err := calc.GenerateStipend(payment.GenerateStipendParams{
			ID:              uuid.NewString(),
			ApplicationID:   app.ID,
			StudentID:       app.StudentID,
			ScholarshipType: scholarship.TypeAcademicFull,
			Month:           time.March,
			Year:            2026,
		})
		require.NoError(t, err)
		return out.Stipend
	}
	stipends := NewStipendRepository(conn)
	require.NoError(t, stipends.Create(ctx, newStipend()))
	assert.ErrorIs(t, stipends.Create(ctx, newStipend()), shared.ErrAlreadyExists)
}

func TestIntegration_UnitOfWorkRollsBack(t *testing.T) {
	conn, ctx := setup(t)
	s := seedScholarship(t, ctx, conn)
	app := newApplication(s.ID)

	err := NewUnitOfWork(conn).Do(ctx, func(ctx context.Context, repos command.Repositories) error {
		if err := repos.Applications.Create(ctx, app); err != nil {
			return err
		}
		if err := repos.Outbox.Append(ctx, []shared.Effect{
			shared.Notify(app.StudentID, "Draft saved", "Your draft was saved.", shared.NotificationInfo),
		}); err != nil {
			return err
		}
		return shared.NewDomainError("test", "Do", shared.ErrValidation, "abort")
	})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewApplicationRepository(conn).GetByID(ctx, app.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIntegration_FundLedger(t *testing.T) {
	conn, ctx := setup(t)
	ledger := NewFundLedger(conn)
	ref := "deposit-" + uuid.NewString()

	before, err := ledger.Balance(ctx, scholarship.TypeStudentAssistantship)
	if err != nil {
		require.ErrorIs(t, err, shared.ErrNotFound)
		before = decimal.Zero
	}

	after, err := ledger.Deposit(ctx, scholarship.TypeStudentAssistantship, decimal.NewFromInt(1000), ref)
	require.NoError(t, err)
	assert.True(t, after.Equal(before.Add(decimal.NewFromInt(1000))))

	err = NewUnitOfWork(conn).Do(ctx, func(ctx context.Context, repos command.Repositories) error {
		tracker, err := repos.Funds.ForScholarship(ctx, scholarship.TypeStudentAssistantship)
		if err != nil {
			return err
		}
		ok, err := tracker.HasSufficientBalance(ctx, after.Add(decimal.NewFromInt(1)))
		if err != nil {
			return err
		}
		assert.False(t, ok)
		return tracker.DisburseAmount(ctx, after.Add(decimal.NewFromInt(1)), "too-much")
	})
	assert.ErrorIs(t, err, shared.ErrInsufficientFunds)

	balance, err := ledger.Balance(ctx, scholarship.TypeStudentAssistantship)
	require.NoError(t, err)
	assert.True(t, balance.Equal(after))
}

func TestIntegration_OutboxLifecycle(t *testing.T) {
	conn, ctx := setup(t)
	box := NewOutbox(conn)
	user := "user-" + uuid.NewString()

	require.NoError(t, box.Append(ctx, []shared.Effect{
		shared.Notify(user, "Approved", "Your application was approved.", shared.NotificationSuccess),
	}))
	assert.ErrorIs(t, box.Append(ctx, []shared.Effect{{Kind: shared.EffectNotify}}), shared.ErrValidation)

	pending, err := box.FetchPending(ctx, 1000)
	require.NoError(t, err)
	var id int64
	for _, e := range pending {
		if e.Effect.Notification != nil && e.Effect.Notification.UserID == user {
			id = e.ID
		}
	}
	require.NotZero(t, id)

	require.NoError(t, box.MarkFailed(ctx, id, 1, "webhook down", false))
	require.NoError(t, box.MarkDelivered(ctx, id))

	pending, err = box.FetchPending(ctx, 1000)
	require.NoError(t, err)
	for _, e := range pending {
		assert.NotEqual(t, id, e.ID)
	}
}

func TestIntegration_AuditChainAndInbox(t *testing.T) {
	conn, ctx := setup(t)
	log := NewAuditLog(conn)

	var seenPrev []byte
	err := log.AppendChained(ctx, shared.AuditRecord{
		ActorID: "admin-1", Action: "approve", EntityType: "application", EntityID: uuid.NewString(),
	}, func(prev []byte) ([]byte, error) {
		seenPrev = prev
		return []byte(uuid.NewString()), nil
	})
	require.NoError(t, err)
	assert.NotNil(t, seenPrev)

	inbox := NewNotificationInbox(conn)
	user := "user-" + uuid.NewString()
	require.NoError(t, inbox.Insert(ctx, shared.Notification{UserID: user, Title: "Hi", Message: "m", Type: shared.NotificationInfo}))
	items, err := inbox.ListForUser(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, inbox.MarkRead(ctx, user, items[0].ID))
	assert.ErrorIs(t, inbox.MarkRead(ctx, "someone-else", items[0].ID), shared.ErrNotFound)
}

func TestIntegration_SnapshotNewestWins(t *testing.T) {
	conn, ctx := setup(t)
	repo := NewStudentSnapshotRepository(conn)
	id := "stu-" + uuid.NewString()[:8]
	now := time.Now().UTC().Truncate(time.Second)

	newer := student.Snapshot{StudentID: id, EnrollmentStatus: student.EnrollmentEnrolled, Units: 21, GWA: 1.5, CapturedAt: now}
	older := newer
	older.Units = 12
	older.CapturedAt = now.Add(-time.Hour)

	require.NoError(t, repo.Save(ctx, &newer))
	require.NoError(t, repo.Save(ctx, &older))

	got, err := repo.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 21, got.Units)
}

func TestIntegration_MigrationsRoundTrip(t *testing.T) {
	conn, ctx := setup(t)
	m := NewMigrator(conn)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	for _, mig := range status {
		assert.NotNil(t, mig.AppliedAt, mig.Name)
	}

	again, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)

	last := status[len(status)-1]
	require.NoError(t, m.Rollback(ctx))
	status, err = m.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status[len(status)-1].AppliedAt)

	applied, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied, last.Name)
}
