package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/config"
	"github.com/osas-hub/scholarship-hub/internal/application/command"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/messaging"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/service"
)

type scriptedDispatcher struct {
	reports []messaging.DispatchReport
	err     error
	calls   int
}

func (d *scriptedDispatcher) RunOnce(context.Context) (messaging.DispatchReport, error) {
	d.calls++
	if d.err != nil {
		return messaging.DispatchReport{}, d.err
	}
	if len(d.reports) == 0 {
		return messaging.DispatchReport{}, nil
	}
	r := d.reports[0]
	d.reports = d.reports[1:]
	return r, nil
}

func TestOutboxDispatchJob(t *testing.T) {
	t.Run("drains full batches", func(t *testing.T) {
		d := &scriptedDispatcher{reports: []messaging.DispatchReport{
			{Fetched: 100, Delivered: 100},
			{Fetched: 40, Delivered: 40},
		}}
		require.NoError(t, NewOutboxDispatchJob(d, nil).Run(context.Background()))
		assert.Equal(t, 3, d.calls)
	})

	t.Run("stops after a failing batch", func(t *testing.T) {
		d := &scriptedDispatcher{reports: []messaging.DispatchReport{
			{Fetched: 10, Delivered: 7, Failed: 1, Blocked: 2},
			{Fetched: 3, Delivered: 3},
		}}
		require.NoError(t, NewOutboxDispatchJob(d, nil).Run(context.Background()))
		assert.Equal(t, 1, d.calls)
	})

	t.Run("fetch error fails the run", func(t *testing.T) {
		d := &scriptedDispatcher{err: errors.New("pool closed")}
		assert.Error(t, NewOutboxDispatchJob(d, nil).Run(context.Background()))
	})
}

type fakePayroll struct {
	got    []command.GeneratePayrollCommand
	result *command.PayrollResult
	err    error
}

func (p *fakePayroll) GeneratePayroll(_ context.Context, cmd command.GeneratePayrollCommand) (*command.PayrollResult, error) {
	p.got = append(p.got, cmd)
	return p.result, p.err
}

type flags map[string]bool

func (f flags) Enabled(name string) bool { return f[name] }

func TestPayrollJob(t *testing.T) {
	result := &command.PayrollResult{
		PeriodStart: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		Generated:   []*payment.Payment{{ID: "pay-1"}},
		Skipped:     map[string]string{"asg-2": "no approved hours"},
	}

	t.Run("runs for the previous period as system", func(t *testing.T) {
		p := &fakePayroll{result: result}
		job := NewPayrollJob(p, flags{config.FeaturePayrollAutoGenerate: true}, nil)
		require.NoError(t, job.Run(context.Background()))
		require.Len(t, p.got, 1)
		assert.Equal(t, SystemActor, p.got[0].ActorID)
		assert.True(t, p.got[0].PeriodStart.IsZero())
		assert.True(t, p.got[0].PeriodEnd.IsZero())
	})

	t.Run("flag off is a no-op", func(t *testing.T) {
		p := &fakePayroll{result: result}
		require.NoError(t, NewPayrollJob(p, flags{}, nil).Run(context.Background()))
		assert.Empty(t, p.got)
	})

	t.Run("errors propagate", func(t *testing.T) {
		p := &fakePayroll{err: errors.New("deadline exceeded")}
		assert.Error(t, NewPayrollJob(p, nil, nil).Run(context.Background()))
	})
}

type fakeVerifier struct {
	report service.ChainReport
	err    error
}

func (v fakeVerifier) Verify(context.Context) (service.ChainReport, error) {
	return v.report, v.err
}

func TestAuditVerifyJob(t *testing.T) {
	assert.NoError(t, NewAuditVerifyJob(fakeVerifier{report: service.ChainReport{Checked: 12}}, nil).Run(context.Background()))

	err := NewAuditVerifyJob(fakeVerifier{report: service.ChainReport{Checked: 4, BrokenAt: 4}}, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 4")

	assert.Error(t, NewAuditVerifyJob(fakeVerifier{err: errors.New("timeout")}, nil).Run(context.Background()))
}

func TestNames(t *testing.T) {
	assert.Equal(t, NameOutboxDispatch, NewOutboxDispatchJob(nil, nil).Name())
	assert.Equal(t, NamePayroll, NewPayrollJob(nil, nil, nil).Name())
	assert.Equal(t, NameAuditVerify, NewAuditVerifyJob(nil, nil).Name())
}
