package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/redis"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Description() string           { return "test job " + j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

type recorder struct {
	mu   sync.Mutex
	runs map[string][]bool
}

func (r *recorder) RecordJob(job string, _ time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs == nil {
		r.runs = map[string][]bool{}
	}
	r.runs[job] = append(r.runs[job], success)
}

type fakeLocker struct {
	held     bool
	err      error
	released int32
	names    []string
}

func (l *fakeLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(context.Context) error, error) {
	l.names = append(l.names, name)
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, redis.ErrLockHeld
	}
	return func(context.Context) error {
		atomic.AddInt32(&l.released, 1)
		return nil
	}, nil
}

func TestRegister(t *testing.T) {
	s := New(Config{})
	job := funcJob{name: "a", fn: func(context.Context) error { return nil }}

	require.NoError(t, s.Register(job, "*/5 * * * *"))
	assert.Error(t, s.Register(job, "* * * * *"), "duplicate name")
	assert.Error(t, s.Register(funcJob{name: "b"}, "not a spec"))

	info, err := s.GetJobInfo("a")
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", info.Spec)
	assert.Equal(t, "test job a", info.Description)

	require.NoError(t, s.Unregister("a"))
	assert.ErrorIs(t, s.Unregister("a"), ErrJobNotFound)
	assert.Empty(t, s.ListJobs())
}

func TestRunNow_RecordsResults(t *testing.T) {
	rec := &recorder{}
	s := New(Config{Recorder: rec})
	boom := errors.New("boom")
	fail := true

	require.NoError(t, s.Register(funcJob{name: "flaky", fn: func(context.Context) error {
		if fail {
			return boom
		}
		return nil
	}}, "@hourly"))

	res, err := s.RunNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Error, boom)

	fail = false
	res, err = s.RunNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, []bool{false, true}, rec.runs["flaky"])

	info, err := s.GetJobInfo("flaky")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.RunCount)
	assert.Equal(t, int64(1), info.FailCount)
	require.NotNil(t, info.LastResult)
	assert.True(t, info.LastResult.Success)

	history := s.History(10)
	require.Len(t, history, 2)
	assert.True(t, history[0].Success, "newest first")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunNow_AppliesTimeout(t *testing.T) {
	s := New(Config{JobTimeout: 20 * time.Millisecond})
	require.NoError(t, s.Register(funcJob{name: "slow", fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}, "@daily"))

	res, err := s.RunNow(context.Background(), "slow")
	require.NoError(t, err)
	assert.ErrorIs(t, res.Error, context.DeadlineExceeded)
}

func TestRunNow_RecoversPanics(t *testing.T) {
	s := New(Config{})
	require.NoError(t, s.Register(funcJob{name: "panics", fn: func(context.Context) error {
		panic("nil map")
	}}, "@daily"))

	res, err := s.RunNow(context.Background(), "panics")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error.Error(), "nil map")
}

func TestRunNow_Locking(t *testing.T) {
	var runs int32
	job := funcJob{name: "payroll", fn: func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}}

	t.Run("held elsewhere skips", func(t *testing.T) {
		rec := &recorder{}
		s := New(Config{Locker: &fakeLocker{held: true}, Recorder: rec})
		require.NoError(t, s.Register(job, "@daily"))

		res, err := s.RunNow(context.Background(), "payroll")
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
		assert.Empty(t, rec.runs)
	})

	t.Run("acquired and released", func(t *testing.T) {
		l := &fakeLocker{}
		s := New(Config{Locker: l})
		require.NoError(t, s.Register(job, "@daily"))

		res, err := s.RunNow(context.Background(), "payroll")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, []string{"job:payroll"}, l.names)
		assert.Equal(t, int32(1), atomic.LoadInt32(&l.released))
	})

	t.Run("lock service down runs unlocked", func(t *testing.T) {
		atomic.StoreInt32(&runs, 0)
		s := New(Config{Locker: &fakeLocker{err: errors.New("dial tcp: refused")}})
		require.NoError(t, s.Register(job, "@daily"))

		res, err := s.RunNow(context.Background(), "payroll")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	})
}

func TestStartStop_RunsOnSchedule(t *testing.T) {
	var runs int32
	s := New(Config{})
	require.NoError(t, s.Register(funcJob{name: "tick", fn: func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}}, "@every 1s"))

	s.Start()
	assert.True(t, s.IsRunning())
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())

	info, err := s.GetJobInfo("tick")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.RunCount, int64(1))
}

func TestOnJobComplete(t *testing.T) {
	s := New(Config{})
	require.NoError(t, s.Register(funcJob{name: "x", fn: func(context.Context) error { return nil }}, "@daily"))

	var got []string
	s.OnJobComplete(func(r JobResult) { got = append(got, r.JobName) })
	_, err := s.RunNow(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got)
}
