// Package scheduler runs the periodic jobs of the scholarship hub: outbox
// dispatch, semi-monthly payroll and audit chain verification.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/redis"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error

	// Skipped is set when another process held the job lock.
	Skipped bool
}

// Locker grants a named lease to one process at a time.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// Recorder receives job measurements.
type Recorder interface {
	RecordJob(job string, d time.Duration, success bool)
}

// ErrJobNotFound is returned for unknown job names.
var ErrJobNotFound = errors.New("scheduler: job not found")

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	// Location for cron expressions. Default: UTC.
	Location *time.Location

	// JobTimeout bounds one run. Default: 5m.
	JobTimeout time.Duration

	// Locker keeps a job from running on two workers at once. Optional.
	Locker Locker

	Recorder Recorder
	Logger   *logger.Logger

	// MaxHistorySize is the number of results kept in memory. Default: 200.
	MaxHistorySize int
}

// Scheduler runs registered jobs on cron schedules.
type Scheduler struct {
	mu sync.RWMutex

	cfg  Config
	log  *logger.Logger
	cron *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	jobs     map[string]*scheduledJob
	running  bool
	lastRuns map[string]JobResult
	history  []JobResult

	onJobComplete func(result JobResult)
}

type scheduledJob struct {
	job       Job
	spec      string
	entryID   cron.EntryID
	runCount  int64
	failCount int64
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 200
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	log := cfg.Logger.Named("scheduler")
	cl := cronLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg: cfg,
		log: log,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]*scheduledJob),
		lastRuns: make(map[string]JobResult),
	}
}

// Register adds a job under a five-field cron spec or a descriptor such as
// "@every 30s".
func (s *Scheduler) Register(job Job, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	sj := &scheduledJob{job: job, spec: spec}
	id, err := s.cron.AddFunc(spec, func() {
		_ = s.execute(s.ctx, sj)
	})
	if err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", name, spec, err)
	}
	sj.entryID = id
	s.jobs[name] = sj

	s.log.Info("job registered",
		logger.String("job", name),
		logger.String("spec", spec),
	)
	return nil
}

// Unregister removes a job.
func (s *Scheduler) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[name]
	if !ok {
		return ErrJobNotFound
	}
	s.cron.Remove(sj.entryID)
	delete(s.jobs, name)
	return nil
}

// Start begins running jobs on their schedules.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("jobs", len(s.jobs)))
}

// Stop stops scheduling, cancels running jobs and waits for them to return
// or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.cancel()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// IsRunning reports whether Start has been called without Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RunNow runs a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	sj, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return JobResult{}, ErrJobNotFound
	}
	return s.execute(ctx, sj), nil
}

// OnJobComplete sets a hook called after every finished or skipped run.
func (s *Scheduler) OnJobComplete(fn func(result JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobComplete = fn
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) JobResult {
	name := sj.job.Name()
	log := s.log.With(logger.String("job", name))

	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	result := JobResult{JobName: name, StartedAt: time.Now()}

	if s.cfg.Locker != nil {
		release, err := s.cfg.Locker.Acquire(ctx, "job:"+name, s.cfg.JobTimeout+time.Minute)
		if errors.Is(err, redis.ErrLockHeld) {
			log.Debug("job skipped, lock held elsewhere")
			result.Skipped = true
			result.CompletedAt = time.Now()
			s.finish(sj, result)
			return result
		}
		if err != nil {
			// Without the lock service a single worker is assumed.
			log.Warn("job lock unavailable, running unlocked", logger.Err(err))
		} else {
			defer func() {
				if err := release(context.Background()); err != nil {
					log.Warn("release job lock", logger.Err(err))
				}
			}()
		}
	}

	err := runSafely(ctx, sj.job)

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Success = err == nil
	result.Error = err

	if s.cfg.Recorder != nil {
		s.cfg.Recorder.RecordJob(name, result.Duration, result.Success)
	}
	if err != nil {
		log.Error("job failed", logger.Latency(result.Duration), logger.Err(err))
	} else {
		log.Debug("job completed", logger.Latency(result.Duration))
	}

	s.finish(sj, result)
	return result
}

func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) finish(sj *scheduledJob, result JobResult) {
	s.mu.Lock()
	if !result.Skipped {
		sj.runCount++
		if !result.Success {
			sj.failCount++
		}
	}
	s.lastRuns[result.JobName] = result
	s.history = append(s.history, result)
	if over := len(s.history) - s.cfg.MaxHistorySize; over > 0 {
		s.history = s.history[over:]
	}
	hook := s.onJobComplete
	s.mu.Unlock()

	if hook != nil {
		hook(result)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string
	Description string
	Spec        string
	NextRun     time.Time
	PrevRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns all registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for _, sj := range s.jobs {
		infos = append(infos, s.info(sj))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// GetJobInfo returns information about one job.
func (s *Scheduler) GetJobInfo(name string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sj, ok := s.jobs[name]
	if !ok {
		return JobInfo{}, ErrJobNotFound
	}
	return s.info(sj), nil
}

func (s *Scheduler) info(sj *scheduledJob) JobInfo {
	entry := s.cron.Entry(sj.entryID)
	info := JobInfo{
		Name:        sj.job.Name(),
		Description: sj.job.Description(),
		Spec:        sj.spec,
		NextRun:     entry.Next,
		PrevRun:     entry.Prev,
		RunCount:    sj.runCount,
		FailCount:   sj.failCount,
	}
	if last, ok := s.lastRuns[info.Name]; ok {
		info.LastResult = &last
	}
	return info
}

// History returns up to limit recent results, newest first.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]JobResult, 0, limit)
	for i := len(s.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// CRON LOGGER
// ══════════════════════════════════════════════════════════════════════════════

// cronLogger adapts the structured logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Err(err))...)
}

func kvFields(kv []interface{}) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
