// Package jobs contains the scheduled jobs of the scholarship hub.
package jobs

import (
	"context"
	"fmt"

	"github.com/osas-hub/scholarship-hub/config"
	"github.com/osas-hub/scholarship-hub/internal/application/command"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/messaging"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/service"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// Job names, also used as lock names.
const (
	NameOutboxDispatch = "outbox_dispatch"
	NamePayroll        = "payroll"
	NameAuditVerify    = "audit_verify"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX DISPATCH
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher delivers one batch of outbox entries.
type Dispatcher interface {
	RunOnce(ctx context.Context) (messaging.DispatchReport, error)
}

// OutboxDispatchJob drains committed effects to their sinks.
type OutboxDispatchJob struct {
	dispatcher Dispatcher
	log        *logger.Logger
}

// NewOutboxDispatchJob creates an OutboxDispatchJob.
func NewOutboxDispatchJob(d Dispatcher, log *logger.Logger) *OutboxDispatchJob {
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxDispatchJob{dispatcher: d, log: log.Named(NameOutboxDispatch)}
}

func (j *OutboxDispatchJob) Name() string { return NameOutboxDispatch }

func (j *OutboxDispatchJob) Description() string {
	return "Deliver pending notification and audit effects"
}

// Run drains the outbox batch by batch while full batches keep arriving.
// Failed entries stay pending for the next run.
func (j *OutboxDispatchJob) Run(ctx context.Context) error {
	for {
		report, err := j.dispatcher.RunOnce(ctx)
		if err != nil {
			return err
		}
		if report.Fetched > 0 {
			j.log.Info("outbox batch dispatched",
				logger.Int("fetched", report.Fetched),
				logger.Int("delivered", report.Delivered),
				logger.Int("failed", report.Failed),
				logger.Int("dead", report.Dead),
				logger.Int("blocked", report.Blocked),
			)
		}
		if report.Delivered == 0 || report.Delivered < report.Fetched {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYROLL
// ══════════════════════════════════════════════════════════════════════════════

// PayrollGenerator generates assistantship payments for a period.
type PayrollGenerator interface {
	GeneratePayroll(ctx context.Context, cmd command.GeneratePayrollCommand) (*command.PayrollResult, error)
}

// Flags reports whether a feature is on.
type Flags interface {
	Enabled(name string) bool
}

// SystemActor is the actor recorded on scheduled payroll runs.
const SystemActor = "system"

// PayrollJob generates the payments of the semi-monthly period that just
// ended.
type PayrollJob struct {
	payroll PayrollGenerator
	flags   Flags
	log     *logger.Logger
}

// NewPayrollJob creates a PayrollJob. A nil flags value runs unconditionally.
func NewPayrollJob(p PayrollGenerator, flags Flags, log *logger.Logger) *PayrollJob {
	if log == nil {
		log = logger.Nop()
	}
	return &PayrollJob{payroll: p, flags: flags, log: log.Named(NamePayroll)}
}

func (j *PayrollJob) Name() string { return NamePayroll }

func (j *PayrollJob) Description() string {
	return "Generate assistantship payments for the previous semi-monthly period"
}

func (j *PayrollJob) Run(ctx context.Context) error {
	if j.flags != nil && !j.flags.Enabled(config.FeaturePayrollAutoGenerate) {
		j.log.Debug("payroll auto generation disabled")
		return nil
	}

	result, err := j.payroll.GeneratePayroll(ctx, command.GeneratePayrollCommand{ActorID: SystemActor})
	if err != nil {
		return fmt.Errorf("payroll: %w", err)
	}

	j.log.Info("payroll generated",
		logger.String("period_start", result.PeriodStart.Format("2006-01-02")),
		logger.String("period_end", result.PeriodEnd.Format("2006-01-02")),
		logger.Int("generated", len(result.Generated)),
		logger.Int("skipped", len(result.Skipped)),
	)
	for id, reason := range result.Skipped {
		j.log.Debug("assignment skipped", logger.String("assignment_id", id), logger.String("reason", reason))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT VERIFY
// ══════════════════════════════════════════════════════════════════════════════

// ChainVerifier recomputes the audit hash chain.
type ChainVerifier interface {
	Verify(ctx context.Context) (service.ChainReport, error)
}

// AuditVerifyJob checks the audit chain and fails when a row was altered.
type AuditVerifyJob struct {
	verifier ChainVerifier
	log      *logger.Logger
}

// NewAuditVerifyJob creates an AuditVerifyJob.
func NewAuditVerifyJob(v ChainVerifier, log *logger.Logger) *AuditVerifyJob {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditVerifyJob{verifier: v, log: log.Named(NameAuditVerify)}
}

func (j *AuditVerifyJob) Name() string { return NameAuditVerify }

func (j *AuditVerifyJob) Description() string {
	return "Recompute the audit hash chain"
}

func (j *AuditVerifyJob) Run(ctx context.Context) error {
	report, err := j.verifier.Verify(ctx)
	if err != nil {
		return err
	}
	if !report.Intact() {
		j.log.Error("audit chain broken",
			logger.Int64("row_id", report.BrokenAt),
			logger.Int("checked", report.Checked),
		)
		return fmt.Errorf("audit chain broken at row %d", report.BrokenAt)
	}
	j.log.Info("audit chain intact", logger.Int("checked", report.Checked))
	return nil
}
