package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkowalski/dunlin/internal/metrics"
)

// ErrRunInProgress is returned when another run holds the run lock.
var ErrRunInProgress = errors.New("a scheduler run is already in progress")

// RunLock serializes whole runs when the trigger fires twice concurrently.
// Optional; a nil lock means runs proceed unguarded (the per-item ledger
// checks still prevent duplicate sends).
type RunLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ReportPublisher receives the finished run report, e.g. for an ops
// analytics queue. Optional.
type ReportPublisher interface {
	Publish(ctx context.Context, report *RunReport) error
}

// RunReport is the aggregate result of one scheduler run. Its JSON shape is
// the trigger endpoint's response body.
type RunReport struct {
	Success           bool     `json:"success"`
	Duration          string   `json:"duration"`
	InvoiceReminders  Counts   `json:"invoiceReminders"`
	MonthlyStatements Counts   `json:"monthlyStatements"`
	Errors            []string `json:"errors,omitempty"`
	Timestamp         string   `json:"timestamp"`
}

// Runner executes the two scanners concurrently and aggregates their
// results. The scanners touch disjoint notification kinds, so the only
// shared state between them is the per-organization credit balance, which
// the repository serializes with a row lock.
type Runner struct {
	reminders  *ReminderScanner
	statements *StatementScanner
	lock       RunLock
	publisher  ReportPublisher
	timeout    time.Duration
	logger     *zap.Logger
}

// RunnerConfig holds runner settings.
type RunnerConfig struct {
	// Timeout bounds one full run; the triggering endpoint expects the
	// batch to finish well inside its own deadline.
	Timeout time.Duration
}

// NewRunner creates a Runner. lock and publisher may be nil.
func NewRunner(reminders *ReminderScanner, statements *StatementScanner, lock RunLock, publisher ReportPublisher, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if cfg.Timeout == 0 {
		cfg.Timeout = 55 * time.Second
	}
	return &Runner{
		reminders:  reminders,
		statements: statements,
		lock:       lock,
		publisher:  publisher,
		timeout:    cfg.Timeout,
		logger:     logger,
	}
}

// Run executes one full scheduler run and returns the report. Partial
// completion on timeout is safe: the ledger checks make the next invocation
// skip everything already attempted.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	if r.lock != nil {
		acquired, err := r.lock.Acquire(ctx)
		if err != nil {
			// A broken lock backend should not stop the daily batch.
			r.logger.Warn("run lock unavailable, proceeding unguarded", zap.Error(err))
		} else if !acquired {
			return nil, ErrRunInProgress
		} else {
			defer func() {
				if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
					r.logger.Warn("failed to release run lock", zap.Error(err))
				}
			}()
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	r.logger.Info("scheduler run starting")

	var (
		wg           sync.WaitGroup
		reminderCnt  Counts
		statementCnt Counts
		reminderErr  error
		statementErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		reminderCnt, reminderErr = r.reminders.Scan(runCtx)
	}()
	go func() {
		defer wg.Done()
		statementCnt, statementErr = r.statements.Scan(runCtx)
	}()
	wg.Wait()

	duration := time.Since(start)
	report := &RunReport{
		Success:           reminderErr == nil && statementErr == nil,
		Duration:          duration.Round(time.Millisecond).String(),
		InvoiceReminders:  reminderCnt,
		MonthlyStatements: statementCnt,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}
	if reminderErr != nil {
		report.Errors = append(report.Errors, "invoice reminders: "+reminderErr.Error())
	}
	if statementErr != nil {
		report.Errors = append(report.Errors, "monthly statements: "+statementErr.Error())
	}

	outcome := "success"
	if !report.Success {
		outcome = "failed"
	}
	metrics.RecordRun(outcome, duration)

	r.logger.Info("scheduler run finished",
		zap.Bool("success", report.Success),
		zap.Duration("duration", duration),
		zap.Int("reminders_sent", reminderCnt.Sent),
		zap.Int("reminders_failed", reminderCnt.Failed),
		zap.Int("statements_sent", statementCnt.Sent),
		zap.Int("statements_failed", statementCnt.Failed),
	)

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, report); err != nil {
			r.logger.Warn("failed to publish run report", zap.Error(err))
		}
	}

	return report, nil
}
