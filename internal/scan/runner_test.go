package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type mockLock struct {
	held       bool
	acquireErr error
	released   bool
}

func (m *mockLock) Acquire(ctx context.Context) (bool, error) {
	if m.acquireErr != nil {
		return false, m.acquireErr
	}
	if m.held {
		return false, nil
	}
	m.held = true
	return true, nil
}

func (m *mockLock) Release(ctx context.Context) error {
	m.held = false
	m.released = true
	return nil
}

type mockPublisher struct {
	reports []*RunReport
	err     error
}

func (m *mockPublisher) Publish(ctx context.Context, report *RunReport) error {
	if m.err != nil {
		return m.err
	}
	m.reports = append(m.reports, report)
	return nil
}

func newTestRunner(t *testing.T, lock RunLock, publisher ReportPublisher) (*Runner, *reminderFixture, *statementFixture) {
	t.Helper()

	rf := newReminderFixture(t)
	sf := newStatementFixture(t)

	runner := NewRunner(rf.scanner, sf.scanner, lock, publisher, RunnerConfig{Timeout: 5 * time.Second}, zap.NewNop())
	return runner, rf, sf
}

func TestRunner_AggregatesBothScanners(t *testing.T) {
	runner, rf, sf := newTestRunner(t, nil, nil)
	rf.addInvoice("INV-1", 3)
	sf.addClientInvoice("INV-9", "40.00", "0", 20, "overdue")

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !report.Success {
		t.Errorf("expected success, errors: %v", report.Errors)
	}
	if report.InvoiceReminders.Sent != 1 {
		t.Errorf("expected 1 reminder, got %+v", report.InvoiceReminders)
	}
	if report.MonthlyStatements.Sent != 1 {
		t.Errorf("expected 1 statement, got %+v", report.MonthlyStatements)
	}
	if report.Duration == "" || report.Timestamp == "" {
		t.Error("expected duration and timestamp populated")
	}
}

func TestRunner_LockHeld(t *testing.T) {
	lock := &mockLock{held: true}
	runner, _, _ := newTestRunner(t, lock, nil)

	if _, err := runner.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
}

func TestRunner_LockReleasedAfterRun(t *testing.T) {
	lock := &mockLock{}
	runner, _, _ := newTestRunner(t, lock, nil)

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !lock.released {
		t.Error("expected lock released after the run")
	}
}

func TestRunner_BrokenLockBackendDoesNotBlockRun(t *testing.T) {
	lock := &mockLock{acquireErr: errors.New("redis down")}
	runner, rf, _ := newTestRunner(t, lock, nil)
	rf.addInvoice("INV-1", 3)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("expected the run to proceed unguarded, got %v", err)
	}
	if report.InvoiceReminders.Sent != 1 {
		t.Errorf("expected the scan to run, got %+v", report.InvoiceReminders)
	}
}

func TestRunner_ScannerFailureReported(t *testing.T) {
	runner, rf, sf := newTestRunner(t, nil, nil)
	rf.repo.listInvoicesErr = nil // organization-level errors are skipped, not fatal
	sf.addClientInvoice("INV-9", "40.00", "0", 20, "overdue")

	// Break the reminder policy listing by wrapping the repo: simplest is an
	// invoice listing error, which the scanner absorbs per organization, so
	// the run still succeeds but with zero reminder counts.
	rf.repo.listInvoicesErr = errors.New("db down")
	rf.addInvoice("INV-1", 3)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !report.Success {
		t.Errorf("organization-level failures are absorbed, got errors: %v", report.Errors)
	}
	if report.InvoiceReminders.Sent != 0 {
		t.Errorf("expected no reminders, got %+v", report.InvoiceReminders)
	}
	if report.MonthlyStatements.Sent != 1 {
		t.Errorf("expected statements unaffected, got %+v", report.MonthlyStatements)
	}
}

func TestRunner_PublishesReport(t *testing.T) {
	publisher := &mockPublisher{}
	runner, _, _ := newTestRunner(t, nil, publisher)

	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(publisher.reports) != 1 {
		t.Fatalf("expected 1 published report, got %d", len(publisher.reports))
	}
}

func TestRunner_PublisherFailureIsNotFatal(t *testing.T) {
	publisher := &mockPublisher{err: errors.New("queue unreachable")}
	runner, _, _ := newTestRunner(t, nil, publisher)

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !report.Success {
		t.Error("publisher failure must not mark the run failed")
	}
}

func TestRunner_CancelledContextSurfacedInReport(t *testing.T) {
	runner, rf, _ := newTestRunner(t, nil, nil)
	rf.addInvoice("INV-1", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx)
	if err != nil {
		t.Fatalf("run itself must not fail on cancellation, got %v", err)
	}
	if report.Success {
		t.Error("expected the cancellation surfaced in the report")
	}
	if len(report.Errors) == 0 {
		t.Error("expected errors listed in the report")
	}
}

func TestRunner_DefaultTimeout(t *testing.T) {
	rf := newReminderFixture(t)
	sf := newStatementFixture(t)
	runner := NewRunner(rf.scanner, sf.scanner, nil, nil, RunnerConfig{}, zap.NewNop())
	if runner.timeout != 55*time.Second {
		t.Errorf("expected default timeout 55s, got %v", runner.timeout)
	}
}
