package scan

import (
	"context"

	"github.com/mkowalski/dunlin/internal/db"
	"github.com/mkowalski/dunlin/internal/policy"
)

// Manual bundles the unconditional single-item send paths of both scanners
// for the manual API endpoints.
type Manual struct {
	Reminders  *ReminderScanner
	Statements *StatementScanner
}

// SendManualReminder sends one invoice reminder, bypassing day matching.
func (m *Manual) SendManualReminder(ctx context.Context, inv *db.Invoice, method policy.Method) (Counts, error) {
	return m.Reminders.SendManual(ctx, inv, method)
}

// SendManualStatement sends one client statement unconditionally.
func (m *Manual) SendManualStatement(ctx context.Context, client *db.Client) error {
	return m.Statements.SendManual(ctx, client)
}
