// Package scan implements the daily billing-notification batch: the invoice
// reminder scanner, the monthly statement scanner, and the runner that fans
// them out and aggregates the run report.
package scan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mkowalski/dunlin/internal/db"
	"github.com/mkowalski/dunlin/internal/dispatch"
	"github.com/mkowalski/dunlin/internal/policy"
)

// Repository is the data access the scanners need. *db.Repository satisfies
// it; tests substitute stubs.
type Repository interface {
	ListReminderPolicies(ctx context.Context) ([]*policy.ReminderPolicy, error)
	ListStatementPolicies(ctx context.Context, dayOfMonth int) ([]*policy.ReminderPolicy, error)
	ListOpenInvoices(ctx context.Context, orgID uuid.UUID) ([]*db.Invoice, error)
	ListClientsWithInvoices(ctx context.Context, orgID uuid.UUID) ([]*db.Client, error)
	ListClientInvoices(ctx context.Context, clientID uuid.UUID, outstandingOnly bool) ([]*db.Invoice, error)
	GetClient(ctx context.Context, id uuid.UUID) (*db.Client, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (*db.Organization, error)
	GetPolicy(ctx context.Context, orgID uuid.UUID) (*policy.ReminderPolicy, error)
	HasReminderBetween(ctx context.Context, invoiceID uuid.UUID, from, to time.Time) (bool, error)
	HasStatementSince(ctx context.Context, clientID uuid.UUID, since time.Time) (bool, error)
	RecordNotification(ctx context.Context, rec *db.NotificationRecord) error
}

// Dispatcher is the sending surface the scanners use.
type Dispatcher interface {
	SendEmail(ctx context.Context, client *db.Client, msg dispatch.EmailMessage) error
	SendSMS(ctx context.Context, orgID uuid.UUID, client *db.Client, message string) (int, error)
}

// Counts is one scanner's tally for a run. Processed counts items that
// matched a rule and reached dispatch; dedup-suppressed items count in
// neither bucket. Sent and Failed count per-channel attempts, so a "both"
// reminder can contribute two.
type Counts struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

func (c *Counts) add(other Counts) {
	c.Processed += other.Processed
	c.Sent += other.Sent
	c.Failed += other.Failed
}

// channelsFor expands a configured method into the concrete channels to
// attempt, in order.
func channelsFor(m policy.Method) []string {
	switch m {
	case policy.MethodEmail:
		return []string{db.ChannelEmail}
	case policy.MethodSMS:
		return []string{db.ChannelSMS}
	case policy.MethodBoth:
		return []string{db.ChannelEmail, db.ChannelSMS}
	default:
		return nil
	}
}

func strptr(s string) *string {
	return &s
}
