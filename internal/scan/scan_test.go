package scan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mkowalski/dunlin/internal/db"
	"github.com/mkowalski/dunlin/internal/dispatch"
	"github.com/mkowalski/dunlin/internal/policy"
)

// mockRepo is an in-memory Repository for scanner tests. Ledger entries
// recorded during a test feed the dedup checks, so dedup behavior is
// exercised end to end.
type mockRepo struct {
	reminderPolicies  []*policy.ReminderPolicy
	statementPolicies []*policy.ReminderPolicy
	invoices          map[uuid.UUID][]*db.Invoice // by organization
	clientInvoices    map[uuid.UUID][]*db.Invoice // by client
	clients           map[uuid.UUID]*db.Client
	organizations     map[uuid.UUID]*db.Organization
	policies          map[uuid.UUID]*policy.ReminderPolicy
	records           []*db.NotificationRecord

	listInvoicesErr error
	recordErr       error
	ledgerErr       error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		invoices:       make(map[uuid.UUID][]*db.Invoice),
		clientInvoices: make(map[uuid.UUID][]*db.Invoice),
		clients:        make(map[uuid.UUID]*db.Client),
		organizations:  make(map[uuid.UUID]*db.Organization),
		policies:       make(map[uuid.UUID]*policy.ReminderPolicy),
	}
}

func (m *mockRepo) ListReminderPolicies(ctx context.Context) ([]*policy.ReminderPolicy, error) {
	return m.reminderPolicies, nil
}

func (m *mockRepo) ListStatementPolicies(ctx context.Context, dayOfMonth int) ([]*policy.ReminderPolicy, error) {
	var out []*policy.ReminderPolicy
	for _, p := range m.statementPolicies {
		if p.StatementDayOfMonth == dayOfMonth {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepo) ListOpenInvoices(ctx context.Context, orgID uuid.UUID) ([]*db.Invoice, error) {
	if m.listInvoicesErr != nil {
		return nil, m.listInvoicesErr
	}
	var open []*db.Invoice
	for _, inv := range m.invoices[orgID] {
		if inv.Open() {
			open = append(open, inv)
		}
	}
	return open, nil
}

func (m *mockRepo) ListClientsWithInvoices(ctx context.Context, orgID uuid.UUID) ([]*db.Client, error) {
	var out []*db.Client
	for _, c := range m.clients {
		if c.OrganizationID == orgID && len(m.clientInvoices[c.ID]) > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepo) ListClientInvoices(ctx context.Context, clientID uuid.UUID, outstandingOnly bool) ([]*db.Invoice, error) {
	var out []*db.Invoice
	for _, inv := range m.clientInvoices[clientID] {
		if outstandingOnly && !inv.Open() {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (m *mockRepo) GetClient(ctx context.Context, id uuid.UUID) (*db.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return c, nil
}

func (m *mockRepo) GetOrganization(ctx context.Context, id uuid.UUID) (*db.Organization, error) {
	o, ok := m.organizations[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return o, nil
}

func (m *mockRepo) GetPolicy(ctx context.Context, orgID uuid.UUID) (*policy.ReminderPolicy, error) {
	p, ok := m.policies[orgID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) HasReminderBetween(ctx context.Context, invoiceID uuid.UUID, from, to time.Time) (bool, error) {
	if m.ledgerErr != nil {
		return false, m.ledgerErr
	}
	for _, rec := range m.records {
		if rec.Kind != db.KindInvoiceReminder || rec.InvoiceID == nil || *rec.InvoiceID != invoiceID {
			continue
		}
		if !rec.SentAt.Before(from) && rec.SentAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) HasStatementSince(ctx context.Context, clientID uuid.UUID, since time.Time) (bool, error) {
	if m.ledgerErr != nil {
		return false, m.ledgerErr
	}
	for _, rec := range m.records {
		if rec.Kind == db.KindMonthlyStatement && rec.ClientID == clientID && !rec.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) RecordNotification(ctx context.Context, rec *db.NotificationRecord) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.records = append(m.records, rec)
	return nil
}

// mockDispatcher records sends and can fail selectively per channel.
type mockDispatcher struct {
	emails     []dispatch.EmailMessage
	smsBodies  []string
	emailErr   error
	smsErr     error
	smsCredits int
}

func (m *mockDispatcher) SendEmail(ctx context.Context, client *db.Client, msg dispatch.EmailMessage) error {
	if m.emailErr != nil {
		return m.emailErr
	}
	m.emails = append(m.emails, msg)
	return nil
}

func (m *mockDispatcher) SendSMS(ctx context.Context, orgID uuid.UUID, client *db.Client, message string) (int, error) {
	if m.smsErr != nil {
		return 0, m.smsErr
	}
	m.smsBodies = append(m.smsBodies, message)
	if m.smsCredits == 0 {
		return 1, nil
	}
	return m.smsCredits, nil
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strp(s string) *string {
	return &s
}
