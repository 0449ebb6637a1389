package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/mkowalski/dunlin/internal/policy"
)

// ErrInsufficientCredits is returned when an SMS debit would drive an
// organization's balance negative. Nothing is deducted in that case.
var ErrInsufficientCredits = errors.New("insufficient sms credits")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository handles all database access for the scheduler: the policy
// store, invoice/client reads, the dedup ledger, and SMS credit movements.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new scheduler repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const policyColumns = `
	organization_id, reminders_enabled, days_before_due, days_after_due,
	reminder_method, sms_escalation_enabled, sms_escalation_days_overdue,
	statements_enabled, statement_day_of_month, statement_method,
	include_only_outstanding
`

func scanPolicy(row pgx.Row) (*policy.ReminderPolicy, error) {
	var p policy.ReminderPolicy
	var daysBefore, daysAfter, reminderMethod, statementMethod string

	err := row.Scan(
		&p.OrganizationID,
		&p.RemindersEnabled,
		&daysBefore,
		&daysAfter,
		&reminderMethod,
		&p.SMSEscalationEnabled,
		&p.SMSEscalationDaysOverdue,
		&p.StatementsEnabled,
		&p.StatementDayOfMonth,
		&statementMethod,
		&p.IncludeOnlyOutstanding,
	)
	if err != nil {
		return nil, err
	}

	// Day lists live in the database as comma-separated text; they become
	// typed sets exactly once, here.
	if p.DaysBeforeDue, err = policy.ParseDaySet(daysBefore); err != nil {
		return nil, fmt.Errorf("days_before_due: %w", err)
	}
	if p.DaysAfterDue, err = policy.ParseDaySet(daysAfter); err != nil {
		return nil, fmt.Errorf("days_after_due: %w", err)
	}
	p.ReminderMethod = policy.Method(reminderMethod)
	p.StatementMethod = policy.Method(statementMethod)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListReminderPolicies returns the policies of every organization with
// reminders enabled. A malformed row fails the whole query deliberately so
// the caller can decide how to degrade; per-row skipping happens above.
func (r *Repository) ListReminderPolicies(ctx context.Context) ([]*policy.ReminderPolicy, error) {
	query := `SELECT ` + policyColumns + `
		FROM reminder_policies
		WHERE reminders_enabled = TRUE
		ORDER BY organization_id`

	return r.listPolicies(ctx, query)
}

// ListStatementPolicies returns the policies of every organization whose
// statement day matches dayOfMonth and has statements enabled.
func (r *Repository) ListStatementPolicies(ctx context.Context, dayOfMonth int) ([]*policy.ReminderPolicy, error) {
	query := `SELECT ` + policyColumns + `
		FROM reminder_policies
		WHERE statements_enabled = TRUE AND statement_day_of_month = $1
		ORDER BY organization_id`

	return r.listPolicies(ctx, query, dayOfMonth)
}

func (r *Repository) listPolicies(ctx context.Context, query string, args ...any) ([]*policy.ReminderPolicy, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminder policies: %w", err)
	}
	defer rows.Close()

	var policies []*policy.ReminderPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			// One organization's bad configuration must not take down the
			// batch; log it and move on.
			r.logger.Error("skipping unreadable reminder policy", zap.Error(err))
			continue
		}
		policies = append(policies, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}

	return policies, nil
}

// GetPolicy fetches a single organization's policy.
func (r *Repository) GetPolicy(ctx context.Context, orgID uuid.UUID) (*policy.ReminderPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM reminder_policies WHERE organization_id = $1`

	p, err := scanPolicy(r.db.Pool().QueryRow(ctx, query, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("policy for organization %s: %w", orgID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query policy: %w", err)
	}
	return p, nil
}

const invoiceColumns = `
	id, organization_id, client_id, number, total_amount, paid_amount,
	due_date, status, created_at
`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID,
		&inv.OrganizationID,
		&inv.ClientID,
		&inv.Number,
		&inv.TotalAmount,
		&inv.PaidAmount,
		&inv.DueDate,
		&inv.Status,
		&inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListOpenInvoices returns an organization's invoices in the states the
// reminder scanner evaluates: sent, overdue, partially_paid.
func (r *Repository) ListOpenInvoices(ctx context.Context, orgID uuid.UUID) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE organization_id = $1 AND status = ANY($2)
		ORDER BY due_date ASC, id ASC`

	return r.listInvoices(ctx, query, orgID, []string{
		InvoiceStatusSent, InvoiceStatusOverdue, InvoiceStatusPartiallyPaid,
	})
}

// ListClientInvoices returns all of a client's invoices. If outstandingOnly
// is set, the result is filtered to the open statuses.
func (r *Repository) ListClientInvoices(ctx context.Context, clientID uuid.UUID, outstandingOnly bool) ([]*Invoice, error) {
	if outstandingOnly {
		query := `SELECT ` + invoiceColumns + `
			FROM invoices
			WHERE client_id = $1 AND status = ANY($2)
			ORDER BY due_date ASC, id ASC`
		return r.listInvoices(ctx, query, clientID, []string{
			InvoiceStatusSent, InvoiceStatusOverdue, InvoiceStatusPartiallyPaid,
		})
	}

	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE client_id = $1
		ORDER BY due_date ASC, id ASC`
	return r.listInvoices(ctx, query, clientID)
}

func (r *Repository) listInvoices(ctx context.Context, query string, args ...any) ([]*Invoice, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}

	return invoices, nil
}

// GetInvoice retrieves a single invoice by ID.
func (r *Repository) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	inv, err := scanInvoice(r.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query invoice: %w", err)
	}
	return inv, nil
}

// ListClientsWithInvoices returns the distinct clients of an organization
// that have at least one invoice, for the statement scan.
func (r *Repository) ListClientsWithInvoices(ctx context.Context, orgID uuid.UUID) ([]*Client, error) {
	query := `
		SELECT c.id, c.organization_id, c.company_name, c.contact_name,
		       c.email, c.phone, c.mobile, c.created_at
		FROM clients c
		WHERE c.organization_id = $1
		  AND EXISTS (SELECT 1 FROM invoices i WHERE i.client_id = c.id)
		ORDER BY c.id
	`

	rows, err := r.db.Pool().Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		var c Client
		err := rows.Scan(
			&c.ID,
			&c.OrganizationID,
			&c.CompanyName,
			&c.ContactName,
			&c.Email,
			&c.Phone,
			&c.Mobile,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}

	return clients, nil
}

// GetClient retrieves a single client by ID.
func (r *Repository) GetClient(ctx context.Context, id uuid.UUID) (*Client, error) {
	query := `
		SELECT id, organization_id, company_name, contact_name,
		       email, phone, mobile, created_at
		FROM clients
		WHERE id = $1
	`

	var c Client
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.OrganizationID,
		&c.CompanyName,
		&c.ContactName,
		&c.Email,
		&c.Phone,
		&c.Mobile,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query client: %w", err)
	}
	return &c, nil
}

// GetOrganization retrieves a single organization by ID.
func (r *Repository) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	query := `SELECT id, name, sms_credit_balance, created_at FROM organizations WHERE id = $1`

	var org Organization
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.SMSCreditBalance,
		&org.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query organization: %w", err)
	}
	return &org, nil
}

// HasReminderBetween reports whether any invoice_reminder ledger entry
// exists for the invoice with sent_at in [from, to). Any channel and any
// status counts: a failed attempt earlier today still suppresses a retry.
func (r *Repository) HasReminderBetween(ctx context.Context, invoiceID uuid.UUID, from, to time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notification_records
			WHERE invoice_id = $1 AND kind = $2 AND sent_at >= $3 AND sent_at < $4
		)
	`

	var exists bool
	err := r.db.Pool().QueryRow(ctx, query, invoiceID, KindInvoiceReminder, from, to).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query reminder ledger: %w", err)
	}
	return exists, nil
}

// HasStatementSince reports whether any monthly_statement ledger entry
// exists for the client with sent_at on/after since.
func (r *Repository) HasStatementSince(ctx context.Context, clientID uuid.UUID, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notification_records
			WHERE client_id = $1 AND kind = $2 AND sent_at >= $3
		)
	`

	var exists bool
	err := r.db.Pool().QueryRow(ctx, query, clientID, KindMonthlyStatement, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query statement ledger: %w", err)
	}
	return exists, nil
}

// RecordNotification appends one dedup ledger entry. Entries are immutable
// once written.
func (r *Repository) RecordNotification(ctx context.Context, rec *NotificationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO notification_records (
			id, organization_id, kind, client_id, invoice_id,
			channel, status, sent_at, days_offset, error_detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		rec.ID,
		rec.OrganizationID,
		rec.Kind,
		rec.ClientID,
		rec.InvoiceID,
		rec.Channel,
		rec.Status,
		rec.SentAt,
		rec.DaysOffset,
		rec.ErrorDetail,
	)
	if err != nil {
		r.logger.Error("failed to record notification",
			zap.Error(err),
			zap.String("kind", rec.Kind),
			zap.String("client_id", rec.ClientID.String()),
		)
		return fmt.Errorf("insert notification record: %w", err)
	}

	return nil
}

// ListNotifications returns an organization's ledger entries, newest first.
func (r *Repository) ListNotifications(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*NotificationRecord, error) {
	query := `
		SELECT id, organization_id, kind, client_id, invoice_id,
		       channel, status, sent_at, days_offset, error_detail
		FROM notification_records
		WHERE organization_id = $1
		ORDER BY sent_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notification records: %w", err)
	}
	defer rows.Close()

	var records []*NotificationRecord
	for rows.Next() {
		var rec NotificationRecord
		err := rows.Scan(
			&rec.ID,
			&rec.OrganizationID,
			&rec.Kind,
			&rec.ClientID,
			&rec.InvoiceID,
			&rec.Channel,
			&rec.Status,
			&rec.SentAt,
			&rec.DaysOffset,
			&rec.ErrorDetail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification records: %w", err)
	}

	return records, nil
}

// SMSCreditBalance returns the organization's current credit balance.
func (r *Repository) SMSCreditBalance(ctx context.Context, orgID uuid.UUID) (int, error) {
	var balance int
	err := r.db.Pool().QueryRow(ctx,
		`SELECT sms_credit_balance FROM organizations WHERE id = $1`, orgID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("query credit balance: %w", err)
	}
	return balance, nil
}

// DebitSMSCredits atomically deducts credits from an organization's balance
// and records a credit-ledger transaction, in one database transaction. The
// balance row is locked first so concurrent sends for the same organization
// serialize here. Returns ErrInsufficientCredits without deducting anything
// if the balance cannot cover the debit.
func (r *Repository) DebitSMSCredits(ctx context.Context, orgID uuid.UUID, credits int, reason string) error {
	if credits <= 0 {
		return fmt.Errorf("credit debit must be positive, got %d", credits)
	}

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var balance int
	err = tx.QueryRow(ctx,
		`SELECT sms_credit_balance FROM organizations WHERE id = $1 FOR UPDATE`, orgID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock credit balance: %w", err)
	}

	if balance < credits {
		return ErrInsufficientCredits
	}

	_, err = tx.Exec(ctx,
		`UPDATE organizations SET sms_credit_balance = sms_credit_balance - $1 WHERE id = $2`,
		credits, orgID,
	)
	if err != nil {
		return fmt.Errorf("update credit balance: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO sms_credit_transactions (id, organization_id, amount, reason)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), orgID, -credits, reason,
	)
	if err != nil {
		return fmt.Errorf("insert credit transaction: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Debug("sms credits debited",
		zap.String("organization_id", orgID.String()),
		zap.Int("credits", credits),
		zap.Int("balance_before", balance),
	)

	return nil
}
