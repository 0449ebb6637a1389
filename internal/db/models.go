package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice status constants. The scheduler only ever reads invoices; status
// transitions belong to the invoicing side of the platform.
const (
	InvoiceStatusDraft         = "draft"
	InvoiceStatusSent          = "sent"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusPartiallyPaid = "partially_paid"
	InvoiceStatusOverdue       = "overdue"
	InvoiceStatusCancelled     = "cancelled"
)

// Notification kind constants.
const (
	KindInvoiceReminder  = "invoice_reminder"
	KindMonthlyStatement = "monthly_statement"
)

// Channel constants.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification status constants.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Organization is the slice of the organizations table the scheduler reads.
type Organization struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	SMSCreditBalance int       `json:"sms_credit_balance"`
	CreatedAt        time.Time `json:"created_at"`
}

// Client is a billable customer of an organization.
type Client struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	CompanyName    *string   `json:"company_name,omitempty"`
	ContactName    *string   `json:"contact_name,omitempty"`
	Email          *string   `json:"email,omitempty"`
	Phone          *string   `json:"phone,omitempty"`
	Mobile         *string   `json:"mobile,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DisplayName prefers the company name, falling back to the contact person.
func (c *Client) DisplayName() string {
	if c.CompanyName != nil && *c.CompanyName != "" {
		return *c.CompanyName
	}
	if c.ContactName != nil && *c.ContactName != "" {
		return *c.ContactName
	}
	return "Client"
}

// BestPhone returns the mobile number if present, else the landline.
// Empty string means the client is unreachable by SMS.
func (c *Client) BestPhone() string {
	if c.Mobile != nil && *c.Mobile != "" {
		return *c.Mobile
	}
	if c.Phone != nil && *c.Phone != "" {
		return *c.Phone
	}
	return ""
}

// EmailAddress returns the client's email or "" when absent.
func (c *Client) EmailAddress() string {
	if c.Email != nil {
		return *c.Email
	}
	return ""
}

// Invoice is the slice of an invoice the scheduler needs.
type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	ClientID       uuid.UUID       `json:"client_id"`
	Number         string          `json:"number"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	DueDate        time.Time       `json:"due_date"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Outstanding is total minus paid. The invoicing side keeps this non-negative
// for active invoices; the scheduler assumes that but does not enforce it.
func (i *Invoice) Outstanding() decimal.Decimal {
	return i.TotalAmount.Sub(i.PaidAmount)
}

// Open reports whether the invoice is in a state reminders care about.
func (i *Invoice) Open() bool {
	switch i.Status {
	case InvoiceStatusSent, InvoiceStatusOverdue, InvoiceStatusPartiallyPaid:
		return true
	}
	return false
}

// NotificationRecord is one append-only dedup ledger entry. Created once per
// send attempt, success or failure, and never mutated afterwards.
type NotificationRecord struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Kind           string     `json:"kind"`
	ClientID       uuid.UUID  `json:"client_id"`
	InvoiceID      *uuid.UUID `json:"invoice_id,omitempty"` // nil for statements
	Channel        string     `json:"channel"`
	Status         string     `json:"status"`
	SentAt         time.Time  `json:"sent_at"`
	DaysOffset     int        `json:"days_offset"` // positive = before due, negative = overdue
	ErrorDetail    *string    `json:"error_detail,omitempty"`
}

// CreditTransaction records one SMS credit balance movement.
type CreditTransaction struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Amount         int       `json:"amount"` // negative for sends
	Reason         string    `json:"reason"`
	CreatedAt      time.Time `json:"created_at"`
}
