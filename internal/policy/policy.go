// Package policy holds per-organization reminder and statement configuration.
// The scheduler treats it as read-only; the SaaS settings UI writes it.
package policy

import (
	"fmt"

	"github.com/google/uuid"
)

// Method is the configured delivery channel preference.
type Method string

const (
	MethodEmail Method = "email"
	MethodSMS   Method = "sms"
	MethodBoth  Method = "both"
)

// Valid reports whether m is a known delivery method.
func (m Method) Valid() bool {
	switch m {
	case MethodEmail, MethodSMS, MethodBoth:
		return true
	}
	return false
}

// ReminderPolicy is one organization's reminder/statement configuration.
type ReminderPolicy struct {
	OrganizationID uuid.UUID

	RemindersEnabled bool
	DaysBeforeDue    DaySet
	DaysAfterDue     DaySet
	ReminderMethod   Method

	SMSEscalationEnabled     bool
	SMSEscalationDaysOverdue int

	StatementsEnabled      bool
	StatementDayOfMonth    int // 1..28, so every month has a matching day
	StatementMethod        Method
	IncludeOnlyOutstanding bool
}

// Validate checks the invariants the settings UI is supposed to enforce.
// The scheduler calls it when loading a policy row so a corrupt row fails
// the organization, not the whole run.
func (p *ReminderPolicy) Validate() error {
	if !p.ReminderMethod.Valid() {
		return fmt.Errorf("invalid reminder method %q", p.ReminderMethod)
	}
	if !p.StatementMethod.Valid() {
		return fmt.Errorf("invalid statement method %q", p.StatementMethod)
	}
	if p.StatementDayOfMonth < 1 || p.StatementDayOfMonth > 28 {
		return fmt.Errorf("statement day of month %d out of range [1,28]", p.StatementDayOfMonth)
	}
	if p.SMSEscalationEnabled && p.SMSEscalationDaysOverdue < 0 {
		return fmt.Errorf("sms escalation threshold must be non-negative, got %d", p.SMSEscalationDaysOverdue)
	}
	return nil
}
