package scan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mkowalski/dunlin/internal/clock"
	"github.com/mkowalski/dunlin/internal/db"
	"github.com/mkowalski/dunlin/internal/dispatch"
	"github.com/mkowalski/dunlin/internal/metrics"
	"github.com/mkowalski/dunlin/internal/policy"
)

// ReminderScanner evaluates every open invoice of every reminder-enabled
// organization against the organization's day-offset policy and dispatches
// the reminders that fire today.
type ReminderScanner struct {
	repo       Repository
	dispatcher Dispatcher
	clock      clock.Clock
	loc        *time.Location
	logger     *zap.Logger
}

// NewReminderScanner creates a ReminderScanner.
func NewReminderScanner(repo Repository, dispatcher Dispatcher, clk clock.Clock, loc *time.Location, logger *zap.Logger) *ReminderScanner {
	return &ReminderScanner{
		repo:       repo,
		dispatcher: dispatcher,
		clock:      clk,
		loc:        loc,
		logger:     logger,
	}
}

// Scan runs one pass over all reminder-enabled organizations. Organization
// failures are logged and skipped; item failures are recorded in the ledger
// and tallied. Scan itself only fails when the policy list cannot be read.
func (s *ReminderScanner) Scan(ctx context.Context) (Counts, error) {
	var counts Counts

	policies, err := s.repo.ListReminderPolicies(ctx)
	if err != nil {
		return counts, fmt.Errorf("list reminder policies: %w", err)
	}

	for _, pol := range policies {
		select {
		case <-ctx.Done():
			return counts, ctx.Err()
		default:
		}

		orgCounts, err := s.scanOrganization(ctx, pol)
		if err != nil {
			// Skip the organization; its items count in neither bucket.
			s.logger.Error("reminder scan failed for organization",
				zap.Error(err),
				zap.String("organization_id", pol.OrganizationID.String()),
			)
			continue
		}
		counts.add(orgCounts)
	}

	return counts, nil
}

func (s *ReminderScanner) scanOrganization(ctx context.Context, pol *policy.ReminderPolicy) (Counts, error) {
	var counts Counts

	invoices, err := s.repo.ListOpenInvoices(ctx, pol.OrganizationID)
	if err != nil {
		return counts, fmt.Errorf("list open invoices: %w", err)
	}

	now := s.clock.Now()
	dayStart := clock.Midnight(now, s.loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	// Clients repeat across invoices; fetch each once.
	clients := make(map[string]*db.Client)

	// Invoices are processed sequentially: each send decision depends on
	// the ledger check just above it, and racing past that check is exactly
	// the duplicate we are here to prevent.
	for _, inv := range invoices {
		daysUntilDue := clock.DaysBetween(now, inv.DueDate, s.loc)

		offset, match := matchOffset(pol, daysUntilDue)
		if !match {
			continue
		}

		sent, err := s.repo.HasReminderBetween(ctx, inv.ID, dayStart, dayEnd)
		if err != nil {
			s.logger.Error("reminder ledger check failed",
				zap.Error(err),
				zap.String("invoice_id", inv.ID.String()),
			)
			counts.Processed++
			counts.Failed++
			continue
		}
		if sent {
			// Already attempted today (any channel, any status).
			metrics.RecordReminder("deduped")
			continue
		}

		client, ok := clients[inv.ClientID.String()]
		if !ok {
			client, err = s.repo.GetClient(ctx, inv.ClientID)
			if err != nil {
				s.logger.Error("client lookup failed",
					zap.Error(err),
					zap.String("invoice_id", inv.ID.String()),
				)
				counts.Processed++
				counts.Failed++
				continue
			}
			clients[inv.ClientID.String()] = client
		}

		counts.Processed++
		attempt := s.send(ctx, pol, inv, client, offset, escalatedMethod(pol, offset))
		counts.Sent += attempt.Sent
		counts.Failed += attempt.Failed
	}

	return counts, nil
}

// matchOffset classifies an invoice against the policy's day lists. The
// before and after branches are mutually exclusive by the sign of
// daysUntilDue; an invoice due exactly today matches neither list.
func matchOffset(pol *policy.ReminderPolicy, daysUntilDue int) (offset int, match bool) {
	switch {
	case daysUntilDue > 0 && pol.DaysBeforeDue.Contains(daysUntilDue):
		return daysUntilDue, true
	case daysUntilDue < 0 && pol.DaysAfterDue.Contains(-daysUntilDue):
		return daysUntilDue, true
	}
	return 0, false
}

// escalatedMethod applies SMS escalation: once an overdue invoice crosses
// the configured threshold, the channel is forced to SMS regardless of the
// organization's preference.
func escalatedMethod(pol *policy.ReminderPolicy, offset int) policy.Method {
	if offset < 0 && pol.SMSEscalationEnabled && -offset >= pol.SMSEscalationDaysOverdue {
		return policy.MethodSMS
	}
	return pol.ReminderMethod
}

// send attempts every channel the method implies, recording one ledger entry
// per attempt. A failure on one channel never suppresses the other.
func (s *ReminderScanner) send(ctx context.Context, pol *policy.ReminderPolicy, inv *db.Invoice, client *db.Client, offset int, method policy.Method) Counts {
	var counts Counts

	for _, channel := range channelsFor(method) {
		var err error
		switch channel {
		case db.ChannelEmail:
			err = s.dispatcher.SendEmail(ctx, client, reminderEmail(inv, client, offset))
		case db.ChannelSMS:
			_, err = s.dispatcher.SendSMS(ctx, pol.OrganizationID, client, reminderSMS(inv, offset))
		}

		rec := &db.NotificationRecord{
			OrganizationID: pol.OrganizationID,
			Kind:           db.KindInvoiceReminder,
			ClientID:       client.ID,
			InvoiceID:      &inv.ID,
			Channel:        channel,
			Status:         db.StatusSent,
			SentAt:         s.clock.Now(),
			DaysOffset:     offset,
		}
		if err != nil {
			rec.Status = db.StatusFailed
			rec.ErrorDetail = strptr(err.Error())
			counts.Failed++
			metrics.RecordReminder("failed")
			s.logger.Warn("reminder send failed",
				zap.Error(err),
				zap.String("invoice_id", inv.ID.String()),
				zap.String("channel", channel),
				zap.Int("days_offset", offset),
			)
		} else {
			counts.Sent++
			metrics.RecordReminder("sent")
			s.logger.Info("reminder sent",
				zap.String("invoice_id", inv.ID.String()),
				zap.String("channel", channel),
				zap.Int("days_offset", offset),
			)
		}

		if recErr := s.repo.RecordNotification(ctx, rec); recErr != nil {
			s.logger.Error("failed to append reminder to ledger",
				zap.Error(recErr),
				zap.String("invoice_id", inv.ID.String()),
			)
		}
	}

	return counts
}

// SendManual sends a reminder for one invoice unconditionally, bypassing
// day-offset matching and the dedup check but still appending to the ledger.
// The manual endpoints use it.
func (s *ReminderScanner) SendManual(ctx context.Context, inv *db.Invoice, method policy.Method) (Counts, error) {
	client, err := s.repo.GetClient(ctx, inv.ClientID)
	if err != nil {
		return Counts{}, fmt.Errorf("client lookup: %w", err)
	}

	offset := clock.DaysBetween(s.clock.Now(), inv.DueDate, s.loc)
	pol := &policy.ReminderPolicy{OrganizationID: inv.OrganizationID}

	counts := s.send(ctx, pol, inv, client, offset, method)
	counts.Processed = 1
	if counts.Sent == 0 {
		return counts, fmt.Errorf("reminder delivery failed on all channels")
	}
	return counts, nil
}

func reminderEmail(inv *db.Invoice, client *db.Client, offset int) dispatch.EmailMessage {
	outstanding := inv.Outstanding().StringFixed(2)
	due := inv.DueDate.Format("2 January 2006")

	if offset < 0 {
		return dispatch.EmailMessage{
			Subject: fmt.Sprintf("Overdue invoice %s", inv.Number),
			Body: fmt.Sprintf(
				"Hi %s,\n\nInvoice %s for %s was due on %s and is now %d days overdue.\nPlease arrange payment at your earliest convenience.\n",
				client.DisplayName(), inv.Number, outstanding, due, -offset),
		}
	}
	return dispatch.EmailMessage{
		Subject: fmt.Sprintf("Payment reminder: invoice %s", inv.Number),
		Body: fmt.Sprintf(
			"Hi %s,\n\nThis is a friendly reminder that invoice %s for %s is due on %s (%d days from now).\n",
			client.DisplayName(), inv.Number, outstanding, due, offset),
	}
}

func reminderSMS(inv *db.Invoice, offset int) string {
	outstanding := inv.Outstanding().StringFixed(2)
	if offset < 0 {
		return fmt.Sprintf("Invoice %s for %s is %d days overdue. Please arrange payment.", inv.Number, outstanding, -offset)
	}
	return fmt.Sprintf("Reminder: invoice %s for %s is due on %s.", inv.Number, outstanding, inv.DueDate.Format("2 Jan"))
}
