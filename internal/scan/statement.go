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
	"github.com/mkowalski/dunlin/internal/statement"
)

// StatementScanner sends monthly account statements to every client of
// every organization whose statement day is today. Statements always go by
// email with the rendered PDF attached; they are never SMS-escalated.
type StatementScanner struct {
	repo       Repository
	dispatcher Dispatcher
	clock      clock.Clock
	loc        *time.Location
	logger     *zap.Logger
}

// NewStatementScanner creates a StatementScanner.
func NewStatementScanner(repo Repository, dispatcher Dispatcher, clk clock.Clock, loc *time.Location, logger *zap.Logger) *StatementScanner {
	return &StatementScanner{
		repo:       repo,
		dispatcher: dispatcher,
		clock:      clk,
		loc:        loc,
		logger:     logger,
	}
}

// Scan runs one statement pass. Only organizations whose configured
// statement day matches today's day-of-month are considered; the day is
// restricted to 1..28 so no short-month clamping is needed.
func (s *StatementScanner) Scan(ctx context.Context) (Counts, error) {
	var counts Counts

	today := s.clock.Now().In(s.loc)
	policies, err := s.repo.ListStatementPolicies(ctx, today.Day())
	if err != nil {
		return counts, fmt.Errorf("list statement policies: %w", err)
	}

	for _, pol := range policies {
		select {
		case <-ctx.Done():
			return counts, ctx.Err()
		default:
		}

		orgCounts, err := s.scanOrganization(ctx, pol)
		if err != nil {
			s.logger.Error("statement scan failed for organization",
				zap.Error(err),
				zap.String("organization_id", pol.OrganizationID.String()),
			)
			continue
		}
		counts.add(orgCounts)
	}

	return counts, nil
}

func (s *StatementScanner) scanOrganization(ctx context.Context, pol *policy.ReminderPolicy) (Counts, error) {
	var counts Counts

	org, err := s.repo.GetOrganization(ctx, pol.OrganizationID)
	if err != nil {
		return counts, fmt.Errorf("organization lookup: %w", err)
	}

	clients, err := s.repo.ListClientsWithInvoices(ctx, pol.OrganizationID)
	if err != nil {
		return counts, fmt.Errorf("list clients: %w", err)
	}

	monthStart := clock.MonthStart(s.clock.Now(), s.loc)

	// Clients are handled sequentially for the same reason invoices are in
	// the reminder scan: the per-client ledger check must be reliable.
	for _, client := range clients {
		invoices, err := s.repo.ListClientInvoices(ctx, client.ID, pol.IncludeOnlyOutstanding)
		if err != nil {
			s.logger.Error("invoice lookup failed for client",
				zap.Error(err),
				zap.String("client_id", client.ID.String()),
			)
			counts.Processed++
			counts.Failed++
			continue
		}
		if len(invoices) == 0 {
			continue
		}

		already, err := s.repo.HasStatementSince(ctx, client.ID, monthStart)
		if err != nil {
			s.logger.Error("statement ledger check failed",
				zap.Error(err),
				zap.String("client_id", client.ID.String()),
			)
			counts.Processed++
			counts.Failed++
			continue
		}
		if already {
			// At most one statement per client per calendar month.
			metrics.RecordStatement("deduped")
			continue
		}

		counts.Processed++
		if err := s.sendStatement(ctx, org, client, invoices); err != nil {
			counts.Failed++
		} else {
			counts.Sent++
		}
	}

	return counts, nil
}

// sendStatement builds, renders, and emails one statement, then appends the
// ledger entry regardless of outcome.
func (s *StatementScanner) sendStatement(ctx context.Context, org *db.Organization, client *db.Client, invoices []*db.Invoice) error {
	st := statement.Build(org.Name, client, invoices, s.clock.Now(), s.loc)

	var sendErr error
	pdf, sendErr := statement.RenderPDF(st)
	if sendErr == nil {
		sendErr = s.dispatcher.SendEmail(ctx, client, dispatch.EmailMessage{
			Subject:        st.EmailSubject(),
			Body:           st.EmailBody(),
			Attachment:     pdf,
			AttachmentName: st.AttachmentName(),
		})
	}

	rec := &db.NotificationRecord{
		OrganizationID: org.ID,
		Kind:           db.KindMonthlyStatement,
		ClientID:       client.ID,
		Channel:        db.ChannelEmail,
		Status:         db.StatusSent,
		SentAt:         s.clock.Now(),
	}
	if sendErr != nil {
		rec.Status = db.StatusFailed
		rec.ErrorDetail = strptr(sendErr.Error())
		metrics.RecordStatement("failed")
		s.logger.Warn("statement send failed",
			zap.Error(sendErr),
			zap.String("client_id", client.ID.String()),
			zap.String("organization_id", org.ID.String()),
		)
	} else {
		metrics.RecordStatement("sent")
		s.logger.Info("statement sent",
			zap.String("client_id", client.ID.String()),
			zap.String("organization_id", org.ID.String()),
			zap.String("total_outstanding", st.TotalOutstanding.StringFixed(2)),
		)
	}

	if recErr := s.repo.RecordNotification(ctx, rec); recErr != nil {
		s.logger.Error("failed to append statement to ledger",
			zap.Error(recErr),
			zap.String("client_id", client.ID.String()),
		)
	}

	return sendErr
}

// SendManual recomputes and sends one client's statement unconditionally,
// using the organization's configured outstanding filter. The manual
// endpoint uses it.
func (s *StatementScanner) SendManual(ctx context.Context, client *db.Client) error {
	org, err := s.repo.GetOrganization(ctx, client.OrganizationID)
	if err != nil {
		return fmt.Errorf("organization lookup: %w", err)
	}

	// Honor the organization's outstanding-only preference; default to
	// outstanding-only when no policy row exists yet.
	outstandingOnly := true
	if pol, err := s.repo.GetPolicy(ctx, client.OrganizationID); err == nil {
		outstandingOnly = pol.IncludeOnlyOutstanding
	}

	invoices, err := s.repo.ListClientInvoices(ctx, client.ID, outstandingOnly)
	if err != nil {
		return fmt.Errorf("invoice lookup: %w", err)
	}
	if len(invoices) == 0 {
		return fmt.Errorf("client has no invoices to include in a statement")
	}

	return s.sendStatement(ctx, org, client, invoices)
}
