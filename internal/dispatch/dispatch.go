// Package dispatch abstracts sending a notification to a client over email
// or SMS. The scanners decide what to send and on which channel; this
// package owns recipient resolution, SMS credit accounting, and the
// transport calls.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkowalski/dunlin/internal/db"
	"github.com/mkowalski/dunlin/internal/metrics"
)

// smsSegmentSize is the GSM character budget of one SMS credit.
const smsSegmentSize = 160

var (
	// ErrNoRecipient means the client has no contact detail for the channel.
	ErrNoRecipient = errors.New("client has no recipient address for channel")

	// ErrInsufficientCredits mirrors the repository error so callers only
	// depend on this package.
	ErrInsufficientCredits = db.ErrInsufficientCredits
)

// EmailMessage is one outbound email. Attachment is optional and carries
// rendered PDF bytes for statements.
type EmailMessage struct {
	To             string
	Subject        string
	Body           string
	Attachment     []byte
	AttachmentName string
}

// EmailTransport delivers an assembled email. Failure modes are opaque
// provider errors surfaced as strings in the ledger.
type EmailTransport interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// SMSTransport delivers one SMS message.
type SMSTransport interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// CreditStore is the slice of the repository the dispatcher needs for SMS
// credit accounting.
type CreditStore interface {
	SMSCreditBalance(ctx context.Context, orgID uuid.UUID) (int, error)
	DebitSMSCredits(ctx context.Context, orgID uuid.UUID, credits int, reason string) error
}

// Dispatcher resolves recipients and routes messages to the transports.
type Dispatcher struct {
	email       EmailTransport
	sms         SMSTransport
	credits     CreditStore
	logger      *zap.Logger
	sendTimeout time.Duration
}

// Config holds dispatcher settings.
type Config struct {
	// SendTimeout bounds each individual transport call so one hung
	// provider cannot eat the run's deadline.
	SendTimeout time.Duration
}

// New creates a Dispatcher.
func New(email EmailTransport, sms SMSTransport, credits CreditStore, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &Dispatcher{
		email:       email,
		sms:         sms,
		credits:     credits,
		logger:      logger,
		sendTimeout: cfg.SendTimeout,
	}
}

// SendEmail delivers msg to the client's email address. Returns
// ErrNoRecipient when the client has no address on file.
func (d *Dispatcher) SendEmail(ctx context.Context, client *db.Client, msg EmailMessage) error {
	to := client.EmailAddress()
	if to == "" {
		return fmt.Errorf("%w: email", ErrNoRecipient)
	}
	msg.To = to

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.email.SendEmail(sendCtx, msg); err != nil {
		metrics.RecordSend(db.ChannelEmail, db.StatusFailed)
		return err
	}

	metrics.RecordSend(db.ChannelEmail, db.StatusSent)
	d.logger.Debug("email dispatched",
		zap.String("client_id", client.ID.String()),
		zap.String("to", to),
	)
	return nil
}

// SendSMS delivers message to the client's best phone number and returns the
// number of credits consumed. The credit check happens before the transport
// call so a failed send never deducts anything; the debit and its ledger row
// commit in one database transaction after a successful send.
func (d *Dispatcher) SendSMS(ctx context.Context, orgID uuid.UUID, client *db.Client, message string) (int, error) {
	phone := client.BestPhone()
	if phone == "" {
		return 0, fmt.Errorf("%w: sms", ErrNoRecipient)
	}

	required := CreditsFor(message)

	balance, err := d.credits.SMSCreditBalance(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("check credit balance: %w", err)
	}
	if balance < required {
		return 0, ErrInsufficientCredits
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.sms.SendSMS(sendCtx, phone, message); err != nil {
		metrics.RecordSend(db.ChannelSMS, db.StatusFailed)
		return 0, err
	}

	// The balance may have moved between the pre-check and here; the debit
	// re-checks under a row lock. A failure at this point leaves a sent SMS
	// with no deduction, which the caller surfaces as the item's error.
	if err := d.credits.DebitSMSCredits(ctx, orgID, required, "sms notification"); err != nil {
		return 0, fmt.Errorf("debit after send: %w", err)
	}

	metrics.RecordSend(db.ChannelSMS, db.StatusSent)
	metrics.RecordCreditsConsumed(required)
	d.logger.Debug("sms dispatched",
		zap.String("client_id", client.ID.String()),
		zap.String("organization_id", orgID.String()),
		zap.Int("credits", required),
	)
	return required, nil
}

// CreditsFor computes the credits a message costs: one per started
// 160-character segment, minimum one.
func CreditsFor(message string) int {
	n := len(message)
	if n == 0 {
		return 1
	}
	return (n + smsSegmentSize - 1) / smsSegmentSize
}
