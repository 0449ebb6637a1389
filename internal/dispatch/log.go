package dispatch

import (
	"context"

	"go.uber.org/zap"
)

// LogEmailTransport logs emails instead of sending them (development mode).
type LogEmailTransport struct {
	logger *zap.Logger
}

func NewLogEmailTransport(logger *zap.Logger) *LogEmailTransport {
	return &LogEmailTransport{logger: logger}
}

func (t *LogEmailTransport) SendEmail(ctx context.Context, msg EmailMessage) error {
	t.logger.Info("logging email (development mode)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachment_bytes", len(msg.Attachment)),
	)
	return nil
}

// LogSMSTransport logs SMS messages instead of sending them.
type LogSMSTransport struct {
	logger *zap.Logger
}

func NewLogSMSTransport(logger *zap.Logger) *LogSMSTransport {
	return &LogSMSTransport{logger: logger}
}

func (t *LogSMSTransport) SendSMS(ctx context.Context, phone, message string) error {
	t.logger.Info("logging sms (development mode)",
		zap.String("phone_number", phone),
		zap.Int("length", len(message)),
	)
	return nil
}
