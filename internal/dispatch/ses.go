package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// SESTransport delivers email via AWS SES. Plain messages go through
// SendEmail; messages with an attachment are assembled as raw MIME and go
// through SendRawEmail.
type SESTransport struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
}

func NewSESTransport(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESTransport, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &SESTransport{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

// SendEmail delivers one email via SES.
func (t *SESTransport) SendEmail(ctx context.Context, msg EmailMessage) error {
	if msg.To == "" {
		return fmt.Errorf("email message missing recipient")
	}
	if msg.Subject == "" {
		return fmt.Errorf("email message missing subject")
	}

	if len(msg.Attachment) > 0 {
		return t.sendRaw(ctx, msg)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(t.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(msg.Body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	t.logger.Info("email sent via SES",
		zap.String("to", msg.To),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

func (t *SESTransport) sendRaw(ctx context.Context, msg EmailMessage) error {
	raw, err := buildMIME(t.from, msg)
	if err != nil {
		return fmt.Errorf("assemble mime message: %w", err)
	}

	result, err := t.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(t.from),
		Destinations: []string{msg.To},
		RawMessage:   &types.RawMessage{Data: raw},
	})
	if err != nil {
		return fmt.Errorf("ses raw send failed: %w", err)
	}

	t.logger.Info("email with attachment sent via SES",
		zap.String("to", msg.To),
		zap.String("attachment", msg.AttachmentName),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}

// buildMIME assembles a multipart/mixed message with a text part and one
// base64-encoded attachment.
func buildMIME(from string, msg EmailMessage) ([]byte, error) {
	boundary := fmt.Sprintf("dunlin-%d", time.Now().UnixNano())
	name := msg.AttachmentName
	if name == "" {
		name = "statement.pdf"
	}

	var buf bytes.Buffer
	w := func(format string, args ...any) {
		fmt.Fprintf(&buf, format, args...)
	}

	w("From: %s\r\n", from)
	w("To: %s\r\n", msg.To)
	w("Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	w("MIME-Version: 1.0\r\n")
	w("Content-Type: multipart/mixed; boundary=%q\r\n", boundary)
	w("\r\n")

	w("--%s\r\n", boundary)
	w("Content-Type: text/plain; charset=UTF-8\r\n")
	w("Content-Transfer-Encoding: 7bit\r\n")
	w("\r\n%s\r\n", msg.Body)

	w("--%s\r\n", boundary)
	w("Content-Type: application/pdf; name=%q\r\n", name)
	w("Content-Disposition: attachment; filename=%q\r\n", name)
	w("Content-Transfer-Encoding: base64\r\n")
	w("\r\n")

	encoded := base64.StdEncoding.EncodeToString(msg.Attachment)
	for len(encoded) > 76 {
		w("%s\r\n", encoded[:76])
		encoded = encoded[76:]
	}
	w("%s\r\n", encoded)

	w("--%s--\r\n", boundary)

	return buf.Bytes(), nil
}
