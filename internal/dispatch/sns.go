package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// SNSTransport delivers SMS via AWS SNS.
type SNSTransport struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

// NewSNSTransport creates an SNS-backed SMS transport.
func NewSNSTransport(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSTransport, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSTransport{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// SendSMS publishes one SMS via SNS.
func (t *SNSTransport) SendSMS(ctx context.Context, phone, message string) error {
	if phone == "" {
		return fmt.Errorf("sms missing phone number")
	}
	if message == "" {
		return fmt.Errorf("sms missing message")
	}

	result, err := t.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	t.logger.Info("SMS sent via SNS",
		zap.String("phone_number", phone),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
