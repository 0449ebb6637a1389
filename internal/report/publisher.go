// Package report publishes finished run reports to an SQS queue so the ops
// pipeline can alert on failed runs and chart send volumes. Publishing is
// best-effort; the run never fails because of it.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/mkowalski/dunlin/internal/scan"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// message is the queue payload wrapping the run report.
type message struct {
	Source      string          `json:"source"`
	Report      *scan.RunReport `json:"report"`
	PublishedAt int64           `json:"published_at"`
}

// Publisher sends run reports to SQS.
type Publisher struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewPublisher creates a new SQS run-report publisher.
func NewPublisher(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("run report publisher initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Publisher{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// Publish sends one run report to the queue.
func (p *Publisher) Publish(ctx context.Context, rep *scan.RunReport) error {
	body, err := json.Marshal(message{
		Source:      "dunlin-scheduler",
		Report:      rep,
		PublishedAt: time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	result, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send failed: %w", err)
	}

	p.logger.Debug("run report published",
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
