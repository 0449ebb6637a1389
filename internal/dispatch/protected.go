package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/mkowalski/dunlin/internal/circuitbreaker"
	"github.com/mkowalski/dunlin/internal/metrics"
)

// ProtectedEmailTransport wraps an EmailTransport with a circuit breaker.
type ProtectedEmailTransport struct {
	inner   EmailTransport
	breaker *circuitbreaker.Breaker
}

func NewProtectedEmailTransport(inner EmailTransport, cfg circuitbreaker.Config, logger *zap.Logger) *ProtectedEmailTransport {
	return &ProtectedEmailTransport{
		inner:   inner,
		breaker: circuitbreaker.New(cfg, logger),
	}
}

func (t *ProtectedEmailTransport) SendEmail(ctx context.Context, msg EmailMessage) error {
	if !t.breaker.Allow() {
		metrics.RecordBreakerRejection("email")
		return circuitbreaker.ErrOpen
	}

	err := t.inner.SendEmail(ctx, msg)
	if err != nil {
		t.breaker.RecordFailure()
		return err
	}

	t.breaker.RecordSuccess()
	return nil
}

// ProtectedSMSTransport wraps an SMSTransport with a circuit breaker.
type ProtectedSMSTransport struct {
	inner   SMSTransport
	breaker *circuitbreaker.Breaker
}

func NewProtectedSMSTransport(inner SMSTransport, cfg circuitbreaker.Config, logger *zap.Logger) *ProtectedSMSTransport {
	return &ProtectedSMSTransport{
		inner:   inner,
		breaker: circuitbreaker.New(cfg, logger),
	}
}

func (t *ProtectedSMSTransport) SendSMS(ctx context.Context, phone, message string) error {
	if !t.breaker.Allow() {
		metrics.RecordBreakerRejection("sms")
		return circuitbreaker.ErrOpen
	}

	err := t.inner.SendSMS(ctx, phone, message)
	if err != nil {
		t.breaker.RecordFailure()
		return err
	}

	t.breaker.RecordSuccess()
	return nil
}
