package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkowalski/dunlin/internal/db"
)

type mockEmailTransport struct {
	sent []EmailMessage
	err  error
}

func (m *mockEmailTransport) SendEmail(ctx context.Context, msg EmailMessage) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockSMSTransport struct {
	sent []string
	err  error
}

func (m *mockSMSTransport) SendSMS(ctx context.Context, phone, message string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, phone)
	return nil
}

type mockCreditStore struct {
	balance    int
	debited    int
	balanceErr error
	debitErr   error
}

func (m *mockCreditStore) SMSCreditBalance(ctx context.Context, orgID uuid.UUID) (int, error) {
	return m.balance, m.balanceErr
}

func (m *mockCreditStore) DebitSMSCredits(ctx context.Context, orgID uuid.UUID, credits int, reason string) error {
	if m.debitErr != nil {
		return m.debitErr
	}
	m.balance -= credits
	m.debited += credits
	return nil
}

func testClient(email, mobile, phone string) *db.Client {
	c := &db.Client{ID: uuid.New(), OrganizationID: uuid.New()}
	if email != "" {
		c.Email = &email
	}
	if mobile != "" {
		c.Mobile = &mobile
	}
	if phone != "" {
		c.Phone = &phone
	}
	return c
}

func newTestDispatcher(email *mockEmailTransport, sms *mockSMSTransport, credits *mockCreditStore) *Dispatcher {
	return New(email, sms, credits, Config{}, zap.NewNop())
}

func TestSendEmail(t *testing.T) {
	email := &mockEmailTransport{}
	d := newTestDispatcher(email, &mockSMSTransport{}, &mockCreditStore{})

	client := testClient("billing@acme.example", "", "")
	err := d.SendEmail(context.Background(), client, EmailMessage{Subject: "Reminder", Body: "pay up"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(email.sent))
	}
	if email.sent[0].To != "billing@acme.example" {
		t.Errorf("expected recipient resolved from client, got %q", email.sent[0].To)
	}
}

func TestSendEmail_NoAddress(t *testing.T) {
	email := &mockEmailTransport{}
	d := newTestDispatcher(email, &mockSMSTransport{}, &mockCreditStore{})

	err := d.SendEmail(context.Background(), testClient("", "", ""), EmailMessage{Subject: "x"})
	if !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}
	if len(email.sent) != 0 {
		t.Error("no transport call expected without a recipient")
	}
}

func TestSendSMS(t *testing.T) {
	sms := &mockSMSTransport{}
	credits := &mockCreditStore{balance: 10}
	d := newTestDispatcher(&mockEmailTransport{}, sms, credits)

	client := testClient("", "+61400000001", "")
	consumed, err := d.SendSMS(context.Background(), client.OrganizationID, client, "Invoice INV-1 is overdue.")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if consumed != 1 {
		t.Errorf("expected 1 credit consumed, got %d", consumed)
	}
	if credits.balance != 9 {
		t.Errorf("expected balance 9 after debit, got %d", credits.balance)
	}
	if len(sms.sent) != 1 || sms.sent[0] != "+61400000001" {
		t.Errorf("expected sms to mobile number, got %v", sms.sent)
	}
}

func TestSendSMS_FallsBackToLandline(t *testing.T) {
	sms := &mockSMSTransport{}
	d := newTestDispatcher(&mockEmailTransport{}, sms, &mockCreditStore{balance: 5})

	client := testClient("", "", "+61290000000")
	if _, err := d.SendSMS(context.Background(), client.OrganizationID, client, "hi"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sms.sent) != 1 || sms.sent[0] != "+61290000000" {
		t.Errorf("expected fallback to phone, got %v", sms.sent)
	}
}

func TestSendSMS_NoPhone(t *testing.T) {
	d := newTestDispatcher(&mockEmailTransport{}, &mockSMSTransport{}, &mockCreditStore{balance: 5})

	client := testClient("a@b.example", "", "")
	_, err := d.SendSMS(context.Background(), client.OrganizationID, client, "hi")
	if !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}
}

func TestSendSMS_InsufficientCredits(t *testing.T) {
	sms := &mockSMSTransport{}
	credits := &mockCreditStore{balance: 0}
	d := newTestDispatcher(&mockEmailTransport{}, sms, credits)

	client := testClient("", "+61400000001", "")
	_, err := d.SendSMS(context.Background(), client.OrganizationID, client, "hi")
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Errorf("expected ErrInsufficientCredits, got %v", err)
	}
	if len(sms.sent) != 0 {
		t.Error("no transport call expected when credits are insufficient")
	}
	if credits.balance != 0 {
		t.Errorf("balance must be untouched, got %d", credits.balance)
	}
}

func TestSendSMS_TransportFailureDoesNotDebit(t *testing.T) {
	sms := &mockSMSTransport{err: errors.New("provider down")}
	credits := &mockCreditStore{balance: 10}
	d := newTestDispatcher(&mockEmailTransport{}, sms, credits)

	client := testClient("", "+61400000001", "")
	if _, err := d.SendSMS(context.Background(), client.OrganizationID, client, "hi"); err == nil {
		t.Fatal("expected transport error")
	}
	if credits.debited != 0 {
		t.Errorf("failed send must not consume credits, debited %d", credits.debited)
	}
}

func TestSendSMS_MultiSegmentDebit(t *testing.T) {
	credits := &mockCreditStore{balance: 10}
	d := newTestDispatcher(&mockEmailTransport{}, &mockSMSTransport{}, credits)

	client := testClient("", "+61400000001", "")
	long := strings.Repeat("x", 161)
	consumed, err := d.SendSMS(context.Background(), client.OrganizationID, client, long)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if consumed != 2 {
		t.Errorf("expected 2 credits for a 161-char message, got %d", consumed)
	}
	if credits.balance != 8 {
		t.Errorf("expected balance 8, got %d", credits.balance)
	}
}

func TestCreditsFor(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 1},
		{1, 1},
		{160, 1},
		{161, 2},
		{320, 2},
		{321, 3},
	}
	for _, tt := range tests {
		msg := strings.Repeat("a", tt.length)
		if got := CreditsFor(msg); got != tt.want {
			t.Errorf("CreditsFor(len %d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}
