package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("GET", "/cron/check-reminders", 200, 100*time.Millisecond)
	RecordRequest("POST", "/v1/invoices/x/remind", 422, 50*time.Millisecond)
	RecordRequest("GET", "/health", 200, time.Millisecond)
}

func TestRecordRun(t *testing.T) {
	RecordRun("success", 2*time.Second)
	RecordRun("failed", 30*time.Second)
}

func TestRecordSend(t *testing.T) {
	RecordSend("email", "sent")
	RecordSend("sms", "failed")
}

func TestRecordReminder(t *testing.T) {
	RecordReminder("sent")
	RecordReminder("failed")
	RecordReminder("deduped")
}

func TestRecordStatement(t *testing.T) {
	RecordStatement("sent")
	RecordStatement("deduped")
}

func TestRecordCreditsConsumed(t *testing.T) {
	RecordCreditsConsumed(1)
	RecordCreditsConsumed(3)
}

func TestRecordBreakerRejection(t *testing.T) {
	RecordBreakerRejection("ses")
	RecordBreakerRejection("sns")
}

func TestHandler(t *testing.T) {
	handler := Handler()
	if handler == nil {
		t.Error("Handler should not return nil")
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	if len(body) == 0 {
		t.Error("metrics response should not be empty")
	}
}

func TestMiddleware(t *testing.T) {
	innerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		innerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	handler := Middleware(inner)
	req := httptest.NewRequest("POST", "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !innerCalled {
		t.Error("inner handler should have been called")
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", rec.Code)
	}
}

func TestResponseWriter_ExplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)

	if rw.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rw.status)
	}
}
