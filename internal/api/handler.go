package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkowalski/dunlin/internal/db"
	"github.com/mkowalski/dunlin/internal/dispatch"
	"github.com/mkowalski/dunlin/internal/policy"
	"github.com/mkowalski/dunlin/internal/scan"
)

// Runner triggers one full scheduler run.
type Runner interface {
	Run(ctx context.Context) (*scan.RunReport, error)
}

// ManualSender is the manual-send surface of the two scanners.
type ManualSender interface {
	SendManualReminder(ctx context.Context, inv *db.Invoice, method policy.Method) (scan.Counts, error)
	SendManualStatement(ctx context.Context, client *db.Client) error
}

// Repository is the read surface the handlers need.
type Repository interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*db.Invoice, error)
	GetClient(ctx context.Context, id uuid.UUID) (*db.Client, error)
	ListNotifications(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*db.NotificationRecord, error)
	SMSCreditBalance(ctx context.Context, orgID uuid.UUID) (int, error)
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger *zap.Logger
	runner Runner
	sender ManualSender
	repo   Repository
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, runner Runner, sender ManualSender, repo Repository) *Handler {
	return &Handler{
		logger: logger,
		runner: runner,
		sender: sender,
		repo:   repo,
	}
}

// CheckReminders handles GET|POST /cron/check-reminders: the daily batch
// trigger. The response body is the aggregate run report.
func (h *Handler) CheckReminders(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.Run(r.Context())
	if errors.Is(err, scan.ErrRunInProgress) {
		h.writeError(w, http.StatusConflict, "run_in_progress", "Run In Progress", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("scheduler run failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "run_failed", "Run Failed", err.Error())
		return
	}

	status := http.StatusOK
	if !report.Success {
		// Partial failure: counts are still meaningful, but flag it.
		status = http.StatusMultiStatus
	}
	h.writeJSON(w, status, report)
}

// manualReminderRequest is the body of POST /v1/invoices/{id}/remind.
type manualReminderRequest struct {
	Method string `json:"method"`
}

type manualReminderResponse struct {
	Success bool   `json:"success"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Message string `json:"message,omitempty"`
}

// RemindInvoice handles POST /v1/invoices/{id}/remind: sends a reminder for
// one invoice unconditionally, bypassing day-offset matching. The attempt is
// still appended to the notification history.
func (h *Handler) RemindInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid Invoice ID", err.Error())
		return
	}

	var req manualReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	method := policy.Method(req.Method)
	if !method.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid Method", "method must be email, sms, or both")
		return
	}

	inv, err := h.repo.GetInvoice(ctx, invoiceID)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Invoice Not Found", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("invoice lookup failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal", "Lookup Failed", err.Error())
		return
	}

	counts, err := h.sender.SendManualReminder(ctx, inv, method)
	resp := manualReminderResponse{
		Success: err == nil,
		Sent:    counts.Sent,
		Failed:  counts.Failed,
	}
	if err != nil {
		// Surface the specific failure ("Client has no email address",
		// "insufficient sms credits") directly to the caller.
		resp.Message = sendErrorMessage(err)
		h.writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// SendStatement handles POST /v1/clients/{id}/statement: recomputes the
// client's outstanding position and sends a statement unconditionally.
func (h *Handler) SendStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid Client ID", err.Error())
		return
	}

	client, err := h.repo.GetClient(ctx, clientID)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Client Not Found", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("client lookup failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal", "Lookup Failed", err.Error())
		return
	}

	if err := h.sender.SendManualStatement(ctx, client); err != nil {
		h.writeJSON(w, http.StatusUnprocessableEntity, manualReminderResponse{
			Success: false,
			Message: sendErrorMessage(err),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, manualReminderResponse{Success: true, Sent: 1})
}

// ListNotifications handles GET /v1/organizations/{id}/notifications: the
// ledger history the settings UI renders, newest first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid Organization ID", err.Error())
		return
	}

	limit := 50
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	records, err := h.repo.ListNotifications(ctx, orgID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list notifications", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal", "Query Failed", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"notifications": records,
		"limit":         limit,
		"offset":        offset,
	})
}

// GetSMSCredits handles GET /v1/organizations/{id}/sms-credits.
func (h *Handler) GetSMSCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orgID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid Organization ID", err.Error())
		return
	}

	balance, err := h.repo.SMSCreditBalance(ctx, orgID)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Organization Not Found", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to read credit balance", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal", "Query Failed", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"organization_id": orgID,
		"balance":         balance,
	})
}

// sendErrorMessage maps dispatch errors to the user-facing messages the
// manual endpoints return.
func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrNoRecipient):
		return "Client has no contact details for the requested channel"
	case errors.Is(err, dispatch.ErrInsufficientCredits):
		return "Insufficient SMS credits"
	default:
		return err.Error()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, typ, title, detail string) {
	writeProblem(w, status, typ, title, detail)
}
