package server

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"cwkhub/internal/domain"
	"cwkhub/internal/engine"
	"cwkhub/internal/finance"
)

// Request payloads. Money travels as decimal strings.

type AvailabilityRequest struct {
	EducatorID      string `json:"educator_id"`
	Date            string `json:"date" example:"2026-02-10"`
	StartTime       string `json:"start_time" example:"09:00"`
	EndTime         string `json:"end_time" example:"10:00"`
	ExcludeInviteID string `json:"exclude_invite_id,omitempty"`
}

type CreateInviteRequest struct {
	EducatorID string `json:"educator_id"`
	Date       string `json:"date" example:"2026-02-10"`
	StartTime  string `json:"start_time" example:"11:00"`
	EndTime    string `json:"end_time" example:"12:00"`
	Title      string `json:"title,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type RescheduleInviteRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type RespondInviteRequest struct {
	Status string `json:"status" enum:"accepted,declined"`
}

type CreateTermRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type CreateClassRequest struct {
	ID            string `json:"id,omitempty"`
	Name          string `json:"name"`
	TermID        string `json:"term_id"`
	LearningTrack string `json:"learning_track,omitempty"`
}

type CreateSessionRequest struct {
	ClassID              string   `json:"class_id"`
	Date                 string   `json:"date"`
	StartTime            string   `json:"start_time"`
	EndTime              string   `json:"end_time"`
	LeadEducatorID       string   `json:"lead_educator_id"`
	AssistantEducatorIDs []string `json:"assistant_educator_ids,omitempty"`
	DurationHours        float64  `json:"duration_hours,omitempty"`
	Force                bool     `json:"force,omitempty"`
}

type EnrollRequest struct {
	LearnerID string `json:"learner_id"`
	ClassID   string `json:"class_id"`
	Force     bool   `json:"force,omitempty"`
}

type EnrollmentConflictRequest struct {
	LearnerID string `json:"learner_id"`
	ClassID   string `json:"class_id"`
}

type UpdateEnrollmentRequest struct {
	Status string `json:"status" enum:"active,dropped,completed"`
	Force  bool   `json:"force,omitempty"`
}

type RecordAttendanceRequest struct {
	SessionID string `json:"session_id"`
	LearnerID string `json:"learner_id"`
	Status    string `json:"status" enum:"present,late,absent,excused"`
}

type CreateInvoiceRequest struct {
	LearnerID      string `json:"learner_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	TermID         string `json:"term_id,omitempty"`
	Description    string `json:"description,omitempty"`
	TotalAmount    string `json:"total_amount" example:"800.00"`
	DueDate        string `json:"due_date,omitempty"`
	Status         string `json:"status,omitempty" enum:"draft,sent,issued"`
}

type RecordPaymentRequest struct {
	Amount   string `json:"amount" example:"150.00"`
	PaidDate string `json:"paid_date,omitempty"`
}

type SetInvoiceStatusRequest struct {
	Status string `json:"status" enum:"draft,sent,issued,partially_paid,paid,cancelled,overdue"`
	Force  bool   `json:"force,omitempty"`
}

type CreateExpenseRequest struct {
	Category    string `json:"category"`
	Amount      string `json:"amount" example:"1900.00"`
	Date        string `json:"date"`
	PaidTo      string `json:"paid_to,omitempty"`
	Description string `json:"description,omitempty"`
}

// Responses

type EnrollmentConflictResponse struct {
	Conflict  bool   `json:"conflict"`
	ClassName string `json:"class_name,omitempty"`
}

type InvoiceResponse struct {
	ID             string  `json:"id"`
	LearnerID      string  `json:"learner_id,omitempty"`
	OrganizationID string  `json:"organization_id,omitempty"`
	TermID         string  `json:"term_id,omitempty"`
	Description    string  `json:"description,omitempty"`
	TotalAmount    string  `json:"total_amount"`
	PaidAmount     *string `json:"paid_amount,omitempty"`
	Status         string  `json:"status"`
	DueDate        string  `json:"due_date,omitempty"`
	PaidDate       string  `json:"paid_date,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

type ExpenseResponse struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	PaidTo      string `json:"paid_to,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type MonthResponse struct {
	Month    int    `json:"month" minimum:"1" maximum:"12"`
	Name     string `json:"name"`
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
	Net      string `json:"net"`
}

type TotalsResponse struct {
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
	Net      string `json:"net"`
}

type FinanceReportResponse struct {
	Year     int             `json:"year"`
	Currency string          `json:"currency,omitempty"`
	Months   []MonthResponse `json:"months"`
	Totals   TotalsResponse  `json:"totals"`
}

type PendingPaymentResponse struct {
	PayerID       string `json:"payer_id"`
	TotalInvoiced string `json:"total_invoiced"`
	TotalPaid     string `json:"total_paid"`
	PendingAmount string `json:"pending_amount"`
	IsOverdue     bool   `json:"is_overdue"`
	InvoiceCount  int    `json:"invoice_count"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty" doc:"Only returned on creation"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Conversion helpers

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func parseMoney(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s must be a decimal amount", engine.ErrValidation, field)
	}
	return d, nil
}

func invoiceResponse(inv domain.Invoice) InvoiceResponse {
	out := InvoiceResponse{
		ID:             inv.ID,
		LearnerID:      inv.LearnerID,
		OrganizationID: inv.OrganizationID,
		TermID:         inv.TermID,
		Description:    inv.Description,
		TotalAmount:    money(inv.TotalAmount),
		Status:         inv.Status,
		DueDate:        inv.DueDate,
		PaidDate:       inv.PaidDate,
		CreatedAt:      inv.CreatedAt,
		UpdatedAt:      inv.UpdatedAt,
	}
	if inv.PaidAmount != nil {
		p := money(*inv.PaidAmount)
		out.PaidAmount = &p
	}
	return out
}

func mapInvoices(items []domain.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(items))
	for _, inv := range items {
		out = append(out, invoiceResponse(inv))
	}
	return out
}

func expenseResponse(ex domain.Expense) ExpenseResponse {
	return ExpenseResponse{
		ID:          ex.ID,
		Category:    ex.Category,
		Amount:      money(ex.Amount),
		Date:        ex.Date,
		PaidTo:      ex.PaidTo,
		Description: ex.Description,
		CreatedAt:   ex.CreatedAt,
	}
}

func mapExpenses(items []domain.Expense) []ExpenseResponse {
	out := make([]ExpenseResponse, 0, len(items))
	for _, ex := range items {
		out = append(out, expenseResponse(ex))
	}
	return out
}

func financeReportResponse(rep engine.FinanceReport) FinanceReportResponse {
	out := FinanceReportResponse{
		Year:     rep.Year,
		Currency: rep.Currency,
		Months:   make([]MonthResponse, 0, len(rep.Months)),
		Totals: TotalsResponse{
			Income:   money(rep.Totals.Income),
			Expenses: money(rep.Totals.Expenses),
			Net:      money(rep.Totals.Net),
		},
	}
	for _, m := range rep.Months {
		out.Months = append(out.Months, MonthResponse{
			Month:    int(m.Month),
			Name:     m.Month.String(),
			Income:   money(m.Income),
			Expenses: money(m.Expenses),
			Net:      money(m.Net),
		})
	}
	return out
}

func mapPending(items []finance.PendingSummary) []PendingPaymentResponse {
	out := make([]PendingPaymentResponse, 0, len(items))
	for _, p := range items {
		out = append(out, PendingPaymentResponse{
			PayerID:       p.PayerID,
			TotalInvoiced: money(p.TotalInvoiced),
			TotalPaid:     money(p.TotalPaid),
			PendingAmount: money(p.PendingAmount),
			IsOverdue:     p.IsOverdue,
			InvoiceCount:  p.InvoiceCount,
		})
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
