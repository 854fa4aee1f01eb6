package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"cwkhub/internal/domain"
	"cwkhub/internal/events"
	"cwkhub/internal/finance"
	"cwkhub/internal/hours"
	"cwkhub/internal/repo"
	"cwkhub/internal/timeutil"
)

type InvoiceCreateOptions struct {
	LearnerID      string `validate:"required_without=OrganizationID"`
	OrganizationID string `validate:"required_without=LearnerID"`
	TermID         string
	Description    string
	TotalAmount    decimal.Decimal
	DueDate        string `validate:"omitempty,ymd"`
	Status         string `validate:"omitempty,oneof=draft sent issued"`
	ActorID        string `validate:"required"`
}

func (e Engine) CreateInvoice(ctx context.Context, opts InvoiceCreateOptions) (domain.Invoice, error) {
	if err := check(opts); err != nil {
		return domain.Invoice{}, err
	}
	if err := checkAmount("TotalAmount", opts.TotalAmount); err != nil {
		return domain.Invoice{}, err
	}
	if opts.TermID != "" {
		if _, err := e.Repo.GetTerm(ctx, opts.TermID); err != nil {
			return domain.Invoice{}, err
		}
	}
	now := e.stamp()
	inv := domain.Invoice{
		ID:             newID(),
		LearnerID:      opts.LearnerID,
		OrganizationID: opts.OrganizationID,
		TermID:         opts.TermID,
		Description:    opts.Description,
		TotalAmount:    opts.TotalAmount,
		Status:         opts.Status,
		DueDate:        opts.DueDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if inv.Status == "" {
		inv.Status = domain.InvoiceDraft
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return inv, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertInvoice(ctx, tx, inv); err != nil {
		return inv, fmt.Errorf("insert invoice: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.InvoiceCreated, "invoice", inv.ID, opts.ActorID, events.EventPayload{
		"learner_id":      inv.LearnerID,
		"organization_id": inv.OrganizationID,
		"total_amount":    inv.TotalAmount.String(),
		"status":          inv.Status,
	}); err != nil {
		return inv, err
	}
	return inv, tx.Commit()
}

func ensureInvoiceTransition(oldStatus, newStatus string, force bool) error {
	if force {
		return nil
	}
	switch oldStatus {
	case domain.InvoiceDraft:
		switch newStatus {
		case domain.InvoiceSent, domain.InvoiceIssued, domain.InvoiceCancelled:
			return nil
		}
	case domain.InvoiceSent, domain.InvoiceIssued, domain.InvoiceOverdue:
		switch newStatus {
		case domain.InvoicePartiallyPaid, domain.InvoicePaid, domain.InvoiceOverdue, domain.InvoiceCancelled:
			if newStatus != oldStatus {
				return nil
			}
		}
	case domain.InvoicePartiallyPaid:
		switch newStatus {
		case domain.InvoicePaid, domain.InvoiceOverdue, domain.InvoiceCancelled:
			return nil
		}
	}
	return fmt.Errorf("%w: invoice %s -> %s", ErrInvalidTransition, oldStatus, newStatus)
}

func validInvoiceStatus(s string) bool {
	switch s {
	case domain.InvoiceDraft, domain.InvoiceSent, domain.InvoiceIssued, domain.InvoicePartiallyPaid,
		domain.InvoicePaid, domain.InvoiceCancelled, domain.InvoiceOverdue:
		return true
	}
	return false
}

// SetInvoiceStatus moves an invoice along draft -> sent/issued -> partially_paid
// -> paid, with overdue and cancelled as side states. Marking an invoice paid
// records the full total as paid.
func (e Engine) SetInvoiceStatus(ctx context.Context, id, status, actorID string, force bool) (domain.Invoice, error) {
	if !validInvoiceStatus(status) {
		return domain.Invoice{}, fmt.Errorf("%w: unknown invoice status %q", ErrValidation, status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()
	inv, err := e.Repo.GetInvoice(ctx, tx, id)
	if err != nil {
		return inv, err
	}
	if err := ensureInvoiceTransition(inv.Status, status, force); err != nil {
		return inv, err
	}
	from := inv.Status
	inv.Status = status
	inv.UpdatedAt = e.stamp()
	if status == domain.InvoicePaid {
		total := inv.TotalAmount
		inv.PaidAmount = &total
		if inv.PaidDate == "" {
			inv.PaidDate = e.now().UTC().Format(timeutil.DateLayout)
		}
	}
	if err := e.Repo.UpdateInvoice(ctx, tx, inv); err != nil {
		return inv, err
	}
	if err := e.writer().Append(ctx, tx, events.InvoiceStatus, "invoice", inv.ID, actorID, events.EventPayload{"from": from, "to": status, "forced": force}); err != nil {
		return inv, err
	}
	return inv, tx.Commit()
}

type PaymentOptions struct {
	InvoiceID string `validate:"required"`
	Amount    decimal.Decimal
	// PaidDate defaults to today.
	PaidDate string `validate:"omitempty,ymd"`
	ActorID  string `validate:"required"`
}

// RecordPayment adds a payment to an open invoice. The running paid amount
// never exceeds the total; reaching it marks the invoice paid, otherwise it
// becomes partially_paid.
func (e Engine) RecordPayment(ctx context.Context, opts PaymentOptions) (domain.Invoice, error) {
	if err := check(opts); err != nil {
		return domain.Invoice{}, err
	}
	if err := checkAmount("Amount", opts.Amount); err != nil {
		return domain.Invoice{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer tx.Rollback()
	inv, err := e.Repo.GetInvoice(ctx, tx, opts.InvoiceID)
	if err != nil {
		return inv, err
	}
	switch inv.Status {
	case domain.InvoiceSent, domain.InvoiceIssued, domain.InvoiceOverdue, domain.InvoicePartiallyPaid:
	default:
		return inv, fmt.Errorf("%w: cannot record payment on %s invoice", ErrInvalidTransition, inv.Status)
	}
	paid := decimal.Zero
	if inv.PaidAmount != nil {
		paid = *inv.PaidAmount
	}
	paid = paid.Add(opts.Amount)
	if paid.GreaterThan(inv.TotalAmount) {
		return inv, fmt.Errorf("%w: payment exceeds outstanding balance of %s", ErrValidation, inv.TotalAmount.Sub(paid.Sub(opts.Amount)))
	}
	from := inv.Status
	inv.PaidAmount = &paid
	inv.PaidDate = opts.PaidDate
	if inv.PaidDate == "" {
		inv.PaidDate = e.now().UTC().Format(timeutil.DateLayout)
	}
	if paid.Equal(inv.TotalAmount) {
		inv.Status = domain.InvoicePaid
	} else {
		inv.Status = domain.InvoicePartiallyPaid
	}
	inv.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateInvoice(ctx, tx, inv); err != nil {
		return inv, err
	}
	if err := e.writer().Append(ctx, tx, events.InvoicePayment, "invoice", inv.ID, opts.ActorID, events.EventPayload{
		"amount":      opts.Amount.String(),
		"paid_amount": paid.String(),
		"from":        from,
		"to":          inv.Status,
	}); err != nil {
		return inv, err
	}
	return inv, tx.Commit()
}

func (e Engine) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	return e.Repo.GetInvoice(ctx, nil, id)
}

func (e Engine) ListInvoices(ctx context.Context, f repo.InvoiceFilters) ([]domain.Invoice, error) {
	return e.Repo.ListInvoices(ctx, f)
}

type ExpenseCreateOptions struct {
	Category    string `validate:"required"`
	Amount      decimal.Decimal
	Date        string `validate:"required,ymd"`
	PaidTo      string
	Description string
	ActorID     string `validate:"required"`
}

func (e Engine) CreateExpense(ctx context.Context, opts ExpenseCreateOptions) (domain.Expense, error) {
	if err := check(opts); err != nil {
		return domain.Expense{}, err
	}
	if err := checkAmount("Amount", opts.Amount); err != nil {
		return domain.Expense{}, err
	}
	ex := domain.Expense{
		ID:          newID(),
		Category:    opts.Category,
		Amount:      opts.Amount,
		Date:        opts.Date,
		PaidTo:      opts.PaidTo,
		Description: opts.Description,
		CreatedAt:   e.stamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ex, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertExpense(ctx, tx, ex); err != nil {
		return ex, fmt.Errorf("insert expense: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.ExpenseCreated, "expense", ex.ID, opts.ActorID, events.EventPayload{
		"category": ex.Category,
		"amount":   ex.Amount.String(),
		"date":     ex.Date,
	}); err != nil {
		return ex, err
	}
	return ex, tx.Commit()
}

func (e Engine) ListExpenses(ctx context.Context, f repo.ExpenseFilters) ([]domain.Expense, error) {
	return e.Repo.ListExpenses(ctx, f)
}

// EducatorHours aggregates lead and coaching hours per educator and term.
// An empty termID covers every term.
func (e Engine) EducatorHours(ctx context.Context, termID string) ([]hours.Summary, error) {
	sessions, err := e.Repo.ListSessions(ctx, nil, repo.SessionFilters{TermID: termID})
	if err != nil {
		return nil, err
	}
	return hours.ByTerm(sessions), nil
}

type FinanceReport struct {
	Year     int                `json:"year"`
	Currency string             `json:"currency,omitempty"`
	Months   []finance.MonthRow `json:"months"`
	Totals   finance.Totals     `json:"totals"`
}

// MonthlyFinance builds the twelve-month income/expense summary for year.
func (e Engine) MonthlyFinance(ctx context.Context, year int) (FinanceReport, error) {
	if year < 1900 || year > 9999 {
		return FinanceReport{}, fmt.Errorf("%w: year out of range", ErrValidation)
	}
	invoices, err := e.Repo.ListInvoices(ctx, repo.InvoiceFilters{})
	if err != nil {
		return FinanceReport{}, err
	}
	expenses, err := e.Repo.ListExpenses(ctx, repo.ExpenseFilters{
		From: fmt.Sprintf("%04d-01-01", year),
		To:   fmt.Sprintf("%04d-12-31", year),
	})
	if err != nil {
		return FinanceReport{}, err
	}
	rows := finance.MonthlySummary(year, invoices, expenses, e.financePolicy())
	rep := FinanceReport{Year: year, Months: rows, Totals: finance.YearTotals(rows)}
	if e.Config != nil {
		rep.Currency = e.Config.Finance.Currency
	}
	return rep, nil
}

func (e Engine) LearnersWithPendingPayments(ctx context.Context) ([]finance.PendingSummary, error) {
	invoices, err := e.Repo.ListInvoices(ctx, repo.InvoiceFilters{})
	if err != nil {
		return nil, err
	}
	return finance.LearnersWithPendingPayments(invoices, e.now()), nil
}

func (e Engine) OrganisationsWithPendingPayments(ctx context.Context) ([]finance.PendingSummary, error) {
	invoices, err := e.Repo.ListInvoices(ctx, repo.InvoiceFilters{})
	if err != nil {
		return nil, err
	}
	return finance.OrganisationsWithPendingPayments(invoices, e.now()), nil
}
