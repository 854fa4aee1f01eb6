package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"cwkhub/internal/domain"
	"cwkhub/internal/timeutil"
)

// PendingSummary is the outstanding balance of one payer (learner or organisation).
type PendingSummary struct {
	PayerID       string          `json:"payer_id"`
	TotalInvoiced decimal.Decimal `json:"total_invoiced"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
	IsOverdue     bool            `json:"is_overdue"`
	InvoiceCount  int             `json:"invoice_count"`
}

// EffectivePaid is the collected portion of an invoice: the full total when
// paid, the recorded paid amount (or zero) when partially paid, zero otherwise.
func EffectivePaid(inv domain.Invoice) decimal.Decimal {
	switch inv.Status {
	case domain.InvoicePaid:
		return inv.TotalAmount
	case domain.InvoicePartiallyPaid:
		if inv.PaidAmount != nil {
			return *inv.PaidAmount
		}
	}
	return decimal.Zero
}

// LearnersWithPendingPayments groups invoices by learner and returns only
// learners who still owe money. Cancelled invoices are not billed and are
// left out of every sum.
func LearnersWithPendingPayments(invoices []domain.Invoice, now time.Time) []PendingSummary {
	return pendingBy(invoices, now, func(inv domain.Invoice) string { return inv.LearnerID })
}

// OrganisationsWithPendingPayments groups invoices by organisation and returns
// only organisations that still owe money.
func OrganisationsWithPendingPayments(invoices []domain.Invoice, now time.Time) []PendingSummary {
	return pendingBy(invoices, now, func(inv domain.Invoice) string { return inv.OrganizationID })
}

func pendingBy(invoices []domain.Invoice, now time.Time, payer func(domain.Invoice) string) []PendingSummary {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	idx := map[string]int{}
	var rows []PendingSummary
	for _, inv := range invoices {
		id := payer(inv)
		if id == "" || inv.Status == domain.InvoiceCancelled {
			continue
		}
		i, ok := idx[id]
		if !ok {
			i = len(rows)
			idx[id] = i
			rows = append(rows, PendingSummary{PayerID: id, TotalInvoiced: decimal.Zero, TotalPaid: decimal.Zero})
		}
		paid := EffectivePaid(inv)
		r := &rows[i]
		r.InvoiceCount++
		r.TotalInvoiced = r.TotalInvoiced.Add(inv.TotalAmount)
		r.TotalPaid = r.TotalPaid.Add(paid)
		if isOverdue(inv, paid, today) {
			r.IsOverdue = true
		}
	}
	res := make([]PendingSummary, 0, len(rows))
	for _, r := range rows {
		r.PendingAmount = r.TotalInvoiced.Sub(r.TotalPaid)
		if r.PendingAmount.IsPositive() {
			res = append(res, r)
		}
	}
	return res
}

func isOverdue(inv domain.Invoice, paid decimal.Decimal, today time.Time) bool {
	switch inv.Status {
	case domain.InvoicePaid, domain.InvoiceDraft, domain.InvoiceCancelled:
		return false
	}
	if !inv.TotalAmount.Sub(paid).IsPositive() || inv.DueDate == "" {
		return false
	}
	due, err := timeutil.ParseDate(inv.DueDate)
	if err != nil {
		return false
	}
	return due.Before(today)
}
