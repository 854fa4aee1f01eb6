// Package finance derives monthly income/expense summaries and outstanding
// balances from invoice and expense snapshots.
package finance

import (
	"time"

	"github.com/shopspring/decimal"

	"cwkhub/internal/domain"
	"cwkhub/internal/timeutil"
)

// Policy holds the tunable parts of income recognition.
type Policy struct {
	// PartialPaymentFallback is the share of the total counted as income for a
	// partially paid invoice that has no recorded paid amount.
	PartialPaymentFallback decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{PartialPaymentFallback: decimal.NewFromFloat(0.5)}
}

type MonthRow struct {
	Month    time.Month      `json:"month"`
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

type Totals struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

// MonthlySummary returns twelve rows (January first) for year.
//
// Income: only paid and partially_paid invoices count, in the month of
// PaidDate, or DueDate when no payment date is stored. Expenses: every expense
// counts in the month of its Date. Records whose date is missing or malformed
// are ignored.
func MonthlySummary(year int, invoices []domain.Invoice, expenses []domain.Expense, p Policy) []MonthRow {
	rows := make([]MonthRow, 12)
	for i := range rows {
		rows[i] = MonthRow{Month: time.Month(i + 1), Income: decimal.Zero, Expenses: decimal.Zero, Net: decimal.Zero}
	}
	for _, inv := range invoices {
		amount, ok := IncomeAmount(inv, p)
		if !ok {
			continue
		}
		date := inv.PaidDate
		if date == "" {
			date = inv.DueDate
		}
		m, ok := monthIn(date, year)
		if !ok {
			continue
		}
		rows[m-1].Income = rows[m-1].Income.Add(amount)
	}
	for _, ex := range expenses {
		m, ok := monthIn(ex.Date, year)
		if !ok {
			continue
		}
		rows[m-1].Expenses = rows[m-1].Expenses.Add(ex.Amount)
	}
	for i := range rows {
		rows[i].Net = rows[i].Income.Sub(rows[i].Expenses)
	}
	return rows
}

// IncomeAmount is the amount an invoice contributes to income, and whether it
// contributes at all. A recorded PaidAmount always wins; otherwise a paid
// invoice counts in full and a partially paid one counts the policy fallback
// share of its total.
func IncomeAmount(inv domain.Invoice, p Policy) (decimal.Decimal, bool) {
	switch inv.Status {
	case domain.InvoicePaid:
		if inv.PaidAmount != nil {
			return *inv.PaidAmount, true
		}
		return inv.TotalAmount, true
	case domain.InvoicePartiallyPaid:
		if inv.PaidAmount != nil {
			return *inv.PaidAmount, true
		}
		return inv.TotalAmount.Mul(p.PartialPaymentFallback), true
	default:
		return decimal.Zero, false
	}
}

// YearTotals sums monthly rows.
func YearTotals(rows []MonthRow) Totals {
	t := Totals{Income: decimal.Zero, Expenses: decimal.Zero, Net: decimal.Zero}
	for _, r := range rows {
		t.Income = t.Income.Add(r.Income)
		t.Expenses = t.Expenses.Add(r.Expenses)
		t.Net = t.Net.Add(r.Net)
	}
	return t
}

func monthIn(date string, year int) (time.Month, bool) {
	if date == "" {
		return 0, false
	}
	d, err := timeutil.ParseDate(date)
	if err != nil || d.Year() != year {
		return 0, false
	}
	return d.Month(), true
}
