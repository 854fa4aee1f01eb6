package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"cwkhub/internal/domain"
)

// Money is stored as decimal text so sums stay exact.

func (r Repo) InsertInvoice(ctx context.Context, tx *sql.Tx, inv domain.Invoice) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO invoices(id,learner_id,organization_id,term_id,description,total_amount,paid_amount,status,due_date,paid_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		inv.ID, nullable(inv.LearnerID), nullable(inv.OrganizationID), nullable(inv.TermID), nullable(inv.Description),
		inv.TotalAmount.String(), nullableDecimal(inv.PaidAmount), inv.Status, nullable(inv.DueDate), nullable(inv.PaidDate), inv.CreatedAt, inv.UpdatedAt)
	return err
}

func (r Repo) UpdateInvoice(ctx context.Context, tx *sql.Tx, inv domain.Invoice) error {
	return affected(r.q(tx).ExecContext(ctx, `UPDATE invoices SET description=?, total_amount=?, paid_amount=?, status=?, due_date=?, paid_date=?, updated_at=? WHERE id=?`,
		nullable(inv.Description), inv.TotalAmount.String(), nullableDecimal(inv.PaidAmount), inv.Status, nullable(inv.DueDate), nullable(inv.PaidDate), inv.UpdatedAt, inv.ID))
}

func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

const invoiceColumns = `id,COALESCE(learner_id,''),COALESCE(organization_id,''),COALESCE(term_id,''),COALESCE(description,''),total_amount,paid_amount,status,COALESCE(due_date,''),COALESCE(paid_date,''),created_at,updated_at`

func scanInvoice(sc interface{ Scan(...any) error }) (domain.Invoice, error) {
	var inv domain.Invoice
	var total string
	var paid sql.NullString
	if err := sc.Scan(&inv.ID, &inv.LearnerID, &inv.OrganizationID, &inv.TermID, &inv.Description, &total, &paid, &inv.Status, &inv.DueDate, &inv.PaidDate, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return inv, err
	}
	t, err := decimal.NewFromString(total)
	if err != nil {
		return inv, fmt.Errorf("invoice %s total_amount: %w", inv.ID, err)
	}
	inv.TotalAmount = t
	if paid.Valid {
		p, err := decimal.NewFromString(paid.String)
		if err != nil {
			return inv, fmt.Errorf("invoice %s paid_amount: %w", inv.ID, err)
		}
		inv.PaidAmount = &p
	}
	return inv, nil
}

func (r Repo) GetInvoice(ctx context.Context, tx *sql.Tx, id string) (domain.Invoice, error) {
	inv, err := scanInvoice(r.q(tx).QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	return inv, err
}

type InvoiceFilters struct {
	LearnerID      string
	OrganizationID string
	TermID         string
	Status         string
}

func (r Repo) ListInvoices(ctx context.Context, f InvoiceFilters) ([]domain.Invoice, error) {
	var clauses []string
	var args []any
	if f.LearnerID != "" {
		clauses = append(clauses, "learner_id=?")
		args = append(args, f.LearnerID)
	}
	if f.OrganizationID != "" {
		clauses = append(clauses, "organization_id=?")
		args = append(args, f.OrganizationID)
	}
	if f.TermID != "" {
		clauses = append(clauses, "term_id=?")
		args = append(args, f.TermID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+invoiceColumns+` FROM invoices `+whereClause(clauses)+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

func (r Repo) InsertExpense(ctx context.Context, tx *sql.Tx, ex domain.Expense) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO expenses(id,category,amount,date,paid_to,description,created_at) VALUES (?,?,?,?,?,?,?)`,
		ex.ID, ex.Category, ex.Amount.String(), ex.Date, nullable(ex.PaidTo), nullable(ex.Description), ex.CreatedAt)
	return err
}

type ExpenseFilters struct {
	Category string
	// From and To bound Date inclusively, as YYYY-MM-DD.
	From string
	To   string
}

func (r Repo) ListExpenses(ctx context.Context, f ExpenseFilters) ([]domain.Expense, error) {
	var clauses []string
	var args []any
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.From != "" {
		clauses = append(clauses, "date>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "date<=?")
		args = append(args, f.To)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,category,amount,date,COALESCE(paid_to,''),COALESCE(description,''),created_at FROM expenses `+whereClause(clauses)+` ORDER BY date, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Expense
	for rows.Next() {
		var ex domain.Expense
		var amount string
		if err := rows.Scan(&ex.ID, &ex.Category, &amount, &ex.Date, &ex.PaidTo, &ex.Description, &ex.CreatedAt); err != nil {
			return nil, err
		}
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("expense %s amount: %w", ex.ID, err)
		}
		ex.Amount = a
		res = append(res, ex)
	}
	return res, rows.Err()
}
