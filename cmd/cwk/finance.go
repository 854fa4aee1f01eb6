package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cwkhub/internal/engine"
	"cwkhub/internal/finance"
	"cwkhub/internal/repo"
)

func parseAmount(flag, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %q is not a decimal amount", flag, raw)
	}
	return d, nil
}

func invoiceCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invoice", Short: "Manage invoices"}

	var opts engine.InvoiceCreateOptions
	var total string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an invoice for a learner or an organisation",
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount("total", total)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.TotalAmount = amount
				opts.ActorID = actorID()
				out, err := e.CreateInvoice(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	create.Flags().StringVar(&opts.LearnerID, "learner", "", "billed learner id")
	create.Flags().StringVar(&opts.OrganizationID, "organisation", "", "billed organisation id")
	create.Flags().StringVar(&opts.TermID, "term", "", "term id")
	create.Flags().StringVar(&opts.Description, "description", "", "description")
	create.Flags().StringVar(&total, "total", "", "total amount, e.g. 800.00")
	create.Flags().StringVar(&opts.DueDate, "due", "", "due date, YYYY-MM-DD")
	create.Flags().StringVar(&opts.Status, "status", "", "draft|sent|issued (default draft)")
	inv.AddCommand(create)

	var pay engine.PaymentOptions
	var amount string
	payCmd := &cobra.Command{
		Use:   "pay <id>",
		Short: "Record a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseAmount("amount", amount)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pay.InvoiceID = args[0]
				pay.Amount = a
				pay.ActorID = actorID()
				out, err := e.RecordPayment(ctx, pay)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	payCmd.Flags().StringVar(&amount, "amount", "", "amount paid")
	payCmd.Flags().StringVar(&pay.PaidDate, "date", "", "payment date, YYYY-MM-DD (default today)")
	inv.AddCommand(payCmd)

	var status string
	var force bool
	statusCmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Move an invoice to another status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.SetInvoiceStatus(ctx, args[0], status, actorID(), force)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	statusCmd.Flags().StringVar(&status, "status", "", "target status")
	statusCmd.Flags().BoolVar(&force, "force", false, "skip transition checks")
	inv.AddCommand(statusCmd)

	var f repo.InvoiceFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListInvoices(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Payer", "Total", "Paid", "Status", "Due")
				alignMoney(tw, 3, 4)
				for _, it := range items {
					payer := it.LearnerID
					if payer == "" {
						payer = it.OrganizationID
					}
					tw.AppendRow(row(it.ID, payer, money(it.TotalAmount), money(finance.EffectivePaid(it)), it.Status, it.DueDate))
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.LearnerID, "learner", "", "learner filter")
	list.Flags().StringVar(&f.OrganizationID, "organisation", "", "organisation filter")
	list.Flags().StringVar(&f.TermID, "term", "", "term filter")
	list.Flags().StringVar(&f.Status, "status", "", "status filter")
	inv.AddCommand(list)

	inv.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.GetInvoice(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	})
	return inv
}

func expenseCmd() *cobra.Command {
	ex := &cobra.Command{Use: "expense", Short: "Manage expenses"}

	var opts engine.ExpenseCreateOptions
	var amount string
	add := &cobra.Command{
		Use:   "add",
		Short: "Record an expense",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseAmount("amount", amount)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.Amount = a
				opts.ActorID = actorID()
				out, err := e.CreateExpense(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	add.Flags().StringVar(&opts.Category, "category", "", "category, e.g. rent")
	add.Flags().StringVar(&amount, "amount", "", "amount")
	add.Flags().StringVar(&opts.Date, "date", "", "YYYY-MM-DD")
	add.Flags().StringVar(&opts.PaidTo, "paid-to", "", "payee")
	add.Flags().StringVar(&opts.Description, "description", "", "description")
	ex.AddCommand(add)

	var f repo.ExpenseFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List expenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListExpenses(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Date", "Category", "Amount", "Paid to", "Description")
				alignMoney(tw, 3)
				for _, it := range items {
					tw.AppendRow(row(it.Date, it.Category, money(it.Amount), it.PaidTo, it.Description))
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.Category, "category", "", "category filter")
	list.Flags().StringVar(&f.From, "from", "", "first date, inclusive")
	list.Flags().StringVar(&f.To, "to", "", "last date, inclusive")
	ex.AddCommand(list)
	return ex
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{Use: "report", Short: "Hours and finance reports"}

	var termID string
	hoursCmd := &cobra.Command{
		Use:   "hours",
		Short: "Lead and coaching hours per educator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.EducatorHours(ctx, termID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable("Educator", "Term", "Lead", "Coaching", "Total")
				alignMoney(tw, 3, 4, 5)
				for _, r := range rows {
					tw.AppendRow(row(r.EducatorID, r.TermID, fmt.Sprintf("%.2f", r.LeadHours), fmt.Sprintf("%.2f", r.CoachingHours), fmt.Sprintf("%.2f", r.TotalHours)))
				}
				tw.Render()
				return nil
			})
		},
	}
	hoursCmd.Flags().StringVar(&termID, "term", "", "term filter")
	rep.AddCommand(hoursCmd)

	var year int
	financeCmd := &cobra.Command{
		Use:   "finance",
		Short: "Monthly income, expenses and net for a year",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if year == 0 {
					year = time.Now().Year()
				}
				out, err := e.MonthlyFinance(ctx, year)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := newTable("Month", "Income", "Expenses", "Net")
				alignMoney(tw, 2, 3, 4)
				for _, m := range out.Months {
					tw.AppendRow(row(m.Month.String(), money(m.Income), money(m.Expenses), money(m.Net)))
				}
				tw.AppendFooter(row(fmt.Sprintf("%d %s", out.Year, out.Currency), money(out.Totals.Income), money(out.Totals.Expenses), money(out.Totals.Net)))
				tw.Render()
				return nil
			})
		},
	}
	financeCmd.Flags().IntVar(&year, "year", 0, "calendar year (default current)")
	rep.AddCommand(financeCmd)

	var organisations bool
	debtors := &cobra.Command{
		Use:   "debtors",
		Short: "Payers with outstanding balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				load := e.LearnersWithPendingPayments
				if organisations {
					load = e.OrganisationsWithPendingPayments
				}
				rows, err := load(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable("Payer", "Invoices", "Invoiced", "Paid", "Pending", "Overdue")
				alignMoney(tw, 3, 4, 5)
				for _, r := range rows {
					overdue := ""
					if r.IsOverdue {
						overdue = "yes"
					}
					tw.AppendRow(row(r.PayerID, r.InvoiceCount, money(r.TotalInvoiced), money(r.TotalPaid), money(r.PendingAmount), overdue))
				}
				tw.Render()
				return nil
			})
		},
	}
	debtors.Flags().BoolVar(&organisations, "organisations", false, "list organisations instead of learners")
	rep.AddCommand(debtors)
	return rep
}
