package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"cwkhub/internal/engine"
	"cwkhub/internal/hours"
	"cwkhub/internal/repo"
)

func registerFinance(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-invoice",
		Method:        http.MethodPost,
		Path:          "/invoices",
		Summary:       "Create invoice",
		Tags:          []string{"finance"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateInvoiceRequest `json:"body"`
	}) (*struct {
		Body InvoiceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		total, err := parseMoney("total_amount", input.Body.TotalAmount)
		if err != nil {
			return nil, handleError(err)
		}
		inv, err := e.CreateInvoice(ctx, engine.InvoiceCreateOptions{
			LearnerID:      input.Body.LearnerID,
			OrganizationID: input.Body.OrganizationID,
			TermID:         input.Body.TermID,
			Description:    input.Body.Description,
			TotalAmount:    total,
			DueDate:        input.Body.DueDate,
			Status:         input.Body.Status,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InvoiceResponse `json:"body"`
		}{Body: invoiceResponse(inv)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invoices",
		Method:      http.MethodGet,
		Path:        "/invoices",
		Summary:     "List invoices",
		Tags:        []string{"finance"},
	}, func(ctx context.Context, input *struct {
		LearnerID      string `query:"learner_id"`
		OrganizationID string `query:"organization_id"`
		TermID         string `query:"term_id"`
		Status         string `query:"status"`
	}) (*struct {
		Body []InvoiceResponse `json:"body"`
	}, error) {
		items, err := e.ListInvoices(ctx, repo.InvoiceFilters{
			LearnerID:      input.LearnerID,
			OrganizationID: input.OrganizationID,
			TermID:         input.TermID,
			Status:         input.Status,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []InvoiceResponse `json:"body"`
		}{Body: mapInvoices(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-invoice",
		Method:      http.MethodGet,
		Path:        "/invoices/{id}",
		Summary:     "Get invoice",
		Tags:        []string{"finance"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body InvoiceResponse `json:"body"`
	}, error) {
		inv, err := e.GetInvoice(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InvoiceResponse `json:"body"`
		}{Body: invoiceResponse(inv)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-payment",
		Method:      http.MethodPost,
		Path:        "/invoices/{id}/payments",
		Summary:     "Record a payment against an invoice",
		Tags:        []string{"finance"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body RecordPaymentRequest `json:"body"`
	}) (*struct {
		Body InvoiceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		amount, err := parseMoney("amount", input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		inv, err := e.RecordPayment(ctx, engine.PaymentOptions{
			InvoiceID: input.ID,
			Amount:    amount,
			PaidDate:  input.Body.PaidDate,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InvoiceResponse `json:"body"`
		}{Body: invoiceResponse(inv)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-invoice-status",
		Method:      http.MethodPatch,
		Path:        "/invoices/{id}/status",
		Summary:     "Move an invoice to another status",
		Tags:        []string{"finance"},
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                  `path:"id"`
		Body SetInvoiceStatusRequest `json:"body"`
	}) (*struct {
		Body InvoiceResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		inv, err := e.SetInvoiceStatus(ctx, input.ID, input.Body.Status, actorID, input.Body.Force)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InvoiceResponse `json:"body"`
		}{Body: invoiceResponse(inv)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-expense",
		Method:        http.MethodPost,
		Path:          "/expenses",
		Summary:       "Record an expense",
		Tags:          []string{"finance"},
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateExpenseRequest `json:"body"`
	}) (*struct {
		Body ExpenseResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		amount, err := parseMoney("amount", input.Body.Amount)
		if err != nil {
			return nil, handleError(err)
		}
		ex, err := e.CreateExpense(ctx, engine.ExpenseCreateOptions{
			Category:    input.Body.Category,
			Amount:      amount,
			Date:        input.Body.Date,
			PaidTo:      input.Body.PaidTo,
			Description: input.Body.Description,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ExpenseResponse `json:"body"`
		}{Body: expenseResponse(ex)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-expenses",
		Method:      http.MethodGet,
		Path:        "/expenses",
		Summary:     "List expenses",
		Tags:        []string{"finance"},
	}, func(ctx context.Context, input *struct {
		Category string `query:"category"`
		From     string `query:"from" doc:"Inclusive YYYY-MM-DD"`
		To       string `query:"to" doc:"Inclusive YYYY-MM-DD"`
	}) (*struct {
		Body []ExpenseResponse `json:"body"`
	}, error) {
		items, err := e.ListExpenses(ctx, repo.ExpenseFilters{
			Category: input.Category,
			From:     input.From,
			To:       input.To,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ExpenseResponse `json:"body"`
		}{Body: mapExpenses(items)}, nil
	})

	registerReports(api, e)
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "educator-hours",
		Method:      http.MethodGet,
		Path:        "/reports/educator-hours",
		Summary:     "Lead and coaching hours per educator",
		Tags:        []string{"reports"},
	}, func(ctx context.Context, input *struct {
		TermID string `query:"term_id"`
	}) (*struct {
		Body []hours.Summary `json:"body"`
	}, error) {
		rows, err := e.EducatorHours(ctx, input.TermID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []hours.Summary `json:"body"`
		}{Body: orEmpty(rows)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "monthly-finance",
		Method:      http.MethodGet,
		Path:        "/reports/finance/{year}",
		Summary:     "Monthly income, expenses and net for a year",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Year int `path:"year"`
	}) (*struct {
		Body FinanceReportResponse `json:"body"`
	}, error) {
		rep, err := e.MonthlyFinance(ctx, input.Year)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FinanceReportResponse `json:"body"`
		}{Body: financeReportResponse(rep)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "learners-pending-payments",
		Method:      http.MethodGet,
		Path:        "/reports/pending-payments/learners",
		Summary:     "Learners with outstanding balances",
		Tags:        []string{"reports"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PendingPaymentResponse `json:"body"`
	}, error) {
		rows, err := e.LearnersWithPendingPayments(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PendingPaymentResponse `json:"body"`
		}{Body: mapPending(rows)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "organisations-pending-payments",
		Method:      http.MethodGet,
		Path:        "/reports/pending-payments/organisations",
		Summary:     "Organisations with outstanding balances",
		Tags:        []string{"reports"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PendingPaymentResponse `json:"body"`
	}, error) {
		rows, err := e.OrganisationsWithPendingPayments(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PendingPaymentResponse `json:"body"`
		}{Body: mapPending(rows)}, nil
	})
}
