package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cwkhub/internal/calendar"
	"cwkhub/internal/config"
	"cwkhub/internal/db"
	"cwkhub/internal/domain"
	"cwkhub/internal/engine"
	"cwkhub/internal/events"
	"cwkhub/internal/migrate"
	"cwkhub/internal/repo"
	"cwkhub/internal/scheduling"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default("acme"))
	eng.Now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	if _, err := eng.CreateTerm(ctx, engine.TermCreateOptions{ID: "t1", Name: "Spring", StartDate: "2026-01-05", EndDate: "2026-04-30", ActorID: "manager"}); err != nil {
		t.Fatalf("create term: %v", err)
	}
	for _, c := range []engine.ClassCreateOptions{
		{ID: "c1", Name: "Python", TermID: "t1", ActorID: "manager"},
		{ID: "c2", Name: "Robotics", TermID: "t1", ActorID: "manager"},
		{ID: "c3", Name: "Design", TermID: "t1", ActorID: "manager"},
	} {
		if _, err := eng.CreateClass(ctx, c); err != nil {
			t.Fatalf("create class: %v", err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) session(t *testing.T, classID, date, start, end, lead string, assistants ...string) domain.Session {
	t.Helper()
	s, err := env.Engine.CreateSession(env.Ctx, engine.SessionCreateOptions{
		ClassID:              classID,
		Date:                 date,
		StartTime:            start,
		EndTime:              end,
		LeadEducatorID:       lead,
		AssistantEducatorIDs: assistants,
		ActorID:              "manager",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}

func TestCreateInviteChecksSessions(t *testing.T) {
	env := newTestEnv(t)
	sess := env.session(t, "c1", "2026-02-10", "09:00", "10:00", "e1")

	_, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{EducatorID: "e1", CreatedByID: "manager", Date: "2026-02-10", StartTime: "09:30", EndTime: "10:30"})
	if !errors.Is(err, engine.ErrSlotUnavailable) {
		t.Fatalf("expected slot unavailable, got %v", err)
	}
	var unavailable *engine.UnavailableError
	if !errors.As(err, &unavailable) || unavailable.Availability.ConflictingSession == nil || unavailable.Availability.ConflictingSession.ID != sess.ID {
		t.Fatalf("expected conflicting session in error, got %+v", unavailable)
	}

	inv, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{EducatorID: "e1", CreatedByID: "manager", Date: "2026-02-10", StartTime: "11:00", EndTime: "12:00", Title: "1:1"})
	if err != nil {
		t.Fatalf("create invite: %v", err)
	}
	if inv.Status != domain.InvitePending || inv.ID == "" {
		t.Fatalf("unexpected invite %+v", inv)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: events.InviteCreated})
	if err != nil || len(evts) != 1 || evts[0].EntityID != inv.ID {
		t.Fatalf("expected invite.created event, got %+v %v", evts, err)
	}
}

func TestAssistantSessionsBlockInvites(t *testing.T) {
	env := newTestEnv(t)
	env.session(t, "c1", "2026-02-10", "14:00", "15:00", "e1", "e2")
	av, err := env.Engine.CheckAvailability(env.Ctx, scheduling.SlotQuery{EducatorID: "e2", Date: "2026-02-10", StartTime: "14:30", EndTime: "15:30"})
	if err != nil {
		t.Fatal(err)
	}
	if av.Available || av.Reason != scheduling.SessionConflictReason {
		t.Fatalf("expected session conflict for assistant, got %+v", av)
	}
}

func TestCompulsoryBlocks(t *testing.T) {
	env := newTestEnv(t)
	av, err := env.Engine.CheckAvailability(env.Ctx, scheduling.SlotQuery{EducatorID: "e1", Date: "2026-02-09", StartTime: "09:00", EndTime: "09:30"})
	if err != nil {
		t.Fatal(err)
	}
	if av.Available || av.Reason != calendar.TeamMeetingReason {
		t.Fatalf("expected team meeting block, got %+v", av)
	}
	// 2026-01-15 is a Thursday in ISO week 3
	if _, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{EducatorID: "e1", CreatedByID: "manager", Date: "2026-01-15", StartTime: "09:30", EndTime: "10:30"}); !errors.Is(err, engine.ErrSlotUnavailable) {
		t.Fatalf("expected educators meeting block, got %v", err)
	}
	// 2026-01-22 is in an even week
	if _, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{EducatorID: "e1", CreatedByID: "manager", Date: "2026-01-22", StartTime: "09:30", EndTime: "10:30"}); err != nil {
		t.Fatalf("expected even-week thursday to be free: %v", err)
	}
	if _, err := env.Engine.CreateSession(env.Ctx, engine.SessionCreateOptions{ClassID: "c1", Date: "2026-02-09", StartTime: "09:30", EndTime: "10:30", LeadEducatorID: "e1", ActorID: "manager"}); !errors.Is(err, engine.ErrSlotUnavailable) {
		t.Fatalf("expected session on block to be rejected, got %v", err)
	}
	if _, err := env.Engine.CreateSession(env.Ctx, engine.SessionCreateOptions{ClassID: "c1", Date: "2026-02-09", StartTime: "09:30", EndTime: "10:30", LeadEducatorID: "e1", ActorID: "manager", Force: true}); err != nil {
		t.Fatalf("forced session: %v", err)
	}
}

func TestInviteRescheduleAndRespond(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{EducatorID: "e1", CreatedByID: "manager", Date: "2026-02-11", StartTime: "11:00", EndTime: "12:00"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{EducatorID: "e1", CreatedByID: "manager", Date: "2026-02-11", StartTime: "11:30", EndTime: "12:30"}); !errors.Is(err, engine.ErrSlotUnavailable) {
		t.Fatalf("expected overlap with pending invite, got %v", err)
	}
	// overlapping its own slot is fine
	moved, err := env.Engine.RescheduleInvite(env.Ctx, engine.InviteRescheduleOptions{ID: first.ID, Date: "2026-02-11", StartTime: "11:30", EndTime: "12:30", ActorID: "manager"})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.StartTime != "11:30" || moved.Status != domain.InvitePending {
		t.Fatalf("unexpected moved invite %+v", moved)
	}

	accepted, err := env.Engine.RespondInvite(env.Ctx, first.ID, domain.InviteAccepted, "e1")
	if err != nil || accepted.Status != domain.InviteAccepted || accepted.RespondedAt == nil {
		t.Fatalf("accept: %+v %v", accepted, err)
	}
	if _, err := env.Engine.RespondInvite(env.Ctx, first.ID, domain.InviteDeclined, "e1"); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected one-way transition, got %v", err)
	}
	// moving an accepted invite keeps its answer
	movedAgain, err := env.Engine.RescheduleInvite(env.Ctx, engine.InviteRescheduleOptions{ID: first.ID, Date: "2026-02-11", StartTime: "14:00", EndTime: "15:00", ActorID: "manager"})
	if err != nil {
		t.Fatalf("reschedule accepted: %v", err)
	}
	if movedAgain.Status != domain.InviteAccepted || movedAgain.RespondedAt == nil || *movedAgain.RespondedAt != *accepted.RespondedAt {
		t.Fatalf("accepted invite changed on reschedule: %+v", movedAgain)
	}
	stored, err := env.Engine.ListInvites(env.Ctx, repo.InviteFilters{EducatorID: "e1", Date: "2026-02-11"})
	if err != nil || len(stored) != 1 || stored[0].Status != domain.InviteAccepted || stored[0].StartTime != "14:00" {
		t.Fatalf("unexpected stored invite: %+v %v", stored, err)
	}

	second, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{EducatorID: "e1", CreatedByID: "manager", Date: "2026-02-12", StartTime: "14:00", EndTime: "15:00"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RespondInvite(env.Ctx, second.ID, domain.InviteDeclined, "e1"); err != nil {
		t.Fatal(err)
	}
	// declined invites do not hold the slot
	if _, err := env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{EducatorID: "e1", CreatedByID: "manager", Date: "2026-02-12", StartTime: "14:00", EndTime: "15:00"}); err != nil {
		t.Fatalf("expected declined slot to be free: %v", err)
	}
	if _, err := env.Engine.RescheduleInvite(env.Ctx, engine.InviteRescheduleOptions{ID: second.ID, Date: "2026-02-13", StartTime: "14:00", EndTime: "15:00", ActorID: "manager"}); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected declined invite reschedule to fail, got %v", err)
	}
}

func TestConcurrentInvitesForSameSlot(t *testing.T) {
	env := newTestEnv(t)
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.CreateInvite(env.Ctx, engine.InviteCreateOptions{EducatorID: "e1", CreatedByID: "manager", Date: "2026-02-18", StartTime: "10:00", EndTime: "11:00"})
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok > 1 {
		t.Fatalf("slot booked %d times", ok)
	}
	stored, err := env.Engine.ListInvites(env.Ctx, repo.InviteFilters{EducatorID: "e1", Date: "2026-02-18"})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != ok {
		t.Fatalf("expected %d stored invites, got %d", ok, len(stored))
	}
}

func TestInviteValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.InviteCreateOptions{
		{EducatorID: "e1", CreatedByID: "manager", Date: "2026-02-10", StartTime: "9am", EndTime: "10:00"},
		{EducatorID: "e1", CreatedByID: "manager", Date: "10/02/2026", StartTime: "09:00", EndTime: "10:00"},
		{EducatorID: "e1", CreatedByID: "manager", Date: "2026-02-10", StartTime: "11:00", EndTime: "10:00"},
		{CreatedByID: "manager", Date: "2026-02-10", StartTime: "11:00", EndTime: "12:00"},
	}
	for i, c := range cases {
		if _, err := env.Engine.CreateInvite(env.Ctx, c); !errors.Is(err, engine.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestEnrollmentConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.session(t, "c1", "2026-02-10", "09:00", "10:00", "e1")
	env.session(t, "c2", "2026-02-10", "09:30", "10:30", "e2")
	env.session(t, "c3", "2026-02-10", "10:00", "11:00", "e3")

	first, err := env.Engine.Enroll(env.Ctx, engine.EnrollOptions{LearnerID: "l1", ClassID: "c1", ActorID: "manager"})
	if err != nil {
		t.Fatalf("enroll c1: %v", err)
	}
	again, err := env.Engine.Enroll(env.Ctx, engine.EnrollOptions{LearnerID: "l1", ClassID: "c1", ActorID: "manager"})
	if err != nil || again.ID != first.ID {
		t.Fatalf("duplicate enroll should return existing row: %+v %v", again, err)
	}

	_, err = env.Engine.Enroll(env.Ctx, engine.EnrollOptions{LearnerID: "l1", ClassID: "c2", ActorID: "manager"})
	var conflict *engine.EnrollmentConflictError
	if !errors.As(err, &conflict) || conflict.ClassName != "Python" || !errors.Is(err, engine.ErrEnrollmentConflict) {
		t.Fatalf("expected conflict with Python, got %v", err)
	}
	// touching ranges do not conflict
	if _, err := env.Engine.Enroll(env.Ctx, engine.EnrollOptions{LearnerID: "l1", ClassID: "c3", ActorID: "manager"}); err != nil {
		t.Fatalf("enroll c3: %v", err)
	}

	if _, err := env.Engine.SetEnrollmentStatus(env.Ctx, first.ID, domain.EnrollmentDropped, "manager", false); err != nil {
		t.Fatalf("drop: %v", err)
	}
	// c3 overlaps c2, so enrolling needs force
	forced, err := env.Engine.Enroll(env.Ctx, engine.EnrollOptions{LearnerID: "l1", ClassID: "c2", ActorID: "manager", Force: true})
	if err != nil {
		t.Fatalf("forced enrol: %v", err)
	}
	if _, err := env.Engine.SetEnrollmentStatus(env.Ctx, first.ID, domain.EnrollmentActive, "manager", false); !errors.Is(err, engine.ErrEnrollmentConflict) {
		t.Fatalf("expected reactivation conflict, got %v", err)
	}
	if err := env.Engine.RemoveEnrollment(env.Ctx, forced.ID, "manager"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := env.Engine.SetEnrollmentStatus(env.Ctx, first.ID, domain.EnrollmentActive, "manager", false); err != nil {
		t.Fatalf("reactivate after removal: %v", err)
	}
	if err := env.Engine.RemoveEnrollment(env.Ctx, forced.ID, "manager"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAttendancePercentage(t *testing.T) {
	env := newTestEnv(t)
	s1 := env.session(t, "c1", "2026-02-10", "11:00", "12:00", "e1")
	s2 := env.session(t, "c1", "2026-02-17", "11:00", "12:00", "e1")
	env.session(t, "c1", "2026-04-07", "11:00", "12:00", "e1")

	if _, err := env.Engine.RecordAttendance(env.Ctx, engine.AttendanceOptions{SessionID: s1.ID, LearnerID: "l1", Status: domain.AttendanceAbsent, ActorID: "e1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RecordAttendance(env.Ctx, engine.AttendanceOptions{SessionID: s1.ID, LearnerID: "l1", Status: domain.AttendanceLate, ActorID: "e1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RecordAttendance(env.Ctx, engine.AttendanceOptions{SessionID: s2.ID, LearnerID: "l1", Status: "sleeping", ActorID: "e1"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	sum, err := env.Engine.AttendancePercentage(env.Ctx, "l1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	// s2 has no record and counts as absent; the April session has not happened yet
	if sum.SessionCount != 2 || sum.Percentage != 50 || len(sum.Records) != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestEducatorHours(t *testing.T) {
	env := newTestEnv(t)
	env.session(t, "c1", "2026-02-10", "11:00", "13:00", "e1", "e2")
	env.session(t, "c2", "2026-02-11", "11:00", "12:30", "e2")
	rows, err := env.Engine.EducatorHours(env.Ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two educators, got %+v", rows)
	}
	if rows[0].EducatorID != "e1" || rows[0].LeadHours != 2 || rows[0].TotalHours != 2 {
		t.Fatalf("unexpected e1 row %+v", rows[0])
	}
	if rows[1].EducatorID != "e2" || rows[1].CoachingHours != 2 || rows[1].LeadHours != 1.5 || rows[1].TotalHours != 3.5 {
		t.Fatalf("unexpected e2 row %+v", rows[1])
	}
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestInvoicePaymentsAndReports(t *testing.T) {
	env := newTestEnv(t)
	inv, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceCreateOptions{LearnerID: "l1", TermID: "t1", TotalAmount: money("800"), DueDate: "2026-01-15", Status: domain.InvoiceSent, ActorID: "finance"})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	paid, err := env.Engine.RecordPayment(env.Ctx, engine.PaymentOptions{InvoiceID: inv.ID, Amount: money("800"), PaidDate: "2026-01-28", ActorID: "finance"})
	if err != nil || paid.Status != domain.InvoicePaid || paid.PaidDate != "2026-01-28" {
		t.Fatalf("pay in full: %+v %v", paid, err)
	}

	other, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceCreateOptions{LearnerID: "l2", TotalAmount: money("300"), DueDate: "2026-02-01", Status: domain.InvoiceIssued, ActorID: "finance"})
	if err != nil {
		t.Fatal(err)
	}
	part, err := env.Engine.RecordPayment(env.Ctx, engine.PaymentOptions{InvoiceID: other.ID, Amount: money("100"), PaidDate: "2026-02-20", ActorID: "finance"})
	if err != nil || part.Status != domain.InvoicePartiallyPaid {
		t.Fatalf("partial payment: %+v %v", part, err)
	}
	if _, err := env.Engine.RecordPayment(env.Ctx, engine.PaymentOptions{InvoiceID: other.ID, Amount: money("250"), ActorID: "finance"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected overpayment rejection, got %v", err)
	}

	draft, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceCreateOptions{OrganizationID: "o1", TotalAmount: money("1000"), DueDate: "2026-01-31", ActorID: "finance"})
	if err != nil || draft.Status != domain.InvoiceDraft {
		t.Fatalf("create draft: %+v %v", draft, err)
	}
	if _, err := env.Engine.RecordPayment(env.Ctx, engine.PaymentOptions{InvoiceID: draft.ID, Amount: money("10"), ActorID: "finance"}); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected draft payment rejection, got %v", err)
	}

	if _, err := env.Engine.CreateExpense(env.Ctx, engine.ExpenseCreateOptions{Category: "rent", Amount: money("1900"), Date: "2026-02-12", ActorID: "finance"}); err != nil {
		t.Fatalf("create expense: %v", err)
	}

	rep, err := env.Engine.MonthlyFinance(env.Ctx, 2026)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Months[0].Income.Equal(money("800")) {
		t.Fatalf("january income %s", rep.Months[0].Income)
	}
	if !rep.Months[1].Income.Equal(money("100")) || !rep.Months[1].Expenses.Equal(money("1900")) || !rep.Months[1].Net.Equal(money("-1800")) {
		t.Fatalf("february %+v", rep.Months[1])
	}
	if !rep.Totals.Net.Equal(money("-1000")) || rep.Currency != "EUR" {
		t.Fatalf("totals %+v", rep)
	}

	learners, err := env.Engine.LearnersWithPendingPayments(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(learners) != 1 || learners[0].PayerID != "l2" || !learners[0].PendingAmount.Equal(money("200")) || !learners[0].IsOverdue {
		t.Fatalf("unexpected debtors %+v", learners)
	}
	orgs, err := env.Engine.OrganisationsWithPendingPayments(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	// drafts count as pending but never overdue
	if len(orgs) != 1 || orgs[0].PayerID != "o1" || orgs[0].IsOverdue {
		t.Fatalf("unexpected organisations %+v", orgs)
	}
}

func TestInvoiceStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	inv, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceCreateOptions{LearnerID: "l1", TotalAmount: money("50"), ActorID: "finance"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, inv.ID, domain.InvoicePaid, "finance", false); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected draft -> paid to fail, got %v", err)
	}
	sent, err := env.Engine.SetInvoiceStatus(env.Ctx, inv.ID, domain.InvoiceSent, "finance", false)
	if err != nil || sent.Status != domain.InvoiceSent {
		t.Fatalf("to sent: %+v %v", sent, err)
	}
	paid, err := env.Engine.SetInvoiceStatus(env.Ctx, inv.ID, domain.InvoicePaid, "finance", false)
	if err != nil || paid.PaidAmount == nil || !paid.PaidAmount.Equal(money("50")) || paid.PaidDate != "2026-03-10" {
		t.Fatalf("to paid: %+v %v", paid, err)
	}
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, inv.ID, domain.InvoiceCancelled, "finance", false); !errors.Is(err, engine.ErrInvalidTransition) {
		t.Fatalf("expected paid to be terminal, got %v", err)
	}
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, inv.ID, domain.InvoiceCancelled, "finance", true); err != nil {
		t.Fatalf("forced cancel: %v", err)
	}
	if _, err := env.Engine.SetInvoiceStatus(env.Ctx, inv.ID, "lost", "finance", true); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected unknown status rejection, got %v", err)
	}
	if _, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceCreateOptions{TotalAmount: money("50"), ActorID: "finance"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected payer required, got %v", err)
	}
	if _, err := env.Engine.CreateInvoice(env.Ctx, engine.InvoiceCreateOptions{LearnerID: "l1", TotalAmount: money("0"), ActorID: "finance"}); !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected positive total, got %v", err)
	}
}
