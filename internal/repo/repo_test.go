package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"cwkhub/internal/config"
	"cwkhub/internal/db"
	"cwkhub/internal/domain"
	"cwkhub/internal/migrate"
	"cwkhub/internal/repo"
)

const ts = "2026-01-05T08:00:00Z"

func newRepo(t *testing.T) (repo.Repo, context.Context) {
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
	r := repo.Repo{DB: conn}
	if err := r.InsertTerm(ctx, nil, domain.Term{ID: "t1", Name: "Spring", StartDate: "2026-01-05", EndDate: "2026-03-27", CreatedAt: ts}); err != nil {
		t.Fatalf("insert term: %v", err)
	}
	for _, c := range []domain.Class{{ID: "c1", Name: "Python", TermID: "t1", CreatedAt: ts}, {ID: "c2", Name: "Design", TermID: "t1", CreatedAt: ts}} {
		if err := r.InsertClass(ctx, nil, c); err != nil {
			t.Fatalf("insert class: %v", err)
		}
	}
	return r, ctx
}

func TestSessionsRoundTripAssistants(t *testing.T) {
	r, ctx := newRepo(t)
	sessions := []domain.Session{
		{ID: "s2", ClassID: "c1", TermID: "t1", Date: "2026-02-10", StartTime: "11:00", EndTime: "12:00", LeadEducatorID: "e1", DurationHours: 1, CreatedAt: ts},
		{ID: "s1", ClassID: "c2", TermID: "t1", Date: "2026-02-10", StartTime: "09:00", EndTime: "10:00", LeadEducatorID: "e2", AssistantEducatorIDs: []string{"e3", "e1", "e3"}, DurationHours: 1, CreatedAt: ts},
	}
	for _, s := range sessions {
		if err := r.InsertSession(ctx, nil, s); err != nil {
			t.Fatalf("insert session: %v", err)
		}
	}
	got, err := r.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.AssistantEducatorIDs) != 2 || got.AssistantEducatorIDs[0] != "e1" || got.AssistantEducatorIDs[1] != "e3" {
		t.Fatalf("unexpected assistants %v", got.AssistantEducatorIDs)
	}
	list, err := r.ListSessions(ctx, nil, repo.SessionFilters{EducatorID: "e1", Date: "2026-02-10"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "s1" || list[1].ID != "s2" {
		t.Fatalf("expected both sessions ordered by start, got %+v", list)
	}
	list, err = r.ListSessions(ctx, nil, repo.SessionFilters{EducatorID: "e2"})
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one session for e2: %v %v", list, err)
	}
	if _, err := r.GetSession(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInviteUpdate(t *testing.T) {
	r, ctx := newRepo(t)
	inv := domain.CoachingInvite{ID: "i1", EducatorID: "e1", CreatedByID: "m1", Date: "2026-02-10", StartTime: "13:00", EndTime: "14:00", Status: domain.InvitePending, CreatedAt: ts, UpdatedAt: ts}
	if err := r.InsertInvite(ctx, nil, inv); err != nil {
		t.Fatalf("insert: %v", err)
	}
	when := "2026-02-09T10:00:00Z"
	inv.Status = domain.InviteAccepted
	inv.RespondedAt = &when
	if err := r.UpdateInvite(ctx, nil, inv); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := r.GetInvite(ctx, nil, "i1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.InviteAccepted || got.RespondedAt == nil || *got.RespondedAt != when {
		t.Fatalf("unexpected invite %+v", got)
	}
	if err := r.UpdateInvite(ctx, nil, domain.CoachingInvite{ID: "nope"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	pending, err := r.ListInvites(ctx, nil, repo.InviteFilters{EducatorID: "e1", Status: domain.InvitePending})
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected no pending invites: %v %v", pending, err)
	}
}

func TestEnrollmentUniqueAndAttendanceUpsert(t *testing.T) {
	r, ctx := newRepo(t)
	e := domain.ClassEnrollment{ID: "en1", LearnerID: "l1", ClassID: "c1", TermID: "t1", Status: domain.EnrollmentActive, CreatedAt: ts, UpdatedAt: ts}
	if err := r.InsertEnrollment(ctx, nil, e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	e.ID = "en2"
	if err := r.InsertEnrollment(ctx, nil, e); err == nil {
		t.Fatalf("expected unique violation")
	}
	found, err := r.FindEnrollment(ctx, nil, "l1", "c1", "t1")
	if err != nil || found.ID != "en1" {
		t.Fatalf("find: %+v %v", found, err)
	}

	if err := r.InsertSession(ctx, nil, domain.Session{ID: "s1", ClassID: "c1", TermID: "t1", Date: "2026-02-10", StartTime: "09:00", EndTime: "10:00", LeadEducatorID: "e1", DurationHours: 1, CreatedAt: ts}); err != nil {
		t.Fatal(err)
	}
	for _, status := range []string{domain.AttendanceAbsent, domain.AttendanceLate} {
		if err := r.UpsertAttendance(ctx, nil, domain.AttendanceRecord{SessionID: "s1", LearnerID: "l1", Status: status, RecordedAt: ts}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	recs, err := r.ListAttendance(ctx, repo.AttendanceFilters{LearnerID: "l1", ClassID: "c1"})
	if err != nil || len(recs) != 1 || recs[0].Status != domain.AttendanceLate {
		t.Fatalf("unexpected attendance %+v %v", recs, err)
	}
}

func TestInvoiceMoneyRoundTrip(t *testing.T) {
	r, ctx := newRepo(t)
	paid := decimal.RequireFromString("120.35")
	inv := domain.Invoice{ID: "inv1", LearnerID: "l1", TotalAmount: decimal.RequireFromString("300.10"), PaidAmount: &paid, Status: domain.InvoicePartiallyPaid, DueDate: "2026-03-01", CreatedAt: ts, UpdatedAt: ts}
	if err := r.InsertInvoice(ctx, nil, inv); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetInvoice(ctx, nil, "inv1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.TotalAmount.Equal(inv.TotalAmount) || got.PaidAmount == nil || !got.PaidAmount.Equal(paid) {
		t.Fatalf("unexpected amounts %+v", got)
	}
	if err := r.InsertExpense(ctx, nil, domain.Expense{ID: "x1", Category: "rent", Amount: decimal.RequireFromString("1900"), Date: "2026-02-12", CreatedAt: ts}); err != nil {
		t.Fatalf("insert expense: %v", err)
	}
	exps, err := r.ListExpenses(ctx, repo.ExpenseFilters{From: "2026-01-01", To: "2026-12-31"})
	if err != nil || len(exps) != 1 || !exps[0].Amount.Equal(decimal.NewFromInt(1900)) {
		t.Fatalf("unexpected expenses %+v %v", exps, err)
	}
}

func TestOrgConfigAndAPIKeys(t *testing.T) {
	r, ctx := newRepo(t)
	if _, err := r.GetOrgConfig(ctx, "acme"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := r.UpsertOrgConfig(ctx, nil, config.Default("acme")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	cfg, err := r.GetOrgConfig(ctx, "acme")
	if err != nil || len(cfg.Blocks()) != 2 {
		t.Fatalf("get config: %+v %v", cfg, err)
	}
	ids, err := r.ListOrgIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "acme" {
		t.Fatalf("org ids: %v %v", ids, err)
	}

	hash := repo.HashAPIKey("secret")
	if err := r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", ActorID: "m1", KeyHash: hash}); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	key, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(" secret "))
	if err != nil || key.ActorID != "m1" {
		t.Fatalf("lookup: %+v %v", key, err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
