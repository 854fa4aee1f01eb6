package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"cwkhub/internal/config"
	"cwkhub/internal/db"
	"cwkhub/internal/domain"
	"cwkhub/internal/engine"
	"cwkhub/internal/migrate"
)

const testSecret = "test-secret"

var actor = map[string]string{"X-Actor-Id": "manager"}

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("acme"))
	e.Now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	if _, err := e.CreateTerm(ctx, engine.TermCreateOptions{ID: "t1", Name: "Spring", StartDate: "2026-01-05", EndDate: "2026-04-30", ActorID: "manager"}); err != nil {
		t.Fatalf("create term: %v", err)
	}
	for _, c := range []engine.ClassCreateOptions{
		{ID: "c1", Name: "Python", TermID: "t1", ActorID: "manager"},
		{ID: "c2", Name: "Robotics", TermID: "t1", ActorID: "manager"},
	} {
		if _, err := e.CreateClass(ctx, c); err != nil {
			t.Fatalf("create class: %v", err)
		}
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true, EnableDevLogin: true},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, data []byte) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v (%s)", err, data)
	}
	return env
}

func expectStatus(t *testing.T, res *http.Response, data []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("status %d, want %d: %s", res.StatusCode, want, data)
	}
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/metrics", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	if !strings.Contains(string(data), "cwkhub_http_requests_total") {
		t.Fatalf("metrics missing request counter:\n%s", data)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/invites", nil, nil)
	expectStatus(t, res, data, http.StatusUnauthorized)
	if got := decodeError(t, data).Error.Code; got != "unauthorized" {
		t.Fatalf("code %q", got)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/invites", nil, map[string]string{"Authorization": "Bearer nope"})
	expectStatus(t, res, data, http.StatusUnauthorized)
	if got := decodeError(t, data).Error.Code; got != "invalid_credentials" {
		t.Fatalf("code %q", got)
	}
}

func TestDevTokenRoundTrip(t *testing.T) {
	token, err := signDevToken("test-secret", "coach-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	p, err := authenticateJWT(token, "test-secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p != (Principal{ActorID: "coach-1", Source: "jwt"}) {
		t.Fatalf("unexpected principal %+v", p)
	}
	if _, err := authenticateJWT(token, "other-secret"); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestDevLoginAndAPIKey(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "coach-1"}, nil)
	expectStatus(t, res, data, http.StatusOK)
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("login: %v %s", err, data)
	}
	bearer := map[string]string{"Authorization": "Bearer " + login.Token}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/me/api-keys", map[string]any{"name": "laptop"}, bearer)
	expectStatus(t, res, data, http.StatusCreated)
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.ActorID != "coach-1" || !strings.HasPrefix(key.Key, "cwk_") {
		t.Fatalf("unexpected key %+v", key)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/invites", map[string]any{
		"educator_id": "alice",
		"date":        "2026-02-10",
		"start_time":  "14:00",
		"end_time":    "15:00",
	}, map[string]string{"X-Api-Key": key.Key})
	expectStatus(t, res, data, http.StatusCreated)
	var inv domain.CoachingInvite
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("unmarshal invite: %v", err)
	}
	if inv.CreatedByID != "coach-1" {
		t.Fatalf("created_by %q", inv.CreatedByID)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me/api-keys", nil, bearer)
	expectStatus(t, res, data, http.StatusOK)
	var keys []APIKeyResponse
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatalf("unmarshal keys: %v", err)
	}
	if len(keys) != 1 || keys[0].Key != "" {
		t.Fatalf("listed keys %+v", keys)
	}

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/me/api-keys/"+key.ID, nil, bearer)
	expectStatus(t, res, data, http.StatusNoContent)
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/invites", nil, map[string]string{"X-Api-Key": key.Key})
	expectStatus(t, res, data, http.StatusUnauthorized)
}

func TestInviteLifecycle(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	// 2026-02-10 is a Tuesday.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", map[string]any{
		"class_id":         "c1",
		"date":             "2026-02-10",
		"start_time":       "09:00",
		"end_time":         "10:00",
		"lead_educator_id": "alice",
	}, actor)
	expectStatus(t, res, data, http.StatusCreated)
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	if sess.DurationHours != 1 {
		t.Fatalf("duration %v", sess.DurationHours)
	}

	slot := map[string]any{"educator_id": "alice", "date": "2026-02-10", "start_time": "09:30", "end_time": "10:30"}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/availability/check", slot, actor)
	expectStatus(t, res, data, http.StatusOK)
	var av struct {
		Available          bool            `json:"available"`
		Reason             string          `json:"reason"`
		ConflictingSession *domain.Session `json:"conflicting_session"`
	}
	if err := json.Unmarshal(data, &av); err != nil {
		t.Fatalf("unmarshal availability: %v", err)
	}
	if av.Available || av.ConflictingSession == nil || av.ConflictingSession.ID != sess.ID {
		t.Fatalf("expected session conflict, got %s", data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/invites", slot, actor)
	expectStatus(t, res, data, http.StatusConflict)
	env := decodeError(t, data)
	if env.Error.Code != "slot_unavailable" || env.Error.Details["conflicting_session_id"] != sess.ID {
		t.Fatalf("unexpected error %s", data)
	}

	slot["start_time"], slot["end_time"] = "11:00", "12:00"
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/invites", slot, actor)
	expectStatus(t, res, data, http.StatusCreated)
	var inv domain.CoachingInvite
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("unmarshal invite: %v", err)
	}
	if inv.Status != domain.InvitePending {
		t.Fatalf("status %q", inv.Status)
	}

	// A second invite over the first one clashes with it.
	slot["start_time"], slot["end_time"] = "11:30", "12:30"
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/invites", slot, actor)
	expectStatus(t, res, data, http.StatusConflict)
	if got := decodeError(t, data).Error.Details["conflicting_invite_id"]; got != inv.ID {
		t.Fatalf("conflicting invite %v", got)
	}

	// Moving the invite onto itself is allowed.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/invites/"+inv.ID, map[string]any{
		"date": "2026-02-10", "start_time": "11:30", "end_time": "12:30",
	}, actor)
	expectStatus(t, res, data, http.StatusOK)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/invites/"+inv.ID+"/respond", map[string]any{"status": "accepted"}, actor)
	expectStatus(t, res, data, http.StatusOK)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/invites/"+inv.ID+"/respond", map[string]any{"status": "declined"}, actor)
	expectStatus(t, res, data, http.StatusUnprocessableEntity)
	if got := decodeError(t, data).Error.Code; got != "invalid_transition" {
		t.Fatalf("code %q", got)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/invites?educator_id=alice&status=accepted", nil, actor)
	expectStatus(t, res, data, http.StatusOK)
	var listed []domain.CoachingInvite
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal invites: %v", err)
	}
	if len(listed) != 1 || listed[0].StartTime != "11:30" {
		t.Fatalf("listed %+v", listed)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/metrics", nil, nil)
	expectStatus(t, res, data, http.StatusOK)
	for _, want := range []string{`cwkhub_slot_conflicts_total{kind="session"} 2`, `cwkhub_slot_conflicts_total{kind="invite"} 1`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestCompulsoryBlockRejected(t *testing.T) {
	srv := newTestServer(t)
	// 2026-02-09 is a Monday.
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/invites", map[string]any{
		"educator_id": "bob",
		"date":        "2026-02-09",
		"start_time":  "09:30",
		"end_time":    "10:30",
	}, actor)
	expectStatus(t, res, data, http.StatusConflict)
	if got := decodeError(t, data).Error.Details["block_id"]; got != "team-meeting" {
		t.Fatalf("block_id %v", got)
	}
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/invites", map[string]any{
		"educator_id": "alice", "date": "2026-02-10", "start_time": "9am", "end_time": "10:00",
	}, actor)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/invoices", map[string]any{
		"learner_id": "l1", "total_amount": "lots",
	}, actor)
	expectStatus(t, res, data, http.StatusBadRequest)
	if got := decodeError(t, data).Error.Code; got != "bad_request" {
		t.Fatalf("code %q", got)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/invoices/missing", nil, actor)
	expectStatus(t, res, data, http.StatusNotFound)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?cursor=abc", nil, actor)
	expectStatus(t, res, data, http.StatusBadRequest)
}

func TestEnrollmentConflictEndpoint(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	for _, s := range []map[string]any{
		{"class_id": "c1", "date": "2026-02-10", "start_time": "14:00", "end_time": "15:00", "lead_educator_id": "alice"},
		{"class_id": "c2", "date": "2026-02-10", "start_time": "14:30", "end_time": "15:30", "lead_educator_id": "bob"},
	} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/sessions", s, actor)
		expectStatus(t, res, data, http.StatusCreated)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{"learner_id": "l1", "class_id": "c1"}, actor)
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/enrollments/conflict", map[string]any{"learner_id": "l1", "class_id": "c2"}, actor)
	expectStatus(t, res, data, http.StatusOK)
	var check EnrollmentConflictResponse
	if err := json.Unmarshal(data, &check); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !check.Conflict || check.ClassName != "Python" {
		t.Fatalf("conflict %+v", check)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/enrollments", map[string]any{"learner_id": "l1", "class_id": "c2"}, actor)
	expectStatus(t, res, data, http.StatusConflict)
	if got := decodeError(t, data).Error.Details["class_name"]; got != "Python" {
		t.Fatalf("class_name %v", got)
	}
}

func TestFinanceReports(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/invoices", map[string]any{
		"learner_id":   "l1",
		"total_amount": "800.00",
		"due_date":     "2026-01-15",
		"status":       "issued",
	}, actor)
	expectStatus(t, res, data, http.StatusCreated)
	var inv InvoiceResponse
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("unmarshal invoice: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/invoices/"+inv.ID+"/payments", map[string]any{
		"amount": "300", "paid_date": "2026-02-01",
	}, actor)
	expectStatus(t, res, data, http.StatusOK)
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("unmarshal invoice: %v", err)
	}
	if inv.Status != domain.InvoicePartiallyPaid || inv.PaidAmount == nil || *inv.PaidAmount != "300.00" {
		t.Fatalf("after payment %+v", inv)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/invoices/"+inv.ID+"/payments", map[string]any{"amount": "900"}, actor)
	expectStatus(t, res, data, http.StatusBadRequest)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/expenses", map[string]any{
		"category": "rent", "amount": "100", "date": "2026-02-20",
	}, actor)
	expectStatus(t, res, data, http.StatusCreated)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/finance/2026", nil, actor)
	expectStatus(t, res, data, http.StatusOK)
	var rep FinanceReportResponse
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(rep.Months) != 12 {
		t.Fatalf("months %d", len(rep.Months))
	}
	feb := rep.Months[1]
	if feb.Name != "February" || feb.Income != "300.00" || feb.Expenses != "100.00" || feb.Net != "200.00" {
		t.Fatalf("february %+v", feb)
	}
	if rep.Totals.Net != "200.00" || rep.Currency != "EUR" {
		t.Fatalf("totals %+v currency %q", rep.Totals, rep.Currency)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/pending-payments/learners", nil, actor)
	expectStatus(t, res, data, http.StatusOK)
	var pending []PendingPaymentResponse
	if err := json.Unmarshal(data, &pending); err != nil {
		t.Fatalf("unmarshal pending: %v", err)
	}
	if len(pending) != 1 || pending[0].PayerID != "l1" || pending[0].PendingAmount != "500.00" || !pending[0].IsOverdue {
		t.Fatalf("pending %+v", pending)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/reports/pending-payments/organisations", nil, actor)
	expectStatus(t, res, data, http.StatusOK)
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("organisations %s", data)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/invoices/"+inv.ID+"/status", map[string]any{"status": "draft"}, actor)
	expectStatus(t, res, data, http.StatusUnprocessableEntity)
}

func TestEventsPagination(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?limit=2", nil, actor)
	expectStatus(t, res, data, http.StatusOK)
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	// term + two classes were created by the fixture
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("first page %+v", page)
	}
	if page.Items[0].Type != "class.created" {
		t.Fatalf("newest event %q", page.Items[0].Type)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events?limit=2&cursor="+page.NextCursor, nil, actor)
	expectStatus(t, res, data, http.StatusOK)
	page = paginatedEvents{}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Type != "term.created" || page.NextCursor != "" {
		t.Fatalf("second page %+v", page)
	}
}
