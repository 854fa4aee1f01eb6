package repo

import (
	"context"
	"database/sql"
	"sort"

	"cwkhub/internal/domain"
)

func (r Repo) InsertTerm(ctx context.Context, tx *sql.Tx, t domain.Term) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO terms(id,name,start_date,end_date,created_at) VALUES (?,?,?,?,?)`,
		t.ID, t.Name, t.StartDate, t.EndDate, t.CreatedAt)
	return err
}

func (r Repo) GetTerm(ctx context.Context, id string) (domain.Term, error) {
	var t domain.Term
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,start_date,end_date,created_at FROM terms WHERE id=?`, id).
		Scan(&t.ID, &t.Name, &t.StartDate, &t.EndDate, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) ListTerms(ctx context.Context) ([]domain.Term, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,start_date,end_date,created_at FROM terms ORDER BY start_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Term
	for rows.Next() {
		var t domain.Term
		if err := rows.Scan(&t.ID, &t.Name, &t.StartDate, &t.EndDate, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertClass(ctx context.Context, tx *sql.Tx, c domain.Class) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO classes(id,name,term_id,learning_track,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.Name, c.TermID, nullable(c.LearningTrack), c.CreatedAt)
	return err
}

const classColumns = `id,name,term_id,COALESCE(learning_track,''),created_at`

func (r Repo) GetClass(ctx context.Context, id string) (domain.Class, error) {
	var c domain.Class
	err := r.DB.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id=?`, id).
		Scan(&c.ID, &c.Name, &c.TermID, &c.LearningTrack, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// ListClasses returns classes, optionally limited to one term.
func (r Repo) ListClasses(ctx context.Context, termID string) ([]domain.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes`
	var args []any
	if termID != "" {
		query += ` WHERE term_id=?`
		args = append(args, termID)
	}
	rows, err := r.DB.QueryContext(ctx, query+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Class
	for rows.Next() {
		var c domain.Class
		if err := rows.Scan(&c.ID, &c.Name, &c.TermID, &c.LearningTrack, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// InsertSession stores the session and its assistant set.
func (r Repo) InsertSession(ctx context.Context, tx *sql.Tx, s domain.Session) error {
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO sessions(id,class_id,term_id,date,start_time,end_time,lead_educator_id,duration_hours,learning_track,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ClassID, s.TermID, s.Date, s.StartTime, s.EndTime, s.LeadEducatorID, s.DurationHours, nullable(s.LearningTrack), s.CreatedAt); err != nil {
		return err
	}
	for _, a := range s.AssistantEducatorIDs {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO session_assistants(session_id,educator_id) VALUES (?,?)`, s.ID, a); err != nil {
			return err
		}
	}
	return nil
}

const sessionColumns = `id,class_id,term_id,date,start_time,end_time,lead_educator_id,duration_hours,COALESCE(learning_track,''),created_at`

func scanSession(sc interface{ Scan(...any) error }) (domain.Session, error) {
	var s domain.Session
	err := sc.Scan(&s.ID, &s.ClassID, &s.TermID, &s.Date, &s.StartTime, &s.EndTime, &s.LeadEducatorID, &s.DurationHours, &s.LearningTrack, &s.CreatedAt)
	return s, err
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	s, err := scanSession(r.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	assistants, err := r.assistantsFor(ctx, nil, []string{s.ID})
	if err != nil {
		return s, err
	}
	s.AssistantEducatorIDs = assistants[s.ID]
	return s, nil
}

type SessionFilters struct {
	TermID  string
	ClassID string
	Date    string
	// EducatorID matches lead or assistant.
	EducatorID string
}

// ListSessions returns sessions ordered by date, start time then id.
// ListSessions reads through tx when given so availability checks see the
// same snapshot the following write commits against.
func (r Repo) ListSessions(ctx context.Context, tx *sql.Tx, f SessionFilters) ([]domain.Session, error) {
	var clauses []string
	var args []any
	if f.TermID != "" {
		clauses = append(clauses, "term_id=?")
		args = append(args, f.TermID)
	}
	if f.ClassID != "" {
		clauses = append(clauses, "class_id=?")
		args = append(args, f.ClassID)
	}
	if f.Date != "" {
		clauses = append(clauses, "date=?")
		args = append(args, f.Date)
	}
	if f.EducatorID != "" {
		clauses = append(clauses, "(lead_educator_id=? OR id IN (SELECT session_id FROM session_assistants WHERE educator_id=?))")
		args = append(args, f.EducatorID, f.EducatorID)
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions `+whereClause(clauses)+` ORDER BY date, start_time, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Session
	var ids []string
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return res, nil
	}
	assistants, err := r.assistantsFor(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].AssistantEducatorIDs = assistants[res[i].ID]
	}
	return res, nil
}

func (r Repo) assistantsFor(ctx context.Context, tx *sql.Tx, sessionIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}
	want := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		want[id] = true
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT session_id,educator_id FROM session_assistants ORDER BY session_id, educator_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sid, eid string
		if err := rows.Scan(&sid, &eid); err != nil {
			return nil, err
		}
		if want[sid] {
			out[sid] = append(out[sid], eid)
		}
	}
	for _, v := range out {
		sort.Strings(v)
	}
	return out, rows.Err()
}

func (r Repo) InsertInvite(ctx context.Context, tx *sql.Tx, inv domain.CoachingInvite) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO coaching_invites(id,educator_id,created_by_id,date,start_time,end_time,status,title,notes,created_at,updated_at,responded_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		inv.ID, inv.EducatorID, inv.CreatedByID, inv.Date, inv.StartTime, inv.EndTime, inv.Status, nullable(inv.Title), nullable(inv.Notes), inv.CreatedAt, inv.UpdatedAt, respondedAt(inv))
	return err
}

func (r Repo) UpdateInvite(ctx context.Context, tx *sql.Tx, inv domain.CoachingInvite) error {
	return affected(r.q(tx).ExecContext(ctx, `UPDATE coaching_invites SET date=?, start_time=?, end_time=?, status=?, title=?, notes=?, updated_at=?, responded_at=? WHERE id=?`,
		inv.Date, inv.StartTime, inv.EndTime, inv.Status, nullable(inv.Title), nullable(inv.Notes), inv.UpdatedAt, respondedAt(inv), inv.ID))
}

func respondedAt(inv domain.CoachingInvite) any {
	if inv.RespondedAt == nil {
		return nil
	}
	return *inv.RespondedAt
}

const inviteColumns = `id,educator_id,created_by_id,date,start_time,end_time,status,COALESCE(title,''),COALESCE(notes,''),created_at,updated_at,responded_at`

func scanInvite(sc interface{ Scan(...any) error }) (domain.CoachingInvite, error) {
	var inv domain.CoachingInvite
	var responded sql.NullString
	err := sc.Scan(&inv.ID, &inv.EducatorID, &inv.CreatedByID, &inv.Date, &inv.StartTime, &inv.EndTime, &inv.Status, &inv.Title, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt, &responded)
	if responded.Valid {
		v := responded.String
		inv.RespondedAt = &v
	}
	return inv, err
}

func (r Repo) GetInvite(ctx context.Context, tx *sql.Tx, id string) (domain.CoachingInvite, error) {
	inv, err := scanInvite(r.q(tx).QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM coaching_invites WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	return inv, err
}

type InviteFilters struct {
	EducatorID string
	Date       string
	Status     string
}

func (r Repo) ListInvites(ctx context.Context, tx *sql.Tx, f InviteFilters) ([]domain.CoachingInvite, error) {
	var clauses []string
	var args []any
	if f.EducatorID != "" {
		clauses = append(clauses, "educator_id=?")
		args = append(args, f.EducatorID)
	}
	if f.Date != "" {
		clauses = append(clauses, "date=?")
		args = append(args, f.Date)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+inviteColumns+` FROM coaching_invites `+whereClause(clauses)+` ORDER BY date, start_time, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CoachingInvite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}
