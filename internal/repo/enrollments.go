package repo

import (
	"context"
	"database/sql"

	"cwkhub/internal/domain"
)

func (r Repo) InsertEnrollment(ctx context.Context, tx *sql.Tx, e domain.ClassEnrollment) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO enrollments(id,learner_id,class_id,term_id,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.LearnerID, e.ClassID, e.TermID, e.Status, e.CreatedAt, e.UpdatedAt)
	return err
}

const enrollmentColumns = `id,learner_id,class_id,term_id,status,created_at,updated_at`

func scanEnrollment(sc interface{ Scan(...any) error }) (domain.ClassEnrollment, error) {
	var e domain.ClassEnrollment
	err := sc.Scan(&e.ID, &e.LearnerID, &e.ClassID, &e.TermID, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r Repo) GetEnrollment(ctx context.Context, tx *sql.Tx, id string) (domain.ClassEnrollment, error) {
	e, err := scanEnrollment(r.q(tx).QueryRowContext(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

// FindEnrollment looks up the unique (learner, class, term) row.
func (r Repo) FindEnrollment(ctx context.Context, tx *sql.Tx, learnerID, classID, termID string) (domain.ClassEnrollment, error) {
	e, err := scanEnrollment(r.q(tx).QueryRowContext(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE learner_id=? AND class_id=? AND term_id=?`, learnerID, classID, termID))
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) UpdateEnrollmentStatus(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	return affected(r.q(tx).ExecContext(ctx, `UPDATE enrollments SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id))
}

func (r Repo) DeleteEnrollment(ctx context.Context, tx *sql.Tx, id string) error {
	return affected(r.q(tx).ExecContext(ctx, `DELETE FROM enrollments WHERE id=?`, id))
}

type EnrollmentFilters struct {
	LearnerID string
	ClassID   string
	TermID    string
	Status    string
}

func (r Repo) ListEnrollments(ctx context.Context, f EnrollmentFilters) ([]domain.ClassEnrollment, error) {
	var clauses []string
	var args []any
	if f.LearnerID != "" {
		clauses = append(clauses, "learner_id=?")
		args = append(args, f.LearnerID)
	}
	if f.ClassID != "" {
		clauses = append(clauses, "class_id=?")
		args = append(args, f.ClassID)
	}
	if f.TermID != "" {
		clauses = append(clauses, "term_id=?")
		args = append(args, f.TermID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+enrollmentColumns+` FROM enrollments `+whereClause(clauses)+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ClassEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// UpsertAttendance keeps one record per (session, learner); the latest write wins.
func (r Repo) UpsertAttendance(ctx context.Context, tx *sql.Tx, a domain.AttendanceRecord) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO attendance(session_id,learner_id,status,recorded_at) VALUES (?,?,?,?)
ON CONFLICT(session_id,learner_id) DO UPDATE SET status=excluded.status, recorded_at=excluded.recorded_at`,
		a.SessionID, a.LearnerID, a.Status, a.RecordedAt)
	return err
}

type AttendanceFilters struct {
	LearnerID string
	SessionID string
	ClassID   string
}

func (r Repo) ListAttendance(ctx context.Context, f AttendanceFilters) ([]domain.AttendanceRecord, error) {
	var clauses []string
	var args []any
	if f.LearnerID != "" {
		clauses = append(clauses, "a.learner_id=?")
		args = append(args, f.LearnerID)
	}
	if f.SessionID != "" {
		clauses = append(clauses, "a.session_id=?")
		args = append(args, f.SessionID)
	}
	if f.ClassID != "" {
		clauses = append(clauses, "s.class_id=?")
		args = append(args, f.ClassID)
	}
	query := `SELECT a.session_id,a.learner_id,a.status,a.recorded_at FROM attendance a JOIN sessions s ON s.id=a.session_id ` +
		whereClause(clauses) + ` ORDER BY s.date, s.start_time, a.learner_id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AttendanceRecord
	for rows.Next() {
		var a domain.AttendanceRecord
		if err := rows.Scan(&a.SessionID, &a.LearnerID, &a.Status, &a.RecordedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
