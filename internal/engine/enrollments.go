package engine

import (
	"context"
	"errors"
	"fmt"

	"cwkhub/internal/domain"
	"cwkhub/internal/events"
	"cwkhub/internal/repo"
	"cwkhub/internal/scheduling"
	"cwkhub/internal/timeutil"
)

// EnrollmentConflictError names the class whose sessions clash with the requested one.
type EnrollmentConflictError struct {
	ClassName string
}

func (e *EnrollmentConflictError) Error() string {
	return fmt.Sprintf("%s: sessions overlap with %s", ErrEnrollmentConflict, e.ClassName)
}

func (e *EnrollmentConflictError) Unwrap() error { return ErrEnrollmentConflict }

// CheckEnrollmentConflict reports the first class the learner is actively
// enrolled in, in classID's term, whose sessions overlap classID's sessions.
func (e Engine) CheckEnrollmentConflict(ctx context.Context, learnerID, classID string) (string, bool, error) {
	class, err := e.Repo.GetClass(ctx, classID)
	if err != nil {
		return "", false, err
	}
	return e.enrollmentConflict(ctx, learnerID, class)
}

func (e Engine) enrollmentConflict(ctx context.Context, learnerID string, class domain.Class) (string, bool, error) {
	enrollments, err := e.Repo.ListEnrollments(ctx, repo.EnrollmentFilters{LearnerID: learnerID, TermID: class.TermID})
	if err != nil {
		return "", false, err
	}
	sessions, err := e.Repo.ListSessions(ctx, nil, repo.SessionFilters{TermID: class.TermID})
	if err != nil {
		return "", false, err
	}
	classes, err := e.Repo.ListClasses(ctx, class.TermID)
	if err != nil {
		return "", false, err
	}
	byClass := map[string][]domain.Session{}
	for _, s := range sessions {
		byClass[s.ClassID] = append(byClass[s.ClassID], s)
	}
	names := make(map[string]string, len(classes))
	for _, c := range classes {
		names[c.ID] = c.Name
	}
	name, ok := scheduling.ConflictOtherClassName(learnerID, class.ID, class.TermID, enrollments,
		func(id string) (string, bool) { n, ok := names[id]; return n, ok },
		func(id string) []domain.Session { return byClass[id] })
	return name, ok, nil
}

type EnrollOptions struct {
	LearnerID string `validate:"required"`
	ClassID   string `validate:"required"`
	ActorID   string `validate:"required"`
	// Force enrols even when sessions overlap another active enrolment.
	Force bool
}

// Enroll adds the learner to the class for the class's term. Enrolling twice
// returns the existing row unchanged.
func (e Engine) Enroll(ctx context.Context, opts EnrollOptions) (domain.ClassEnrollment, error) {
	if err := check(opts); err != nil {
		return domain.ClassEnrollment{}, err
	}
	class, err := e.Repo.GetClass(ctx, opts.ClassID)
	if err != nil {
		return domain.ClassEnrollment{}, err
	}
	existing, err := e.Repo.FindEnrollment(ctx, nil, opts.LearnerID, class.ID, class.TermID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.ClassEnrollment{}, err
	}
	if !opts.Force {
		name, clash, err := e.enrollmentConflict(ctx, opts.LearnerID, class)
		if err != nil {
			return domain.ClassEnrollment{}, err
		}
		if clash {
			return domain.ClassEnrollment{}, &EnrollmentConflictError{ClassName: name}
		}
	}
	now := e.stamp()
	en := domain.ClassEnrollment{
		ID:        newID(),
		LearnerID: opts.LearnerID,
		ClassID:   class.ID,
		TermID:    class.TermID,
		Status:    domain.EnrollmentActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return en, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEnrollment(ctx, tx, en); err != nil {
		return en, fmt.Errorf("insert enrollment: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.EnrollmentCreated, "enrollment", en.ID, opts.ActorID, events.EventPayload{
		"learner_id": en.LearnerID,
		"class_id":   en.ClassID,
		"term_id":    en.TermID,
		"forced":     opts.Force,
	}); err != nil {
		return en, err
	}
	return en, tx.Commit()
}

func validEnrollmentStatus(s string) bool {
	switch s {
	case domain.EnrollmentActive, domain.EnrollmentDropped, domain.EnrollmentCompleted:
		return true
	}
	return false
}

// SetEnrollmentStatus changes the lifecycle state. Reactivating an enrolment
// runs the overlap check again unless force is set.
func (e Engine) SetEnrollmentStatus(ctx context.Context, id, status, actorID string, force bool) (domain.ClassEnrollment, error) {
	if !validEnrollmentStatus(status) {
		return domain.ClassEnrollment{}, fmt.Errorf("%w: status must be active, dropped or completed", ErrValidation)
	}
	en, err := e.Repo.GetEnrollment(ctx, nil, id)
	if err != nil {
		return en, err
	}
	if en.Status == status {
		return en, nil
	}
	if status == domain.EnrollmentActive && !force {
		class, err := e.Repo.GetClass(ctx, en.ClassID)
		if err != nil {
			return en, err
		}
		name, clash, err := e.enrollmentConflict(ctx, en.LearnerID, class)
		if err != nil {
			return en, err
		}
		if clash {
			return en, &EnrollmentConflictError{ClassName: name}
		}
	}
	from := en.Status
	en.Status = status
	en.UpdatedAt = e.stamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return en, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateEnrollmentStatus(ctx, tx, en.ID, en.Status, en.UpdatedAt); err != nil {
		return en, err
	}
	if err := e.writer().Append(ctx, tx, events.EnrollmentUpdated, "enrollment", en.ID, actorID, events.EventPayload{"from": from, "to": status}); err != nil {
		return en, err
	}
	return en, tx.Commit()
}

func (e Engine) RemoveEnrollment(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	en, err := e.Repo.GetEnrollment(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteEnrollment(ctx, tx, id); err != nil {
		return err
	}
	if err := e.writer().Append(ctx, tx, events.EnrollmentRemoved, "enrollment", id, actorID, events.EventPayload{
		"learner_id": en.LearnerID,
		"class_id":   en.ClassID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListEnrollments(ctx context.Context, f repo.EnrollmentFilters) ([]domain.ClassEnrollment, error) {
	return e.Repo.ListEnrollments(ctx, f)
}

type AttendanceOptions struct {
	SessionID string `validate:"required"`
	LearnerID string `validate:"required"`
	Status    string `validate:"required,oneof=present late absent excused"`
	ActorID   string `validate:"required"`
}

// RecordAttendance stores the learner's status for a session, replacing any earlier record.
func (e Engine) RecordAttendance(ctx context.Context, opts AttendanceOptions) (domain.AttendanceRecord, error) {
	if err := check(opts); err != nil {
		return domain.AttendanceRecord{}, err
	}
	if _, err := e.Repo.GetSession(ctx, opts.SessionID); err != nil {
		return domain.AttendanceRecord{}, err
	}
	rec := domain.AttendanceRecord{SessionID: opts.SessionID, LearnerID: opts.LearnerID, Status: opts.Status, RecordedAt: e.stamp()}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rec, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertAttendance(ctx, tx, rec); err != nil {
		return rec, err
	}
	if err := e.writer().Append(ctx, tx, events.AttendanceRecorded, "session", rec.SessionID, opts.ActorID, events.EventPayload{
		"learner_id": rec.LearnerID,
		"status":     rec.Status,
	}); err != nil {
		return rec, err
	}
	return rec, tx.Commit()
}

// AttendanceSummary is a learner's attendance in one class.
type AttendanceSummary struct {
	LearnerID    string                    `json:"learner_id"`
	ClassID      string                    `json:"class_id"`
	SessionCount int                       `json:"session_count"`
	Percentage   float64                   `json:"percentage"`
	Records      []domain.AttendanceRecord `json:"records"`
}

// AttendancePercentage covers the class sessions held up to today. Sessions
// with no record for the learner count as absences.
func (e Engine) AttendancePercentage(ctx context.Context, learnerID, classID string) (AttendanceSummary, error) {
	if learnerID == "" || classID == "" {
		return AttendanceSummary{}, fmt.Errorf("%w: learner and class are required", ErrValidation)
	}
	if _, err := e.Repo.GetClass(ctx, classID); err != nil {
		return AttendanceSummary{}, err
	}
	sessions, err := e.Repo.ListSessions(ctx, nil, repo.SessionFilters{ClassID: classID})
	if err != nil {
		return AttendanceSummary{}, err
	}
	today := e.now().UTC().Format(timeutil.DateLayout)
	var ids []string
	for _, s := range sessions {
		if s.Date <= today {
			ids = append(ids, s.ID)
		}
	}
	records, err := e.Repo.ListAttendance(ctx, repo.AttendanceFilters{LearnerID: learnerID, ClassID: classID})
	if err != nil {
		return AttendanceSummary{}, err
	}
	if records == nil {
		records = []domain.AttendanceRecord{}
	}
	return AttendanceSummary{
		LearnerID:    learnerID,
		ClassID:      classID,
		SessionCount: len(ids),
		Percentage:   scheduling.AttendancePercentage(learnerID, ids, records),
		Records:      records,
	}, nil
}
