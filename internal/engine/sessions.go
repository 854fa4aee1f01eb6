package engine

import (
	"context"
	"fmt"

	"cwkhub/internal/domain"
	"cwkhub/internal/events"
	"cwkhub/internal/repo"
	"cwkhub/internal/scheduling"
	"cwkhub/internal/timeutil"
)

type TermCreateOptions struct {
	ID        string
	Name      string `validate:"required"`
	StartDate string `validate:"required,ymd"`
	EndDate   string `validate:"required,ymd"`
	ActorID   string `validate:"required"`
}

func (e Engine) CreateTerm(ctx context.Context, opts TermCreateOptions) (domain.Term, error) {
	if err := check(opts); err != nil {
		return domain.Term{}, err
	}
	if opts.EndDate < opts.StartDate {
		return domain.Term{}, fmt.Errorf("%w: term ends before it starts", ErrValidation)
	}
	t := domain.Term{ID: opts.ID, Name: opts.Name, StartDate: opts.StartDate, EndDate: opts.EndDate, CreatedAt: e.stamp()}
	if t.ID == "" {
		t.ID = newID()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTerm(ctx, tx, t); err != nil {
		return t, fmt.Errorf("insert term: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.TermCreated, "term", t.ID, opts.ActorID, events.EventPayload{"name": t.Name}); err != nil {
		return t, err
	}
	return t, tx.Commit()
}

type ClassCreateOptions struct {
	ID            string
	Name          string `validate:"required"`
	TermID        string `validate:"required"`
	LearningTrack string
	ActorID       string `validate:"required"`
}

func (e Engine) CreateClass(ctx context.Context, opts ClassCreateOptions) (domain.Class, error) {
	if err := check(opts); err != nil {
		return domain.Class{}, err
	}
	if _, err := e.Repo.GetTerm(ctx, opts.TermID); err != nil {
		return domain.Class{}, err
	}
	c := domain.Class{ID: opts.ID, Name: opts.Name, TermID: opts.TermID, LearningTrack: opts.LearningTrack, CreatedAt: e.stamp()}
	if c.ID == "" {
		c.ID = newID()
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertClass(ctx, tx, c); err != nil {
		return c, fmt.Errorf("insert class: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.ClassCreated, "class", c.ID, opts.ActorID, events.EventPayload{"name": c.Name, "term_id": c.TermID}); err != nil {
		return c, err
	}
	return c, tx.Commit()
}

// SessionCreateOptions schedule one class meeting. DurationHours defaults to the
// length of the time range.
type SessionCreateOptions struct {
	ClassID              string `validate:"required"`
	Date                 string `validate:"required,ymd"`
	StartTime            string `validate:"required,hhmm"`
	EndTime              string `validate:"required,hhmm"`
	LeadEducatorID       string `validate:"required"`
	AssistantEducatorIDs []string
	DurationHours        float64 `validate:"gte=0"`
	ActorID              string  `validate:"required"`
	// Force allows booking over a compulsory block.
	Force bool
}

func (e Engine) CreateSession(ctx context.Context, opts SessionCreateOptions) (domain.Session, error) {
	if err := check(opts); err != nil {
		return domain.Session{}, err
	}
	if err := checkRange(opts.StartTime, opts.EndTime); err != nil {
		return domain.Session{}, err
	}
	class, err := e.Repo.GetClass(ctx, opts.ClassID)
	if err != nil {
		return domain.Session{}, err
	}
	if !opts.Force {
		if b, ok := e.Blocks().Match(opts.Date, opts.StartTime, opts.EndTime); ok {
			return domain.Session{}, &UnavailableError{Availability: scheduling.Availability{Reason: b.Reason, BlockID: b.ID}}
		}
	}
	s := domain.Session{
		ID:                   newID(),
		ClassID:              class.ID,
		TermID:               class.TermID,
		Date:                 opts.Date,
		StartTime:            opts.StartTime,
		EndTime:              opts.EndTime,
		LeadEducatorID:       opts.LeadEducatorID,
		AssistantEducatorIDs: dedupe(opts.AssistantEducatorIDs),
		DurationHours:        opts.DurationHours,
		LearningTrack:        class.LearningTrack,
		CreatedAt:            e.stamp(),
	}
	if s.DurationHours == 0 {
		s.DurationHours = timeutil.DurationHours(s.StartTime, s.EndTime)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSession(ctx, tx, s); err != nil {
		return s, fmt.Errorf("insert session: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.SessionCreated, "session", s.ID, opts.ActorID, events.EventPayload{
		"class_id":         s.ClassID,
		"date":             s.Date,
		"lead_educator_id": s.LeadEducatorID,
		"duration_hours":   s.DurationHours,
	}); err != nil {
		return s, err
	}
	return s, tx.Commit()
}

func (e Engine) ListSessions(ctx context.Context, f repo.SessionFilters) ([]domain.Session, error) {
	return e.Repo.ListSessions(ctx, nil, f)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := []string{}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
