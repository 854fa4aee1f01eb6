package engine

import (
	"context"
	"database/sql"
	"fmt"

	"cwkhub/internal/domain"
	"cwkhub/internal/events"
	"cwkhub/internal/repo"
	"cwkhub/internal/scheduling"
)

// UnavailableError carries the availability decision that rejected a slot.
type UnavailableError struct {
	Availability scheduling.Availability
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSlotUnavailable, e.Availability.Reason)
}

func (e *UnavailableError) Unwrap() error { return ErrSlotUnavailable }

type slotCheck struct {
	EducatorID string `validate:"required"`
	Date       string `validate:"required,ymd"`
	StartTime  string `validate:"required,hhmm"`
	EndTime    string `validate:"required,hhmm"`
}

// CheckAvailability loads the educator's sessions and invites for the date and
// evaluates the slot against them and the configured compulsory blocks.
func (e Engine) CheckAvailability(ctx context.Context, q scheduling.SlotQuery) (scheduling.Availability, error) {
	return e.checkAvailability(ctx, nil, q)
}

func (e Engine) checkAvailability(ctx context.Context, tx *sql.Tx, q scheduling.SlotQuery) (scheduling.Availability, error) {
	if err := check(slotCheck{q.EducatorID, q.Date, q.StartTime, q.EndTime}); err != nil {
		return scheduling.Availability{}, err
	}
	if err := checkRange(q.StartTime, q.EndTime); err != nil {
		return scheduling.Availability{}, err
	}
	sessions, err := e.Repo.ListSessions(ctx, tx, repo.SessionFilters{Date: q.Date, EducatorID: q.EducatorID})
	if err != nil {
		return scheduling.Availability{}, err
	}
	invites, err := e.Repo.ListInvites(ctx, tx, repo.InviteFilters{EducatorID: q.EducatorID, Date: q.Date})
	if err != nil {
		return scheduling.Availability{}, err
	}
	return scheduling.CheckSlotAvailability(q, e.Blocks(), sessions, invites), nil
}

// requireAvailable runs inside the write transaction so the check and the
// insert or update it guards commit together.
func (e Engine) requireAvailable(ctx context.Context, tx *sql.Tx, q scheduling.SlotQuery) error {
	av, err := e.checkAvailability(ctx, tx, q)
	if err != nil {
		return err
	}
	if !av.Available {
		return &UnavailableError{Availability: av}
	}
	return nil
}

// InviteCreateOptions are parameters for proposing a coaching invite.
type InviteCreateOptions struct {
	EducatorID  string `validate:"required"`
	CreatedByID string `validate:"required"`
	Date        string `validate:"required,ymd"`
	StartTime   string `validate:"required,hhmm"`
	EndTime     string `validate:"required,hhmm"`
	Title       string
	Notes       string
}

func (e Engine) CreateInvite(ctx context.Context, opts InviteCreateOptions) (domain.CoachingInvite, error) {
	if err := check(opts); err != nil {
		return domain.CoachingInvite{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CoachingInvite{}, err
	}
	defer tx.Rollback()
	if err := e.requireAvailable(ctx, tx, scheduling.SlotQuery{
		EducatorID: opts.EducatorID,
		Date:       opts.Date,
		StartTime:  opts.StartTime,
		EndTime:    opts.EndTime,
	}); err != nil {
		return domain.CoachingInvite{}, err
	}
	now := e.stamp()
	inv := domain.CoachingInvite{
		ID:          newID(),
		EducatorID:  opts.EducatorID,
		CreatedByID: opts.CreatedByID,
		Date:        opts.Date,
		StartTime:   opts.StartTime,
		EndTime:     opts.EndTime,
		Status:      domain.InvitePending,
		Title:       opts.Title,
		Notes:       opts.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertInvite(ctx, tx, inv); err != nil {
		return domain.CoachingInvite{}, fmt.Errorf("insert invite: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.InviteCreated, "invite", inv.ID, opts.CreatedByID, events.EventPayload{
		"educator_id": inv.EducatorID,
		"date":        inv.Date,
		"start_time":  inv.StartTime,
		"end_time":    inv.EndTime,
	}); err != nil {
		return domain.CoachingInvite{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CoachingInvite{}, err
	}
	return inv, nil
}

// InviteRescheduleOptions move an existing invite to a new slot.
type InviteRescheduleOptions struct {
	ID        string `validate:"required"`
	Date      string `validate:"required,ymd"`
	StartTime string `validate:"required,hhmm"`
	EndTime   string `validate:"required,hhmm"`
	ActorID   string `validate:"required"`
}

// RescheduleInvite moves a pending or accepted invite to a new slot. The
// invite's own current slot is ignored during the availability check. Status
// and response time are kept: invite status only ever moves out of pending
// through RespondInvite.
func (e Engine) RescheduleInvite(ctx context.Context, opts InviteRescheduleOptions) (domain.CoachingInvite, error) {
	if err := check(opts); err != nil {
		return domain.CoachingInvite{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CoachingInvite{}, err
	}
	defer tx.Rollback()
	inv, err := e.Repo.GetInvite(ctx, tx, opts.ID)
	if err != nil {
		return inv, err
	}
	if inv.Status == domain.InviteDeclined {
		return inv, fmt.Errorf("%w: declined invite cannot be rescheduled", ErrInvalidTransition)
	}
	if err := e.requireAvailable(ctx, tx, scheduling.SlotQuery{
		EducatorID:      inv.EducatorID,
		Date:            opts.Date,
		StartTime:       opts.StartTime,
		EndTime:         opts.EndTime,
		ExcludeInviteID: inv.ID,
	}); err != nil {
		return inv, err
	}
	from := map[string]string{"date": inv.Date, "start_time": inv.StartTime, "end_time": inv.EndTime}
	inv.Date = opts.Date
	inv.StartTime = opts.StartTime
	inv.EndTime = opts.EndTime
	inv.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateInvite(ctx, tx, inv); err != nil {
		return inv, err
	}
	if err := e.writer().Append(ctx, tx, events.InviteRescheduled, "invite", inv.ID, opts.ActorID, events.EventPayload{
		"from": from,
		"to":   map[string]string{"date": inv.Date, "start_time": inv.StartTime, "end_time": inv.EndTime},
	}); err != nil {
		return inv, err
	}
	if err := tx.Commit(); err != nil {
		return inv, err
	}
	return inv, nil
}

func ensureInviteTransition(oldStatus, newStatus string) error {
	if oldStatus == domain.InvitePending && (newStatus == domain.InviteAccepted || newStatus == domain.InviteDeclined) {
		return nil
	}
	return fmt.Errorf("%w: invite %s -> %s", ErrInvalidTransition, oldStatus, newStatus)
}

// RespondInvite records the educator's answer. Only pending invites can be answered.
func (e Engine) RespondInvite(ctx context.Context, id, status, actorID string) (domain.CoachingInvite, error) {
	if actorID == "" {
		return domain.CoachingInvite{}, fmt.Errorf("%w: actor is required", ErrValidation)
	}
	if status != domain.InviteAccepted && status != domain.InviteDeclined {
		return domain.CoachingInvite{}, fmt.Errorf("%w: status must be accepted or declined", ErrValidation)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CoachingInvite{}, err
	}
	defer tx.Rollback()
	inv, err := e.Repo.GetInvite(ctx, tx, id)
	if err != nil {
		return inv, err
	}
	if err := ensureInviteTransition(inv.Status, status); err != nil {
		return inv, err
	}
	from := inv.Status
	now := e.stamp()
	inv.Status = status
	inv.UpdatedAt = now
	inv.RespondedAt = &now
	if err := e.Repo.UpdateInvite(ctx, tx, inv); err != nil {
		return inv, err
	}
	if err := e.writer().Append(ctx, tx, events.InviteResponded, "invite", inv.ID, actorID, events.EventPayload{"from": from, "to": status}); err != nil {
		return inv, err
	}
	if err := tx.Commit(); err != nil {
		return inv, err
	}
	return inv, nil
}

func (e Engine) ListInvites(ctx context.Context, f repo.InviteFilters) ([]domain.CoachingInvite, error) {
	return e.Repo.ListInvites(ctx, nil, f)
}
