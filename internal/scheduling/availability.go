// Package scheduling holds the conflict rules shared by coaching invites and
// class enrolments. Every function works on caller-supplied snapshots and keeps
// no state between calls.
package scheduling

import (
	"cwkhub/internal/calendar"
	"cwkhub/internal/domain"
	"cwkhub/internal/timeutil"
)

const (
	SessionConflictReason = "educator is teaching a session at this time"
	InviteConflictReason  = "educator already has a coaching invite at this time"
)

// SlotQuery asks whether an educator is free on Date between StartTime and EndTime.
// ExcludeInviteID skips one invite, used when an existing invite is being moved.
type SlotQuery struct {
	EducatorID      string
	Date            string
	StartTime       string
	EndTime         string
	ExcludeInviteID string
}

type Availability struct {
	Available           bool            `json:"available"`
	Reason              string          `json:"reason,omitempty"`
	BlockID             string          `json:"block_id,omitempty"`
	ConflictingSession  *domain.Session `json:"conflicting_session,omitempty"`
	ConflictingInviteID string          `json:"conflicting_invite_id,omitempty"`
}

// CheckSlotAvailability applies, in order: compulsory blocks, the educator's
// sessions that day (lead or assistant), then the educator's other pending or
// accepted invites that day. The first conflict found is returned.
func CheckSlotAvailability(q SlotQuery, blocks calendar.Blocks, sessions []domain.Session, invites []domain.CoachingInvite) Availability {
	if b, ok := blocks.Match(q.Date, q.StartTime, q.EndTime); ok {
		return Availability{Reason: b.Reason, BlockID: b.ID}
	}
	for _, s := range EducatorSessionsOn(sessions, q.EducatorID, q.Date) {
		if timeutil.RangesOverlap(q.StartTime, q.EndTime, s.StartTime, s.EndTime) {
			conflict := s
			return Availability{Reason: SessionConflictReason, ConflictingSession: &conflict}
		}
	}
	for _, inv := range invites {
		if inv.ID == q.ExcludeInviteID && q.ExcludeInviteID != "" {
			continue
		}
		if inv.EducatorID != q.EducatorID || inv.Date != q.Date {
			continue
		}
		if inv.Status != domain.InvitePending && inv.Status != domain.InviteAccepted {
			continue
		}
		if timeutil.RangesOverlap(q.StartTime, q.EndTime, inv.StartTime, inv.EndTime) {
			return Availability{Reason: InviteConflictReason, ConflictingInviteID: inv.ID}
		}
	}
	return Availability{Available: true}
}

// EducatorSessionsOn returns sessions on date where the educator leads or assists.
func EducatorSessionsOn(sessions []domain.Session, educatorID, date string) []domain.Session {
	var res []domain.Session
	for _, s := range sessions {
		if s.Date == date && s.HasEducator(educatorID) {
			res = append(res, s)
		}
	}
	return res
}
