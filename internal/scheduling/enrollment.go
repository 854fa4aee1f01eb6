package scheduling

import (
	"cwkhub/internal/domain"
	"cwkhub/internal/timeutil"
)

// ClassNameLookup resolves a class id to its display name.
type ClassNameLookup func(classID string) (string, bool)

// ClassSessionsLookup returns every session of a class, across terms.
type ClassSessionsLookup func(classID string) []domain.Session

// ConflictOtherClassName reports the first other class, among the learner's
// active enrolments in termID, with a session on the same date as one of the
// target class's term sessions and an overlapping time range. The class id is
// returned when its name cannot be resolved.
func ConflictOtherClassName(learnerID, classID, termID string, enrollments []domain.ClassEnrollment, className ClassNameLookup, classSessions ClassSessionsLookup) (string, bool) {
	target := SessionsInTerm(classSessions(classID), termID)
	if len(target) == 0 {
		return "", false
	}
	seen := map[string]bool{}
	for _, en := range enrollments {
		if en.LearnerID != learnerID || en.TermID != termID || en.Status != domain.EnrollmentActive {
			continue
		}
		if en.ClassID == classID || seen[en.ClassID] {
			continue
		}
		seen[en.ClassID] = true
		other := SessionsInTerm(classSessions(en.ClassID), termID)
		if !anyOverlap(target, other) {
			continue
		}
		if className != nil {
			if name, ok := className(en.ClassID); ok && name != "" {
				return name, true
			}
		}
		return en.ClassID, true
	}
	return "", false
}

// SessionsInTerm filters sessions to one term.
func SessionsInTerm(sessions []domain.Session, termID string) []domain.Session {
	var res []domain.Session
	for _, s := range sessions {
		if s.TermID == termID {
			res = append(res, s)
		}
	}
	return res
}

func anyOverlap(a, b []domain.Session) bool {
	for _, x := range a {
		for _, y := range b {
			if x.Date == y.Date && timeutil.RangesOverlap(x.StartTime, x.EndTime, y.StartTime, y.EndTime) {
				return true
			}
		}
	}
	return false
}
