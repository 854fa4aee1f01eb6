package scheduling

import (
	"testing"

	"cwkhub/internal/domain"
)

func enrollmentFixture() ([]domain.ClassEnrollment, map[string][]domain.Session, map[string]string) {
	enrollments := []domain.ClassEnrollment{
		{ID: "en1", LearnerID: "l1", ClassID: "robotics", TermID: "t1", Status: domain.EnrollmentActive},
		{ID: "en2", LearnerID: "l1", ClassID: "coding", TermID: "t1", Status: domain.EnrollmentDropped},
		{ID: "en3", LearnerID: "l2", ClassID: "art", TermID: "t1", Status: domain.EnrollmentActive},
	}
	sessions := map[string][]domain.Session{
		"robotics": {
			{ID: "r1", ClassID: "robotics", TermID: "t1", Date: "2026-02-14", StartTime: "10:00", EndTime: "11:30"},
			{ID: "r0", ClassID: "robotics", TermID: "t0", Date: "2025-11-01", StartTime: "10:00", EndTime: "11:30"},
		},
		"coding": {
			{ID: "co1", ClassID: "coding", TermID: "t1", Date: "2026-02-14", StartTime: "10:00", EndTime: "11:00"},
		},
		"science": {
			{ID: "sc1", ClassID: "science", TermID: "t1", Date: "2026-02-14", StartTime: "11:00", EndTime: "12:00"},
			{ID: "sc0", ClassID: "science", TermID: "t0", Date: "2025-11-01", StartTime: "10:00", EndTime: "11:00"},
		},
		"art": {
			{ID: "a1", ClassID: "art", TermID: "t1", Date: "2026-02-14", StartTime: "10:30", EndTime: "11:30"},
		},
	}
	names := map[string]string{"robotics": "Robotics Lab", "science": "Science Club"}
	return enrollments, sessions, names
}

func lookups(sessions map[string][]domain.Session, names map[string]string) (ClassNameLookup, ClassSessionsLookup) {
	return func(id string) (string, bool) {
			n, ok := names[id]
			return n, ok
		}, func(id string) []domain.Session {
			return sessions[id]
		}
}

func TestConflictOtherClassName(t *testing.T) {
	enrollments, sessions, names := enrollmentFixture()
	nameFn, sessFn := lookups(sessions, names)

	// art overlaps robotics for l1.
	name, ok := ConflictOtherClassName("l1", "art", "t1", enrollments, nameFn, sessFn)
	if !ok || name != "Robotics Lab" {
		t.Fatalf("expected Robotics Lab conflict, got %q ok=%v", name, ok)
	}

	// science touches robotics at 11:00 on t1 only through 11:30 -> overlap.
	name, ok = ConflictOtherClassName("l1", "science", "t1", enrollments, nameFn, sessFn)
	if !ok || name != "Robotics Lab" {
		t.Fatalf("expected science to conflict with robotics, got %q ok=%v", name, ok)
	}
}

func TestConflictIgnoresDroppedAndOtherTerms(t *testing.T) {
	enrollments, sessions, names := enrollmentFixture()
	nameFn, sessFn := lookups(sessions, names)

	// l1's only other active class is robotics, which is the target.
	if name, ok := ConflictOtherClassName("l1", "robotics", "t1", enrollments, nameFn, sessFn); ok {
		t.Fatalf("unexpected conflict %q", name)
	}
	// No active enrolments in t0.
	if name, ok := ConflictOtherClassName("l1", "science", "t0", enrollments, nameFn, sessFn); ok {
		t.Fatalf("unexpected conflict in t0: %q", name)
	}
}

func TestConflictFallsBackToClassID(t *testing.T) {
	enrollments, sessions, names := enrollmentFixture()
	nameFn, sessFn := lookups(sessions, names)
	name, ok := ConflictOtherClassName("l2", "robotics", "t1", enrollments, nameFn, sessFn)
	if !ok || name != "art" {
		t.Fatalf("expected fallback to class id art, got %q ok=%v", name, ok)
	}
}

func TestAttendancePercentage(t *testing.T) {
	records := []domain.AttendanceRecord{
		{SessionID: "s1", LearnerID: "l1", Status: domain.AttendancePresent},
		{SessionID: "s2", LearnerID: "l1", Status: domain.AttendanceLate},
		{SessionID: "s3", LearnerID: "l1", Status: domain.AttendanceAbsent},
		{SessionID: "s4", LearnerID: "l2", Status: domain.AttendancePresent},
	}
	got := AttendancePercentage("l1", []string{"s1", "s2", "s3", "s4"}, records)
	if got != 50 {
		t.Fatalf("AttendancePercentage = %v, want 50 (s4 has no record for l1)", got)
	}
	if got := AttendancePercentage("l1", nil, records); got != 0 {
		t.Fatalf("empty session list = %v, want 0", got)
	}
}
