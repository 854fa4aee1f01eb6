package scheduling

import "cwkhub/internal/domain"

// AttendancePercentage returns the share (0-100) of sessionIDs where the learner
// was recorded present or late. The denominator is always len(sessionIDs): a
// session without a record for the learner counts as an absence.
func AttendancePercentage(learnerID string, sessionIDs []string, records []domain.AttendanceRecord) float64 {
	if len(sessionIDs) == 0 {
		return 0
	}
	status := make(map[string]string, len(records))
	for _, r := range records {
		if r.LearnerID == learnerID {
			status[r.SessionID] = r.Status
		}
	}
	present := 0
	for _, id := range sessionIDs {
		st, ok := status[id]
		if !ok {
			continue
		}
		if st == domain.AttendancePresent || st == domain.AttendanceLate {
			present++
		}
	}
	return float64(present) / float64(len(sessionIDs)) * 100
}
