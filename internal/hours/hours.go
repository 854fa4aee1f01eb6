// Package hours credits educators with lead and coaching hours per term.
package hours

import "cwkhub/internal/domain"

// Summary is one educator's hours within one term.
type Summary struct {
	EducatorID    string  `json:"educator_id"`
	TermID        string  `json:"term_id"`
	LeadHours     float64 `json:"lead_hours"`
	CoachingHours float64 `json:"coaching_hours"`
	TotalHours    float64 `json:"total_hours"`
}

// ByTerm aggregates session durations into per educator, per term buckets.
// The lead educator is credited lead hours and every assistant is credited the
// same duration as coaching hours, so one session may appear in several buckets.
// Sessions with a non-positive duration are skipped. Rows keep first-seen order.
func ByTerm(sessions []domain.Session) []Summary {
	idx := map[string]int{}
	var rows []Summary
	bucket := func(educatorID, termID string) *Summary {
		key := educatorID + "|" + termID
		i, ok := idx[key]
		if !ok {
			i = len(rows)
			idx[key] = i
			rows = append(rows, Summary{EducatorID: educatorID, TermID: termID})
		}
		return &rows[i]
	}
	for _, s := range sessions {
		if s.DurationHours <= 0 {
			continue
		}
		if s.LeadEducatorID != "" {
			bucket(s.LeadEducatorID, s.TermID).LeadHours += s.DurationHours
		}
		for _, a := range uniq(s.AssistantEducatorIDs) {
			bucket(a, s.TermID).CoachingHours += s.DurationHours
		}
	}
	for i := range rows {
		rows[i].TotalHours = rows[i].LeadHours + rows[i].CoachingHours
	}
	return rows
}

// ForTerm narrows a summary list to one term.
func ForTerm(rows []Summary, termID string) []Summary {
	res := make([]Summary, 0, len(rows))
	for _, r := range rows {
		if r.TermID == termID {
			res = append(res, r)
		}
	}
	return res
}

func uniq(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
