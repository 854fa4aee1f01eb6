package domain

import "github.com/shopspring/decimal"

const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
	InviteDeclined = "declined"
)

const (
	EnrollmentActive    = "active"
	EnrollmentDropped   = "dropped"
	EnrollmentCompleted = "completed"
)

const (
	AttendancePresent = "present"
	AttendanceLate    = "late"
	AttendanceAbsent  = "absent"
	AttendanceExcused = "excused"
)

const (
	InvoiceDraft         = "draft"
	InvoiceSent          = "sent"
	InvoiceIssued        = "issued"
	InvoicePartiallyPaid = "partially_paid"
	InvoicePaid          = "paid"
	InvoiceCancelled     = "cancelled"
	InvoiceOverdue       = "overdue"
)

type Term struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Class struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TermID        string `json:"term_id"`
	LearningTrack string `json:"learning_track,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// Session is a single scheduled class meeting. AssistantEducatorIDs has set semantics.
type Session struct {
	ID                   string   `json:"id"`
	ClassID              string   `json:"class_id"`
	TermID               string   `json:"term_id"`
	Date                 string   `json:"date" format:"date"`
	StartTime            string   `json:"start_time" example:"09:00"`
	EndTime              string   `json:"end_time" example:"10:00"`
	LeadEducatorID       string   `json:"lead_educator_id"`
	AssistantEducatorIDs []string `json:"assistant_educator_ids"`
	DurationHours        float64  `json:"duration_hours"`
	LearningTrack        string   `json:"learning_track,omitempty"`
	CreatedAt            string   `json:"created_at" format:"date-time"`
}

// HasEducator reports whether id leads or assists the session.
func (s Session) HasEducator(id string) bool {
	if s.LeadEducatorID == id {
		return true
	}
	for _, a := range s.AssistantEducatorIDs {
		if a == id {
			return true
		}
	}
	return false
}

type CoachingInvite struct {
	ID          string  `json:"id"`
	EducatorID  string  `json:"educator_id"`
	CreatedByID string  `json:"created_by_id"`
	Date        string  `json:"date" format:"date"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Status      string  `json:"status" enum:"pending,accepted,declined"`
	Title       string  `json:"title,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	RespondedAt *string `json:"responded_at,omitempty" format:"date-time"`
}

type ClassEnrollment struct {
	ID        string `json:"id"`
	LearnerID string `json:"learner_id"`
	ClassID   string `json:"class_id"`
	TermID    string `json:"term_id"`
	Status    string `json:"status" enum:"active,dropped,completed"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type AttendanceRecord struct {
	SessionID  string `json:"session_id"`
	LearnerID  string `json:"learner_id"`
	Status     string `json:"status" enum:"present,late,absent,excused"`
	RecordedAt string `json:"recorded_at" format:"date-time"`
}

// Invoice is billed either to a learner or to an organisation.
// PaidAmount is nil when no payment amount has been recorded.
type Invoice struct {
	ID             string           `json:"id"`
	LearnerID      string           `json:"learner_id,omitempty"`
	OrganizationID string           `json:"organization_id,omitempty"`
	TermID         string           `json:"term_id,omitempty"`
	Description    string           `json:"description,omitempty"`
	TotalAmount    decimal.Decimal  `json:"total_amount"`
	PaidAmount     *decimal.Decimal `json:"paid_amount,omitempty"`
	Status         string           `json:"status"`
	DueDate        string           `json:"due_date,omitempty"`
	PaidDate       string           `json:"paid_date,omitempty"`
	CreatedAt      string           `json:"created_at"`
	UpdatedAt      string           `json:"updated_at"`
}

type Expense struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	PaidTo      string          `json:"paid_to,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
