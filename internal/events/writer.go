package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	InviteCreated      = "invite.created"
	InviteRescheduled  = "invite.rescheduled"
	InviteResponded    = "invite.responded"
	TermCreated        = "term.created"
	ClassCreated       = "class.created"
	SessionCreated     = "session.created"
	EnrollmentCreated  = "enrollment.created"
	EnrollmentUpdated  = "enrollment.updated"
	EnrollmentRemoved  = "enrollment.removed"
	AttendanceRecorded = "attendance.recorded"
	InvoiceCreated     = "invoice.created"
	InvoicePayment     = "invoice.payment_recorded"
	InvoiceStatus      = "invoice.status_changed"
	ExpenseCreated     = "expense.created"
	ConfigImported     = "config.imported"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event row inside tx so it commits with the mutation it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
