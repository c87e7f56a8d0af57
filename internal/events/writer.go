package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types.
const (
	SessionStarted   = "session.started"
	SessionStep      = "session.step"
	SessionStatus    = "session.status"
	SessionStepDone  = "session.step.completed"
	SessionCompleted = "session.completed"
	SessionDiscarded = "session.discarded"
	BrewStarted      = "brew.started"
	BrewFermenting   = "brew.fermenting"
	BrewConditioning = "brew.conditioning"
	BrewCompleted    = "brew.completed"
	BrewArchived     = "brew.archived"
	BrewDeleted      = "brew.deleted"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append writes an event inside tx so it commits or rolls back with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID string, payload EventPayload) error {
	return w.append(ctx, tx, evtType, entityKind, entityID, payload)
}

// Record writes an event outside any transaction. Used for changes persisted in the
// key-value store, which shares no transaction with the event table.
func (w Writer) Record(ctx context.Context, evtType, entityKind, entityID string, payload EventPayload) error {
	if w.DB == nil {
		return nil
	}
	return w.append(ctx, w.DB, evtType, entityKind, entityID, payload)
}

func (w Writer) append(ctx context.Context, ex execer, evtType, entityKind, entityID string, payload EventPayload) error {
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
	_, err = ex.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
