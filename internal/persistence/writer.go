package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"StableVault/internal/event"
)

// EventRow is one row of the vault_events log.
type EventRow struct {
	Sequence    int64
	EventType   string
	OperationID uuid.UUID
	UserID      uuid.UUID
	Payload     []byte // JSON-encoded event payload
	CreatedAt   time.Time
}

// RowFromEnvelope converts a committed envelope into its storage row.
func RowFromEnvelope(env event.Envelope) (EventRow, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload seq=%d: %w", env.Sequence, err)
	}
	return EventRow{
		Sequence:    env.Sequence,
		EventType:   env.Type.String(),
		OperationID: env.OperationID,
		UserID:      env.User,
		Payload:     payload,
		CreatedAt:   env.Timestamp,
	}, nil
}

// EventLogWriter batch-inserts event rows. Multi-row INSERT keeps the
// driver portable; ON CONFLICT makes replays idempotent.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteBatch writes a batch of rows inside the given transaction.
func (w *EventLogWriter) WriteBatch(ctx context.Context, tx *sql.Tx, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO vault_events
		(sequence, event_type, operation_id, user_id, payload, created_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*6)

	for i, r := range rows {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			r.Sequence, r.EventType, r.OperationID, r.UserID, r.Payload, r.CreatedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest persisted sequence, or zero on an empty
// log. The engine resumes its counter from here on startup.
func (w *EventLogWriter) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM vault_events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last sequence: %w", err)
	}
	return seq.Int64, nil
}
