// Package query serves read-only account activity from the Postgres event
// log. Live position state comes from the engine; history comes from here.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActivityRecord is one persisted event in a user's history.
type ActivityRecord struct {
	Sequence    int64           `json:"sequence"`
	EventType   string          `json:"event_type"`
	OperationID uuid.UUID       `json:"operation_id"`
	UserID      uuid.UUID       `json:"user_id"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// HistoryFilter narrows a history query. Zero values mean no constraint;
// Limit is clamped to a sane page size.
type HistoryFilter struct {
	AfterSequence int64
	EventType     string
	Limit         int
}

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

func (f HistoryFilter) pageSize() int {
	switch {
	case f.Limit <= 0:
		return defaultPageSize
	case f.Limit > maxPageSize:
		return maxPageSize
	default:
		return f.Limit
	}
}

// Service answers history queries against the event log.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// UserHistory returns the user's persisted events in sequence order,
// starting after filter.AfterSequence.
func (s *Service) UserHistory(ctx context.Context, user uuid.UUID, filter HistoryFilter) ([]ActivityRecord, error) {
	query := `
		SELECT sequence, event_type, operation_id, user_id, payload, created_at
		FROM vault_events
		WHERE user_id = $1 AND sequence > $2`
	args := []interface{}{user, filter.AfterSequence}

	if filter.EventType != "" {
		query += ` AND event_type = $3`
		args = append(args, filter.EventType)
	}
	query += fmt.Sprintf(` ORDER BY sequence LIMIT %d`, filter.pageSize())

	return s.scan(ctx, query, args...)
}

// OperationEvents returns every event emitted by one operation. A
// liquidation shows up as its seizure, burn, and summary rows together.
func (s *Service) OperationEvents(ctx context.Context, operationID uuid.UUID) ([]ActivityRecord, error) {
	return s.scan(ctx, `
		SELECT sequence, event_type, operation_id, user_id, payload, created_at
		FROM vault_events
		WHERE operation_id = $1
		ORDER BY sequence
	`, operationID)
}

// RecentLiquidations returns the latest liquidation summaries, newest
// first.
func (s *Service) RecentLiquidations(ctx context.Context, limit int) ([]ActivityRecord, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return s.scan(ctx, fmt.Sprintf(`
		SELECT sequence, event_type, operation_id, user_id, payload, created_at
		FROM vault_events
		WHERE event_type = 'PositionLiquidated'
		ORDER BY sequence DESC LIMIT %d
	`, limit))
}

func (s *Service) scan(ctx context.Context, query string, args ...interface{}) ([]ActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []ActivityRecord
	for rows.Next() {
		var r ActivityRecord
		if err := rows.Scan(&r.Sequence, &r.EventType, &r.OperationID, &r.UserID, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
