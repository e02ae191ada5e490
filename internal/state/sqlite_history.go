package state

import (
	"context"
	"database/sql"
	"fmt"
)

// RecordPlan stores a planned statement. ID and PlannedAt are assigned when empty.
func (s *SQLiteStore) RecordPlan(ctx context.Context, e HistoryEntry) (HistoryEntry, error) {
	if s.db == nil {
		return HistoryEntry{}, fmt.Errorf("database not opened")
	}
	if e.ID == "" {
		e.ID = generateID()
	}
	if e.PlannedAt.IsZero() {
		e.PlannedAt = s.now()
	}

	var errMsg sql.NullString
	if e.Error != "" {
		errMsg = sql.NullString{String: e.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO plan_history (id, statement, steps, error, planned_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Statement, e.Steps, errMsg, e.PlannedAt,
	)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("failed to record plan: %w", err)
	}
	return e, nil
}

// History returns the most recent entries, newest first. A non-positive
// limit means DefaultHistoryLimit.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, statement, steps, error, planned_at FROM plan_history
		 ORDER BY planned_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.Statement, &e.Steps, &errMsg, &e.PlannedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Error = errMsg.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return entries, nil
}
