package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LoadSchedulerState returns the saved state for key, or an empty state if
// nothing was saved yet.
func (s *SQLiteStore) LoadSchedulerState(ctx context.Context, key string) (*SchedulerState, error) {
	var st SchedulerState
	err := s.db.GetContext(ctx, &st, `
		SELECT last_update, next_update, last_breaking_check, is_updating
		FROM scheduler_state WHERE key = ?
	`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return &SchedulerState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scheduler state %s: %w", key, err)
	}
	return &st, nil
}

func (s *SQLiteStore) SaveSchedulerState(ctx context.Context, key string, st *SchedulerState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduler_state (key, last_update, next_update, last_breaking_check, is_updating)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			last_update = excluded.last_update,
			next_update = excluded.next_update,
			last_breaking_check = excluded.last_breaking_check,
			is_updating = excluded.is_updating
	`, key, utcPtr(st.LastUpdate), utcPtr(st.NextUpdate), utcPtr(st.LastBreakingCheck), st.IsUpdating)
	if err != nil {
		return fmt.Errorf("save scheduler state %s: %w", key, err)
	}
	return nil
}
