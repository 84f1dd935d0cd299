package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertCrown writes the crowned trend for c.CrownedDate, replacing any
// earlier crown for the same day.
func (s *SQLiteStore) UpsertCrown(ctx context.Context, c *CrownedTrend) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crowned_trends (id, trending_topic_id, vote_count, crowned_date, voice_script, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(crowned_date) DO UPDATE SET
			trending_topic_id = excluded.trending_topic_id,
			vote_count = excluded.vote_count,
			voice_script = excluded.voice_script,
			created_at = excluded.created_at
	`, c.ID, c.TrendingTopicID, c.VoteCount, c.CrownedDate, c.VoiceScript, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert crown %s: %w", c.CrownedDate, mapError(err))
	}

	// The conflict path keeps the original row id.
	return s.db.GetContext(ctx, &c.ID, "SELECT id FROM crowned_trends WHERE crowned_date = ?", c.CrownedDate)
}

func (s *SQLiteStore) GetCrown(ctx context.Context, date string) (*CrownedTrend, error) {
	var c CrownedTrend
	err := s.db.GetContext(ctx, &c, "SELECT * FROM crowned_trends WHERE crowned_date = ?", date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get crown %s: %w", date, err)
	}
	return &c, nil
}

func (s *SQLiteStore) ListCrowns(ctx context.Context, limit int) ([]CrownedTrend, error) {
	if limit <= 0 {
		limit = 30
	}
	var crowns []CrownedTrend
	err := s.db.SelectContext(ctx, &crowns,
		"SELECT * FROM crowned_trends ORDER BY crowned_date DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list crowns: %w", err)
	}
	return crowns, nil
}
