package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// InsertTopics writes a generation batch in one transaction. Unsafe topics
// are never written; the returned slice holds only the persisted rows.
func (s *SQLiteStore) InsertTopics(ctx context.Context, topics []TrendingTopic) ([]TrendingTopic, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert topics: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	var saved []TrendingTopic
	for _, t := range topics {
		if !t.IsSafe {
			continue
		}
		if t.ID == "" {
			t.ID = newID()
		}
		if t.Category == "" {
			t.Category = "General"
		}
		if t.Keywords == nil {
			t.Keywords = []string{}
		}
		if t.ScrapedAt.IsZero() {
			t.ScrapedAt = now
		}
		t.ScrapedAt = utc(t.ScrapedAt)
		t.CreatedAt = now
		t.IsActive = true
		t.VoteCount = 0

		keywordsJSON, _ := json.Marshal(t.Keywords)
		t.KeywordsJSON = string(keywordsJSON)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO trending_topics (id, source, raw_topic, summary, question_text, context, category, keywords, trending_score, vote_count, is_active, is_safe, scraped_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, 1, ?, ?)
		`, t.ID, t.Source, t.RawTopic, t.Summary, t.QuestionText, t.Context, t.Category,
			t.KeywordsJSON, t.TrendingScore, t.ScrapedAt, t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert topic %q: %w", t.RawTopic, mapError(err))
		}
		saved = append(saved, t)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert topics: %w", err)
	}
	return saved, nil
}

func (s *SQLiteStore) GetTopic(ctx context.Context, id string) (*TrendingTopic, error) {
	var t TrendingTopic
	err := s.db.GetContext(ctx, &t, "SELECT * FROM trending_topics WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get topic %s: %w", id, err)
	}
	json.Unmarshal([]byte(t.KeywordsJSON), &t.Keywords)
	return &t, nil
}

// ListTopics returns topics ordered by votes, then trending score.
func (s *SQLiteStore) ListTopics(ctx context.Context, opts TopicListOpts) ([]TrendingTopic, error) {
	query := "SELECT * FROM trending_topics WHERE 1=1"
	var args []any

	if opts.ActiveOnly {
		query += " AND is_active = 1"
	}
	if opts.Category != "" {
		query += " AND category = ?"
		args = append(args, opts.Category)
	}
	if !opts.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, utc(opts.Since))
	}

	query += " ORDER BY vote_count DESC, trending_score DESC, created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var topics []TrendingTopic
	if err := s.db.SelectContext(ctx, &topics, query, args...); err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	for i := range topics {
		json.Unmarshal([]byte(topics[i].KeywordsJSON), &topics[i].Keywords)
	}
	return topics, nil
}

// TopicTitles returns raw titles of topics created since the given time,
// used for duplicate detection.
func (s *SQLiteStore) TopicTitles(ctx context.Context, since time.Time) ([]string, error) {
	var titles []string
	err := s.db.SelectContext(ctx, &titles,
		"SELECT raw_topic FROM trending_topics WHERE created_at >= ? ORDER BY created_at DESC", utc(since))
	if err != nil {
		return nil, fmt.Errorf("topic titles: %w", err)
	}
	return titles, nil
}

// DeactivateStaleTopics flips is_active off for zero-vote topics created
// before olderThan.
func (s *SQLiteStore) DeactivateStaleTopics(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trending_topics SET is_active = 0
		WHERE is_active = 1 AND vote_count = 0 AND created_at < ?
	`, utc(olderThan))
	if err != nil {
		return 0, fmt.Errorf("deactivate stale topics: %w", err)
	}
	return res.RowsAffected()
}

// TopTopic returns the active topic with the most votes, ties broken by
// trending score.
func (s *SQLiteStore) TopTopic(ctx context.Context) (*TrendingTopic, error) {
	topics, err := s.ListTopics(ctx, TopicListOpts{ActiveOnly: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		return nil, ErrNotFound
	}
	return &topics[0], nil
}
