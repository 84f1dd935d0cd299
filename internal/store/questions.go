package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteStore) CreateQuestion(ctx context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = newID()
	}
	if q.Source == "" {
		q.Source = SourceUser
	}
	if q.ModerationStatus == "" {
		q.ModerationStatus = ModerationApproved
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (id, text, source, topic_id, trending_topic_id, is_trending, moderation_status, trending_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.Text, q.Source, q.TopicID, q.TrendingTopicID, q.IsTrending,
		q.ModerationStatus, q.TrendingScore, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert question: %w", mapError(err))
	}
	return nil
}

func (s *SQLiteStore) GetQuestion(ctx context.Context, id string) (*Question, error) {
	var q Question
	err := s.db.GetContext(ctx, &q, "SELECT * FROM questions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question %s: %w", id, err)
	}
	return &q, nil
}

// CurrentQuestion returns the most recently created approved question.
func (s *SQLiteStore) CurrentQuestion(ctx context.Context) (*Question, error) {
	var q Question
	err := s.db.GetContext(ctx, &q, `
		SELECT * FROM questions
		WHERE moderation_status = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, ModerationApproved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("current question: %w", err)
	}
	return &q, nil
}

func (s *SQLiteStore) ListQuestions(ctx context.Context, opts QuestionListOpts) ([]Question, error) {
	query := "SELECT * FROM questions WHERE 1=1"
	var args []any

	if opts.Status != "" {
		query += " AND moderation_status = ?"
		args = append(args, opts.Status)
	}

	query += " ORDER BY created_at DESC, rowid DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var questions []Question
	if err := s.db.SelectContext(ctx, &questions, query, args...); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

func (s *SQLiteStore) SetModerationStatus(ctx context.Context, id string, status ModerationStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid moderation status %q", status)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE questions SET moderation_status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("set moderation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateQuestionFromTopic promotes a trending topic to the current question.
// The question insert and the topic update are separate statements with no
// rollback: if the second fails the question still exists and the error is
// returned alongside it.
func (s *SQLiteStore) CreateQuestionFromTopic(ctx context.Context, topicID string) (*Question, error) {
	topic, err := s.GetTopic(ctx, topicID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTargetUnavailable
		}
		return nil, err
	}
	if !topic.IsActive {
		return nil, ErrTargetUnavailable
	}

	score := topic.TrendingScore
	q := &Question{
		Text:             topic.QuestionText,
		Source:           SourceTrending,
		TrendingTopicID:  &topic.ID,
		IsTrending:       true,
		ModerationStatus: ModerationApproved,
		TrendingScore:    &score,
	}
	if err := s.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}

	// Bump the topic so it reads as freshly surfaced.
	if _, err := s.db.ExecContext(ctx,
		"UPDATE trending_topics SET scraped_at = ? WHERE id = ?", s.now(), topic.ID); err != nil {
		return q, fmt.Errorf("touch topic %s: %w", topic.ID, err)
	}
	return q, nil
}
