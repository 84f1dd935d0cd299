package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteStore) ListCategories(ctx context.Context) ([]Category, error) {
	var cats []Category
	if err := s.db.SelectContext(ctx, &cats, "SELECT * FROM topic_categories ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// ListAITopics returns active AI topics, optionally limited to one category.
func (s *SQLiteStore) ListAITopics(ctx context.Context, categoryID string) ([]AITopic, error) {
	query := "SELECT * FROM ai_topics WHERE is_active = 1"
	var args []any
	if categoryID != "" {
		query += " AND category_id = ?"
		args = append(args, categoryID)
	}
	query += " ORDER BY created_at DESC"

	var topics []AITopic
	if err := s.db.SelectContext(ctx, &topics, query, args...); err != nil {
		return nil, fmt.Errorf("list ai topics: %w", err)
	}
	return topics, nil
}

func (s *SQLiteStore) GetAITopic(ctx context.Context, id string) (*AITopic, error) {
	var t AITopic
	err := s.db.GetContext(ctx, &t, "SELECT * FROM ai_topics WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ai topic %s: %w", id, err)
	}
	return &t, nil
}

func (s *SQLiteStore) CreateAITopic(ctx context.Context, t *AITopic) error {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.IsActive = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_topics (id, category_id, title, question_text, description, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, t.ID, t.CategoryID, t.Title, t.QuestionText, t.Description, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ai topic: %w", mapError(err))
	}
	return nil
}
