package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CastVote records a yes/no vote. A second vote by the same identity on the
// same question fails with ErrAlreadyVoted; the unique index decides, not a
// prior lookup. Questions that are missing or not approved yield
// ErrTargetUnavailable.
func (s *SQLiteStore) CastVote(ctx context.Context, questionID string, voter Voter, choice Choice) (*Vote, error) {
	if !choice.Valid() {
		return nil, fmt.Errorf("invalid choice %q", choice)
	}
	userID, sessionID, err := voter.columns()
	if err != nil {
		return nil, err
	}

	v := &Vote{
		ID:          newID(),
		QuestionID:  questionID,
		UserID:      userID,
		SessionID:   sessionID,
		Choice:      choice,
		IsAnonymous: voter.Anonymous(),
		CreatedAt:   s.now(),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (id, question_id, user_id, session_id, choice, is_anonymous, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM questions WHERE id = ? AND moderation_status = ?)
	`, v.ID, v.QuestionID, v.UserID, v.SessionID, v.Choice, v.IsAnonymous, v.CreatedAt,
		questionID, ModerationApproved)
	if err != nil {
		return nil, fmt.Errorf("cast vote on %s: %w", questionID, mapVoteError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("cast vote on %s: %w", questionID, ErrTargetUnavailable)
	}
	return v, nil
}

func (s *SQLiteStore) FindVote(ctx context.Context, questionID string, voter Voter) (*Vote, error) {
	userID, sessionID, err := voter.columns()
	if err != nil {
		return nil, err
	}

	var v Vote
	if userID != nil {
		err = s.db.GetContext(ctx, &v, "SELECT * FROM votes WHERE question_id = ? AND user_id = ?", questionID, *userID)
	} else {
		err = s.db.GetContext(ctx, &v, "SELECT * FROM votes WHERE question_id = ? AND session_id = ?", questionID, *sessionID)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find vote on %s: %w", questionID, err)
	}
	return &v, nil
}

func (s *SQLiteStore) VoteTally(ctx context.Context, questionID string) (Tally, error) {
	t := Tally{QuestionID: questionID}
	rows, err := s.db.QueryxContext(ctx,
		"SELECT choice, COUNT(*) AS cnt FROM votes WHERE question_id = ? GROUP BY choice", questionID)
	if err != nil {
		return t, fmt.Errorf("tally %s: %w", questionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var choice string
		var cnt int
		if err := rows.Scan(&choice, &cnt); err != nil {
			return t, err
		}
		switch Choice(choice) {
		case ChoiceYes:
			t.Yes = cnt
		case ChoiceNo:
			t.No = cnt
		}
	}
	return t, rows.Err()
}

// CastTrendVote records a vote on an active trending topic. Inactive or
// missing topics yield ErrTargetUnavailable.
func (s *SQLiteStore) CastTrendVote(ctx context.Context, topicID string, voter Voter) (*TrendVote, error) {
	userID, sessionID, err := voter.columns()
	if err != nil {
		return nil, err
	}

	v := &TrendVote{
		ID:              newID(),
		TrendingTopicID: topicID,
		UserID:          userID,
		SessionID:       sessionID,
		IsAnonymous:     voter.Anonymous(),
		CreatedAt:       s.now(),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trend_votes (id, trending_topic_id, user_id, session_id, is_anonymous, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM trending_topics WHERE id = ? AND is_active = 1)
	`, v.ID, v.TrendingTopicID, v.UserID, v.SessionID, v.IsAnonymous, v.CreatedAt, topicID)
	if err != nil {
		return nil, fmt.Errorf("cast trend vote on %s: %w", topicID, mapVoteError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("cast trend vote on %s: %w", topicID, ErrTargetUnavailable)
	}
	return v, nil
}

func (s *SQLiteStore) CountTrendVotes(ctx context.Context, topicID string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM trend_votes WHERE trending_topic_id = ?", topicID); err != nil {
		return 0, fmt.Errorf("count trend votes %s: %w", topicID, err)
	}
	return n, nil
}
