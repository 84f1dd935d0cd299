package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyVoted is returned when a voter identity already holds a vote on the target.
	ErrAlreadyVoted = errors.New("already voted")
	// ErrTargetUnavailable is returned when the voted-on row is gone or inactive.
	ErrTargetUnavailable = errors.New("target no longer available")
	// ErrConflict is returned when an insert collides with an existing row.
	ErrConflict = errors.New("already exists")
	// ErrNoVoter is returned when neither a user id nor a session id is given.
	ErrNoVoter = errors.New("voter identity required")
)

// Store is the persistence interface.
type Store interface {
	CreateQuestion(ctx context.Context, q *Question) error
	GetQuestion(ctx context.Context, id string) (*Question, error)
	CurrentQuestion(ctx context.Context) (*Question, error)
	ListQuestions(ctx context.Context, opts QuestionListOpts) ([]Question, error)
	SetModerationStatus(ctx context.Context, id string, status ModerationStatus) error
	CreateQuestionFromTopic(ctx context.Context, topicID string) (*Question, error)

	CastVote(ctx context.Context, questionID string, voter Voter, choice Choice) (*Vote, error)
	FindVote(ctx context.Context, questionID string, voter Voter) (*Vote, error)
	VoteTally(ctx context.Context, questionID string) (Tally, error)

	InsertTopics(ctx context.Context, topics []TrendingTopic) ([]TrendingTopic, error)
	GetTopic(ctx context.Context, id string) (*TrendingTopic, error)
	ListTopics(ctx context.Context, opts TopicListOpts) ([]TrendingTopic, error)
	TopicTitles(ctx context.Context, since time.Time) ([]string, error)
	DeactivateStaleTopics(ctx context.Context, olderThan time.Time) (int64, error)
	CastTrendVote(ctx context.Context, topicID string, voter Voter) (*TrendVote, error)
	CountTrendVotes(ctx context.Context, topicID string) (int, error)
	TopTopic(ctx context.Context) (*TrendingTopic, error)

	UpsertCrown(ctx context.Context, c *CrownedTrend) error
	GetCrown(ctx context.Context, date string) (*CrownedTrend, error)
	ListCrowns(ctx context.Context, limit int) ([]CrownedTrend, error)

	ListCategories(ctx context.Context) ([]Category, error)
	ListAITopics(ctx context.Context, categoryID string) ([]AITopic, error)
	GetAITopic(ctx context.Context, id string) (*AITopic, error)
	CreateAITopic(ctx context.Context, t *AITopic) error

	LoadSchedulerState(ctx context.Context, key string) (*SchedulerState, error)
	SaveSchedulerState(ctx context.Context, key string, st *SchedulerState) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// New opens a SQLite database, runs migrations and seeds categories.
func New(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	memory := path == ":memory:"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if memory {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.seed(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed categories: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) seed(ctx context.Context) error {
	for _, c := range seedCategories {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO topic_categories (id, name, description, icon)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO NOTHING
		`, newID(), c.Name, c.Description, c.Icon)
		if err != nil {
			return err
		}
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

// utc normalizes a time argument. Times are stored as text, so comparisons
// in SQL only hold between values written in the same zone.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// mapError translates SQLite constraint failures into the gateway's
// caller-facing errors. Anything else passes through unchanged.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return ErrConflict
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return ErrTargetUnavailable
	}
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := strings.ToUpper(se.Error())
		switch {
		case strings.Contains(msg, "UNIQUE"):
			return ErrConflict
		case strings.Contains(msg, "FOREIGN KEY"):
			return ErrTargetUnavailable
		}
	}
	return err
}

// mapVoteError is mapError for vote inserts, where the only unique index
// is one vote per voter per target.
func mapVoteError(err error) error {
	err = mapError(err)
	if errors.Is(err, ErrConflict) {
		return ErrAlreadyVoted
	}
	return err
}
