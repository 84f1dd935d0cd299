package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/elonfeng/voicevoter/internal/store"
)

// State is the scheduler's persisted bookkeeping.
type State = store.SchedulerState

// StateStore persists State between process restarts.
type StateStore interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
}

// StateBackend is the part of the store that keeps scheduler state rows.
type StateBackend interface {
	LoadSchedulerState(ctx context.Context, key string) (*store.SchedulerState, error)
	SaveSchedulerState(ctx context.Context, key string, st *store.SchedulerState) error
}

type storeState struct {
	backend StateBackend
	key     string
}

// NewStoreState keeps state in the database under key.
func NewStoreState(backend StateBackend, key string) StateStore {
	if key == "" {
		key = "scheduler"
	}
	return &storeState{backend: backend, key: key}
}

func (s *storeState) Load(ctx context.Context) (*State, error) {
	return s.backend.LoadSchedulerState(ctx, s.key)
}

func (s *storeState) Save(ctx context.Context, st *State) error {
	return s.backend.SaveSchedulerState(ctx, s.key, st)
}

// RedisState keeps state as a JSON value in Redis, shared by every process
// pointed at the same key.
type RedisState struct {
	client *redis.Client
	key    string
}

// NewRedisState creates a Redis-backed StateStore.
func NewRedisState(client *redis.Client, key string) *RedisState {
	if key == "" {
		key = "voicevoter:scheduler"
	}
	return &RedisState{client: client, key: key}
}

func (r *RedisState) Load(ctx context.Context) (*State, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load scheduler state: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode scheduler state: %w", err)
	}
	return &st, nil
}

func (r *RedisState) Save(ctx context.Context, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode scheduler state: %w", err)
	}
	if err := r.client.Set(ctx, r.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save scheduler state: %w", err)
	}
	return nil
}
