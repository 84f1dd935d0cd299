package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/elonfeng/voicevoter/internal/scheduler"
	"github.com/elonfeng/voicevoter/internal/store"
	"github.com/elonfeng/voicevoter/pkg/auth"
	"github.com/elonfeng/voicevoter/pkg/crown"
	"github.com/elonfeng/voicevoter/pkg/events"
	"github.com/elonfeng/voicevoter/pkg/speech"
	"github.com/elonfeng/voicevoter/pkg/topic"
	"github.com/elonfeng/voicevoter/pkg/vote"
)

// Scheduler is the part of the scheduler the API drives.
type Scheduler interface {
	RunNow(ctx context.Context) (*topic.Result, error)
	Status(now time.Time) scheduler.Status
}

// Crowner picks the trend of the day.
type Crowner interface {
	Crown(ctx context.Context, date time.Time) (*crown.Result, error)
}

// Moderator screens user-submitted questions.
type Moderator interface {
	IsSafe(text string) bool
}

// Config wires a Server. Bus may be nil, which disables /ws.
type Config struct {
	Store     store.Store
	Votes     *vote.Service
	Scheduler Scheduler
	Crowner   Crowner
	Speech    *speech.Client
	Auth      *auth.Verifier
	Moderator Moderator
	Bus       events.Bus
	Port      int
	Logger    *zap.Logger
}

// Server provides the HTTP API.
type Server struct {
	store     store.Store
	votes     *vote.Service
	scheduler Scheduler
	crowner   Crowner
	speech    *speech.Client
	auth      *auth.Verifier
	moderator Moderator
	bus       events.Bus
	port      int
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Auth == nil {
		cfg.Auth = auth.NewVerifier("", "")
	}
	if cfg.Speech == nil {
		cfg.Speech = speech.NewClient("", "", "", "")
	}
	if cfg.Moderator == nil {
		cfg.Moderator = topic.NewHeuristic(nil)
	}
	if cfg.Votes == nil {
		cfg.Votes = vote.NewService(cfg.Store, cfg.Bus, cfg.Logger)
	}
	return &Server{
		store:     cfg.Store,
		votes:     cfg.Votes,
		scheduler: cfg.Scheduler,
		crowner:   cfg.Crowner,
		speech:    cfg.Speech,
		auth:      cfg.Auth,
		moderator: cfg.Moderator,
		bus:       cfg.Bus,
		port:      cfg.Port,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Handler returns the router with every route registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withLogging, withCORS)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodPost)

	api.HandleFunc("/questions/current", s.handleCurrentQuestion).Methods(http.MethodGet)
	api.HandleFunc("/questions", s.handleCreateQuestion).Methods(http.MethodPost)
	api.HandleFunc("/questions/{id}/results", s.handleResults).Methods(http.MethodGet)
	api.HandleFunc("/questions/{id}/votes", s.handleQuestionVote).Methods(http.MethodPost)

	api.HandleFunc("/topics", s.handleTopics).Methods(http.MethodGet)
	api.HandleFunc("/topics/{id}/votes", s.handleTopicVote).Methods(http.MethodPost)
	api.HandleFunc("/topics/{id}/question", s.handlePromoteTopic).Methods(http.MethodPost)

	api.HandleFunc("/generate", s.requireUser(s.handleGenerate)).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	api.HandleFunc("/crown", s.requireUser(s.handleCrown)).Methods(http.MethodPost)
	api.HandleFunc("/crowns", s.handleCrowns).Methods(http.MethodGet)
	api.HandleFunc("/crown/{date}", s.handleGetCrown).Methods(http.MethodGet)

	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}/topics", s.handleCategoryTopics).Methods(http.MethodGet)
	api.HandleFunc("/ai-topics/{id}/select", s.handleSelectAITopic).Methods(http.MethodPost)

	api.HandleFunc("/speech", s.handleSpeech).Methods(http.MethodPost)

	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("voicevoter server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.SessionHeader)
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}

// requireUser lets only requests with a verified bearer token through.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.UserFromRequest(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.logger.Info("privileged request", zap.String("path", r.URL.Path), zap.String("user_id", userID))
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps domain sentinels to HTTP statuses. Anything unknown is
// logged and reported as a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, crown.ErrNoTopics):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyVoted), errors.Is(err, store.ErrConflict),
		errors.Is(err, vote.ErrConfirmed), errors.Is(err, scheduler.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, store.ErrTargetUnavailable):
		status = http.StatusGone
	case errors.Is(err, vote.ErrInFlight):
		status = http.StatusTooManyRequests
	case errors.Is(err, vote.ErrInvalidChoice):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNoVoter), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidSession),
		errors.Is(err, auth.ErrUserRequired):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
