package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/voicevoter/internal/scheduler"
	"github.com/elonfeng/voicevoter/internal/store"
	"github.com/elonfeng/voicevoter/pkg/auth"
	"github.com/elonfeng/voicevoter/pkg/crown"
	"github.com/elonfeng/voicevoter/pkg/events"
	"github.com/elonfeng/voicevoter/pkg/speech"
	"github.com/elonfeng/voicevoter/pkg/topic"
)

type fakeScheduler struct {
	err   error
	calls atomic.Int32
}

func (f *fakeScheduler) RunNow(ctx context.Context) (*topic.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &topic.Result{Collected: 3, Stored: 2}, nil
}

func (f *fakeScheduler) Status(now time.Time) scheduler.Status {
	return scheduler.Status{Overdue: true, Label: "Updating soon..."}
}

type testEnv struct {
	srv   *httptest.Server
	store *store.SQLiteStore
	bus   *events.Local
	auth  *auth.Verifier
}

const testSecret = "test-secret"

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := events.NewLocal(nil)
	t.Cleanup(func() { bus.Close() })

	cfg := Config{
		Store:     st,
		Scheduler: &fakeScheduler{},
		Crowner:   crown.New(st, bus, nil, nil),
		Bus:       bus,
		Auth:      auth.NewVerifier(testSecret, ""),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := httptest.NewServer(New(cfg).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: st, bus: bus, auth: cfg.Auth}
}

func (e *testEnv) do(t *testing.T, method, path, session string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if token, ok := strings.CutPrefix(session, "Bearer "); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if session != "" {
		req.Header.Set(auth.SessionHeader, session)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

// bearer returns an Authorization value for a signed-in user, usable as the
// session argument of do.
func (e *testEnv) bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.auth.Issue(userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) question(t *testing.T, text string) *store.Question {
	t.Helper()
	q := &store.Question{Text: text, Source: store.SourceAI, ModerationStatus: store.ModerationApproved}
	require.NoError(t, e.store.CreateQuestion(context.Background(), q))
	return q
}

func (e *testEnv) topics(t *testing.T, titles ...string) []store.TrendingTopic {
	t.Helper()
	var in []store.TrendingTopic
	for i, title := range titles {
		in = append(in, store.TrendingTopic{
			Source:        "reddit",
			RawTopic:      title,
			QuestionText:  "Do you support " + title + "?",
			TrendingScore: 50 - i,
			IsSafe:        true,
		})
	}
	saved, err := e.store.InsertTopics(context.Background(), in)
	require.NoError(t, err)
	return saved
}

func TestHealthAndPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = env.do(t, http.MethodOptions, "/api/v1/questions/abc/votes", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSession(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/v1/session", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id, _ := body["session_id"].(string)
	assert.True(t, auth.ValidSessionID(id))
	require.NotEmpty(t, resp.Cookies())

	_, again := env.do(t, http.MethodPost, "/api/v1/session", id, nil)
	assert.Equal(t, id, again["session_id"])
}

func TestQuestionVoting(t *testing.T) {
	env := newTestEnv(t, nil)
	q := env.question(t, "Should cities ban cars downtown?")
	session := auth.NewSessionID()
	path := "/api/v1/questions/" + q.ID + "/votes"

	resp, body := env.do(t, http.MethodPost, path, session, map[string]string{"choice": "yes"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "confirmed", body["state"])
	tally := body["tally"].(map[string]any)
	assert.Equal(t, float64(1), tally["yes"])

	resp, _ = env.do(t, http.MethodPost, path, session, map[string]string{"choice": "no"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, path, "", map[string]string{"choice": "yes"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, path, auth.NewSessionID(), map[string]string{"choice": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/questions/missing/votes", session, map[string]string{"choice": "yes"})
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/questions/"+q.ID+"/results", session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "yes", body["my_vote"])
	assert.Equal(t, float64(100), body["yes_percent"])

	resp, body = env.do(t, http.MethodGet, "/api/v1/questions/current", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, q.ID, body["id"])
	assert.Nil(t, body["my_vote"])
}

func TestCurrentQuestionMissing(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := env.do(t, http.MethodGet, "/api/v1/questions/current", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateQuestion(t *testing.T) {
	env := newTestEnv(t, nil)
	session := auth.NewSessionID()

	resp, _ := env.do(t, http.MethodPost, "/api/v1/questions", session, map[string]string{"text": "Is nsfw content fine at work"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/questions", session, map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/questions", "", map[string]string{"text": "Should school start later"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/v1/questions", session, map[string]string{"text": "Should school start later"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Should school start later?", body["text"])
	assert.Equal(t, "pending", body["moderation_status"])

	// Pending questions never become the current question.
	resp, _ = env.do(t, http.MethodGet, "/api/v1/questions/current", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	votes := "/api/v1/questions/" + body["id"].(string) + "/votes"
	resp, _ = env.do(t, http.MethodPost, votes, session, map[string]string{"choice": "yes"})
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	id := body["id"].(string)
	require.NoError(t, env.store.SetModerationStatus(context.Background(), id, store.ModerationRejected))
	resp, _ = env.do(t, http.MethodPost, votes, auth.NewSessionID(), map[string]string{"choice": "no"})
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	tally, err := env.store.VoteTally(context.Background(), id)
	require.NoError(t, err)
	assert.Zero(t, tally.Total())
}

func TestTopicVotingAndPromotion(t *testing.T) {
	env := newTestEnv(t, nil)
	saved := env.topics(t, "Four-day work week", "City bike lanes")
	session := auth.NewSessionID()

	resp, body := env.do(t, http.MethodGet, "/api/v1/topics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])

	path := "/api/v1/topics/" + saved[1].ID + "/votes"
	resp, body = env.do(t, http.MethodPost, path, session, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1), body["vote_count"])

	resp, _ = env.do(t, http.MethodPost, path, session, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/v1/topics/"+saved[0].ID+"/question", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "trending", body["source"])

	_, current := env.do(t, http.MethodGet, "/api/v1/questions/current", "", nil)
	assert.Equal(t, body["id"], current["id"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/topics/missing/question", "", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestGenerateAndStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.bearer(t, "admin")
	resp, body := env.do(t, http.MethodPost, "/api/v1/generate", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["stored"])

	resp, body = env.do(t, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Updating soon...", body["label"])

	busy := newTestEnv(t, func(c *Config) { c.Scheduler = &fakeScheduler{err: scheduler.ErrBusy} })
	resp, _ = busy.do(t, http.MethodPost, "/api/v1/generate", busy.bearer(t, "admin"), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestTriggerEndpointsRequireUser(t *testing.T) {
	calls := &fakeScheduler{}
	env := newTestEnv(t, func(c *Config) { c.Scheduler = calls })
	env.topics(t, "Electric vehicle sales hit record high")

	for _, path := range []string{"/api/v1/generate", "/api/v1/crown"} {
		t.Run(path, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodPost, path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			resp, _ = env.do(t, http.MethodPost, path, auth.NewSessionID(), nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			resp, _ = env.do(t, http.MethodPost, path, "Bearer not-a-token", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	assert.Zero(t, calls.calls.Load())
	resp, body := env.do(t, http.MethodGet, "/api/v1/crowns", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["count"])
}

func TestCrownEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.bearer(t, "admin")

	resp, _ := env.do(t, http.MethodPost, "/api/v1/crown", admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	saved := env.topics(t, "Electric vehicle sales hit record high")
	resp, body := env.do(t, http.MethodPost, "/api/v1/crown", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := body["crown"].(map[string]any)
	assert.Equal(t, saved[0].ID, c["trending_topic_id"])

	resp, body = env.do(t, http.MethodGet, "/api/v1/crown/"+c["crowned_date"].(string), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, saved[0].RawTopic, body["topic"].(map[string]any)["raw_topic"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/crown/yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/crown/1999-01-01", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/crowns", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])
}

func TestCategoriesAndAITopics(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	cats, err := env.store.ListCategories(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cats)

	resp, body := env.do(t, http.MethodGet, "/api/v1/categories", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(len(cats)), body["count"])

	ai := &store.AITopic{CategoryID: cats[0].ID, Title: "Remote work", QuestionText: "Should remote work be a right?"}
	require.NoError(t, env.store.CreateAITopic(ctx, ai))

	resp, body = env.do(t, http.MethodGet, "/api/v1/categories/"+cats[0].ID+"/topics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, body = env.do(t, http.MethodPost, "/api/v1/ai-topics/"+ai.ID+"/select", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Should remote work be a right?", body["text"])
	assert.Equal(t, ai.ID, body["topic_id"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/ai-topics/missing/select", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSpeechBrowserFallback(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.do(t, http.MethodPost, "/api/v1/speech", "", map[string]string{"text": "Hello voters"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "browser", body["mode"])
	assert.Equal(t, "Hello voters", body["text"])

	quota := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer quota.Close()
	limited := newTestEnv(t, func(c *Config) { c.Speech = speech.NewClient(quota.URL, "key", "", "") })
	_, body = limited.do(t, http.MethodPost, "/api/v1/speech", "", map[string]string{"text": "Hello"})
	assert.Equal(t, "browser", body["mode"])
}

func TestSpeechAudio(t *testing.T) {
	tts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3audio"))
	}))
	defer tts.Close()

	env := newTestEnv(t, func(c *Config) { c.Speech = speech.NewClient(tts.URL, "key", "", "") })
	resp, _ := env.do(t, http.MethodPost, "/api/v1/speech", "", map[string]string{"text": "Hello"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
}

func TestWebSocketFeed(t *testing.T) {
	env := newTestEnv(t, nil)
	q := env.question(t, "Should the library open on Sundays?")
	other := env.question(t, "Should parks allow dogs?")

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws?question_id=" + q.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "subscribed", msg.Type)

	session := auth.NewSessionID()
	resp, _ := env.do(t, http.MethodPost, "/api/v1/questions/"+other.ID+"/votes", session, map[string]string{"choice": "no"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/api/v1/questions/"+q.ID+"/votes", session, map[string]string{"choice": "yes"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The vote on the other question is filtered out.
	var e struct {
		Type    string       `json:"type"`
		Payload events.Event `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, string(events.VoteCast), e.Type)
	assert.Equal(t, q.ID, e.Payload.QuestionID)
}

func TestWebSocketWithoutBus(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Bus = nil })
	resp, _ := env.do(t, http.MethodGet, "/ws", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
