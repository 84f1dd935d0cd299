package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/elonfeng/voicevoter/internal/store"
	"github.com/elonfeng/voicevoter/pkg/auth"
	"github.com/elonfeng/voicevoter/pkg/crown"
	"github.com/elonfeng/voicevoter/pkg/events"
	"github.com/elonfeng/voicevoter/pkg/speech"
)

const maxQuestionLen = 280

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSession hands out an anonymous session id, reusing a valid one the
// client already holds.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(auth.SessionHeader)
	if id == "" {
		if c, err := r.Cookie(auth.SessionCookie); err == nil {
			id = c.Value
		}
	}
	if !auth.ValidSessionID(id) {
		id = auth.NewSessionID()
	}
	auth.SetSessionCookie(w, id)
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

type questionView struct {
	*store.Question
	Tally      store.Tally  `json:"tally"`
	YesPercent int          `json:"yes_percent"`
	MyVote     store.Choice `json:"my_vote,omitempty"`
}

func (s *Server) questionView(r *http.Request, q *store.Question) (*questionView, error) {
	tally, err := s.store.VoteTally(r.Context(), q.ID)
	if err != nil {
		return nil, err
	}
	view := &questionView{Question: q, Tally: tally, YesPercent: tally.YesPercent()}
	if voter, err := s.auth.VoterFromRequest(r); err == nil {
		if v, err := s.store.FindVote(r.Context(), q.ID, voter); err == nil {
			view.MyVote = v.Choice
		}
	}
	return view, nil
}

func (s *Server) handleCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.CurrentQuestion(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.questionView(r, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.GetQuestion(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.questionView(r, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleCreateQuestion accepts a user question. Unsafe text is refused and
// everything else waits for moderation.
func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.VoterFromRequest(r); err != nil {
		s.writeError(w, r, err)
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	text := strings.TrimSpace(body.Text)
	switch {
	case text == "":
		writeMessage(w, http.StatusBadRequest, "text is required")
		return
	case utf8.RuneCountInString(text) > maxQuestionLen:
		writeMessage(w, http.StatusBadRequest, "text is too long")
		return
	case !s.moderator.IsSafe(text):
		writeMessage(w, http.StatusUnprocessableEntity, "question was rejected by the content filter")
		return
	}
	if !strings.HasSuffix(text, "?") {
		text += "?"
	}

	q := &store.Question{Text: text, Source: store.SourceUser, ModerationStatus: store.ModerationPending}
	if err := s.store.CreateQuestion(r.Context(), q); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleQuestionVote(w http.ResponseWriter, r *http.Request) {
	voter, err := s.auth.VoterFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Choice store.Choice `json:"choice"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.votes.CastQuestionVote(r.Context(), mux.Vars(r)["id"], voter, body.Choice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	opts := store.TopicListOpts{
		Category:   r.URL.Query().Get("category"),
		ActiveOnly: r.URL.Query().Get("all") != "true",
		Limit:      20,
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		opts.Limit = min(v, 100)
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			opts.Since = t
		}
	}

	topics, err := s.store.ListTopics(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  topics,
		"count": len(topics),
	})
}

func (s *Server) handleTopicVote(w http.ResponseWriter, r *http.Request) {
	voter, err := s.auth.VoterFromRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.votes.CastTopicVote(r.Context(), mux.Vars(r)["id"], voter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handlePromoteTopic(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.CreateQuestionFromTopic(r.Context(), mux.Vars(r)["id"])
	if err != nil && q == nil {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		// The question exists; only the topic bump failed.
		s.logger.Warn("promote topic partially failed", zap.String("question_id", q.ID), zap.Error(err))
	}
	s.publishQuestion(r, q)
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleSelectAITopic(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetAITopic(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !t.IsActive {
		s.writeError(w, r, store.ErrTargetUnavailable)
		return
	}

	q := &store.Question{
		Text:             t.QuestionText,
		Source:           store.SourceAI,
		TopicID:          &t.ID,
		ModerationStatus: store.ModerationApproved,
	}
	if err := s.store.CreateQuestion(r.Context(), q); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publishQuestion(r, q)
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) publishQuestion(r *http.Request, q *store.Question) {
	if s.bus == nil {
		return
	}
	err := s.bus.Publish(r.Context(), events.Event{
		Type:       events.QuestionCreated,
		QuestionID: q.ID,
		Data:       map[string]any{"text": q.Text, "source": q.Source},
	})
	if err != nil {
		s.logger.Warn("publish question.created failed", zap.Error(err))
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeMessage(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	res, err := s.scheduler.RunNow(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeMessage(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status(s.now()))
}

func (s *Server) handleCrown(w http.ResponseWriter, r *http.Request) {
	if s.crowner == nil {
		writeMessage(w, http.StatusServiceUnavailable, "crowning not configured")
		return
	}
	res, err := s.crowner.Crown(r.Context(), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCrowns(w http.ResponseWriter, r *http.Request) {
	limit := 7
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, 90)
	}
	crowns, err := s.store.ListCrowns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  crowns,
		"count": len(crowns),
	})
}

func (s *Server) handleGetCrown(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if date == "today" {
		date = s.now().Format(crown.DateLayout)
	}
	if _, err := time.Parse(crown.DateLayout, date); err != nil {
		writeMessage(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	c, err := s.store.GetCrown(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := &crown.Result{Crown: c}
	if t, err := s.store.GetTopic(r.Context(), c.TrendingTopicID); err == nil {
		res.Topic = t
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  cats,
		"count": len(cats),
	})
}

func (s *Server) handleCategoryTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.store.ListAITopics(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  topics,
		"count": len(topics),
	})
}

// handleSpeech returns audio when the TTS provider works and otherwise
// tells the client to use its own speech synthesis.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeMessage(w, http.StatusBadRequest, "text is required")
		return
	}

	audio, err := s.speech.Synthesize(r.Context(), body.Text)
	if err != nil {
		if !errors.Is(err, speech.ErrUseBrowser) {
			s.logger.Warn("speech synthesis failed", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, map[string]string{"mode": "browser", "text": body.Text})
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(audio.Data)
}
