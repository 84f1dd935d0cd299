package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/elonfeng/voicevoter/pkg/events"
)

// allQuestions subscribes a client to every event.
const allQuestions = "*"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage is sent by WebSocket clients.
type ClientMessage struct {
	Action     string `json:"action"`      // "subscribe" or "unsubscribe"
	QuestionID string `json:"question_id"` // question id, or "*" for everything
}

// ServerMessage is sent to WebSocket clients.
type ServerMessage struct {
	Type    string `json:"type"` // an event type, "subscribed", "unsubscribed" or "error"
	Payload any    `json:"payload"`
}

type clientSubscriptions struct {
	mu        sync.RWMutex
	questions map[string]bool
}

func newClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{questions: make(map[string]bool)}
}

func (cs *clientSubscriptions) subscribe(id string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.questions[id] = true
}

func (cs *clientSubscriptions) unsubscribe(id string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.questions, id)
}

// wants reports whether e should reach the client. A question subscriber
// only sees events carrying that question id.
func (cs *clientSubscriptions) wants(e events.Event) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.questions[allQuestions] {
		return true
	}
	return e.QuestionID != "" && cs.questions[e.QuestionID]
}

// handleWebSocket streams the change feed.
//
// Client sends: {"action": "subscribe", "question_id": "<id>"} or "*" for all.
// Server sends: {"type": "vote.cast", "payload": {...}} and acknowledgements.
//
// A client starts subscribed to ?question_id=<id> if given, else to "*".
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "change feed not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	feed, unsubscribe, err := s.bus.Subscribe(ctx)
	if err != nil {
		s.logger.Error("failed to subscribe to change feed", zap.Error(err))
		conn.WriteJSON(ServerMessage{Type: "error", Payload: map[string]string{"message": "change feed unavailable"}})
		return
	}
	defer unsubscribe()

	s.logger.Debug("websocket client connected", zap.String("remote_addr", r.RemoteAddr))

	subs := newClientSubscriptions()
	initial := r.URL.Query().Get("question_id")
	if initial == "" {
		initial = allQuestions
	}
	subs.subscribe(initial)

	send := make(chan ServerMessage, 256)
	push := func(msg ServerMessage) {
		select {
		case send <- msg:
		case <-ctx.Done():
		}
	}

	var producers sync.WaitGroup
	producers.Add(2)
	go func() {
		defer producers.Done()
		defer s.recoverConn(cancel, r)
		s.forwardEvents(ctx, feed, subs, push)
	}()
	go func() {
		defer producers.Done()
		defer s.recoverConn(cancel, r)
		s.sendPings(ctx, conn)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer s.recoverConn(cancel, r)
		s.writeMessages(conn, send, cancel)
	}()

	push(ServerMessage{Type: "subscribed", Payload: map[string]string{"question_id": initial}})
	s.readClientMessages(ctx, conn, cancel, subs, push)

	cancel()
	producers.Wait()
	close(send)
	<-writerDone

	s.logger.Debug("websocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

func (s *Server) recoverConn(cancel context.CancelFunc, r *http.Request) {
	if rec := recover(); rec != nil {
		s.logger.Error("panic in websocket goroutine",
			zap.Any("panic", rec),
			zap.String("stack", string(debug.Stack())),
			zap.String("remote_addr", r.RemoteAddr))
		cancel()
	}
}

func (s *Server) forwardEvents(ctx context.Context, feed <-chan events.Event, subs *clientSubscriptions, push func(ServerMessage)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-feed:
			if !ok {
				return
			}
			if subs.wants(e) {
				push(ServerMessage{Type: string(e.Type), Payload: e})
			}
		}
	}
}

// sendPings keeps the connection alive; the pong handler resets the read
// deadline.
func (s *Server) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				s.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages drains send. On a write failure it closes the connection so
// the reader unblocks.
func (s *Server) writeMessages(conn *websocket.Conn, send <-chan ServerMessage, cancel context.CancelFunc) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debug("failed to write websocket message", zap.Error(err))
			cancel()
			conn.Close()
			for range send {
			}
			return
		}
	}
}

func (s *Server) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, push func(ServerMessage)) {
	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if ctx.Err() != nil {
			return
		}

		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			return
		}

		if msg.QuestionID == "" {
			push(ServerMessage{Type: "error", Payload: map[string]string{"message": "question_id is required"}})
			continue
		}
		switch msg.Action {
		case "subscribe":
			subs.subscribe(msg.QuestionID)
			push(ServerMessage{Type: "subscribed", Payload: map[string]string{"question_id": msg.QuestionID}})
		case "unsubscribe":
			subs.unsubscribe(msg.QuestionID)
			push(ServerMessage{Type: "unsubscribed", Payload: map[string]string{"question_id": msg.QuestionID}})
		default:
			push(ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}})
		}
	}
}
