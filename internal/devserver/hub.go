package devserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/notify-hub/internal/wire"
	"github.com/jwalitptl/notify-hub/pkg/logger"
)

const sessionWriteTimeout = 10 * time.Second

// session is one live WebSocket connection and its topic subscriptions.
type session struct {
	conn    *websocket.Conn
	userID  string
	limiter *rate.Limiter

	mu   sync.Mutex
	subs map[string]bool
}

func (s *session) subscribed(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[topic]
}

func (s *session) setSubscribed(topic string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.subs[topic] = true
	} else {
		delete(s.subs, topic)
	}
}

// send marshals and writes one push frame. Writes are serialized per
// connection; gorilla allows only one concurrent writer.
func (s *session) send(push wire.Push) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
	return s.conn.WriteJSON(push)
}

// hub tracks every live session and fans pushes out by user and topic.
type hub struct {
	logger *logger.Logger

	mu       sync.Mutex
	sessions map[*session]struct{}
}

func newHub(log *logger.Logger) *hub {
	return &hub{logger: log, sessions: make(map[*session]struct{})}
}

func (h *hub) add(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
}

func (h *hub) remove(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, s)
}

func (h *hub) snapshot() []*session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// pushToUser delivers a frame to every session of userID subscribed to the
// frame's topic.
func (h *hub) pushToUser(userID string, push wire.Push) {
	for _, s := range h.snapshot() {
		if s.userID != userID || !s.subscribed(push.Topic) {
			continue
		}
		if err := s.send(push); err != nil {
			h.logger.Debug("push to session failed", "user", userID, "error", err)
		}
	}
}

// broadcast delivers a frame to every session subscribed to the broadcast
// topic, regardless of user.
func (h *hub) broadcast(push wire.Push) {
	for _, s := range h.snapshot() {
		if !s.subscribed(wire.TopicBroadcast) {
			continue
		}
		if err := s.send(push); err != nil {
			h.logger.Debug("broadcast to session failed", "user", s.userID, "error", err)
		}
	}
}

func rawPayload(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
