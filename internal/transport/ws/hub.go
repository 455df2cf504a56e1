package ws

import (
	"sync"

	"fro-server/internal/platform/logging"
)

// Hub tracks the active websocket sessions.
type Hub struct {
	logger   *logging.Logger
	sessions sync.Map // map[string]*Session
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{logger: logger}
}

// Register adds a session, closing any older session of the same client.
func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	if prev, loaded := h.sessions.Swap(session.ID(), session); loaded {
		h.logger.InfoTag("WS", "client %s reconnected, closing previous session", session.ID())
		prev.(*Session).Close(ErrSessionReplaced)
	}
}

// Unregister removes session if it is still the registered one for its id.
func (h *Hub) Unregister(session *Session) {
	if session == nil {
		return
	}
	h.sessions.CompareAndDelete(session.ID(), session)
}

// CloseAll terminates all active sessions.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}
	h.sessions.Range(func(key, value any) bool {
		value.(*Session).Close(reason)
		h.sessions.Delete(key)
		return true
	})
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	n := 0
	h.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
