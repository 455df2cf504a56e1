package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"fro-server/internal/platform/logging"
	"fro-server/internal/platform/observability"
)

// HandlerBuilder creates a session handler for an upgraded connection.
type HandlerBuilder func(conn *Connection, req *http.Request) (SessionHandler, error)

// Router upgrades HTTP requests to websocket sessions.
type Router struct {
	hub    *Hub
	logger *logging.Logger

	upgrader         *websocket.Upgrader
	handshakeTimeout time.Duration
	readLimit        int64
	builder          atomic.Value // HandlerBuilder
}

// RouterOptions configures the websocket router.
type RouterOptions struct {
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
	// ReadLimit caps one incoming frame; frames carry base64 images.
	ReadLimit int64
}

func NewRouter(hub *Hub, logger *logging.Logger, opts RouterOptions) *Router {
	upgrader := &websocket.Upgrader{
		CheckOrigin:     opts.CheckOrigin,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if upgrader.CheckOrigin == nil {
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := opts.ReadLimit
	if limit <= 0 {
		limit = 16 << 20
	}

	return &Router{
		hub:              hub,
		logger:           logger,
		upgrader:         upgrader,
		handshakeTimeout: timeout,
		readLimit:        limit,
	}
}

// SetHandlerBuilder registers the builder invoked after each upgrade.
func (r *Router) SetHandlerBuilder(builder HandlerBuilder) {
	r.builder.Store(builder)
}

// Handle upgrades the HTTP connection and launches a new session.
func (r *Router) Handle(w http.ResponseWriter, req *http.Request) {
	value := r.builder.Load()
	if value == nil {
		http.Error(w, "websocket handler not ready", http.StatusServiceUnavailable)
		return
	}
	builder := value.(HandlerBuilder)

	handshakeCtx, cancel := context.WithTimeoutCause(req.Context(), r.handshakeTimeout, ErrHandshakeTimeout)
	defer cancel()
	req = req.WithContext(handshakeCtx)

	spanCtx, spanEnd := observability.StartSpan(handshakeCtx, "transport.websocket", "handle")
	var spanErr error
	defer func() { spanEnd(spanErr) }()

	socket, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "websocket.upgrade.error", 1, nil)
		r.logger.ErrorTag("WS", "handshake failed: %v", err)
		return
	}
	socket.SetReadLimit(r.readLimit)

	clientID := resolveClientID(req, socket)
	conn := NewConnection(clientID, socket)

	handler, err := builder(conn, req)
	if err != nil || handler == nil {
		spanErr = err
		observability.RecordMetric(spanCtx, "websocket.connection.error", 1, map[string]string{"reason": "handler_creation_failed"})
		r.logger.ErrorTag("WS", "build handler for %s: %v", clientID, err)
		_ = conn.Close()
		return
	}

	// The session outlives the upgrade request.
	session := NewSession(context.WithoutCancel(spanCtx), handler, conn, r.logger)
	r.hub.Register(session)
	r.logger.InfoTag("WS", "client %s connected", clientID)
	observability.RecordMetric(spanCtx, "websocket.connection.opened", 1, nil)

	go session.Run(func(runErr error) {
		r.hub.Unregister(session)
		if runErr != nil {
			r.logger.InfoTag("WS", "client %s disconnected: %v", clientID, runErr)
		}
		observability.RecordMetric(session.Context(), "websocket.connection.closed", 1, nil)
	})
}

func resolveClientID(req *http.Request, conn *websocket.Conn) string {
	clientID := req.Header.Get("Client-Id")
	if clientID == "" {
		clientID = req.URL.Query().Get("client-id")
	}
	if clientID == "" {
		clientID = fmt.Sprintf("%p", conn)
	}
	return clientID
}
