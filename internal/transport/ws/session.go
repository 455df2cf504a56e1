package ws

import (
	"context"
	"sync/atomic"
	"time"

	"fro-server/internal/platform/logging"
)

const defaultCloseTimeout = 5 * time.Second

// SessionHandler drives one upgraded connection. Handle blocks until the
// connection ends; Close must make it return.
type SessionHandler interface {
	Handle(ctx context.Context) error
	Close()
}

// Session encapsulates the lifecycle of a single websocket connection.
type Session struct {
	id      string
	handler SessionHandler
	conn    *Connection
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	closed atomic.Bool
}

func NewSession(parent context.Context, handler SessionHandler, conn *Connection, logger *logging.Logger) *Session {
	sessionCtx, cancel := context.WithCancelCause(parent)
	return &Session{
		id:      conn.ID(),
		handler: handler,
		conn:    conn,
		logger:  logger,
		ctx:     sessionCtx,
		cancel:  cancel,
	}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) ID() string {
	return s.id
}

// Run executes the handler and invokes onDone once it exits.
func (s *Session) Run(onDone func(error)) {
	runErr := s.handler.Handle(s.ctx)
	s.Close(runErr)
	if onDone != nil {
		onDone(runErr)
	}
}

// Close terminates the session; later calls are no-ops.
func (s *Session) Close(reason error) {
	if reason == nil {
		reason = ErrSessionShutdown
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel(reason)

	shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), defaultCloseTimeout, reason)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.handler.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.WarnTag("WS", "session %s handler close timed out: %v", s.id, context.Cause(shutdownCtx))
	}

	if err := s.conn.Close(); err != nil {
		s.logger.DebugTag("WS", "session %s connection close: %v", s.id, err)
	}
}
