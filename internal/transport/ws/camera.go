package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"fro-server/internal/domain/capture/platform/bridge"
	"fro-server/internal/platform/logging"
)

// CameraOptions configures the camera bridge handler.
type CameraOptions struct {
	Registry *bridge.Registry
	Logger   *logging.Logger
	// OnDisconnect runs once the page goes away, after the bridge detached.
	OnDisconnect func(clientID string)
}

// CameraHandlerBuilder returns a HandlerBuilder attaching each connection to
// its client's bridge platform.
func CameraHandlerBuilder(opts CameraOptions) HandlerBuilder {
	return func(conn *Connection, _ *http.Request) (SessionHandler, error) {
		return &cameraHandler{
			conn:         conn,
			platform:     opts.Registry.Platform(conn.ID()),
			logger:       opts.Logger,
			onDisconnect: opts.OnDisconnect,
		}, nil
	}
}

type cameraHandler struct {
	conn         *Connection
	platform     *bridge.Platform
	logger       *logging.Logger
	onDisconnect func(string)
	closeOnce    sync.Once
}

func (h *cameraHandler) Handle(ctx context.Context) error {
	h.platform.Attach(h.conn)
	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		mt, data, err := h.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := h.platform.HandleMessage(data); err != nil {
			h.logger.WarnTag("WS", "client %s sent a bad frame: %v", h.conn.ID(), err)
		}
	}
}

func (h *cameraHandler) Close() {
	h.closeOnce.Do(func() {
		h.platform.Detach()
		if h.onDisconnect != nil {
			h.onDisconnect(h.conn.ID())
		}
	})
}
