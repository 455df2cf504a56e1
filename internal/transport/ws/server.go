package ws

import (
	"github.com/gin-gonic/gin"

	"fro-server/internal/platform/logging"
)

// ServerConfig stores where the websocket endpoint is mounted.
type ServerConfig struct {
	Path string
}

// Server ties the router and hub to the HTTP engine.
type Server struct {
	cfg    ServerConfig
	hub    *Hub
	router *Router
	logger *logging.Logger
}

func NewServer(cfg ServerConfig, router *Router, hub *Hub, logger *logging.Logger) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws/camera"
	}
	return &Server{cfg: cfg, router: router, hub: hub, logger: logger}
}

// SetHandlerBuilder wires the handler construction callback.
func (s *Server) SetHandlerBuilder(builder HandlerBuilder) {
	s.router.SetHandlerBuilder(builder)
}

// Mount registers the upgrade endpoint on engine.
func (s *Server) Mount(engine *gin.Engine) {
	engine.GET(s.cfg.Path, gin.WrapF(s.router.Handle))
	s.logger.InfoTag("WS", "camera bridge mounted at %s", s.cfg.Path)
}

// Stop closes every live session.
func (s *Server) Stop() {
	s.hub.CloseAll(ErrSessionShutdown)
}

func (s *Server) Count() int {
	return s.hub.Count()
}
