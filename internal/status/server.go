package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/f0rky/Chimp-GPT-sub004/internal/knowledge"
	"github.com/f0rky/Chimp-GPT-sub004/internal/plugins"
	"github.com/f0rky/Chimp-GPT-sub004/internal/state"
)

// Config wires the status server to its data sources. State and Store may
// be nil; their sections are omitted from the payload.
type Config struct {
	Port       string
	Production bool
	BotName    string
	Version    string

	State   *state.RuntimeState
	Store   *knowledge.Store
	Plugins func() []plugins.Info
	Model   func() string
}

// Server exposes GET /health and GET /status over gin.
type Server struct {
	cfg        Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds the router. Production selects gin's release mode.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, logger: logger}

	router := gin.New()
	router.Use(ginLogger(logger))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/status", s.handleStatus)

	s.router = router
	s.httpServer = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	return s
}

// Start serves in the background and returns the stop function; stop
// drains in-flight requests until its context expires.
func (s *Server) Start() func(context.Context) error {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", zap.Error(err))
		}
	}()
	s.logger.Info("status server started", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.Shutdown
}

func (s *Server) handleStatus(c *gin.Context) {
	payload := gin.H{
		"status":  "ok",
		"bot":     s.cfg.BotName,
		"version": s.cfg.Version,
	}
	if s.cfg.Model != nil {
		payload["model"] = s.cfg.Model()
	}
	if s.cfg.State != nil {
		payload["runtime"] = s.cfg.State.Snapshot()
	}
	if s.cfg.Store != nil {
		payload["knowledge"] = s.cfg.Store.Stats()
	}
	if s.cfg.Plugins != nil {
		payload["plugins"] = s.cfg.Plugins()
	}
	c.JSON(http.StatusOK, payload)
}

// ginLogger logs one structured line per request.
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("HTTP request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
