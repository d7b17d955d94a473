// Package statusserver exposes installation progress and control to a local
// dashboard over HTTP and WebSocket.
package statusserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/renderhost/chrome-installer/internal/installer"
	"github.com/renderhost/chrome-installer/internal/logging"
	"github.com/renderhost/chrome-installer/internal/platform"
	"github.com/renderhost/chrome-installer/internal/progress"
	"github.com/renderhost/chrome-installer/internal/workerpool"
)

var log = logging.L("statusserver")

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// Service is the installer surface the server needs. *installer.Installer satisfies it.
type Service interface {
	Install(ctx context.Context, req installer.Request) installer.Result
	IsInstalling() bool
	Progress() progress.Snapshot
	Subscribe(buffer int) (<-chan progress.Snapshot, func())
	Watchers() int
	InstalledInfo(ctx context.Context, installPath string) installer.Info
	Environment() platform.Environment
}

// Defaults fill fields an install request leaves empty.
type Defaults struct {
	Version     string
	Sources     []installer.Source
	InstallPath string
	InstallDeps bool
}

// Server routes /api/chrome/* to a Service.
type Server struct {
	svc      Service
	pool     *workerpool.Pool
	defaults Defaults
	router   *gin.Engine
	upgrader websocket.Upgrader
	// queued is held from an accepted POST until its job returns, so a
	// second POST is refused before the first job has started.
	queued installer.Guard
}

// New builds the router. Installs run on pool.
func New(svc Service, pool *workerpool.Pool, defaults Defaults) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		svc:      svc,
		pool:     pool,
		defaults: defaults,
		router:   gin.New(),
		upgrader: websocket.Upgrader{
			// The dashboard is served from a different local port.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.router.Use(gin.Recovery(), requestLogger())

	api := s.router.Group("/api/chrome")
	api.GET("/progress", s.handleProgress)
	api.GET("/progress/ws", s.handleProgressStream)
	api.GET("/status", s.handleStatus)
	api.POST("/install", s.handleInstall)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("status server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			logging.KeyDurationMs, time.Since(start).Milliseconds())
	}
}
