package statusserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/renderhost/chrome-installer/internal/installer"
	"github.com/renderhost/chrome-installer/internal/logging"
	"github.com/renderhost/chrome-installer/internal/platform"
	"github.com/renderhost/chrome-installer/internal/progress"
)

// installBody is the POST /api/chrome/install payload. Every field is optional.
type installBody struct {
	Version     string `json:"version"`
	Source      string `json:"source"`
	InstallPath string `json:"installPath"`
	InstallDeps *bool  `json:"installDeps"`
}

// StatusResponse is returned by GET /api/chrome/status.
type StatusResponse struct {
	Installing     bool                 `json:"installing"`
	Installed      bool                 `json:"installed"`
	ExecutablePath string               `json:"executablePath,omitempty"`
	Version        string               `json:"version,omitempty"`
	Environment    platform.Environment `json:"environment"`
	Progress       progress.Snapshot    `json:"progress"`
	Watchers       int                  `json:"watchers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleProgress(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Progress())
}

func (s *Server) handleStatus(c *gin.Context) {
	installPath := c.DefaultQuery("path", s.defaults.InstallPath)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	info := s.svc.InstalledInfo(ctx, installPath)

	c.JSON(http.StatusOK, StatusResponse{
		Installing:     s.svc.IsInstalling(),
		Installed:      info.Installed,
		ExecutablePath: info.ExecutablePath,
		Version:        info.Version,
		Environment:    s.svc.Environment(),
		Progress:       s.svc.Progress(),
		Watchers:       s.svc.Watchers(),
	})
}

func (s *Server) handleInstall(c *gin.Context) {
	var body installBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	req, err := s.buildRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if s.svc.IsInstalling() || !s.queued.TryAcquire() {
		c.JSON(http.StatusConflict, errorResponse{Error: installer.ErrAlreadyInstalling.Error()})
		return
	}

	ok := s.pool.Submit("install-chrome", func(ctx context.Context) {
		defer s.queued.Release()
		res := s.svc.Install(ctx, req)
		if res.Success {
			return
		}
		var exhausted *installer.MirrorsExhaustedError
		if errors.As(res.Err, &exhausted) {
			log.Warn("background install failed", "attempts", exhausted.Summary())
			return
		}
		log.Warn("background install failed", logging.KeyError, res.Error)
	})
	if !ok {
		s.queued.Release()
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "install queue is full or shutting down"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"accepted": true,
		"version":  req.Version,
		"progress": s.svc.Progress(),
	})
}

func (s *Server) buildRequest(body installBody) (installer.Request, error) {
	req := installer.Request{
		Version:     s.defaults.Version,
		Sources:     s.defaults.Sources,
		InstallPath: s.defaults.InstallPath,
		InstallDeps: s.defaults.InstallDeps,
	}
	if body.Version != "" {
		req.Version = body.Version
	}
	if body.InstallPath != "" {
		req.InstallPath = body.InstallPath
	}
	if body.InstallDeps != nil {
		req.InstallDeps = *body.InstallDeps
	}
	if body.Source != "" {
		src, err := installer.ResolveSource(body.Source)
		if err != nil {
			return installer.Request{}, err
		}
		req.Sources = installer.Prefer(src)
	}
	return req, nil
}

// handleProgressStream sends the current snapshot, then every update,
// until the client disconnects.
func (s *Server) handleProgressStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", logging.KeyError, err)
		return
	}
	defer conn.Close()

	updates, cancel := s.svc.Subscribe(16)
	defer cancel()
	log.Debug("progress stream opened", "watchers", s.svc.Watchers())

	// Reader: handles pongs and notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeSnapshot(conn, s.svc.Progress()); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSnapshot(conn, snap); err != nil {
				log.Debug("websocket write failed", logging.KeyError, err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap progress.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(snap)
}
