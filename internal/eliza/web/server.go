// Package web serves health, status, metrics and a browser chat over
// WebSocket.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bdobrica/Eliza/common/version"
	"github.com/bdobrica/Eliza/internal/eliza/gateway"
	"github.com/bdobrica/Eliza/internal/eliza/metrics"
)

//go:embed static/index.html
var staticFS embed.FS

// Transport is the gateway transport name of WebSocket conversations.
const Transport = "web"

// maxFrameBytes bounds one incoming frame.
const maxFrameBytes = 4096

// Server exposes /health, /status, /metrics, /ws and the chat page.
// It is optional; Eliza runs without it when http.addr is empty.
type Server struct {
	addr      string
	gateway   *gateway.Gateway
	metrics   *metrics.Metrics
	logger    *slog.Logger
	startedAt time.Time
	mux       *http.ServeMux
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status         string    `json:"status"`
	Version        string    `json:"version"`
	Commit         string    `json:"commit"`
	BuildTime      string    `json:"build_time"`
	StartedAt      time.Time `json:"started_at"`
	UptimeSecs     float64   `json:"uptime_seconds"`
	Script         string    `json:"script"`
	ActiveSessions int       `json:"active_sessions"`
}

// InFrame is a WebSocket frame sent by the browser.
type InFrame struct {
	Text string `json:"text"`
}

// OutFrame is a WebSocket frame sent to the browser.
type OutFrame struct {
	Role    string `json:"role"`
	Text    string `json:"text"`
	Outcome string `json:"outcome,omitempty"`
}

// Frame roles.
const (
	RoleEliza  = "eliza"
	RoleSystem = "system"
)

// NewServer creates and configures the HTTP server (does not start it).
// m may be nil, in which case /metrics is not served.
func NewServer(addr string, gw *gateway.Gateway, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:      addr,
		gateway:   gw,
		metrics:   m,
		logger:    logger.With("component", "web"),
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
		conns:     make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	if m != nil {
		s.mux.Handle("GET /metrics", m.Handler())
	}
	return s
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live network listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("web server: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully and
// closes open WebSocket conversations.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	s.closeConns()
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", serveErr)
	}
	if err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessions := s.gateway.Sessions()
	resp := statusResponse{
		Status:         "ok",
		Version:        version.Version,
		Commit:         version.GitCommit,
		BuildTime:      version.BuildTime,
		StartedAt:      s.startedAt,
		UptimeSecs:     time.Since(s.startedAt).Seconds(),
		ActiveSessions: sessions.Len(),
	}
	if sc := sessions.Script(); sc != nil {
		resp.Script = sc.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, staticFS, "static/index.html")
}

// handleWS runs one conversation per connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)
	s.track(conn)
	defer s.untrack(conn)

	sender := r.URL.Query().Get("name")
	if sender == "" {
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		sender = host
	}
	msg := gateway.Message{Transport: Transport, Room: uuid.NewString(), Sender: sender}
	logger := s.logger.With("conn", msg.Room, "sender", sender)
	logger.Info("websocket conversation opened")
	defer func() {
		s.gateway.Close(msg)
		logger.Info("websocket conversation closed")
	}()

	ctx := r.Context()
	open, err := s.gateway.Open(ctx, msg)
	if err != nil {
		logger.Error("open conversation", "err", err)
		s.closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	if !s.send(conn, open) {
		return
	}
	if open.Ended {
		s.closeWith(conn, websocket.CloseTryAgainLater, "busy")
		return
	}

	for {
		var in InFrame
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", "err", err)
			}
			return
		}
		msg.Text = in.Text
		resp, err := s.gateway.Handle(ctx, msg)
		if err != nil {
			logger.Error("handle message", "err", err)
			s.writeFrame(conn, OutFrame{Role: RoleSystem, Text: "Something went wrong. Please try again."})
			continue
		}
		if !s.send(conn, resp) {
			return
		}
		if resp.Ended {
			s.closeWith(conn, websocket.CloseNormalClosure, "goodbye")
			return
		}
	}
}

func (s *Server) send(conn *websocket.Conn, resp gateway.Response) bool {
	for _, line := range resp.Lines {
		if !s.writeFrame(conn, OutFrame{Role: RoleEliza, Text: line, Outcome: string(resp.Outcome)}) {
			return false
		}
	}
	return true
}

func (s *Server) writeFrame(conn *websocket.Conn, f OutFrame) bool {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(f); err != nil {
		s.logger.Debug("websocket write failed", "err", err)
		return false
	}
	return true
}

func (s *Server) closeWith(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// closeConns ends every open conversation; Shutdown does not wait for
// hijacked connections.
func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		s.closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		conn.Close()
	}
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("web: failed to encode JSON response", "err", err)
	}
}
