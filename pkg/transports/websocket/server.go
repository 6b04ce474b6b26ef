package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/harunnryd/clinirelay/pkg/errorsx"
	"github.com/harunnryd/clinirelay/pkg/hub"
	"github.com/harunnryd/clinirelay/pkg/logging"
)

// MessageHandler answers inbound text messages. Subscriber-only channels
// run without one.
type MessageHandler interface {
	Handle(ctx context.Context, raw []byte) []byte
}

// Server exposes one channel: the WebSocket endpoint and /health.
type Server struct {
	cfg      Config
	hub      *hub.Hub
	handler  MessageHandler
	upgrader gws.Upgrader
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger

	draining atomic.Bool
}

func NewServer(cfg Config, h *hub.Hub, handler MessageHandler, logger *slog.Logger) *Server {
	cfg = cfg.withDefaults()
	if cfg.Channel == "" {
		cfg.Channel = h.Channel()
	}
	s := &Server{
		cfg:     cfg,
		hub:     h,
		handler: handler,
		upgrader: gws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logging.NewComponentLogger(logger, "ws_server").With(slog.String("channel", cfg.Channel)),
	}
	s.upgrader.CheckOrigin = func(r *http.Request) bool {
		return originAllowed(s.cfg, r.Header.Get("Origin"))
	}
	return s
}

func (s *Server) Name() string { return s.cfg.Channel }

// Handler returns the channel mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start binds the listener synchronously so port conflicts fail startup,
// then serves in the background until ctx ends or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ReasonTransportBind)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = s.server.Close()
	}()
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ws_server_error", slog.String("error", err.Error()))
		}
	}()
	s.logger.Info("ws_server_listening", slog.String("addr", ln.Addr().String()), slog.String("path", s.cfg.Path))
	return nil
}

// Addr reports the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Drain refuses new upgrades.
func (s *Server) Drain() {
	s.draining.Store(true)
}

func (s *Server) Stop(ctx context.Context) error {
	s.draining.Store(true)
	s.hub.CloseAll()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws_upgrade_failed", slog.String("error", err.Error()), slog.String("origin", r.Header.Get("Origin")))
		return
	}
	ws.SetReadLimit(s.cfg.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})
	conn := newConn(ws, s.cfg.WriteTimeout)
	s.hub.Connect(conn)
	done := make(chan struct{})
	defer func() {
		close(done)
		s.hub.Disconnect(conn.ID())
		_ = conn.Close()
	}()
	go s.keepAlive(conn, done)

	ctx := r.Context()
	for {
		kind, msg, err := ws.ReadMessage()
		if err != nil {
			if !gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway, gws.CloseNoStatusReceived) {
				s.logger.Debug("ws_read_ended", slog.String("conn_id", conn.ID()), slog.String("error", err.Error()))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		if s.handler == nil || kind != gws.TextMessage {
			continue
		}
		reply := s.handler.Handle(ctx, msg)
		if len(reply) == 0 {
			continue
		}
		if err := conn.Send(ctx, reply); err != nil {
			s.logger.Warn("ws_reply_failed", slog.String("conn_id", conn.ID()), slog.String("error", err.Error()))
			return
		}
	}
}

// keepAlive pings conn until done. A failed ping closes the socket, which
// ends the read loop.
func (s *Server) keepAlive(conn *Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.Ping(s.cfg.WriteTimeout); err != nil {
				s.logger.Debug("ws_ping_failed", slog.String("conn_id", conn.ID()), slog.String("error", err.Error()))
				_ = conn.Close()
				return
			}
		}
	}
}
