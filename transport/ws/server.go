package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/hub"
)

// Handler executes inbound frames. Handle returns the single reply for a
// frame; Disconnect is called once when the socket goes away.
type Handler interface {
	Handle(ctx context.Context, conn hub.Conn, frame []byte) any
	Disconnect(ctx context.Context, conn hub.Conn)
}

type Server struct {
	cfg      Config
	handler  Handler
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewServer(cfg Config, handler Handler) *Server {
	defaults := DefaultConfig()
	defaults.Merge(&cfg)

	s := &Server{
		cfg:     defaults,
		handler: handler,
		logger:  defaults.Logger,
		conns:   make(map[string]*Conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  defaults.ReadBufferSize,
		WriteBufferSize: defaults.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, defaults.AllowedOrigins)
		},
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(
			"websocket upgrade failed",
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}
	socket.SetReadLimit(s.cfg.MaxMessageBytes)

	conn := newConn(socket, s.cfg)
	s.track(conn)
	go conn.writeLoop()

	ctx := context.WithoutCancel(r.Context())
	s.logger.DebugContext(ctx, "websocket connected", slog.String("conn", conn.ID()), slog.String("remote_addr", r.RemoteAddr))

	defer func() {
		s.handler.Disconnect(ctx, conn)
		s.untrack(conn)
		conn.Close()
		s.logger.DebugContext(ctx, "websocket disconnected", slog.String("conn", conn.ID()))
	}()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)
	for {
		msgType, frame, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WarnContext(ctx, "websocket read failed", slog.String("conn", conn.ID()), slog.String("error", err.Error()))
			}
			return
		}
		if msgType != websocket.TextMessage {
			if err := s.reply(ctx, conn, protocol.Error("", protocol.ErrMalformedFrame)); err != nil {
				return
			}
			continue
		}

		var reply any
		if limiter.Allow() {
			reply = s.handler.Handle(ctx, conn, frame)
		} else {
			req, _ := protocol.Decode(frame)
			reply = protocol.Error(req.ID, ErrRateLimited)
		}

		if err := s.reply(ctx, conn, reply); err != nil {
			s.logger.WarnContext(ctx, "failed to queue reply", slog.String("conn", conn.ID()), slog.String("error", err.Error()))
			return
		}
	}
}

func (s *Server) reply(ctx context.Context, conn *Conn, reply any) error {
	replyCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	return conn.Deliver(replyCtx, reply)
}

// Len returns the number of open connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close closes every open connection. Their serving goroutines observe the
// closed sockets and run the usual disconnect path.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.ID()] = c
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.ID())
}

// isOriginAllowed admits non-browser clients (no Origin), origins listed in
// allowed, and otherwise only same-host origins.
func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	originHost := parsed.Hostname()
	if originHost == "" {
		return false
	}

	if len(allowed) > 0 {
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(origin, a) || strings.EqualFold(originHost, a) {
				return true
			}
		}
		return false
	}

	host := r.Host
	if h, _, ok := strings.Cut(host, ":"); ok && !strings.HasPrefix(host, "[") {
		host = h
	}
	return strings.EqualFold(originHost, strings.Trim(host, "[]"))
}
