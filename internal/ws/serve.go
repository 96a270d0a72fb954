package ws

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Options tunes per-connection limits.
type Options struct {
	// AllowedOrigins lists accepted Origin header values. Empty or "*"
	// accepts any origin.
	AllowedOrigins []string
	MaxMessageSize int64
	RateBurst      int
	RatePerSecond  float64
	SendBuffer     int
}

// DefaultOptions returns the default connection limits.
func DefaultOptions() Options {
	return Options{
		MaxMessageSize: 64 * 1024,
		RateBurst:      20,
		RatePerSecond:  10,
		SendBuffer:     256,
	}
}

// Server upgrades HTTP requests to WebSocket connections and attaches them
// to a Hub.
type Server struct {
	hub        *Hub
	dispatcher Dispatcher
	opts       Options
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

func NewServer(hub *Hub, dispatcher Dispatcher, opts Options, logger *slog.Logger) *Server {
	def := DefaultOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		hub:        hub,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.ServeWS(w, r)
}

// ServeWS upgrades the request, assigns a connection id and starts the
// connection's pumps.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr
	s.logger.Debug("[WS] New WebSocket connection request", "from", remoteAddr)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("[WS] Failed to upgrade connection", "from", remoteAddr, "error", err)
		return
	}

	client := &Client{
		hub:        s.hub,
		conn:       conn,
		send:       make(chan []byte, s.opts.SendBuffer),
		id:         uuid.NewString(),
		dispatcher: s.dispatcher,
		limiter:    s.newLimiter(),
		logger:     s.logger,
	}

	if !s.hub.Register(client) {
		s.logger.Warn("[WS] Hub stopped, refusing connection", "from", remoteAddr)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	s.logger.Info("[WS] Connection established", "connection", client.id, "from", remoteAddr)

	go client.WritePump()
	go client.ReadPump(s.opts.MaxMessageSize)
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.opts.RatePerSecond <= 0 {
		return nil
	}
	burst := s.opts.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.opts.RatePerSecond), burst)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	s.logger.Warn("[WS] Origin not allowed", "origin", origin, "from", r.RemoteAddr)
	return false
}
