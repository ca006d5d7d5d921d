package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"huddle/internal/core/ports"
	"huddle/internal/core/services"
	"huddle/internal/infrastructure/middleware"
	"huddle/pkg/config"
	apperrors "huddle/pkg/errors"
	rlog "huddle/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ServerConfig holds the socket tunables of one WebSocketServer.
type ServerConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
	MaxMessageSize int64
	AllowedOrigins []string

	RateLimitEnabled     bool
	MessagesPerSecond    float64
	MessageBurst         int
	ConnectionsPerMinute int
	MaxConcurrent        int
}

func ServerConfigFrom(cfg *config.Config) ServerConfig {
	ws := cfg.RateLimiting.WebSocket
	return ServerConfig{
		PingInterval:         cfg.Signal.PingInterval,
		PongTimeout:          cfg.Signal.PongTimeout,
		WriteTimeout:         cfg.Signal.WriteTimeout,
		SendBufferSize:       cfg.Signal.SendBufferSize,
		MaxMessageSize:       ws.MaxMessageSizeBytes,
		AllowedOrigins:       cfg.Auth.AllowedOrigins,
		RateLimitEnabled:     cfg.RateLimiting.Enabled,
		MessagesPerSecond:    ws.MessagesPerSecond,
		MessageBurst:         ws.Burst,
		ConnectionsPerMinute: ws.ConnectionsPerMinute,
		MaxConcurrent:        ws.MaxConcurrent,
	}
}

type WebSocketServer struct {
	hub      *services.Hub
	metrics  ports.MetricsRecorder
	cfg      ServerConfig
	upgrader websocket.Upgrader

	connLimiter *middleware.RateLimiterStore
	active      atomic.Int64

	logger *zap.SugaredLogger
	ctxLog *rlog.ContextLogger
}

func NewWebSocketServer(hub *services.Hub, cfg ServerConfig, metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *WebSocketServer {
	if metrics == nil {
		metrics = services.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &WebSocketServer{
		hub:     hub,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		ctxLog:  rlog.NewContextLogger(logger.Desugar()),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	if cfg.RateLimitEnabled && cfg.ConnectionsPerMinute > 0 {
		s.connLimiter = middleware.NewRateLimiterStore(
			rate.Every(time.Minute/time.Duration(cfg.ConnectionsPerMinute)),
			cfg.ConnectionsPerMinute,
		)
	}
	return s
}

// Handler adapts HandleWebSocket to a gin route.
func (s *WebSocketServer) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.HandleWebSocket(c.Writer, c.Request)
	}
}

// ActiveConnections counts sockets currently served.
func (s *WebSocketServer) ActiveConnections() int {
	return int(s.active.Load())
}

// EvictIdleLimiters drops per-IP connection limiters unused for idle.
func (s *WebSocketServer) EvictIdleLimiters(idle time.Duration) int {
	if s.connLimiter == nil {
		return 0
	}
	return s.connLimiter.Evict(idle)
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.connLimiter != nil && !s.connLimiter.Allow(middleware.ClientIP(r)) {
		s.reject(w, apperrors.NewRateLimitError())
		return
	}

	if n := s.active.Add(1); s.cfg.MaxConcurrent > 0 && n > int64(s.cfg.MaxConcurrent) {
		s.active.Add(-1)
		s.reject(w, apperrors.NewServiceUnavailableError("too many connections"))
		return
	}
	defer s.active.Add(-1)

	identity, err := s.hub.Lifecycle.Authenticate(r)
	if err != nil {
		s.logger.Debugw("connection rejected", "remote_addr", r.RemoteAddr, "error", err)
		s.reject(w, middleware.ToAppError(err))
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "user_id", identity.ID, "error", err)
		return
	}

	conn := newWSConnection(ws, identity, s.cfg, s.logger)
	go conn.writePump()

	s.hub.Lifecycle.Activate(conn)
	defer s.hub.Lifecycle.Close(conn)

	ctx := rlog.WithConnID(rlog.WithUserID(context.WithoutCancel(r.Context()), int64(identity.ID)), string(conn.ID()))
	s.readPump(ctx, conn)
}

func (s *WebSocketServer) readPump(ctx context.Context, conn *wsConnection) {
	ws := conn.ws
	if s.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageSize)
	}
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	var limiter *rate.Limiter
	if s.cfg.RateLimitEnabled && s.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.MessageBurst)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				conn.logger.Infow("read failed", "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))

		s.handleFrame(ctx, conn, limiter, data)
	}
}

func (s *WebSocketServer) reject(w http.ResponseWriter, appErr *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and any origin listed in AllowedOrigins; "*" allows all.
func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}
