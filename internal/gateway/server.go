// Package gateway connects console tabs to their session monitors over
// websockets and serves the HTTP admin surface.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/SoarinFerret/IdleWarden/internal/auth"
	"github.com/SoarinFerret/IdleWarden/internal/clock"
	"github.com/SoarinFerret/IdleWarden/internal/eval"
	"github.com/SoarinFerret/IdleWarden/internal/metrics"
	"github.com/SoarinFerret/IdleWarden/internal/monitor"
)

const (
	defaultWriteTimeout = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = pongWait * 9 / 10
	maxMessageSize      = 4096

	identityKey = "identity"
)

// History records session lifecycles; state.Manager implements it.
type History interface {
	HandleConnect(user, sessionID, route string)
	HandleDisconnect(sessionID, reason string)
	HandleEvent(user, sessionID string, ev monitor.Event)
}

// Options configure a Server.
type Options struct {
	Monitor        monitor.Config
	AllowedOrigins []string
	ActivityRate   float64
	ActivityBurst  int
	WriteTimeout   time.Duration
}

// Server owns the HTTP router and the live sessions.
type Server struct {
	opts     Options
	auth     *auth.Service
	registry *Registry
	history  History
	metrics  *metrics.Metrics
	clock    clock.Clock
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	router   *gin.Engine
}

// NewServer builds the router. history and m may be nil.
func NewServer(opts Options, authSvc *auth.Service, registry *Registry, history History, m *metrics.Metrics, clk clock.Clock, logger logrus.FieldLogger) *Server {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Monitor.LoginRoute == "" {
		opts.Monitor.LoginRoute = monitor.DefaultLoginRoute
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		opts:     opts,
		auth:     authSvc,
		registry: registry,
		history:  history,
		metrics:  m,
		clock:    clk,
		log:      logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	if len(s.opts.AllowedOrigins) > 0 {
		cfg := cors.Config{
			AllowMethods:  []string{"GET", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}
		if s.allowAllOrigins() {
			cfg.AllowAllOrigins = true
		} else {
			cfg.AllowOrigins = s.opts.AllowedOrigins
		}
		r.Use(cors.New(cfg))
	}

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api", s.requireAdmin())
	api.GET("/sessions", s.handleListSessions)
	api.DELETE("/sessions/:id", s.handleTerminateSession)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}

func (s *Server) allowAllOrigins() bool {
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 || s.allowAllOrigins() {
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.auth.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("Health check: revocation store unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "sessions": s.registry.Len()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.registry.Len()})
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		id, err := s.auth.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			s.metrics.AuthFailures.WithLabelValues("admin").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if !s.auth.IsAdmin(id) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func (s *Server) handleListSessions(c *gin.Context) {
	list := s.registry.List()
	infos := make([]SessionInfo, 0, len(list))
	for _, sess := range list {
		infos = append(infos, sess.Info())
	}
	c.JSON(http.StatusOK, gin.H{"sessions": infos})
}

func (s *Server) handleTerminateSession(c *gin.Context) {
	sess, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	admin, _ := c.Get(identityKey)
	if id, ok := admin.(auth.Identity); ok {
		s.log.WithFields(logrus.Fields{
			"admin":      id.Username,
			"session_id": sess.id,
			"user":       sess.identity.Username,
		}).Info("Administrative session termination")
	}

	if err := sess.Terminate(c.Request.Context(), ReasonAdmin); err != nil {
		s.log.WithError(err).Error("Failed to terminate session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to terminate session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "terminated", "session": sess.Info()})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}
	id, err := s.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		kind := "invalid"
		switch {
		case errors.Is(err, auth.ErrExpired):
			kind = "expired"
		case errors.Is(err, auth.ErrRevoked):
			kind = "revoked"
		}
		s.metrics.AuthFailures.WithLabelValues(kind).Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Error("Failed to upgrade connection")
		return
	}

	route := eval.NormalizeRoute(c.Query("route"))
	sess, err := s.openSession(ws, id, route)
	if err != nil {
		s.log.WithError(err).Error("Failed to start session monitor")
		_ = ws.Close()
		return
	}
	defer s.closeSession(sess)

	sess.navigate(route)
	s.serve(sess, ws)
}

func (s *Server) openSession(ws *websocket.Conn, id auth.Identity, route string) (*Session, error) {
	sessionID := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user":       id.Username,
	})

	conn := newConn(ws, s.opts.WriteTimeout, log)
	sess := &Session{
		id:          sessionID,
		identity:    id,
		connectedAt: s.clock.Now(),
		loginRoute:  s.opts.Monitor.LoginRoute,
		conn:        conn,
		auth:        s.auth,
		log:         log,
		active:      true,
	}

	mon, err := monitor.New(s.opts.Monitor, monitor.Deps{
		Auth:      sess,
		Navigator: conn,
		Source:    conn,
		Prompter:  conn,
		Notifier:  conn,
		Clock:     s.clock,
		Logger:    log,
		Observer:  s.observer(id.Username, sessionID),
	})
	if err != nil {
		return nil, err
	}
	sess.monitor = mon
	conn.deadline = func() time.Time { return mon.Snapshot().ExpiryAt }

	if s.history != nil {
		s.history.HandleConnect(id.Username, sessionID, route)
	}
	s.registry.Add(sess)
	s.metrics.Connections.Inc()
	log.Info("Console tab connected")
	return sess, nil
}

func (s *Server) observer(user, sessionID string) func(monitor.Event) {
	return func(ev monitor.Event) {
		s.metrics.Observe(ev)
		if s.history != nil {
			s.history.HandleEvent(user, sessionID, ev)
		}
	}
}

// closeSession leaves the registry last so a zero Len means teardown is done.
func (s *Server) closeSession(sess *Session) {
	sess.close()
	if s.history != nil {
		s.history.HandleDisconnect(sess.id, "disconnected")
	}
	s.metrics.Connections.Dec()
	s.registry.Remove(sess.id)
	sess.log.Info("Console tab disconnected")
}

// serve runs the read loop of one tab until the socket closes.
func (s *Server) serve(sess *Session, ws *websocket.Conn) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.keepAlive(sess.conn, stopPing)

	limiter := rate.NewLimiter(rate.Limit(s.opts.ActivityRate), s.opts.ActivityBurst)
	if s.opts.ActivityRate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sess.log.WithError(err).Debug("Websocket closed unexpectedly")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.log.WithError(err).Warn("Failed to parse client message")
			continue
		}
		s.handleMessage(sess, limiter, msg)
	}
}

func (s *Server) handleMessage(sess *Session, limiter *rate.Limiter, msg ClientMessage) {
	switch msg.Type {
	case MsgRoute:
		sess.navigate(eval.NormalizeRoute(msg.Route))
	case MsgActivity:
		if !limiter.Allow() {
			s.metrics.DroppedActivity.Inc()
			return
		}
		sess.conn.dispatch(monitor.EventKind(msg.Kind))
	case MsgConfirm:
		if !sess.conn.resolvePrompt(msg.ID, msg.Stay) {
			sess.log.WithField("prompt_id", msg.ID).Debug("Answer for unknown or withdrawn prompt")
		}
	case MsgLogout:
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
		defer cancel()
		sess.userLogout(ctx)
	default:
		sess.log.WithField("type", msg.Type).Warn("Unknown client message type")
	}
}

func (s *Server) keepAlive(conn *Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// Shutdown ends every live session; used when the daemon stops.
func (s *Server) Shutdown() {
	for _, sess := range s.registry.List() {
		sess.close()
	}
}
