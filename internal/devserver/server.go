// Package devserver is an in-memory reference implementation of the
// notification backend: the REST endpoints the one-shot client calls and the
// WebSocket endpoint the live channel speaks. It backs the integration tests
// and `notifyhub serve`; production deployments talk to the real backend.
package devserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/notify-hub/internal/model"
	"github.com/jwalitptl/notify-hub/internal/wire"
	"github.com/jwalitptl/notify-hub/pkg/logger"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{Status: "success", Data: data}
}

func NewErrorResponse(message string) *Response {
	return &Response{Status: "error", Message: message}
}

type Server struct {
	cfg      *Config
	logger   *logger.Logger
	store    *memStore
	hub      *hub
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

func NewServer(cfg *Config, log *logger.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: log,
		store:  newMemStore(),
		hub:    newHub(log),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.engine = s.buildRouter()
	if cfg.SeedCount > 0 {
		s.seed(cfg.SeedCount)
	}
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/api/v1")
	v1.Use(s.Authenticate())
	{
		v1.GET("/notifications", s.listNotifications)
		v1.POST("/notifications", s.createNotification)
		v1.PATCH("/notifications/:id/read", s.markRead)
		v1.POST("/notifications/read-all", s.markAllRead)
		v1.DELETE("/notifications/:id", s.deleteNotification)
		v1.GET("/ws", s.handleWS)
	}
	return engine
}

// Handler exposes the router for in-process test servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run() error {
	s.logger.Info("dev server listening", "addr", s.cfg.Addr)
	return s.engine.Run(s.cfg.Addr)
}

func (s *Server) seed(count int) {
	for i := 0; i < count; i++ {
		s.store.Add("dev", model.Notification{
			Title:   fmt.Sprintf("Seed notification %d", i+1),
			Message: "Generated at startup for local development",
			Type:    model.TypeInfo,
		})
	}
}

func (s *Server) listNotifications(c *gin.Context) {
	userID := c.GetString(userIDKey)
	c.JSON(http.StatusOK, NewSuccessResponse(s.store.List(userID)))
}

type createNotificationRequest struct {
	Title         string `json:"title" binding:"required"`
	Message       string `json:"message" binding:"required"`
	Type          string `json:"type" binding:"omitempty,oneof=SUCCESS WARNING ERROR INFO"`
	ActionURL     string `json:"actionUrl" binding:"omitempty,url"`
	RelatedEntity string `json:"relatedEntity"`
	UserID        string `json:"userId"`
	Broadcast     bool   `json:"broadcast"`
}

// createNotification injects a server-side business event, the only way
// records come into existence. Broadcast events go to every live session.
func (s *Server) createNotification(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	target := req.UserID
	if target == "" {
		target = c.GetString(userIDKey)
	}

	stored := s.store.Add(target, model.Notification{
		Title:         req.Title,
		Message:       req.Message,
		Type:          model.NotificationType(req.Type),
		ActionURL:     req.ActionURL,
		RelatedEntity: req.RelatedEntity,
	})

	if req.Broadcast {
		s.hub.broadcast(wire.Push{
			Kind:    wire.KindDelta,
			Topic:   wire.TopicBroadcast,
			Payload: rawPayload(stored),
		})
	} else {
		s.hub.pushToUser(target, wire.Push{
			Kind:    wire.KindDelta,
			Topic:   wire.TopicUserNotifications,
			Payload: rawPayload(stored),
		})
	}
	s.pushUnread(target)

	c.JSON(http.StatusCreated, NewSuccessResponse(stored))
}

func (s *Server) markRead(c *gin.Context) {
	userID := c.GetString(userIDKey)
	id := model.ID(c.Param("id"))
	if !s.store.MarkRead(userID, id) {
		c.JSON(http.StatusNotFound, NewErrorResponse("notification not found"))
		return
	}
	s.pushUnread(userID)
	c.JSON(http.StatusOK, NewSuccessResponse(nil))
}

func (s *Server) markAllRead(c *gin.Context) {
	userID := c.GetString(userIDKey)
	changed := s.store.MarkAllRead(userID)
	s.pushUnread(userID)
	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"marked": changed}))
}

func (s *Server) deleteNotification(c *gin.Context) {
	userID := c.GetString(userIDKey)
	id := model.ID(c.Param("id"))
	if !s.store.Delete(userID, id) {
		c.JSON(http.StatusNotFound, NewErrorResponse("notification not found"))
		return
	}
	s.pushUnread(userID)
	c.JSON(http.StatusOK, NewSuccessResponse(nil))
}

func (s *Server) pushUnread(userID string) {
	s.hub.pushToUser(userID, wire.Push{
		Kind:    wire.KindUnread,
		Topic:   wire.TopicUserUnread,
		Payload: rawPayload(s.store.Unread(userID)),
	})
}

// handleWS upgrades the connection and serves the live channel protocol for
// the session's lifetime.
func (s *Server) handleWS(c *gin.Context) {
	userID := c.GetString(userIDKey)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error(err, "websocket upgrade failed", "user", userID)
		return
	}

	sess := &session{
		conn:    conn,
		userID:  userID,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.CommandRate), s.cfg.CommandBurst),
		subs:    make(map[string]bool),
	}
	s.hub.add(sess)
	defer func() {
		s.hub.remove(sess)
		conn.Close()
	}()
	s.logger.Debug("live session opened", "user", userID)

	for {
		var cmd wire.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			s.logger.Debug("live session closed", "user", userID, "error", err)
			return
		}
		s.handleCommand(sess, cmd)
	}
}

func (s *Server) handleCommand(sess *session, cmd wire.Command) {
	switch cmd.Op {
	case wire.OpSubscribe:
		sess.setSubscribed(cmd.Topic, true)

	case wire.OpUnsubscribe:
		sess.setSubscribed(cmd.Topic, false)

	case wire.OpReplay:
		push := wire.Push{
			Kind:    wire.KindReplay,
			Topic:   wire.TopicUserNotifications,
			Payload: rawPayload(s.store.List(sess.userID)),
		}
		if err := sess.send(push); err != nil {
			s.logger.Debug("replay send failed", "user", sess.userID, "error", err)
		}

	case wire.OpMarkRead, wire.OpMarkAllRead:
		if !sess.limiter.Allow() {
			s.logger.Warn("command rate limit exceeded", "user", sess.userID, "op", cmd.Op)
			return
		}
		if cmd.Op == wire.OpMarkRead {
			s.store.MarkRead(sess.userID, cmd.NotificationID)
		} else {
			s.store.MarkAllRead(sess.userID)
		}
		s.ack(sess, cmd.Op)
		s.pushUnread(sess.userID)

	default:
		s.logger.Debug("unknown live command", "user", sess.userID, "op", cmd.Op)
	}
}

func (s *Server) ack(sess *session, op string) {
	if !sess.subscribed(wire.TopicUserResponses) {
		return
	}
	push := wire.Push{
		Kind:    wire.KindAck,
		Topic:   wire.TopicUserResponses,
		Payload: rawPayload(map[string]string{"op": op}),
	}
	if err := sess.send(push); err != nil {
		s.logger.Debug("ack send failed", "user", sess.userID, "error", err)
	}
}

// Inject stores and pushes a notification without going through HTTP, for
// tests and the CLI's demo traffic.
func (s *Server) Inject(userID string, n model.Notification) model.Notification {
	stored := s.store.Add(userID, n)
	s.hub.pushToUser(userID, wire.Push{
		Kind:    wire.KindDelta,
		Topic:   wire.TopicUserNotifications,
		Payload: rawPayload(stored),
	})
	s.pushUnread(userID)
	return stored
}
