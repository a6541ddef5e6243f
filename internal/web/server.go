package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"pvebot/internal/monitor"
	"pvebot/internal/store"
	"pvebot/internal/utils"
	"pvebot/internal/version"
)

// Server is the dashboard HTTP surface.
type Server struct {
	hub     *Hub
	limiter *RateLimiter
	mon     *monitor.Monitor
	history *store.HistoryStore
	notify  *store.NotifyStore
	log     *utils.Logger
	srv     *http.Server
}

// NewServer builds the router and hub. Start launches them.
func NewServer(addr, token string, mon *monitor.Monitor, history *store.HistoryStore, notify *store.NotifyStore, log *utils.Logger) *Server {
	s := &Server{
		hub:     NewHub(log),
		limiter: NewRateLimiter(rate.Every(time.Minute/100), 10),
		mon:     mon,
		history: history,
		notify:  notify,
		log:     log,
	}

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	registerValidations()
	r := gin.New()
	r.Use(gin.Recovery(), SecurityHeaders(), s.limiter.Middleware())

	r.GET("/healthz", s.handleHealth)

	authed := r.Group("/", TokenAuth(token))
	authed.GET("/api/status", s.handleStatus)
	authed.GET("/api/history/:name", s.handleHistory)
	authed.GET("/api/notifications", s.handleListNotifications)
	authed.POST("/api/notifications", s.handleRegisterNotification)
	authed.DELETE("/api/notifications/:type/:name", s.handleUnregisterNotification)
	authed.GET("/ws", s.hub.handleWS)

	s.srv = &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return s
}

// Broadcast forwards one snapshot payload to connected dashboard clients.
// Wired as the monitor's broadcast hook.
func (s *Server) Broadcast(payload []byte) {
	s.hub.Broadcast(payload)
}

// Start runs the hub and the HTTP listener.
func (s *Server) Start() {
	go s.hub.Run()
	go func() {
		s.log.Writef("dashboard listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Writef("dashboard server failed: %v", err)
		}
	}()
}

// Shutdown stops the listener, the hub, and the limiter sweep.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.hub.Stop()
	s.limiter.Stop()
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Current})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap, ok := s.mon.Snapshot()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no poll cycle has completed yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleHistory(c *gin.Context) {
	name := c.Param("name")
	entries := s.history.Series(name)
	if entries == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no history for entity", "name": name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "entries": entries})
}

func (s *Server) handleListNotifications(c *gin.Context) {
	nodes, vms := s.notify.Entries()
	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "vms": vms})
}

// registerValidations adds the snowflake check for Discord channel ids.
// Safe to call more than once; re-registration just overwrites.
func registerValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("snowflake", func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		if len(id) < 15 || len(id) > 22 {
			return false
		}
		for _, r := range id {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	})
}

// registerRequest is the POST /api/notifications body.
type registerRequest struct {
	Type      string `json:"type" binding:"required,oneof=node vm"`
	Name      string `json:"name" binding:"required"`
	ChannelID string `json:"channel_id" binding:"required,snowflake"`
}

func (s *Server) handleRegisterNotification(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var err error
	if req.Type == "node" {
		err = s.notify.RegisterNode(req.Name, req.ChannelID)
	} else {
		err = s.notify.RegisterVM(req.Name, req.ChannelID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"type": req.Type, "name": req.Name, "channel_id": req.ChannelID})
}

func (s *Server) handleUnregisterNotification(c *gin.Context) {
	kind := c.Param("type")
	name := c.Param("name")
	var (
		removed bool
		err     error
	)
	switch kind {
	case "node":
		removed, err = s.notify.UnregisterNode(name)
	case "vm":
		removed, err = s.notify.UnregisterVM(name)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be node or vm"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "not registered", "name": name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": kind, "name": name})
}
