// Package api serves the operator-facing status endpoints.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/journal"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/order"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/replicate"
	"github.com/Devansh-ops/delta-exchange-copy-trade/internal/stream"
)

// Meta describes the fixed runtime settings exposed on /api/status.
type Meta struct {
	Multiplier float64
	DryRun     bool
	OrderType  string
	Venue      string
	Version    string
}

// Server wires HTTP endpoints around the bot's live components. All handlers
// are read-only; the API never mutates replication state.
type Server struct {
	Router  *gin.Engine
	manager *stream.Manager
	ledger  *replicate.Ledger
	queue   *order.Queue
	store   *journal.Store
	meta    Meta
	log     *zap.Logger
	started time.Time
}

func NewServer(manager *stream.Manager, ledger *replicate.Ledger, queue *order.Queue, store *journal.Store, meta Meta, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))

	s := &Server{
		Router:  r,
		manager: manager,
		ledger:  ledger,
		queue:   queue,
		store:   store,
		meta:    meta,
		log:     log,
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/caps", s.getCaps)
		api.GET("/decisions", s.getDecisions)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"feed":        s.manager.Status(),
		"queue_depth": s.queue.Depth(),
		"uptime_sec":  int64(time.Since(s.started).Seconds()),
		"multiplier":  s.meta.Multiplier,
		"dry_run":     s.meta.DryRun,
		"order_type":  s.meta.OrderType,
		"venue":       s.meta.Venue,
		"version":     s.meta.Version,
	})
}

func (s *Server) getCaps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"caps": s.ledger.Snapshot()})
}

func (s *Server) getDecisions(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision store disabled"})
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..1000"})
			return
		}
		limit = n
	}
	recs, err := s.store.Recent(limit)
	if err != nil {
		s.log.Warn("decision query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs})
}
