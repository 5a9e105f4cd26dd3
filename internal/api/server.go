// Package api serves the read-only status API.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plantd/internal/controller"
	"github.com/dokzlo13/plantd/internal/ledger"
)

// Ledger page size limits
const (
	DefaultLedgerLimit = 50
	MaxLedgerLimit     = 500
)

// StatusSource exposes the last settled device status.
type StatusSource interface {
	Status() (controller.Status, bool)
}

// Connectivity reports broker connectivity.
type Connectivity interface {
	IsConnected() bool
}

// LedgerReader lists recent ledger entries.
type LedgerReader interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// Server is the status HTTP server.
type Server struct {
	engine          *gin.Engine
	status          StatusSource
	conn            Connectivity
	ledger          LedgerReader
	shutdownTimeout time.Duration
}

// NewServer builds the router. ledger may be nil, in which case the ledger
// endpoint answers 404.
func NewServer(status StatusSource, conn Connectivity, ledger LedgerReader, shutdownTimeout time.Duration) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	setupMiddleware(engine)

	s := &Server{
		engine:          engine,
		status:          status,
		conn:            conn,
		ledger:          ledger,
		shutdownTimeout: shutdownTimeout,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.health)
	s.engine.GET("/ready", s.ready)

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/state", s.state)
		if s.ledger != nil {
			v1.GET("/ledger", s.ledgerEntries)
		}
	}
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Msg("Starting status server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// ready fails while the broker is unreachable or the controller has not booted.
func (s *Server) ready(c *gin.Context) {
	mqtt := "disconnected"
	if s.conn != nil && s.conn.IsConnected() {
		mqtt = "connected"
	}
	_, booted := s.status.Status()

	if mqtt != "connected" || !booted {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"mqtt":   mqtt,
			"booted": booted,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "mqtt": mqtt, "booted": booted})
}

func (s *Server) state(c *gin.Context) {
	st, ok := s.status.Status()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "controller not started"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) ledgerEntries(c *gin.Context) {
	limit := DefaultLedgerLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, MaxLedgerLimit)
	}

	entries, err := s.ledger.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read ledger"})
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
