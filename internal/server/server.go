// Package server exposes a read-only HTTP status surface for the dictation
// pipeline: current phase, circuit state, and recent correction outcomes.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alkime/dictate/internal/config"
	"github.com/alkime/dictate/internal/dictation"
	"github.com/alkime/dictate/internal/store"
)

const defaultOutcomeLimit = 20

// PhaseReader reports the current dictation phase.
type PhaseReader interface {
	Phase() dictation.Phase
}

// CircuitReader reports the correction circuit breaker state.
type CircuitReader interface {
	ProviderID() string
	IsCircuitOpen(ctx context.Context, providerID string) (bool, error)
}

// OutcomeReader lists recent correction outcomes.
type OutcomeReader interface {
	RecentOutcomes(ctx context.Context, limit int) ([]store.Outcome, error)
}

// Server represents the HTTP status server.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	router   *gin.Engine
	phases   PhaseReader
	circuit  CircuitReader
	outcomes OutcomeReader
}

// New creates a new Server instance.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	phases PhaseReader,
	circuit CircuitReader,
	outcomes OutcomeReader,
) *Server {
	// Set Gin mode based on environment
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	server := &Server{
		config:   cfg,
		logger:   logger,
		router:   router,
		phases:   phases,
		circuit:  circuit,
		outcomes: outcomes,
	}

	// Setup middleware and routes
	setupSecurityMiddleware(router, cfg, logger)
	server.setupRoutes()

	return server
}

// Router exposes the underlying router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server.
func Run(s *Server) error {
	s.logger.Info("Status server listening", "port", s.config.Port)
	return s.router.Run(":" + s.config.Port)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/corrections", s.handleCorrections)
	}
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "dictate",
	})
}

// handleStatus reports the dictation phase and the correction circuit state.
func (s *Server) handleStatus(c *gin.Context) {
	providerID := s.circuit.ProviderID()

	open, err := s.circuit.IsCircuitOpen(c.Request.Context(), providerID)
	if err != nil {
		s.logger.Error("Failed to read circuit state", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read circuit state"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phase":       s.phases.Phase(),
		"provider":    providerID,
		"circuitOpen": open,
	})
}

// handleCorrections lists recent correction outcomes, newest first.
func (s *Server) handleCorrections(c *gin.Context) {
	limit := defaultOutcomeLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	outcomes, err := s.outcomes.RecentOutcomes(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list correction outcomes", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list outcomes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}
