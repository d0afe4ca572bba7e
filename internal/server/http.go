// Package server exposes the engine and query layer over HTTP/JSON.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/AhmedAmer72/Praesidium-AI/internal/core"
	"github.com/AhmedAmer72/Praesidium-AI/internal/ledger"
	"github.com/AhmedAmer72/Praesidium-AI/internal/observability"
	"github.com/AhmedAmer72/Praesidium-AI/internal/query"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
)

// Server wires the HTTP surface: engine writes, query reads, probes.
type Server struct {
	engine  *core.Engine
	queries *query.QueryService
	store   ledger.Store
	cache   *risk.Cache
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger

	httpServer *http.Server
}

func New(
	engine *core.Engine,
	queries *query.QueryService,
	store ledger.Store,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	return &Server{
		engine:  engine,
		queries: queries,
		store:   store,
		cache:   risk.NewCache(risk.DefaultCacheTTL),
		health:  health,
		metrics: metrics,
		log:     log,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.observe())

	r.GET("/healthz", gin.WrapF(s.health.LivenessHandler))
	r.GET("/readyz", gin.WrapF(s.health.ReadinessHandler))

	v1 := r.Group("/v1")
	{
		v1.GET("/quote", s.GetQuote)
		v1.GET("/capacity", s.GetCapacity)

		v1.POST("/policies", s.CreatePolicy)
		v1.GET("/policies/:id", s.GetPolicy)
		v1.GET("/policies/:id/claims", s.ListPolicyClaims)
		v1.GET("/holders/:address/policies", s.ListHolderPolicies)

		v1.POST("/claims", s.SubmitClaim)
		v1.GET("/claims/:id", s.GetClaim)
		v1.POST("/claims/:id/process", s.ProcessClaim)
		v1.POST("/claims/:id/reject", s.RejectClaim)
		v1.GET("/claimants/:address/claims", s.ListClaimantClaims)

		v1.GET("/protocols/:id/risk", s.GetRiskEntry)
		v1.GET("/protocols/:id/metrics", s.GetProtocolMetrics)
		v1.GET("/protocols/:id/trigger", s.GetTrigger)
		v1.GET("/protocols/:id/trigger/history", s.GetTriggerHistory)

		admin := v1.Group("/admin")
		{
			admin.PUT("/protocols/:id/risk", s.PutRiskEntry)
			admin.POST("/protocols/:id/trigger/activate", s.ActivateTrigger)
			admin.POST("/protocols/:id/trigger/deactivate", s.DeactivateTrigger)
		}
	}

	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// observe records the request counters and durations.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if s.metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := strconv.Itoa(c.Writer.Status())
		s.metrics.APIRequests.WithLabelValues(route, code).Inc()
		s.metrics.APIDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if c.Writer.Status() >= 500 {
			s.metrics.APIErrors.WithLabelValues(route).Inc()
		}
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Retryable
// errors map to statuses callers are expected to retry on.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, core.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, core.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, core.ErrPolicyNotEligible):
		status, code = http.StatusUnprocessableEntity, "policy_not_eligible"
	case errors.Is(err, core.ErrNoActiveTrigger):
		status, code = http.StatusUnprocessableEntity, "no_active_trigger"
	case errors.Is(err, core.ErrDuplicateClaim):
		status, code = http.StatusConflict, "duplicate_claim"
	case errors.Is(err, core.ErrCapacityExceeded):
		status, code = http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, core.ErrConcurrencyConflict):
		status, code = http.StatusConflict, "concurrency_conflict"
	case errors.Is(err, core.ErrLedgerUnavailable):
		status, code = http.StatusServiceUnavailable, "ledger_unavailable"
	case errors.Is(err, core.ErrTransferFailed):
		status, code = http.StatusBadGateway, "transfer_failed"
	}

	if status >= 500 {
		s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error(), "retryable": core.Retryable(err)})
}
