package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AhmedAmer72/Praesidium-AI/internal/claims"
	"github.com/AhmedAmer72/Praesidium-AI/internal/core"
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
	"github.com/AhmedAmer72/Praesidium-AI/internal/policy"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

func parseID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "invalid " + name})
		return 0, false
	}
	return id, true
}

func policyJSON(p policy.Policy, now time.Time) gin.H {
	return gin.H{
		"id":              p.ID,
		"holder":          p.Holder,
		"protocol_id":     p.ProtocolID,
		"premium_paid":    fpmath.FormatAmount(p.PremiumPaid),
		"coverage_amount": fpmath.FormatAmount(p.CoverageAmount),
		"created_at":      p.CreatedAt.Format(time.RFC3339),
		"expires_at":      p.ExpiresAt.Format(time.RFC3339),
		"status":          string(p.Status(now)),
	}
}

func claimJSON(cl claims.Claim) gin.H {
	out := gin.H{
		"id":           cl.ID,
		"policy_id":    cl.PolicyID,
		"claimant":     cl.Claimant,
		"amount":       fpmath.FormatAmount(cl.Amount),
		"trigger_type": cl.TriggerType.String(),
		"submitted_at": cl.SubmittedAt.Format(time.RFC3339),
		"status":       cl.Status.String(),
	}
	if cl.Evidence != "" {
		out["evidence"] = cl.Evidence
	}
	if cl.RejectReason != "" {
		out["reject_reason"] = cl.RejectReason
	}
	if cl.PayoutTxRef != "" {
		out["payout_tx_ref"] = cl.PayoutTxRef
	}
	return out
}

// GetQuote handles GET /v1/quote?protocol_id=aave&coverage=50000
func (s *Server) GetQuote(c *gin.Context) {
	protocolID := c.Query("protocol_id")
	if protocolID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "protocol_id is required"})
		return
	}
	coverage, err := fpmath.ParseAmount(c.Query("coverage"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}

	q, err := s.engine.QuotePremium(c.Request.Context(), protocolID, coverage)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"protocol_id":      q.ProtocolID,
		"coverage_amount":  fpmath.FormatAmount(q.CoverageAmount),
		"premium":          fpmath.FormatAmount(q.Premium),
		"premium_rate_bps": q.PremiumRateBps,
		"risk_score":       q.RiskScore,
		"risk_level":       string(q.RiskLevel),
	})
}

// GetCapacity handles GET /v1/capacity
func (s *Server) GetCapacity(c *gin.Context) {
	report, err := s.engine.GetCapacity(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := gin.H{
		"pool_balance":          fpmath.FormatAmount(report.Snapshot.PoolBalance),
		"total_active_coverage": fpmath.FormatAmount(report.Snapshot.TotalActiveCoverage),
		"total_claims_paid":     fpmath.FormatAmount(report.Snapshot.TotalClaimsPaid),
		"as_of":                 report.Snapshot.AsOf.Format(time.RFC3339),
		"utilization":           report.Utilization,
		"available_capacity":    fpmath.FormatAmount(report.AvailableCapacity),
		"remaining_capacity":    fpmath.FormatAmount(report.RemainingCapacity),
		"max_single_claim":      fpmath.FormatAmount(report.MaxSingleClaim),
		"status":                string(report.Status),
	}
	if report.Infinite {
		out["collateralization"] = "infinite"
	} else {
		out["collateralization"] = report.Collateralization
	}
	c.JSON(http.StatusOK, out)
}

type createPolicyRequest struct {
	Holder       string `json:"holder" binding:"required"`
	ProtocolID   string `json:"protocol_id" binding:"required"`
	Coverage     string `json:"coverage" binding:"required"`
	DurationDays int    `json:"duration_days" binding:"required"`
}

// CreatePolicy handles POST /v1/policies
func (s *Server) CreatePolicy(c *gin.Context) {
	var req createPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "invalid request body"})
		return
	}
	coverage, err := fpmath.ParseAmount(req.Coverage)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}

	p, err := s.engine.CreatePolicy(c.Request.Context(), core.CreatePolicyRequest{
		Holder:     req.Holder,
		ProtocolID: req.ProtocolID,
		Coverage:   coverage,
		Duration:   time.Duration(req.DurationDays) * 24 * time.Hour,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"policy": policyJSON(p, time.Now().UTC())})
}

// GetPolicy handles GET /v1/policies/:id
func (s *Server) GetPolicy(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	p, err := s.store.ReadPolicy(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policy": policyJSON(p, time.Now().UTC())})
}

// ListHolderPolicies handles GET /v1/holders/:address/policies
func (s *Server) ListHolderPolicies(c *gin.Context) {
	policies, err := s.queries.HolderPolicies(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies, "count": len(policies)})
}

type submitClaimRequest struct {
	PolicyID    uint64 `json:"policy_id" binding:"required"`
	TriggerType string `json:"trigger_type" binding:"required"`
	Evidence    string `json:"evidence"`
}

// SubmitClaim handles POST /v1/claims
func (s *Server) SubmitClaim(c *gin.Context) {
	var req submitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "invalid request body"})
		return
	}
	t, err := trigger.ParseType(req.TriggerType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}

	cl, err := s.engine.SubmitClaim(c.Request.Context(), core.SubmitClaimRequest{
		PolicyID:    req.PolicyID,
		TriggerType: t,
		Evidence:    req.Evidence,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"claim": claimJSON(cl)})
}

// GetClaim handles GET /v1/claims/:id
func (s *Server) GetClaim(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	cl, err := s.store.ReadClaim(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim": claimJSON(cl)})
}

// ProcessClaim handles POST /v1/claims/:id/process
func (s *Server) ProcessClaim(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := s.engine.ProcessClaimAutomatically(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := gin.H{"outcome": string(res.Outcome), "claim": claimJSON(res.Claim)}
	if res.Reason != "" {
		out["reason"] = res.Reason
	}
	c.JSON(http.StatusOK, out)
}

type rejectClaimRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RejectClaim handles POST /v1/claims/:id/reject
func (s *Server) RejectClaim(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req rejectClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "reason is required"})
		return
	}

	cl, err := s.engine.RejectClaim(c.Request.Context(), id, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim": claimJSON(cl)})
}

// ListPolicyClaims handles GET /v1/policies/:id/claims
func (s *Server) ListPolicyClaims(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	cls, err := s.queries.PolicyClaims(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claims": cls, "count": len(cls)})
}

// ListClaimantClaims handles GET /v1/claimants/:address/claims
func (s *Server) ListClaimantClaims(c *gin.Context) {
	cls, err := s.queries.ClaimantClaims(c.Request.Context(), c.Param("address"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claims": cls, "count": len(cls)})
}

// GetRiskEntry handles GET /v1/protocols/:id/risk. Reads serve from the
// TTL cache when fresh; a stale hit is refreshed from the ledger, and
// only if the ledger is unreachable is the stale entry served, flagged.
func (s *Server) GetRiskEntry(c *gin.Context) {
	protocolID := c.Param("id")

	cached, stale, ok := s.cache.Get(protocolID)
	if ok && !stale {
		s.renderRiskEntry(c, cached, false)
		return
	}

	entry, err := s.store.ReadRiskEntry(c.Request.Context(), protocolID)
	if err != nil {
		if ok && core.Retryable(err) {
			s.renderRiskEntry(c, cached, true)
			return
		}
		s.writeError(c, err)
		return
	}

	s.cache.Put(entry)
	s.renderRiskEntry(c, entry, false)
}

func (s *Server) renderRiskEntry(c *gin.Context, entry risk.Entry, stale bool) {
	c.JSON(http.StatusOK, gin.H{
		"protocol_id":      entry.ProtocolID,
		"risk_score":       entry.RiskScore,
		"risk_level":       string(entry.Level()),
		"premium_rate_bps": entry.PremiumRateBps,
		"updated_at":       entry.UpdatedAt.Format(time.RFC3339),
		"stale":            stale,
	})
}

// GetProtocolMetrics handles GET /v1/protocols/:id/metrics
func (s *Server) GetProtocolMetrics(c *gin.Context) {
	m, err := s.queries.ProtocolMetricsFor(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": m})
}

func triggerJSON(rec trigger.Record) gin.H {
	out := gin.H{
		"protocol_id":  rec.ProtocolID,
		"active":       rec.Active,
		"trigger_type": rec.Type.String(),
		"severity":     rec.Severity,
		"activated_at": rec.ActivatedAt.Format(time.RFC3339),
	}
	if !rec.DeactivatedAt.IsZero() {
		out["deactivated_at"] = rec.DeactivatedAt.Format(time.RFC3339)
	}
	return out
}

// GetTrigger handles GET /v1/protocols/:id/trigger
func (s *Server) GetTrigger(c *gin.Context) {
	rec, err := s.engine.TriggerStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trigger": triggerJSON(rec)})
}

// GetTriggerHistory handles GET /v1/protocols/:id/trigger/history
func (s *Server) GetTriggerHistory(c *gin.Context) {
	history, err := s.store.TriggerHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(history))
	for _, rec := range history {
		out = append(out, triggerJSON(rec))
	}
	c.JSON(http.StatusOK, gin.H{"history": out, "count": len(out)})
}

type putRiskEntryRequest struct {
	RiskScore      *int   `json:"risk_score" binding:"required"`
	PremiumRateBps *int64 `json:"premium_rate_bps" binding:"required"`
}

// PutRiskEntry handles PUT /v1/admin/protocols/:id/risk — the admin
// alternative to the oracle feed.
func (s *Server) PutRiskEntry(c *gin.Context) {
	var req putRiskEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "invalid request body"})
		return
	}

	entry := risk.Entry{
		ProtocolID:     c.Param("id"),
		RiskScore:      *req.RiskScore,
		PremiumRateBps: *req.PremiumRateBps,
		UpdatedAt:      time.Now().UTC(),
	}
	change, err := s.engine.UpdateRiskEntry(c.Request.Context(), entry)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.cache.Invalidate(entry.ProtocolID)

	c.JSON(http.StatusOK, gin.H{
		"protocol_id": entry.ProtocolID,
		"old_score":   change.OldScore,
		"new_score":   change.NewScore,
		"significant": change.Significant,
	})
}

type activateTriggerRequest struct {
	TriggerType string `json:"trigger_type" binding:"required"`
	Severity    *int   `json:"severity" binding:"required"`
}

// ActivateTrigger handles POST /v1/admin/protocols/:id/trigger/activate
func (s *Server) ActivateTrigger(c *gin.Context) {
	var req activateTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "invalid request body"})
		return
	}
	t, err := trigger.ParseType(req.TriggerType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return
	}

	rec, err := s.engine.ActivateTrigger(c.Request.Context(), c.Param("id"), t, *req.Severity)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trigger": triggerJSON(rec)})
}

// DeactivateTrigger handles POST /v1/admin/protocols/:id/trigger/deactivate
func (s *Server) DeactivateTrigger(c *gin.Context) {
	rec, err := s.engine.DeactivateTrigger(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trigger": triggerJSON(rec)})
}
