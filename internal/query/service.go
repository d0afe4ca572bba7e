// Package query serves the read side over PostgreSQL. It never writes
// and never defaults missing data; aggregates are computed per request.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AhmedAmer72/Praesidium-AI/internal/claims"
	"github.com/AhmedAmer72/Praesidium-AI/internal/core"
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
	"github.com/AhmedAmer72/Praesidium-AI/internal/policy"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
)

type QueryService struct {
	db  *sql.DB
	now func() time.Time
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db, now: time.Now}
}

// HolderPolicies lists a holder's policies with derived display status.
func (qs *QueryService) HolderPolicies(ctx context.Context, holder string) ([]PolicyView, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT id, holder, protocol_id, premium_paid, coverage_amount,
		       created_at, expires_at, active, claimed
		FROM policies WHERE holder = $1 ORDER BY id
	`, holder)
	if err != nil {
		return nil, fmt.Errorf("%w: holder policies: %v", core.ErrLedgerUnavailable, err)
	}
	defer rows.Close()

	now := qs.now().UTC()
	var out []PolicyView
	for rows.Next() {
		var p policy.Policy
		if err := rows.Scan(&p.ID, &p.Holder, &p.ProtocolID, &p.PremiumPaid, &p.CoverageAmount,
			&p.CreatedAt, &p.ExpiresAt, &p.Active, &p.Claimed); err != nil {
			return nil, fmt.Errorf("%w: scan policy: %v", core.ErrLedgerUnavailable, err)
		}
		out = append(out, PolicyView{
			ID:             p.ID,
			Holder:         p.Holder,
			ProtocolID:     p.ProtocolID,
			PremiumPaid:    p.PremiumPaid,
			CoverageAmount: p.CoverageAmount,
			CreatedAt:      p.CreatedAt.UnixMicro(),
			ExpiresAt:      p.ExpiresAt.UnixMicro(),
			Status:         string(p.Status(now)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: holder policies: %v", core.ErrLedgerUnavailable, err)
	}
	return out, nil
}

// PolicyClaims lists every claim filed against a policy.
func (qs *QueryService) PolicyClaims(ctx context.Context, policyID uint64) ([]ClaimView, error) {
	return qs.listClaims(ctx, `WHERE policy_id = $1`, policyID)
}

// ClaimantClaims lists every claim filed by a claimant.
func (qs *QueryService) ClaimantClaims(ctx context.Context, claimant string) ([]ClaimView, error) {
	return qs.listClaims(ctx, `WHERE claimant = $1`, claimant)
}

func (qs *QueryService) listClaims(ctx context.Context, where string, arg interface{}) ([]ClaimView, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT id, policy_id, claimant, amount, trigger_type, submitted_at,
		       status, evidence, reject_reason, payout_tx_ref
		FROM claims `+where+` ORDER BY id
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("%w: list claims: %v", core.ErrLedgerUnavailable, err)
	}
	defer rows.Close()

	var out []ClaimView
	for rows.Next() {
		var (
			c           claims.Claim
			submittedAt time.Time
		)
		if err := rows.Scan(&c.ID, &c.PolicyID, &c.Claimant, &c.Amount, &c.TriggerType,
			&submittedAt, &c.Status, &c.Evidence, &c.RejectReason, &c.PayoutTxRef); err != nil {
			return nil, fmt.Errorf("%w: scan claim: %v", core.ErrLedgerUnavailable, err)
		}
		out = append(out, ClaimView{
			ID:           c.ID,
			PolicyID:     c.PolicyID,
			Claimant:     c.Claimant,
			Amount:       c.Amount,
			TriggerType:  c.TriggerType.String(),
			SubmittedAt:  submittedAt.UnixMicro(),
			Status:       c.Status.String(),
			Evidence:     c.Evidence,
			RejectReason: c.RejectReason,
			PayoutTxRef:  c.PayoutTxRef,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list claims: %v", core.ErrLedgerUnavailable, err)
	}
	return out, nil
}

// ProtocolMetricsFor aggregates a protocol's book. A protocol with no
// risk entry is ErrNotFound — metrics are only served for protocols the
// oracle knows.
func (qs *QueryService) ProtocolMetricsFor(ctx context.Context, protocolID string) (ProtocolMetrics, error) {
	m := ProtocolMetrics{ProtocolID: protocolID}

	var riskScore int
	var rateBps int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT risk_score, premium_rate_bps FROM risk_entries WHERE protocol_id = $1
	`, protocolID).Scan(&riskScore, &rateBps)
	if err == sql.ErrNoRows {
		return ProtocolMetrics{}, fmt.Errorf("%w: risk entry for protocol %q", core.ErrNotFound, protocolID)
	}
	if err != nil {
		return ProtocolMetrics{}, fmt.Errorf("%w: protocol metrics: %v", core.ErrLedgerUnavailable, err)
	}
	m.RiskScore = riskScore
	m.PremiumRateBps = rateBps
	entry := risk.Entry{RiskScore: riskScore}
	m.RiskLevel = entry.Level()

	now := qs.now().UTC()
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(premium_paid), 0),
		       COALESCE(SUM(coverage_amount) FILTER (WHERE active AND NOT claimed AND expires_at > $2), 0),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE active AND NOT claimed AND expires_at > $2)
		FROM policies WHERE protocol_id = $1
	`, protocolID, now).Scan(&m.TotalPremiums, &m.TotalCoverage, &m.PolicyCount, &m.ActivePolicies)
	if err != nil {
		return ProtocolMetrics{}, fmt.Errorf("%w: protocol metrics: %v", core.ErrLedgerUnavailable, err)
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE c.status = $2),
		       COALESCE(SUM(c.amount) FILTER (WHERE c.status = $2), 0)
		FROM claims c
		JOIN policies p ON p.id = c.policy_id
		WHERE p.protocol_id = $1
	`, protocolID, claims.StatusPaid).Scan(&m.ClaimCount, &m.PaidClaims, &m.TotalClaimsPaid)
	if err != nil {
		return ProtocolMetrics{}, fmt.Errorf("%w: protocol metrics: %v", core.ErrLedgerUnavailable, err)
	}

	if m.TotalPremiums > 0 {
		m.LossRatio = fpmath.Ratio(m.TotalClaimsPaid, m.TotalPremiums)
	}

	return m, nil
}
