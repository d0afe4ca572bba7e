package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/AhmedAmer72/Praesidium-AI/internal/claims"
	core "github.com/AhmedAmer72/Praesidium-AI/internal/corerrs"
	"github.com/AhmedAmer72/Praesidium-AI/internal/policy"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
	"github.com/AhmedAmer72/Praesidium-AI/internal/solvency"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

// PostgresStore implements Store on PostgreSQL. CAS semantics come from
// conditional UPDATEs (rows-affected checks); multi-step operations run
// in a single transaction.
type PostgresStore struct {
	db       *sql.DB
	transfer Transfer
}

// Compile-time interface check
var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB, transfer Transfer) *PostgresStore {
	return &PostgresStore{db: db, transfer: transfer}
}

// ioErr wraps collaborator I/O failures so callers can classify them as
// retryable.
func ioErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrLedgerUnavailable, op, err)
}

func (s *PostgresStore) ReadPoolSnapshot(ctx context.Context) (solvency.Snapshot, error) {
	now := time.Now().UTC()
	var snap solvency.Snapshot
	snap.AsOf = now

	err := s.db.QueryRowContext(ctx,
		`SELECT balance, total_claims_paid FROM pool WHERE id = 1`,
	).Scan(&snap.PoolBalance, &snap.TotalClaimsPaid)
	if err != nil {
		return solvency.Snapshot{}, ioErr("read pool", err)
	}

	// Active coverage is computed at read time: expired, claimed, and
	// inactive policies fall out of the sum.
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(coverage_amount), 0)
		FROM policies
		WHERE active AND NOT claimed AND expires_at > $1
	`, now).Scan(&snap.TotalActiveCoverage)
	if err != nil {
		return solvency.Snapshot{}, ioErr("sum active coverage", err)
	}

	return snap, nil
}

func (s *PostgresStore) ReadRiskEntry(ctx context.Context, protocolID string) (risk.Entry, error) {
	var e risk.Entry
	err := s.db.QueryRowContext(ctx, `
		SELECT protocol_id, risk_score, premium_rate_bps, updated_at
		FROM risk_entries WHERE protocol_id = $1
	`, protocolID).Scan(&e.ProtocolID, &e.RiskScore, &e.PremiumRateBps, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return risk.Entry{}, fmt.Errorf("%w: risk entry for protocol %q", core.ErrNotFound, protocolID)
	}
	if err != nil {
		return risk.Entry{}, ioErr("read risk entry", err)
	}
	return e, nil
}

func (s *PostgresStore) WriteRiskEntry(ctx context.Context, entry risk.Entry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_entries (protocol_id, risk_score, premium_rate_bps, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (protocol_id) DO UPDATE
		SET risk_score = EXCLUDED.risk_score,
		    premium_rate_bps = EXCLUDED.premium_rate_bps,
		    updated_at = EXCLUDED.updated_at
	`, entry.ProtocolID, entry.RiskScore, entry.PremiumRateBps, entry.UpdatedAt)
	if err != nil {
		return ioErr("write risk entry", err)
	}
	return nil
}

func (s *PostgresStore) ListRiskEntries(ctx context.Context) ([]risk.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT protocol_id, risk_score, premium_rate_bps, updated_at
		FROM risk_entries ORDER BY protocol_id
	`)
	if err != nil {
		return nil, ioErr("list risk entries", err)
	}
	defer rows.Close()

	var out []risk.Entry
	for rows.Next() {
		var e risk.Entry
		if err := rows.Scan(&e.ProtocolID, &e.RiskScore, &e.PremiumRateBps, &e.UpdatedAt); err != nil {
			return nil, ioErr("scan risk entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list risk entries", err)
	}
	return out, nil
}

func (s *PostgresStore) ReadTrigger(ctx context.Context, protocolID string) (trigger.Record, error) {
	var rec trigger.Record
	var deactivated sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT protocol_id, active, trigger_type, severity, activated_at, deactivated_at
		FROM triggers WHERE protocol_id = $1
	`, protocolID).Scan(&rec.ProtocolID, &rec.Active, &rec.Type, &rec.Severity, &rec.ActivatedAt, &deactivated)
	if err == sql.ErrNoRows {
		return trigger.Record{}, fmt.Errorf("%w: trigger for protocol %q", core.ErrNotFound, protocolID)
	}
	if err != nil {
		return trigger.Record{}, ioErr("read trigger", err)
	}
	if deactivated.Valid {
		rec.DeactivatedAt = deactivated.Time
	}
	return rec, nil
}

func (s *PostgresStore) WriteTrigger(ctx context.Context, rec trigger.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ioErr("begin trigger tx", err)
	}
	defer tx.Rollback()

	// Archive the prior record — history survives overwrites.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trigger_history (protocol_id, active, trigger_type, severity, activated_at, deactivated_at)
		SELECT protocol_id, active, trigger_type, severity, activated_at, deactivated_at
		FROM triggers WHERE protocol_id = $1
	`, rec.ProtocolID)
	if err != nil {
		return ioErr("archive trigger", err)
	}

	var deactivated interface{}
	if !rec.DeactivatedAt.IsZero() {
		deactivated = rec.DeactivatedAt
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO triggers (protocol_id, active, trigger_type, severity, activated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (protocol_id) DO UPDATE
		SET active = EXCLUDED.active,
		    trigger_type = EXCLUDED.trigger_type,
		    severity = EXCLUDED.severity,
		    activated_at = EXCLUDED.activated_at,
		    deactivated_at = EXCLUDED.deactivated_at
	`, rec.ProtocolID, rec.Active, rec.Type, rec.Severity, rec.ActivatedAt, deactivated)
	if err != nil {
		return ioErr("write trigger", err)
	}

	if err := tx.Commit(); err != nil {
		return ioErr("commit trigger tx", err)
	}
	return nil
}

func (s *PostgresStore) TriggerHistory(ctx context.Context, protocolID string) ([]trigger.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT protocol_id, active, trigger_type, severity, activated_at, deactivated_at
		FROM trigger_history WHERE protocol_id = $1 ORDER BY id
	`, protocolID)
	if err != nil {
		return nil, ioErr("trigger history", err)
	}
	defer rows.Close()

	var out []trigger.Record
	for rows.Next() {
		var rec trigger.Record
		var deactivated sql.NullTime
		if err := rows.Scan(&rec.ProtocolID, &rec.Active, &rec.Type, &rec.Severity, &rec.ActivatedAt, &deactivated); err != nil {
			return nil, ioErr("scan trigger history", err)
		}
		if deactivated.Valid {
			rec.DeactivatedAt = deactivated.Time
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("trigger history", err)
	}
	return out, nil
}

func (s *PostgresStore) CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error) {
	if err := p.Validate(); err != nil {
		return policy.Policy{}, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return policy.Policy{}, ioErr("begin policy tx", err)
	}
	defer tx.Rollback()

	p.Version = 1
	err = tx.QueryRowContext(ctx, `
		INSERT INTO policies (holder, premium_paid, coverage_amount, protocol_id,
		                      created_at, expires_at, active, claimed, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, p.Holder, p.PremiumPaid, p.CoverageAmount, p.ProtocolID,
		p.CreatedAt, p.ExpiresAt, p.Active, p.Claimed, p.Version,
	).Scan(&p.ID)
	if err != nil {
		return policy.Policy{}, ioErr("insert policy", err)
	}

	// Premium lands in the pool atomically with the policy.
	_, err = tx.ExecContext(ctx,
		`UPDATE pool SET balance = balance + $1 WHERE id = 1`, p.PremiumPaid)
	if err != nil {
		return policy.Policy{}, ioErr("credit premium", err)
	}

	if err := tx.Commit(); err != nil {
		return policy.Policy{}, ioErr("commit policy tx", err)
	}
	return p, nil
}

func (s *PostgresStore) ReadPolicy(ctx context.Context, id uint64) (policy.Policy, error) {
	p, err := scanPolicy(s.db.QueryRowContext(ctx, `
		SELECT id, holder, premium_paid, coverage_amount, protocol_id,
		       created_at, expires_at, active, claimed, version
		FROM policies WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return policy.Policy{}, fmt.Errorf("%w: policy %d", core.ErrNotFound, id)
	}
	if err != nil {
		return policy.Policy{}, ioErr("read policy", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(row rowScanner) (policy.Policy, error) {
	var p policy.Policy
	err := row.Scan(&p.ID, &p.Holder, &p.PremiumPaid, &p.CoverageAmount, &p.ProtocolID,
		&p.CreatedAt, &p.ExpiresAt, &p.Active, &p.Claimed, &p.Version)
	return p, err
}

func (s *PostgresStore) PoliciesByHolder(ctx context.Context, holder string) ([]policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, holder, premium_paid, coverage_amount, protocol_id,
		       created_at, expires_at, active, claimed, version
		FROM policies WHERE holder = $1 ORDER BY id
	`, holder)
	if err != nil {
		return nil, ioErr("policies by holder", err)
	}
	defer rows.Close()

	var out []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, ioErr("scan policy", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("policies by holder", err)
	}
	return out, nil
}

func (s *PostgresStore) RecordClaim(ctx context.Context, c claims.Claim) (claims.Claim, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO claims (policy_id, claimant, amount, trigger_type, submitted_at,
		                    status, evidence, reject_reason, payout_tx_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', '')
		RETURNING id
	`, c.PolicyID, c.Claimant, c.Amount, c.TriggerType, c.SubmittedAt, c.Status, c.Evidence,
	).Scan(&c.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "idx_claims_one_open" {
			return claims.Claim{}, fmt.Errorf("%w: open claim exists for policy %d", core.ErrDuplicateClaim, c.PolicyID)
		}
		return claims.Claim{}, ioErr("insert claim", err)
	}
	return c, nil
}

func scanClaim(row rowScanner) (claims.Claim, error) {
	var c claims.Claim
	err := row.Scan(&c.ID, &c.PolicyID, &c.Claimant, &c.Amount, &c.TriggerType,
		&c.SubmittedAt, &c.Status, &c.Evidence, &c.RejectReason, &c.PayoutTxRef)
	return c, err
}

const claimColumns = `id, policy_id, claimant, amount, trigger_type,
	submitted_at, status, evidence, reject_reason, payout_tx_ref`

func (s *PostgresStore) ReadClaim(ctx context.Context, id uint64) (claims.Claim, error) {
	c, err := scanClaim(s.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return claims.Claim{}, fmt.Errorf("%w: claim %d", core.ErrNotFound, id)
	}
	if err != nil {
		return claims.Claim{}, ioErr("read claim", err)
	}
	return c, nil
}

func (s *PostgresStore) ClaimsByPolicy(ctx context.Context, policyID uint64) ([]claims.Claim, error) {
	return s.listClaims(ctx, `SELECT `+claimColumns+` FROM claims WHERE policy_id = $1 ORDER BY id`, policyID)
}

func (s *PostgresStore) ClaimsByClaimant(ctx context.Context, claimant string) ([]claims.Claim, error) {
	return s.listClaims(ctx, `SELECT `+claimColumns+` FROM claims WHERE claimant = $1 ORDER BY id`, claimant)
}

func (s *PostgresStore) listClaims(ctx context.Context, query string, arg interface{}) ([]claims.Claim, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, ioErr("list claims", err)
	}
	defer rows.Close()

	var out []claims.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, ioErr("scan claim", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list claims", err)
	}
	return out, nil
}

func (s *PostgresStore) TransitionClaim(ctx context.Context, id uint64, from, to claims.Status, reason string) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: transition %s -> %s not allowed", core.ErrInvalidInput, from, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE claims SET status = $1, reject_reason = CASE WHEN $1 = $2 THEN $3 ELSE reject_reason END
		WHERE id = $4 AND status = $5
	`, to, claims.StatusRejected, reason, id, from)
	if err != nil {
		return ioErr("transition claim", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return ioErr("transition claim", err)
	}
	if n == 0 {
		// Either the claim is missing or another writer got there first.
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM claims WHERE id = $1)`, id).Scan(&exists); err != nil {
			return ioErr("transition claim", err)
		}
		if !exists {
			return fmt.Errorf("%w: claim %d", core.ErrNotFound, id)
		}
		return fmt.Errorf("%w: claim %d not in %s", core.ErrConcurrencyConflict, id, from)
	}
	return nil
}

func (s *PostgresStore) PayClaim(ctx context.Context, claimID uint64) (claims.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return claims.Claim{}, ioErr("begin payout tx", err)
	}
	defer tx.Rollback()

	// Lock the claim row; the status check under the lock is the CAS
	// that serializes concurrent processors of the same claim.
	c, err := scanClaim(tx.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE id = $1 FOR UPDATE`, claimID))
	if err == sql.ErrNoRows {
		return claims.Claim{}, fmt.Errorf("%w: claim %d", core.ErrNotFound, claimID)
	}
	if err != nil {
		return claims.Claim{}, ioErr("lock claim", err)
	}
	if c.Status != claims.StatusPending {
		return claims.Claim{}, fmt.Errorf("%w: claim %d is %s, expected pending", core.ErrConcurrencyConflict, claimID, c.Status)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE policies SET claimed = TRUE, active = FALSE, version = version + 1
		WHERE id = $1 AND NOT claimed
	`, c.PolicyID)
	if err != nil {
		return claims.Claim{}, ioErr("flip policy claimed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return claims.Claim{}, fmt.Errorf("%w: policy %d already claimed", core.ErrConcurrencyConflict, c.PolicyID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE pool SET balance = balance - $1, total_claims_paid = total_claims_paid + $1 WHERE id = 1
	`, c.Amount)
	if err != nil {
		return claims.Claim{}, ioErr("debit pool", err)
	}

	// The transfer runs inside the transaction window: a transfer
	// failure rolls back every mutation and the claim stays Pending. A
	// commit failure after a successful transfer is surfaced as
	// LedgerUnavailable for operator reconciliation against the
	// transfers table.
	ref, err := s.transfer.TransferPayout(ctx, c.Claimant, c.Amount)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return claims.Claim{}, ioErr("rollback after transfer failure", rbErr)
		}
		return claims.Claim{}, fmt.Errorf("%w: %v", core.ErrTransferFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE claims SET status = $1, payout_tx_ref = $2 WHERE id = $3
	`, claims.StatusPaid, ref, claimID)
	if err != nil {
		return claims.Claim{}, ioErr("mark claim paid", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfers (ref, claim_id, recipient, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ref, claimID, c.Claimant, c.Amount, time.Now().UTC())
	if err != nil {
		return claims.Claim{}, ioErr("record transfer", err)
	}

	if err := tx.Commit(); err != nil {
		return claims.Claim{}, ioErr("commit payout tx", err)
	}

	c.Status = claims.StatusPaid
	c.PayoutTxRef = ref
	return c, nil
}
