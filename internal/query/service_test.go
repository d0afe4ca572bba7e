package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AhmedAmer72/Praesidium-AI/internal/claims"
	"github.com/AhmedAmer72/Praesidium-AI/internal/core"
	"github.com/AhmedAmer72/Praesidium-AI/internal/ledger"
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
	"github.com/AhmedAmer72/Praesidium-AI/internal/persistence"
	"github.com/AhmedAmer72/Praesidium-AI/internal/policy"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
	"github.com/AhmedAmer72/Praesidium-AI/internal/testutil"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

func setupQueryService(t *testing.T) (*QueryService, ledger.Store, *sql.DB) {
	t.Helper()

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(context.Background()); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	store := ledger.NewPostgresStore(db, ledger.TransferFunc(
		func(ctx context.Context, to string, amount fpmath.Amount) (string, error) {
			return fmt.Sprintf("tx-%s", to), nil
		}))
	return NewQueryService(db), store, db
}

func seedPolicy(t *testing.T, store ledger.Store, holder, protocolID string, coverage fpmath.Amount, premium fpmath.Amount) policy.Policy {
	t.Helper()
	created := time.Now().UTC()
	p, err := store.CreatePolicy(context.Background(), policy.Policy{
		Holder:         holder,
		ProtocolID:     protocolID,
		PremiumPaid:    premium,
		CoverageAmount: coverage,
		CreatedAt:      created,
		ExpiresAt:      created.Add(30 * 24 * time.Hour),
		Active:         true,
	})
	if err != nil {
		t.Fatalf("seed policy: %v", err)
	}
	return p
}

func TestHolderPoliciesView(t *testing.T) {
	qs, store, _ := setupQueryService(t)

	const scale = fpmath.Amount(1_000_000)
	seedPolicy(t, store, "0xalice", "aave", 600*scale, 7*scale)
	seedPolicy(t, store, "0xalice", "compound", 400*scale, 5*scale)
	seedPolicy(t, store, "0xbob", "aave", 100*scale, 1*scale)

	views, err := qs.HolderPolicies(context.Background(), "0xalice")
	if err != nil {
		t.Fatalf("holder policies: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("got %d policies, want 2", len(views))
	}
	if views[0].ProtocolID != "aave" || views[1].ProtocolID != "compound" {
		t.Errorf("unexpected order: %+v", views)
	}
	if views[0].Status != "active" {
		t.Errorf("status = %q, want active", views[0].Status)
	}

	none, err := qs.HolderPolicies(context.Background(), "0xnobody")
	if err != nil {
		t.Fatalf("empty holder: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d policies for unknown holder, want 0", len(none))
	}
}

func TestClaimViews(t *testing.T) {
	qs, store, _ := setupQueryService(t)
	ctx := context.Background()

	const scale = fpmath.Amount(1_000_000)
	p := seedPolicy(t, store, "0xalice", "aave", 600*scale, 7*scale)

	cl, err := store.RecordClaim(ctx, claims.Claim{
		PolicyID:    p.ID,
		Claimant:    p.Holder,
		Amount:      p.CoverageAmount,
		TriggerType: trigger.TypeSmartContractExploit,
		SubmittedAt: time.Now().UTC(),
		Status:      claims.StatusPending,
		Evidence:    "post-mortem link",
	})
	if err != nil {
		t.Fatalf("record claim: %v", err)
	}

	byPolicy, err := qs.PolicyClaims(ctx, p.ID)
	if err != nil {
		t.Fatalf("policy claims: %v", err)
	}
	if len(byPolicy) != 1 {
		t.Fatalf("got %d claims, want 1", len(byPolicy))
	}
	if byPolicy[0].TriggerType != "SMART_CONTRACT_EXPLOIT" || byPolicy[0].Status != "pending" {
		t.Errorf("claim view = %+v", byPolicy[0])
	}
	if byPolicy[0].Evidence != "post-mortem link" {
		t.Errorf("evidence = %q", byPolicy[0].Evidence)
	}

	byClaimant, err := qs.ClaimantClaims(ctx, "0xalice")
	if err != nil {
		t.Fatalf("claimant claims: %v", err)
	}
	if len(byClaimant) != 1 || byClaimant[0].ID != cl.ID {
		t.Errorf("claimant view = %+v", byClaimant)
	}
}

func TestProtocolMetricsAggregation(t *testing.T) {
	qs, store, _ := setupQueryService(t)
	ctx := context.Background()

	if err := store.WriteRiskEntry(ctx, risk.Entry{
		ProtocolID:     "aave",
		RiskScore:      85,
		PremiumRateBps: 120,
		UpdatedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("write risk entry: %v", err)
	}

	const scale = fpmath.Amount(1_000_000)
	p1 := seedPolicy(t, store, "0xalice", "aave", 600*scale, 7*scale)
	seedPolicy(t, store, "0xbob", "aave", 400*scale, 5*scale)
	seedPolicy(t, store, "0xbob", "compound", 100*scale, 1*scale)

	cl, err := store.RecordClaim(ctx, claims.Claim{
		PolicyID:    p1.ID,
		Claimant:    p1.Holder,
		Amount:      p1.CoverageAmount,
		TriggerType: trigger.TypeTVLDrop,
		SubmittedAt: time.Now().UTC(),
		Status:      claims.StatusPending,
	})
	if err != nil {
		t.Fatalf("record claim: %v", err)
	}
	if _, err := store.PayClaim(ctx, cl.ID); err != nil {
		t.Fatalf("pay claim: %v", err)
	}

	m, err := qs.ProtocolMetricsFor(ctx, "aave")
	if err != nil {
		t.Fatalf("protocol metrics: %v", err)
	}

	if m.RiskScore != 85 || m.RiskLevel != "low" {
		t.Errorf("risk = %d/%s, want 85/low", m.RiskScore, m.RiskLevel)
	}
	if m.PolicyCount != 2 {
		t.Errorf("policy count = %d, want 2", m.PolicyCount)
	}
	if m.ActivePolicies != 1 {
		t.Errorf("active policies = %d, want 1 after payout", m.ActivePolicies)
	}
	if m.TotalPremiums != 12*scale {
		t.Errorf("total premiums = %d, want %d", m.TotalPremiums, 12*scale)
	}
	if m.TotalCoverage != 400*scale {
		t.Errorf("active coverage = %d, want %d", m.TotalCoverage, 400*scale)
	}
	if m.PaidClaims != 1 || m.ClaimCount != 1 {
		t.Errorf("claims = %d paid of %d, want 1 of 1", m.PaidClaims, m.ClaimCount)
	}
	if m.TotalClaimsPaid != 600*scale {
		t.Errorf("claims paid = %d, want %d", m.TotalClaimsPaid, 600*scale)
	}
	// 600 paid on 12 collected.
	wantLoss := fpmath.Ratio(int64(600*scale), int64(12*scale))
	if m.LossRatio != wantLoss {
		t.Errorf("loss ratio = %d, want %d", m.LossRatio, wantLoss)
	}

	if _, err := qs.ProtocolMetricsFor(ctx, "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown protocol err = %v, want ErrNotFound", err)
	}
}
