package solvency_test

import (
	"errors"
	"testing"

	"github.com/AhmedAmer72/Praesidium-AI/internal/core"
	"github.com/AhmedAmer72/Praesidium-AI/internal/solvency"
)

const pol = int64(1_000_000) // 1 POL in fixed-point units

func snap(pool, coverage int64) solvency.Snapshot {
	return solvency.Snapshot{
		PoolBalance:         pool * pol,
		TotalActiveCoverage: coverage * pol,
	}
}

func TestComputeCapacity_StatusThresholds(t *testing.T) {
	cases := []struct {
		coverage int64
		want     solvency.Status
	}{
		{60, solvency.StatusHealthy}, // boundary is exclusive
		{61, solvency.StatusModerate},
		{80, solvency.StatusModerate},
		{81, solvency.StatusCritical},
		{100, solvency.StatusCritical},
		{101, solvency.StatusExceeded},
	}
	for _, c := range cases {
		report, err := solvency.ComputeCapacity(snap(100, c.coverage), solvency.DefaultTargetReserveRatio)
		if err != nil {
			t.Fatalf("coverage %d: %v", c.coverage, err)
		}
		if report.Status != c.want {
			t.Errorf("coverage %d: got %s, want %s", c.coverage, report.Status, c.want)
		}
	}
}

func TestComputeCapacity_Utilization(t *testing.T) {
	report, err := solvency.ComputeCapacity(snap(100, 61), solvency.DefaultTargetReserveRatio)
	if err != nil {
		t.Fatal(err)
	}
	if report.Utilization != 610_000 {
		t.Errorf("utilization: got %d, want 610_000 (61%%)", report.Utilization)
	}
}

func TestComputeCapacity_MaxSingleClaim(t *testing.T) {
	report, err := solvency.ComputeCapacity(snap(100, 0), solvency.DefaultTargetReserveRatio)
	if err != nil {
		t.Fatal(err)
	}
	if report.MaxSingleClaim != 90*pol {
		t.Errorf("maxSingleClaim: got %d, want %d", report.MaxSingleClaim, 90*pol)
	}
}

func TestComputeCapacity_EmptyPoolExceeded(t *testing.T) {
	report, err := solvency.ComputeCapacity(snap(0, 50), solvency.DefaultTargetReserveRatio)
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != solvency.StatusExceeded {
		t.Errorf("empty pool: got %s, want exceeded", report.Status)
	}
	if report.Utilization != 0 {
		t.Errorf("empty pool utilization surfaced as %d, want 0", report.Utilization)
	}
}

func TestComputeCapacity_InfiniteCollateralization(t *testing.T) {
	report, err := solvency.ComputeCapacity(snap(100, 0), solvency.DefaultTargetReserveRatio)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Infinite {
		t.Error("zero coverage should report infinite collateralization")
	}

	report, err = solvency.ComputeCapacity(snap(150, 100), solvency.DefaultTargetReserveRatio)
	if err != nil {
		t.Fatal(err)
	}
	if report.Infinite {
		t.Error("non-zero coverage should not be infinite")
	}
	if report.Collateralization != 1_500_000 {
		t.Errorf("collateralization: got %d, want 1_500_000", report.Collateralization)
	}
}

func TestComputeCapacity_AvailableCapacity(t *testing.T) {
	// pool=100, reserve=1.5 -> max coverage 66.666667
	report, err := solvency.ComputeCapacity(snap(100, 0), solvency.DefaultTargetReserveRatio)
	if err != nil {
		t.Fatal(err)
	}
	if report.AvailableCapacity != 66_666_667 {
		t.Errorf("availableCapacity: got %d, want 66_666_667", report.AvailableCapacity)
	}

	// Outstanding coverage reduces it; never below zero.
	report, _ = solvency.ComputeCapacity(snap(100, 90), solvency.DefaultTargetReserveRatio)
	if report.AvailableCapacity != 0 {
		t.Errorf("over-reserved pool: got %d, want 0", report.AvailableCapacity)
	}
}

func TestComputeCapacity_RemainingCapacity(t *testing.T) {
	// pool=100, 80% utilization cap -> 80 headroom at zero coverage
	report, err := solvency.ComputeCapacity(snap(100, 30), solvency.DefaultTargetReserveRatio)
	if err != nil {
		t.Fatal(err)
	}
	if report.RemainingCapacity != 50*pol {
		t.Errorf("remainingCapacity: got %d, want %d", report.RemainingCapacity, 50*pol)
	}
}

func TestComputeCapacity_InvalidReserveRatio(t *testing.T) {
	for _, ratio := range []int64{0, 1_000_000, -500_000} {
		_, err := solvency.ComputeCapacity(snap(100, 0), ratio)
		if !errors.Is(err, core.ErrInvalidInput) {
			t.Errorf("ratio %d: got %v, want ErrInvalidInput", ratio, err)
		}
	}
}

func TestCheckIssuance_HardGate(t *testing.T) {
	// pool=100, reserve=1.5: max coverage at reserve is 66.67
	if err := solvency.CheckIssuance(snap(100, 0), solvency.DefaultTargetReserveRatio, 70*pol); !errors.Is(err, core.ErrCapacityExceeded) {
		t.Errorf("coverage 70: got %v, want ErrCapacityExceeded", err)
	}
	if err := solvency.CheckIssuance(snap(100, 0), solvency.DefaultTargetReserveRatio, 60*pol); err != nil {
		t.Errorf("coverage 60: got %v, want nil", err)
	}
}

func TestCheckIssuance_InvalidCoverage(t *testing.T) {
	if err := solvency.CheckIssuance(snap(100, 0), solvency.DefaultTargetReserveRatio, 0); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("zero coverage: got %v, want ErrInvalidInput", err)
	}
}

func TestCheckPayout(t *testing.T) {
	if err := solvency.CheckPayout(snap(100, 0), 90*pol); err != nil {
		t.Errorf("payout at buffer: got %v, want nil", err)
	}
	if err := solvency.CheckPayout(snap(100, 0), 90*pol+1); !errors.Is(err, core.ErrCapacityExceeded) {
		t.Errorf("payout over buffer: got %v, want ErrCapacityExceeded", err)
	}
}
