// Package solvency derives the pool capacity report that gates both
// policy issuance and claim payouts.
//
// The monitor performs no mutation. Every check reads a fresh pool
// snapshot from the ledger; the snapshot carries its read instant so
// staleness is always explicit to callers.
package solvency

import (
	"fmt"
	"time"

	core "github.com/AhmedAmer72/Praesidium-AI/internal/corerrs"
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
)

// Status classifies pool utilization. Cut points are exact and exclusive:
// exactly 60% is still healthy, 60.0001% is moderate.
type Status string

const (
	StatusHealthy  Status = "healthy"  // utilization <= 60%
	StatusModerate Status = "moderate" // > 60%
	StatusCritical Status = "critical" // > 80%
	StatusExceeded Status = "exceeded" // > 100%, or empty pool
)

// Ratio cut points and safety margins, ratio-scaled (1_000_000 = 1.0).
const (
	utilizationModerate = 600_000   // 60%
	utilizationCritical = 800_000   // 80%
	utilizationExceeded = 1_000_000 // 100%

	// MaxSingleClaimRatio withholds a 10% buffer so no single payout can
	// fully drain the pool. Fixed safety margin, not configurable per call.
	MaxSingleClaimRatio = 900_000

	// MaxUtilizationRatio caps how much of the raw pool balance may be
	// sold as coverage, independent of the reserve ratio.
	MaxUtilizationRatio = 800_000
)

// DefaultTargetReserveRatio: the pool should hold at least 150% of
// outstanding coverage.
const DefaultTargetReserveRatio int64 = 1_500_000

// Snapshot is the pool state read fresh from the ledger on every check.
// AsOf is the ledger read instant; anything older than the caller's
// tolerance must be re-read, never silently reused.
type Snapshot struct {
	PoolBalance         fpmath.Amount
	TotalActiveCoverage fpmath.Amount
	TotalClaimsPaid     fpmath.Amount
	AsOf                time.Time
}

// CapacityReport is the derived collateralization view of a snapshot.
type CapacityReport struct {
	Snapshot Snapshot

	// Utilization is totalActiveCoverage / poolBalance, ratio-scaled.
	// Zero when the pool is empty (surfaced as StatusExceeded instead).
	Utilization int64

	// Collateralization is poolBalance / totalActiveCoverage,
	// ratio-scaled. Zero when Infinite is set.
	Collateralization int64
	// Infinite is set when totalActiveCoverage is zero and the
	// collateralization ratio is unbounded.
	Infinite bool

	// AvailableCapacity is how much more coverage can be sold while
	// holding the target reserve: max(0, pool/reserve - coverage).
	AvailableCapacity fpmath.Amount

	// RemainingCapacity is headroom before the utilization cap:
	// max(0, pool*0.8 - coverage).
	RemainingCapacity fpmath.Amount

	// MaxSingleClaim is the largest claim payable right now: pool * 0.9.
	MaxSingleClaim fpmath.Amount

	Status Status
}

// ComputeCapacity derives the capacity report for a snapshot at the given
// target reserve ratio (ratio-scaled, must exceed 1.0).
func ComputeCapacity(snap Snapshot, targetReserveRatio int64) (CapacityReport, error) {
	if targetReserveRatio <= fpmath.RatioScale {
		return CapacityReport{}, fmt.Errorf("%w: target reserve ratio %d must exceed 1.0", core.ErrInvalidInput, targetReserveRatio)
	}
	if snap.PoolBalance < 0 || snap.TotalActiveCoverage < 0 || snap.TotalClaimsPaid < 0 {
		return CapacityReport{}, fmt.Errorf("%w: negative snapshot values", core.ErrInvalidInput)
	}

	report := CapacityReport{
		Snapshot:       snap,
		MaxSingleClaim: fpmath.MulRatio(snap.PoolBalance, MaxSingleClaimRatio),
	}

	if snap.PoolBalance == 0 {
		// An empty pool cannot back any coverage. Utilization is
		// surfaced as zero but the status is exceeded, which blocks
		// both issuance and payout.
		report.Status = StatusExceeded
		report.Infinite = snap.TotalActiveCoverage == 0
		return report, nil
	}

	report.Utilization = fpmath.Ratio(snap.TotalActiveCoverage, snap.PoolBalance)

	if snap.TotalActiveCoverage == 0 {
		report.Infinite = true
	} else {
		report.Collateralization = fpmath.Ratio(snap.PoolBalance, snap.TotalActiveCoverage)
	}

	maxCoverageAtReserve := fpmath.DivRatio(snap.PoolBalance, targetReserveRatio)
	if maxCoverageAtReserve > snap.TotalActiveCoverage {
		report.AvailableCapacity = maxCoverageAtReserve - snap.TotalActiveCoverage
	}

	maxCoverageAtUtilization := fpmath.MulRatio(snap.PoolBalance, MaxUtilizationRatio)
	if maxCoverageAtUtilization > snap.TotalActiveCoverage {
		report.RemainingCapacity = maxCoverageAtUtilization - snap.TotalActiveCoverage
	}

	switch {
	case report.Utilization > utilizationExceeded:
		report.Status = StatusExceeded
	case report.Utilization > utilizationCritical:
		report.Status = StatusCritical
	case report.Utilization > utilizationModerate:
		report.Status = StatusModerate
	default:
		report.Status = StatusHealthy
	}

	return report, nil
}

// CheckIssuance is the hard gate applied before any policy is committed:
// the requested coverage must fit inside the reserve-adjusted available
// capacity. Advisory statuses do not block issuance; this does.
func CheckIssuance(snap Snapshot, targetReserveRatio int64, newCoverage fpmath.Amount) error {
	if newCoverage <= 0 {
		return fmt.Errorf("%w: coverage %d must be positive", core.ErrInvalidInput, newCoverage)
	}

	report, err := ComputeCapacity(snap, targetReserveRatio)
	if err != nil {
		return err
	}

	if newCoverage > report.AvailableCapacity {
		return fmt.Errorf("%w: requested coverage %s exceeds available capacity %s",
			core.ErrCapacityExceeded,
			fpmath.FormatAmount(newCoverage),
			fpmath.FormatAmount(report.AvailableCapacity))
	}
	return nil
}

// CheckPayout verifies a single claim amount against the payout buffer.
func CheckPayout(snap Snapshot, amount fpmath.Amount) error {
	if amount <= 0 {
		return fmt.Errorf("%w: payout amount %d must be positive", core.ErrInvalidInput, amount)
	}
	maxSingle := fpmath.MulRatio(snap.PoolBalance, MaxSingleClaimRatio)
	if amount > maxSingle {
		return fmt.Errorf("%w: claim %s exceeds max single payout %s",
			core.ErrCapacityExceeded,
			fpmath.FormatAmount(amount),
			fpmath.FormatAmount(maxSingle))
	}
	return nil
}
