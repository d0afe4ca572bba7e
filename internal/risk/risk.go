// Package risk holds the per-protocol risk entries consumed by pricing.
//
// Entries are written only by the trusted oracle path (NATS feed or admin
// API) and read through the ledger collaborator. The engine never
// substitutes a default for a missing entry — silently mispricing risk is
// the one failure mode this core refuses to have.
package risk

import (
	"fmt"
	"time"
)

// Level buckets a risk score for display and alerting.
// Higher scores mean lower perceived risk.
type Level string

const (
	LevelLow    Level = "low"    // score >= 80
	LevelMedium Level = "medium" // score >= 60
	LevelHigh   Level = "high"
)

// SignificantScoreDelta is the minimum absolute score movement treated as
// a material risk change.
const SignificantScoreDelta = 5

// Entry is the unique source of truth for pricing a protocol.
type Entry struct {
	ProtocolID     string
	RiskScore      int   // 0..100
	PremiumRateBps int64 // basis points, >= 0
	UpdatedAt      time.Time
}

// Validate checks field ranges. RiskScore and PremiumRateBps are inversely
// related by oracle policy, but the core tolerates any valid combination.
func (e *Entry) Validate() error {
	if e.ProtocolID == "" {
		return fmt.Errorf("empty protocol id")
	}
	if e.RiskScore < 0 || e.RiskScore > 100 {
		return fmt.Errorf("risk score %d out of range [0,100]", e.RiskScore)
	}
	if e.PremiumRateBps < 0 {
		return fmt.Errorf("premium rate %d must be >= 0", e.PremiumRateBps)
	}
	return nil
}

// Level classifies the entry's score.
func (e *Entry) Level() Level {
	switch {
	case e.RiskScore >= 80:
		return LevelLow
	case e.RiskScore >= 60:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// ScoreChange describes a movement between two oracle updates for the
// same protocol.
type ScoreChange struct {
	ProtocolID  string
	OldScore    int
	NewScore    int
	Delta       int
	Significant bool
}

// DetectScoreChange compares two entries for the same protocol and
// normalizes the movement. A |delta| of SignificantScoreDelta or more is
// flagged significant.
func DetectScoreChange(old, updated Entry) ScoreChange {
	delta := updated.RiskScore - old.RiskScore
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	return ScoreChange{
		ProtocolID:  updated.ProtocolID,
		OldScore:    old.RiskScore,
		NewScore:    updated.RiskScore,
		Delta:       delta,
		Significant: abs >= SignificantScoreDelta,
	}
}
