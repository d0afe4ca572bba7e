// Package trigger defines the parametric trigger records that gate claims.
//
// Records are created and cleared by the trusted external updater (oracle
// or admin); this core never derives them. At most one active record
// exists per protocol — activating overwrites any prior active record.
package trigger

import (
	"fmt"
	"time"
)

// Type enumerates the observable trigger conditions. Wire values match
// the on-chain enum.
type Type int32

const (
	TypeTVLDrop              Type = 0
	TypeSmartContractExploit Type = 1
	TypeOracleFailure        Type = 2
	TypeGovernanceAttack     Type = 3
	TypeDepegEvent           Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeTVLDrop:
		return "TVL_DROP"
	case TypeSmartContractExploit:
		return "SMART_CONTRACT_EXPLOIT"
	case TypeOracleFailure:
		return "ORACLE_FAILURE"
	case TypeGovernanceAttack:
		return "GOVERNANCE_ATTACK"
	case TypeDepegEvent:
		return "DEPEG_EVENT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// ParseType converts the wire name back to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "TVL_DROP":
		return TypeTVLDrop, nil
	case "SMART_CONTRACT_EXPLOIT":
		return TypeSmartContractExploit, nil
	case "ORACLE_FAILURE":
		return TypeOracleFailure, nil
	case "GOVERNANCE_ATTACK":
		return TypeGovernanceAttack, nil
	case "DEPEG_EVENT":
		return TypeDepegEvent, nil
	default:
		return 0, fmt.Errorf("unknown trigger type %q", s)
	}
}

// Valid reports whether t is a known trigger type.
func (t Type) Valid() bool {
	return t >= TypeTVLDrop && t <= TypeDepegEvent
}

// Record is the per-protocol trigger state. Deactivation clears Active
// but the record is retained in history — triggers never expire on their
// own.
type Record struct {
	ProtocolID  string
	Active      bool
	Type        Type
	Severity    int // 0..100
	ActivatedAt time.Time
	// DeactivatedAt is set when the record is cleared; zero while active.
	DeactivatedAt time.Time
}

// Validate checks field ranges before the record is written.
func (r *Record) Validate() error {
	if r.ProtocolID == "" {
		return fmt.Errorf("empty protocol id")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("invalid trigger type %d", r.Type)
	}
	if r.Severity < 0 || r.Severity > 100 {
		return fmt.Errorf("severity %d out of range [0,100]", r.Severity)
	}
	return nil
}
