// Package ingestion is the oracle-facing shell: it subscribes to the
// risk oracle's NATS subjects, validates and parses the JSON payloads,
// and applies them through the engine. The oracle is a trusted updater;
// authorization is the broker's concern, not this package's.
package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

// --- JSON wire formats ---
// Field names use snake_case to match the oracle producer.

type riskUpdateJSON struct {
	ProtocolID     string `json:"protocol_id"`
	RiskScore      int    `json:"risk_score"`
	PremiumRateBps int64  `json:"premium_rate_bps"`
	TimestampUs    int64  `json:"timestamp_us"`
}

// ParseRiskUpdate converts a risk oracle payload into a registry entry.
func ParseRiskUpdate(data []byte) (risk.Entry, error) {
	var j riskUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return risk.Entry{}, fmt.Errorf("parse RiskUpdate: %w", err)
	}
	if j.TimestampUs <= 0 {
		return risk.Entry{}, fmt.Errorf("parse RiskUpdate: missing timestamp_us")
	}

	entry := risk.Entry{
		ProtocolID:     j.ProtocolID,
		RiskScore:      j.RiskScore,
		PremiumRateBps: j.PremiumRateBps,
		UpdatedAt:      time.UnixMicro(j.TimestampUs).UTC(),
	}
	if err := entry.Validate(); err != nil {
		return risk.Entry{}, fmt.Errorf("parse RiskUpdate: %w", err)
	}
	return entry, nil
}

// TriggerAction is what the oracle wants done with a protocol's trigger.
type TriggerAction string

const (
	ActionActivate   TriggerAction = "activate"
	ActionDeactivate TriggerAction = "deactivate"
)

// TriggerCommand is the parsed form of a trigger subject payload.
type TriggerCommand struct {
	Action     TriggerAction
	ProtocolID string
	Type       trigger.Type
	Severity   int
	Timestamp  time.Time
}

type triggerJSON struct {
	Action      string `json:"action"`
	ProtocolID  string `json:"protocol_id"`
	TriggerType string `json:"trigger_type"`
	Severity    int    `json:"severity"`
	TimestampUs int64  `json:"timestamp_us"`
}

// ParseTriggerCommand converts a trigger oracle payload into a command.
// Deactivate commands carry no type or severity.
func ParseTriggerCommand(data []byte) (TriggerCommand, error) {
	var j triggerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return TriggerCommand{}, fmt.Errorf("parse TriggerCommand: %w", err)
	}
	if j.ProtocolID == "" {
		return TriggerCommand{}, fmt.Errorf("parse TriggerCommand: missing protocol_id")
	}
	if j.TimestampUs <= 0 {
		return TriggerCommand{}, fmt.Errorf("parse TriggerCommand: missing timestamp_us")
	}

	cmd := TriggerCommand{
		ProtocolID: j.ProtocolID,
		Timestamp:  time.UnixMicro(j.TimestampUs).UTC(),
	}

	switch TriggerAction(j.Action) {
	case ActionActivate:
		cmd.Action = ActionActivate
		t, err := trigger.ParseType(j.TriggerType)
		if err != nil {
			return TriggerCommand{}, fmt.Errorf("parse TriggerCommand: %w", err)
		}
		cmd.Type = t
		if j.Severity < 0 || j.Severity > 100 {
			return TriggerCommand{}, fmt.Errorf("parse TriggerCommand: severity %d out of range [0,100]", j.Severity)
		}
		cmd.Severity = j.Severity
	case ActionDeactivate:
		cmd.Action = ActionDeactivate
	default:
		return TriggerCommand{}, fmt.Errorf("parse TriggerCommand: unknown action %q", j.Action)
	}

	return cmd, nil
}
