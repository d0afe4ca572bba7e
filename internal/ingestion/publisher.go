package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

// AlertPublisher publishes notable state changes for downstream
// consumers (notification services, dashboards). Publish failures are
// logged and dropped — alerts are best-effort, the ledger is the source
// of truth.
type AlertPublisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

const alertStream = "PRAE_ALERTS"

func NewAlertPublisher(js jetstream.JetStream, log zerolog.Logger) *AlertPublisher {
	return &AlertPublisher{js: js, log: log}
}

type scoreChangeAlertJSON struct {
	ProtocolID  string `json:"protocol_id"`
	OldScore    int    `json:"old_score"`
	NewScore    int    `json:"new_score"`
	Delta       int    `json:"delta"`
	TimestampUs int64  `json:"timestamp_us"`
}

// PublishScoreChange emits a significant risk-score movement to
// prae.alerts.risk.{protocol_id}.
func (p *AlertPublisher) PublishScoreChange(ctx context.Context, change risk.ScoreChange) {
	data, err := json.Marshal(scoreChangeAlertJSON{
		ProtocolID:  change.ProtocolID,
		OldScore:    change.OldScore,
		NewScore:    change.NewScore,
		Delta:       change.Delta,
		TimestampUs: time.Now().UnixMicro(),
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("marshal score change alert")
		return
	}

	subject := fmt.Sprintf("prae.alerts.risk.%s", change.ProtocolID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("publish score change alert")
	}
}

type triggerAlertJSON struct {
	ProtocolID  string `json:"protocol_id"`
	Active      bool   `json:"active"`
	TriggerType string `json:"trigger_type"`
	Severity    int    `json:"severity"`
	TimestampUs int64  `json:"timestamp_us"`
}

// PublishTrigger emits a trigger activation or deactivation to
// prae.alerts.triggers.{protocol_id}.
func (p *AlertPublisher) PublishTrigger(ctx context.Context, rec trigger.Record) {
	data, err := json.Marshal(triggerAlertJSON{
		ProtocolID:  rec.ProtocolID,
		Active:      rec.Active,
		TriggerType: rec.Type.String(),
		Severity:    rec.Severity,
		TimestampUs: time.Now().UnixMicro(),
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("marshal trigger alert")
		return
	}

	subject := fmt.Sprintf("prae.alerts.triggers.%s", rec.ProtocolID)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("publish trigger alert")
	}
}

// EnsureAlertStream creates the alerts stream if it does not exist.
func EnsureAlertStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      alertStream,
		Subjects:  []string{"prae.alerts.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create alert stream: %w", err)
	}
	return nil
}
