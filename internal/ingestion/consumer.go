package ingestion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AhmedAmer72/Praesidium-AI/internal/core"
	"github.com/AhmedAmer72/Praesidium-AI/internal/observability"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

// Applier is the slice of the engine the consumer needs.
type Applier interface {
	UpdateRiskEntry(ctx context.Context, entry risk.Entry) (risk.ScoreChange, error)
	ActivateTrigger(ctx context.Context, protocolID string, t trigger.Type, severity int) (trigger.Record, error)
	DeactivateTrigger(ctx context.Context, protocolID string) (trigger.Record, error)
}

var _ Applier = (*core.Engine)(nil)

// Consumer drains RawMessages, parses them, and applies them through the
// engine. Malformed payloads are NAK'd; redelivery is bounded by the
// consumer's max_deliver, after which the broker drops the message.
type Consumer struct {
	applier Applier
	rawChan <-chan RawMessage
	metrics *observability.Metrics
	log     zerolog.Logger
	alerts  *AlertPublisher
}

func NewConsumer(applier Applier, rawChan <-chan RawMessage, metrics *observability.Metrics, log zerolog.Logger) *Consumer {
	return &Consumer{
		applier: applier,
		rawChan: rawChan,
		metrics: metrics,
		log:     log,
	}
}

// SetAlertPublisher attaches the optional downstream alert publisher.
func (c *Consumer) SetAlertPublisher(alerts *AlertPublisher) {
	c.alerts = alerts
}

// Run drains the channel until the context is cancelled or the channel
// closes. A retryable apply error NAKs the message for redelivery;
// anything else NAKs too, bounded by max_deliver.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-c.rawChan:
			if !ok {
				return nil
			}
			c.handle(ctx, raw)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, raw RawMessage) {
	var err error
	switch {
	case strings.HasPrefix(raw.Subject, riskSubjectPrefix):
		err = c.handleRisk(ctx, raw)
	case strings.HasPrefix(raw.Subject, triggerSubjectPrefix):
		err = c.handleTrigger(ctx, raw)
	default:
		c.log.Warn().Str("subject", raw.Subject).Msg("message on unexpected subject")
		raw.AckFunc() // nothing will ever handle it, don't redeliver
		return
	}

	if err != nil {
		c.log.Error().Err(err).Str("subject", raw.Subject).Msg("apply failed")
		raw.NakFunc()
		return
	}

	if c.metrics != nil {
		c.metrics.IngestLatency.WithLabelValues(raw.Subject).Observe(time.Since(raw.Received).Seconds())
	}
	raw.AckFunc()
}

func (c *Consumer) handleRisk(ctx context.Context, raw RawMessage) error {
	entry, err := ParseRiskUpdate(raw.Data)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RiskUpdatesRejected.WithLabelValues("parse").Inc()
		}
		return err
	}

	change, err := c.applier.UpdateRiskEntry(ctx, entry)
	if err != nil {
		if errors.Is(err, core.ErrInvalidInput) && c.metrics != nil {
			c.metrics.RiskUpdatesRejected.WithLabelValues("validation").Inc()
		}
		return err
	}

	if change.Significant && c.alerts != nil {
		c.alerts.PublishScoreChange(ctx, change)
	}
	return nil
}

func (c *Consumer) handleTrigger(ctx context.Context, raw RawMessage) error {
	cmd, err := ParseTriggerCommand(raw.Data)
	if err != nil {
		return err
	}

	switch cmd.Action {
	case ActionActivate:
		rec, err := c.applier.ActivateTrigger(ctx, cmd.ProtocolID, cmd.Type, cmd.Severity)
		if err != nil {
			return err
		}
		if c.alerts != nil {
			c.alerts.PublishTrigger(ctx, rec)
		}
		return nil
	case ActionDeactivate:
		rec, err := c.applier.DeactivateTrigger(ctx, cmd.ProtocolID)
		if errors.Is(err, core.ErrNotFound) {
			// Deactivating an unknown protocol: nothing to do, and
			// redelivery would never succeed either.
			c.log.Warn().Str("protocol", cmd.ProtocolID).Msg("deactivate for unknown protocol")
			return nil
		}
		if err != nil {
			return err
		}
		if c.alerts != nil {
			c.alerts.PublishTrigger(ctx, rec)
		}
		return nil
	default:
		panic("unreachable trigger action " + string(cmd.Action))
	}
}
