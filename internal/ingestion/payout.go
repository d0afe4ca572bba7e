package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/AhmedAmer72/Praesidium-AI/internal/ledger"
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
)

// PayoutPublisher hands payout instructions to the settlement service
// over a JetStream work queue. Unlike alerts, a payout publish must be
// acknowledged by the server before the claim transaction commits, so
// failures propagate to the caller.
type PayoutPublisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

const payoutStream = "PRAE_PAYOUTS"

var _ ledger.Transfer = (*PayoutPublisher)(nil)

func NewPayoutPublisher(js jetstream.JetStream, log zerolog.Logger) *PayoutPublisher {
	return &PayoutPublisher{js: js, log: log}
}

type payoutInstructionJSON struct {
	Ref         string `json:"ref"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	TimestampUs int64  `json:"timestamp_us"`
}

// TransferPayout publishes a payout instruction and returns its
// reference once the stream has acknowledged it.
func (p *PayoutPublisher) TransferPayout(ctx context.Context, to string, amount fpmath.Amount) (string, error) {
	ref := uuid.NewString()
	data, err := json.Marshal(payoutInstructionJSON{
		Ref:         ref,
		To:          to,
		Amount:      fpmath.FormatAmount(amount),
		TimestampUs: time.Now().UnixMicro(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal payout instruction: %w", err)
	}

	subject := fmt.Sprintf("prae.payouts.%s", ref)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.log.Error().Err(err).Str("ref", ref).Msg("publish payout instruction")
		return "", fmt.Errorf("publish payout %s: %w", ref, err)
	}

	p.log.Info().Str("ref", ref).Str("to", to).Str("amount", fpmath.FormatAmount(amount)).Msg("payout dispatched")
	return ref, nil
}

// EnsurePayoutStream creates the payout work queue if it does not
// exist. WorkQueuePolicy: each instruction is consumed exactly once by
// the settlement service.
func EnsurePayoutStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      payoutStream,
		Subjects:  []string{"prae.payouts.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create payout stream: %w", err)
	}
	return nil
}
