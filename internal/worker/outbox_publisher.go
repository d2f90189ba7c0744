package worker

import (
	"context"
	"time"

	"github.com/cassiomorais/chargegate/internal/domain/outbox"
	"github.com/cassiomorais/chargegate/internal/service"
	"github.com/cassiomorais/chargegate/pkg/retry"
	"github.com/rs/zerolog"
)

// EventProducer is the stream side of the publisher, satisfied by the redis
// stream producer.
type EventProducer interface {
	PublishChargeEvent(ctx context.Context, chargeExternalID string, eventType string, data map[string]any) error
	PublishToDLQ(ctx context.Context, chargeExternalID string, reason string, originalData map[string]any) error
}

// OutboxPublisher drains pending outbox entries into the ledger stream.
// Entries and their charge mutation commit in one database transaction, so
// publication lags but never invents or loses events. Publishing retries
// with backoff; entries that exhaust their retry budget go to the DLQ.
type OutboxPublisher struct {
	txManager    service.TransactionManager
	outboxRepo   outbox.Repository
	producer     EventProducer
	pollInterval time.Duration
	batchSize    int
	logger       zerolog.Logger
}

func NewOutboxPublisher(
	txManager service.TransactionManager,
	outboxRepo outbox.Repository,
	producer EventProducer,
	pollInterval time.Duration,
	batchSize int,
	logger zerolog.Logger,
) *OutboxPublisher {
	return &OutboxPublisher{
		txManager:    txManager,
		outboxRepo:   outboxRepo,
		producer:     producer,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Run polls until the context is cancelled.
func (p *OutboxPublisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := p.publishBatch(ctx); err != nil {
			p.logger.Error().Err(err).Msg("outbox publisher pass failed")
		}
	}
}

func (p *OutboxPublisher) publishBatch(ctx context.Context) error {
	retryCfg := retry.Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	return p.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := p.outboxRepo.GetPending(txCtx, p.batchSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			publishErr := retry.Do(ctx, retryCfg, func() error {
				return p.producer.PublishChargeEvent(ctx, entry.AggregateID, entry.EventType, entry.Payload)
			})
			if publishErr != nil {
				p.logger.Error().Err(publishErr).Str("outbox_id", entry.ID.String()).Msg("failed to publish outbox event")
				if entry.RetryCount+1 >= entry.MaxRetries {
					if dlqErr := p.producer.PublishToDLQ(ctx, entry.AggregateID, publishErr.Error(), entry.Payload); dlqErr != nil {
						p.logger.Error().Err(dlqErr).Str("outbox_id", entry.ID.String()).Msg("failed to park event in DLQ")
					}
				}
				if err := p.outboxRepo.MarkFailed(txCtx, entry.ID); err != nil {
					return err
				}
				continue
			}
			if err := p.outboxRepo.MarkPublished(txCtx, entry.ID); err != nil {
				return err
			}
		}
		return nil
	})
}
