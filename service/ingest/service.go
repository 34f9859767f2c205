// Package ingest implements idempotent acceptance of transaction webhooks.
//
// Acceptance is a single unit of work: the transaction row is inserted and
// the processing job is enqueued before the insert commits, so an accepted
// transaction always has a job and a duplicate delivery never creates either.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/carterbates/ledgerhook/service/db"
	"github.com/carterbates/ledgerhook/service/metrics"
)

// Enqueuer schedules asynchronous processing for an accepted transaction.
type Enqueuer interface {
	EnqueueTransaction(ctx context.Context, transactionID string) error
}

// Result describes the outcome of a webhook submission.
type Result struct {
	TransactionID string
	Duplicate     bool
}

// Service accepts incoming transaction webhooks.
type Service struct {
	store   *db.Store
	queue   Enqueuer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates a new ingestion service. If m is nil, no metrics are
// recorded.
func NewService(store *db.Store, queue Enqueuer, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		queue:   queue,
		metrics: m,
		logger:  logger,
	}
}

// Submit accepts one webhook delivery. Redeliveries of an already-accepted
// transaction ID are reported as duplicates and succeed without enqueueing a
// second job. If enqueueing fails, the insert is rolled back so the provider
// retries the whole delivery.
func (s *Service) Submit(ctx context.Context, params db.CreateTransactionParams) (*Result, error) {
	attempt, err := s.store.BeginSubmit(ctx, params)
	if err != nil {
		s.recordWebhook(metrics.WebhookResultError)
		return nil, fmt.Errorf("failed to begin submission: %w", err)
	}
	defer attempt.Close(ctx)

	if attempt.Outcome() == db.InsertOutcomeAlreadyExists {
		s.logger.InfoContext(ctx, "duplicate webhook delivery",
			"transaction_id", params.TransactionID,
		)
		s.recordWebhook(metrics.WebhookResultDuplicate)
		return &Result{TransactionID: params.TransactionID, Duplicate: true}, nil
	}

	if err := s.queue.EnqueueTransaction(ctx, params.TransactionID); err != nil {
		// Close rolls back the insert, leaving no row without a job.
		s.recordEnqueue("error")
		s.recordWebhook(metrics.WebhookResultError)
		return nil, fmt.Errorf("failed to enqueue transaction %q: %w", params.TransactionID, err)
	}
	s.recordEnqueue("ok")

	if err := attempt.Commit(ctx); err != nil {
		s.recordWebhook(metrics.WebhookResultError)
		return nil, fmt.Errorf("failed to commit transaction %q: %w", params.TransactionID, err)
	}

	s.logger.InfoContext(ctx, "transaction accepted",
		"transaction_id", params.TransactionID,
		"amount", params.Amount.StringFixed(2),
		"currency", params.Currency,
	)
	s.recordWebhook(metrics.WebhookResultAccepted)

	return &Result{TransactionID: params.TransactionID}, nil
}

func (s *Service) recordWebhook(result string) {
	if s.metrics != nil {
		s.metrics.RecordWebhook(result)
	}
}

func (s *Service) recordEnqueue(status string) {
	if s.metrics != nil {
		s.metrics.RecordEnqueue(status)
	}
}
