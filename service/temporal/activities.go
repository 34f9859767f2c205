package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carterbates/ledgerhook/service/db"
	"github.com/carterbates/ledgerhook/service/metrics"
	natspkg "github.com/carterbates/ledgerhook/service/nats"
)

// ProcessTransactionInput is the workflow input for processing a transaction.
type ProcessTransactionInput struct {
	TransactionID  string        `json:"transaction_id"`
	MaxAttempts    int32         `json:"max_attempts"`
	AttemptTimeout time.Duration `json:"attempt_timeout"`
}

// ProcessTransactionActivityInput contains parameters for the ProcessTransaction activity.
type ProcessTransactionActivityInput struct {
	TransactionID string `json:"transaction_id"`
}

// ProcessTransactionResult contains the result of a processing attempt.
type ProcessTransactionResult struct {
	TransactionID    string     `json:"transaction_id"`
	Status           string     `json:"status"`
	AlreadyProcessed bool       `json:"already_processed"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// ProcessingAttempt is an open unit of work holding the exclusive row lock on
// one transaction. Exactly one of MarkProcessed or MarkFailed commits the
// attempt; Close releases the lock without committing.
type ProcessingAttempt interface {
	Transaction() *db.Transaction
	MarkProcessed(ctx context.Context) error
	MarkFailed(ctx context.Context, cause string) error
	Close(ctx context.Context) error
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	BeginProcessing(ctx context.Context, transactionID string) (ProcessingAttempt, error)
	GetTransaction(ctx context.Context, transactionID string) (*db.Transaction, error)
}

// SettlementInterface defines the external settlement effect needed by activities.
// This allows for easy mocking in tests.
type SettlementInterface interface {
	Settle(ctx context.Context, txn *db.Transaction) error
}

// PublisherInterface defines the NATS publishing operations needed by activities.
// This allows for easy mocking in tests.
type PublisherInterface interface {
	PublishTransactionStatus(ctx context.Context, event *natspkg.TransactionEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// All dependencies are explicit.
type Activities struct {
	store     StoreInterface
	settler   SettlementInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// publisher may be nil to disable event publishing; if metrics is nil, no
// metrics will be recorded.
func NewActivities(
	store StoreInterface,
	settler SettlementInterface,
	publisher PublisherInterface,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		settler:   settler,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// ProcessTransaction performs one processing attempt for a transaction. It
// may be invoked more than once for the same transaction due to queue-level
// retries or redelivery.
//
// The attempt acquires the exclusive row lock, blocking until available, and
// holds it across the settlement effect, so concurrent invocations for the
// same transaction are serialized: the second to acquire the lock observes
// either PROCESSED (short-circuits) or FAILED (retries the effect).
func (a *Activities) ProcessTransaction(ctx context.Context, input ProcessTransactionActivityInput) (*ProcessTransactionResult, error) {
	start := time.Now()

	a.logger.DebugContext(ctx, "processing transaction", "transaction_id", input.TransactionID)

	attempt, err := a.store.BeginProcessing(ctx, input.TransactionID)
	if err != nil {
		a.recordAttempt(metrics.ProcessingOutcomeError, start)
		return nil, fmt.Errorf("failed to begin processing: %w", err)
	}
	defer attempt.Close(ctx)

	txn := attempt.Transaction()
	if txn.Status == db.StatusProcessed {
		// Redelivery of already-completed work is a no-op.
		a.logger.InfoContext(ctx, "transaction already processed, skipping",
			"transaction_id", input.TransactionID,
		)
		a.recordAttempt(metrics.ProcessingOutcomeShortCircuit, start)
		return &ProcessTransactionResult{
			TransactionID:    txn.TransactionID,
			Status:           string(txn.Status),
			AlreadyProcessed: true,
			ProcessedAt:      txn.ProcessedAt,
		}, nil
	}

	settleStart := time.Now()
	if err := a.settler.Settle(ctx, txn); err != nil {
		// Persist the FAILED state before re-raising so it survives the
		// in-memory failure that triggers the queue retry.
		if markErr := attempt.MarkFailed(ctx, err.Error()); markErr != nil {
			a.logger.ErrorContext(ctx, "failed to record settlement failure",
				"transaction_id", input.TransactionID,
				"error", markErr,
			)
		}
		a.recordAttempt(metrics.ProcessingOutcomeFailed, start)
		return nil, fmt.Errorf("failed to settle transaction %q: %w", input.TransactionID, err)
	}
	if a.metrics != nil {
		a.metrics.RecordSettlementDuration(time.Since(settleStart).Seconds())
	}

	if err := attempt.MarkProcessed(ctx); err != nil {
		a.recordAttempt(metrics.ProcessingOutcomeError, start)
		return nil, fmt.Errorf("failed to mark transaction processed: %w", err)
	}

	a.logger.InfoContext(ctx, "transaction processed",
		"transaction_id", input.TransactionID,
		"duration", time.Since(start),
	)
	a.recordAttempt(metrics.ProcessingOutcomeProcessed, start)

	result := &ProcessTransactionResult{
		TransactionID: input.TransactionID,
		Status:        string(db.StatusProcessed),
	}

	// Re-read the committed row for the published event and the result.
	// Publishing is best-effort: the terminal transition is already durable.
	if committed, err := a.store.GetTransaction(ctx, input.TransactionID); err != nil {
		a.logger.WarnContext(ctx, "failed to re-read processed transaction",
			"transaction_id", input.TransactionID,
			"error", err,
		)
	} else {
		result.ProcessedAt = committed.ProcessedAt
		a.publishStatus(ctx, committed)
	}

	return result, nil
}

// publishStatus publishes a terminal-state event. Failures are logged, never
// propagated: a committed transition must not be retried because of eventing.
func (a *Activities) publishStatus(ctx context.Context, txn *db.Transaction) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.PublishTransactionStatus(ctx, natspkg.FromDBTransaction(txn)); err != nil {
		a.logger.WarnContext(ctx, "failed to publish transaction status event",
			"transaction_id", txn.TransactionID,
			"status", txn.Status,
			"error", err,
		)
	}
}

func (a *Activities) recordAttempt(outcome string, start time.Time) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordProcessingAttempt(outcome, time.Since(start).Seconds())
}
