package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// Defaults for the processing retry policy, used when the enqueuer does not
// supply its own bounds.
const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 600 * time.Second
)

// ProcessTransactionWorkflow drives a single transaction to a terminal state.
// It is started once per accepted transaction by the ingestion path.
//
// The workflow runs the ProcessTransaction activity with a bounded retry
// policy. Delivery to the activity is at-least-once: an attempt that times
// out or fails is redelivered up to MaxAttempts total attempts. Idempotency
// under redelivery is owned by the activity's row lock and PROCESSED
// short-circuit, not by the queue.
func ProcessTransactionWorkflow(ctx workflow.Context, input ProcessTransactionInput) (*ProcessTransactionResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ProcessTransactionWorkflow started", "transaction_id", input.TransactionID)

	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	attemptTimeout := input.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: attemptTimeout,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    maxAttempts,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var result *ProcessTransactionResult
	err := workflow.ExecuteActivity(ctx, a.ProcessTransaction, ProcessTransactionActivityInput{
		TransactionID: input.TransactionID,
	}).Get(ctx, &result)
	if err != nil {
		// Retries are exhausted. The row is left FAILED with the last
		// recorded error; surfacing it is an operational concern.
		logger.Error("transaction processing abandoned",
			"transaction_id", input.TransactionID,
			"max_attempts", maxAttempts,
			"error", err,
		)
		return nil, fmt.Errorf("failed to process transaction %q: %w", input.TransactionID, err)
	}

	logger.Info("ProcessTransactionWorkflow completed",
		"transaction_id", input.TransactionID,
		"status", result.Status,
		"already_processed", result.AlreadyProcessed,
	)

	return result, nil
}
