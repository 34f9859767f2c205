package temporal

import (
	"context"
)

// Enqueuer hands accepted transactions to the work queue for asynchronous
// processing. Each enqueued item is delivered at least once; consumers must
// be idempotent.
type Enqueuer interface {
	// EnqueueTransaction enqueues one processing job for the transaction.
	EnqueueTransaction(ctx context.Context, transactionID string) error
}

// workflowID returns the deterministic workflow ID for a transaction. One
// transaction maps to one workflow, so a racing second enqueue for the same
// transaction collides instead of producing duplicate work.
func workflowID(transactionID string) string {
	return "process-txn-" + transactionID
}
