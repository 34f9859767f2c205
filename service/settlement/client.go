package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/carterbates/ledgerhook/service/db"
)

// Client performs the external settlement effect for a transaction.
//
// The real system would call out to a downstream transfer API here. This
// client simulates that call with a fixed delay so the latency profile (a
// slow blocking effect performed while the row lock is held) is preserved.
type Client struct {
	delay  time.Duration
	logger *slog.Logger
}

// NewClient creates a settlement client with the given simulated call latency.
func NewClient(delay time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		delay:  delay,
		logger: logger,
	}
}

// Settle executes the settlement effect for the transaction. It blocks for
// the configured delay or until the context is canceled.
func (c *Client) Settle(ctx context.Context, txn *db.Transaction) error {
	c.logger.DebugContext(ctx, "settling transaction",
		"transaction_id", txn.TransactionID,
		"amount", txn.Amount.StringFixed(2),
		"currency", txn.Currency,
	)

	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		c.logger.WarnContext(ctx, "settlement canceled",
			"transaction_id", txn.TransactionID,
			"error", ctx.Err(),
		)
		return ctx.Err()
	}

	c.logger.InfoContext(ctx, "transaction settled",
		"transaction_id", txn.TransactionID,
		"duration", c.delay,
	)
	return nil
}
