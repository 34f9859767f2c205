package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Enqueuer that starts a processing
// workflow per transaction on Temporal.
type Client struct {
	client         client.Client
	taskQueue      string
	maxAttempts    int
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// NewClient creates a new Temporal client. maxAttempts bounds the automatic
// retries of a processing job and attemptTimeout is the per-attempt time
// budget.
func NewClient(host, namespace, taskQueue string, maxAttempts int, attemptTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:         c,
		taskQueue:      taskQueue,
		maxAttempts:    maxAttempts,
		attemptTimeout: attemptTimeout,
		logger:         logger,
	}, nil
}

// EnqueueTransaction starts the processing workflow for a transaction.
// Enqueueing the same transaction twice is harmless: the deterministic
// workflow ID makes the second start report already-started, which is treated
// as success so the at-most-once enqueue guarantee holds under races.
func (c *Client) EnqueueTransaction(ctx context.Context, transactionID string) error {
	id := workflowID(transactionID)

	opts := client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}

	input := ProcessTransactionInput{
		TransactionID:  transactionID,
		MaxAttempts:    int32(c.maxAttempts),
		AttemptTimeout: c.attemptTimeout,
	}

	_, err := c.client.ExecuteWorkflow(ctx, opts, "ProcessTransactionWorkflow", input)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			c.logger.DebugContext(ctx, "processing job already enqueued",
				"transaction_id", transactionID,
				"workflow_id", id,
			)
			return nil
		}
		return fmt.Errorf("failed to enqueue transaction %q: %w", transactionID, err)
	}

	c.logger.InfoContext(ctx, "transaction enqueued for processing",
		"transaction_id", transactionID,
		"workflow_id", id,
		"max_attempts", c.maxAttempts,
		"attempt_timeout", c.attemptTimeout,
	)

	return nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
