package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle status of a transaction.
type Status string

const (
	// StatusProcessing is the only valid initial status. Rows are created in
	// this state by ingestion and stay there until a worker drives them to a
	// terminal state.
	StatusProcessing Status = "PROCESSING"

	// StatusProcessed is terminal. A PROCESSED row never reverts.
	StatusProcessed Status = "PROCESSED"

	// StatusFailed records the most recent failed attempt. A FAILED row may be
	// re-driven through processing by a queue retry.
	StatusFailed Status = "FAILED"
)

// uniqueViolation is the Postgres error code for a unique constraint violation.
const uniqueViolation = "23505"

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Transaction is the sole entity in the system. TransactionID is caller
// supplied and doubles as the idempotency key for both ingestion and
// processing.
type Transaction struct {
	TransactionID      string
	SourceAccount      string
	DestinationAccount string
	Amount             decimal.Decimal
	Currency           string
	Status             Status
	CreatedAt          time.Time
	ProcessedAt        *time.Time // non-nil iff Status == StatusProcessed
	LastError          *string    // non-nil after a failed attempt, cleared on success
}

// CreateTransactionParams contains the parameters for inserting a transaction.
type CreateTransactionParams struct {
	TransactionID      string
	SourceAccount      string
	DestinationAccount string
	Amount             decimal.Decimal
	Currency           string
}

// InsertOutcome distinguishes a fresh insert from a duplicate submission.
// Duplicate detection is a result value rather than an error: callers branch
// on the outcome instead of unpacking a constraint-violation fault.
type InsertOutcome int

const (
	// InsertOutcomeInserted means no row existed for the transaction_id and a
	// new PROCESSING row was written.
	InsertOutcomeInserted InsertOutcome = iota

	// InsertOutcomeAlreadyExists means a row for the transaction_id already
	// exists. Nothing was written.
	InsertOutcomeAlreadyExists
)

const transactionColumns = `transaction_id, source_account, destination_account, amount::text, currency, status, created_at, processed_at, last_error`

const insertTransactionSQL = `
INSERT INTO transactions (transaction_id, source_account, destination_account, amount, currency, status)
VALUES ($1, $2, $3, $4, $5, 'PROCESSING')`

// SubmitAttempt is an open unit of work holding an uncommitted transaction
// insert. The caller enqueues the processing job between BeginSubmit and
// Commit so that an enqueue failure rolls the insert back and a retried
// submission starts from a clean slate.
type SubmitAttempt struct {
	tx      pgx.Tx
	outcome InsertOutcome
	done    bool
}

// BeginSubmit opens a unit of work and inserts a new PROCESSING row for the
// given transaction. A uniqueness violation on transaction_id is not an
// error: the returned attempt reports InsertOutcomeAlreadyExists and there is
// nothing left to commit. Any other insert failure is returned as an error.
func (s *Store) BeginSubmit(ctx context.Context, params CreateTransactionParams) (*SubmitAttempt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin submit: %w", err)
	}

	_, err = tx.Exec(ctx, insertTransactionSQL,
		params.TransactionID,
		params.SourceAccount,
		params.DestinationAccount,
		params.Amount.StringFixed(2),
		params.Currency,
	)
	if err != nil {
		// The failed statement aborted the unit of work either way.
		_ = tx.Rollback(ctx)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &SubmitAttempt{outcome: InsertOutcomeAlreadyExists, done: true}, nil
		}
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	return &SubmitAttempt{tx: tx, outcome: InsertOutcomeInserted}, nil
}

// Outcome reports whether the insert created a new row or found an existing one.
func (a *SubmitAttempt) Outcome() InsertOutcome {
	return a.outcome
}

// Commit makes the inserted row visible to other units of work. It is a no-op
// for a duplicate submission.
func (a *SubmitAttempt) Commit(ctx context.Context) error {
	if a.done || a.tx == nil {
		a.done = true
		return nil
	}
	a.done = true
	if err := a.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit submit: %w", err)
	}
	return nil
}

// Close rolls back the unit of work if it was not committed. Safe to defer.
func (a *SubmitAttempt) Close(ctx context.Context) error {
	if a.done || a.tx == nil {
		return nil
	}
	a.done = true
	return a.tx.Rollback(ctx)
}

// ProcessingAttempt is an open unit of work holding the exclusive row lock on
// a single transaction. The lock is held until MarkProcessed, MarkFailed, or
// Close completes the unit of work, so concurrent attempts for the same
// transaction_id are fully serialized, including across the external effect.
type ProcessingAttempt struct {
	tx   pgx.Tx
	txn  *Transaction
	done bool
}

// BeginProcessing opens a unit of work and acquires the exclusive row lock on
// the transaction, blocking until the lock is available. If no row exists the
// attempt self-heals by creating a PROCESSING row: queue delivery can race
// ahead of an insert that is not yet committed or was lost.
func (s *Store) BeginProcessing(ctx context.Context, transactionID string) (*ProcessingAttempt, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin processing: %w", err)
	}

	txn, err := lockTransaction(ctx, tx, transactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		// ON CONFLICT DO NOTHING waits out a concurrent uncommitted insert
		// instead of colliding with it; the re-lock below then sees the row.
		_, err = tx.Exec(ctx,
			`INSERT INTO transactions (transaction_id, status) VALUES ($1, 'PROCESSING') ON CONFLICT (transaction_id) DO NOTHING`,
			transactionID,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("failed to create missing transaction row: %w", err)
		}
		txn, err = lockTransaction(ctx, tx, transactionID)
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}

	return &ProcessingAttempt{tx: tx, txn: txn}, nil
}

// Transaction returns the row as observed under the lock.
func (p *ProcessingAttempt) Transaction() *Transaction {
	return p.txn
}

// MarkProcessed transitions the row to PROCESSED, sets processed_at, clears
// last_error, and commits the unit of work.
func (p *ProcessingAttempt) MarkProcessed(ctx context.Context) error {
	if p.done {
		return errors.New("processing attempt already finished")
	}
	_, err := p.tx.Exec(ctx,
		`UPDATE transactions SET status = 'PROCESSED', processed_at = now(), last_error = NULL WHERE transaction_id = $1`,
		p.txn.TransactionID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark transaction processed: %w", err)
	}
	p.done = true
	if err := p.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit processed transition: %w", err)
	}
	return nil
}

// MarkFailed transitions the row to FAILED, records the failure cause in
// last_error, and commits. The commit happens before the caller re-raises the
// failure, so the FAILED state is durable even though the attempt itself is
// reported as failed to the queue.
func (p *ProcessingAttempt) MarkFailed(ctx context.Context, cause string) error {
	if p.done {
		return errors.New("processing attempt already finished")
	}
	_, err := p.tx.Exec(ctx,
		`UPDATE transactions SET status = 'FAILED', last_error = $2 WHERE transaction_id = $1`,
		p.txn.TransactionID, cause,
	)
	if err != nil {
		return fmt.Errorf("failed to mark transaction failed: %w", err)
	}
	p.done = true
	if err := p.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit failed transition: %w", err)
	}
	return nil
}

// Close rolls back the unit of work and releases the row lock if no terminal
// transition was committed. Safe to defer.
func (p *ProcessingAttempt) Close(ctx context.Context) error {
	if p.done {
		return nil
	}
	p.done = true
	return p.tx.Rollback(ctx)
}

// GetTransaction retrieves a transaction by its identifier.
// Returns pgx.ErrNoRows if no such transaction exists.
func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`,
		transactionID,
	)
	return scanTransaction(row)
}

// ListTransactions retrieves the most recently created transactions.
func (s *Store) ListTransactions(ctx context.Context, limit int32) ([]*Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}

func lockTransaction(ctx context.Context, tx pgx.Tx, transactionID string) (*Transaction, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1 FOR UPDATE`,
		transactionID,
	)
	return scanTransaction(row)
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		txn                                    Transaction
		source, destination, amount, currency  pgtype.Text
		lastError                              pgtype.Text
		status                                 string
		createdAt, processedAt                 pgtype.Timestamptz
	)
	err := row.Scan(
		&txn.TransactionID,
		&source,
		&destination,
		&amount,
		&currency,
		&status,
		&createdAt,
		&processedAt,
		&lastError,
	)
	if err != nil {
		return nil, err
	}

	txn.SourceAccount = source.String
	txn.DestinationAccount = destination.String
	txn.Currency = currency.String
	txn.Status = Status(status)
	txn.CreatedAt = createdAt.Time
	txn.ProcessedAt = timePtrFromPgTimestamptz(processedAt)
	txn.LastError = stringPtrFromPgtext(lastError)

	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount.String, err)
		}
		txn.Amount = d
	}

	return &txn, nil
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func timePtrFromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
