package db

import (
	"context"
	"fmt"
)

// createTransactionsTable is idempotent and safe to run on every provisioning
// pass. The uniqueness constraint on transaction_id is what makes ingestion
// an at-most-once enqueue: the second submission of the same id fails the
// insert instead of producing a second row.
const createTransactionsTable = `
CREATE TABLE IF NOT EXISTS transactions (
	id SERIAL PRIMARY KEY,
	transaction_id TEXT NOT NULL UNIQUE,
	source_account TEXT,
	destination_account TEXT,
	amount NUMERIC(18,2),
	currency TEXT,
	status TEXT NOT NULL CHECK (status IN ('PROCESSING','PROCESSED','FAILED')),
	created_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
	processed_at TIMESTAMP WITH TIME ZONE NULL,
	last_error TEXT
)`

// EnsureSchema provisions the transactions table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTransactionsTable); err != nil {
		return fmt.Errorf("failed to ensure transactions table: %w", err)
	}
	return nil
}
