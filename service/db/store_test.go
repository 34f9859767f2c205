package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitParams(id string) CreateTransactionParams {
	return CreateTransactionParams{
		TransactionID:      id,
		SourceAccount:      "acct-src",
		DestinationAccount: "acct-dst",
		Amount:             decimal.RequireFromString("100.00"),
		Currency:           "USD",
	}
}

// mustSubmit inserts and commits a transaction, failing the test on error.
func mustSubmit(t *testing.T, store *TestStore, id string) {
	t.Helper()

	ctx := context.Background()
	attempt, err := store.BeginSubmit(ctx, submitParams(id))
	require.NoError(t, err)
	require.Equal(t, InsertOutcomeInserted, attempt.Outcome())
	require.NoError(t, attempt.Commit(ctx))
}

func TestBeginSubmit(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("fresh insert creates PROCESSING row", func(t *testing.T) {
		attempt, err := store.BeginSubmit(ctx, submitParams("tx-fresh"))
		require.NoError(t, err)
		assert.Equal(t, InsertOutcomeInserted, attempt.Outcome())
		require.NoError(t, attempt.Commit(ctx))

		txn, err := store.GetTransaction(ctx, "tx-fresh")
		require.NoError(t, err)
		assert.Equal(t, "tx-fresh", txn.TransactionID)
		assert.Equal(t, "acct-src", txn.SourceAccount)
		assert.Equal(t, "acct-dst", txn.DestinationAccount)
		assert.True(t, txn.Amount.Equal(decimal.RequireFromString("100.00")))
		assert.Equal(t, "USD", txn.Currency)
		assert.Equal(t, StatusProcessing, txn.Status)
		assert.Nil(t, txn.ProcessedAt)
		assert.Nil(t, txn.LastError)
		assert.WithinDuration(t, time.Now(), txn.CreatedAt, 5*time.Second)
	})

	t.Run("duplicate submission reports AlreadyExists", func(t *testing.T) {
		mustSubmit(t, store, "tx-dup")

		for i := 0; i < 3; i++ {
			attempt, err := store.BeginSubmit(ctx, submitParams("tx-dup"))
			require.NoError(t, err)
			assert.Equal(t, InsertOutcomeAlreadyExists, attempt.Outcome())
			require.NoError(t, attempt.Commit(ctx))
			require.NoError(t, attempt.Close(ctx))
		}

		var count int
		err := store.pool.QueryRow(ctx, "SELECT count(*) FROM transactions WHERE transaction_id = 'tx-dup'").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("abandoned attempt leaves no row", func(t *testing.T) {
		attempt, err := store.BeginSubmit(ctx, submitParams("tx-abandoned"))
		require.NoError(t, err)
		require.Equal(t, InsertOutcomeInserted, attempt.Outcome())
		require.NoError(t, attempt.Close(ctx))

		_, err = store.GetTransaction(ctx, "tx-abandoned")
		assert.ErrorIs(t, err, pgx.ErrNoRows)
	})
}

func TestBeginSubmit_ConcurrentDuplicates(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	const submitters = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			attempt, err := store.BeginSubmit(ctx, submitParams("tx-race"))
			if err != nil {
				t.Errorf("BeginSubmit: %v", err)
				return
			}
			defer attempt.Close(ctx)

			if attempt.Outcome() == InsertOutcomeInserted {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
			if err := attempt.Commit(ctx); err != nil {
				t.Errorf("Commit: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted, "exactly one submitter should win the insert")

	var count int
	err := store.pool.QueryRow(ctx, "SELECT count(*) FROM transactions WHERE transaction_id = 'tx-race'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBeginProcessing(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("successful attempt transitions to PROCESSED", func(t *testing.T) {
		mustSubmit(t, store, "tx-ok")

		attempt, err := store.BeginProcessing(ctx, "tx-ok")
		require.NoError(t, err)
		defer attempt.Close(ctx)

		assert.Equal(t, StatusProcessing, attempt.Transaction().Status)
		require.NoError(t, attempt.MarkProcessed(ctx))

		txn, err := store.GetTransaction(ctx, "tx-ok")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessed, txn.Status)
		require.NotNil(t, txn.ProcessedAt)
		assert.Nil(t, txn.LastError)
	})

	t.Run("failed attempt records last_error durably", func(t *testing.T) {
		mustSubmit(t, store, "tx-fail")

		attempt, err := store.BeginProcessing(ctx, "tx-fail")
		require.NoError(t, err)
		defer attempt.Close(ctx)

		require.NoError(t, attempt.MarkFailed(ctx, "downstream timeout"))

		txn, err := store.GetTransaction(ctx, "tx-fail")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, txn.Status)
		require.NotNil(t, txn.LastError)
		assert.Equal(t, "downstream timeout", *txn.LastError)
		assert.Nil(t, txn.ProcessedAt)
	})

	t.Run("retry after failure clears last_error", func(t *testing.T) {
		mustSubmit(t, store, "tx-retry")

		attempt, err := store.BeginProcessing(ctx, "tx-retry")
		require.NoError(t, err)
		require.NoError(t, attempt.MarkFailed(ctx, "first attempt failed"))

		retry, err := store.BeginProcessing(ctx, "tx-retry")
		require.NoError(t, err)
		defer retry.Close(ctx)

		// A FAILED row is re-driven through processing.
		assert.Equal(t, StatusFailed, retry.Transaction().Status)
		require.NoError(t, retry.MarkProcessed(ctx))

		txn, err := store.GetTransaction(ctx, "tx-retry")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessed, txn.Status)
		require.NotNil(t, txn.ProcessedAt)
		assert.Nil(t, txn.LastError)
	})

	t.Run("missing row self-heals to PROCESSING", func(t *testing.T) {
		attempt, err := store.BeginProcessing(ctx, "tx-ghost")
		require.NoError(t, err)
		defer attempt.Close(ctx)

		assert.Equal(t, "tx-ghost", attempt.Transaction().TransactionID)
		assert.Equal(t, StatusProcessing, attempt.Transaction().Status)
		require.NoError(t, attempt.MarkProcessed(ctx))

		txn, err := store.GetTransaction(ctx, "tx-ghost")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessed, txn.Status)
	})

	t.Run("abandoned attempt releases the lock without changes", func(t *testing.T) {
		mustSubmit(t, store, "tx-rollback")

		attempt, err := store.BeginProcessing(ctx, "tx-rollback")
		require.NoError(t, err)
		require.NoError(t, attempt.Close(ctx))

		txn, err := store.GetTransaction(ctx, "tx-rollback")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, txn.Status)
	})
}

// TestRowLockSerialization verifies that two concurrent processing attempts
// for the same transaction are serialized by the exclusive row lock: the
// second attempt blocks until the first commits, then observes its outcome.
func TestRowLockSerialization(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	mustSubmit(t, store, "tx-lock")

	first, err := store.BeginProcessing(ctx, "tx-lock")
	require.NoError(t, err)

	type secondResult struct {
		status Status
		err    error
	}
	results := make(chan secondResult, 1)
	started := make(chan struct{})

	go func() {
		close(started)
		attempt, err := store.BeginProcessing(ctx, "tx-lock")
		if err != nil {
			results <- secondResult{err: err}
			return
		}
		defer attempt.Close(ctx)
		results <- secondResult{status: attempt.Transaction().Status}
	}()

	<-started
	// Give the second attempt time to block on the row lock, then complete
	// the first attempt while the lock is still held.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, first.MarkProcessed(ctx))

	select {
	case res := <-results:
		require.NoError(t, res.err)
		assert.Equal(t, StatusProcessed, res.status,
			"second attempt should observe the first attempt's committed outcome")
	case <-time.After(10 * time.Second):
		t.Fatal("second processing attempt never acquired the lock")
	}
}

func TestTerminalMonotonicity(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	mustSubmit(t, store, "tx-terminal")

	attempt, err := store.BeginProcessing(ctx, "tx-terminal")
	require.NoError(t, err)
	require.NoError(t, attempt.MarkProcessed(ctx))

	before, err := store.GetTransaction(ctx, "tx-terminal")
	require.NoError(t, err)

	// A redelivered attempt observes PROCESSED and must leave the row alone.
	redelivery, err := store.BeginProcessing(ctx, "tx-terminal")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, redelivery.Transaction().Status)
	require.NoError(t, redelivery.Close(ctx))

	after, err := store.GetTransaction(ctx, "tx-terminal")
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	require.NotNil(t, after.ProcessedAt)
	assert.Equal(t, before.ProcessedAt.UTC(), after.ProcessedAt.UTC())
	assert.Nil(t, after.LastError)
}

func TestGetTransaction_NotFound(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	_, err := store.GetTransaction(context.Background(), "tx-nope")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
