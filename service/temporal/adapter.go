package temporal

import (
	"context"

	"github.com/carterbates/ledgerhook/service/db"
)

// storeAdapter adapts *db.Store's concrete attempt type to the
// ProcessingAttempt interface used by activities.
type storeAdapter struct {
	store *db.Store
}

// NewStoreAdapter wraps a db.Store for use as the activities' StoreInterface.
func NewStoreAdapter(store *db.Store) StoreInterface {
	return &storeAdapter{store: store}
}

func (s *storeAdapter) BeginProcessing(ctx context.Context, transactionID string) (ProcessingAttempt, error) {
	attempt, err := s.store.BeginProcessing(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *storeAdapter) GetTransaction(ctx context.Context, transactionID string) (*db.Transaction, error) {
	return s.store.GetTransaction(ctx, transactionID)
}
