package temporal

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/carterbates/ledgerhook/service/db"
	natspkg "github.com/carterbates/ledgerhook/service/nats"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) BeginProcessing(ctx context.Context, transactionID string) (ProcessingAttempt, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ProcessingAttempt), args.Error(1)
}

func (m *MockStore) GetTransaction(ctx context.Context, transactionID string) (*db.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*db.Transaction), args.Error(1)
}

// Mock ProcessingAttempt
type MockAttempt struct {
	mock.Mock
}

func (m *MockAttempt) Transaction() *db.Transaction {
	args := m.Called()
	return args.Get(0).(*db.Transaction)
}

func (m *MockAttempt) MarkProcessed(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAttempt) MarkFailed(ctx context.Context, cause string) error {
	args := m.Called(ctx, cause)
	return args.Error(0)
}

func (m *MockAttempt) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Mock Settler
type MockSettler struct {
	mock.Mock
}

func (m *MockSettler) Settle(ctx context.Context, txn *db.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func pendingTransaction(id string) *db.Transaction {
	return &db.Transaction{
		TransactionID:      id,
		SourceAccount:      "acct_src",
		DestinationAccount: "acct_dst",
		Amount:             decimal.RequireFromString("125.50"),
		Currency:           "USD",
		Status:             db.StatusProcessing,
		CreatedAt:          time.Now(),
	}
}

func TestActivities_ProcessTransaction_Success(t *testing.T) {
	txnID := "txn_success_1"
	now := time.Now()

	mockStore := new(MockStore)
	mockAttempt := new(MockAttempt)
	mockSettler := new(MockSettler)
	mockPublisher := natspkg.NewMockPublisher()

	txn := pendingTransaction(txnID)

	mockStore.On("BeginProcessing", mock.Anything, txnID).Return(mockAttempt, nil)
	mockAttempt.On("Transaction").Return(txn)
	mockSettler.On("Settle", mock.Anything, txn).Return(nil)
	mockAttempt.On("MarkProcessed", mock.Anything).Return(nil)
	mockAttempt.On("Close", mock.Anything).Return(nil)

	committed := pendingTransaction(txnID)
	committed.Status = db.StatusProcessed
	committed.ProcessedAt = &now
	mockStore.On("GetTransaction", mock.Anything, txnID).Return(committed, nil)

	activities := NewActivities(mockStore, mockSettler, mockPublisher, nil, slog.Default())

	result, err := activities.ProcessTransaction(context.Background(), ProcessTransactionActivityInput{
		TransactionID: txnID,
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txnID, result.TransactionID)
	assert.Equal(t, string(db.StatusProcessed), result.Status)
	assert.False(t, result.AlreadyProcessed)
	require.NotNil(t, result.ProcessedAt)
	assert.True(t, result.ProcessedAt.Equal(now))

	// A terminal transition publishes one status event.
	events := mockPublisher.GetPublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, txnID, events[0].TransactionID)
	assert.Equal(t, string(db.StatusProcessed), events[0].Status)

	mockStore.AssertExpectations(t)
	mockAttempt.AssertExpectations(t)
	mockSettler.AssertExpectations(t)
}

func TestActivities_ProcessTransaction_AlreadyProcessed(t *testing.T) {
	txnID := "txn_dup_redelivery"
	processedAt := time.Now().Add(-time.Hour)

	mockStore := new(MockStore)
	mockAttempt := new(MockAttempt)
	mockSettler := new(MockSettler)
	mockPublisher := natspkg.NewMockPublisher()

	txn := pendingTransaction(txnID)
	txn.Status = db.StatusProcessed
	txn.ProcessedAt = &processedAt

	mockStore.On("BeginProcessing", mock.Anything, txnID).Return(mockAttempt, nil)
	mockAttempt.On("Transaction").Return(txn)
	mockAttempt.On("Close", mock.Anything).Return(nil)

	activities := NewActivities(mockStore, mockSettler, mockPublisher, nil, slog.Default())

	result, err := activities.ProcessTransaction(context.Background(), ProcessTransactionActivityInput{
		TransactionID: txnID,
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.AlreadyProcessed)
	assert.Equal(t, string(db.StatusProcessed), result.Status)
	require.NotNil(t, result.ProcessedAt)
	assert.True(t, result.ProcessedAt.Equal(processedAt))

	// The effect must not run again and nothing new is published.
	mockSettler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
	mockAttempt.AssertNotCalled(t, "MarkProcessed", mock.Anything)
	assert.Empty(t, mockPublisher.GetPublishedEvents())

	mockStore.AssertExpectations(t)
	mockAttempt.AssertExpectations(t)
}

func TestActivities_ProcessTransaction_SettlementFails(t *testing.T) {
	txnID := "txn_settle_boom"

	mockStore := new(MockStore)
	mockAttempt := new(MockAttempt)
	mockSettler := new(MockSettler)

	txn := pendingTransaction(txnID)

	mockStore.On("BeginProcessing", mock.Anything, txnID).Return(mockAttempt, nil)
	mockAttempt.On("Transaction").Return(txn)
	mockSettler.On("Settle", mock.Anything, txn).Return(errors.New("gateway timeout"))
	// The failure is recorded durably before the error propagates.
	mockAttempt.On("MarkFailed", mock.Anything, "gateway timeout").Return(nil)
	mockAttempt.On("Close", mock.Anything).Return(nil)

	activities := NewActivities(mockStore, mockSettler, nil, nil, slog.Default())

	result, err := activities.ProcessTransaction(context.Background(), ProcessTransactionActivityInput{
		TransactionID: txnID,
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "gateway timeout")

	mockAttempt.AssertNotCalled(t, "MarkProcessed", mock.Anything)
	mockStore.AssertExpectations(t)
	mockAttempt.AssertExpectations(t)
	mockSettler.AssertExpectations(t)
}

func TestActivities_ProcessTransaction_MarkFailedAlsoFails(t *testing.T) {
	txnID := "txn_double_fault"

	mockStore := new(MockStore)
	mockAttempt := new(MockAttempt)
	mockSettler := new(MockSettler)

	txn := pendingTransaction(txnID)

	mockStore.On("BeginProcessing", mock.Anything, txnID).Return(mockAttempt, nil)
	mockAttempt.On("Transaction").Return(txn)
	mockSettler.On("Settle", mock.Anything, txn).Return(errors.New("gateway timeout"))
	mockAttempt.On("MarkFailed", mock.Anything, "gateway timeout").Return(errors.New("connection reset"))
	mockAttempt.On("Close", mock.Anything).Return(nil)

	activities := NewActivities(mockStore, mockSettler, nil, nil, slog.Default())

	// The original settlement error wins even when recording the failure fails.
	result, err := activities.ProcessTransaction(context.Background(), ProcessTransactionActivityInput{
		TransactionID: txnID,
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "gateway timeout")

	mockStore.AssertExpectations(t)
	mockAttempt.AssertExpectations(t)
}

func TestActivities_ProcessTransaction_BeginProcessingFails(t *testing.T) {
	txnID := "txn_lock_err"

	mockStore := new(MockStore)
	mockSettler := new(MockSettler)

	mockStore.On("BeginProcessing", mock.Anything, txnID).Return(nil, errors.New("connection refused"))

	activities := NewActivities(mockStore, mockSettler, nil, nil, slog.Default())

	result, err := activities.ProcessTransaction(context.Background(), ProcessTransactionActivityInput{
		TransactionID: txnID,
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	mockSettler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
	mockStore.AssertExpectations(t)
}

func TestActivities_ProcessTransaction_PublishFailureIsNotFatal(t *testing.T) {
	txnID := "txn_publish_err"
	now := time.Now()

	mockStore := new(MockStore)
	mockAttempt := new(MockAttempt)
	mockSettler := new(MockSettler)
	mockPublisher := natspkg.NewMockPublisher()
	mockPublisher.SetPublishError(errors.New("nats unavailable"))

	txn := pendingTransaction(txnID)

	mockStore.On("BeginProcessing", mock.Anything, txnID).Return(mockAttempt, nil)
	mockAttempt.On("Transaction").Return(txn)
	mockSettler.On("Settle", mock.Anything, txn).Return(nil)
	mockAttempt.On("MarkProcessed", mock.Anything).Return(nil)
	mockAttempt.On("Close", mock.Anything).Return(nil)

	committed := pendingTransaction(txnID)
	committed.Status = db.StatusProcessed
	committed.ProcessedAt = &now
	mockStore.On("GetTransaction", mock.Anything, txnID).Return(committed, nil)

	activities := NewActivities(mockStore, mockSettler, mockPublisher, nil, slog.Default())

	result, err := activities.ProcessTransaction(context.Background(), ProcessTransactionActivityInput{
		TransactionID: txnID,
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, string(db.StatusProcessed), result.Status)

	mockStore.AssertExpectations(t)
	mockAttempt.AssertExpectations(t)
}
