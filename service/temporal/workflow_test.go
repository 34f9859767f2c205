package temporal

import (
	"errors"
	"testing"

	"github.com/carterbates/ledgerhook/service/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"
)

func TestProcessTransactionWorkflow(t *testing.T) {
	txnID := "txn_wf_test"

	tests := []struct {
		name           string
		input          ProcessTransactionInput
		mockActivity   func(*testsuite.MockCallWrapper)
		expectedError  bool
		validateResult func(*testing.T, *ProcessTransactionResult)
	}{
		{
			name: "successful processing",
			input: ProcessTransactionInput{
				TransactionID: txnID,
			},
			mockActivity: func(processMock *testsuite.MockCallWrapper) {
				processMock.Return(&ProcessTransactionResult{
					TransactionID: txnID,
					Status:        string(db.StatusProcessed),
				}, nil)
			},
			expectedError: false,
			validateResult: func(t *testing.T, result *ProcessTransactionResult) {
				assert.Equal(t, txnID, result.TransactionID)
				assert.Equal(t, string(db.StatusProcessed), result.Status)
				assert.False(t, result.AlreadyProcessed)
			},
		},
		{
			name: "redelivered transaction short-circuits",
			input: ProcessTransactionInput{
				TransactionID: txnID,
			},
			mockActivity: func(processMock *testsuite.MockCallWrapper) {
				processMock.Return(&ProcessTransactionResult{
					TransactionID:    txnID,
					Status:           string(db.StatusProcessed),
					AlreadyProcessed: true,
				}, nil)
			},
			expectedError: false,
			validateResult: func(t *testing.T, result *ProcessTransactionResult) {
				assert.True(t, result.AlreadyProcessed)
			},
		},
		{
			name: "processing fails after retries exhausted",
			input: ProcessTransactionInput{
				TransactionID: txnID,
				MaxAttempts:   2,
			},
			mockActivity: func(processMock *testsuite.MockCallWrapper) {
				processMock.Return(nil, errors.New("settlement unavailable"))
			},
			expectedError: true,
			validateResult: func(t *testing.T, result *ProcessTransactionResult) {
				// The workflow surfaces the activity error; the FAILED row
				// with last_error is the durable record.
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestWorkflowEnvironment()

			// Register activities first (before mocking)
			activities := &Activities{}
			env.RegisterActivity(activities.ProcessTransaction)

			processMock := env.OnActivity(activities.ProcessTransaction, mock.Anything, mock.Anything)
			tt.mockActivity(processMock)

			env.ExecuteWorkflow(ProcessTransactionWorkflow, tt.input)

			if tt.expectedError {
				assert.Error(t, env.GetWorkflowError())

				var result ProcessTransactionResult
				env.GetWorkflowResult(&result)
				tt.validateResult(t, &result)
			} else {
				assert.NoError(t, env.GetWorkflowError())

				var result ProcessTransactionResult
				err := env.GetWorkflowResult(&result)
				assert.NoError(t, err)
				tt.validateResult(t, &result)
			}
		})
	}
}

func TestProcessTransactionWorkflow_ActivityRetries(t *testing.T) {
	txnID := "txn_retry_test"

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.ProcessTransaction)

	// Fail twice then succeed; the retry policy allows 3 attempts.
	callCount := 0
	env.OnActivity(activities.ProcessTransaction, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		callCount++
		if callCount < 3 {
			panic("transient settlement error") // Temporal retries on panics
		}
	}).Return(&ProcessTransactionResult{
		TransactionID: txnID,
		Status:        string(db.StatusProcessed),
	}, nil)

	env.ExecuteWorkflow(ProcessTransactionWorkflow, ProcessTransactionInput{
		TransactionID: txnID,
		MaxAttempts:   3,
	})

	assert.NoError(t, env.GetWorkflowError())

	var result ProcessTransactionResult
	err := env.GetWorkflowResult(&result)
	assert.NoError(t, err)
	assert.Equal(t, string(db.StatusProcessed), result.Status)

	// 2 failures + 1 success
	assert.Equal(t, 3, callCount)
}

func TestProcessTransactionWorkflow_RetriesAreBounded(t *testing.T) {
	txnID := "txn_bounded_retry"

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.ProcessTransaction)

	callCount := 0
	env.OnActivity(activities.ProcessTransaction, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		callCount++
	}).Return(nil, errors.New("settlement unavailable"))

	env.ExecuteWorkflow(ProcessTransactionWorkflow, ProcessTransactionInput{
		TransactionID: txnID,
		MaxAttempts:   3,
	})

	assert.Error(t, env.GetWorkflowError())
	assert.Equal(t, 3, callCount)
}

func TestProcessTransactionWorkflow_DefaultsApplied(t *testing.T) {
	txnID := "txn_defaults"

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.ProcessTransaction)

	env.OnActivity(activities.ProcessTransaction, mock.Anything, mock.Anything).
		Return(&ProcessTransactionResult{
			TransactionID: txnID,
			Status:        string(db.StatusProcessed),
		}, nil)

	startTime := env.Now()

	// Zero-valued bounds fall back to the defaults rather than failing.
	env.ExecuteWorkflow(ProcessTransactionWorkflow, ProcessTransactionInput{
		TransactionID: txnID,
	})

	assert.NoError(t, env.GetWorkflowError())

	// A single successful attempt completes well within the attempt timeout.
	duration := env.Now().Sub(startTime)
	assert.Less(t, duration, DefaultAttemptTimeout)

	var result ProcessTransactionResult
	err := env.GetWorkflowResult(&result)
	assert.NoError(t, err)
	assert.Equal(t, txnID, result.TransactionID)
}

func TestWorkflowID_Deterministic(t *testing.T) {
	assert.Equal(t, "process-txn-abc123", workflowID("abc123"))
	assert.Equal(t, workflowID("txn_1"), workflowID("txn_1"))
	assert.NotEqual(t, workflowID("txn_1"), workflowID("txn_2"))
}
