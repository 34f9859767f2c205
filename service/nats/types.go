package nats

import (
	"time"

	"github.com/carterbates/ledgerhook/service/db"
)

// TransactionEvent represents a transaction status event published to NATS.
// Events are published to the subject "txns.status.{transaction_id}" in
// JetStream whenever a transaction reaches a terminal state.
type TransactionEvent struct {
	TransactionID      string     `json:"transaction_id"`
	SourceAccount      string     `json:"source_account"`
	DestinationAccount string     `json:"destination_account"`
	Amount             string     `json:"amount"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	LastError          *string    `json:"last_error,omitempty"`
	PublishedAt        time.Time  `json:"published_at"`
}

// FromDBTransaction converts a database transaction to a TransactionEvent for publishing.
func FromDBTransaction(txn *db.Transaction) *TransactionEvent {
	return &TransactionEvent{
		TransactionID:      txn.TransactionID,
		SourceAccount:      txn.SourceAccount,
		DestinationAccount: txn.DestinationAccount,
		Amount:             txn.Amount.StringFixed(2),
		Currency:           txn.Currency,
		Status:             string(txn.Status),
		CreatedAt:          txn.CreatedAt,
		ProcessedAt:        txn.ProcessedAt,
		LastError:          txn.LastError,
		PublishedAt:        time.Now().UTC(),
	}
}
