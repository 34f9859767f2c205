package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/carterbates/ledgerhook/service/db"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	maxRequestBodySize     = 1 << 20 // 1MB - plenty for a transaction webhook
	maxTransactionIDLength = 255
	maxAccountLength       = 255
	maxCurrencyLength      = 10

	defaultListLimit = 100
	maxListLimit     = 1000
)

// handleSubmitTransaction returns a handler that accepts a transaction webhook.
// POST /v1/webhooks/transactions
//
// The accepted response carries no payload and is returned for new and
// duplicate deliveries alike, so providers can retry blindly.
func handleSubmitTransaction(ingestor Ingestor, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Limit request body size to prevent memory exhaustion
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			TransactionID      string          `json:"transaction_id"`
			SourceAccount      string          `json:"source_account"`
			DestinationAccount string          `json:"destination_account"`
			Amount             decimal.Decimal `json:"amount"`
			Currency           string          `json:"currency"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode webhook request", "error", err)
			// Check if error is due to body size limit
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		if err := validateTransactionID(req.TransactionID); err != nil {
			logger.Debug("invalid transaction_id", "transaction_id", req.TransactionID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAccount("source_account", req.SourceAccount); err != nil {
			logger.Debug("invalid source_account", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAccount("destination_account", req.DestinationAccount); err != nil {
			logger.Debug("invalid destination_account", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAmount(req.Amount); err != nil {
			logger.Debug("invalid amount", "amount", req.Amount, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateCurrency(req.Currency); err != nil {
			logger.Debug("invalid currency", "currency", req.Currency, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		result, err := ingestor.Submit(r.Context(), db.CreateTransactionParams{
			TransactionID:      req.TransactionID,
			SourceAccount:      req.SourceAccount,
			DestinationAccount: req.DestinationAccount,
			Amount:             req.Amount,
			Currency:           strings.ToUpper(req.Currency),
		})
		if err != nil {
			logger.Error("failed to ingest transaction", "transaction_id", req.TransactionID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if result.Duplicate {
			logger.Debug("duplicate webhook accepted", "transaction_id", req.TransactionID)
		}

		writeJSON(w, map[string]any{}, http.StatusAccepted)
	})
}

// transactionResponse is the wire representation of a transaction for the
// status query endpoint. The last error is an operational detail and is not
// exposed here.
type transactionResponse struct {
	TransactionID      string     `json:"transaction_id"`
	SourceAccount      string     `json:"source_account"`
	DestinationAccount string     `json:"destination_account"`
	Amount             string     `json:"amount"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	ProcessedAt        *time.Time `json:"processed_at"`
}

func transactionToResponse(txn *db.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID:      txn.TransactionID,
		SourceAccount:      txn.SourceAccount,
		DestinationAccount: txn.DestinationAccount,
		Amount:             txn.Amount.StringFixed(2),
		Currency:           txn.Currency,
		Status:             string(txn.Status),
		CreatedAt:          txn.CreatedAt,
		ProcessedAt:        txn.ProcessedAt,
	}
}

// handleGetTransaction returns a handler that retrieves a transaction by ID.
// GET /v1/transactions/{transaction_id}
func handleGetTransaction(store TransactionReader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transactionID := r.PathValue("transaction_id")

		if err := validateTransactionID(transactionID); err != nil {
			logger.Debug("invalid transaction_id", "transaction_id", transactionID, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		txn, err := store.GetTransaction(r.Context(), transactionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, "transaction not found", http.StatusNotFound)
				return
			}
			logger.Error("failed to get transaction", "transaction_id", transactionID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("transaction retrieved", "transaction_id", transactionID, "status", txn.Status)
		writeJSON(w, transactionToResponse(txn), http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists recent transactions.
// GET /v1/transactions?limit={limit}
func handleListTransactions(store TransactionReader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := int32(defaultListLimit)
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 32)
			if err != nil || parsed <= 0 || parsed > maxListLimit {
				writeError(w, fmt.Sprintf("invalid limit: must be between 1 and %d", maxListLimit), http.StatusBadRequest)
				return
			}
			limit = int32(parsed)
		}

		txns, err := store.ListTransactions(r.Context(), limit)
		if err != nil {
			logger.Error("failed to list transactions", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.Debug("transactions listed", "count", len(txns))

		resp := make([]transactionResponse, len(txns))
		for i, txn := range txns {
			resp[i] = transactionToResponse(txn)
		}

		writeJSON(w, map[string]any{
			"transactions": resp,
		}, http.StatusOK)
	})
}

// handleHealth returns the health check handler.
// GET /
//
// Reports a fixed healthy indicator and the current server time; it performs
// no dependency checks.
func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"status":       "HEALTHY",
			"current_time": time.Now().UTC().Format(time.RFC3339),
		}, http.StatusOK)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateTransactionID validates a transaction identifier for format and length.
func validateTransactionID(id string) error {
	if id == "" {
		return errorf("transaction_id is required")
	}

	if len(id) > maxTransactionIDLength {
		return errorf("transaction_id too long: maximum length is %d characters", maxTransactionIDLength)
	}

	// Check for null bytes and control characters
	for _, r := range id {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in transaction_id: control characters not allowed")
		}
	}

	return nil
}

// validateAccount validates an account identifier field.
func validateAccount(field, account string) error {
	if account == "" {
		return errorf("%s is required", field)
	}

	if len(account) > maxAccountLength {
		return errorf("%s too long: maximum length is %d characters", field, maxAccountLength)
	}

	for _, r := range account {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in %s: control characters not allowed", field)
		}
	}

	return nil
}

// validateAmount validates a transaction amount.
func validateAmount(amount decimal.Decimal) error {
	if amount.IsZero() {
		return errorf("amount is required and must be non-zero")
	}

	if amount.IsNegative() {
		return errorf("amount must be positive")
	}

	// NUMERIC(18,2) bounds the stored value.
	if amount.GreaterThanOrEqual(decimal.New(1, 16)) {
		return errorf("amount too large")
	}

	return nil
}

// validateCurrency validates a currency code.
func validateCurrency(currency string) error {
	if currency == "" {
		return errorf("currency is required")
	}

	if len(currency) > maxCurrencyLength {
		return errorf("currency too long: maximum length is %d characters", maxCurrencyLength)
	}

	for _, r := range currency {
		if !unicode.IsLetter(r) {
			return errorf("invalid currency: must contain only letters")
		}
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
