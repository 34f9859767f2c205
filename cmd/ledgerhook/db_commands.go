package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/carterbates/ledgerhook/service/db"
	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func initDBCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the transactions table if it does not exist (safe to run repeatedly)",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.EnsureSchema(context.Background()); err != nil {
				return fmt.Errorf("failed to ensure schema: %w", err)
			}

			fmt.Println("✓ Schema is up to date")
			return nil
		},
	}
}

func getTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-transaction",
		Usage:     "Get transaction details",
		Aliases:   []string{"get"},
		ArgsUsage: "<transaction-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction ID")
			}

			transactionID := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txn, err := store.GetTransaction(context.Background(), transactionID)
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(transactionToJSON(txn))
			}

			// Pretty output
			fmt.Printf("Transaction ID: %s\n", txn.TransactionID)
			fmt.Printf("Source:         %s\n", txn.SourceAccount)
			fmt.Printf("Destination:    %s\n", txn.DestinationAccount)
			fmt.Printf("Amount:         %s %s\n", txn.Amount.StringFixed(2), txn.Currency)
			fmt.Printf("Status:         %s\n", txn.Status)
			fmt.Printf("Created:        %s\n", txn.CreatedAt.Format(time.RFC3339))
			if txn.ProcessedAt != nil {
				fmt.Printf("Processed:      %s\n", txn.ProcessedAt.Format(time.RFC3339))
			} else {
				fmt.Printf("Processed:      (pending)\n")
			}
			if txn.LastError != nil {
				fmt.Printf("Last Error:     %s\n", *txn.LastError)
			}

			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List transactions, newest first",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (PROCESSING, PROCESSED, FAILED)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions",
				Value:   50,
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txns, err := store.ListTransactions(context.Background(), int32(c.Int("limit")))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			// Filter by status if specified
			statusFilter := c.String("status")
			if statusFilter != "" {
				filtered := make([]*db.Transaction, 0)
				for _, txn := range txns {
					if string(txn.Status) == statusFilter {
						filtered = append(filtered, txn)
					}
				}
				txns = filtered
			}

			// Apply jq filters against the JSON form of each transaction
			jqFilters := c.StringSlice("must-jq")
			if len(jqFilters) > 0 {
				compiled, err := compileJQFilters(jqFilters)
				if err != nil {
					return err
				}

				filtered := make([]*db.Transaction, 0)
				for _, txn := range txns {
					match, err := matchesJQFilters(transactionToJSON(txn), compiled)
					if err != nil {
						return err
					}
					if match {
						filtered = append(filtered, txn)
					}
				}
				txns = filtered
			}

			if c.Bool("json") {
				out := make([]map[string]any, len(txns))
				for i, txn := range txns {
					out[i] = transactionToJSON(txn)
				}
				return outputJSON(out)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TRANSACTION ID\tAMOUNT\tCURRENCY\tSTATUS\tCREATED\tPROCESSED")
			for _, txn := range txns {
				processed := "-"
				if txn.ProcessedAt != nil {
					processed = txn.ProcessedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					txn.TransactionID,
					txn.Amount.StringFixed(2),
					txn.Currency,
					txn.Status,
					txn.CreatedAt.Format(time.RFC3339),
					processed,
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(txns))
			return nil
		},
	}
}

// transactionToJSON converts a transaction to a plain map so it can be both
// emitted as JSON and fed to jq filters.
func transactionToJSON(txn *db.Transaction) map[string]any {
	out := map[string]any{
		"transaction_id":      txn.TransactionID,
		"source_account":      txn.SourceAccount,
		"destination_account": txn.DestinationAccount,
		"amount":              txn.Amount.StringFixed(2),
		"currency":            txn.Currency,
		"status":              string(txn.Status),
		"created_at":          txn.CreatedAt.Format(time.RFC3339),
	}
	if txn.ProcessedAt != nil {
		out["processed_at"] = txn.ProcessedAt.Format(time.RFC3339)
	} else {
		out["processed_at"] = nil
	}
	if txn.LastError != nil {
		out["last_error"] = *txn.LastError
	} else {
		out["last_error"] = nil
	}
	return out
}

// compileJQFilters parses and compiles a list of jq filter expressions.
func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// matchesJQFilters reports whether all compiled filters evaluate to a truthy
// value against the given document.
func matchesJQFilters(doc any, filters []*gojq.Code) (bool, error) {
	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, fmt.Errorf("jq filter error: %w", err)
		}
		if !isTruthy(v) {
			return false, nil
		}
	}
	return true, nil
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	// Try to get from parent context first (for global flags)
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
