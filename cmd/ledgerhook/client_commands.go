package main

import (
	"context"
	"fmt"
	"time"

	ledgerhook "github.com/carterbates/ledgerhook/client"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP API client commands",
		Subcommands: []*cli.Command{
			submitTransactionCommand(),
			getTransactionViaAPICommand(),
			awaitTransactionCommand(),
		},
	}
}

func submitTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Submit a transaction webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "transaction-id",
				Aliases:  []string{"id"},
				Usage:    "Unique transaction identifier",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "source",
				Usage:    "Source account",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "destination",
				Usage:    "Destination account",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "amount",
				Usage:    "Transaction amount (e.g. 100.00)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "currency",
				Usage: "ISO currency code",
				Value: "USD",
			},
		},
		Action: func(c *cli.Context) error {
			amount, err := decimal.NewFromString(c.String("amount"))
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", c.String("amount"), err)
			}

			cl := ledgerhook.NewClient(c.String("server-url"), nil, nil)

			params := ledgerhook.SubmitTransactionParams{
				TransactionID:      c.String("transaction-id"),
				SourceAccount:      c.String("source"),
				DestinationAccount: c.String("destination"),
				Amount:             amount,
				Currency:           c.String("currency"),
			}

			if err := cl.SubmitTransaction(context.Background(), params); err != nil {
				return fmt.Errorf("failed to submit transaction: %w", err)
			}

			fmt.Printf("✓ Transaction submitted: %s\n", params.TransactionID)
			return nil
		},
	}
}

func getTransactionViaAPICommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get a transaction via the HTTP API",
		ArgsUsage: "<transaction-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction ID")
			}

			cl := ledgerhook.NewClient(c.String("server-url"), nil, nil)

			txn, err := cl.GetTransaction(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(txn)
			}

			printTransaction(txn)
			return nil
		},
	}
}

func awaitTransactionCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Poll a transaction until it reaches a terminal state",
		ArgsUsage: "<transaction-id>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Polling interval",
				Value: 2 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Maximum time to wait",
				Value: 10 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction ID")
			}

			transactionID := c.Args().First()
			cl := ledgerhook.NewClient(c.String("server-url"), nil, nil)

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			ticker := time.NewTicker(c.Duration("interval"))
			defer ticker.Stop()

			for {
				txn, err := cl.GetTransaction(ctx, transactionID)
				if err == nil && txn.Status != "PROCESSING" {
					if c.Bool("json") {
						return outputJSON(txn)
					}
					printTransaction(txn)
					return nil
				}

				select {
				case <-ctx.Done():
					return fmt.Errorf("timed out waiting for transaction %s to reach a terminal state", transactionID)
				case <-ticker.C:
				}
			}
		},
	}
}

func printTransaction(txn *ledgerhook.Transaction) {
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
}
