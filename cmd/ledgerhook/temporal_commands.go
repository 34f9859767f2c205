package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
)

func listWorkflowsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-workflows",
		Usage:   "List transaction processing workflow executions",
		Aliases: []string{"wf"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "query",
				Usage: "Temporal visibility query (e.g. \"ExecutionStatus='Failed'\")",
				Value: "WorkflowType='ProcessTransactionWorkflow'",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of workflows to list",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			resp, err := temporalClient.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
				Query:    c.String("query"),
				PageSize: int32(c.Int("limit")),
			})
			if err != nil {
				return fmt.Errorf("failed to list workflows: %w", err)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WORKFLOW ID\tTYPE\tSTATUS\tSTARTED")
			for _, exec := range resp.Executions {
				started := "-"
				if exec.StartTime != nil {
					started = exec.StartTime.AsTime().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					exec.Execution.WorkflowId,
					exec.Type.Name,
					exec.Status.String(),
					started,
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d workflows\n", len(resp.Executions))
			return nil
		},
	}
}

func describeWorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-workflow",
		Usage:     "Describe a processing workflow execution",
		Aliases:   []string{"desc"},
		ArgsUsage: "<workflow-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow ID")
			}

			workflowID := c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			desc, err := temporalClient.DescribeWorkflowExecution(ctx, workflowID, "")
			if err != nil {
				return fmt.Errorf("failed to describe workflow: %w", err)
			}

			info := desc.WorkflowExecutionInfo

			// Pretty output
			fmt.Printf("Workflow ID: %s\n", info.Execution.WorkflowId)
			fmt.Printf("Run ID:      %s\n", info.Execution.RunId)
			fmt.Printf("Type:        %s\n", info.Type.Name)
			fmt.Printf("Status:      %s\n", info.Status.String())
			if info.StartTime != nil {
				fmt.Printf("Started:     %s\n", info.StartTime.AsTime().Format(time.RFC3339))
			}
			if info.CloseTime != nil {
				fmt.Printf("Closed:      %s\n", info.CloseTime.AsTime().Format(time.RFC3339))
			}

			fmt.Printf("\nPending Activities: %d\n", len(desc.PendingActivities))
			for _, pa := range desc.PendingActivities {
				fmt.Printf("  %s (attempt %d/%d)\n",
					pa.ActivityType.Name,
					pa.Attempt,
					pa.MaximumAttempts,
				)
				if pa.LastFailure != nil {
					fmt.Printf("    Last Failure: %s\n", pa.LastFailure.Message)
				}
			}

			return nil
		},
	}
}

// Helper function to connect to Temporal
func getTemporalClient(c *cli.Context) (client.Client, error) {
	// Try to get from parent context first (for global flags)
	host := c.String("temporal-host")
	if host == "" && c.App != nil {
		// Try environment variable directly if flag not found
		host = os.Getenv("TEMPORAL_HOST")
	}
	if host == "" {
		host = "localhost:7233" // Default value
	}

	namespace := c.String("temporal-namespace")
	if namespace == "" && c.App != nil {
		// Try environment variable directly if flag not found
		namespace = os.Getenv("TEMPORAL_NAMESPACE")
	}
	if namespace == "" {
		namespace = "default" // Default value
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	return temporalClient, nil
}
