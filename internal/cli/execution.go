package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для управления выполнениями.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Manage workflow executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionStartCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionNodesCmd(clientFn, outputFn),
		newExecutionStepCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListExecutionsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execs, err := client.ListExecutions(opts)
			if err != nil {
				return err
			}

			out.Executions(execs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Version, "version", "", "Filter by workflow version ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (PENDING, RUNNING, SUCCEEDED, FAILED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newExecutionStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "start VERSION_ID",
		Short: "Start an execution of a workflow version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.StartExecution(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution started: %s", exec.ID))
			out.Execution(exec)
			return nil
		},
	}
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show EXECUTION_ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			exec, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}
			out.Execution(exec)
			return nil
		},
	}
}

func newExecutionNodesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes EXECUTION_ID",
		Short: "List nodes of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			nodes, err := client.ListExecutionNodes(args[0])
			if err != nil {
				return err
			}

			out.ExecutionNodes(nodes)
			return nil
		},
	}
}

func newExecutionStepCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "step EXECUTION_ID NODE_ID",
		Short: "Dispatch an execution step to a node again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().TriggerStep(args[0], args[1]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Step dispatched: %s", args[1]))
			return nil
		},
	}
}
