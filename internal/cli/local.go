package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/craftflow/internal/control"
	"github.com/shaiso/craftflow/internal/graph"
	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/telemetry"
	"github.com/shaiso/craftflow/internal/workflow"
)

// NewLocalCmd создаёт группу команд, работающих с файлом workflow
// без API: граф собирается и выполняется в текущем процессе.
func NewLocalCmd(outputFn func() *Output) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "local",
		Short: "Validate, render and run workflow files in-process",
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "WARN", "Log level (DEBUG, INFO, WARN, ERROR)")

	loggerFn := func() *slog.Logger {
		return telemetry.NewLogger(os.Stderr, logLevel, "text")
	}

	cmd.AddCommand(
		newLocalRunCmd(outputFn, loggerFn),
		newLocalValidateCmd(outputFn, loggerFn),
		newLocalDotCmd(outputFn, loggerFn),
	)

	return cmd
}

// buildLocal читает файл, проверяет описание и собирает граф.
// Context не сохраняется.
func buildLocal(path string, logger *slog.Logger, timeout time.Duration) (*workflow.Definition, *graph.Graph, error) {
	reg := nodes.DefaultRegistry()

	def, err := workflow.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if err := def.Validate(reg); err != nil {
		return nil, nil, err
	}
	spec, err := def.Spec()
	if err != nil {
		return nil, nil, err
	}
	g, err := workflow.Build(spec, workflow.Options{
		Registry:       reg,
		Logger:         logger,
		ReadOnly:       true,
		ExecuteTimeout: timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return def, g, nil
}

func newLocalRunCmd(outputFn func() *Output, loggerFn func() *slog.Logger) *cobra.Command {
	var starts []string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a workflow file from its entry points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			_, g, err := buildLocal(args[0], loggerFn(), timeout)
			if err != nil {
				return err
			}
			defer g.Close()

			report, err := control.New(g, loggerFn()).Run(cmd.Context(), uuid.NewString(), starts...)
			if err != nil {
				return err
			}

			out.Report(report)

			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d node(s) failed, first: %s: %s", len(failed), failed[0].ID, failed[0].Error)
			}
			out.Success(fmt.Sprintf("Run finished in %s", report.Duration.Round(time.Millisecond)))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&starts, "start", nil, "Start from these nodes instead of the entry points")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Per-node execution timeout")

	return cmd
}

func newLocalValidateCmd(outputFn func() *Output, loggerFn func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check node types, ports and edges of a workflow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, g, err := buildLocal(args[0], loggerFn(), 0)
			if err != nil {
				return err
			}
			defer g.Close()

			outputFn().Success(fmt.Sprintf("%s is valid: %d nodes, %d edges", def.Name, g.Len(), len(g.Connections())))
			return nil
		},
	}
}

func newLocalDotCmd(outputFn func() *Output, loggerFn func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "dot FILE",
		Short: "Print a workflow file as a Graphviz DOT graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, g, err := buildLocal(args[0], loggerFn(), 0)
			if err != nil {
				return err
			}
			defer g.Close()

			src, err := workflow.ExportDOT(def.Name, g)
			if err != nil {
				return err
			}
			outputFn().Raw(src)
			return nil
		},
	}
}
