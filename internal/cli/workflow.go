package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для работы с workflow через API.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflow graphs",
	}

	cmd.AddCommand(
		newWorkflowImportCmd(clientFn, outputFn),
		newWorkflowGraphCmd(clientFn, outputFn),
		newWorkflowTypesCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowImportCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import a workflow definition (YAML or DOT)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}

			contentType := "application/yaml"
			switch strings.ToLower(filepath.Ext(args[0])) {
			case ".dot", ".gv":
				contentType = "text/vnd.graphviz"
			}

			res, err := client.ImportWorkflow(data, contentType)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow imported: version %s", res.WorkflowVersionID))
			out.Print(
				[]string{"WORKFLOW", "VERSION", "NODES", "EDGES"},
				[][]string{{res.WorkflowID, res.WorkflowVersionID, fmt.Sprint(res.Nodes), fmt.Sprint(res.Edges)}},
				res,
			)
			return nil
		},
	}
}

func newWorkflowGraphCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "graph VERSION_ID",
		Short: "Show nodes and edges of a workflow version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if dot {
				src, err := client.GetGraphDOT(args[0])
				if err != nil {
					return err
				}
				out.Raw(src)
				return nil
			}

			g, err := client.GetGraph(args[0])
			if err != nil {
				return err
			}
			out.Graph(g)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "Print the graph in Graphviz DOT format")

	return cmd
}

func newWorkflowTypesCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List node types",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			types, err := client.ListNodeTypes()
			if err != nil {
				return err
			}
			out.NodeTypes(types)
			return nil
		},
	}
}
