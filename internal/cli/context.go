package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewContextCmd создаёт группу команд для долговременных состояний вершин.
func NewContextCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Inspect and edit node contexts",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show CONTEXT_ID",
			Short: "Show context state",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := clientFn().GetContext(args[0])
				if err != nil {
					return err
				}
				outputFn().JSON(c)
				return nil
			},
		},
		newContextSetCmd(clientFn, outputFn),
	)

	return cmd
}

func newContextSetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "set CONTEXT_ID [STATE_JSON]",
		Short: "Overwrite context state",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var state []byte
			switch {
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read file: %w", err)
				}
				state = data
			case len(args) == 2:
				state = []byte(args[1])
			default:
				return fmt.Errorf("state is required: pass STATE_JSON or --file")
			}
			if !json.Valid(state) {
				return fmt.Errorf("state is not valid JSON")
			}

			c, err := clientFn().SetContext(args[0], state)
			if err != nil {
				return err
			}
			out := outputFn()
			out.Success(fmt.Sprintf("Context updated: %s", c.ID))
			out.JSON(c)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read state from JSON file")

	return cmd
}
