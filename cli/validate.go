package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidateCmd returns the validate command
func ValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow-file>",
		Short: "Validate a workflow document without executing it",
		Args:  cobra.ExactArgs(1),
		RunE:  handleValidateCmd,
	}
}

func handleValidateCmd(cmd *cobra.Command, args []string) error {
	registry, err := newRegistry(nil)
	if err != nil {
		return err
	}
	wf, err := loadWorkflow(cmd.Context(), args[0], registry)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "workflow %q is valid: %d nodes, %d edges\n",
		wf.ID, len(wf.Nodes), len(wf.Edges))
	return nil
}
