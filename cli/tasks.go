package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/meshflow/meshflow/engine/task"
	"github.com/spf13/cobra"
)

var (
	taskCategoryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	taskTypeStyle     = lipgloss.NewStyle().Bold(true)
	taskLabelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// TasksCmd returns the tasks command
func TasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the registered task catalog",
		Args:  cobra.NoArgs,
		RunE:  handleTasksCmd,
	}
	cmd.Flags().Bool("json", false, "Print the catalog as JSON")
	cmd.Flags().Bool("pretty", false, "Indent JSON output")
	return cmd
}

func handleTasksCmd(cmd *cobra.Command, _ []string) error {
	registry, err := newRegistry(nil)
	if err != nil {
		return err
	}
	defs := registry.Definitions()
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("failed to get json flag: %w", err)
	}
	if asJSON {
		prettyOutput, err := cmd.Flags().GetBool("pretty")
		if err != nil {
			return fmt.Errorf("failed to get pretty flag: %w", err)
		}
		return writeJSON(cmd.OutOrStdout(), defs, prettyOutput)
	}
	fmt.Fprint(cmd.OutOrStdout(), renderCatalog(defs))
	return nil
}

// renderCatalog groups definitions by category for terminal display. The
// registry already sorts entries by type, so each group stays sorted.
func renderCatalog(defs []*task.Definition) string {
	grouped := make(map[string][]*task.Definition)
	width := 0
	for _, def := range defs {
		grouped[def.DisplayInfo.Category] = append(grouped[def.DisplayInfo.Category], def)
		if len(def.Type) > width {
			width = len(def.Type)
		}
	}
	categories := make([]string, 0, len(grouped))
	for category := range grouped {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	var b strings.Builder
	for i, category := range categories {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(taskCategoryStyle.Render(category))
		b.WriteString("\n")
		for _, def := range grouped[category] {
			b.WriteString("  ")
			b.WriteString(taskTypeStyle.Render(fmt.Sprintf("%-*s", width, def.Type)))
			if def.DisplayInfo.Label != "" {
				b.WriteString("  ")
				b.WriteString(taskLabelStyle.Render(def.DisplayInfo.Label))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
