package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/meshflow/meshflow/engine/core"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
)

// writeJSON renders a value to the writer, compact by default and indented
// when prettyOutput is set.
func writeJSON(w io.Writer, value any, prettyOutput bool) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if prettyOutput {
		data = pretty.Pretty(data)
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	_, err = w.Write(data)
	return err
}

// readInput parses the --input flag: inline JSON, or @path to read the
// payload from a file.
func readInput(cmd *cobra.Command) (core.Output, error) {
	raw, err := cmd.Flags().GetString("input")
	if err != nil {
		return nil, fmt.Errorf("failed to get input flag: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	data := []byte(raw)
	if strings.HasPrefix(raw, "@") {
		data, err = os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
	}
	input := core.Output{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to parse input as a JSON object: %w", err)
	}
	return input, nil
}
