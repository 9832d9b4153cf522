// Package cli implements the meshflow command line interface: execute and
// validate workflow documents, inspect the task catalog, generate sample
// data, and serve the HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/meshflow/meshflow/pkg/logger"
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "meshflow",
		Short:         "Node-graph workflow engine",
		Long:          "meshflow executes workflow documents: directed graphs of typed nodes wired by ports and edges.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(cmd); err != nil {
				return err
			}
			logLevel, logJSON, logSource, err := logger.GetLoggerConfig(cmd)
			if err != nil {
				return err
			}
			logger.SetupLogger(logLevel, logJSON, logSource)
			return nil
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	root.PersistentFlags().Bool("log-source", false, "Include source file and line in logs")
	root.PersistentFlags().String("env-file", ".env", "Path to the environment variables file")

	root.AddCommand(
		RunCmd(),
		ValidateCmd(),
		SampleCmd(),
		TasksCmd(),
		DevCmd(),
		ServeCmd(),
	)

	return root
}

// loadEnvFile loads environment variables from the configured file. A
// missing file is not an error; the flag default is best-effort.
func loadEnvFile(cmd *cobra.Command) error {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if envFile == "" {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}
