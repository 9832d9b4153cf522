package cli

import (
	"github.com/gin-gonic/gin"
	"github.com/meshflow/meshflow/pkg/config"
	"github.com/meshflow/meshflow/server"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the workflow engine HTTP server",
		Args:  cobra.NoArgs,
		RunE:  handleServeCmd,
	}
	cmd.Flags().String("host", "", "Bind address for the HTTP server")
	cmd.Flags().Int("port", 0, "Port for the HTTP server")
	cmd.Flags().Bool("cors", true, "Enable CORS middleware")
	cmd.Flags().Duration("timeout", 0, "Read and write timeout for HTTP requests")
	return cmd
}

func handleServeCmd(cmd *cobra.Command, _ []string) error {
	gin.SetMode(gin.ReleaseMode)
	cfg, err := config.Load(overridesFromFlags(cmd))
	if err != nil {
		return err
	}
	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}
	return srv.Run()
}
