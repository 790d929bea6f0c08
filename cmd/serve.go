package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/ralphy/internal/output"
	"github.com/twiced-technology-gmbh/ralphy/internal/server"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control plane in the foreground",
	RunE: func(_ *cobra.Command, _ []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}

		srv := server.New(version, cwd)
		baseURL, shutdown, err := srv.Listen(flagServeAddr)
		if err != nil {
			return fmt.Errorf("starting control plane: %w", err)
		}
		defer shutdown()

		output.Messagef(os.Stdout, "ralphy control plane listening on %s", baseURL)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "127.0.0.1:7953", "listen address")
	rootCmd.AddCommand(serveCmd)
}
