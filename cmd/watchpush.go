package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/twiced-technology-gmbh/ralphy/internal/gitx"
	"github.com/twiced-technology-gmbh/ralphy/internal/output"
	"github.com/twiced-technology-gmbh/ralphy/internal/watcher"
)

var watchPushCmd = &cobra.Command{
	Use:   "watch-push",
	Short: "Push the current branch after every new commit",
	RunE: func(_ *cobra.Command, _ []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		output.Messagef(os.Stdout, "Watching %s for new commits", cwd)
		return watcher.WatchAndPush(ctx, gitx.New(cwd, nil), func(err error) {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		})
	},
}

func init() {
	rootCmd.AddCommand(watchPushCmd)
}
