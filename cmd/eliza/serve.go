package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Eliza/common/version"
	"github.com/bdobrica/Eliza/internal/eliza/app"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Eliza service",
		Long: `serve answers Matrix rooms and browser chats until interrupted. What it
listens on comes from the configuration file and ELIZA_* variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger, err := root.logger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			var attrs []any
			for k, v := range version.Fields() {
				attrs = append(attrs, k, v)
			}
			logger.Info("starting eliza", attrs...)

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}
