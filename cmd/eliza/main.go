// Command eliza runs ELIZA conversations from a script: interactively in a
// terminal, or as a service answering Matrix rooms and browser chats.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Eliza/common/version"
	"github.com/bdobrica/Eliza/internal/eliza/config"
	"github.com/bdobrica/Eliza/internal/eliza/observability"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "eliza",
		Short: "Script-driven ELIZA conversations",
		Long: `eliza answers conversations the way Weizenbaum's ELIZA did: every reply
comes from a script of keywords, decomposition patterns and reassembly
templates. Without a script the built-in DOCTOR script is used.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate(version.Info() + "\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "path to the YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the configuration")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (text, json); overrides the configuration")

	cmd.AddCommand(
		newChatCmd(opts),
		newServeCmd(opts),
		newCheckCmd(),
		newFmtCmd(),
		newScriptCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load reads the configuration and applies the logging flags.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	return cfg, nil
}

// logger builds the process logger on w and installs it as the default.
func (o *rootOptions) logger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := observability.Setup(w, cfg.Log.Level, cfg.Log.Format, cfg.Secrets()...)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
