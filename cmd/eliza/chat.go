package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Eliza/internal/eliza/app"
	"github.com/bdobrica/Eliza/internal/eliza/config"
	"github.com/bdobrica/Eliza/internal/eliza/gateway"
)

// CLITransport is the gateway transport name of terminal conversations.
const CLITransport = "cli"

func newChatCmd(root *rootOptions) *cobra.Command {
	var (
		scriptPath string
		prompt     string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to Eliza in the terminal",
		Long: `chat holds one conversation over standard input and output. Each line
typed is one utterance; the conversation ends on a quit phrase, on
"/eliza bye" or at end of input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if root.logLevel == "" {
				cfg.Log.Level = "warn"
			}
			if scriptPath != "" {
				cfg.Script.Path = scriptPath
			}
			return runChat(cmd.Context(), cfg, root, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), prompt)
		},
	}
	cmd.Flags().StringVarP(&scriptPath, "script", "s", "", "script file to talk to (text grammar or YAML)")
	cmd.Flags().StringVar(&prompt, "prompt", "> ", "prompt printed before each line of input")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config, root *rootOptions, in io.Reader, out, errOut io.Writer, prompt string) error {
	// A terminal conversation needs neither listeners nor a sync loop.
	cfg.HTTP.Addr = ""
	cfg.Matrix = config.MatrixConfig{}
	cfg.Script.Watch = false
	cfg.RateLimit.PerMinute = 0

	logger, err := root.logger(cfg, errOut)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.Sessions().Close()

	gw := a.Gateway()
	msg := gateway.Message{Transport: CLITransport, Room: fmt.Sprint(os.Getpid()), Sender: whoami()}

	resp, err := gw.Open(ctx, msg)
	if err != nil {
		return err
	}
	printLines(out, resp.Lines)

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !sc.Scan() {
			break
		}
		msg.Text = sc.Text()
		resp, err := gw.Handle(ctx, msg)
		if err != nil {
			return err
		}
		printLines(out, resp.Lines)
		if resp.Ended {
			return nil
		}
	}
	fmt.Fprintln(out)
	if info, ok := a.Sessions().End(msg.Key()); ok && info.Final != "" {
		fmt.Fprintln(out, info.Final)
	}
	return sc.Err()
}

func printLines(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

func whoami() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "you"
}
