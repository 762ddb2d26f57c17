package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Eliza/internal/eliza/app"
	"github.com/bdobrica/Eliza/internal/eliza/script"
	"github.com/bdobrica/Eliza/internal/eliza/store"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Validate script files",
		Long: `check compiles each script and reports its size, or the first problem
found with its line number. It exits non-zero when any file is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				s, err := script.ParseFile(path)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s: %d keys, %d patterns, memory %d\n",
					path, len(s.Rules()), s.DecompositionCount(), s.MemorySize())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scripts invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newFmtCmd() *cobra.Command {
	var (
		asYAML bool
		write  bool
	)
	cmd := &cobra.Command{
		Use:   "fmt <file>",
		Short: "Print a script in canonical form",
		Long: `fmt compiles a script and prints it back normalised: keywords and
substitutions lower-cased, whitespace squeezed and "0" wildcards written
as "*". With --yaml the YAML form is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := script.ParseFile(args[0])
			if err != nil {
				return err
			}
			var out []byte
			if asYAML {
				if out, err = script.MarshalYAML(s.Document()); err != nil {
					return err
				}
			} else {
				out = []byte(s.String())
			}
			if write {
				info, err := os.Stat(args[0])
				if err != nil {
					return err
				}
				return os.WriteFile(args[0], out, info.Mode().Perm())
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the YAML form")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "rewrite the file in place")
	return cmd
}

type libraryOptions struct {
	root   *rootOptions
	dbPath string
}

func (o *libraryOptions) open() (*store.Store, error) {
	path := o.dbPath
	if path == "" {
		cfg, err := o.root.load()
		if err != nil {
			return nil, err
		}
		path = cfg.Database.Path
	}
	if path == "" {
		return nil, errors.New("no database: set --db or database.path")
	}
	return store.New(path)
}

func newScriptCmd(root *rootOptions) *cobra.Command {
	opts := &libraryOptions{root: root}
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Manage the versioned script library",
	}
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "database file; defaults to database.path from the configuration")

	cmd.AddCommand(&cobra.Command{
		Use:   "push <name> <file>",
		Short: "Store a script file as the next version of name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, path := args[0], args[1]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if _, err := script.ParseFile(path); err != nil {
				return err
			}
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			by := pushedBy(path)
			v, created, err := st.SaveScript(cmd.Context(), name, app.FormatOf(path), string(data), by)
			if err != nil {
				return err
			}
			if created {
				err = st.WriteAudit(cmd.Context(), store.AuditEntry{
					Actor:   by,
					Action:  "script.push",
					Target:  name,
					Payload: map[string]any{"version": v.Version, "hash": v.Hash},
					Result:  store.AuditSuccess,
				})
				if err != nil {
					return err
				}
			}
			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is unchanged at v%d\n", name, v.Version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s v%d (%s)\n", name, v.Version, v.Hash[:12])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list [name]",
		Short: "List stored scripts, or the versions of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			if len(args) == 0 {
				names, err := st.ScriptNames(ctx)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			}
			versions, err := st.ListScripts(ctx, args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tFORMAT\tHASH\tCREATED\tBY")
			for _, v := range versions {
				fmt.Fprintf(tw, "v%d\t%s\t%s\t%s\t%s\n", v.Version, v.Format, v.Hash[:12], v.CreatedAt.Format("2006-01-02 15:04:05"), v.CreatedBy)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name> [version]",
		Short: "Print a stored script, the latest version by default",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			var v *store.ScriptVersion
			if len(args) == 2 {
				n, perr := strconv.Atoi(args[1])
				if perr != nil {
					return fmt.Errorf("invalid version %q", args[1])
				}
				v, err = st.GetScript(cmd.Context(), args[0], n)
			} else {
				v, err = st.LatestScript(cmd.Context(), args[0])
			}
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("script %q not found", args[0])
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), v.Source)
			return err
		},
	})
	cmd.AddCommand(newAuditCmd(opts))
	return cmd
}

func newAuditCmd(opts *libraryOptions) *cobra.Command {
	var (
		limit   int
		traceID string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent commands, reloads and pushes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.open()
			if err != nil {
				return err
			}
			defer st.Close()

			var entries []*store.AuditEntry
			if traceID != "" {
				entries, err = st.AuditByTrace(cmd.Context(), traceID)
			} else {
				entries, err = st.AuditLog(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTOR\tACTION\tTARGET\tRESULT\tTRACE")
			for _, e := range entries {
				result := e.Result
				if e.Error != "" {
					result += ": " + e.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Actor, e.Action, e.Target, result, e.TraceID)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().StringVar(&traceID, "trace", "", "show only the entries of one turn ID")
	return cmd
}

func pushedBy(path string) string {
	who := "cli"
	if u, err := user.Current(); err == nil && u.Username != "" {
		who = u.Username
	}
	return who + ":" + filepath.Base(path)
}
