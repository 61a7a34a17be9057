package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/keshon/nuget-tracker/internal/app"
	"github.com/keshon/nuget-tracker/internal/config"
	"github.com/keshon/nuget-tracker/internal/logging"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	who      caller
	storage  string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "nuget-tracker-cli",
		Short: "Run tracker commands from a terminal",
		Long: "Runs the bot's text commands against the local datastore without connecting to Discord.\n" +
			"With no arguments an interactive prompt reads one command per line.",
		SilenceUsage: true,
		RunE: func(c *cobra.Command, _ []string) error {
			return withApp(c, opts, func(a *app.App, con *console) error {
				return con.repl(c.Context(), a.Dispatcher, opts.who, c.InOrStdin())
			})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.who.GuildID, "guild", "console", "guild the commands run in")
	flags.StringVar(&opts.who.UserID, "user", "console", "user the commands run as")
	flags.BoolVar(&opts.who.Admin, "admin", true, "run commands with administrator rights")
	flags.StringVar(&opts.storage, "storage", "", "datastore file (overrides STORAGE_PATH)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(newExecCmd(opts), newRefreshCmd(opts))
	return root
}

func newExecCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command> [args...]",
		Short: "Execute a single command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(c, opts, func(a *app.App, con *console) error {
				input := strings.Join(args, " ")
				res := a.Dispatcher.ExecuteText(c.Context(), con.invocation(opts.who, input), input)
				a.Dispatcher.Wait()
				if !res.IsSuccess() {
					return fmt.Errorf("%s: %s", res.Kind, res.Reason)
				}
				return nil
			})
		},
	}
}

func newRefreshCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh stale tracked packages from NuGet once",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withApp(c, opts, func(a *app.App, _ *console) error {
				n, err := a.Tracker.Refresh(c.Context())
				fmt.Fprintf(c.OutOrStdout(), "refreshed %d package(s)\n", n)
				return err
			})
		},
	}
}

func withApp(c *cobra.Command, opts *options, fn func(*app.App, *console) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.storage != "" {
		cfg.StoragePath = opts.storage
	}
	log, closer := logging.New(logging.Options{Level: opts.logLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer closer.Close()

	con := &console{out: c.OutOrStdout()}
	a, err := app.New(cfg, log, dispatch.WithResultFunc(con.report))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, con)
}
