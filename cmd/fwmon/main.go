//go:build linux
// +build linux

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gofirewalld/internal/firewalld"
	"gofirewalld/internal/logger"
	"gofirewalld/internal/settings"
	"gofirewalld/internal/ui"
	"gofirewalld/internal/version"
)

type options struct {
	logLevel string
	logFile  string
	noColor  bool
	events   int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "fwmon",
		Short:         "Watch the gofirewalld configuration",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The terminal belongs to the UI, so the log goes to a file.
			file := opts.logFile
			if file == "" {
				file = logger.DefaultMonitorLog()
			}
			return withClient(opts, file, func(client *firewalld.Client) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return ui.RunWithContext(ctx, client, ui.Options{NoColor: opts.noColor, EventLimit: opts.events})
			})
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "", "set log level (debug|info|warn|error)")
	pf.StringVar(&opts.logFile, "log-file", "", "log file")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable color output")
	cmd.Flags().IntVar(&opts.events, "event-limit", 0, "events kept in the event pane (0 = default)")

	cmd.AddCommand(newEventsCmd(opts), newListCmd(opts))
	return cmd
}

func withClient(opts *options, logFile string, fn func(*firewalld.Client) error) error {
	closer, err := logger.Init(logger.Options{Level: opts.logLevel, File: logFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	client, err := firewalld.NewClient()
	if err != nil {
		return fmt.Errorf("%w (is gofirewalld running?)", err)
	}
	defer client.Close()
	return fn(client)
}

func newEventsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print change signals as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(opts, opts.logFile, func(client *firewalld.Client) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return printEvents(ctx, client, cmd.OutOrStdout())
			})
		},
	}
}

func printEvents(ctx context.Context, client *firewalld.Client, out io.Writer) error {
	events, cancel, err := client.SubscribeSignals()
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "%s %s\n", ev.Path, ev)
		}
	}
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "list zone|service|icmptype|ipset",
		Short:     "List the names of one kind of object",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"zone", "service", "icmptype", "ipset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return withClient(opts, opts.logFile, func(client *firewalld.Client) error {
				names, err := client.Names(k)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			})
		},
	}
}

func parseKind(s string) (settings.Kind, error) {
	for _, k := range settings.Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}
