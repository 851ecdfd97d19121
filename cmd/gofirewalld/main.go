//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"gofirewalld/internal/ebtables"
	"gofirewalld/internal/version"
	"gofirewalld/internal/watch"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := defaultOptions()
	cmd := &cobra.Command{
		Use:           "gofirewalld",
		Short:         "Firewall configuration daemon",
		Long:          "gofirewalld keeps the permanent firewall configuration on the system bus and maintains the ebtables bootstrap chains.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Root, "root", opts.Root, "prefix for the configuration directories")
	f.StringVar(&opts.LogLevel, "log-level", "", "set log level (debug|info|warn|error)")
	f.StringVar(&opts.LogFile, "log-file", "", "write the log to a rotated file instead of stderr")
	f.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9469")
	f.DurationVar(&opts.WatchDelay, "watch-delay", opts.WatchDelay, "quiet period before a changed file is reloaded")
	f.BoolVar(&opts.SessionBus, "session-bus", false, "use the session bus (testing)")
	f.BoolVar(&opts.NoEngine, "no-ebtables", false, "do not touch ebtables")
	f.BoolVar(&opts.AllowUsers, "allow-users", false, "let non-root callers change the configuration")
	f.StringVar(&opts.Engine.Command, "ebtables", opts.Engine.Command, "ebtables binary")
	f.StringVar(&opts.Engine.RestoreCommand, "ebtables-restore", opts.Engine.RestoreCommand, "ebtables-restore binary")
	f.StringVar(&opts.Engine.LockFile, "ebtables-lock", opts.Engine.LockFile, "ebtables lock file")
	f.DurationVar(&opts.Engine.Timeout, "tool-timeout", opts.Engine.Timeout, "timeout of one ebtables invocation")
	return cmd
}

type options struct {
	Root        string
	LogLevel    string
	LogFile     string
	MetricsAddr string
	WatchDelay  time.Duration
	SessionBus  bool
	NoEngine    bool
	AllowUsers  bool
	Engine      ebtables.Config
}

func defaultOptions() *options {
	return &options{
		WatchDelay: watch.DefaultDelay,
		Engine: ebtables.Config{
			Command:        "ebtables",
			RestoreCommand: "ebtables-restore",
			LockFile:       ebtables.DefaultLockFile,
			Timeout:        30 * time.Second,
		},
	}
}
