//go:build linux
// +build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sync/errgroup"

	"gofirewalld/internal/ebtables"
	"gofirewalld/internal/graph"
	"gofirewalld/internal/logger"
	"gofirewalld/internal/metrics"
	"gofirewalld/internal/persist"
	"gofirewalld/internal/server"
	"gofirewalld/internal/version"
	"gofirewalld/internal/watch"
)

const cleanupTimeout = time.Minute

func run(ctx context.Context, opts *options) error {
	closer, err := logger.Init(logger.Options{Level: opts.LogLevel, File: opts.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting", "version", version.String())
	reg := metrics.New()

	layout := persist.DefaultLayout()
	if opts.Root != "" && opts.Root != "/" {
		layout = layout.Under(opts.Root)
	}
	backend := persist.New(layout)

	conn, err := connect(opts.SessionBus)
	if err != nil {
		return err
	}
	defer conn.Close()

	srv := server.New(conn, server.Options{Resolver: server.NewBusResolver(conn), Version: version.Version})
	gopts := graph.Options{Backend: backend, Sink: srv, Registrar: srv, Metrics: reg}
	if !opts.AllowUsers {
		gopts.Gate = rootOnly
	}
	g := graph.New(gopts)
	srv.Bind(g)
	if err := g.Load(); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("export configuration: %w", err)
	}
	reply, err := conn.RequestName(server.BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", server.BusName)
	}

	var engine *ebtables.Engine
	if !opts.NoEngine {
		cfg := opts.Engine
		cfg.Metrics = reg
		engine = ebtables.New(ebtables.DefaultRegistry(), cfg)
		prepare(ctx, engine)
	}

	dispatcher := watch.NewDispatcher(g, backend, layout, reg)
	watcher, err := watch.NewWatcher(dispatcher, opts.WatchDelay)
	if err != nil {
		return err
	}
	if err := watcher.AddLayout(layout); err != nil {
		return fmt.Errorf("watch configuration: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return watcher.Run(gctx)
	})
	if opts.MetricsAddr != "" {
		group.Go(func() error {
			return serveMetrics(gctx, opts.MetricsAddr, reg)
		})
	}
	slog.Info("running", "root", layout.UserDir, "bus", server.BusName)

	err = group.Wait()
	slog.Info("shutting down")

	if engine != nil && g.CleanupOnExit() {
		cctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		cleanup(cctx, engine, g.IndividualCalls())
	}
	return err
}

func connect(session bool) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if session {
		conn, err = dbus.ConnectSessionBus()
	} else {
		conn, err = dbus.ConnectSystemBus()
	}
	if err != nil {
		return nil, fmt.Errorf("connect bus: %w", err)
	}
	return conn, nil
}

// rootOnly mirrors the default polkit rule: only root may edit.
var rootOnly = graph.GateFunc(func(c graph.Caller) bool {
	return c.UID == 0
})

// prepare probes the tables, checks for --noflush support and installs the
// bootstrap chains. Failures are logged; the configuration stays available.
func prepare(ctx context.Context, engine *ebtables.Engine) {
	tables := engine.AvailableTables(ctx)
	slog.Info("ebtables tables available", "tables", tables)
	if len(tables) == 0 {
		return
	}
	if !engine.DetectIncrementalSupport(ctx) {
		slog.Warn("ebtables-restore lacks --noflush, using single rule calls")
	}
	if err := engine.Bootstrap(ctx); err != nil {
		slog.Error("bootstrap failed", "error", err)
	}
}

func cleanup(ctx context.Context, engine *ebtables.Engine, individual bool) {
	slog.Info("flushing ebtables", "individual", individual)
	if err := engine.Flush(ctx, individual); err != nil {
		slog.Error("flush failed", "error", err)
	}
	err := engine.SetPolicy(ctx, "ACCEPT", ebtables.ScopeUsed, individual)
	if errors.Is(err, ebtables.ErrNotAtomic) {
		// The tables are empty by now, so each chain is reset on its own.
		slog.Warn("setting policies one by one", "error", err)
		err = engine.SetPolicy(ctx, "ACCEPT", ebtables.ScopeUsed, true)
	}
	if err != nil {
		slog.Error("set policy failed", "error", err)
	}
}

func serveMetrics(ctx context.Context, addr string, reg *metrics.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(sctx)
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
