//go:build linux
// +build linux

// Package ebtables submits rule batches to the ebtables tools. All tool
// invocations of an Engine are serialized and preceded by dangling lock
// recovery.
package ebtables

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/metrics"
	"gofirewalld/internal/runner"
)

const (
	defaultTable = "filter"

	// IPv is the family identifier direct rules use for this backend.
	IPv = "eb"
)

// Scope selects the tables SetPolicy touches.
type Scope int

const (
	// ScopeUsed covers the tables found available by AvailableTables, or
	// every known table when nothing was probed yet.
	ScopeUsed Scope = iota
	ScopeAll
)

type Config struct {
	Command        string
	RestoreCommand string
	LockFile       string
	TempDir        string
	Timeout        time.Duration

	Runner    runner.Runner
	Processes ProcessChecker
	Metrics   *metrics.Registry
}

func (c *Config) setDefaults() {
	if c.Command == "" {
		c.Command = "ebtables"
	}
	if c.RestoreCommand == "" {
		c.RestoreCommand = "ebtables-restore"
	}
	if c.Timeout <= 0 {
		c.Timeout = runner.DefaultTimeout
	}
	if c.Runner == nil {
		c.Runner = runner.Exec{Timeout: c.Timeout}
	}
	if c.Processes == nil {
		c.Processes = ProcessTable{}
	}
}

// ErrNotAtomic is returned by batch operations when the restore tool cannot
// apply rules without flushing the tables first. Nothing was applied.
var ErrNotAtomic = errors.New("restore tool has no incremental mode, batch cannot be applied atomically")

// ToolError reports a failed tool invocation.
type ToolError struct {
	Command string
	Args    []string
	Status  int
	Output  string
	Err     error
}

func (e *ToolError) Error() string {
	cmd := strings.TrimSpace(e.Command + " " + strings.Join(e.Args, " "))
	if e.Err != nil {
		return fmt.Sprintf("'%s' failed: %v", cmd, e.Err)
	}
	return fmt.Sprintf("'%s' failed: %s", cmd, strings.TrimSpace(e.Output))
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

type Engine struct {
	mu  sync.Mutex
	reg *Registry
	cfg Config

	incremental bool
	probed      bool
	available   []string
}

func New(reg *Registry, cfg Config) *Engine {
	cfg.setDefaults()
	return &Engine{
		reg:         reg,
		cfg:         cfg,
		incremental: true,
	}
}

func (e *Engine) Registry() *Registry {
	return e.reg
}

// Incremental reports whether batches can be restored without flushing.
func (e *Engine) Incremental() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.incremental
}

// Document serializes rules into the restore format. Rules are grouped per
// table in first-seen order; each block ends with COMMIT.
func Document(rules []Rule) string {
	order, byTable := group(rules)
	var b strings.Builder
	for _, table := range order {
		b.WriteString("*" + table + "\n")
		for _, r := range byTable[table] {
			b.WriteString(strings.Join(r, " ") + "\n")
		}
		b.WriteString("COMMIT\n")
	}
	return b.String()
}

func group(rules []Rule) ([]string, map[string][]Rule) {
	table := defaultTable
	var order []string
	byTable := make(map[string][]Rule)
	for _, r := range rules {
		r = slices.Clone(r)
		if i := slices.Index(r, "-t"); i >= 0 && i+1 < len(r) {
			table = r[i+1]
			r = slices.Delete(r, i, i+2)
		}
		if _, seen := byTable[table]; !seen {
			order = append(order, table)
		}
		byTable[table] = append(byTable[table], r)
	}
	return order, byTable
}

// Apply submits rules as one restore transaction per table. Unless flush is
// set the tool keeps existing rules. When the restore tool has no
// incremental mode, a non-flushing batch is issued rule by rule instead.
func (e *Engine) Apply(ctx context.Context, rules []Rule, flush bool) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply(ctx, rules, flush)
}

func (e *Engine) apply(ctx context.Context, rules []Rule, flush bool) (string, error) {
	order, byTable := group(rules)
	for _, table := range order {
		if !e.reg.IsValid(table) {
			return "", fwerr.New(fwerr.InvalidTable, table)
		}
	}

	if !flush && !e.incremental {
		slog.Debug("restore without noflush unsupported, applying rules individually", "rules", len(rules))
		var out strings.Builder
		for _, table := range order {
			for _, r := range byTable[table] {
				res, err := e.run(ctx, append(Rule{"-t", table}, r...))
				if err != nil {
					return out.String(), err
				}
				out.WriteString(res)
			}
		}
		return out.String(), nil
	}

	return e.restore(ctx, Document(rules), flush)
}

func (e *Engine) restore(ctx context.Context, doc string, flush bool) (string, error) {
	tx := uuid.NewString()

	f, err := os.CreateTemp(e.cfg.TempDir, "ebtables-restore-")
	if err != nil {
		return "", fmt.Errorf("create transaction file: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("remove transaction file", "tx", tx, "path", path, "error", err)
		}
	}()

	if _, err := f.WriteString(doc); err != nil {
		f.Close()
		return "", fmt.Errorf("write transaction file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close transaction file: %w", err)
	}

	var args []string
	if !flush {
		args = append(args, "--noflush")
	}
	slog.Debug("restore", "tx", tx, "cmd", e.cfg.RestoreCommand, "args", args, "bytes", len(doc))
	return e.invoke(ctx, runner.Cmd{Path: e.cfg.RestoreCommand, Args: args, StdinFile: path})
}

// DetectIncrementalSupport probes whether the restore tool accepts
// --noflush by restoring an empty batch. A failure means unsupported.
func (e *Engine) DetectIncrementalSupport(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.restore(ctx, "", false)
	e.incremental = err == nil
	if err != nil {
		slog.Info("incremental restore unsupported", "error", err)
	}
	return e.incremental
}

// Run issues a single command with the tool's own locking enabled.
func (e *Engine) Run(ctx context.Context, rule Rule) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run(ctx, rule)
}

func (e *Engine) Append(ctx context.Context, rule Rule) error {
	_, err := e.Run(ctx, append(Rule{"-A"}, rule...))
	return err
}

func (e *Engine) Delete(ctx context.Context, rule Rule) error {
	_, err := e.Run(ctx, append(Rule{"-D"}, rule...))
	return err
}

func (e *Engine) run(ctx context.Context, rule Rule) (string, error) {
	args := append([]string{"--concurrent"}, rule...)
	return e.invoke(ctx, runner.Cmd{Path: e.cfg.Command, Args: args})
}

// invoke is the single path to the tool. Callers hold e.mu.
func (e *Engine) invoke(ctx context.Context, cmd runner.Cmd) (string, error) {
	if err := e.removeDanglingLock(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	res, err := e.cfg.Runner.Run(ctx, cmd)
	ok := err == nil && res.Status == 0
	e.cfg.Metrics.ToolRun(filepath.Base(cmd.Path), ok, time.Since(start).Seconds())

	if err != nil {
		return res.Output, &ToolError{Command: cmd.Path, Args: cmd.Args, Status: res.Status, Output: res.Output, Err: err}
	}
	if res.Status != 0 {
		return res.Output, &ToolError{Command: cmd.Path, Args: cmd.Args, Status: res.Status, Output: res.Output}
	}
	return res.Output, nil
}

// AvailableTables lists each table and returns the ones that answered.
// Without arguments every known table is probed and the result is kept for
// later Flush, SetPolicy and Bootstrap calls.
func (e *Engine) AvailableTables(ctx context.Context, tables ...string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	all := len(tables) == 0
	if all {
		tables = e.reg.Tables()
	}
	var ret []string
	for _, t := range tables {
		if _, err := e.run(ctx, Rule{"-t", t, "-L"}); err != nil {
			slog.Debug("table not available", "table", t, "error", err)
			continue
		}
		ret = append(ret, t)
	}
	if all {
		e.probed = true
		e.available = slices.Clone(ret)
		e.cfg.Metrics.Tables(len(ret))
	}
	return ret
}

func (e *Engine) usedTables() []string {
	if e.probed {
		return slices.Clone(e.available)
	}
	return e.reg.Tables()
}

// Flush flushes rules, deletes user chains and zeroes counters in every used
// table. With individual set each directive runs alone and failures are
// logged and skipped. Otherwise the tables are replaced in one flushing
// restore, which needs no incremental mode.
func (e *Engine) Flush(ctx context.Context, individual bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rules []Rule
	for _, table := range e.usedTables() {
		for _, flag := range []string{"-F", "-X", "-Z"} {
			rules = append(rules, Rule{"-t", table, flag})
		}
	}
	if len(rules) == 0 {
		return nil
	}
	if individual {
		e.each(ctx, rules, "flush")
		return nil
	}
	if _, err := e.apply(ctx, rules, true); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// SetPolicy sets policy on every builtin chain of the tables in scope.
func (e *Engine) SetPolicy(ctx context.Context, policy string, scope Scope, individual bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tables := e.usedTables()
	if scope == ScopeAll {
		tables = e.reg.Tables()
	}
	var rules []Rule
	for _, table := range tables {
		for _, chain := range e.reg.BuiltinChains(table) {
			rules = append(rules, Rule{"-t", table, "-P", chain, policy})
		}
	}
	if len(rules) == 0 {
		return nil
	}
	if individual {
		e.each(ctx, rules, "set policy")
		return nil
	}
	return e.batch(ctx, rules, "set policy")
}

// each runs every rule on its own; failures are logged and skipped.
func (e *Engine) each(ctx context.Context, rules []Rule, what string) {
	for _, r := range rules {
		if _, err := e.run(ctx, r); err != nil {
			slog.Error("directive failed", "op", what, "rule", strings.Join(r, " "), "error", err)
		}
	}
}

// batch applies rules as one non-flushing restore, or not at all.
func (e *Engine) batch(ctx context.Context, rules []Rule, what string) error {
	if !e.incremental {
		return fmt.Errorf("%s: %w", what, ErrNotAtomic)
	}
	if _, err := e.apply(ctx, rules, false); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// Bootstrap installs the missing companion chains and jumps in every used
// table. Rules already present are left alone, so repeated calls are
// idempotent.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rules []Rule
	for _, table := range e.usedTables() {
		out, err := e.run(ctx, Rule{"-t", table, "-L"})
		if err != nil {
			return fmt.Errorf("list table %s: %w", table, err)
		}
		for _, r := range e.reg.MissingDefaultRules(table, ParseListing(out)) {
			rules = append(rules, append(Rule{"-t", table}, r...))
		}
	}
	if len(rules) == 0 {
		slog.Debug("bootstrap rules present")
		return nil
	}
	slog.Info("installing bootstrap rules", "rules", len(rules))
	return e.batch(ctx, rules, "bootstrap")
}
