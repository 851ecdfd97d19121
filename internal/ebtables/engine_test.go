//go:build linux
// +build linux

package ebtables

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gofirewalld/internal/fwerr"
	"gofirewalld/internal/runner"
)

func newTestEngine(t *testing.T, r runner.Runner, procs ProcessChecker) *Engine {
	t.Helper()
	if procs == nil {
		procs = &processStub{}
	}
	return New(DefaultRegistry(), Config{
		TempDir:   t.TempDir(),
		Runner:    r,
		Processes: procs,
	})
}

func isRestore(c runner.Cmd) bool { return c.Path == "ebtables-restore" }

func TestDocument(t *testing.T) {
	rules := []Rule{
		{"-A", "INPUT", "-j", "ACCEPT"},
		{"-t", "nat", "-A", "PREROUTING", "-j", "RETURN"},
		{"-A", "OUTPUT", "-j", "DROP"},
		{"-t", "filter", "-A", "FORWARD", "-j", "DROP"},
	}

	got := Document(rules)
	want := "*filter\n" +
		"-A INPUT -j ACCEPT\n" +
		"-A FORWARD -j DROP\n" +
		"COMMIT\n" +
		"*nat\n" +
		"-A PREROUTING -j RETURN\n" +
		"-A OUTPUT -j DROP\n" +
		"COMMIT\n"
	assert.Equal(t, want, got)
	assert.Equal(t, Rule{"-t", "nat", "-A", "PREROUTING", "-j", "RETURN"}, rules[1], "input must not be modified")
}

func TestDocumentEmpty(t *testing.T) {
	assert.Equal(t, "", Document(nil))
}

func TestApplyFailureRemovesTransactionFile(t *testing.T) {
	m := &runner.Mock{}
	var path, doc string
	m.On("Run", mock.MatchedBy(isRestore)).Run(func(args mock.Arguments) {
		path = args.Get(0).(runner.Cmd).StdinFile
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		doc = string(data)
	}).Return(runner.Result{Status: 1, Output: "Bad table name 'nat'\n"}, nil)

	e := newTestEngine(t, m, nil)
	_, err := e.Apply(context.Background(), []Rule{{"-t", "nat", "-A", "OUTPUT", "-j", "DROP"}}, false)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "ebtables-restore", toolErr.Command)
	assert.Equal(t, []string{"--noflush"}, toolErr.Args)
	assert.Equal(t, 1, toolErr.Status)
	assert.Contains(t, err.Error(), "Bad table name")
	assert.Equal(t, "*nat\n-A OUTPUT -j DROP\nCOMMIT\n", doc)
	assert.NoFileExists(t, path)
	m.AssertExpectations(t)
}

func TestApplySuccessRemovesTransactionFile(t *testing.T) {
	m := &runner.Mock{}
	var cmd runner.Cmd
	m.On("Run", mock.MatchedBy(isRestore)).Run(func(args mock.Arguments) {
		cmd = args.Get(0).(runner.Cmd)
	}).Return(runner.Result{Output: "ok"}, nil)

	e := newTestEngine(t, m, nil)
	out, err := e.Apply(context.Background(), []Rule{{"-A", "INPUT", "-j", "ACCEPT"}}, true)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Empty(t, cmd.Args, "flush requested, no --noflush")
	assert.NoFileExists(t, cmd.StdinFile)
}

func TestApplyRunnerError(t *testing.T) {
	m := &runner.Mock{}
	m.On("Run", mock.Anything).Return(runner.Result{Status: -1}, runner.ErrTimeout)

	e := newTestEngine(t, m, nil)
	_, err := e.Apply(context.Background(), []Rule{{"-A", "INPUT", "-j", "ACCEPT"}}, false)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.ErrorIs(t, err, runner.ErrTimeout)
}

func TestApplyRejectsUnknownTable(t *testing.T) {
	m := &runner.Mock{}
	e := newTestEngine(t, m, nil)

	_, err := e.Apply(context.Background(), []Rule{{"-t", "mangle", "-A", "INPUT"}}, false)
	assert.True(t, fwerr.Is(err, fwerr.InvalidTable))
	m.AssertNotCalled(t, "Run", mock.Anything)
}

func TestDetectIncrementalSupport(t *testing.T) {
	f := newFakeTool(DefaultRegistry())
	e := newTestEngine(t, f, nil)
	assert.True(t, e.DetectIncrementalSupport(context.Background()))
	assert.Equal(t, []string{""}, f.docs)

	f = newFakeTool(DefaultRegistry())
	f.noFlush = true
	e = newTestEngine(t, f, nil)
	assert.False(t, e.DetectIncrementalSupport(context.Background()))
	assert.False(t, e.Incremental())
}

func TestApplyWithoutIncrementalRunsRulesIndividually(t *testing.T) {
	f := newFakeTool(DefaultRegistry())
	f.noFlush = true
	e := newTestEngine(t, f, nil)
	require.False(t, e.DetectIncrementalSupport(context.Background()))
	docs := f.docCount()

	_, err := e.Apply(context.Background(), []Rule{
		{"-A", "INPUT", "-j", "ACCEPT"},
		{"-t", "nat", "-A", "OUTPUT", "-j", "DROP"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, docs, f.docCount(), "no restore document expected")

	in, _ := f.chain("filter", "INPUT")
	assert.Equal(t, []string{"-j ACCEPT"}, in.rules)
	out, _ := f.chain("nat", "OUTPUT")
	assert.Equal(t, []string{"-j DROP"}, out.rules)
}

func TestRunPrefixesConcurrent(t *testing.T) {
	m := &runner.Mock{}
	m.On("Run", runner.Cmd{Path: "ebtables", Args: []string{"--concurrent", "-A", "INPUT", "-j", "DROP"}}).
		Return(runner.Result{}, nil).Once()
	m.On("Run", runner.Cmd{Path: "ebtables", Args: []string{"--concurrent", "-D", "INPUT", "-j", "DROP"}}).
		Return(runner.Result{Status: 1, Output: "Sorry, rule does not exist."}, nil).Once()

	e := newTestEngine(t, m, nil)
	require.NoError(t, e.Append(context.Background(), Rule{"INPUT", "-j", "DROP"}))

	err := e.Delete(context.Background(), Rule{"INPUT", "-j", "DROP"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "'ebtables --concurrent -D INPUT -j DROP' failed: Sorry, rule does not exist.", err.Error())
	m.AssertExpectations(t)
}

func TestDanglingLockRemovedBeforeEveryInvocation(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "lock")
	procs := &processStub{}
	f := newFakeTool(DefaultRegistry())
	e := New(DefaultRegistry(), Config{LockFile: lock, TempDir: t.TempDir(), Runner: f, Processes: procs})

	require.NoError(t, os.WriteFile(lock, nil, 0o600))
	_, err := e.Run(context.Background(), Rule{"-L"})
	require.NoError(t, err)
	assert.NoFileExists(t, lock)
	require.Len(t, procs.asked, 1)
	assert.Equal(t, []string{"ebtables", "ebtables-restore"}, procs.asked[0])

	// the lock goes stale again between calls
	require.NoError(t, os.WriteFile(lock, nil, 0o600))
	_, err = e.Apply(context.Background(), []Rule{{"-A", "INPUT", "-j", "ACCEPT"}}, false)
	require.NoError(t, err)
	assert.NoFileExists(t, lock)
	assert.Len(t, procs.asked, 2)
}

func TestLockWithLiveOwnerIsKept(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "lock")
	require.NoError(t, os.WriteFile(lock, nil, 0o600))

	f := newFakeTool(DefaultRegistry())
	e := New(DefaultRegistry(), Config{LockFile: lock, TempDir: t.TempDir(), Runner: f, Processes: &processStub{alive: true}})

	_, err := e.Run(context.Background(), Rule{"-L"})
	require.NoError(t, err)
	assert.FileExists(t, lock)
	assert.Len(t, f.calls, 1, "invocation proceeds")
}

func TestLockCheckErrorKeepsLock(t *testing.T) {
	lock := filepath.Join(t.TempDir(), "lock")
	require.NoError(t, os.WriteFile(lock, nil, 0o600))

	f := newFakeTool(DefaultRegistry())
	e := New(DefaultRegistry(), Config{LockFile: lock, TempDir: t.TempDir(), Runner: f, Processes: &processStub{err: errors.New("no /proc")}})

	_, err := e.Run(context.Background(), Rule{"-L"})
	require.NoError(t, err)
	assert.FileExists(t, lock)
}

func TestNoLockNoProcessCheck(t *testing.T) {
	procs := &processStub{}
	f := newFakeTool(DefaultRegistry())
	e := New(DefaultRegistry(), Config{LockFile: filepath.Join(t.TempDir(), "lock"), TempDir: t.TempDir(), Runner: f, Processes: procs})

	_, err := e.Run(context.Background(), Rule{"-L"})
	require.NoError(t, err)
	assert.Empty(t, procs.asked)
}

func TestAvailableTables(t *testing.T) {
	f := newFakeTool(DefaultRegistry(), "broute")
	e := newTestEngine(t, f, nil)

	assert.Equal(t, []string{"nat", "filter"}, e.AvailableTables(context.Background()))
	assert.Equal(t, []string{"filter"}, e.AvailableTables(context.Background(), "filter"))
	assert.Empty(t, e.AvailableTables(context.Background(), "broute"))
	assert.Equal(t, []string{"nat", "filter"}, e.usedTables(), "single table probes do not change the used set")
}

func TestSetPolicyScopes(t *testing.T) {
	f := newFakeTool(DefaultRegistry(), "broute")
	e := newTestEngine(t, f, nil)
	e.AvailableTables(context.Background())

	require.NoError(t, e.SetPolicy(context.Background(), "DROP", ScopeUsed, false))
	require.Len(t, f.docs, 1)
	assert.Equal(t, "*nat\n-P PREROUTING DROP\n-P POSTROUTING DROP\n-P OUTPUT DROP\nCOMMIT\n"+
		"*filter\n-P INPUT DROP\n-P OUTPUT DROP\n-P FORWARD DROP\nCOMMIT\n", f.docs[0])

	// broute is not loaded: the atomic batch fails as a whole
	err := e.SetPolicy(context.Background(), "ACCEPT", ScopeAll, false)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	in, _ := f.chain("filter", "INPUT")
	assert.Equal(t, "DROP", in.policy, "failed transaction leaves state unchanged")

	// best effort skips broute and sets the rest
	calls := len(f.calls)
	require.NoError(t, e.SetPolicy(context.Background(), "ACCEPT", ScopeAll, true))
	assert.Len(t, f.calls, calls+7)
	in, _ = f.chain("filter", "INPUT")
	assert.Equal(t, "ACCEPT", in.policy)
}

func TestFlush(t *testing.T) {
	f := newFakeTool(DefaultRegistry())
	e := newTestEngine(t, f, nil)
	require.NoError(t, e.Bootstrap(context.Background()))

	require.NoError(t, e.Flush(context.Background(), false))
	_, ok := f.chain("filter", "INPUT_direct")
	assert.False(t, ok)
	in, _ := f.chain("filter", "INPUT")
	assert.Empty(t, in.rules)
	assert.Contains(t, f.docs[len(f.docs)-1], "*broute\n-F\n-X\n-Z\nCOMMIT\n")
}

func TestFlushIndividualContinuesAfterFailure(t *testing.T) {
	f := newFakeTool(DefaultRegistry())
	f.failOn = "-X"
	e := newTestEngine(t, f, nil)
	require.NoError(t, e.Bootstrap(context.Background()))
	calls := len(f.calls)

	require.NoError(t, e.Flush(context.Background(), true))
	assert.Len(t, f.calls, calls+9)
	in, _ := f.chain("filter", "INPUT")
	assert.Empty(t, in.rules, "-F ran")
	_, ok := f.chain("filter", "INPUT_direct")
	assert.True(t, ok, "-X failed and was skipped")
}

func TestBatchesWithoutIncrementalRestoreAreAllOrNothing(t *testing.T) {
	f := newFakeTool(DefaultRegistry())
	e := newTestEngine(t, f, nil)
	require.NoError(t, e.Bootstrap(context.Background()))
	f.noFlush = true
	require.False(t, e.DetectIncrementalSupport(context.Background()))

	f.failOn = "-X"
	calls, docs := len(f.calls), f.docCount()
	require.Error(t, e.Flush(context.Background(), false))
	assert.Len(t, f.calls, calls+1, "one restore, no single commands")
	assert.Equal(t, docs+1, f.docCount())
	for _, table := range []string{"broute", "nat", "filter"} {
		for _, c := range DefaultRegistry().BuiltinChains(table) {
			_, ok := f.chain(table, c+"_direct")
			assert.True(t, ok, "%s/%s_direct kept", table, c)
		}
	}

	calls = len(f.calls)
	err := e.SetPolicy(context.Background(), "DROP", ScopeAll, false)
	assert.ErrorIs(t, err, ErrNotAtomic)
	assert.Len(t, f.calls, calls)
	in, _ := f.chain("filter", "INPUT")
	assert.Equal(t, "ACCEPT", in.policy)

	f.failOn = ""
	require.NoError(t, e.Flush(context.Background(), false))
	last := f.calls[len(f.calls)-1]
	assert.Equal(t, "ebtables-restore", last.Path)
	assert.Empty(t, last.Args)
	_, ok := f.chain("filter", "INPUT_direct")
	require.False(t, ok)

	docs = f.docCount()
	assert.ErrorIs(t, e.Bootstrap(context.Background()), ErrNotAtomic)
	assert.Equal(t, docs, f.docCount())
	_, ok = f.chain("filter", "INPUT_direct")
	assert.False(t, ok)
}

func assertBootstrapped(t *testing.T, f *fakeTool, reg *Registry, tables ...string) {
	t.Helper()
	for _, table := range tables {
		for _, c := range reg.BuiltinChains(table) {
			bc, ok := f.chain(table, c)
			require.True(t, ok)
			require.NotEmpty(t, bc.rules, "%s/%s", table, c)
			assert.Equal(t, "-j "+c+"_direct", bc.rules[0], "%s/%s first rule", table, c)
			jumps := 0
			for _, r := range bc.rules {
				if r == "-j "+c+"_direct" {
					jumps++
				}
			}
			assert.Equal(t, 1, jumps, "%s/%s jumps", table, c)

			dc, ok := f.chain(table, c+"_direct")
			require.True(t, ok, "%s/%s_direct", table, c)
			assert.Equal(t, "RETURN", dc.policy)
		}
	}
}

func TestBootstrapIdempotent(t *testing.T) {
	reg := DefaultRegistry()
	f := newFakeTool(reg)
	e := newTestEngine(t, f, nil)

	require.NoError(t, e.Bootstrap(context.Background()))
	assertBootstrapped(t, f, reg, reg.Tables()...)
	docs := f.docCount()
	snapshot := f.state.clone()

	require.NoError(t, e.Bootstrap(context.Background()))
	assert.Equal(t, docs, f.docCount(), "nothing left to apply")
	assert.Equal(t, snapshot, f.state)
	assertBootstrapped(t, f, reg, reg.Tables()...)
}

func TestBootstrapRepairsPartialState(t *testing.T) {
	reg := DefaultRegistry()
	f := newFakeTool(reg)
	// user rule ahead of the jump, nat companion chain missing its policy
	f.state["filter"].chains["INPUT"].rules = []string{"-p ARP -j ACCEPT", "-j INPUT_direct"}
	f.state["filter"].chains["INPUT_direct"] = &fakeChain{policy: "RETURN"}
	f.state["filter"].order = append(f.state["filter"].order, "INPUT_direct")
	f.state["nat"].chains["OUTPUT_direct"] = &fakeChain{policy: "ACCEPT"}
	f.state["nat"].order = append(f.state["nat"].order, "OUTPUT_direct")

	e := newTestEngine(t, f, nil)
	require.NoError(t, e.Bootstrap(context.Background()))
	assertBootstrapped(t, f, reg, reg.Tables()...)

	in, _ := f.chain("filter", "INPUT")
	assert.Equal(t, []string{"-j INPUT_direct", "-p ARP -j ACCEPT"}, in.rules)
}

func TestBootstrapSkipsUnavailableTables(t *testing.T) {
	reg := DefaultRegistry()
	f := newFakeTool(reg, "broute")
	e := newTestEngine(t, f, nil)
	e.AvailableTables(context.Background())

	require.NoError(t, e.Bootstrap(context.Background()))
	assertBootstrapped(t, f, reg, "nat", "filter")
	assert.NotContains(t, f.docs[len(f.docs)-1], "*broute")
}
