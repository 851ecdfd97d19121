//go:build linux
// +build linux

package ebtables

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"gofirewalld/internal/runner"
)

type fakeChain struct {
	policy string
	rules  []string
}

type fakeTable struct {
	order  []string
	chains map[string]*fakeChain
}

type fakeState map[string]*fakeTable

func (s fakeState) clone() fakeState {
	c := make(fakeState, len(s))
	for name, t := range s {
		nt := &fakeTable{order: slices.Clone(t.order), chains: make(map[string]*fakeChain, len(t.chains))}
		for cn, ch := range t.chains {
			nt.chains[cn] = &fakeChain{policy: ch.policy, rules: slices.Clone(ch.rules)}
		}
		c[name] = nt
	}
	return c
}

// fakeTool simulates ebtables and ebtables-restore against in-memory tables.
type fakeTool struct {
	mu      sync.Mutex
	reg     *Registry
	state   fakeState
	docs    []string
	calls   []runner.Cmd
	noFlush bool // reject --noflush
	failOn  string
}

func newFakeTool(reg *Registry, missing ...string) *fakeTool {
	f := &fakeTool{reg: reg, state: make(fakeState)}
	for _, t := range reg.Tables() {
		if slices.Contains(missing, t) {
			continue
		}
		f.state[t] = f.emptyTable(t)
	}
	return f
}

func (f *fakeTool) emptyTable(name string) *fakeTable {
	t := &fakeTable{chains: make(map[string]*fakeChain)}
	for _, c := range f.reg.BuiltinChains(name) {
		t.order = append(t.order, c)
		t.chains[c] = &fakeChain{policy: "ACCEPT"}
	}
	return t
}

func (f *fakeTool) Run(_ context.Context, cmd runner.Cmd) (runner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)

	switch cmd.Path {
	case "ebtables":
		args := cmd.Args
		if len(args) > 0 && args[0] == "--concurrent" {
			args = args[1:]
		}
		table := defaultTable
		if i := slices.Index(args, "-t"); i >= 0 && i+1 < len(args) {
			table = args[i+1]
			args = slices.Delete(slices.Clone(args), i, i+2)
		}
		out, err := f.exec(f.state, table, args)
		if err != nil {
			return runner.Result{Status: 255, Output: err.Error()}, nil
		}
		return runner.Result{Output: out}, nil

	case "ebtables-restore":
		data, err := os.ReadFile(cmd.StdinFile)
		if err != nil {
			return runner.Result{}, err
		}
		f.docs = append(f.docs, string(data))
		noflush := slices.Contains(cmd.Args, "--noflush")
		if noflush && f.noFlush {
			return runner.Result{Status: 1, Output: "unrecognized option '--noflush'"}, nil
		}
		staged := f.state.clone()
		table := ""
		for n, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			switch {
			case line == "":
			case strings.HasPrefix(line, "*"):
				table = line[1:]
				if _, ok := staged[table]; !ok {
					return runner.Result{Status: 1, Output: fmt.Sprintf("line %d: table %s not found", n+1, table)}, nil
				}
				if !noflush {
					staged[table] = f.emptyTable(table)
				}
			case line == "COMMIT":
				table = ""
			default:
				if _, err := f.exec(staged, table, strings.Fields(line)); err != nil {
					return runner.Result{Status: 1, Output: fmt.Sprintf("line %d: %v", n+1, err)}, nil
				}
			}
		}
		f.state = staged
		return runner.Result{}, nil
	}
	return runner.Result{}, fmt.Errorf("unknown command %s", cmd.Path)
}

func (f *fakeTool) exec(state fakeState, table string, args []string) (string, error) {
	t, ok := state[table]
	if !ok {
		return "", fmt.Errorf("table '%s' does not exist", table)
	}
	if f.failOn != "" && strings.Join(args, " ") == f.failOn {
		return "", errors.New("injected failure")
	}
	if len(args) == 0 {
		return "", errors.New("no command")
	}
	chain := func(i int) (*fakeChain, error) {
		if len(args) <= i {
			return nil, errors.New("missing chain")
		}
		c, ok := t.chains[args[i]]
		if !ok {
			return nil, fmt.Errorf("chain '%s' doesn't exist", args[i])
		}
		return c, nil
	}

	switch args[0] {
	case "-L":
		var b strings.Builder
		fmt.Fprintf(&b, "Bridge table: %s\n\n", table)
		for _, name := range t.order {
			c := t.chains[name]
			fmt.Fprintf(&b, "Bridge chain: %s, entries: %d, policy: %s\n", name, len(c.rules), c.policy)
			for _, r := range c.rules {
				b.WriteString(r + " \n")
			}
			b.WriteString("\n")
		}
		return b.String(), nil
	case "-N":
		name := args[1]
		if _, exists := t.chains[name]; exists {
			return "", fmt.Errorf("chain %s already exists", name)
		}
		c := &fakeChain{policy: "ACCEPT"}
		if len(args) == 4 && args[2] == "-P" {
			c.policy = args[3]
		}
		t.chains[name] = c
		t.order = append(t.order, name)
	case "-I":
		c, err := chain(1)
		if err != nil {
			return "", err
		}
		pos, err := strconv.Atoi(args[2])
		if err != nil || pos < 1 || pos > len(c.rules)+1 {
			return "", fmt.Errorf("bad position %s", args[2])
		}
		c.rules = slices.Insert(c.rules, pos-1, strings.Join(args[3:], " "))
	case "-A":
		c, err := chain(1)
		if err != nil {
			return "", err
		}
		c.rules = append(c.rules, strings.Join(args[2:], " "))
	case "-D":
		c, err := chain(1)
		if err != nil {
			return "", err
		}
		i := slices.Index(c.rules, strings.Join(args[2:], " "))
		if i < 0 {
			return "", errors.New("rule does not exist")
		}
		c.rules = slices.Delete(c.rules, i, i+1)
	case "-P":
		c, err := chain(1)
		if err != nil {
			return "", err
		}
		c.policy = args[2]
	case "-F":
		for _, c := range t.chains {
			c.rules = nil
		}
	case "-X":
		builtin := f.reg.BuiltinChains(table)
		t.order = slices.DeleteFunc(t.order, func(n string) bool {
			if slices.Contains(builtin, n) {
				return false
			}
			delete(t.chains, n)
			return true
		})
	case "-Z":
	default:
		return "", fmt.Errorf("unknown option %s", args[0])
	}
	return "", nil
}

func (f *fakeTool) chain(table, name string) (*fakeChain, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.state[table]
	if !ok {
		return nil, false
	}
	c, ok := t.chains[name]
	return c, ok
}

func (f *fakeTool) docCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs)
}

// processStub answers lock owner checks.
type processStub struct {
	alive bool
	err   error
	asked [][]string
}

func (p *processStub) Running(names ...string) (bool, error) {
	p.asked = append(p.asked, names)
	return p.alive, p.err
}
