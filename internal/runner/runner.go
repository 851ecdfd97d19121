// Package runner invokes external executables on behalf of the rule engine.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when a command does not finish before its deadline.
var ErrTimeout = errors.New("command timed out")

// Cmd describes one invocation. StdinFile, when set, is opened and piped to
// the process.
type Cmd struct {
	Path      string
	Args      []string
	StdinFile string
}

func (c Cmd) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Result carries the exit status and the combined stdout/stderr output.
type Result struct {
	Status int
	Output string
}

type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// Exec runs commands with os/exec. A non-zero exit is reported through
// Result.Status, not as an error; errors mean the command could not run to
// completion.
type Exec struct {
	Timeout time.Duration
}

func (e Exec) Run(ctx context.Context, c Cmd) (Result, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = append(os.Environ(), "LANG=C")
	if c.StdinFile != "" {
		in, err := os.Open(c.StdinFile)
		if err != nil {
			return Result{}, fmt.Errorf("open stdin %s: %w", c.StdinFile, err)
		}
		defer in.Close()
		cmd.Stdin = in
	}

	slog.Debug("exec", "cmd", c.String(), "stdin", c.StdinFile)
	out, err := cmd.CombinedOutput()
	res := Result{Output: string(out)}
	if ctx.Err() == context.DeadlineExceeded {
		res.Status = -1
		return res, fmt.Errorf("%s: %w after %s", c.Path, ErrTimeout, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Status = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("run %s: %w", c.Path, err)
	}
	return res, nil
}
