// Package command runs the external tools the pipeline delegates to (image
// builder, scanner, test runner) as time-bounded subprocesses with captured
// output.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"time"
)

// Result holds the output of a completed command invocation. It is populated
// even when the command exits non-zero.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Combined returns stdout followed by stderr, for reporting.
func (r *Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Command describes one external invocation. The zero retry configuration
// runs the command exactly once; retries are opt-in and should only be used
// for idempotent operations.
type Command struct {
	program    string
	args       []string
	dir        string
	env        map[string]string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
}

func New(program string, args ...string) *Command {
	return &Command{program: program, args: args}
}

func (c *Command) WithDir(dir string) *Command {
	c.dir = dir
	return c
}

// WithEnv appends the given variables to the inherited environment. Used to
// pass credentials to a tool without putting them on the command line.
func (c *Command) WithEnv(env map[string]string) *Command {
	c.env = env
	return c
}

func (c *Command) WithTimeout(d time.Duration) *Command {
	c.timeout = d
	return c
}

func (c *Command) WithRetries(n int, delay time.Duration) *Command {
	c.retries = n
	c.retryDelay = delay
	return c
}

// Run executes the command, waiting out the configured retries on failure.
// The returned Result is always non-nil.
func (c *Command) Run(ctx context.Context) (*Result, error) {
	var result *Result
	var err error

	for attempt := 0; ; attempt++ {
		result, err = c.run(ctx)
		if err == nil || attempt >= c.retries {
			return result, err
		}

		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}
}

func (c *Command) run(ctx context.Context) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.program, c.args...)
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(), envList(c.env)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.ExitCode = -1
		return result, fmt.Errorf("%s timed out after %s: %w", c.program, c.timeout, context.DeadlineExceeded)
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, fmt.Errorf("%s exited with code %d", c.program, result.ExitCode)
	default:
		result.ExitCode = -1
		return result, fmt.Errorf("%s: %w", c.program, err)
	}
}

func envList(env map[string]string) []string {
	vars := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		vars = append(vars, k+"="+env[k])
	}
	return vars
}
