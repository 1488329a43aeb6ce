package modules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Output is the captured result of a finished command.
type Output struct {
	Stdout string
	Stderr string
	Code   int
}

// Commander runs external programs. A non-zero exit is reported in Output,
// not as an error; err is set only when the program could not run.
type Commander interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecCommander runs programs with os/exec.
type ExecCommander struct{}

// Run executes name and waits for it.
func (ExecCommander) Run(ctx context.Context, name string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		out.Code = exit.ExitCode()
		return out, nil
	}
	return out, err
}

// runOK runs a command and turns a non-zero exit into an error carrying its
// stderr.
func runOK(ctx context.Context, c Commander, name string, args ...string) (string, error) {
	out, err := c.Run(ctx, name, args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if out.Code != 0 {
		msg := strings.TrimSpace(out.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", out.Code)
		}
		return out.Stdout, fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), msg)
	}
	return out.Stdout, nil
}
