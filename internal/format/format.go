// Package format runs an external code formatter over generated code.
package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultLineLength keeps generated models readable in the web UI.
	DefaultLineLength = 76
	defaultTimeout    = 10 * time.Second
	maxStderrBytes    = 2048
)

// ErrNoCommand indicates the formatter has no executable configured.
var ErrNoCommand = errors.New("formatter command is empty")

// DefaultCommand is the ruff invocation used when none is configured.
func DefaultCommand() []string {
	return []string{"ruff", "format"}
}

// Error describes a failed formatter run.
type Error struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("format with %s", e.Command)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(": exit code %d", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Ruff formats Python source through `ruff format`, reading the candidate
// from stdin and taking stdout as the result.
type Ruff struct {
	Command    []string
	LineLength int
	Timeout    time.Duration
}

// NewRuff constructs a ruff formatter with defaults for unset fields.
func NewRuff(command []string, lineLength int, timeout time.Duration) Ruff {
	if len(command) == 0 {
		command = DefaultCommand()
	}
	if lineLength <= 0 {
		lineLength = DefaultLineLength
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return Ruff{
		Command:    append([]string(nil), command...),
		LineLength: lineLength,
		Timeout:    timeout,
	}
}

// Format returns the formatted code or an error; it never returns partial output.
func (r Ruff) Format(ctx context.Context, code string) (string, error) {
	if len(r.Command) == 0 || strings.TrimSpace(r.Command[0]) == "" {
		return "", ErrNoCommand
	}

	runCtx := ctx
	cancel := func() {}
	if r.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
	}
	defer cancel()

	args := append([]string(nil), r.Command[1:]...)
	args = append(args, "--line-length", strconv.Itoa(r.LineLength), "-")
	cmd := exec.CommandContext(runCtx, r.Command[0], args...)
	cmd.Stdin = strings.NewReader(code)
	cmd.WaitDelay = time.Second

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", &Error{
			Command: r.Command[0],
			Err:     fmt.Errorf("timed out after %s: %w", r.Timeout, context.DeadlineExceeded),
		}
	}
	if runErr != nil {
		fail := &Error{
			Command: r.Command[0],
			Stderr:  tail(strings.TrimSpace(stderr.String()), maxStderrBytes),
			Err:     runErr,
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			fail.ExitCode = exitErr.ExitCode()
		}
		return "", fail
	}
	return stdout.String(), nil
}

// Noop leaves code untouched; used when formatting is disabled.
type Noop struct{}

// Format returns code unchanged.
func (Noop) Format(_ context.Context, code string) (string, error) {
	return code, nil
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
