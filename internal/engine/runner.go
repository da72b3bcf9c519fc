package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/DHI-GRAS/tidepods/internal/log"
	"github.com/alessio/shellescape"
	shellwords "github.com/mattn/go-shellwords"
	"go.uber.org/zap"
)

// A Runner executes the engine on a request file and returns the path of the
// series it produced.
type Runner interface {
	Run(ctx context.Context, request string) (string, error)
}

// Process runs the engine as a child process taking the request path as its
// sole argument.
type Process struct {
	// Command is prepended to the invocation, e.g. ["wine"].
	Command    []string
	Executable string
	// Timeout bounds a single run. Zero means no timeout.
	Timeout time.Duration
}

// NewProcess parses command with shell quoting rules.
func NewProcess(executable, command string, timeout time.Duration) (*Process, error) {
	if executable == "" {
		return nil, &Error{Kind: ErrEngineNotFound, Err: errors.New("empty executable")}
	}
	words, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("invalid engine command %q: %w", command, err)
	}
	return &Process{Command: words, Executable: executable, Timeout: timeout}, nil
}

// Run succeeds only when the process exits with status zero and the expected
// output file exists afterwards.
func (p *Process) Run(ctx context.Context, request string) (string, error) {
	out := OutputPath(request)
	if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("remove stale output %s: %w", out, err)
	}
	args := make([]string, 0, len(p.Command)+2)
	args = append(args, p.Command...)
	args = append(args, p.Executable, request)

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = filepath.Dir(request)
	cmd.WaitDelay = time.Second
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	logger := log.Logger(ctx)
	logger.Info("run tide engine", zap.String("command", shellescape.QuoteCommand(args)))
	st := time.Now()
	err := cmd.Run()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return "", &Error{Kind: ErrEngineNotFound, Path: args[0], Err: err}
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", p.Timeout, err)
		} else if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Kind: ErrNoOutput, Path: p.Executable, Err: withOutput(err, output.String())}
	}
	logger.Debug("tide engine done", zap.Duration("took", time.Since(st)))
	if _, err := os.Stat(out); err != nil {
		return "", &Error{Kind: ErrNoOutput, Path: out, Err: withOutput(err, output.String())}
	}
	return out, nil
}

const maxOutputTail = 512

func withOutput(err error, output string) error {
	output = strings.TrimSpace(output)
	if output == "" {
		return err
	}
	if len(output) > maxOutputTail {
		output = "..." + output[len(output)-maxOutputTail:]
	}
	return fmt.Errorf("%w, output: %s", err, output)
}
