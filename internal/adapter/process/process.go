// Package process runs the backup program as a child process, feeding it a
// command script on stdin.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Ning0612/restoredrill/internal/adapter/script"
	"github.com/Ning0612/restoredrill/internal/domain"
	"github.com/Ning0612/restoredrill/internal/logger"
)

// outputTail bounds how much tool output is quoted in errors
const outputTail = 2048

// Options configures a Tool
type Options struct {
	// Path is the executable, resolved through PATH when not absolute
	Path string
	Args []string
	// Dir is the working directory; relative key files resolve against it
	Dir string
	// Timeout bounds each invocation; 0 disables the watchdog
	Timeout time.Duration
	// FirstVersion is the program's number for the first backup
	FirstVersion int
	Scripts      script.Settings
}

// Tool implements adapter.Tool by running an external program
type Tool struct {
	path   string
	opts   Options
	backup string
	log    logger.Logger
}

// New resolves the executable and pre-renders the backup script, which is
// identical for every version.
func New(opts Options) (*Tool, error) {
	if err := opts.Scripts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	path, err := exec.LookPath(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrToolNotFound, opts.Path, err)
	}

	backup, err := script.Backup(opts.Scripts)
	if err != nil {
		return nil, err
	}

	return &Tool{
		path:   path,
		opts:   opts,
		backup: backup,
		log:    logger.With("component", "tool", "tool", path),
	}, nil
}

// Name returns the resolved executable path
func (t *Tool) Name() string {
	return t.path
}

// GenerateKey runs the key generation script
func (t *Tool) GenerateKey(ctx context.Context) error {
	s, err := script.GenerateKey(t.opts.Scripts)
	if err != nil {
		return err
	}
	return t.run(ctx, "keygen", s)
}

// Backup runs the backup script
func (t *Tool) Backup(ctx context.Context) error {
	return t.run(ctx, "backup", t.backup)
}

// Restore runs the restore script for version
func (t *Tool) Restore(ctx context.Context, version int) error {
	s, err := script.Restore(t.opts.Scripts, t.opts.FirstVersion+version)
	if err != nil {
		return err
	}
	return t.run(ctx, fmt.Sprintf("restore %d", version), s)
}

func (t *Tool) run(parent context.Context, op, input string) error {
	ctx := parent
	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, t.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.path, t.opts.Args...)
	cmd.Dir = t.opts.Dir
	cmd.Stdin = strings.NewReader(input)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	// children that inherit the pipes must not keep Wait blocked
	cmd.WaitDelay = 5 * time.Second

	t.log.Debug("running tool", "op", op, "script", input)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		t.log.Debug("tool finished", "op", op, "elapsed", elapsed)
		return nil
	}

	// the caller's own deadline or cancellation is not a tool timeout
	if parentErr := parent.Err(); parentErr != nil {
		return fmt.Errorf("%s: %w", op, parentErr)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s exceeded %v", domain.ErrToolTimeout, op, t.opts.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %s exited with status %d: %s",
			domain.ErrToolFailed, op, exitErr.ExitCode(), tail(output.String()))
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrToolFailed, op, err)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > outputTail {
		s = "..." + s[len(s)-outputTail:]
	}
	return s
}
