// Package lms drives the LM Studio command line tool. Commands are run
// directly, never through a shell, and model names are validated first.
package lms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"
	"time"

	"github.com/kmlawson/lmsp/errs"
	"github.com/kmlawson/lmsp/internal/logging"
	"github.com/kmlawson/lmsp/providers"
	"github.com/kmlawson/lmsp/sanitize"
)

const (
	// DefaultBinary is looked up on PATH.
	DefaultBinary = "lms"
	// LoadTimeout bounds 'lms load'.
	LoadTimeout = 120 * time.Second
	// QueryTimeout bounds 'lms ps' and 'lms ls'.
	QueryTimeout = 10 * time.Second

	maxOutputBytes = 1 << 20
)

// Runner runs a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command with os/exec. A failing command's standard
// error becomes part of the returned error.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := osexec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[:500]
		}
		return nil, &CommandError{Args: args, Stderr: msg, Err: err}
	}
	if stdout.Len() > maxOutputBytes {
		return nil, errs.Newf(errs.ErrorTypePayloadTooLarge, "%s output exceeds %d bytes", name, maxOutputBytes)
	}
	return stdout.Bytes(), nil
}

// CommandError is a failed lms invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("lms %s: %v: %s", strings.Join(e.Args, " "), e.Err, sanitize.Terminal(e.Stderr))
	}
	return fmt.Sprintf("lms %s: %v", strings.Join(e.Args, " "), e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// CLI wraps the lms tool.
type CLI struct {
	binary string
	run    Runner
	logger logging.Logger
}

// Option configures a CLI.
type Option func(*CLI)

// WithRunner replaces the command runner, e.g. in tests.
func WithRunner(run Runner) Option {
	return func(c *CLI) {
		c.run = run
	}
}

// WithBinary sets the lms executable.
func WithBinary(path string) Option {
	return func(c *CLI) {
		c.binary = path
	}
}

// New creates a CLI adapter.
func New(logger logging.Logger, opts ...Option) *CLI {
	if logger == nil {
		logger = logging.Nop()
	}
	c := &CLI{binary: DefaultBinary, run: ExecRunner, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CLI) exec(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.Debug("Running lms", "args", args)
	out, err := c.run(ctx, c.binary, args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errs.New(errs.ErrorTypeRequestTimeout,
				fmt.Sprintf("lms %s did not finish within %s", strings.Join(args, " "), timeout), err)
		}
		return nil, err
	}
	return out, nil
}

type psEntry struct {
	Identifier string `json:"identifier"`
	ModelKey   string `json:"modelKey"`
	Path       string `json:"path"`
	Type       string `json:"type"`
}

// LoadedModels lists the loaded models with 'lms ps --json', falling back
// to the plain 'lms ps' table on older versions.
func (c *CLI) LoadedModels(ctx context.Context) ([]providers.ModelDescriptor, error) {
	out, err := c.exec(ctx, QueryTimeout, "ps", "--json")
	if err == nil && len(bytes.TrimSpace(out)) > 0 {
		models, perr := parsePSJSON(out)
		if perr == nil {
			c.logger.Debug("lms ps", "models", len(models))
			return models, nil
		}
		c.logger.Debug("lms ps --json output not understood", "error", perr)
	} else if errors.Is(err, context.Canceled) {
		return nil, err
	} else if err != nil {
		c.logger.Debug("lms ps --json failed", "error", err)
	}

	out, err = c.exec(ctx, QueryTimeout, "ps")
	if err != nil {
		return nil, errs.New(errs.ErrorTypeServerUnavailable, "cannot list loaded models with lms", err)
	}
	return parsePSTable(out), nil
}

func parsePSJSON(out []byte) ([]providers.ModelDescriptor, error) {
	var entries []psEntry
	limits := sanitize.Limits{MaxBytes: maxOutputBytes, MaxDepth: sanitize.MaxJSONDepth}
	if err := sanitize.DecodeJSON(out, &entries, limits); err != nil {
		return nil, err
	}
	models := make([]providers.ModelDescriptor, 0, len(entries))
	for _, e := range entries {
		if e.Identifier == "" || e.Type == "embedding" || e.Type == "embeddings" {
			continue
		}
		models = append(models, providers.ModelDescriptor{
			ID:     e.Identifier,
			Name:   e.ModelKey,
			Type:   e.Type,
			Loaded: true,
		})
	}
	return models, nil
}

// parsePSTable reads the first column of every row below the header.
func parsePSTable(out []byte) []providers.ModelDescriptor {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return nil
	}
	var models []providers.ModelDescriptor
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 || sanitize.ValidateModelName(fields[0]) != nil {
			continue
		}
		models = append(models, providers.ModelDescriptor{ID: fields[0], Loaded: true})
	}
	return models
}

// Available lists the downloaded models with 'lms ls', one per line.
func (c *CLI) Available(ctx context.Context) ([]string, error) {
	out, err := c.exec(ctx, QueryTimeout, "ls")
	if err != nil {
		return nil, errs.New(errs.ErrorTypeUnknown, "cannot list downloaded models with lms", err)
	}
	var models []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(sanitize.Terminal(line))
		if line != "" {
			models = append(models, line)
		}
	}
	return models, nil
}

// Load loads name with 'lms load'. When lms reports the model unknown, the
// error lists the downloaded models.
func (c *CLI) Load(ctx context.Context, name string) error {
	if err := sanitize.ValidateModelName(name); err != nil {
		return err
	}
	started := time.Now()
	if _, err := c.exec(ctx, LoadTimeout, "load", name); err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && isNotFound(cmdErr.Stderr) {
			msg := fmt.Sprintf("model %q was not found", name)
			if available, lerr := c.Available(ctx); lerr == nil && len(available) > 0 {
				msg += "; downloaded models: " + strings.Join(available, ", ")
			}
			return errs.New(errs.ErrorTypeModelNotLoaded, msg, err)
		}
		return err
	}
	c.logger.Info("Model loaded", "model", name, "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

func isNotFound(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "not found") || strings.Contains(s, "does not exist")
}
