// Package main provides the lmsp command: send a prompt, typed or piped, to
// a model loaded in LM Studio and print the reply.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/kmlawson/lmsp/config"
	"github.com/kmlawson/lmsp/errs"
	"github.com/kmlawson/lmsp/internal/logging"
	"github.com/kmlawson/lmsp/lms"
	"github.com/kmlawson/lmsp/render"
	"github.com/kmlawson/lmsp/sanitize"
)

// exitInterrupted is returned when SIGINT or SIGTERM aborts the request.
const exitInterrupted = 130

func main() {
	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	a.stdinIsTTY = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	a.stdoutIsTTY = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }
	a.stdoutWidth = func() int {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || width <= 0 {
			return render.DefaultWidth
		}
		return width
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := a.execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// app holds the process environment the command runs in.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	stdinIsTTY  func() bool
	stdoutIsTTY func() bool
	stdoutWidth func() int

	configPath string
	// baseURL overrides http://localhost:<port>.
	baseURL string
	lms     lmsTool
	logger  *logging.DefaultLogger
	flags   cmdFlags
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	logger := logging.NewLogger(logging.LogLevelWarn, errOut)
	return &app{
		in:          in,
		out:         out,
		errOut:      errOut,
		stdinIsTTY:  func() bool { return false },
		stdoutIsTTY: func() bool { return false },
		stdoutWidth: func() int { return render.DefaultWidth },
		configPath:  config.DefaultPath(),
		lms:         lms.New(logger),
		logger:      logger,
	}
}

// execute runs the command line and returns the process exit code.
func (a *app) execute(ctx context.Context, args []string) int {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetIn(a.in)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return errs.ExitOK
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(a.errOut, "Interrupted.")
		return exitInterrupted
	}
	var quiet *quietError
	if !errors.As(err, &quiet) {
		a.printError(err)
	}
	return errs.ExitCode(err)
}

// printError writes err and its guidance to standard error. Messages may
// carry server text, so they are sanitized.
func (a *app) printError(err error) {
	fmt.Fprintln(a.errOut, "Error: "+sanitize.Terminal(err.Error()))
	var e *errs.Error
	if errors.As(err, &e) {
		if hint := e.Guidance(); hint != "" {
			fmt.Fprintln(a.errOut, "Hint: "+hint)
		}
	}
}

// quietError carries an exit code for a failure that was already reported.
type quietError struct {
	err error
}

func (e *quietError) Error() string { return e.err.Error() }
func (e *quietError) Unwrap() error { return e.err }
