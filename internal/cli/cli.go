// Package cli exposes the configured commands as a cobra command tree and
// handles process-level concerns: flag parsing, signal handling and exit
// codes. One subcommand is registered per configured command, carrying that
// command's custom parameters as flags.
package cli

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"syscall"
)

// Process exit codes.
const (
	// CodeOperationFailure means at least one operation failed.
	CodeOperationFailure = 1
	// CodeUsage means the invocation itself was invalid: bad flags, bad
	// configuration or an unknown command.
	CodeUsage = 2
	// CodeInterrupted means the run was cancelled by a signal.
	CodeInterrupted = 130
)

// ExitError carries a specific process exit code alongside the message.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Run parses args, constructs the application and executes the selected
// command. A nil return means exit code 0; any other failure is reported as
// an *ExitError.
func Run(ctx context.Context, args []string, outW, errW io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, err := newRootCmd(ctx, args, errW)
	if err != nil {
		return &ExitError{Code: CodeUsage, Message: err.Error()}
	}
	root.SetArgs(args)
	root.SetOut(outW)
	root.SetErr(errW)

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr
		}
		return &ExitError{Code: CodeUsage, Message: err.Error()}
	}
	return nil
}
