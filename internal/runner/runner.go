// Package runner implements the process-spawning capability behind
// operations: resolving the project script for a phase, consulting the build
// cache, running the script through the shell and mapping its outcome onto
// an operation status. The scheduler consumes only the returned status.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/vk/buildgrid/internal/cache"
	"github.com/vk/buildgrid/internal/command"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/operation"
	"github.com/vk/buildgrid/internal/phase"
)

// DefaultWarningPattern recognizes warning output in a script's combined
// stdout/stderr.
var DefaultWarningPattern = regexp.MustCompile(`(?im)^\s*warning\b|\bWARN\b`)

// Shell runs operations as shell commands in project directories.
type Shell struct {
	// RepoRoot is the monorepo root; project paths are relative to it.
	RepoRoot string
	// Cache is the build cache. Nil disables skip and restore logic
	// entirely, including input hashing.
	Cache cache.Provider
	// PhaseArgs maps a phase name to the rendered custom parameter values
	// appended to that phase's scripts. Phased commands dispatch parameters
	// by phase, not by command.
	PhaseArgs map[string][]string
	// CommandArgs are the rendered parameter values of a global command.
	CommandArgs []string
	// WarningPattern overrides DefaultWarningPattern when set.
	WarningPattern *regexp.Regexp
}

// NewShell creates a shell runner. provider may be nil to disable caching.
func NewShell(repoRoot string, provider cache.Provider) *Shell {
	return &Shell{
		RepoRoot: repoRoot,
		Cache:    provider,
	}
}

// Run executes one operation and reports its terminal status. Errors never
// escape; they surface as StatusFailure with diagnostic output, so one bad
// operation cannot crash the scheduler.
func (s *Shell) Run(ctx context.Context, op *operation.Operation) operation.Result {
	if op.Command.Kind == command.KindGlobal {
		return s.runGlobal(ctx, op)
	}
	return s.runPhased(ctx, op)
}

func (s *Shell) runGlobal(ctx context.Context, op *operation.Operation) operation.Result {
	script := op.Command.ShellCommand
	output, err := s.execute(ctx, s.RepoRoot, script, s.CommandArgs)
	if err != nil {
		return operation.Result{Status: operation.StatusFailure, Output: output}
	}
	return operation.Result{Status: operation.StatusSuccess, Output: output}
}

func (s *Shell) runPhased(ctx context.Context, op *operation.Operation) operation.Result {
	logger := ctxlog.FromContext(ctx)
	proj, ph := op.Project, op.Phase

	script, ok := proj.Scripts[ph.Name]
	if !ok {
		if ph.IgnoreMissingScript {
			logger.Debug("No script registered for phase, nothing to do.")
			return operation.Result{Status: operation.StatusNoOp}
		}
		return operation.Result{
			Status: operation.StatusFailure,
			Output: fmt.Sprintf("project %q has no script for phase %q", proj.Name, ph.Name),
		}
	}

	args := s.PhaseArgs[ph.Name]
	projectDir := s.projectDir(proj.Path)

	// The cache key covers every input of this operation. It is computed
	// up front even for non-incremental commands, because a successful run
	// still commits its result for later incremental invocations.
	key := ""
	if s.Cache != nil {
		var err error
		key, err = cache.HashKey(ctx, projectDir, script, args, proj.Outputs)
		if err != nil {
			return operation.Result{
				Status: operation.StatusFailure,
				Output: fmt.Sprintf("computing cache key: %v", err),
			}
		}

		if op.Command.Incremental {
			outcome, err := s.Cache.Lookup(ctx, op.ID(), key)
			if err != nil {
				return operation.Result{
					Status: operation.StatusFailure,
					Output: fmt.Sprintf("cache lookup: %v", err),
				}
			}
			switch outcome {
			case cache.OutcomeUpToDate:
				logger.Debug("Inputs unchanged since last success, skipping.")
				return operation.Result{Status: operation.StatusSkipped}
			case cache.OutcomeRestorable:
				if err := s.Cache.Restore(ctx, key, projectDir, proj.Outputs); err != nil {
					return operation.Result{
						Status: operation.StatusFailure,
						Output: fmt.Sprintf("cache restore: %v", err),
					}
				}
				if err := s.Cache.Commit(ctx, op.ID(), key, projectDir, nil); err != nil {
					logger.Warn("Recording restored state failed.", "error", err)
				}
				logger.Debug("Outputs restored from cache.")
				return operation.Result{Status: operation.StatusFromCache}
			}
		}
	}

	output, err := s.execute(ctx, projectDir, script, args)
	s.writeLog(ctx, projectDir, ph, output)
	if err != nil {
		return operation.Result{Status: operation.StatusFailure, Output: output}
	}

	status := operation.StatusSuccess
	if s.warningPattern().MatchString(output) {
		if !ph.AllowWarnings {
			return operation.Result{
				Status: operation.StatusFailure,
				Output: output + "\n(warnings escalated to failure for this phase)",
			}
		}
		status = operation.StatusSuccessWithWarning
	}

	if s.Cache != nil {
		if err := s.Cache.Commit(ctx, op.ID(), key, projectDir, proj.Outputs); err != nil {
			logger.Warn("Cache commit failed.", "error", err)
		}
	}
	return operation.Result{Status: status, Output: output}
}

// execute runs a script line through the shell and returns its combined
// output. The context kills the process on cancellation.
func (s *Shell) execute(ctx context.Context, dir, script string, args []string) (string, error) {
	logger := ctxlog.FromContext(ctx)

	line := script
	if len(args) > 0 {
		line = script + " " + strings.Join(args, " ")
	}
	logger.Debug("Spawning script.", "dir", dir, "script", line)

	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	cmd.Dir = dir
	raw, err := cmd.CombinedOutput()
	output := string(raw)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return output, fmt.Errorf("script terminated: %w", ctxErr)
	}
	if err != nil {
		return fmt.Sprintf("%s\n%v", output, err), err
	}
	return output, nil
}

// writeLog persists the combined output of a phase run under the project's
// log directory, named by the phase's log file stem. A failure to write is
// logged and otherwise ignored: the output still travels with the result.
func (s *Shell) writeLog(ctx context.Context, projectDir string, ph *phase.Phase, output string) {
	dir := filepath.Join(projectDir, cache.LogDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		ctxlog.FromContext(ctx).Warn("Creating the log directory failed.", "error", err)
		return
	}
	path := filepath.Join(dir, ph.LogFilenameIdentifier+".log")
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		ctxlog.FromContext(ctx).Warn("Writing the operation log failed.", "error", err)
	}
}

func (s *Shell) warningPattern() *regexp.Regexp {
	if s.WarningPattern != nil {
		return s.WarningPattern
	}
	return DefaultWarningPattern
}

func (s *Shell) projectDir(rel string) string {
	if s.RepoRoot == "" {
		return rel
	}
	return filepath.Join(s.RepoRoot, rel)
}
