package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vk/buildgrid/internal/cache"
	"github.com/vk/buildgrid/internal/command"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/executor"
	"github.com/vk/buildgrid/internal/lock"
	"github.com/vk/buildgrid/internal/operation"
	"github.com/vk/buildgrid/internal/param"
	"github.com/vk/buildgrid/internal/project"
	"github.com/vk/buildgrid/internal/runner"
)

// Invocation is one request to run a command.
type Invocation struct {
	// Command is the command name.
	Command string
	// OnlyProjects restricts the scope to exactly these projects, without
	// pulling in their dependencies.
	OnlyProjects []string
	// ToProjects restricts the scope to these projects plus everything they
	// transitively depend on.
	ToProjects []string
	// ParameterValues maps a parameter long name to its raw CLI value.
	// Flags carry "true" or "false".
	ParameterValues map[string]string
}

// Invoke runs a command to completion and returns the per-operation result
// log. Configuration and scoping errors are returned before any operation
// starts; operation failures are reported through the result's verdict, not
// as an error.
func (a *App) Invoke(ctx context.Context, inv Invocation) (*executor.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	cmd := a.commands.Get(inv.Command)
	if cmd == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, inv.Command)
	}
	scope, err := a.selectProjects(inv)
	if err != nil {
		return nil, err
	}
	phaseArgs, commandArgs, err := renderParameterArgs(cmd, inv.ParameterValues)
	if err != nil {
		return nil, err
	}

	if !cmd.SafeForSimultaneousProcesses {
		repoLock, err := a.acquireLock()
		if err != nil {
			return nil, err
		}
		defer repoLock.Release()
	}

	return a.runOnce(ctx, cmd, scope, phaseArgs, commandArgs)
}

// runOnce executes one pass of cmd over the given projects. The caller is
// responsible for repo locking.
func (a *App) runOnce(ctx context.Context, cmd *command.Command, scope []*project.Project, phaseArgs map[string][]string, commandArgs []string) (*executor.Result, error) {
	sh := runner.NewShell(a.cfg.RepoRoot, a.cacheProvider(cmd))
	sh.PhaseArgs = phaseArgs
	sh.CommandArgs = commandArgs

	ops, err := operation.BuildGraph(ctx, cmd, scope, sh)
	if err != nil {
		return nil, err
	}

	a.logger.Info("Starting command.",
		"command", cmd.Name,
		"projects", len(scope),
		"operations", len(ops))

	res, err := executor.New(a.cfg.Parallelism).Run(ctx, ops)
	if err != nil {
		return nil, err
	}
	a.logSummary(cmd, res)
	return res, nil
}

// cacheProvider opens the disk cache for incremental commands; any other
// command, or a --no-cache invocation, runs uncached.
func (a *App) cacheProvider(cmd *command.Command) cache.Provider {
	if a.cfg.NoCache || !cmd.Incremental {
		return nil
	}
	disk, err := cache.NewDisk(a.cfg.CacheDir)
	if err != nil {
		a.logger.Warn("Build cache unavailable, continuing without it.", "error", err)
		return nil
	}
	return disk
}

func (a *App) acquireLock() (*lock.RepoLock, error) {
	dir := filepath.Join(a.cfg.RepoRoot, ".buildgrid")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}
	repoLock := lock.New(filepath.Join(dir, "lock"))
	if err := repoLock.TryAcquire(); err != nil {
		return nil, err
	}
	return repoLock, nil
}

// selectProjects resolves the invocation's scoping flags against the project
// graph. --only wins over --to when both are given; without either the scope
// is the whole repo.
func (a *App) selectProjects(inv Invocation) ([]*project.Project, error) {
	if len(inv.OnlyProjects) > 0 {
		return a.resolveProjects(inv.OnlyProjects)
	}
	if len(inv.ToProjects) > 0 {
		targets, err := a.resolveProjects(inv.ToProjects)
		if err != nil {
			return nil, err
		}
		return a.projects.ExpandWithUpstream(targets), nil
	}
	return a.projects.All(), nil
}

func (a *App) resolveProjects(names []string) ([]*project.Project, error) {
	out := make([]*project.Project, 0, len(names))
	for _, name := range names {
		proj := a.projects.Get(name)
		if proj == nil {
			return nil, fmt.Errorf("%w: %q", project.ErrUnknownProject, name)
		}
		out = append(out, proj)
	}
	return out, nil
}

// renderParameterArgs turns raw CLI values into the argument tokens appended
// to scripts. Phased commands dispatch each parameter to the phases it is
// associated with; global commands receive theirs directly.
func renderParameterArgs(cmd *command.Command, values map[string]string) (map[string][]string, []string, error) {
	known := make(map[string]*param.Parameter)
	for _, p := range cmd.AssociatedParameters.All() {
		known[p.LongName] = p
	}
	for name := range values {
		if _, ok := known[name]; !ok {
			return nil, nil, fmt.Errorf("%w: %q is not accepted by command %q", ErrUnknownParameter, name, cmd.Name)
		}
	}

	phaseArgs := make(map[string][]string)
	var commandArgs []string

	for _, p := range cmd.AssociatedParameters.All() {
		token, ok, err := renderToken(p, values)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		if cmd.Kind == command.KindGlobal {
			commandArgs = append(commandArgs, token)
			continue
		}
		for _, name := range dispatchPhases(cmd, p) {
			phaseArgs[name] = append(phaseArgs[name], token)
		}
	}
	return phaseArgs, commandArgs, nil
}

// renderToken returns the argument token for one parameter, or ok=false when
// the parameter contributes nothing to this invocation.
func renderToken(p *param.Parameter, values map[string]string) (string, bool, error) {
	value, set := values[p.LongName]
	switch p.Kind {
	case param.KindFlag:
		if set && value == "true" {
			return p.LongName, true, nil
		}
		return "", false, nil
	case param.KindChoice:
		if !set {
			if p.Default == "" {
				return "", false, nil
			}
			value = p.Default
		}
		if !p.AllowsValue(value) {
			return "", false, fmt.Errorf("%w: %q is not an alternative of %q", ErrBadParameterValue, value, p.LongName)
		}
		return p.LongName + "=" + value, true, nil
	case param.KindString:
		if set && value != "" {
			return p.LongName + "=" + value, true, nil
		}
		return "", false, nil
	}
	return "", false, fmt.Errorf("%w: %q", ErrBadParameterValue, p.Kind)
}

// dispatchPhases lists the phases of cmd that receive parameter p, sorted
// for deterministic argument order.
func dispatchPhases(cmd *command.Command, p *param.Parameter) []string {
	var names []string
	for name, ph := range cmd.Phases {
		for _, assoc := range ph.AssociatedParameters.All() {
			if assoc == p {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

func (a *App) logSummary(cmd *command.Command, res *executor.Result) {
	counts := res.CountByStatus()
	attrs := []any{"command", cmd.Name, "verdict", res.Verdict.String()}
	for status, n := range counts {
		attrs = append(attrs, status.String(), n)
	}
	if res.Succeeded() {
		a.logger.Info("Command finished.", attrs...)
		return
	}
	a.logger.Error("Command finished with failures.", attrs...)
	for _, failed := range res.Failures() {
		a.logger.Error("Operation failed.",
			"operation", failed.ID,
			"status", failed.Status.String(),
			"duration", failed.Duration,
			"output", failed.Output)
	}
}
