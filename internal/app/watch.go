package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/buildgrid/internal/command"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/project"
	"github.com/vk/buildgrid/internal/watch"
)

// Watch runs cmd once over the invocation's scope, then keeps re-running its
// watch phases for the projects affected by filesystem changes until ctx is
// cancelled. Iteration failures are reported and watching continues; only
// setup errors and cancellation end the loop.
func (a *App) Watch(ctx context.Context, inv Invocation) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	cmd := a.commands.Get(inv.Command)
	if cmd == nil {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, inv.Command)
	}
	if cmd.Kind != command.KindPhased || len(cmd.WatchPhases) == 0 {
		return fmt.Errorf("%w: %q", ErrNotWatchable, cmd.Name)
	}
	scope, err := a.selectProjects(inv)
	if err != nil {
		return err
	}
	phaseArgs, commandArgs, err := renderParameterArgs(cmd, inv.ParameterValues)
	if err != nil {
		return err
	}

	if !cmd.SafeForSimultaneousProcesses {
		repoLock, err := a.acquireLock()
		if err != nil {
			return err
		}
		defer repoLock.Release()
	}

	// The initial pass runs the full command; iterations run only the
	// declared watch phases.
	if _, err := a.runOnce(ctx, cmd, scope, phaseArgs, commandArgs); err != nil {
		return err
	}
	iterCmd := watchCommand(cmd)

	roots := make([]string, 0, len(scope))
	inScope := make(map[string]*project.Project, len(scope))
	for _, proj := range scope {
		roots = append(roots, filepath.Join(a.cfg.RepoRoot, proj.Path))
		inScope[proj.Name] = proj
	}
	watcher, err := watch.New(roots, watch.DefaultDebounce)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Close()

	a.logger.Info("Watching for changes.", "command", cmd.Name, "projects", len(scope))

	return watcher.Run(ctx, func(changed []string) {
		affected := a.affectedProjects(changed, inScope)
		if len(affected) == 0 {
			return
		}
		if _, err := a.runOnce(ctx, iterCmd, affected, phaseArgs, commandArgs); err != nil {
			a.logger.Error("Watch iteration failed.", "error", err)
		}
	})
}

// watchCommand derives the iteration command: identical to cmd but running
// the literal watch phase subset.
func watchCommand(cmd *command.Command) *command.Command {
	derived := *cmd
	derived.Phases = cmd.WatchPhases
	return &derived
}

// affectedProjects maps changed paths onto their owning projects, then
// widens to the in-scope downstream dependents plus the upstream projects
// the iteration's phases may read from.
func (a *App) affectedProjects(changed []string, inScope map[string]*project.Project) []*project.Project {
	seen := make(map[string]*project.Project)
	for _, path := range changed {
		if proj := a.projectForPath(path); proj != nil {
			seen[proj.Name] = proj
		}
	}
	if len(seen) == 0 {
		return nil
	}
	origins := make([]*project.Project, 0, len(seen))
	for _, proj := range seen {
		origins = append(origins, proj)
	}

	var scoped []*project.Project
	for _, proj := range a.projects.DownstreamOf(origins) {
		if _, ok := inScope[proj.Name]; ok {
			scoped = append(scoped, proj)
		}
	}
	return a.projects.ExpandWithUpstream(scoped)
}

// projectForPath finds the project whose directory contains path, preferring
// the longest match so nested project layouts resolve correctly.
func (a *App) projectForPath(path string) *project.Project {
	var best *project.Project
	bestLen := -1
	for _, proj := range a.projects.All() {
		dir := filepath.Join(a.cfg.RepoRoot, proj.Path)
		if path != dir && !strings.HasPrefix(path, dir+string(filepath.Separator)) {
			continue
		}
		if len(dir) > bestLen {
			best, bestLen = proj, len(dir)
		}
	}
	return best
}
