package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/buildgrid/internal/binder"
	"github.com/vk/buildgrid/internal/command"
	"github.com/vk/buildgrid/internal/config"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/param"
	"github.com/vk/buildgrid/internal/phase"
	"github.com/vk/buildgrid/internal/project"
)

// Sentinel errors for invocation-time failures.
var (
	ErrUnknownCommand    = errors.New("unknown command")
	ErrUnknownParameter  = errors.New("unknown parameter")
	ErrBadParameterValue = errors.New("bad parameter value")
	ErrUnknownScript     = errors.New("script for unknown phase")
	ErrNotWatchable      = errors.New("command has no watch phases")
)

// App wires configuration, the registries and the project graph into a
// ready-to-invoke orchestrator instance.
type App struct {
	cfg    *Config
	logger *slog.Logger

	phases     *phase.Registry
	commands   *command.Registry
	parameters []*param.Parameter
	projects   *project.Graph
}

// New loads configuration from cfg.ConfigPath through the given loader and
// constructs a fully validated App. Every configuration defect is reported
// here, before any operation runs.
func New(ctx context.Context, cfg Config, loader config.Loader, logOut io.Writer) (*App, error) {
	resolved := NewConfig(cfg)
	logger := newLogger(resolved, logOut)
	ctx = ctxlog.WithLogger(ctx, logger)

	model, err := loader.Load(ctx, resolved.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	phases, err := phase.NewRegistry(ctx, model.Phases)
	if err != nil {
		return nil, err
	}
	commands, err := command.NewRegistry(ctx, model.Commands, phases)
	if err != nil {
		return nil, err
	}
	parameters, err := binder.Bind(ctx, model.Parameters, commands, phases)
	if err != nil {
		return nil, err
	}
	projects, err := project.NewGraph(ctx, model.Projects)
	if err != nil {
		return nil, err
	}
	if err := validateScripts(projects, phases); err != nil {
		return nil, err
	}

	logger.Debug("Application constructed.",
		"phases", phases.Len(),
		"commands", len(commands.All()),
		"parameters", len(parameters),
		"projects", projects.Len())

	return &App{
		cfg:        resolved,
		logger:     logger,
		phases:     phases,
		commands:   commands,
		parameters: parameters,
		projects:   projects,
	}, nil
}

// validateScripts rejects project script keys that reference a phase no
// command can ever run. Misspelled keys would otherwise fail silently as
// missing scripts.
func validateScripts(projects *project.Graph, phases *phase.Registry) error {
	for _, proj := range projects.All() {
		for name := range proj.Scripts {
			if phases.Get(name) == nil {
				return fmt.Errorf("%w: project %q declares a script for %q, which is not a known phase",
					ErrUnknownScript, proj.Name, name)
			}
		}
	}
	return nil
}

// Commands returns every invocable command, for CLI registration.
func (a *App) Commands() []*command.Command {
	return a.commands.All()
}

// Logger returns the App's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
