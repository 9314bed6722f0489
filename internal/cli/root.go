package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vk/buildgrid/internal/app"
	"github.com/vk/buildgrid/internal/command"
	"github.com/vk/buildgrid/internal/executor"
	"github.com/vk/buildgrid/internal/hcladapter"
	"github.com/vk/buildgrid/internal/param"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	repoRoot    string
	configPath  string
	logLevel    string
	logFormat   string
	parallelism int
	cacheDir    string
	noCache     bool
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&g.repoRoot, "repo-root", ".", "Monorepo root directory.")
	fs.StringVar(&g.configPath, "config", "grid", "Path to the .hcl configuration file or directory, relative to the repo root.")
	fs.StringVar(&g.logLevel, "log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.StringVar(&g.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	fs.IntVar(&g.parallelism, "parallelism", 0, "Maximum concurrent operations. 0 uses the host core count.")
	fs.StringVar(&g.cacheDir, "cache-dir", "", "Build cache directory. Defaults to .buildgrid/cache under the repo root.")
	fs.BoolVar(&g.noCache, "no-cache", false, "Disable the build cache for this invocation.")
}

// newRootCmd pre-parses the global flags, constructs the application from
// the configuration they point at and registers one subcommand per
// configured command. Cobra sees a fully static command tree.
func newRootCmd(ctx context.Context, args []string, logOut io.Writer) (*cobra.Command, error) {
	flags := &globalFlags{}
	pre := pflag.NewFlagSet("buildgrid", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	flags.register(pre)
	// Unknown flags belong to the subcommands and are validated by cobra.
	_ = pre.Parse(args)

	a, err := app.New(ctx, app.Config{
		RepoRoot:    flags.repoRoot,
		ConfigPath:  flags.configPath,
		LogLevel:    strings.ToLower(flags.logLevel),
		LogFormat:   strings.ToLower(flags.logFormat),
		Parallelism: flags.parallelism,
		CacheDir:    flags.cacheDir,
		NoCache:     flags.noCache,
	}, hcladapter.NewLoader(), logOut)
	if err != nil {
		return nil, err
	}

	if err := validateParameterFlags(a.Commands()); err != nil {
		return nil, err
	}

	root := &cobra.Command{
		Use:           "buildgrid",
		Short:         "buildgrid - a phase-aware monorepo build orchestrator.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	flags.register(root.PersistentFlags())

	for _, c := range a.Commands() {
		root.AddCommand(newCommandCmd(a, c))
	}
	return root, nil
}

// newCommandCmd builds the cobra subcommand for one configured command,
// exposing its custom parameters as flags.
func newCommandCmd(a *app.App, c *command.Command) *cobra.Command {
	var (
		toProjects   []string
		onlyProjects []string
		watchMode    bool
	)

	cmd := &cobra.Command{
		Use:   c.Name,
		Short: c.Summary,
		Args:  cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			inv := app.Invocation{
				Command:         c.Name,
				OnlyProjects:    onlyProjects,
				ToProjects:      toProjects,
				ParameterValues: collectParameterValues(c, cobraCmd.Flags()),
			}
			if watchMode {
				return mapWatchErr(cobraCmd.Context(), a.Watch(cobraCmd.Context(), inv))
			}
			res, err := a.Invoke(cobraCmd.Context(), inv)
			if err != nil {
				return &ExitError{Code: CodeUsage, Message: err.Error()}
			}
			return mapVerdict(res)
		},
	}

	if c.Kind == command.KindPhased {
		cmd.Flags().StringSliceVar(&toProjects, "to", nil, "Limit the scope to these projects and their dependencies.")
		cmd.Flags().StringSliceVar(&onlyProjects, "only", nil, "Limit the scope to exactly these projects.")
	}
	if len(c.WatchPhases) > 0 {
		cmd.Flags().BoolVar(&watchMode, "watch", false, "Re-run the command's watch phases on file changes.")
	}
	for _, p := range c.AssociatedParameters.All() {
		registerParameterFlag(cmd.Flags(), p)
	}
	return cmd
}

// reservedFlagNames are the flag names the command tree claims for itself.
// Registering a custom parameter under one of them would make pflag panic,
// so they are rejected up front with a configuration error.
var reservedFlagNames = map[string]struct{}{
	"help":        {},
	"to":          {},
	"only":        {},
	"watch":       {},
	"repo-root":   {},
	"config":      {},
	"log-level":   {},
	"log-format":  {},
	"parallelism": {},
	"cache-dir":   {},
	"no-cache":    {},
}

func validateParameterFlags(commands []*command.Command) error {
	for _, c := range commands {
		for _, p := range c.AssociatedParameters.All() {
			name := flagName(p)
			if _, taken := reservedFlagNames[name]; taken {
				return fmt.Errorf("parameter %q on command %q collides with the built-in --%s flag, choose another long name",
					p.LongName, c.Name, name)
			}
		}
	}
	return nil
}

func registerParameterFlag(fs *pflag.FlagSet, p *param.Parameter) {
	name := flagName(p)
	switch p.Kind {
	case param.KindFlag:
		fs.Bool(name, false, p.Description)
	case param.KindChoice:
		usage := p.Description
		if len(p.Alternatives) > 0 {
			usage = fmt.Sprintf("%s One of: %s.", usage, strings.Join(p.Alternatives, ", "))
		}
		fs.String(name, p.Default, strings.TrimSpace(usage))
	case param.KindString:
		fs.String(name, "", p.Description)
	}
}

// collectParameterValues gathers the raw values of the flags the user
// actually set. Unset parameters stay absent so defaulting happens in one
// place, at invocation time.
func collectParameterValues(c *command.Command, fs *pflag.FlagSet) map[string]string {
	values := make(map[string]string)
	for _, p := range c.AssociatedParameters.All() {
		flag := fs.Lookup(flagName(p))
		if flag == nil || !flag.Changed {
			continue
		}
		if p.Kind == param.KindFlag {
			set, _ := fs.GetBool(flag.Name)
			values[p.LongName] = strconv.FormatBool(set)
			continue
		}
		value, _ := fs.GetString(flag.Name)
		values[p.LongName] = value
	}
	return values
}

// flagName strips the leading dashes of a parameter's long name, which is
// declared CLI-style ("--production") in configuration.
func flagName(p *param.Parameter) string {
	return strings.TrimLeft(p.LongName, "-")
}

func mapVerdict(res *executor.Result) error {
	switch res.Verdict {
	case executor.VerdictSuccess:
		return nil
	case executor.VerdictCancelled:
		return &ExitError{Code: CodeInterrupted, Message: "run cancelled"}
	default:
		return &ExitError{Code: CodeOperationFailure, Message: "one or more operations failed"}
	}
}

func mapWatchErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		// A signal is the normal way a watch session ends.
		return &ExitError{Code: CodeInterrupted, Message: "watch cancelled"}
	}
	if err == nil {
		return nil
	}
	return &ExitError{Code: CodeUsage, Message: err.Error()}
}
