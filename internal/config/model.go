package config

// Model is the unified, format-agnostic representation of the entire
// orchestration configuration: phases, commands, custom parameters and the
// project graph.
type Model struct {
	Phases     []*PhaseDecl
	Commands   []*CommandDecl
	Parameters []*ParameterDecl
	Projects   []*ProjectDecl
}

// PhaseDecl is the raw declaration of a phase block.
type PhaseDecl struct {
	// Name is the full phase name including the "phase:" prefix.
	Name string
	// SelfDeps names phases of the same project that must complete first.
	SelfDeps []string
	// UpstreamDeps names phases that must complete in every upstream project.
	UpstreamDeps []string
	// IgnoreMissingScript turns a missing project script into a no-op
	// instead of a failure.
	IgnoreMissingScript bool
	// AllowWarnings downgrades recognized warning output from failure to
	// success-with-warning.
	AllowWarnings bool
	// LogFilename overrides the identifier used for per-phase log files.
	// Derived from Name when empty.
	LogFilename string
}

// Command kinds as they appear in configuration files.
const (
	KindGlobal = "global"
	KindBulk   = "bulk"
	KindPhased = "phased"
)

// CommandDecl is the raw declaration of a command block. Optional boolean
// fields stay pointers so the registry's shallow merge against the built-in
// build/rebuild defaults can distinguish "unset" from "explicitly false".
type CommandDecl struct {
	Kind    string
	Name    string
	Summary string
	// SafeForSimultaneousProcesses marks a command as runnable while another
	// orchestrator process holds the repo lock.
	SafeForSimultaneousProcesses *bool

	// ShellCommand is the single command line of a global command.
	ShellCommand string

	// IgnoreDependencyOrder and Incremental apply to bulk commands only.
	IgnoreDependencyOrder *bool
	Incremental           *bool

	// Phases lists the phase names of a phased command.
	Phases []string
	// WatchPhases is the literal phase subset re-run in watch mode.
	WatchPhases []string
}

// Parameter kinds as they appear in configuration files.
const (
	ParamFlag   = "flag"
	ParamChoice = "choice"
	ParamString = "string"
)

// ParameterDecl is the raw declaration of a parameter block.
type ParameterDecl struct {
	Kind        string
	LongName    string
	Description string
	// Alternatives and Default apply to choice parameters only.
	Alternatives []string
	Default      string
	// Commands and Phases name the commands and phases this parameter is
	// associated with.
	Commands []string
	Phases   []string
}

// ProjectDecl is the raw declaration of a project block.
type ProjectDecl struct {
	Name string
	// Path is the project directory, relative to the repo root.
	Path string
	// DependsOn names the project's direct upstream projects.
	DependsOn []string
	// Scripts maps a phase name to the shell command that implements it for
	// this project.
	Scripts map[string]string
	// Outputs lists the directories (relative to Path) that phases write,
	// for build-cache archiving and restore.
	Outputs []string
}
