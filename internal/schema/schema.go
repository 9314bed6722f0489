// Package schema declares the HCL shapes of the orchestration configuration
// files. These structs carry hcl struct tags only; translation into the
// format-agnostic config model happens in the hcladapter package.
package schema

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// DependsOn represents the `depends_on` block within a phase.
type DependsOn struct {
	// Self names phases of the same project.
	Self []string `hcl:"self,optional"`
	// Upstream names phases of every upstream project.
	Upstream []string `hcl:"upstream,optional"`
}

// Phase represents a `phase` block. The label is the full phase name,
// including the "phase:" prefix.
type Phase struct {
	Name                string     `hcl:"name,label"`
	DependsOn           *DependsOn `hcl:"depends_on,block"`
	IgnoreMissingScript *bool      `hcl:"ignore_missing_script,optional"`
	AllowWarnings       *bool      `hcl:"allow_warnings,optional"`
	LogFilename         string     `hcl:"log_filename,optional"`
}

// Watch represents the `watch` block within a command. The phase list is
// taken literally, with no dependency expansion.
type Watch struct {
	Phases []string `hcl:"phases"`
}

// Command represents a `command` block.
type Command struct {
	Name                         string   `hcl:"name,label"`
	Kind                         string   `hcl:"kind"`
	Summary                      string   `hcl:"summary,optional"`
	SafeForSimultaneousProcesses *bool    `hcl:"safe_for_simultaneous_processes,optional"`
	ShellCommand                 string   `hcl:"shell_command,optional"`
	IgnoreDependencyOrder        *bool    `hcl:"ignore_dependency_order,optional"`
	Incremental                  *bool    `hcl:"incremental,optional"`
	Phases                       []string `hcl:"phases,optional"`
	Watch                        *Watch   `hcl:"watch,block"`
}

// Parameter represents a `parameter` block. The first label is the kind
// (flag, choice, string), the second the long flag name.
type Parameter struct {
	Kind         string     `hcl:"kind,label"`
	LongName     string     `hcl:"long_name,label"`
	Description  string     `hcl:"description,optional"`
	Alternatives []string   `hcl:"alternatives,optional"`
	Default      *cty.Value `hcl:"default,optional"`
	Commands     []string   `hcl:"commands,optional"`
	Phases       []string   `hcl:"phases,optional"`
}

// Project represents a `project` block.
type Project struct {
	Name      string            `hcl:"name,label"`
	Path      string            `hcl:"path"`
	DependsOn []string          `hcl:"depends_on,optional"`
	Scripts   map[string]string `hcl:"scripts,optional"`
	Outputs   []string          `hcl:"outputs,optional"`
}

// Root represents the top-level structure of any configuration file. Every
// block type may appear in any file; the loader merges them.
type Root struct {
	Phases     []*Phase     `hcl:"phase,block"`
	Commands   []*Command   `hcl:"command,block"`
	Parameters []*Parameter `hcl:"parameter,block"`
	Projects   []*Project   `hcl:"project,block"`
	Remain     hcl.Body     `hcl:",remain"`
}
