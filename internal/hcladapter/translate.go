package hcladapter

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgrid/internal/config"
	"github.com/vk/buildgrid/internal/schema"
)

func translatePhase(p *schema.Phase) *config.PhaseDecl {
	decl := &config.PhaseDecl{
		Name:        p.Name,
		LogFilename: p.LogFilename,
	}
	if p.DependsOn != nil {
		decl.SelfDeps = p.DependsOn.Self
		decl.UpstreamDeps = p.DependsOn.Upstream
	}
	if p.IgnoreMissingScript != nil {
		decl.IgnoreMissingScript = *p.IgnoreMissingScript
	}
	if p.AllowWarnings != nil {
		decl.AllowWarnings = *p.AllowWarnings
	}
	return decl
}

func translateCommand(c *schema.Command) *config.CommandDecl {
	decl := &config.CommandDecl{
		Kind:                         c.Kind,
		Name:                         c.Name,
		Summary:                      c.Summary,
		SafeForSimultaneousProcesses: c.SafeForSimultaneousProcesses,
		ShellCommand:                 c.ShellCommand,
		IgnoreDependencyOrder:        c.IgnoreDependencyOrder,
		Incremental:                  c.Incremental,
		Phases:                       c.Phases,
	}
	if c.Watch != nil {
		decl.WatchPhases = c.Watch.Phases
	}
	return decl
}

// translateParameter converts a parameter block. The choice default arrives
// as a cty value because HCL does not know the parameter kind at decode time;
// only string defaults are meaningful here.
func translateParameter(p *schema.Parameter) (*config.ParameterDecl, error) {
	decl := &config.ParameterDecl{
		Kind:         p.Kind,
		LongName:     p.LongName,
		Description:  p.Description,
		Alternatives: p.Alternatives,
		Commands:     p.Commands,
		Phases:       p.Phases,
	}
	if p.Default != nil {
		if p.Default.Type() != cty.String {
			return nil, fmt.Errorf("parameter %q: default must be a string, got %s",
				p.LongName, p.Default.Type().FriendlyName())
		}
		decl.Default = p.Default.AsString()
	}
	return decl, nil
}

func translateProject(p *schema.Project) *config.ProjectDecl {
	return &config.ProjectDecl{
		Name:      p.Name,
		Path:      p.Path,
		DependsOn: p.DependsOn,
		Scripts:   p.Scripts,
		Outputs:   p.Outputs,
	}
}
