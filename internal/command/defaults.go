package command

import "github.com/vk/buildgrid/internal/config"

func boolPtr(b bool) *bool { return &b }

// defaultBuildDecl is the built-in build command used when the repository
// declares none: an incremental bulk command.
func defaultBuildDecl() *config.CommandDecl {
	return &config.CommandDecl{
		Kind:        config.KindBulk,
		Name:        NameBuild,
		Summary:     "Build all selected projects.",
		Incremental: boolPtr(true),
	}
}

// defaultRebuildDecl is the built-in rebuild command: like build, but never
// incremental.
func defaultRebuildDecl() *config.CommandDecl {
	return &config.CommandDecl{
		Kind:        config.KindBulk,
		Name:        NameRebuild,
		Summary:     "Build all selected projects from scratch.",
		Incremental: boolPtr(false),
	}
}

// mergeDecl shallow-merges a repo declaration over a built-in default,
// field by field, with the repo winning wherever it set a value. Downstream
// tooling depends on this exact field-level behavior, so it is deliberately
// a flat merge with no recursion.
func mergeDecl(def, repo *config.CommandDecl) *config.CommandDecl {
	merged := *def
	merged.Name = repo.Name
	if repo.Kind != "" {
		merged.Kind = repo.Kind
	}
	if repo.Summary != "" {
		merged.Summary = repo.Summary
	}
	if repo.SafeForSimultaneousProcesses != nil {
		merged.SafeForSimultaneousProcesses = repo.SafeForSimultaneousProcesses
	}
	if repo.ShellCommand != "" {
		merged.ShellCommand = repo.ShellCommand
	}
	if repo.IgnoreDependencyOrder != nil {
		merged.IgnoreDependencyOrder = repo.IgnoreDependencyOrder
	}
	if repo.Incremental != nil {
		merged.Incremental = repo.Incremental
	}
	if repo.Phases != nil {
		merged.Phases = repo.Phases
	}
	if repo.WatchPhases != nil {
		merged.WatchPhases = repo.WatchPhases
	}
	return &merged
}
