package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgrid/internal/config"
	"github.com/vk/buildgrid/internal/phase"
)

func newPhases(t *testing.T, decls ...*config.PhaseDecl) *phase.Registry {
	t.Helper()
	r, err := phase.NewRegistry(context.Background(), decls)
	require.NoError(t, err)
	return r
}

func phaseDecl(name string, self, upstream []string) *config.PhaseDecl {
	return &config.PhaseDecl{Name: name, SelfDeps: self, UpstreamDeps: upstream}
}

func TestBuiltinDefaults(t *testing.T) {
	ctx := context.Background()

	t.Run("build and rebuild exist with no declarations", func(t *testing.T) {
		phases := newPhases(t)
		r, err := NewRegistry(ctx, nil, phases)
		require.NoError(t, err)

		build := r.Get(NameBuild)
		require.NotNil(t, build)
		assert.Equal(t, KindPhased, build.Kind)
		assert.True(t, build.Incremental)
		assert.True(t, build.IsTranslatedBulk())

		rebuild := r.Get(NameRebuild)
		require.NotNil(t, rebuild)
		assert.False(t, rebuild.Incremental)
	})

	t.Run("synthesized rebuild shares build state by identity", func(t *testing.T) {
		phases := newPhases(t)
		r, err := NewRegistry(ctx, nil, phases)
		require.NoError(t, err)

		build := r.Get(NameBuild)
		rebuild := r.Get(NameRebuild)
		assert.Same(t, build.SyntheticPhase, rebuild.SyntheticPhase)
		assert.Same(t, build.AssociatedParameters, rebuild.AssociatedParameters)
		assert.Equal(t, build.PhaseNames(), rebuild.PhaseNames())
	})

	t.Run("repo build declaration merges over the default", func(t *testing.T) {
		phases := newPhases(t, phaseDecl("phase:build", nil, []string{"phase:build"}))
		r, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindPhased, Name: NameBuild, Phases: []string{"phase:build"}},
		}, phases)
		require.NoError(t, err)

		build := r.Get(NameBuild)
		assert.Equal(t, KindPhased, build.Kind)
		assert.False(t, build.IsTranslatedBulk())
		// Incremental comes from the untouched default.
		assert.True(t, build.Incremental)
	})

	t.Run("declared rebuild suppresses synthesis", func(t *testing.T) {
		phases := newPhases(t, phaseDecl("phase:compile", nil, nil))
		r, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindPhased, Name: NameRebuild, Summary: "custom", Phases: []string{"phase:compile"}},
		}, phases)
		require.NoError(t, err)

		rebuild := r.Get(NameRebuild)
		assert.Equal(t, "custom", rebuild.Summary)
		assert.False(t, rebuild.IsTranslatedBulk())
		// build is still defaulted in alongside it.
		assert.NotNil(t, r.Get(NameBuild))
		assert.NotSame(t, r.Get(NameBuild).AssociatedParameters, rebuild.AssociatedParameters)
	})
}

func TestReservedNameInvariants(t *testing.T) {
	ctx := context.Background()

	t.Run("build may not be global", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindGlobal, Name: NameBuild, ShellCommand: "make"},
		}, newPhases(t))
		require.ErrorIs(t, err, ErrReservedKind)
		assert.ErrorContains(t, err, `"global"`)
		assert.ErrorContains(t, err, `"bulk"`)
		assert.ErrorContains(t, err, `"phased"`)
	})

	t.Run("rebuild may not be safe for simultaneous processes", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindBulk, Name: NameRebuild, SafeForSimultaneousProcesses: boolPtr(true)},
		}, newPhases(t))
		require.ErrorIs(t, err, ErrReservedUnsafe)
		assert.ErrorContains(t, err, "rebuild")
	})

	t.Run("explicit false safety flag is accepted", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindBulk, Name: NameBuild, SafeForSimultaneousProcesses: boolPtr(false)},
		}, newPhases(t))
		assert.NoError(t, err)
	})
}

func TestValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid name", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindBulk, Name: "Deploy"},
		}, newPhases(t))
		assert.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: "batch", Name: "deploy"},
		}, newPhases(t))
		assert.ErrorIs(t, err, ErrUnknownKind)
	})

	t.Run("duplicate command", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindBulk, Name: "deploy"},
			{Kind: config.KindBulk, Name: "deploy"},
		}, newPhases(t))
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("global without shell command", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindGlobal, Name: "prune"},
		}, newPhases(t))
		assert.ErrorIs(t, err, ErrMissingShell)
	})

	t.Run("phased without phases", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindPhased, Name: "verify"},
		}, newPhases(t))
		assert.ErrorIs(t, err, ErrMissingPhases)
	})

	t.Run("phased with unknown phase", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindPhased, Name: "verify", Phases: []string{"phase:missing"}},
		}, newPhases(t))
		assert.ErrorIs(t, err, ErrUnknownPhase)
	})

	t.Run("bulk listing phases", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindBulk, Name: "deploy", Phases: []string{"phase:build"}},
		}, newPhases(t, phaseDecl("phase:build", nil, nil)))
		require.Error(t, err)
		assert.ErrorContains(t, err, "may not list phases")
	})
}

func TestBulkTranslation(t *testing.T) {
	ctx := context.Background()

	t.Run("ordered bulk command gets an upstream self dependency", func(t *testing.T) {
		phases := newPhases(t)
		r, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindBulk, Name: "deploy"},
		}, phases)
		require.NoError(t, err)

		cmd := r.Get("deploy")
		require.True(t, cmd.IsTranslatedBulk())
		assert.Equal(t, KindPhased, cmd.Kind)

		synthetic := cmd.SyntheticPhase
		assert.Equal(t, "phase:deploy", synthetic.Name)
		assert.True(t, synthetic.IsSynthetic)
		assert.True(t, synthetic.IgnoreMissingScript)
		assert.Same(t, synthetic, synthetic.UpstreamDeps["phase:deploy"])
		assert.Same(t, synthetic, phases.Get("phase:deploy"))
	})

	t.Run("ignore_dependency_order drops the self dependency", func(t *testing.T) {
		r, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindBulk, Name: "lint", IgnoreDependencyOrder: boolPtr(true)},
		}, newPhases(t))
		require.NoError(t, err)
		assert.Empty(t, r.Get("lint").SyntheticPhase.UpstreamDeps)
	})

	t.Run("synthetic phase colliding with a declared phase", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindBulk, Name: "deploy"},
		}, newPhases(t, phaseDecl("phase:deploy", nil, nil)))
		require.ErrorIs(t, err, phase.ErrDuplicate)
		assert.Contains(t, err.Error(), `declare "deploy" as a phased command`)
	})

	t.Run("declared phase:build without a build command names the defaulting rule", func(t *testing.T) {
		// Only the phase is declared; the builtin bulk "build" still
		// defaults in and its synthetic phase collides.
		_, err := NewRegistry(ctx, nil, newPhases(t, phaseDecl("phase:build", nil, nil)))
		require.ErrorIs(t, err, phase.ErrDuplicate)
		assert.Contains(t, err.Error(), `"phase:build"`)
		assert.Contains(t, err.Error(), `declare "build" as a phased command`)
	})
}

func TestPhaseSetExpansion(t *testing.T) {
	ctx := context.Background()

	phases := newPhases(t,
		phaseDecl("phase:compile", nil, []string{"phase:compile"}),
		phaseDecl("phase:bundle", []string{"phase:compile"}, nil),
		phaseDecl("phase:test", []string{"phase:bundle"}, nil),
		phaseDecl("phase:audit", nil, nil),
	)
	r, err := NewRegistry(ctx, []*config.CommandDecl{
		{Kind: config.KindPhased, Name: "verify", Phases: []string{"phase:test"}, WatchPhases: []string{"phase:bundle"}},
	}, phases)
	require.NoError(t, err)

	cmd := r.Get("verify")

	t.Run("closure pulls in transitive dependencies", func(t *testing.T) {
		assert.Equal(t, []string{"phase:bundle", "phase:compile", "phase:test"}, cmd.PhaseNames())
		assert.NotContains(t, cmd.Phases, "phase:audit")
	})

	t.Run("watch phases stay literal", func(t *testing.T) {
		require.Len(t, cmd.WatchPhases, 1)
		assert.Contains(t, cmd.WatchPhases, "phase:bundle")
	})

	t.Run("watch phase outside the set is rejected", func(t *testing.T) {
		fresh := newPhases(t,
			phaseDecl("phase:test", nil, nil),
			phaseDecl("phase:audit", nil, nil),
		)
		_, err := NewRegistry(ctx, []*config.CommandDecl{
			{Kind: config.KindPhased, Name: "check", Phases: []string{"phase:audit"}, WatchPhases: []string{"phase:test"}},
		}, fresh)
		assert.ErrorIs(t, err, ErrUnknownPhase)
	})
}
