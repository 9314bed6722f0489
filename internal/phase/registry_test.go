package phase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgrid/internal/config"
)

func decl(name string, self, upstream []string) *config.PhaseDecl {
	return &config.PhaseDecl{Name: name, SelfDeps: self, UpstreamDeps: upstream}
}

func TestNewRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves dependencies in any declaration order", func(t *testing.T) {
		r, err := NewRegistry(ctx, []*config.PhaseDecl{
			decl("phase:test", []string{"phase:build"}, nil),
			decl("phase:build", nil, []string{"phase:build"}),
		})
		require.NoError(t, err)
		require.Equal(t, 2, r.Len())

		test := r.Get("phase:test")
		require.NotNil(t, test)
		assert.Contains(t, test.SelfDeps, "phase:build")

		build := r.Get("phase:build")
		require.NotNil(t, build)
		assert.Same(t, build, build.UpstreamDeps["phase:build"])
	})

	t.Run("preserves declaration order", func(t *testing.T) {
		r, err := NewRegistry(ctx, []*config.PhaseDecl{
			decl("phase:compile", nil, nil),
			decl("phase:bundle", nil, nil),
			decl("phase:audit", nil, nil),
		})
		require.NoError(t, err)

		var names []string
		for _, p := range r.All() {
			names = append(names, p.Name)
		}
		assert.Equal(t, []string{"phase:compile", "phase:bundle", "phase:audit"}, names)
	})

	t.Run("log filename defaults to the short name", func(t *testing.T) {
		r, err := NewRegistry(ctx, []*config.PhaseDecl{
			decl("phase:build", nil, nil),
			{Name: "phase:test", LogFilename: "jest"},
		})
		require.NoError(t, err)
		assert.Equal(t, "build", r.Get("phase:build").LogFilenameIdentifier)
		assert.Equal(t, "jest", r.Get("phase:test").LogFilenameIdentifier)
	})
}

func TestNewRegistryNameValidation(t *testing.T) {
	ctx := context.Background()

	valid := []string{"phase:build", "phase:pre-compile", "phase:t2", "phase:a"}
	for _, name := range valid {
		_, err := NewRegistry(ctx, []*config.PhaseDecl{decl(name, nil, nil)})
		assert.NoError(t, err, name)
	}

	invalid := []string{"build", "phase:", "phase:Build", "phase:build-", "phase:-build", "phase:my_phase", "phase:phase:build"}
	for _, name := range invalid {
		_, err := NewRegistry(ctx, []*config.PhaseDecl{decl(name, nil, nil)})
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestNewRegistryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate name", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.PhaseDecl{
			decl("phase:build", nil, nil),
			decl("phase:build", nil, nil),
		})
		require.ErrorIs(t, err, ErrDuplicate)
		assert.ErrorContains(t, err, "phase:build")
	})

	t.Run("dangling self dependency", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.PhaseDecl{
			decl("phase:test", []string{"phase:build"}, nil),
		})
		require.ErrorIs(t, err, ErrUnknownPhase)
		assert.ErrorContains(t, err, "phase:test")
		assert.ErrorContains(t, err, "phase:build")
	})

	t.Run("dangling upstream dependency", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.PhaseDecl{
			decl("phase:test", nil, []string{"phase:missing"}),
		})
		require.ErrorIs(t, err, ErrUnknownPhase)
		assert.ErrorContains(t, err, "upstream")
	})
}

func TestSelfCycleDetection(t *testing.T) {
	ctx := context.Background()

	t.Run("direct self cycle", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.PhaseDecl{
			decl("phase:build", []string{"phase:build"}, nil),
		})
		require.ErrorIs(t, err, ErrCycle)
		assert.ErrorContains(t, err, "phase:build -> phase:build")
	})

	t.Run("two phase cycle reports the full path", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.PhaseDecl{
			decl("phase:a", []string{"phase:b"}, nil),
			decl("phase:b", []string{"phase:a"}, nil),
		})
		require.ErrorIs(t, err, ErrCycle)
		assert.ErrorContains(t, err, "phase:a -> phase:b -> phase:a")
	})

	t.Run("upstream self reference is not a cycle", func(t *testing.T) {
		// An upstream dependency always crosses a project boundary, so a
		// phase may upstream-depend on itself.
		_, err := NewRegistry(ctx, []*config.PhaseDecl{
			decl("phase:build", nil, []string{"phase:build"}),
		})
		assert.NoError(t, err)
	})

	t.Run("diamond is not a cycle", func(t *testing.T) {
		_, err := NewRegistry(ctx, []*config.PhaseDecl{
			decl("phase:a", nil, nil),
			decl("phase:b", []string{"phase:a"}, nil),
			decl("phase:c", []string{"phase:a"}, nil),
			decl("phase:d", []string{"phase:b", "phase:c"}, nil),
		})
		assert.NoError(t, err)
	})
}

func TestAddSynthetic(t *testing.T) {
	ctx := context.Background()

	r, err := NewRegistry(ctx, []*config.PhaseDecl{decl("phase:build", nil, nil)})
	require.NoError(t, err)

	synthetic := &Phase{Name: "phase:deploy"}
	require.NoError(t, r.AddSynthetic(synthetic))
	assert.True(t, synthetic.IsSynthetic)
	assert.Same(t, synthetic, r.Get("phase:deploy"))

	err = r.AddSynthetic(&Phase{Name: "phase:build"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestShortName(t *testing.T) {
	p := &Phase{Name: "phase:build"}
	assert.Equal(t, "build", p.ShortName())
}
