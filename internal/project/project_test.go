package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgrid/internal/config"
)

func decl(name string, deps ...string) *config.ProjectDecl {
	return &config.ProjectDecl{Name: name, Path: "packages/" + name, DependsOn: deps}
}

// chainGraph is app <- lib <- core, with tool standing alone.
func chainGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph(context.Background(), []*config.ProjectDecl{
		decl("core"),
		decl("lib", "core"),
		decl("app", "lib"),
		decl("tool"),
	})
	require.NoError(t, err)
	return g
}

func TestNewGraph(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves forward and reverse edges", func(t *testing.T) {
		g := chainGraph(t)

		lib := g.Get("lib")
		require.NotNil(t, lib)
		require.Len(t, lib.DependsOn, 1)
		assert.Same(t, g.Get("core"), lib.DependsOn[0])
		require.Len(t, lib.Dependents, 1)
		assert.Same(t, g.Get("app"), lib.Dependents[0])
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := NewGraph(ctx, []*config.ProjectDecl{decl("core"), decl("core")})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := NewGraph(ctx, []*config.ProjectDecl{decl("app", "missing")})
		require.ErrorIs(t, err, ErrUnknownProject)
		assert.ErrorContains(t, err, `"app"`)
		assert.ErrorContains(t, err, `"missing"`)
	})

	t.Run("nil scripts become an empty map", func(t *testing.T) {
		g, err := NewGraph(ctx, []*config.ProjectDecl{decl("core")})
		require.NoError(t, err)
		assert.NotNil(t, g.Get("core").Scripts)
	})
}

func TestCycleRejection(t *testing.T) {
	ctx := context.Background()

	t.Run("two project cycle reports the path", func(t *testing.T) {
		_, err := NewGraph(ctx, []*config.ProjectDecl{
			decl("a", "b"),
			decl("b", "a"),
		})
		require.ErrorIs(t, err, ErrCycle)
		assert.ErrorContains(t, err, "a -> b -> a")
	})

	t.Run("cycle behind an acyclic prefix", func(t *testing.T) {
		_, err := NewGraph(ctx, []*config.ProjectDecl{
			decl("root"),
			decl("x", "root", "z"),
			decl("y", "x"),
			decl("z", "y"),
		})
		require.ErrorIs(t, err, ErrCycle)
		assert.ErrorContains(t, err, "x")
		assert.ErrorContains(t, err, "z")
	})

	t.Run("diamond is fine", func(t *testing.T) {
		_, err := NewGraph(ctx, []*config.ProjectDecl{
			decl("base"),
			decl("left", "base"),
			decl("right", "base"),
			decl("top", "left", "right"),
		})
		assert.NoError(t, err)
	})
}

func TestExpandWithUpstream(t *testing.T) {
	g := chainGraph(t)

	t.Run("pulls in transitive dependencies", func(t *testing.T) {
		out := g.ExpandWithUpstream([]*Project{g.Get("app")})
		assert.Equal(t, []string{"app", "core", "lib"}, names(out))
	})

	t.Run("leaf expands to itself", func(t *testing.T) {
		out := g.ExpandWithUpstream([]*Project{g.Get("tool")})
		assert.Equal(t, []string{"tool"}, names(out))
	})

	t.Run("overlapping selections deduplicate", func(t *testing.T) {
		out := g.ExpandWithUpstream([]*Project{g.Get("app"), g.Get("lib")})
		assert.Equal(t, []string{"app", "core", "lib"}, names(out))
	})
}

func TestDownstreamOf(t *testing.T) {
	g := chainGraph(t)

	t.Run("pulls in transitive dependents", func(t *testing.T) {
		out := g.DownstreamOf([]*Project{g.Get("core")})
		assert.Equal(t, []string{"app", "core", "lib"}, names(out))
	})

	t.Run("top of the chain is alone", func(t *testing.T) {
		out := g.DownstreamOf([]*Project{g.Get("app")})
		assert.Equal(t, []string{"app"}, names(out))
	})
}

func names(projects []*Project) []string {
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.Name)
	}
	return out
}
