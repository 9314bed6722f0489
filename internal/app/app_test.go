package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgrid/internal/executor"
	"github.com/vk/buildgrid/internal/hcladapter"
	"github.com/vk/buildgrid/internal/operation"
)

// scaffoldRepo lays out a minimal monorepo: a grid/ configuration directory
// and one directory per project under packages/.
func scaffoldRepo(t *testing.T, gridHCL string, projects ...string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "grid"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "grid", "grid.hcl"), []byte(gridHCL), 0o644))
	for _, name := range projects {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "packages", name), 0o755))
	}
	return root
}

func newApp(t *testing.T, root string) *App {
	t.Helper()
	a, err := New(context.Background(), Config{RepoRoot: root}, hcladapter.NewLoader(), io.Discard)
	require.NoError(t, err)
	return a
}

const chainConfig = `
project "lib" {
  path    = "packages/lib"
  scripts = {
    "phase:build" = "echo lib >> ../../order.log"
  }
}

project "app" {
  path       = "packages/app"
  depends_on = ["lib"]
  scripts    = {
    "phase:build" = "echo app >> ../../order.log"
  }
}
`

func statusOf(res *executor.Result, id string) operation.Status {
	for _, op := range res.Operations {
		if op.ID == id {
			return op.Status
		}
	}
	return operation.StatusReady
}

func TestNew(t *testing.T) {
	t.Run("builds all registries from configuration", func(t *testing.T) {
		root := scaffoldRepo(t, chainConfig, "lib", "app")
		a := newApp(t, root)

		var names []string
		for _, c := range a.Commands() {
			names = append(names, c.Name)
		}
		assert.Contains(t, names, "build")
		assert.Contains(t, names, "rebuild")
		assert.Equal(t, 2, a.projects.Len())
	})

	t.Run("script for an unknown phase is fatal", func(t *testing.T) {
		root := scaffoldRepo(t, `
project "lib" {
  path    = "packages/lib"
  scripts = {
    "phase:bild" = "echo typo"
  }
}
`, "lib")
		_, err := New(context.Background(), Config{RepoRoot: root}, hcladapter.NewLoader(), io.Discard)
		require.ErrorIs(t, err, ErrUnknownScript)
		assert.ErrorContains(t, err, "phase:bild")
	})

	t.Run("configuration errors surface at construction", func(t *testing.T) {
		root := scaffoldRepo(t, `
project "a" {
  path       = "packages/a"
  depends_on = ["b"]
}
project "b" {
  path       = "packages/b"
  depends_on = ["a"]
}
`, "a", "b")
		_, err := New(context.Background(), Config{RepoRoot: root}, hcladapter.NewLoader(), io.Discard)
		require.Error(t, err)
		assert.ErrorContains(t, err, "cycle")
	})
}

func TestInvokeBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("default build runs dependency first", func(t *testing.T) {
		root := scaffoldRepo(t, chainConfig, "lib", "app")
		a := newApp(t, root)

		res, err := a.Invoke(ctx, Invocation{Command: "build"})
		require.NoError(t, err)
		assert.Equal(t, executor.VerdictSuccess, res.Verdict)

		order, err := os.ReadFile(filepath.Join(root, "order.log"))
		require.NoError(t, err)
		assert.Equal(t, []string{"lib", "app"}, strings.Fields(string(order)))
	})

	t.Run("unknown command", func(t *testing.T) {
		root := scaffoldRepo(t, chainConfig, "lib", "app")
		a := newApp(t, root)

		_, err := a.Invoke(ctx, Invocation{Command: "deploy"})
		assert.ErrorIs(t, err, ErrUnknownCommand)
	})

	t.Run("failure blocks dependents", func(t *testing.T) {
		root := scaffoldRepo(t, `
project "lib" {
  path    = "packages/lib"
  scripts = { "phase:build" = "exit 1" }
}
project "app" {
  path       = "packages/app"
  depends_on = ["lib"]
  scripts    = { "phase:build" = "echo app" }
}
`, "lib", "app")
		a := newApp(t, root)

		res, err := a.Invoke(ctx, Invocation{Command: "build"})
		require.NoError(t, err)
		assert.Equal(t, executor.VerdictFailure, res.Verdict)
		assert.Equal(t, operation.StatusFailure, statusOf(res, "lib/phase:build"))
		assert.Equal(t, operation.StatusBlocked, statusOf(res, "app/phase:build"))
	})

	t.Run("project without a script is a no-op under bulk build", func(t *testing.T) {
		root := scaffoldRepo(t, `
project "docs" {
  path = "packages/docs"
}
`, "docs")
		a := newApp(t, root)

		res, err := a.Invoke(ctx, Invocation{Command: "build"})
		require.NoError(t, err)
		assert.Equal(t, operation.StatusNoOp, statusOf(res, "docs/phase:build"))
	})

	t.Run("second build skips, rebuild does not", func(t *testing.T) {
		root := scaffoldRepo(t, chainConfig, "lib", "app")
		a := newApp(t, root)

		first, err := a.Invoke(ctx, Invocation{Command: "build"})
		require.NoError(t, err)
		require.Equal(t, executor.VerdictSuccess, first.Verdict)

		second, err := a.Invoke(ctx, Invocation{Command: "build"})
		require.NoError(t, err)
		assert.Equal(t, operation.StatusSkipped, statusOf(second, "lib/phase:build"))
		assert.Equal(t, operation.StatusSkipped, statusOf(second, "app/phase:build"))

		third, err := a.Invoke(ctx, Invocation{Command: "rebuild"})
		require.NoError(t, err)
		assert.Equal(t, operation.StatusSuccess, statusOf(third, "lib/phase:build"))
	})

	t.Run("no-cache disables skipping", func(t *testing.T) {
		root := scaffoldRepo(t, chainConfig, "lib", "app")
		a, err := New(ctx, Config{RepoRoot: root, NoCache: true}, hcladapter.NewLoader(), io.Discard)
		require.NoError(t, err)

		_, err = a.Invoke(ctx, Invocation{Command: "build"})
		require.NoError(t, err)
		second, err := a.Invoke(ctx, Invocation{Command: "build"})
		require.NoError(t, err)
		assert.Equal(t, operation.StatusSuccess, statusOf(second, "lib/phase:build"))
	})
}

func TestInvokeScoping(t *testing.T) {
	ctx := context.Background()

	config := `
project "core" {
  path    = "packages/core"
  scripts = { "phase:build" = "echo core >> ../../order.log" }
}
project "lib" {
  path       = "packages/lib"
  depends_on = ["core"]
  scripts    = { "phase:build" = "echo lib >> ../../order.log" }
}
project "app" {
  path       = "packages/app"
  depends_on = ["lib"]
  scripts    = { "phase:build" = "echo app >> ../../order.log" }
}
`

	t.Run("to pulls in the upstream closure", func(t *testing.T) {
		root := scaffoldRepo(t, config, "core", "lib", "app")
		a := newApp(t, root)

		res, err := a.Invoke(ctx, Invocation{Command: "build", ToProjects: []string{"lib"}})
		require.NoError(t, err)

		assert.Len(t, res.Operations, 2)
		assert.Equal(t, operation.StatusSuccess, statusOf(res, "core/phase:build"))
		assert.Equal(t, operation.StatusSuccess, statusOf(res, "lib/phase:build"))
	})

	t.Run("only takes the selection literally", func(t *testing.T) {
		root := scaffoldRepo(t, config, "core", "lib", "app")
		a := newApp(t, root)

		res, err := a.Invoke(ctx, Invocation{Command: "build", OnlyProjects: []string{"lib"}})
		require.NoError(t, err)
		require.Len(t, res.Operations, 1)
		assert.Equal(t, operation.StatusSuccess, statusOf(res, "lib/phase:build"))
	})

	t.Run("unknown project name", func(t *testing.T) {
		root := scaffoldRepo(t, config, "core", "lib", "app")
		a := newApp(t, root)

		_, err := a.Invoke(ctx, Invocation{Command: "build", ToProjects: []string{"missing"}})
		require.Error(t, err)
		assert.ErrorContains(t, err, "missing")
	})
}

func TestInvokeParameters(t *testing.T) {
	ctx := context.Background()

	root := scaffoldRepo(t, `
command "localize" {
  kind = "bulk"
}

parameter "choice" "--locale" {
  alternatives = ["en-us", "de-de"]
  default      = "en-us"
  commands     = ["localize"]
}

parameter "flag" "--verbose" {
  commands = ["localize"]
}

project "web" {
  path    = "packages/web"
  scripts = { "phase:localize" = "echo" }
}
`, "web")
	a := newApp(t, root)

	t.Run("default and explicit values reach the script", func(t *testing.T) {
		res, err := a.Invoke(ctx, Invocation{Command: "localize"})
		require.NoError(t, err)
		require.Equal(t, executor.VerdictSuccess, res.Verdict)
		assert.Contains(t, res.Operations[0].Output, "--locale=en-us")
		assert.NotContains(t, res.Operations[0].Output, "--verbose")

		res, err = a.Invoke(ctx, Invocation{Command: "localize", ParameterValues: map[string]string{
			"--locale":  "de-de",
			"--verbose": "true",
		}})
		require.NoError(t, err)
		assert.Contains(t, res.Operations[0].Output, "--locale=de-de")
		assert.Contains(t, res.Operations[0].Output, "--verbose")
	})

	t.Run("value outside the alternatives", func(t *testing.T) {
		_, err := a.Invoke(ctx, Invocation{Command: "localize", ParameterValues: map[string]string{
			"--locale": "fr-fr",
		}})
		assert.ErrorIs(t, err, ErrBadParameterValue)
	})

	t.Run("parameter the command does not accept", func(t *testing.T) {
		_, err := a.Invoke(ctx, Invocation{Command: "localize", ParameterValues: map[string]string{
			"--unknown": "x",
		}})
		assert.ErrorIs(t, err, ErrUnknownParameter)
	})
}

func TestWatchValidation(t *testing.T) {
	ctx := context.Background()

	root := scaffoldRepo(t, chainConfig, "lib", "app")
	a := newApp(t, root)

	t.Run("build has no watch phases by default", func(t *testing.T) {
		err := a.Watch(ctx, Invocation{Command: "build"})
		assert.ErrorIs(t, err, ErrNotWatchable)
	})

	t.Run("unknown command", func(t *testing.T) {
		err := a.Watch(ctx, Invocation{Command: "missing"})
		assert.ErrorIs(t, err, ErrUnknownCommand)
	})
}

func TestProjectForPath(t *testing.T) {
	root := scaffoldRepo(t, chainConfig, "lib", "app")
	a := newApp(t, root)

	t.Run("file inside a project", func(t *testing.T) {
		p := a.projectForPath(filepath.Join(root, "packages", "lib", "src", "index.js"))
		require.NotNil(t, p)
		assert.Equal(t, "lib", p.Name)
	})

	t.Run("project directory itself", func(t *testing.T) {
		p := a.projectForPath(filepath.Join(root, "packages", "app"))
		require.NotNil(t, p)
		assert.Equal(t, "app", p.Name)
	})

	t.Run("path outside every project", func(t *testing.T) {
		assert.Nil(t, a.projectForPath(filepath.Join(root, "grid", "grid.hcl")))
	})
}
