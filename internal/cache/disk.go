package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/buildgrid/internal/ctxlog"
)

// Disk is a filesystem-backed Provider. Layout under the root:
//
//	state/<scope>    last successful key for the scope, one line
//	objects/<key>/   archived output directories for the key
type Disk struct {
	root string
}

// NewDisk creates a disk provider rooted at dir, creating it if needed.
func NewDisk(dir string) (*Disk, error) {
	for _, sub := range []string{"state", "objects"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	return &Disk{root: dir}, nil
}

// Lookup reports up-to-date when the scope's last successful key matches,
// restorable when the object store has the key, and a miss otherwise.
func (d *Disk) Lookup(ctx context.Context, scope, key string) (Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	last, err := os.ReadFile(d.statePath(scope))
	switch {
	case err == nil && strings.TrimSpace(string(last)) == key:
		logger.Debug("Cache lookup: workspace up to date.", "scope", scope)
		return OutcomeUpToDate, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return OutcomeMiss, fmt.Errorf("reading cache state for %s: %w", scope, err)
	}

	if info, err := os.Stat(d.objectPath(key)); err == nil && info.IsDir() {
		logger.Debug("Cache lookup: outputs restorable.", "scope", scope, "key", key)
		return OutcomeRestorable, nil
	}
	return OutcomeMiss, nil
}

// Restore copies the archived output directories for key into projectDir.
func (d *Disk) Restore(ctx context.Context, key, projectDir string, outputs []string) error {
	for _, output := range outputs {
		src := filepath.Join(d.objectPath(key), output)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			continue
		}
		dst := filepath.Join(projectDir, output)
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("clearing output %s: %w", dst, err)
		}
		if err := copyTree(src, dst); err != nil {
			return fmt.Errorf("restoring output %s: %w", output, err)
		}
	}
	ctxlog.FromContext(ctx).Debug("Cache restore complete.", "key", key, "outputs", len(outputs))
	return nil
}

// Commit records key as the scope's last success and archives the named
// output directories. Missing outputs are tolerated; a phase that produced
// nothing still commits its state.
func (d *Disk) Commit(ctx context.Context, scope, key, projectDir string, outputs []string) error {
	if err := os.WriteFile(d.statePath(scope), []byte(key+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing cache state for %s: %w", scope, err)
	}

	for _, output := range outputs {
		src := filepath.Join(projectDir, output)
		if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
			continue
		}
		dst := filepath.Join(d.objectPath(key), output)
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("clearing cache object %s: %w", dst, err)
		}
		if err := copyTree(src, dst); err != nil {
			return fmt.Errorf("archiving output %s: %w", output, err)
		}
	}
	ctxlog.FromContext(ctx).Debug("Cache commit complete.", "scope", scope, "key", key)
	return nil
}

func (d *Disk) statePath(scope string) string {
	return filepath.Join(d.root, "state", sanitize(scope))
}

func (d *Disk) objectPath(key string) string {
	return filepath.Join(d.root, "objects", key)
}

// sanitize maps a scope like "app/phase:build" onto a single filename.
func sanitize(scope string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(scope)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	})
}
