package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LogDirName is the per-project directory where operation logs are written.
// Logs are an execution artifact, never an input, so the hash skips it.
const LogDirName = ".buildgrid-log"

// ignoredDirs are never part of an operation's input hash.
var ignoredDirs = map[string]struct{}{
	".git":         {},
	".buildgrid":   {},
	LogDirName:     {},
	"node_modules": {},
}

// HashKey computes the content-hash cache key for one operation: every
// regular file under projectDir (minus ignored directories and the
// project's declared output directories), the script text and the rendered
// parameter values. Outputs must be excluded or a run would invalidate its
// own key by writing them. Files are hashed concurrently; the final key is
// order-independent because entries are sorted before the outer hash.
func HashKey(ctx context.Context, projectDir, script string, args, outputs []string) (string, error) {
	outputDirs := make(map[string]struct{}, len(outputs))
	for _, output := range outputs {
		outputDirs[filepath.Join(projectDir, output)] = struct{}{}
	}

	var files []string
	err := filepath.Walk(projectDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if _, skip := ignoredDirs[info.Name()]; skip {
				return filepath.SkipDir
			}
			if _, skip := outputDirs[path]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", projectDir, err)
	}

	entries := make([]string, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sum, err := hashFile(file)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(projectDir, file)
			if err != nil {
				return err
			}
			mu.Lock()
			entries[i] = filepath.ToSlash(rel) + ":" + sum
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	sort.Strings(entries)

	outer := sha256.New()
	for _, entry := range entries {
		fmt.Fprintln(outer, entry)
	}
	fmt.Fprintln(outer, "script:"+script)
	fmt.Fprintln(outer, "args:"+strings.Join(args, "\x00"))
	return hex.EncodeToString(outer.Sum(nil)), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
