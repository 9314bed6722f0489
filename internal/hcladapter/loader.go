// Package hcladapter is the HCL implementation of config.Loader. It discovers
// .hcl files, decodes them against the schema package and translates the
// result into the format-agnostic config model.
package hcladapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/buildgrid/internal/config"
	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/schema"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load orchestrates the HCL loading process. It is agnostic to the origin of
// the paths and accepts any top-level block from any file.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	model := &config.Model{}
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root schema.Root
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, p := range root.Phases {
			model.Phases = append(model.Phases, translatePhase(p))
		}
		for _, c := range root.Commands {
			model.Commands = append(model.Commands, translateCommand(c))
		}
		for _, p := range root.Parameters {
			decl, err := translateParameter(p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Parameters = append(model.Parameters, decl)
		}
		for _, p := range root.Projects {
			model.Projects = append(model.Projects, translateProject(p))
		}
	}

	logger.Debug("HCL loading complete.",
		"phases", len(model.Phases),
		"commands", len(model.Commands),
		"parameters", len(model.Parameters),
		"projects", len(model.Projects),
	)
	return model, nil
}

// findAllHCLFiles walks all given paths and returns a flat, deduplicated list
// of .hcl files.
func findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // A configured path that doesn't exist is not an error.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}

		err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return allFiles, nil
}
