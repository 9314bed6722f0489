package app

import "path/filepath"

// Config holds everything an App instance needs to run.
type Config struct {
	// RepoRoot is the monorepo root directory.
	RepoRoot string
	// ConfigPath points at the orchestration .hcl file or directory,
	// relative to RepoRoot unless absolute.
	ConfigPath string
	LogLevel   string
	LogFormat  string
	// Parallelism bounds concurrent operations; 0 means host core count.
	Parallelism int
	// CacheDir overrides the default cache location under RepoRoot.
	CacheDir string
	// NoCache disables skip/restore logic entirely.
	NoCache bool
}

// NewConfig applies defaults to a caller-supplied config.
func NewConfig(cfg Config) *Config {
	if cfg.RepoRoot == "" {
		cfg.RepoRoot = "."
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = "grid"
	}
	if !filepath.IsAbs(cfg.ConfigPath) {
		cfg.ConfigPath = filepath.Join(cfg.RepoRoot, cfg.ConfigPath)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.RepoRoot, ".buildgrid", "cache")
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg
}
