// Package config defines the format-agnostic configuration model for the
// orchestrator, along with the Loader interface for reading it from disk.
//
// The config.Model holds raw, unvalidated declarations exactly as they were
// written. Cross-referencing and validation are the job of the phase, command,
// param and project registries; concrete loaders (HCL) live in separate
// packages.
package config
