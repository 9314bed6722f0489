// Package app is the composition root: it loads configuration, constructs
// the phase/command/parameter/project registries and exposes command
// invocation (one-shot and watch mode) to the CLI layer.
package app
