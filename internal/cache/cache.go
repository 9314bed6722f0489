// Package cache implements incremental build-avoidance: content-hash keys
// over an operation's inputs, a per-scope record of the last successful key
// (the "skip" decision) and a key-addressed object store of restorable
// outputs (the "from cache" decision).
//
// Reads are safe for concurrent use. Each operation owns a distinct scope,
// so commits for a given key happen at most once per invocation.
package cache

import "context"

// Outcome classifies a cache lookup.
type Outcome int

const (
	// OutcomeMiss means the operation has to run.
	OutcomeMiss Outcome = iota
	// OutcomeUpToDate means the workspace already holds the result of this
	// exact key; the operation can be skipped without touching anything.
	OutcomeUpToDate
	// OutcomeRestorable means the object store holds the outputs for this
	// key; restoring them replaces the run.
	OutcomeRestorable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpToDate:
		return "up-to-date"
	case OutcomeRestorable:
		return "restorable"
	}
	return "miss"
}

// Provider is the cache capability consumed by runners. A scope identifies
// one (project, phase) pair; a key is the content hash of that operation's
// inputs.
type Provider interface {
	// Lookup classifies the key for the scope.
	Lookup(ctx context.Context, scope, key string) (Outcome, error)
	// Restore copies the named output directories for key back into
	// projectDir. Only valid after OutcomeRestorable.
	Restore(ctx context.Context, key, projectDir string, outputs []string) error
	// Commit records key as the scope's last success and archives the named
	// output directories.
	Commit(ctx context.Context, scope, key, projectDir string, outputs []string) error
}
