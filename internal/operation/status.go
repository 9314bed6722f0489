package operation

// Status is the per-operation state machine:
//
//	Ready → Queued → Executing → {Success, SuccessWithWarning, Failure,
//	                              Blocked, Skipped, NoOp, FromCache}
//
// Terminal states never transition. Blocked and Failure are the blocking
// terminal states; every other terminal state satisfies dependents.
type Status int32

const (
	// StatusReady is the initial state: dependencies not yet all terminal.
	StatusReady Status = iota
	// StatusQueued means every dependency reached a non-blocking terminal
	// state and the operation waits for a worker.
	StatusQueued
	// StatusExecuting means a worker is running the operation's runner.
	StatusExecuting
	// StatusSuccess is a clean run.
	StatusSuccess
	// StatusSuccessWithWarning is a run that emitted recognized warning
	// output on a phase that allows warnings.
	StatusSuccessWithWarning
	// StatusFailure is a run that exited nonzero or warned on a phase that
	// escalates warnings.
	StatusFailure
	// StatusBlocked means a dependency failed or was itself blocked; the
	// runner was never invoked.
	StatusBlocked
	// StatusSkipped means incremental build-avoidance proved the inputs
	// unchanged since the last successful run.
	StatusSkipped
	// StatusNoOp means there was no work to do, e.g. no registered script
	// on a phase that ignores missing scripts.
	StatusNoOp
	// StatusFromCache means a build cache restored the operation's output
	// instead of re-running it.
	StatusFromCache
)

var statusNames = map[Status]string{
	StatusReady:              "READY",
	StatusQueued:             "QUEUED",
	StatusExecuting:          "EXECUTING",
	StatusSuccess:            "SUCCESS",
	StatusSuccessWithWarning: "SUCCESS WITH WARNINGS",
	StatusFailure:            "FAILURE",
	StatusBlocked:            "BLOCKED",
	StatusSkipped:            "SKIPPED",
	StatusNoOp:               "NO-OP",
	StatusFromCache:          "FROM CACHE",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusReady, StatusQueued, StatusExecuting:
		return false
	}
	return true
}

// IsBlocking reports whether this terminal state prevents dependents from
// running.
func (s Status) IsBlocking() bool {
	return s == StatusFailure || s == StatusBlocked
}

// Satisfies reports whether a dependency in this state allows its consumers
// to execute: terminal and non-blocking.
func (s Status) Satisfies() bool {
	return s.IsTerminal() && !s.IsBlocking()
}
