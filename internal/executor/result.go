package executor

import (
	"time"

	"github.com/vk/buildgrid/internal/operation"
)

// Verdict is the aggregate outcome of one execution pass.
type Verdict int

const (
	// VerdictSuccess means every operation ended in a non-blocking state.
	VerdictSuccess Verdict = iota
	// VerdictFailure means at least one operation ended in Failure. Blocked
	// operations are collateral; they never cause this verdict on their own.
	VerdictFailure
	// VerdictCancelled means the run was interrupted. Distinct from
	// failure: results recorded before the interrupt remain valid.
	VerdictCancelled
)

func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictFailure:
		return "failure"
	case VerdictCancelled:
		return "cancelled"
	}
	return "unknown"
}

// OperationResult is one line of the execution log.
type OperationResult struct {
	ID       string
	Status   operation.Status
	Duration time.Duration
	Output   string
}

// Result is the complete outcome of one execution pass: the verdict plus the
// per-operation log in completion order, suitable for summary printing and
// telemetry.
type Result struct {
	Verdict    Verdict
	Operations []OperationResult
}

// Succeeded reports whether the verdict is success.
func (r *Result) Succeeded() bool {
	return r.Verdict == VerdictSuccess
}

// CountByStatus tallies the operations per terminal status.
func (r *Result) CountByStatus() map[operation.Status]int {
	counts := make(map[operation.Status]int)
	for _, op := range r.Operations {
		counts[op.Status]++
	}
	return counts
}

// Failures returns the operations that ended in Failure, preserving order.
func (r *Result) Failures() []OperationResult {
	var out []OperationResult
	for _, op := range r.Operations {
		if op.Status == operation.StatusFailure {
			out = append(out, op)
		}
	}
	return out
}

func verdictFor(cancelled bool, r *Result) Verdict {
	if cancelled {
		return VerdictCancelled
	}
	for _, op := range r.Operations {
		if op.Status == operation.StatusFailure {
			return VerdictFailure
		}
	}
	return VerdictSuccess
}
