// Package executor runs an operation DAG to completion: a single
// coordinating loop owns all graph mutation and feeds a bounded worker pool,
// workers report back on one completion channel, and eligibility is
// re-evaluated event-driven as each operation finishes. This is a parallel
// topological-order executor with Blocked propagation and cancellation.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/vk/buildgrid/internal/ctxlog"
	"github.com/vk/buildgrid/internal/operation"
)

// Executor executes operation graphs with bounded concurrency.
type Executor struct {
	concurrency int
}

// New creates an executor. A non-positive concurrency selects the host core
// count.
func New(concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Executor{concurrency: concurrency}
}

// completion is the message a worker sends back to the coordinator.
type completion struct {
	op       *operation.Operation
	result   operation.Result
	duration time.Duration
}

// Run executes all operations honoring dependency order. It returns the
// per-operation results in completion order plus the overall verdict. A
// failed operation never aborts running siblings; it only blocks dependents.
// Context cancellation stops dispatch, lets in-flight work terminate and
// yields VerdictCancelled.
func (e *Executor) Run(ctx context.Context, ops []*operation.Operation) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	result := &Result{Verdict: VerdictSuccess}
	if len(ops) == 0 {
		return result, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Capacity matches the pool: the coordinator never has more assignments
	// outstanding than in-flight slots, so sends below cannot block.
	assignCh := make(chan *operation.Operation, e.concurrency)
	complCh := make(chan completion)

	var wg sync.WaitGroup
	logger.Debug("Starting worker pool.", "workers", e.concurrency)
	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go e.worker(runCtx, i, assignCh, complCh, &wg)
	}

	var queue []*operation.Operation
	for _, op := range ops {
		if len(op.Dependencies) == 0 {
			op.Status = operation.StatusQueued
			queue = append(queue, op)
		}
	}
	logger.Debug("Found root operations.", "count", len(queue))

	terminal := 0
	record := func(op *operation.Operation, status operation.Status, dur time.Duration, output string) {
		op.Status = status
		terminal++
		result.Operations = append(result.Operations, OperationResult{
			ID:       op.ID(),
			Status:   status,
			Duration: dur,
			Output:   output,
		})
	}

	// blockConsumers propagates Blocked transitively. Only Ready operations
	// can become blocked; Queued and Executing ones already had every
	// dependency satisfied.
	var blockConsumers func(op *operation.Operation)
	blockConsumers = func(op *operation.Operation) {
		for _, consumer := range op.Consumers {
			if consumer.Status != operation.StatusReady {
				continue
			}
			logger.Debug("Blocking dependent operation.", "operation", consumer.ID(), "dependency", op.ID())
			record(consumer, operation.StatusBlocked, 0, fmt.Sprintf("blocked by %s", op.ID()))
			blockConsumers(consumer)
		}
	}

	inFlight := 0
	cancelled := false

	for terminal < len(ops) && !cancelled {
		for len(queue) > 0 && inFlight < e.concurrency {
			op := queue[0]
			queue = queue[1:]
			op.Status = operation.StatusExecuting
			inFlight++
			logger.Debug("Dispatching operation.", "operation", op.ID(), "in_flight", inFlight)
			assignCh <- op
		}

		if inFlight == 0 {
			// No work running and nothing dispatchable: with a valid DAG
			// this is unreachable, so treat it as a defect.
			close(assignCh)
			wg.Wait()
			return nil, fmt.Errorf("internal: scheduler stalled with %d of %d operations unfinished",
				len(ops)-terminal, len(ops))
		}

		select {
		case c := <-complCh:
			inFlight--
			status := c.result.Status
			if !status.IsTerminal() {
				// A runner returning a non-terminal status is broken.
				status = operation.StatusFailure
			}
			logger.Debug("Operation completed.", "operation", c.op.ID(), "status", status.String(), "duration", c.duration)
			record(c.op, status, c.duration, c.result.Output)

			if status.IsBlocking() {
				blockConsumers(c.op)
				break
			}
			for _, consumer := range c.op.Consumers {
				if consumer.Status == operation.StatusReady && eligible(consumer) {
					consumer.Status = operation.StatusQueued
					queue = append(queue, consumer)
				}
			}

		case <-runCtx.Done():
			logger.Warn("Cancellation requested, halting dispatch.")
			cancelled = true
		}
	}

	if cancelled {
		// Drain in-flight work; runners see the cancelled context and
		// terminate best-effort. Everything never dispatched is reported as
		// not run.
		for inFlight > 0 {
			c := <-complCh
			inFlight--
			status := c.result.Status
			if !status.IsTerminal() {
				status = operation.StatusFailure
			}
			record(c.op, status, c.duration, c.result.Output)
		}
		for _, op := range ops {
			if !op.Status.IsTerminal() {
				record(op, operation.StatusBlocked, 0, "run cancelled")
			}
		}
	}

	close(assignCh)
	wg.Wait()

	result.Verdict = verdictFor(cancelled, result)
	logger.Debug("Executor finished.", "verdict", result.Verdict.String(), "operations", len(result.Operations))
	return result, nil
}

// eligible reports whether every dependency reached a non-blocking terminal
// state.
func eligible(op *operation.Operation) bool {
	for _, dep := range op.Dependencies {
		if !dep.Status.Satisfies() {
			return false
		}
	}
	return true
}

// worker is the processing loop of one pool member. It never touches
// operation state; all mutation stays with the coordinator.
func (e *Executor) worker(ctx context.Context, id int, assignCh <-chan *operation.Operation, complCh chan<- completion, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := ctxlog.FromContext(ctx).With("worker", id)
	logger.Debug("Worker started.")

	for op := range assignCh {
		if ctx.Err() != nil {
			// Assigned before cancellation, picked up after: report as not
			// run instead of invoking the runner.
			complCh <- completion{op: op, result: operation.Result{
				Status: operation.StatusBlocked,
				Output: "run cancelled",
			}}
			continue
		}

		opCtx := ctx
		if op.Phase != nil {
			projectName := ""
			if op.Project != nil {
				projectName = op.Project.Name
			}
			opCtx = ctxlog.WithOperation(ctx, op.Phase.Name, projectName)
		}

		start := time.Now()
		res := op.Runner.Run(opCtx, op)
		complCh <- completion{op: op, result: res, duration: time.Since(start)}
	}
	logger.Debug("Worker finished.")
}
