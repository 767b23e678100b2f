package execution

import (
	"context"
	"sync"
	"time"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/snapshot"
)

// ExecutedOperation is the outcome of one attempted operation.
type ExecutedOperation struct {
	Position  core.Position
	Operation operations.Operation
	Start     time.Time
	End       time.Time
	Status    core.OperationStatus
	Err       error
	// Undo is only meaningful when Status is StatusSuccess.
	Undo UndoToken
}

// Duration returns how long the operation took.
func (e ExecutedOperation) Duration() time.Duration {
	if e.End.IsZero() {
		return 0
	}
	return e.End.Sub(e.Start)
}

// Succeeded reports whether the operation completed.
func (e ExecutedOperation) Succeeded() bool {
	return e.Status == core.StatusSuccess
}

// Result is the ordered record of one batch execution. Operations never
// attempted, because of the stop policy or cancellation, are absent.
type Result struct {
	Status     core.BatchStatus
	Policy     core.Policy
	Operations []ExecutedOperation
	Start      time.Time
	End        time.Time
	// Err is set when execution was interrupted by context cancellation.
	Err error
	// Spool holds the snapshots taken during execution; nil when
	// snapshots were disabled.
	Spool *snapshot.Spool

	total int
	fsys  filesystem.FileSystem
	opts  Options

	mu        sync.Mutex
	reverted  bool
	discarded bool
}

func (r *Result) finish() {
	r.End = time.Now()
	r.Status = core.BatchSuccess
	if len(r.Operations) != r.total || r.Err != nil {
		r.Status = core.BatchPartialFailure
		return
	}
	for _, op := range r.Operations {
		if !op.Succeeded() {
			r.Status = core.BatchPartialFailure
			return
		}
	}
}

// Success reports whether every operation of the batch ran and succeeded.
func (r *Result) Success() bool {
	return r.Status == core.BatchSuccess
}

// Duration returns the wall time of the whole execution.
func (r *Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Total is the number of operations in the executed batch.
func (r *Result) Total() int {
	return r.total
}

// Skipped is the number of operations that were never attempted.
func (r *Result) Skipped() int {
	return r.total - len(r.Operations)
}

// Failed returns the operations that failed.
func (r *Result) Failed() []ExecutedOperation {
	var out []ExecutedOperation
	for _, op := range r.Operations {
		if !op.Succeeded() {
			out = append(out, op)
		}
	}
	return out
}

// Errors returns the errors of failed operations, in order.
func (r *Result) Errors() []error {
	var errs []error
	for _, op := range r.Operations {
		if op.Err != nil {
			errs = append(errs, op.Err)
		}
	}
	return errs
}

// At returns the outcome of the operation at pos, if it was attempted.
func (r *Result) At(pos core.Position) (ExecutedOperation, bool) {
	for _, op := range r.Operations {
		if op.Position == pos {
			return op, true
		}
	}
	return ExecutedOperation{}, false
}

// Reverted reports whether Revert has been called.
func (r *Result) Reverted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reverted
}

// Revert undoes the executed operations in reverse order. It may be called
// once; later calls fail with core.ErrAlreadyReverted. Options override the
// ones the batch was executed with; the revert policy defaults to the
// execution policy. A call rejected for bad options does not count.
func (r *Result) Revert(ctx context.Context, opts ...Option) (*RevertReport, error) {
	if r.fsys == nil {
		return nil, core.Newf(core.KindUnavailable, "no filesystem capability configured")
	}
	o := r.opts.Apply(opts...)
	policy := o.RevertPolicy
	if policy == "" {
		policy = r.Policy
	}
	policy, err := core.ParsePolicy(string(policy))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.reverted {
		r.mu.Unlock()
		return nil, core.Newf(core.KindAlreadyReverted, "result has already been reverted")
	}
	if r.discarded {
		r.mu.Unlock()
		return nil, core.Newf(core.KindUnavailable, "snapshots have been discarded")
	}
	r.reverted = true
	r.mu.Unlock()

	rv := &reverter{
		fsys:   r.fsys,
		opts:   o,
		spool:  r.Spool,
		logger: o.Logger,
	}
	return rv.revert(ctx, r.Operations, policy), nil
}

// Discard deletes every snapshot the Result still holds and frees its
// space. Call it once the Result will not be reverted, or after a revert
// to clear what was not restored. A discarded Result cannot be reverted.
func (r *Result) Discard() error {
	r.mu.Lock()
	r.discarded = true
	r.mu.Unlock()
	if r.Spool == nil {
		return nil
	}
	held := r.Spool.Held()
	if err := r.Spool.Release(); err != nil {
		return core.Wrap(err, core.KindIO, "discard", "")
	}
	r.opts.Logger.Debug().Int("snapshots", held).Msg("snapshots discarded")
	return nil
}
