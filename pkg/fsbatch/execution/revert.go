package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/snapshot"
)

// RevertedOperation is the revert outcome of one executed operation.
type RevertedOperation struct {
	Position  core.Position
	Operation operations.Operation
	Start     time.Time
	End       time.Time
	Status    core.RevertStatus
	Err       error
	// Warning explains a skip that left something in place.
	Warning string
}

// Duration returns how long reverting the operation took.
func (r RevertedOperation) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// RevertReport lists revert outcomes in the order they were applied, which
// is the reverse of execution order.
type RevertReport struct {
	// Status is BatchSuccess when no item failed and the revert ran to the end.
	Status core.BatchStatus
	Items  []RevertedOperation
	// Stopped is true when the stop policy ended the revert early.
	Stopped bool
	Start   time.Time
	End     time.Time
}

// OK reports whether nothing failed. Skipped items do not count as failures.
func (r *RevertReport) OK() bool {
	return !r.Stopped && len(r.Failed()) == 0
}

// Failed returns the items that could not be reverted.
func (r *RevertReport) Failed() []RevertedOperation {
	var out []RevertedOperation
	for _, it := range r.Items {
		if it.Status == core.RevertFailed {
			out = append(out, it)
		}
	}
	return out
}

// Count returns how many items ended with status.
func (r *RevertReport) Count(status core.RevertStatus) int {
	n := 0
	for _, it := range r.Items {
		if it.Status == status {
			n++
		}
	}
	return n
}

// Warnings returns the warnings of skipped items.
func (r *RevertReport) Warnings() []string {
	var out []string
	for _, it := range r.Items {
		if it.Warning != "" {
			out = append(out, fmt.Sprintf("%s %s: %s", it.Position, it.Operation, it.Warning))
		}
	}
	return out
}

type reverter struct {
	fsys   filesystem.FileSystem
	opts   Options
	spool  *snapshot.Spool
	logger zerolog.Logger
}

// revert applies inverses from the last executed operation to the first.
func (rv *reverter) revert(ctx context.Context, executed []ExecutedOperation, policy core.Policy) *RevertReport {
	report := &RevertReport{Start: time.Now()}

	rv.logger.Info().
		Int("operation_count", len(executed)).
		Str("policy", string(policy)).
		Msg("starting revert")

	for i := len(executed) - 1; i >= 0; i-- {
		item := rv.revertOne(executed[i])
		report.Items = append(report.Items, item)
		rv.publish(ctx, item)

		if item.Status == core.RevertFailed && policy == core.PolicyStop && i > 0 {
			report.Stopped = true
			rv.logger.Info().
				Str("position", item.Position.String()).
				Int("remaining_operations", i).
				Msg("stopping revert after failure")
			break
		}
	}

	report.End = time.Now()
	report.Status = core.BatchSuccess
	if !report.OK() {
		report.Status = core.BatchPartialFailure
	}
	rv.logger.Info().
		Int("reverted", report.Count(core.RevertSucceeded)).
		Int("failed", report.Count(core.RevertFailed)).
		Int("skipped", report.Count(core.RevertSkipped)).
		Bool("stopped", report.Stopped).
		Msg("revert completed")
	return report
}

func (rv *reverter) publish(ctx context.Context, item RevertedOperation) {
	if rv.opts.EventBus == nil {
		return
	}
	rv.opts.EventBus.Publish(ctx, core.OperationEvent{
		Type:          core.EventOperationReverted,
		Time:          item.End,
		Position:      item.Position,
		OperationType: string(item.Operation.Kind()),
		Path:          item.Operation.Target(),
		Duration:      item.Duration(),
		Err:           item.Err,
		RevertStatus:  item.Status,
	})
}

func (rv *reverter) revertOne(ex ExecutedOperation) RevertedOperation {
	item := RevertedOperation{
		Position:  ex.Position,
		Operation: ex.Operation,
		Start:     time.Now(),
	}
	log := rv.logger.With().
		Str("position", ex.Position.String()).
		Str("op_type", string(ex.Operation.Kind())).
		Str("path", ex.Operation.Target()).
		Logger()

	var status core.RevertStatus
	var err error
	var warning string
	if !ex.Succeeded() {
		status, warning = core.RevertSkipped, "operation did not complete"
	} else {
		switch ex.Operation.Kind() {
		case operations.KindCreateDir:
			status, warning, err = rv.revertCreateDir(ex)
		case operations.KindCreateSymlink:
			status, warning, err = rv.revertSymlink(ex)
		case operations.KindCopy, operations.KindWriteFile:
			status, warning, err = rv.revertWrite(ex)
		case operations.KindMove:
			status, warning, err = rv.revertMove(ex)
		case operations.KindDelete:
			status, warning, err = rv.revertDelete(ex)
		default:
			status = core.RevertFailed
			err = core.Newf(core.KindInvalidOperation, "unknown operation kind %q", ex.Operation.Kind())
		}
	}
	if e, ok := err.(*core.Error); ok {
		err = e.At(ex.Position)
	}

	item.End = time.Now()
	item.Status = status
	item.Err = err
	item.Warning = warning

	switch status {
	case core.RevertSucceeded:
		log.Info().Dur("duration", item.Duration()).Msg("operation reverted")
	case core.RevertSkipped:
		if warning != "" && ex.Succeeded() {
			log.Warn().Str("reason", warning).Msg("revert skipped")
		} else {
			log.Debug().Str("reason", warning).Msg("revert skipped")
		}
	default:
		log.Warn().Err(err).Msg("revert failed")
	}
	return item
}

func (rv *reverter) revertCreateDir(ex ExecutedOperation) (core.RevertStatus, string, error) {
	p := ex.Operation.Path()
	if !ex.Undo.created {
		return core.RevertSkipped, "", nil
	}
	typ, err := filesystem.Lookup(rv.fsys, p)
	if err != nil {
		return core.RevertFailed, "", err
	}
	if typ == core.PathAbsent {
		return core.RevertSkipped, fmt.Sprintf("directory %s no longer exists", p), nil
	}
	if typ != core.PathDir {
		return core.RevertSkipped, fmt.Sprintf("%s was replaced by a file after the batch ran", p), nil
	}
	empty, err := filesystem.IsEmptyDir(rv.fsys, p)
	if err != nil {
		return core.RevertFailed, "", err
	}
	if !empty {
		return core.RevertSkipped, fmt.Sprintf("directory %s is not empty", p), nil
	}
	if err := rv.fsys.Remove(p); err != nil {
		return core.RevertFailed, "", core.Wrap(err, core.KindIO, "revert", p)
	}
	return core.RevertSucceeded, "", nil
}

// revertSymlink removes a link the batch created, as long as it still
// points where it was created to point.
func (rv *reverter) revertSymlink(ex ExecutedOperation) (core.RevertStatus, string, error) {
	p := ex.Operation.Path()
	if !ex.Undo.created {
		return core.RevertSkipped, "", nil
	}
	target, isLink, err := filesystem.LinkTarget(rv.fsys, p)
	if err != nil {
		return core.RevertFailed, "", err
	}
	if !isLink {
		typ, err := filesystem.Lookup(rv.fsys, p)
		if err != nil {
			return core.RevertFailed, "", err
		}
		if typ == core.PathAbsent {
			return core.RevertSkipped, fmt.Sprintf("link %s no longer exists", p), nil
		}
		return core.RevertSkipped, fmt.Sprintf("link %s was replaced after the batch ran", p), nil
	}
	if target != ex.Undo.linkTarget {
		return core.RevertSkipped, fmt.Sprintf("link %s now points to %s", p, target), nil
	}
	if err := rv.fsys.Remove(p); err != nil {
		return core.RevertFailed, "", core.Wrap(err, core.KindIO, "revert", p)
	}
	return core.RevertSucceeded, "", nil
}

// revertWrite undoes Copy and WriteFile: remove what was written and put
// back what it replaced.
func (rv *reverter) revertWrite(ex ExecutedOperation) (core.RevertStatus, string, error) {
	p := ex.Operation.Target()
	token := ex.Undo

	current, err := filesystem.ComputeIdentity(rv.fsys, p)
	if err != nil {
		typ, lerr := filesystem.Lookup(rv.fsys, p)
		if lerr != nil {
			return core.RevertFailed, "", lerr
		}
		if typ != core.PathAbsent {
			return core.RevertFailed, "", core.Wrap(err, core.KindIO, "revert", p)
		}
		if token.snapshot != "" {
			if err := rv.restore(token, p); err != nil {
				return core.RevertFailed, "", err
			}
			return core.RevertSucceeded, "", nil
		}
		return core.RevertSkipped, fmt.Sprintf("%s no longer exists", p), nil
	}
	if current == nil {
		return core.RevertSkipped, fmt.Sprintf("%s was replaced by a directory after the batch ran", p), nil
	}
	if token.identity == nil {
		return core.RevertSkipped, fmt.Sprintf("%s could not be verified: no identity was recorded after the batch ran", p), nil
	}
	if !token.identity.Matches(current) {
		return core.RevertSkipped, fmt.Sprintf("%s was modified after the batch ran", p), nil
	}
	if token.prior != core.PathAbsent && token.snapshot == "" {
		e := core.Newf(core.KindNonRevertible, "%s", token.nonRevertible)
		e.Op = "revert"
		e.Path = p
		return core.RevertFailed, "", e
	}

	if err := rv.fsys.Remove(p); err != nil {
		return core.RevertFailed, "", core.Wrap(err, core.KindIO, "revert", p)
	}
	if token.snapshot != "" {
		if err := rv.restore(token, p); err != nil {
			return core.RevertFailed, "", err
		}
	}
	return core.RevertSucceeded, "", nil
}

func (rv *reverter) revertMove(ex ExecutedOperation) (core.RevertStatus, string, error) {
	src, dst := ex.Operation.Src(), ex.Operation.Dst()
	token := ex.Undo

	dstType, err := filesystem.Lookup(rv.fsys, dst)
	if err != nil {
		return core.RevertFailed, "", err
	}
	if dstType == core.PathAbsent {
		e := core.Newf(core.KindNonRevertible, "moved path %s no longer exists", dst)
		e.Op = "revert"
		e.Path = dst
		return core.RevertFailed, "", e
	}
	srcType, err := filesystem.Lookup(rv.fsys, src)
	if err != nil {
		return core.RevertFailed, "", err
	}
	if srcType != core.PathAbsent {
		e := core.Newf(core.KindNonRevertible, "original location %s is occupied", src)
		e.Op = "revert"
		e.Path = src
		return core.RevertFailed, "", e
	}

	if err := rv.fsys.Rename(dst, src); err != nil {
		return core.RevertFailed, "", core.Wrap(err, core.KindIO, "revert", dst)
	}
	if token.snapshot != "" {
		if err := rv.restore(token, dst); err != nil {
			return core.RevertFailed, "", err
		}
	} else if token.prior != core.PathAbsent {
		return core.RevertSkipped, fmt.Sprintf("moved back to %s, but the replaced %s was not recorded", src, dst), nil
	}
	return core.RevertSucceeded, "", nil
}

func (rv *reverter) revertDelete(ex ExecutedOperation) (core.RevertStatus, string, error) {
	p := ex.Operation.Path()
	token := ex.Undo

	if token.snapshot == "" {
		reason := token.nonRevertible
		if reason == "" {
			reason = "no snapshot of deleted content"
		}
		e := core.Newf(core.KindNonRevertible, "%s", reason)
		e.Op = "revert"
		e.Path = p
		return core.RevertFailed, "", e
	}
	typ, err := filesystem.Lookup(rv.fsys, p)
	if err != nil {
		return core.RevertFailed, "", err
	}
	if typ != core.PathAbsent {
		e := core.Newf(core.KindNonRevertible, "%s was recreated after the batch ran", p)
		e.Op = "revert"
		e.Path = p
		return core.RevertFailed, "", e
	}
	if err := rv.restore(token, p); err != nil {
		return core.RevertFailed, "", err
	}
	return core.RevertSucceeded, "", nil
}

// restore recreates p from the token's snapshot and frees it.
func (rv *reverter) restore(token UndoToken, p string) error {
	if rv.spool == nil {
		return core.Newf(core.KindUnavailable, "no snapshots were kept")
	}
	snap, err := rv.spool.Get(token.snapshot)
	if err != nil {
		return err
	}
	if err := filesystem.RestoreSnapshot(rv.fsys, p, snap); err != nil {
		return core.Wrap(err, core.KindIO, "restore", p)
	}
	if err := rv.spool.Drop(token.snapshot); err != nil {
		rv.logger.Debug().Err(err).Str("ref", string(token.snapshot)).Msg("failed to release snapshot")
	}
	return nil
}
