package execution

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/snapshot"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/validation"
)

// Engine runs operations strictly in order through a FileSystem.
type Engine struct {
	fsys filesystem.FileSystem
	opts Options
}

// NewEngine creates an engine. Options given here are the defaults for every
// Execute call.
func NewEngine(fsys filesystem.FileSystem, opts ...Option) *Engine {
	return &Engine{
		fsys: fsys,
		opts: DefaultOptions().Apply(opts...),
	}
}

// Execute runs ops in order and returns a Result describing every attempted
// operation. Per-operation failures are recorded in the Result and never
// returned as errors; an error is returned only when no Result can be built
// at all (missing filesystem, invalid policy). With ResolvePrerequisites the
// Result positions refer to the resolved sequence.
func (e *Engine) Execute(ctx context.Context, ops []operations.Operation, opts ...Option) (*Result, error) {
	if e == nil || e.fsys == nil {
		return nil, core.Newf(core.KindUnavailable, "no filesystem capability configured")
	}
	o := e.opts.Apply(opts...)
	policy, err := core.ParsePolicy(string(o.Policy))
	if err != nil {
		return nil, err
	}
	o.Policy = policy
	if o.ResolvePrerequisites {
		ops, err = validation.NewValidator(e.fsys, o.Logger).ResolvePrerequisites(ctx, ops)
		if err != nil {
			return nil, err
		}
	}

	run := &run{
		fsys:   e.fsys,
		opts:   o,
		logger: o.Logger,
	}
	if o.Snapshots {
		run.spool = snapshot.NewSpool(o.Store, o.MaxSnapshotMB)
	}

	o.Logger.Info().
		Int("operation_count", len(ops)).
		Str("policy", string(policy)).
		Bool("snapshots", o.Snapshots).
		Int("max_snapshot_mb", o.MaxSnapshotMB).
		Msg("starting execution")

	result := &Result{
		Policy:     policy,
		Operations: make([]ExecutedOperation, 0, len(ops)),
		Spool:      run.spool,
		Start:      time.Now(),
		total:      len(ops),
		fsys:       e.fsys,
		opts:       o,
	}

	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			o.Logger.Info().
				Err(err).
				Int("executed", len(result.Operations)).
				Msg("execution cancelled before next operation")
			result.Err = err
			break
		}

		executed := run.execute(ctx, core.Position(i), op)
		result.Operations = append(result.Operations, executed)

		if executed.Status == core.StatusFailed && policy == core.PolicyStop {
			o.Logger.Info().
				Str("position", executed.Position.String()).
				Int("skipped_operations", len(ops)-i-1).
				Msg("stopping after failure")
			break
		}
	}

	result.finish()

	o.Logger.Info().
		Str("status", string(result.Status)).
		Int("total_operations", len(ops)).
		Int("executed_operations", len(result.Operations)).
		Int("failed_operations", len(result.Failed())).
		Dur("total_duration", result.Duration()).
		Msg("execution completed")
	if run.spool != nil {
		o.Logger.Info().
			Int("snapshots", run.spool.Held()).
			Float64("limit_mb", run.spool.LimitMB()).
			Float64("used_mb", run.spool.UsedMB()).
			Msg("snapshot usage summary")
	}
	return result, nil
}

// run carries the state of one Execute call.
type run struct {
	fsys   filesystem.FileSystem
	opts   Options
	spool  *snapshot.Spool
	logger zerolog.Logger
}

func (r *run) publish(ctx context.Context, typ string, executed ExecutedOperation) {
	if r.opts.EventBus == nil {
		return
	}
	r.opts.EventBus.Publish(ctx, core.OperationEvent{
		Type:          typ,
		Time:          time.Now(),
		Position:      executed.Position,
		OperationType: string(executed.Operation.Kind()),
		Path:          executed.Operation.Target(),
		Duration:      executed.Duration(),
		Err:           executed.Err,
	})
}

// execute applies the per-operation protocol: re-check preconditions,
// capture the undo token, invoke the primitive, record the outcome.
func (r *run) execute(ctx context.Context, pos core.Position, op operations.Operation) ExecutedOperation {
	executed := ExecutedOperation{
		Position:  pos,
		Operation: op,
		Start:     time.Now(),
		Undo:      UndoToken{kind: op.Kind()},
	}
	r.publish(ctx, core.EventOperationStarted, executed)

	log := r.logger.With().
		Str("position", pos.String()).
		Str("op_type", string(op.Kind())).
		Str("path", op.Target()).
		Logger()
	log.Info().Msg("executing operation")

	fail := func(err error) ExecutedOperation {
		executed.End = time.Now()
		executed.Status = core.StatusFailed
		executed.Err = err
		log.Info().Err(err).Dur("duration", executed.Duration()).Msg("operation execution failed")
		r.publish(ctx, core.EventOperationFailed, executed)
		return executed
	}

	if err := r.recheck(pos, op); err != nil {
		return fail(err)
	}

	token, err := r.capture(op)
	if err != nil {
		return fail(atPosition(err, pos))
	}
	executed.Undo = token

	if err := r.primitive(op, token); err != nil {
		r.discardSnapshot(token)
		executed.Undo.snapshot = ""
		executed.Undo.snapshotMB = 0
		return fail(atPosition(err, pos))
	}

	r.complete(op, &executed.Undo)
	if !executed.Undo.Revertible() {
		log.Debug().Str("reason", executed.Undo.nonRevertible).Msg("operation will not be revertible")
	}

	executed.End = time.Now()
	executed.Status = core.StatusSuccess
	log.Info().Dur("duration", executed.Duration()).Msg("operation execution completed successfully")
	r.publish(ctx, core.EventOperationCompleted, executed)
	return executed
}

// recheck verifies requirements against the live filesystem, which may have
// changed since validation.
func (r *run) recheck(pos core.Position, op operations.Operation) error {
	for _, req := range op.Requires() {
		typ, err := filesystem.Lookup(r.fsys, req.Path)
		if err != nil {
			return atPosition(err, pos)
		}
		if !satisfied(req.Kind, typ) {
			e := core.Newf(core.KindPrecondition, "%s %s, found %s", req.Path, req.Kind, typ)
			e.Op = string(op.Kind())
			e.Path = req.Path
			return e.At(pos)
		}
	}
	return nil
}

func satisfied(kind operations.RequirementKind, typ core.PathType) bool {
	switch kind {
	case operations.MustBeDir:
		return typ == core.PathDir
	case operations.MustBeFile:
		return typ == core.PathFile
	default:
		return typ != core.PathAbsent
	}
}

// capture records what is needed to invert op, before op runs.
func (r *run) capture(op operations.Operation) (UndoToken, error) {
	token := UndoToken{kind: op.Kind()}

	prior, err := filesystem.Lookup(r.fsys, op.Target())
	if err != nil {
		return token, err
	}
	token.prior = prior

	switch op.Kind() {
	case operations.KindCreateDir:
		token.created = prior == core.PathAbsent
	case operations.KindCreateSymlink:
		token.created = prior == core.PathAbsent
		token.linkTarget = op.LinkTarget()
	case operations.KindCopy, operations.KindWriteFile, operations.KindMove:
		if prior != core.PathAbsent {
			if err := r.snapshotInto(&token, op.Target()); err != nil {
				return token, err
			}
		}
	case operations.KindDelete:
		if err := r.snapshotInto(&token, op.Path()); err != nil {
			return token, err
		}
	default:
		return token, core.Newf(core.KindInvalidOperation, "unknown operation kind %q", op.Kind())
	}
	return token, nil
}

// snapshotInto captures p into the spool. When the snapshot cannot be kept
// the operation still runs, but the token is marked non-revertible.
func (r *run) snapshotInto(token *UndoToken, p string) error {
	if !r.opts.Snapshots {
		token.nonRevertible = fmt.Sprintf("snapshots are disabled; prior content of %s is not recorded", p)
		return nil
	}

	snap, err := filesystem.TakeSnapshot(r.fsys, p)
	if err != nil {
		return core.Wrap(err, core.KindIO, "snapshot", p)
	}
	ref, err := r.spool.Keep(snap)
	if errors.Is(err, snapshot.ErrOverLimit) {
		r.logger.Warn().
			Str("path", p).
			Err(err).
			Msg("snapshot limit exceeded - operation will execute without snapshot")
		token.nonRevertible = fmt.Sprintf("snapshot of %s skipped: %v", p, err)
		return nil
	}
	if err != nil {
		r.logger.Warn().Str("path", p).Err(err).Msg("failed to store snapshot")
		token.nonRevertible = fmt.Sprintf("snapshot of %s could not be stored: %v", p, err)
		return nil
	}

	token.snapshot = ref
	token.snapshotMB = snap.SizeMB()
	r.logger.Debug().
		Str("path", p).
		Float64("snapshot_mb", snap.SizeMB()).
		Float64("remaining_mb", r.spool.RemainingMB()).
		Msg("snapshot captured")
	return nil
}

func (r *run) discardSnapshot(token UndoToken) {
	if token.snapshot == "" {
		return
	}
	if err := r.spool.Drop(token.snapshot); err != nil {
		r.logger.Debug().Err(err).Str("ref", string(token.snapshot)).Msg("failed to discard snapshot")
	}
}

// primitive invokes the filesystem call for op.
func (r *run) primitive(op operations.Operation, token UndoToken) error {
	var err error
	switch op.Kind() {
	case operations.KindCreateDir:
		switch token.prior {
		case core.PathDir:
			return nil
		case core.PathFile:
			err = &fs.PathError{Op: "mkdir", Path: op.Path(), Err: fs.ErrExist}
		default:
			err = r.fsys.Mkdir(op.Path(), op.Mode())
		}
	case operations.KindCopy:
		err = r.fsys.CopyFile(op.Src(), op.Dst())
	case operations.KindMove:
		err = r.fsys.Rename(op.Src(), op.Dst())
	case operations.KindDelete:
		if token.prior == core.PathDir {
			err = r.fsys.RemoveAll(op.Path())
		} else {
			err = r.fsys.Remove(op.Path())
		}
	case operations.KindWriteFile:
		err = r.fsys.WriteFile(op.Path(), op.Content(), op.Mode())
	case operations.KindCreateSymlink:
		err = r.fsys.Symlink(op.LinkTarget(), op.Path())
	default:
		err = fmt.Errorf("unknown operation kind %q", op.Kind())
	}
	if err != nil {
		return core.Wrap(err, core.KindIO, string(op.Kind()), op.Target())
	}
	return nil
}

// complete records post-operation identity for operations whose inverse
// must verify the target is untouched.
func (r *run) complete(op operations.Operation, token *UndoToken) {
	switch op.Kind() {
	case operations.KindCopy, operations.KindWriteFile:
		id, err := filesystem.ComputeIdentity(r.fsys, op.Target())
		if err != nil {
			r.logger.Warn().Err(err).Str("path", op.Target()).Msg("failed to record identity of written file")
			return
		}
		token.identity = id
	case operations.KindCreateDir, operations.KindCreateSymlink, operations.KindMove, operations.KindDelete:
	}
}

func atPosition(err error, pos core.Position) error {
	if e, ok := err.(*core.Error); ok {
		return e.At(pos)
	}
	return err
}
