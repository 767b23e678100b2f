package batch

import (
	"context"
	"io/fs"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/execution"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/validation"
)

// Handle identifies an appended operation. It is the operation's position.
type Handle int

// Position returns the batch position the handle refers to.
func (h Handle) Position() core.Position {
	return core.Position(h)
}

// Batch is an ordered, append-only sequence of operations executed as a unit.
// A Batch is not safe for concurrent use.
type Batch struct {
	ops    []operations.Operation
	fsys   filesystem.FileSystem
	opts   []execution.Option
	frozen bool
}

// New creates an empty batch bound to fsys. opts are applied to every
// execution and revert of the batch.
func New(fsys filesystem.FileSystem, opts ...execution.Option) *Batch {
	return &Batch{
		fsys: fsys,
		opts: opts,
	}
}

// Append adds op to the end of the batch. Malformed operations are rejected
// with core.ErrInvalidOperation; nothing touches the filesystem.
func (b *Batch) Append(op operations.Operation) (Handle, error) {
	if b.frozen {
		return -1, core.Newf(core.KindFrozen, "cannot append %s: batch has already been executed", op)
	}
	if err := op.Check(); err != nil {
		return -1, err
	}
	b.ops = append(b.ops, op)
	return Handle(len(b.ops) - 1), nil
}

// CreateDir appends a directory creation.
func (b *Batch) CreateDir(path string) (Handle, error) {
	return b.Append(operations.CreateDir(path))
}

// Copy appends a file copy.
func (b *Batch) Copy(src, dst string) (Handle, error) {
	return b.Append(operations.Copy(src, dst))
}

// Move appends a rename.
func (b *Batch) Move(src, dst string) (Handle, error) {
	return b.Append(operations.Move(src, dst))
}

// Delete appends a removal.
func (b *Batch) Delete(path string) (Handle, error) {
	return b.Append(operations.Delete(path))
}

// WriteFile appends a file write.
func (b *Batch) WriteFile(path string, content []byte, mode fs.FileMode) (Handle, error) {
	return b.Append(operations.WriteFile(path, content, mode))
}

// CreateSymlink appends a symbolic link at link pointing to target.
func (b *Batch) CreateSymlink(target, link string) (Handle, error) {
	return b.Append(operations.CreateSymlink(target, link))
}

// Operations returns a copy of the declared operations.
func (b *Batch) Operations() []operations.Operation {
	return append([]operations.Operation(nil), b.ops...)
}

// Operation returns the operation a handle refers to.
func (b *Batch) Operation(h Handle) (operations.Operation, bool) {
	if int(h) < 0 || int(h) >= len(b.ops) {
		return operations.Operation{}, false
	}
	return b.ops[h], true
}

// Len returns the number of operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Frozen reports whether the batch has been executed.
func (b *Batch) Frozen() bool {
	return b.frozen
}

func (b *Batch) options(extra ...execution.Option) execution.Options {
	all := append(append([]execution.Option(nil), b.opts...), extra...)
	return execution.DefaultOptions().Apply(all...)
}

// Validate checks the batch against the current filesystem without mutating
// it. Violations are returned in the report; an error means the filesystem
// could not be queried. When the batch resolves prerequisites, the report
// positions refer to the resolved sequence, as Execute would run it.
func (b *Batch) Validate(ctx context.Context) (*validation.Report, error) {
	if b.fsys == nil {
		return nil, core.Newf(core.KindUnavailable, "no filesystem capability configured")
	}
	o := b.options()
	v := validation.NewValidator(b.fsys, o.Logger)
	ops := b.ops
	if o.ResolvePrerequisites {
		var err error
		if ops, err = v.ResolvePrerequisites(ctx, ops); err != nil {
			return nil, err
		}
	}
	return v.Validate(ctx, ops)
}

// Execute runs the batch and freezes it. Per-operation failures are recorded
// in the Result; see execution.Engine.Execute.
func (b *Batch) Execute(ctx context.Context, opts ...execution.Option) (*execution.Result, error) {
	if b.fsys == nil {
		return nil, core.Newf(core.KindUnavailable, "no filesystem capability configured")
	}
	b.frozen = true
	engine := execution.NewEngine(b.fsys, b.opts...)
	return engine.Execute(ctx, b.ops, opts...)
}

// WithPrerequisites returns a new, unfrozen batch in which every operation
// whose parent directory would be missing is preceded by the CreateDir
// operations it needs.
func (b *Batch) WithPrerequisites(ctx context.Context) (*Batch, error) {
	if b.fsys == nil {
		return nil, core.Newf(core.KindUnavailable, "no filesystem capability configured")
	}
	o := b.options()
	ops, err := validation.NewValidator(b.fsys, o.Logger).ResolvePrerequisites(ctx, b.ops)
	if err != nil {
		return nil, err
	}
	next := New(b.fsys, b.opts...)
	next.ops = ops
	return next, nil
}

// Reordered returns a new, unfrozen batch holding the operations in order,
// typically validation.Report.SuggestedOrder. order must be a permutation of
// the batch positions.
func (b *Batch) Reordered(order []int) (*Batch, error) {
	if len(order) != len(b.ops) {
		return nil, core.Newf(core.KindInvalidOperation, "order has %d positions, batch has %d operations", len(order), len(b.ops))
	}
	seen := make([]bool, len(b.ops))
	next := New(b.fsys, b.opts...)
	for _, idx := range order {
		if idx < 0 || idx >= len(b.ops) || seen[idx] {
			return nil, core.Newf(core.KindInvalidOperation, "order is not a permutation: position %d", idx)
		}
		seen[idx] = true
		next.ops = append(next.ops, b.ops[idx])
	}
	return next, nil
}
