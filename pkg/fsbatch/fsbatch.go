// Package fsbatch describes filesystem mutations as data, validates them
// against the filesystem, executes them as a unit and reverts them
// afterwards.
//
//	fsys := fsbatch.NewOSFileSystem("/srv/app")
//	b := fsbatch.NewBatch(fsys, fsbatch.WithSnapshots(true))
//	b.CreateDir("code")
//	b.Copy("config.yaml", "code/config.yaml.bak")
//	b.Move("logs", "/tmp/logs")
//
//	report, err := b.Validate(ctx)
//	...
//	result, err := b.Execute(ctx)
//	...
//	if !result.Success() {
//		revert, _ := result.Revert(ctx)
//	}
//	result.Discard()
//
// The subpackages hold the pieces; this package re-exports what most callers
// need.
package fsbatch

import (
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/batch"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/execution"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/validation"
)

type (
	Batch        = batch.Batch
	Handle       = batch.Handle
	Operation    = operations.Operation
	FileSystem   = filesystem.FileSystem
	Report       = validation.Report
	Violation    = validation.Violation
	Result       = execution.Result
	RevertReport = execution.RevertReport
	Option       = execution.Option
	Policy       = core.Policy
	Error        = core.Error
)

// Failure policies.
const (
	Stop     = core.PolicyStop
	Continue = core.PolicyContinue
)

// Sentinel errors for errors.Is.
var (
	ErrValidation        = core.ErrValidation
	ErrIO                = core.ErrIO
	ErrPreconditionUnmet = core.ErrPreconditionUnmet
	ErrNonRevertible     = core.ErrNonRevertible
	ErrInvalidOperation  = core.ErrInvalidOperation
	ErrBatchFrozen       = core.ErrBatchFrozen
	ErrAlreadyReverted   = core.ErrAlreadyReverted
	ErrUnavailable       = core.ErrUnavailable
)

// Operation constructors.
var (
	CreateDir     = operations.CreateDir
	CreateDirMode = operations.CreateDirMode
	Copy          = operations.Copy
	Move          = operations.Move
	Delete        = operations.Delete
	WriteFile     = operations.WriteFile
	CreateSymlink = operations.CreateSymlink
)

// Execution options.
var (
	WithPolicy        = execution.WithPolicy
	WithRevertPolicy  = execution.WithRevertPolicy
	WithSnapshots     = execution.WithSnapshots
	WithMaxSnapshotMB = execution.WithMaxSnapshotMB
	WithStore         = execution.WithStore
	WithLogger        = execution.WithLogger
	WithEventBus      = execution.WithEventBus

	WithResolvePrerequisites = execution.WithResolvePrerequisites
)

// NewBatch creates an empty batch bound to fsys.
func NewBatch(fsys FileSystem, opts ...Option) *Batch {
	return batch.New(fsys, opts...)
}

// NewOSFileSystem returns the host filesystem rooted at root.
func NewOSFileSystem(root string) *filesystem.OSFileSystem {
	return filesystem.NewOSFileSystem(root)
}

// NewMemFileSystem returns an empty in-memory filesystem.
func NewMemFileSystem() *filesystem.BillyFileSystem {
	return filesystem.NewMemFileSystem()
}
