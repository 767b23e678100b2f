package execution

import (
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/snapshot"
)

// UndoToken is the pre-state captured before an operation mutated the
// filesystem. It is opaque to callers; the accessors exist for reporting.
type UndoToken struct {
	kind operations.Kind

	// created is true when CreateDir or CreateSymlink made a new entry.
	created bool
	// linkTarget is what a created symlink points at.
	linkTarget string
	// prior is what occupied the target before the operation.
	prior core.PathType
	// snapshot holds the replaced or deleted content, if captured.
	snapshot   snapshot.Ref
	snapshotMB float64
	// identity is the target file right after Copy or WriteFile.
	identity *filesystem.Identity
	// nonRevertible explains why the prior state cannot be restored.
	nonRevertible string
}

// Kind returns the kind of operation the token belongs to.
func (t UndoToken) Kind() operations.Kind { return t.kind }

// Created reports whether a CreateDir or CreateSymlink made a new entry.
func (t UndoToken) Created() bool { return t.created }

// Prior returns what occupied the target path before the operation.
func (t UndoToken) Prior() core.PathType { return t.prior }

// HasSnapshot reports whether replaced or deleted content was captured.
func (t UndoToken) HasSnapshot() bool { return t.snapshot != "" }

// SnapshotMB is the size charged against the snapshot limit.
func (t UndoToken) SnapshotMB() float64 { return t.snapshotMB }

// Revertible reports whether revert can restore the prior state.
func (t UndoToken) Revertible() bool { return t.nonRevertible == "" }

// NonRevertibleReason explains why Revertible is false.
func (t UndoToken) NonRevertibleReason() string { return t.nonRevertible }
