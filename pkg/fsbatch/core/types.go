package core

import (
	"fmt"
	"strings"
)

// Position is the zero-based index of an operation inside a batch.
// Results and reports refer to operations by position only.
type Position int

// String returns the position in the "#n" form used by logs and reports.
func (p Position) String() string {
	return fmt.Sprintf("#%d", int(p))
}

// OperationStatus indicates the outcome of an individual operation's execution
type OperationStatus string

const (
	// StatusSuccess indicates the operation completed successfully
	StatusSuccess OperationStatus = "success"
	// StatusFailed indicates the operation failed, either on a precondition
	// re-check or inside the filesystem primitive
	StatusFailed OperationStatus = "failed"
)

// BatchStatus is the overall status of an executed batch.
type BatchStatus string

const (
	// BatchSuccess means every operation of the batch ran and succeeded.
	BatchSuccess BatchStatus = "success"
	// BatchPartialFailure means at least one operation failed or never ran.
	BatchPartialFailure BatchStatus = "partial_failure"
)

// RevertStatus is the outcome of reverting one executed operation.
type RevertStatus string

const (
	// RevertSucceeded means the inverse was applied.
	RevertSucceeded RevertStatus = "reverted"
	// RevertFailed means the inverse was attempted, or was impossible, and the
	// prior state was not restored.
	RevertFailed RevertStatus = "revert_failed"
	// RevertSkipped means there was nothing to undo, or undoing it would
	// destroy data that appeared after the batch ran.
	RevertSkipped RevertStatus = "revert_skipped"
)

// Policy decides what happens after an operation fails.
type Policy string

const (
	// PolicyStop aborts the remaining operations after the first failure.
	PolicyStop Policy = "stop"
	// PolicyContinue attempts every operation regardless of earlier failures.
	PolicyContinue Policy = "continue"
)

// DefaultPolicy is used when no policy is given.
const DefaultPolicy = PolicyStop

// ParsePolicy converts a configuration string to a Policy.
// The empty string yields DefaultPolicy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultPolicy, nil
	case PolicyStop:
		return PolicyStop, nil
	case PolicyContinue:
		return PolicyContinue, nil
	default:
		return "", Newf(KindInvalidOperation, "unknown failure policy %q", s)
	}
}

// PathType classifies a filesystem object in projected or observed state.
type PathType int

const (
	// PathAbsent represents a path that does not exist
	PathAbsent PathType = iota
	// PathFile represents a regular file (or anything that is not a directory)
	PathFile
	// PathDir represents a directory
	PathDir
)

// String returns the string representation of the PathType
func (t PathType) String() string {
	switch t {
	case PathFile:
		return "file"
	case PathDir:
		return "directory"
	default:
		return "absent"
	}
}

// Default values
const (
	// DefaultMaxSnapshotMB is the default snapshot budget for a single execution
	DefaultMaxSnapshotMB = 10
)
