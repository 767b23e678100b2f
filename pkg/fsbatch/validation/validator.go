package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/gammazero/toposort"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
)

// ViolationType distinguishes missing requirements from conflicting targets.
type ViolationType string

const (
	// ViolationUnmet is a required path that is missing or of the wrong type.
	ViolationUnmet ViolationType = "unmet_requirement"
	// ViolationConflict is a target path already occupied by an incompatible object.
	ViolationConflict ViolationType = "conflict"
)

// Violation names the offending operation by position and what is wrong.
type Violation struct {
	Position    core.Position
	Operation   operations.Operation
	Type        ViolationType
	Requirement operations.Requirement
	Reason      string
}

// Error renders the violation as a core.KindValidation error.
func (v Violation) Error() error {
	e := core.Newf(core.KindValidation, "%s", v.Reason)
	e.Op = string(v.Operation.Kind())
	e.Path = v.Requirement.Path
	return e.At(v.Position)
}

// String returns a human-readable description.
func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Position, v.Operation, v.Reason)
}

// Report is the outcome of validating a batch. It is a snapshot of the
// filesystem at validation time, not a guarantee for execution time.
type Report struct {
	Violations []Violation
	// SuggestedOrder is a permutation of positions under which the batch
	// validates cleanly. It is only set when the violations are purely a
	// matter of ordering.
	SuggestedOrder []int
}

// OK reports whether there are no violations.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// At returns the violations of the operation at pos.
func (r *Report) At(pos core.Position) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Position == pos {
			out = append(out, v)
		}
	}
	return out
}

// Err combines all violations into one error, or returns nil when OK.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	lines := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		lines = append(lines, v.String())
	}
	return core.Newf(core.KindValidation, "%d violation(s):\n  %s", len(r.Violations), strings.Join(lines, "\n  "))
}

// Validator checks a sequence of operations against the filesystem without
// mutating it.
type Validator struct {
	fsys   filesystem.ReadFS
	logger zerolog.Logger
}

// NewValidator creates a validator reading from fsys.
func NewValidator(fsys filesystem.ReadFS, logger zerolog.Logger) *Validator {
	return &Validator{fsys: fsys, logger: logger}
}

// Validate walks ops in order and collects every violation. A requirement is
// met if the filesystem satisfies it or an earlier operation produces it; an
// unmet requirement is recorded and then assumed to hold so that later
// operations are still checked. Only filesystem query failures are returned
// as errors.
func (v *Validator) Validate(ctx context.Context, ops []operations.Operation) (*Report, error) {
	report, err := v.check(ctx, ops)
	if err != nil {
		return nil, err
	}
	if !report.OK() {
		report.SuggestedOrder = v.suggestOrder(ctx, ops, report)
	}

	v.logger.Debug().
		Int("operations", len(ops)).
		Int("violations", len(report.Violations)).
		Bool("reorder_suggested", report.SuggestedOrder != nil).
		Msg("batch validated")
	return report, nil
}

func (v *Validator) check(ctx context.Context, ops []operations.Operation) (*Report, error) {
	proj := newProjection(v.fsys)
	report := &Report{}

	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pos := core.Position(i)
		add := func(typ ViolationType, req operations.Requirement, reason string) {
			report.Violations = append(report.Violations, Violation{
				Position:    pos,
				Operation:   op,
				Type:        typ,
				Requirement: req,
				Reason:      reason,
			})
			v.logger.Debug().
				Str("position", pos.String()).
				Str("operation", op.String()).
				Str("reason", reason).
				Msg("validation violation")
		}

		for _, req := range op.Requires() {
			state, err := proj.lookup(req.Path)
			if err != nil {
				return nil, err
			}
			if state.satisfies(req.Kind) {
				continue
			}
			if state.exists() {
				add(ViolationUnmet, req, fmt.Sprintf("%s %s, found %s", req.Path, req.Kind, state.typ))
				continue
			}
			add(ViolationUnmet, req, fmt.Sprintf("%s %s, but it does not exist", req.Path, req.Kind))
			proj.assume(req.Path)
		}

		reason, err := v.conflict(proj, op)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			add(ViolationConflict, operations.Requirement{Path: op.Target()}, reason)
		}

		if err := proj.apply(op); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// conflict checks the target of op against its projected occupant.
func (v *Validator) conflict(proj *projection, op operations.Operation) (string, error) {
	switch op.Kind() {
	case operations.KindCreateDir:
		state, err := proj.lookup(op.Path())
		if err != nil {
			return "", err
		}
		if !state.assumed && state.typ == core.PathFile {
			return fmt.Sprintf("%s already exists and is a file", op.Path()), nil
		}
	case operations.KindCopy, operations.KindMove, operations.KindWriteFile:
		state, err := proj.lookup(op.Target())
		if err != nil {
			return "", err
		}
		if !state.assumed && state.typ == core.PathDir {
			return fmt.Sprintf("destination %s is an existing directory", op.Target()), nil
		}
	case operations.KindCreateSymlink:
		state, err := proj.lookup(op.Path())
		if err != nil {
			return "", err
		}
		if !state.assumed && state.typ != core.PathAbsent {
			return fmt.Sprintf("%s already exists", op.Path()), nil
		}
	case operations.KindDelete:
	}
	return "", nil
}

// suggestOrder derives producer-before-consumer edges and orders the batch
// topologically. The proposal is kept only if it validates cleanly.
func (v *Validator) suggestOrder(ctx context.Context, ops []operations.Operation, report *Report) []int {
	for _, viol := range report.Violations {
		if viol.Type != ViolationUnmet {
			return nil
		}
	}

	var edges []toposort.Edge
	seenEdge := make(map[[2]int]bool)
	addEdge := func(from, to int) {
		if !seenEdge[[2]int{from, to}] {
			seenEdge[[2]int{from, to}] = true
			edges = append(edges, toposort.Edge{from, to})
		}
	}
	for i, consumer := range ops {
		for _, req := range consumer.Requires() {
			for j, other := range ops {
				if i == j {
					continue
				}
				for _, p := range other.Produces() {
					if p == req.Path {
						addEdge(j, i)
					}
				}
				for _, p := range other.Removes() {
					if operations.IsWithin(req.Path, p) {
						addEdge(i, j)
					}
				}
			}
		}
	}
	if len(edges) == 0 {
		return nil
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		v.logger.Debug().Err(err).Msg("no reorder possible: circular dependency")
		return nil
	}

	order := make([]int, 0, len(ops))
	seen := make(map[int]bool, len(ops))
	for _, n := range sorted {
		idx, ok := n.(int)
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}
	for i := range ops {
		if !seen[i] {
			order = append(order, i)
		}
	}

	reordered := make([]operations.Operation, len(order))
	for k, idx := range order {
		reordered[k] = ops[idx]
	}
	again, err := v.check(ctx, reordered)
	if err != nil || !again.OK() {
		return nil
	}
	return order
}
