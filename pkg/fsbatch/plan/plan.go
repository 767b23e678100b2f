// Package plan reads and writes declarative batch descriptions.
//
// A plan lists steps in execution order:
//
//	description: set up workspace
//	operations:
//	  - op: create_dir
//	    path: code
//	  - op: copy
//	    src: config.yaml
//	    dst: code/config.yaml.bak
//	  - op: create_symlink
//	    path: code/current.yaml
//	    target: config.yaml.bak
//
// The same structure is accepted as TOML ([[operations]] tables) and HCL
// (step "create_dir" { path = "code" } blocks).
package plan

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/batch"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
)

// CurrentVersion is written into new plans.
const CurrentVersion = "1"

// Plan is a serializable batch.
type Plan struct {
	Description string `yaml:"description,omitempty" toml:"description,omitempty"`
	Version     string `yaml:"version,omitempty" toml:"version,omitempty"`
	CreatedAt   string `yaml:"created_at,omitempty" toml:"created_at,omitempty"`
	Operations  []Step `yaml:"operations" toml:"operations"`
}

// Step is one operation in a plan. Fields not used by Op are left empty.
type Step struct {
	Op      string `yaml:"op" toml:"op"`
	Path    string `yaml:"path,omitempty" toml:"path,omitempty"`
	Src     string `yaml:"src,omitempty" toml:"src,omitempty"`
	Dst     string `yaml:"dst,omitempty" toml:"dst,omitempty"`
	Content string `yaml:"content,omitempty" toml:"content,omitempty"`
	// Target is what a create_symlink step points at.
	Target string `yaml:"target,omitempty" toml:"target,omitempty"`
	// Mode is an octal permission string such as "0755".
	Mode string `yaml:"mode,omitempty" toml:"mode,omitempty"`
}

// New creates an empty plan.
func New(description string) *Plan {
	return &Plan{
		Description: description,
		Version:     CurrentVersion,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Operations:  []Step{},
	}
}

// FromOperations describes ops as a plan.
func FromOperations(description string, ops []operations.Operation) *Plan {
	p := New(description)
	for _, op := range ops {
		p.Operations = append(p.Operations, StepFor(op))
	}
	return p
}

// StepFor converts an operation to its plan form.
func StepFor(op operations.Operation) Step {
	step := Step{Op: string(op.Kind())}
	switch op.Kind() {
	case operations.KindCopy, operations.KindMove:
		step.Src, step.Dst = op.Src(), op.Dst()
	case operations.KindCreateDir:
		step.Path = op.Path()
		if op.Mode() != operations.DefaultDirMode {
			step.Mode = formatMode(op.Mode())
		}
	case operations.KindWriteFile:
		step.Path = op.Path()
		step.Content = string(op.Content())
		if op.Mode() != operations.DefaultFileMode {
			step.Mode = formatMode(op.Mode())
		}
	case operations.KindDelete:
		step.Path = op.Path()
	case operations.KindCreateSymlink:
		step.Path, step.Target = op.Path(), op.LinkTarget()
	}
	return step
}

func formatMode(m fs.FileMode) string {
	return fmt.Sprintf("%04o", uint32(m.Perm()))
}

// parseMode returns 0 for an unset mode. An explicit mode without any
// permission bits is rejected rather than mistaken for unset.
func parseMode(s string) (fs.FileMode, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil {
		return 0, core.Newf(core.KindInvalidOperation, "invalid mode %q: must be octal", s)
	}
	mode := fs.FileMode(v).Perm()
	if mode == 0 {
		return 0, core.Newf(core.KindInvalidOperation, "invalid mode %q: no permission bits set", s)
	}
	return mode, nil
}

// Operation converts the step to an operation. Fields that do not belong to
// the step's kind are rejected so that typos do not go unnoticed.
func (s Step) Operation() (operations.Operation, error) {
	kind, err := operations.ParseKind(s.Op)
	if err != nil {
		return operations.Operation{}, err
	}
	mode, err := parseMode(s.Mode)
	if err != nil {
		return operations.Operation{}, err
	}

	unexpected := func(fields ...string) error {
		return core.Newf(core.KindInvalidOperation, "%s does not take %s", kind, strings.Join(fields, ", "))
	}

	var op operations.Operation
	if s.Target != "" && kind != operations.KindCreateSymlink {
		return op, unexpected("target")
	}
	switch kind {
	case operations.KindCreateDir:
		if s.Src != "" || s.Dst != "" || s.Content != "" {
			return op, unexpected("src", "dst", "content")
		}
		op = operations.CreateDir(s.Path)
		if mode != 0 {
			op = operations.CreateDirMode(s.Path, mode)
		}
	case operations.KindCopy, operations.KindMove:
		if s.Path != "" || s.Content != "" || s.Mode != "" {
			return op, unexpected("path", "content", "mode")
		}
		if kind == operations.KindCopy {
			op = operations.Copy(s.Src, s.Dst)
		} else {
			op = operations.Move(s.Src, s.Dst)
		}
	case operations.KindDelete:
		if s.Src != "" || s.Dst != "" || s.Content != "" || s.Mode != "" {
			return op, unexpected("src", "dst", "content", "mode")
		}
		op = operations.Delete(s.Path)
	case operations.KindWriteFile:
		if s.Src != "" || s.Dst != "" {
			return op, unexpected("src", "dst")
		}
		op = operations.WriteFile(s.Path, []byte(s.Content), mode)
	case operations.KindCreateSymlink:
		if s.Src != "" || s.Dst != "" || s.Content != "" || s.Mode != "" {
			return op, unexpected("src", "dst", "content", "mode")
		}
		op = operations.CreateSymlink(s.Target, s.Path)
	}
	return op, op.Check()
}

// ToOperations converts every step, reporting the first invalid one.
func (p *Plan) ToOperations() ([]operations.Operation, error) {
	ops := make([]operations.Operation, 0, len(p.Operations))
	for i, step := range p.Operations {
		op, err := step.Operation()
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// Build appends every step to b in order.
func (p *Plan) Build(b *batch.Batch) ([]batch.Handle, error) {
	ops, err := p.ToOperations()
	if err != nil {
		return nil, err
	}
	handles := make([]batch.Handle, 0, len(ops))
	for i, op := range ops {
		h, err := b.Append(op)
		if err != nil {
			return handles, fmt.Errorf("step %d (%s): %w", i+1, op, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}
