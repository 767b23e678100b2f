package validation

import (
	"path"
	"strings"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
)

// pathState is the projected state of one path.
type pathState struct {
	typ core.PathType
	// assumed marks a path that was required but missing; validation
	// continues as if it will appear, with an unknown type.
	assumed bool
}

func (s pathState) exists() bool {
	return s.assumed || s.typ != core.PathAbsent
}

func (s pathState) satisfies(kind operations.RequirementKind) bool {
	if s.assumed {
		return true
	}
	switch kind {
	case operations.MustBeDir:
		return s.typ == core.PathDir
	case operations.MustBeFile:
		return s.typ == core.PathFile
	default:
		return s.typ != core.PathAbsent
	}
}

// mark records the effect of one operation on one path. Marks are appended
// in batch order and never rewritten.
type mark struct {
	path  string
	state pathState
	// origin is set on a move destination: paths below it are looked up
	// below origin as of the time of the move.
	origin string
}

// projection answers "what will be at this path at this point of the batch"
// by replaying marks backwards and falling back to the real filesystem.
type projection struct {
	fsys     filesystem.ReadFS
	marks    []mark
	observed map[string]core.PathType
}

func newProjection(fsys filesystem.ReadFS) *projection {
	return &projection{
		fsys:     fsys,
		observed: make(map[string]core.PathType),
	}
}

func (p *projection) lookup(name string) (pathState, error) {
	return p.lookupBefore(path.Clean(name), len(p.marks))
}

func (p *projection) lookupBefore(name string, end int) (pathState, error) {
	for i := end - 1; i >= 0; i-- {
		m := p.marks[i]
		if m.path == name {
			return m.state, nil
		}
		if !operations.IsWithin(name, m.path) {
			continue
		}
		// m is an ancestor of name.
		switch {
		case m.origin != "":
			return p.lookupBefore(path.Join(m.origin, relativeTo(name, m.path)), i)
		case m.state.assumed:
			return pathState{assumed: true}, nil
		default:
			// Removed, or freshly created by the batch and therefore empty.
			return pathState{typ: core.PathAbsent}, nil
		}
	}
	return p.observe(name)
}

// observe queries the filesystem once per path.
func (p *projection) observe(name string) (pathState, error) {
	if t, ok := p.observed[name]; ok {
		return pathState{typ: t}, nil
	}
	t, err := filesystem.Lookup(p.fsys, name)
	if err != nil {
		return pathState{}, err
	}
	p.observed[name] = t
	return pathState{typ: t}, nil
}

func (p *projection) set(name string, state pathState) {
	p.marks = append(p.marks, mark{path: path.Clean(name), state: state})
}

func (p *projection) assume(name string) {
	p.set(name, pathState{assumed: true})
}

// apply records what op will do. The projected state before op is used to
// carry a moved path's type and to keep existing directories intact.
func (p *projection) apply(op operations.Operation) error {
	switch op.Kind() {
	case operations.KindCreateDir:
		cur, err := p.lookup(op.Path())
		if err != nil {
			return err
		}
		if cur.typ != core.PathDir || cur.assumed {
			p.set(op.Path(), pathState{typ: core.PathDir})
		}
	case operations.KindCopy:
		p.set(op.Dst(), pathState{typ: core.PathFile})
	case operations.KindWriteFile, operations.KindCreateSymlink:
		p.set(op.Path(), pathState{typ: core.PathFile})
	case operations.KindMove:
		src, err := p.lookup(op.Src())
		if err != nil {
			return err
		}
		// The destination mark goes first so that resolving paths below it
		// through origin does not see the source's removal.
		m := mark{path: path.Clean(op.Dst()), state: src}
		if src.typ == core.PathDir || src.assumed {
			m.origin = path.Clean(op.Src())
		}
		if !src.exists() {
			m.state = pathState{assumed: true}
		}
		p.marks = append(p.marks, m)
		p.set(op.Src(), pathState{typ: core.PathAbsent})
	case operations.KindDelete:
		p.set(op.Path(), pathState{typ: core.PathAbsent})
	}
	return nil
}

func relativeTo(name, base string) string {
	if base == "/" {
		return strings.TrimPrefix(name, "/")
	}
	if base == "." {
		return name
	}
	return strings.TrimPrefix(name, base+"/")
}
