package validation

import (
	"context"
	"path"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
)

// ResolvePrerequisites returns ops with a CreateDir inserted ahead of every
// operation whose parent directory would be missing at that point of the
// batch, outermost directory first. Parents occupied by a file are left
// alone for Validate to report. ops is not modified.
func (v *Validator) ResolvePrerequisites(ctx context.Context, ops []operations.Operation) ([]operations.Operation, error) {
	proj := newProjection(v.fsys)
	out := make([]operations.Operation, 0, len(ops))

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, req := range op.Requires() {
			if req.Kind != operations.MustBeDir {
				continue
			}
			missing, err := missingDirs(proj, req.Path)
			if err != nil {
				return nil, err
			}
			for _, dir := range missing {
				mkdir := operations.CreateDir(dir)
				out = append(out, mkdir)
				if err := proj.apply(mkdir); err != nil {
					return nil, err
				}
				v.logger.Debug().
					Str("path", dir).
					Str("required_by", op.String()).
					Msg("inserted parent directory")
			}
		}
		out = append(out, op)
		if err := proj.apply(op); err != nil {
			return nil, err
		}
	}

	if added := len(out) - len(ops); added > 0 {
		v.logger.Info().
			Int("operations", len(ops)).
			Int("inserted_directories", added).
			Msg("prerequisites resolved")
	}
	return out, nil
}

// missingDirs lists dir and its ancestors up to the first existing one,
// outermost first. It returns nil when that ancestor is not a directory.
func missingDirs(proj *projection, dir string) ([]string, error) {
	var missing []string
	for p := path.Clean(dir); !filesystem.IsRoot(p); p = path.Dir(p) {
		state, err := proj.lookup(p)
		if err != nil {
			return nil, err
		}
		if state.exists() {
			if !state.assumed && state.typ != core.PathDir {
				return nil, nil
			}
			break
		}
		missing = append(missing, p)
	}
	for i, j := 0, len(missing)-1; i < j; i, j = i+1, j-1 {
		missing[i], missing[j] = missing[j], missing[i]
	}
	return missing, nil
}
