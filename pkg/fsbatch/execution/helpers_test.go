package execution_test

import (
	"context"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/execution"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
)

// faultyFS fails selected primitive calls, keyed "method:path".
type faultyFS struct {
	filesystem.FileSystem
	fail map[string]error
}

func newFaultyFS(inner filesystem.FileSystem) *faultyFS {
	return &faultyFS{FileSystem: inner, fail: make(map[string]error)}
}

func (f *faultyFS) failOn(method, path string, err error) {
	f.fail[method+":"+path] = err
}

func (f *faultyFS) check(method, path string) error {
	if err, ok := f.fail[method+":"+path]; ok {
		return &fs.PathError{Op: method, Path: path, Err: err}
	}
	return nil
}

func (f *faultyFS) Mkdir(name string, perm fs.FileMode) error {
	if err := f.check("mkdir", name); err != nil {
		return err
	}
	return f.FileSystem.Mkdir(name, perm)
}

func (f *faultyFS) CopyFile(src, dst string) error {
	if err := f.check("copy", dst); err != nil {
		return err
	}
	return f.FileSystem.CopyFile(src, dst)
}

func (f *faultyFS) Rename(oldpath, newpath string) error {
	if err := f.check("rename", oldpath); err != nil {
		return err
	}
	return f.FileSystem.Rename(oldpath, newpath)
}

func (f *faultyFS) Remove(name string) error {
	if err := f.check("remove", name); err != nil {
		return err
	}
	return f.FileSystem.Remove(name)
}

func (f *faultyFS) Symlink(target, link string) error {
	if err := f.check("symlink", link); err != nil {
		return err
	}
	return f.FileSystem.Symlink(target, link)
}

func (f *faultyFS) Open(name string) (io.ReadCloser, error) {
	if err := f.check("open", name); err != nil {
		return nil, err
	}
	return f.FileSystem.Open(name)
}

func execute(t *testing.T, fsys filesystem.FileSystem, ops []operations.Operation, opts ...execution.Option) *execution.Result {
	t.Helper()
	result, err := execution.NewEngine(fsys, opts...).Execute(context.Background(), ops)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func revert(t *testing.T, result *execution.Result, opts ...execution.Option) *execution.RevertReport {
	t.Helper()
	report, err := result.Revert(context.Background(), opts...)
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func revertStatuses(report *execution.RevertReport) []core.RevertStatus {
	out := make([]core.RevertStatus, 0, len(report.Items))
	for _, it := range report.Items {
		out = append(out, it.Status)
	}
	return out
}

func revertPositions(report *execution.RevertReport) []core.Position {
	out := make([]core.Position, 0, len(report.Items))
	for _, it := range report.Items {
		out = append(out, it.Position)
	}
	return out
}
