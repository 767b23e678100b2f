package filesystem

import (
	"errors"
	"io/fs"
	"path"
	"syscall"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
)

// Lookup reports what currently lives at name, following symbolic links. A
// dangling link is reported as a file. A missing path is not an error; any
// other stat failure is returned as a core.KindIO error.
func Lookup(fsys ReadFS, name string) (core.PathType, error) {
	if IsRoot(name) {
		return core.PathDir, nil
	}
	info, err := fsys.Stat(name)
	if err != nil {
		if !notExist(err) {
			return core.PathAbsent, core.Wrap(err, core.KindIO, "stat", name)
		}
		if _, lerr := fsys.Lstat(name); lerr == nil {
			return core.PathFile, nil
		}
		return core.PathAbsent, nil
	}
	if info.IsDir() {
		return core.PathDir, nil
	}
	return core.PathFile, nil
}

func notExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// LinkTarget returns what the symbolic link at name points at. ok is false
// when name is missing or is not a link.
func LinkTarget(fsys ReadFS, name string) (target string, ok bool, err error) {
	info, err := fsys.Lstat(name)
	if err != nil {
		if notExist(err) {
			return "", false, nil
		}
		return "", false, core.Wrap(err, core.KindIO, "lstat", name)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return "", false, nil
	}
	target, err = fsys.Readlink(name)
	if err != nil {
		return "", false, core.Wrap(err, core.KindIO, "readlink", name)
	}
	return target, true, nil
}

// Exists reports whether name exists.
func Exists(fsys ReadFS, name string) (bool, error) {
	t, err := Lookup(fsys, name)
	return t != core.PathAbsent, err
}

// IsDir reports whether name exists and is a directory.
func IsDir(fsys ReadFS, name string) (bool, error) {
	t, err := Lookup(fsys, name)
	return t == core.PathDir, err
}

// IsEmptyDir reports whether name is a directory with no entries.
func IsEmptyDir(fsys ReadFS, name string) (bool, error) {
	entries, err := fsys.ReadDir(name)
	if err != nil {
		return false, core.Wrap(err, core.KindIO, "readdir", name)
	}
	return len(entries) == 0, nil
}

// IsRoot reports whether name is the current or root directory, which are
// always assumed to exist.
func IsRoot(name string) bool {
	c := path.Clean(name)
	return c == "." || c == "/"
}
