package filesystem

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// OSFileSystem implements FileSystem on top of the host filesystem.
//
// With a non-empty root every path, relative or absolute, is resolved inside
// root and cannot escape it. With an empty root paths are used as given.
type OSFileSystem struct {
	root string
}

// NewOSFileSystem creates a new OS-based filesystem rooted at the given path
func NewOSFileSystem(root string) *OSFileSystem {
	return &OSFileSystem{root: root}
}

// Root returns the directory paths are resolved in.
func (osfs *OSFileSystem) Root() string {
	return osfs.root
}

func (osfs *OSFileSystem) resolve(name string) string {
	if osfs.root == "" {
		return filepath.FromSlash(name)
	}
	return filepath.Join(osfs.root, filepath.FromSlash(path.Clean("/"+name)))
}

// Stat implements ReadFS
func (osfs *OSFileSystem) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(osfs.resolve(name))
}

// Lstat implements ReadFS
func (osfs *OSFileSystem) Lstat(name string) (fs.FileInfo, error) {
	return os.Lstat(osfs.resolve(name))
}

// Readlink implements ReadFS
func (osfs *OSFileSystem) Readlink(name string) (string, error) {
	return os.Readlink(osfs.resolve(name))
}

// Open implements ReadFS
func (osfs *OSFileSystem) Open(name string) (io.ReadCloser, error) {
	return os.Open(osfs.resolve(name))
}

// ReadFile implements ReadFS
func (osfs *OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(osfs.resolve(name))
}

// ReadDir implements ReadFS
func (osfs *OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(osfs.resolve(name))
}

// Mkdir implements WriteFS
func (osfs *OSFileSystem) Mkdir(name string, perm fs.FileMode) error {
	return os.Mkdir(osfs.resolve(name), perm)
}

// WriteFile implements WriteFS
func (osfs *OSFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(osfs.resolve(name), data, perm)
}

// CopyFile implements WriteFS. The destination is truncated if it exists and
// receives the source's permission bits.
func (osfs *OSFileSystem) CopyFile(src, dst string) (err error) {
	in, err := os.Open(osfs.resolve(src))
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &fs.PathError{Op: "copy", Path: src, Err: fmt.Errorf("source is a directory")}
	}

	out, err := os.OpenFile(osfs.resolve(dst), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Chmod(info.Mode().Perm())
}

// Rename implements WriteFS
func (osfs *OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(osfs.resolve(oldpath), osfs.resolve(newpath))
}

// Remove implements WriteFS
func (osfs *OSFileSystem) Remove(name string) error {
	return os.Remove(osfs.resolve(name))
}

// RemoveAll implements WriteFS
func (osfs *OSFileSystem) RemoveAll(name string) error {
	return os.RemoveAll(osfs.resolve(name))
}

// Symlink implements WriteFS. Absolute targets are not confined to root.
func (osfs *OSFileSystem) Symlink(target, link string) error {
	return os.Symlink(target, osfs.resolve(link))
}
