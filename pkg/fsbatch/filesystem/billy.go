package filesystem

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// BillyFileSystem adapts a billy.Filesystem to FileSystem.
//
// billy implementations differ in how forgiving they are (memfs creates
// missing parents on write, for example), so the adapter enforces the
// POSIX-like semantics the engine relies on: Mkdir, WriteFile, CopyFile,
// Rename and Symlink fail when the parent directory is missing, and Mkdir
// and Symlink fail when the path exists.
type BillyFileSystem struct {
	fs billy.Filesystem
}

// NewBillyFileSystem wraps an existing billy filesystem.
func NewBillyFileSystem(bfs billy.Filesystem) *BillyFileSystem {
	return &BillyFileSystem{fs: bfs}
}

// NewMemFileSystem returns an empty in-memory filesystem.
func NewMemFileSystem() *BillyFileSystem {
	return NewBillyFileSystem(memfs.New())
}

// NewChrootFileSystem returns a billy osfs filesystem confined to dir.
func NewChrootFileSystem(dir string) *BillyFileSystem {
	return NewBillyFileSystem(osfs.New(dir, osfs.WithChrootOS()))
}

// Underlying returns the wrapped billy filesystem.
func (b *BillyFileSystem) Underlying() billy.Filesystem {
	return b.fs
}

// clean maps every path to an absolute slash path so that "a" and "/a"
// address the same entry in every billy backend.
func clean(name string) string {
	return path.Clean("/" + name)
}

func (b *BillyFileSystem) requireParent(op, name string) error {
	parent := path.Dir(name)
	if parent == "/" {
		return nil
	}
	info, err := b.fs.Stat(parent)
	if err != nil {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	if !info.IsDir() {
		return &fs.PathError{Op: op, Path: name, Err: fmt.Errorf("parent %s is not a directory", parent)}
	}
	return nil
}

// Stat implements ReadFS
func (b *BillyFileSystem) Stat(name string) (fs.FileInfo, error) {
	return b.fs.Stat(clean(name))
}

// Lstat implements ReadFS
func (b *BillyFileSystem) Lstat(name string) (fs.FileInfo, error) {
	return b.fs.Lstat(clean(name))
}

// Readlink implements ReadFS
func (b *BillyFileSystem) Readlink(name string) (string, error) {
	return b.fs.Readlink(clean(name))
}

// Open implements ReadFS
func (b *BillyFileSystem) Open(name string) (io.ReadCloser, error) {
	return b.fs.Open(clean(name))
}

// ReadFile implements ReadFS
func (b *BillyFileSystem) ReadFile(name string) ([]byte, error) {
	return util.ReadFile(b.fs, clean(name))
}

// ReadDir implements ReadFS
func (b *BillyFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	infos, err := b.fs.ReadDir(clean(name))
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, fs.FileInfoToDirEntry(info))
	}
	return entries, nil
}

// Mkdir implements WriteFS
func (b *BillyFileSystem) Mkdir(name string, perm fs.FileMode) error {
	name = clean(name)
	if _, err := b.fs.Stat(name); err == nil {
		return &fs.PathError{Op: "mkdir", Path: name, Err: fs.ErrExist}
	}
	if err := b.requireParent("mkdir", name); err != nil {
		return err
	}
	return b.fs.MkdirAll(name, perm)
}

// WriteFile implements WriteFS
func (b *BillyFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	name = clean(name)
	if err := b.requireParent("write", name); err != nil {
		return err
	}
	return util.WriteFile(b.fs, name, data, perm)
}

// CopyFile implements WriteFS
func (b *BillyFileSystem) CopyFile(src, dst string) (err error) {
	src, dst = clean(src), clean(dst)
	info, err := b.fs.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &fs.PathError{Op: "copy", Path: src, Err: fmt.Errorf("source is a directory")}
	}
	if err := b.requireParent("copy", dst); err != nil {
		return err
	}

	in, err := b.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := b.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(out, in)
	return err
}

// Rename implements WriteFS
func (b *BillyFileSystem) Rename(oldpath, newpath string) error {
	oldpath, newpath = clean(oldpath), clean(newpath)
	if _, err := b.fs.Stat(oldpath); err != nil {
		return err
	}
	if err := b.requireParent("rename", newpath); err != nil {
		return err
	}
	return b.fs.Rename(oldpath, newpath)
}

// Remove implements WriteFS
func (b *BillyFileSystem) Remove(name string) error {
	return b.fs.Remove(clean(name))
}

// RemoveAll implements WriteFS
func (b *BillyFileSystem) RemoveAll(name string) error {
	return util.RemoveAll(b.fs, clean(name))
}

// Symlink implements WriteFS
func (b *BillyFileSystem) Symlink(target, link string) error {
	link = clean(link)
	if _, err := b.fs.Lstat(link); err == nil {
		return &fs.PathError{Op: "symlink", Path: link, Err: fs.ErrExist}
	}
	if err := b.requireParent("symlink", link); err != nil {
		return err
	}
	return b.fs.Symlink(target, link)
}
