package filesystem

import (
	"io"
	"io/fs"
)

// ReadFS is the read-only half of the filesystem capability. The validator
// only ever needs this half.
type ReadFS interface {
	// Stat follows symbolic links; Lstat does not.
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	Readlink(name string) (string, error)
	Open(name string) (io.ReadCloser, error)
	ReadFile(name string) ([]byte, error)
	ReadDir(name string) ([]fs.DirEntry, error)
}

// WriteFS defines the mutating primitives the engine invokes. Each call is
// blocking and runs to completion or failure.
type WriteFS interface {
	// Mkdir creates a single directory; the parent must already exist.
	Mkdir(name string, perm fs.FileMode) error
	WriteFile(name string, data []byte, perm fs.FileMode) error
	// CopyFile copies the bytes and permission bits of a regular file.
	CopyFile(src, dst string) error
	Rename(oldpath, newpath string) error
	// Remove removes a file or an empty directory.
	Remove(name string) error
	RemoveAll(name string) error
	// Symlink creates link pointing at target. target is stored verbatim
	// and link must not exist.
	Symlink(target, link string) error
}

// FileSystem combines read and write operations.
type FileSystem interface {
	ReadFS
	WriteFS
}

// Snapshotter is implemented by filesystems that can capture and restore a
// path more cheaply than the generic tree walk in TakeSnapshot.
type Snapshotter interface {
	Snapshot(name string) (*Snapshot, error)
	Restore(name string, snap *Snapshot) error
}
