// Package testutil provides fixtures for tests of fsbatch and its users.
package testutil

import (
	"bytes"
	"io/fs"
	"path"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/logging"
)

// NewMemFS returns an in-memory filesystem holding files. Keys are slash
// paths; a key ending in "/" creates a directory, any other key a file with
// the value as content. Parent directories are created as needed.
func NewMemFS(t testing.TB, files map[string]string) *filesystem.BillyFileSystem {
	t.Helper()
	mfs := filesystem.NewMemFileSystem()
	Populate(t, mfs, files)
	return mfs
}

// Populate creates files in fsys, see NewMemFS.
func Populate(t testing.TB, fsys filesystem.FileSystem, files map[string]string) {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		isDir := strings.HasSuffix(name, "/")
		clean := path.Clean(name)
		mkdirAll(t, fsys, path.Dir(clean))
		if isDir {
			mkdirAll(t, fsys, clean)
			continue
		}
		require.NoError(t, fsys.WriteFile(clean, []byte(files[name]), 0644), "writing fixture %s", clean)
	}
}

func mkdirAll(t testing.TB, fsys filesystem.FileSystem, dir string) {
	t.Helper()
	if filesystem.IsRoot(dir) {
		return
	}
	if ok, err := filesystem.IsDir(fsys, dir); err == nil && ok {
		return
	}
	mkdirAll(t, fsys, path.Dir(dir))
	require.NoError(t, fsys.Mkdir(dir, 0755), "creating fixture directory %s", dir)
}

// Tree lists every path below root as "dir/" or "file=content", sorted.
// It is meant for comparing whole filesystem states in assertions.
func Tree(t testing.TB, fsys filesystem.ReadFS, root string) []string {
	t.Helper()
	var out []string
	var walk func(dir string)
	walk = func(dir string) {
		entries, err := fsys.ReadDir(dir)
		require.NoError(t, err, "reading %s", dir)
		for _, entry := range entries {
			p := path.Join(dir, entry.Name())
			info, err := fsys.Stat(p)
			require.NoError(t, err)
			if info.IsDir() {
				out = append(out, strings.TrimPrefix(p, "/")+"/")
				walk(p)
				continue
			}
			data, err := fsys.ReadFile(p)
			require.NoError(t, err)
			out = append(out, strings.TrimPrefix(p, "/")+"="+string(data))
		}
	}
	walk(root)
	sort.Strings(out)
	return out
}

// ReadString returns the content of name, failing the test if it is missing.
func ReadString(t testing.TB, fsys filesystem.ReadFS, name string) string {
	t.Helper()
	data, err := fsys.ReadFile(name)
	require.NoError(t, err, "reading %s", name)
	return string(data)
}

// Mode returns the permission bits of name.
func Mode(t testing.TB, fsys filesystem.ReadFS, name string) fs.FileMode {
	t.Helper()
	info, err := fsys.Stat(name)
	require.NoError(t, err)
	return info.Mode().Perm()
}

// NewLogger returns a debug-level logger writing into buf.
func NewLogger(buf *bytes.Buffer) zerolog.Logger {
	return logging.NewTest(buf, 2)
}
