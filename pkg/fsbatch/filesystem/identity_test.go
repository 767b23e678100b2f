package filesystem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/testutil"
)

func TestComputeIdentity(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{"a": "hello", "b": "hello", "c": "world", "d/": ""})

	a, err := filesystem.ComputeIdentity(fsys, "a")
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", a.MD5)
	assert.Equal(t, int64(5), a.Size)

	b, err := filesystem.ComputeIdentity(fsys, "b")
	require.NoError(t, err)
	c, err := filesystem.ComputeIdentity(fsys, "c")
	require.NoError(t, err)

	assert.True(t, a.Matches(b), "same content must match regardless of path")
	assert.False(t, a.Matches(c))
	assert.False(t, a.Matches(nil))

	dir, err := filesystem.ComputeIdentity(fsys, "d")
	require.NoError(t, err)
	assert.Nil(t, dir)

	_, err = filesystem.ComputeIdentity(fsys, "missing")
	assert.Error(t, err)
}
