package execution_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/execution"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/filesystem"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/snapshot"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/testutil"
)

func TestRevertRoundTrip(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{"f": "content"})
	before := testutil.Tree(t, fsys, "/")

	result := execute(t, fsys, []operations.Operation{
		operations.CreateDir("a"),
		operations.Copy("f", "a/f"),
	})
	require.True(t, result.Success())

	report := revert(t, result)
	require.Len(t, report.Items, 2)
	assert.Equal(t, "a/f", report.Items[0].Operation.Target(), "the copy is undone first")
	assert.Equal(t, "a", report.Items[1].Operation.Target())
	assert.Equal(t, []core.RevertStatus{core.RevertSucceeded, core.RevertSucceeded}, revertStatuses(report))
	assert.Equal(t, before, testutil.Tree(t, fsys, "/"))
}

func TestRevertDeleteWithoutSnapshots(t *testing.T) {
	newFS := func(t *testing.T) *filesystem.BillyFileSystem {
		return testutil.NewMemFS(t, map[string]string{"x": "1", "y": "2"})
	}
	ops := []operations.Operation{
		operations.Delete("x"),
		operations.CreateDir("d1"),
		operations.Delete("y"),
		operations.CreateDir("d2"),
	}

	t.Run("non-revertible and stop halts", func(t *testing.T) {
		fsys := newFS(t)
		result := execute(t, fsys, ops)
		require.True(t, result.Success())
		for _, ex := range result.Operations {
			if ex.Operation.Kind() == operations.KindDelete {
				assert.False(t, ex.Undo.Revertible())
				assert.Contains(t, ex.Undo.NonRevertibleReason(), "snapshots are disabled")
			}
		}

		report := revert(t, result)
		assert.Equal(t, []core.RevertStatus{core.RevertSucceeded, core.RevertFailed}, revertStatuses(report))
		assert.True(t, report.Stopped)
		assert.False(t, report.OK())
		assert.Equal(t, core.BatchPartialFailure, report.Status)
		assert.True(t, errors.Is(report.Items[1].Err, core.ErrNonRevertible), "got %v", report.Items[1].Err)

		ok, err := filesystem.Exists(fsys, "d1")
		require.NoError(t, err)
		assert.True(t, ok, "stop policy leaves earlier operations in place")
	})

	t.Run("continue proceeds past non-revertible items", func(t *testing.T) {
		fsys := newFS(t)
		result := execute(t, fsys, ops)

		report := revert(t, result, execution.WithRevertPolicy(core.PolicyContinue))
		assert.Equal(t, []core.Position{3, 2, 1, 0}, revertPositions(report))
		assert.Equal(t, []core.RevertStatus{
			core.RevertSucceeded, core.RevertFailed, core.RevertSucceeded, core.RevertFailed,
		}, revertStatuses(report))
		assert.False(t, report.Stopped)
		assert.Len(t, report.Failed(), 2)

		ok, err := filesystem.Exists(fsys, "d1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("revert policy inherits continue from execution", func(t *testing.T) {
		fsys := newFS(t)
		result := execute(t, fsys, ops, execution.WithPolicy(core.PolicyContinue))
		report := revert(t, result)
		assert.Len(t, report.Items, 4)
	})
}

func TestRevertDeleteWithSnapshots(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{
		"logs/app.log":  "a",
		"logs/err.log":  "b",
		"logs/archive/": "",
		"config.yaml":   "k: v",
	})
	before := testutil.Tree(t, fsys, "/")

	store := snapshot.NewMemoryStore()
	result := execute(t, fsys, []operations.Operation{
		operations.Delete("logs"),
		operations.Delete("config.yaml"),
	}, execution.WithSnapshots(true), execution.WithStore(store))
	require.True(t, result.Success())
	assert.Equal(t, 2, store.Len())
	for _, ex := range result.Operations {
		assert.True(t, ex.Undo.Revertible())
		assert.True(t, ex.Undo.HasSnapshot())
	}
	assert.Greater(t, result.Spool.UsedMB(), 0.0)

	report := revert(t, result)
	assert.True(t, report.OK(), "failed: %v", report.Failed())
	assert.Equal(t, before, testutil.Tree(t, fsys, "/"))
	assert.Equal(t, 0, store.Len(), "restored snapshots are released")
	assert.InDelta(t, 0.0, result.Spool.UsedMB(), 1e-9)
	assert.Equal(t, 0, result.Spool.Held())
}

func TestRevertDeleteRecreatedPath(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{"x": "old"})

	result := execute(t, fsys, []operations.Operation{operations.Delete("x")}, execution.WithSnapshots(true))
	require.NoError(t, fsys.WriteFile("x", []byte("new"), 0644))

	report := revert(t, result)
	assert.Equal(t, []core.RevertStatus{core.RevertFailed}, revertStatuses(report))
	assert.Equal(t, "new", testutil.ReadString(t, fsys, "x"), "data written after the batch is never overwritten")
}

func TestRevertSnapshotLimit(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{"big": "some bytes", "empty": ""})

	result := execute(t, fsys, []operations.Operation{
		operations.Delete("empty"),
		operations.Delete("big"),
	}, execution.WithSnapshots(true), execution.WithMaxSnapshotMB(0))

	require.True(t, result.Success(), "exceeding the limit must not fail the operation")
	assert.True(t, result.Operations[0].Undo.Revertible())
	assert.False(t, result.Operations[1].Undo.Revertible())
	assert.Contains(t, result.Operations[1].Undo.NonRevertibleReason(), "snapshot limit exceeded")

	report := revert(t, result, execution.WithRevertPolicy(core.PolicyContinue))
	assert.Equal(t, []core.RevertStatus{core.RevertFailed, core.RevertSucceeded}, revertStatuses(report))
	assert.Equal(t, "", testutil.ReadString(t, fsys, "empty"))
}

func TestRevertCopyModifiedAfterExecution(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{"f": "original"})

	result := execute(t, fsys, []operations.Operation{operations.Copy("f", "g")})
	require.NoError(t, fsys.WriteFile("g", []byte("edited by the user"), 0644))

	report := revert(t, result)
	require.Len(t, report.Items, 1)
	assert.Equal(t, core.RevertSkipped, report.Items[0].Status)
	assert.Contains(t, report.Items[0].Warning, "modified")
	assert.Len(t, report.Warnings(), 1)
	assert.True(t, report.OK(), "skips are not failures")
	assert.Equal(t, "edited by the user", testutil.ReadString(t, fsys, "g"))
}

func TestRevertCopyTargetGone(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{"f": "original"})

	result := execute(t, fsys, []operations.Operation{operations.Copy("f", "g")})
	require.NoError(t, fsys.Remove("g"))

	report := revert(t, result)
	assert.Equal(t, []core.RevertStatus{core.RevertSkipped}, revertStatuses(report))
}

func TestRevertOverwrite(t *testing.T) {
	ops := []operations.Operation{
		operations.WriteFile("settings.ini", []byte("new"), 0),
		operations.Copy("template", "motd"),
	}
	fixture := map[string]string{"settings.ini": "old", "template": "hello", "motd": "previous motd"}

	t.Run("with snapshots the prior content comes back", func(t *testing.T) {
		fsys := testutil.NewMemFS(t, fixture)
		before := testutil.Tree(t, fsys, "/")

		result := execute(t, fsys, ops, execution.WithSnapshots(true))
		require.True(t, result.Success())
		assert.Equal(t, "new", testutil.ReadString(t, fsys, "settings.ini"))
		assert.Equal(t, core.PathFile, result.Operations[0].Undo.Prior())

		report := revert(t, result)
		assert.True(t, report.OK(), "failed: %v", report.Failed())
		assert.Equal(t, before, testutil.Tree(t, fsys, "/"))
	})

	t.Run("without snapshots the overwrite is non-revertible", func(t *testing.T) {
		fsys := testutil.NewMemFS(t, fixture)

		result := execute(t, fsys, ops)
		report := revert(t, result, execution.WithRevertPolicy(core.PolicyContinue))
		assert.Equal(t, []core.RevertStatus{core.RevertFailed, core.RevertFailed}, revertStatuses(report))
		for _, it := range report.Items {
			assert.ErrorIs(t, it.Err, core.ErrNonRevertible)
		}
		assert.Equal(t, "new", testutil.ReadString(t, fsys, "settings.ini"), "nothing is removed when it cannot be put back")
	})
}

func TestRevertCreateDirNotEmpty(t *testing.T) {
	fsys := testutil.NewMemFS(t, nil)

	result := execute(t, fsys, []operations.Operation{operations.CreateDir("code")})
	require.NoError(t, fsys.WriteFile("code/user.txt", []byte("u"), 0644))

	report := revert(t, result)
	assert.Equal(t, []core.RevertStatus{core.RevertSkipped}, revertStatuses(report))
	assert.Contains(t, report.Items[0].Warning, "not empty")
	assert.Equal(t, "u", testutil.ReadString(t, fsys, "code/user.txt"))
}

func TestRevertMove(t *testing.T) {
	t.Run("destination gone fails loudly", func(t *testing.T) {
		fsys := testutil.NewMemFS(t, map[string]string{"logs/a": "1"})
		result := execute(t, fsys, []operations.Operation{operations.Move("logs", "old")})
		require.NoError(t, fsys.RemoveAll("old"))

		report := revert(t, result)
		require.Len(t, report.Items, 1)
		assert.Equal(t, core.RevertFailed, report.Items[0].Status)
		assert.ErrorIs(t, report.Items[0].Err, core.ErrNonRevertible)
		assert.Contains(t, report.Items[0].Err.Error(), "no longer exists")
	})

	t.Run("source reoccupied fails", func(t *testing.T) {
		fsys := testutil.NewMemFS(t, map[string]string{"a": "1"})
		result := execute(t, fsys, []operations.Operation{operations.Move("a", "b")})
		require.NoError(t, fsys.WriteFile("a", []byte("new"), 0644))

		report := revert(t, result)
		assert.Equal(t, []core.RevertStatus{core.RevertFailed}, revertStatuses(report))
		assert.Equal(t, "new", testutil.ReadString(t, fsys, "a"))
		assert.Equal(t, "1", testutil.ReadString(t, fsys, "b"))
	})

	t.Run("replaced destination is restored from snapshot", func(t *testing.T) {
		fsys := testutil.NewMemFS(t, map[string]string{"a": "moved", "b": "replaced"})
		before := testutil.Tree(t, fsys, "/")

		result := execute(t, fsys, []operations.Operation{operations.Move("a", "b")}, execution.WithSnapshots(true))
		require.True(t, result.Success(), "errors: %v", result.Errors())
		assert.Equal(t, "moved", testutil.ReadString(t, fsys, "b"))

		report := revert(t, result)
		assert.True(t, report.OK(), "failed: %v", report.Failed())
		assert.Equal(t, before, testutil.Tree(t, fsys, "/"))
	})
}

func TestRevertSkipsFailedOperations(t *testing.T) {
	fsys := testutil.NewMemFS(t, nil)

	result := execute(t, fsys, []operations.Operation{
		operations.CreateDir("a"),
		operations.Delete("missing"),
	})
	report := revert(t, result)

	assert.Equal(t, []core.RevertStatus{core.RevertSkipped, core.RevertSucceeded}, revertStatuses(report))
	assert.Equal(t, "operation did not complete", report.Items[0].Warning)
	assert.Len(t, report.Warnings(), 1)
}

func TestRevertOnlyOnce(t *testing.T) {
	fsys := testutil.NewMemFS(t, nil)
	result := execute(t, fsys, []operations.Operation{operations.CreateDir("a")})

	revert(t, result)
	assert.True(t, result.Reverted())

	_, err := result.Revert(context.Background())
	assert.ErrorIs(t, err, core.ErrAlreadyReverted)
}

func TestRevertFailedPrimitive(t *testing.T) {
	mem := testutil.NewMemFS(t, nil)
	fsys := newFaultyFS(mem)
	fsys.failOn("remove", "a", fs.ErrPermission)

	result := execute(t, fsys, []operations.Operation{operations.CreateDir("a")})
	report := revert(t, result)

	require.Len(t, report.Items, 1)
	assert.Equal(t, core.RevertFailed, report.Items[0].Status)
	assert.ErrorIs(t, report.Items[0].Err, core.ErrIO)
	assert.Equal(t, core.Position(0), errPosition(t, report.Items[0].Err))
}

func TestRevertWithDirStore(t *testing.T) {
	store, err := snapshot.NewDirStore(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)
	fsys := testutil.NewMemFS(t, map[string]string{"data/a": "1", "data/b": "2"})
	before := testutil.Tree(t, fsys, "/")

	result := execute(t, fsys, []operations.Operation{operations.Delete("data")},
		execution.WithSnapshots(true), execution.WithStore(store))
	require.True(t, result.Success())

	report := revert(t, result)
	assert.True(t, report.OK(), "failed: %v", report.Failed())
	assert.Equal(t, before, testutil.Tree(t, fsys, "/"))
}

func TestRevertRejectedOptionsDoNotConsumeResult(t *testing.T) {
	fsys := testutil.NewMemFS(t, nil)
	result := execute(t, fsys, []operations.Operation{operations.CreateDir("a")})

	_, err := result.Revert(context.Background(), execution.WithRevertPolicy("sometimes"))
	require.ErrorIs(t, err, core.ErrInvalidOperation)
	assert.False(t, result.Reverted())

	report := revert(t, result, execution.WithRevertPolicy(core.PolicyContinue))
	assert.Equal(t, []core.RevertStatus{core.RevertSucceeded}, revertStatuses(report))
	ok, err := filesystem.Exists(fsys, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiscardReleasesSnapshots(t *testing.T) {
	newStore := func(t *testing.T) (*snapshot.DirStore, string) {
		dir := filepath.Join(t.TempDir(), "snapshots")
		store, err := snapshot.NewDirStore(dir)
		require.NoError(t, err)
		return store, dir
	}
	spooled := func(t *testing.T, dir string) int {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		return len(entries)
	}
	fixture := map[string]string{"data/a": "1", "data/b": "2", "motd": "hi"}
	ops := []operations.Operation{
		operations.Delete("data"),
		operations.WriteFile("motd", []byte("bye"), 0),
	}

	t.Run("after success", func(t *testing.T) {
		store, dir := newStore(t)
		result := execute(t, testutil.NewMemFS(t, fixture), ops,
			execution.WithSnapshots(true), execution.WithStore(store))
		require.True(t, result.Success())
		assert.Equal(t, 2, spooled(t, dir))

		require.NoError(t, result.Discard())
		assert.Equal(t, 0, spooled(t, dir))
		assert.Equal(t, 0, result.Spool.Held())
		assert.InDelta(t, 0.0, result.Spool.UsedMB(), 1e-9)

		_, err := result.Revert(context.Background())
		assert.ErrorIs(t, err, core.ErrUnavailable)
		require.NoError(t, result.Discard(), "discarding twice is harmless")
	})

	t.Run("after a partial revert", func(t *testing.T) {
		store, dir := newStore(t)
		fsys := testutil.NewMemFS(t, fixture)
		result := execute(t, fsys, ops, execution.WithSnapshots(true), execution.WithStore(store))
		require.NoError(t, fsys.WriteFile("motd", []byte("edited"), 0644))

		report := revert(t, result, execution.WithRevertPolicy(core.PolicyContinue))
		assert.Equal(t, []core.RevertStatus{core.RevertSkipped, core.RevertSucceeded}, revertStatuses(report))
		assert.Equal(t, 1, spooled(t, dir), "the skipped overwrite keeps its snapshot")

		require.NoError(t, result.Discard())
		assert.Equal(t, 0, spooled(t, dir))
	})

	t.Run("without snapshots", func(t *testing.T) {
		result := execute(t, testutil.NewMemFS(t, fixture), ops[1:])
		assert.Nil(t, result.Spool)
		assert.NoError(t, result.Discard())
	})
}

func TestRevertWriteWithoutIdentity(t *testing.T) {
	fsys := newFaultyFS(testutil.NewMemFS(t, map[string]string{"f": "original"}))
	fsys.failOn("open", "g", fs.ErrPermission)

	result := execute(t, fsys, []operations.Operation{operations.Copy("f", "g")})
	require.True(t, result.Success(), "a missing identity does not fail the copy")
	delete(fsys.fail, "open:g")

	report := revert(t, result)
	require.Len(t, report.Items, 1)
	assert.Equal(t, core.RevertSkipped, report.Items[0].Status)
	assert.Contains(t, report.Items[0].Warning, "could not be verified")
	assert.Equal(t, "original", testutil.ReadString(t, fsys, "g"), "an unverified file is left in place")
}

func TestRevertSymlink(t *testing.T) {
	fixture := map[string]string{"releases/v1/": "", "releases/v2/": "", "app/": ""}

	t.Run("created link is removed", func(t *testing.T) {
		fsys := testutil.NewMemFS(t, fixture)
		before := testutil.Tree(t, fsys, "/")

		result := execute(t, fsys, []operations.Operation{
			operations.CreateSymlink("../releases/v2", "app/current"),
		})
		require.True(t, result.Success(), "errors: %v", result.Errors())
		assert.True(t, result.Operations[0].Undo.Created())

		report := revert(t, result)
		assert.Equal(t, []core.RevertStatus{core.RevertSucceeded}, revertStatuses(report))
		assert.Equal(t, before, testutil.Tree(t, fsys, "/"))
	})

	t.Run("retargeted link is left alone", func(t *testing.T) {
		fsys := testutil.NewMemFS(t, fixture)
		result := execute(t, fsys, []operations.Operation{
			operations.CreateSymlink("../releases/v2", "app/current"),
		})
		require.NoError(t, fsys.Remove("app/current"))
		require.NoError(t, fsys.Symlink("../releases/v1", "app/current"))

		report := revert(t, result)
		assert.Equal(t, []core.RevertStatus{core.RevertSkipped}, revertStatuses(report))
		assert.Contains(t, report.Items[0].Warning, "now points to ../releases/v1")
		target, ok, err := filesystem.LinkTarget(fsys, "app/current")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "../releases/v1", target)
	})

	t.Run("link replaced by a file", func(t *testing.T) {
		fsys := testutil.NewMemFS(t, fixture)
		result := execute(t, fsys, []operations.Operation{
			operations.CreateSymlink("../releases/v2", "app/current"),
		})
		require.NoError(t, fsys.Remove("app/current"))
		require.NoError(t, fsys.WriteFile("app/current", []byte("v2"), 0644))

		report := revert(t, result)
		assert.Equal(t, []core.RevertStatus{core.RevertSkipped}, revertStatuses(report))
		assert.Contains(t, report.Items[0].Warning, "was replaced")
		assert.Equal(t, "v2", testutil.ReadString(t, fsys, "app/current"))
	})

	t.Run("link gone", func(t *testing.T) {
		fsys := testutil.NewMemFS(t, fixture)
		result := execute(t, fsys, []operations.Operation{
			operations.CreateSymlink("../releases/v2", "app/current"),
		})
		require.NoError(t, fsys.Remove("app/current"))

		report := revert(t, result)
		assert.Equal(t, []core.RevertStatus{core.RevertSkipped}, revertStatuses(report))
		assert.Contains(t, report.Items[0].Warning, "no longer exists")
	})
}

func errPosition(t *testing.T, err error) core.Position {
	t.Helper()
	var e *core.Error
	require.True(t, errors.As(err, &e), "not a *core.Error: %v", err)
	return e.Position
}
