package batch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/batch"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/execution"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/operations"
	"github.com/arthur-debert/fsbatch/pkg/fsbatch/testutil"
)

func TestBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	fsys := testutil.NewMemFS(t, map[string]string{
		"config.yaml":  "key: value",
		"logs/app.log": "started",
		"tmp/":         "",
	})
	before := testutil.Tree(t, fsys, "/")

	b := batch.New(fsys)
	h0, err := b.CreateDir("code")
	require.NoError(t, err)
	h1, err := b.Copy("config.yaml", "code/config.yaml.bak")
	require.NoError(t, err)
	h2, err := b.Move("logs", "/tmp/logs")
	require.NoError(t, err)

	assert.Equal(t, []batch.Handle{0, 1, 2}, []batch.Handle{h0, h1, h2})
	assert.Equal(t, core.Position(2), h2.Position())
	assert.Equal(t, 3, b.Len())

	report, err := b.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "violations: %v", report.Violations)

	result, err := b.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.BatchSuccess, result.Status)
	assert.Len(t, result.Operations, 3)
	assert.True(t, b.Frozen())

	rr, err := result.Revert(ctx)
	require.NoError(t, err)
	assert.True(t, rr.OK())
	assert.Equal(t, before, testutil.Tree(t, fsys, "/"))

	assert.Equal(t, 3, b.Len(), "reverting never changes the batch")
}

func TestAppendRejectsMalformedOperations(t *testing.T) {
	b := batch.New(testutil.NewMemFS(t, nil))

	h, err := b.Copy("same", "same")
	assert.True(t, errors.Is(err, core.ErrInvalidOperation), "got %v", err)
	assert.Equal(t, batch.Handle(-1), h)

	_, err = b.CreateDir("")
	assert.ErrorIs(t, err, core.ErrInvalidOperation)

	assert.Equal(t, 0, b.Len(), "rejected operations are not appended")
}

func TestAppendAfterExecuteIsRejected(t *testing.T) {
	b := batch.New(testutil.NewMemFS(t, nil))
	_, err := b.CreateDir("a")
	require.NoError(t, err)

	_, err = b.Execute(context.Background())
	require.NoError(t, err)

	_, err = b.CreateDir("b")
	assert.ErrorIs(t, err, core.ErrBatchFrozen)
}

func TestOperationsAreCopies(t *testing.T) {
	b := batch.New(testutil.NewMemFS(t, nil))
	h, _ := b.WriteFile("f", []byte("one"), 0)

	ops := b.Operations()
	ops[0] = operations.Delete("elsewhere")

	op, ok := b.Operation(h)
	require.True(t, ok)
	assert.Equal(t, operations.KindWriteFile, op.Kind())

	_, ok = b.Operation(7)
	assert.False(t, ok)
}

func TestValidateDoesNotExecute(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{"x": "1"})
	b := batch.New(fsys)
	_, _ = b.Delete("x")

	_, err := b.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, b.Frozen())
	assert.Equal(t, "1", testutil.ReadString(t, fsys, "x"))
}

func TestReordered(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{"f": "x"})
	b := batch.New(fsys)
	_, _ = b.Copy("f", "a/f")
	_, _ = b.CreateDir("a")

	report, err := b.Validate(context.Background())
	require.NoError(t, err)
	require.False(t, report.OK())
	require.NotNil(t, report.SuggestedOrder)

	fixed, err := b.Reordered(report.SuggestedOrder)
	require.NoError(t, err)
	report, err = fixed.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())

	result, err := fixed.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success())

	_, err = b.Reordered([]int{0, 0})
	assert.ErrorIs(t, err, core.ErrInvalidOperation)
	_, err = b.Reordered([]int{0})
	assert.ErrorIs(t, err, core.ErrInvalidOperation)
}

func TestBatchOptionsApplyToExecution(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{"x": "1"})
	b := batch.New(fsys, execution.WithSnapshots(true))
	_, _ = b.Delete("x")
	_, _ = b.Delete("missing")
	_, _ = b.CreateDir("never")

	result, err := b.Execute(context.Background(), execution.WithPolicy(core.PolicyContinue))
	require.NoError(t, err)
	assert.Len(t, result.Operations, 3)
	assert.True(t, result.Operations[0].Undo.HasSnapshot())
}

func TestBatchWithoutFileSystem(t *testing.T) {
	b := batch.New(nil)
	_, err := b.CreateDir("a")
	require.NoError(t, err, "appending never touches the filesystem")

	_, err = b.Validate(context.Background())
	assert.ErrorIs(t, err, core.ErrUnavailable)
	_, err = b.Execute(context.Background())
	assert.ErrorIs(t, err, core.ErrUnavailable)
}

func TestBatchSymlink(t *testing.T) {
	fsys := testutil.NewMemFS(t, map[string]string{"releases/v2/": ""})
	b := batch.New(fsys)
	_, err := b.CreateSymlink("", "current")
	assert.ErrorIs(t, err, core.ErrInvalidOperation)
	h, err := b.CreateSymlink("releases/v2", "current")
	require.NoError(t, err)
	assert.Equal(t, core.Position(0), h.Position())

	result, err := b.Execute(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success(), "errors: %v", result.Errors())

	report, err := result.Revert(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, []string{"releases/", "releases/v2/"}, testutil.Tree(t, fsys, "/"))
}

func TestBatchPrerequisites(t *testing.T) {
	newBatch := func(t *testing.T, opts ...execution.Option) *batch.Batch {
		b := batch.New(testutil.NewMemFS(t, nil), opts...)
		_, err := b.WriteFile("etc/app/app.conf", []byte("x"), 0)
		require.NoError(t, err)
		return b
	}

	t.Run("validate with the option", func(t *testing.T) {
		plain, err := newBatch(t).Validate(context.Background())
		require.NoError(t, err)
		assert.False(t, plain.OK())

		resolved, err := newBatch(t, execution.WithResolvePrerequisites(true)).Validate(context.Background())
		require.NoError(t, err)
		assert.True(t, resolved.OK(), "violations: %v", resolved.Violations)
	})

	t.Run("explicit batch", func(t *testing.T) {
		b := newBatch(t)
		next, err := b.WithPrerequisites(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, b.Len(), "the original batch is unchanged")
		require.Equal(t, 3, next.Len())
		assert.Equal(t, []operations.Operation{
			operations.CreateDir("etc"),
			operations.CreateDir("etc/app"),
			operations.WriteFile("etc/app/app.conf", []byte("x"), 0),
		}, next.Operations())

		result, err := next.Execute(context.Background())
		require.NoError(t, err)
		assert.True(t, result.Success(), "errors: %v", result.Errors())
		assert.False(t, b.Frozen())
	})
}
