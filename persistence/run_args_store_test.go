package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexcodex/jbuild/framework"
)

func TestFileRunArgsStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileRunArgsStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "com/x/Main", framework.RunArguments{Program: "a b", VM: "-Xmx64m"}))
	require.NoError(t, store.Set(ctx, "app/Tool", framework.RunArguments{Program: "--help"}))

	// A fresh store sees what the first one wrote.
	reopened, err := NewFileRunArgsStore(dir)
	require.NoError(t, err)
	got, ok, err := reopened.Get(ctx, "com/x/Main")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, framework.RunArguments{Program: "a b", VM: "-Xmx64m"}, got)

	entries, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "app/Tool", entries[0].Target)
	require.Equal(t, "com/x/Main", entries[1].Target)
	require.False(t, entries[0].UpdatedAt.IsZero())

	require.NoError(t, reopened.Delete(ctx, "app/Tool"))
	require.NoError(t, reopened.Delete(ctx, "missing"))
	_, ok, err = reopened.Get(ctx, "app/Tool")
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, map[string]framework.RunArguments{
		"com/x/Main": {Program: "a b", VM: "-Xmx64m"},
	}, reopened.Snapshot())
}

func TestFileRunArgsStoreRejectsBadInput(t *testing.T) {
	_, err := NewFileRunArgsStore("")
	require.Error(t, err)

	dir := t.TempDir()
	store, err := NewFileRunArgsStore(dir)
	require.NoError(t, err)
	require.Error(t, store.Set(context.Background(), "  ", framework.RunArguments{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, store.Set(ctx, "a/B", framework.RunArguments{}), context.Canceled)
	_, err = store.List(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "run_args.json"), []byte("{not json"), 0o644))
	_, err = NewFileRunArgsStore(dir)
	require.Error(t, err)
}
