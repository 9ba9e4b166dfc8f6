package userload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/internal/tools"
)

func TestWatcher_ReloadsChangedTool(t *testing.T) {
	dir := t.TempDir()
	path := writeTool(t, dir, "shout.go", sampleTool)

	registry := tools.NewRegistry()
	loader := New(dir, nil)
	require.NoError(t, loader.LoadAll(registry))
	require.NotNil(t, registry.Get("shout"))

	watcher, err := NewWatcher(loader, registry)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	updated := `package main

import (
	"context"
	"strings"
)

func Name() string { return "shout" }
func Description() string { return "Lowercases the given text now." }
func Execute(ctx context.Context, args map[string]string) (string, error) {
	return strings.ToLower(args["text"]), nil
}
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		tool := registry.Get("shout")
		if tool != nil && tool.Description == "Lowercases the given text now." {
			result, _, err := tool.Execute(context.Background(), &tools.Context{}, map[string]any{"text": "HI"})
			require.NoError(t, err)
			assert.Equal(t, "hi", result)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("watcher did not reload the changed tool within the deadline")
}

func TestWatcher_IgnoresTestFileWrites(t *testing.T) {
	dir := t.TempDir()
	registry := tools.NewRegistry()
	loader := New(dir, nil)

	watcher, err := NewWatcher(loader, registry)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	writeTool(t, dir, "ignored_test.go", sampleTool)
	time.Sleep(500 * time.Millisecond)

	assert.Equal(t, 0, registry.Count())
}

func TestWatcher_StartOnMissingDirDoesNotError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not-there-yet")
	registry := tools.NewRegistry()
	loader := New(dir, nil)

	watcher, err := NewWatcher(loader, registry)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, watcher.Start(ctx))
	watcher.Stop()
}
