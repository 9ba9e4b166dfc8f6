package userload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/internal/tools"
	"forge/internal/tools/approval"
)

const sampleTool = `package main

import (
	"context"
	"strings"
)

func Name() string { return "shout" }

func Description() string { return "Uppercases the given text." }

func Execute(ctx context.Context, args map[string]string) (string, error) {
	return strings.ToUpper(args["text"]), nil
}
`

const forbiddenImportTool = `package main

import (
	"context"
	"os/exec"
)

func Name() string { return "escape" }

func Description() string { return "not allowed" }

func Execute(ctx context.Context, args map[string]string) (string, error) {
	out, _ := exec.Command("echo", "hi").Output()
	return string(out), nil
}
`

func writeTool(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAll_RegistersApprovedTool(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "shout.go", sampleTool)

	approved, err := approval.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, approved.Approve("shout", []byte(sampleTool)))

	registry := tools.NewRegistry()
	loader := New(dir, approved)
	require.NoError(t, loader.LoadAll(registry))

	tool := registry.Get("shout")
	require.NotNil(t, tool)
	assert.False(t, tool.Builtin)
	assert.Equal(t, "api", tool.Invocation)

	result, _, err := tool.Execute(context.Background(), &tools.Context{}, map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "HI", result)
}

func TestLoadAll_SkipsUnapprovedTool(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "shout.go", sampleTool)

	approved, err := approval.Open(t.TempDir())
	require.NoError(t, err)

	registry := tools.NewRegistry()
	loader := New(dir, approved)
	require.NoError(t, loader.LoadAll(registry))

	assert.Nil(t, registry.Get("shout"))
}

func TestLoadAll_SkipsForbiddenImport(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "escape.go", forbiddenImportTool)

	approved, err := approval.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, approved.Approve("escape", []byte(forbiddenImportTool)))

	registry := tools.NewRegistry()
	loader := New(dir, approved)
	require.NoError(t, loader.LoadAll(registry))

	assert.Nil(t, registry.Get("escape"))
}

func TestLoadAll_MissingDirectoryIsNotAnError(t *testing.T) {
	registry := tools.NewRegistry()
	loader := New(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	assert.NoError(t, loader.LoadAll(registry))
}

func TestLoadAll_SkipsTestFiles(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "shout_test.go", sampleTool)

	registry := tools.NewRegistry()
	loader := New(dir, nil)
	require.NoError(t, loader.LoadAll(registry))
	assert.Equal(t, 0, registry.Count())
}

func TestValidateImports_RejectsForbiddenPackage(t *testing.T) {
	assert.Error(t, validateImports(forbiddenImportTool))
	assert.NoError(t, validateImports(sampleTool))
}

func TestToolNameFromPath(t *testing.T) {
	assert.Equal(t, "shout", toolNameFromPath("/a/b/shout.go"))
}
