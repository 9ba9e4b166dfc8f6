package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forge/internal/tools"
)

func TestParseEdits_SingleBlock(t *testing.T) {
	content := `Here's the fix:
<edit file="main.go">
<search>
fmt.Println("old")
</search>
<replace>
fmt.Println("new")
</replace>
</edit>
Done.`

	edits := ParseEdits(content)
	require.Len(t, edits, 1)
	assert.Equal(t, "main.go", edits[0].File)
	assert.Equal(t, `fmt.Println("old")`, edits[0].Search)
	assert.Equal(t, `fmt.Println("new")`, edits[0].Replace)
}

func TestParseEdits_SkipsBlocksInsideFencedCode(t *testing.T) {
	content := "Example of the syntax:\n```\n<edit file=\"x.go\">\n<search>a</search>\n<replace>b</replace>\n</edit>\n```\nNo real edit here."

	edits := ParseEdits(content)
	assert.Empty(t, edits, "fenced illustrative edit blocks must not be executed")
}

func TestParseEdits_MultipleBlocksFrontToBack(t *testing.T) {
	content := `<edit file="a.go">
<search>one</search>
<replace>ONE</replace>
</edit>
<edit file="b.go">
<search>two</search>
<replace>TWO</replace>
</edit>`

	edits := ParseEdits(content)
	require.Len(t, edits, 2)
	assert.Equal(t, "a.go", edits[0].File)
	assert.Equal(t, "b.go", edits[1].File)
	assert.True(t, edits[0].StartPos < edits[1].StartPos)
}

func TestExecuteEdit_AppliesFirstOccurrence(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.go": "one two one"})
	ws := newTestWorkspace(t, store, "main")
	tc := &tools.Context{Workspace: ws, Branch: "main"}

	withClaim(t, ws, func(ctx context.Context) {
		msg, err := ExecuteEdit(ctx, tc, EditBlock{File: "a.go", Search: "one", Replace: "ONE"})
		require.NoError(t, err)
		assert.Contains(t, msg, "a.go")

		content, err := ws.Read(ctx, "a.go")
		require.NoError(t, err)
		assert.Equal(t, "ONE two one", content)
	})
}

func TestExecuteEdit_FailsWhenSearchTextAbsent(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.go": "hello"})
	ws := newTestWorkspace(t, store, "main")
	tc := &tools.Context{Workspace: ws, Branch: "main"}

	withClaim(t, ws, func(ctx context.Context) {
		_, err := ExecuteEdit(ctx, tc, EditBlock{File: "a.go", Search: "missing", Replace: "x"})
		assert.Error(t, err)
	})
}

func TestExecuteEdits_StopsAtFirstFailure(t *testing.T) {
	store := newTestStore(t, "main", map[string]string{"a.go": "alpha"})
	ws := newTestWorkspace(t, store, "main")
	tc := &tools.Context{Workspace: ws, Branch: "main"}

	edits := []EditBlock{
		{File: "a.go", Search: "alpha", Replace: "ALPHA"},
		{File: "a.go", Search: "nonexistent", Replace: "x"},
		{File: "a.go", Search: "ALPHA", Replace: "should-not-run"},
	}

	withClaim(t, ws, func(ctx context.Context) {
		results, failedIdx := ExecuteEdits(ctx, tc, edits)
		assert.Equal(t, 1, failedIdx)
		require.Len(t, results, 2)

		content, err := ws.Read(ctx, "a.go")
		require.NoError(t, err)
		assert.Equal(t, "ALPHA", content, "edits after the failure must not run")
	})
}
