package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"forge/internal/tools"
)

// EditBlock is one parsed inline edit command, grounded on
// original_source/forge/tools/inline_edit.py's EditBlock.
type EditBlock struct {
	File     string
	Search   string
	Replace  string
	StartPos int
	EndPos   int
}

// editPattern mirrors inline_edit.py's EDIT_PATTERN: <edit file="...">
// <search>...</search><replace>...</replace></edit>, DOTALL-equivalent
// via (?s).
var editPattern = regexp.MustCompile(`(?s)<edit\s+file="([^"]+)">\s*<search>\n?(.*?)\n?</search>\s*<replace>\n?(.*?)\n?</replace>\s*</edit>`)

// fencedBlockPattern matches ``` ... ``` fenced regions so inline edits
// appearing inside example code are never executed — a supplement the
// python original didn't need, since this design parses inline edits out
// of raw assistant text that may also contain fenced illustrative
// snippets the agent is quoting, not issuing.
var fencedBlockPattern = regexp.MustCompile("(?s)```.*?```")

// ParseEdits scans content front-to-back for <edit> blocks, skipping any
// whose match falls entirely inside a fenced code block.
func ParseEdits(content string) []EditBlock {
	fenced := fencedBlockPattern.FindAllStringIndex(content, -1)
	insideFence := func(start, end int) bool {
		for _, span := range fenced {
			if start >= span[0] && end <= span[1] {
				return true
			}
		}
		return false
	}

	var edits []EditBlock
	for _, m := range editPattern.FindAllStringSubmatchIndex(content, -1) {
		start, end := m[0], m[1]
		if insideFence(start, end) {
			continue
		}
		edits = append(edits, EditBlock{
			File:     content[m[2]:m[3]],
			Search:   content[m[4]:m[5]],
			Replace:  content[m[6]:m[7]],
			StartPos: start,
			EndPos:   end,
		})
	}
	return edits
}

// ExecuteEdit applies one EditBlock against tc's workspace, mirroring
// inline_edit.py's execute_edit (exact-match replace of the first
// occurrence; ambiguity is not checked here since inline edits target
// a specific quoted context the model itself chose).
func ExecuteEdit(ctx context.Context, tc *tools.Context, edit EditBlock) (string, error) {
	content, err := tc.Workspace.Read(ctx, edit.File)
	if err != nil {
		return "", fmt.Errorf("inline edit: reading %s: %w", edit.File, err)
	}
	if !strings.Contains(content, edit.Search) {
		return "", fmt.Errorf("inline edit: search text not found in %s", edit.File)
	}
	updated := strings.Replace(content, edit.Search, edit.Replace, 1)
	if err := tc.Workspace.Write(ctx, edit.File, updated); err != nil {
		return "", err
	}
	return fmt.Sprintf("Replaced in %s", edit.File), nil
}

// ExecuteEdits applies edits in order, stopping at the first failure —
// mirroring inline_edit.py's execute_edits chain-stop behavior.
func ExecuteEdits(ctx context.Context, tc *tools.Context, edits []EditBlock) ([]string, int) {
	results := make([]string, 0, len(edits))
	failedIndex := -1
	for i, e := range edits {
		msg, err := ExecuteEdit(ctx, tc, e)
		if err != nil {
			results = append(results, err.Error())
			failedIndex = i
			break
		}
		results = append(results, msg)
	}
	return results, failedIndex
}
