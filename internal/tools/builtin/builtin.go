// Package builtin implements the built-in tool set every session registry
// carries regardless of user-authored tools: file mutation against the
// branch's vfs.Workspace overlay, grep/context tools, and the session
// control tools (commit, compact, spawn_session, wait_session, check,
// run_tests, scout, think). Grounded on
// _examples/theRebelliousNerd-codenerd/internal/tools/core/{file_ops,search,register}.go,
// re-targeted at the vfs.Workspace overlay instead of the real filesystem,
// and on original_source/forge/tools/builtin/*.py for the session-control
// tools' semantics.
package builtin

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"forge/internal/logging"
	"forge/internal/tools"
)

// RegisterAll registers every built-in tool with the registry, mirroring
// the teacher's core.RegisterAll loop-of-MustRegister pattern.
func RegisterAll(registry *tools.Registry) error {
	all := []*tools.Tool{
		WriteFileTool(),
		DeleteFileTool(),
		RenameFileTool(),
		SearchReplaceTool(),
		GetLinesTool(),
		UpdateContextTool(),
		GrepOpenTool(),
		GrepContextTool(),
		UndoEditTool(),
		CommitTool(),
		CompactTool(),
		SpawnSessionTool(),
		WaitSessionTool(),
		MergeSessionTool(),
		CheckTool(),
		RunTestsTool(),
		ScoutTool(),
		ThinkTool(),
	}
	for _, t := range all {
		t.Builtin = true
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("builtin: registering %s: %w", t.Name, err)
		}
	}
	return nil
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", tools.ErrMissingRequiredArg, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s", tools.ErrInvalidArgType, key)
	}
	return s, nil
}

func argStringSlice(args map[string]any, key string) []string {
	v, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, e := range v {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// WriteFileTool writes content to path in the claimed workspace overlay,
// creating it if absent.
func WriteFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "write_file",
		Description: "Write content to a file in the active branch, creating it if it doesn't exist",
		Category:    tools.CategoryFile,
		Priority:    80,
		Invocation:  "api",
		Execute:     executeWriteFile,
		Schema: tools.ToolSchema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path":    {Type: "string", Description: "The file path to write"},
				"content": {Type: "string", Description: "The content to write"},
			},
		},
	}
}

func executeWriteFile(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	path, err := argString(args, "path")
	if err != nil {
		return "", nil, err
	}
	content, _ := args["content"].(string)

	if err := tc.Workspace.Write(ctx, path, content); err != nil {
		return "", nil, err
	}
	logging.Get(logging.CategoryTools).Debug("write_file: %s (%d bytes)", path, len(content))
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), []tools.SideEffect{
		{Kind: tools.OpenFile, AddFiles: []string{path}},
	}, nil
}

// DeleteFileTool queues path's removal in the overlay. Idempotent, per
// vfs.Workspace.Delete's contract.
func DeleteFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "delete_file",
		Description: "Delete a file from the active branch",
		Category:    tools.CategoryFile,
		Priority:    50,
		Invocation:  "api",
		Execute:     executeDeleteFile,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {Type: "string", Description: "The file path to delete"},
			},
		},
	}
}

func executeDeleteFile(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	path, err := argString(args, "path")
	if err != nil {
		return "", nil, err
	}
	if err := tc.Workspace.Delete(ctx, path); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Deleted %s", path), []tools.SideEffect{
		{Kind: tools.OpenFile, RemoveFiles: []string{path}},
	}, nil
}

// RenameFileTool moves a file by reading its content at the old path,
// writing it at the new path, and deleting the old path — the overlay has
// no native rename primitive, matching work_in_progress.py's lack of one.
func RenameFileTool() *tools.Tool {
	return &tools.Tool{
		Name:        "rename_file",
		Description: "Rename or move a file within the active branch",
		Category:    tools.CategoryFile,
		Priority:    70,
		Invocation:  "api",
		Execute:     executeRenameFile,
		Schema: tools.ToolSchema{
			Required: []string{"from", "to"},
			Properties: map[string]tools.Property{
				"from": {Type: "string", Description: "Current file path"},
				"to":   {Type: "string", Description: "New file path"},
			},
		},
	}
}

func executeRenameFile(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	from, err := argString(args, "from")
	if err != nil {
		return "", nil, err
	}
	to, err := argString(args, "to")
	if err != nil {
		return "", nil, err
	}
	content, err := tc.Workspace.Read(ctx, from)
	if err != nil {
		return "", nil, err
	}
	if err := tc.Workspace.Write(ctx, to, content); err != nil {
		return "", nil, err
	}
	if err := tc.Workspace.Delete(ctx, from); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Renamed %s to %s", from, to), []tools.SideEffect{
		{Kind: tools.OpenFile, AddFiles: []string{to}, RemoveFiles: []string{from}},
	}, nil
}

// SearchReplaceTool edits a file by replacing the first (or every)
// occurrence of old_text with new_text.
func SearchReplaceTool() *tools.Tool {
	return &tools.Tool{
		Name:        "search_replace",
		Description: "Replace text in a file within the active branch",
		Category:    tools.CategoryFile,
		Priority:    85,
		Invocation:  "api",
		Execute:     executeSearchReplace,
		Schema: tools.ToolSchema{
			Required: []string{"path", "old_text", "new_text"},
			Properties: map[string]tools.Property{
				"path":        {Type: "string", Description: "The file path to edit"},
				"old_text":    {Type: "string", Description: "The text to find and replace"},
				"new_text":    {Type: "string", Description: "The replacement text"},
				"replace_all": {Type: "boolean", Description: "Replace all occurrences (default false)", Default: false},
			},
		},
	}
}

func executeSearchReplace(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	path, err := argString(args, "path")
	if err != nil {
		return "", nil, err
	}
	oldText, err := argString(args, "old_text")
	if err != nil {
		return "", nil, err
	}
	newText, _ := args["new_text"].(string)
	replaceAll, _ := args["replace_all"].(bool)

	content, err := tc.Workspace.Read(ctx, path)
	if err != nil {
		return "", nil, err
	}
	occurrences := strings.Count(content, oldText)
	if occurrences == 0 {
		return "", nil, fmt.Errorf("search_replace: old_text not found in %s", path)
	}
	if occurrences > 1 && !replaceAll {
		return "", nil, fmt.Errorf("search_replace: AmbiguousMatch: old_text occurs %d times in %s; pass replace_all=true or narrow the match", occurrences, path)
	}

	var updated string
	var count int
	if replaceAll {
		count = occurrences
		updated = strings.ReplaceAll(content, oldText, newText)
	} else {
		count = 1
		updated = strings.Replace(content, oldText, newText, 1)
	}
	if err := tc.Workspace.Write(ctx, path, updated); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Replaced %d occurrence(s) in %s", count, path), []tools.SideEffect{
		{Kind: tools.OpenFile, AddFiles: []string{path}},
	}, nil
}

// GetLinesTool returns a line range from a file in the active branch.
func GetLinesTool() *tools.Tool {
	return &tools.Tool{
		Name:        "get_lines",
		Description: "Read a line range from a file in the active branch",
		Category:    tools.CategoryFile,
		Priority:    90,
		Invocation:  "api",
		Execute:     executeGetLines,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path":       {Type: "string", Description: "The file path to read"},
				"start_line": {Type: "integer", Description: "Starting line (1-indexed, optional)"},
				"end_line":   {Type: "integer", Description: "Ending line, inclusive (optional)"},
			},
		},
	}
}

func executeGetLines(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	path, err := argString(args, "path")
	if err != nil {
		return "", nil, err
	}
	content, err := tc.Workspace.Read(ctx, path)
	if err != nil {
		return "", nil, err
	}
	_, hasStart := args["start_line"]
	_, hasEnd := args["end_line"]
	if !hasStart && !hasEnd {
		return content, nil, nil
	}
	lines := strings.Split(content, "\n")
	start := argInt(args, "start_line", 1) - 1
	end := argInt(args, "end_line", len(lines))
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		start = end
	}
	return strings.Join(lines[start:end], "\n"), nil, nil
}

// UpdateContextTool adjusts the session's active-file set, reflected back
// to the prompt stream via an OpenFile side effect.
func UpdateContextTool() *tools.Tool {
	return &tools.Tool{
		Name:        "update_context",
		Description: "Add or remove files from the active context window",
		Category:    tools.CategorySession,
		Priority:    75,
		Invocation:  "api",
		Execute:     executeUpdateContext,
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{
				"add":    {Type: "array", Description: "Paths to add to context", Items: &tools.PropertyItems{Type: "string"}},
				"remove": {Type: "array", Description: "Paths to drop from context", Items: &tools.PropertyItems{Type: "string"}},
			},
		},
	}
}

func executeUpdateContext(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	add := argStringSlice(args, "add")
	remove := argStringSlice(args, "remove")
	if len(add) == 0 && len(remove) == 0 {
		return "", nil, fmt.Errorf("update_context: at least one of add/remove is required")
	}
	return fmt.Sprintf("Context updated: +%d -%d", len(add), len(remove)), []tools.SideEffect{
		{Kind: tools.OpenFile, AddFiles: add, RemoveFiles: remove},
	}, nil
}

// GrepOpenTool searches file contents across the active branch's tracked
// files using a regular expression.
func GrepOpenTool() *tools.Tool {
	return &tools.Tool{
		Name:        "grep_open",
		Description: "Search file contents across the active branch with a regular expression",
		Category:    tools.CategoryFile,
		Priority:    85,
		Invocation:  "api",
		Execute:     executeGrepOpen,
		Schema: tools.ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern":      {Type: "string", Description: "Regular expression to search for"},
				"path_prefix":  {Type: "string", Description: "Restrict search to paths under this prefix"},
				"max_results":  {Type: "integer", Description: "Maximum number of matches (default 50)", Default: 50},
				"ignore_case":  {Type: "boolean", Description: "Case-insensitive search", Default: false},
			},
		},
	}
}

func executeGrepOpen(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	pattern, err := argString(args, "pattern")
	if err != nil {
		return "", nil, err
	}
	prefix, _ := args["path_prefix"].(string)
	maxResults := argInt(args, "max_results", 50)
	if ic, _ := args["ignore_case"].(bool); ic {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", nil, fmt.Errorf("grep_open: invalid pattern: %w", err)
	}

	files, err := tc.Workspace.List(ctx)
	if err != nil {
		return "", nil, err
	}
	sort.Strings(files)

	var sb strings.Builder
	var opened []string
	matches := 0
	for _, f := range files {
		if matches >= maxResults {
			break
		}
		if prefix != "" && !strings.HasPrefix(f, prefix) {
			continue
		}
		if tc.Workspace.IsBinary(f) {
			continue
		}
		content, err := tc.Workspace.Read(ctx, f)
		if err != nil {
			continue
		}
		fileMatched := false
		for i, line := range strings.Split(content, "\n") {
			if matches >= maxResults {
				break
			}
			if re.MatchString(line) {
				fmt.Fprintf(&sb, "%s:%d: %s\n", f, i+1, strings.TrimSpace(line))
				matches++
				fileMatched = true
			}
		}
		if fileMatched {
			opened = append(opened, f)
		}
	}
	if matches == 0 {
		return "No matches found for pattern: " + pattern, nil, nil
	}
	return sb.String(), []tools.SideEffect{
		{Kind: tools.OpenFile, AddFiles: opened},
	}, nil
}

// GrepContextTool searches file contents the same way grep_open does, but
// returns bounded before/after snippet windows around each match instead
// of adding files to the active context, grounded on
// original_source/forge/tools/builtin/grep_context.py's context_before/
// context_after windowing — an ephemeral peek the prompt stream can drop
// at the next turn boundary rather than a file-opening action.
func GrepContextTool() *tools.Tool {
	return &tools.Tool{
		Name:        "grep_context",
		Description: "Search file contents and return before/after context snippets without adding files to active context",
		Category:    tools.CategoryFile,
		Priority:    80,
		Invocation:  "api",
		Execute:     executeGrepContext,
		Schema: tools.ToolSchema{
			Required: []string{"pattern"},
			Properties: map[string]tools.Property{
				"pattern":     {Type: "string", Description: "Regular expression to search for"},
				"before":      {Type: "integer", Description: "Lines of context before each match (default 3)", Default: 3},
				"after":       {Type: "integer", Description: "Lines of context after each match (default 3)", Default: 3},
				"path_prefix": {Type: "string", Description: "Restrict search to paths under this prefix"},
				"max_results": {Type: "integer", Description: "Maximum number of matches (default 10)", Default: 10},
				"ignore_case": {Type: "boolean", Description: "Case-insensitive search", Default: false},
			},
		},
	}
}

func executeGrepContext(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	pattern, err := argString(args, "pattern")
	if err != nil {
		return "", nil, err
	}
	prefix, _ := args["path_prefix"].(string)
	before := argInt(args, "before", 3)
	after := argInt(args, "after", 3)
	maxResults := argInt(args, "max_results", 10)
	if ic, _ := args["ignore_case"].(bool); ic {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", nil, fmt.Errorf("grep_context: invalid pattern: %w", err)
	}

	files, err := tc.Workspace.List(ctx)
	if err != nil {
		return "", nil, err
	}
	sort.Strings(files)

	var sb strings.Builder
	matches := 0
	total := 0
	for _, f := range files {
		if prefix != "" && !strings.HasPrefix(f, prefix) {
			continue
		}
		if tc.Workspace.IsBinary(f) {
			continue
		}
		content, err := tc.Workspace.Read(ctx, f)
		if err != nil {
			continue
		}
		lines := strings.Split(content, "\n")
		for i, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			total++
			if matches >= maxResults {
				continue
			}
			start := i - before
			if start < 0 {
				start = 0
			}
			end := i + after + 1
			if end > len(lines) {
				end = len(lines)
			}
			fmt.Fprintf(&sb, "── %s:%d ──\n", f, i+1)
			for j := start; j < end; j++ {
				marker := "   "
				if j == i {
					marker = ">>>"
				}
				fmt.Fprintf(&sb, "%s %4d | %s\n", marker, j+1, lines[j])
			}
			sb.WriteByte('\n')
			matches++
		}
	}
	if matches == 0 {
		return "No matches found for pattern: " + pattern, []tools.SideEffect{{Kind: tools.EphemeralResult}}, nil
	}
	result := strings.TrimRight(sb.String(), "\n")
	if total > matches {
		result = fmt.Sprintf("%s\n\n(showing %d of %d total matches)", result, matches, total)
	}
	return result, []tools.SideEffect{{Kind: tools.EphemeralResult}}, nil
}
