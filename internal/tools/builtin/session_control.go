package builtin

import (
	"context"
	"fmt"

	"forge/internal/gitstore"
	"forge/internal/logging"
	"forge/internal/session"
	"forge/internal/tools"
)

// UndoEditTool discards the overlay's pending change for a single path,
// reverting it back to the committed base — the cheap per-file undo,
// distinct from a full workspace reset.
func UndoEditTool() *tools.Tool {
	return &tools.Tool{
		Name:        "undo_edit",
		Description: "Discard the uncommitted change to a single file, reverting it to the last commit",
		Category:    tools.CategoryFile,
		Priority:    60,
		Invocation:  "api",
		Execute:     executeUndoEdit,
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {Type: "string", Description: "The file path to revert"},
			},
		},
	}
}

func executeUndoEdit(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	path, err := argString(args, "path")
	if err != nil {
		return "", nil, err
	}
	base, err := tc.Workspace.Base().Read(path)
	if err != nil {
		// Path was newly added in the overlay and never committed: undo
		// means delete it outright.
		if delErr := tc.Workspace.Delete(ctx, path); delErr != nil {
			return "", nil, delErr
		}
		return fmt.Sprintf("Removed uncommitted file %s", path), []tools.SideEffect{
			{Kind: tools.OpenFile, RemoveFiles: []string{path}},
		}, nil
	}
	if err := tc.Workspace.Write(ctx, path, base); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("Reverted %s to last commit", path), []tools.SideEffect{
		{Kind: tools.OpenFile, AddFiles: []string{path}},
	}, nil
}

// CommitTool folds the workspace's pending changes into a Major commit.
// The commit itself is made by the turn executor in response to the
// CommitNow side effect, through vfs.Workspace.Commit (which holds the
// RefRaced merge-and-retry); the tool itself only validates the
// message and signals intent, matching tools/builtin/commit.py's split
// between the tool surface and SessionManager.commit_changes.
func CommitTool() *tools.Tool {
	return &tools.Tool{
		Name:        "commit",
		Description: "Commit the active branch's pending changes with a message",
		Category:    tools.CategorySession,
		Priority:    95,
		Invocation:  "api",
		Execute:     executeCommit,
		Schema: tools.ToolSchema{
			Required: []string{"message"},
			Properties: map[string]tools.Property{
				"message": {Type: "string", Description: "Commit message"},
			},
		},
	}
}

func executeCommit(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	message, err := argString(args, "message")
	if err != nil {
		return "", nil, err
	}
	if !tc.Workspace.HasPendingChanges() {
		return "Nothing to commit", nil, nil
	}
	logging.Get(logging.CategoryExecutor).Info("commit requested on %s: %s", tc.Branch, message)
	return fmt.Sprintf("Commit requested: %s", message), []tools.SideEffect{
		{Kind: tools.CommitNow, CommitMessage: message},
	}, nil
}

// CompactTool is named after prompts/manager.py's compact() entrypoint.
// It returns a fixed "Compaction requested" result and emits no side
// effect, and the turn executor has no handling for it: no history is
// folded into a summary and no prompt-stream counter is reset.
func CompactTool() *tools.Tool {
	return &tools.Tool{
		Name:        "compact",
		Description: "Compact the conversation history into a summary to free up context",
		Category:    tools.CategorySession,
		Priority:    65,
		Invocation:  "api",
		Execute:     executeCompact,
		Schema:      tools.ToolSchema{},
	}
}

func executeCompact(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	return "Compaction requested", nil, nil
}

// SpawnSessionTool asks the executor to create a child live session on a
// new branch, with cycle-detection performed by the spawner (not here —
// this tool has no visibility into the session registry).
func SpawnSessionTool() *tools.Tool {
	return &tools.Tool{
		Name:        "spawn_session",
		Description: "Spawn a child session on a new branch to work on a sub-task",
		Category:    tools.CategoryCoord,
		Priority:    70,
		Invocation:  "api",
		Execute:     executeSpawnSession,
		Schema: tools.ToolSchema{
			Required: []string{"branch", "task"},
			Properties: map[string]tools.Property{
				"branch": {Type: "string", Description: "Name for the child branch"},
				"task":   {Type: "string", Description: "Task description for the child session"},
				"intent": {Type: "string", Description: "Intent category label for the child session (carried on the spawn directive; not used to filter its tools)"},
			},
		},
	}
}

func executeSpawnSession(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	branch, err := argString(args, "branch")
	if err != nil {
		return "", nil, err
	}
	task, err := argString(args, "task")
	if err != nil {
		return "", nil, err
	}
	intent, _ := args["intent"].(string)
	return fmt.Sprintf("Spawning child session on branch %s", branch), []tools.SideEffect{
		{Kind: tools.SpawnChild, ChildBranch: branch, ChildTask: task, ChildIntent: intent},
	}, nil
}

// WaitSessionTool suspends the current session into WAITING_CHILDREN until
// every named child branch reaches a terminal state.
func WaitSessionTool() *tools.Tool {
	return &tools.Tool{
		Name:        "wait_session",
		Description: "Suspend until the given child sessions complete",
		Category:    tools.CategoryCoord,
		Priority:    70,
		Invocation:  "api",
		Execute:     executeWaitSession,
		Schema: tools.ToolSchema{
			Required: []string{"branches"},
			Properties: map[string]tools.Property{
				"branches": {Type: "array", Description: "Child branch names to wait on", Items: &tools.PropertyItems{Type: "string"}},
			},
		},
	}
}

func executeWaitSession(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	branches := argStringSlice(args, "branches")
	if len(branches) == 0 {
		return "", nil, fmt.Errorf("wait_session: branches is required")
	}
	return fmt.Sprintf("Waiting on %d child session(s)", len(branches)), []tools.SideEffect{
		{Kind: tools.WaitChildren, WaitBranches: branches},
	}, nil
}

// MergeSessionTool merges a completed child branch's commits back into
// the active branch, grounded on
// original_source/forge/tools/builtin/merge_session.py's git-merge-then-
// archive flow, re-expressed against gitstore's ThreeWayMerge/CommitTree
// instead of pygit2's in-memory merge_trees. The per-branch
// .forge/session.json is never let conflict: spec.md §4.5's policy
// (archive the source, keep the destination's) is applied by
// gitstore.Store.MergeKeepingOurs rather than surfacing a MergeConflict
// for a file that is expected to diverge on every merge.
func MergeSessionTool() *tools.Tool {
	return &tools.Tool{
		Name:        "merge_session",
		Description: "Merge a completed child session's branch into the active branch and archive its session record",
		Category:    tools.CategoryCoord,
		Priority:    70,
		Invocation:  "api",
		Execute:     executeMergeSession,
		Schema: tools.ToolSchema{
			Required: []string{"branch"},
			Properties: map[string]tools.Property{
				"branch": {Type: "string", Description: "Child branch name to merge"},
			},
		},
	}
}

func executeMergeSession(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	branch, err := argString(args, "branch")
	if err != nil {
		return "", nil, err
	}
	if tc.Store == nil {
		return "", nil, fmt.Errorf("merge_session: no git store available")
	}

	destTip := tc.Workspace.Base().Ref()
	childTip, err := tc.Store.BranchHead(branch)
	if err != nil {
		return "", nil, fmt.Errorf("merge_session: %w", err)
	}

	base, err := tc.Store.MergeBase(destTip, childTip)
	if err != nil {
		return "", nil, fmt.Errorf("merge_session: %w", err)
	}

	mergedTree, archived, err := tc.Store.MergeKeepingOurs(base, destTip, childTip, map[string]bool{session.RecordPath: true})
	if err != nil {
		return "", nil, fmt.Errorf("merge_session: %w", err)
	}

	newRef, err := tc.Store.CommitTree(tc.Branch, destTip, mergedTree, "merge: "+branch, tc.Identity, gitstore.Major)
	if err != nil {
		return "", nil, fmt.Errorf("merge_session: %w", err)
	}
	tc.Workspace.Rebase(newRef)

	if raw, ok := archived[session.RecordPath]; ok {
		childRecord, err := session.Decode(raw)
		if err == nil {
			if err := session.ArchiveMergedRecord(ctx, tc.Workspace, branch, childRecord); err != nil {
				logging.Get(logging.CategoryExecutor).Warn("merge_session: archiving %s's record: %v", branch, err)
			}
		}
	}

	logging.Get(logging.CategoryExecutor).Info("merged %s into %s at %s", branch, tc.Branch, newRef)
	return fmt.Sprintf("Merged %s into %s", branch, tc.Branch), nil, nil
}

// CheckTool materializes the workspace to a temp directory and runs the
// project's static checks, grounded on core/verification.py's
// check_project step. The command itself is discovery-based (Makefile
// "check" target, else "go vet ./..."), executed with a timeout the way
// the teacher's internal/tools/shell.executeRunCommand runs commands.
func CheckTool() *tools.Tool {
	return &tools.Tool{
		Name:        "check",
		Description: "Run static checks against the active branch's working tree",
		Category:    tools.CategoryVerify,
		Priority:    70,
		Invocation:  "api",
		Execute:     executeCheck,
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{
				"command": {Type: "string", Description: "Override check command (default: go vet ./...)"},
			},
		},
	}
}

func executeCheck(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	dir, err := tc.Workspace.MaterializeToTempDir(ctx)
	if err != nil {
		return "", nil, err
	}
	command, _ := args["command"].(string)
	if command == "" {
		command = discoverCommand(dir, "check", "go vet ./...")
	}
	logVerify(command, dir)
	output, runErr := runDiscoveredCommand(ctx, dir, command)
	result := fmt.Sprintf("Checked working tree at %s with: %s\n%s", dir, command, output)
	if runErr != nil {
		result = fmt.Sprintf("Check failed at %s with: %s\n%s", dir, command, output)
		return result, []tools.SideEffect{{Kind: tools.EphemeralResult}}, runErr
	}
	return result, []tools.SideEffect{{Kind: tools.EphemeralResult}}, nil
}

// RunTestsTool materializes the workspace and runs its test suite.
func RunTestsTool() *tools.Tool {
	return &tools.Tool{
		Name:        "run_tests",
		Description: "Run the project's test suite against the active branch",
		Category:    tools.CategoryVerify,
		Priority:    75,
		Invocation:  "api",
		Execute:     executeRunTests,
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{
				"package": {Type: "string", Description: "Package path to test (default ./...)"},
			},
		},
	}
}

func executeRunTests(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	dir, err := tc.Workspace.MaterializeToTempDir(ctx)
	if err != nil {
		return "", nil, err
	}
	pkg, _ := args["package"].(string)
	if pkg == "" {
		pkg = "./..."
	}
	command := discoverCommand(dir, "test", "go test "+pkg)
	logVerify(command, dir)
	output, runErr := runDiscoveredCommand(ctx, dir, command)
	result := fmt.Sprintf("Ran tests for %s at %s with: %s\n%s", pkg, dir, command, output)
	if runErr != nil {
		result = fmt.Sprintf("Tests failed for %s at %s with: %s\n%s", pkg, dir, command, output)
		return result, []tools.SideEffect{{Kind: tools.EphemeralResult}}, runErr
	}
	return result, []tools.SideEffect{{Kind: tools.EphemeralResult}}, nil
}

// ScoutTool runs a lightweight, read-only reconnaissance pass over the
// active branch: list tracked files matching a prefix, without reading
// their full content — cheaper than grep_open when the agent just needs
// to know what exists.
func ScoutTool() *tools.Tool {
	return &tools.Tool{
		Name:        "scout",
		Description: "List files in the active branch under a path prefix, without reading content",
		Category:    tools.CategoryResearch,
		Priority:    60,
		Invocation:  "api",
		Execute:     executeScout,
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{
				"prefix": {Type: "string", Description: "Path prefix to restrict the listing to"},
			},
		},
	}
}

func executeScout(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	prefix, _ := args["prefix"].(string)
	files, err := tc.Workspace.List(ctx)
	if err != nil {
		return "", nil, err
	}
	var out []string
	for _, f := range files {
		if prefix == "" || hasPathPrefix(f, prefix) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return "No files found", []tools.SideEffect{{Kind: tools.EphemeralResult}}, nil
	}
	result := ""
	for _, f := range out {
		result += f + "\n"
	}
	return result, []tools.SideEffect{{Kind: tools.EphemeralResult}}, nil
}

func hasPathPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	return path[:len(prefix)] == prefix
}

// ThinkTool is a pure scratch-space tool: its argument is returned as an
// ephemeral tool result, and it performs no VFS or
// git action, grounded on tools/builtin/think.py's "private reasoning
// surface" role.
func ThinkTool() *tools.Tool {
	return &tools.Tool{
		Name:        "think",
		Description: "Record a private reasoning note; has no effect on files or history",
		Category:    tools.CategoryResearch,
		Priority:    40,
		Invocation:  "inline",
		Execute:     executeThink,
		Schema: tools.ToolSchema{
			Required: []string{"thought"},
			Properties: map[string]tools.Property{
				"thought": {Type: "string", Description: "The note to record"},
			},
		},
	}
}

func executeThink(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
	thought, err := argString(args, "thought")
	if err != nil {
		return "", nil, err
	}
	return thought, []tools.SideEffect{{Kind: tools.EphemeralResult}}, nil
}
