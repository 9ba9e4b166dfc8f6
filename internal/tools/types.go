// Package tools provides the tool registry and execution surface shared
// by built-in and user-authored tools. Registry mechanics are grounded
// on _examples/theRebelliousNerd-codenerd/internal/tools/{registry,types}.go;
// the execution context and side-effect directives are grounded on
// _examples/original_source/forge/tools/{manager,context,side_effects}.py.
package tools

import (
	"context"

	"forge/internal/gitstore"
	"forge/internal/vfs"
)

// ToolCategory classifies tools for intent-based filtering and for the
// Mangle capability policy's tool_category_allowed facts.
type ToolCategory string

const (
	CategoryFile     ToolCategory = "/file"     // read/write/delete/rename/search
	CategorySession  ToolCategory = "/session"  // commit, compact, context
	CategoryCoord    ToolCategory = "/coord"    // spawn_session, wait_session
	CategoryVerify   ToolCategory = "/verify"   // check, run_tests
	CategoryResearch ToolCategory = "/research" // scout, think
	CategoryGeneral  ToolCategory = "/general"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Default     any            `json:"default,omitempty"`
	Enum        []any          `json:"enum,omitempty"`
	Items       *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments, exposed to the
// model as part of its tool-calling surface.
type ToolSchema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// SideEffectKind enumerates the directives a tool's execution may ask
// the turn executor to perform, per spec.md §4.3.
type SideEffectKind int

const (
	// OpenFile adds/removes paths from the session's active-file set
	// (the `update_context` built-in emits this).
	OpenFile SideEffectKind = iota
	// EphemeralResult marks the tool-result block that will be appended
	// as droppable at the next turn boundary (the default for most
	// read-only tools).
	EphemeralResult
	// CommitNow asks the executor to fold the current overlay into a
	// commit before continuing the turn (e.g. after `commit`).
	CommitNow
	// SpawnChild asks the executor to create and register a new live
	// session as a child of the current one.
	SpawnChild
	// WaitChildren asks the executor to suspend into WAITING_CHILDREN.
	WaitChildren
)

// SideEffect is one directive returned alongside a tool's textual result.
type SideEffect struct {
	Kind SideEffectKind

	// OpenFile
	AddFiles    []string
	RemoveFiles []string

	// CommitNow
	CommitMessage string

	// SpawnChild
	ChildBranch  string
	ChildTask    string
	ChildIntent  string

	// WaitChildren
	WaitBranches []string
}

// Context is the narrow interface a tool's Execute function receives —
// never the full session or registry, so a tool cannot reach outside
// its branch's overlay. Grounded on tools/context.py's ToolContext /
// get_tool_api_version split between v1 (vfs-only) and v2 (full
// context) tools; this Go port always hands the full Context, since Go
// has no runtime "does this function take one or two args" probe the
// way the python original's inspect-based dispatch does.
type Context struct {
	Workspace *vfs.Workspace
	Branch    string
	SessionID string

	// Store and Identity are set by the turn executor on every call;
	// merge_session uses them to write history directly.
	Store    *gitstore.Store
	Identity gitstore.Identity
}

// ExecuteFunc is the signature every tool implements.
type ExecuteFunc func(ctx context.Context, tc *Context, args map[string]any) (result string, effects []SideEffect, err error)

// Tool defines one registered tool, built-in or user-authored.
type Tool struct {
	Name            string
	Description     string
	Category        ToolCategory
	Execute         ExecuteFunc
	Schema          ToolSchema
	Priority        int
	RequiresContext bool
	// Invocation is "api" (default, exposed to the model's structured
	// tool-calling surface) or "inline" (only reachable via the inline
	// pseudo-XML command channel), matching tools/manager.py's
	// invocation field on discover_tools' filtering.
	Invocation string

	// Builtin tools bypass the approval gate entirely; user tools loaded
	// from ./tools/ never set this.
	Builtin bool
}

func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

func (t *Tool) WithPriority(priority int) *Tool {
	copy := *t
	copy.Priority = priority
	return &copy
}

// IsInline reports whether the tool is only reachable via the inline
// pseudo-XML command parser, not the model's API tool-calling surface.
func (t *Tool) IsInline() bool { return t.Invocation == "inline" }

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	ToolName   string
	Result     string
	Effects    []SideEffect
	Error      error
	DurationMs int64
}

func (r *ToolResult) IsSuccess() bool { return r.Error == nil }
