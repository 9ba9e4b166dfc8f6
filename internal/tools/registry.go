package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"forge/internal/logging"
)

// Registry holds all available tools and provides lookup functionality.
// It is thread-safe and supports registration at runtime. Grounded on
// _examples/theRebelliousNerd-codenerd/internal/tools/registry.go.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	// byCategory provides fast lookup by category.
	byCategory map[ToolCategory][]*Tool

	// approved gates non-built-in tools on an approval check before
	// ExecuteTool runs them. Tools with Builtin set bypass approval.
	approved ApprovalChecker
}

// ApprovalChecker answers whether a user tool's current content has been
// approved for execution. Implemented by internal/tools/approval.Record.
type ApprovalChecker interface {
	IsApproved(name, contentHash string) bool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]*Tool),
		byCategory: make(map[ToolCategory][]*Tool),
	}
}

// SetApprovalChecker wires the registry to an approval record so
// ExecuteTool can refuse unapproved user tools.
func (r *Registry) SetApprovalChecker(a ApprovalChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approved = a
}

// Register adds a tool to the registry. Returns an error if a tool with
// the same name already exists.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}

	if tool.Priority == 0 {
		tool.Priority = 50
	}

	r.tools[tool.Name] = tool
	r.byCategory[tool.Category] = append(r.byCategory[tool.Category], tool)

	logging.Get(logging.CategoryTools).Debug("registered tool: %s (category=%s, priority=%d)", tool.Name, tool.Category, tool.Priority)
	return nil
}

// MustRegister registers a tool and panics on error. Use for static
// tool registration at init time.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Unregister removes a tool by name, if present. Used by
// tools/userload's file-watcher to drop a user tool before
// re-registering its reloaded definition.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tool, ok := r.tools[name]
	if !ok {
		return
	}
	delete(r.tools, name)
	bucket := r.byCategory[tool.Category]
	for i, t := range bucket {
		if t.Name == name {
			r.byCategory[tool.Category] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has returns true if a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// GetByCategory returns all tools in a category, sorted by priority
// (descending).
func (r *Registry) GetByCategory(category ToolCategory) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, len(r.byCategory[category]))
	copy(tools, r.byCategory[category])

	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Priority > tools[j].Priority
	})

	return tools
}

// GetMultiple returns tools matching the given names. Missing tools are
// silently skipped.
func (r *Registry) GetMultiple(names []string) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			result = append(result, tool)
		}
	}
	return result
}

// All returns all registered tools, excluding inline-only ones — the
// set exposed to the model's structured tool-calling surface, per
// tools/manager.py's discover_tools -> _filter_inline_tools.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		if tool.IsInline() {
			continue
		}
		result = append(result, tool)
	}
	return result
}

// AllIncludingInline returns every registered tool regardless of
// invocation channel.
func (r *Registry) AllIncludingInline() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	return result
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name with the given arguments. Returns
// ErrToolNotFound if the tool doesn't exist.
func (r *Registry) Execute(ctx context.Context, tc *Context, name string, args map[string]any) (*ToolResult, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return r.ExecuteTool(ctx, tool, tc, args)
}

// ExecuteTool runs a specific tool with the given arguments, refusing
// unapproved user tools before invocation.
func (r *Registry) ExecuteTool(ctx context.Context, tool *Tool, tc *Context, args map[string]any) (*ToolResult, error) {
	start := time.Now()

	if err := r.validateArgs(tool, args); err != nil {
		return &ToolResult{ToolName: tool.Name, Error: err, DurationMs: time.Since(start).Milliseconds()}, err
	}

	if err := r.approvalGate(tool); err != nil {
		return &ToolResult{ToolName: tool.Name, Error: err, DurationMs: time.Since(start).Milliseconds()}, err
	}

	logging.Get(logging.CategoryTools).Debug("executing tool: %s", tool.Name)
	result, effects, err := tool.Execute(ctx, tc, args)
	duration := time.Since(start)
	logging.Get(logging.CategoryTools).Debug("tool %s completed in %v (success=%v)", tool.Name, duration, err == nil)

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	logging.Audit().ToolExec(tool.Name, "execute", duration.Milliseconds(), err == nil, errMsg)

	return &ToolResult{
		ToolName:   tool.Name,
		Result:     result,
		Effects:    effects,
		Error:      err,
		DurationMs: duration.Milliseconds(),
	}, err
}

func (r *Registry) approvalGate(tool *Tool) error {
	r.mu.RLock()
	checker := r.approved
	r.mu.RUnlock()
	if checker == nil {
		return nil
	}
	if tool.Builtin {
		return nil
	}
	// No content hash is passed, so the checker only confirms that the
	// tool name has a recorded approval (see approval.Record.IsApproved);
	// the source hash is compared when userload loads or reloads the
	// tool file, not here.
	if !checker.IsApproved(tool.Name, "") {
		return fmt.Errorf("%w: %s", ErrToolNotApproved, tool.Name)
	}
	return nil
}

// validateArgs checks that all required arguments are present.
func (r *Registry) validateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	return nil
}

// FilterByIntent returns tools that match the given intent category.
func (r *Registry) FilterByIntent(intent string) []*Tool {
	category := intentToCategory(intent)
	if category == "" {
		return r.All()
	}
	return r.GetByCategory(category)
}

func intentToCategory(intent string) ToolCategory {
	switch intent {
	case "/spawn", "/wait", "/coordinate":
		return CategoryCoord
	case "/commit", "/compact", "/context":
		return CategorySession
	case "/test", "/check", "/verify":
		return CategoryVerify
	case "/scout", "/research", "/think":
		return CategoryResearch
	case "/edit", "/write", "/read", "/search":
		return CategoryFile
	default:
		return CategoryGeneral
	}
}

// Global registry instance for convenience, mirroring the teacher's
// process-wide Global() alongside per-repository instances used by
// tests for isolation.
var globalRegistry = NewRegistry()

func Global() *Registry { return globalRegistry }

func Register(tool *Tool) error { return globalRegistry.Register(tool) }

func MustRegisterGlobal(tool *Tool) { globalRegistry.MustRegister(tool) }

func Get(name string) *Tool { return globalRegistry.Get(name) }

func Execute(ctx context.Context, tc *Context, name string, args map[string]any) (*ToolResult, error) {
	return globalRegistry.Execute(ctx, tc, name, args)
}
