// Package policy is the Mangle-backed capability ACL answering whether a
// tool category may be dispatched for an intent and which built-in tools
// require approval even though they're marked Builtin. The tool
// registry does not call it. Grounded on
// internal/mangle/engine.go's schema-loading/QueryFacts surface; the
// fact base itself lives in capability.mg, embedded at build time so the
// binary carries no external file dependency.
package policy

import (
	_ "embed"
	"sync"

	"forge/internal/logging"
	"forge/internal/mangle"
)

//go:embed capability.mg
var capabilitySchema string

// Gate wraps a mangle.Engine loaded with the tool capability ACL.
type Gate struct {
	mu     sync.Mutex
	engine *mangle.Engine
}

// NewGate loads the embedded capability schema into a fresh engine.
func NewGate() (*Gate, error) {
	engine, err := mangle.NewEngine(mangle.DefaultConfig(), nil)
	if err != nil {
		return nil, err
	}
	if err := engine.LoadSchemaString(capabilitySchema); err != nil {
		return nil, err
	}
	return &Gate{engine: engine}, nil
}

// CategoryAllows reports whether intent may dispatch to a tool of the
// given category.
func (g *Gate) CategoryAllows(category, intent string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	facts := g.engine.QueryFacts("tool_category_allowed", category, intent)
	allowed := len(facts) > 0
	logging.Get(logging.CategoryApproval).Debug("policy: category=%s intent=%s allowed=%v", category, intent, allowed)
	return allowed
}

// RequiresApproval reports whether a built-in tool is still gated behind
// an explicit approval despite Tool.Builtin being set (e.g. delete_file).
func (g *Gate) RequiresApproval(toolName string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	facts := g.engine.QueryFacts("tool_requires_approval", toolName)
	return len(facts) > 0
}
