// Package llm provides the model-transport surface the turn executor
// drives: a Streamer abstraction plus a concrete google.golang.org/genai
// adapter. Grounded on
// _examples/theRebelliousNerd-codenerd/internal/embedding/genai.go's
// client construction and internal/shards/coder/llm.go's retry/backoff
// discipline, re-targeted at streaming generation with tool-calling
// instead of one-shot embeddings/completions.
package llm

import (
	"context"
	"strings"
	"time"

	"forge/internal/ferrors"
	"forge/internal/logging"
	"forge/internal/tools"
)

// ToolCall is one function-call request surfaced by the model mid-stream.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Turn is one complete model response: accumulated text plus any tool
// calls it requested before yielding.
type Turn struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
}

// Streamer is the narrow interface the turn executor depends on, so a
// test double never needs a real API key. It has a single Send
// operation: there is no separate Next or Cancel call, and a generation
// in flight is cancelled only through Send's ctx.
type Streamer interface {
	// Send begins a new generation for the given rendered prompt blocks
	// and available tools, returning once the model yields a complete
	// Turn (this port does not expose token-level streaming to callers,
	// since the turn executor only ever acts on whole tool-call batches).
	Send(ctx context.Context, systemPrompt string, messages []Message, toolDefs []ToolDefinition) (*Turn, error)
}

// Message is one rendered prompt-stream block handed to the model.
type Message struct {
	Role    string // "user", "assistant", "tool"
	Content string
}

// ToolDefinition is the model-facing schema for one registered tool.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      tools.ToolSchema
}

// DefsFromRegistry converts a registry's API-exposed tools into
// ToolDefinitions for a Send call.
func DefsFromRegistry(reg *tools.Registry) []ToolDefinition {
	all := reg.All()
	defs := make([]ToolDefinition, 0, len(all))
	for _, t := range all {
		defs = append(defs, ToolDefinition{Name: t.Name, Description: t.Description, Schema: t.Schema})
	}
	return defs
}

// RetryConfig controls SendWithRetry's exponential backoff.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryConfig mirrors coder/llm.go's three-attempt, 500ms-doubling
// schedule.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// SendWithRetry wraps Streamer.Send with exponential backoff on
// retryable transport errors, surfacing ferrors.ModelUnavailable once
// the budget is exhausted and ferrors.ModelRejected immediately on a
// non-retryable failure (auth, quota, malformed request).
func SendWithRetry(ctx context.Context, s Streamer, cfg RetryConfig, systemPrompt string, messages []Message, toolDefs []ToolDefinition) (*Turn, error) {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.BaseDelay * time.Duration(1<<uint(attempt-1))
			logging.Get(logging.CategoryExecutor).Debug("llm retry attempt %d/%d after %v", attempt+1, cfg.MaxAttempts, delay)
			select {
			case <-ctx.Done():
				return nil, ferrors.ModelUnavailableAfter(attempt, ctx.Err())
			case <-time.After(delay):
			}
		}
		turn, err := s.Send(ctx, systemPrompt, messages, toolDefs)
		if err == nil {
			return turn, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, ferrors.ModelRejectedDetail(err.Error(), err)
		}
	}
	return nil, ferrors.ModelUnavailableAfter(cfg.MaxAttempts, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, p := range []string{"unauthorized", "forbidden", "invalid api key", "401", "403", "quota", "malformed", "invalid argument", "invalid_argument"} {
		if strings.Contains(s, p) {
			return false
		}
	}
	for _, p := range []string{"timeout", "connection", "network", "temporary", "rate limit", "503", "502", "429", "context deadline exceeded"} {
		if strings.Contains(s, p) {
			return true
		}
	}
	return true
}
