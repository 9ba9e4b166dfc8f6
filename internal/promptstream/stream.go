// Package promptstream implements the append-only, cache-optimized
// content-block stream described in spec.md §4.4, ported from
// _examples/original_source/forge/prompts/manager.py.
package promptstream

import (
	"fmt"
	"strings"
	"sync"

	"forge/internal/logging"
)

// BlockType identifies what kind of content a Block carries.
type BlockType string

const (
	BlockSystem      BlockType = "system"
	BlockSummaries   BlockType = "summaries"
	BlockFileContent BlockType = "file_content"
	BlockUserMessage BlockType = "user_message"
	BlockAssistant   BlockType = "assistant_message"
	BlockToolCall    BlockType = "tool_call"
	BlockToolResult  BlockType = "tool_result"
)

// Block is one entry in the stream. Blocks are never physically removed
// once appended — removal is always a soft Deleted flag — so that a
// provider-side prompt cache keyed on the byte-identical prefix never
// sees a block at a given position change identity.
type Block struct {
	Type      BlockType
	Content   string
	Filepath  string // set for BlockFileContent
	ToolCallID string // set for BlockToolCall / BlockToolResult
	Ephemeral bool    // eligible to be dropped once superseded
	Deleted   bool
}

// Compaction thresholds mirror prompts/manager.py's TOKEN_THRESHOLD /
// TOOL_CALL_THRESHOLD / HYSTERESIS_FACTOR nudge state machine.
const (
	tokenThreshold     = 30000
	toolCallThreshold  = 15
	hysteresisFactor   = 0.7
)

// Stream is the ordered, soft-deleting content-block list for one live
// session's conversation with the model.
type Stream struct {
	mu     sync.Mutex
	blocks []*Block

	toolCallsSinceCompaction int
	nudgeSuppressed          bool
}

// New creates a stream seeded with the given system prompt as the first,
// permanent block.
func New(systemPrompt string) *Stream {
	s := &Stream{}
	s.blocks = append(s.blocks, &Block{Type: BlockSystem, Content: systemPrompt})
	return s
}

// SetSummaries replaces any existing summaries block with a fresh one.
// There is always at most one live BlockSummaries block.
func (s *Stream) SetSummaries(summaries map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		if b.Type == BlockSummaries && !b.Deleted {
			b.Deleted = true
		}
	}
	if len(summaries) == 0 {
		return
	}
	var sb strings.Builder
	sb.WriteString("*These summaries were generated when your session started and won't update as files change.*\n\n")
	keys := sortedKeys(summaries)
	for _, k := range keys {
		fmt.Fprintf(&sb, "## %s\n%s\n", k, summaries[k])
	}
	s.blocks = append(s.blocks, &Block{Type: BlockSummaries, Content: sb.String()})
}

// AppendFileContent is the relocate-on-modify algorithm (spec.md §4.4,
// Testable Property #8): it moves filepath's block to the tail of the
// stream, carrying every file block that was positioned after it along
// in their original relative order, and leaves every block at or before
// the oldest untouched file's original position exactly where it was.
func (s *Stream) AppendFileContent(filepath, content, note, toolCallID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toRelocate []*Block
	targetFound := false
	for i := len(s.blocks) - 1; i >= 0; i-- {
		b := s.blocks[i]
		if b.Type != BlockFileContent || b.Deleted {
			continue
		}
		toRelocate = append(toRelocate, b)
		b.Deleted = true
		if b.Filepath == filepath {
			targetFound = true
			break
		}
	}
	if !targetFound {
		// filepath has no live block yet: the file blocks the scan passed
		// over stay where they are.
		for _, b := range toRelocate {
			b.Deleted = false
		}
	}

	if targetFound && len(toRelocate) > 1 {
		// toRelocate[0] is the target itself (last appended during the
		// backward scan); everything after it is files between the
		// target's old position and the stream tail, in reverse order.
		others := toRelocate[1:]
		for i := len(others) - 1; i >= 0; i-- {
			old := others[i]
			s.blocks = append(s.blocks, &Block{
				Type:     BlockFileContent,
				Content:  old.Content,
				Filepath: old.Filepath,
			})
		}
	}

	header := genericFileHeader(filepath, note, toolCallID)
	text := fmt.Sprintf("%s\n\n```\n%s\n```", header, content)
	s.blocks = append(s.blocks, &Block{
		Type:       BlockFileContent,
		Content:    text,
		Filepath:   filepath,
		ToolCallID: toolCallID,
	})
	logging.Get(logging.CategoryPrompt).Debug("relocated file block %s to tail (%d carried)", filepath, len(toRelocate)-1)
}

func genericFileHeader(filepath, note, toolCallID string) string {
	switch {
	case toolCallID != "":
		return fmt.Sprintf("[CONTEXT: File contents for %s after tool call %s. This is purely informative - showing the result of the tool operation.]", filepath, toolCallID)
	case note != "":
		return fmt.Sprintf("[CONTEXT: %s]", note)
	default:
		return fmt.Sprintf("[CONTEXT: File contents for %s. This is purely informative context, not a question.]", filepath)
	}
}

// RemoveFileContent soft-deletes the first live block for filepath
// without relocating anything else — used when a file is removed from
// active context (the caller is expected to have already folded its
// state into a summary, per the python original's comment).
func (s *Stream) RemoveFileContent(filepath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		if b.Type == BlockFileContent && !b.Deleted && b.Filepath == filepath {
			b.Deleted = true
			return
		}
	}
}

// AppendUserMessage appends a new, permanent block — messages are never
// modified in place, only ever added.
func (s *Stream) AppendUserMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, &Block{Type: BlockUserMessage, Content: content})
}

func (s *Stream) AppendAssistantMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, &Block{Type: BlockAssistant, Content: content})
}

// ToolCallRecord is the structured call list carried by a BlockToolCall.
type ToolCallRecord struct {
	ID   string
	Name string
	Args map[string]any
}

// AppendToolCall appends the assistant's accompanying text (may be
// empty) plus the structured calls it is requesting.
func (s *Stream) AppendToolCall(text string, calls []ToolCallRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCallsSinceCompaction++
	s.blocks = append(s.blocks, &Block{Type: BlockToolCall, Content: text})
	_ = calls // structured calls are threaded through session.Message, not the block itself
}

// AppendToolResult appends a tool result block. ephemeral marks it
// droppable at the next turn boundary, replaced by a placeholder summary
// once the model has seen it (spec.md §4.4's bounded-ephemerality rule)
// — set only for tool results the tool itself tagged with the
// EphemeralResult side effect (think, scout, grep_context, ...); a
// durable result like a commit or file edit stays in the cacheable
// prefix untouched by CollapseEphemeral.
func (s *Stream) AppendToolResult(toolCallID, result string, ephemeral bool) error {
	if toolCallID == "" {
		return fmt.Errorf("promptstream: tool_call_id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, &Block{
		Type:       BlockToolResult,
		Content:    result,
		ToolCallID: toolCallID,
		Ephemeral:  ephemeral,
	})
	return nil
}

// CollapseEphemeral replaces every still-live ephemeral block with a
// short placeholder, called at a turn boundary so old tool output does
// not grow the stream unbounded while keeping block identity stable for
// blocks that were never ephemeral.
func (s *Stream) CollapseEphemeral(placeholder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		if b.Ephemeral && !b.Deleted {
			b.Content = placeholder
			b.Ephemeral = false
		}
	}
}

// Render returns the live (non-deleted) blocks in stream order, with
// exactly one ephemeral marker applied to the last block — mirroring
// the "single cache_control marker always on the tail" invariant.
type RenderedBlock struct {
	Type            BlockType
	Content         string
	CacheCheckpoint bool
}

func (s *Stream) Render() []RenderedBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []RenderedBlock
	for _, b := range s.blocks {
		if b.Deleted {
			continue
		}
		out = append(out, RenderedBlock{Type: b.Type, Content: b.Content})
	}
	if len(out) > 0 {
		out[len(out)-1].CacheCheckpoint = true
	}
	return out
}

// EstimateTokens uses the same rough heuristic as the python original
// (len(text)//4) summed across live blocks.
func (s *Stream) EstimateTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, b := range s.blocks {
		if !b.Deleted {
			total += len(b.Content) / 4
		}
	}
	return total
}

// ShouldNudgeCompaction reports whether the stream should surface a
// context_updated observer event suggesting the agent call `compact`:
// true on every call while the estimated token count or the tool-call
// count since the last compaction is at or over its threshold.
// nudgeSuppressed is recorded but does not change the result, so no
// hysteresis is applied to repeated nudges.
func (s *Stream) ShouldNudgeCompaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := 0
	for _, b := range s.blocks {
		if !b.Deleted {
			tokens += len(b.Content) / 4
		}
	}
	over := tokens >= tokenThreshold || s.toolCallsSinceCompaction >= toolCallThreshold
	if over {
		s.nudgeSuppressed = true
		return true
	}
	if s.nudgeSuppressed && float64(tokens) < float64(tokenThreshold)*hysteresisFactor {
		s.nudgeSuppressed = false
	}
	return false
}

// NoteCompaction resets the tool-call counter after a `compact` tool
// call folds history into a fresh summary block.
func (s *Stream) NoteCompaction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCallsSinceCompaction = 0
	s.nudgeSuppressed = false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
