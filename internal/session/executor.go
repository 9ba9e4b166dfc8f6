package session

import (
	"context"
	"fmt"
	"time"

	"forge/internal/ferrors"
	"forge/internal/gitstore"
	"forge/internal/llm"
	"forge/internal/logging"
	"forge/internal/promptstream"
	"forge/internal/tools"
)

// Executor drives one agent turn to completion for a Live session,
// implementing the state machine of spec.md §4.6:
//
//	IDLE → STREAMING → [TOOLCALLS? → EXECUTING → STREAMING]* → FINALISING → IDLE|COMPLETED|ERROR
//	                                       ↓
//	                                 WAITING_CHILDREN
//	                                       ↓
//	                                 (resume as STREAMING)
//
// Grounded on the teacher's Executor.Process pipeline shape (observe →
// compile → generate → dispatch tools → articulate) but re-targeted:
// there is no JIT compiler and no Mangle intent kernel in the dispatch
// path — "compile" here means assembling the promptstream.Stream render
// and the registry's tool definitions, and "observe" is simply draining
// the pending input queue a user or parent session enqueued.
type Executor struct {
	store        *gitstore.Store
	registry     *Registry
	toolRegistry *tools.Registry
	spawner      *Spawner
	streamer     llm.Streamer
	commitMsgLLM llm.Streamer // may be the same as streamer, or a cheaper model
	identity     gitstore.Identity
	retry        llm.RetryConfig
	maxToolCalls int
	systemPrompt string
}

// NewExecutor wires an Executor to its dependencies. commitMsgLLM may be
// nil, in which case commit messages always fall back to the mechanical
// "edit: <file>" / "edit: N files" form (spec.md §4.6 finalisation).
func NewExecutor(store *gitstore.Store, registry *Registry, toolRegistry *tools.Registry, spawner *Spawner, streamer llm.Streamer, commitMsgLLM llm.Streamer, identity gitstore.Identity, systemPrompt string) *Executor {
	return &Executor{
		store:        store,
		registry:     registry,
		toolRegistry: toolRegistry,
		spawner:      spawner,
		streamer:     streamer,
		commitMsgLLM: commitMsgLLM,
		identity:     identity,
		retry:        llm.DefaultRetryConfig(),
		maxToolCalls: 50,
		systemPrompt: systemPrompt,
	}
}

// RunTurn drives live through exactly one turn: Start, zero-or-more
// Streaming/TOOLCALLS/EXECUTING cycles, and Finalisation — or suspends
// into WAITING_CHILDREN and blocks until the await is satisfied before
// resuming STREAMING, all within this call (spec.md §5 runs each live
// session's turn executor on its own dedicated worker goroutine, so a
// blocking wait here only ever parks that one worker).
func (e *Executor) RunTurn(ctx context.Context, live *Live) (err error) {
	live.SetState(StateRunning)
	stream := live.EnsureStream(ctx, e.systemPrompt)
	stream.CollapseEphemeral("[prior tool output omitted]")

	turnStart := time.Now()
	turnNum := len(live.Record.Messages)
	defer func() {
		logging.Audit().TurnEnd(live.Branch, turnNum, time.Since(turnStart).Milliseconds(), err == nil)
	}()

	for _, msg := range live.DrainInput() {
		stream.AppendUserMessage(msg)
		live.Record.Messages = append(live.Record.Messages, Message{Role: "user", Content: msg})
		live.Bus.Emit(Event{Kind: EventMessageAppended, Branch: live.Branch})
		logging.Audit().TurnStart(live.Branch, turnNum, len(msg))
	}

	claimCtx := live.Workspace.Claim().ClaimFor(ctx)
	released := false
	release := func() {
		if !released {
			live.Workspace.Claim().Release(claimCtx)
			released = true
		}
	}
	defer release()

	toolCallCount := 0
	for {
		if ctx.Err() != nil {
			return e.cancelDuringStreaming(live, stream, "")
		}

		messages := renderMessages(stream)
		defs := llm.DefsFromRegistry(e.toolRegistry)
		turn, err := llm.SendWithRetry(ctx, e.streamer, e.retry, e.systemPrompt, messages, defs)
		if err != nil {
			if ctx.Err() != nil {
				return e.cancelDuringStreaming(live, stream, "")
			}
			live.SetState(StateError)
			live.Bus.Emit(Event{Kind: EventError, Branch: live.Branch, ErrorKind: "model_unavailable", ErrorDetail: err.Error()})
			return err
		}

		if turn.Text != "" {
			stream.AppendAssistantMessage(turn.Text)
		}

		tc := &tools.Context{Workspace: live.Workspace, Branch: live.Branch, SessionID: live.Branch, Store: e.store, Identity: e.identity}
		if edits := ParseEdits(turn.Text); len(edits) > 0 {
			results, _ := ExecuteEdits(claimCtx, tc, edits)
			for i, r := range results {
				if i < len(edits) {
					live.MarkTouched(edits[i].File)
				}
				logging.Get(logging.CategorySession).Debug("inline edit: %s", r)
			}
		}

		assistantMsg := Message{Role: "assistant", Content: turn.Text}
		for _, c := range turn.ToolCalls {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, ToolCallRef{ID: c.ID, Name: c.Name, Args: c.Args})
		}
		live.Record.Messages = append(live.Record.Messages, assistantMsg)

		if len(turn.ToolCalls) == 0 {
			break
		}

		stream.AppendToolCall(turn.Text, toolCallRecords(turn.ToolCalls))

		wait, err := e.dispatchToolCalls(claimCtx, live, stream, turn.ToolCalls, &toolCallCount)
		if err != nil {
			live.SetState(StateError)
			live.Bus.Emit(Event{Kind: EventError, Branch: live.Branch, ErrorKind: "tool_failed", ErrorDetail: err.Error()})
			return err
		}
		if ctx.Err() != nil {
			return e.cancelDuringTool(live)
		}
		if wait != nil {
			live.Record.PendingWait = wait
			live.SetState(StateWaitingChildren)
			if err := e.commitTurn(claimCtx, live, stream, "chore: await child session(s)"); err != nil {
				live.SetState(StateError)
				return err
			}
			release()

			if err := live.resumeSignal.wait(ctx); err != nil {
				return err
			}

			claimCtx = live.Workspace.Claim().ClaimFor(ctx)
			released = false
			live.SetState(StateRunning)
			live.Record.PendingWait = nil
			for _, child := range wait.Branches {
				stream.AppendUserMessage(fmt.Sprintf("[CONTEXT: child session %s: %s]", child, e.childSummary(child)))
			}
		}
	}

	if err := e.commitTurn(claimCtx, live, stream, ""); err != nil {
		live.SetState(StateError)
		return err
	}
	live.SetState(StateIdle)
	e.registry.NotifyChildCompleted(live.Branch)
	return nil
}

// childSummary returns a short description of a completed child's
// result for injection into the parent's next turn input (spec.md
// Scenario F: "P's next turn input contains C's result").
func (e *Executor) childSummary(branch string) string {
	if l, ok := e.registry.Get(branch); ok {
		for i := len(l.Record.Messages) - 1; i >= 0; i-- {
			if l.Record.Messages[i].Role == "assistant" {
				return l.Record.Messages[i].Content
			}
		}
	}
	return "(completed, no assistant message recorded)"
}

// dispatchToolCalls executes calls strictly in order (spec.md §4.6
// Determinism aids: the model's tool-call batch is a FIFO queue, never
// parallelised, since tools share the claimed VFS). Returns a non-nil
// *PendingWait the moment a WaitChildren directive is seen; any calls
// after that one in the same batch are left unexecuted, mirroring the
// executor suspending the turn at that point rather than racing ahead.
func (e *Executor) dispatchToolCalls(ctx context.Context, live *Live, stream *promptstream.Stream, calls []llm.ToolCall, counter *int) (*PendingWait, error) {
	tc := &tools.Context{Workspace: live.Workspace, Branch: live.Branch, SessionID: live.Branch, Store: e.store, Identity: e.identity}

	for _, call := range calls {
		if ctx.Err() != nil {
			return nil, nil
		}
		*counter++
		if *counter > e.maxToolCalls {
			e.appendToolResult(live, stream, call.ID, "tool call budget exceeded for this turn", true)
			continue
		}

		live.Bus.Emit(Event{Kind: EventToolCallStarted, Branch: live.Branch, ToolName: call.Name, ToolCallID: call.ID})
		result, err := e.toolRegistry.Execute(ctx, tc, call.Name, call.Args)
		if err != nil {
			if fe, ok := ferrors.As(err); ok && fe.Kind == ferrors.KindToolNotApproved {
				live.Bus.Emit(Event{Kind: EventApprovalRequired, Branch: live.Branch, ToolName: call.Name, ApprovalHash: fe.Path})
			}
			e.appendToolResult(live, stream, call.ID, "error: "+err.Error(), true)
			live.Bus.Emit(Event{Kind: EventToolCallResult, Branch: live.Branch, ToolName: call.Name, ToolCallID: call.ID, Result: err.Error()})
			continue
		}

		e.appendToolResult(live, stream, call.ID, result.Result, isEphemeralResult(result.Effects))
		live.Bus.Emit(Event{Kind: EventToolCallResult, Branch: live.Branch, ToolName: call.Name, ToolCallID: call.ID, Result: result.Result})

		for _, eff := range result.Effects {
			switch eff.Kind {
			case tools.OpenFile:
				e.applyOpenFile(ctx, live, stream, call.ID, eff)
			case tools.EphemeralResult:
				// Already folded into the Ephemeral flag passed to
				// appendToolResult above; no further action here.
			case tools.CommitNow:
				if err := e.commitTurn(ctx, live, stream, eff.CommitMessage); err != nil {
					return nil, err
				}
			case tools.SpawnChild:
				if e.spawner == nil {
					e.appendToolResult(live, stream, call.ID, "spawn_session: no spawner configured", true)
					continue
				}
				if _, err := e.spawner.Spawn(ctx, SpawnRequest{ParentBranch: live.Branch, ChildBranch: eff.ChildBranch, InitialMessage: eff.ChildTask}); err != nil {
					e.appendToolResult(live, stream, call.ID, "spawn failed: "+err.Error(), true)
				}
			case tools.WaitChildren:
				return &PendingWait{Branches: eff.WaitBranches}, nil
			}
		}
	}
	return nil, nil
}

// isEphemeralResult reports whether the tool's side effects tagged its
// result as droppable at the next turn boundary (spec.md §4.4 invariant
// #4), as opposed to a durable result like a commit or file edit that
// should stay in the cacheable prefix.
func isEphemeralResult(effects []tools.SideEffect) bool {
	for _, eff := range effects {
		if eff.Kind == tools.EphemeralResult {
			return true
		}
	}
	return false
}

func (e *Executor) applyOpenFile(ctx context.Context, live *Live, stream *promptstream.Stream, toolCallID string, eff tools.SideEffect) {
	for _, p := range eff.AddFiles {
		if !containsBranch(live.Record.ActiveFiles, p) {
			live.Record.ActiveFiles = append(live.Record.ActiveFiles, p)
		}
		if content, err := live.Workspace.Read(ctx, p); err == nil {
			stream.AppendFileContent(p, content, "", toolCallID)
		}
	}
	for _, p := range eff.RemoveFiles {
		live.Record.ActiveFiles = removeString(live.Record.ActiveFiles, p)
		stream.RemoveFileContent(p)
	}
	if len(eff.AddFiles) > 0 || len(eff.RemoveFiles) > 0 {
		live.Bus.Emit(Event{Kind: EventContextUpdated, Branch: live.Branch})
	}
}

func (e *Executor) appendToolResult(live *Live, stream *promptstream.Stream, toolCallID, result string, ephemeral bool) {
	live.Record.Messages = append(live.Record.Messages, Message{Role: "tool", Content: result, ToolCallID: toolCallID})
	_ = stream.AppendToolResult(toolCallID, result, ephemeral)
}

// commitTurn persists the session record and materialises the overlay
// into a commit, per spec.md §4.6 Finalisation. An empty message
// triggers commit-message generation: the auxiliary model if configured,
// else the mechanical "edit: <file>" / "edit: N files" fallback.
func (e *Executor) commitTurn(ctx context.Context, live *Live, stream *promptstream.Stream, message string) error {
	if err := SaveRecord(ctx, live.Workspace, live.Record); err != nil {
		return err
	}
	changedPaths := live.DrainTouched()
	for p := range live.Workspace.PendingChanges() {
		if !containsBranch(changedPaths, p) {
			changedPaths = append(changedPaths, p)
		}
	}

	if message == "" {
		if e.commitMsgLLM != nil {
			if generated, err := llm.GenerateCommitMessage(ctx, e.commitMsgLLM, changedPaths); err == nil {
				message = generated
			}
		}
		if message == "" {
			message = mechanicalCommitMessage(changedPaths)
		}
	}

	ref, err := live.Workspace.Commit(ctx, message, e.identity, gitstore.Major)
	if err != nil {
		return err
	}
	live.Bus.Emit(Event{Kind: EventTurnFinished, Branch: live.Branch, CommitRef: ref.String()})
	return nil
}

func mechanicalCommitMessage(paths []string) string {
	switch len(paths) {
	case 0:
		return "edit: session state"
	case 1:
		return "edit: " + paths[0]
	default:
		return fmt.Sprintf("edit: %d files", len(paths))
	}
}

// cancelDuringStreaming implements spec.md §4.6/§5's streaming
// cancellation case: partially accumulated assistant text is persisted
// marked cancelled, a synthetic user note is appended, and no commit is
// made.
func (e *Executor) cancelDuringStreaming(live *Live, stream *promptstream.Stream, partial string) error {
	live.Record.Messages = append(live.Record.Messages, Message{Role: "assistant", Content: partial, Cancelled: true})
	live.Record.Messages = append(live.Record.Messages, Message{Role: "user", Content: "[turn cancelled]"})
	live.SetState(StateIdle)
	return nil
}

// cancelDuringTool implements spec.md §5's tool-execution cancellation
// case: pending overlay entries made this turn are discarded and the
// session returns to IDLE without a commit.
func (e *Executor) cancelDuringTool(live *Live) error {
	live.Workspace.ClearPending()
	live.SetState(StateIdle)
	return nil
}

func renderMessages(stream *promptstream.Stream) []llm.Message {
	blocks := stream.Render()
	out := make([]llm.Message, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case promptstream.BlockSystem:
			continue
		case promptstream.BlockAssistant, promptstream.BlockToolCall:
			out = append(out, llm.Message{Role: "assistant", Content: b.Content})
		case promptstream.BlockToolResult:
			out = append(out, llm.Message{Role: "tool", Content: b.Content})
		default:
			out = append(out, llm.Message{Role: "user", Content: b.Content})
		}
	}
	return out
}

func toolCallRecords(calls []llm.ToolCall) []promptstream.ToolCallRecord {
	out := make([]promptstream.ToolCallRecord, 0, len(calls))
	for _, c := range calls {
		out = append(out, promptstream.ToolCallRecord{ID: c.ID, Name: c.Name, Args: c.Args})
	}
	return out
}

func removeString(list []string, v string) []string {
	out := list[:0:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
