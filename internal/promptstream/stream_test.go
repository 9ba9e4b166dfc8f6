package promptstream

import "testing"

func TestAppendToolResult_RequiresToolCallID(t *testing.T) {
	s := New("system")
	if err := s.AppendToolResult("", "result", true); err == nil {
		t.Fatal("expected error for empty tool_call_id")
	}
}

func TestCollapseEphemeral_ReplacesOnlyEphemeralBlocks(t *testing.T) {
	s := New("system")
	if err := s.AppendToolResult("call-1", "ephemeral output", true); err != nil {
		t.Fatalf("append ephemeral: %v", err)
	}
	if err := s.AppendToolResult("call-2", "durable output", false); err != nil {
		t.Fatalf("append durable: %v", err)
	}

	s.CollapseEphemeral("[collapsed]")

	if got := s.blocks[len(s.blocks)-2].Content; got != "[collapsed]" {
		t.Errorf("ephemeral block content = %q, want placeholder", got)
	}
	if s.blocks[len(s.blocks)-2].Ephemeral {
		t.Error("ephemeral block should be cleared after collapse")
	}

	if got := s.blocks[len(s.blocks)-1].Content; got != "durable output" {
		t.Errorf("durable block content = %q, want unchanged", got)
	}
	if s.blocks[len(s.blocks)-1].Ephemeral {
		t.Error("durable block should never have been marked ephemeral")
	}
}

func TestCollapseEphemeral_SkipsDeletedBlocks(t *testing.T) {
	s := New("system")
	if err := s.AppendToolResult("call-1", "ephemeral output", true); err != nil {
		t.Fatalf("append ephemeral: %v", err)
	}
	s.blocks[len(s.blocks)-1].Deleted = true

	s.CollapseEphemeral("[collapsed]")

	if s.blocks[len(s.blocks)-1].Content == "[collapsed]" {
		t.Error("a deleted block should not be rewritten by CollapseEphemeral")
	}
}
