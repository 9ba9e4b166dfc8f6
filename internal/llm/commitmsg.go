package llm

import (
	"context"
	"fmt"
	"strings"
)

// GenerateCommitMessage asks the model for a single-line commit message
// summarizing changedPaths, using a deliberately tiny token budget since
// this call happens on every commit. Grounded on
// original_source/forge/session/manager.py's generate_commit_message,
// which likewise sends only the changed path list, not full diffs.
func GenerateCommitMessage(ctx context.Context, s Streamer, changedPaths []string) (string, error) {
	if len(changedPaths) == 0 {
		return "Update", nil
	}
	prompt := fmt.Sprintf(
		"Write a single-line, imperative-mood git commit message (no period, under 72 chars) summarizing a change touching these files:\n%s",
		strings.Join(changedPaths, "\n"),
	)
	turn, err := s.Send(ctx, "You write terse, conventional git commit messages.", []Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return "", fmt.Errorf("llm: commit message generation: %w", err)
	}
	msg := strings.TrimSpace(strings.SplitN(turn.Text, "\n", 2)[0])
	if msg == "" {
		return fallbackMessage(changedPaths), nil
	}
	return msg, nil
}

func fallbackMessage(paths []string) string {
	if len(paths) == 1 {
		return "Update " + paths[0]
	}
	return fmt.Sprintf("Update %d files", len(paths))
}
