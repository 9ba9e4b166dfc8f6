package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"forge/internal/logging"
)

// defaultVerifyTimeout bounds a discovered check/test command, matching
// the teacher's internal/tools/shell.executeRunCommand default.
const defaultVerifyTimeout = 60 * time.Second

// discoverCommand looks for a Makefile target named target first, then
// falls back to the given language-ecosystem default, grounded on the
// teacher's internal/tools/shell.detectBuildCommand/detectTestCommand
// file-sniffing, narrowed here to Makefile-target-then-Go-default since
// every materialized workspace is a Go module.
func discoverCommand(dir, target, fallback string) string {
	if hasMakeTarget(dir, target) {
		return "make " + target
	}
	return fallback
}

func hasMakeTarget(dir, target string) bool {
	data, err := os.ReadFile(filepath.Join(dir, "Makefile"))
	if err != nil {
		return false
	}
	needle := target + ":"
	for _, line := range splitLines(string(data)) {
		if len(line) >= len(needle) && line[:len(needle)] == needle {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

// runDiscoveredCommand runs command inside dir with a timeout, capturing
// combined stdout/stderr, mirroring the teacher's
// internal/tools/shell.executeRunCommand sh -c dispatch and truncation.
func runDiscoveredCommand(ctx context.Context, dir, command string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, defaultVerifyTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	err := cmd.Run()
	output := combined.String()
	if len(output) > 50000 {
		output = output[:50000] + "\n...[truncated]"
	}

	if err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("%s: timed out after %s", command, defaultVerifyTimeout)
		}
		return output, fmt.Errorf("%s: %w\noutput:\n%s", command, err, output)
	}
	return output, nil
}

func logVerify(command, dir string) {
	logging.Get(logging.CategoryExecutor).Debug("verify: materialized to %s, command=%s", dir, command)
}
