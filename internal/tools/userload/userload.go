// Package userload dynamically loads user-authored tools from ./tools/
// at startup by interpreting each file with yaegi rather than compiling
// it, so a bad or malicious tool file can never hang or crash the host
// binary via `go build`. Grounded on
// _examples/theRebelliousNerd-codenerd/internal/autopoiesis/yaegi_executor.go's
// stdlib-only sandboxing and timeout discipline, re-targeted at the
// static per-file Name/Description/Execute contract instead of a single
// RunTool(input string) entrypoint.
//
// Convention: each ./tools/<name>.go file is "package main" and exports
//
//	func Name() string
//	func Description() string
//	func Execute(ctx context.Context, args map[string]string) (string, error)
//
// User tools receive plain string arguments and return plain string
// results — they have no VFS or git access, only the stdlib packages
// listed in allowedPackages, matching the approval model's assumption
// that an approved tool's blast radius is bounded to pure computation.
package userload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"forge/internal/logging"
	"forge/internal/tools"
)

var allowedPackages = map[string]bool{
	"strings": true, "strconv": true, "fmt": true, "math": true,
	"regexp": true, "encoding/json": true, "encoding/base64": true,
	"time": true, "sort": true, "bytes": true, "unicode": true,
	"path": true, "path/filepath": true, "context": true, "errors": true,
	"bufio": true,
}

// ApprovalChecker is the narrow slice of tools.ApprovalChecker userload
// needs: whether a file's current content hash is approved.
type ApprovalChecker interface {
	IsApprovedContent(name string, content []byte) bool
}

// Loader scans a directory of user tool files and registers the approved
// ones as api-invocation tools.Tool entries.
type Loader struct {
	dir      string
	approved ApprovalChecker
	timeout  time.Duration
}

// New creates a loader rooted at dir (typically "./tools"), gating
// execution on approved.
func New(dir string, approved ApprovalChecker) *Loader {
	return &Loader{dir: dir, approved: approved, timeout: 5 * time.Second}
}

// LoadAll interprets every *.go file in the loader's directory (skipping
// _test.go files) and registers each as a non-builtin tool. A file that
// fails to parse, uses a forbidden import, or is missing the
// Name/Description/Execute contract is skipped with a warning rather
// than aborting the whole load.
func (l *Loader) LoadAll(registry *tools.Registry) error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("userload: reading %s: %w", l.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") || strings.HasSuffix(e.Name(), "_test.go") {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		if err := l.loadOne(registry, path); err != nil {
			logging.Get(logging.CategoryTools).Warn("userload: skipping %s: %v", path, err)
		}
	}
	return nil
}

func (l *Loader) loadOne(registry *tools.Registry, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validateImports(string(content)); err != nil {
		return err
	}
	if l.approved != nil && !l.approved.IsApprovedContent(toolNameFromPath(path), content) {
		return tools.ErrToolNotApproved
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("loading stdlib: %w", err)
	}
	if _, err := i.Eval(string(content)); err != nil {
		return fmt.Errorf("evaluating: %w", err)
	}

	nameFn, err := evalFunc[func() string](i, "main.Name")
	if err != nil {
		return err
	}
	descFn, err := evalFunc[func() string](i, "main.Description")
	if err != nil {
		return err
	}
	execFn, err := evalFunc[func(context.Context, map[string]string) (string, error)](i, "main.Execute")
	if err != nil {
		return err
	}

	name := nameFn()
	description := descFn()
	timeout := l.timeout

	tool := &tools.Tool{
		Name:        name,
		Description: description,
		Category:    tools.CategoryGeneral,
		Priority:    30,
		Invocation:  "api",
		Builtin:     false,
		Schema: tools.ToolSchema{
			Properties: map[string]tools.Property{
				"args": {Type: "object", Description: "Tool-specific string arguments"},
			},
		},
		Execute: func(ctx context.Context, tc *tools.Context, args map[string]any) (string, []tools.SideEffect, error) {
			strArgs := make(map[string]string, len(args))
			for k, v := range args {
				strArgs[k] = fmt.Sprintf("%v", v)
			}
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			result, err := execFn(runCtx, strArgs)
			if err != nil {
				return "", nil, err
			}
			return result, []tools.SideEffect{{Kind: tools.EphemeralResult}}, nil
		},
	}
	return registry.Register(tool)
}

func evalFunc[T any](i *interp.Interpreter, symbol string) (T, error) {
	var zero T
	v, err := i.Eval(symbol)
	if err != nil {
		return zero, fmt.Errorf("%s not found: %w", symbol, err)
	}
	fn, ok := v.Interface().(T)
	if !ok {
		return zero, fmt.Errorf("%s has unexpected signature", symbol)
	}
	return fn, nil
}

func validateImports(code string) error {
	lines := strings.Split(code, "\n")
	inBlock := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			pkg := strings.Trim(trimmed, `"`)
			if pkg != "" && !allowedPackages[pkg] {
				return fmt.Errorf("forbidden import: %s", pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
			if !allowedPackages[pkg] {
				return fmt.Errorf("forbidden import: %s", pkg)
			}
		}
	}
	return nil
}

func toolNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
