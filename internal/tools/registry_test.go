package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoExec(ctx context.Context, tc *Context, args map[string]any) (string, []SideEffect, error) {
	msg, _ := args["message"].(string)
	return "Echo: " + msg, nil, nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 0, reg.Count())
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Category:    CategoryGeneral,
		Execute:     echoExec,
		Schema:      ToolSchema{Required: []string{}},
	}

	require.NoError(t, reg.Register(tool))

	got := reg.Get("test_tool")
	require.NotNil(t, got)
	assert.Equal(t, "test_tool", got.Name)
}

func TestUnregister(t *testing.T) {
	reg := NewRegistry()
	tool := &Tool{Name: "gone_soon", Category: CategoryGeneral, Execute: echoExec}
	require.NoError(t, reg.Register(tool))
	require.True(t, reg.Has("gone_soon"))

	reg.Unregister("gone_soon")

	assert.False(t, reg.Has("gone_soon"))
	assert.Empty(t, reg.GetByCategory(CategoryGeneral))
}

func TestUnregister_UnknownNameIsNoOp(t *testing.T) {
	reg := NewRegistry()
	reg.Unregister("never_registered")
	assert.Equal(t, 0, reg.Count())
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{Name: "dupe", Category: CategoryGeneral, Execute: echoExec}
	require.NoError(t, reg.Register(tool))

	err := reg.Register(tool)
	assert.ErrorIs(t, err, ErrToolAlreadyRegistered)
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		tool    *Tool
		wantErr error
	}{
		{name: "empty name", tool: &Tool{Name: "", Execute: echoExec}, wantErr: ErrToolNameEmpty},
		{name: "nil execute", tool: &Tool{Name: "test", Execute: nil}, wantErr: ErrToolExecuteNil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.tool)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetByCategory(t *testing.T) {
	reg := NewRegistry()

	all := []*Tool{
		{Name: "research1", Category: CategoryResearch, Priority: 80, Execute: echoExec},
		{Name: "research2", Category: CategoryResearch, Priority: 60, Execute: echoExec},
		{Name: "file1", Category: CategoryFile, Priority: 50, Execute: echoExec},
	}
	for _, tool := range all {
		reg.MustRegister(tool)
	}

	research := reg.GetByCategory(CategoryResearch)
	require.Len(t, research, 2)
	assert.Equal(t, "research1", research[0].Name, "sorted by priority descending")
}

func TestRegistry_Execute(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:     "echo",
		Category: CategoryGeneral,
		Execute:  echoExec,
		Schema: ToolSchema{
			Required:   []string{"message"},
			Properties: map[string]Property{"message": {Type: "string"}},
		},
	}
	reg.MustRegister(tool)

	tc := &Context{Branch: "main"}
	result, err := reg.Execute(context.Background(), tc, "echo", map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "Echo: hello", result.Result)
	assert.True(t, result.IsSuccess())

	_, err = reg.Execute(context.Background(), tc, "echo", map[string]any{})
	assert.ErrorIs(t, err, ErrMissingRequiredArg)

	_, err = reg.Execute(context.Background(), tc, "nonexistent", map[string]any{})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistry_ExecuteToolGatesUnapprovedUserTools(t *testing.T) {
	reg := NewRegistry()
	reg.SetApprovalChecker(rejectAllChecker{})

	userTool := &Tool{Name: "user_tool", Category: CategoryGeneral, Execute: echoExec}
	builtinTool := &Tool{Name: "builtin_tool", Category: CategoryGeneral, Execute: echoExec, Builtin: true}
	reg.MustRegister(userTool)
	reg.MustRegister(builtinTool)

	tc := &Context{}
	_, err := reg.Execute(context.Background(), tc, "user_tool", map[string]any{})
	assert.ErrorIs(t, err, ErrToolNotApproved)

	_, err = reg.Execute(context.Background(), tc, "builtin_tool", map[string]any{})
	assert.NoError(t, err, "builtin tools bypass the approval gate")
}

type rejectAllChecker struct{}

func (rejectAllChecker) IsApproved(name, contentHash string) bool { return false }

func TestFilterByIntent(t *testing.T) {
	reg := NewRegistry()

	all := []*Tool{
		{Name: "think", Category: CategoryResearch, Execute: echoExec},
		{Name: "write_file", Category: CategoryFile, Execute: echoExec},
	}
	for _, tool := range all {
		reg.MustRegister(tool)
	}

	research := reg.FilterByIntent("/research")
	require.Len(t, research, 1)
	assert.Equal(t, "think", research[0].Name)

	file := reg.FilterByIntent("/write")
	require.Len(t, file, 1)
	assert.Equal(t, "write_file", file[0].Name)
}

func TestAllExcludesInlineOnlyTools(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{Name: "api_tool", Category: CategoryGeneral, Execute: echoExec})
	reg.MustRegister(&Tool{Name: "inline_tool", Category: CategoryGeneral, Execute: echoExec, Invocation: "inline"})

	all := reg.All()
	require.Len(t, all, 1)
	assert.Equal(t, "api_tool", all[0].Name)

	assert.Len(t, reg.AllIncludingInline(), 2)
}
