package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"toolgate/internal/mcp"
	"toolgate/internal/tools"
	"toolgate/internal/tools/core"
	"toolgate/internal/tools/shell"
	"toolgate/internal/workspace"
)

func newTestDispatcher(t *testing.T, allowed map[string]bool) (*Dispatcher, *tools.Registry) {
	t.Helper()

	srv := mcpserver.NewMCPServer("toolgate-test", "0.0.0", mcpserver.WithToolCapabilities(true))
	registry := tools.NewRegistry()
	agg := mcp.NewAggregator(nil)
	t.Cleanup(agg.Stop)

	d := New(srv, registry, agg, allowed)

	roots := workspace.NewResolver(t.TempDir())
	executor := shell.NewExecutor(shell.NewProcessRegistry(), roots, shell.Options{})
	files := core.NewSuite(roots, 30*time.Second)
	if err := d.RegisterNative(executor, files); err != nil {
		t.Fatalf("RegisterNative: %v", err)
	}
	return d, registry
}

func TestRegisterNativeAll(t *testing.T) {
	t.Parallel()

	_, registry := newTestDispatcher(t, nil)

	want := []string{
		"execute_command", "check_process", "send_input",
		"file_read", "file_write", "file_edit", "file_ls", "file_grep",
	}
	if registry.Count() != len(want) {
		t.Errorf("Count = %d, want %d: %v", registry.Count(), len(want), registry.Names())
	}
	for _, name := range want {
		if !registry.Has(name) {
			t.Errorf("missing native tool %s", name)
		}
		if strings.Contains(name, ":") {
			t.Errorf("native name %s must not contain a colon", name)
		}
	}
}

func TestRegisterNativeAllowList(t *testing.T) {
	t.Parallel()

	_, registry := newTestDispatcher(t, map[string]bool{
		"file_read": true,
		"file_ls":   true,
	})

	if registry.Count() != 2 {
		t.Errorf("Count = %d, want 2: %v", registry.Count(), registry.Names())
	}
	if registry.Has("execute_command") {
		t.Error("execute_command should be gated out")
	}
}

func TestHandlerReturnsText(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t, nil)

	req := mcpgo.CallToolRequest{}
	req.Params.Name = "file_write"
	req.Params.Arguments = map[string]any{
		"filePath":  "x.txt",
		"content":   "hello",
		"rationale": "t",
	}

	result, err := d.handler("file_write")(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	text := textOf(t, result)
	if !strings.Contains(text, "Wrote 5 bytes") {
		t.Errorf("text = %q", text)
	}
}

func TestHandlerMissingRequiredArgIsProtocolError(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t, nil)

	req := mcpgo.CallToolRequest{}
	req.Params.Name = "file_read"
	req.Params.Arguments = map[string]any{"rationale": "t"}

	result, err := d.handler("file_read")(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Error("missing required argument must surface as a structured failure")
	}
}

func TestHandlerOperationalFailureIsText(t *testing.T) {
	t.Parallel()

	d, _ := newTestDispatcher(t, nil)

	req := mcpgo.CallToolRequest{}
	req.Params.Name = "file_read"
	req.Params.Arguments = map[string]any{
		"filePath":  "does-not-exist.txt",
		"rationale": "t",
	}

	result, err := d.handler("file_read")(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Error("operational failures must stay success-shaped")
	}
	if !strings.HasPrefix(textOf(t, result), "Error:") {
		t.Errorf("text = %q", textOf(t, result))
	}
}

func TestToMCPToolSchema(t *testing.T) {
	t.Parallel()

	tool := &tools.Tool{
		Name:        "demo",
		Description: "demo tool",
		Source:      tools.SourceNative,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"a"},
			Properties: map[string]tools.Property{
				"a":   {Type: "string", Description: "first"},
				"n":   {Type: "integer", Default: 5},
				"any": {},
			},
		},
	}

	mt := toMCPTool(tool)
	if mt.Name != "demo" || mt.InputSchema.Type != "object" {
		t.Errorf("tool = %+v", mt)
	}
	if len(mt.InputSchema.Required) != 1 || mt.InputSchema.Required[0] != "a" {
		t.Errorf("required = %v", mt.InputSchema.Required)
	}

	a := mt.InputSchema.Properties["a"].(map[string]any)
	if a["type"] != "string" || a["description"] != "first" {
		t.Errorf("a = %v", a)
	}
	anyProp := mt.InputSchema.Properties["any"].(map[string]any)
	if _, hasType := anyProp["type"]; hasType {
		t.Errorf("any-typed property must stay untyped: %v", anyProp)
	}
}

func textOf(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content blocks")
	}
	tc, ok := result.Content[0].(mcpgo.TextContent)
	if !ok {
		t.Fatalf("content is %T, not text", result.Content[0])
	}
	return tc.Text
}
