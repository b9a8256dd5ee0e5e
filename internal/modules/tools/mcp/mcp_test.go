package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/getnvoi/aven-sub001/internal/modules/tools"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

type fakeClient struct {
	tools  []mcp.Tool
	result *mcp.CallToolResult
	calls  []mcp.CallToolRequest
	closed bool
}

func (f *fakeClient) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeClient) CallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.calls = append(f.calls, req)
	return f.result, nil
}

func (f *fakeClient) Close() error { f.closed = true; return nil }

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
servers:
  - name: weather
    url: http://localhost:9000/mcp
  - name: legacy
    url: http://localhost:9001/sse
    transport: SSE
`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.Servers) != 2 || cfg.Servers[0].Transport != TransportStreamable || cfg.Servers[1].Transport != TransportSSE {
		t.Fatalf("servers: got=%+v", cfg.Servers)
	}
	if _, err := ParseConfig([]byte("servers:\n  - name: a.b\n    url: x\n")); err == nil {
		t.Fatalf("dotted name should be rejected")
	}
	if _, err := ParseConfig([]byte("servers:\n  - name: a\n    url: x\n    transport: ws\n")); err == nil {
		t.Fatalf("unknown transport should be rejected")
	}
	dup := "servers:\n  - name: weather\n    url: http://a\n  - name: weather\n    url: http://b\n"
	if _, err := ParseConfig([]byte(dup)); err == nil || !strings.Contains(err.Error(), "declared twice") {
		t.Fatalf("duplicate server name: want error, got=%v", err)
	}
}

func TestAttachRejectsSecondClientForServer(t *testing.T) {
	reg := tools.NewRegistry()
	m := NewManager(logger.Nop())
	first := &fakeClient{tools: []mcp.Tool{{Name: "forecast"}}}
	if _, err := m.Attach(context.Background(), "weather", first, reg); err != nil {
		t.Fatalf("Attach first: %v", err)
	}
	second := &fakeClient{tools: []mcp.Tool{{Name: "alerts"}}}
	if _, err := m.Attach(context.Background(), "weather", second, reg); err == nil {
		t.Fatalf("Attach second: want error, got nil")
	}
	if reg.Has(ImplementationName("weather", "alerts")) {
		t.Fatalf("second client must not register tools")
	}
	m.Close()
	if !first.closed {
		t.Fatalf("first client should be closed by Manager.Close")
	}
	if second.closed {
		t.Fatalf("rejected client is owned by the caller")
	}
}

func TestAttachRegistersAndForwardsCalls(t *testing.T) {
	fc := &fakeClient{
		tools: []mcp.Tool{{Name: "forecast", Description: "Weather forecast"}},
		result: &mcp.CallToolResult{Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "sunny"},
			mcp.TextContent{Type: "text", Text: "22C"},
		}},
	}
	reg := tools.NewRegistry()
	m := NewManager(logger.Nop())
	n, err := m.Attach(context.Background(), "weather", fc, reg)
	if err != nil || n != 1 {
		t.Fatalf("Attach: n=%d err=%v", n, err)
	}
	impl, err := reg.Resolve("mcp.weather.forecast")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if impl.DefaultDescription() != "Weather forecast" {
		t.Fatalf("description: got=%q", impl.DefaultDescription())
	}
	out, err := impl.Call(context.Background(), map[string]any{"city": "Paris"})
	if err != nil || out != "sunny\n22C" {
		t.Fatalf("Call: out=%v err=%v", out, err)
	}
	if len(fc.calls) != 1 || fc.calls[0].Params.Name != "forecast" {
		t.Fatalf("forwarded call: got=%+v", fc.calls)
	}
	m.Close()
	if !fc.closed {
		t.Fatalf("Close should close clients")
	}
}

func TestRemoteErrorBecomesError(t *testing.T) {
	fc := &fakeClient{result: &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Type: "text", Text: "city not found"}},
	}}
	r := &remoteTool{client: fc, tool: "forecast"}
	_, err := r.Call(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "city not found") {
		t.Fatalf("want remote error, got=%v", err)
	}
}
