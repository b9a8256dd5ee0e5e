// Package mcp exposes tools served by remote MCP servers as tool
// implementations named mcp.<server>.<tool>.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/getnvoi/aven-sub001/internal/modules/tools"
	"github.com/getnvoi/aven-sub001/internal/pkg/logger"
)

const clientName = "aven-chat"

// toolClient is the slice of the MCP client the adapter uses.
type toolClient interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Manager owns the connections to configured servers.
type Manager struct {
	log *logger.Logger

	mu      sync.Mutex
	clients map[string]toolClient
}

func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		log:     log.With("component", "MCPManager"),
		clients: make(map[string]toolClient),
	}
}

// Connect dials and initializes every server, then registers its tools. A
// server that cannot be reached is logged and skipped.
func (m *Manager) Connect(ctx context.Context, cfg Config, reg *tools.Registry) error {
	for _, srv := range cfg.Servers {
		c, err := dial(ctx, srv)
		if err != nil {
			m.log.Warn("mcp server unavailable", "server", srv.Name, "url", srv.URL, "error", err)
			continue
		}
		n, err := m.Attach(ctx, srv.Name, c, reg)
		if err != nil {
			_ = c.Close()
			m.log.Warn("mcp tool discovery failed", "server", srv.Name, "error", err)
			continue
		}
		m.log.Info("mcp server connected", "server", srv.Name, "tools", n)
	}
	return nil
}

// Attach lists the server's tools and registers one factory per tool. A
// server name can be attached once; the caller keeps ownership of c on error.
func (m *Manager) Attach(ctx context.Context, server string, c toolClient, reg *tools.Registry) (int, error) {
	m.mu.Lock()
	_, dup := m.clients[server]
	m.mu.Unlock()
	if dup {
		return 0, fmt.Errorf("mcp server %q already attached", server)
	}
	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return 0, fmt.Errorf("list tools: %w", err)
	}
	m.mu.Lock()
	if _, dup := m.clients[server]; dup {
		m.mu.Unlock()
		return 0, fmt.Errorf("mcp server %q already attached", server)
	}
	m.clients[server] = c
	m.mu.Unlock()

	n := 0
	for _, t := range res.Tools {
		impl := &remoteTool{client: c, tool: t.Name, description: strings.TrimSpace(t.Description)}
		name := ImplementationName(server, t.Name)
		if err := reg.Register(name, func() (tools.Implementation, error) { return impl, nil }); err != nil {
			m.log.Warn("mcp tool not registered", "implementation", name, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, c := range m.clients {
		if err := c.Close(); err != nil {
			m.log.Warn("mcp close failed", "server", name, "error", err)
		}
	}
	m.clients = make(map[string]toolClient)
}

func ImplementationName(server, tool string) string {
	return "mcp." + server + "." + tool
}

func dial(ctx context.Context, srv ServerConfig) (*client.Client, error) {
	var (
		c   *client.Client
		err error
	)
	switch srv.Transport {
	case TransportSSE:
		c, err = client.NewSSEMCPClient(srv.URL, transport.WithHeaders(srv.Headers))
	default:
		c, err = client.NewStreamableHttpClient(srv.URL, transport.WithHTTPHeaders(srv.Headers))
	}
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start: %w", err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return c, nil
}

type remoteTool struct {
	client      toolClient
	tool        string
	description string
}

func (r *remoteTool) DefaultDescription() string {
	if r.description == "" {
		return "Remote tool " + r.tool
	}
	return r.description
}

func (r *remoteTool) Call(ctx context.Context, params map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = r.tool
	req.Params.Arguments = params
	res, err := r.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp call %s: %w", r.tool, err)
	}
	text := joinText(res.Content)
	if res.IsError {
		if text == "" {
			text = "remote tool reported an error"
		}
		return nil, errors.New(text)
	}
	if text == "" {
		return nil, nil
	}
	return text, nil
}

func joinText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
