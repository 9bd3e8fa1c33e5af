package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
)

// mcpCallTimeout bounds a single MCP tool call.
const mcpCallTimeout = 30 * time.Second

// mcpClient abstracts the MCP client surface the bridge needs, for tests.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// MCPBridge connects to configured MCP servers and exposes each of their
// tools as a domain.Tool the catalog can select and chain like any local
// tool. A server that cannot be reached at startup is skipped with a
// warning; the bridge only fails when every server does.
type MCPBridge struct {
	servers []mcpServerConn
	tools   []domain.Tool
	logger  *slog.Logger
}

type mcpServerConn struct {
	cfg    config.MCPServer
	client mcpClient
}

// NewMCPBridge connects to the configured servers and discovers their tools.
func NewMCPBridge(ctx context.Context, servers []config.MCPServer, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{logger: logger}

	var errs []string
	for _, srv := range servers {
		client, err := b.connect(ctx, srv)
		if err != nil {
			logger.Warn("mcp server unreachable, skipping", "server", srv.Name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", srv.Name, err))
			continue
		}
		b.servers = append(b.servers, mcpServerConn{cfg: srv, client: client})
	}
	if len(b.servers) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("all mcp servers failed: %s", strings.Join(errs, "; "))
	}

	if err := b.discover(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// newMCPBridgeWithClients builds a bridge over pre-built clients (tests).
func newMCPBridgeWithClients(ctx context.Context, servers []mcpServerConn, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{servers: servers, logger: logger}
	if err := b.discover(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MCPBridge) connect(ctx context.Context, srv config.MCPServer) (mcpClient, error) {
	var c mcpClient
	var err error

	switch srv.Transport {
	case "stdio":
		c, err = mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
	case "http":
		t, tErr := transport.NewStreamableHTTP(srv.URL)
		if tErr != nil {
			return nil, fmt.Errorf("create http transport: %w", tErr)
		}
		httpClient := mcpclient.NewClient(t)
		if err = httpClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		c = httpClient
	default:
		return nil, fmt.Errorf("unsupported transport %q", srv.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "switchboard", Version: "1.0.0"}

	if ic, ok := c.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err = ic.Initialize(ctx, initReq); err != nil {
			c.Close()
			return nil, domain.WrapOp("initialize", err)
		}
	}

	b.logger.Info("mcp server connected", "server", srv.Name, "transport", srv.Transport)
	return c, nil
}

func (b *MCPBridge) discover(ctx context.Context) error {
	var errs []string
	succeeded := 0

	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp tool discovery failed, skipping server", "server", srv.cfg.Name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", srv.cfg.Name, err))
			continue
		}
		for _, t := range result.Tools {
			b.tools = append(b.tools, newMCPToolAdapter(srv, t, b.logger))
		}
		b.logger.Info("mcp tools discovered", "server", srv.cfg.Name, "count", len(result.Tools))
		succeeded++
	}

	if succeeded == 0 && len(errs) > 0 {
		return fmt.Errorf("all mcp servers failed discovery: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Tools returns the discovered tools, ready for catalog registration.
func (b *MCPBridge) Tools() []domain.Tool {
	return b.tools
}

// Close shuts down every server connection.
func (b *MCPBridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", srv.cfg.Name, "error", err)
		}
	}
}

// mcpToolAdapter exposes one remote MCP tool as a domain.Tool. Confidence
// comes from the server's configured intent affinities; without a declared
// affinity it falls back to word overlap between the intent and the tool
// description.
type mcpToolAdapter struct {
	server   config.MCPServer
	client   mcpClient
	mcpTool  mcp.Tool
	fullName string
	logger   *slog.Logger
}

// defaultMCPConfidence applies when a server declares intents for a tool
// without tuning its own confidence.
const defaultMCPConfidence = 0.9

func newMCPToolAdapter(srv mcpServerConn, t mcp.Tool, logger *slog.Logger) *mcpToolAdapter {
	return &mcpToolAdapter{
		server:   srv.cfg,
		client:   srv.client,
		mcpTool:  t,
		fullName: fmt.Sprintf("mcp_%s_%s", sanitizeName(srv.cfg.Name), sanitizeName(t.Name)),
		logger:   logger,
	}
}

func (a *mcpToolAdapter) Info() domain.ToolInfo {
	desc := a.mcpTool.Description
	if desc == "" {
		desc = fmt.Sprintf("MCP tool %q from server %q", a.mcpTool.Name, a.server.Name)
	}
	return domain.ToolInfo{
		Name:           a.fullName,
		Version:        "1.0.0",
		Description:    desc,
		RequiredParams: append([]string(nil), a.mcpTool.InputSchema.Required...),
	}
}

// ParamSchema exposes the remote tool's input schema so the registry can
// validate params locally before the network call.
func (a *mcpToolAdapter) ParamSchema() json.RawMessage {
	if a.mcpTool.InputSchema.Properties == nil && a.mcpTool.InputSchema.Required == nil {
		return nil
	}
	data, err := json.Marshal(a.mcpTool.InputSchema)
	if err != nil {
		return nil
	}
	return data
}

func (a *mcpToolAdapter) CanHandle(_ context.Context, tc domain.ToolContext) (float64, error) {
	for _, intent := range a.server.Intents[a.mcpTool.Name] {
		if intent == tc.Intent {
			if a.server.Confidence > 0 {
				return clamp01(a.server.Confidence), nil
			}
			return defaultMCPConfidence, nil
		}
	}
	return descriptionOverlap(tc.Intent, a.mcpTool.Description), nil
}

func (a *mcpToolAdapter) Run(ctx context.Context, params map[string]any, tc domain.ToolContext) (map[string]any, error) {
	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = a.mcpTool.Name
	callReq.Params.Arguments = params

	a.logger.Debug("mcp tool call", "server", a.server.Name, "tool", a.mcpTool.Name, "intent", tc.Intent)

	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	result, err := a.client.CallTool(callCtx, callReq)
	if err != nil {
		return nil, fmt.Errorf("mcp call %s: %w", a.mcpTool.Name, err)
	}

	content := extractMCPContent(result)
	if result.IsError {
		return nil, fmt.Errorf("mcp tool error: %s", content)
	}
	return map[string]any{"content": content}, nil
}

// descriptionOverlap scores how many intent words appear in the tool
// description, capped well below a declared affinity so configured intents
// always win.
func descriptionOverlap(intent, description string) float64 {
	words := strings.Fields(strings.ToLower(intent))
	if len(words) == 0 || description == "" {
		return 0
	}
	desc := strings.ToLower(description)
	matched := 0
	for _, w := range words {
		if strings.Contains(desc, w) {
			matched++
		}
	}
	return 0.4 * float64(matched) / float64(len(words))
}

// extractMCPContent flattens MCP result content into a string.
func extractMCPContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName replaces characters that aren't valid in tool names.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// envSlice converts an env map to KEY=VALUE form.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}
