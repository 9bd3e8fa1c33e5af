package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
	"switchboard/internal/infra/logger"
)

// mockMCPClient implements mcpClient for tests.
type mockMCPClient struct {
	tools    []mcp.Tool
	callFunc func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	listErr  error
	closed   bool
}

func (m *mockMCPClient) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return &mcp.ListToolsResult{Tools: m.tools}, nil
}

func (m *mockMCPClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if m.callFunc != nil {
		return m.callFunc(ctx, req)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent("called " + req.Params.Name)},
	}, nil
}

func (m *mockMCPClient) Close() error {
	m.closed = true
	return nil
}

func TestMCPBridgeDiscoversTools(t *testing.T) {
	mock := &mockMCPClient{
		tools: []mcp.Tool{
			{Name: "read_file", Description: "Read a file"},
			{Name: "write_file", Description: "Write a file"},
		},
	}

	bridge, err := newMCPBridgeWithClients(context.Background(), []mcpServerConn{
		{cfg: config.MCPServer{Name: "filesystem"}, client: mock},
	}, logger.Discard())
	require.NoError(t, err)
	defer bridge.Close()

	tools := bridge.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "mcp_filesystem_read_file", tools[0].Info().Name)
	assert.Equal(t, "mcp_filesystem_write_file", tools[1].Info().Name)
}

func TestMCPBridgeSkipsFailingServer(t *testing.T) {
	good := &mockMCPClient{tools: []mcp.Tool{{Name: "weather"}}}
	bad := &mockMCPClient{listErr: errors.New("connection reset")}

	bridge, err := newMCPBridgeWithClients(context.Background(), []mcpServerConn{
		{cfg: config.MCPServer{Name: "broken"}, client: bad},
		{cfg: config.MCPServer{Name: "forecast"}, client: good},
	}, logger.Discard())
	require.NoError(t, err)
	defer bridge.Close()

	require.Len(t, bridge.Tools(), 1)
	assert.Equal(t, "mcp_forecast_weather", bridge.Tools()[0].Info().Name)
}

func TestMCPBridgeAllServersFail(t *testing.T) {
	bad := &mockMCPClient{listErr: errors.New("connection reset")}
	_, err := newMCPBridgeWithClients(context.Background(), []mcpServerConn{
		{cfg: config.MCPServer{Name: "broken"}, client: bad},
	}, logger.Discard())
	assert.ErrorContains(t, err, "all mcp servers failed")
}

func TestMCPBridgeClose(t *testing.T) {
	mock := &mockMCPClient{tools: []mcp.Tool{{Name: "weather"}}}
	bridge, err := newMCPBridgeWithClients(context.Background(), []mcpServerConn{
		{cfg: config.MCPServer{Name: "forecast"}, client: mock},
	}, logger.Discard())
	require.NoError(t, err)

	bridge.Close()
	assert.True(t, mock.closed)
}

func TestMCPToolAdapterCanHandle(t *testing.T) {
	srv := mcpServerConn{
		cfg: config.MCPServer{
			Name:       "forecast",
			Intents:    map[string][]string{"weather": {"get_weather"}},
			Confidence: 0.85,
		},
		client: &mockMCPClient{},
	}
	a := newMCPToolAdapter(srv, mcp.Tool{Name: "weather", Description: "Current weather lookup"}, logger.Discard())
	ctx := context.Background()

	got, err := a.CanHandle(ctx, domain.ToolContext{Intent: "get_weather"})
	require.NoError(t, err)
	assert.InDelta(t, 0.85, got, 1e-9)

	// no declared affinity: word overlap against the description
	got, err = a.CanHandle(ctx, domain.ToolContext{Intent: "weather report"})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, got, 1e-9)

	got, err = a.CanHandle(ctx, domain.ToolContext{Intent: "play music"})
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestMCPToolAdapterDefaultConfidence(t *testing.T) {
	srv := mcpServerConn{
		cfg: config.MCPServer{
			Name:    "forecast",
			Intents: map[string][]string{"weather": {"get_weather"}},
		},
		client: &mockMCPClient{},
	}
	a := newMCPToolAdapter(srv, mcp.Tool{Name: "weather"}, logger.Discard())

	got, err := a.CanHandle(context.Background(), domain.ToolContext{Intent: "get_weather"})
	require.NoError(t, err)
	assert.InDelta(t, defaultMCPConfidence, got, 1e-9)
}

func TestMCPToolAdapterRun(t *testing.T) {
	var gotName string
	mock := &mockMCPClient{
		callFunc: func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			gotName = req.Params.Name
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent("sunny, 24C")},
			}, nil
		},
	}
	srv := mcpServerConn{cfg: config.MCPServer{Name: "forecast"}, client: mock}
	a := newMCPToolAdapter(srv, mcp.Tool{Name: "weather"}, logger.Discard())

	data, err := a.Run(context.Background(), map[string]any{"city": "rome"}, domain.ToolContext{})
	require.NoError(t, err)
	assert.Equal(t, "weather", gotName)
	assert.Equal(t, "sunny, 24C", data["content"])
}

func TestMCPToolAdapterRunToolError(t *testing.T) {
	mock := &mockMCPClient{
		callFunc: func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent("city not found")},
				IsError: true,
			}, nil
		},
	}
	srv := mcpServerConn{cfg: config.MCPServer{Name: "forecast"}, client: mock}
	a := newMCPToolAdapter(srv, mcp.Tool{Name: "weather"}, logger.Discard())

	_, err := a.Run(context.Background(), nil, domain.ToolContext{})
	assert.ErrorContains(t, err, "city not found")
}

func TestMCPToolAdapterSchema(t *testing.T) {
	srv := mcpServerConn{cfg: config.MCPServer{Name: "forecast"}, client: &mockMCPClient{}}
	a := newMCPToolAdapter(srv, mcp.Tool{
		Name: "weather",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"city": map[string]any{"type": "string"}},
			Required:   []string{"city"},
		},
	}, logger.Discard())

	info := a.Info()
	assert.Equal(t, []string{"city"}, info.RequiredParams)
	assert.NotEmpty(t, a.ParamSchema())

	bare := newMCPToolAdapter(srv, mcp.Tool{Name: "plain"}, logger.Discard())
	assert.Nil(t, bare.ParamSchema())
}
