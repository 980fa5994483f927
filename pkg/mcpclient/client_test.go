package mcpclient

import (
	"context"
	"errors"
	"testing"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/agentcore/pkg/agent"
	"github.com/wilhg/agentcore/pkg/errmodel"
	"github.com/wilhg/agentcore/pkg/mcpserver"
)

type sumTool struct{}

func (sumTool) Describe() agent.ToolDescriptor {
	return agent.ToolDescriptor{
		Name:         "sum",
		Description:  "Adds two numbers",
		InputSchema:  []byte(`{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}`),
		OutputSchema: []byte(`{"type":"object","properties":{"sum":{"type":"number"}},"required":["sum"]}`),
	}
}

func (sumTool) Invoke(_ context.Context, args map[string]any) (map[string]any, error) {
	return map[string]any{"sum": args["a"].(float64) + args["b"].(float64)}, nil
}

func connect(t *testing.T) *Client {
	t.Helper()
	reg, err := agent.NewRegistry(sumTool{})
	require.NoError(t, err)
	srv, err := mcpserver.New("test", "v0", reg)
	require.NoError(t, err)

	st, ct := mcp.NewInMemoryTransports()
	ss, err := srv.MCP().Connect(t.Context(), st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	c, err := Connect(t.Context(), ct)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRemoteToolsRoundTrip(t *testing.T) {
	c := connect(t)
	ctx := t.Context()

	tools, err := c.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	d := tools[0].Describe()
	assert.Equal(t, "sum", d.Name)
	require.NoError(t, agent.CompileJSONSchema(d.InputSchema))

	reg, err := agent.NewRegistry(tools...)
	require.NoError(t, err)
	tl, ok := reg.Resolve("sum")
	require.True(t, ok)
	out, err := agent.SafeInvoke(ctx, tl, map[string]any{"a": 2.0, "b": 3.5}, nil, agent.JSONSchemaValidator)
	require.NoError(t, err)
	assert.Equal(t, 5.5, out["sum"])
}

func TestCallTool_ErrorResult(t *testing.T) {
	c := connect(t)
	_, err := c.CallTool(t.Context(), "sum", map[string]any{"a": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errmodel.ErrInvocation))
	assert.Contains(t, err.Error(), "invalid_input")
}
