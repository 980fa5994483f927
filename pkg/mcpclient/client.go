// Package mcpclient connects to an MCP server and exposes its tools as
// agent.Tool values, so remote and synthesized tools share one registry.
package mcpclient

import (
	"context"
	"encoding/json"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/agentcore/pkg/agent"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Client is a connected MCP session.
type Client struct {
	session *mcp.ClientSession
}

// Connect performs the MCP handshake over t.
func Connect(ctx context.Context, t mcp.Transport) (*Client, error) {
	c := mcp.NewClient(&mcp.Implementation{Name: "agentcore", Version: "v1"}, nil)
	s, err := c.Connect(ctx, t, nil)
	if err != nil {
		return nil, errmodel.Invocation("mcp_connect", "cannot connect to MCP server", nil, err)
	}
	return &Client{session: s}, nil
}

// Close ends the session.
func (c *Client) Close() error { return c.session.Close() }

// ListTools returns the server's tool descriptors.
func (c *Client) ListTools(ctx context.Context) ([]agent.ToolDescriptor, error) {
	var out []agent.ToolDescriptor
	for t, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, errmodel.Invocation("mcp_list_tools", "cannot list MCP tools", nil, err)
		}
		d := agent.ToolDescriptor{Name: t.Name, Description: t.Description}
		if d.InputSchema, err = schemaBytes(t.InputSchema); err != nil {
			return nil, err
		}
		if d.OutputSchema, err = schemaBytes(t.OutputSchema); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func schemaBytes(s any) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, errmodel.Value("invalid_schema", "MCP tool schema is not JSON", nil)
	}
	return b, nil
}

// CallTool invokes name. A result flagged as an error becomes an invocation
// error carrying the server's text.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, errmodel.Invocation("mcp_call", "MCP tool call failed", map[string]any{"tool": name}, err)
	}
	text := ""
	for _, ct := range res.Content {
		if tc, ok := ct.(*mcp.TextContent); ok {
			text += tc.Text
		}
	}
	if res.IsError {
		return nil, errmodel.Invocation("tool_error", text, map[string]any{"tool": name}, nil)
	}
	if m, ok := res.StructuredContent.(map[string]any); ok {
		return m, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return map[string]any{"text": text}, nil
	}
	return m, nil
}

// Tools wraps every remote tool as an agent.Tool bound to this client.
func (c *Client) Tools(ctx context.Context) ([]agent.Tool, error) {
	ds, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]agent.Tool, len(ds))
	for i, d := range ds {
		out[i] = &remoteTool{c: c, d: d}
	}
	return out, nil
}

type remoteTool struct {
	c *Client
	d agent.ToolDescriptor
}

func (t *remoteTool) Describe() agent.ToolDescriptor { return t.d }

func (t *remoteTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	return t.c.CallTool(ctx, t.d.Name, args)
}
