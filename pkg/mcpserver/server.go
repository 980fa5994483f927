// Package mcpserver exposes registered tools over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/wilhg/agentcore/pkg/agent"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Server wraps an MCP server whose tools dispatch through agent.SafeInvoke.
type Server struct {
	srv      *mcp.Server
	allowed  map[string]bool
	validate agent.ValidateFunc
	logger   *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAllowed sets the permission allow-set. By default every permission
// declared by the registered tools is granted.
func WithAllowed(allowed map[string]bool) Option { return func(s *Server) { s.allowed = allowed } }

// WithValidator replaces agent.JSONSchemaValidator.
func WithValidator(v agent.ValidateFunc) Option { return func(s *Server) { s.validate = v } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }

// New builds a server named name and registers every tool in reg.
func New(name, version string, reg *agent.Registry, opts ...Option) (*Server, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, errmodel.Validation("no_tools", "mcpserver: registry has no tools", nil)
	}
	s := &Server{
		srv:      mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		validate: agent.JSONSchemaValidator,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.allowed == nil {
		var tools []agent.Tool
		reg.Range(func(_ string, t agent.Tool) bool {
			tools = append(tools, t)
			return true
		})
		s.allowed = agent.PermissionSet(tools...)
	}
	var err error
	reg.Range(func(_ string, t agent.Tool) bool {
		err = s.add(t)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) add(t agent.Tool) error {
	d := t.Describe()
	if err := agent.CompileJSONSchema(d.InputSchema); err != nil || len(d.InputSchema) == 0 {
		return errmodel.Validation("invalid_schema", "mcpserver: tool needs an object input schema", map[string]any{"tool": d.Name})
	}
	tool := &mcp.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: json.RawMessage(d.InputSchema),
	}
	if len(d.OutputSchema) > 0 {
		tool.OutputSchema = json.RawMessage(d.OutputSchema)
	}
	s.srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.call(ctx, t, d.Name, req.Params.Arguments), nil
	})
	return nil
}

// call runs one tool call. Failures are reported in the result so the model
// sees them, rather than as protocol errors.
func (s *Server) call(ctx context.Context, t agent.Tool, name string, raw json.RawMessage) *mcp.CallToolResult {
	args := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &args); err != nil {
			return errorResult(errmodel.Validation("invalid_arguments", "arguments must be a JSON object", map[string]any{"tool": name}))
		}
	}
	out, err := agent.SafeInvoke(ctx, t, args, s.allowed, s.validate)
	if err != nil {
		s.logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		return errorResult(err)
	}
	text, err := json.Marshal(out)
	if err != nil {
		return errorResult(errmodel.System("encode_failed", "cannot encode tool result", map[string]any{"tool": name}, err))
	}
	s.logger.Debug("tool call", zap.String("tool", name))
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
		StructuredContent: out,
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.srv }

// Run serves on t until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	return s.srv.Run(ctx, t)
}

// ServeStdio serves over stdin and stdout.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}
