// Package agent defines the callable tool contract shared by synthesized API
// tools and the MCP server, plus a name-keyed registry and a guarded invoke
// path that checks permissions and JSON schemas around every call.
package agent

import (
	"context"
)

// Permission names used by built-in tools.
const (
	PermissionNetworkOutbound = "network:outbound"
)

// ToolPermission describes a capability a tool requires.
type ToolPermission struct {
	// Name is a stable identifier such as network:outbound.
	Name string `json:"name"`
	// Description explains what the permission allows.
	Description string `json:"description,omitempty"`
}

// ToolDescriptor declares the static interface of a tool.
// InputSchema and OutputSchema are JSON Schemas in UTF-8 bytes. An empty
// schema accepts anything.
type ToolDescriptor struct {
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	InputSchema  []byte           `json:"input_schema"`
	OutputSchema []byte           `json:"output_schema,omitempty"`
	Permissions  []ToolPermission `json:"permissions,omitempty"`
}

// Tool is a callable unit with schema-described inputs and outputs.
type Tool interface {
	// Describe returns the public descriptor (schemas, permissions).
	Describe() ToolDescriptor
	// Invoke executes the tool. args should conform to InputSchema and the
	// result to OutputSchema.
	Invoke(ctx context.Context, args map[string]any) (map[string]any, error)
}

// DescribeTool is a helper to get a ToolDescriptor from a Tool (nil-safe).
func DescribeTool(t Tool) ToolDescriptor {
	if t == nil {
		return ToolDescriptor{}
	}
	return t.Describe()
}

// PermissionSet returns the allow-set covering every permission the tools declare.
func PermissionSet(tools ...Tool) map[string]bool {
	allowed := map[string]bool{}
	for _, t := range tools {
		for _, p := range DescribeTool(t).Permissions {
			allowed[p.Name] = true
		}
	}
	return allowed
}
