package api2tool

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"github.com/wilhg/agentcore/pkg/errmodel"
	"github.com/wilhg/agentcore/pkg/openapi"
	aotel "github.com/wilhg/agentcore/pkg/otel"
)

const defaultInvokeTimeout = 30 * time.Second

// SynthOptions configures tool synthesis.
type SynthOptions struct {
	// BaseURL overrides the declared server URL for every tool.
	BaseURL string
	// HTTPClient performs invocations. Defaults to an instrumented client.
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Headers are sent with every request, before header parameters.
	Headers map[string]string
	// IncludeTags keeps only operations carrying one of these tags.
	IncludeTags []string
	// ExcludeTags drops operations carrying one of these tags.
	ExcludeTags []string
}

func (o SynthOptions) withDefaults() SynthOptions {
	if o.HTTPClient == nil {
		o.HTTPClient = aotel.HTTPClient(defaultInvokeTimeout)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

var nonToolChar = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// ToolName maps an operation identifier to a tool name made of letters,
// digits and underscores.
func ToolName(id string) string {
	return strings.Trim(nonToolChar.ReplaceAllString(id, "_"), "_")
}

// Synthesize builds the callable tool for one operation. The bound base URL
// is opts.BaseURL when set, otherwise spec.BaseURL.
func Synthesize(op openapi.Operation, spec *openapi.Spec, opts SynthOptions) (*Tool, error) {
	opts = opts.withDefaults()
	name := ToolName(op.ID)
	if name == "" {
		return nil, errmodel.Validation("invalid_tool_name", "operation id yields an empty tool name",
			map[string]any{"operation": op.ID, "method": op.Method, "path": op.Path})
	}

	schema, err := inputSchema(op)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, errmodel.System("schema_encode", "cannot encode input schema", map[string]any{"tool": name}, err)
	}

	base := opts.BaseURL
	if base == "" && spec != nil {
		base = spec.BaseURL
	}
	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}
	return &Tool{
		Name:        name,
		Description: describe(op),
		Schema:      schema,
		Operation:   op,
		BaseURL:     strings.TrimRight(base, "/"),
		inputSchema: raw,
		client:      opts.HTTPClient,
		headers:     headers,
		logger:      opts.Logger.With(zap.String("component", "api2tool"), zap.String("tool", name)),
	}, nil
}

// SynthesizeAll builds one tool per operation of spec, in operation order.
// Operation identifiers must be unique. Distinct identifiers that sanitize to
// the same tool name keep the first name; later ones get a numeric suffix.
func SynthesizeAll(spec *openapi.Spec, opts SynthOptions) ([]*Tool, error) {
	if spec == nil {
		return nil, nil
	}
	opts = opts.withDefaults()
	tools := make([]*Tool, 0, len(spec.Operations))
	ids := map[string]bool{}
	names := map[string]bool{}
	for _, op := range spec.Operations {
		if ids[op.ID] {
			return nil, errmodel.Validation("duplicate_operation_id",
				fmt.Sprintf("operation id %q is declared more than once", op.ID),
				map[string]any{"operation": op.ID, "method": op.Method, "path": op.Path})
		}
		ids[op.ID] = true
		if !tagSelected(op.Tags, opts.IncludeTags, opts.ExcludeTags) {
			continue
		}
		t, err := Synthesize(op, spec, opts)
		if err != nil {
			return nil, err
		}
		if names[t.Name] {
			base := t.Name
			for n := 2; names[t.Name]; n++ {
				t.Name = fmt.Sprintf("%s_%d", base, n)
			}
			t.logger = t.logger.With(zap.String("renamed", t.Name))
			opts.Logger.Debug("tool name taken, renamed", zap.String("operation", op.ID), zap.String("tool", t.Name))
		}
		names[t.Name] = true
		tools = append(tools, t)
	}
	opts.Logger.Debug("synthesized tools", zap.Int("count", len(tools)))
	return tools, nil
}

func tagSelected(tags, include, exclude []string) bool {
	if len(include) > 0 && !hasAnyTag(tags, include) {
		return false
	}
	return len(exclude) == 0 || !hasAnyTag(tags, exclude)
}

func hasAnyTag(tags, targets []string) bool {
	set := make(map[string]bool, len(tags))
	for _, t := range tags {
		set[t] = true
	}
	for _, t := range targets {
		if set[t] {
			return true
		}
	}
	return false
}

// describe picks summary, then description, then "METHOD path".
func describe(op openapi.Operation) string {
	if s := strings.TrimSpace(op.Summary); s != "" {
		return s
	}
	if s := strings.TrimSpace(op.Description); s != "" {
		return s
	}
	return op.Method + " " + op.Path
}

// inputSchema builds a flat object schema with one property per parameter.
func inputSchema(op openapi.Operation) (*jsonschema.Schema, error) {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(op.Parameters)),
	}
	for _, p := range op.Parameters {
		if _, dup := s.Properties[p.Name]; dup {
			return nil, errmodel.Validation("duplicate_parameter",
				fmt.Sprintf("parameter %q appears in more than one location", p.Name),
				map[string]any{"operation": op.ID, "parameter": p.Name})
		}
		s.Properties[p.Name] = propertySchema(p)
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s, nil
}

func propertySchema(p openapi.Parameter) *jsonschema.Schema {
	prop := &jsonschema.Schema{Type: p.Type, Description: p.Description}
	if p.Type == "" {
		prop.Type = openapi.TypeString
	}
	if len(p.Enum) > 0 {
		prop.Enum = append([]any(nil), p.Enum...)
	}
	if p.Type == openapi.TypeArray {
		items := p.Items
		if items == "" {
			items = openapi.TypeString
		}
		prop.Items = &jsonschema.Schema{Type: items}
	}
	return prop
}
