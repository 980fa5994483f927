package api2tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/wilhg/agentcore/pkg/agent"
	"github.com/wilhg/agentcore/pkg/errmodel"
	"github.com/wilhg/agentcore/pkg/openapi"
)

// outputSchema describes every invocation result.
var outputSchema = []byte(`{"type":"object","properties":{"status":{"type":"integer"},"body":{}},"required":["status","body"]}`)

// Tool is a callable wrapper around one API operation.
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
	Operation   openapi.Operation
	// BaseURL is the bound server URL without a trailing slash.
	BaseURL string

	inputSchema []byte
	client      *http.Client
	headers     map[string]string
	logger      *zap.Logger
}

var _ agent.Tool = (*Tool)(nil)

// HTTPError reports a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
	Method     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Describe implements agent.Tool.
func (t *Tool) Describe() agent.ToolDescriptor {
	return agent.ToolDescriptor{
		Name:         t.Name,
		Description:  t.Description,
		InputSchema:  t.inputSchema,
		OutputSchema: outputSchema,
		Permissions:  []agent.ToolPermission{{Name: agent.PermissionNetworkOutbound, Description: "calls " + t.Operation.Method + " " + t.Operation.Path}},
	}
}

// MarshalJSON renders the tool record for the tools and dict formats.
func (t *Tool) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name        string             `json:"name"`
		OperationID string             `json:"operation_id"`
		Description string             `json:"description"`
		Method      string             `json:"method"`
		Path        string             `json:"path"`
		BaseURL     string             `json:"base_url,omitempty"`
		Parameters  *jsonschema.Schema `json:"parameters"`
	}{t.Name, t.Operation.ID, t.Description, t.Operation.Method, t.Operation.Path, t.BaseURL, t.Schema})
}

// Invoke performs the HTTP request for the operation and returns
// {"status": int, "body": decoded JSON or string}.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (out map[string]any, err error) {
	op := t.Operation
	ctx, span := otel.Tracer("agentcore/api2tool").Start(ctx, "api2tool.Invoke")
	span.SetAttributes(
		attribute.String("tool.name", t.Name),
		attribute.String("http.request.method", op.Method),
		attribute.String("url.template", op.Path),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if t.BaseURL == "" {
		return nil, errmodel.Configuration("missing_base_url", "no base URL declared or configured", map[string]any{"tool": t.Name})
	}
	req, err := t.buildRequest(ctx, args)
	if err != nil {
		return nil, err
	}

	res, err := t.client.Do(req)
	if err != nil {
		return nil, errmodel.Invocation("transport", "request failed", map[string]any{"tool": t.Name, "url": req.URL.String()}, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errmodel.Invocation("transport", "cannot read response", map[string]any{"tool": t.Name}, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	t.logger.Debug("invoked operation",
		zap.String("method", op.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status", res.StatusCode),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		herr := &HTTPError{StatusCode: res.StatusCode, Body: string(data), Method: op.Method, URL: req.URL.String()}
		return nil, errmodel.Invocation("http_status", fmt.Sprintf("%s returned %d", t.Name, res.StatusCode),
			map[string]any{"tool": t.Name, "status": res.StatusCode, "body": herr.Body}, herr)
	}
	return map[string]any{"status": res.StatusCode, "body": decodeBody(data)}, nil
}

func (t *Tool) buildRequest(ctx context.Context, args map[string]any) (*http.Request, error) {
	op := t.Operation
	path := op.Path
	query := url.Values{}
	header := http.Header{}
	var (
		bodyFields = map[string]any{}
		rawBody    any
		hasRaw     bool
	)
	wholeBody := rawBodyOnly(op)

	for _, p := range op.Parameters {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, errmodel.Validation("missing_argument", "missing required argument "+strconv.Quote(p.Name),
					map[string]any{"tool": t.Name, "argument": p.Name})
			}
			continue
		}
		switch p.In {
		case openapi.InPath:
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(formatValue(v)))
		case openapi.InQuery:
			switch list := v.(type) {
			case []any:
				for _, item := range list {
					query.Add(p.Name, formatValue(item))
				}
			case []string:
				for _, item := range list {
					query.Add(p.Name, item)
				}
			default:
				query.Set(p.Name, formatValue(v))
			}
		case openapi.InHeader:
			header.Set(p.Name, formatValue(v))
		case openapi.InBody:
			if p.WholeBody && wholeBody {
				rawBody, hasRaw = v, true
			} else {
				bodyFields[p.Name] = v
			}
		}
	}

	u := t.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if hasRaw || len(bodyFields) > 0 {
		payload := any(bodyFields)
		if hasRaw {
			payload = rawBody
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, errmodel.New(errmodel.CategoryValidation, "invalid_argument", "request body is not JSON-serializable", map[string]any{"tool": t.Name}, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, u, body)
	if err != nil {
		return nil, errmodel.Configuration("invalid_base_url", "cannot build request URL", map[string]any{"tool": t.Name, "url": u})
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// formatValue renders a scalar argument for a path, query or header slot.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func decodeBody(data []byte) any {
	if len(bytes.TrimSpace(data)) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}
