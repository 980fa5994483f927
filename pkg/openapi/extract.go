package openapi

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/wilhg/agentcore/pkg/errmodel"
)

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9]+`)

// DeriveID builds the identifier used for operations without an operationId:
// lower(method) + "_" + path, non-alphanumeric runs collapsed to "_".
func DeriveID(method, path string) string {
	id := strings.ToLower(method) + "_" + path
	return strings.Trim(nonIdent.ReplaceAllString(id, "_"), "_")
}

// Extract walks every (path, method) pair of doc and returns one Operation
// each, in declaration order.
func Extract(doc *Document) (*Spec, error) {
	if doc == nil || doc.t == nil {
		return nil, errmodel.Validation("invalid_document", "document is nil", nil)
	}
	spec := &Spec{
		Title:       doc.Title(),
		Version:     doc.Version(),
		Description: doc.Description(),
		BaseURL:     doc.BaseURL(),
	}
	if doc.t.Paths == nil {
		return spec, nil
	}

	items := doc.t.Paths.Map()
	present := make([]string, 0, len(items))
	for p := range items {
		present = append(present, p)
	}

	type origin struct{ method, path string }
	seen := map[string]origin{}
	for _, path := range doc.order.pathsFor(present) {
		item := items[path]
		if item == nil {
			continue
		}
		for _, method := range doc.order.methodsFor(path) {
			op := item.GetOperation(strings.ToUpper(method))
			if op == nil {
				continue
			}
			out, err := extractOperation(method, path, item, op)
			if err != nil {
				return nil, err
			}
			if prev, dup := seen[out.ID]; dup {
				return nil, errmodel.Validation("duplicate_operation_id",
					fmt.Sprintf("operation id %q is used by %s %s and %s %s", out.ID,
						strings.ToUpper(prev.method), prev.path, strings.ToUpper(method), path),
					map[string]any{"id": out.ID})
			}
			seen[out.ID] = origin{method, path}
			spec.Operations = append(spec.Operations, out)
		}
	}
	return spec, nil
}

func extractOperation(method, path string, item *openapi3.PathItem, op *openapi3.Operation) (Operation, error) {
	out := Operation{
		ID:          strings.TrimSpace(op.OperationID),
		Method:      strings.ToUpper(method),
		Path:        path,
		Summary:     op.Summary,
		Description: op.Description,
		Tags:        append([]string(nil), op.Tags...),
	}
	if out.ID == "" {
		out.ID = DeriveID(method, path)
		out.Derived = true
	}

	out.Parameters = mergeParameters(item.Parameters, op.Parameters)
	out.Parameters = append(out.Parameters, bodyParameters(op.RequestBody, out.Parameters)...)
	for _, p := range out.Parameters {
		if p.Name == "" {
			return Operation{}, errmodel.Validation("invalid_document",
				fmt.Sprintf("%s %s declares a parameter without a name", out.Method, path), nil)
		}
	}
	out.Response = responseSummary(op.Responses)
	return out, nil
}

// mergeParameters applies operation parameters over path-item ones. A
// parameter with the same (name, location) replaces the path-level one in place.
func mergeParameters(pathLevel, opLevel openapi3.Parameters) []Parameter {
	var out []Parameter
	index := map[string]int{}
	add := func(refs openapi3.Parameters) {
		for _, ref := range refs {
			if ref == nil || ref.Value == nil {
				continue
			}
			p, ok := convertParameter(ref.Value)
			if !ok {
				continue
			}
			key := string(p.In) + "\x00" + p.Name
			if i, exists := index[key]; exists {
				out[i] = p
				continue
			}
			index[key] = len(out)
			out = append(out, p)
		}
	}
	add(pathLevel)
	add(opLevel)
	return out
}

func convertParameter(v *openapi3.Parameter) (Parameter, bool) {
	var in Location
	switch v.In {
	case openapi3.ParameterInPath:
		in = InPath
	case openapi3.ParameterInQuery:
		in = InQuery
	case openapi3.ParameterInHeader:
		in = InHeader
	default:
		// cookie parameters have no place in a tool signature
		return Parameter{}, false
	}
	schema := v.Schema
	if schema == nil && len(v.Content) > 0 {
		if mt := pickMediaType(v.Content); mt != nil {
			schema = mt.Schema
		}
	}
	p := Parameter{
		Name:        v.Name,
		In:          in,
		Required:    v.Required || in == InPath,
		Description: v.Description,
	}
	applySchema(&p, schema)
	if p.Description == "" && schema != nil && schema.Value != nil {
		p.Description = schema.Value.Description
	}
	return p, true
}

// bodyParameters flattens the request body into body-located parameters.
func bodyParameters(ref *openapi3.RequestBodyRef, existing []Parameter) []Parameter {
	if ref == nil || ref.Value == nil {
		return nil
	}
	rb := ref.Value
	mt := pickMediaType(rb.Content)
	if mt == nil {
		return nil
	}
	single := func() []Parameter {
		p := Parameter{Name: "body", In: InBody, Required: rb.Required, Description: rb.Description, WholeBody: true}
		applySchema(&p, mt.Schema)
		return []Parameter{p}
	}

	if mt.Schema == nil || mt.Schema.Value == nil {
		return single()
	}
	s := mt.Schema.Value
	if !isObject(s) || len(s.Properties) == 0 {
		return single()
	}

	taken := map[string]bool{}
	for _, p := range existing {
		taken[p.Name] = true
	}
	required := map[string]bool{}
	for _, r := range s.Required {
		required[r] = true
	}
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		if taken[name] {
			// a property shadows another parameter; keep the body whole
			return single()
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Parameter, 0, len(names))
	for _, name := range names {
		prop := s.Properties[name]
		p := Parameter{Name: name, In: InBody, Required: rb.Required && required[name]}
		applySchema(&p, prop)
		if prop != nil && prop.Value != nil {
			p.Description = prop.Value.Description
		}
		out = append(out, p)
	}
	return out
}

// pickMediaType prefers application/json, then the first media type in lexical order.
func pickMediaType(content openapi3.Content) *openapi3.MediaType {
	if len(content) == 0 {
		return nil
	}
	if mt := content.Get("application/json"); mt != nil {
		return mt
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return content[keys[0]]
}

func schemaTypes(s *openapi3.Schema) []string {
	if s == nil || s.Type == nil {
		return nil
	}
	var out []string
	for _, t := range s.Type.Slice() {
		if t != "null" {
			out = append(out, t)
		}
	}
	return out
}

func isObject(s *openapi3.Schema) bool {
	ts := schemaTypes(s)
	if len(ts) == 1 {
		return ts[0] == TypeObject
	}
	return len(ts) == 0 && len(s.Properties) > 0 && len(s.OneOf)+len(s.AnyOf)+len(s.AllOf) == 0
}

// applySchema sets Type, Items, Enum and Flattened on p from a schema.
func applySchema(p *Parameter, ref *openapi3.SchemaRef) {
	if ref == nil || ref.Value == nil {
		p.Type, p.Flattened = TypeObject, true
		return
	}
	s := ref.Value
	if len(s.Enum) > 0 {
		p.Enum = append([]any(nil), s.Enum...)
	}
	ts := schemaTypes(s)
	switch {
	case len(ts) > 1:
		p.Type, p.Flattened = TypeObject, true
	case len(ts) == 0:
		if isObject(s) {
			p.Type = TypeObject
			p.Flattened = hasNestedObject(s)
			return
		}
		p.Type, p.Flattened = TypeObject, true
	default:
		p.Type = ts[0]
		switch p.Type {
		case TypeArray:
			p.Items = TypeObject
			if s.Items != nil && s.Items.Value != nil {
				if its := schemaTypes(s.Items.Value); len(its) == 1 {
					p.Items = its[0]
				}
			}
		case TypeObject:
			p.Flattened = hasNestedObject(s) || len(s.OneOf)+len(s.AnyOf)+len(s.AllOf) > 0
		}
	}
}

func hasNestedObject(s *openapi3.Schema) bool {
	for _, prop := range s.Properties {
		if prop == nil || prop.Value == nil {
			continue
		}
		if ts := schemaTypes(prop.Value); (len(ts) == 1 && ts[0] == TypeObject) || len(prop.Value.Properties) > 0 {
			return true
		}
	}
	return false
}

// responseSummary picks the lowest 2xx response.
func responseSummary(rs *openapi3.Responses) ResponseSummary {
	if rs == nil {
		return ResponseSummary{}
	}
	m := rs.Map()
	codes := make([]string, 0, len(m))
	for code := range m {
		if strings.HasPrefix(code, "2") {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return ResponseSummary{}
	}
	sort.Strings(codes)
	out := ResponseSummary{Status: codes[0]}
	ref := m[codes[0]]
	if ref == nil || ref.Value == nil {
		return out
	}
	if mt := pickMediaType(ref.Value.Content); mt != nil {
		for k, v := range ref.Value.Content {
			if v == mt {
				out.MediaType = k
				break
			}
		}
		if mt.Schema != nil && mt.Schema.Value != nil {
			var p Parameter
			applySchema(&p, mt.Schema)
			out.Type = p.Type
		}
	}
	return out
}
