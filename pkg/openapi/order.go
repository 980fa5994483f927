package openapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// methodOrder is the canonical order used when declaration order is unknown.
var methodOrder = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

func isMethod(k string) bool {
	k = strings.ToLower(k)
	for _, m := range methodOrder {
		if m == k {
			return true
		}
	}
	return false
}

// declOrder records the declaration order of paths and of the method keys under each path.
type declOrder struct {
	paths   []string
	methods map[string][]string
}

func newDeclOrder() *declOrder {
	return &declOrder{methods: map[string][]string{}}
}

func (o *declOrder) addPath(p string) {
	if _, seen := o.methods[p]; seen {
		return
	}
	o.paths = append(o.paths, p)
	o.methods[p] = nil
}

func (o *declOrder) addMethod(p, m string) {
	o.methods[p] = append(o.methods[p], strings.ToLower(m))
}

// pathsFor returns the declared paths in order; paths the order does not know
// about (none for byte sources) follow in lexical order.
func (o *declOrder) pathsFor(present []string) []string {
	known := map[string]bool{}
	out := make([]string, 0, len(present))
	if o != nil {
		set := map[string]bool{}
		for _, p := range present {
			set[p] = true
		}
		for _, p := range o.paths {
			if set[p] {
				out = append(out, p)
				known[p] = true
			}
		}
	}
	var rest []string
	for _, p := range present {
		if !known[p] {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// methodsFor returns the methods of path p in declaration order, falling back to canonical order.
func (o *declOrder) methodsFor(p string) []string {
	if o != nil {
		if ms, ok := o.methods[p]; ok && len(ms) > 0 {
			return ms
		}
	}
	return methodOrder
}

// isJSON reports whether data looks like a JSON document rather than YAML.
func isJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// decodeJSON decodes a JSON document into a generic value and records path order.
func decodeJSON(data []byte) (map[string]any, *declOrder, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}
	ord, err := jsonOrder(data)
	if err != nil {
		return nil, nil, err
	}
	return raw, ord, nil
}

func jsonOrder(data []byte) (*declOrder, error) {
	ord := newDeclOrder()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		if key != "paths" {
			if err := skipValue(dec); err != nil {
				return nil, err
			}
			continue
		}
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		for dec.More() {
			p, err := stringToken(dec)
			if err != nil {
				return nil, err
			}
			ord.addPath(p)
			if err := expectDelim(dec, '{'); err != nil {
				return nil, err
			}
			for dec.More() {
				k, err := stringToken(dec)
				if err != nil {
					return nil, err
				}
				if isMethod(k) {
					ord.addMethod(p, k)
				}
				if err := skipValue(dec); err != nil {
					return nil, err
				}
			}
			if _, err := dec.Token(); err != nil { // closing '}' of path item
				return nil, err
			}
		}
		if _, err := dec.Token(); err != nil { // closing '}' of paths
			return nil, err
		}
	}
	return ord, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return s, nil
}

// skipValue consumes one complete JSON value.
func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}

// decodeYAML decodes a YAML document into a generic value and records path order.
func decodeYAML(data []byte) (map[string]any, *declOrder, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, nil, errors.New("document is not a mapping")
	}
	var generic any
	if err := root.Content[0].Decode(&generic); err != nil {
		return nil, nil, err
	}
	raw, ok := normalize(generic).(map[string]any)
	if !ok {
		return nil, nil, errors.New("document is not a mapping")
	}

	ord := newDeclOrder()
	top := root.Content[0]
	for i := 0; i+1 < len(top.Content); i += 2 {
		if top.Content[i].Value != "paths" || top.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		paths := top.Content[i+1]
		for j := 0; j+1 < len(paths.Content); j += 2 {
			p := paths.Content[j].Value
			ord.addPath(p)
			item := paths.Content[j+1]
			if item.Kind != yaml.MappingNode {
				continue
			}
			for k := 0; k+1 < len(item.Content); k += 2 {
				if key := item.Content[k].Value; isMethod(key) {
					ord.addMethod(p, key)
				}
			}
		}
	}
	return raw, ord, nil
}

// normalize returns a JSON-compatible copy of v: mappings with non-string keys
// (status codes such as 200) become map[string]any. The input is not modified.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalize(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	default:
		return v
	}
}
