package api2tool

import (
	"bytes"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/wilhg/agentcore/pkg/errmodel"
	"github.com/wilhg/agentcore/pkg/openapi"
)

// DefaultFileName is where the CLI writes the file format.
const DefaultFileName = "generated_tools.go"

// RenderOptions configures RenderGo.
type RenderOptions struct {
	// Package is the package clause. Defaults to "tools".
	Package string
	// Title names the source API in the header comment.
	Title string
	// BaseURL is the generated DefaultBaseURL. Defaults to the first tool's base URL.
	BaseURL string
}

type renderParam struct {
	Name     string
	In       string
	Required bool
}

type renderFunc struct {
	Func    string
	Tool    string
	Comment string
	Method  string
	Path    string
	RawBody bool
	Params  []renderParam
}

var fileTmpl = template.Must(template.New("file").Parse(`// Code generated by agentcore api2tool{{if .Title}} from {{printf "%q" .Title}}{{end}}. DO NOT EDIT.

package {{.Package}}

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is used when Client.BaseURL is empty.
const DefaultBaseURL = {{printf "%q" .BaseURL}}

// Client calls the API. The zero value uses DefaultBaseURL and http.DefaultClient.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Header  http.Header
}

// Response is the decoded result of a call.
type Response struct {
	Status int
	Body   any
}

// ToolNames lists the generated operations by tool name.
var ToolNames = []string{ {{- range .Funcs}}{{printf "%q" .Tool}}, {{end -}} }

type param struct {
	name     string
	in       string
	required bool
}
{{range .Funcs}}
// {{.Func}} {{.Comment}}
//
// {{.Method}} {{.Path}}
func (c *Client) {{.Func}}(ctx context.Context, args map[string]any) (*Response, error) {
	return c.do(ctx, {{printf "%q" .Method}}, {{printf "%q" .Path}}, {{.RawBody}}, args, []param{
		{{- range .Params}}
		{ {{- printf "%q" .Name}}, {{printf "%q" .In}}, {{.Required -}} },
		{{- end}}
	})
}
{{end}}
func (c *Client) do(ctx context.Context, method, path string, rawBody bool, args map[string]any, params []param) (*Response, error) {
	query := url.Values{}
	header := http.Header{}
	fields := map[string]any{}
	var payload any
	for _, p := range params {
		v, ok := args[p.name]
		if !ok || v == nil {
			if p.required {
				return nil, fmt.Errorf("missing required argument %q", p.name)
			}
			continue
		}
		s := fmt.Sprint(v)
		switch p.in {
		case "path":
			path = strings.ReplaceAll(path, "{"+p.name+"}", url.PathEscape(s))
		case "query":
			switch list := v.(type) {
			case []any:
				for _, item := range list {
					query.Add(p.name, fmt.Sprint(item))
				}
			case []string:
				for _, item := range list {
					query.Add(p.name, item)
				}
			default:
				query.Set(p.name, s)
			}
		case "header":
			header.Set(p.name, s)
		case "body":
			if rawBody {
				payload = v
			} else {
				fields[p.name] = v
			}
		}
	}
	if payload == nil && len(fields) > 0 {
		payload = fields
	}

	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u := strings.TrimRight(base, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.Header {
		req.Header[k] = vs
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: HTTP %d: %s", method, u, res.StatusCode, data)
	}
	out := &Response{Status: res.StatusCode, Body: string(data)}
	var decoded any
	if json.Unmarshal(data, &decoded) == nil {
		out.Body = decoded
	}
	return out, nil
}
`))

// RenderGo renders tools as a standalone, gofmt-formatted Go source file with
// one client method per tool and a shared request helper.
func RenderGo(tools []*Tool, opts RenderOptions) (string, error) {
	pkg := opts.Package
	if pkg == "" {
		pkg = "tools"
	}
	if !isIdent(pkg) {
		return "", errmodel.Value("invalid_package", "package name is not a Go identifier", map[string]any{"package": pkg})
	}
	base := opts.BaseURL
	if base == "" && len(tools) > 0 {
		base = tools[0].BaseURL
	}

	// client fields cannot double as method names
	used := map[string]int{"BaseURL": 1, "HTTP": 1, "Header": 1}
	funcs := make([]renderFunc, 0, len(tools))
	for _, t := range tools {
		fn := goName(t.Name)
		if n := used[fn]; n > 0 {
			used[fn] = n + 1
			fn = fmt.Sprintf("%s%d", fn, n+1)
		} else {
			used[fn] = 1
		}
		rf := renderFunc{
			Func:    fn,
			Tool:    t.Name,
			Comment: oneLine(t.Description),
			Method:  t.Operation.Method,
			Path:    t.Operation.Path,
			RawBody: rawBodyOnly(t.Operation),
		}
		for _, p := range t.Operation.Parameters {
			rf.Params = append(rf.Params, renderParam{Name: p.Name, In: string(p.In), Required: p.Required})
		}
		funcs = append(funcs, rf)
	}

	var buf bytes.Buffer
	err := fileTmpl.Execute(&buf, map[string]any{
		"Package": pkg,
		"Title":   opts.Title,
		"BaseURL": base,
		"Funcs":   funcs,
	})
	if err != nil {
		return "", errmodel.System("render_failed", "cannot render tools", nil, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return "", errmodel.System("render_failed", "rendered source does not parse", nil, err)
	}
	return string(src), nil
}

// WriteFile writes rendered source to path, creating parent directories.
func WriteFile(path, code string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errmodel.System("write_failed", "cannot create output directory", map[string]any{"path": path}, err)
		}
	}
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return errmodel.System("write_failed", "cannot write output file", map[string]any{"path": path}, err)
	}
	return nil
}

// rawBodyOnly reports whether the operation sends one parameter as the
// entire request body.
func rawBodyOnly(op openapi.Operation) bool {
	for _, p := range op.Parameters {
		if p.In == openapi.InBody && p.WholeBody {
			return true
		}
	}
	return false
}

// goName turns a tool name such as list_pets into ListPets.
func goName(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	s := b.String()
	if s == "" || unicode.IsDigit(rune(s[0])) {
		s = "Op" + s
	}
	return s
}

func isIdent(s string) bool {
	for i, r := range s {
		if r != '_' && !unicode.IsLetter(r) && (i == 0 || !unicode.IsDigit(r)) {
			return false
		}
	}
	return s != ""
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 200 {
		s = string(r[:197]) + "..."
	}
	return s
}
