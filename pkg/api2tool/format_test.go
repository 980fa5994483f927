package api2tool

import (
	"errors"
	"go/parser"
	"go/token"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wilhg/agentcore/pkg/errmodel"
	"github.com/wilhg/agentcore/pkg/openapi"
)

const petstore = "testdata/petstore.yaml"

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTools, false},
		{"tools", FormatTools, false},
		{"DICT", FormatDict, false},
		{" file ", FormatFile, false},
		{"names", FormatNames, false},
		{"info", FormatInfo, false},
		{"xml", "", true},
		{"python", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errmodel.ErrValue))
				assert.Equal(t, "invalid_format", errmodel.From(err).Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvert_InvalidFormatPerformsNoLoad(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.ServeFile(w, r, petstore)
	}))
	defer srv.Close()

	res, err := Convert(t.Context(), openapi.FromURL(srv.URL+"/spec.yaml"), Options{Format: "xml", HTTPClient: srv.Client()})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errmodel.ErrValue))
	assert.Zero(t, hits.Load())

	_, err = Convert(t.Context(), openapi.FromURL(srv.URL+"/spec.yaml"), Options{Format: "names", HTTPClient: srv.Client()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestConvert_Formats(t *testing.T) {
	ctx := t.Context()
	src := openapi.FromPath(petstore)
	logger := zaptest.NewLogger(t)

	tools, err := Convert(ctx, src, Options{Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, FormatTools, tools.Format)
	require.Len(t, tools.Tools, 3)
	assert.Equal(t, "list_pets", tools.Tools[0].Name)
	assert.Equal(t, tools.Tools, tools.Value())

	names, err := Convert(ctx, src, Options{Format: "names"})
	require.NoError(t, err)
	assert.Equal(t, []string{"list_pets", "create_pet", "get_pet"}, names.Names)

	dict, err := Convert(ctx, src, Options{Format: "dict"})
	require.NoError(t, err)
	keys := make([]string, 0, len(dict.Dict))
	for k, v := range dict.Dict {
		keys = append(keys, k)
		assert.Equal(t, k, v.Operation.ID)
	}
	sorted := append([]string(nil), names.Names...)
	sort.Strings(sorted)
	sort.Strings(keys)
	assert.Equal(t, sorted, keys)

	info, err := Convert(ctx, src, Options{Format: "info"})
	require.NoError(t, err)
	assert.Equal(t, &Info{
		Title:     "Pet Store",
		Version:   "1.0.0",
		BaseURL:   "https://petstore.example.com/v1",
		ToolCount: 3,
		ToolNames: []string{"list_pets", "create_pet", "get_pet"},
	}, info.Info)

	file, err := Convert(ctx, src, Options{Format: "file", Package: "petstore"})
	require.NoError(t, err)
	assert.Contains(t, file.Code, "package petstore")
	assert.Contains(t, file.Code, "func (c *Client) ListPets(")
	assert.Contains(t, file.Code, "func (c *Client) CreatePet(")
	assert.Contains(t, file.Code, "func (c *Client) GetPet(")
	assert.Nil(t, file.Tools)
}

func TestConvert_BaseURLOverrideInInfo(t *testing.T) {
	res, err := Convert(t.Context(), openapi.FromPath(petstore), Options{Format: "info", BaseURL: "http://localhost:9999"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", res.Info.BaseURL)
}

func TestConvert_TagFilters(t *testing.T) {
	res, err := Convert(t.Context(), openapi.FromPath(petstore), Options{Format: "names", IncludeTags: []string{"read"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"list_pets", "get_pet"}, res.Names)

	res, err = Convert(t.Context(), openapi.FromPath(petstore), Options{Format: "names", ExcludeTags: []string{"read"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"create_pet"}, res.Names)
}

func TestConvert_LoadErrorPropagates(t *testing.T) {
	_, err := Convert(t.Context(), openapi.FromPath(filepath.Join(t.TempDir(), "nope.yaml")), Options{})
	assert.True(t, errors.Is(err, errmodel.ErrLoad))
}

func TestRenderGo_ParsesAndDedupes(t *testing.T) {
	spec := &openapi.Spec{BaseURL: "https://api.example.com", Operations: []openapi.Operation{
		{ID: "list_items", Method: "GET", Path: "/items", Summary: "List\nitems"},
		{ID: "listItems", Method: "GET", Path: "/v2/items"},
		{ID: "header", Method: "GET", Path: "/header"},
		{ID: "2fa_code", Method: "POST", Path: "/2fa", Parameters: []openapi.Parameter{
			{Name: "body", In: openapi.InBody, Type: openapi.TypeObject, Required: true, WholeBody: true},
		}},
	}}
	tools, err := SynthesizeAll(spec, SynthOptions{})
	require.NoError(t, err)

	code, err := RenderGo(tools, RenderOptions{Title: "Items"})
	require.NoError(t, err)
	_, err = parser.ParseFile(token.NewFileSet(), "generated.go", code, parser.ParseComments)
	require.NoError(t, err, code)
	assert.Contains(t, code, "package tools")
	assert.Contains(t, code, `const DefaultBaseURL = "https://api.example.com"`)
	assert.Contains(t, code, "func (c *Client) ListItems(")
	assert.Contains(t, code, "func (c *Client) ListItems2(")
	assert.Contains(t, code, "func (c *Client) Header2(")
	assert.Contains(t, code, "func (c *Client) Op2faCode(")
	assert.Contains(t, code, "// ListItems List items")

	_, err = RenderGo(tools, RenderOptions{Package: "not-ident"})
	assert.True(t, errors.Is(err, errmodel.ErrValue))
}

func TestWriteFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out", DefaultFileName)
	require.NoError(t, WriteFile(p, "package tools\n"))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "package tools\n", string(b))
}

func TestConvert_KeysByOperationID(t *testing.T) {
	doc := map[string]any{
		"openapi": "3.0.3",
		"info":    map[string]any{"title": "Ids", "version": "1"},
		"servers": []any{map[string]any{"url": "https://ids.example.com"}},
		"paths": map[string]any{
			"/pets": map[string]any{
				"get":  map[string]any{"operationId": "pets.list", "responses": map[string]any{"200": map[string]any{"description": "ok"}}},
				"post": map[string]any{"operationId": "get-pet", "responses": map[string]any{"200": map[string]any{"description": "ok"}}},
			},
			"/pet": map[string]any{
				"get": map[string]any{"operationId": "get_pet", "responses": map[string]any{"200": map[string]any{"description": "ok"}}},
			},
		},
	}

	dict, err := Convert(t.Context(), openapi.FromMap(doc), Options{Format: "dict"})
	require.NoError(t, err)
	require.Len(t, dict.Dict, 3)
	require.Contains(t, dict.Dict, "pets.list")
	assert.Equal(t, "pets_list", dict.Dict["pets.list"].Name)
	require.Contains(t, dict.Dict, "get-pet")
	require.Contains(t, dict.Dict, "get_pet")
	assert.NotEqual(t, dict.Dict["get-pet"].Name, dict.Dict["get_pet"].Name)

	names, err := Convert(t.Context(), openapi.FromMap(doc), Options{Format: "names"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pets.list", "get-pet", "get_pet"}, names.Names)

	info, err := Convert(t.Context(), openapi.FromMap(doc), Options{Format: "info"})
	require.NoError(t, err)
	assert.Equal(t, names.Names, info.Info.ToolNames)
}

func TestRenderGo_RepeatsArrayQueryKeys(t *testing.T) {
	tools := petTools(t, SynthOptions{})
	code, err := RenderGo([]*Tool{tools["list_pets"]}, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, code, "query.Add(p.name, fmt.Sprint(item))")
	assert.Contains(t, code, "query.Add(p.name, item)")
}
