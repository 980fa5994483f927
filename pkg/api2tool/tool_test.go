package api2tool

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/agentcore/pkg/agent"
	"github.com/wilhg/agentcore/pkg/errmodel"
	"github.com/wilhg/agentcore/pkg/openapi"
)

func petTools(t *testing.T, opts SynthOptions) map[string]*Tool {
	t.Helper()
	doc, err := openapi.Load(t.Context(), openapi.FromPath(petstore))
	require.NoError(t, err)
	spec, err := openapi.Extract(doc)
	require.NoError(t, err)
	tools, err := SynthesizeAll(spec, opts)
	require.NoError(t, err)
	out := map[string]*Tool{}
	for _, tl := range tools {
		out[tl.Name] = tl
	}
	return out
}

func TestSynthesize_SchemaAndDescription(t *testing.T) {
	tools := petTools(t, SynthOptions{})

	create := tools["create_pet"]
	require.NotNil(t, create)
	assert.Equal(t, "Create a pet", create.Description)
	assert.Equal(t, "object", create.Schema.Type)
	assert.ElementsMatch(t, []string{"id", "name"}, create.Schema.Required)
	assert.Len(t, create.Schema.Properties, 4)
	assert.Equal(t, "integer", create.Schema.Properties["id"].Type)
	assert.Equal(t, "string", create.Schema.Properties["X-Request-Id"].Type)
	for name, prop := range create.Schema.Properties {
		assert.Empty(t, prop.Properties, "property %s must be flat", name)
	}

	list := tools["list_pets"]
	assert.Equal(t, "array", list.Schema.Properties["tags"].Type)
	assert.Equal(t, "string", list.Schema.Properties["tags"].Items.Type)
	assert.Empty(t, list.Schema.Required)

	get := tools["get_pet"]
	assert.Equal(t, "Info for a specific pet", get.Description)
	assert.Equal(t, []string{"petId"}, get.Schema.Required)
	assert.Equal(t, "https://petstore.example.com/v1", get.BaseURL)

	d := get.Describe()
	assert.Equal(t, "get_pet", d.Name)
	require.NoError(t, agent.CompileJSONSchema(d.InputSchema))
	require.NoError(t, agent.CompileJSONSchema(d.OutputSchema))
	assert.Equal(t, agent.PermissionNetworkOutbound, d.Permissions[0].Name)
}

func TestSynthesize_FallbackDescriptionAndNames(t *testing.T) {
	spec := &openapi.Spec{Operations: []openapi.Operation{{ID: "get users/{id}", Method: "GET", Path: "/users/{id}"}}}
	tools, err := SynthesizeAll(spec, SynthOptions{})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_users_id", tools[0].Name)
	assert.Equal(t, "GET /users/{id}", tools[0].Description)

	spec.Operations = append(spec.Operations,
		openapi.Operation{ID: "get_users_id", Method: "GET", Path: "/other"},
		openapi.Operation{ID: "get.users.id", Method: "GET", Path: "/third"},
	)
	tools, err = SynthesizeAll(spec, SynthOptions{})
	require.NoError(t, err)
	require.Len(t, tools, 3)
	assert.Equal(t, []string{"get_users_id", "get_users_id_2", "get_users_id_3"},
		[]string{tools[0].Name, tools[1].Name, tools[2].Name})
	assert.Equal(t, "get_users_id", tools[1].Operation.ID)

	spec.Operations = append(spec.Operations, openapi.Operation{ID: "get_users_id", Method: "POST", Path: "/other"})
	_, err = SynthesizeAll(spec, SynthOptions{})
	assert.True(t, errors.Is(err, &errmodel.Error{Category: errmodel.CategoryValidation, Code: "duplicate_operation_id"}))
}

func TestSynthesize_ParameterInTwoLocations(t *testing.T) {
	op := openapi.Operation{ID: "x", Method: "GET", Path: "/x/{id}", Parameters: []openapi.Parameter{
		{Name: "id", In: openapi.InPath, Required: true, Type: "string"},
		{Name: "id", In: openapi.InQuery, Type: "string"},
	}}
	_, err := Synthesize(op, &openapi.Spec{}, SynthOptions{})
	assert.Equal(t, "duplicate_parameter", errmodel.From(err).Code)
}

func TestInvoke_BuildsRequest(t *testing.T) {
	var got struct {
		method, path, rawQuery, reqID, contentType string
		body                                       map[string]any
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method, got.path, got.rawQuery = r.Method, r.URL.EscapedPath(), r.URL.RawQuery
		got.reqID, got.contentType = r.Header.Get("X-Request-Id"), r.Header.Get("Content-Type")
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &got.body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tools := petTools(t, SynthOptions{BaseURL: srv.URL + "/", HTTPClient: srv.Client(), Headers: map[string]string{"Authorization": "Bearer x"}})

	out, err := tools["get_pet"].Invoke(t.Context(), map[string]any{"petId": "a b/c"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out["status"])
	assert.Equal(t, map[string]any{"ok": true}, out["body"])
	assert.Equal(t, "GET", got.method)
	assert.Equal(t, "/pets/a%20b%2Fc", got.path)

	_, err = tools["list_pets"].Invoke(t.Context(), map[string]any{"limit": 10.0, "tags": []any{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "limit=10&tags=a&tags=b", got.rawQuery)

	_, err = tools["create_pet"].Invoke(t.Context(), map[string]any{"id": 7.0, "name": "rex", "X-Request-Id": "r-1"})
	require.NoError(t, err)
	assert.Equal(t, "POST", got.method)
	assert.Equal(t, "r-1", got.reqID)
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, map[string]any{"id": 7.0, "name": "rex"}, got.body)
}

func TestInvoke_OverrideTargetsEveryCall(t *testing.T) {
	var declared, override atomic.Int32
	declaredSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { declared.Add(1) }))
	defer declaredSrv.Close()
	overrideSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		override.Add(1)
		_, _ = w.Write([]byte("plain"))
	}))
	defer overrideSrv.Close()

	spec := &openapi.Spec{BaseURL: declaredSrv.URL, Operations: []openapi.Operation{
		{ID: "a", Method: "GET", Path: "/a"},
		{ID: "b", Method: "DELETE", Path: "/b"},
	}}
	tools, err := SynthesizeAll(spec, SynthOptions{BaseURL: overrideSrv.URL})
	require.NoError(t, err)
	for _, tl := range tools {
		out, err := tl.Invoke(t.Context(), nil)
		require.NoError(t, err)
		assert.Equal(t, "plain", out["body"])
	}
	assert.Zero(t, declared.Load())
	assert.EqualValues(t, 2, override.Load())
}

func TestInvoke_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no such pet"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	tools := petTools(t, SynthOptions{BaseURL: srv.URL})
	_, err := tools["get_pet"].Invoke(t.Context(), map[string]any{"petId": "1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errmodel.ErrInvocation))

	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)
	assert.Contains(t, herr.Body, "no such pet")
	assert.Equal(t, "GET", herr.Method)
}

func TestInvoke_Errors(t *testing.T) {
	tools := petTools(t, SynthOptions{})

	_, err := tools["get_pet"].Invoke(t.Context(), map[string]any{})
	assert.Equal(t, "missing_argument", errmodel.From(err).Code)
	assert.True(t, errors.Is(err, errmodel.ErrValidation))

	spec := &openapi.Spec{Operations: []openapi.Operation{{ID: "a", Method: "GET", Path: "/a"}}}
	noBase, err := SynthesizeAll(spec, SynthOptions{})
	require.NoError(t, err)
	_, err = noBase[0].Invoke(t.Context(), nil)
	assert.True(t, errors.Is(err, errmodel.ErrConfiguration))
	assert.Equal(t, "missing_base_url", errmodel.From(err).Code)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	dead, err := SynthesizeAll(spec, SynthOptions{BaseURL: url})
	require.NoError(t, err)
	_, err = dead[0].Invoke(t.Context(), nil)
	assert.Equal(t, "transport", errmodel.From(err).Code)
}

func TestInvoke_RawBody(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	spec := &openapi.Spec{Operations: []openapi.Operation{{ID: "put_tags", Method: "PUT", Path: "/tags", Parameters: []openapi.Parameter{
		{Name: "body", In: openapi.InBody, Type: openapi.TypeArray, Items: openapi.TypeString, Required: true, WholeBody: true},
	}}}}
	tools, err := SynthesizeAll(spec, SynthOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	out, err := tools[0].Invoke(t.Context(), map[string]any{"body": []any{"x", "y"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, out["status"])
	assert.Equal(t, "", out["body"])
	assert.JSONEq(t, `["x","y"]`, string(body))
}

func TestSafeInvokeThroughRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()

	tools := petTools(t, SynthOptions{BaseURL: srv.URL})
	reg, err := agent.NewRegistry(tools["list_pets"], tools["get_pet"])
	require.NoError(t, err)
	tl, ok := reg.Resolve("list_pets")
	require.True(t, ok)

	_, err = agent.SafeInvoke(t.Context(), tl, map[string]any{}, nil, agent.JSONSchemaValidator)
	assert.True(t, errors.Is(err, errmodel.ErrPolicy))

	allowed := agent.PermissionSet(tl)
	out, err := agent.SafeInvoke(t.Context(), tl, map[string]any{"limit": 2}, allowed, agent.JSONSchemaValidator)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"id": 1.0}}, out["body"])

	_, err = agent.SafeInvoke(t.Context(), tl, map[string]any{"limit": "many"}, allowed, agent.JSONSchemaValidator)
	assert.Equal(t, "invalid_input", errmodel.From(err).Code)
}

func TestToolMarshalJSON(t *testing.T) {
	tools := petTools(t, SynthOptions{})
	b, err := json.Marshal(tools["get_pet"])
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "get_pet", m["name"])
	assert.Equal(t, "GET", m["method"])
	assert.Equal(t, "/pets/{petId}", m["path"])
	params := m["parameters"].(map[string]any)
	assert.Equal(t, "object", params["type"])
}

func TestInvoke_ObjectBodyWithBodyProperty(t *testing.T) {
	var sent []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sent, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	doc, err := openapi.Load(t.Context(), openapi.FromMap(map[string]any{
		"openapi": "3.0.3",
		"info":    map[string]any{"title": "Notes", "version": "1"},
		"paths": map[string]any{"/notes": map[string]any{"post": map[string]any{
			"operationId": "create_note",
			"requestBody": map[string]any{"required": true, "content": map[string]any{"application/json": map[string]any{
				"schema": map[string]any{"type": "object", "properties": map[string]any{"body": map[string]any{"type": "string"}}},
			}}},
			"responses": map[string]any{"204": map[string]any{"description": "created"}},
		}}},
	}))
	require.NoError(t, err)
	spec, err := openapi.Extract(doc)
	require.NoError(t, err)
	op, ok := spec.Operation("create_note")
	require.True(t, ok)
	require.Len(t, op.Parameters, 1)
	assert.False(t, op.Parameters[0].WholeBody)

	tools, err := SynthesizeAll(spec, SynthOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = tools[0].Invoke(t.Context(), map[string]any{"body": "hello"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"body":"hello"}`, string(sent))

	code, err := RenderGo(tools, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, code, `"POST", "/notes", false,`)
}
