package rest

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/agentcore/pkg/errmodel"
)

func TestURL(t *testing.T) {
	c, err := New("x", "http://h:1/base/")
	require.NoError(t, err)
	assert.Equal(t, "http://h:1/base/a/b?wait=true", c.URL("/a/b?wait=true"))

	c, err = New("x", "index.svc.example.io")
	require.NoError(t, err)
	assert.Equal(t, "https://index.svc.example.io/query", c.URL("query"))

	_, err = New("x", "http://")
	assert.True(t, errors.Is(err, errmodel.ErrConfiguration))
}

func TestJSON(t *testing.T) {
	var gotBody, gotSig, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotSig, gotKey = string(b), r.Header.Get("X-Sig"), r.Header.Get("Api-Key")
		switch r.URL.Path {
		case "/missing":
			http.Error(w, `{"status":"not found"}`, http.StatusNotFound)
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	c, err := New("teststore", srv.URL)
	require.NoError(t, err)
	c.Header.Set("Api-Key", "k")
	c.Sign = func(req *http.Request, body []byte) error {
		req.Header.Set("X-Sig", string(body))
		return nil
	}

	var out struct{ OK bool }
	require.NoError(t, c.JSON(t.Context(), http.MethodPost, "/ok", map[string]int{"a": 1}, &out))
	assert.True(t, out.OK)
	assert.JSONEq(t, `{"a":1}`, gotBody)
	assert.Equal(t, gotBody, gotSig)
	assert.Equal(t, "k", gotKey)

	require.NoError(t, c.JSON(t.Context(), http.MethodDelete, "/empty", nil, &out))

	err = c.JSON(t.Context(), http.MethodGet, "/missing", nil, &out)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, errmodel.ErrInvocation))
	assert.Equal(t, http.StatusNotFound, errmodel.From(err).Context["status"])
}
