package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_Defaults(t *testing.T) {
	shutdown, err := Init(t.Context(), Config{ServiceName: "agentcore-test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestHTTPClient_EmitsClientSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	shutdown, err := Init(t.Context(), Config{Exporter: exp})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := HTTPClient(time.Second)
	assert.Equal(t, time.Second, c.Timeout)
	res, err := c.Get(srv.URL)
	require.NoError(t, err)
	_ = res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	spans := exp.GetSpans()
	require.NotEmpty(t, spans)
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
}
