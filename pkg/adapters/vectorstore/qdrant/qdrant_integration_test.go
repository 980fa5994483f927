//go:build integration

package qdrant

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	vstore "github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/config"
)

func TestQdrantUpsertQueryDelete(t *testing.T) {
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "qdrant/qdrant:latest",
		ExposedPorts: []string{"6333/tcp"},
		WaitingFor:   wait.ForHTTP("/readyz").WithPort("6333/tcp"),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("skip: cannot start qdrant: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6333/tcp")
	require.NoError(t, err)

	cfg := config.NewDefaultConfig()
	cfg.VectorStore.Qdrant.URL = fmt.Sprintf("http://%s:%s", host, port.Port())
	cfg.VectorStore.Collection = "itest"
	vs, err := LocalFactory(ctx, cfg)
	require.NoError(t, err)

	require.NoError(t, vs.Upsert(ctx, []vstore.Item{
		{ID: "a1", Namespace: "ns1", Vector: vstore.Vector{1, 0}, Metadata: map[string]any{"tag": "x"}},
		{ID: "a2", Namespace: "ns1", Vector: vstore.Vector{0.8, 0.2}, Metadata: map[string]any{"tag": "y"}},
		{ID: "b1", Namespace: "ns2", Vector: vstore.Vector{0, 1}},
	}))

	matches, err := vs.Query(ctx, vstore.Vector{1, 0}, 2, vstore.Filter{Namespace: "ns1"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "a1", matches[0].Item.ID)

	require.NoError(t, vs.Delete(ctx, "ns1", []string{"a1"}))
	matches, err = vs.Query(ctx, vstore.Vector{1, 0}, 2, vstore.Filter{Namespace: "ns1"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "a2", matches[0].Item.ID)
}
