package s3flat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// objects is an in-memory ObjectAPI.
type objects struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	puts int
	// putErr fails every PutObject when set.
	putErr error
}

func (o *objects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gets++
	b, ok := o.data[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (o *objects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.puts++
	if o.putErr != nil {
		return nil, o.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	o.data[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "agentcore-vectors/docs/index.json", ObjectKey("agentcore-vectors/", "docs"))
}

func TestRoundTripThroughObject(t *testing.T) {
	ctx := t.Context()
	api := &objects{data: map[string][]byte{}}
	s := New(api, "b", "p/docs/index.json")

	matches, err := s.Query(ctx, vectorstore.Vector{1, 0}, 3, vectorstore.Filter{})
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, s.Upsert(ctx, []vectorstore.Item{
		{ID: "a", Vector: vectorstore.Vector{1, 0}},
		{ID: "b", Vector: vectorstore.Vector{0, 1}},
	}))
	assert.Equal(t, 1, api.gets)
	assert.Equal(t, 1, api.puts)
	assert.Contains(t, api.data, "b/p/docs/index.json")

	fresh := New(api, "b", "p/docs/index.json")
	matches, err = fresh.Query(ctx, vectorstore.Vector{0, 1}, 1, vectorstore.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].Item.ID)

	require.NoError(t, fresh.Delete(ctx, "", []string{"b"}))
	again := New(api, "b", "p/docs/index.json")
	matches, err = again.Query(ctx, vectorstore.Vector{0, 1}, 5, vectorstore.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].Item.ID)
}

func TestFailedPutRollsBack(t *testing.T) {
	ctx := t.Context()
	api := &objects{data: map[string][]byte{}}
	s := New(api, "b", "docs/index.json")
	require.NoError(t, s.Upsert(ctx, []vectorstore.Item{{ID: "a", Vector: vectorstore.Vector{1, 0}}}))

	api.putErr = errors.New("access denied")
	err := s.Upsert(ctx, []vectorstore.Item{{ID: "b", Vector: vectorstore.Vector{0, 1}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errmodel.ErrInvocation))
	err = s.Delete(ctx, "", []string{"a"})
	require.Error(t, err)

	matches, err := s.Query(ctx, vectorstore.Vector{0, 1}, 5, vectorstore.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].Item.ID)
}

func TestFactoryRequiresBucket(t *testing.T) {
	_, err := Factory(t.Context(), config.NewDefaultConfig())
	assert.True(t, errors.Is(err, errmodel.ErrConfiguration))
	assert.Equal(t, "missing_bucket", errmodel.From(err).Code)
}

func TestAgainstS3Endpoint(t *testing.T) {
	var mu sync.Mutex
	stored := map[string][]byte{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			b, ok := stored[r.URL.Path]
			if !ok {
				w.Header().Set("Content-Type", "application/xml")
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
				return
			}
			_, _ = w.Write(b)
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			stored[r.URL.Path] = b
		}
	}))
	defer srv.Close()

	cfg := config.NewDefaultConfig()
	cfg.Bedrock.AccessKeyID = "AKIDTEST"
	cfg.Bedrock.SecretAccessKey = "secret"
	cfg.VectorStore.S3.Bucket = "vectors"
	cfg.VectorStore.Collection = "kb"
	s, err := newStore(t.Context(), cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(srv.URL)
		o.UsePathStyle = true
	})
	require.NoError(t, err)

	require.NoError(t, s.Upsert(t.Context(), []vectorstore.Item{{ID: "x", Vector: vectorstore.Vector{1, 1}}}))
	assert.Contains(t, stored, "/vectors/agentcore-vectors/kb/index.json")
}
