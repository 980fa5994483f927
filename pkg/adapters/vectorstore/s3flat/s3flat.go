// Package s3flat is the "aws_s3_faiss" backend: an exact flat index persisted
// as one JSON object in S3. The object is read on first use and rewritten after
// every mutation, so a single writer per collection is assumed.
package s3flat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wilhg/agentcore/pkg/adapters/awsutil"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore/memory"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Store struct {
	api    ObjectAPI
	bucket string
	key    string

	mu     sync.Mutex
	index  *memory.Store
	loaded bool
}

var _ vectorstore.VectorStore = (*Store)(nil)

// New builds a store over bucket/key.
func New(api ObjectAPI, bucket, key string) *Store {
	return &Store{api: api, bucket: bucket, key: key, index: memory.New()}
}

// ObjectKey is where a collection's index lives under prefix.
func ObjectKey(prefix, collection string) string {
	if collection == "" {
		collection = "agentcore"
	}
	return prefix + collection + "/index.json"
}

func newStore(ctx context.Context, cfg *config.Config, optFns ...func(*s3.Options)) (*Store, error) {
	sc := cfg.VectorStore.S3
	if sc.Bucket == "" {
		return nil, errmodel.Configuration("missing_bucket", "aws_s3_faiss: bucket is not configured; set S3_VECTOR_BUCKET",
			map[string]any{"provider": "aws_s3_faiss", "env": "S3_VECTOR_BUCKET"})
	}
	ac, err := awsutil.LoadConfig(ctx, cfg.Bedrock, sc.Region)
	if err != nil {
		return nil, err
	}
	base := []func(*s3.Options){func(o *s3.Options) {
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}}
	client := s3.NewFromConfig(ac, append(base, optFns...)...)
	return New(client, sc.Bucket, ObjectKey(sc.Prefix, cfg.VectorStore.Collection)), nil
}

// Factory builds "aws_s3_faiss" from cfg.VectorStore.S3.
func Factory(ctx context.Context, cfg *config.Config) (vectorstore.VectorStore, error) {
	return newStore(ctx, cfg)
}

func init() {
	_ = vectorstore.Register("aws_s3_faiss", Factory)
}

// load fetches the object once; a missing object is an empty index. Callers hold mu.
func (s *Store) load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(s.key)})
	if err != nil {
		if notFound(err) {
			s.loaded = true
			return nil
		}
		return errmodel.Load("fetch_failed", "aws_s3_faiss: cannot read index object",
			map[string]any{"bucket": s.bucket, "key": s.key}, err)
	}
	defer func() { _ = out.Body.Close() }()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return errmodel.Load("fetch_failed", "aws_s3_faiss: cannot read index object",
			map[string]any{"bucket": s.bucket, "key": s.key}, err)
	}
	if err := s.index.Restore(data); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

func notFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

// commit applies change and writes the object, restoring the cached index
// when the write fails.
func (s *Store) commit(ctx context.Context, change func() error) error {
	before, err := s.index.Snapshot()
	if err != nil {
		return err
	}
	if err := change(); err != nil {
		return err
	}
	if err := s.save(ctx); err != nil {
		if rerr := s.index.Restore(before); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return nil
}

func (s *Store) save(ctx context.Context) error {
	data, err := s.index.Snapshot()
	if err != nil {
		return err
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return errmodel.Invocation("write_failed", "aws_s3_faiss: cannot write index object",
			map[string]any{"bucket": s.bucket, "key": s.key}, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	if len(items) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return err
	}
	return s.commit(ctx, func() error { return s.index.Upsert(ctx, items) })
}

func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	s.mu.Lock()
	err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.index.Query(ctx, query, k, filter)
}

func (s *Store) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(ctx); err != nil {
		return err
	}
	return s.commit(ctx, func() error { return s.index.Delete(ctx, namespace, ids) })
}
