// Package rag indexes documents into a vector store and searches them back,
// joining the chunker with an embedder and a store.
package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wilhg/agentcore/pkg/adapters/embedding"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/chunking"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Metadata keys written on every indexed chunk.
const (
	KeyText    = "text"
	KeyDocID   = "doc_id"
	KeyChunkID = "chunk_id"
	KeyStart   = "start"
	KeyEnd     = "end"
	// KeyChunkCount records how many chunks the document had when indexed.
	KeyChunkCount = "chunk_count"
)

// Document is a unit of source text.
type Document struct {
	// ID identifies the document. When empty it is derived from Text.
	ID       string
	Text     string
	Metadata map[string]any
}

// Options tunes Index.
type Options struct {
	Chunker  *chunking.Chunker
	Strategy chunking.Strategy
	// BatchSize caps inputs per Embed call. Defaults to 64.
	BatchSize int
	Logger    *zap.Logger
}

// Result is one search hit.
type Result struct {
	ID       string         `json:"id"`
	DocID    string         `json:"doc_id"`
	Text     string         `json:"text"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DocumentID returns id, or a name-based UUID of text when id is empty.
func DocumentID(id, text string) string {
	if id != "" {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(text)).String()
}

// Index chunks docs, embeds the chunks and upserts them into store under
// namespace. Item ids are "<doc id>#<chunk index>". Re-indexing a document
// replaces its chunks: chunks beyond the new count are deleted. It returns the
// number of items written.
func Index(ctx context.Context, emb embedding.Embedder, store vectorstore.VectorStore, namespace string, docs []Document, opts Options) (int, error) {
	if emb == nil || store == nil {
		return 0, errmodel.Configuration("missing_dependency", "rag: embedder and vector store are required", nil)
	}
	chunker := opts.Chunker
	if chunker == nil {
		chunker = chunking.New(chunking.Options{Logger: opts.Logger})
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = chunking.StrategyParagraph
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	namespace = vectorstore.Namespace(namespace)

	var items []vectorstore.Item
	var texts []string
	spans := make([]docSpan, 0, len(docs))
	for _, d := range docs {
		docID := DocumentID(d.ID, d.Text)
		chunks, err := chunker.Split(d.Text, strategy, d.Metadata)
		if err != nil {
			return 0, err
		}
		spans = append(spans, docSpan{id: docID, start: len(items), count: len(chunks)})
		for i, c := range chunks {
			md := c.Metadata
			md[KeyText] = c.Content
			md[KeyDocID] = docID
			md[KeyChunkID] = c.ID
			md[KeyStart] = c.Start
			md[KeyEnd] = c.End
			md[KeyChunkCount] = len(chunks)
			items = append(items, vectorstore.Item{
				ID:        docID + "#" + strconv.Itoa(i),
				Namespace: namespace,
				Metadata:  md,
			})
			texts = append(texts, c.Content)
		}
	}

	for lo := 0; lo < len(items); lo += batch {
		hi := min(lo+batch, len(items))
		vecs, err := emb.Embed(ctx, texts[lo:hi], nil)
		if err != nil {
			return 0, err
		}
		if err := embedding.CheckCount(emb.Name(), hi-lo, len(vecs)); err != nil {
			return 0, err
		}
		for i, v := range vecs {
			items[lo+i].Vector = vectorstore.Vector(v)
		}
	}

	// prior counts must be read before the upsert overwrites them
	var stale []string
	for _, sp := range spans {
		prev, err := previousCount(ctx, emb, store, namespace, sp, items)
		if err != nil {
			return 0, err
		}
		for i := sp.count; i < prev; i++ {
			stale = append(stale, sp.id+"#"+strconv.Itoa(i))
		}
	}

	for lo := 0; lo < len(items); lo += batch {
		hi := min(lo+batch, len(items))
		if err := store.Upsert(ctx, items[lo:hi]); err != nil {
			return lo, err
		}
	}
	if len(stale) > 0 {
		if err := store.Delete(ctx, namespace, stale); err != nil {
			return len(items), err
		}
		logger.Debug("deleted stale chunks", zap.Int("chunks", len(stale)))
	}
	logger.Info("indexed documents",
		zap.String("namespace", namespace),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(items)),
		zap.String("embedder", emb.Name()),
	)
	return len(items), nil
}

type docSpan struct {
	id           string
	start, count int
}

// previousCount reads the chunk count recorded on any existing chunk of the
// document, or 0 when it was never indexed.
func previousCount(ctx context.Context, emb embedding.Embedder, store vectorstore.VectorStore, namespace string, sp docSpan, items []vectorstore.Item) (int, error) {
	var query vectorstore.Vector
	if sp.count > 0 {
		query = items[sp.start].Vector
	} else {
		vecs, err := emb.Embed(ctx, []string{sp.id}, nil)
		if err != nil {
			return 0, err
		}
		if err := embedding.CheckCount(emb.Name(), 1, len(vecs)); err != nil {
			return 0, err
		}
		query = vectorstore.Vector(vecs[0])
	}
	matches, err := store.Query(ctx, query, 1, vectorstore.Filter{Namespace: namespace, Equals: map[string]any{KeyDocID: sp.id}})
	if err != nil || len(matches) == 0 {
		return 0, err
	}
	switch n := matches[0].Item.Metadata[KeyChunkCount].(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, nil
}

// Search embeds query and returns the k closest chunks in namespace. equals
// further restricts matches by metadata.
func Search(ctx context.Context, emb embedding.Embedder, store vectorstore.VectorStore, namespace, query string, k int, equals map[string]any) ([]Result, error) {
	if emb == nil || store == nil {
		return nil, errmodel.Configuration("missing_dependency", "rag: embedder and vector store are required", nil)
	}
	if k <= 0 {
		return nil, errmodel.Value("invalid_k", fmt.Sprintf("k must be positive, got %d", k), map[string]any{"k": k})
	}
	vecs, err := emb.Embed(ctx, []string{query}, nil)
	if err != nil {
		return nil, err
	}
	if err := embedding.CheckCount(emb.Name(), 1, len(vecs)); err != nil {
		return nil, err
	}
	matches, err := store.Query(ctx, vectorstore.Vector(vecs[0]), k, vectorstore.Filter{Namespace: namespace, Equals: equals})
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(matches))
	for i, m := range matches {
		r := Result{ID: m.Item.ID, Score: m.Score, Metadata: m.Item.Metadata}
		r.Text, _ = m.Item.Metadata[KeyText].(string)
		r.DocID, _ = m.Item.Metadata[KeyDocID].(string)
		out[i] = r
	}
	return out, nil
}
