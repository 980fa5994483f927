// Package provider selects and constructs LLM, embedding and vector-store
// handles by name. Every Get call builds a fresh handle from the given
// configuration; nothing is cached.
package provider

import (
	"context"
	"strings"

	"github.com/wilhg/agentcore/pkg/adapters/embedding"
	"github.com/wilhg/agentcore/pkg/adapters/llm"
	"github.com/wilhg/agentcore/pkg/adapters/vectorstore"
	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"

	// Register the built-in backends.
	_ "github.com/wilhg/agentcore/pkg/adapters/embedding/bedrock"
	_ "github.com/wilhg/agentcore/pkg/adapters/embedding/fake"
	_ "github.com/wilhg/agentcore/pkg/adapters/embedding/gemini"
	_ "github.com/wilhg/agentcore/pkg/adapters/embedding/ollama"
	_ "github.com/wilhg/agentcore/pkg/adapters/embedding/openai"
	_ "github.com/wilhg/agentcore/pkg/adapters/llm/bedrock"
	_ "github.com/wilhg/agentcore/pkg/adapters/llm/gemini"
	_ "github.com/wilhg/agentcore/pkg/adapters/llm/ollama"
	_ "github.com/wilhg/agentcore/pkg/adapters/llm/openai"
	_ "github.com/wilhg/agentcore/pkg/adapters/vectorstore/chromadb"
	_ "github.com/wilhg/agentcore/pkg/adapters/vectorstore/fileflat"
	_ "github.com/wilhg/agentcore/pkg/adapters/vectorstore/memory"
	_ "github.com/wilhg/agentcore/pkg/adapters/vectorstore/opensearch"
	_ "github.com/wilhg/agentcore/pkg/adapters/vectorstore/pinecone"
	_ "github.com/wilhg/agentcore/pkg/adapters/vectorstore/qdrant"
	_ "github.com/wilhg/agentcore/pkg/adapters/vectorstore/s3flat"
	_ "github.com/wilhg/agentcore/pkg/adapters/vectorstore/weaviate"
)

// unimplementedStores are recognized vector-store names without a backend.
var unimplementedStores = []string{"aws_kendra"}

// GetLLM returns the named LLM provider. An empty name selects cfg.MainProvider;
// a nil cfg means the built-in defaults.
func GetLLM(ctx context.Context, cfg *config.Config, name string) (llm.LLM, error) {
	cfg = orDefault(cfg)
	name = pick(name, cfg.MainProvider, config.DefaultMainProvider)
	f, ok := llm.Resolve(name)
	if !ok {
		return nil, unsupported("LLM", name, llm.Names())
	}
	return f(ctx, cfg)
}

// GetEmbeddings returns the named embedding provider with the same defaults as GetLLM.
func GetEmbeddings(ctx context.Context, cfg *config.Config, name string) (embedding.Embedder, error) {
	cfg = orDefault(cfg)
	name = pick(name, cfg.MainProvider, config.DefaultMainProvider)
	f, ok := embedding.Resolve(name)
	if !ok {
		return nil, unsupported("embeddings", name, embedding.Names())
	}
	return f(ctx, cfg)
}

// GetVectorStore returns the named vector store. An empty name selects
// cfg.VectorStore.Type.
func GetVectorStore(ctx context.Context, cfg *config.Config, name string) (vectorstore.VectorStore, error) {
	cfg = orDefault(cfg)
	name = pick(name, cfg.VectorStore.Type, config.DefaultVectorStoreType)
	f, ok := vectorstore.Resolve(name)
	if !ok {
		for _, n := range unimplementedStores {
			if n == name {
				return nil, errmodel.Unsupported("unsupported_provider", "vector store "+name+" is not implemented",
					map[string]any{"provider": name, "supported": vectorstore.Names()})
			}
		}
		return nil, unsupported("vector store", name, vectorstore.Names())
	}
	return f(ctx, cfg)
}

// LLMProviders lists the registered LLM provider names.
func LLMProviders() []string { return llm.Names() }

// EmbeddingProviders lists the registered embedding provider names.
func EmbeddingProviders() []string { return embedding.Names() }

// VectorStores lists the registered vector-store names.
func VectorStores() []string { return vectorstore.Names() }

func orDefault(cfg *config.Config) *config.Config {
	if cfg == nil {
		return config.NewDefaultConfig()
	}
	return cfg
}

func pick(name, configured, fallback string) string {
	for _, n := range []string{name, configured, fallback} {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			return n
		}
	}
	return ""
}

func unsupported(kind, name string, known []string) error {
	return errmodel.Unsupported("unsupported_provider",
		"unsupported "+kind+" provider "+name+"; supported: "+strings.Join(known, ", "),
		map[string]any{"provider": name, "kind": kind, "supported": known})
}
