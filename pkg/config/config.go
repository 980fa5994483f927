// Package config holds the process-wide configuration for agentcore.
//
// A Config is built once at process entry (defaults, then optional TOML files,
// then environment overrides) and passed explicitly to the provider factories.
// It is never mutated afterwards.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Default provider selections.
const (
	DefaultMainProvider    = "bedrock"
	DefaultVectorStoreType = "chroma_local"
)

// Config represents the application configuration.
type Config struct {
	// MainProvider names the LLM/embedding provider used when a caller does not pick one.
	MainProvider string            `toml:"main_provider"`
	Bedrock      BedrockConfig     `toml:"bedrock"`
	Ollama       OllamaConfig      `toml:"ollama"`
	OpenAI       OpenAIConfig      `toml:"openai"`
	Gemini       GeminiConfig      `toml:"gemini"`
	VectorStore  VectorStoreConfig `toml:"vector_store"`
	Logging      LoggingConfig     `toml:"logging"`
	Tracing      TracingConfig     `toml:"tracing"`
}

// BedrockConfig contains AWS Bedrock settings. Empty credentials fall back to
// the default AWS credential chain (profile, instance role).
type BedrockConfig struct {
	Region          string `toml:"region"`
	Model           string `toml:"model"`
	EmbeddingsModel string `toml:"embeddings_model"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	SessionToken    string `toml:"session_token"`
	Profile         string `toml:"profile"`
}

// OllamaConfig contains settings for a local Ollama server.
type OllamaConfig struct {
	BaseURL         string `toml:"base_url"`
	Model           string `toml:"model"`
	EmbeddingsModel string `toml:"embeddings_model"`
}

// OpenAIConfig contains OpenAI settings.
type OpenAIConfig struct {
	APIKey          string `toml:"api_key"`
	Model           string `toml:"model"`
	EmbeddingsModel string `toml:"embeddings_model"`
	BaseURL         string `toml:"base_url"`
}

// GeminiConfig contains Google Gemini settings.
type GeminiConfig struct {
	APIKey          string `toml:"api_key"`
	Model           string `toml:"model"`
	EmbeddingsModel string `toml:"embeddings_model"`
}

// VectorStoreConfig selects and configures the vector-store backend.
type VectorStoreConfig struct {
	Type       string           `toml:"type"`
	Collection string           `toml:"collection"`
	Chroma     ChromaConfig     `toml:"chroma"`
	Qdrant     QdrantConfig     `toml:"qdrant"`
	Pinecone   PineconeConfig   `toml:"pinecone"`
	Weaviate   WeaviateConfig   `toml:"weaviate"`
	OpenSearch OpenSearchConfig `toml:"opensearch"`
	S3         S3Config         `toml:"s3"`
	Local      LocalIndexConfig `toml:"local"`
}

// ChromaConfig configures chroma_local and chroma_cloud.
type ChromaConfig struct {
	URL             string `toml:"url"`
	APIKey          string `toml:"api_key"`
	Tenant          string `toml:"tenant"`
	Database        string `toml:"database"`
	CreateIfMissing *bool  `toml:"create_if_missing"`
}

// QdrantConfig configures qdrant_local and qdrant_cloud.
type QdrantConfig struct {
	URL      string `toml:"url"`
	APIKey   string `toml:"api_key"`
	Distance string `toml:"distance"`
}

// WeaviateConfig configures the weaviate store.
type WeaviateConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// PineconeConfig configures the pinecone store. Host is the data-plane host of the index.
type PineconeConfig struct {
	APIKey    string `toml:"api_key"`
	Host      string `toml:"host"`
	Namespace string `toml:"namespace"`
}

// OpenSearchConfig configures aws_opensearch.
type OpenSearchConfig struct {
	Endpoint string `toml:"endpoint"`
	Region   string `toml:"region"`
	// Service is the SigV4 signing name: "es" for managed domains, "aoss" for serverless.
	Service     string `toml:"service"`
	VectorField string `toml:"vector_field"`
}

// S3Config configures aws_s3_faiss.
type S3Config struct {
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`
	Region string `toml:"region"`
}

// LocalIndexConfig configures faiss_local.
type LocalIndexConfig struct {
	IndexPath string `toml:"index_path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Stdout bool `toml:"stdout"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		MainProvider: DefaultMainProvider,
		Bedrock: BedrockConfig{
			Region:          "us-east-1",
			Model:           "anthropic.claude-3-sonnet-20240229-v1:0",
			EmbeddingsModel: "amazon.titan-embed-text-v1",
		},
		Ollama: OllamaConfig{
			BaseURL:         "http://localhost:11434",
			Model:           "llama3:latest",
			EmbeddingsModel: "nomic-embed-text",
		},
		OpenAI: OpenAIConfig{
			Model:           "gpt-4o-mini",
			EmbeddingsModel: "text-embedding-3-small",
		},
		Gemini: GeminiConfig{
			Model:           "gemini-1.5-flash",
			EmbeddingsModel: "text-embedding-004",
		},
		VectorStore: VectorStoreConfig{
			Type:       DefaultVectorStoreType,
			Collection: "agentcore",
			Chroma:     ChromaConfig{URL: "http://localhost:8000", Tenant: "default_tenant", Database: "default_database"},
			Qdrant:     QdrantConfig{URL: "http://localhost:6333", Distance: "Cosine"},
			Weaviate:   WeaviateConfig{URL: "http://localhost:8080"},
			OpenSearch: OpenSearchConfig{Service: "es", VectorField: "embedding"},
			S3:         S3Config{Prefix: "agentcore-vectors/"},
			Local:      LocalIndexConfig{IndexPath: "./faiss_index"},
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// FromEnv returns defaults with environment overrides applied.
func FromEnv() (*Config, error) {
	return LoadFromFiles()
}

// LoadFromFiles loads configuration with priority:
// defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errmodel.New(errmodel.CategoryConfiguration, "config_unreadable", "failed to read config file "+path,
				map[string]any{"path": path}, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errmodel.New(errmodel.CategoryConfiguration, "invalid_config_file",
				fmt.Sprintf("failed to parse config file %s (file %d of %d)", path, i+1, len(paths)),
				map[string]any{"path": path}, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.MainProvider = strings.ToLower(strings.TrimSpace(cfg.MainProvider))
	cfg.VectorStore.Type = strings.ToLower(strings.TrimSpace(cfg.VectorStore.Type))
	return cfg, nil
}

// envBindings maps environment variables onto config fields.
func envBindings(cfg *Config) map[string]*string {
	return map[string]*string{
		"MAIN_PROVIDER": &cfg.MainProvider,

		"AWS_REGION":               &cfg.Bedrock.Region,
		"BEDROCK_MODEL":            &cfg.Bedrock.Model,
		"BEDROCK_EMBEDDINGS_MODEL": &cfg.Bedrock.EmbeddingsModel,
		"AWS_ACCESS_KEY_ID":        &cfg.Bedrock.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY":    &cfg.Bedrock.SecretAccessKey,
		"AWS_SESSION_TOKEN":        &cfg.Bedrock.SessionToken,
		"AWS_PROFILE":              &cfg.Bedrock.Profile,

		"OLLAMA_BASE_URL":         &cfg.Ollama.BaseURL,
		"OLLAMA_MODEL":            &cfg.Ollama.Model,
		"OLLAMA_EMBEDDINGS_MODEL": &cfg.Ollama.EmbeddingsModel,

		"OPENAI_API_KEY":          &cfg.OpenAI.APIKey,
		"OPENAI_MODEL":            &cfg.OpenAI.Model,
		"OPENAI_EMBEDDINGS_MODEL": &cfg.OpenAI.EmbeddingsModel,
		"OPENAI_BASE_URL":         &cfg.OpenAI.BaseURL,

		"GEMINI_MODEL":            &cfg.Gemini.Model,
		"GEMINI_EMBEDDINGS_MODEL": &cfg.Gemini.EmbeddingsModel,

		"VECTOR_STORE_TYPE":       &cfg.VectorStore.Type,
		"VECTOR_STORE_COLLECTION": &cfg.VectorStore.Collection,
		"CHROMA_URL":              &cfg.VectorStore.Chroma.URL,
		"CHROMA_API_KEY":          &cfg.VectorStore.Chroma.APIKey,
		"CHROMA_TENANT":           &cfg.VectorStore.Chroma.Tenant,
		"CHROMA_DATABASE":         &cfg.VectorStore.Chroma.Database,
		"QDRANT_URL":              &cfg.VectorStore.Qdrant.URL,
		"QDRANT_API_KEY":          &cfg.VectorStore.Qdrant.APIKey,
		"PINECONE_API_KEY":        &cfg.VectorStore.Pinecone.APIKey,
		"PINECONE_HOST":           &cfg.VectorStore.Pinecone.Host,
		"WEAVIATE_URL":            &cfg.VectorStore.Weaviate.URL,
		"WEAVIATE_API_KEY":        &cfg.VectorStore.Weaviate.APIKey,
		"OPENSEARCH_ENDPOINT":     &cfg.VectorStore.OpenSearch.Endpoint,
		"S3_VECTOR_BUCKET":        &cfg.VectorStore.S3.Bucket,
		"FAISS_INDEX_PATH":        &cfg.VectorStore.Local.IndexPath,

		"AGENTCORE_LOG_LEVEL":  &cfg.Logging.Level,
		"AGENTCORE_LOG_FORMAT": &cfg.Logging.Format,
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) error {
	for key, dst := range envBindings(cfg) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	// GOOGLE_API_KEY is accepted as a fallback for GEMINI_API_KEY.
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if os.Getenv("AGENTCORE_TRACE_STDOUT") == "1" {
		cfg.Tracing.Stdout = true
	}
	// VECTOR_STORE_CONFIG carries a JSON object shaped like the [vector_store] table.
	if raw := os.Getenv("VECTOR_STORE_CONFIG"); raw != "" {
		if err := applyVectorStoreJSON(&cfg.VectorStore, raw); err != nil {
			return errmodel.New(errmodel.CategoryConfiguration, "invalid_vector_store_config", "invalid VECTOR_STORE_CONFIG", nil, err)
		}
	}
	return nil
}

func applyVectorStoreJSON(vs *VectorStoreConfig, raw string) error {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return err
	}
	// Round-trip through TOML so the same field tags apply.
	b, err := toml.Marshal(m)
	if err != nil {
		return err
	}
	return toml.Unmarshal(b, vs)
}

// Redacted returns a copy of cfg with secrets masked, suitable for logging.
func (c *Config) Redacted() Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	out.Bedrock.AccessKeyID = mask(out.Bedrock.AccessKeyID)
	out.Bedrock.SecretAccessKey = mask(out.Bedrock.SecretAccessKey)
	out.Bedrock.SessionToken = mask(out.Bedrock.SessionToken)
	out.OpenAI.APIKey = mask(out.OpenAI.APIKey)
	out.Gemini.APIKey = mask(out.Gemini.APIKey)
	out.VectorStore.Chroma.APIKey = mask(out.VectorStore.Chroma.APIKey)
	out.VectorStore.Qdrant.APIKey = mask(out.VectorStore.Qdrant.APIKey)
	out.VectorStore.Pinecone.APIKey = mask(out.VectorStore.Pinecone.APIKey)
	out.VectorStore.Weaviate.APIKey = mask(out.VectorStore.Weaviate.APIKey)
	return out
}
