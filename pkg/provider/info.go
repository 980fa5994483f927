package provider

import (
	"github.com/wilhg/agentcore/pkg/adapters/awsutil"
	"github.com/wilhg/agentcore/pkg/adapters/llm"
	"github.com/wilhg/agentcore/pkg/config"
)

// Info describes a provider's effective settings. Secrets are reported only as
// configured or not.
type Info struct {
	Provider              string `json:"provider"`
	Region                string `json:"region,omitempty"`
	BaseURL               string `json:"base_url,omitempty"`
	Model                 string `json:"model,omitempty"`
	EmbeddingsModel       string `json:"embeddings_model,omitempty"`
	CredentialsConfigured *bool  `json:"credentials_configured,omitempty"`
	APIKeyConfigured      *bool  `json:"api_key_configured,omitempty"`
	VectorStore           string `json:"vector_store,omitempty"`
}

// GetInfo reports the settings for name, defaulting like GetLLM.
func GetInfo(cfg *config.Config, name string) (Info, error) {
	cfg = orDefault(cfg)
	name = pick(name, cfg.MainProvider, config.DefaultMainProvider)
	info := Info{Provider: name, VectorStore: pick("", cfg.VectorStore.Type, config.DefaultVectorStoreType)}
	switch name {
	case "bedrock":
		b := cfg.Bedrock
		info.Region, info.Model, info.EmbeddingsModel = b.Region, b.Model, b.EmbeddingsModel
		info.CredentialsConfigured = flag(awsutil.CredentialsConfigured(b))
	case "ollama":
		o := cfg.Ollama
		info.BaseURL, info.Model, info.EmbeddingsModel = o.BaseURL, o.Model, o.EmbeddingsModel
	case "openai":
		o := cfg.OpenAI
		info.BaseURL, info.Model, info.EmbeddingsModel = o.BaseURL, o.Model, o.EmbeddingsModel
		info.APIKeyConfigured = flag(o.APIKey != "")
	case "gemini":
		g := cfg.Gemini
		info.Model, info.EmbeddingsModel = g.Model, g.EmbeddingsModel
		info.APIKeyConfigured = flag(g.APIKey != "")
	default:
		if _, ok := llm.Resolve(name); !ok {
			return Info{}, unsupported("LLM", name, llm.Names())
		}
	}
	return info, nil
}

func flag(b bool) *bool { return &b }
