// Package llm defines the chat-generation capability and the registry of
// providers that construct it from a *config.Config.
package llm

import (
	"context"
	"sort"
	"sync"

	"github.com/wilhg/agentcore/pkg/config"
	"github.com/wilhg/agentcore/pkg/errmodel"
)

// Roles understood by every provider. Unknown roles are sent as user turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message with a role and content.
type Message struct {
	Role    string
	Content string
}

// GenerateResult contains the model's text output and token usage if available.
type GenerateResult struct {
	Text         string
	PromptTokens int
	OutputTokens int
	TotalTokens  int
	Model        string
}

// LLM defines a minimal chat/text generation interface.
type LLM interface {
	// Name returns provider name (e.g., "openai").
	Name() string
	// Model returns the default model identifier.
	Model() string
	// Generate creates a completion from a list of messages. Recognized opts:
	// "model" (string), "temperature" (float64), "max_tokens" (int).
	Generate(ctx context.Context, messages []Message, opts map[string]any) (GenerateResult, error)
}

// Factory constructs an LLM from the process configuration.
type Factory func(ctx context.Context, cfg *config.Config) (LLM, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers an LLM factory under a provider name.
func Register(name string, f Factory) error {
	if name == "" {
		return errmodel.Validation("empty_name", "llm: empty provider name", nil)
	}
	if f == nil {
		return errmodel.Validation("nil_factory", "llm: nil factory", map[string]any{"provider": name})
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return errmodel.Validation("duplicate_provider", "llm: provider already registered", map[string]any{"provider": name})
	}
	factories[name] = f
	return nil
}

// Resolve gets a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Names returns the registered provider names in lexical order.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Range iterates all registered factories in name order.
func Range(fn func(name string, f Factory)) {
	for _, n := range Names() {
		if f, ok := Resolve(n); ok {
			fn(n, f)
		}
	}
}

// StringOpt returns opts[key] when it is a non-empty string.
func StringOpt(opts map[string]any, key, def string) string {
	if v, ok := opts[key].(string); ok && v != "" {
		return v
	}
	return def
}

// FloatOpt returns opts[key] as a float64 when it is numeric.
func FloatOpt(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// IntOpt returns opts[key] as an int when it is numeric.
func IntOpt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
