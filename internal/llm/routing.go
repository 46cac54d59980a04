package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ragdesk/ragdesk/internal/secrets"
)

// ProviderForModel routes a model name to its provider id. Rules are
// ordered: the substring checks for local runtimes come before the vendor
// prefixes they would otherwise shadow. An unmatched model is a hard error.
func ProviderForModel(model string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(model))
	switch {
	case name == "":
		return "", fmt.Errorf("model is required")
	case strings.HasPrefix(name, "gpt-"):
		return "openai", nil
	case strings.HasPrefix(name, "claude-"):
		return "anthropic", nil
	case strings.HasPrefix(name, "command-") || strings.HasPrefix(name, "embed-"):
		return "cohere", nil
	case strings.Contains(name, "ollama") || strings.Contains(name, "llama") || strings.Contains(name, "mistral"):
		return "ollama", nil
	case strings.HasPrefix(name, "groq-"):
		return "groq", nil
	case strings.Contains(name, "together"):
		return "together", nil
	case strings.Contains(name, "gemini-") || strings.Contains(name, "text-embedding"):
		return "google", nil
	case strings.Contains(name, "grok"):
		return "xai", nil
	case strings.Contains(name, "deepseek"):
		return "deepseek", nil
	default:
		return "", fmt.Errorf("unsupported model: %s", model)
	}
}

// Resolver builds provider clients on demand, pulling credentials from the
// secret provider under "<provider>_api_key" / "<provider>_base_url".
type Resolver struct {
	secrets secrets.Provider
	client  *http.Client
}

func NewResolver(secretProvider secrets.Provider, client *http.Client) *Resolver {
	return &Resolver{secrets: secretProvider, client: client}
}

func (r *Resolver) ClientForModel(model string) (Client, error) {
	provider, err := ProviderForModel(model)
	if err != nil {
		return nil, err
	}
	return r.ClientForProvider(provider)
}

func (r *Resolver) ClientForProvider(provider string) (Client, error) {
	return New(provider, Config{
		APIKey:     r.secrets.GetSecret(provider + "_api_key"),
		BaseURL:    r.secrets.GetSecret(provider + "_base_url"),
		HTTPClient: r.client,
	})
}
