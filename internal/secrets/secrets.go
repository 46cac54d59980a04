package secrets

import (
	"os"
	"strings"
)

// Provider is an opaque key-value secret source. A missing key returns an
// empty string, not an error; callers decide whether the secret is required.
type Provider interface {
	GetSecret(key string) string
}

// StaticProvider serves secrets from the loaded configuration, falling back
// to the environment (key uppercased, e.g. openai_api_key -> OPENAI_API_KEY).
type StaticProvider struct {
	values map[string]string
}

func NewStaticProvider(values map[string]string) *StaticProvider {
	if values == nil {
		values = map[string]string{}
	}
	return &StaticProvider{values: values}
}

func (p *StaticProvider) GetSecret(key string) string {
	if v, ok := p.values[key]; ok && v != "" {
		return v
	}
	return os.Getenv(strings.ToUpper(key))
}
