package service

import "strings"

// VectorSizeForModel maps an embedding model name to its output dimension.
// Known models are matched exactly, then by family, then by the size hint
// in the name. Unknown models get the most common dimension.
func VectorSizeForModel(model string) int {
	name := strings.ToLower(strings.TrimSpace(model))
	switch name {
	case "text-embedding-3-small":
		return 1536
	case "text-embedding-3-large":
		return 3072
	case "mistral-embed":
		return 1024
	case "embedding-001", "text-embedding-004":
		return 768
	}
	switch {
	case strings.HasPrefix(name, "text-embedding-ada"):
		return 1536
	case strings.HasPrefix(name, "embed-") && strings.HasSuffix(name, "-v3.0"):
		if strings.Contains(name, "light") {
			return 384
		}
		return 1024
	case strings.Contains(name, "large"):
		return 3072
	case strings.Contains(name, "small"):
		return 1536
	}
	return 1536
}
