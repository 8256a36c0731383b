package secrets

import (
	"os"
	"strings"
)

// EnvLoader returns a Loader that exposes every environment variable with
// the given prefix, keyed by the name after the prefix, lowercased with
// underscores turned into slashes ("TP_SECRET_AI_CLAUDE" → "ai/claude").
// The separator after the prefix is stripped, so "TP_SECRET" and
// "TP_SECRET_" produce the same refs.
func EnvLoader(prefix string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string)
		for _, kv := range os.Environ() {
			key, val, ok := strings.Cut(kv, "=")
			if !ok || val == "" || !strings.HasPrefix(key, prefix) {
				continue
			}
			rest := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "_")
			ref := strings.ReplaceAll(strings.ToLower(rest), "_", "/")
			vals[ref] = val
		}
		return vals, nil
	}
}
