package resolver

import (
	"sort"
	"strings"

	"github.com/nsproc/rpcgateway/internal/rpcerrors"
)

// normalizeArgNames implements the argument-name normalisation rule: every
// supplied parameter name is lower-cased and, unless it already starts with
// an underscore, prefixed with one — mirroring the leading-underscore
// convention PL/pgSQL argument names use in this catalog. Two supplied
// names that normalize to the same key are a client error, since the
// gateway can no longer tell which value the caller meant.
func normalizeArgNames(params map[string]interface{}) (map[string]interface{}, error) {
	normalized := make(map[string]interface{}, len(params))
	origins := make(map[string]string, len(params))

	for name, value := range params {
		key := normalizeOne(name)
		if existing, ok := origins[key]; ok {
			return nil, rpcerrors.InvalidParameters(
				"parameters \"" + existing + "\" and \"" + name + "\" both normalize to \"" + key + "\"",
			)
		}
		origins[key] = name
		normalized[key] = value
	}
	return normalized, nil
}

func normalizeOne(name string) string {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "_") {
		return lower
	}
	return "_" + lower
}

// sortedKeys returns the map's keys in sorted order, used both to build a
// deterministic cache key and to pass an ordered argname list to the
// catalog queries.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// cacheKey builds the insert-only cache's key: the method name together
// with its normalized, sorted argument-name set, so that two calls to the
// same method with the same parameter names (regardless of order or
// supplied casing) always resolve to the same cached entry.
func cacheKey(method string, argnames []string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	b.WriteByte('(')
	for i, name := range argnames {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name)
	}
	b.WriteByte(')')
	return b.String()
}
