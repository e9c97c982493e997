package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint derives the stable cache/coalescing key for a query. The query
// is canonicalised (trimmed, whitespace collapsed, lowercased), concatenated
// with the tenant id and a sorted serialisation of the whitelisted context
// keys, then hashed to a fixed width.
func Fingerprint(query, tenantID string, context map[string]any, contextKeys []string) string {
	var b strings.Builder
	b.WriteString(canonicalise(query))
	b.WriteByte('\x1f')
	b.WriteString(tenantID)

	if len(contextKeys) > 0 && len(context) > 0 {
		keys := make([]string, 0, len(contextKeys))
		for _, k := range contextKeys {
			if _, ok := context[k]; ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte('\x1f')
			b.WriteString(k)
			b.WriteByte('=')
			fmt.Fprintf(&b, "%v", context[k])
		}
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func canonicalise(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}
