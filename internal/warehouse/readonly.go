package warehouse

import (
	"fmt"
	"regexp"
	"strings"
)

// forbiddenKeywords are statement heads and clauses that make a template
// something other than a plain read.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "drop", "alter", "create", "truncate",
	"replace", "merge", "grant", "revoke", "attach", "detach", "pragma",
	"vacuum", "reindex",
}

// interpolationMarkers are the fingerprints of bare string interpolation.
// Templates must use parameter placeholders (:name or ?) instead.
var interpolationMarkers = []string{"%s", "%d", "%v", "%q", "${", "{{", "`+", "\"+"}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*`)

// ValidateReadOnly rejects templates that are not structurally read-only or
// that interpolate identifiers or values instead of using placeholders.
func ValidateReadOnly(template string) error {
	trimmed := strings.TrimSpace(template)
	if trimmed == "" {
		return fmt.Errorf("empty template")
	}

	lower := strings.ToLower(trimmed)

	// One statement only. A single trailing semicolon is tolerated.
	body := strings.TrimSuffix(lower, ";")
	if strings.Contains(body, ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}

	head := identRe.FindString(body)
	if head != "select" && head != "with" {
		return fmt.Errorf("template must be a SELECT or WITH statement, got %q", head)
	}

	for _, kw := range forbiddenKeywords {
		if containsWord(body, kw) {
			return fmt.Errorf("forbidden keyword %q", kw)
		}
	}

	for _, marker := range interpolationMarkers {
		if strings.Contains(trimmed, marker) {
			return fmt.Errorf("bare interpolation marker %q; use parameter placeholders", marker)
		}
	}
	return nil
}

// containsWord reports whether word appears in s on identifier boundaries.
func containsWord(s, word string) bool {
	for idx := 0; ; {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isIdentByte(s[i-1])
		after := i+len(word) == len(s) || !isIdentByte(s[i+len(word)])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
