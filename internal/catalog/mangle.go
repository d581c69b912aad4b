package catalog

import "strings"

// mangle implements the "mild name-mangling" rule from spec §3: strip every
// single underscore that is not preceded by a literal caret, then the
// caller compares case-insensitively. A caret immediately before an
// underscore is itself dropped — it exists only to protect the following
// underscore from stripping, e.g. "get^_view" mangles to "get_view" while
// "get_view" (no caret) mangles to "getview".
func mangle(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	runes := []rune(name)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '^' && i+1 < len(runes) && runes[i+1] == '_' {
			// Caret escapes the next underscore: keep the underscore,
			// drop the caret marker itself.
			b.WriteRune('_')
			i++
			continue
		}
		if r == '_' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// namesMatch reports whether a requested method name and a catalog
// procedure name satisfy either matching rule.
func namesMatch(requested, catalogName string) bool {
	if strings.EqualFold(requested, catalogName) {
		return true
	}
	return strings.EqualFold(mangle(requested), mangle(catalogName))
}
