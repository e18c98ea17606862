package utils

import (
	"strings"
	"unicode"
)

// ToSnakeCase converts a CamelCase name to snake_case. Acronyms are kept together: "HLOPrinter" becomes
// "hlo_printer".
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	sb.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prev != '_' && (!unicode.IsUpper(prev) || nextIsLower) {
				sb.WriteByte('_')
			}
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}

// NormalizeIdentifier converts name to a valid identifier of the graph dump: letters, digits and
// underscores, not starting with a digit. Other characters are replaced by underscores.
func NormalizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	normalized := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return r
		}
		return '_'
	}, name)
	if unicode.IsDigit(rune(normalized[0])) {
		normalized = "_" + normalized
	}
	return normalized
}
