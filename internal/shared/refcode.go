package shared

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// ParseBracketCode extracts the reference code from a ledger display string
// such as "Widget [WID-001]". The last bracket pair wins.
func ParseBracketCode(display string) (string, error) {
	end := strings.LastIndex(display, "]")
	if end < 0 {
		return "", fmt.Errorf("%w: %q", ErrParse, display)
	}
	start := strings.LastIndex(display[:end], "[")
	if start < 0 {
		return "", fmt.Errorf("%w: %q", ErrParse, display)
	}
	code := strings.TrimSpace(display[start+1 : end])
	if code == "" {
		return "", fmt.Errorf("%w: empty brackets in %q", ErrParse, display)
	}
	return code, nil
}

// fold returns the case-folded form of s. Casers carry state, so each call
// builds its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// FoldKey is the case-folded, trimmed form of s, for use as a map key.
func FoldKey(s string) string {
	return fold(strings.TrimSpace(s))
}

// FoldEqual compares two codes ignoring case.
func FoldEqual(a, b string) bool {
	return fold(strings.TrimSpace(a)) == fold(strings.TrimSpace(b))
}

// FoldContains reports whether needle occurs in haystack ignoring case.
func FoldContains(haystack, needle string) bool {
	if strings.TrimSpace(needle) == "" {
		return false
	}
	return strings.Contains(fold(haystack), fold(strings.TrimSpace(needle)))
}

// FolderCode returns the part of a material full code before the first dot.
func FolderCode(fullCode string) string {
	fullCode = strings.TrimSpace(fullCode)
	if idx := strings.Index(fullCode, "."); idx >= 0 {
		return fullCode[:idx]
	}
	return fullCode
}
