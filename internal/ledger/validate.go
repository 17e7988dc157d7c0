package ledger

import "strings"

// ValidateEAN checks that ean, if present, is 12 or 13 decimal digits.
// An empty or whitespace-only EAN is considered valid (absent).
func ValidateEAN(ean string) (bool, string) {
	trimmed := strings.TrimSpace(ean)
	if trimmed == "" {
		return true, ""
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return false, "EAN must contain only digits, got: " + trimmed
		}
	}
	if len(trimmed) != 12 && len(trimmed) != 13 {
		return false, "EAN must be 12 or 13 digits"
	}
	return true, ""
}
