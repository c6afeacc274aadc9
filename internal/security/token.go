package security

import (
	"fmt"
	"strings"
	"unicode"
)

// MinTokenLength is the shortest string accepted as a GitHub token.
const MinTokenLength = 20

var tokenPrefixes = []string{"ghp_", "github_pat_", "gho_", "ghu_", "ghs_"}

// ValidateToken rejects values that cannot be a GitHub token.
func ValidateToken(token string) error {
	if len(token) < MinTokenLength {
		return fmt.Errorf("token too short (minimum %d characters, got %d)", MinTokenLength, len(token))
	}
	for _, r := range token {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return fmt.Errorf("token contains whitespace or control characters")
		}
	}
	return nil
}

// IsKnownTokenFormat reports whether token carries one of GitHub's token
// prefixes. Classic 40-character hex tokens have none.
func IsKnownTokenFormat(token string) bool {
	for _, p := range tokenPrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}
