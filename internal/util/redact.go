package util

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens). Keep it broad: tokens show up
	// in logs via downstream libraries and HTTP error messages.
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Dremio authorization values are the scheme tag glued to the session token.
	dremioTokenRe = regexp.MustCompile(`_dremio[0-9a-zA-Z._-]+`)

	// Vault session tokens appear in header dumps and client error strings.
	vaultTokenRe = regexp.MustCompile(`(?i)\bX-Vault-Token\s*[:=]\s*[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	secretKVRe = regexp.MustCompile(`(?i)\b(password|secret[_-]?key|access[_-]?key|client[_-]?token|jwt)\b\s*[:=]\s*[^\s"']+`)
)

// RedactSecrets removes obvious secret-bearing substrings from error/log strings.
//
// This is intentionally conservative: it should be safe to call on any message,
// including user-provided inputs and upstream error strings.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = dremioTokenRe.ReplaceAllString(out, "_dremio<redacted>")
	out = vaultTokenRe.ReplaceAllString(out, "X-Vault-Token: <redacted>")
	out = secretKVRe.ReplaceAllString(out, "<redacted_kv>")
	return strings.TrimSpace(out)
}
