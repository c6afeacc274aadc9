package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const redacted = "***REDACTED***"

var (
	// Safe patterns for validation
	refPattern   = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	ownerPattern = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,38})$`)
	repoPattern  = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,100}$`)
)

// ValidateRef ensures a branch or tag name is safe to dispatch against.
func ValidateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("ref cannot be empty")
	}
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("ref cannot start with '-'")
	}
	if strings.Contains(ref, "..") {
		return fmt.Errorf("ref cannot contain '..'")
	}
	if strings.HasSuffix(ref, "/") || strings.HasSuffix(ref, ".lock") {
		return fmt.Errorf("ref cannot end with '/' or '.lock'")
	}
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("ref contains invalid characters")
	}
	return nil
}

// ValidateOwnerRepo checks a GitHub owner and repository name.
func ValidateOwnerRepo(owner, repo string) error {
	if !ownerPattern.MatchString(owner) {
		return fmt.Errorf("invalid repository owner %q", owner)
	}
	if repo == "." || repo == ".." || !repoPattern.MatchString(repo) {
		return fmt.Errorf("invalid repository name %q", repo)
	}
	return nil
}

// ValidateWebhookURL ensures a Slack webhook URL is HTTPS. Only Slack
// hosts are accepted unless allowAnyHost is set.
func ValidateWebhookURL(rawURL string, allowAnyHost bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL has no host")
	}
	if !allowAnyHost && u.Hostname() != "hooks.slack.com" {
		return fmt.Errorf("webhook host must be hooks.slack.com, got %s", u.Hostname())
	}
	return nil
}

// ValidateThreadLink checks a link to a chat thread.
func ValidateThreadLink(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid thread link: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("thread link must be an http(s) URL")
	}
	if u.Host == "" {
		return fmt.Errorf("thread link has no host")
	}
	return nil
}

// Redact removes every occurrence of the given secrets from s.
// Useful for logging errors and responses without exposing tokens.
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}
	return s
}

// MaskToken shows only the last four characters of a token.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
