package fetcher

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// allowedHosts are the code-hosting domains accepted for cloning.
var allowedHosts = map[string]bool{
	"github.com":        true,
	"www.github.com":    true,
	"gitlab.com":        true,
	"www.gitlab.com":    true,
	"bitbucket.org":     true,
	"www.bitbucket.org": true,
}

// forbiddenSchemes are URL schemes rejected outright, before the HTTPS check,
// so the error can name the scheme as unsupported rather than merely non-HTTPS.
var forbiddenSchemes = map[string]bool{
	"file":   true,
	"ssh":    true,
	"git":    true,
	"ftp":    true,
	"sftp":   true,
	"gopher": true,
}

const maxURLLength = 500

// collectionNameChars strips everything outside the collection name alphabet.
var collectionNameChars = regexp.MustCompile(`[^a-z0-9_]+`)

// ValidateURL checks a repository URL against the allow-list policy.
//
// Only HTTPS URLs on known code-hosting domains are accepted. Loopback,
// private and link-local IP literals, localhost, and forbidden schemes
// (file, ssh, git, ...) are rejected to prevent request forgery against
// internal infrastructure.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty URL", ErrValidation)
	}
	if len(raw) > maxURLLength {
		return fmt.Errorf("%w: URL too long (%d chars, max %d)", ErrValidation, len(raw), maxURLLength)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed URL", ErrValidation)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if forbiddenSchemes[scheme] {
		return fmt.Errorf("%w: scheme %q is not supported", ErrValidation, scheme)
	}
	if scheme != "https" {
		return fmt.Errorf("%w: only HTTPS URLs are supported", ErrValidation)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrValidation)
	}
	if host == "localhost" {
		return fmt.Errorf("%w: local addresses are not allowed", ErrValidation)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("%w: internal or local addresses are not allowed", ErrValidation)
		}
		return fmt.Errorf("%w: IP literals are not allowed", ErrValidation)
	}
	if !allowedHosts[host] {
		return fmt.Errorf("%w: host %q is not an allowed code-hosting domain", ErrValidation, host)
	}

	return nil
}

// DeriveName derives the collection name from a repository URL: the trailing
// path segment minus any .git suffix, lowered and restricted to the
// collection name alphabet [a-z0-9_].
func DeriveName(rawURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(rawURL), "/")
	name := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		name = trimmed[idx+1:]
	}
	name = strings.TrimSuffix(name, ".git")
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = collectionNameChars.ReplaceAllString(name, "")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
