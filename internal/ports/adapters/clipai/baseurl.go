package clipai

import (
	"fmt"
	"net/url"
	"strings"
)

const defaultBaseURL = "https://api.clipai.dev"

var defaultAllowedHosts = []string{"api.clipai.dev", "clipai.dev"}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL rejects analyzer endpoints that are not plain https
// URLs on an allow-listed host. Uploaded media and the API key both go
// to this endpoint, so a mistyped or injected URL must fail loudly.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	baseURL = normalizeBaseURL(baseURL)

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid CLIPAI_BASE_URL: %w", err)
	}
	switch {
	case !u.IsAbs() || u.Host == "":
		return baseURLError(baseURL, "absolute URL with host is required")
	case u.User != nil:
		return baseURLError(baseURL, "userinfo is not allowed")
	case u.RawQuery != "" || u.Fragment != "":
		return baseURLError(baseURL, "query and fragment are not allowed")
	case !strings.EqualFold(u.Scheme, "https"):
		return baseURLError(baseURL, "https is required")
	}

	host := strings.ToLower(u.Hostname())
	if !hostAllowed(host, allowedHosts) {
		return baseURLError(baseURL, fmt.Sprintf("host %q is not in CLIPAI_ALLOWED_HOSTS", host))
	}
	return nil
}

func baseURLError(baseURL, reason string) error {
	return fmt.Errorf("invalid CLIPAI_BASE_URL %q: %s", baseURL, reason)
}

// hostAllowed checks host against the allow-list, falling back to the
// service's own hosts when the list is empty or normalizes away.
func hostAllowed(host string, allowedHosts []string) bool {
	if host == "" {
		return false
	}
	allowed := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = normalizeHost(h); h != "" {
			allowed = append(allowed, h)
		}
	}
	if len(allowed) == 0 {
		allowed = defaultAllowedHosts
	}
	for _, h := range allowed {
		if h == host {
			return true
		}
	}
	return false
}

// normalizeHost reduces an allow-list entry to a bare lowercase hostname:
// scheme, slashes and port are operator noise, not identity.
func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	h = strings.Trim(h, "/")
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	return h
}
