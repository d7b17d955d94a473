package installer

import (
	"fmt"
	"net/url"
	"strings"
)

// Source is one mirror hosting Chrome for Testing archives.
type Source struct {
	Name    string `json:"name" yaml:"name"`
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`
}

var (
	// NPMMirror is tried first; it is usually the closest mirror.
	NPMMirror = Source{Name: "npmmirror", BaseURL: "https://cdn.npmmirror.com/binaries/chrome-for-testing"}
	// Google is the canonical upstream and always tried last.
	Google = Source{Name: "google", BaseURL: "https://storage.googleapis.com/chrome-for-testing-public"}
)

// DefaultSources returns the built-in mirrors in priority order.
func DefaultSources() []Source {
	return []Source{NPMMirror, Google}
}

// ArchiveURL returns <base>/<version>/<token>/chrome-<token>.zip.
func (s Source) ArchiveURL(version, token string) string {
	return fmt.Sprintf("%s/%s/%s/chrome-%s.zip", strings.TrimRight(s.BaseURL, "/"), version, token, token)
}

// ResolveSource accepts a known source name (case-insensitive) or an
// http(s) base URL.
func ResolveSource(s string) (Source, error) {
	s = strings.TrimSpace(s)
	for _, known := range DefaultSources() {
		if strings.EqualFold(s, known.Name) {
			return known, nil
		}
	}

	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Source{}, fmt.Errorf("unknown source %q: use npmmirror, google or an http(s) URL", s)
	}
	return Source{Name: u.Host, BaseURL: strings.TrimRight(s, "/")}, nil
}

// ResolveSources resolves each entry and drops duplicates, keeping order.
func ResolveSources(names []string) ([]Source, error) {
	var out []Source
	seen := make(map[string]bool)
	for _, name := range names {
		src, err := ResolveSource(name)
		if err != nil {
			return nil, err
		}
		if seen[src.BaseURL] {
			continue
		}
		seen[src.BaseURL] = true
		out = append(out, src)
	}
	return out, nil
}

// Prefer puts preferred first and keeps every default mirror after it,
// upstream last.
func Prefer(preferred Source) []Source {
	out := []Source{preferred}
	for _, src := range DefaultSources() {
		if src.BaseURL != preferred.BaseURL {
			out = append(out, src)
		}
	}
	return out
}
