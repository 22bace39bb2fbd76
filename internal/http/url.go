package http

import (
	"fmt"
	"net/url"
)

// ParseURL parses a URL string, requiring an http(s) scheme and a host.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host: %s", rawURL)
	}
	return u, nil
}
