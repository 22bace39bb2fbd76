package internal

import (
	"fmt"
	"net/url"
	"strings"
)

// SanitizeHostname reduces an address to its host[:port], stripping any
// scheme and path, e.g. https://mc.example.com:8000/api -> mc.example.com:8000
func SanitizeHostname(address string) (string, error) {
	if !strings.Contains(address, "://") {
		address = "https://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("parsing address: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("address has no host: %s", address)
	}
	return u.Host, nil
}

// CredentialEnvKey returns the environment variable key for an API token
// specific to the given hostname, e.g. MC_TOKEN_mc_example_com.
func CredentialEnvKey(hostname string) string {
	r := strings.NewReplacer(".", "_", ":", "_", "-", "_")
	return fmt.Sprintf("MC_TOKEN_%s", r.Replace(hostname))
}
