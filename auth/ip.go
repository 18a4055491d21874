package auth

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultIPEchoURL is the public echo endpoint used to learn the caller's
// outbound address for activity logs.
const DefaultIPEchoURL = "https://api.ipify.org"

// IPResolver fetches the process's public IP address for activity logging.
// Failures are soft; callers log an empty address rather than block.
type IPResolver struct {
	client *http.Client
	url    string
}

// NewIPResolver builds a resolver against url (DefaultIPEchoURL when empty).
func NewIPResolver(url string) *IPResolver {
	if url == "" {
		url = DefaultIPEchoURL
	}
	return &IPResolver{
		client: &http.Client{Timeout: 3 * time.Second},
		url:    url,
	}
}

// PublicIP returns the echoed address, or "" on any failure.
func (r *IPResolver) PublicIP(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return ""
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
