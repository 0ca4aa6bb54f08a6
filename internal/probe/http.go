package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// maxProbeBody bounds how much of a search response is read.
const maxProbeBody = 4 << 20 // 4MB

// HTTPCountProber reads the authoritative count from a search API: it
// substitutes the contended key into a URL template, issues a GET, and
// extracts the count from the JSON response via a gjson path such as
// "pagination.total".
type HTTPCountProber struct {
	client    *http.Client
	urlTmpl   string
	headers   map[string]string
	countPath string
}

// NewHTTPCountProber creates a prober. urlTmpl must contain a {{key}}
// placeholder; the key is query-escaped before substitution.
func NewHTTPCountProber(client *http.Client, urlTmpl string, headers map[string]string, countPath string) (*HTTPCountProber, error) {
	if !strings.Contains(urlTmpl, "{{key}}") {
		return nil, fmt.Errorf("ground-truth url must contain a {{key}} placeholder")
	}
	if countPath == "" {
		return nil, fmt.Errorf("ground-truth count_path is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCountProber{
		client:    client,
		urlTmpl:   urlTmpl,
		headers:   headers,
		countPath: countPath,
	}, nil
}

// Probe issues the search request and extracts the count.
func (p *HTTPCountProber) Probe(ctx context.Context, key string) (int, error) {
	target := strings.ReplaceAll(p.urlTmpl, "{{key}}", url.QueryEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("building probe request: %w", err)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("probe request: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return 0, fmt.Errorf("reading probe response: %w", err)
	}

	res := gjson.GetBytes(body, p.countPath)
	if !res.Exists() {
		return 0, fmt.Errorf("count path %q not found in probe response", p.countPath)
	}
	return int(res.Int()), nil
}
