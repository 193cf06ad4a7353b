package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBodyBytes caps a JSON response from a lookup service.
const maxBodyBytes = 4 << 20

// defaultHTTPTimeout backs up the per-call context deadline.
const defaultHTTPTimeout = 60 * time.Second

// client is the shared HTTP plumbing for the JSON sources.
type client struct {
	base *url.URL
	http *http.Client
}

func newClient(baseURL string, hc *http.Client) (*client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &client{base: u, http: hc}, nil
}

// endpoint joins path segments onto the base URL, escaping each one, and
// attaches query.
func (c *client) endpoint(query url.Values, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.base.JoinPath(escaped...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// resolve makes ref absolute against the base URL.
func (c *client) resolve(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", ref, err)
	}
	return c.base.ResolveReference(r).String(), nil
}

// get performs a GET and returns the body. 404 maps to ErrNotFound.
func (c *client) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", rawURL, limit)
	}
	return body, nil
}

// getJSON performs a GET and decodes the JSON body into out.
func (c *client) getJSON(ctx context.Context, rawURL string, out any) error {
	body, err := c.get(ctx, rawURL, maxBodyBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}
	return nil
}
