package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/pders01/pubsearch/internal/config"
	"github.com/pders01/pubsearch/internal/debuglog"
)

const (
	searchPath   = "/api/search"
	packagesPath = "/api/packages/"
)

// StatusError reports a non-2xx response. Its message is the status text.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return e.Status
}

type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	newID     func() string
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:   cfg.Registry.BaseURL,
		userAgent: cfg.Registry.UserAgent,
		client: &http.Client{
			Timeout: cfg.Registry.HTTPTimeout,
		},
		newID: uuid.NewString,
	}
}

// BaseURL returns the registry root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PackageURL is the target of the open action for a package. It points at
// the JSON API resource rather than the human-facing page.
func (c *Client) PackageURL(name string) string {
	return c.baseURL + packagesPath + name
}

// Search queries the registry. Cancelling ctx aborts the request and the
// returned error wraps context.Canceled.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)

	resp, err := c.get(ctx, c.baseURL+searchPath+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	results := c.mapResults(body)
	debuglog.WithFields(map[string]any{"q": query, "count": len(results)}).Debugf("search completed")
	return results, nil
}

// mapResults reads body.packages[].package. Any other shape degrades to
// fewer or zero results rather than an error.
func (c *Client) mapResults(body any) []Result {
	obj, ok := body.(map[string]any)
	if !ok {
		return []Result{}
	}
	packages, ok := obj["packages"].([]any)
	if !ok {
		return []Result{}
	}

	results := make([]Result, 0, len(packages))
	for _, p := range packages {
		entry, ok := p.(map[string]any)
		if !ok {
			continue
		}
		name, ok := entry["package"].(string)
		if !ok || name == "" {
			continue
		}
		results = append(results, Result{
			ID:   c.newID(),
			Name: name,
			URL:  c.PackageURL(name),
		})
	}
	return results
}

// Package fetches metadata for a single package from its PackageURL.
func (c *Client) Package(ctx context.Context, name string) (*Package, error) {
	resp, err := c.get(ctx, c.PackageURL(url.PathEscape(name)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var pkg Package
	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		return nil, fmt.Errorf("decoding package %s: %w", name, err)
	}
	if pkg.Name == "" {
		pkg.Name = name
	}
	return &pkg, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	debuglog.Debugf("GET %s", rawURL)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: statusText(resp)}
	}

	return resp, nil
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
