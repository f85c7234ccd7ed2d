// Package websearch looks up unfamiliar reason terms on the open web so the
// resolver can build background context for a second classification attempt.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://api.bing.microsoft.com"
	defaultMarket  = "zh-CN"
	defaultLimit   = 3
)

// Client performs web searches against the Bing Web Search v7 API.
type Client interface {
	Search(ctx context.Context, term string) (*Result, error)
}

// Result holds the page titles and snippets of the top search hits, in rank
// order. The two slices are filtered independently: an empty title or snippet
// is dropped without dropping its counterpart.
type Result struct {
	Titles   []string `json:"titles"`
	Snippets []string `json:"snippets"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithMarket overrides the default search market.
func WithMarket(mkt string) Option {
	return func(c *httpClient) {
		c.market = mkt
	}
}

// WithLimit overrides the number of hits taken from the response.
func WithLimit(n int) Option {
	return func(c *httpClient) {
		c.limit = n
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	market  string
	limit   int
	http    *http.Client
}

// NewClient creates a Bing Web Search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		market:  defaultMarket,
		limit:   defaultLimit,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

func (c *httpClient) Search(ctx context.Context, term string) (*Result, error) {
	// Qualifiers steer results toward the business context of the term
	// rather than dictionary definitions.
	query := fmt.Sprintf("%q (公司 OR 产品 OR 新兴领域 OR 近三年IP)", term)

	params := url.Values{}
	params.Set("q", query)
	params.Set("mkt", c.market)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v7.0/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "websearch: create request")
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "websearch: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "websearch: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("websearch: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, eris.Wrap(err, "websearch: unmarshal response")
	}

	result := &Result{}
	for i, page := range sr.WebPages.Value {
		if i >= c.limit {
			break
		}
		if page.Name != "" {
			result.Titles = append(result.Titles, page.Name)
		}
		if page.Snippet != "" {
			result.Snippets = append(result.Snippets, page.Snippet)
		}
	}
	return result, nil
}
