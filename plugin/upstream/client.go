// Package upstream implements the workspace API client. It is the
// single network collaborator of the sync layer: it lists the connected
// accounts and fetches the item collection of one account.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/pulsedesk/pulsedesk/syncer"
)

// Item is one dashboard item: an email, a deal, a payable or a memory
// note. The sync layer never inspects Payload; screens decode it
// according to their own schema.
type Item struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Snippet   string          `json:"snippet,omitempty"`
	Read      bool            `json:"read"`
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Client talks to the workspace API. It implements syncer.Source.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string

	// Per-account rate limiting toward the upstream.
	limiterRate  rate.Limit
	limiterBurst int
	limiterMu    sync.Mutex
	limiters     map[string]*rate.Limiter
}

type accountsResponse struct {
	Accounts []struct {
		ID string `json:"id"`
	} `json:"accounts"`
}

type itemsResponse struct {
	Items []Item `json:"items"`
}

// NewClient creates a workspace API client.
func NewClient(cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid upstream base URL %q", cfg.BaseURL)
	}

	return &Client{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		limiterRate:  rate.Limit(cfg.Rate),
		limiterBurst: cfg.Burst,
		limiters:     make(map[string]*rate.Limiter),
	}, nil
}

// ListKeys returns the identifiers of all connected accounts.
func (c *Client) ListKeys(ctx context.Context) ([]string, error) {
	var resp accountsResponse
	if err := c.get(ctx, "/v1/accounts", &resp); err != nil {
		return nil, errors.Wrap(err, "list accounts")
	}

	keys := make([]string, 0, len(resp.Accounts))
	for _, account := range resp.Accounts {
		keys = append(keys, account.ID)
	}
	return keys, nil
}

// FetchItems returns all items for one account.
func (c *Client) FetchItems(ctx context.Context, key string) ([]Item, error) {
	if err := c.limiter(key).Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}

	path := fmt.Sprintf("/v1/accounts/%s/items", url.PathEscape(key))
	var resp itemsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, errors.Wrapf(err, "fetch items for account %s", key)
	}
	return resp.Items, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", shortuuid.New())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("upstream returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *Client) limiter(key string) *rate.Limiter {
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()

	if limiter, ok := c.limiters[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(c.limiterRate, c.limiterBurst)
	c.limiters[key] = limiter
	return limiter
}

var _ syncer.Source[Item] = (*Client)(nil)
