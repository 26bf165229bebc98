// Package catalog looks up display metadata for purchasable items.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/metrics"
	"github.com/angelmondragon/trackvault-backend/pkg/outbound"
	"github.com/angelmondragon/trackvault-backend/pkg/redis"
)

const dependencyName = "catalog"

var errBaseURLRequired = errors.New("catalog base url is required")

// Item is the subset of catalog data this service displays.
type Item struct {
	ID       uuid.UUID      `json:"id"`
	Type     enums.ItemType `json:"type"`
	Title    string         `json:"title"`
	ArtistID *uuid.UUID     `json:"artist_id,omitempty"`
}

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// Client reads items from the catalog service, caching hits in Redis.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      cache
	cacheTTL   time.Duration
	metrics    *metrics.DependencyMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithCache enables read-through caching of item lookups.
func WithCache(store cache, ttl time.Duration) Option {
	return func(c *Client) {
		if store != nil && ttl > 0 {
			c.cache = store
			c.cacheTTL = ttl
		}
	}
}

// WithMetrics records call outcomes.
func WithMetrics(m *metrics.DependencyMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds a catalog client.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		baseURL:    trimmed,
		httpClient: outbound.NewHTTPClient(timeout),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// GetItem returns the catalog entry for an item. Unknown items yield a NOT_FOUND error.
func (c *Client) GetItem(ctx context.Context, itemType enums.ItemType, itemID uuid.UUID) (*Item, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog client not configured")
	}

	key := ""
	if c.cache != nil {
		key = c.cache.CacheKey("catalog", string(itemType), itemID.String())
		if raw, err := c.cache.Get(ctx, key); err == nil {
			var item Item
			if json.Unmarshal([]byte(raw), &item) == nil {
				return &item, nil
			}
		}
	}

	item, err := c.fetch(ctx, itemType, itemID)
	c.metrics.ObserveCall(dependencyName, err)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if encoded, err := json.Marshal(item); err == nil {
			_ = c.cache.Set(ctx, key, string(encoded), c.cacheTTL)
		}
	}
	return item, nil
}

// Title returns the item title or fallback when the catalog cannot answer.
func (c *Client) Title(ctx context.Context, itemType enums.ItemType, itemID uuid.UUID, fallback string) string {
	item, err := c.GetItem(ctx, itemType, itemID)
	if err != nil || item == nil || strings.TrimSpace(item.Title) == "" {
		if c != nil {
			c.metrics.IncFallback(dependencyName)
		}
		return fallback
	}
	return item.Title
}

func (c *Client) fetch(ctx context.Context, itemType enums.ItemType, itemID uuid.UUID) (*Item, error) {
	url := outbound.JoinURL(c.baseURL, "items", strings.ToLower(string(itemType)), itemID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build catalog request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute catalog request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "catalog item %s/%s not found", itemType, itemID)
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, outbound.StatusError(dependencyName, resp), "catalog lookup failed")
	}

	env, err := outbound.DecodeEnvelope[Item](resp)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode catalog response")
	}
	if env.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("catalog returned no data for %s", itemID))
	}
	return env.Data, nil
}

var _ cache = (*redis.Client)(nil)
