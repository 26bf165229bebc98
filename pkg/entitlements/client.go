// Package entitlements asks the fulfillment service whether a user owns an item.
// It is the remote side of the /purchased endpoint served by this repository.
package entitlements

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/metrics"
	"github.com/angelmondragon/trackvault-backend/pkg/outbound"
)

const dependencyName = "entitlements"

var errBaseURLRequired = errors.New("entitlements base url is required")

type purchasedBody struct {
	Purchased bool `json:"purchased"`
}

// Client queries the purchase check endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
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

// WithMetrics records call outcomes.
func WithMetrics(m *metrics.DependencyMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds an entitlements client.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{baseURL: trimmed, httpClient: outbound.NewHTTPClient(timeout)}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// HasPurchased reports ownership. A 404 carrying NOT_FOUND means "not purchased";
// every other non-200 answer is an error the caller decides how to treat.
func (c *Client) HasPurchased(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (bool, error) {
	if c == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "entitlements client not configured")
	}
	owned, err := c.check(ctx, userID, itemType, itemID)
	c.metrics.ObserveCall(dependencyName, err)
	return owned, err
}

func (c *Client) check(ctx context.Context, userID uuid.UUID, itemType enums.ItemType, itemID uuid.UUID) (bool, error) {
	url := outbound.JoinURL(c.baseURL, "purchased", userID.String(), string(itemType), itemID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build entitlement request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute entitlement request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		env, err := outbound.DecodeEnvelope[purchasedBody](resp)
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode entitlement response")
		}
		if env.Data == nil {
			return false, pkgerrors.New(pkgerrors.CodeDependency, "entitlement response missing data")
		}
		return env.Data.Purchased, nil
	case http.StatusNotFound:
		env, err := outbound.DecodeEnvelope[purchasedBody](resp)
		if err == nil && env.Error != nil && env.Error.Code == string(pkgerrors.CodeNotFound) {
			return false, nil
		}
		return false, pkgerrors.New(pkgerrors.CodeDependency, "entitlement endpoint not found")
	default:
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, outbound.StatusError(dependencyName, resp), "entitlement check failed")
	}
}
