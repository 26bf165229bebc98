// Package profiles reads customer display data from the user profile service.
package profiles

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
	"github.com/angelmondragon/trackvault-backend/pkg/metrics"
	"github.com/angelmondragon/trackvault-backend/pkg/outbound"
)

const dependencyName = "profiles"

var errBaseURLRequired = errors.New("profiles base url is required")

// Profile holds the fields receipts print.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
}

// Client talks to the profile service.
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

// NewClient builds a profile client.
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

// GetProfile fetches a user's profile.
func (c *Client) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "profiles client not configured")
	}
	profile, err := c.fetch(ctx, userID)
	c.metrics.ObserveCall(dependencyName, err)
	return profile, err
}

// DisplayName returns the user's display name or fallback.
func (c *Client) DisplayName(ctx context.Context, userID uuid.UUID, fallback string) string {
	profile, err := c.GetProfile(ctx, userID)
	if err != nil || profile == nil || strings.TrimSpace(profile.DisplayName) == "" {
		if c != nil {
			c.metrics.IncFallback(dependencyName)
		}
		return fallback
	}
	return profile.DisplayName
}

func (c *Client) fetch(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, outbound.JoinURL(c.baseURL, "users", userID.String()), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build profile request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute profile request")
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "profile %s not found", userID)
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, outbound.StatusError(dependencyName, resp), "profile lookup failed")
	}

	env, err := outbound.DecodeEnvelope[Profile](resp)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode profile response")
	}
	if env.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "profile response missing data")
	}
	return env.Data, nil
}
