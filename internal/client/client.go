// Package client talks to the backend services the shell is configured from.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nupi-ai/shellboot/internal/bootstrap"
	"github.com/nupi-ai/shellboot/internal/constants"
	"github.com/nupi-ai/shellboot/internal/validate"
)

const (
	endpointsPath       = "/api/v2/"
	defaultLocalConfig  = "/static/mapstore/configs/localConfig.json"
	defaultAccountPath  = "/api/v2/users/me"
	accountEndpointName = "account"
	usersEndpointName   = "users"
)

// Client fetches the startup payloads over HTTP. It implements
// bootstrap.Fetcher.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	localConfigURL string
	logger         *log.Logger

	mu        sync.RWMutex
	endpoints map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithTransport overrides the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.httpClient.Transport = rt
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLocalConfigURL overrides where the configuration is read from.
func WithLocalConfigURL(u string) Option {
	return func(c *Client) {
		c.localConfigURL = strings.TrimSpace(u)
	}
}

// WithLogger overrides the client logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if err := validate.HTTPURL(trimmed); err != nil {
		return nil, fmt.Errorf("client: base url: %w", err)
	}
	c := &Client{
		httpClient: &http.Client{Timeout: constants.HTTPClientTimeout},
		baseURL:    trimmed,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.localConfigURL == "" {
		c.localConfigURL = c.baseURL + defaultLocalConfig
	} else if err := validate.HTTPURL(c.localConfigURL); err != nil {
		return nil, fmt.Errorf("client: local config url: %w", err)
	}
	return c, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Endpoints discovers the service locations and remembers them for later
// calls.
func (c *Client) Endpoints(ctx context.Context) (map[string]string, error) {
	var endpoints map[string]string
	if err := c.getJSON(ctx, c.baseURL+endpointsPath, &endpoints); err != nil {
		return nil, fmt.Errorf("client: endpoints: %w", err)
	}
	c.mu.Lock()
	c.endpoints = make(map[string]string, len(endpoints))
	for k, v := range endpoints {
		c.endpoints[k] = v
	}
	c.mu.Unlock()
	return endpoints, nil
}

// Endpoint returns one discovered location.
func (c *Client) Endpoint(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.endpoints[name]
	return u, ok
}

// Configuration fetches the local configuration document.
func (c *Client) Configuration(ctx context.Context) (bootstrap.LocalConfig, error) {
	var cfg bootstrap.LocalConfig
	if err := c.getJSON(ctx, c.localConfigURL, &cfg); err != nil {
		return bootstrap.LocalConfig{}, fmt.Errorf("client: configuration: %w", err)
	}
	return cfg, nil
}

// AccountInfo fetches the signed-in user. Unauthenticated answers yield a
// nil account and no error.
func (c *Client) AccountInfo(ctx context.Context) (*bootstrap.Account, error) {
	target := c.baseURL + defaultAccountPath
	if u, ok := c.Endpoint(accountEndpointName); ok && strings.TrimSpace(u) != "" {
		target = c.resolve(u)
	} else if u, ok := c.Endpoint(usersEndpointName); ok && strings.TrimSpace(u) != "" {
		target = strings.TrimRight(c.resolve(u), "/") + "/me"
	}

	var payload struct {
		User *bootstrap.Account `json:"user"`
		bootstrap.Account
	}
	err := c.getJSON(ctx, target, &payload)
	switch StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		c.logger.Printf("[Client] account lookup: %v", ErrAnonymous)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("client: account: %w", err)
	}
	if payload.User != nil {
		return payload.User, nil
	}
	if payload.Account.Username == "" && payload.Account.PK == 0 {
		return nil, nil
	}
	account := payload.Account
	return &account, nil
}

func (c *Client) resolve(u string) string {
	if strings.HasPrefix(u, "/") {
		return c.baseURL + u
	}
	return u
}

func (c *Client) getJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.attachToken(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}
