package meli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/meli-sales-relay/pkg/config"
	pkgerrors "github.com/angelmondragon/meli-sales-relay/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.mercadolibre.com"
	responseBodyReadLimit int64 = 1024
)

var (
	errAppIDRequired  = errors.New("marketplace app id is required")
	errSecretRequired = errors.New("marketplace app secret is required")
)

// Client wraps the Mercado Libre REST endpoints the relay consumes: the OAuth
// token exchange plus payment, order, and shipment-cost lookups.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	appSecret  string
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

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the marketplace client from the configured credentials.
func NewClient(cfg config.MarketplaceConfig, opts ...Option) (*Client, error) {
	appID := strings.TrimSpace(cfg.AppID)
	if appID == "" {
		return nil, errAppIDRequired
	}
	appSecret := strings.TrimSpace(cfg.AppSecret)
	if appSecret == "" {
		return nil, errSecretRequired
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		appID:      appID,
		appSecret:  appSecret,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.BaseURL != "" {
		client.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// RefreshToken exchanges a refresh token for a fresh access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace client not configured")
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.appID)
	form.Set("client_secret", c.appSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL("/oauth/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build token request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var grant TokenGrant
	if err := c.do(req, "token exchange", &grant); err != nil {
		return nil, err
	}
	if grant.AccessToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "token exchange returned no access token")
	}
	return &grant, nil
}

// GetPayment fetches the payment resource referenced by a webhook notification.
// The resource path arrives verbatim from the notification body.
func (c *Client) GetPayment(ctx context.Context, accessToken, resourcePath string) (*Payment, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace client not configured")
	}
	trimmed := strings.TrimSpace(resourcePath)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment resource path is required")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}

	req, err := c.authorizedGet(ctx, accessToken, trimmed)
	if err != nil {
		return nil, err
	}

	var payment Payment
	if err := c.do(req, "payment fetch", &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetOrder fetches full order detail by id.
func (c *Client) GetOrder(ctx context.Context, accessToken string, orderID int64) (*Order, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace client not configured")
	}
	if orderID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	req, err := c.authorizedGet(ctx, accessToken, fmt.Sprintf("/orders/%d", orderID))
	if err != nil {
		return nil, err
	}

	var order Order
	if err := c.do(req, "order fetch", &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetShipmentCosts fetches the cost breakdown for a shipment.
func (c *Client) GetShipmentCosts(ctx context.Context, accessToken string, shipmentID int64) (*ShipmentCosts, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace client not configured")
	}
	if shipmentID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment id is required")
	}

	req, err := c.authorizedGet(ctx, accessToken, fmt.Sprintf("/shipments/%d/costs", shipmentID))
	if err != nil {
		return nil, err
	}

	var costs ShipmentCosts
	if err := c.do(req, "shipment costs fetch", &costs); err != nil {
		return nil, err
	}
	return &costs, nil
}

func (c *Client) authorizedGet(ctx context.Context, accessToken, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build marketplace request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s", op))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return pkgerrors.Wrap(codeForStatus(resp.StatusCode), cause, fmt.Sprintf("%s failed", op))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", op))
	}
	return nil
}

// codeForStatus maps marketplace HTTP failures onto the relay's error
// taxonomy. Only NOT_FOUND is treated as transient by the settlement worker.
func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.CodeUnauthorized
	default:
		return pkgerrors.CodeDependency
	}
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
