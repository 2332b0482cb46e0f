// Package mercadolivre implements the marketplace client over the Mercado
// Livre REST API.
package mercadolivre

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/transport"
)

const ProviderID = "mercadolivre"

const (
	DefaultBaseURL        = "https://api.mercadolibre.com"
	DefaultSiteID         = "MLB"
	defaultRequestTimeout = 30 * time.Second
)

type Config struct {
	BaseURL        string
	TokenURL       string
	SiteID         string
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	RequestTimeout time.Duration
}

// Client implements core.MarketplaceClient. Every call goes through the
// configured transport adapter.
type Client struct {
	cfg       Config
	transport core.TransportAdapter
}

func NewClient(cfg Config, adapter core.TransportAdapter) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	if cfg.TokenURL == "" {
		cfg.TokenURL = cfg.BaseURL + "/oauth/token"
	}
	cfg.SiteID = strings.ToUpper(strings.TrimSpace(cfg.SiteID))
	if cfg.SiteID == "" {
		cfg.SiteID = DefaultSiteID
	}
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("mercadolivre: client id and secret are required")
	}
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &Client{cfg: cfg, transport: adapter}, nil
}

func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

func (c *Client) GetAccountIdentity(ctx context.Context, accessToken string) (string, error) {
	var payload userPayload
	if err := c.getJSON(ctx, "get_account_identity", "/users/me", nil, accessToken, &payload); err != nil {
		return "", err
	}
	id := payload.ID.String()
	if id == "" {
		return "", fmt.Errorf("mercadolivre: users/me response missing id")
	}
	return id, nil
}

func (c *Client) ListOrders(ctx context.Context, accessToken string, accountID string) ([]core.Order, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("mercadolivre: account id is required")
	}
	var payload orderSearchPayload
	query := map[string]string{"buyer": accountID, "sort": "date_desc"}
	if err := c.getJSON(ctx, "list_orders", "/orders/search", query, accessToken, &payload); err != nil {
		return nil, err
	}
	orders := make([]core.Order, 0, len(payload.Results))
	for _, result := range payload.Results {
		orders = append(orders, result.toOrder())
	}
	return orders, nil
}

func (c *Client) GetShipment(ctx context.Context, accessToken string, shipmentID string) (core.Shipment, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return core.Shipment{}, fmt.Errorf("mercadolivre: shipment id is required")
	}
	var payload shipmentPayload
	path := "/shipments/" + url.PathEscape(shipmentID)
	if err := c.getJSON(ctx, "get_shipment", path, nil, accessToken, &payload); err != nil {
		return core.Shipment{}, err
	}
	return payload.toShipment(shipmentID), nil
}

func (c *Client) getJSON(
	ctx context.Context,
	operation string,
	path string,
	query map[string]string,
	accessToken string,
	target any,
) error {
	if c == nil || c.transport == nil {
		return fmt.Errorf("mercadolivre: client is not configured")
	}
	res, err := c.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     c.cfg.BaseURL + path,
		Query:   query,
		Headers: transport.BearerHeaders(accessToken),
		Timeout: c.cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}
	if err := transport.StatusError(res, operation); err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body, target); err != nil {
		return fmt.Errorf("mercadolivre: decode %s response: %w", operation, err)
	}
	return nil
}

var _ core.MarketplaceClient = (*Client)(nil)
