// Package serpapi looks up product images through the SerpAPI Google Images engine.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/transport"
)

const ProviderID = "serpapi"

const (
	DefaultEndpoint = "https://serpapi.com/search.json"
	DefaultEngine   = "google_images"
	defaultTimeout  = 15 * time.Second
)

type Config struct {
	Endpoint string
	Engine   string
	APIKey   string
	Timeout  time.Duration
}

type Provider struct {
	cfg       Config
	transport core.TransportAdapter
}

func New(cfg Config, adapter core.TransportAdapter) (*Provider, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("serpapi: api key is required")
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Engine = strings.TrimSpace(cfg.Engine)
	if cfg.Engine == "" {
		cfg.Engine = DefaultEngine
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &Provider{cfg: cfg, transport: adapter}, nil
}

func (*Provider) ID() string {
	return ProviderID
}

// SearchImage returns the first image result, preferring the original over
// the thumbnail. A 429 is reported through the response meta with no URL.
func (p *Provider) SearchImage(ctx context.Context, query string) (core.ImageSearchResult, error) {
	if p == nil || p.transport == nil {
		return core.ImageSearchResult{}, fmt.Errorf("serpapi: provider is not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return core.ImageSearchResult{}, nil
	}
	res, err := p.transport.Do(ctx, core.TransportRequest{
		Method: http.MethodGet,
		URL:    p.cfg.Endpoint,
		Query: map[string]string{
			"engine":  p.cfg.Engine,
			"q":       query,
			"api_key": p.cfg.APIKey,
			"ijn":     "0",
		},
		Timeout: p.cfg.Timeout,
	})
	if err != nil {
		return core.ImageSearchResult{}, err
	}
	result := core.ImageSearchResult{Response: transport.ResponseMeta(res)}
	if res.StatusCode == http.StatusTooManyRequests {
		return result, nil
	}
	if err := transport.StatusError(res, "serpapi_search"); err != nil {
		return result, err
	}

	var payload struct {
		Error         string `json:"error"`
		ImagesResults []struct {
			Original  string `json:"original"`
			Thumbnail string `json:"thumbnail"`
		} `json:"images_results"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return result, fmt.Errorf("serpapi: decode response: %w", err)
	}
	if msg := strings.TrimSpace(payload.Error); msg != "" && len(payload.ImagesResults) == 0 {
		result.Response.Metadata = map[string]any{"serpapi_error": msg}
		return result, nil
	}
	if len(payload.ImagesResults) == 0 {
		return result, nil
	}
	first := payload.ImagesResults[0]
	if original := strings.TrimSpace(first.Original); original != "" {
		result.URL = original
	} else {
		result.URL = strings.TrimSpace(first.Thumbnail)
	}
	return result, nil
}

var _ core.ImageSearchProvider = (*Provider)(nil)
