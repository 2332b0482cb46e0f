package mercadolivre

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/transport"
)

const SiteSearchProviderID = "mercadolivre_site_search"

// SiteSearch finds a product image through the public marketplace search.
// Thumbnails are upgraded to the larger "-O" rendition when available.
type SiteSearch struct {
	client *Client
}

func NewSiteSearch(client *Client) *SiteSearch {
	return &SiteSearch{client: client}
}

func (*SiteSearch) ID() string {
	return SiteSearchProviderID
}

func (s *SiteSearch) SearchImage(ctx context.Context, query string) (core.ImageSearchResult, error) {
	if s == nil || s.client == nil || s.client.transport == nil {
		return core.ImageSearchResult{}, fmt.Errorf("mercadolivre: site search is not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return core.ImageSearchResult{}, nil
	}
	res, err := s.client.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     s.client.cfg.BaseURL + "/sites/" + s.client.cfg.SiteID + "/search",
		Query:   map[string]string{"q": query, "limit": "1"},
		Timeout: s.client.cfg.RequestTimeout,
	})
	if err != nil {
		return core.ImageSearchResult{}, err
	}
	result := core.ImageSearchResult{Response: transport.ResponseMeta(res)}
	if res.StatusCode == http.StatusTooManyRequests {
		return result, nil
	}
	if err := transport.StatusError(res, "site_search"); err != nil {
		return result, err
	}

	var payload struct {
		Results []struct {
			Thumbnail string `json:"thumbnail"`
		} `json:"results"`
	}
	if err := json.Unmarshal(res.Body, &payload); err != nil {
		return result, fmt.Errorf("mercadolivre: decode site search response: %w", err)
	}
	if len(payload.Results) == 0 {
		return result, nil
	}
	result.URL = upgradeThumbnail(payload.Results[0].Thumbnail)
	return result, nil
}

func upgradeThumbnail(thumbnail string) string {
	thumbnail = strings.TrimSpace(thumbnail)
	return strings.Replace(thumbnail, "-I.jpg", "-O.jpg", 1)
}

var _ core.ImageSearchProvider = (*SiteSearch)(nil)
