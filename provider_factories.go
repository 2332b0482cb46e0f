package deliveries

import (
	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/providers/mercadolivre"
	"github.com/goliatone/go-deliveries/providers/serpapi"
)

func MercadoLivreClient(cfg mercadolivre.Config, adapter core.TransportAdapter) (*mercadolivre.Client, error) {
	return mercadolivre.NewClient(cfg, adapter)
}

func SerpAPIProvider(cfg serpapi.Config, adapter core.TransportAdapter) (core.ImageSearchProvider, error) {
	return serpapi.New(cfg, adapter)
}

func SiteSearchProvider(client *mercadolivre.Client) core.ImageSearchProvider {
	return mercadolivre.NewSiteSearch(client)
}

// ImageSearchChain returns the default lookup order: SerpAPI when an API key
// is configured, then the marketplace site search.
func ImageSearchChain(serp serpapi.Config, client *mercadolivre.Client, adapter core.TransportAdapter) ([]core.ImageSearchProvider, error) {
	chain := make([]core.ImageSearchProvider, 0, 2)
	if serp.APIKey != "" {
		provider, err := SerpAPIProvider(serp, adapter)
		if err != nil {
			return nil, err
		}
		chain = append(chain, provider)
	}
	if client != nil {
		chain = append(chain, SiteSearchProvider(client))
	}
	return chain, nil
}
