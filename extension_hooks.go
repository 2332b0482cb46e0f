package deliveries

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-deliveries/core"
)

// ImageSearchPack contributes providers to the image search chain. Packs run
// in ascending Priority; ties are broken by name.
type ImageSearchPack struct {
	Name      string
	Priority  int
	Providers []core.ImageSearchProvider
}

// ExtractorPack appends fallback extractors after the built-in ones.
type ExtractorPack struct {
	Name     string
	Sellers  []core.SellerExtractor
	Images   []core.ImageExtractor
	Forecast []core.ForecastExtractor
}

type CommandQueryBundleFactory func(facade *Facade) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	imagePacks     map[string]ImageSearchPack
	extractorPacks map[string]ExtractorPack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		imagePacks:     map[string]ImageSearchPack{},
		extractorPacks: map[string]ExtractorPack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterImageSearchPack(pack ImageSearchPack) error {
	if h == nil {
		return fmt.Errorf("deliveries: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("deliveries: image search pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("deliveries: image search pack %q has no providers", name)
	}
	for _, provider := range pack.Providers {
		if provider == nil {
			return fmt.Errorf("deliveries: image search pack %q contains nil provider", name)
		}
	}

	normalized := ImageSearchPack{
		Name:      name,
		Priority:  pack.Priority,
		Providers: append([]core.ImageSearchProvider(nil), pack.Providers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.imagePacks[name]; exists {
		return fmt.Errorf("deliveries: image search pack %q already registered", name)
	}
	h.imagePacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterExtractorPack(pack ExtractorPack) error {
	if h == nil {
		return fmt.Errorf("deliveries: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("deliveries: extractor pack name is required")
	}
	if len(pack.Sellers)+len(pack.Images)+len(pack.Forecast) == 0 {
		return fmt.Errorf("deliveries: extractor pack %q has no extractors", name)
	}

	normalized := ExtractorPack{
		Name:     name,
		Sellers:  append([]core.SellerExtractor(nil), pack.Sellers...),
		Images:   append([]core.ImageExtractor(nil), pack.Images...),
		Forecast: append([]core.ForecastExtractor(nil), pack.Forecast...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.extractorPacks[name]; exists {
		return fmt.Errorf("deliveries: extractor pack %q already registered", name)
	}
	h.extractorPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(name string, factory CommandQueryBundleFactory) error {
	if h == nil {
		return fmt.Errorf("deliveries: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("deliveries: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("deliveries: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("deliveries: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ImageSearchPacks returns the registered packs in chain order.
func (h *ExtensionHooks) ImageSearchPacks() []ImageSearchPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ImageSearchPack, 0, len(h.imagePacks))
	for _, pack := range h.imagePacks {
		out = append(out, ImageSearchPack{
			Name:      pack.Name,
			Priority:  pack.Priority,
			Providers: append([]core.ImageSearchProvider(nil), pack.Providers...),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ImageSearchProviders flattens the packs into one chain. A provider id that
// appears twice keeps its first position.
func (h *ExtensionHooks) ImageSearchProviders() []core.ImageSearchProvider {
	seen := map[string]struct{}{}
	out := []core.ImageSearchProvider{}
	for _, pack := range h.ImageSearchPacks() {
		for _, provider := range pack.Providers {
			id := strings.TrimSpace(provider.ID())
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, provider)
		}
	}
	return out
}

// Options converts the registered packs into service options. Extractor packs
// extend the default chains, in pack name order.
func (h *ExtensionHooks) Options() []core.Option {
	if h == nil {
		return nil
	}
	opts := []core.Option{}
	if providers := h.ImageSearchProviders(); len(providers) > 0 {
		opts = append(opts, core.WithImageSearchProviders(providers...))
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.extractorPacks))
	for name := range h.extractorPacks {
		names = append(names, name)
	}
	sort.Strings(names)
	sellers := core.DefaultSellerExtractors()
	images := core.DefaultImageExtractors()
	forecast := core.DefaultForecastExtractors()
	for _, name := range names {
		pack := h.extractorPacks[name]
		sellers = append(sellers, pack.Sellers...)
		images = append(images, pack.Images...)
		forecast = append(forecast, pack.Forecast...)
	}
	h.mu.RUnlock()

	if len(names) > 0 {
		opts = append(opts,
			core.WithSellerExtractors(sellers...),
			core.WithImageExtractors(images...),
			core.WithForecastExtractors(forecast...),
		)
	}
	return opts
}

func (h *ExtensionHooks) BuildCommandQueryBundles(facade *Facade) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if facade == nil {
		return nil, fmt.Errorf("deliveries: facade is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](facade)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
