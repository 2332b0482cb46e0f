package deliveries

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-deliveries/core"
)

type extensionImageProvider struct {
	id string
}

func (p extensionImageProvider) ID() string { return p.id }

func (extensionImageProvider) SearchImage(context.Context, string) (core.ImageSearchResult, error) {
	return core.ImageSearchResult{}, nil
}

func TestExtensionHooks_ImageSearchPacksOrderedByPriority(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterImageSearchPack(ImageSearchPack{
		Name:      "fallback",
		Priority:  20,
		Providers: []core.ImageSearchProvider{extensionImageProvider{id: "site"}},
	}); err != nil {
		t.Fatalf("register fallback pack: %v", err)
	}
	if err := hooks.RegisterImageSearchPack(ImageSearchPack{
		Name:      "primary",
		Priority:  10,
		Providers: []core.ImageSearchProvider{extensionImageProvider{id: "serp"}, extensionImageProvider{id: "site"}},
	}); err != nil {
		t.Fatalf("register primary pack: %v", err)
	}
	if err := hooks.RegisterImageSearchPack(ImageSearchPack{
		Name:      "primary",
		Providers: []core.ImageSearchProvider{extensionImageProvider{id: "x"}},
	}); err == nil {
		t.Fatalf("expected duplicate pack registration error")
	}
	if err := hooks.RegisterImageSearchPack(ImageSearchPack{Name: "empty"}); err == nil {
		t.Fatalf("expected empty pack error")
	}

	packs := hooks.ImageSearchPacks()
	if len(packs) != 2 || packs[0].Name != "primary" || packs[1].Name != "fallback" {
		t.Fatalf("unexpected pack order %+v", packs)
	}
	providers := hooks.ImageSearchProviders()
	if len(providers) != 2 || providers[0].ID() != "serp" || providers[1].ID() != "site" {
		t.Fatalf("expected de-duplicated chain serp,site; got %d providers", len(providers))
	}
}

func TestExtensionHooks_OptionsExtendDefaultExtractors(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterExtractorPack(ExtractorPack{
		Name: "buyer-notes",
		Sellers: []core.SellerExtractor{func(core.Order, *core.Delivery) string {
			return "Loja Fallback"
		}},
	}); err != nil {
		t.Fatalf("register extractor pack: %v", err)
	}
	if err := hooks.RegisterExtractorPack(ExtractorPack{Name: "nothing"}); err == nil {
		t.Fatalf("expected empty extractor pack error")
	}

	svc, err := NewService(DefaultConfig(), hooks.Options()...)
	if err != nil {
		t.Fatalf("new service with hook options: %v", err)
	}
	if svc == nil {
		t.Fatalf("expected service")
	}
	if len(hooks.Options()) != 3 {
		t.Fatalf("expected extractor options only, got %d", len(hooks.Options()))
	}
}

func TestExtensionHooks_CommandQueryBundles(t *testing.T) {
	hooks := NewExtensionHooks()
	if err := hooks.RegisterCommandQueryBundle("b", func(f *Facade) (any, error) {
		return f.Queries().ListDeliveries, nil
	}); err != nil {
		t.Fatalf("register bundle b: %v", err)
	}
	if err := hooks.RegisterCommandQueryBundle("a", func(*Facade) (any, error) {
		return nil, errors.New("bundle a failed")
	}); err != nil {
		t.Fatalf("register bundle a: %v", err)
	}
	if names := hooks.BundleNames(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected bundle names %v", names)
	}

	facade, _, _, _ := newStubFacade(t)
	if _, err := hooks.BuildCommandQueryBundles(facade); err == nil {
		t.Fatalf("expected failing bundle to stop the build")
	}
	if _, err := hooks.BuildCommandQueryBundles(nil); err == nil {
		t.Fatalf("expected nil facade error")
	}
}
