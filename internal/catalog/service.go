package catalog

import (
	"context"
	"fmt"

	"github.com/usashopbox/storefront/internal/pricing"
	"github.com/usashopbox/storefront/internal/settings"
)

// VariationView is a variation with its customer-facing price.
type VariationView struct {
	Variation
	DisplayPriceUSD float64 `json:"display_price_usd"`
}

// ProductView is a product as the storefront shows it.
type ProductView struct {
	Product
	DisplayPriceUSD float64         `json:"display_price_usd"`
	Variations      []VariationView `json:"variations"`
}

// Service prices catalog products with the active configuration.
type Service struct {
	repo     *Repository
	settings settings.Store
	engine   *pricing.Engine
}

func NewService(repo *Repository, store settings.Store, engine *pricing.Engine) *Service {
	return &Service{repo: repo, settings: store, engine: engine}
}

// ListPriced returns active products matching query with display prices.
func (s *Service) ListPriced(ctx context.Context, query string) ([]ProductView, error) {
	products, err := s.repo.List(ctx, query, true)
	if err != nil {
		return nil, err
	}
	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pricing config: %w", err)
	}

	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, s.view(p, cfg))
	}
	return views, nil
}

// GetPriced returns one active product with display prices.
func (s *Service) GetPriced(ctx context.Context, id string) (ProductView, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return ProductView{}, err
	}
	if !p.Active {
		return ProductView{}, ErrNotFound
	}
	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return ProductView{}, fmt.Errorf("load pricing config: %w", err)
	}
	return s.view(p, cfg), nil
}

func (s *Service) view(p Product, cfg pricing.Config) ProductView {
	v := ProductView{
		Product:         p,
		DisplayPriceUSD: s.engine.DisplayPrice(p.PriceUSD, cfg),
		Variations:      make([]VariationView, 0, len(p.Variations)),
	}
	for _, variation := range p.Variations {
		v.Variations = append(v.Variations, VariationView{
			Variation:       variation,
			DisplayPriceUSD: s.engine.VariantPrice(p.PriceUSD, variation.Price, cfg),
		})
	}
	return v
}
