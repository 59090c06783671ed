// Package catalog stores products and prices them for the storefront.
package catalog

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a product id does not exist.
var ErrNotFound = errors.New("product not found")

// Variation is a selectable option of a product. Price, when set, is the
// variation's own base cost in USD.
type Variation struct {
	Attribute string   `json:"attribute" validate:"required"`
	Value     string   `json:"value" validate:"required"`
	Price     *float64 `json:"price,omitempty" validate:"omitempty,gte=0,lte=1000000"`
}

// Product is a catalog entry. PriceUSD is the undiscounted base cost and is
// never replaced by a display price.
type Product struct {
	ID          string      `json:"id"`
	Title       string      `json:"title" validate:"required,max=200"`
	Description string      `json:"description"`
	ImageURL    string      `json:"image_url" validate:"omitempty,url"`
	PriceUSD    float64     `json:"price_usd" validate:"gte=0,lte=1000000"`
	WeightKg    float64     `json:"weight_kg" validate:"gte=0,lte=10000"`
	Variations  []Variation `json:"variations" validate:"dive"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Variation returns the variation matching attribute and value, compared
// case-insensitively.
func (p Product) Variation(attribute, value string) (Variation, bool) {
	for _, v := range p.Variations {
		if strings.EqualFold(v.Attribute, attribute) && strings.EqualFold(v.Value, value) {
			return v, true
		}
	}
	return Variation{}, false
}

func (p *Product) normalize() {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.ImageURL = strings.TrimSpace(p.ImageURL)
	if p.Variations == nil {
		p.Variations = []Variation{}
	}
	for i := range p.Variations {
		p.Variations[i].Attribute = strings.TrimSpace(p.Variations[i].Attribute)
		p.Variations[i].Value = strings.TrimSpace(p.Variations[i].Value)
	}
}
