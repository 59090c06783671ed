package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

// ImputedWeightKg is the per-unit weight charged for items whose weight is
// unknown, so freight is never under-charged.
const ImputedWeightKg = 0.5

// MaxAmount is the largest price or weight the engine accepts. Larger inputs
// are capped so every result stays a finite number.
const MaxAmount = 1e9

var one = decimal.NewFromInt(1)

// CartItem is one cart line as seen by the engine.
type CartItem struct {
	PriceUSD float64 `json:"price_usd"`
	Quantity int     `json:"quantity"`
	WeightKg float64 `json:"weight_kg,omitempty"`
}

// Item is a single product cost input.
type Item struct {
	PriceUSD float64 `json:"price_usd"`
	WeightKg float64 `json:"weight_kg,omitempty"`
}

// Line is the priced version of a CartItem. WeightKg is the per-unit weight
// used for freight, after imputation.
type Line struct {
	PriceUSD      float64 `json:"price_usd"`
	Quantity      int     `json:"quantity"`
	WeightKg      float64 `json:"weight_kg"`
	WeightImputed bool    `json:"weight_imputed"`
	UnitPrice     float64 `json:"unit_price"`
	LineTotal     float64 `json:"line_total"`
}

// PriceBreakdown is the order-level cost and margin split.
type PriceBreakdown struct {
	BaseCost          float64 `json:"base_cost"`
	Markup            float64 `json:"markup"`
	Freight           float64 `json:"freight"`
	Aduana            float64 `json:"aduana"`
	Local             float64 `json:"local"`
	PaymentProcessing float64 `json:"payment_processing"`
	Total             float64 `json:"total"`
	NetMargin         float64 `json:"net_margin"`
	NetMarginPercent  float64 `json:"net_margin_percent"`
	MeetsMinNetMargin bool    `json:"meets_min_net_margin"`
}

// CartPricing is the result of CalculateCart.
type CartPricing struct {
	Lines         []Line  `json:"lines"`
	Subtotal      float64 `json:"subtotal"`
	TotalWeightKg float64 `json:"total_weight_kg"`
	PriceBreakdown
	ImputedWeightUsed  bool `json:"imputed_weight_used"`
	BelowMinOrderTotal bool `json:"below_min_order_total"`
}

// Analysis is the single-unit breakdown of one product for admin review.
type Analysis struct {
	PriceUSD      float64 `json:"price_usd"`
	DisplayPrice  float64 `json:"display_price"`
	WeightKg      float64 `json:"weight_kg"`
	WeightImputed bool    `json:"weight_imputed"`
	PriceBreakdown
	FeePercent          float64 `json:"fee_percent"`
	SuggestedFeePercent float64 `json:"suggested_fee_percent"`
}

// Engine computes prices. It holds no state besides the observer and is safe
// for concurrent use.
type Engine struct {
	obs Observer
}

// NewEngine returns an engine reporting coercions to the given observers.
func NewEngine(obs ...Observer) *Engine {
	return &Engine{obs: Observers(obs...)}
}

var std = NewEngine()

// DisplayPrice returns the customer-facing price for a base cost. cfg is
// taken literally: pass Resolve(patch) rather than a partially filled Config.
func DisplayPrice(baseCostUSD float64, cfg Config) float64 {
	return std.DisplayPrice(baseCostUSD, cfg)
}

// VariantPrice prices a variant, preferring its own base price when set.
func VariantPrice(basePriceUSD float64, overridePriceUSD *float64, cfg Config) float64 {
	return std.VariantPrice(basePriceUSD, overridePriceUSD, cfg)
}

// CalculateCart prices a whole cart.
func CalculateCart(items []CartItem, cfg Config) CartPricing {
	return std.CalculateCart(items, cfg)
}

// Analyze returns the single-unit breakdown of item.
func Analyze(item Item, cfg Config) Analysis {
	return std.Analyze(item, cfg)
}

// DisplayPrice returns round2(baseCostUSD * (1 + base_fee_percent)).
func (e *Engine) DisplayPrice(baseCostUSD float64, cfg Config) float64 {
	cfg = sanitizeConfig(cfg, e.obs)
	base := e.sanitizeAmount("price_usd", -1, baseCostUSD)
	return e.money("display_price", unitPrice(decimal.NewFromFloat(base), cfg))
}

// VariantPrice uses overridePriceUSD as the base cost when it is present and
// valid, and falls back to the parent price otherwise.
func (e *Engine) VariantPrice(basePriceUSD float64, overridePriceUSD *float64, cfg Config) float64 {
	price := basePriceUSD
	if overridePriceUSD != nil {
		v := *overridePriceUSD
		if reason := amountReason(v); reason != "" {
			e.obs.Coerced(Coercion{Field: "variation.price", Index: -1, Value: v, Replacement: basePriceUSD, Reason: reason})
		} else {
			price = v
		}
	}
	return e.DisplayPrice(price, cfg)
}

// CalculateCart prices every line, adds weight-based freight and the flat
// per-order fees. An empty cart yields a zero-valued result.
func (e *Engine) CalculateCart(items []CartItem, cfg Config) CartPricing {
	if len(items) == 0 {
		return CartPricing{Lines: []Line{}}
	}
	cfg = sanitizeConfig(cfg, e.obs)
	return e.calculate(items, cfg)
}

// Analyze prices one unit of item and suggests the markup that would reach
// the minimum net margin, clamped to the adjustment limits.
func (e *Engine) Analyze(item Item, cfg Config) Analysis {
	cfg = sanitizeConfig(cfg, e.obs)
	cart := e.calculate([]CartItem{{PriceUSD: item.PriceUSD, Quantity: 1, WeightKg: item.WeightKg}}, cfg)
	line := cart.Lines[0]
	return Analysis{
		PriceUSD:            line.PriceUSD,
		DisplayPrice:        line.UnitPrice,
		WeightKg:            line.WeightKg,
		WeightImputed:       line.WeightImputed,
		PriceBreakdown:      cart.PriceBreakdown,
		FeePercent:          cfg.BaseFeePercent,
		SuggestedFeePercent: suggestedFee(decimal.NewFromFloat(line.PriceUSD), decimal.NewFromFloat(line.WeightKg), cfg).Round(4).InexactFloat64(),
	}
}

// calculate expects a sanitized config.
func (e *Engine) calculate(items []CartItem, cfg Config) CartPricing {
	res := CartPricing{Lines: make([]Line, 0, len(items))}

	subtotal := decimal.Zero
	baseCost := decimal.Zero
	weight := decimal.Zero
	for i, it := range items {
		price := e.sanitizeAmount("item.price_usd", i, it.PriceUSD)
		w := e.sanitizeAmount("item.weight_kg", i, it.WeightKg)
		qty := it.Quantity
		if qty < 0 {
			e.obs.Coerced(Coercion{Field: "item.quantity", Index: i, Value: float64(qty), Replacement: 0, Reason: ReasonNegative})
			qty = 0
		}

		imputed := w == 0
		if imputed {
			w = ImputedWeightKg
			res.ImputedWeightUsed = true
		}

		p := decimal.NewFromFloat(price)
		q := decimal.NewFromInt(int64(qty))
		unit := unitPrice(p, cfg).Round(2)
		lineTotal := unit.Mul(q)

		subtotal = subtotal.Add(lineTotal)
		baseCost = baseCost.Add(p.Mul(q))
		weight = weight.Add(decimal.NewFromFloat(w).Mul(q))

		res.Lines = append(res.Lines, Line{
			PriceUSD:      price,
			Quantity:      qty,
			WeightKg:      w,
			WeightImputed: imputed,
			UnitPrice:     e.money("unit_price", unit),
			LineTotal:     e.money("line_total", lineTotal),
		})
	}

	res.Subtotal = e.money("subtotal", subtotal)
	res.TotalWeightKg = e.finite("total_weight_kg", weight.Round(3).InexactFloat64())
	res.PriceBreakdown = e.breakdown(subtotal, baseCost, weight, cfg)
	res.BelowMinOrderTotal = subtotal.LessThan(decimal.NewFromFloat(cfg.MinOrderTotalUSD))
	return res
}

func (e *Engine) breakdown(subtotal, baseCost, weight decimal.Decimal, cfg Config) PriceBreakdown {
	freight := weight.Mul(decimal.NewFromFloat(cfg.ChargedFreightKg))
	aduana := decimal.NewFromFloat(cfg.ChargedAduana)
	local := decimal.NewFromFloat(cfg.ChargedLocal)
	total := subtotal.Add(freight).Add(aduana).Add(local)

	payment := total.Mul(decimal.NewFromFloat(cfg.PaymentCostPercent))
	realCost := baseCost.
		Add(weight.Mul(decimal.NewFromFloat(cfg.RealFreightKg))).
		Add(decimal.NewFromFloat(cfg.RealAduana)).
		Add(decimal.NewFromFloat(cfg.RealLocal))
	net := total.Sub(payment).Sub(realCost)

	netPct := decimal.Zero
	if total.IsPositive() {
		netPct = net.Div(total)
	}

	return PriceBreakdown{
		BaseCost:          e.money("base_cost", baseCost),
		Markup:            e.money("markup", subtotal.Sub(baseCost)),
		Freight:           e.money("freight", freight),
		Aduana:            e.money("aduana", aduana),
		Local:             e.money("local", local),
		PaymentProcessing: e.money("payment_processing", payment),
		Total:             e.money("total", total),
		NetMargin:         e.money("net_margin", net),
		NetMarginPercent:  e.finite("net_margin_percent", netPct.Round(4).InexactFloat64()),
		MeetsMinNetMargin: netPct.GreaterThanOrEqual(decimal.NewFromFloat(cfg.MinNetMarginPercent)),
	}
}

// suggestedFee solves total*(1-payment-minMargin) = realCost for the markup.
func suggestedFee(base, weight decimal.Decimal, cfg Config) decimal.Decimal {
	low := decimal.NewFromFloat(cfg.LimitAdjustLow)
	high := decimal.NewFromFloat(cfg.LimitAdjustHigh)
	if !base.IsPositive() {
		return clamp(decimal.NewFromFloat(cfg.BaseFeePercent), low, high)
	}

	keep := one.
		Sub(decimal.NewFromFloat(cfg.PaymentCostPercent)).
		Sub(decimal.NewFromFloat(cfg.MinNetMarginPercent))
	if !keep.IsPositive() {
		return high
	}

	realCost := base.
		Add(weight.Mul(decimal.NewFromFloat(cfg.RealFreightKg))).
		Add(decimal.NewFromFloat(cfg.RealAduana)).
		Add(decimal.NewFromFloat(cfg.RealLocal))
	fees := weight.Mul(decimal.NewFromFloat(cfg.ChargedFreightKg)).
		Add(decimal.NewFromFloat(cfg.ChargedAduana)).
		Add(decimal.NewFromFloat(cfg.ChargedLocal))

	target := realCost.Div(keep)
	fee := target.Sub(fees).Div(base).Sub(one)
	return clamp(fee, low, high)
}

func unitPrice(base decimal.Decimal, cfg Config) decimal.Decimal {
	return base.Mul(one.Add(decimal.NewFromFloat(cfg.BaseFeePercent)))
}

func clamp(v, low, high decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(v, low), high)
}

func (e *Engine) money(field string, d decimal.Decimal) float64 {
	return e.finite(field, d.Round(2).InexactFloat64())
}

// finite saturates results that overflow float64 and reports them.
func (e *Engine) finite(field string, v float64) float64 {
	if !math.IsInf(v, 0) && !math.IsNaN(v) {
		return v
	}
	repl := 0.0
	if math.IsInf(v, 0) {
		repl = math.Copysign(math.MaxFloat64, v)
	}
	e.obs.Coerced(Coercion{Field: "result." + field, Index: -1, Value: v, Replacement: repl, Reason: ReasonOutOfRange})
	return repl
}

func amountReason(v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return ReasonNotANumber
	case v < 0:
		return ReasonNegative
	case v > MaxAmount:
		return ReasonOutOfRange
	}
	return ""
}

func (e *Engine) sanitizeAmount(field string, index int, v float64) float64 {
	reason := amountReason(v)
	if reason == "" {
		return v
	}
	repl := 0.0
	if reason == ReasonOutOfRange {
		repl = MaxAmount
	}
	e.obs.Coerced(Coercion{Field: field, Index: index, Value: v, Replacement: repl, Reason: reason})
	return repl
}
