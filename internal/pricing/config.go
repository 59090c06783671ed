package pricing

// Config holds the fee and margin parameters every price is derived from.
// Ratio fields are fractions in [0, 1); amount fields are USD (or USD per kg).
//
// Every field is used as given, so the zero Config means no markup and no
// fees. Build partial configs with Resolve to fill unset fields with defaults.
type Config struct {
	ChargedAduana       float64 `json:"charged_aduana"`
	ChargedLocal        float64 `json:"charged_local"`
	ChargedFreightKg    float64 `json:"charged_freight_kg"`
	BaseFeePercent      float64 `json:"base_fee_percent"`
	RealAduana          float64 `json:"real_aduana"`
	RealLocal           float64 `json:"real_local"`
	RealFreightKg       float64 `json:"real_freight_kg"`
	PaymentCostPercent  float64 `json:"payment_cost_percent"`
	MinNetMarginPercent float64 `json:"min_net_margin_percent"`
	MinOrderTotalUSD    float64 `json:"min_order_total_usd"`
	LimitAdjustLow      float64 `json:"limit_adjust_low"`
	LimitAdjustHigh     float64 `json:"limit_adjust_high"`
}

// DefaultConfig returns the built-in baseline used when nothing is persisted
// or a persisted field is missing.
func DefaultConfig() Config {
	return Config{
		ChargedAduana:       10,
		ChargedLocal:        5,
		ChargedFreightKg:    15,
		BaseFeePercent:      0.10,
		RealAduana:          8,
		RealLocal:           4,
		RealFreightKg:       11,
		PaymentCostPercent:  0.06,
		MinNetMarginPercent: 0.08,
		MinOrderTotalUSD:    50,
		LimitAdjustLow:      0.05,
		LimitAdjustHigh:     0.35,
	}
}

// Patch is a partial Config. Nil fields keep the value they are applied over.
type Patch struct {
	ChargedAduana       *float64 `json:"charged_aduana,omitempty" validate:"omitempty,gte=0,lte=1000000"`
	ChargedLocal        *float64 `json:"charged_local,omitempty" validate:"omitempty,gte=0,lte=1000000"`
	ChargedFreightKg    *float64 `json:"charged_freight_kg,omitempty" validate:"omitempty,gte=0,lte=1000000"`
	BaseFeePercent      *float64 `json:"base_fee_percent,omitempty" validate:"omitempty,gte=0,lt=1"`
	RealAduana          *float64 `json:"real_aduana,omitempty" validate:"omitempty,gte=0,lte=1000000"`
	RealLocal           *float64 `json:"real_local,omitempty" validate:"omitempty,gte=0,lte=1000000"`
	RealFreightKg       *float64 `json:"real_freight_kg,omitempty" validate:"omitempty,gte=0,lte=1000000"`
	PaymentCostPercent  *float64 `json:"payment_cost_percent,omitempty" validate:"omitempty,gte=0,lt=1"`
	MinNetMarginPercent *float64 `json:"min_net_margin_percent,omitempty" validate:"omitempty,gte=0,lt=1"`
	MinOrderTotalUSD    *float64 `json:"min_order_total_usd,omitempty" validate:"omitempty,gte=0,lte=1000000"`
	LimitAdjustLow      *float64 `json:"limit_adjust_low,omitempty" validate:"omitempty,gte=0,lt=1"`
	LimitAdjustHigh     *float64 `json:"limit_adjust_high,omitempty" validate:"omitempty,gte=0,lt=1"`
}

// Apply merges the patch over cfg and returns the result. cfg is not modified.
func (p Patch) Apply(cfg Config) Config {
	out := cfg
	dst := out.fields()
	for i, f := range p.fieldPtrs() {
		if *f != nil {
			*dst[i].value = **f
		}
	}
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	for _, f := range p.fieldPtrs() {
		if *f != nil {
			return false
		}
	}
	return true
}

// Resolve fills every field missing from p with the built-in default.
func Resolve(p Patch) Config {
	return p.Apply(DefaultConfig())
}

// PatchFrom returns a patch that sets every field of cfg.
func PatchFrom(cfg Config) Patch {
	var p Patch
	src := cfg.fields()
	for i, f := range p.fieldPtrs() {
		v := *src[i].value
		*f = &v
	}
	return p
}

type configField struct {
	name  string
	value *float64
	ratio bool
}

func (c *Config) fields() []configField {
	return []configField{
		{"charged_aduana", &c.ChargedAduana, false},
		{"charged_local", &c.ChargedLocal, false},
		{"charged_freight_kg", &c.ChargedFreightKg, false},
		{"base_fee_percent", &c.BaseFeePercent, true},
		{"real_aduana", &c.RealAduana, false},
		{"real_local", &c.RealLocal, false},
		{"real_freight_kg", &c.RealFreightKg, false},
		{"payment_cost_percent", &c.PaymentCostPercent, true},
		{"min_net_margin_percent", &c.MinNetMarginPercent, true},
		{"min_order_total_usd", &c.MinOrderTotalUSD, false},
		{"limit_adjust_low", &c.LimitAdjustLow, true},
		{"limit_adjust_high", &c.LimitAdjustHigh, true},
	}
}

// fieldPtrs must list fields in the same order as Config.fields.
func (p *Patch) fieldPtrs() []**float64 {
	return []**float64{
		&p.ChargedAduana,
		&p.ChargedLocal,
		&p.ChargedFreightKg,
		&p.BaseFeePercent,
		&p.RealAduana,
		&p.RealLocal,
		&p.RealFreightKg,
		&p.PaymentCostPercent,
		&p.MinNetMarginPercent,
		&p.MinOrderTotalUSD,
		&p.LimitAdjustLow,
		&p.LimitAdjustHigh,
	}
}

// Targets returns scan destinations for every field of the patch, in column
// order. Used by stores that read nullable columns straight into a Patch.
func (p *Patch) Targets() []**float64 {
	return p.fieldPtrs()
}

// Values returns every field of cfg in column order.
func (c Config) Values() []float64 {
	fs := c.fields()
	out := make([]float64, len(fs))
	for i, f := range fs {
		out[i] = *f.value
	}
	return out
}

// FieldNames returns the snake_case field names in column order.
func FieldNames() []string {
	var c Config
	fs := c.fields()
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.name
	}
	return out
}

// sanitizeConfig replaces invalid fields with their defaults and reports each
// replacement.
func sanitizeConfig(cfg Config, obs Observer) Config {
	def := DefaultConfig()
	defFields := def.fields()
	out := cfg
	for i, f := range out.fields() {
		v := *f.value
		reason := amountReason(v)
		if reason == "" && f.ratio && v >= 1 {
			reason = ReasonOutOfRange
		}
		if reason == "" {
			continue
		}
		repl := *defFields[i].value
		obs.Coerced(Coercion{Field: "config." + f.name, Index: -1, Value: v, Replacement: repl, Reason: reason})
		*f.value = repl
	}
	if out.LimitAdjustLow > out.LimitAdjustHigh {
		obs.Coerced(Coercion{
			Field:       "config.limit_adjust",
			Index:       -1,
			Value:       out.LimitAdjustLow,
			Replacement: def.LimitAdjustLow,
			Reason:      ReasonInvertedLimits,
		})
		out.LimitAdjustLow = def.LimitAdjustLow
		out.LimitAdjustHigh = def.LimitAdjustHigh
	}
	return out
}
