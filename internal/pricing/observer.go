package pricing

import "go.uber.org/zap"

// Coercion reasons.
const (
	ReasonNotANumber     = "not_a_number"
	ReasonNegative       = "negative"
	ReasonOutOfRange     = "out_of_range"
	ReasonInvertedLimits = "inverted_limits"
)

// Coercion describes one value the engine replaced: an input before computing,
// or a result.* value that did not fit in a float64. Index is the cart line
// for item.* fields and -1 otherwise.
type Coercion struct {
	Field       string
	Index       int
	Value       float64
	Replacement float64
	Reason      string
}

// Observer receives coercion events. Implementations must be safe for
// concurrent use.
type Observer interface {
	Coerced(c Coercion)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Coercion)

func (f ObserverFunc) Coerced(c Coercion) { f(c) }

type nopObserver struct{}

func (nopObserver) Coerced(Coercion) {}

type multiObserver []Observer

func (m multiObserver) Coerced(c Coercion) {
	for _, o := range m {
		o.Coerced(c)
	}
}

// Observers fans events out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nopObserver{}
	case 1:
		return out[0]
	}
	return out
}

// LogObserver logs every coercion as a warning.
func LogObserver(logger *zap.Logger) Observer {
	return ObserverFunc(func(c Coercion) {
		fields := []zap.Field{
			zap.String("field", c.Field),
			zap.Float64("value", c.Value),
			zap.Float64("replacement", c.Replacement),
			zap.String("reason", c.Reason),
		}
		if c.Index >= 0 {
			fields = append(fields, zap.Int("line", c.Index))
		}
		logger.Warn("pricing input coerced", fields...)
	})
}
