// Package metrics exposes storefront counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/usashopbox/storefront/internal/pricing"
)

// Recorder holds every storefront metric. It implements pricing.Observer and
// settings.CacheRecorder.
type Recorder struct {
	gatherer prometheus.Gatherer

	coercions    *prometheus.CounterVec
	cartsPriced  *prometheus.CounterVec
	ordersPlaced prometheus.Counter
	cacheLookups *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the storefront metrics on a fresh registry that also carries
// the Go and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the storefront metrics on reg.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	r := &Recorder{
		gatherer: gatherer,
		coercions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usashopbox_pricing_coercions_total",
			Help: "Pricing inputs replaced before computing, by field and reason.",
		}, []string{"field", "reason"}),
		cartsPriced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usashopbox_carts_priced_total",
			Help: "Carts priced, split by whether any line used the imputed weight.",
		}, []string{"imputed_weight"}),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usashopbox_orders_placed_total",
			Help: "Orders created in pending_payment.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usashopbox_settings_cache_lookups_total",
			Help: "Pricing settings cache lookups by result.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usashopbox_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(r.coercions, r.cartsPriced, r.ordersPlaced, r.cacheLookups, r.httpDuration)
	return r
}

// Coerced counts a pricing coercion.
func (r *Recorder) Coerced(c pricing.Coercion) {
	r.coercions.WithLabelValues(c.Field, c.Reason).Inc()
}

// CartPriced counts one priced cart.
func (r *Recorder) CartPriced(res pricing.CartPricing) {
	r.cartsPriced.WithLabelValues(strconv.FormatBool(res.ImputedWeightUsed)).Inc()
}

// OrderPlaced counts one created order.
func (r *Recorder) OrderPlaced() {
	r.ordersPlaced.Inc()
}

func (r *Recorder) SettingsCacheHit()  { r.cacheLookups.WithLabelValues("hit").Inc() }
func (r *Recorder) SettingsCacheMiss() { r.cacheLookups.WithLabelValues("miss").Inc() }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request latency labelled by the matched chi route.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.httpDuration.
			WithLabelValues(req.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
