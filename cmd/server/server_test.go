package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/usashopbox/storefront/internal/catalog"
	"github.com/usashopbox/storefront/internal/dbtest"
	"github.com/usashopbox/storefront/internal/metrics"
	"github.com/usashopbox/storefront/internal/orders"
	"github.com/usashopbox/storefront/internal/pricing"
	"github.com/usashopbox/storefront/internal/seed"
	"github.com/usashopbox/storefront/internal/settings"
)

const (
	testAdminEmail    = "admin@usashopbox.com"
	testAdminPassword = "s3cret"
)

type testEnv struct {
	srv     *server
	handler http.Handler
	product catalog.Product
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ctx := context.Background()
	database := dbtest.Open(t)

	_, err := seed.Run(ctx, database, seed.Config{AdminEmail: testAdminEmail, AdminPassword: testAdminPassword})
	require.NoError(t, err)

	products := catalog.NewRepository(database)
	price := 1099.0
	product, err := products.Create(ctx, catalog.Product{
		Title:    "iPhone 15 Pro",
		PriceUSD: 999,
		WeightKg: 0.5,
		Variations: []catalog.Variation{
			{Attribute: "Capacidad", Value: "256GB", Price: &price},
		},
		Active: true,
	})
	require.NoError(t, err)

	log := zap.NewNop()
	recorder := metrics.New()
	engine := pricing.NewEngine(recorder)
	store := settings.NewSQLStore(database, log)
	srv := &server{
		logger:   log,
		db:       database,
		auth:     newAuthService(database, []byte("test-secret"), false),
		settings: store,
		engine:   engine,
		products: products,
		catalog:  catalog.NewService(products, store, engine),
		orders:   orders.NewService(database, products, store, engine, recorder, log),
		metrics:  recorder,
	}
	return testEnv{srv: srv, handler: srv.routes(), product: product}
}

func (e testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/login", loginRequest{Email: testAdminEmail, Password: testAdminPassword})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestListProductsShowsDisplayPrices(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/products?q=iphone", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	views := decode[[]catalog.ProductView](t, rr)
	require.Len(t, views, 1)
	assert.Equal(t, 999.0, views[0].PriceUSD)
	assert.InDelta(t, 1098.9, views[0].DisplayPriceUSD, 1e-9)
	require.Len(t, views[0].Variations, 1)
	assert.InDelta(t, 1208.9, views[0].Variations[0].DisplayPriceUSD, 1e-9)

	rr = env.do(t, http.MethodGet, "/api/products?q=android", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/products/"+env.product.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, env.product.ID, decode[catalog.ProductView](t, rr).ID)

	rr = env.do(t, http.MethodGet, "/api/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"product not found"}`, rr.Body.String())
}

func TestCartPricing(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/cart/pricing", cartRequest{Lines: []orders.LineRequest{
		{ProductID: env.product.ID, Quantity: 1, Attribute: "Capacidad", Value: "256GB"},
	}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	quote := decode[orders.Quote](t, rr)
	require.Len(t, quote.Lines, 1)
	assert.InDelta(t, 1208.9, quote.Subtotal, 1e-9)
	assert.InDelta(t, 7.5, quote.Freight, 1e-9)
	assert.InDelta(t, 1208.9+7.5+15, quote.Total, 1e-9)
	assert.False(t, quote.ImputedWeightUsed)
}

func TestCartPricingRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	cases := map[string]any{
		"malformed":       `{"lines": [`,
		"unknown field":   `{"lines": [], "coupon": "X"}`,
		"unknown product": cartRequest{Lines: []orders.LineRequest{{ProductID: "nope", Quantity: 1}}},
		"zero quantity":   cartRequest{Lines: []orders.LineRequest{{ProductID: env.product.ID}}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/cart/pricing", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, decode[errorResponse](t, rr).Error)
		})
	}
}

func TestPlaceOrderAndAdminListing(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/orders", orderRequest{
		Email: "ana@example.com",
		Lines: []orders.LineRequest{{ProductID: env.product.ID, Quantity: 2}},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	placed := decode[orders.Order](t, rr)
	assert.Equal(t, orders.StatusPendingPayment, placed.Status)
	assert.InDelta(t, 2197.8+15+15, placed.Totals.Total, 1e-9)

	cookie := env.login(t)

	rr = env.do(t, http.MethodGet, "/api/admin/orders?q=ana", nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]orders.Summary](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, placed.ID, list[0].ID)
	assert.InDelta(t, placed.Totals.Total, list[0].Total, 1e-9)

	rr = env.do(t, http.MethodGet, "/api/admin/orders/"+placed.ID, nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, placed.ID, decode[orders.Order](t, rr).ID)

	rr = env.do(t, http.MethodGet, "/api/admin/orders/missing", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPlaceOrderRejectsInvalidEmail(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/orders", orderRequest{
		Email: "ana",
		Lines: []orders.LineRequest{{ProductID: env.product.ID, Quantity: 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/admin/settings"},
		{http.MethodPatch, "/api/admin/settings"},
		{http.MethodGet, "/api/admin/pricing/preview?price_usd=1"},
		{http.MethodGet, "/api/admin/products"},
		{http.MethodPost, "/api/admin/products"},
		{http.MethodDelete, "/api/admin/products/x"},
		{http.MethodGet, "/api/admin/orders"},
	} {
		rr := env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", tc.method, tc.path)
	}

	forged := &http.Cookie{Name: sessionCookieName, Value: "YWRtaW4.deadbeef"}
	rr := env.do(t, http.MethodGet, "/api/admin/settings", nil, forged)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/login", loginRequest{Email: testAdminEmail, Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Result().Cookies())

	rr = env.do(t, http.MethodPost, "/login", loginRequest{Email: "ghost@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestAdminSettings(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(t, http.MethodGet, "/api/admin/settings", nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, pricing.DefaultConfig(), decode[pricing.Config](t, rr))

	rr = env.do(t, http.MethodPatch, "/api/admin/settings", `{"base_fee_percent": 0.2, "charged_local": 6}`, cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[pricing.Config](t, rr)
	assert.Equal(t, 0.2, updated.BaseFeePercent)
	assert.Equal(t, 6.0, updated.ChargedLocal)
	assert.Equal(t, pricing.DefaultConfig().ChargedAduana, updated.ChargedAduana)

	rr = env.do(t, http.MethodGet, "/api/products/"+env.product.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 1198.8, decode[catalog.ProductView](t, rr).DisplayPriceUSD, 1e-9)

	for name, body := range map[string]string{
		"ratio of one":    `{"base_fee_percent": 1}`,
		"negative amount": `{"real_aduana": -1}`,
		"huge amount":     `{"charged_freight_kg": 1e308}`,
		"inverted limits": `{"limit_adjust_low": 0.3, "limit_adjust_high": 0.1}`,
		"unknown field":   `{"multiplier": 1.35}`,
	} {
		rr := env.do(t, http.MethodPatch, "/api/admin/settings", body, cookie)
		assert.Equal(t, http.StatusBadRequest, rr.Code, name)
	}
}

func TestAdminPricingPreview(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(t, http.MethodGet, "/api/admin/pricing/preview?price_usd=100&weight_kg=1", nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	a := decode[pricing.Analysis](t, rr)
	assert.InDelta(t, 110, a.DisplayPrice, 1e-9)
	assert.InDelta(t, 140, a.Total, 1e-9)
	assert.InDelta(t, 0.1302, a.SuggestedFeePercent, 1e-9)

	for _, path := range []string{
		"/api/admin/pricing/preview",
		"/api/admin/pricing/preview?price_usd=abc",
		"/api/admin/pricing/preview?price_usd=-1",
		"/api/admin/pricing/preview?price_usd=10&weight_kg=-2",
		"/api/admin/pricing/preview?price_usd=NaN",
		"/api/admin/pricing/preview?price_usd=Inf",
		"/api/admin/pricing/preview?price_usd=10&weight_kg=%2BInf",
	} {
		rr := env.do(t, http.MethodGet, path, nil, cookie)
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}

func TestAdminProductCRUD(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(t, http.MethodPost, "/api/admin/products", catalog.Product{Title: "MacBook Air", PriceUSD: 1199, WeightKg: 1.3}, cookie)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[catalog.Product](t, rr)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.Active)

	rr = env.do(t, http.MethodGet, "/api/admin/products?q=macbook", nil, cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]catalog.Product](t, rr), 1)

	rr = env.do(t, http.MethodGet, "/api/products/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "inactive products are hidden from the storefront")

	created.Active = true
	rr = env.do(t, http.MethodPut, "/api/admin/products/"+created.ID, created, cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[catalog.Product](t, rr).Active)

	rr = env.do(t, http.MethodPost, "/api/admin/products", catalog.Product{PriceUSD: 10}, cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPut, "/api/admin/products/missing", created, cookie)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/admin/products/"+created.ID, nil, cookie)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodDelete, "/api/admin/products/"+created.ID, nil, cookie)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOversizedAmountsNeverBlankTheCatalog(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.login(t)

	rr := env.do(t, http.MethodPost, "/api/admin/products", `{"title": "Yate", "price_usd": 1.7e308, "active": true}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	rr = env.do(t, http.MethodPost, "/api/admin/products", `{"title": "Ancla", "price_usd": 10, "weight_kg": 1e308, "active": true}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

	// Rows written before the bounds existed still have to render.
	_, err := env.srv.db.ExecContext(context.Background(),
		`UPDATE products SET price_usd = 1.7e308, weight_kg = 1e308 WHERE id = ?`, env.product.ID)
	require.NoError(t, err)

	rr = env.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	views := decode[[]catalog.ProductView](t, rr)
	require.Len(t, views, 1)
	assert.InDelta(t, 1.1e9, views[0].DisplayPriceUSD, 1e-3)

	rr = env.do(t, http.MethodPost, "/api/cart/pricing", cartRequest{Lines: []orders.LineRequest{
		{ProductID: env.product.ID, Quantity: 2},
	}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	quote := decode[orders.Quote](t, rr)
	assert.InDelta(t, 2.2e9, quote.Subtotal, 1e-3)

	rr = env.do(t, http.MethodPost, "/api/orders", orderRequest{
		Email: "ana@example.com",
		Lines: []orders.LineRequest{{ProductID: env.product.ID, Quantity: 2}},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.InDelta(t, quote.Total, decode[orders.Order](t, rr).Totals.Total, 1e-3)
}

func TestWriteJSONRejectsUnencodableValues(t *testing.T) {
	rr := httptest.NewRecorder()
	err := writeJSON(rr, http.StatusOK, map[string]float64{"total": math.Inf(1)})

	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"failed to encode response"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	require.NoError(t, writeJSON(rr, http.StatusCreated, map[string]float64{"total": 12.5}))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"total":12.5}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/cart/pricing", cartRequest{Lines: []orders.LineRequest{{ProductID: env.product.ID, Quantity: 1}}})

	rr := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `usashopbox_carts_priced_total{imputed_weight="false"} 1`)
}

func TestUnknownRouteIsJSON(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rr.Body.String())
}
