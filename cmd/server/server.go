package main

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/usashopbox/storefront/internal/catalog"
	"github.com/usashopbox/storefront/internal/logger"
	"github.com/usashopbox/storefront/internal/metrics"
	"github.com/usashopbox/storefront/internal/orders"
	"github.com/usashopbox/storefront/internal/pricing"
	"github.com/usashopbox/storefront/internal/settings"
)

type server struct {
	logger   *zap.Logger
	db       *sql.DB
	auth     *authService
	settings settings.Store
	engine   *pricing.Engine
	products *catalog.Repository
	catalog  *catalog.Service
	orders   *orders.Service
	metrics  *metrics.Recorder
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(s.logger))
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.handleListProducts)
		r.Get("/products/{id}", s.handleGetProduct)
		r.Post("/cart/pricing", s.handleCartPricing)
		r.Post("/orders", s.handlePlaceOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/settings", s.handleGetSettings)
			r.Patch("/settings", s.handlePatchSettings)
			r.Get("/pricing/preview", s.handlePricingPreview)
			r.Get("/products", s.handleAdminListProducts)
			r.Post("/products", s.handleAdminCreateProduct)
			r.Put("/products/{id}", s.handleAdminUpdateProduct)
			r.Delete("/products/{id}", s.handleAdminDeleteProduct)
			r.Get("/orders", s.handleAdminListOrders)
			r.Get("/orders/{id}", s.handleAdminGetOrder)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.auth.sessionEmail(r); !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.internalError(w, r, "database unavailable", err)
		return
	}
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
