package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/usashopbox/storefront/internal/catalog"
	"github.com/usashopbox/storefront/internal/orders"
	"github.com/usashopbox/storefront/internal/pricing"
	"github.com/usashopbox/storefront/internal/settings"
)

func (s *server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.settings.Current(r.Context())
	if err != nil {
		s.internalError(w, r, "failed to load pricing config", err)
		return
	}
	s.respond(w, r, http.StatusOK, cfg)
}

func (s *server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch pricing.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := s.settings.Update(r.Context(), patch)
	if errors.Is(err, settings.ErrInvalidPatch) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, "failed to save pricing config", err)
		return
	}
	s.respond(w, r, http.StatusOK, cfg)
}

func (s *server) handlePricingPreview(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	price, err := parseNonNegativeFloat(query.Get("price_usd"), "price_usd")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var weight float64
	if raw := query.Get("weight_kg"); raw != "" {
		if weight, err = parseNonNegativeFloat(raw, "weight_kg"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	cfg, err := s.settings.Current(r.Context())
	if err != nil {
		s.internalError(w, r, "failed to load pricing config", err)
		return
	}
	s.respond(w, r, http.StatusOK, s.engine.Analyze(pricing.Item{PriceUSD: price, WeightKg: weight}, cfg))
}

func (s *server) handleAdminListProducts(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	products, err := s.products.List(r.Context(), query, false)
	if err != nil {
		s.internalError(w, r, "failed to load products", err)
		return
	}
	s.respond(w, r, http.StatusOK, products)
}

func (s *server) handleAdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.products.Create(r.Context(), p)
	if s.productError(w, r, err) {
		return
	}
	s.respond(w, r, http.StatusCreated, created)
}

func (s *server) handleAdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var p catalog.Product
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.products.Update(r.Context(), chi.URLParam(r, "id"), p)
	if s.productError(w, r, err) {
		return
	}
	s.respond(w, r, http.StatusOK, updated)
}

func (s *server) handleAdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	err := s.products.Delete(r.Context(), chi.URLParam(r, "id"))
	if s.productError(w, r, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) productError(w http.ResponseWriter, r *http.Request, err error) bool {
	var verr *catalog.ValidationError
	switch {
	case err == nil:
		return false
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	default:
		s.internalError(w, r, "failed to save product", err)
	}
	return true
}

func (s *server) handleAdminListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := s.orders.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.internalError(w, r, "failed to load orders", err)
		return
	}
	s.respond(w, r, http.StatusOK, list)
}

func (s *server) handleAdminGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "failed to load order", err)
		return
	}
	s.respond(w, r, http.StatusOK, order)
}
