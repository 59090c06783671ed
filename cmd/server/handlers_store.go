package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/usashopbox/storefront/internal/catalog"
	"github.com/usashopbox/storefront/internal/orders"
)

type cartRequest struct {
	Lines []orders.LineRequest `json:"lines"`
}

type orderRequest struct {
	Email string               `json:"email"`
	Lines []orders.LineRequest `json:"lines"`
}

func (s *server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	products, err := s.catalog.ListPriced(r.Context(), query)
	if err != nil {
		s.internalError(w, r, "failed to load products", err)
		return
	}
	s.respond(w, r, http.StatusOK, products)
}

func (s *server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.catalog.GetPriced(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "failed to load product", err)
		return
	}
	s.respond(w, r, http.StatusOK, product)
}

func (s *server) handleCartPricing(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	quote, err := s.orders.Quote(r.Context(), req.Lines)
	if s.orderError(w, r, err) {
		return
	}
	s.respond(w, r, http.StatusOK, quote)
}

func (s *server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := s.orders.Place(r.Context(), req.Email, req.Lines)
	if s.orderError(w, r, err) {
		return
	}
	s.respond(w, r, http.StatusCreated, order)
}

// orderError writes the response for a failed quote or placement and reports
// whether err was non-nil.
func (s *server) orderError(w http.ResponseWriter, r *http.Request, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, orders.ErrInvalidOrder), errors.Is(err, orders.ErrUnknownProduct):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.internalError(w, r, "failed to price cart", err)
	}
	return true
}
