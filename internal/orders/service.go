package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/usashopbox/storefront/internal/catalog"
	"github.com/usashopbox/storefront/internal/pricing"
	"github.com/usashopbox/storefront/internal/settings"
)

// timeLayout is fixed width so created_at sorts lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Recorder receives order counters. Implemented by metrics.Recorder.
type Recorder interface {
	CartPriced(pricing.CartPricing)
	OrderPlaced()
}

type nopRecorder struct{}

func (nopRecorder) CartPriced(pricing.CartPricing) {}
func (nopRecorder) OrderPlaced()                   {}

type Service struct {
	db       *sql.DB
	products *catalog.Repository
	settings settings.Store
	engine   *pricing.Engine
	recorder Recorder
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewService(db *sql.DB, products *catalog.Repository, store settings.Store, engine *pricing.Engine, recorder Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		db:       db,
		products: products,
		settings: store,
		engine:   engine,
		recorder: recorder,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Quote resolves lines against the catalog and prices them with the current
// configuration. An empty cart yields a zero quote.
func (s *Service) Quote(ctx context.Context, lines []LineRequest) (Quote, error) {
	for i, l := range lines {
		if err := s.validate.Struct(l); err != nil {
			return Quote{}, fmt.Errorf("%w: line %d: %s", ErrInvalidOrder, i, err)
		}
	}

	items := make([]pricing.CartItem, 0, len(lines))
	quoted := make([]QuotedLine, 0, len(lines))
	for _, l := range lines {
		p, err := s.products.Get(ctx, l.ProductID)
		if errors.Is(err, catalog.ErrNotFound) || (err == nil && !p.Active) {
			return Quote{}, fmt.Errorf("%w: %s", ErrUnknownProduct, l.ProductID)
		}
		if err != nil {
			return Quote{}, err
		}

		price := p.PriceUSD
		ql := QuotedLine{ProductID: p.ID, Title: p.Title}
		if l.Attribute != "" || l.Value != "" {
			if v, ok := p.Variation(l.Attribute, l.Value); ok {
				ql.Attribute, ql.Value = v.Attribute, v.Value
				if v.Price != nil {
					price = *v.Price
				}
			}
		}
		items = append(items, pricing.CartItem{PriceUSD: price, Quantity: l.Quantity, WeightKg: p.WeightKg})
		quoted = append(quoted, ql)
	}

	cfg, err := s.settings.Current(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("load pricing config: %w", err)
	}

	res := s.engine.CalculateCart(items, cfg)
	for i := range quoted {
		quoted[i].Line = res.Lines[i]
	}
	s.recorder.CartPriced(res)
	return Quote{CartPricing: res, Lines: quoted}, nil
}

// Place quotes lines and stores the order in pending_payment with the quote
// as its pricing snapshot.
func (s *Service) Place(ctx context.Context, email string, lines []LineRequest) (Order, error) {
	email = strings.TrimSpace(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return Order{}, fmt.Errorf("%w: email is not valid", ErrInvalidOrder)
	}
	if len(lines) == 0 {
		return Order{}, fmt.Errorf("%w: no lines", ErrInvalidOrder)
	}

	q, err := s.Quote(ctx, lines)
	if err != nil {
		return Order{}, err
	}

	o := Order{
		ID:            uuid.NewString(),
		CreatedAt:     s.now().UTC(),
		CustomerEmail: email,
		Status:        StatusPendingPayment,
		Lines:         q.Lines,
		Totals:        q.CartPricing,
	}

	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return Order{}, fmt.Errorf("encode order lines: %w", err)
	}
	totalsJSON, err := json.Marshal(o.Totals)
	if err != nil {
		return Order{}, fmt.Errorf("encode order totals: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO orders (id, created_at, customer_email, status, lines_json, totals_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, o.ID, o.CreatedAt.Format(timeLayout), o.CustomerEmail, string(o.Status), string(linesJSON), string(totalsJSON))
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	o.CreatedAt, _ = time.Parse(timeLayout, o.CreatedAt.Format(timeLayout))
	s.recorder.OrderPlaced()
	s.logger.Info("order placed",
		zap.String("order_id", o.ID),
		zap.Int("lines", len(o.Lines)),
		zap.Float64("total", o.Totals.Total),
		zap.Bool("meets_min_net_margin", o.Totals.MeetsMinNetMargin),
	)
	return o, nil
}

// List returns orders newest first, filtered by an email or id substring.
func (s *Service) List(ctx context.Context, query string) ([]Summary, error) {
	query = strings.TrimSpace(query)
	search := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, customer_email, status, totals_json
		FROM orders
		WHERE (? = '' OR customer_email LIKE ? OR id LIKE ?)
		ORDER BY created_at DESC, id DESC
	`, query, search, search)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Summary, 0)
	for rows.Next() {
		var (
			item       Summary
			createdAt  string
			totalsJSON string
		)
		if err := rows.Scan(&item.ID, &createdAt, &item.CustomerEmail, &item.Status, &totalsJSON); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		item.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		item.Total = extractTotalFromJSON(totalsJSON)
		orders = append(orders, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// Get returns one order with its pricing snapshot.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	var (
		o                     Order
		createdAt             string
		linesJSON, totalsJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, customer_email, status, lines_json, totals_json
		FROM orders
		WHERE id = ?
	`, id).Scan(&o.ID, &createdAt, &o.CustomerEmail, &o.Status, &linesJSON, &totalsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", id, err)
	}

	o.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	if err := json.Unmarshal([]byte(linesJSON), &o.Lines); err != nil {
		return Order{}, fmt.Errorf("decode lines of order %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(totalsJSON), &o.Totals); err != nil {
		return Order{}, fmt.Errorf("decode totals of order %s: %w", id, err)
	}
	return o, nil
}

// extractTotalFromJSON reads the order total from a snapshot, accepting the
// older grand_total and final_total keys. Unreadable snapshots count as 0.
func extractTotalFromJSON(totalsJSON string) float64 {
	var values map[string]json.RawMessage
	if err := json.Unmarshal([]byte(totalsJSON), &values); err != nil {
		return 0
	}

	for _, key := range []string{"total", "grand_total", "final_total"} {
		raw, ok := values[key]
		if !ok {
			continue
		}
		var total float64
		if err := json.Unmarshal(raw, &total); err == nil {
			return total
		}
	}

	return 0
}
