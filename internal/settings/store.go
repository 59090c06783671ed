// Package settings persists the single active pricing configuration.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/usashopbox/storefront/internal/pricing"
)

// DefaultKey identifies the active configuration row.
const DefaultKey = "default"

// ErrInvalidPatch is returned when a patch fails validation.
var ErrInvalidPatch = errors.New("invalid pricing config patch")

// Store reads and updates the active pricing configuration.
type Store interface {
	Current(ctx context.Context) (pricing.Config, error)
	Update(ctx context.Context, patch pricing.Patch) (pricing.Config, error)
}

// SQLStore keeps the configuration in the pricing_config table.
type SQLStore struct {
	db       *sql.DB
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSQLStore returns a store backed by db.
func NewSQLStore(db *sql.DB, logger *zap.Logger) *SQLStore {
	return &SQLStore{db: db, validate: validator.New(), logger: logger}
}

var columns = strings.Join(pricing.FieldNames(), ", ")

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnsureDefaults inserts the default row with the built-in baseline if it is
// missing. It reports whether a row was inserted.
func EnsureDefaults(ctx context.Context, q Querier) (bool, error) {
	names := pricing.FieldNames()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	args := []any{DefaultKey}
	for _, v := range pricing.DefaultConfig().Values() {
		args = append(args, v)
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO pricing_config (id, `+columns+`)
		VALUES (?, `+placeholders+`)
		ON CONFLICT(id) DO NOTHING
	`, args...)
	if err != nil {
		return false, fmt.Errorf("insert default pricing_config: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert default pricing_config: %w", err)
	}
	return affected > 0, nil
}

// Current returns the active configuration, creating it on first access.
func (s *SQLStore) Current(ctx context.Context) (pricing.Config, error) {
	if _, err := EnsureDefaults(ctx, s.db); err != nil {
		return pricing.Config{}, err
	}
	return read(ctx, s.db)
}

func read(ctx context.Context, q Querier) (pricing.Config, error) {
	var stored pricing.Patch
	targets := stored.Targets()
	dest := make([]any, len(targets))
	for i, t := range targets {
		dest[i] = t
	}

	err := q.QueryRowContext(ctx, `SELECT `+columns+` FROM pricing_config WHERE id = ?`, DefaultKey).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pricing.Config{}, fmt.Errorf("pricing_config %q not found", DefaultKey)
		}
		return pricing.Config{}, fmt.Errorf("query pricing_config: %w", err)
	}
	return pricing.Resolve(stored), nil
}

// Update validates patch, merges it over the stored configuration and writes
// the result. Concurrent updates are last-write-wins.
func (s *SQLStore) Update(ctx context.Context, patch pricing.Patch) (pricing.Config, error) {
	if err := s.validate.Struct(patch); err != nil {
		return pricing.Config{}, fmt.Errorf("%w: %s", ErrInvalidPatch, describe(err))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pricing.Config{}, fmt.Errorf("begin pricing_config update: %w", err)
	}
	defer tx.Rollback()

	if _, err := EnsureDefaults(ctx, tx); err != nil {
		return pricing.Config{}, err
	}
	current, err := read(ctx, tx)
	if err != nil {
		return pricing.Config{}, err
	}

	next := patch.Apply(current)
	if next.LimitAdjustLow > next.LimitAdjustHigh {
		return pricing.Config{}, fmt.Errorf("%w: limit_adjust_low must not exceed limit_adjust_high", ErrInvalidPatch)
	}

	sets := make([]string, 0, len(pricing.FieldNames()))
	for _, name := range pricing.FieldNames() {
		sets = append(sets, name+" = ?")
	}
	args := make([]any, 0, len(sets)+1)
	for _, v := range next.Values() {
		args = append(args, v)
	}
	args = append(args, DefaultKey)

	if _, err := tx.ExecContext(ctx, `
		UPDATE pricing_config
		SET `+strings.Join(sets, ", ")+`, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, args...); err != nil {
		return pricing.Config{}, fmt.Errorf("update pricing_config: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return pricing.Config{}, fmt.Errorf("commit pricing_config update: %w", err)
	}

	s.logger.Info("pricing config updated", zap.Any("config", next))
	return next, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
	}
	return strings.Join(parts, "; ")
}
