package seed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/usashopbox/storefront/internal/catalog"
	"github.com/usashopbox/storefront/internal/settings"
)

// Config contains the values required by startup seed.
type Config struct {
	AdminEmail    string
	AdminPassword string
	// SampleCatalog adds demo products when the catalog is empty.
	SampleCatalog bool
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
}

func sampleProducts() []catalog.Product {
	price := 1099.0
	return []catalog.Product{
		{
			Title:       "iPhone 15 Pro",
			Description: "Apple iPhone 15 Pro, liberado.",
			PriceUSD:    999,
			WeightKg:    0.45,
			Variations: []catalog.Variation{
				{Attribute: "Capacidad", Value: "128GB"},
				{Attribute: "Capacidad", Value: "256GB", Price: &price},
			},
			Active: true,
		},
		{
			Title:       "AirPods Pro (2da generación)",
			Description: "Auriculares inalámbricos con cancelación de ruido.",
			PriceUSD:    249,
			Active:      true,
		},
	}
}

// Run executes the startup seed in an idempotent way.
func Run(ctx context.Context, db *sql.DB, cfg Config) (Stats, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	stats := Stats{}

	if err := seedAdmin(ctx, tx, cfg.AdminEmail, cfg.AdminPassword, &stats); err != nil {
		return Stats{}, err
	}

	inserted, err := settings.EnsureDefaults(ctx, tx)
	if err != nil {
		return Stats{}, err
	}
	if inserted {
		stats.Inserts++
	}

	if cfg.SampleCatalog {
		if err := seedCatalog(ctx, tx, &stats); err != nil {
			return Stats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func seedAdmin(ctx context.Context, tx *sql.Tx, email, password string, stats *Stats) error {
	if email == "" || password == "" {
		return nil
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ? LIMIT 1)`, email).Scan(&exists); err != nil {
		return fmt.Errorf("check admin user existence: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES (?, ?)`, email, string(hash)); err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}
	stats.Inserts++
	return nil
}

func seedCatalog(ctx context.Context, tx *sql.Tx, stats *Stats) error {
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now()
	for _, p := range sampleProducts() {
		if _, err := catalog.Insert(ctx, tx, p, now); err != nil {
			return fmt.Errorf("insert sample product %q: %w", p.Title, err)
		}
		stats.Inserts++
	}
	return nil
}
