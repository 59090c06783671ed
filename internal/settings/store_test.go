package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/usashopbox/storefront/internal/dbtest"
	"github.com/usashopbox/storefront/internal/pricing"
)

func ptr(v float64) *float64 { return &v }

func TestSQLStore_CurrentCreatesDefaults(t *testing.T) {
	database := dbtest.Open(t)
	store := NewSQLStore(database, zap.NewNop())

	cfg, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pricing.DefaultConfig(), cfg)

	var n int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM pricing_config`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLStore_NullColumnsFallBackToDefaults(t *testing.T) {
	database := dbtest.Open(t)
	_, err := database.Exec(`INSERT INTO pricing_config (id, base_fee_percent) VALUES ('default', 0.2)`)
	require.NoError(t, err)

	cfg, err := NewSQLStore(database, zap.NewNop()).Current(context.Background())
	require.NoError(t, err)

	want := pricing.DefaultConfig()
	want.BaseFeePercent = 0.2
	assert.Equal(t, want, cfg)
}

func TestSQLStore_UpdateMergesPatch(t *testing.T) {
	ctx := context.Background()
	store := NewSQLStore(dbtest.Open(t), zap.NewNop())

	got, err := store.Update(ctx, pricing.Patch{ChargedAduana: ptr(12), BaseFeePercent: ptr(0.15)})
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.ChargedAduana)
	assert.Equal(t, 0.15, got.BaseFeePercent)
	assert.Equal(t, pricing.DefaultConfig().ChargedLocal, got.ChargedLocal)

	again, err := store.Update(ctx, pricing.Patch{RealLocal: ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, 12.0, again.ChargedAduana)
	assert.Equal(t, 3.0, again.RealLocal)

	current, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, again, current)
}

func TestSQLStore_UpdateRejectsInvalidPatch(t *testing.T) {
	ctx := context.Background()
	store := NewSQLStore(dbtest.Open(t), zap.NewNop())

	cases := map[string]pricing.Patch{
		"negative amount":  {ChargedLocal: ptr(-1)},
		"ratio of one":     {BaseFeePercent: ptr(1)},
		"huge amount":      {ChargedFreightKg: ptr(1e308)},
		"inverted limits":  {LimitAdjustLow: ptr(0.3), LimitAdjustHigh: ptr(0.2)},
		"low above stored": {LimitAdjustLow: ptr(0.5)},
	}
	for name, patch := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := store.Update(ctx, patch)
			assert.ErrorIs(t, err, ErrInvalidPatch)
		})
	}

	cfg, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, pricing.DefaultConfig(), cfg)
}
