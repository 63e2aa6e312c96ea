package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.Checkout.TaxRate.Equal(decimal.RequireFromString("0.08")))
	assert.True(t, cfg.Checkout.ShippingFee.Equal(decimal.NewFromInt(150)))
	assert.True(t, cfg.Checkout.FreeShippingAbove.Equal(decimal.NewFromInt(5000)))
	assert.False(t, cfg.Seed.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("CHECKOUT_TAX_RATE", "0.2")
	t.Setenv("SEED_DEFAULT_ACCOUNTS", "true")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.Checkout.TaxRate.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, cfg.Seed.Enabled)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestLoadRejectsNegativeTax(t *testing.T) {
	t.Setenv("CHECKOUT_TAX_RATE", "-0.1")

	_, err := Load()
	assert.Error(t, err)
}
