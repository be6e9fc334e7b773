package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookpage/pkg/config"
)

type sweepConfig struct {
	GraceInterval time.Duration `env:"CFGTEST_GRACE_INTERVAL" envDefault:"15m"`
	Enabled       bool          `env:"CFGTEST_SWEEP_ENABLED" envDefault:"true"`
}

type stripeConfig struct {
	SecretKey string `env:"CFGTEST_STRIPE_KEY" envDefault:"sk_test_default"`
}

type cachedConfig struct {
	Value string `env:"CFGTEST_CACHED_VALUE" envDefault:"default"`
}

type requiredConfig struct {
	Secret string `env:"CFGTEST_REQUIRED_SECRET,required"`
}

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("CFGTEST_GRACE_INTERVAL")
	os.Unsetenv("CFGTEST_SWEEP_ENABLED")

	var cfg sweepConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 15*time.Minute, cfg.GraceInterval)
	assert.True(t, cfg.Enabled)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CFGTEST_STRIPE_KEY", "sk_test_123")

	var cfg stripeConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "sk_test_123", cfg.SecretKey)
}

func TestLoad_CachesPerType(t *testing.T) {
	t.Setenv("CFGTEST_CACHED_VALUE", "first")

	var first cachedConfig
	require.NoError(t, config.Load(&first))

	t.Setenv("CFGTEST_CACHED_VALUE", "second")

	var second cachedConfig
	require.NoError(t, config.Load(&second))
	assert.Equal(t, "first", second.Value)
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("CFGTEST_REQUIRED_SECRET")

	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)

	assert.Panics(t, func() { config.MustLoad(&cfg) })
}

func TestLoad_NilPointer(t *testing.T) {
	var cfg *stripeConfig
	assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
}
