package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultMinStake, cfg.MinStake)
	assert.Equal(t, DefaultMaxStake, cfg.MaxStake)
	assert.Equal(t, DefaultPlatformFeeBps, cfg.PlatformFeeBps)
	assert.Equal(t, 72*time.Hour, cfg.AcceptanceWindow)
	assert.Equal(t, 24*time.Hour, cfg.DisputeWindow)
	assert.Equal(t, 60*time.Second, cfg.SweepInterval)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MIN_STAKE", "500")
	t.Setenv("MAX_STAKE", "50000")
	t.Setenv("PLATFORM_FEE_BPS", "250")
	t.Setenv("DISPUTE_WINDOW", "48h")
	t.Setenv("MODERATORS", "mod_alice, mod_bob,,mod_carol")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(500), cfg.MinStake)
	assert.Equal(t, int64(50000), cfg.MaxStake)
	assert.Equal(t, 250, cfg.PlatformFeeBps)
	assert.Equal(t, 48*time.Hour, cfg.DisputeWindow)
	assert.Equal(t, []string{"mod_alice", "mod_bob", "mod_carol"}, cfg.Moderators)
}

func TestValidate_RejectsInvertedStakeBand(t *testing.T) {
	t.Setenv("MIN_STAKE", "1000")
	t.Setenv("MAX_STAKE", "100")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_STAKE")
}

func TestValidate_RejectsBadFee(t *testing.T) {
	t.Setenv("PLATFORM_FEE_BPS", "10000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PLATFORM_FEE_BPS")
}

func TestLoad_IgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("MIN_STAKE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultMinStake, cfg.MinStake)
}

func TestEnvHelpers(t *testing.T) {
	cfg := &Config{Env: "production"}
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
