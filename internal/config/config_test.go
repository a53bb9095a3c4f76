package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/tutor-bot/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("USAGE_PERIOD", "")
	t.Setenv("BROADCAST_TIME", "")
	t.Setenv("BROADCAST_TIMEZONE", "UTC")
	t.Setenv("COMPLETION_PROVIDER", "")
	t.Setenv("TIER_LIMIT_FREE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.Quota.Period)
	assert.Equal(t, 15, cfg.Broadcast.Hour)
	assert.Equal(t, 0, cfg.Broadcast.Minute)
	assert.Equal(t, "openai", cfg.Completion.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Completion.Models.ModelFor(domain.TierFree))
	assert.Equal(t, 5, cfg.Quota.Limits.Limit(domain.TierFree, domain.CategoryAI))
	assert.Equal(t, 25, cfg.Quota.Limits.Limit(domain.TierElite, domain.CategoryGeneral))
	assert.Equal(t, "users.db", cfg.SQLite.Path)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BROADCAST_TIMEZONE", "UTC")
	t.Setenv("USAGE_PERIOD", "720h")
	t.Setenv("BROADCAST_TIME", "09:30")
	t.Setenv("COMPLETION_PROVIDER", "gemini")
	t.Setenv("MODEL_ELITE", "gemini-custom")
	t.Setenv("TIER_LIMIT_PRO", "10,crypto=2,general=unlimited")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 720*time.Hour, cfg.Quota.Period)
	assert.Equal(t, 9, cfg.Broadcast.Hour)
	assert.Equal(t, 30, cfg.Broadcast.Minute)
	assert.Equal(t, "gemini-2.0-flash-lite", cfg.Completion.Models.ModelFor(domain.TierFree))
	assert.Equal(t, "gemini-custom", cfg.Completion.Models.ModelFor(domain.TierElite))
	assert.Equal(t, 10, cfg.Quota.Limits.Limit(domain.TierPro, domain.CategoryAI))
	assert.Equal(t, 2, cfg.Quota.Limits.Limit(domain.TierPro, domain.CategoryCrypto))
	assert.Equal(t, Unlimited, cfg.Quota.Limits.Limit(domain.TierPro, domain.CategoryGeneral))
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("BROADCAST_TIMEZONE", "UTC")

	t.Run("period", func(t *testing.T) {
		t.Setenv("USAGE_PERIOD", "daily")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("time of day", func(t *testing.T) {
		t.Setenv("BROADCAST_TIME", "25:00")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("tier limit", func(t *testing.T) {
		t.Setenv("TIER_LIMIT_FREE", "5,ai")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestTierLimitsUnknownTierFallsBackToFree(t *testing.T) {
	limits := DefaultTierLimits()
	assert.Equal(t, 5, limits.Limit(domain.Tier("legacy"), domain.CategoryAI))
}

func TestUpgradeLinksSkipsEmpty(t *testing.T) {
	links := UpgradeConfig{ProMonthlyURL: "https://pay.example/pro", EliteYearlyURL: "https://pay.example/elite"}.Links()
	require.Len(t, links, 2)
	assert.Equal(t, "https://pay.example/pro", links[0].URL)
	assert.Equal(t, "https://pay.example/elite", links[1].URL)
}
