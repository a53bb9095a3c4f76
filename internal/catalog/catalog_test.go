package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/internal/navigation"
)

const sampleCatalog = `
categories:
  - id: ai
    intro: "AI intro"
    levels:
      - id: starter
        tiers:
          free: ["q1", "q2"]
          pro:
            notice: "pro notice"
            prompts: ["p1"]
      - id: profit
        tiers:
          elite: ["e1"]
`

func TestDefaultCatalogShape(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, []domain.Category{domain.CategoryAI, domain.CategoryBusiness, domain.CategoryCrypto}, c.Categories())
	assert.NotEmpty(t, c.Intro(domain.CategoryAI))
	for _, cat := range c.Categories() {
		assert.True(t, c.HasCategory(cat, domain.TierFree), "free should see %s", cat)
		_, ok := c.Section(cat, domain.LevelStarter, domain.TierFree)
		assert.True(t, ok)
		_, ok = c.Section(cat, domain.LevelProfit, domain.TierFree)
		assert.False(t, ok, "profit is locked for free in %s", cat)
	}
	_, ok := c.Section(domain.CategoryCrypto, domain.LevelProfit, domain.TierPro)
	assert.False(t, ok, "crypto profit is elite only")
	_, ok = c.Section(domain.CategoryCrypto, domain.LevelProfit, domain.TierElite)
	assert.True(t, ok)
}

func TestParseAcceptsBothSectionForms(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	free, ok := c.Section(domain.CategoryAI, domain.LevelStarter, domain.TierFree)
	require.True(t, ok)
	assert.Equal(t, []string{"q1", "q2"}, free.Prompts)
	assert.Empty(t, free.Notice)

	pro, ok := c.Section(domain.CategoryAI, domain.LevelStarter, domain.TierPro)
	require.True(t, ok)
	assert.Equal(t, "pro notice", pro.Notice)

	levels := c.Levels(domain.CategoryAI)
	require.Len(t, levels, 2)
	assert.Equal(t, "Starter", levels[0].Title)
}

func TestParseAcceptsJSON(t *testing.T) {
	c, err := Parse([]byte(`{"categories":[{"id":"crypto","levels":[{"id":"starter","tiers":{"free":["x"]}}]}]}`))
	require.NoError(t, err)
	p, ok := c.Prompt(domain.CategoryCrypto, domain.LevelStarter, domain.TierFree, 0)
	assert.True(t, ok)
	assert.Equal(t, "x", p)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":        `categories: []`,
		"unknown tier": `{"categories":[{"id":"ai","levels":[{"id":"starter","tiers":{"gold":["x"]}}]}]}`,
		"colon id":     `{"categories":[{"id":"a:i"}]}`,
		"duplicate":    `{"categories":[{"id":"ai"},{"id":"ai"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsOversizedMenuTokens(t *testing.T) {
	long := `
categories:
  - id: artificial_intelligence_fundamentals
    levels:
      - id: advanced_profit_strategies
        tiers:
          elite: ["e1"]
`
	_, err := Parse([]byte(long))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit is 64")

	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	tok := navigation.PromptToken(domain.TierElite, domain.CategoryAI, domain.LevelProfit, 0, c.Revision()).Encode()
	assert.LessOrEqual(t, len(tok), navigation.MaxTokenBytes)
}

func TestStoreReloadKeepsPreviousOnOversizedTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))
	store, err := NewStore(path, zap.NewNop())
	require.NoError(t, err)
	rev := store.Current().Revision()

	oversized := `{"categories":[{"id":"` + strings.Repeat("x", 60) + `","levels":[{"id":"starter","tiers":{"free":["q"]}}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(oversized), 0o644))
	assert.Error(t, store.Reload())
	assert.Equal(t, rev, store.Current().Revision())
}

func TestPromptNeverIndexesOutOfBounds(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	for _, idx := range []int{-1, 2, 100} {
		_, ok := c.Prompt(domain.CategoryAI, domain.LevelStarter, domain.TierFree, idx)
		assert.False(t, ok, "index %d", idx)
	}
	_, ok := c.Prompt("history", domain.LevelStarter, domain.TierFree, 0)
	assert.False(t, ok)
	assert.False(t, c.HasCategory(domain.CategoryAI, "gold"))
	assert.True(t, c.HasCategory(domain.CategoryAI, domain.TierElite))
}

func TestRevisionTracksContent(t *testing.T) {
	a, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	b, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	c, err := Parse([]byte(sampleCatalog + "\n# edited\n"))
	require.NoError(t, err)

	assert.Equal(t, a.Revision(), b.Revision())
	assert.NotEqual(t, a.Revision(), c.Revision())
}

func TestStoreReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	store, err := NewStore(path, zap.NewNop())
	require.NoError(t, err)
	rev := store.Current().Revision()

	require.NoError(t, os.WriteFile(path, []byte("categories: ["), 0o644))
	assert.Error(t, store.Reload())
	assert.Equal(t, rev, store.Current().Revision())
}

func TestStoreWatchPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	store, err := NewStore(path, zap.NewNop())
	require.NoError(t, err)
	rev := store.Current().Revision()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, store.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog+"\n# v2\n"), 0o644))

	assert.Eventually(t, func() bool {
		return store.Current().Revision() != rev
	}, 5*time.Second, 50*time.Millisecond)
}

func TestEmbeddedStoreWatchIsNoop(t *testing.T) {
	store, err := NewStore("", zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, store.Watch(context.Background()))
	assert.NotEmpty(t, store.Current().Revision())
}
