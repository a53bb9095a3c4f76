package navigation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := []Token{
		{Kind: KindMainMenu},
		{Kind: KindPlans},
		{Kind: KindBack},
		{Kind: KindUpgrade},
		{Kind: KindMotivation},
		PlanToken(domain.TierElite),
		CategoryToken(domain.TierPro, domain.CategoryCrypto),
		LevelToken(domain.TierFree, domain.CategoryAI, domain.LevelStarter),
		PromptToken(domain.TierPro, domain.CategoryBusiness, domain.LevelProfit, 2, "1a2b3c4d"),
	}
	for _, tok := range tokens {
		encoded := tok.Encode()
		assert.LessOrEqual(t, len(encoded), 64, encoded)

		decoded, err := Decode(encoded)
		require.NoError(t, err, encoded)
		assert.Equal(t, tok, decoded)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"plan",
		"plan:gold",
		"cat:free",
		"cat:free:",
		"lvl:free:ai",
		"ask:free:ai:starter:x:rev",
		"ask:free:ai:starter:-1:rev",
		"ask:free:ai:starter:1",
		"free_ai_starter_1",
		"menu:extra",
	} {
		_, err := Decode(raw)
		require.Error(t, err, raw)
		assert.True(t, errorutil.IsCode(err, errorutil.CodeNotFound), raw)
	}
}

func TestMemoryCursorStoreExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryCursorStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, ok, err := store.Get(ctx, "u")
	require.NoError(t, err)
	assert.False(t, ok)

	want := Cursor{Depth: DepthCategory, Tier: domain.TierPro, Category: domain.CategoryAI}
	require.NoError(t, store.Set(ctx, "u", want))

	got, ok, err := store.Get(ctx, "u")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	now = now.Add(2 * time.Minute)
	_, ok, err = store.Get(ctx, "u")
	require.NoError(t, err)
	assert.False(t, ok)
}
