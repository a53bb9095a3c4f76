package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Pro ")
	require.NoError(t, err)
	assert.Equal(t, TierPro, tier)

	_, err = ParseTier("platinum")
	assert.Error(t, err)
}

func TestTierRank(t *testing.T) {
	assert.Less(t, TierFree.Rank(), TierPro.Rank())
	assert.Less(t, TierPro.Rank(), TierElite.Rank())
	assert.Equal(t, -1, Tier("gold").Rank())
	assert.Equal(t, "Elite", TierElite.Title())
}

func TestCategoryTitle(t *testing.T) {
	assert.Equal(t, "AI", CategoryAI.Title())
	assert.Equal(t, "Crypto", CategoryCrypto.Title())
}

func TestUserUsedNilSafe(t *testing.T) {
	var u *User
	assert.Equal(t, 0, u.Used(CategoryAI))

	u = &User{Usage: map[Category]int{CategoryAI: 3}}
	assert.Equal(t, 3, u.Used(CategoryAI))
	assert.Equal(t, 0, u.Used(CategoryCrypto))
}
