package domain

import (
	"fmt"
	"strings"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierElite Tier = "elite"
)

// Tiers lists every tier from cheapest to most capable.
var Tiers = []Tier{TierFree, TierPro, TierElite}

// ParseTier validates a tier label.
func ParseTier(raw string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", raw)
	}
	return t, nil
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t.Rank() >= 0
}

// Rank orders tiers; -1 for unknown values.
func (t Tier) Rank() int {
	for i, known := range Tiers {
		if t == known {
			return i
		}
	}
	return -1
}

// Title is the capitalized display name.
func (t Tier) Title() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// Category is a subject area of prompts.
type Category string

const (
	CategoryAI       Category = "ai"
	CategoryBusiness Category = "business"
	CategoryCrypto   Category = "crypto"
	// CategoryGeneral is the bucket for free-form chat.
	CategoryGeneral Category = "general"
)

// Title is the display name used in menus.
func (c Category) Title() string {
	switch c {
	case CategoryAI:
		return "AI"
	case "":
		return ""
	default:
		return strings.ToUpper(string(c[:1])) + string(c[1:])
	}
}

// Level is a difficulty grouping within a category.
type Level string

const (
	LevelStarter Level = "starter"
	LevelProfit  Level = "profit"
)

// Title is the capitalized display name.
func (l Level) Title() string {
	if l == "" {
		return ""
	}
	return strings.ToUpper(string(l[:1])) + string(l[1:])
}
