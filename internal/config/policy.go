package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spec-kit/tutor-bot/internal/domain"
)

// Unlimited disables the ceiling for a tier/category.
const Unlimited = -1

// TierLimit is the allowance of one tier: a default and per-category overrides.
type TierLimit struct {
	Default     int
	PerCategory map[domain.Category]int
}

// TierLimits maps each tier to its allowance.
type TierLimits map[domain.Tier]TierLimit

// DefaultTierLimits mirrors the published plans: 5 / 15 / 25 questions per category.
func DefaultTierLimits() TierLimits {
	return TierLimits{
		domain.TierFree:  {Default: 5},
		domain.TierPro:   {Default: 15},
		domain.TierElite: {Default: 25},
	}
}

// Limit returns tierLimit(tier, category). Unknown tiers fall back to free.
func (l TierLimits) Limit(tier domain.Tier, category domain.Category) int {
	policy, ok := l[tier]
	if !ok {
		policy = l[domain.TierFree]
	}
	if v, ok := policy.PerCategory[category]; ok {
		return v
	}
	return policy.Default
}

// ParseTierLimit parses "5" or "5,ai=3,general=10". "unlimited" or a negative number lifts the cap.
func ParseTierLimit(raw string) (TierLimit, error) {
	var policy TierLimit
	parts := strings.Split(raw, ",")
	def, err := parseLimitValue(parts[0])
	if err != nil {
		return TierLimit{}, err
	}
	policy.Default = def

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return TierLimit{}, fmt.Errorf("expected category=limit, got %q", part)
		}
		v, err := parseLimitValue(value)
		if err != nil {
			return TierLimit{}, err
		}
		if policy.PerCategory == nil {
			policy.PerCategory = make(map[domain.Category]int)
		}
		policy.PerCategory[domain.Category(strings.ToLower(strings.TrimSpace(name)))] = v
	}
	return policy, nil
}

func parseLimitValue(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "unlimited") {
		return Unlimited, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if v < 0 {
		return Unlimited, nil
	}
	return v, nil
}

// ModelTable is modelFor(tier).
type ModelTable map[domain.Tier]string

// DefaultModels returns the per-tier model names for a provider.
func DefaultModels(provider string) ModelTable {
	if provider == "gemini" {
		return ModelTable{
			domain.TierFree:  "gemini-2.0-flash-lite",
			domain.TierPro:   "gemini-2.0-flash",
			domain.TierElite: "gemini-2.5-pro",
		}
	}
	return ModelTable{
		domain.TierFree:  "gpt-4o-mini",
		domain.TierPro:   "gpt-4-turbo",
		domain.TierElite: "gpt-4o",
	}
}

// ModelFor returns the model for tier, falling back to the free model.
func (m ModelTable) ModelFor(tier domain.Tier) string {
	if model, ok := m[tier]; ok && model != "" {
		return model
	}
	return m[domain.TierFree]
}

// UpgradeLink is a labeled payment URL.
type UpgradeLink struct {
	Label string
	URL   string
}

// Links returns the configured payment links, skipping empty ones.
func (u UpgradeConfig) Links() []UpgradeLink {
	all := []UpgradeLink{
		{Label: "💼 Pro Plan — Monthly", URL: u.ProMonthlyURL},
		{Label: "💼 Pro Plan — Yearly (20% Off)", URL: u.ProYearlyURL},
		{Label: "👑 Elite Plan — Monthly", URL: u.EliteMonthlyURL},
		{Label: "👑 Elite Plan — Yearly (20% Off)", URL: u.EliteYearlyURL},
	}
	links := make([]UpgradeLink, 0, len(all))
	for _, link := range all {
		if strings.TrimSpace(link.URL) != "" {
			links = append(links, link)
		}
	}
	return links
}
