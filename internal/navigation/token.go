// Package navigation defines the inbound events, outbound replies, menu tokens and
// per-user cursor used by the menu state machine.
package navigation

import (
	"strconv"
	"strings"

	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/pkg/util/errorutil"
)

// TokenKind tags a menu token.
type TokenKind string

const (
	KindMainMenu       TokenKind = "menu"
	KindPlans          TokenKind = "plans"
	KindPlanSelect     TokenKind = "plan"
	KindCategorySelect TokenKind = "cat"
	KindLevelSelect    TokenKind = "lvl"
	KindPromptSelect   TokenKind = "ask"
	KindBack           TokenKind = "back"
	KindUpgrade        TokenKind = "upgrade"
	KindMotivation     TokenKind = "motivation"
)

const sep = ":"

// MaxTokenBytes is the callback_data limit of a Telegram inline button.
const MaxTokenBytes = 64

// Token is the structured payload behind a menu button. Only the fields relevant to
// Kind are set.
type Token struct {
	Kind     TokenKind
	Tier     domain.Tier
	Category domain.Category
	Level    domain.Level
	Index    int
	Revision string
}

func PlanToken(tier domain.Tier) Token {
	return Token{Kind: KindPlanSelect, Tier: tier}
}

func CategoryToken(tier domain.Tier, category domain.Category) Token {
	return Token{Kind: KindCategorySelect, Tier: tier, Category: category}
}

func LevelToken(tier domain.Tier, category domain.Category, level domain.Level) Token {
	return Token{Kind: KindLevelSelect, Tier: tier, Category: category, Level: level}
}

// PromptToken pins the catalog revision the list was rendered from.
func PromptToken(tier domain.Tier, category domain.Category, level domain.Level, index int, revision string) Token {
	return Token{Kind: KindPromptSelect, Tier: tier, Category: category, Level: level, Index: index, Revision: revision}
}

// Encode renders the token as a compact opaque string (well under Telegram's 64 bytes
// for catalog-sized identifiers).
func (t Token) Encode() string {
	switch t.Kind {
	case KindPlanSelect:
		return join(t.Kind, string(t.Tier))
	case KindCategorySelect:
		return join(t.Kind, string(t.Tier), string(t.Category))
	case KindLevelSelect:
		return join(t.Kind, string(t.Tier), string(t.Category), string(t.Level))
	case KindPromptSelect:
		return join(t.Kind, string(t.Tier), string(t.Category), string(t.Level), strconv.Itoa(t.Index), t.Revision)
	default:
		return string(t.Kind)
	}
}

func join(kind TokenKind, fields ...string) string {
	return string(kind) + sep + strings.Join(fields, sep)
}

// Decode parses an opaque token. Anything malformed or stale is a NOT_FOUND error.
func Decode(raw string) (Token, error) {
	parts := strings.Split(strings.TrimSpace(raw), sep)
	kind := TokenKind(parts[0])
	fields := parts[1:]

	want := map[TokenKind]int{
		KindMainMenu:       0,
		KindPlans:          0,
		KindBack:           0,
		KindUpgrade:        0,
		KindMotivation:     0,
		KindPlanSelect:     1,
		KindCategorySelect: 2,
		KindLevelSelect:    3,
		KindPromptSelect:   5,
	}
	n, known := want[kind]
	if !known || len(fields) != n {
		return Token{}, notFound(raw)
	}
	for _, f := range fields {
		if f == "" {
			return Token{}, notFound(raw)
		}
	}

	tok := Token{Kind: kind}
	if n == 0 {
		return tok, nil
	}

	tier, err := domain.ParseTier(fields[0])
	if err != nil {
		return Token{}, notFound(raw)
	}
	tok.Tier = tier
	if n >= 2 {
		tok.Category = domain.Category(fields[1])
	}
	if n >= 3 {
		tok.Level = domain.Level(fields[2])
	}
	if n == 5 {
		idx, err := strconv.Atoi(fields[3])
		if err != nil || idx < 0 {
			return Token{}, notFound(raw)
		}
		tok.Index = idx
		tok.Revision = fields[4]
	}
	return tok, nil
}

func notFound(raw string) error {
	return errorutil.NewNotFound("menu option", map[string]any{"token": raw})
}
