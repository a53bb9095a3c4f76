package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/catalog"
	"github.com/spec-kit/tutor-bot/internal/config"
	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/internal/events"
	"github.com/spec-kit/tutor-bot/internal/navigation"
	"github.com/spec-kit/tutor-bot/pkg/util/errorutil"
)

// Completer is the slice of the completion gateway the navigator needs.
type Completer interface {
	ModelFor(tier domain.Tier) string
	Complete(ctx context.Context, tier domain.Tier, category domain.Category, prompt string) (string, error)
}

// NavigatorService is the menu state machine. It turns one inbound event into one reply
// and never returns an error: every failure becomes a message plus a log entry.
type NavigatorService struct {
	quota      *QuotaService
	catalog    *catalog.Store
	completer  Completer
	cursors    navigation.CursorStore
	links      []navigation.Link
	dispatcher events.Dispatcher
	logger     *zap.Logger
	location   *time.Location
	now        func() time.Time
}

// NavigatorDependencies bundles the collaborators of the navigator.
type NavigatorDependencies struct {
	Quota      *QuotaService
	Catalog    *catalog.Store
	Completer  Completer
	Cursors    navigation.CursorStore
	Upgrade    []config.UpgradeLink
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Location decides which calendar day /motivation quotes. Defaults to UTC.
	Location *time.Location
	Clock    func() time.Time
}

// NewNavigatorService constructs the service.
func NewNavigatorService(deps NavigatorDependencies) *NavigatorService {
	n := &NavigatorService{
		quota:      deps.Quota,
		catalog:    deps.Catalog,
		completer:  deps.Completer,
		cursors:    deps.Cursors,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		location:   deps.Location,
		now:        deps.Clock,
	}
	for _, l := range deps.Upgrade {
		n.links = append(n.links, navigation.Link{Label: l.Label, URL: l.URL})
	}
	if n.cursors == nil {
		n.cursors = navigation.NewMemoryCursorStore(navigation.DefaultCursorTTL)
	}
	if n.dispatcher == nil {
		n.dispatcher = events.NopDispatcher()
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	if n.location == nil {
		n.location = time.UTC
	}
	if n.now == nil {
		n.now = time.Now
	}
	return n
}

const tagline = "💡 Ask Smart. Think Smart."

// Handle processes one event for one user.
func (n *NavigatorService) Handle(ctx context.Context, ev navigation.Event) navigation.Reply {
	if strings.TrimSpace(ev.UserID) == "" {
		return n.fail(ev, errorutil.NewValidationError("event without user", nil))
	}
	user, err := n.quota.GetOrCreate(ctx, ev.UserID, ev.Username)
	if err != nil {
		return n.fail(ev, err)
	}

	var reply navigation.Reply
	switch ev.Kind {
	case navigation.EventCommand:
		reply, err = n.handleCommand(ctx, user, ev)
	case navigation.EventMenuSelection:
		var tok navigation.Token
		tok, err = navigation.Decode(ev.Token)
		if err == nil {
			reply, err = n.handleToken(ctx, user, tok)
		}
	case navigation.EventFreeText:
		reply, err = n.ask(ctx, user, domain.CategoryGeneral, ev.Text, false)
	default:
		err = errorutil.NewValidationError("unknown event kind", map[string]any{"kind": int(ev.Kind)})
	}
	if err != nil {
		return n.fail(ev, err)
	}
	return reply
}

func (n *NavigatorService) handleCommand(ctx context.Context, user *domain.User, ev navigation.Event) (navigation.Reply, error) {
	switch strings.ToLower(strings.TrimPrefix(ev.Command, "/")) {
	case "start":
		n.setCursor(ctx, user.ID, navigation.Cursor{Depth: navigation.DepthRoot})
		return navigation.Single(n.mainMenu(false)), nil
	case "questions":
		n.setCursor(ctx, user.ID, navigation.Cursor{Depth: navigation.DepthRoot})
		return navigation.Single(n.plansMenu(false)), nil
	case "upgrade":
		return navigation.Single(n.upgradeMessage()), nil
	case "status":
		return n.status(ctx, user)
	case "motivation":
		return navigation.Single(n.motivation()), nil
	default:
		return navigation.Single(n.helpMessage()), nil
	}
}

func (n *NavigatorService) handleToken(ctx context.Context, user *domain.User, tok navigation.Token) (navigation.Reply, error) {
	switch tok.Kind {
	case navigation.KindMainMenu:
		n.setCursor(ctx, user.ID, navigation.Cursor{Depth: navigation.DepthRoot})
		return navigation.Single(n.mainMenu(true)), nil
	case navigation.KindPlans:
		n.setCursor(ctx, user.ID, navigation.Cursor{Depth: navigation.DepthRoot})
		return navigation.Single(n.plansMenu(true)), nil
	case navigation.KindUpgrade:
		return navigation.Single(n.upgradeMessage()), nil
	case navigation.KindMotivation:
		return navigation.Single(n.motivation()), nil
	case navigation.KindBack:
		return n.back(ctx, user)
	case navigation.KindPlanSelect:
		return n.selectPlan(ctx, user, tok.Tier)
	case navigation.KindCategorySelect:
		return n.selectCategory(ctx, user, tok.Tier, tok.Category)
	case navigation.KindLevelSelect:
		return n.selectLevel(ctx, user, tok.Tier, tok.Category, tok.Level)
	case navigation.KindPromptSelect:
		return n.selectPrompt(ctx, user, tok)
	}
	return navigation.Reply{}, errorutil.NewNotFound("menu option", map[string]any{"kind": string(tok.Kind)})
}

func (n *NavigatorService) selectPlan(ctx context.Context, user *domain.User, tier domain.Tier) (navigation.Reply, error) {
	if err := n.quota.SetTier(ctx, user.ID, tier); err != nil {
		return navigation.Reply{}, err
	}
	n.setCursor(ctx, user.ID, navigation.Cursor{Depth: navigation.DepthPlan, Tier: tier})
	return navigation.Single(n.categoriesMenu(tier)), nil
}

func (n *NavigatorService) selectCategory(ctx context.Context, user *domain.User, tier domain.Tier, category domain.Category) (navigation.Reply, error) {
	cat := n.catalog.Current()
	if !cat.HasCategory(category, tier) {
		if len(cat.Levels(category)) == 0 {
			return navigation.Reply{}, errorutil.NewNotFound("category", map[string]any{"category": string(category)})
		}
		return navigation.Single(n.locked(tier, category, "")), nil
	}
	n.setCursor(ctx, user.ID, navigation.Cursor{Depth: navigation.DepthCategory, Tier: tier, Category: category})
	return navigation.Single(n.levelsMenu(tier, category)), nil
}

func (n *NavigatorService) selectLevel(ctx context.Context, user *domain.User, tier domain.Tier, category domain.Category, level domain.Level) (navigation.Reply, error) {
	cat := n.catalog.Current()
	section, ok := cat.Section(category, level, tier)
	if !ok {
		if !hasLevel(cat, category, level) {
			return navigation.Reply{}, errorutil.NewNotFound("level", map[string]any{
				"category": string(category),
				"level":    string(level),
			})
		}
		return navigation.Single(n.locked(tier, category, level)), nil
	}
	if tier.Rank() > user.Tier.Rank() {
		return navigation.Single(n.locked(tier, category, level)), nil
	}
	n.setCursor(ctx, user.ID, navigation.Cursor{Depth: navigation.DepthLevel, Tier: tier, Category: category, Level: level})
	return navigation.Single(n.promptsMenu(cat, tier, category, level, section)), nil
}

func (n *NavigatorService) selectPrompt(ctx context.Context, user *domain.User, tok navigation.Token) (navigation.Reply, error) {
	cat := n.catalog.Current()
	if tok.Revision != cat.Revision() {
		return navigation.Reply{}, errorutil.NewNotFound("prompt", map[string]any{
			"revision": tok.Revision,
			"current":  cat.Revision(),
		})
	}
	section, ok := cat.Section(tok.Category, tok.Level, tok.Tier)
	if !ok || tok.Tier.Rank() > user.Tier.Rank() {
		return navigation.Single(n.locked(tok.Tier, tok.Category, tok.Level)), nil
	}
	prompt, ok := cat.Prompt(tok.Category, tok.Level, tok.Tier, tok.Index)
	if !ok {
		return navigation.Reply{}, errorutil.NewNotFound("prompt", map[string]any{
			"index": tok.Index,
			"size":  len(section.Prompts),
		})
	}
	return n.ask(ctx, user, tok.Category, prompt, true)
}

// ask spends one unit of category and, when granted, forwards prompt to the model of
// the user's current tier. The unit stays spent if the completion fails.
func (n *NavigatorService) ask(ctx context.Context, user *domain.User, category domain.Category, prompt string, guided bool) (navigation.Reply, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return navigation.Single(n.helpMessage()), nil
	}

	res, err := n.quota.TryConsumeFor(ctx, user, category)
	if err != nil {
		return navigation.Reply{}, err
	}
	if !res.Granted {
		return navigation.Reply{}, errorutil.NewQuotaExceeded(string(category), res.Used, res.Limit)
	}

	answer, err := n.completer.Complete(ctx, res.Tier, category, prompt)
	if err != nil {
		n.publish(ctx, events.New(events.EventCompletionFailed, user.ID, n.now(), events.CompletionFailedPayload{
			Category: category,
			Model:    n.completer.ModelFor(res.Tier),
			Reason:   err.Error(),
		}))
		return navigation.Reply{}, err
	}

	n.logger.Debug("answer delivered",
		zap.String("user_id", user.ID),
		zap.String("category", string(category)),
		zap.String("tier", string(res.Tier)),
		zap.Int("used", res.Used))
	if !guided {
		return navigation.Single(navigation.Message{Text: answer}), nil
	}
	return navigation.Single(navigation.Message{Text: "Q: " + prompt + "\n\n" + answer}), nil
}

func (n *NavigatorService) back(ctx context.Context, user *domain.User) (navigation.Reply, error) {
	cur, ok, err := n.cursors.Get(ctx, user.ID)
	if err != nil {
		n.logger.Warn("cursor lookup failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	if err != nil || !ok {
		cur = navigation.Cursor{Depth: navigation.DepthRoot}
	}

	switch cur.Depth {
	case navigation.DepthLevel:
		return n.selectCategory(ctx, user, cur.Tier, cur.Category)
	case navigation.DepthCategory:
		n.setCursor(ctx, user.ID, navigation.Cursor{Depth: navigation.DepthPlan, Tier: cur.Tier})
		return navigation.Single(n.categoriesMenu(cur.Tier)), nil
	case navigation.DepthPlan:
		n.setCursor(ctx, user.ID, navigation.Cursor{Depth: navigation.DepthRoot})
		return navigation.Single(n.plansMenu(true)), nil
	default:
		return navigation.Single(n.mainMenu(true)), nil
	}
}

func (n *NavigatorService) status(ctx context.Context, user *domain.User) (navigation.Reply, error) {
	categories := append(n.catalog.Current().Categories(), domain.CategoryGeneral)
	report, err := n.quota.Status(ctx, user.ID, categories)
	if err != nil {
		return navigation.Reply{}, err
	}

	var b strings.Builder
	b.WriteString("📊 Your Status\n\n")
	fmt.Fprintf(&b, "Plan: %s\n", report.Tier.Title())
	for _, line := range report.Categories {
		fmt.Fprintf(&b, "%s Questions Used: %d/%s\n", line.Category.Title(), line.Used, formatLimit(line.Limit))
	}
	if !report.ResetsAt.IsZero() {
		fmt.Fprintf(&b, "Resets: %s\n", report.ResetsAt.In(n.location).Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("\nUpgrade anytime via /upgrade\n")
	b.WriteString(tagline)
	return navigation.Single(navigation.Message{Text: b.String(), Links: n.links}), nil
}

func (n *NavigatorService) mainMenu(edit bool) navigation.Message {
	return navigation.Message{
		Text: "👋 Welcome to AI Tutor Pro Bot, your intelligent mentor for mastering AI, Business, and Crypto.\n\n" +
			"💬 You can chat freely with AI anytime, or explore smart questions below.\n\n" + tagline,
		Options: navigation.Column(
			navigation.Option{Label: "📚 Explore Questions", Token: navigation.Token{Kind: navigation.KindPlans}.Encode()},
			navigation.Option{Label: "📈 Upgrade", Token: navigation.Token{Kind: navigation.KindUpgrade}.Encode()},
			navigation.Option{Label: "💬 Motivation", Token: navigation.Token{Kind: navigation.KindMotivation}.Encode()},
		),
		Edit: edit,
	}
}

func (n *NavigatorService) plansMenu(edit bool) navigation.Message {
	labels := map[domain.Tier]string{
		domain.TierFree:  "🆓 Free",
		domain.TierPro:   "💼 Pro",
		domain.TierElite: "👑 Elite",
	}
	opts := make([]navigation.Option, 0, len(domain.Tiers)+1)
	for _, tier := range domain.Tiers {
		opts = append(opts, navigation.Option{Label: labels[tier], Token: navigation.PlanToken(tier).Encode()})
	}
	opts = append(opts, backOption())
	return navigation.Message{Text: "Choose your plan:", Options: navigation.Column(opts...), Edit: edit}
}

func (n *NavigatorService) categoriesMenu(tier domain.Tier) navigation.Message {
	cat := n.catalog.Current()
	var opts []navigation.Option
	for _, id := range cat.Categories() {
		if !cat.HasCategory(id, tier) {
			continue
		}
		opts = append(opts, navigation.Option{Label: cat.Title(id), Token: navigation.CategoryToken(tier, id).Encode()})
	}
	opts = append(opts, backOption())
	return navigation.Message{
		Text:    fmt.Sprintf("%s plan. Choose your path:", tier.Title()),
		Options: navigation.Column(opts...),
		Edit:    true,
	}
}

func (n *NavigatorService) levelsMenu(tier domain.Tier, category domain.Category) navigation.Message {
	cat := n.catalog.Current()
	var opts []navigation.Option
	for _, lvl := range cat.Levels(category) {
		opts = append(opts, navigation.Option{Label: lvl.Title, Token: navigation.LevelToken(tier, category, lvl.ID).Encode()})
	}
	opts = append(opts, backOption())

	text := fmt.Sprintf("Choose your %s level:", category.Title())
	if intro := cat.Intro(category); intro != "" {
		text = intro + "\n\n" + text
	}
	return navigation.Message{Text: text, Options: navigation.Column(opts...), Edit: true}
}

func (n *NavigatorService) promptsMenu(cat *catalog.Catalog, tier domain.Tier, category domain.Category, level domain.Level, section catalog.Section) navigation.Message {
	opts := make([]navigation.Option, 0, len(section.Prompts)+1)
	for i, p := range section.Prompts {
		opts = append(opts, navigation.Option{
			Label: p,
			Token: navigation.PromptToken(tier, category, level, i, cat.Revision()).Encode(),
		})
	}
	opts = append(opts, backOption())

	text := fmt.Sprintf("📚 %s (%s) Questions:", category.Title(), level.Title())
	if section.Notice != "" {
		text = section.Notice + "\n\n" + text
	}
	return navigation.Message{Text: text, Options: navigation.Column(opts...), Edit: true}
}

func (n *NavigatorService) locked(tier domain.Tier, category domain.Category, level domain.Level) navigation.Message {
	what := category.Title()
	if level != "" {
		what += " " + level.Title()
	}
	return navigation.Message{
		Text: fmt.Sprintf("🔒 %s is locked on the %s plan.\nUpgrade to unlock it and keep learning smarter!",
			what, tier.Title()),
		Options: navigation.Column(backOption()),
		Links:   n.links,
	}
}

func (n *NavigatorService) upgradeMessage() navigation.Message {
	return navigation.Message{
		Text: "🔥 Ready to unlock your next level?\n\n" +
			"Choose your plan below and let AI Tutor Pro Bot guide you to smarter systems, deeper learning, and greater freedom.\n\n" +
			tagline,
		Links: n.links,
	}
}

func (n *NavigatorService) helpMessage() navigation.Message {
	return navigation.Message{
		Text: "🧠 Need help?\n\n" +
			"Here’s how to use AI Tutor Pro Bot:\n" +
			"• /start – Welcome message\n" +
			"• /questions – Explore AI, Business, Crypto\n" +
			"• /upgrade – Unlock more power\n" +
			"• /status – Check your plan & usage\n" +
			"• /motivation – Today’s quote\n\n" +
			"You can also type your own questions anytime!\n\n" + tagline,
	}
}

func (n *NavigatorService) motivation() navigation.Message {
	return navigation.Message{Text: "✨ " + catalog.QuoteFor(n.now().In(n.location))}
}

func (n *NavigatorService) upsell(details map[string]any) navigation.Message {
	category, _ := details["category"].(string)
	limit, _ := details["limit"].(int)
	return navigation.Message{
		Text: fmt.Sprintf("⚠️ You reached your plan limit of %s questions in %s.\nUpgrade to continue learning smarter!",
			formatLimit(limit), domain.Category(category).Title()),
		Links: n.links,
	}
}

// fail converts an error into the single message the user sees and logs it at the
// severity of its kind.
func (n *NavigatorService) fail(ev navigation.Event, err error) navigation.Reply {
	de := errorutil.ToDomainError(err)
	fields := []zap.Field{zap.String("user_id", ev.UserID), zap.String("code", de.Code)}

	switch de.Code {
	case errorutil.CodeQuotaExceeded:
		n.logger.Debug("quota exceeded", append(fields, zap.Any("details", de.Details))...)
		return navigation.Single(n.upsell(de.Details))
	case errorutil.CodeNotFound:
		n.logger.Info("stale or unknown menu option", append(fields, zap.String("token", ev.Token), zap.Any("details", de.Details))...)
		return navigation.Single(navigation.Message{
			Text:    "⚠️ This menu is out of date. Please restart with /start.",
			Options: navigation.Column(navigation.Option{Label: "🏠 Main Menu", Token: navigation.Token{Kind: navigation.KindMainMenu}.Encode()}),
		})
	case errorutil.CodeCompletionFailed:
		n.logger.Error("completion failed", append(fields, zap.Error(err))...)
		return navigation.Single(navigation.Message{Text: "⚠️ Sorry, AI is busy right now. Please try again in a moment."})
	case errorutil.CodeValidationFailed:
		n.logger.Info("rejected event", append(fields, zap.Error(err))...)
		return navigation.Single(n.helpMessage())
	default:
		n.logger.Error("event failed", append(fields, zap.Error(err))...)
		return navigation.Single(navigation.Message{Text: "⚠️ Something went wrong on our side. Please try again shortly."})
	}
}

func (n *NavigatorService) setCursor(ctx context.Context, userID string, c navigation.Cursor) {
	if err := n.cursors.Set(ctx, userID, c); err != nil {
		n.logger.Warn("cursor update failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (n *NavigatorService) publish(ctx context.Context, event events.Event) {
	if err := n.dispatcher.Publish(ctx, event); err != nil {
		n.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func backOption() navigation.Option {
	return navigation.Option{Label: "⬅️ Back", Token: navigation.Token{Kind: navigation.KindBack}.Encode()}
}

func hasLevel(cat *catalog.Catalog, category domain.Category, level domain.Level) bool {
	for _, lvl := range cat.Levels(category) {
		if lvl.ID == level {
			return true
		}
	}
	return false
}

func formatLimit(limit int) string {
	if limit < 0 {
		return "∞"
	}
	return strconv.Itoa(limit)
}
