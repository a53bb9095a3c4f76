package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/config"
	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/internal/events"
	"github.com/spec-kit/tutor-bot/internal/repository"
	"github.com/spec-kit/tutor-bot/pkg/util/errorutil"
)

// QuotaService is the quota ledger: the only writer of tiers and usage counters.
type QuotaService struct {
	users      repository.UserRepository
	limits     config.TierLimits
	period     time.Duration
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// QuotaDependencies bundles what the ledger needs.
type QuotaDependencies struct {
	UserRepo   repository.UserRepository
	Limits     config.TierLimits
	Period     time.Duration
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewQuotaService constructs the ledger. A non-positive period never resets counters.
func NewQuotaService(deps QuotaDependencies) *QuotaService {
	s := &QuotaService{
		users:      deps.UserRepo,
		limits:     deps.Limits,
		period:     deps.Period,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		now:        deps.Clock,
	}
	if s.limits == nil {
		s.limits = config.DefaultTierLimits()
	}
	if s.dispatcher == nil {
		s.dispatcher = events.NopDispatcher()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Limit is tierLimit(tier, category).
func (s *QuotaService) Limit(tier domain.Tier, category domain.Category) int {
	return s.limits.Limit(tier, category)
}

// GetOrCreate returns the user, inserting a free-tier record on first contact and
// applying a pending period reset.
func (s *QuotaService) GetOrCreate(ctx context.Context, userID, username string) (*domain.User, error) {
	now := s.now()
	created, err := s.users.Ensure(ctx, userID, username, now)
	if err != nil {
		return nil, storageErr(err)
	}
	if created {
		s.publish(ctx, events.New(events.EventUserCreated, userID, now, nil))
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}

	reset, err := s.resetUser(ctx, user, now)
	if err != nil {
		return nil, err
	}
	if !reset {
		return user, nil
	}
	user, err = s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	return user, nil
}

// SetTier records a plan. Counters are left alone; only the limit they are compared
// against changes.
func (s *QuotaService) SetTier(ctx context.Context, userID string, tier domain.Tier) error {
	if !tier.Valid() {
		return errorutil.NewValidationError("unknown tier", map[string]any{"tier": string(tier)})
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if isNoRows(err) {
			return errorutil.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return storageErr(err)
	}
	if user.Tier == tier {
		return nil
	}
	if err := s.users.SetTier(ctx, userID, tier); err != nil {
		if isNoRows(err) {
			return errorutil.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return storageErr(err)
	}

	s.logger.Info("tier changed",
		zap.String("user_id", userID),
		zap.String("old_tier", string(user.Tier)),
		zap.String("new_tier", string(tier)))
	s.publish(ctx, events.New(events.EventTierChanged, userID, s.now(), events.TierChangedPayload{
		OldTier: user.Tier,
		NewTier: tier,
	}))
	return nil
}

// TryConsume grants one unit of category when the user is under the limit of their
// current tier. A denial is a result, not an error.
func (s *QuotaService) TryConsume(ctx context.Context, userID string, category domain.Category) (domain.ConsumeResult, error) {
	user, err := s.GetOrCreate(ctx, userID, "")
	if err != nil {
		return domain.ConsumeResult{}, err
	}
	return s.consume(ctx, user.ID, category)
}

// TryConsumeFor is TryConsume for a user already loaded through GetOrCreate in the same
// request. Only a reset that fell due since then costs an extra write.
func (s *QuotaService) TryConsumeFor(ctx context.Context, user *domain.User, category domain.Category) (domain.ConsumeResult, error) {
	if _, err := s.resetUser(ctx, user, s.now()); err != nil {
		return domain.ConsumeResult{}, err
	}
	return s.consume(ctx, user.ID, category)
}

// consume runs the atomic check-and-increment. Tier and counters are re-read inside it.
func (s *QuotaService) consume(ctx context.Context, userID string, category domain.Category) (domain.ConsumeResult, error) {
	result, err := s.users.Consume(ctx, userID, category, func(tier domain.Tier) int {
		return s.limits.Limit(tier, category)
	})
	if err != nil {
		return domain.ConsumeResult{}, storageErr(err)
	}

	eventType := events.EventQuotaDenied
	if result.Granted {
		eventType = events.EventQuotaGranted
	}
	s.publish(ctx, events.New(eventType, userID, s.now(), events.QuotaPayload{
		Category: category,
		Tier:     result.Tier,
		Used:     result.Used,
		Limit:    result.Limit,
	}))
	return result, nil
}

// ResetIfPeriodElapsed zeroes the counters when the period of userID has ended and
// reports whether this call did it. A second call right after is a no-op.
func (s *QuotaService) ResetIfPeriodElapsed(ctx context.Context, userID string, now time.Time) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if isNoRows(err) {
			return false, errorutil.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return false, storageErr(err)
	}
	return s.resetUser(ctx, user, now)
}

func (s *QuotaService) resetUser(ctx context.Context, user *domain.User, now time.Time) (bool, error) {
	next, due := s.nextAnchor(user.PeriodAnchor, now)
	if !due {
		return false, nil
	}
	ok, err := s.users.ResetPeriod(ctx, user.ID, user.PeriodAnchor, next)
	if err != nil {
		return false, storageErr(err)
	}
	if !ok {
		// Another request reset it first.
		return false, nil
	}

	s.logger.Debug("usage period reset",
		zap.String("user_id", user.ID),
		zap.Time("previous_anchor", user.PeriodAnchor),
		zap.Time("new_anchor", next))
	s.publish(ctx, events.New(events.EventPeriodReset, user.ID, now, events.PeriodResetPayload{
		PreviousAnchor: user.PeriodAnchor,
		NewAnchor:      next,
	}))
	return true, nil
}

// nextAnchor advances anchor by whole periods up to now.
func (s *QuotaService) nextAnchor(anchor, now time.Time) (time.Time, bool) {
	if s.period <= 0 {
		return anchor, false
	}
	elapsed := now.Sub(anchor)
	if elapsed < s.period {
		return anchor, false
	}
	periods := elapsed / s.period
	return anchor.Add(periods * s.period), true
}

// AllUserIDs snapshots every known user id.
func (s *QuotaService) AllUserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return ids, nil
}

// Status reports usage per category for the current period.
func (s *QuotaService) Status(ctx context.Context, userID string, categories []domain.Category) (domain.UsageReport, error) {
	user, err := s.GetOrCreate(ctx, userID, "")
	if err != nil {
		return domain.UsageReport{}, err
	}
	report := domain.UsageReport{UserID: user.ID, Tier: user.Tier}
	for _, cat := range categories {
		report.Categories = append(report.Categories, domain.CategoryUsage{
			Category: cat,
			Used:     user.Used(cat),
			Limit:    s.limits.Limit(user.Tier, cat),
		})
	}
	if s.period > 0 {
		report.ResetsAt = user.PeriodAnchor.Add(s.period)
	}
	return report, nil
}

// Lookup reads a user without creating one.
func (s *QuotaService) Lookup(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if isNoRows(err) {
			return nil, errorutil.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, storageErr(err)
	}
	return user, nil
}

func (s *QuotaService) publish(ctx context.Context, event events.Event) {
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func storageErr(err error) error {
	var domainErr *errorutil.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return errorutil.NewStorageUnavailable(err)
}
