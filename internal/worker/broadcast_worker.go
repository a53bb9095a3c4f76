package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/spec-kit/tutor-bot/internal/catalog"
	"github.com/spec-kit/tutor-bot/internal/config"
	"github.com/spec-kit/tutor-bot/internal/events"
)

const dayLayout = "2006-01-02"

// Recipients lists every user a broadcast goes to.
type Recipients interface {
	AllUserIDs(ctx context.Context) ([]string, error)
}

// Sender delivers one plain text message.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// BroadcastWorker sends the daily motivation quote to every known user, at most once
// per calendar day of the configured zone.
type BroadcastWorker struct {
	cfg        config.BroadcastConfig
	recipients Recipients
	sender     Sender
	marker     FiredMarker
	dispatcher events.Dispatcher
	logger     *zap.Logger
	limiter    *rate.Limiter
	now        func() time.Time

	mu       sync.Mutex
	firedDay string
}

// BroadcastDependencies bundles the collaborators of the worker.
type BroadcastDependencies struct {
	Config     config.BroadcastConfig
	Recipients Recipients
	Sender     Sender
	// Marker defaults to the in-process day key alone; pass the ledger store or Redis so a
	// restart inside the catch-up window stays quiet.
	Marker     FiredMarker
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewBroadcastWorker constructs the worker.
func NewBroadcastWorker(deps BroadcastDependencies) *BroadcastWorker {
	cfg := deps.Config
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.CatchUpWindow < time.Minute {
		cfg.CatchUpWindow = time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	w := &BroadcastWorker{
		cfg:        cfg,
		recipients: deps.Recipients,
		sender:     deps.Sender,
		marker:     deps.Marker,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		limiter:    rate.NewLimiter(limit, 1),
		now:        deps.Clock,
	}
	if w.marker == nil {
		w.marker = processMarker{}
	}
	if w.dispatcher == nil {
		w.dispatcher = events.NopDispatcher()
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *BroadcastWorker) Run(ctx context.Context) error {
	w.logger.Info("broadcast worker started",
		zap.Time("next_run", w.NextRun(w.now())),
		zap.Duration("poll_interval", w.cfg.PollInterval))

	for {
		now := w.now()
		wait := w.cfg.PollInterval
		if w.Tick(ctx, now) {
			// Resume polling only once the trigger minute is over.
			if pastMinute := now.Truncate(time.Minute).Add(time.Minute).Sub(now); pastMinute > wait {
				wait = pastMinute
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("broadcast worker stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Tick fires the broadcast when now falls inside today's window and the day is still
// unclaimed. It reports whether this call fired.
func (w *BroadcastWorker) Tick(ctx context.Context, now time.Time) bool {
	local := now.In(w.cfg.Location)
	trigger := w.triggerOn(local)
	if local.Before(trigger) || !local.Before(trigger.Add(w.cfg.CatchUpWindow)) {
		return false
	}
	day := local.Format(dayLayout)

	w.mu.Lock()
	if w.firedDay == day {
		w.mu.Unlock()
		return false
	}
	w.firedDay = day
	w.mu.Unlock()

	runID := uuid.NewString()
	claimed, err := w.marker.Claim(ctx, day, runID)
	if err != nil {
		w.logger.Warn("broadcast marker unavailable, firing on local state", zap.String("day", day), zap.Error(err))
		claimed = true
	}
	if !claimed {
		w.logger.Info("broadcast already sent today", zap.String("day", day))
		return false
	}

	w.fire(ctx, runID, day, local)
	return true
}

func (w *BroadcastWorker) fire(ctx context.Context, runID, day string, local time.Time) {
	ids, err := w.recipients.AllUserIDs(ctx)
	if err != nil {
		w.logger.Error("broadcast recipients unavailable", zap.String("day", day), zap.Error(err))
		return
	}

	text := "🌟 Daily Motivation:\n\n" + catalog.QuoteFor(local)
	var delivered, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := w.limiter.Wait(gctx); err != nil {
				failed.Add(1)
				return nil
			}
			if err := w.sender.SendText(gctx, id, text); err != nil {
				failed.Add(1)
				w.logger.Debug("broadcast delivery failed", zap.String("user_id", id), zap.Error(err))
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	payload := events.BroadcastSentPayload{
		RunID:      runID,
		Day:        day,
		Recipients: len(ids),
		Delivered:  int(delivered.Load()),
		Failed:     int(failed.Load()),
	}
	w.logger.Info("daily broadcast sent",
		zap.String("run_id", runID),
		zap.String("day", day),
		zap.Int("recipients", payload.Recipients),
		zap.Int("delivered", payload.Delivered),
		zap.Int("failed", payload.Failed))
	if err := w.dispatcher.Publish(ctx, events.New(events.EventBroadcastSent, "", w.now(), payload)); err != nil {
		w.logger.Warn("event handler failed", zap.Error(err))
	}
}

// NextRun is the next trigger time after now that has not fired yet.
func (w *BroadcastWorker) NextRun(now time.Time) time.Time {
	local := now.In(w.cfg.Location)
	trigger := w.triggerOn(local)

	w.mu.Lock()
	fired := w.firedDay == local.Format(dayLayout)
	w.mu.Unlock()

	if fired || !local.Before(trigger.Add(w.cfg.CatchUpWindow)) {
		return w.triggerOn(local.AddDate(0, 0, 1))
	}
	return trigger
}

func (w *BroadcastWorker) triggerOn(local time.Time) time.Time {
	y, m, d := local.Date()
	return time.Date(y, m, d, w.cfg.Hour, w.cfg.Minute, 0, 0, w.cfg.Location)
}
