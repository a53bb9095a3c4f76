package telegram

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	pollRetryDelay = 3 * time.Second

	// maxHandlers caps updates handled at once across all users.
	maxHandlers = 16
	// maxPendingPerUser caps the backlog of one user; the throttle normally keeps it far lower.
	maxPendingPerUser = 32
)

// Poller feeds updates from getUpdates to the bot.
type Poller struct {
	client  *Client
	bot     *Bot
	timeout int
	logger  *zap.Logger

	sem   *semaphore.Weighted
	mu    sync.Mutex
	lanes map[string][]Update // key present while a lane goroutine runs for that user
	wg    sync.WaitGroup
}

// NewPoller creates a long-polling loop with the given getUpdates timeout in seconds.
func NewPoller(client *Client, bot *Bot, timeoutSeconds int, logger *zap.Logger) *Poller {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &Poller{
		client:  client,
		bot:     bot,
		timeout: timeoutSeconds,
		logger:  logger,
		sem:     semaphore.NewWeighted(maxHandlers),
		lanes:   make(map[string][]Update),
	}
}

// Run polls until ctx is cancelled. Updates run concurrently across users and in arrival
// order for each user; a slow user never holds back the next getUpdates.
func (p *Poller) Run(ctx context.Context) error {
	defer p.wg.Wait()
	if err := p.client.DeleteWebhook(ctx); err != nil {
		p.logger.Warn("deleteWebhook failed", zap.Error(err))
	}
	p.logger.Info("telegram polling started")

	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			p.enqueue(ctx, u)
		}
	}
}

// enqueue appends u to its user's lane, starting the lane if it is idle.
func (p *Poller) enqueue(ctx context.Context, u Update) {
	in, ok := Convert(u)
	if !ok {
		return
	}
	key := in.Event.UserID

	p.mu.Lock()
	if pending, running := p.lanes[key]; running {
		if len(pending) >= maxPendingPerUser {
			p.mu.Unlock()
			p.logger.Warn("user backlog full, update dropped", zap.String("user_id", key), zap.Int64("update_id", u.UpdateID))
			return
		}
		p.lanes[key] = append(pending, u)
		p.mu.Unlock()
		return
	}
	p.lanes[key] = nil
	p.mu.Unlock()

	p.wg.Add(1)
	go p.drain(ctx, key, u)
}

// drain handles u and then the user's backlog, one update at a time.
func (p *Poller) drain(ctx context.Context, key string, u Update) {
	defer p.wg.Done()
	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.mu.Lock()
			delete(p.lanes, key)
			p.mu.Unlock()
			return
		}
		uctx, cancel := context.WithTimeout(ctx, handleTimeout)
		if err := p.bot.HandleUpdate(uctx, u); err != nil {
			p.logger.Warn("update delivery failed", zap.Int64("update_id", u.UpdateID), zap.Error(err))
		}
		cancel()
		p.sem.Release(1)

		p.mu.Lock()
		pending := p.lanes[key]
		if len(pending) == 0 {
			delete(p.lanes, key)
			p.mu.Unlock()
			return
		}
		u = pending[0]
		p.lanes[key] = pending[1:]
		p.mu.Unlock()
	}
}
