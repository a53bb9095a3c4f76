package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/navigation"
	"github.com/spec-kit/tutor-bot/internal/observability"
)

// maxMessageLength is the Bot API limit for message text, in characters.
const maxMessageLength = 4096

// handleTimeout bounds one update end to end, completion call included.
const handleTimeout = 2 * time.Minute

// Handler is the menu engine.
type Handler interface {
	Handle(ctx context.Context, ev navigation.Event) navigation.Reply
}

// Bot runs updates through the engine and sends the replies back.
type Bot struct {
	client   *Client
	handler  Handler
	throttle Throttle
	logger   *zap.Logger
	metrics  *observability.Metrics
	wg       sync.WaitGroup
}

// NewBot wires the transport to the engine.
func NewBot(client *Client, handler Handler, throttle Throttle, logger *zap.Logger, metrics *observability.Metrics) *Bot {
	if throttle == nil {
		throttle = unlimited{}
	}
	return &Bot{client: client, handler: handler, throttle: throttle, logger: logger, metrics: metrics}
}

// Dispatch handles u in the background. Wait blocks until every dispatched update is done.
func (b *Bot) Dispatch(u Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		if err := b.HandleUpdate(ctx, u); err != nil {
			b.logger.Warn("update delivery failed", zap.Int64("update_id", u.UpdateID), zap.Error(err))
		}
	}()
}

// Wait blocks until dispatched updates finish.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// HandleUpdate processes one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, u Update) error {
	in, ok := Convert(u)
	if !ok {
		return nil
	}
	b.metrics.Inc("updates_received")

	if !b.throttle.Allow(ctx, in.Event.UserID) {
		b.metrics.Inc("updates_throttled")
		b.logger.Debug("update throttled", zap.String("user_id", in.Event.UserID))
		if in.CallbackID != "" {
			return b.client.AnswerCallbackQuery(ctx, in.CallbackID, "Slow down a little ⏳")
		}
		return nil
	}

	if in.CallbackID != "" {
		// Stops the button spinner; failure only affects cosmetics.
		if err := b.client.AnswerCallbackQuery(ctx, in.CallbackID, ""); err != nil {
			b.logger.Debug("answerCallbackQuery failed", zap.Error(err))
		}
	}
	if expectsAnswer(in.Event) {
		if err := b.client.SendChatAction(ctx, in.ChatID, "typing"); err != nil {
			b.logger.Debug("sendChatAction failed", zap.Error(err))
		}
	}

	reply := b.handler.Handle(ctx, in.Event)
	return b.deliver(ctx, in, reply)
}

func (b *Bot) deliver(ctx context.Context, in Incoming, reply navigation.Reply) error {
	var errs []error
	for _, msg := range reply.Messages {
		markup := Markup(msg)
		if msg.Edit && in.CallbackID != "" && in.MessageID != 0 && utf8.RuneCountInString(msg.Text) <= maxMessageLength {
			err := b.client.EditMessageText(ctx, EditMessageTextRequest{
				ChatID:      in.ChatID,
				MessageID:   in.MessageID,
				Text:        msg.Text,
				ReplyMarkup: markup,
			})
			if err == nil || isNotModified(err) {
				continue
			}
			b.logger.Debug("editMessageText failed, sending instead", zap.Error(err))
		}

		chunks := splitText(msg.Text, maxMessageLength)
		for i, chunk := range chunks {
			req := SendMessageRequest{ChatID: in.ChatID, Text: chunk}
			if i == len(chunks)-1 {
				req.ReplyMarkup = markup
			}
			if _, err := b.client.SendMessage(ctx, req); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}

func expectsAnswer(ev navigation.Event) bool {
	switch ev.Kind {
	case navigation.EventFreeText:
		return true
	case navigation.EventMenuSelection:
		return strings.HasPrefix(ev.Token, string(navigation.KindPromptSelect)+":")
	}
	return false
}

func isNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

// splitText cuts text into pieces of at most limit characters, preferring line breaks.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var out []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
