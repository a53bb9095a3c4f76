package telegram

import (
	"strconv"
	"strings"

	"github.com/spec-kit/tutor-bot/internal/navigation"
)

// Incoming is an update reduced to what the engine and the reply path need.
type Incoming struct {
	Event      navigation.Event
	ChatID     int64
	MessageID  int64
	CallbackID string
}

// Convert maps an update to an engine event. Updates the bot ignores (bots, empty
// messages, unknown kinds) return false.
func Convert(u Update) (Incoming, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From.IsBot {
			return Incoming{}, false
		}
		in := Incoming{
			Event: navigation.Event{
				Kind:     navigation.EventMenuSelection,
				UserID:   strconv.FormatInt(q.From.ID, 10),
				Username: q.From.Username,
				Token:    q.Data,
			},
			ChatID:     q.From.ID,
			CallbackID: q.ID,
		}
		if q.Message != nil {
			in.ChatID = q.Message.Chat.ID
			in.MessageID = q.Message.MessageID
		}
		return in, true

	case u.Message != nil:
		m := u.Message
		text := strings.TrimSpace(m.Text)
		if m.From == nil || m.From.IsBot || text == "" {
			return Incoming{}, false
		}
		ev := navigation.Event{
			UserID:   strconv.FormatInt(m.From.ID, 10),
			Username: m.From.Username,
		}
		if cmd, args, ok := parseCommand(text); ok {
			ev.Kind = navigation.EventCommand
			ev.Command = cmd
			ev.Args = args
		} else {
			ev.Kind = navigation.EventFreeText
			ev.Text = text
		}
		return Incoming{Event: ev, ChatID: m.Chat.ID, MessageID: m.MessageID}, true
	}
	return Incoming{}, false
}

// parseCommand splits "/start@tutor_bot payload" into "start" and "payload".
func parseCommand(text string) (string, string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	name, _, _ := strings.Cut(head, "@")
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), strings.TrimSpace(args), true
}

// Markup renders menu options and links as an inline keyboard, links last.
func Markup(msg navigation.Message) *InlineKeyboardMarkup {
	if len(msg.Options) == 0 && len(msg.Links) == 0 {
		return nil
	}
	rows := make([][]InlineKeyboardButton, 0, len(msg.Options)+len(msg.Links))
	for _, row := range msg.Options {
		buttons := make([]InlineKeyboardButton, 0, len(row))
		for _, opt := range row {
			buttons = append(buttons, InlineKeyboardButton{Text: opt.Label, CallbackData: opt.Token})
		}
		rows = append(rows, buttons)
	}
	for _, link := range msg.Links {
		rows = append(rows, []InlineKeyboardButton{{Text: link.Label, URL: link.URL}})
	}
	return &InlineKeyboardMarkup{InlineKeyboard: rows}
}
