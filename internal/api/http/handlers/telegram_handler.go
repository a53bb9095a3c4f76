package handlers

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tutor-bot/internal/telegram"
	apperrors "github.com/spec-kit/tutor-bot/pkg/util/errorutil"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateDispatcher queues an update for processing.
type UpdateDispatcher interface {
	Dispatch(u telegram.Update)
}

// TelegramHandler receives webhook updates.
type TelegramHandler struct {
	bot    UpdateDispatcher
	secret string
}

// NewTelegramHandler constructs handler. An empty secret accepts every caller.
func NewTelegramHandler(bot UpdateDispatcher, secret string) *TelegramHandler {
	return &TelegramHandler{bot: bot, secret: secret}
}

// Webhook handles POST /telegram/webhook. The update is processed after the response
// so Telegram is never kept waiting on a completion call.
func (h *TelegramHandler) Webhook(c *fiber.Ctx) error {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.Get(secretHeader)), []byte(h.secret)) != 1 {
		return apperrors.NewUnauthorized("invalid webhook secret")
	}

	var update telegram.Update
	if err := c.BodyParser(&update); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	h.bot.Dispatch(update)
	return c.JSON(fiber.Map{"ok": true})
}
