package notify

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender delivers notifications through the Telegram Bot API.
type TelegramSender struct {
	api *tgbotapi.BotAPI
}

// NewTelegramSender creates a sender backed by an authorized bot client.
func NewTelegramSender(api *tgbotapi.BotAPI) *TelegramSender {
	return &TelegramSender{api: api}
}

// Send delivers a plain-text message to the given chat.
func (s *TelegramSender) Send(chatID int64, text string) error {
	_, err := s.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
