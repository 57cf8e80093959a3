package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/korjavin/quizbot/quiz"
)

const keyboardRowSize = 2

// Send renders a quiz prompt as a Telegram message; options become a reply keyboard
func (b *Bot) Send(_ context.Context, chatID int64, p quiz.Prompt) error {
	msg := tgbotapi.NewMessage(chatID, p.Text)

	switch {
	case len(p.Options) > 0:
		msg.ReplyMarkup = makeKeyboard(p.Options, keyboardRowSize)
	case p.RemoveKeyboard:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}

	_, err := b.api.Send(msg)
	return err
}

// makeKeyboard lays the options out in rows of rowSize buttons, keeping their order
func makeKeyboard(options []string, rowSize int) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	for i := 0; i < len(options); i += rowSize {
		end := i + rowSize
		if end > len(options) {
			end = len(options)
		}

		var row []tgbotapi.KeyboardButton
		for _, o := range options[i:end] {
			row = append(row, tgbotapi.NewKeyboardButton(o))
		}
		rows = append(rows, row)
	}

	return tgbotapi.NewReplyKeyboard(rows...)
}
