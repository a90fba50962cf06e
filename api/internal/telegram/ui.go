package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

const callbackMore = "captions_more"

func makeMoreKeyboard() tgbotapi.InlineKeyboardMarkup {
	btn := tgbotapi.NewInlineKeyboardButtonData("🔁 More captions", callbackMore)
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(btn))
}

const helpText = `Send me a short description and I'll reply with 5 social media captions.

Commands:
/engine - show the current engine
/engine gpt|gemini - switch engine for this chat
/history - recent prompts`
