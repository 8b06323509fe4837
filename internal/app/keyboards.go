package app

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Кнопки главного меню.
const (
	btnNewSession      = "🎬 Новая сессия"
	btnPropose         = "📝 Предложить фильм"
	btnStatus          = "📋 Статус"
	btnStartVoting     = "🗳 Начать голосование"
	btnFinishVoting    = "🏁 Завершить голосование"
	btnRevote          = "🔄 Переголосование"
	btnRate            = "⭐ Оценить фильмы"
	btnCompleteSession = "✅ Завершить сессию"
	btnCancelSession   = "❌ Отменить сессию"
	btnLeaderboard     = "🏆 Лидерборд"
	btnSearch          = "🔍 Поиск"
	btnStats           = "📊 Статистика"
	btnHelp            = "❓ Помощь"

	btnCancel = "↩️ Отмена"
)

// mainMenuKeyboard — постоянная reply-клавиатура группы (3/3/3/3/1).
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnNewSession),
			tgbotapi.NewKeyboardButton(btnPropose),
			tgbotapi.NewKeyboardButton(btnStatus),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStartVoting),
			tgbotapi.NewKeyboardButton(btnFinishVoting),
			tgbotapi.NewKeyboardButton(btnRevote),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRate),
			tgbotapi.NewKeyboardButton(btnCompleteSession),
			tgbotapi.NewKeyboardButton(btnCancelSession),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnLeaderboard),
			tgbotapi.NewKeyboardButton(btnSearch),
			tgbotapi.NewKeyboardButton(btnStats),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

// cancelKeyboard — клавиатура пошаговых диалогов.
func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancel)),
	)
	kb.ResizeKeyboard = true
	return kb
}

// slotSelectionKeyboard — выбор слота. В callback зашивается id
// предложившего, чтобы кнопку не нажал кто-то другой.
func slotSelectionKeyboard(telegramUserID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📍 Слот 1", fmt.Sprintf("slot:1:%d", telegramUserID)),
			tgbotapi.NewInlineKeyboardButtonData("📍 Слот 2", fmt.Sprintf("slot:2:%d", telegramUserID)),
		),
	)
}

// ratingKeyboard — оценки 1-10, по пять кнопок в ряд.
func ratingKeyboard(movieID int64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	row := tgbotapi.NewInlineKeyboardRow()
	for rating := 1; rating <= 10; rating++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			strconv.Itoa(rating),
			fmt.Sprintf("rate:%d:%d", movieID, rating),
		))
		if len(row) == 5 {
			rows = append(rows, row)
			row = tgbotapi.NewInlineKeyboardRow()
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// leaderboardKeyboard — пагинация лидерборда (страницы с единицы для
// пользователя) плюс кнопка поиска.
func leaderboardKeyboard(page, pages int) tgbotapi.InlineKeyboardMarkup {
	var nav []tgbotapi.InlineKeyboardButton
	if page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", fmt.Sprintf("lb_page:%d", page-1)))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(
		fmt.Sprintf("• %d/%d •", page, pages),
		fmt.Sprintf("lb_page:%d", page),
	))
	if page < pages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Далее ▶️", fmt.Sprintf("lb_page:%d", page+1)))
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		nav,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔍 Поиск", "lb_search"),
		),
	)
}

// confirmationKeyboard — подтверждение админского действия.
func confirmationKeyboard(action string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Да", fmt.Sprintf("confirm:%s:yes", action)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Нет", fmt.Sprintf("confirm:%s:no", action)),
		),
	)
}
