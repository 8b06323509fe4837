package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/medalahonor/film-bot/internal/club"
	"github.com/medalahonor/film-bot/internal/domain"
	"github.com/medalahonor/film-bot/internal/kinopoisk"
	"github.com/medalahonor/film-bot/internal/pending"
)

func (a *App) handleGroupMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if msg.Text == btnCancel {
		a.cancelFlow(msg)
		return
	}

	// Незавершённый диалог перехватывает обычный текст.
	if step := a.steps.Get(userID, chatID); step != nil && !msg.IsCommand() {
		switch st := step.(type) {
		case pending.AwaitingProposalURL:
			a.handleProposalURL(ctx, msg, st)
			return
		case pending.AwaitingSearchQuery:
			a.handleSearchQuery(ctx, msg, st)
			return
		}
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			a.steps.Clear(userID, chatID)
			a.replyKB(chatID,
				"🎬 <b>Добро пожаловать в Киноклуб!</b>\n\n"+
					"Используйте кнопки меню внизу экрана для управления ботом.\n"+
					"Нажмите <b>❓ Помощь</b> для подробного описания.",
				mainMenuKeyboard())
		case "help":
			a.steps.Clear(userID, chatID)
			a.replyKB(chatID, helpText, mainMenuKeyboard())
		}
		return
	}

	switch msg.Text {
	case btnNewSession:
		a.steps.Clear(userID, chatID)
		a.handleNewSession(ctx, msg)
	case btnPropose:
		a.steps.Clear(userID, chatID)
		a.startProposeFlow(ctx, msg)
	case btnStatus:
		a.steps.Clear(userID, chatID)
		a.handleStatus(ctx, msg)
	case btnStartVoting:
		a.steps.Clear(userID, chatID)
		a.handleStartVoting(ctx, msg)
	case btnFinishVoting:
		a.steps.Clear(userID, chatID)
		a.handleFinishVoting(ctx, msg)
	case btnRevote:
		a.steps.Clear(userID, chatID)
		a.handleRevote(ctx, msg)
	case btnRate:
		a.steps.Clear(userID, chatID)
		a.handleRate(ctx, msg)
	case btnCompleteSession:
		a.steps.Clear(userID, chatID)
		a.handleCompleteSession(ctx, msg)
	case btnCancelSession:
		a.steps.Clear(userID, chatID)
		a.handleCancelSession(ctx, msg)
	case btnLeaderboard:
		a.steps.Clear(userID, chatID)
		a.handleLeaderboard(ctx, msg)
	case btnSearch:
		a.steps.Clear(userID, chatID)
		a.startSearchFlow(msg)
	case btnStats:
		a.steps.Clear(userID, chatID)
		a.handleStats(ctx, msg)
	case btnHelp:
		a.steps.Clear(userID, chatID)
		a.replyKB(chatID, helpText, mainMenuKeyboard())
	}
}

func (a *App) handleGroupCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	data := cq.Data
	switch {
	case strings.HasPrefix(data, "slot:"):
		a.handleSlotChoice(ctx, cq)
	case strings.HasPrefix(data, "rate:"):
		a.handleRatingButton(ctx, cq)
	case strings.HasPrefix(data, "lb_page:"):
		a.handleLeaderboardPage(ctx, cq)
	case data == "lb_search":
		a.answerCallback(cq, "")
		msgID := a.send(withKeyboard(cq.Message.Chat.ID, "🔍 Введите название фильма для поиска:", cancelKeyboard()))
		a.steps.Set(cq.From.ID, cq.Message.Chat.ID, pending.AwaitingSearchQuery{Prompt: pending.Prompt{MessageID: msgID}})
	default:
		a.answerCallback(cq, "")
	}
}

// cancelFlow прерывает текущий диалог и убирает подсказку бота.
func (a *App) cancelFlow(msg *tgbotapi.Message) {
	step := a.steps.Clear(msg.From.ID, msg.Chat.ID)
	a.deleteMessage(msg.Chat.ID, msg.MessageID)
	if step != nil && step.PromptMessageID() != 0 {
		a.deleteMessage(msg.Chat.ID, int(step.PromptMessageID()))
	}
	a.replyKB(msg.Chat.ID, "↩️ Действие отменено.", mainMenuKeyboard())
}

// ---------- Сессия ----------

func (a *App) handleNewSession(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	sess, err := a.svc.CreateSession(ctx, chatID, msg.Chat.Title, actorFrom(msg))
	if err != nil {
		if errors.Is(err, club.ErrSessionExists) {
			a.replyActiveSessionExists(ctx, chatID)
			return
		}
		a.log.WithError(err).Error("создание сессии")
		a.reply(chatID, "❌ Произошла ошибка при создании сессии. Попробуйте позже.")
		return
	}

	pinMsgID := a.send(tgbotapi.NewMessage(chatID, collectionText(nil)))
	if pinMsgID != 0 {
		if err := a.svc.AttachPinnedMessage(ctx, chatID, sess.ID, pinMsgID); err != nil {
			a.log.WithError(err).WithField("session", sess.ID).Error("привязка закреплённого сообщения")
		}
	}
}

func (a *App) replyActiveSessionExists(ctx context.Context, chatID int64) {
	text := "⚠️ Уже есть активная сессия!\n\n"
	if view, err := a.svc.Status(ctx, chatID); err == nil {
		text += fmt.Sprintf("Статус: <b>%s</b>\nСоздана: %s\n\n",
			view.Session.Status, view.Session.CreatedAt.Format("02.01.2006 15:04"))
	}
	text += fmt.Sprintf("Нажмите «%s» для просмотра деталей.", btnStatus)
	a.reply(chatID, text)
}

func (a *App) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	view, err := a.svc.Status(ctx, msg.Chat.ID)
	if err != nil {
		if errors.Is(err, club.ErrNoSession) {
			a.reply(msg.Chat.ID, fmt.Sprintf(
				"ℹ️ Нет активной сессии.\n\nНажмите «%s» для создания новой.", btnNewSession))
			return
		}
		a.log.WithError(err).Error("статус сессии")
		a.reply(msg.Chat.ID, "❌ Произошла ошибка при получении статуса.")
		return
	}
	a.reply(msg.Chat.ID, statusText(view))
}

func (a *App) handleCancelSession(ctx context.Context, msg *tgbotapi.Message) {
	if _, err := a.svc.CancelSession(ctx, msg.Chat.ID, actorFrom(msg)); err != nil {
		if errors.Is(err, club.ErrNoSession) {
			a.reply(msg.Chat.ID, "ℹ️ Нет активной сессии.")
			return
		}
		a.log.WithError(err).Error("отмена сессии")
		a.reply(msg.Chat.ID, "❌ Произошла ошибка при отмене сессии.")
		return
	}
	a.reply(msg.Chat.ID, "✅ Сессия отменена и помечена как завершенная.")
}

// ---------- Предложения ----------

func (a *App) startProposeFlow(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	a.deleteMessage(chatID, msg.MessageID)

	view, err := a.svc.Status(ctx, chatID)
	if err != nil || view.Session.Status != domain.StatusCollecting {
		a.replyKB(chatID, fmt.Sprintf(
			"⚠️ Нет активной сессии в статусе «сбор предложений».\nНажмите «%s» для создания новой.",
			btnNewSession), mainMenuKeyboard())
		return
	}

	msgID := a.send(withKeyboard(chatID, "🎬 Отправьте ссылку на фильм в Кинопоиске:", cancelKeyboard()))
	a.steps.Set(msg.From.ID, chatID, pending.AwaitingProposalURL{Prompt: pending.Prompt{MessageID: msgID}})
}

// handleProposalURL обрабатывает ссылку в диалоге предложения: карточка
// фильма заменяет подсказку, следом выбор слота.
func (a *App) handleProposalURL(ctx context.Context, msg *tgbotapi.Message, step pending.AwaitingProposalURL) {
	chatID := msg.Chat.ID
	a.deleteMessage(chatID, msg.MessageID)

	rawURL := strings.TrimSpace(msg.Text)
	if !kinopoisk.IsValidURL(rawURL) {
		a.editText(chatID, step.MessageID,
			"⚠️ Не найдена корректная ссылка на Кинопоиск.\n\n"+
				"Пример: https://www.kinopoisk.ru/film/301/\n\n"+
				"🎬 Отправьте ссылку на фильм в Кинопоиске:")
		return
	}

	info, err := a.svc.Propose(ctx, chatID, actorFrom(msg), rawURL)
	if err != nil {
		var dup *club.DuplicateError
		switch {
		case errors.As(err, &dup):
			a.editText(chatID, step.MessageID, duplicateText(dup))
		case kinopoisk.IsLookupError(err):
			a.editText(chatID, step.MessageID,
				fmt.Sprintf("❌ %s\n\n🎬 Отправьте ссылку на фильм в Кинопоиске:", err.Error()))
		case errors.Is(err, club.ErrNoSession), errors.Is(err, club.ErrWrongStatus):
			a.steps.Clear(msg.From.ID, chatID)
			a.deleteMessage(chatID, int(step.MessageID))
			a.replyKB(chatID, "⚠️ Сбор предложений уже закрыт.", mainMenuKeyboard())
		default:
			a.log.WithError(err).Error("поиск фильма")
			a.editText(chatID, step.MessageID,
				"❌ Произошла ошибка при обработке ссылки. Попробуйте позже.\n\n"+
					"🎬 Отправьте ссылку на фильм в Кинопоиске:")
		}
		return
	}

	proposer := actorFrom(msg)
	name := proposer.FirstName
	if proposer.Username != "" {
		name = "@" + proposer.Username
	}
	text := movieCard(info) + "\n\n👤 Предложил: " + html.EscapeString(name) + "\n\n<b>Выберите слот:</b>"
	a.editTextKB(chatID, step.MessageID, text, slotSelectionKeyboard(msg.From.ID))

	a.steps.Set(msg.From.ID, chatID, pending.AwaitingSlotChoice{
		Prompt: pending.Prompt{MessageID: step.MessageID},
		Draft:  info,
	})
}

// handleSlotChoice сохраняет фильм в выбранный слот. Кнопка доступна
// только тому, кто предложил фильм.
func (a *App) handleSlotChoice(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	parts := strings.Split(cq.Data, ":")
	if len(parts) != 3 {
		a.answerCallback(cq, "")
		return
	}
	slot, err := strconv.Atoi(parts[1])
	if err != nil {
		a.answerCallback(cq, "")
		return
	}
	allowedID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		a.answerCallback(cq, "")
		return
	}
	if cq.From.ID != allowedID {
		a.alertCallback(cq, "⛔ Эта кнопка не для вас — слот может выбрать только тот, кто предложил фильм.")
		return
	}

	chatID := cq.Message.Chat.ID
	step, ok := a.steps.Get(cq.From.ID, chatID).(pending.AwaitingSlotChoice)
	if !ok || step.Draft == nil {
		a.answerCallback(cq, "❌ Данные не найдены. Попробуйте ещё раз.")
		return
	}

	view, err := a.svc.ConfirmProposal(ctx, chatID, actorFromUser(cq.From), step.Draft, slot)
	if err != nil {
		var dup *club.DuplicateError
		if errors.As(err, &dup) {
			a.answerCallback(cq, "")
			a.editText(chatID, step.MessageID, duplicateText(dup))
			a.steps.Set(cq.From.ID, chatID, pending.AwaitingProposalURL{Prompt: pending.Prompt{MessageID: step.MessageID}})
			return
		}
		a.log.WithError(err).Error("подтверждение предложения")
		a.answerCallback(cq, "❌ Произошла ошибка")
		return
	}
	a.steps.Clear(cq.From.ID, chatID)

	a.editText(chatID, step.MessageID,
		movieCard(step.Draft)+fmt.Sprintf("\n\n✅ <b>Фильм добавлен в слот %d</b>", slot))
	a.answerCallback(cq, fmt.Sprintf("✅ Фильм добавлен в слот %d", slot))
	a.replyKB(chatID, "📝 Предложение принято!", mainMenuKeyboard())

	if view.Session.PinnedMessageID != 0 {
		a.editText(chatID, view.Session.PinnedMessageID, collectionText(view.Proposers))
	}
}

// ---------- Голосование ----------

func (a *App) handleStartVoting(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	start, err := a.svc.StartVoting(ctx, chatID, actorFrom(msg))
	if err != nil {
		switch {
		case errors.Is(err, club.ErrNoMovies):
			a.reply(chatID, "⚠️ Нет фильмов для голосования!\n\nПредложите хотя бы один фильм.")
		case errors.Is(err, club.ErrNoSession), errors.Is(err, club.ErrWrongStatus):
			a.reply(chatID, "⚠️ Нет активной сессии в статусе 'сбор предложений'.")
		default:
			a.log.WithError(err).Error("запуск голосования")
			a.reply(chatID, "❌ Произошла ошибка при запуске голосования.")
		}
		return
	}
	a.reply(chatID, votingStartText(start))
}

func (a *App) handleFinishVoting(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	result, err := a.svc.FinishVoting(ctx, chatID, actorFrom(msg))
	if err != nil {
		if errors.Is(err, club.ErrNoSession) || errors.Is(err, club.ErrWrongStatus) {
			a.reply(chatID, "⚠️ Нет активной сессии в статусе 'голосование'.")
			return
		}
		a.log.WithError(err).Error("завершение голосования")
		a.reply(chatID, "❌ Произошла ошибка при завершении голосования.")
		return
	}
	a.reply(chatID, votingResultText(result, a.svc.DisplayName))
}

func (a *App) handleRevote(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	start, err := a.svc.Revote(ctx, chatID, actorFrom(msg))
	if err != nil {
		switch {
		case errors.Is(err, club.ErrNoSession):
			a.reply(chatID, "⚠️ Нет активной сессии в статусе 'голосование'.")
		case errors.Is(err, club.ErrWrongStatus):
			if view, verr := a.svc.Status(ctx, chatID); verr == nil && view.Session.Status == domain.StatusVoting {
				a.replyKB(chatID, fmt.Sprintf(
					"ℹ️ Нет слотов, требующих переголосования.\nСначала нажмите «%s».",
					btnFinishVoting), mainMenuKeyboard())
			} else {
				a.reply(chatID, "⚠️ Нет активной сессии в статусе 'голосование'.")
			}
		default:
			a.log.WithError(err).Error("переголосование")
			a.reply(chatID, "❌ Произошла ошибка при запуске переголосования.")
		}
		return
	}
	a.reply(chatID, revoteText(start))
}

// ---------- Оценки ----------

// handleRate отправляет интерфейс оценок: сообщение с клавиатурой
// 1-10 на каждый фильм-победитель и общую таблицу оценок.
func (a *App) handleRate(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	start, err := a.svc.StartRating(ctx, chatID)
	if err != nil {
		switch {
		case errors.Is(err, club.ErrRatingStarted):
			a.reply(chatID, "ℹ️ Сообщения для оценки уже отправлены.\nИспользуйте кнопки с оценками выше ☝️")
		case errors.Is(err, club.ErrNoMovies):
			a.reply(chatID, "⚠️ Не определены фильмы-победители. Завершите голосование.")
		case errors.Is(err, club.ErrNoSession), errors.Is(err, club.ErrWrongStatus):
			a.reply(chatID, "ℹ️ Нет активной сессии в статусе 'выставление рейтингов'.\n\n"+
				"Рейтинги можно выставлять только после завершения голосования.")
		default:
			a.log.WithError(err).Error("интерфейс оценок")
			a.reply(chatID, "❌ Произошла ошибка при показе интерфейса оценки.")
		}
		return
	}

	slotMessages := make(map[int]int64, len(start.Winners))
	for _, movie := range start.Winners {
		msgID := a.send(withKeyboard(chatID, ratingPromptText(movie), ratingKeyboard(movie.ID)))
		if msgID != 0 {
			slotMessages[movie.Slot] = msgID
		}
	}

	board, err := a.svc.Scoreboard(ctx, start.Session.ID)
	if err != nil {
		a.log.WithError(err).Error("таблица оценок")
		return
	}
	scoreboardMsgID := a.send(tgbotapi.NewMessage(chatID, scoreboardText(board)))

	if err := a.svc.AttachRatingMessages(ctx, start.Session.ID, slotMessages, scoreboardMsgID); err != nil {
		a.log.WithError(err).WithField("session", start.Session.ID).Error("привязка сообщений оценок")
	}
}

// handleRatingButton принимает оценку с inline-кнопки и обновляет
// общую таблицу.
func (a *App) handleRatingButton(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	parts := strings.Split(cq.Data, ":")
	if len(parts) != 3 {
		a.answerCallback(cq, "")
		return
	}
	movieID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		a.answerCallback(cq, "")
		return
	}
	value, err := strconv.Atoi(parts[2])
	if err != nil {
		a.answerCallback(cq, "")
		return
	}

	chatID := cq.Message.Chat.ID
	sub, err := a.svc.SubmitRating(ctx, chatID, actorFromUser(cq.From), movieID, value)
	if err != nil {
		switch {
		case errors.Is(err, club.ErrBadRating):
			a.answerCallback(cq, "❌ Неверное значение рейтинга")
		case errors.Is(err, club.ErrNotWinner):
			a.answerCallback(cq, "❌ Фильм не найден в текущей сессии")
		case errors.Is(err, club.ErrNoSession), errors.Is(err, club.ErrWrongStatus):
			a.answerCallback(cq, "❌ Нет активной сессии для оценки")
		default:
			a.log.WithError(err).Error("оценка фильма")
			a.answerCallback(cq, "❌ Произошла ошибка")
		}
		return
	}

	action := "сохранена"
	if sub.Updated {
		action = "обновлена"
	}
	a.answerCallback(cq, fmt.Sprintf("✅ Оценка %s: %d/10\n%s%s",
		action, sub.Value, sub.Movie.Title, yearSuffix(sub.Movie.Year)))

	if sub.Session.ScoreboardMsgID != 0 {
		if board, err := a.svc.Scoreboard(ctx, sub.Session.ID); err == nil {
			a.editText(chatID, sub.Session.ScoreboardMsgID, scoreboardText(board))
		}
	}
}

func (a *App) handleCompleteSession(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	stats, err := a.svc.CompleteSession(ctx, chatID, actorFrom(msg))
	if err != nil {
		switch {
		case errors.Is(err, club.ErrNoSession), errors.Is(err, club.ErrWrongStatus):
			a.reply(chatID, "ℹ️ Нет активной сессии в статусе 'выставление рейтингов'.")
		default:
			a.log.WithError(err).Error("завершение сессии")
			a.reply(chatID, "❌ Произошла ошибка при завершении сессии.")
		}
		return
	}

	// Финальное состояние таблицы оценок.
	if stats.Session.ScoreboardMsgID != 0 {
		board := &club.ScoreboardView{Session: stats.Session, Movies: stats.Movies}
		a.editText(chatID, stats.Session.ScoreboardMsgID, scoreboardText(board))
	}
	a.reply(chatID, finalStatsText(stats))
}

// ---------- Лидерборд и статистика ----------

func (a *App) handleLeaderboard(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	page, err := a.svc.Leaderboard(ctx, chatID, 0, "")
	if err != nil {
		a.log.WithError(err).Error("таблица лидеров")
		a.reply(chatID, "❌ Произошла ошибка при получении таблицы лидеров.")
		return
	}
	if page.Total == 0 {
		a.reply(chatID, "ℹ️ Таблица лидеров пуста.\n\nЗавершите хотя бы одну сессию с рейтингами.")
		return
	}

	if page.Pages > 1 {
		a.replyKB(chatID, leaderboardText(page), leaderboardKeyboard(1, page.Pages))
	} else {
		a.reply(chatID, leaderboardText(page))
	}
}

func (a *App) handleLeaderboardPage(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	pageNum, err := strconv.Atoi(strings.TrimPrefix(cq.Data, "lb_page:"))
	if err != nil || pageNum < 1 {
		a.answerCallback(cq, "")
		return
	}

	chatID := cq.Message.Chat.ID
	page, err := a.svc.Leaderboard(ctx, chatID, pageNum-1, "")
	if err != nil {
		a.log.WithError(err).Error("страница лидерборда")
		a.answerCallback(cq, "❌ Произошла ошибка")
		return
	}

	a.editTextKB(chatID, int64(cq.Message.MessageID), leaderboardText(page),
		leaderboardKeyboard(pageNum, page.Pages))
	a.answerCallback(cq, "")
}

func (a *App) startSearchFlow(msg *tgbotapi.Message) {
	a.deleteMessage(msg.Chat.ID, msg.MessageID)
	msgID := a.send(withKeyboard(msg.Chat.ID, "🔍 Введите название фильма для поиска:", cancelKeyboard()))
	a.steps.Set(msg.From.ID, msg.Chat.ID, pending.AwaitingSearchQuery{Prompt: pending.Prompt{MessageID: msgID}})
}

func (a *App) handleSearchQuery(ctx context.Context, msg *tgbotapi.Message, step pending.AwaitingSearchQuery) {
	chatID := msg.Chat.ID
	a.steps.Clear(msg.From.ID, chatID)
	a.deleteMessage(chatID, msg.MessageID)
	if step.MessageID != 0 {
		a.deleteMessage(chatID, int(step.MessageID))
	}

	query := strings.TrimSpace(msg.Text)
	if query == "" {
		a.replyKB(chatID, "⚠️ Пустой запрос. Попробуйте ещё раз.", mainMenuKeyboard())
		return
	}

	page, err := a.svc.Leaderboard(ctx, chatID, 0, query)
	if err != nil {
		a.log.WithError(err).Error("поиск фильмов")
		a.replyKB(chatID, "❌ Произошла ошибка при поиске.", mainMenuKeyboard())
		return
	}
	if len(page.Rows) == 0 {
		a.replyKB(chatID, fmt.Sprintf("🔍 По запросу \"<b>%s</b>\" ничего не найдено.", html.EscapeString(query)), mainMenuKeyboard())
		return
	}
	a.replyKB(chatID, leaderboardText(page), mainMenuKeyboard())
}

func (a *App) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	stats, err := a.svc.ClubStats(ctx, msg.Chat.ID)
	if err != nil {
		a.log.WithError(err).Error("статистика клуба")
		a.reply(msg.Chat.ID, "❌ Произошла ошибка при получении статистики.")
		return
	}
	a.reply(msg.Chat.ID, statsText(stats))
}

// withKeyboard собирает сообщение с клавиатурой для send.
func withKeyboard(chatID int64, text string, kb any) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	return msg
}
