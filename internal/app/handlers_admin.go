package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/medalahonor/film-bot/internal/domain"
	"github.com/medalahonor/film-bot/internal/kinopoisk"
	"github.com/medalahonor/film-bot/internal/pending"
	"github.com/medalahonor/film-bot/internal/storage"
)

// Админские команды работают в личных сообщениях. Ручные операции
// привязываются к первой авторизованной группе.

func (a *App) handleAdminMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if msg.Text == btnCancel {
		step := a.steps.Clear(userID, chatID)
		a.deleteMessage(chatID, msg.MessageID)
		if step != nil && step.PromptMessageID() != 0 {
			a.deleteMessage(chatID, int(step.PromptMessageID()))
		}
		a.reply(chatID, "↩️ Действие отменено.")
		return
	}

	if step := a.steps.Get(userID, chatID); step != nil && !msg.IsCommand() {
		switch st := step.(type) {
		case pending.AwaitingAdminMovieURL:
			a.handleAdminMovieURL(ctx, msg, st)
			return
		case pending.AwaitingAdminMovieDate:
			a.handleAdminMovieDate(msg, st)
			return
		case pending.AwaitingAdminProposer:
			a.finalizeAddMovie(ctx, msg, st, strings.TrimSpace(msg.Text))
			return
		case pending.AwaitingRatingsInput:
			a.handleAdminRatings(ctx, msg, st)
			return
		}
	}

	if !msg.IsCommand() {
		return
	}

	switch msg.Command() {
	case "start", "help", "admin_help":
		a.steps.Clear(userID, chatID)
		a.reply(chatID, adminHelpText)

	case "skip":
		if st, ok := a.steps.Get(userID, chatID).(pending.AwaitingAdminProposer); ok {
			a.deleteMessage(chatID, msg.MessageID)
			a.finalizeAddMovie(ctx, msg, st, "")
		}

	case "add_movie":
		a.steps.Clear(userID, chatID)
		a.deleteMessage(chatID, msg.MessageID)
		msgID := a.send(withKeyboard(chatID,
			"📝 <b>Добавление фильма вручную</b>\n\nОтправьте ссылку на фильм в Кинопоиске:",
			cancelKeyboard()))
		a.steps.Set(userID, chatID, pending.AwaitingAdminMovieURL{Prompt: pending.Prompt{MessageID: msgID}})

	case "add_ratings":
		a.steps.Clear(userID, chatID)
		a.startAddRatings(ctx, msg)

	case "list_movies":
		a.handleListMovies(ctx, msg)

	case "list_sessions":
		a.handleListSessions(ctx, msg)

	case "delete_movie":
		a.handleDeleteMovie(ctx, msg)

	case "set_winner":
		a.handleSetWinner(ctx, msg)

	case "set_status":
		a.handleSetStatus(ctx, msg)

	case "stats":
		stats, err := a.svc.ClubStats(ctx, a.cfg.PrimaryGroup().ChatID)
		if err != nil {
			a.log.WithError(err).Error("статистика клуба")
			a.reply(chatID, "❌ Произошла ошибка.")
			return
		}
		a.reply(chatID, statsText(stats))

	case "db_stats":
		stats, err := a.svc.DBStats(ctx)
		if err != nil {
			a.log.WithError(err).Error("статистика БД")
			a.reply(chatID, "❌ Произошла ошибка.")
			return
		}
		a.reply(chatID, dbStatsText(stats))

	default:
		a.reply(chatID, "ℹ️ Неизвестная команда. Справка: /admin_help")
	}
}

func (a *App) handleAdminCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	chatID := cq.Message.Chat.ID

	switch cq.Data {
	case "confirm:add_movie:yes":
		st, ok := a.steps.Get(cq.From.ID, chatID).(pending.AwaitingAdminMovieConfirm)
		if !ok || st.Draft == nil {
			a.answerCallback(cq, "❌ Данные не найдены")
			return
		}
		a.editText(chatID, st.MessageID, "📅 Укажите дату киноклуба (формат: ДД.ММ.ГГГГ):")
		a.steps.Set(cq.From.ID, chatID, pending.AwaitingAdminMovieDate{
			Prompt: pending.Prompt{MessageID: st.MessageID},
			Draft:  st.Draft,
		})
		a.answerCallback(cq, "")

	case "confirm:add_movie:no":
		if st := a.steps.Clear(cq.From.ID, chatID); st != nil && st.PromptMessageID() != 0 {
			a.editText(chatID, st.PromptMessageID(), "❌ Добавление фильма отменено.")
		}
		a.answerCallback(cq, "")

	default:
		a.answerCallback(cq, "")
	}
}

// ---------- Ручное добавление фильма ----------

func (a *App) handleAdminMovieURL(ctx context.Context, msg *tgbotapi.Message, step pending.AwaitingAdminMovieURL) {
	chatID := msg.Chat.ID
	a.deleteMessage(chatID, msg.MessageID)

	info, err := a.lookup.Lookup(ctx, strings.TrimSpace(msg.Text))
	if err != nil {
		if kinopoisk.IsLookupError(err) {
			a.editText(chatID, step.MessageID,
				fmt.Sprintf("❌ %s\n\nОтправьте ссылку на фильм в Кинопоиске:", err.Error()))
			return
		}
		a.log.WithError(err).Error("поиск фильма")
		a.editText(chatID, step.MessageID,
			"❌ Произошла ошибка при обработке ссылки. Попробуйте позже.\n\n"+
				"Отправьте ссылку на фильм в Кинопоиске:")
		return
	}

	a.editTextKB(chatID, step.MessageID,
		movieCard(info)+"\n\n<b>Подтвердить?</b>",
		confirmationKeyboard("add_movie"))
	a.steps.Set(msg.From.ID, chatID, pending.AwaitingAdminMovieConfirm{
		Prompt: pending.Prompt{MessageID: step.MessageID},
		Draft:  info,
	})
}

func (a *App) handleAdminMovieDate(msg *tgbotapi.Message, step pending.AwaitingAdminMovieDate) {
	chatID := msg.Chat.ID
	a.deleteMessage(chatID, msg.MessageID)

	date, err := time.Parse("02.01.2006", strings.TrimSpace(msg.Text))
	if err != nil {
		a.editText(chatID, step.MessageID,
			"⚠️ Неверный формат даты. Используйте: ДД.ММ.ГГГГ\n"+
				"Например: 15.03.2023\n\n"+
				"📅 Укажите дату киноклуба (формат: ДД.ММ.ГГГГ):")
		return
	}

	a.editText(chatID, step.MessageID,
		"👤 Кто предложил фильм? (@username, или пропустите: /skip)")
	a.steps.Set(msg.From.ID, chatID, pending.AwaitingAdminProposer{
		Prompt: pending.Prompt{MessageID: step.MessageID},
		Draft:  step.Draft,
		Date:   date,
	})
}

func (a *App) finalizeAddMovie(ctx context.Context, msg *tgbotapi.Message, step pending.AwaitingAdminProposer, proposer string) {
	chatID := msg.Chat.ID
	a.steps.Clear(msg.From.ID, chatID)
	a.deleteMessage(chatID, msg.MessageID)
	if step.MessageID != 0 {
		a.deleteMessage(chatID, int(step.MessageID))
	}

	movie, err := a.svc.AdminAddMovie(ctx, a.cfg.PrimaryGroup().ChatID,
		actorFrom(msg), step.Draft, step.Date, proposer)
	if err != nil {
		a.log.WithError(err).Error("ручное добавление фильма")
		a.reply(chatID, "❌ Произошла ошибка при добавлении фильма.")
		return
	}

	a.reply(chatID, fmt.Sprintf(
		"✅ <b>Фильм добавлен!</b>\n\n"+
			"ID фильма: <code>%d</code>\n"+
			"Сессия: %d\n\n"+
			"Теперь добавьте рейтинги командой:\n/add_ratings %d",
		movie.ID, movie.SessionID, movie.ID))
}

// ---------- Ручной импорт оценок ----------

func (a *App) startAddRatings(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		a.reply(chatID, "⚠️ Укажите ID фильма: /add_ratings &lt;movie_id&gt;")
		return
	}
	movieID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		a.reply(chatID, "⚠️ ID фильма должно быть числом.")
		return
	}

	movie, err := a.svc.Movie(ctx, movieID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.reply(chatID, fmt.Sprintf("❌ Фильм с ID %d не найден.", movieID))
			return
		}
		a.log.WithError(err).Error("поиск фильма")
		a.reply(chatID, "❌ Произошла ошибка.")
		return
	}

	msgID := a.send(withKeyboard(chatID, ratingsHintText(movie), cancelKeyboard()))
	a.steps.Set(msg.From.ID, chatID, pending.AwaitingRatingsInput{
		Prompt:  pending.Prompt{MessageID: msgID},
		MovieID: movieID,
	})
}

func (a *App) handleAdminRatings(ctx context.Context, msg *tgbotapi.Message, step pending.AwaitingRatingsInput) {
	chatID := msg.Chat.ID
	a.deleteMessage(chatID, msg.MessageID)

	applied, err := a.svc.ImportRatings(ctx, step.MovieID, msg.Text)
	if err != nil {
		a.log.WithError(err).Error("импорт оценок")
		a.steps.Clear(msg.From.ID, chatID)
		a.reply(chatID, "❌ Произошла ошибка при добавлении рейтингов.")
		return
	}
	if applied == 0 {
		a.editText(chatID, step.MessageID,
			"⚠️ Не удалось распознать рейтинги.\n\n"+
				"Отправьте рейтинги в формате:\n"+
				"<code>@username1 8\n@username2 9</code>\n\n"+
				"Или просто числа по строке: <code>8</code>")
		return
	}

	a.steps.Clear(msg.From.ID, chatID)
	if step.MessageID != 0 {
		a.deleteMessage(chatID, int(step.MessageID))
	}

	avg := 0.0
	if movie, err := a.svc.Movie(ctx, step.MovieID); err == nil && movie.ClubRating != nil {
		avg = *movie.ClubRating
	}
	a.reply(chatID, fmt.Sprintf(
		"✅ <b>Добавлено %d рейтингов</b>\nСредняя оценка: ⭐ %.2f", applied, avg))
}

// ---------- Обзор и правки ----------

func (a *App) handleListMovies(ctx context.Context, msg *tgbotapi.Message) {
	movies, err := a.svc.ListMovies(ctx, 20)
	if err != nil {
		a.log.WithError(err).Error("список фильмов")
		a.reply(msg.Chat.ID, "❌ Произошла ошибка.")
		return
	}
	a.reply(msg.Chat.ID, listMoviesText(movies))
}

func (a *App) handleListSessions(ctx context.Context, msg *tgbotapi.Message) {
	sessions, err := a.svc.ListSessions(ctx, 20)
	if err != nil {
		a.log.WithError(err).Error("список сессий")
		a.reply(msg.Chat.ID, "❌ Произошла ошибка.")
		return
	}
	a.reply(msg.Chat.ID, listSessionsText(sessions))
}

func (a *App) handleDeleteMovie(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	movieID, ok := parseIDArg(msg.CommandArguments())
	if !ok {
		a.reply(chatID, "⚠️ Укажите ID фильма: /delete_movie &lt;movie_id&gt;")
		return
	}

	deleted, err := a.svc.DeleteMovie(ctx, movieID)
	if err != nil {
		a.log.WithError(err).Error("удаление фильма")
		a.reply(chatID, "❌ Произошла ошибка при удалении фильма.")
		return
	}
	if !deleted {
		a.reply(chatID, fmt.Sprintf("❌ Фильм с ID %d не найден.", movieID))
		return
	}
	a.reply(chatID, "✅ Фильм удалён вместе с голосами и оценками.")
}

func (a *App) handleSetWinner(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	movieID, ok := parseIDArg(msg.CommandArguments())
	if !ok {
		a.reply(chatID, "⚠️ Укажите ID фильма: /set_winner &lt;movie_id&gt;")
		return
	}

	movie, err := a.svc.SetWinner(ctx, movieID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.reply(chatID, fmt.Sprintf("❌ Фильм с ID %d не найден.", movieID))
			return
		}
		a.log.WithError(err).Error("назначение победителя")
		a.reply(chatID, "❌ Произошла ошибка.")
		return
	}
	a.reply(chatID, fmt.Sprintf(
		"✅ %s назначен победителем слота %d (сессия %d).",
		movieTitle(movie.Title, movie.Year), movie.Slot, movie.SessionID))
}

func (a *App) handleSetStatus(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		a.reply(chatID, "⚠️ Формат: /set_status &lt;session_id&gt; &lt;status&gt;\n"+
			"Статусы: collecting, voting, rating, completed")
		return
	}

	sessionID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		a.reply(chatID, "⚠️ ID сессии должно быть числом.")
		return
	}
	status := args[1]
	if !domain.ValidStatus(status) {
		a.reply(chatID, fmt.Sprintf("⚠️ Неизвестный статус %q.\n"+
			"Статусы: collecting, voting, rating, completed", status))
		return
	}

	sess, err := a.svc.SetStatus(ctx, sessionID, status)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.reply(chatID, fmt.Sprintf("❌ Сессия с ID %d не найдена.", sessionID))
			return
		}
		a.log.WithError(err).Error("смена статуса сессии")
		a.reply(chatID, "❌ Произошла ошибка.")
		return
	}
	a.reply(chatID, fmt.Sprintf("✅ Сессия %d переведена в статус <b>%s</b>.", sess.ID, sess.Status))
}

func parseIDArg(args string) (int64, bool) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
