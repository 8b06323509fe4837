// Package app связывает Telegram-обновления с логикой киноклуба:
// маршрутизация сообщений и кнопок, контроль доступа, пошаговые
// диалоги.
package app

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/medalahonor/film-bot/internal/club"
	"github.com/medalahonor/film-bot/internal/config"
	"github.com/medalahonor/film-bot/internal/kinopoisk"
	"github.com/medalahonor/film-bot/internal/pending"
)

// NewPollService возвращает реализацию опросов поверх Bot API.
func NewPollService(bot *tgbotapi.BotAPI) club.PollService { return &telegramPolls{bot: bot} }

// NewPinner возвращает реализацию закрепления сообщений поверх Bot API.
func NewPinner(bot *tgbotapi.BotAPI) club.Pinner { return &telegramPins{bot: bot} }

// NewMovieLookup возвращает поиск фильмов через клиент Кинопоиска.
func NewMovieLookup(client *kinopoisk.Client) club.MovieLookup {
	return &kinopoiskLookup{client: client}
}

type App struct {
	bot    *tgbotapi.BotAPI
	cfg    config.Config
	svc    *club.Service
	lookup club.MovieLookup
	steps  *pending.Manager
	log    *logrus.Logger
}

func New(bot *tgbotapi.BotAPI, cfg config.Config, svc *club.Service, lookup club.MovieLookup, log *logrus.Logger) *App {
	return &App{
		bot:    bot,
		cfg:    cfg,
		svc:    svc,
		lookup: lookup,
		steps:  pending.NewManager(),
		log:    log,
	}
}

func (a *App) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{
		tgbotapi.UpdateTypeMessage,
		tgbotapi.UpdateTypeCallbackQuery,
		tgbotapi.UpdateTypePollAnswer,
	}

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case update.PollAnswer != nil:
				a.handlePollAnswer(ctx, update.PollAnswer)
			case update.Message != nil:
				a.handleMessage(ctx, update.Message)
			case update.CallbackQuery != nil:
				a.handleCallback(ctx, update.CallbackQuery)
			}
		}
	}
}

// ---------- Маршрутизация ----------

func (a *App) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	if msg.Chat.IsPrivate() {
		if !a.cfg.IsAdmin(msg.From.ID) {
			a.reply(msg.Chat.ID, "❌ Личные сообщения доступны только администраторам.")
			return
		}
		a.handleAdminMessage(ctx, msg)
		return
	}

	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return
	}
	if !a.cfg.GroupAllowed(msg.Chat.ID) {
		a.reply(msg.Chat.ID, "❌ Бот работает только в авторизованной группе.")
		return
	}
	a.handleGroupMessage(ctx, msg)
}

func (a *App) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil {
		return
	}

	chatID := cq.Message.Chat.ID
	if cq.Message.Chat.IsPrivate() {
		if !a.cfg.IsAdmin(cq.From.ID) {
			a.answerCallback(cq, "")
			return
		}
		a.handleAdminCallback(ctx, cq)
		return
	}
	if !a.cfg.GroupAllowed(chatID) {
		a.answerCallback(cq, "")
		return
	}
	a.handleGroupCallback(ctx, cq)
}

// handlePollAnswer записывает голоса участника из опроса слота.
func (a *App) handlePollAnswer(ctx context.Context, answer *tgbotapi.PollAnswer) {
	actor := actorFromUser(&answer.User)
	if err := a.svc.RecordPollAnswer(ctx, answer.PollID, actor, answer.OptionIDs); err != nil {
		a.log.WithError(err).WithField("poll", answer.PollID).Warn("голос не записан")
	}
}

// ---------- Вспомогательные ----------

func actorFrom(msg *tgbotapi.Message) club.Actor {
	return actorFromUser(msg.From)
}

func actorFromUser(u *tgbotapi.User) club.Actor {
	return club.Actor{
		TelegramID: u.ID,
		Username:   u.UserName,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}
}

// reply отправляет HTML-сообщение без клавиатуры.
func (a *App) reply(chatID int64, text string) {
	a.send(tgbotapi.NewMessage(chatID, text))
}

// replyKB отправляет HTML-сообщение с клавиатурой.
func (a *App) replyKB(chatID int64, text string, kb any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	a.send(msg)
}

// send проставляет parse_mode и логирует ошибку отправки.
// Возвращает id отправленного сообщения (0 при ошибке).
func (a *App) send(msg tgbotapi.MessageConfig) int64 {
	msg.ParseMode = tgbotapi.ModeHTML
	sent, err := a.bot.Send(msg)
	if err != nil {
		a.log.WithError(err).WithField("chat", msg.ChatID).Error("не удалось отправить сообщение")
		return 0
	}
	return int64(sent.MessageID)
}

// editText редактирует текст сообщения бота.
func (a *App) editText(chatID, messageID int64, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, int(messageID), text)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := a.bot.Send(edit); err != nil {
		a.log.WithError(err).WithField("chat", chatID).Debug("не удалось отредактировать сообщение")
	}
}

// editTextKB редактирует текст и inline-клавиатуру сообщения бота.
func (a *App) editTextKB(chatID, messageID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, int(messageID), text, kb)
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := a.bot.Send(edit); err != nil {
		a.log.WithError(err).WithField("chat", chatID).Debug("не удалось отредактировать сообщение")
	}
}

// deleteMessage удаляет сообщение, молча игнорируя ошибки: у бота
// может не быть прав на удаление чужих сообщений.
func (a *App) deleteMessage(chatID int64, messageID int) {
	if _, err := a.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		a.log.WithError(err).Debug("не удалось удалить сообщение")
	}
}

// answerCallback убирает «часики» у кнопки; text показывается тостом.
func (a *App) answerCallback(cq *tgbotapi.CallbackQuery, text string) {
	if _, err := a.bot.Request(tgbotapi.NewCallback(cq.ID, text)); err != nil {
		a.log.WithError(err).Debug("не удалось ответить на callback")
	}
}

// alertCallback показывает пользователю всплывающее окно.
func (a *App) alertCallback(cq *tgbotapi.CallbackQuery, text string) {
	if _, err := a.bot.Request(tgbotapi.NewCallbackWithAlert(cq.ID, text)); err != nil {
		a.log.WithError(err).Debug("не удалось ответить на callback")
	}
}
