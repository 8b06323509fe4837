package app

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/medalahonor/film-bot/internal/club"
	"github.com/medalahonor/film-bot/internal/kinopoisk"
)

// Адаптеры портов club поверх Bot API. Контекст интерфейсами принят,
// но библиотека telegram-bot-api его не поддерживает.

type telegramPolls struct {
	bot *tgbotapi.BotAPI
}

func (p *telegramPolls) OpenPoll(ctx context.Context, chatID int64, question string, options []string, multiple bool) (int64, string, error) {
	poll := tgbotapi.NewPoll(chatID, question, options...)
	poll.IsAnonymous = false
	poll.AllowsMultipleAnswers = multiple

	msg, err := p.bot.Send(poll)
	if err != nil {
		return 0, "", fmt.Errorf("send poll: %w", err)
	}
	if msg.Poll == nil {
		return 0, "", errors.New("send poll: ответ без объекта опроса")
	}
	return int64(msg.MessageID), msg.Poll.ID, nil
}

func (p *telegramPolls) ClosePoll(ctx context.Context, chatID, messageID int64) ([]int, error) {
	poll, err := p.bot.StopPoll(tgbotapi.NewStopPoll(chatID, int(messageID)))
	if err != nil {
		return nil, fmt.Errorf("stop poll: %w", err)
	}
	counts := make([]int, len(poll.Options))
	for i, opt := range poll.Options {
		counts[i] = opt.VoterCount
	}
	return counts, nil
}

type telegramPins struct {
	bot *tgbotapi.BotAPI
}

func (p *telegramPins) Pin(ctx context.Context, chatID, messageID int64) error {
	_, err := p.bot.Request(tgbotapi.PinChatMessageConfig{
		ChatID:              chatID,
		MessageID:           int(messageID),
		DisableNotification: true,
	})
	return err
}

func (p *telegramPins) Unpin(ctx context.Context, chatID, messageID int64) error {
	_, err := p.bot.Request(tgbotapi.UnpinChatMessageConfig{
		ChatID:    chatID,
		MessageID: int(messageID),
	})
	return err
}

// kinopoiskLookup переводит ответ каталога в club.MovieInfo.
type kinopoiskLookup struct {
	client *kinopoisk.Client
}

func (l *kinopoiskLookup) Lookup(ctx context.Context, rawURL string) (*club.MovieInfo, error) {
	movie, err := l.client.Lookup(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return &club.MovieInfo{
		KinopoiskID:     movie.KinopoiskID,
		KinopoiskURL:    movie.KinopoiskURL,
		Title:           movie.Title,
		Year:            movie.Year,
		Genres:          movie.Genres,
		Description:     movie.Description,
		PosterURL:       movie.PosterURL,
		KinopoiskRating: movie.KinopoiskRating,
		TrailerURL:      movie.TrailerURL,
	}, nil
}
