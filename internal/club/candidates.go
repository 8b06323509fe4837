package club

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medalahonor/film-bot/internal/domain"
	"github.com/medalahonor/film-bot/internal/storage"
)

// Propose ищет фильм по ссылке для активной сессии сбора. Дубликат
// в сессии возвращается как DuplicateError с именем предложившего.
// Фильм ещё не сохраняется: участник сначала выбирает слот.
func (s *Service) Propose(ctx context.Context, chatID int64, actor Actor, rawURL string) (*MovieInfo, error) {
	sess, err := s.requireSession(chatID, domain.StatusCollecting)
	if err != nil {
		return nil, err
	}

	info, err := s.lookup.Lookup(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if err := s.checkDuplicate(sess, info.KinopoiskID, actor); err != nil {
		return nil, err
	}
	return info, nil
}

// ConfirmProposal сохраняет фильм в выбранный слот. Прежнее
// предложение того же участника в этом слоте заменяется.
func (s *Service) ConfirmProposal(ctx context.Context, chatID int64, actor Actor, info *MovieInfo, slot int) (*SessionView, error) {
	if !domain.ValidSlot(slot) {
		return nil, errors.New("bad slot")
	}

	unlock := s.lockGroup(chatID)
	defer unlock()

	sess, err := s.requireSession(chatID, domain.StatusCollecting)
	if err != nil {
		return nil, err
	}
	user, err := s.upsertActor(actor)
	if err != nil {
		return nil, err
	}

	// Повторная проверка дубликата: между Propose и подтверждением
	// фильм мог предложить кто-то другой.
	if err := s.checkDuplicate(sess, info.KinopoiskID, actor); err != nil {
		return nil, err
	}

	movie := movieFromInfo(info)
	movie.SessionID = sess.ID
	movie.UserID = user.ID
	movie.Slot = slot

	if _, err := s.store.ReplaceMovieInSlot(movie); err != nil {
		return nil, err
	}
	s.sessionLog(sess, "propose").WithField("user", user.ID).
		Infof("слот %d: %s", slot, movie.Title)

	return s.sessionView(sess)
}

// checkDuplicate возвращает DuplicateError, если фильм уже есть в
// сессии. Собственное предложение участника дубликатом не считается:
// его можно заменить или переложить в другой слот.
func (s *Service) checkDuplicate(sess *domain.Session, kinopoiskID string, actor Actor) error {
	existing, err := s.store.FindMovieByKinopoiskID(sess.ID, kinopoiskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	proposer, err := s.store.GetUserByID(existing.UserID)
	if err == nil && proposer.TelegramID != nil && *proposer.TelegramID == actor.TelegramID {
		return nil
	}

	name := "Аноним"
	if err == nil {
		name = proposer.DisplayName()
	}
	return &DuplicateError{Movie: *existing, Proposer: name}
}

// AdminAddMovie добавляет просмотренный фильм задним числом: создаёт
// завершённую сессию на указанную дату и назначает фильм победителем
// первого слота. Пустой proposer записывает фильм на самого админа,
// неизвестный username создаёт пользователя-заглушку.
func (s *Service) AdminAddMovie(ctx context.Context, chatID int64, admin Actor, info *MovieInfo, date time.Time, proposer string) (*domain.Movie, error) {
	group, err := s.store.GetOrCreateGroup(chatID, "")
	if err != nil {
		return nil, err
	}
	adminUser, err := s.upsertActor(admin)
	if err != nil {
		return nil, err
	}

	proposerID := adminUser.ID
	if username := strings.TrimPrefix(strings.TrimSpace(proposer), "@"); username != "" {
		u, err := s.store.GetUserByUsername(username)
		switch {
		case err == nil:
			proposerID = u.ID
		case errors.Is(err, storage.ErrNotFound):
			proposerID, err = s.store.CreatePlaceholderUser(username)
			if err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	sessID, err := s.store.CreateCompletedSession(group.ID, adminUser.ID, date)
	if err != nil {
		return nil, err
	}

	movie := movieFromInfo(info)
	movie.SessionID = sessID
	movie.UserID = proposerID
	movie.Slot = 1

	movieID, err := s.store.InsertMovie(movie)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetSlotWinner(sessID, 1, movieID); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"session": sessID,
		"movie":   movieID,
		"admin":   adminUser.ID,
	}).Info("фильм добавлен вручную")
	return s.store.MovieByID(movieID)
}

// Movie возвращает фильм по id.
func (s *Service) Movie(ctx context.Context, movieID int64) (*domain.Movie, error) {
	return s.store.MovieByID(movieID)
}

// DeleteMovie удаляет фильм со всеми голосами и оценками.
// Возвращает false, если фильма не было.
func (s *Service) DeleteMovie(ctx context.Context, movieID int64) (bool, error) {
	return s.store.DeleteMovie(movieID)
}

// ListMovies — последние фильмы со статусами сессий (админский обзор).
func (s *Service) ListMovies(ctx context.Context, limit int) ([]storage.MovieWithStatus, error) {
	return s.store.ListMovies(limit)
}

// ListSessions — последние сессии (админский обзор).
func (s *Service) ListSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	return s.store.ListSessions(limit)
}

func movieFromInfo(info *MovieInfo) *domain.Movie {
	return &domain.Movie{
		KinopoiskURL:    info.KinopoiskURL,
		KinopoiskID:     info.KinopoiskID,
		Title:           info.Title,
		Year:            info.Year,
		Genres:          info.Genres,
		Description:     info.Description,
		PosterURL:       info.PosterURL,
		KinopoiskRating: info.KinopoiskRating,
	}
}
