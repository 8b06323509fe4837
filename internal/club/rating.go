package club

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/medalahonor/film-bot/internal/domain"
	"github.com/medalahonor/film-bot/internal/storage"
)

// MovieScore — оценки одного фильма-победителя.
type MovieScore struct {
	Movie   domain.Movie
	Entries []domain.ScoreboardEntry
	Count   int64
	Avg     float64
}

// ScoreboardView — текущее состояние таблицы оценок сессии.
type ScoreboardView struct {
	Session *domain.Session
	Movies  []MovieScore
}

// RatingStart — данные для отправки интерфейса оценок.
type RatingStart struct {
	Session *domain.Session
	Winners []domain.Movie
}

// RatingSubmission — результат принятой оценки.
type RatingSubmission struct {
	Session *domain.Session
	Movie   *domain.Movie
	Value   int
	Updated bool
}

// FinalStats — итоги завершённой сессии по фильмам-победителям.
type FinalStats struct {
	Session *domain.Session
	Movies  []MovieScore
}

// StartRating возвращает победителей для отправки интерфейса оценок.
// Повторный вызов после отправки интерфейса отклоняется.
func (s *Service) StartRating(ctx context.Context, chatID int64) (*RatingStart, error) {
	sess, err := s.requireSession(chatID, domain.StatusRating)
	if err != nil {
		return nil, err
	}
	if sess.ScoreboardMsgID != 0 {
		return nil, ErrRatingStarted
	}

	winners, err := s.store.MoviesByIDs(sess.WinnerIDs())
	if err != nil {
		return nil, err
	}
	if len(winners) == 0 {
		return nil, ErrNoMovies
	}
	return &RatingStart{Session: sess, Winners: winners}, nil
}

// AttachRatingMessages сохраняет id отправленных сообщений интерфейса
// оценок: по сообщению на слот и общая таблица.
func (s *Service) AttachRatingMessages(ctx context.Context, sessionID int64, slotMessages map[int]int64, scoreboardMsgID int64) error {
	for slot, msgID := range slotMessages {
		if err := s.store.SetSlotRatingMessage(sessionID, slot, msgID); err != nil {
			return err
		}
	}
	return s.store.SetScoreboardMessage(sessionID, scoreboardMsgID)
}

// SubmitRating принимает оценку 1-10 фильму-победителю текущей сессии.
// Повторная оценка того же участника заменяет предыдущую.
func (s *Service) SubmitRating(ctx context.Context, chatID int64, actor Actor, movieID int64, value int) (*RatingSubmission, error) {
	if value < 1 || value > 10 {
		return nil, ErrBadRating
	}

	sess, err := s.requireSession(chatID, domain.StatusRating)
	if err != nil {
		return nil, err
	}
	if !sess.IsWinner(movieID) {
		return nil, ErrNotWinner
	}

	user, err := s.upsertActor(actor)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpsertRating(sess.ID, movieID, user.ID, value)
	if err != nil {
		return nil, err
	}

	movie, err := s.store.MovieByID(movieID)
	if err != nil {
		return nil, err
	}

	s.sessionLog(sess, "rate").WithField("user", user.ID).
		Debugf("фильм %d: оценка %d", movieID, value)
	return &RatingSubmission{Session: sess, Movie: movie, Value: value, Updated: updated}, nil
}

// Scoreboard собирает таблицу оценок сессии из хранилища.
func (s *Service) Scoreboard(ctx context.Context, sessionID int64) (*ScoreboardView, error) {
	sess, err := s.store.SessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	movies, err := s.movieScores(sess)
	if err != nil {
		return nil, err
	}
	return &ScoreboardView{Session: sess, Movies: movies}, nil
}

// CompleteSession завершает этап оценок и возвращает итоговую
// статистику по победителям.
func (s *Service) CompleteSession(ctx context.Context, chatID int64, actor Actor) (*FinalStats, error) {
	unlock := s.lockGroup(chatID)
	defer unlock()

	sess, err := s.requireSession(chatID, domain.StatusRating)
	if err != nil {
		return nil, err
	}

	movies, err := s.movieScores(sess)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkCompleted(sess.ID, time.Now()); err != nil {
		return nil, err
	}

	updated, err := s.store.SessionByID(sess.ID)
	if err != nil {
		return nil, err
	}
	s.sessionLog(updated, "complete").Info("сессия завершена")
	return &FinalStats{Session: updated, Movies: movies}, nil
}

func (s *Service) movieScores(sess *domain.Session) ([]MovieScore, error) {
	winnerIDs := sess.WinnerIDs()
	winners, err := s.store.MoviesByIDs(winnerIDs)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ScoreboardRows(sess.ID, winnerIDs)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.RatingStats(sess.ID, winnerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]MovieScore, 0, len(winners))
	for _, m := range winners {
		ms := MovieScore{Movie: m}
		for _, e := range entries {
			if e.MovieID == m.ID {
				ms.Entries = append(ms.Entries, e)
			}
		}
		if st, ok := stats[m.ID]; ok {
			ms.Count = st.Count
			ms.Avg = st.Avg
		}
		out = append(out, ms)
	}
	return out, nil
}

// ImportRatings разбирает пакет оценок для фильма: строки вида
// «@username 8» или просто «8» (анонимная заглушка). Неразборчивые
// строки и оценки вне 1-10 молча пропускаются. Возвращает число
// принятых оценок.
func (s *Service) ImportRatings(ctx context.Context, movieID int64, text string) (int, error) {
	movie, err := s.store.MovieByID(movieID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || len(fields) > 2 {
			continue
		}

		value, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil || value < 1 || value > 10 {
			continue
		}

		var userID int64
		if len(fields) == 2 {
			username := strings.TrimPrefix(fields[0], "@")
			if username == "" {
				continue
			}
			u, err := s.store.GetUserByUsername(username)
			switch {
			case err == nil:
				userID = u.ID
			case errors.Is(err, storage.ErrNotFound):
				userID, err = s.store.CreatePlaceholderUser(username)
				if err != nil {
					return applied, err
				}
			default:
				return applied, err
			}
		} else {
			// Безымянная оценка: отдельная заглушка на каждую строку.
			userID, err = s.store.CreatePlaceholderUser("")
			if err != nil {
				return applied, err
			}
		}

		if _, err := s.store.UpsertRating(movie.SessionID, movie.ID, userID, value); err != nil {
			return applied, err
		}
		applied++
	}

	s.log.WithField("movie", movieID).Infof("импортировано оценок: %d", applied)
	return applied, nil
}
