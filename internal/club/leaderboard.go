package club

import (
	"context"
	"errors"

	"github.com/medalahonor/film-bot/internal/domain"
)

// MoviesPerPage — размер страницы таблицы лидеров.
const MoviesPerPage = 10

// LeaderboardPage — страница таблицы лидеров. Ранг строк считается
// от начала всей выборки, страницы нумеруются с нуля.
type LeaderboardPage struct {
	Rows   []domain.LeaderboardRow
	Page   int
	Pages  int
	Total  int64
	Search string
}

// Leaderboard возвращает страницу фильмов-победителей завершённых
// сессий группы. Непустой search фильтрует по подстроке названия без
// учёта регистра.
func (s *Service) Leaderboard(ctx context.Context, chatID int64, page int, search string) (*LeaderboardPage, error) {
	if page < 0 {
		page = 0
	}

	group, err := s.groupByChat(chatID)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return &LeaderboardPage{Page: page, Search: search}, nil
		}
		return nil, err
	}

	rows, total, err := s.store.Leaderboard(group.ID, page*MoviesPerPage, MoviesPerPage, search)
	if err != nil {
		return nil, err
	}

	pages := int((total + MoviesPerPage - 1) / MoviesPerPage)
	return &LeaderboardPage{
		Rows:   rows,
		Page:   page,
		Pages:  pages,
		Total:  total,
		Search: search,
	}, nil
}

// ClubStats — сводная статистика киноклуба группы.
func (s *Service) ClubStats(ctx context.Context, chatID int64) (domain.ClubStats, error) {
	group, err := s.groupByChat(chatID)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return domain.ClubStats{}, nil
		}
		return domain.ClubStats{}, err
	}
	return s.store.ClubStats(group.ID)
}

// DBStats — счётчики таблиц для админской диагностики.
func (s *Service) DBStats(ctx context.Context) (domain.DBStats, error) {
	return s.store.DBStats()
}
