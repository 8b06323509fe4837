package storage

import (
	"database/sql"

	"github.com/medalahonor/film-bot/internal/domain"
)

// ---------- Голоса ----------

// ReplaceVotes заменяет весь набор голосов пользователя в рамках
// одного опроса: старые голоса по фильмам опроса удаляются, выбранные
// варианты записываются заново. Всё в одной транзакции.
func (s *Store) ReplaceVotes(sessionID, userID int64, pollMovieIDs, chosenIDs []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(pollMovieIDs) > 0 {
		q := `DELETE FROM votes WHERE session_id = ? AND user_id = ? AND movie_id IN (` + placeholders(len(pollMovieIDs)) + `)`
		args := append([]any{sessionID, userID}, int64Args(pollMovieIDs)...)
		if _, err := tx.Exec(q, args...); err != nil {
			return err
		}
	}

	for _, movieID := range chosenIDs {
		if _, err := tx.Exec(`
INSERT INTO votes(session_id, movie_id, user_id) VALUES (?, ?, ?)
`, sessionID, movieID, userID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) CountVotes(sessionID, movieID int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(`
SELECT COUNT(*) FROM votes WHERE session_id = ? AND movie_id = ?
`, sessionID, movieID).Scan(&n)
	return n, err
}

// ---------- Оценки ----------

// UpsertRating сохраняет или обновляет оценку и пересчитывает
// хранимый клубный рейтинг фильма в той же транзакции.
// Возвращает true, если оценка была обновлением существующей.
func (s *Store) UpsertRating(sessionID, movieID, userID int64, value int) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRow(`
SELECT COUNT(*) FROM ratings WHERE session_id = ? AND movie_id = ? AND user_id = ?
`, sessionID, movieID, userID).Scan(&existing)
	if err != nil {
		return false, err
	}

	_, err = tx.Exec(`
INSERT INTO ratings(session_id, movie_id, user_id, rating)
VALUES (?, ?, ?, ?)
ON CONFLICT(session_id, movie_id, user_id) DO UPDATE SET
    rating = excluded.rating
`, sessionID, movieID, userID, value)
	if err != nil {
		return false, err
	}

	if err := recalcClubRatingTx(tx, movieID); err != nil {
		return false, err
	}

	return existing > 0, tx.Commit()
}

func recalcClubRatingTx(tx *sql.Tx, movieID int64) error {
	_, err := tx.Exec(`
UPDATE movies SET club_rating = (
    SELECT ROUND(AVG(rating), 2) FROM ratings WHERE movie_id = ?
) WHERE id = ?
`, movieID, movieID)
	return err
}

func (s *Store) MovieAvgRating(movieID int64) (float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
SELECT ROUND(AVG(rating), 2) FROM ratings WHERE movie_id = ?
`, movieID).Scan(&avg)
	if err != nil {
		return 0, err
	}
	return avg.Float64, nil
}

// ScoreboardRows возвращает строки таблицы оценок по фильмам сессии
// в порядке выставления.
func (s *Store) ScoreboardRows(sessionID int64, movieIDs []int64) ([]domain.ScoreboardEntry, error) {
	if len(movieIDs) == 0 {
		return nil, nil
	}
	q := `
SELECT r.movie_id, u.username, u.first_name, r.rating, r.created_at
FROM ratings r
JOIN users u ON u.id = r.user_id
WHERE r.session_id = ? AND r.movie_id IN (` + placeholders(len(movieIDs)) + `)
ORDER BY r.created_at, r.id`
	args := append([]any{sessionID}, int64Args(movieIDs)...)
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ScoreboardEntry
	for rows.Next() {
		var (
			e                   domain.ScoreboardEntry
			username, firstName string
		)
		if err := rows.Scan(&e.MovieID, &username, &firstName, &e.Value, &e.CreatedAt); err != nil {
			return nil, err
		}
		u := domain.User{Username: username, FirstName: firstName}
		e.UserName = u.DisplayName()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RatingStats возвращает количество и среднее оценок по фильмам сессии.
func (s *Store) RatingStats(sessionID int64, movieIDs []int64) (map[int64]domain.MovieStat, error) {
	stats := make(map[int64]domain.MovieStat)
	if len(movieIDs) == 0 {
		return stats, nil
	}
	q := `
SELECT movie_id, COUNT(*), ROUND(AVG(rating), 2)
FROM ratings
WHERE session_id = ? AND movie_id IN (` + placeholders(len(movieIDs)) + `)
GROUP BY movie_id`
	args := append([]any{sessionID}, int64Args(movieIDs)...)
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var st domain.MovieStat
		if err := rows.Scan(&st.MovieID, &st.Count, &st.Avg); err != nil {
			return nil, err
		}
		stats[st.MovieID] = st
	}
	return stats, rows.Err()
}

// ---------- Лидерборд ----------

// Leaderboard возвращает страницу фильмов-победителей завершённых
// сессий группы, отсортированных по клубному рейтингу (фильмы без
// оценок в конце), и общее число строк. Ранг считается от начала
// всей выборки, а не страницы.
func (s *Store) Leaderboard(groupID int64, offset, limit int, search string) ([]domain.LeaderboardRow, int64, error) {
	where := `
FROM movies m
JOIN sessions s ON s.id = m.session_id
JOIN session_statuses st ON st.id = s.status_id
JOIN users u ON u.id = m.user_id
WHERE s.group_id = ?
  AND st.code = ?
  AND (m.id = s.winner_slot1_id OR m.id = s.winner_slot2_id)`
	args := []any{groupID, domain.StatusCompleted}

	if search != "" {
		where += ` AND ulower(m.title) LIKE '%' || ulower(?) || '%'`
		args = append(args, search)
	}

	var total int64
	if err := s.db.QueryRow(`SELECT COUNT(*)`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	q := `SELECT` + movieColumns + `,
    u.username, u.first_name,
    (SELECT COUNT(*) FROM ratings r WHERE r.movie_id = m.id) AS rating_count` +
		where + `
ORDER BY m.club_rating IS NULL, m.club_rating DESC, m.id
LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.LeaderboardRow
	rank := offset
	for rows.Next() {
		var (
			m                   domain.Movie
			year                sql.NullInt64
			kpRating            sql.NullFloat64
			clubRating          sql.NullFloat64
			username, firstName string
			ratingCount         int64
		)
		err := rows.Scan(
			&m.ID, &m.SessionID, &m.UserID, &m.Slot, &m.KinopoiskURL, &m.KinopoiskID,
			&m.Title, &year, &m.Genres, &m.Description, &m.PosterURL,
			&kpRating, &clubRating, &m.CreatedAt,
			&username, &firstName, &ratingCount,
		)
		if err != nil {
			return nil, 0, err
		}
		m.Year = int(year.Int64)
		m.KinopoiskRating = kpRating.Float64
		if clubRating.Valid {
			v := clubRating.Float64
			m.ClubRating = &v
		}
		rank++
		u := domain.User{Username: username, FirstName: firstName}
		out = append(out, domain.LeaderboardRow{
			Rank:         rank,
			Movie:        m,
			ProposerName: u.DisplayName(),
			RatingCount:  ratingCount,
			AvgRating:    clubRating.Float64,
		})
	}
	return out, total, rows.Err()
}

// ClubStats собирает общую статистику клуба по группе.
func (s *Store) ClubStats(groupID int64) (domain.ClubStats, error) {
	var st domain.ClubStats

	err := s.db.QueryRow(`
SELECT COUNT(*) FROM sessions s
JOIN session_statuses st ON st.id = s.status_id
WHERE s.group_id = ? AND st.code = ?
`, groupID, domain.StatusCompleted).Scan(&st.Sessions)
	if err != nil {
		return st, err
	}

	err = s.db.QueryRow(`
SELECT COUNT(*) FROM movies m
JOIN sessions s ON s.id = m.session_id
JOIN session_statuses st ON st.id = s.status_id
WHERE s.group_id = ? AND st.code = ?
  AND (m.id = s.winner_slot1_id OR m.id = s.winner_slot2_id)
`, groupID, domain.StatusCompleted).Scan(&st.Movies)
	if err != nil {
		return st, err
	}

	err = s.db.QueryRow(`
SELECT COUNT(DISTINCT m.user_id) FROM movies m
JOIN sessions s ON s.id = m.session_id
WHERE s.group_id = ?
`, groupID).Scan(&st.Participants)
	if err != nil {
		return st, err
	}

	err = s.db.QueryRow(`
SELECT COUNT(*) FROM ratings r
JOIN movies m ON m.id = r.movie_id
JOIN sessions s ON s.id = m.session_id
WHERE s.group_id = ?
`, groupID).Scan(&st.Ratings)
	if err != nil {
		return st, err
	}

	return st, nil
}
