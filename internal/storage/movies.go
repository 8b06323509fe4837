package storage

import (
	"database/sql"
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/medalahonor/film-bot/internal/domain"
)

const movieColumns = `
m.id, m.session_id, m.user_id, m.slot, m.kinopoisk_url, m.kinopoisk_id,
m.title, m.year, m.genres, m.description, m.poster_url,
m.kinopoisk_rating, m.club_rating, m.created_at`

func scanMovie(row interface{ Scan(...any) error }) (domain.Movie, error) {
	var (
		m          domain.Movie
		year       sql.NullInt64
		kpRating   sql.NullFloat64
		clubRating sql.NullFloat64
	)
	err := row.Scan(
		&m.ID, &m.SessionID, &m.UserID, &m.Slot, &m.KinopoiskURL, &m.KinopoiskID,
		&m.Title, &year, &m.Genres, &m.Description, &m.PosterURL,
		&kpRating, &clubRating, &m.CreatedAt,
	)
	if err != nil {
		return domain.Movie{}, err
	}
	m.Year = int(year.Int64)
	m.KinopoiskRating = kpRating.Float64
	if clubRating.Valid {
		v := clubRating.Float64
		m.ClubRating = &v
	}
	return m, nil
}

func insertMovieTx(tx *sql.Tx, m *domain.Movie) (int64, error) {
	var year any
	if m.Year != 0 {
		year = m.Year
	}
	var kpRating any
	if m.KinopoiskRating != 0 {
		kpRating = m.KinopoiskRating
	}
	res, err := tx.Exec(`
INSERT INTO movies(session_id, user_id, slot, kinopoisk_url, kinopoisk_id,
    title, year, genres, description, poster_url, kinopoisk_rating)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, m.SessionID, m.UserID, m.Slot, m.KinopoiskURL, m.KinopoiskID,
		m.Title, year, m.Genres, m.Description, m.PosterURL, kpRating)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return res.LastInsertId()
}

// ---------- Фильмы ----------

func (s *Store) InsertMovie(m *domain.Movie) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	id, err := insertMovieTx(tx, m)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// ReplaceMovieInSlot вставляет предложение, удалив прежнее предложение
// пользователя в этом слоте и его же прежнее предложение того же
// фильма в другом слоте. Одна транзакция.
func (s *Store) ReplaceMovieInSlot(m *domain.Movie) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
DELETE FROM movies WHERE session_id = ? AND user_id = ? AND (slot = ? OR kinopoisk_id = ?)
`, m.SessionID, m.UserID, m.Slot, m.KinopoiskID)
	if err != nil {
		return 0, err
	}

	id, err := insertMovieTx(tx, m)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (s *Store) MovieByID(id int64) (*domain.Movie, error) {
	row := s.db.QueryRow(`SELECT`+movieColumns+` FROM movies m WHERE m.id = ?`, id)
	m, err := scanMovie(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// FindMovieByKinopoiskID ищет фильм с тем же каталожным id в сессии.
func (s *Store) FindMovieByKinopoiskID(sessionID int64, kinopoiskID string) (*domain.Movie, error) {
	row := s.db.QueryRow(`SELECT`+movieColumns+`
FROM movies m WHERE m.session_id = ? AND m.kinopoisk_id = ?
`, sessionID, kinopoiskID)
	m, err := scanMovie(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// MoviesBySession возвращает фильмы сессии в порядке слотов и подачи.
func (s *Store) MoviesBySession(sessionID int64) ([]domain.Movie, error) {
	rows, err := s.db.Query(`SELECT`+movieColumns+`
FROM movies m WHERE m.session_id = ?
ORDER BY m.slot, m.created_at, m.id
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMovies(rows)
}

// MoviesByIDs возвращает фильмы в порядке переданных id.
func (s *Store) MoviesByIDs(ids []int64) ([]domain.Movie, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT` + movieColumns + ` FROM movies m WHERE m.id IN (` + placeholders(len(ids)) + `)`
	rows, err := s.db.Query(q, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fetched, err := collectMovies(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.Movie, len(fetched))
	for _, m := range fetched {
		byID[m.ID] = m
	}
	ordered := make([]domain.Movie, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}
	return ordered, nil
}

// DeleteMovie удаляет фильм; голоса и оценки уходят каскадом, ссылки
// победителя в сессиях обнуляются по ON DELETE SET NULL.
func (s *Store) DeleteMovie(movieID int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM movies WHERE id = ?`, movieID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ProposerNames возвращает отображаемые имена всех, кто предложил
// фильмы в сессии (для закреплённого сообщения).
func (s *Store) ProposerNames(sessionID int64) ([]string, error) {
	rows, err := s.db.Query(`
SELECT DISTINCT u.username, u.first_name
FROM movies m
JOIN users u ON u.id = m.user_id
WHERE m.session_id = ?
ORDER BY u.id
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var username, firstName string
		if err := rows.Scan(&username, &firstName); err != nil {
			return nil, err
		}
		u := domain.User{Username: username, FirstName: firstName}
		names = append(names, u.DisplayName())
	}
	return names, rows.Err()
}

// MovieWithStatus — фильм вместе со статусом его сессии (админский список).
type MovieWithStatus struct {
	Movie         domain.Movie
	SessionStatus string
}

func (s *Store) ListMovies(limit int) ([]MovieWithStatus, error) {
	rows, err := s.db.Query(`SELECT`+movieColumns+`, st.code
FROM movies m
JOIN sessions s ON s.id = m.session_id
JOIN session_statuses st ON st.id = s.status_id
ORDER BY m.created_at DESC, m.id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MovieWithStatus
	for rows.Next() {
		var (
			m          domain.Movie
			year       sql.NullInt64
			kpRating   sql.NullFloat64
			clubRating sql.NullFloat64
			status     string
		)
		err := rows.Scan(
			&m.ID, &m.SessionID, &m.UserID, &m.Slot, &m.KinopoiskURL, &m.KinopoiskID,
			&m.Title, &year, &m.Genres, &m.Description, &m.PosterURL,
			&kpRating, &clubRating, &m.CreatedAt, &status,
		)
		if err != nil {
			return nil, err
		}
		m.Year = int(year.Int64)
		m.KinopoiskRating = kpRating.Float64
		if clubRating.Valid {
			v := clubRating.Float64
			m.ClubRating = &v
		}
		out = append(out, MovieWithStatus{Movie: m, SessionStatus: status})
	}
	return out, rows.Err()
}

func collectMovies(rows *sql.Rows) ([]domain.Movie, error) {
	var movies []domain.Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}
	return movies, rows.Err()
}
