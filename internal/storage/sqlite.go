package storage

import (
	"database/sql"
	"embed"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/medalahonor/film-bot/internal/domain"
)

//go:embed schema.sql
var embeddedSchema embed.FS

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// Встроенная NOCASE-коллация sqlite сворачивает регистр только для
// ASCII, поэтому поиск по кириллическим названиям регистрозависим.
// Драйвер регистрирует юникодный lower как SQL-функцию ulower.
const driverName = "sqlite3_filmbot"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("ulower", strings.ToLower, true)
		},
	})
}

// Open открывает базу с зарегистрированной функцией ulower.
func Open(path string) (*sql.DB, error) {
	return sql.Open(driverName, path)
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InitSchema() error {
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return err
	}

	b, err := embeddedSchema.ReadFile("schema.sql")
	if err != nil {
		return err
	}

	schema := strings.TrimSpace(string(b))
	_, err = s.db.Exec(schema)
	return err
}

// ---------- Пользователи ----------

// UpsertUser создаёт или обновляет пользователя по telegram_id.
func (s *Store) UpsertUser(telegramID int64, username, firstName, lastName string) (domain.User, error) {
	_, err := s.db.Exec(`
INSERT INTO users(telegram_id, username, first_name, last_name)
VALUES (?, ?, ?, ?)
ON CONFLICT(telegram_id) DO UPDATE SET
    username = excluded.username,
    first_name = excluded.first_name,
    last_name = excluded.last_name
`, telegramID, username, firstName, lastName)
	if err != nil {
		return domain.User{}, err
	}

	row := s.db.QueryRow(`
SELECT id, telegram_id, username, first_name, last_name, created_at
FROM users WHERE telegram_id = ?
`, telegramID)
	return scanUser(row)
}

// CreatePlaceholderUser создаёт пользователя-заглушку без telegram_id
// (используется при ручном импорте оценок).
func (s *Store) CreatePlaceholderUser(username string) (int64, error) {
	res, err := s.db.Exec(`
INSERT INTO users(telegram_id, username, first_name) VALUES (NULL, ?, ?)
`, username, username)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	row := s.db.QueryRow(`
SELECT id, telegram_id, username, first_name, last_name, created_at
FROM users WHERE username = ? COLLATE NOCASE
ORDER BY id LIMIT 1
`, username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(id int64) (*domain.User, error) {
	row := s.db.QueryRow(`
SELECT id, telegram_id, username, first_name, last_name, created_at
FROM users WHERE id = ?
`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var tgID sql.NullInt64
	if err := row.Scan(&u.ID, &tgID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt); err != nil {
		return domain.User{}, err
	}
	if tgID.Valid {
		u.TelegramID = &tgID.Int64
	}
	return u, nil
}

// ---------- Группы ----------

// GetOrCreateGroup создаёт группу или обновляет её название.
// Пустое название существующей группы не затирает.
func (s *Store) GetOrCreateGroup(telegramID int64, name string) (domain.Group, error) {
	_, err := s.db.Exec(`
INSERT INTO groups(telegram_id, name) VALUES (?, ?)
ON CONFLICT(telegram_id) DO UPDATE SET
    name = CASE WHEN excluded.name != '' THEN excluded.name ELSE name END
`, telegramID, name)
	if err != nil {
		return domain.Group{}, err
	}

	var g domain.Group
	err = s.db.QueryRow(`
SELECT id, telegram_id, name, created_at FROM groups WHERE telegram_id = ?
`, telegramID).Scan(&g.ID, &g.TelegramID, &g.Name, &g.CreatedAt)
	return g, err
}

func (s *Store) GetGroupByTelegramID(telegramID int64) (*domain.Group, error) {
	var g domain.Group
	err := s.db.QueryRow(`
SELECT id, telegram_id, name, created_at FROM groups WHERE telegram_id = ?
`, telegramID).Scan(&g.ID, &g.TelegramID, &g.Name, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// ---------- Администраторы ----------

// UpsertAdmin фиксирует администратора из конфигурации в БД.
func (s *Store) UpsertAdmin(telegramID int64, username string) error {
	_, err := s.db.Exec(`
INSERT INTO admins(telegram_id, username) VALUES (?, ?)
ON CONFLICT(telegram_id) DO UPDATE SET username = excluded.username
`, telegramID, username)
	return err
}

// ---------- Статистика БД ----------

func (s *Store) DBStats() (domain.DBStats, error) {
	var st domain.DBStats
	for _, q := range []struct {
		query string
		dst   *int64
	}{
		{`SELECT COUNT(*) FROM users`, &st.Users},
		{`SELECT COUNT(*) FROM groups`, &st.Groups},
		{`SELECT COUNT(*) FROM sessions`, &st.Sessions},
		{`SELECT COUNT(*) FROM movies`, &st.Movies},
		{`SELECT COUNT(*) FROM ratings`, &st.Ratings},
	} {
		if err := s.db.QueryRow(q.query).Scan(q.dst); err != nil {
			return domain.DBStats{}, err
		}
	}
	return st, nil
}
