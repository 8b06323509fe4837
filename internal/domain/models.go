package domain

import "time"

// Коды статусов сессии (таблица session_statuses).
const (
	StatusCollecting = "collecting"
	StatusVoting     = "voting"
	StatusRating     = "rating"
	StatusCompleted  = "completed"
)

// Slots — количество слотов под фильмы в одной сессии.
const Slots = 2

func ValidStatus(code string) bool {
	switch code {
	case StatusCollecting, StatusVoting, StatusRating, StatusCompleted:
		return true
	}
	return false
}

func ValidSlot(slot int) bool {
	return slot >= 1 && slot <= Slots
}

type SessionStatus struct {
	ID          int64
	Code        string
	Name        string
	Description string
}

// User — участник киноклуба. TelegramID == nil у «заглушек»,
// созданных при ручном импорте оценок.
type User struct {
	ID         int64
	TelegramID *int64
	Username   string
	FirstName  string
	LastName   string
	CreatedAt  time.Time
}

// DisplayName возвращает имя для сообщений: @username > имя > «Аноним».
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return "Аноним"
}

type Group struct {
	ID         int64
	TelegramID int64
	Name       string
	CreatedAt  time.Time
}

// SlotState — состояние одного слота внутри сессии.
// PollMovieIDs хранит порядок вариантов опроса: индекс варианта
// в Telegram-опросе соответствует позиции id в списке.
type SlotState struct {
	PollMessageID int64
	PollID        string
	PollMovieIDs  []int64
	WinnerID      int64
	RatingMsgID   int64
}

type Session struct {
	ID              int64
	GroupID         int64
	CreatedBy       int64
	Status          string
	PinnedMessageID int64
	ScoreboardMsgID int64
	Slots           [Slots]SlotState
	CreatedAt       time.Time
	VotingStartedAt *time.Time
	CompletedAt     *time.Time
}

// Slot возвращает состояние слота по номеру (1..Slots).
func (s *Session) Slot(n int) *SlotState {
	return &s.Slots[n-1]
}

func (s *Session) WinnerIDs() []int64 {
	var ids []int64
	for i := range s.Slots {
		if s.Slots[i].WinnerID != 0 {
			ids = append(ids, s.Slots[i].WinnerID)
		}
	}
	return ids
}

func (s *Session) IsWinner(movieID int64) bool {
	for i := range s.Slots {
		if s.Slots[i].WinnerID == movieID {
			return true
		}
	}
	return false
}

type Movie struct {
	ID              int64
	SessionID       int64
	UserID          int64
	Slot            int
	KinopoiskURL    string
	KinopoiskID     string
	Title           string
	Year            int
	Genres          string
	Description     string
	PosterURL       string
	KinopoiskRating float64
	ClubRating      *float64
	CreatedAt       time.Time
}

type Vote struct {
	ID        int64
	SessionID int64
	MovieID   int64
	UserID    int64
	CreatedAt time.Time
}

type Rating struct {
	ID        int64
	SessionID int64
	MovieID   int64
	UserID    int64
	Value     int
	CreatedAt time.Time
}

// ScoreboardEntry — одна строка таблицы оценок (кто и как оценил).
type ScoreboardEntry struct {
	MovieID   int64
	UserName  string
	Value     int
	CreatedAt time.Time
}

// MovieStat — агрегат оценок по фильму.
type MovieStat struct {
	MovieID int64
	Count   int64
	Avg     float64
}

// LeaderboardRow — строка таблицы лидеров с глобальным рангом.
type LeaderboardRow struct {
	Rank         int
	Movie        Movie
	ProposerName string
	RatingCount  int64
	AvgRating    float64
}

type ClubStats struct {
	Sessions     int64
	Movies       int64
	Participants int64
	Ratings      int64
}

type DBStats struct {
	Users    int64
	Groups   int64
	Sessions int64
	Movies   int64
	Ratings  int64
}
