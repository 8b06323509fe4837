package club

import "context"

// MovieInfo — данные фильма из внешнего каталога, ещё не привязанные
// к сессии.
type MovieInfo struct {
	KinopoiskID     string
	KinopoiskURL    string
	Title           string
	Year            int
	Genres          string
	Description     string
	PosterURL       string
	KinopoiskRating float64
	TrailerURL      string
}

// MovieLookup получает данные фильма по ссылке на каталог.
type MovieLookup interface {
	Lookup(ctx context.Context, rawURL string) (*MovieInfo, error)
}

// PollService управляет опросами в чате.
type PollService interface {
	// OpenPoll отправляет опрос и возвращает id сообщения и id опроса.
	OpenPoll(ctx context.Context, chatID int64, question string, options []string, multiple bool) (messageID int64, pollID string, err error)
	// ClosePoll останавливает опрос и возвращает количество голосов
	// по вариантам в исходном порядке.
	ClosePoll(ctx context.Context, chatID, messageID int64) ([]int, error)
}

// Pinner закрепляет и открепляет сообщения в чате.
type Pinner interface {
	Pin(ctx context.Context, chatID, messageID int64) error
	Unpin(ctx context.Context, chatID, messageID int64) error
}
