// Package pending хранит незавершённые диалоговые шаги пользователей:
// бот задал вопрос и ждёт следующее сообщение.
package pending

import (
	"sync"
	"time"

	"github.com/medalahonor/film-bot/internal/club"
)

// DefaultTTL — время жизни шага; зависший диалог молча истекает.
const DefaultTTL = 15 * time.Minute

// Step — один ожидаемый шаг диалога. Конкретный тип шага определяет,
// как обрабатывать следующее сообщение пользователя.
type Step interface {
	// PromptMessageID возвращает id сообщения-подсказки бота,
	// чтобы поток мог заменить или удалить его.
	PromptMessageID() int64
}

// Prompt встраивается в шаги и хранит id сообщения-подсказки.
type Prompt struct {
	MessageID int64
}

func (p Prompt) PromptMessageID() int64 { return p.MessageID }

// Шаг «ждём ссылку на Кинопоиск» после кнопки «Предложить фильм».
type AwaitingProposalURL struct {
	Prompt
}

// Шаг «ждём выбор слота»: фильм уже найден, карточка показана.
type AwaitingSlotChoice struct {
	Prompt
	Draft *club.MovieInfo
}

// Шаг «ждём поисковый запрос» для лидерборда.
type AwaitingSearchQuery struct {
	Prompt
}

// Админские шаги ручного добавления фильма.
type AwaitingAdminMovieURL struct {
	Prompt
}

type AwaitingAdminMovieConfirm struct {
	Prompt
	Draft *club.MovieInfo
}

type AwaitingAdminMovieDate struct {
	Prompt
	Draft *club.MovieInfo
}

type AwaitingAdminProposer struct {
	Prompt
	Draft *club.MovieInfo
	Date  time.Time
}

// Шаг «ждём пакет оценок» для /add_ratings.
type AwaitingRatingsInput struct {
	Prompt
	MovieID int64
}

type key struct {
	userID int64
	chatID int64
}

type entry struct {
	step      Step
	expiresAt time.Time
}

// Manager — потокобезопасное хранилище шагов по (пользователь, чат).
type Manager struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	steps map[key]entry
}

func NewManager() *Manager {
	return &Manager{
		ttl:   DefaultTTL,
		now:   time.Now,
		steps: make(map[key]entry),
	}
}

// Set запоминает шаг, затирая предыдущий.
func (m *Manager) Set(userID, chatID int64, step Step) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[key{userID, chatID}] = entry{
		step:      step,
		expiresAt: m.now().Add(m.ttl),
	}
}

// Get возвращает текущий шаг пользователя в чате или nil.
// Истёкшие шаги удаляются на месте.
func (m *Manager) Get(userID, chatID int64) Step {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{userID, chatID}
	e, ok := m.steps[k]
	if !ok {
		return nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.steps, k)
		return nil
	}
	return e.step
}

// Clear снимает шаг и возвращает его (nil, если шага не было).
func (m *Manager) Clear(userID, chatID int64) Step {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{userID, chatID}
	e, ok := m.steps[k]
	if !ok {
		return nil
	}
	delete(m.steps, k)
	if m.now().After(e.expiresAt) {
		return nil
	}
	return e.step
}
