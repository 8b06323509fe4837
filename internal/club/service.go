// Package club реализует логику киноклуба: жизненный цикл сессии,
// сбор предложений, голосование, оценки и таблицу лидеров.
// Телеграм-детали вынесены в порты (PollService, Pinner, MovieLookup).
package club

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/medalahonor/film-bot/internal/domain"
	"github.com/medalahonor/film-bot/internal/storage"
)

var (
	ErrNoSession     = errors.New("no active session")
	ErrSessionExists = errors.New("session already active")
	ErrWrongStatus   = errors.New("wrong session status")
	ErrNoMovies      = errors.New("no movies proposed")
	ErrRatingStarted = errors.New("rating interface already sent")
	ErrBadRating     = errors.New("rating out of range")
	ErrNotWinner     = errors.New("movie is not a winner")
)

// DuplicateError возвращается при попытке предложить фильм, который
// уже есть в сессии. Proposer — отображаемое имя предложившего.
type DuplicateError struct {
	Movie    domain.Movie
	Proposer string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("movie %q already proposed by %s", e.Movie.Title, e.Proposer)
}

// Actor — инициатор действия, как его видит Telegram.
type Actor struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

type Service struct {
	store  *storage.Store
	polls  PollService
	pins   Pinner
	lookup MovieLookup
	log    *logrus.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	// Пер-групповые мьютексы сериализуют проверку и изменение
	// состояния сессии.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewService(store *storage.Store, polls PollService, pins Pinner, lookup MovieLookup, log *logrus.Logger, rng *rand.Rand) *Service {
	return &Service{
		store:  store,
		polls:  polls,
		pins:   pins,
		lookup: lookup,
		log:    log,
		rng:    rng,
		locks:  make(map[int64]*sync.Mutex),
	}
}

// lockGroup берёт мьютекс группы и возвращает функцию разблокировки.
func (s *Service) lockGroup(chatID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) upsertActor(a Actor) (domain.User, error) {
	return s.store.UpsertUser(a.TelegramID, a.Username, a.FirstName, a.LastName)
}

// groupByChat находит группу по id чата; отсутствие группы означает,
// что в ней ещё не было ни одной сессии.
func (s *Service) groupByChat(chatID int64) (*domain.Group, error) {
	g, err := s.store.GetGroupByTelegramID(chatID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return g, nil
}

// activeSession возвращает незавершённую сессию группы чата.
func (s *Service) activeSession(chatID int64) (*domain.Session, error) {
	g, err := s.groupByChat(chatID)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.ActiveSession(g.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return sess, nil
}

// requireSession возвращает активную сессию в ожидаемом статусе.
func (s *Service) requireSession(chatID int64, status string) (*domain.Session, error) {
	sess, err := s.activeSession(chatID)
	if err != nil {
		return nil, err
	}
	if sess.Status != status {
		return nil, fmt.Errorf("%w: %s", ErrWrongStatus, sess.Status)
	}
	return sess, nil
}

// DisplayName возвращает отображаемое имя пользователя по внутреннему id.
func (s *Service) DisplayName(userID int64) string {
	return s.proposerName(userID)
}

func (s *Service) sessionLog(sess *domain.Session, action string) *logrus.Entry {
	return s.log.WithFields(logrus.Fields{
		"session": sess.ID,
		"status":  sess.Status,
		"action":  action,
	})
}
