package club

import (
	"context"
	"fmt"
	"time"

	"github.com/medalahonor/film-bot/internal/domain"
)

// SessionView — снимок активной сессии для статусных сообщений.
type SessionView struct {
	Session   *domain.Session
	Movies    []domain.Movie
	Proposers []string
}

// SlotPlan — результат обработки одного слота при старте голосования
// или переголосовании: либо автопобедитель, либо открытый опрос.
type SlotPlan struct {
	Slot          int
	Movies        []domain.Movie
	Winner        *domain.Movie
	PollMessageID int64
}

// VotingStart — итог StartVoting/Revote. Advanced — сессия сразу
// перешла к оценкам, потому что опросы не понадобились.
type VotingStart struct {
	Session  *domain.Session
	Plans    []SlotPlan
	Advanced bool
}

// OutcomeKind — исход слота при подведении итогов голосования.
type OutcomeKind int

const (
	OutcomeWinner     OutcomeKind = iota // победитель по голосам
	OutcomeRandom                        // жребий при нуле голосов
	OutcomeTie                           // ничья, нужен revote
	OutcomePollFailed                    // опрос не удалось остановить
)

type SlotOutcome struct {
	Slot   int
	Kind   OutcomeKind
	Winner *domain.Movie
	Votes  int
	Tied   []domain.Movie
	Counts map[int64]int
}

// VotingResult — итог FinishVoting. Advanced — все слоты решены,
// сессия перешла к оценкам.
type VotingResult struct {
	Session  *domain.Session
	Outcomes []SlotOutcome
	Advanced bool
}

// CreateSession открывает новую сессию в статусе сбора предложений.
// Пока в группе есть незавершённая сессия, новая не создаётся.
func (s *Service) CreateSession(ctx context.Context, chatID int64, chatTitle string, actor Actor) (*domain.Session, error) {
	unlock := s.lockGroup(chatID)
	defer unlock()

	group, err := s.store.GetOrCreateGroup(chatID, chatTitle)
	if err != nil {
		return nil, err
	}
	user, err := s.upsertActor(actor)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.ActiveSession(group.ID); err == nil {
		return nil, ErrSessionExists
	}

	id, err := s.store.CreateSession(group.ID, user.ID)
	if err != nil {
		return nil, err
	}

	sess, err := s.store.SessionByID(id)
	if err != nil {
		return nil, err
	}
	s.sessionLog(sess, "create").WithField("user", user.ID).Info("сессия открыта")
	return sess, nil
}

// AttachPinnedMessage сохраняет id сообщения сбора предложений и
// закрепляет его. Неудачное закрепление не фатально.
func (s *Service) AttachPinnedMessage(ctx context.Context, chatID, sessionID, messageID int64) error {
	if err := s.store.SetPinnedMessage(sessionID, messageID); err != nil {
		return err
	}
	if err := s.pins.Pin(ctx, chatID, messageID); err != nil {
		s.log.WithError(err).WithField("session", sessionID).Warn("не удалось закрепить сообщение")
	}
	return nil
}

// StartVoting классифицирует слоты и открывает опросы: слот без
// кандидатов пропускается, единственный кандидат побеждает
// автоматически, от двух кандидатов открывается опрос с
// множественным выбором.
func (s *Service) StartVoting(ctx context.Context, chatID int64, actor Actor) (*VotingStart, error) {
	unlock := s.lockGroup(chatID)
	defer unlock()

	sess, err := s.requireSession(chatID, domain.StatusCollecting)
	if err != nil {
		return nil, err
	}

	movies, err := s.store.MoviesBySession(sess.ID)
	if err != nil {
		return nil, err
	}
	if len(movies) == 0 {
		return nil, ErrNoMovies
	}

	var plans []SlotPlan
	pollsOpened := false
	for slot := 1; slot <= domain.Slots; slot++ {
		slotMovies := moviesInSlot(movies, slot)
		if len(slotMovies) == 0 {
			continue
		}
		plan := SlotPlan{Slot: slot, Movies: slotMovies}

		if len(slotMovies) == 1 {
			plan.Winner = &slotMovies[0]
		} else {
			question := fmt.Sprintf("🎬 Слот %d: Выберите фильм(ы)", slot)
			msgID, _, err := s.openSlotPoll(ctx, chatID, sess.ID, slot, question, slotMovies, true)
			if err != nil {
				return nil, err
			}
			plan.PollMessageID = msgID
			pollsOpened = true
		}
		plans = append(plans, plan)
	}

	// Автопобедители пишутся после открытия всех опросов: сбой
	// Telegram не должен оставить сессию в сборе предложений с уже
	// назначенным победителем.
	for _, plan := range plans {
		if plan.Winner == nil {
			continue
		}
		if err := s.store.SetSlotWinner(sess.ID, plan.Slot, plan.Winner.ID); err != nil {
			return nil, err
		}
	}

	advanced := false
	if pollsOpened {
		if err := s.store.SetSessionStatus(sess.ID, domain.StatusVoting); err != nil {
			return nil, err
		}
		if err := s.store.SetVotingStarted(sess.ID, time.Now()); err != nil {
			return nil, err
		}
	} else {
		if err := s.store.SetSessionStatus(sess.ID, domain.StatusRating); err != nil {
			return nil, err
		}
		advanced = true
	}

	s.unpinCollection(ctx, chatID, sess)

	updated, err := s.store.SessionByID(sess.ID)
	if err != nil {
		return nil, err
	}
	s.sessionLog(updated, "start_voting").Infof("опросов открыто: %v", pollsOpened)
	return &VotingStart{Session: updated, Plans: plans, Advanced: advanced}, nil
}

// FinishVoting останавливает опросы и подводит итоги по слотам.
// Ничья очищает голоса слота и сохраняет набор претендентов для
// переголосования; сессия переходит к оценкам, только когда все
// слоты решены.
func (s *Service) FinishVoting(ctx context.Context, chatID int64, actor Actor) (*VotingResult, error) {
	unlock := s.lockGroup(chatID)
	defer unlock()

	sess, err := s.requireSession(chatID, domain.StatusVoting)
	if err != nil {
		return nil, err
	}

	var outcomes []SlotOutcome
	allSettled := true
	for slot := 1; slot <= domain.Slots; slot++ {
		st := sess.Slot(slot)

		if st.WinnerID != 0 {
			winner, err := s.store.MovieByID(st.WinnerID)
			if err != nil {
				return nil, err
			}
			votes, err := s.store.CountVotes(sess.ID, st.WinnerID)
			if err != nil {
				return nil, err
			}
			outcomes = append(outcomes, SlotOutcome{
				Slot: slot, Kind: OutcomeWinner, Winner: winner, Votes: int(votes),
			})
			continue
		}
		if len(st.PollMovieIDs) == 0 {
			continue
		}
		if st.PollID == "" {
			// Ничья прошлого раунда всё ещё ждёт переголосования.
			tied, err := s.store.MoviesByIDs(st.PollMovieIDs)
			if err != nil {
				return nil, err
			}
			outcomes = append(outcomes, SlotOutcome{Slot: slot, Kind: OutcomeTie, Tied: tied})
			allSettled = false
			continue
		}

		voterCounts, err := s.polls.ClosePoll(ctx, chatID, st.PollMessageID)
		if err != nil {
			s.sessionLog(sess, "finish_voting").WithError(err).
				Warnf("слот %d: не удалось остановить опрос", slot)
			outcomes = append(outcomes, SlotOutcome{Slot: slot, Kind: OutcomePollFailed})
			allSettled = false
			continue
		}

		counts := make(map[int64]int, len(st.PollMovieIDs))
		total := 0
		for i, id := range st.PollMovieIDs {
			n := 0
			if i < len(voterCounts) {
				n = voterCounts[i]
			}
			counts[id] = n
			total += n
		}

		winners, tie := s.drawWinners(counts)
		if tie {
			if err := s.store.ResolveSlotTie(sess.ID, slot, st.PollMovieIDs, winners); err != nil {
				return nil, err
			}
			tied, err := s.store.MoviesByIDs(winners)
			if err != nil {
				return nil, err
			}
			outcomes = append(outcomes, SlotOutcome{Slot: slot, Kind: OutcomeTie, Tied: tied, Counts: counts})
			allSettled = false
			continue
		}

		winnerID := winners[0]
		if err := s.store.SetSlotWinner(sess.ID, slot, winnerID); err != nil {
			return nil, err
		}
		winner, err := s.store.MovieByID(winnerID)
		if err != nil {
			return nil, err
		}
		kind := OutcomeWinner
		if total == 0 {
			kind = OutcomeRandom
		}
		outcomes = append(outcomes, SlotOutcome{
			Slot: slot, Kind: kind, Winner: winner, Votes: counts[winnerID], Counts: counts,
		})
	}

	advanced := false
	if allSettled {
		if err := s.store.SetSessionStatus(sess.ID, domain.StatusRating); err != nil {
			return nil, err
		}
		advanced = true
	}

	updated, err := s.store.SessionByID(sess.ID)
	if err != nil {
		return nil, err
	}
	s.sessionLog(updated, "finish_voting").Infof("слоты решены: %v", allSettled)
	return &VotingResult{Session: updated, Outcomes: outcomes, Advanced: advanced}, nil
}

// Revote открывает переголосование для слотов с ничьёй. Набор
// претендентов, сжавшийся до одного фильма, побеждает без опроса.
// Переголосование всегда с одиночным выбором.
func (s *Service) Revote(ctx context.Context, chatID int64, actor Actor) (*VotingStart, error) {
	unlock := s.lockGroup(chatID)
	defer unlock()

	sess, err := s.requireSession(chatID, domain.StatusVoting)
	if err != nil {
		return nil, err
	}

	var plans []SlotPlan
	pollsOpened := false
	for slot := 1; slot <= domain.Slots; slot++ {
		st := sess.Slot(slot)
		if st.WinnerID != 0 || st.PollID != "" || len(st.PollMovieIDs) == 0 {
			continue
		}

		tied, err := s.store.MoviesByIDs(st.PollMovieIDs)
		if err != nil {
			return nil, err
		}
		plan := SlotPlan{Slot: slot, Movies: tied}

		switch len(tied) {
		case 0:
			// Все претенденты удалены, слот выбывает.
			if err := s.store.SetSlotPoll(sess.ID, slot, 0, "", []int64{}); err != nil {
				return nil, err
			}
			s.sessionLog(sess, "revote").Warnf("слот %d: претенденты удалены", slot)
			continue
		case 1:
			if err := s.store.SetSlotWinner(sess.ID, slot, tied[0].ID); err != nil {
				return nil, err
			}
			plan.Winner = &tied[0]
		default:
			question := fmt.Sprintf("🔄 Слот %d: Переголосование!", slot)
			msgID, _, err := s.openSlotPoll(ctx, chatID, sess.ID, slot, question, tied, false)
			if err != nil {
				return nil, err
			}
			plan.PollMessageID = msgID
			pollsOpened = true
		}
		plans = append(plans, plan)
	}

	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: нет слотов для переголосования", ErrWrongStatus)
	}

	updated, err := s.store.SessionByID(sess.ID)
	if err != nil {
		return nil, err
	}

	advanced := false
	if !pollsOpened && sessionSettled(updated) {
		if err := s.store.SetSessionStatus(updated.ID, domain.StatusRating); err != nil {
			return nil, err
		}
		advanced = true
		updated, err = s.store.SessionByID(sess.ID)
		if err != nil {
			return nil, err
		}
	}

	s.sessionLog(updated, "revote").Infof("опросов открыто: %v", pollsOpened)
	return &VotingStart{Session: updated, Plans: plans, Advanced: advanced}, nil
}

// CancelSession досрочно завершает любую активную сессию.
func (s *Service) CancelSession(ctx context.Context, chatID int64, actor Actor) (*domain.Session, error) {
	unlock := s.lockGroup(chatID)
	defer unlock()

	sess, err := s.activeSession(chatID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkCompleted(sess.ID, time.Now()); err != nil {
		return nil, err
	}
	s.unpinCollection(ctx, chatID, sess)

	updated, err := s.store.SessionByID(sess.ID)
	if err != nil {
		return nil, err
	}
	s.sessionLog(updated, "cancel").Info("сессия отменена")
	return updated, nil
}

// SetStatus напрямую меняет статус сессии (админская операция,
// в том числе откаты voting -> collecting и rating -> voting).
func (s *Service) SetStatus(ctx context.Context, sessionID int64, status string) (*domain.Session, error) {
	if status == domain.StatusCompleted {
		if err := s.store.MarkCompleted(sessionID, time.Now()); err != nil {
			return nil, err
		}
	} else {
		if err := s.store.SetSessionStatus(sessionID, status); err != nil {
			return nil, err
		}
	}
	return s.store.SessionByID(sessionID)
}

// SetWinner назначает фильм победителем его слота (админская операция).
func (s *Service) SetWinner(ctx context.Context, movieID int64) (*domain.Movie, error) {
	movie, err := s.store.MovieByID(movieID)
	if err != nil {
		return nil, err
	}
	if !domain.ValidSlot(movie.Slot) {
		return nil, fmt.Errorf("movie %d: bad slot %d", movie.ID, movie.Slot)
	}
	if err := s.store.SetSlotWinner(movie.SessionID, movie.Slot, movie.ID); err != nil {
		return nil, err
	}
	return movie, nil
}

// Status возвращает снимок активной сессии группы.
func (s *Service) Status(ctx context.Context, chatID int64) (*SessionView, error) {
	sess, err := s.activeSession(chatID)
	if err != nil {
		return nil, err
	}
	return s.sessionView(sess)
}

func (s *Service) sessionView(sess *domain.Session) (*SessionView, error) {
	movies, err := s.store.MoviesBySession(sess.ID)
	if err != nil {
		return nil, err
	}
	proposers, err := s.store.ProposerNames(sess.ID)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: sess, Movies: movies, Proposers: proposers}, nil
}

// openSlotPoll отправляет опрос по слоту и сохраняет его реквизиты
// вместе с порядком вариантов.
func (s *Service) openSlotPoll(ctx context.Context, chatID, sessionID int64, slot int, question string, movies []domain.Movie, multiple bool) (int64, string, error) {
	options := make([]string, len(movies))
	ids := make([]int64, len(movies))
	for i, m := range movies {
		options[i] = s.pollOption(m)
		ids[i] = m.ID
	}

	msgID, pollID, err := s.polls.OpenPoll(ctx, chatID, question, options, multiple)
	if err != nil {
		return 0, "", fmt.Errorf("open poll slot %d: %w", slot, err)
	}
	if err := s.store.SetSlotPoll(sessionID, slot, msgID, pollID, ids); err != nil {
		return 0, "", err
	}
	return msgID, pollID, nil
}

// pollOption — вариант опроса: «Название (год) — @предложивший».
func (s *Service) pollOption(m domain.Movie) string {
	text := m.Title
	if m.Year != 0 {
		text += fmt.Sprintf(" (%d)", m.Year)
	}
	return text + " — " + s.proposerName(m.UserID)
}

func (s *Service) proposerName(userID int64) string {
	u, err := s.store.GetUserByID(userID)
	if err != nil {
		return "Аноним"
	}
	return u.DisplayName()
}

func (s *Service) unpinCollection(ctx context.Context, chatID int64, sess *domain.Session) {
	if sess.PinnedMessageID == 0 {
		return
	}
	if err := s.pins.Unpin(ctx, chatID, sess.PinnedMessageID); err != nil {
		s.log.WithError(err).WithField("session", sess.ID).Warn("не удалось открепить сообщение")
	}
}

func moviesInSlot(movies []domain.Movie, slot int) []domain.Movie {
	var out []domain.Movie
	for _, m := range movies {
		if m.Slot == slot {
			out = append(out, m)
		}
	}
	return out
}

// sessionSettled — все слоты либо с победителем, либо пустые.
func sessionSettled(sess *domain.Session) bool {
	for i := range sess.Slots {
		st := &sess.Slots[i]
		if st.WinnerID == 0 && len(st.PollMovieIDs) > 0 {
			return false
		}
	}
	return true
}
