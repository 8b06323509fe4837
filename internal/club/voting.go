package club

import (
	"context"
	"errors"
	"math/rand"
	"sort"

	"github.com/medalahonor/film-bot/internal/storage"
)

// resolveVotes определяет победителей слота по счётчикам голосов.
// Пустой набор — нет победителя. Если никто не проголосовал, жребий
// выбирает одного случайного победителя, это не ничья. Иначе
// победители — все фильмы с максимумом голосов; ничья при двух и более.
func resolveVotes(counts map[int64]int, rng *rand.Rand) (winners []int64, tie bool) {
	if len(counts) == 0 {
		return nil, false
	}

	ids := make([]int64, 0, len(counts))
	total := 0
	for id, n := range counts {
		ids = append(ids, id)
		total += n
	}
	// Стабильный порядок, чтобы жребий был воспроизводим при
	// фиксированном seed.
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if total == 0 {
		return []int64{ids[rng.Intn(len(ids))]}, false
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	for _, id := range ids {
		if counts[id] == max {
			winners = append(winners, id)
		}
	}
	return winners, len(winners) > 1
}

// drawWinners — потокобезопасная обёртка resolveVotes.
func (s *Service) drawWinners(counts map[int64]int) ([]int64, bool) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return resolveVotes(counts, s.rng)
}

// RecordPollAnswer сохраняет ответ пользователя на опрос, заменяя его
// прежний выбор в этом опросе целиком (отзыв голоса — пустой список).
// Возвращает ErrNoSession, если опрос боту не знаком.
func (s *Service) RecordPollAnswer(ctx context.Context, pollID string, actor Actor, optionIndexes []int) error {
	sess, slot, err := s.store.FindSessionByPollID(pollID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoSession
		}
		return err
	}

	user, err := s.upsertActor(actor)
	if err != nil {
		return err
	}

	pollMovieIDs := sess.Slot(slot).PollMovieIDs
	var chosen []int64
	for _, idx := range optionIndexes {
		if idx >= 0 && idx < len(pollMovieIDs) {
			chosen = append(chosen, pollMovieIDs[idx])
		}
	}

	if err := s.store.ReplaceVotes(sess.ID, user.ID, pollMovieIDs, chosen); err != nil {
		return err
	}
	s.sessionLog(sess, "poll_answer").WithField("user", user.ID).
		Debugf("слот %d: выбрано %d вариантов", slot, len(chosen))
	return nil
}
