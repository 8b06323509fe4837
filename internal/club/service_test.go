package club

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medalahonor/film-bot/internal/domain"
	"github.com/medalahonor/film-bot/internal/storage"
)

const testChatID = int64(-100500)

type fakePoll struct {
	MessageID int64
	PollID    string
	Question  string
	Options   []string
	Multiple  bool
}

type fakePolls struct {
	nextID   int64
	opened   []fakePoll
	closed   []int64
	counts   map[int64][]int
	openErr  error
	closeErr error
}

func (f *fakePolls) OpenPoll(ctx context.Context, chatID int64, question string, options []string, multiple bool) (int64, string, error) {
	if f.openErr != nil {
		return 0, "", f.openErr
	}
	f.nextID++
	p := fakePoll{
		MessageID: f.nextID,
		PollID:    fmt.Sprintf("poll-%d", f.nextID),
		Question:  question,
		Options:   options,
		Multiple:  multiple,
	}
	f.opened = append(f.opened, p)
	return p.MessageID, p.PollID, nil
}

func (f *fakePolls) ClosePoll(ctx context.Context, chatID, messageID int64) ([]int, error) {
	if f.closeErr != nil {
		return nil, f.closeErr
	}
	f.closed = append(f.closed, messageID)
	return f.counts[messageID], nil
}

type fakePins struct {
	pinned   []int64
	unpinned []int64
}

func (f *fakePins) Pin(ctx context.Context, chatID, messageID int64) error {
	f.pinned = append(f.pinned, messageID)
	return nil
}

func (f *fakePins) Unpin(ctx context.Context, chatID, messageID int64) error {
	f.unpinned = append(f.unpinned, messageID)
	return nil
}

type fakeLookup struct {
	movies map[string]*MovieInfo
}

func (f *fakeLookup) Lookup(ctx context.Context, rawURL string) (*MovieInfo, error) {
	if m, ok := f.movies[rawURL]; ok {
		return m, nil
	}
	return nil, errors.New("фильм не найден")
}

func newTestService(t *testing.T) (*Service, *fakePolls, *fakePins, *fakeLookup) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := storage.New(db)
	if err := store.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	polls := &fakePolls{counts: make(map[int64][]int)}
	pins := &fakePins{}
	lookup := &fakeLookup{movies: make(map[string]*MovieInfo)}
	svc := NewService(store, polls, pins, lookup, log, rand.New(rand.NewSource(1)))
	return svc, polls, pins, lookup
}

func testInfo(kpID, title string) *MovieInfo {
	return &MovieInfo{
		KinopoiskID:  kpID,
		KinopoiskURL: "https://www.kinopoisk.ru/film/" + kpID + "/",
		Title:        title,
		Year:         1999,
	}
}

func mustConfirm(t *testing.T, svc *Service, actor Actor, info *MovieInfo, slot int) *SessionView {
	t.Helper()
	view, err := svc.ConfirmProposal(context.Background(), testChatID, actor, info, slot)
	if err != nil {
		t.Fatalf("confirm %q: %v", info.Title, err)
	}
	return view
}

func TestSessionFullLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, polls, pins, _ := newTestService(t)
	neo := Actor{TelegramID: 1, Username: "neo"}
	trinity := Actor{TelegramID: 2, Username: "trinity"}

	sess, err := svc.CreateSession(ctx, testChatID, "Киноклуб", neo)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.Status != domain.StatusCollecting {
		t.Fatalf("status = %s", sess.Status)
	}
	if _, err := svc.CreateSession(ctx, testChatID, "Киноклуб", trinity); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("second session: %v", err)
	}

	if err := svc.AttachPinnedMessage(ctx, testChatID, sess.ID, 555); err != nil {
		t.Fatalf("attach pinned: %v", err)
	}
	if len(pins.pinned) != 1 || pins.pinned[0] != 555 {
		t.Fatalf("pinned: %v", pins.pinned)
	}

	mustConfirm(t, svc, neo, testInfo("301", "Матрица"), 1)
	mustConfirm(t, svc, trinity, testInfo("302", "Бегущий по лезвию"), 1)
	view := mustConfirm(t, svc, neo, testInfo("303", "Солярис"), 2)
	if len(view.Movies) != 3 || len(view.Proposers) != 2 {
		t.Fatalf("view: %d movies, %d proposers", len(view.Movies), len(view.Proposers))
	}

	start, err := svc.StartVoting(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("start voting: %v", err)
	}
	if start.Advanced {
		t.Fatal("must not advance while a poll is open")
	}
	if start.Session.Status != domain.StatusVoting {
		t.Fatalf("status = %s", start.Session.Status)
	}
	if len(pins.unpinned) != 1 || pins.unpinned[0] != 555 {
		t.Fatalf("unpinned: %v", pins.unpinned)
	}

	// Слот 1 голосуется, слот 2 выигрывает единственный кандидат.
	if len(start.Plans) != 2 {
		t.Fatalf("plans: %+v", start.Plans)
	}
	if start.Plans[0].PollMessageID == 0 || start.Plans[0].Winner != nil {
		t.Fatalf("slot 1 plan: %+v", start.Plans[0])
	}
	if start.Plans[1].Winner == nil || start.Plans[1].Winner.Title != "Солярис" {
		t.Fatalf("slot 2 plan: %+v", start.Plans[1])
	}
	if len(polls.opened) != 1 || !polls.opened[0].Multiple {
		t.Fatalf("opened polls: %+v", polls.opened)
	}
	if polls.opened[0].Question != "🎬 Слот 1: Выберите фильм(ы)" {
		t.Fatalf("question: %q", polls.opened[0].Question)
	}
	if got := polls.opened[0].Options[0]; got != "Матрица (1999) — @neo" {
		t.Fatalf("option: %q", got)
	}

	poll := polls.opened[0]
	if err := svc.RecordPollAnswer(ctx, poll.PollID, neo, []int{0}); err != nil {
		t.Fatalf("answer neo: %v", err)
	}
	if err := svc.RecordPollAnswer(ctx, poll.PollID, trinity, []int{0}); err != nil {
		t.Fatalf("answer trinity: %v", err)
	}
	if err := svc.RecordPollAnswer(ctx, "unknown-poll", neo, []int{0}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("unknown poll: %v", err)
	}

	polls.counts[poll.MessageID] = []int{2, 0}
	result, err := svc.FinishVoting(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("finish voting: %v", err)
	}
	if !result.Advanced || result.Session.Status != domain.StatusRating {
		t.Fatalf("not advanced: %+v", result.Session)
	}
	if len(result.Outcomes) != 2 {
		t.Fatalf("outcomes: %+v", result.Outcomes)
	}
	slot1 := result.Outcomes[0]
	if slot1.Kind != OutcomeWinner || slot1.Winner.Title != "Матрица" || slot1.Votes != 2 {
		t.Fatalf("slot 1 outcome: %+v", slot1)
	}

	rating, err := svc.StartRating(ctx, testChatID)
	if err != nil {
		t.Fatalf("start rating: %v", err)
	}
	if len(rating.Winners) != 2 {
		t.Fatalf("winners: %+v", rating.Winners)
	}
	err = svc.AttachRatingMessages(ctx, sess.ID, map[int]int64{1: 900, 2: 901}, 902)
	if err != nil {
		t.Fatalf("attach rating messages: %v", err)
	}
	if _, err := svc.StartRating(ctx, testChatID); !errors.Is(err, ErrRatingStarted) {
		t.Fatalf("repeated start rating: %v", err)
	}

	winner := slot1.Winner
	sub, err := svc.SubmitRating(ctx, testChatID, neo, winner.ID, 8)
	if err != nil || sub.Updated {
		t.Fatalf("first rating: %+v, %v", sub, err)
	}
	sub, err = svc.SubmitRating(ctx, testChatID, neo, winner.ID, 9)
	if err != nil || !sub.Updated {
		t.Fatalf("second rating: %+v, %v", sub, err)
	}
	if _, err := svc.SubmitRating(ctx, testChatID, neo, winner.ID, 11); !errors.Is(err, ErrBadRating) {
		t.Fatalf("out of range: %v", err)
	}
	var loserID int64
	for _, m := range start.Plans[0].Movies {
		if m.ID != winner.ID {
			loserID = m.ID
		}
	}
	if _, err := svc.SubmitRating(ctx, testChatID, neo, loserID, 5); !errors.Is(err, ErrNotWinner) {
		t.Fatalf("loser rating: %v", err)
	}

	board, err := svc.Scoreboard(ctx, sess.ID)
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	if len(board.Movies) != 2 {
		t.Fatalf("scoreboard movies: %+v", board.Movies)
	}
	if board.Movies[0].Count != 1 || board.Movies[0].Avg != 9 {
		t.Fatalf("scoreboard slot 1: %+v", board.Movies[0])
	}

	final, err := svc.CompleteSession(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if final.Session.Status != domain.StatusCompleted || final.Session.CompletedAt == nil {
		t.Fatalf("final session: %+v", final.Session)
	}
	if _, err := svc.Status(ctx, testChatID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("status after completion: %v", err)
	}

	page, err := svc.Leaderboard(ctx, testChatID, 0, "")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if page.Total != 2 || len(page.Rows) != 2 {
		t.Fatalf("leaderboard: total=%d rows=%d", page.Total, len(page.Rows))
	}
	if page.Rows[0].Movie.ID != winner.ID {
		t.Fatalf("rated movie must lead: %+v", page.Rows[0])
	}
}

func TestTieAndRevote(t *testing.T) {
	ctx := context.Background()
	svc, polls, _, _ := newTestService(t)
	neo := Actor{TelegramID: 1, Username: "neo"}
	trinity := Actor{TelegramID: 2, Username: "trinity"}

	if _, err := svc.CreateSession(ctx, testChatID, "Киноклуб", neo); err != nil {
		t.Fatalf("create session: %v", err)
	}
	mustConfirm(t, svc, neo, testInfo("301", "Матрица"), 1)
	mustConfirm(t, svc, trinity, testInfo("302", "Бегущий по лезвию"), 1)

	if _, err := svc.StartVoting(ctx, testChatID, neo); err != nil {
		t.Fatalf("start voting: %v", err)
	}
	first := polls.opened[0]

	polls.counts[first.MessageID] = []int{1, 1}
	result, err := svc.FinishVoting(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("finish voting: %v", err)
	}
	if result.Advanced || result.Session.Status != domain.StatusVoting {
		t.Fatalf("tie must not advance: %+v", result.Session)
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].Kind != OutcomeTie {
		t.Fatalf("outcomes: %+v", result.Outcomes)
	}
	if len(result.Outcomes[0].Tied) != 2 {
		t.Fatalf("tied: %+v", result.Outcomes[0].Tied)
	}

	// Пока переголосование не запущено, итог остаётся ничьей.
	again, err := svc.FinishVoting(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("finish again: %v", err)
	}
	if again.Advanced || again.Outcomes[0].Kind != OutcomeTie {
		t.Fatalf("pending tie: %+v", again.Outcomes)
	}

	revote, err := svc.Revote(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("revote: %v", err)
	}
	if revote.Advanced || len(polls.opened) != 2 {
		t.Fatalf("revote: advanced=%v polls=%d", revote.Advanced, len(polls.opened))
	}
	second := polls.opened[1]
	if second.Multiple {
		t.Fatal("revote poll must be single choice")
	}
	if second.Question != "🔄 Слот 1: Переголосование!" {
		t.Fatalf("question: %q", second.Question)
	}

	polls.counts[second.MessageID] = []int{0, 2}
	result, err = svc.FinishVoting(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("finish revote: %v", err)
	}
	if !result.Advanced || result.Outcomes[0].Kind != OutcomeWinner {
		t.Fatalf("revote outcome: %+v", result.Outcomes)
	}
	if result.Outcomes[0].Winner.Title != "Бегущий по лезвию" {
		t.Fatalf("winner: %+v", result.Outcomes[0].Winner)
	}
}

func TestStartVotingAutoAdvance(t *testing.T) {
	ctx := context.Background()
	svc, polls, _, _ := newTestService(t)
	neo := Actor{TelegramID: 1, Username: "neo"}

	if _, err := svc.CreateSession(ctx, testChatID, "Киноклуб", neo); err != nil {
		t.Fatalf("create session: %v", err)
	}
	mustConfirm(t, svc, neo, testInfo("301", "Матрица"), 1)

	// Единственный кандидат единственного занятого слота: сессия
	// минует голосование целиком.
	start, err := svc.StartVoting(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("start voting: %v", err)
	}
	if !start.Advanced || start.Session.Status != domain.StatusRating {
		t.Fatalf("must advance straight to rating: %+v", start.Session)
	}
	if len(polls.opened) != 0 {
		t.Fatalf("no polls expected: %+v", polls.opened)
	}
	if len(start.Plans) != 1 || start.Plans[0].Winner == nil || start.Plans[0].Winner.Title != "Матрица" {
		t.Fatalf("plans: %+v", start.Plans)
	}
	if start.Session.Slot(1).WinnerID != start.Plans[0].Winner.ID {
		t.Fatalf("slot 1 winner not persisted: %+v", start.Session.Slots)
	}
	if start.Session.Slot(2).WinnerID != 0 {
		t.Fatalf("empty slot must stay without winner: %+v", start.Session.Slots)
	}

	rating, err := svc.StartRating(ctx, testChatID)
	if err != nil || len(rating.Winners) != 1 {
		t.Fatalf("start rating: %+v, %v", rating, err)
	}
}

func TestStartVotingPollFailureKeepsCollecting(t *testing.T) {
	ctx := context.Background()
	svc, polls, _, _ := newTestService(t)
	neo := Actor{TelegramID: 1, Username: "neo"}
	trinity := Actor{TelegramID: 2, Username: "trinity"}

	if _, err := svc.CreateSession(ctx, testChatID, "Киноклуб", neo); err != nil {
		t.Fatalf("create session: %v", err)
	}
	mustConfirm(t, svc, neo, testInfo("303", "Солярис"), 1)
	mustConfirm(t, svc, neo, testInfo("301", "Матрица"), 2)
	mustConfirm(t, svc, trinity, testInfo("302", "Бегущий по лезвию"), 2)

	polls.openErr = errors.New("telegram недоступен")
	if _, err := svc.StartVoting(ctx, testChatID, neo); err == nil {
		t.Fatal("expected poll failure")
	}

	// Сбой опроса не должен оставить следов: сессия всё ещё в сборе,
	// автопобедитель первого слота не записан.
	view, err := svc.Status(ctx, testChatID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Session.Status != domain.StatusCollecting {
		t.Fatalf("status = %s, want collecting", view.Session.Status)
	}
	if view.Session.Slot(1).WinnerID != 0 {
		t.Fatalf("winner written before polls opened: %+v", view.Session.Slots)
	}

	// Повторный запуск после восстановления проходит целиком.
	polls.openErr = nil
	start, err := svc.StartVoting(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("retry start voting: %v", err)
	}
	if start.Advanced || start.Session.Status != domain.StatusVoting {
		t.Fatalf("retry: %+v", start.Session)
	}
	if start.Session.Slot(1).WinnerID == 0 {
		t.Fatalf("slot 1 auto-winner missing: %+v", start.Session.Slots)
	}
	if len(polls.opened) != 1 {
		t.Fatalf("opened polls: %+v", polls.opened)
	}
}

func TestRevoteShrunkTie(t *testing.T) {
	ctx := context.Background()
	svc, polls, _, _ := newTestService(t)
	neo := Actor{TelegramID: 1, Username: "neo"}
	trinity := Actor{TelegramID: 2, Username: "trinity"}

	if _, err := svc.CreateSession(ctx, testChatID, "Киноклуб", neo); err != nil {
		t.Fatalf("create session: %v", err)
	}
	mustConfirm(t, svc, neo, testInfo("301", "Матрица"), 1)
	mustConfirm(t, svc, trinity, testInfo("302", "Бегущий по лезвию"), 1)

	if _, err := svc.StartVoting(ctx, testChatID, neo); err != nil {
		t.Fatalf("start voting: %v", err)
	}
	poll := polls.opened[0]
	polls.counts[poll.MessageID] = []int{1, 1}
	result, err := svc.FinishVoting(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("finish voting: %v", err)
	}
	if result.Outcomes[0].Kind != OutcomeTie {
		t.Fatalf("outcome: %+v", result.Outcomes[0])
	}
	tied := result.Outcomes[0].Tied

	// Один из претендентов удалён между ничьёй и переголосованием:
	// оставшийся побеждает без нового опроса.
	if deleted, err := svc.DeleteMovie(ctx, tied[0].ID); err != nil || !deleted {
		t.Fatalf("delete tied movie: %v %v", deleted, err)
	}

	revote, err := svc.Revote(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("revote: %v", err)
	}
	if !revote.Advanced || revote.Session.Status != domain.StatusRating {
		t.Fatalf("survivor must settle the session: %+v", revote.Session)
	}
	if len(polls.opened) != 1 {
		t.Fatalf("no new poll expected: %+v", polls.opened)
	}
	if len(revote.Plans) != 1 || revote.Plans[0].Winner == nil || revote.Plans[0].Winner.ID != tied[1].ID {
		t.Fatalf("plans: %+v", revote.Plans)
	}
}

func TestZeroVotesDrawsRandomWinner(t *testing.T) {
	ctx := context.Background()
	svc, polls, _, _ := newTestService(t)
	neo := Actor{TelegramID: 1, Username: "neo"}
	trinity := Actor{TelegramID: 2, Username: "trinity"}

	if _, err := svc.CreateSession(ctx, testChatID, "Киноклуб", neo); err != nil {
		t.Fatalf("create session: %v", err)
	}
	mustConfirm(t, svc, neo, testInfo("301", "Матрица"), 1)
	mustConfirm(t, svc, trinity, testInfo("302", "Бегущий по лезвию"), 1)

	if _, err := svc.StartVoting(ctx, testChatID, neo); err != nil {
		t.Fatalf("start voting: %v", err)
	}
	poll := polls.opened[0]

	polls.counts[poll.MessageID] = []int{0, 0}
	result, err := svc.FinishVoting(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("finish voting: %v", err)
	}
	outcome := result.Outcomes[0]
	if outcome.Kind != OutcomeRandom || outcome.Winner == nil {
		t.Fatalf("outcome: %+v", outcome)
	}
	if !result.Advanced {
		t.Fatal("random draw must settle the slot")
	}
}

func TestProposeDuplicates(t *testing.T) {
	ctx := context.Background()
	svc, _, _, lookup := newTestService(t)
	neo := Actor{TelegramID: 1, Username: "neo"}
	trinity := Actor{TelegramID: 2, Username: "trinity"}

	url := "https://www.kinopoisk.ru/film/301/"
	lookup.movies[url] = testInfo("301", "Матрица")

	if _, err := svc.Propose(ctx, testChatID, neo, url); !errors.Is(err, ErrNoSession) {
		t.Fatalf("propose without session: %v", err)
	}

	if _, err := svc.CreateSession(ctx, testChatID, "Киноклуб", neo); err != nil {
		t.Fatalf("create session: %v", err)
	}

	info, err := svc.Propose(ctx, testChatID, neo, url)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	mustConfirm(t, svc, neo, info, 1)

	// Чужой дубликат отклоняется с именем предложившего.
	var dup *DuplicateError
	if _, err := svc.Propose(ctx, testChatID, trinity, url); !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.Proposer != "@neo" || dup.Movie.Title != "Матрица" {
		t.Fatalf("duplicate: %+v", dup)
	}

	// Своё предложение можно переложить в другой слот.
	view := mustConfirm(t, svc, neo, info, 2)
	if len(view.Movies) != 1 || view.Movies[0].Slot != 2 {
		t.Fatalf("after move: %+v", view.Movies)
	}

	if _, err := svc.StartVoting(ctx, testChatID, neo); err != nil {
		t.Fatalf("start voting: %v", err)
	}
	if _, err := svc.Propose(ctx, testChatID, trinity, url); !errors.Is(err, ErrWrongStatus) {
		t.Fatalf("propose during voting: %v", err)
	}
}

func TestStartVotingWithoutMovies(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	neo := Actor{TelegramID: 1, Username: "neo"}

	if _, err := svc.CreateSession(ctx, testChatID, "Киноклуб", neo); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := svc.StartVoting(ctx, testChatID, neo); !errors.Is(err, ErrNoMovies) {
		t.Fatalf("expected ErrNoMovies, got %v", err)
	}
}

func TestCancelSession(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	neo := Actor{TelegramID: 1, Username: "neo"}

	if _, err := svc.CreateSession(ctx, testChatID, "Киноклуб", neo); err != nil {
		t.Fatalf("create session: %v", err)
	}
	sess, err := svc.CancelSession(ctx, testChatID, neo)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sess.Status != domain.StatusCompleted {
		t.Fatalf("status after cancel: %s", sess.Status)
	}
	if _, err := svc.Status(ctx, testChatID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("status: %v", err)
	}

	// Отменённая сессия без победителей в лидерборд не попадает.
	page, err := svc.Leaderboard(ctx, testChatID, 0, "")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("leaderboard total: %d", page.Total)
	}
}

func TestAdminAddMovieAndImportRatings(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)
	admin := Actor{TelegramID: 99, Username: "admin"}

	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	movie, err := svc.AdminAddMovie(ctx, testChatID, admin, testInfo("435", "Зелёная миля"), date, "@morpheus")
	if err != nil {
		t.Fatalf("admin add movie: %v", err)
	}
	if movie.Slot != 1 {
		t.Fatalf("movie: %+v", movie)
	}

	applied, err := svc.ImportRatings(ctx, movie.ID, "@neo 8\n7\nмусор\n@vasya 11\n@morpheus 10")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if applied != 3 {
		t.Fatalf("applied = %d, want 3", applied)
	}

	page, err := svc.Leaderboard(ctx, testChatID, 0, "")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if page.Total != 1 || page.Rows[0].RatingCount != 3 {
		t.Fatalf("leaderboard: %+v", page)
	}
	if got := page.Rows[0].AvgRating; got != 8.33 {
		t.Fatalf("avg = %v, want 8.33", got)
	}
	if page.Rows[0].ProposerName != "@morpheus" {
		t.Fatalf("proposer: %q", page.Rows[0].ProposerName)
	}

	stats, err := svc.ClubStats(ctx, testChatID)
	if err != nil {
		t.Fatalf("club stats: %v", err)
	}
	if stats.Sessions != 1 || stats.Movies != 1 || stats.Ratings != 3 {
		t.Fatalf("club stats: %+v", stats)
	}

	deleted, err := svc.DeleteMovie(ctx, movie.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}
	deleted, err = svc.DeleteMovie(ctx, movie.ID)
	if err != nil || deleted {
		t.Fatalf("second delete: %v %v", deleted, err)
	}
}
