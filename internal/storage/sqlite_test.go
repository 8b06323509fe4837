package storage

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/medalahonor/film-bot/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := New(db)
	if err := s.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s, db
}

func mustCount(t *testing.T, db *sql.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count query %q: %v", query, err)
	}
	return n
}

func mustUser(t *testing.T, s *Store, telegramID int64, username string) domain.User {
	t.Helper()
	u, err := s.UpsertUser(telegramID, username, "Имя", "")
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return u
}

func mustGroup(t *testing.T, s *Store) domain.Group {
	t.Helper()
	g, err := s.GetOrCreateGroup(-100500, "Киноклуб")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return g
}

func mustSession(t *testing.T, s *Store, groupID, createdBy int64) int64 {
	t.Helper()
	id, err := s.CreateSession(groupID, createdBy)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return id
}

func mustMovie(t *testing.T, s *Store, sessionID, userID int64, slot int, kpID, title string) int64 {
	t.Helper()
	id, err := s.InsertMovie(&domain.Movie{
		SessionID:    sessionID,
		UserID:       userID,
		Slot:         slot,
		KinopoiskURL: "https://www.kinopoisk.ru/film/" + kpID + "/",
		KinopoiskID:  kpID,
		Title:        title,
		Year:         1999,
	})
	if err != nil {
		t.Fatalf("insert movie %q: %v", title, err)
	}
	return id
}

func TestUsers(t *testing.T) {
	s, db := newTestStore(t)

	u, err := s.UpsertUser(42, "neo", "Томас", "Андерсон")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if u.TelegramID == nil || *u.TelegramID != 42 {
		t.Fatalf("unexpected telegram id: %+v", u)
	}

	// Повторный апсерт обновляет запись, а не создаёт новую.
	u2, err := s.UpsertUser(42, "neo", "Нео", "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if u2.ID != u.ID || u2.FirstName != "Нео" {
		t.Fatalf("expected same user updated, got %+v", u2)
	}
	if n := mustCount(t, db, `SELECT COUNT(*) FROM users`); n != 1 {
		t.Fatalf("users = %d, want 1", n)
	}

	found, err := s.GetUserByUsername("NEO")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if found.ID != u.ID {
		t.Fatalf("username lookup returned wrong user: %+v", found)
	}

	if _, err := s.GetUserByUsername("morpheus"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	placeholderID, err := s.CreatePlaceholderUser("trinity")
	if err != nil {
		t.Fatalf("placeholder: %v", err)
	}
	ph, err := s.GetUserByID(placeholderID)
	if err != nil {
		t.Fatalf("get placeholder: %v", err)
	}
	if ph.TelegramID != nil {
		t.Fatalf("placeholder must have no telegram id: %+v", ph)
	}
	if got := ph.DisplayName(); got != "@trinity" {
		t.Fatalf("DisplayName = %q", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustGroup(t, s)
	u := mustUser(t, s, 1, "neo")

	id := mustSession(t, s, g.ID, u.ID)

	sess, err := s.ActiveSession(g.ID)
	if err != nil {
		t.Fatalf("active session: %v", err)
	}
	if sess.ID != id || sess.Status != domain.StatusCollecting {
		t.Fatalf("unexpected session: %+v", sess)
	}

	if err := s.SetSessionStatus(id, "broken"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if err := s.SetSessionStatus(id+100, domain.StatusVoting); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	now := time.Now()
	if err := s.SetSessionStatus(id, domain.StatusVoting); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := s.SetVotingStarted(id, now); err != nil {
		t.Fatalf("set voting started: %v", err)
	}

	sess, err = s.ActiveSessionByStatus(g.ID, domain.StatusVoting)
	if err != nil {
		t.Fatalf("active by status: %v", err)
	}
	if sess.VotingStartedAt == nil {
		t.Fatal("voting_started_at not set")
	}

	if err := s.MarkCompleted(id, now); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	if _, err := s.ActiveSession(g.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("completed session still active: %v", err)
	}
	sess, err = s.SessionByID(id)
	if err != nil {
		t.Fatalf("session by id: %v", err)
	}
	if sess.Status != domain.StatusCompleted || sess.CompletedAt == nil {
		t.Fatalf("unexpected completed session: %+v", sess)
	}
}

func TestSlotPollAndWinner(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustGroup(t, s)
	u := mustUser(t, s, 1, "neo")
	sessID := mustSession(t, s, g.ID, u.ID)
	m1 := mustMovie(t, s, sessID, u.ID, 1, "301", "Матрица")
	m2 := mustMovie(t, s, sessID, u.ID, 1, "302", "Матрица 2")

	if err := s.SetSlotPoll(sessID, 1, 777, "poll-abc", []int64{m1, m2}); err != nil {
		t.Fatalf("set slot poll: %v", err)
	}

	sess, slot, err := s.FindSessionByPollID("poll-abc")
	if err != nil {
		t.Fatalf("find by poll id: %v", err)
	}
	if sess.ID != sessID || slot != 1 {
		t.Fatalf("got session %d slot %d", sess.ID, slot)
	}
	st := sess.Slot(1)
	if st.PollMessageID != 777 || len(st.PollMovieIDs) != 2 || st.PollMovieIDs[0] != m1 {
		t.Fatalf("unexpected slot state: %+v", st)
	}

	if _, _, err := s.FindSessionByPollID("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetSlotWinner(sessID, 1, m2); err != nil {
		t.Fatalf("set winner: %v", err)
	}
	sess, err = s.SessionByID(sessID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	st = sess.Slot(1)
	if st.WinnerID != m2 {
		t.Fatalf("winner = %d, want %d", st.WinnerID, m2)
	}
	if st.PollMessageID != 0 || st.PollID != "" || st.PollMovieIDs != nil {
		t.Fatalf("poll refs not cleared: %+v", st)
	}
	if !sess.IsWinner(m2) || sess.IsWinner(m1) {
		t.Fatal("IsWinner mismatch")
	}
}

func TestResolveSlotTie(t *testing.T) {
	s, db := newTestStore(t)
	g := mustGroup(t, s)
	u1 := mustUser(t, s, 1, "neo")
	u2 := mustUser(t, s, 2, "trinity")
	sessID := mustSession(t, s, g.ID, u1.ID)
	m1 := mustMovie(t, s, sessID, u1.ID, 1, "301", "Матрица")
	m2 := mustMovie(t, s, sessID, u2.ID, 1, "302", "Матрица 2")
	other := mustMovie(t, s, sessID, u1.ID, 2, "303", "Матрица 3")

	if err := s.SetSlotPoll(sessID, 1, 777, "poll-abc", []int64{m1, m2}); err != nil {
		t.Fatalf("set slot poll: %v", err)
	}
	if err := s.ReplaceVotes(sessID, u1.ID, nil, []int64{m1, other}); err != nil {
		t.Fatalf("votes u1: %v", err)
	}
	if err := s.ReplaceVotes(sessID, u2.ID, nil, []int64{m2}); err != nil {
		t.Fatalf("votes u2: %v", err)
	}

	if err := s.ResolveSlotTie(sessID, 1, []int64{m1, m2}, []int64{m1, m2}); err != nil {
		t.Fatalf("resolve tie: %v", err)
	}

	// Голоса за фильмы слота удалены, голос за чужой слот остался.
	if n := mustCount(t, db, `SELECT COUNT(*) FROM votes WHERE session_id = ?`, sessID); n != 1 {
		t.Fatalf("votes after tie = %d, want 1", n)
	}

	sess, err := s.SessionByID(sessID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	st := sess.Slot(1)
	if st.PollMessageID != 0 || st.PollID != "" {
		t.Fatalf("poll refs not cleared: %+v", st)
	}
	if len(st.PollMovieIDs) != 2 || st.PollMovieIDs[0] != m1 || st.PollMovieIDs[1] != m2 {
		t.Fatalf("tied ids not stored: %+v", st.PollMovieIDs)
	}
}

func TestMovies(t *testing.T) {
	s, db := newTestStore(t)
	g := mustGroup(t, s)
	u := mustUser(t, s, 1, "neo")
	sessID := mustSession(t, s, g.ID, u.ID)

	m1 := mustMovie(t, s, sessID, u.ID, 1, "301", "Матрица")

	// Тот же фильм в той же сессии — дубликат.
	_, err := s.InsertMovie(&domain.Movie{
		SessionID: sessID, UserID: u.ID, Slot: 2,
		KinopoiskURL: "https://www.kinopoisk.ru/film/301/",
		KinopoiskID:  "301", Title: "Матрица",
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Замена предложения в слоте: старая запись уходит, новая одна.
	m2, err := s.ReplaceMovieInSlot(&domain.Movie{
		SessionID: sessID, UserID: u.ID, Slot: 1,
		KinopoiskURL: "https://www.kinopoisk.ru/film/302/",
		KinopoiskID:  "302", Title: "Матрица 2",
	})
	if err != nil {
		t.Fatalf("replace in slot: %v", err)
	}
	if n := mustCount(t, db, `SELECT COUNT(*) FROM movies WHERE session_id = ?`, sessID); n != 1 {
		t.Fatalf("movies = %d, want 1", n)
	}
	if _, err := s.MovieByID(m1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old movie must be gone: %v", err)
	}

	found, err := s.FindMovieByKinopoiskID(sessID, "302")
	if err != nil {
		t.Fatalf("find by kinopoisk id: %v", err)
	}
	if found.ID != m2 {
		t.Fatalf("found wrong movie: %+v", found)
	}

	m3 := mustMovie(t, s, sessID, u.ID, 2, "303", "Матрица 3")
	ordered, err := s.MoviesByIDs([]int64{m3, m2})
	if err != nil {
		t.Fatalf("movies by ids: %v", err)
	}
	if len(ordered) != 2 || ordered[0].ID != m3 || ordered[1].ID != m2 {
		t.Fatalf("order not preserved: %+v", ordered)
	}

	names, err := s.ProposerNames(sessID)
	if err != nil {
		t.Fatalf("proposer names: %v", err)
	}
	if len(names) != 1 || names[0] != "@neo" {
		t.Fatalf("unexpected proposers: %v", names)
	}
}

func TestDeleteMovieCascade(t *testing.T) {
	s, db := newTestStore(t)
	g := mustGroup(t, s)
	u := mustUser(t, s, 1, "neo")
	sessID := mustSession(t, s, g.ID, u.ID)
	movieID := mustMovie(t, s, sessID, u.ID, 1, "301", "Матрица")

	if err := s.ReplaceVotes(sessID, u.ID, nil, []int64{movieID}); err != nil {
		t.Fatalf("votes: %v", err)
	}
	if _, err := s.UpsertRating(sessID, movieID, u.ID, 8); err != nil {
		t.Fatalf("rating: %v", err)
	}
	if err := s.SetSlotWinner(sessID, 1, movieID); err != nil {
		t.Fatalf("set winner: %v", err)
	}

	deleted, err := s.DeleteMovie(movieID)
	if err != nil || !deleted {
		t.Fatalf("delete movie: deleted=%v err=%v", deleted, err)
	}
	if n := mustCount(t, db, `SELECT COUNT(*) FROM votes`); n != 0 {
		t.Fatalf("votes left: %d", n)
	}
	if n := mustCount(t, db, `SELECT COUNT(*) FROM ratings`); n != 0 {
		t.Fatalf("ratings left: %d", n)
	}

	sess, err := s.SessionByID(sessID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if sess.Slot(1).WinnerID != 0 {
		t.Fatalf("winner ref not cleared: %+v", sess.Slot(1))
	}

	deleted, err = s.DeleteMovie(movieID)
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}

func TestReplaceVotes(t *testing.T) {
	s, db := newTestStore(t)
	g := mustGroup(t, s)
	u := mustUser(t, s, 1, "neo")
	sessID := mustSession(t, s, g.ID, u.ID)
	m1 := mustMovie(t, s, sessID, u.ID, 1, "301", "Матрица")
	m2 := mustMovie(t, s, sessID, u.ID, 1, "302", "Матрица 2")

	poll := []int64{m1, m2}
	if err := s.ReplaceVotes(sessID, u.ID, poll, []int64{m1}); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	// Переголосование в том же опросе заменяет набор целиком.
	if err := s.ReplaceVotes(sessID, u.ID, poll, []int64{m2}); err != nil {
		t.Fatalf("revote: %v", err)
	}

	if n := mustCount(t, db, `SELECT COUNT(*) FROM votes WHERE session_id = ?`, sessID); n != 1 {
		t.Fatalf("votes = %d, want 1", n)
	}
	if n, err := s.CountVotes(sessID, m2); err != nil || n != 1 {
		t.Fatalf("CountVotes(m2) = %d, %v", n, err)
	}
	if n, err := s.CountVotes(sessID, m1); err != nil || n != 0 {
		t.Fatalf("CountVotes(m1) = %d, %v", n, err)
	}
}

func TestUpsertRating(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustGroup(t, s)
	u1 := mustUser(t, s, 1, "neo")
	u2 := mustUser(t, s, 2, "trinity")
	sessID := mustSession(t, s, g.ID, u1.ID)
	movieID := mustMovie(t, s, sessID, u1.ID, 1, "301", "Матрица")

	updated, err := s.UpsertRating(sessID, movieID, u1.ID, 7)
	if err != nil {
		t.Fatalf("first rating: %v", err)
	}
	if updated {
		t.Fatal("first rating reported as update")
	}

	updated, err = s.UpsertRating(sessID, movieID, u1.ID, 9)
	if err != nil {
		t.Fatalf("second rating: %v", err)
	}
	if !updated {
		t.Fatal("second rating not reported as update")
	}

	if _, err := s.UpsertRating(sessID, movieID, u2.ID, 6); err != nil {
		t.Fatalf("rating u2: %v", err)
	}

	m, err := s.MovieByID(movieID)
	if err != nil {
		t.Fatalf("reload movie: %v", err)
	}
	if m.ClubRating == nil || *m.ClubRating != 7.5 {
		t.Fatalf("club_rating = %v, want 7.5", m.ClubRating)
	}

	stats, err := s.RatingStats(sessID, []int64{movieID})
	if err != nil {
		t.Fatalf("rating stats: %v", err)
	}
	st := stats[movieID]
	if st.Count != 2 || st.Avg != 7.5 {
		t.Fatalf("stats = %+v", st)
	}

	rows, err := s.ScoreboardRows(sessID, []int64{movieID})
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	if len(rows) != 2 || rows[0].UserName != "@neo" || rows[0].Value != 9 {
		t.Fatalf("scoreboard rows: %+v", rows)
	}
}

func TestLeaderboard(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustGroup(t, s)
	u := mustUser(t, s, 1, "neo")

	// Три завершённые сессии с победителем в первом слоте.
	nextRaterID := int64(100)
	addWinner := func(kpID, title string, ratings []int) int64 {
		t.Helper()
		sessID := mustSession(t, s, g.ID, u.ID)
		movieID := mustMovie(t, s, sessID, u.ID, 1, kpID, title)
		if err := s.SetSlotWinner(sessID, 1, movieID); err != nil {
			t.Fatalf("set winner: %v", err)
		}
		for _, v := range ratings {
			nextRaterID++
			rater := mustUser(t, s, nextRaterID, "")
			if _, err := s.UpsertRating(sessID, movieID, rater.ID, v); err != nil {
				t.Fatalf("rating: %v", err)
			}
		}
		if err := s.MarkCompleted(sessID, time.Now()); err != nil {
			t.Fatalf("complete: %v", err)
		}
		return movieID
	}

	high := addWinner("301", "Матрица", []int{9, 10})
	low := addWinner("302", "Бегущий по лезвию", []int{5})
	unrated := addWinner("303", "Солярис", nil)

	// Не-победители и незавершённые сессии в лидерборд не попадают.
	draftSess := mustSession(t, s, g.ID, u.ID)
	mustMovie(t, s, draftSess, u.ID, 1, "304", "Сталкер")

	rows, total, err := s.Leaderboard(g.ID, 0, 10, "")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if total != 3 || len(rows) != 3 {
		t.Fatalf("total=%d rows=%d, want 3/3", total, len(rows))
	}
	if rows[0].Movie.ID != high || rows[1].Movie.ID != low || rows[2].Movie.ID != unrated {
		t.Fatalf("unexpected order: %+v", rows)
	}
	if rows[0].Rank != 1 || rows[0].AvgRating != 9.5 || rows[0].RatingCount != 2 {
		t.Fatalf("row 1: %+v", rows[0])
	}

	// Пагинация: ранг считается от начала выборки.
	page, total, err := s.Leaderboard(g.ID, 2, 10, "")
	if err != nil {
		t.Fatalf("leaderboard page 2: %v", err)
	}
	if total != 3 || len(page) != 1 || page[0].Rank != 3 || page[0].Movie.ID != unrated {
		t.Fatalf("page 2: total=%d %+v", total, page)
	}

	// Поиск по подстроке без учёта регистра, включая кириллицу:
	// хранится «Матрица», ищем в любом регистре.
	for _, query := range []string{"Матрица", "матрица", "МАТРИЦА", "атри"} {
		found, total, err := s.Leaderboard(g.ID, 0, 10, query)
		if err != nil {
			t.Fatalf("search %q: %v", query, err)
		}
		if total != 1 || len(found) != 1 || found[0].Movie.ID != high {
			t.Fatalf("search %q: total=%d %+v", query, total, found)
		}
	}

	none, total, err := s.Leaderboard(g.ID, 0, 10, "терминатор")
	if err != nil {
		t.Fatalf("search miss: %v", err)
	}
	if total != 0 || len(none) != 0 {
		t.Fatalf("search miss: total=%d %+v", total, none)
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestStore(t)
	g := mustGroup(t, s)
	u := mustUser(t, s, 1, "neo")

	sessID := mustSession(t, s, g.ID, u.ID)
	movieID := mustMovie(t, s, sessID, u.ID, 1, "301", "Матрица")
	if err := s.SetSlotWinner(sessID, 1, movieID); err != nil {
		t.Fatalf("set winner: %v", err)
	}
	if _, err := s.UpsertRating(sessID, movieID, u.ID, 8); err != nil {
		t.Fatalf("rating: %v", err)
	}
	if err := s.MarkCompleted(sessID, time.Now()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// Вторая сессия ещё идёт и в статистику просмотров не входит.
	mustSession(t, s, g.ID, u.ID)

	club, err := s.ClubStats(g.ID)
	if err != nil {
		t.Fatalf("club stats: %v", err)
	}
	if club.Sessions != 1 || club.Movies != 1 || club.Participants != 1 || club.Ratings != 1 {
		t.Fatalf("club stats: %+v", club)
	}

	db2, err := s.DBStats()
	if err != nil {
		t.Fatalf("db stats: %v", err)
	}
	if db2.Users != 1 || db2.Groups != 1 || db2.Sessions != 2 || db2.Movies != 1 || db2.Ratings != 1 {
		t.Fatalf("db stats: %+v", db2)
	}
}
