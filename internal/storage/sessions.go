package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medalahonor/film-bot/internal/domain"
)

// Колонки сессии, зависящие от номера слота.
func slotCol(slot int, suffix string) string {
	return fmt.Sprintf("poll_slot%d_%s", slot, suffix)
}

func winnerCol(slot int) string {
	return fmt.Sprintf("winner_slot%d_id", slot)
}

func ratingMsgCol(slot int) string {
	return fmt.Sprintf("rating_msg_slot%d_id", slot)
}

const sessionColumns = `
s.id, s.group_id, s.created_by, st.code,
s.pinned_message_id,
s.poll_slot1_message_id, s.poll_slot1_id, s.poll_slot1_movie_ids, s.winner_slot1_id, s.rating_msg_slot1_id,
s.poll_slot2_message_id, s.poll_slot2_id, s.poll_slot2_movie_ids, s.winner_slot2_id, s.rating_msg_slot2_id,
s.rating_scoreboard_msg_id, s.created_at, s.voting_started_at, s.completed_at`

const sessionFrom = `
FROM sessions s
JOIN session_statuses st ON st.id = s.status_id`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var (
		sess                  domain.Session
		pinned, scoreboard    sql.NullInt64
		votingStarted         sql.NullTime
		completed             sql.NullTime
		pollMsg, winner, rmsg [domain.Slots]sql.NullInt64
		pollID, movieIDs      [domain.Slots]sql.NullString
	)

	err := row.Scan(
		&sess.ID, &sess.GroupID, &sess.CreatedBy, &sess.Status,
		&pinned,
		&pollMsg[0], &pollID[0], &movieIDs[0], &winner[0], &rmsg[0],
		&pollMsg[1], &pollID[1], &movieIDs[1], &winner[1], &rmsg[1],
		&scoreboard, &sess.CreatedAt, &votingStarted, &completed,
	)
	if err != nil {
		return nil, err
	}

	sess.PinnedMessageID = pinned.Int64
	sess.ScoreboardMsgID = scoreboard.Int64
	if votingStarted.Valid {
		t := votingStarted.Time
		sess.VotingStartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		sess.CompletedAt = &t
	}

	for i := 0; i < domain.Slots; i++ {
		slot := &sess.Slots[i]
		slot.PollMessageID = pollMsg[i].Int64
		slot.PollID = pollID[i].String
		slot.WinnerID = winner[i].Int64
		slot.RatingMsgID = rmsg[i].Int64
		if movieIDs[i].Valid && movieIDs[i].String != "" {
			if err := json.Unmarshal([]byte(movieIDs[i].String), &slot.PollMovieIDs); err != nil {
				return nil, fmt.Errorf("decode slot %d movie ids: %w", i+1, err)
			}
		}
	}
	return &sess, nil
}

// ---------- Сессии ----------

func (s *Store) CreateSession(groupID, createdBy int64) (int64, error) {
	res, err := s.db.Exec(`
INSERT INTO sessions(group_id, created_by, status_id)
VALUES (?, ?, (SELECT id FROM session_statuses WHERE code = ?))
`, groupID, createdBy, domain.StatusCollecting)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CreateCompletedSession создаёт уже завершённую сессию для ручного
// добавления фильма задним числом.
func (s *Store) CreateCompletedSession(groupID, createdBy int64, date time.Time) (int64, error) {
	res, err := s.db.Exec(`
INSERT INTO sessions(group_id, created_by, status_id, created_at, completed_at)
VALUES (?, ?, (SELECT id FROM session_statuses WHERE code = ?), ?, ?)
`, groupID, createdBy, domain.StatusCompleted, date, date)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ActiveSession возвращает незавершённую сессию группы в любом статусе.
func (s *Store) ActiveSession(groupID int64) (*domain.Session, error) {
	row := s.db.QueryRow(`SELECT`+sessionColumns+sessionFrom+`
WHERE s.group_id = ? AND st.code != ?
ORDER BY s.id DESC LIMIT 1
`, groupID, domain.StatusCompleted)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

func (s *Store) ActiveSessionByStatus(groupID int64, status string) (*domain.Session, error) {
	row := s.db.QueryRow(`SELECT`+sessionColumns+sessionFrom+`
WHERE s.group_id = ? AND st.code = ?
ORDER BY s.id DESC LIMIT 1
`, groupID, status)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

func (s *Store) SessionByID(id int64) (*domain.Session, error) {
	row := s.db.QueryRow(`SELECT`+sessionColumns+sessionFrom+`
WHERE s.id = ?
`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// FindSessionByPollID находит сессию по id Telegram-опроса и номер
// слота, которому опрос принадлежит.
func (s *Store) FindSessionByPollID(pollID string) (*domain.Session, int, error) {
	row := s.db.QueryRow(`SELECT`+sessionColumns+sessionFrom+`
WHERE s.poll_slot1_id = ? OR s.poll_slot2_id = ?
`, pollID, pollID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	for i := range sess.Slots {
		if sess.Slots[i].PollID == pollID {
			return sess, i + 1, nil
		}
	}
	return nil, 0, ErrNotFound
}

func (s *Store) SetSessionStatus(sessionID int64, status string) error {
	if !domain.ValidStatus(status) {
		return fmt.Errorf("unknown status %q", status)
	}
	res, err := s.db.Exec(`
UPDATE sessions SET status_id = (SELECT id FROM session_statuses WHERE code = ?)
WHERE id = ?
`, status, sessionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetVotingStarted(sessionID int64, t time.Time) error {
	_, err := s.db.Exec(`UPDATE sessions SET voting_started_at = ? WHERE id = ?`, t, sessionID)
	return err
}

// MarkCompleted переводит сессию в завершённые и ставит отметку времени.
func (s *Store) MarkCompleted(sessionID int64, t time.Time) error {
	_, err := s.db.Exec(`
UPDATE sessions SET
    status_id = (SELECT id FROM session_statuses WHERE code = ?),
    completed_at = ?
WHERE id = ?
`, domain.StatusCompleted, t, sessionID)
	return err
}

func (s *Store) SetPinnedMessage(sessionID, messageID int64) error {
	_, err := s.db.Exec(`UPDATE sessions SET pinned_message_id = ? WHERE id = ?`, messageID, sessionID)
	return err
}

// SetSlotPoll сохраняет ссылки на опрос слота и порядок вариантов.
func (s *Store) SetSlotPoll(sessionID int64, slot int, messageID int64, pollID string, movieIDs []int64) error {
	raw, err := json.Marshal(movieIDs)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
UPDATE sessions SET %s = ?, %s = ?, %s = ? WHERE id = ?
`, slotCol(slot, "message_id"), slotCol(slot, "id"), slotCol(slot, "movie_ids"))
	_, err = s.db.Exec(q, messageID, pollID, string(raw), sessionID)
	return err
}

// SetSlotWinner записывает победителя слота и снимает ссылки на опрос.
func (s *Store) SetSlotWinner(sessionID int64, slot int, movieID int64) error {
	q := fmt.Sprintf(`
UPDATE sessions SET %s = ?, %s = NULL, %s = NULL, %s = NULL WHERE id = ?
`, winnerCol(slot), slotCol(slot, "message_id"), slotCol(slot, "id"), slotCol(slot, "movie_ids"))
	_, err := s.db.Exec(q, movieID, sessionID)
	return err
}

// ResolveSlotTie атомарно фиксирует ничью: удаляет голоса по фильмам
// слота, сохраняет список кандидатов переголосования и снимает ссылки
// на закрытый опрос.
func (s *Store) ResolveSlotTie(sessionID int64, slot int, slotMovieIDs, tiedIDs []int64) error {
	raw, err := json.Marshal(tiedIDs)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(slotMovieIDs) > 0 {
		q := `DELETE FROM votes WHERE session_id = ? AND movie_id IN (` + placeholders(len(slotMovieIDs)) + `)`
		args := append([]any{sessionID}, int64Args(slotMovieIDs)...)
		if _, err := tx.Exec(q, args...); err != nil {
			return err
		}
	}

	q := fmt.Sprintf(`
UPDATE sessions SET %s = NULL, %s = NULL, %s = ? WHERE id = ?
`, slotCol(slot, "message_id"), slotCol(slot, "id"), slotCol(slot, "movie_ids"))
	if _, err := tx.Exec(q, string(raw), sessionID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) SetSlotRatingMessage(sessionID int64, slot int, messageID int64) error {
	q := fmt.Sprintf(`UPDATE sessions SET %s = ? WHERE id = ?`, ratingMsgCol(slot))
	_, err := s.db.Exec(q, messageID, sessionID)
	return err
}

func (s *Store) SetScoreboardMessage(sessionID, messageID int64) error {
	_, err := s.db.Exec(`UPDATE sessions SET rating_scoreboard_msg_id = ? WHERE id = ?`, messageID, sessionID)
	return err
}

// ListSessions возвращает последние сессии (для админского обзора).
func (s *Store) ListSessions(limit int) ([]domain.Session, error) {
	rows, err := s.db.Query(`SELECT`+sessionColumns+sessionFrom+`
ORDER BY s.id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
