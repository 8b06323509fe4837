package app

import (
	"fmt"
	"html"
	"strings"

	"github.com/medalahonor/film-bot/internal/club"
	"github.com/medalahonor/film-bot/internal/domain"
	"github.com/medalahonor/film-bot/internal/storage"
)

// Тексты сообщений собираются в HTML (parse_mode=HTML), поэтому
// пользовательские строки экранируются.

func yearSuffix(year int) string {
	if year == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d)", year)
}

func movieTitle(title string, year int) string {
	return html.EscapeString(title) + yearSuffix(year)
}

// movieCard — карточка фильма из каталога.
func movieCard(info *club.MovieInfo) string {
	var b strings.Builder
	b.WriteString("🎬 <b>" + html.EscapeString(info.Title) + "</b>")
	if info.Year != 0 {
		b.WriteString(fmt.Sprintf(" (%d)", info.Year))
	}
	if info.Genres != "" {
		b.WriteString("\n" + html.EscapeString(info.Genres))
	}
	if info.KinopoiskRating != 0 {
		b.WriteString(fmt.Sprintf("\n⭐️ %.1f на Кинопоиске", info.KinopoiskRating))
	}
	if info.Description != "" {
		b.WriteString("\n\n📝 " + html.EscapeString(info.Description))
	}
	if info.TrailerURL != "" {
		b.WriteString(fmt.Sprintf("\n\n🎥 <a href=%q>Смотреть трейлер</a>", info.TrailerURL))
	}
	return b.String()
}

// collectionText — закреплённое сообщение сбора предложений,
// редактируется после каждого принятого фильма.
func collectionText(proposers []string) string {
	text := "🎬 <b>СБОР ПРЕДЛОЖЕНИЙ ОТКРЫТ!</b>\n\n" +
		"Чтобы предложить фильм, нажмите кнопку\n" +
		"📝 <b>Предложить фильм</b> в меню бота.\n\n" +
		"─────────────────\n" +
		fmt.Sprintf("✅ <b>Уже предложили (%d):</b>\n", len(proposers))
	if len(proposers) == 0 {
		return text + "(пусто)"
	}
	escaped := make([]string, len(proposers))
	for i, p := range proposers {
		escaped[i] = html.EscapeString(p)
	}
	return text + strings.Join(escaped, ", ")
}

func duplicateText(dup *club.DuplicateError) string {
	return fmt.Sprintf(
		"⚠️ Фильм <b>%s</b> уже предложен участником %s\n\n🎬 Отправьте другую ссылку:",
		html.EscapeString(dup.Movie.Title), html.EscapeString(dup.Proposer),
	)
}

func statusText(view *club.SessionView) string {
	sess := view.Session

	emoji := "ℹ️"
	hint := ""
	switch sess.Status {
	case domain.StatusCollecting:
		emoji = "📝"
		hint = "\n💡 Нажмите 📝 Предложить фильм в меню бота"
	case domain.StatusVoting:
		emoji = "🗳"
		hint = "\n💡 Проголосуйте за фильмы в опросах выше"
	case domain.StatusRating:
		emoji = "⭐"
		hint = fmt.Sprintf("\n💡 Нажмите «%s» для оценки просмотренных фильмов", btnRate)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>Статус текущей сессии</b>\n\n", emoji)
	fmt.Fprintf(&b, "Состояние: <b>%s</b>\n", sess.Status)
	fmt.Fprintf(&b, "Создана: %s\n", sess.CreatedAt.Format("02.01.2006 15:04"))

	if len(view.Movies) > 0 {
		for slot := 1; slot <= domain.Slots; slot++ {
			first := true
			for _, m := range view.Movies {
				if m.Slot != slot {
					continue
				}
				if first {
					fmt.Fprintf(&b, "\n📍 <b>Слот %d:</b>\n", slot)
					first = false
				}
				b.WriteString("• " + movieTitle(m.Title, m.Year) + "\n")
			}
		}
	}

	b.WriteString(hint)
	return b.String()
}

// votingStartText — подтверждение после запуска голосования.
func votingStartText(start *club.VotingStart) string {
	var auto []string
	for _, plan := range start.Plans {
		if plan.Winner != nil {
			auto = append(auto, fmt.Sprintf(
				"📍 <b>Слот %d:</b> %s — единственный кандидат, автопобеда! 🎉",
				plan.Slot, movieTitle(plan.Winner.Title, plan.Winner.Year),
			))
		}
	}

	if start.Advanced {
		text := "🏆 <b>РЕЗУЛЬТАТЫ</b>\n\n"
		text += strings.Join(auto, "\n")
		text += "\n\n🍿 Приятного просмотра!\n"
		text += fmt.Sprintf("После просмотра нажмите «%s» для оценки фильмов.", btnRate)
		return text
	}

	text := "✅ Голосование началось!\n\n"
	if len(auto) > 0 {
		text += strings.Join(auto, "\n") + "\n\n"
	}
	text += "Проголосуйте за фильмы выше. Можно выбрать несколько вариантов.\n" +
		fmt.Sprintf("Когда все проголосуют, нажмите «%s».", btnFinishVoting)
	return text
}

// votingResultText — итоги голосования по слотам. nameOf переводит
// внутренний id пользователя в отображаемое имя.
func votingResultText(result *club.VotingResult, nameOf func(int64) string) string {
	var b strings.Builder
	b.WriteString("🏆 <b>РЕЗУЛЬТАТЫ ГОЛОСОВАНИЯ</b>\n\n")

	for _, out := range result.Outcomes {
		fmt.Fprintf(&b, "<b>📍 Слот %d:</b>\n", out.Slot)
		switch out.Kind {
		case club.OutcomeWinner:
			title := movieTitle(out.Winner.Title, out.Winner.Year)
			if out.Votes == 0 {
				fmt.Fprintf(&b, "🎬 %s — победитель\n", title)
			} else {
				fmt.Fprintf(&b, "🎬 %s — %d голосов\n", title, out.Votes)
			}
			fmt.Fprintf(&b, "Предложил: %s\n\n", html.EscapeString(nameOf(out.Winner.UserID)))
		case club.OutcomeRandom:
			title := movieTitle(out.Winner.Title, out.Winner.Year)
			fmt.Fprintf(&b, "🎲 %s — выбран случайно (нет голосов)\n", title)
			fmt.Fprintf(&b, "Предложил: %s\n\n", html.EscapeString(nameOf(out.Winner.UserID)))
		case club.OutcomeTie:
			b.WriteString("⚠️ Ничья! Необходимо переголосование.\n")
			for _, m := range out.Tied {
				fmt.Fprintf(&b, "• %s — %d голосов\n", movieTitle(m.Title, m.Year), out.Counts[m.ID])
			}
			b.WriteString("\n")
		case club.OutcomePollFailed:
			b.WriteString("❌ Не удалось остановить опрос.\n\n")
		}
	}

	if result.Advanced {
		b.WriteString("\n🍿 Приятного просмотра!\n")
		fmt.Fprintf(&b, "После просмотра нажмите «%s».", btnRate)
	} else {
		fmt.Fprintf(&b, "\n🔄 Нажмите «%s» для запуска нового опроса по нерешённым слотам.", btnRevote)
	}
	return b.String()
}

func revoteText(start *club.VotingStart) string {
	if start.Advanced {
		return votingStartText(start)
	}
	var slots []string
	for _, plan := range start.Plans {
		if plan.PollMessageID != 0 {
			slots = append(slots, fmt.Sprintf("%d", plan.Slot))
		}
	}
	return fmt.Sprintf(
		"🔄 Переголосование запущено для слотов: %s.\n\n"+
			"В этот раз можно выбрать только <b>один</b> вариант.\n"+
			"Когда все проголосуют, нажмите «%s».",
		strings.Join(slots, ", "), btnFinishVoting,
	)
}

// ratingPromptText — сообщение с клавиатурой оценки одного фильма.
func ratingPromptText(m domain.Movie) string {
	return fmt.Sprintf(
		"🎬 <b>Оцените фильм:</b>\n📍 Слот %d: <b>%s</b>%s\n\nВыберите оценку от 1 до 10:",
		m.Slot, html.EscapeString(m.Title), yearSuffix(m.Year),
	)
}

// scoreboardText — общая таблица оценок, редактируется после каждой
// новой оценки.
func scoreboardText(view *club.ScoreboardView) string {
	var b strings.Builder
	b.WriteString("📊 <b>ТАБЛИЦА ОЦЕНОК</b>\n")

	for _, ms := range view.Movies {
		fmt.Fprintf(&b, "\n📍 <b>Слот %d:</b> %s\n", ms.Movie.Slot, movieTitle(ms.Movie.Title, ms.Movie.Year))
		if len(ms.Entries) == 0 {
			b.WriteString("  <i>Ещё никто не оценил</i>\n")
			continue
		}
		for _, e := range ms.Entries {
			fmt.Fprintf(&b, "  👤 %s — ⭐ <b>%d</b>/10\n", html.EscapeString(e.UserName), e.Value)
		}
		fmt.Fprintf(&b, "  Средняя: <b>%.2f</b>/10\n", ms.Avg)
	}
	return b.String()
}

func finalStatsText(stats *club.FinalStats) string {
	var b strings.Builder
	b.WriteString("📊 <b>ИТОГОВАЯ СТАТИСТИКА ОЦЕНОК</b>\n\n")

	for _, ms := range stats.Movies {
		fmt.Fprintf(&b, "🎬 <b>%s</b>%s\n", html.EscapeString(ms.Movie.Title), yearSuffix(ms.Movie.Year))
		if ms.Count > 0 {
			fmt.Fprintf(&b, "   Средняя оценка: ⭐ <b>%.2f</b> (%d оценок)\n\n", ms.Avg, ms.Count)
		} else {
			b.WriteString("   Нет оценок\n\n")
		}
	}

	b.WriteString("✅ Сессия завершена!\n\n")
	fmt.Fprintf(&b, "Смотрите таблицу лидеров: %s", btnLeaderboard)
	return b.String()
}

// leaderboardText — страница таблицы лидеров. Страницы показываются
// с единицы.
func leaderboardText(page *club.LeaderboardPage) string {
	var b strings.Builder
	if page.Search != "" {
		fmt.Fprintf(&b, "🔍 <b>Результаты поиска: \"%s\"</b>\n\n", html.EscapeString(page.Search))
	} else {
		fmt.Fprintf(&b, "🏆 <b>ТАБЛИЦА ЛИДЕРОВ КИНОКЛУБА</b> (Страница %d/%d)\n\n", page.Page+1, page.Pages)
	}

	if len(page.Rows) == 0 {
		b.WriteString("Нет фильмов для отображения.")
		return b.String()
	}

	for _, row := range page.Rows {
		medal := fmt.Sprintf("%d.", row.Rank)
		switch row.Rank {
		case 1:
			medal = "🥇"
		case 2:
			medal = "🥈"
		case 3:
			medal = "🥉"
		}

		fmt.Fprintf(&b, "%s <b>%s</b>%s\n", medal, html.EscapeString(row.Movie.Title), yearSuffix(row.Movie.Year))
		if row.RatingCount > 0 {
			fmt.Fprintf(&b, "   ⭐ %.2f (%d оценок)\n", row.AvgRating, row.RatingCount)
		} else {
			b.WriteString("   Нет оценок\n")
		}
		fmt.Fprintf(&b, "   Предложил: %s\n\n", html.EscapeString(row.ProposerName))
	}

	if page.Search != "" {
		fmt.Fprintf(&b, "\nНайдено: %d фильм(ов)", len(page.Rows))
	} else {
		fmt.Fprintf(&b, "📊 Всего просмотрено: %d фильмов", page.Total)
	}
	return b.String()
}

func statsText(stats domain.ClubStats) string {
	return fmt.Sprintf(
		"📊 <b>СТАТИСТИКА КИНОКЛУБА</b>\n\n"+
			"🎬 Сессий завершено: <b>%d</b>\n"+
			"🎥 Фильмов просмотрено: <b>%d</b>\n"+
			"👥 Участников: <b>%d</b>\n"+
			"⭐ Оценок выставлено: <b>%d</b>\n",
		stats.Sessions, stats.Movies, stats.Participants, stats.Ratings,
	)
}

func dbStatsText(stats domain.DBStats) string {
	return fmt.Sprintf(
		"📊 <b>СТАТИСТИКА БАЗЫ ДАННЫХ</b>\n\n"+
			"👥 Пользователей: %d\n"+
			"🏢 Групп: %d\n"+
			"📅 Сессий: %d\n"+
			"🎬 Фильмов: %d\n"+
			"⭐ Рейтингов: %d\n",
		stats.Users, stats.Groups, stats.Sessions, stats.Movies, stats.Ratings,
	)
}

func listMoviesText(movies []storage.MovieWithStatus) string {
	if len(movies) == 0 {
		return "ℹ️ Нет фильмов в базе данных."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>📋 Последние %d фильмов:</b>\n\n", len(movies))
	for _, mw := range movies {
		fmt.Fprintf(&b,
			"ID: <code>%d</code>\n🎬 %s\nСессия: %d (%s)\nСлот: %d\n\n",
			mw.Movie.ID, movieTitle(mw.Movie.Title, mw.Movie.Year),
			mw.Movie.SessionID, mw.SessionStatus, mw.Movie.Slot,
		)
	}
	return b.String()
}

func listSessionsText(sessions []domain.Session) string {
	if len(sessions) == 0 {
		return "ℹ️ Нет сессий в базе данных."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>📅 Последние %d сессий:</b>\n\n", len(sessions))
	for _, sess := range sessions {
		fmt.Fprintf(&b, "ID: <code>%d</code> — %s\nСоздана: %s\n",
			sess.ID, sess.Status, sess.CreatedAt.Format("02.01.2006 15:04"))
		if sess.CompletedAt != nil {
			fmt.Fprintf(&b, "Завершена: %s\n", sess.CompletedAt.Format("02.01.2006 15:04"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func ratingsHintText(m *domain.Movie) string {
	return fmt.Sprintf(
		"📊 <b>Добавление рейтингов для фильма:</b>\n"+
			"🎬 %s\n\n"+
			"Отправьте рейтинги в формате:\n"+
			"<code>@username1 8\n@username2 9</code>\n\n"+
			"Или просто числа по строке (если не важны авторы):\n"+
			"<code>8\n9\n7</code>",
		movieTitle(m.Title, m.Year),
	)
}

const helpText = "🎬 <b>Бот киноклуба</b>\n\n" +
	"Используйте кнопки меню внизу экрана.\n" +
	"Если клавиатура пропала — нажмите /start\n\n" +
	"<b>📋 Управление сессией:</b>\n" +
	"🎬 Новая сессия — создать новую сессию\n" +
	"📋 Статус — текущее состояние\n" +
	"❌ Отменить сессию — отменить текущую\n\n" +
	"<b>🗳 Голосование:</b>\n" +
	"🗳 Начать голосование — запустить опросы\n" +
	"🏁 Завершить голосование — подвести итоги\n" +
	"🔄 Переголосование — при ничьей\n\n" +
	"<b>⭐ Рейтинги:</b>\n" +
	"⭐ Оценить фильмы — выставить оценку (1-10)\n" +
	"✅ Завершить сессию — завершить и показать статистику\n\n" +
	"<b>📊 Информация:</b>\n" +
	"🏆 Лидерборд — таблица лучших фильмов\n" +
	"🔍 Поиск — найти фильм по названию\n" +
	"📊 Статистика — общая статистика клуба\n\n" +
	"<b>📝 Предложение фильмов:</b>\n" +
	"📝 Предложить фильм — выбрать слот и отправить ссылку"

const adminHelpText = "👑 <b>АДМИНСКИЕ КОМАНДЫ</b>\n\n" +
	"<b>Управление фильмами:</b>\n" +
	"/add_movie - Добавить фильм-победитель вручную\n" +
	"/add_ratings &lt;movie_id&gt; - Добавить рейтинги для фильма\n" +
	"/list_movies - Показать список всех фильмов\n" +
	"/delete_movie &lt;movie_id&gt; - Удалить фильм\n" +
	"/set_winner &lt;movie_id&gt; - Назначить фильм победителем слота\n\n" +
	"<b>Управление сессиями:</b>\n" +
	"/list_sessions - Показать все сессии\n" +
	"/set_status &lt;session_id&gt; &lt;status&gt; - Сменить статус сессии\n\n" +
	"<b>Статистика:</b>\n" +
	"/stats - Статистика киноклуба\n" +
	"/db_stats - Детальная статистика по БД\n\n" +
	"💡 Все команды работают только в личных сообщениях."
