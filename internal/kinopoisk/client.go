// Package kinopoisk получает данные о фильмах через GraphQL API
// Кинопоиска (graphql.kinopoisk.ru).
package kinopoisk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	graphqlURL = "https://graphql.kinopoisk.ru/graphql/?operationName=FilmBaseInfo"

	// Суффикс размера постера для avatarsUrl.
	posterSize = "300x450"

	httpTimeout = 15 * time.Second
)

const filmBaseInfoQuery = `query FilmBaseInfo($filmId: Long!) {
  film(id: $filmId) {
    id
    title { russian original }
    productionYear
    genres { name }
    shortDescription
    synopsis
    gallery {
      posters {
        vertical { avatarsUrl fallbackUrl }
      }
    }
    rating {
      kinopoisk { value }
    }
    mainTrailer { id }
  }
}`

var filmIDPattern = regexp.MustCompile(`kinopoisk\.ru/film/(\d+)`)

// LookupError — ошибка получения данных фильма; текст показывается
// пользователю как есть.
type LookupError struct {
	msg string
}

func (e *LookupError) Error() string { return e.msg }

func lookupErrorf(format string, args ...any) error {
	return &LookupError{msg: fmt.Sprintf(format, args...)}
}

// Movie — данные фильма, извлечённые из ответа GraphQL.
type Movie struct {
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

type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{
		http: &http.Client{Timeout: httpTimeout},
	}
}

// ExtractID достаёт id фильма из ссылки на Кинопоиск.
// https://www.kinopoisk.ru/film/301/ -> "301".
func ExtractID(rawURL string) string {
	m := filmIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsValidURL проверяет, что ссылка ведёт на страницу фильма Кинопоиска.
func IsValidURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !strings.Contains(u.Host, "kinopoisk.ru") {
		return false
	}
	if !strings.Contains(u.Path, "/film/") {
		return false
	}
	return ExtractID(rawURL) != ""
}

// NormalizeURL приводит ссылку к каноническому виду по id фильма.
func NormalizeURL(filmID string) string {
	return fmt.Sprintf("https://www.kinopoisk.ru/film/%s/", filmID)
}

// Lookup получает данные фильма по ссылке на Кинопоиск.
func (c *Client) Lookup(ctx context.Context, rawURL string) (*Movie, error) {
	if !IsValidURL(rawURL) {
		return nil, lookupErrorf("Неверный URL Кинопоиска")
	}
	filmID := ExtractID(rawURL)
	if filmID == "" {
		return nil, lookupErrorf("Не удалось извлечь ID фильма из URL")
	}
	return c.fetch(ctx, filmID)
}

func (c *Client) fetch(ctx context.Context, filmID string) (*Movie, error) {
	numericID, err := strconv.ParseInt(filmID, 10, 64)
	if err != nil {
		return nil, lookupErrorf("Не удалось извлечь ID фильма из URL")
	}

	payload := map[string]any{
		"operationName": "FilmBaseInfo",
		"variables":     map[string]any{"filmId": numericID},
		"query":         filmBaseInfoQuery,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	setBrowserHeaders(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, lookupErrorf("Не удалось получить данные фильма с Кинопоиска")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, lookupErrorf("Кинопоиск GraphQL вернул HTTP %d", resp.StatusCode)
	}

	var envelope struct {
		Data   *filmData       `json:"data"`
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, lookupErrorf("Не удалось получить данные фильма с Кинопоиска")
	}
	if len(envelope.Errors) > 0 && envelope.Data == nil {
		return nil, lookupErrorf("Ошибка GraphQL Кинопоиска")
	}
	if envelope.Data == nil {
		return nil, lookupErrorf("Пустой ответ от GraphQL Кинопоиска")
	}

	return parseFilm(envelope.Data, filmID)
}

// Заголовки «как из браузера» — без них GraphQL отдаёт отказ.
func setBrowserHeaders(h http.Header) {
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "ru,en;q=0.9")
	h.Set("Content-Type", "application/json")
	h.Set("Origin", "https://www.kinopoisk.ru")
	h.Set("Referer", "https://www.kinopoisk.ru/")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-site")
	h.Set("Service-Id", "25")
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	h.Set("X-Preferred-Language", "ru")
}

type filmData struct {
	Film *struct {
		Title *struct {
			Russian  string `json:"russian"`
			Original string `json:"original"`
		} `json:"title"`
		ProductionYear int `json:"productionYear"`
		Genres         []struct {
			Name string `json:"name"`
		} `json:"genres"`
		ShortDescription string `json:"shortDescription"`
		Synopsis         string `json:"synopsis"`
		Gallery          *struct {
			Posters *struct {
				Vertical *posterImage `json:"vertical"`
			} `json:"posters"`
		} `json:"gallery"`
		Rating *struct {
			Kinopoisk *struct {
				Value float64 `json:"value"`
			} `json:"kinopoisk"`
		} `json:"rating"`
		MainTrailer *struct {
			ID int64 `json:"id"`
		} `json:"mainTrailer"`
	} `json:"film"`
}

type posterImage struct {
	AvatarsURL  string `json:"avatarsUrl"`
	FallbackURL string `json:"fallbackUrl"`
}

func parseFilm(data *filmData, filmID string) (*Movie, error) {
	film := data.Film
	if film == nil {
		return nil, lookupErrorf("Фильм не найден на Кинопоиске")
	}

	var title string
	if film.Title != nil {
		title = film.Title.Russian
		if title == "" {
			title = film.Title.Original
		}
	}
	if title == "" {
		return nil, lookupErrorf("Не удалось извлечь название фильма")
	}

	var genres []string
	for _, g := range film.Genres {
		if g.Name != "" {
			genres = append(genres, g.Name)
		}
	}

	description := film.ShortDescription
	if description == "" {
		description = film.Synopsis
	}

	var posterURL string
	if film.Gallery != nil && film.Gallery.Posters != nil && film.Gallery.Posters.Vertical != nil {
		posterURL = buildPosterURL(film.Gallery.Posters.Vertical.AvatarsURL, film.Gallery.Posters.Vertical.FallbackURL)
	}

	var rating float64
	if film.Rating != nil && film.Rating.Kinopoisk != nil {
		rating = film.Rating.Kinopoisk.Value
	}

	var trailerURL string
	if film.MainTrailer != nil && film.MainTrailer.ID != 0 {
		trailerURL = fmt.Sprintf("https://www.kinopoisk.ru/film/%s/video/%d/", filmID, film.MainTrailer.ID)
	}

	return &Movie{
		KinopoiskID:     filmID,
		KinopoiskURL:    NormalizeURL(filmID),
		Title:           title,
		Year:            film.ProductionYear,
		Genres:          strings.Join(genres, ", "),
		Description:     description,
		PosterURL:       posterURL,
		KinopoiskRating: rating,
		TrailerURL:      trailerURL,
	}, nil
}

// buildPosterURL собирает полный URL постера: avatarsUrl — база вида
// //avatars.mds.yandex.net/..., к ней добавляется https: и размер.
func buildPosterURL(avatarsURL, fallbackURL string) string {
	if avatarsURL != "" {
		base := strings.TrimRight(avatarsURL, "/")
		if strings.HasPrefix(base, "//") {
			base = "https:" + base
		}
		return base + "/" + posterSize
	}
	return fallbackURL
}

// IsLookupError сообщает, является ли ошибка пользовательской ошибкой
// поиска фильма (текст можно показать в чате).
func IsLookupError(err error) bool {
	var le *LookupError
	return errors.As(err, &le)
}
