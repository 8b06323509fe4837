// Package config загружает конфигурацию бота из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// GroupRule — авторизованная группа и (опционально) id топика,
// в котором бот отвечает. Формат токена в TELEGRAM_GROUP_IDS:
// "<chat_id>" или "<chat_id>:<topic_id>".
//
// Ограничение по топику принимается для совместимости формата, но на
// уровне доступа применяется только фильтр по группе: Bot API 5.5,
// на который рассчитана используемая библиотека, ещё не передаёт
// идентификаторы топиков в сообщениях.
type GroupRule struct {
	ChatID  int64
	TopicID int64
}

type Config struct {
	BotToken  string  `env:"TELEGRAM_BOT_TOKEN"`
	AdminIDs  []int64 `env:"TELEGRAM_ADMIN_IDS" envSeparator:","`
	RawGroups string  `env:"TELEGRAM_GROUP_IDS"`
	DBPath    string  `env:"DB_PATH" envDefault:"data/filmbot.db"`
	Debug     bool    `env:"BOT_DEBUG" envDefault:"false"`
	LogLevel  string  `env:"LOG_LEVEL" envDefault:"info"`

	groups []GroupRule
}

// Load читает конфигурацию из окружения и валидирует её.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	groups, err := ParseGroups(cfg.RawGroups)
	if err != nil {
		return Config{}, err
	}
	cfg.groups = groups

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseGroups разбирает список "id[:topic]" через запятую.
func ParseGroups(raw string) ([]GroupRule, error) {
	var groups []GroupRule
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" || token == "0" {
			continue
		}

		idPart, topicPart, hasTopic := strings.Cut(token, ":")
		chatID, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_GROUP_IDS: некорректный id группы %q", token)
		}

		rule := GroupRule{ChatID: chatID}
		if hasTopic && strings.TrimSpace(topicPart) != "" {
			topicID, err := strconv.ParseInt(strings.TrimSpace(topicPart), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("TELEGRAM_GROUP_IDS: некорректный id топика %q", token)
			}
			rule.TopicID = topicID
		}
		groups = append(groups, rule)
	}
	return groups, nil
}

func (c Config) Validate() error {
	if c.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN не задан")
	}
	if len(c.groups) == 0 {
		return errors.New("TELEGRAM_GROUP_IDS не задан или пуст")
	}
	if len(c.AdminIDs) == 0 {
		return errors.New("TELEGRAM_ADMIN_IDS не задан")
	}
	return nil
}

func (c Config) Groups() []GroupRule {
	return c.groups
}

// PrimaryGroup возвращает первую авторизованную группу: туда
// привязываются сессии, созданные админом вручную.
func (c Config) PrimaryGroup() GroupRule {
	if len(c.groups) == 0 {
		return GroupRule{}
	}
	return c.groups[0]
}

func (c Config) GroupAllowed(chatID int64) bool {
	for _, g := range c.groups {
		if g.ChatID == chatID {
			return true
		}
	}
	return false
}

func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
