package main

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/medalahonor/film-bot/internal/app"
	"github.com/medalahonor/film-bot/internal/club"
	"github.com/medalahonor/film-bot/internal/config"
	"github.com/medalahonor/film-bot/internal/kinopoisk"
	"github.com/medalahonor/film-bot/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("ошибка конфигурации: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("ошибка открытия БД: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := storage.New(db)
	if err := store.InitSchema(); err != nil {
		log.Fatalf("ошибка инициализации схемы БД: %v", err)
	}
	for _, id := range cfg.AdminIDs {
		if err := store.UpsertAdmin(id, ""); err != nil {
			log.WithError(err).Warnf("не удалось зарегистрировать админа %d", id)
		}
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("ошибка создания бота: %v", err)
	}
	bot.Debug = cfg.Debug
	log.Infof("Бот запущен как @%s", bot.Self.UserName)

	kp := kinopoisk.NewClient()
	lookup := app.NewMovieLookup(kp)
	rng := rand.New(rand.NewSource(randomSeed()))

	svc := club.NewService(store, app.NewPollService(bot), app.NewPinner(bot), lookup, log, rng)

	application := app.New(bot, cfg, svc, lookup, log)
	application.Run(ctx)

	log.Info("Выключаемся…")
}

// randomSeed берёт seed для жребия из crypto/rand, при сбое — из часов.
func randomSeed() int64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
