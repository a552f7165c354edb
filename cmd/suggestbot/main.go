package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"github.com/gratefultolord/art_suggest_bot/internal/bot"
	"github.com/gratefultolord/art_suggest_bot/internal/config"
	"github.com/gratefultolord/art_suggest_bot/internal/db"
	"github.com/gratefultolord/art_suggest_bot/internal/logger"
	"github.com/gratefultolord/art_suggest_bot/internal/metrics"
	"github.com/gratefultolord/art_suggest_bot/internal/moderation"
	"github.com/gratefultolord/art_suggest_bot/internal/notify"
	"github.com/gratefultolord/art_suggest_bot/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "").Fatal().Err(err).Msg("Error loading config")
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ads, err := config.LoadAds(cfg.AdsFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.AdsFile).Msg("Error loading promo phrases")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}
	defer database.Close()

	if err := db.RunMigrations(ctx, database.Conn, cfg.AdminID, logger.Component(log, "db")); err != nil {
		log.Fatal().Err(err).Msg("Error running migrations")
	}

	// Long polling holds a request open for up to a minute.
	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, &http.Client{Timeout: cfg.SendTimeout + time.Minute})
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating telegram bot")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, submissions are not rate limited until it recovers")
		}
	}

	userRepo := db.NewUsersRepository(database.Conn)
	suggestionRepo := db.NewSuggestionRepository(database.Conn)
	adminRepo := db.NewAdminRepository(database.Conn)
	sessionRepo := db.NewSessionRepository(database.Conn)

	service := moderation.NewService(
		userRepo,
		suggestionRepo,
		adminRepo,
		notify.NewTelegramDispatcher(botAPI, cfg.ChannelID),
		moderation.Options{
			BotUsername:      botAPI.Self.UserName,
			Promo:            moderation.Promo{Phrases: ads.Phrases, URL: ads.URL},
			BroadcastWorkers: cfg.BroadcastWorkers,
			DispatchTimeout:  cfg.SendTimeout,
		},
		logger.Component(log, "moderation"),
	)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
			}
		}()
	}

	botService := bot.New(
		botAPI,
		service,
		sessionRepo,
		ratelimit.NewRateLimiter(redisClient, cfg.SubmitLimit, cfg.SubmitWindow),
		logger.Component(log, "bot"),
	)

	log.Info().Str("username", botAPI.Self.UserName).Msg("Bot started")

	botService.Start(ctx)

	log.Info().Msg("Bot stopped")
}
