package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"crm_reminders/internal/app"
	"crm_reminders/internal/domain/client"
	domainpush "crm_reminders/internal/domain/push"
	"crm_reminders/internal/domain/reminder"
	"crm_reminders/internal/domain/user"
	"crm_reminders/internal/infra/config"
	idb "crm_reminders/internal/infra/database"
	"crm_reminders/internal/infra/lock"
	"crm_reminders/internal/infra/logger"
	"crm_reminders/internal/infra/memory"
	"crm_reminders/internal/infra/push"
	"crm_reminders/internal/infra/scheduler"
	"crm_reminders/internal/infra/telegram"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	log := logger.Component("main")
	log.WithFields(logrus.Fields{
		"store":        cfg.StoreDriver,
		"push_channel": cfg.PushChannel,
		"environment":  cfg.Environment,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories
	var (
		reminderRepo reminder.Repository
		clientRepo   client.Repository
		userRepo     user.Repository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := memory.New()
		reminderRepo, clientRepo, userRepo = store.Reminders, store.Clients, store.Users
		log.Warn("Using in-memory store; reminders are lost on restart")
	default:
		db := mustOpenPostgres(ctx, cfg, log)
		defer db.Close()
		reminderRepo = idb.NewPostgresReminderRepository(db)
		clientRepo = idb.NewPostgresClientRepository(db)
		userRepo = idb.NewPostgresUserRepository(db)
	}

	reminderService := app.NewReminderService(reminderRepo, clientRepo, userRepo, logger.Component("reminder_service"))

	// Notification gateway and, for Telegram, the bot itself
	var (
		gateway domainpush.Gateway
		bot     *telebot.Bot
	)
	switch cfg.PushChannel {
	case config.PushChannelTelegram:
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			// Outgoing sends are bounded here; telebot ignores contexts.
			Client: &http.Client{Timeout: telegramClientTimeout(cfg.DispatchTimeout)},
			OnError: func(err error, c telebot.Context) {
				logger.Component("telegram_bot").WithError(err).Error("Telegram bot error")
			},
		})
		if err != nil {
			log.Fatalf("Could not create Telegram bot: %v", err)
		}
		telegram.NewCommands(userRepo, reminderService, logger.Component("telegram_bot")).Register(ctx, bot)
		gateway = telegram.NewGateway(bot, userRepo)
	case config.PushChannelSNS:
		snsClient, err := push.NewSNSClient(ctx, cfg.AWSRegion)
		if err != nil {
			log.Fatalf("Could not create SNS client: %v", err)
		}
		gateway = push.NewSNSGateway(snsClient, cfg.SNSTopicARN)
	default:
		gateway = push.NewLogGateway(logger.Component("log_gateway"))
	}

	dispatcher := app.NewReminderDispatcher(reminderService, clientRepo, gateway, app.DispatcherConfig{
		BatchLimit:      cfg.DueBatchLimit,
		DispatchTimeout: cfg.DispatchTimeout,
		BaseURL:         cfg.AppBaseURL,
	}, logger.Component("reminder_dispatcher"))

	schedCfg := scheduler.Config{
		CronSpec:     cfg.CronSpecReminderCheck,
		CycleTimeout: cfg.CycleTimeout,
	}
	if cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Could not connect to Redis: %v", err)
		}
		defer rdb.Close()
		schedCfg.Locker = lock.NewRedisLocker(rdb, lock.DefaultKey, cfg.CycleLockTTL, logger.Component("cycle_lock"))
		log.Info("Cross-replica cycle lock enabled")
	}

	reminderScheduler := scheduler.NewReminderScheduler(dispatcher, schedCfg, logger.Component("reminder_scheduler"))
	if err := reminderScheduler.Start(); err != nil {
		log.Fatalf("Could not start reminder scheduler: %v", err)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	if bot != nil {
		go bot.Start()
	}

	log.Info("Reminder service running")
	<-ctx.Done()

	log.Info("Shutting down...")
	if bot != nil {
		bot.Stop()
	}
	done := reminderScheduler.Stop()
	select {
	case <-done.Done():
	case <-time.After(shutdownTimeout):
		log.Warn("Reminder cycle still running at shutdown timeout")
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	log.Info("Application shut down gracefully.")
}

// telegramClientTimeout leaves room for the 10s long poll on top of the
// dispatch timeout.
func telegramClientTimeout(dispatch time.Duration) time.Duration {
	return dispatch + 15*time.Second
}

func mustOpenPostgres(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) *sql.DB {
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	if cfg.AutoMigrate {
		if err := idb.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("Could not apply database schema: %v", err)
		}
		log.Info("Database schema ensured")
	}
	log.Info("Database connection established successfully.")
	return db
}
