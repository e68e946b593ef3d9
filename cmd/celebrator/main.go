package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"celebration_job/internal/app"
	"celebration_job/internal/domain/notify"
	"celebration_job/internal/infra/config"
	idb "celebration_job/internal/infra/database"
	"celebration_job/internal/infra/httpapi"
	"celebration_job/internal/infra/logger"
	"celebration_job/internal/infra/messaging"
	"celebration_job/internal/infra/scheduler"
	"celebration_job/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("Celebration job starting...")

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"timezone":    cfg.Location.String(),
		"cron_spec":   cfg.CronSpec,
		"notifier":    cfg.NotifierBackend,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		mainLogger.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	if err := idb.EnsureSchema(ctx, db); err != nil {
		mainLogger.Fatalf("Could not apply schema: %v", err)
	}
	mainLogger.Info("Database connection established successfully.")

	// Initialize Repositories
	accountRepo := idb.NewPostgresAccountRepository(db)
	publicationRepo := idb.NewPostgresPublicationRepository(db)
	celebrationRepo := idb.NewPostgresCelebrationRepository(db)

	dispatcher, closeDispatcher, err := newDispatcher(cfg)
	if err != nil {
		mainLogger.Fatalf("Could not initialize notifier: %v", err)
	}
	defer closeDispatcher.Close()

	celebrationService := app.NewCelebrationService(
		accountRepo,
		publicationRepo,
		celebrationRepo,
		dispatcher,
		logger.Component("celebrations"),
		app.Options{
			Location:      cfg.Location,
			ExpiryWindow:  cfg.ExpiryWindow,
			Workers:       cfg.FanoutWorkers,
			NotifyTimeout: cfg.NotifyTimeout,
		},
	)

	// Optional operator bot
	var reporter scheduler.RunReporter
	var bot *telebot.Bot
	if cfg.TelegramEnabled() {
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				logger.Component("telegram").WithError(err).Error("telebot error")
			},
		})
		if err != nil {
			mainLogger.Fatalf("Could not create Telegram bot: %v", err)
		}
		telegram.RegisterAdminHandlers(ctx, bot, telegram.NewCommandHandler(
			celebrationService, cfg.AdminTelegramID, cfg.RunTimeout, logger.Component("telegram"),
		))
		reporter = telegram.NewOperatorReporter(telegram.NewTelebotAdapter(bot), cfg.AdminTelegramID, logger.Component("telegram"))
		go bot.Start()
		mainLogger.Info("Operator bot started.")
	}

	celebrationScheduler := scheduler.NewCelebrationScheduler(
		celebrationService,
		reporter,
		logger.Component("scheduler"),
		cfg.Location,
		cfg.CronSpec,
		cfg.RunTimeout,
	)
	if err := celebrationScheduler.Start(); err != nil {
		mainLogger.Fatalf("Could not add celebration cron job: %v", err)
	}

	server := httpapi.NewServer(celebrationService, db, cfg.TriggerToken, cfg.RunTimeout, logger.Component("http"))
	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		mainLogger.WithError(err).Error("HTTP server stopped unexpectedly")
	}

	mainLogger.Info("Shutting down application...")
	celebrationScheduler.Stop()
	if bot != nil {
		bot.Stop()
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.NotifyTimeout)
	defer cancel()
	if err := celebrationService.WaitNotifications(drainCtx); err != nil {
		mainLogger.WithError(err).Warn("Pending notifications did not finish before shutdown")
	}
	mainLogger.Info("Application shut down gracefully.")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newDispatcher(cfg *config.AppConfig) (notify.Dispatcher, io.Closer, error) {
	l := logger.Component("notifier")
	switch cfg.NotifierBackend {
	case config.NotifierAMQP:
		d, err := messaging.NewAMQPDispatcher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, l)
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	case config.NotifierKafka:
		d := messaging.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return d, d, nil
	default:
		return messaging.NewLogDispatcher(l), nopCloser{}, nil
	}
}
