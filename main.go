package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsprint/config"
	"mailsprint/engine"
	"mailsprint/mailer"
	"mailsprint/middleware"
	"mailsprint/routes"
	"mailsprint/store"
	"mailsprint/worker"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Warnf("Failed to initialize Sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	st := store.New(config.AppConfig.Redis, logger)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := st.Ping(ctx); err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}

	transport := mailer.New(config.AppConfig.SendTimeout, logger)
	dispatcher := engine.NewDispatcher(st, transport, logger, config.AppConfig.TrackingBaseURL, config.AppConfig.EncryptionKey)
	fetcher := engine.NewIMAPFetcher(config.AppConfig.IMAPTimeout, logger)
	checker := engine.NewReplyChecker(st, fetcher, logger, config.AppConfig.EncryptionKey)

	dispatchWorker := worker.NewDispatchWorker(st, dispatcher, logger, config.AppConfig.DispatchInterval)
	go dispatchWorker.Start(ctx)
	replyWorker := worker.NewReplyWorker(checker, logger, config.AppConfig.ReplyInterval)
	go replyWorker.Start(ctx)

	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, st, dispatcher, checker, logger)

	// Shut the workers down cleanly on SIGINT/SIGTERM.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("Shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	logger.Infof("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
