package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pelusa-v/dispatchdesk/internal/chat"
	"github.com/pelusa-v/dispatchdesk/internal/config"
	"github.com/pelusa-v/dispatchdesk/internal/handlers"
	"github.com/pelusa-v/dispatchdesk/internal/logger"
	"github.com/pelusa-v/dispatchdesk/internal/notify"
	"github.com/pelusa-v/dispatchdesk/internal/store"
)

func newServeCommand(envFile *string) *cobra.Command {
	var (
		addr     string
		dbPath   string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket hub and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			// 命令行参数覆盖环境变量
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides DISPATCHDESK_ADDR)")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite file (overrides DISPATCHDESK_DB_PATH)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (overrides DISPATCHDESK_LOG_LEVEL)")
	return cmd
}

func serve(cfg *config.Config) error {
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	sinks := []notify.Sink{notify.NewLog(log.Named("notify")), notify.NewRecord(db)}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout))
	}

	// 启动聊天管理器
	hub := chat.NewChatManager(db, notify.NewDispatcher(sinks...),
		chat.WithLogger(log.Named("chat")),
		chat.WithInbox(db),
		chat.WithHistoryLimit(cfg.HistoryLimit),
		chat.WithTypingTimeout(cfg.TypingTimeout),
	)
	hubDone := make(chan struct{})
	go func() {
		hub.Start(ctx)
		close(hubDone)
	}()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(logger.Requests(log.Named("http")))
	h := handlers.New(ctx, hub, db, db, log.Named("http"), handlers.Options{
		SendBuffer: cfg.SendBuffer,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
	})
	h.Routes(app, cfg.MetricsEnabled)

	listenErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("db", cfg.DBPath))
		listenErr <- app.Listen(cfg.Addr)
	}()

	select {
	case err := <-listenErr:
		stop()
		<-hubDone
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownErr := app.ShutdownWithTimeout(cfg.ShutdownTimeout)
	select {
	case <-hubDone:
	case <-time.After(cfg.ShutdownTimeout):
		shutdownErr = errors.Join(shutdownErr, errors.New("chat hub did not stop in time"))
	}
	return shutdownErr
}
