package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailflow/internal/api"
	"github.com/ignite/mailflow/internal/config"
	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/listsync"
	"github.com/ignite/mailflow/internal/pkg/distlock"
	"github.com/ignite/mailflow/internal/pkg/logger"
	"github.com/ignite/mailflow/internal/pkg/ratelimit"
	"github.com/ignite/mailflow/internal/pkg/secrets"
	"github.com/ignite/mailflow/internal/provider/ses"
	"github.com/ignite/mailflow/internal/repository/postgres"
	"github.com/ignite/mailflow/internal/repository/redisrepo"
	"github.com/ignite/mailflow/internal/service/dispatch"
	"github.com/ignite/mailflow/internal/service/subscriber"
	"github.com/ignite/mailflow/internal/service/tracking"
	"github.com/ignite/mailflow/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("config load failed", "path", *configPath, "error", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err.Error())
		os.Exit(1)
	}
	if cfg.Production() {
		logger.SetLevel(logger.INFO)
	} else {
		logger.SetLevel(logger.DEBUG)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Error("database open failed", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		logger.Error("database ping failed", "error", err.Error())
		os.Exit(1)
	}

	redisURL := cfg.Redis.URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Error("invalid redis URL", "error", err.Error())
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed", "error", err.Error())
		os.Exit(1)
	}

	box, err := secrets.New(cfg.Secrets.EncryptionKey, cfg.Secrets.ServerSecret, cfg.Production())
	if err != nil {
		logger.Error("secrets init failed", "error", err.Error())
		os.Exit(1)
	}

	// Repositories.
	subscriberRepo := postgres.NewSubscriberRepo(db)
	newsletterRepo := postgres.NewNewsletterRepo(db)
	eventRepo := postgres.NewEventRepo(db)
	credentialRepo := postgres.NewCredentialRepo(db)
	usage := redisrepo.NewUsageCounter(redisClient)

	// One shared limiter keeps every account inside the platform-wide
	// request budget.
	limiter := ratelimit.New(ratelimit.Config{
		Window:        cfg.ListSync.Window(),
		MaxStarts:     cfg.ListSync.RequestsPerWindow,
		MaxConcurrent: cfg.ListSync.MaxConcurrent,
	})
	clientFactory := func(apiKey, listID string) listsync.MemberAPI {
		return listsync.NewClient(listsync.ClientConfig{
			BaseURL:  cfg.ListSync.BaseURL,
			APIKey:   apiKey,
			ListID:   listID,
			PageSize: cfg.ListSync.PageSize,
			Timeout:  time.Duration(cfg.ListSync.TimeoutSeconds) * time.Second,
		}, limiter)
	}

	// Services.
	reconciler := listsync.NewEngine(subscriberRepo, credentialRepo, box, clientFactory)
	subscriberSvc := subscriber.NewService(subscriberRepo, reconciler)

	tokens := tracking.NewTokens(cfg.Tracking.SigningKey, cfg.Tracking.BaseURL)
	trackingSvc := tracking.NewService(eventRepo, subscriberRepo, tokens)

	sender, err := ses.NewSender(ctx, cfg.Mail)
	if err != nil {
		logger.Error("mail provider init failed", "error", err.Error())
		os.Exit(1)
	}

	dispatchSvc := dispatch.NewService(
		newsletterRepo,
		subscriberSvc,
		usage,
		sender,
		eventRepo,
		dispatch.NewRenderer(tokens, cfg.Tracking.BaseURL),
		domain.SenderIdentity{
			FromName:  cfg.Mail.DefaultFromName,
			FromEmail: cfg.Mail.DefaultFromEmail,
			ReplyTo:   cfg.Mail.DefaultReplyTo,
		},
		dispatch.Options{
			DailyCap:   cfg.Dispatch.DailyCap,
			BatchSize:  cfg.Dispatch.BatchSize,
			BatchPause: cfg.Dispatch.BatchPause(),
		},
	)

	scheduler := worker.NewScheduler(
		newsletterRepo,
		dispatchSvc,
		func() distlock.Lock {
			return distlock.New(redisClient, db, "newsletter-schedule", 2*time.Minute)
		},
		time.Duration(cfg.Dispatch.SchedulerPollSecs)*time.Second,
	)
	if err := scheduler.Start(); err != nil {
		logger.Error("scheduler start failed", "error", err.Error())
		os.Exit(1)
	}

	server := api.NewServer(cfg.Server.Port, subscriberSvc, dispatchSvc, trackingSvc, reconciler)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := server.Start(); err != nil {
			logger.Error("server failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", "error", err.Error())
	}
	scheduler.Stop()
	logger.Info("shutdown complete")
}
