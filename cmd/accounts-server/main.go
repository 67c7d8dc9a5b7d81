package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/cultivo/accounts"
)

func main() {
	cfg := Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	if err := accounts.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("failed to prepare schema: %v", err)
	}

	repo := accounts.NewRepositoryManager(db)
	repo.MustValidate()

	registry := prometheus.NewRegistry()
	metrics := accounts.NewMetricsSink(registry)

	store := buildResetTokens(ctx, cfg)
	mailer := buildMailer(cfg)

	auth := accounts.NewSessionAuthenticator(repo.Sessions(),
		accounts.WithAuthenticatorActivitySink(metrics),
	)

	app := fiber.New(fiber.Config{
		AppName:               "accounts",
		DisableStartupMessage: !cfg.Debug,
	})

	controllerOpts := []accounts.AuthControllerOption{
		accounts.WithControllerRepo(repo),
		accounts.WithControllerAuthenticator(auth),
		accounts.WithControllerMailer(mailer),
		accounts.WithControllerResetTokens(store),
		accounts.WithControllerResetTTL(cfg.ResetTokenTTL),
		accounts.WithControllerActivitySink(metrics),
		accounts.WithControllerDebug(cfg.Debug),
	}

	if cfg.NotificationsURL != "" {
		controllerOpts = append(controllerOpts,
			accounts.WithControllerPushRegistrar(
				accounts.NewNotificationsClient(cfg.NotificationsURL),
			),
		)
	}

	accounts.RegisterAuthRoutes(app, controllerOpts...)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := db.PingContext(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(accounts.MetricsHandler(registry)))

	go func() {
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func buildResetTokens(ctx context.Context, cfg *Config) accounts.ResetTokens {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return accounts.NewRedisResetTokens(client)
	}

	store := accounts.NewMemoryResetTokens()
	store.StartSweeper(ctx, cfg.SweepInterval)
	return store
}

func buildMailer(cfg *Config) accounts.Mailer {
	if cfg.SMTPHost == "" {
		log.Println("no SMTP relay configured, emails will be logged")
		return accounts.NewLogMailer(nil)
	}

	mailer, err := accounts.NewSMTPMailer(accounts.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, cfg.TemplateDir)
	if err != nil {
		log.Fatalf("failed to build mailer: %v", err)
	}

	return mailer
}
