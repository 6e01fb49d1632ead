package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"calobot.app/bot/common/id"
	"calobot.app/bot/common/logger"
	"calobot.app/bot/common/otel"
	"calobot.app/bot/core/config"
	"calobot.app/bot/core/db"
	"calobot.app/bot/internal/collector"
	"calobot.app/bot/internal/fooddb"
	"calobot.app/bot/internal/http/handler"
	"calobot.app/bot/internal/http/middleware"
	httprouter "calobot.app/bot/internal/http/router"
	"calobot.app/bot/internal/intent"
	"calobot.app/bot/internal/platform"
	"calobot.app/bot/internal/service"
	"calobot.app/bot/internal/session"
	"calobot.app/bot/internal/skill"
	"calobot.app/bot/internal/store"
	"calobot.app/bot/internal/textminer"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "calobot starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Session.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "prefix", cfg.Session.Prefix)

	sessions := session.NewRedisStore(redisClient, cfg.Session.Prefix, cfg.Session.TTL)

	var lineOpts []platform.Option
	if cfg.Line.APIBaseURL != "" {
		lineOpts = append(lineOpts, platform.WithBaseURL(cfg.Line.APIBaseURL))
	}
	line := platform.NewClient(cfg.Line.ChannelAccessToken, cfg.Line.ChannelSecret, lineOpts...)

	miner := textminer.NewClient(cfg.TextMiner.BaseURL, nil)
	foods := fooddb.NewClient(cfg.FoodDB.BaseURL, nil)
	intents := intent.NewClient(cfg.Intent.BaseURL, nil)

	persons := store.NewPersonStore(database)
	history := store.NewDietHistoryStore(database)

	diet := service.NewDietService(persons, history, miner, foods)

	engine := collector.NewEngine(sessions, line,
		skill.NewHumanReply(intents),
		skill.NewSimpleResponse(),
		skill.NewDietLog(diet),
	)

	webhooks := service.NewWebhookService(engine, intents, diet, line)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg,
		handler.NewWebhookHandler(webhooks, line),
		handler.NewHistoryHandler(diet),
	)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, webhook *handler.WebhookHandler, history *handler.HistoryHandler) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, webhook, history)

	return router
}

const banner = `
 ██████╗ █████╗ ██╗      ██████╗ ██████╗  ██████╗ ████████╗
██╔════╝██╔══██╗██║     ██╔═══██╗██╔══██╗██╔═══██╗╚══██╔══╝
██║     ███████║██║     ██║   ██║██████╔╝██║   ██║   ██║
██║     ██╔══██║██║     ██║   ██║██╔══██╗██║   ██║   ██║
╚██████╗██║  ██║███████╗╚██████╔╝██████╔╝╚██████╔╝   ██║
 ╚═════╝╚═╝  ╚═╝╚══════╝ ╚═════╝ ╚═════╝  ╚═════╝    ╚═╝
`
