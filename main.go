package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tiltrelay/internal/config"
	"tiltrelay/internal/database/db_client"
	"tiltrelay/internal/http/http_server"
	"tiltrelay/internal/redis/redis_client"
	"tiltrelay/internal/relay"
	"tiltrelay/internal/services/game"
	"tiltrelay/internal/services/keymap"
	"tiltrelay/internal/synclb"
	"tiltrelay/internal/syncruns"
)

var (
	Log, _ = zap.NewDevelopment()
)

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Redis
	redisClient, err = redis_client.NewRedisClient(cfg.RedisGameHost, int(cfg.RedisGamePort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()
	Log.Debug("Redis client created successfully")

	// 4. Postgres db client
	pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	defer pgDb.Close()

	// 5. Services
	gameService := game.NewGameService(redisClient, pgDb, cfg.LeaderboardSize)
	keymapService := keymap.NewKeymapService(pgDb)

	// 6. Background: run-stream persister + leaderboard cache refresher
	syncruns.Run(ctx, redisClient, pgDb)
	synclb.Run(ctx, redisClient, pgDb, cfg.LeaderboardSize)

	// 7. Relay endpoint (hand-rolled websocket fan-out)
	relaySrv := relay.NewServer(cfg.RelayPort)
	go func() {
		if err := relaySrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Log.Fatal("Failed to start relay server", zap.Error(err))
		}
	}()

	// 8. HTTP API server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, gameService, keymapService)

	go func() {
		<-ctx.Done()
		_ = relaySrv.Dispose()
		_ = httpServer.Dispose()
	}()

	if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
}
