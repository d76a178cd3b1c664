package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/realtime-service/internal/api"
	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/internal/config"
	"github.com/fathima-sithara/realtime-service/internal/events"
	"github.com/fathima-sithara/realtime-service/internal/hub"
	"github.com/fathima-sithara/realtime-service/internal/logger"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/repository"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(cfg.Development())
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	secret := cfg.JWT.Secret
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	validator, err := auth.NewJWTValidator(secret)
	if err != nil {
		zlog.Fatalf("jwt validator init: %v", err)
	}

	metrics.Init()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		convRepo repository.ConversationRepository
		msgRepo  repository.MessageRepository
		userRepo repository.UserRepository
	)
	switch cfg.Storage.Driver {
	case "memory":
		store := repository.NewMemoryStore()
		convRepo = repository.NewMemoryConversationRepo(store)
		msgRepo = repository.NewMemoryMessageRepo(store)
		userRepo = repository.NewMemoryUserRepo(store)
		zlog.Warn("using in-memory storage, messages will not survive a restart")
	default:
		db, err := repository.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			zlog.Fatalf("mongo connect: %v", err)
		}
		defer func() {
			shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			_ = db.Disconnect(shutdownCtx)
		}()
		convRepo = repository.NewMongoConversationRepo(db)
		msgRepo = repository.NewMongoMessageRepo(db)
		userRepo = repository.NewMongoUserRepo(db)
	}

	registry := hub.New(zlog)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bridge := hub.NewBridge(rdb, cfg.Redis.Channel, zlog)
		registry.SetBridge(bridge)
		go bridge.Run()
		defer bridge.Shutdown()
	}

	pm := presence.NewManager(userRepo, registry, zlog)
	svc := chat.NewService(convRepo, msgRepo, zlog)

	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageSent)
		svc.SetPublisher(producer)
		defer func() { _ = producer.Close() }()
	}

	wsHandler := ws.NewHandler(validator, registry, pm, svc, ws.Options{
		PingInterval:    cfg.PingInterval,
		PongWait:        cfg.PongWait,
		WriteDeadline:   cfg.WriteDeadline,
		MaxMessageSize:  cfg.WS.MaxMessageSizeBytes,
		RateLimitPerSec: cfg.WS.RateLimitPerSec,
	}, zlog)

	app := api.NewServer(validator, wsHandler, svc, userRepo, convRepo, zlog)

	errs := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.App.Port)
		zlog.Infow("starting realtime service", "addr", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		zlog.Fatalf("server error: %v", err)
	case s := <-sig:
		zlog.Infow("signal received", "signal", s.String())
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zlog.Warnw("shutdown", "error", err)
	}
	zlog.Info("shutting down")
}
