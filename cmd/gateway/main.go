package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatewall/relay/internal/config"
	"github.com/gatewall/relay/internal/deliver"
	"github.com/gatewall/relay/internal/events"
	"github.com/gatewall/relay/internal/gate"
	"github.com/gatewall/relay/internal/guard"
	"github.com/gatewall/relay/internal/server"
	"github.com/gatewall/relay/internal/store"
)

func main() {
	configPath := flag.String("config", "gateway.yaml", "path to the YAML config file")
	flag.Parse()

	log.Println("Starting gatewall relay...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	// --- PostgreSQL ---
	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}
	messages := store.NewMessageStore(db)
	bans := store.NewBanStore(db)

	// --- delivery ---
	webhook := deliver.NewWebhook(cfg.Webhook.URL, &http.Client{Timeout: cfg.Webhook.Timeout})

	// --- optional Redis guard ---
	var opts []gate.Option
	var throttle server.Throttler
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		cancel()

		if cfg.Redis.AtomicDedupe {
			opts = append(opts, gate.WithDupGuard(guard.NewDupGuard(rdb, cfg.Policy.DuplicateWindow)))
		}
		if cfg.Redis.ThrottleLimit > 0 {
			throttle = guard.NewThrottle(rdb, cfg.Redis.ThrottleLimit, cfg.Redis.ThrottleWindow)
		}
	}

	// --- optional NATS decision events ---
	var publisher *events.Publisher
	if cfg.NATS.Enabled {
		natsConfig := events.DefaultConfig()
		natsConfig.URL = cfg.NATS.URL
		publisher, err = events.Connect(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		opts = append(opts, gate.WithPublisher(publisher))
	}

	gk := gate.New(cfg.GatePolicy(), messages, bans, webhook, opts...)
	srv := server.New(server.Config{
		ListenAddr:   cfg.Server.ListenAddr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, gk, throttle, db)

	log.Printf("gatewall relay starting")
	log.Printf("  listen_addr:     %s", cfg.Server.ListenAddr)
	log.Printf("  redis_enabled:   %v", cfg.Redis.Enabled)
	log.Printf("  nats_enabled:    %v", cfg.NATS.Enabled)
	log.Printf("  dup_window:      %s", cfg.Policy.DuplicateWindow)
	log.Printf("  dup_threshold:   %d", cfg.Policy.DuplicateThreshold)
	log.Printf("  ban_duration:    %s", cfg.Policy.BanDuration)
	log.Printf("  message_cap:     %d", cfg.Policy.MessageCap)
	log.Printf("  retention_age:   %s", cfg.Policy.RetentionAge)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %v, shutting down...", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	if publisher != nil {
		publisher.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
	db.Close()
}
