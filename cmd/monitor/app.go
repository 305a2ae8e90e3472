package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/signal-monitor/internal/api"
	"github.com/atmx/signal-monitor/internal/config"
	"github.com/atmx/signal-monitor/internal/lifecycle"
	"github.com/atmx/signal-monitor/internal/model"
	"github.com/atmx/signal-monitor/internal/notify"
	"github.com/atmx/signal-monitor/internal/pricefeed"
	"github.com/atmx/signal-monitor/internal/store"
)

const directoryCacheTTL = 30 * time.Second

// app holds the wired collaborators shared by the serve and tick commands.
type app struct {
	signals     store.SignalStore
	invalidator api.Invalidator
	monitor     *lifecycle.Monitor
	cleanup     []func()
}

func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func poolConfig(cfg config.Config) store.PoolConfig {
	pc := store.DefaultPoolConfig()
	pc.MaxConns = cfg.DBMaxConns
	pc.MinConns = cfg.DBMinConns
	return pc
}

// buildApp wires stores, caches, the price gateway and the notifier.
// PostgreSQL is used when DATABASE_URL is set, otherwise an in-memory store.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}

	var signals store.SignalStore
	var dir store.Directory
	if cfg.DatabaseURL != "" {
		pool, err := store.NewPool(ctx, cfg.DatabaseURL, poolConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.cleanup = append(a.cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		signals, dir = pg, pg
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		mem := store.NewMemoryStore()
		signals, dir = mem, mem
	}

	var cache pricefeed.Cache = pricefeed.NewMemoryCache()
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		a.cleanup = append(a.cleanup, func() { rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		cached := store.NewCachedDirectory(dir, rdb, directoryCacheTTL)
		dir = cached
		a.invalidator = cached
		cache = pricefeed.NewRedisCache(rdb)
		slog.Info("Redis cache enabled")
	}

	gateway := pricefeed.NewGateway(pricefeed.Config{
		BaseURL:        cfg.PriceBaseURL,
		CacheTTL:       cfg.CacheTTL,
		RequestTimeout: cfg.RequestTimeout,
	}, pricefeed.NewKeyPool(cfg.APIKeys), cache, &http.Client{})

	if cfg.InfluxURL != "" {
		client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		a.cleanup = append(a.cleanup, client.Close)
		gateway.WithRecorder(pricefeed.NewInfluxRecorder(client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket)))
		slog.Info("InfluxDB price recorder enabled", "bucket", cfg.InfluxBucket)
	}

	httpClient := notify.NewHTTPClient(10 * time.Second)
	dispatcher := notify.NewDispatcher(dir, map[model.ChannelType]notify.Sender{
		model.ChannelTelegram: notify.NewTelegramSender(httpClient),
		model.ChannelDiscord:  notify.NewDiscordSender(httpClient),
		model.ChannelWhatsApp: notify.NewWhatsAppSender(httpClient),
	}, cfg.NotifyRatePerSec)

	a.signals = signals
	a.monitor = lifecycle.NewMonitor(signals, gateway, lifecycle.NewEngine(cfg.Threshold), dispatcher)
	return a, nil
}
