package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bb-mesh-service/internal/config"
	"bb-mesh-service/internal/crypto"
	"bb-mesh-service/internal/db"
	"bb-mesh-service/internal/events"
	"bb-mesh-service/internal/filter"
	"bb-mesh-service/internal/mqtt"
	"bb-mesh-service/internal/node"
	"bb-mesh-service/internal/node/repository"
	"bb-mesh-service/internal/observe"
	"bb-mesh-service/internal/pipeline"
	"bb-mesh-service/internal/status"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	ctx := context.Background()

	// Channel keys are startup configuration: a malformed key is a deploy
	// error, not a runtime condition.
	keys := make([]crypto.Key, 0, 3)
	for _, spec := range cfg.DecryptionKeys() {
		key, err := crypto.ParseKey(spec.Base64, spec.Description)
		if err != nil {
			log.Error("invalid decryption key", "description", spec.Description, "error", err)
			os.Exit(1)
		}
		keys = append(keys, key)
	}
	ring, err := crypto.NewKeyRing(keys)
	if err != nil {
		log.Error("key ring", "error", err)
		os.Exit(1)
	}

	f, err := filter.New(cfg.ShortnameRegex, log)
	if err != nil {
		log.Error("shortname filter", "pattern", cfg.ShortnameRegex, "error", err)
		os.Exit(1)
	}

	// The store is optional: without DATABASE_URL the node cache runs
	// in-memory only.
	var (
		sqlDB *sql.DB
		repo  *repository.PostgresRepository
	)
	if cfg.DatabaseURL != "" {
		sqlDB, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("database open", "error", err)
			os.Exit(1)
		}
		defer sqlDB.Close()
		repo = repository.NewPostgresRepository(sqlDB)
	} else {
		log.Warn("DATABASE_URL not set, node state will not be persisted")
	}

	cache := node.NewCache(repoOrNil(repo), log)
	if n, err := cache.Load(ctx); err != nil {
		log.Warn("node cache seed failed, continuing empty", "error", err)
	} else if n > 0 {
		log.Info("node cache seeded", "nodes", n)
		for _, rec := range cache.All() {
			if rec.Shortname != nil {
				f.UpdateShortname(rec.NodeID, *rec.Shortname)
			}
		}
	}

	providers, err := observe.NewProviders(ctx, cfg.OTLPEndpoint, "bb-mesh-service", false)
	if err != nil {
		log.Error("otel setup", "error", err)
		os.Exit(1)
	}
	providers.SetGlobal()
	metrics, err := observe.NewPipelineMetrics(providers.MeterProvider.Meter("bb-mesh-service"))
	if err != nil {
		log.Error("metrics setup", "error", err)
		os.Exit(1)
	}

	var producer events.Producer
	if kp := events.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.NodeEventsTopic, log); kp != nil {
		producer = kp
		defer kp.Close()
		log.Info("node events enabled", "topic", cfg.NodeEventsTopic)
	}

	proc := pipeline.New(f, crypto.NewDecryptor(ring), cache, producer, metrics, log)

	conn := mqtt.New(mqtt.Options{
		BrokerURL: cfg.BrokerURL(),
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		Topic:     cfg.MQTTTopic,
	}, proc.Handle, log)
	conn.Start()

	handler := status.NewHandler(pingerOrNil(sqlDB), conn, proc, f, cache, log)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http serve", "error", err)
			os.Exit(1)
		}
	}()

	pinger := status.NewSelfPinger(cfg.SelfPingURL, cfg.PingInterval(), log)
	pinger.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	pinger.Stop()
	conn.Stop(10 * time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("otel shutdown", "error", err)
	}
	log.Info("stopped")
}

// repoOrNil keeps the typed-nil pointer out of the cache's interface field.
func repoOrNil(r *repository.PostgresRepository) repository.Repository {
	if r == nil {
		return nil
	}
	return r
}

// pingerOrNil keeps the typed-nil *sql.DB out of the status handler.
func pingerOrNil(d *sql.DB) status.Pinger {
	if d == nil {
		return nil
	}
	return d
}
