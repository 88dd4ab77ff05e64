// Worker consumes node update events from Kafka and prints them as
// structured logs: a live tail of mesh activity for operators without
// database access. Set KAFKA_BROKERS, NODE_EVENTS_TOPIC, and KAFKA_GROUP_ID.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"bb-mesh-service/internal/config"
	"bb-mesh-service/internal/events"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Error("worker: KAFKA_BROKERS is required")
		os.Exit(1)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.NodeEventsTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info("worker: shutting down")
		cancel()
	}()

	log.Info("worker: consuming node events", "topic", cfg.NodeEventsTopic, "group", cfg.KafkaGroupID)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker: stopped")
				return
			}
			log.Warn("worker: kafka read error", "error", err)
			continue
		}

		var ev events.NodeEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Warn("worker: undecodable event", "offset", msg.Offset, "error", err)
			continue
		}
		attrs := []any{"node_id", ev.NodeID, "kind", ev.Kind, "observed_at", ev.ObservedAt}
		if ev.Shortname != nil {
			attrs = append(attrs, "shortname", *ev.Shortname)
		}
		if ev.Latitude != nil && ev.Longitude != nil {
			attrs = append(attrs, "lat", *ev.Latitude, "lon", *ev.Longitude)
		}
		if ev.Voltage != nil {
			attrs = append(attrs, "voltage", *ev.Voltage)
		}
		if ev.BatteryPercent != nil {
			attrs = append(attrs, "battery_percent", *ev.BatteryPercent)
		}
		log.Info("node update", attrs...)
	}
}
