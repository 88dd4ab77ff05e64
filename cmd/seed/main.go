// seed inserts development sample nodes for local testing.
// Idempotent: skips inserts for node ids that already exist.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"bb-mesh-service/internal/config"
	"bb-mesh-service/internal/db"
	"bb-mesh-service/internal/node/domain"
	"bb-mesh-service/internal/node/repository"
)

type seedNode struct {
	nodeID    uint32
	shortname string
	longname  string
	latitude  float64
	longitude float64
	voltage   float64
	battery   float64
}

var seedNodes = []seedNode{
	{0x0A0B0C01, "BB01", "Basecamp Relay 1", 37.7749, -122.4194, 25.4, 92},
	{0x0A0B0C02, "BB02", "Basecamp Relay 2", 37.8044, -122.2712, 24.1, 78},
	{0x0A0B0C03, "XX01", "Visitor Node", 37.6879, -122.4702, 0, 0},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer sqlDB.Close()

	repo := repository.NewPostgresRepository(sqlDB)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	inserted := 0
	for _, sn := range seedNodes {
		existing, err := repo.GetByID(ctx, sn.nodeID)
		if err != nil {
			log.Fatalf("seed: lookup %08x: %v", sn.nodeID, err)
		}
		if existing != nil {
			log.Printf("seed: node %08x already exists, skipping", sn.nodeID)
			continue
		}
		rec := &domain.NodeRecord{
			NodeID:    sn.nodeID,
			Shortname: strptr(sn.shortname),
			Longname:  strptr(sn.longname),
			LastSeen:  &now,
		}
		if sn.latitude != 0 || sn.longitude != 0 {
			rec.Latitude = f64ptr(sn.latitude)
			rec.Longitude = f64ptr(sn.longitude)
			rec.LastSeenLocation = &now
		}
		if sn.voltage > 0 {
			rec.LastKnownVoltage = f64ptr(sn.voltage)
			rec.LastKnownBatteryPercent = f64ptr(sn.battery)
			rec.LastSeenBattery = &now
		}
		if err := repo.Upsert(ctx, rec); err != nil {
			log.Fatalf("seed: insert %08x: %v", sn.nodeID, err)
		}
		inserted++
	}
	log.Printf("seed: done, %d nodes inserted", inserted)
}

func strptr(s string) *string   { return &s }
func f64ptr(f float64) *float64 { return &f }
