package node

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"bb-mesh-service/internal/node/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }

// fakeRepo records upserts and can be told to fail.
type fakeRepo struct {
	records  map[uint32]*domain.NodeRecord
	upserts  int
	failNext error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[uint32]*domain.NodeRecord)}
}

func (r *fakeRepo) GetByID(_ context.Context, id uint32) (*domain.NodeRecord, error) {
	return r.records[id].Clone(), nil
}

func (r *fakeRepo) ListAll(_ context.Context) ([]*domain.NodeRecord, error) {
	if r.failNext != nil {
		return nil, r.failNext
	}
	var out []*domain.NodeRecord
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (r *fakeRepo) Upsert(_ context.Context, rec *domain.NodeRecord) error {
	r.upserts++
	if r.failNext != nil {
		return r.failNext
	}
	r.records[rec.NodeID] = rec.Clone()
	return nil
}

func TestUpsert_MergeKeepsAbsentFields(t *testing.T) {
	c := NewCache(nil, discard())
	ctx := context.Background()

	c.Upsert(ctx, 1, domain.NodeUpdate{Shortname: strp("BB01"), Longname: strp("Beacon 1")}, domain.UpdateGeneric)
	rec := c.Upsert(ctx, 1, domain.NodeUpdate{Latitude: f64p(37.0), Longitude: f64p(-122.0)}, domain.UpdateLocation)

	if rec.Shortname == nil || *rec.Shortname != "BB01" {
		t.Errorf("Shortname = %v, want BB01 (absent fields must not erase)", rec.Shortname)
	}
	if rec.Latitude == nil || *rec.Latitude != 37.0 {
		t.Errorf("Latitude = %v, want 37.0", rec.Latitude)
	}
}

func TestUpsert_LastNonNilValueWins(t *testing.T) {
	c := NewCache(nil, discard())
	ctx := context.Background()

	c.Upsert(ctx, 1, domain.NodeUpdate{Voltage: f64p(24.0)}, domain.UpdateBattery)
	c.Upsert(ctx, 1, domain.NodeUpdate{Shortname: strp("BB09")}, domain.UpdateGeneric)
	rec := c.Upsert(ctx, 1, domain.NodeUpdate{Voltage: f64p(25.5)}, domain.UpdateBattery)

	if rec.LastKnownVoltage == nil || *rec.LastKnownVoltage != 25.5 {
		t.Errorf("LastKnownVoltage = %v, want 25.5", rec.LastKnownVoltage)
	}
	if rec.Shortname == nil || *rec.Shortname != "BB09" {
		t.Errorf("Shortname = %v, want BB09", rec.Shortname)
	}
}

func TestUpsert_TimestampSelection(t *testing.T) {
	c := NewCache(nil, discard())
	ctx := context.Background()

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t0 }
	c.Upsert(ctx, 1, domain.NodeUpdate{Voltage: f64p(24.0)}, domain.UpdateBattery)

	t1 := t0.Add(time.Minute)
	c.now = func() time.Time { return t1 }
	rec := c.Upsert(ctx, 1, domain.NodeUpdate{Latitude: f64p(1.0), Longitude: f64p(2.0)}, domain.UpdateLocation)

	if rec.LastSeenBattery == nil || !rec.LastSeenBattery.Equal(t0) {
		t.Errorf("LastSeenBattery = %v, want %v (unchanged by location update)", rec.LastSeenBattery, t0)
	}
	if rec.LastSeenLocation == nil || !rec.LastSeenLocation.Equal(t1) {
		t.Errorf("LastSeenLocation = %v, want %v", rec.LastSeenLocation, t1)
	}
	if rec.LastSeen != nil {
		t.Errorf("LastSeen = %v, want nil (no generic update yet)", rec.LastSeen)
	}

	t2 := t1.Add(time.Minute)
	c.now = func() time.Time { return t2 }
	rec = c.Upsert(ctx, 1, domain.NodeUpdate{Shortname: strp("BB01")}, domain.UpdateGeneric)
	if rec.LastSeen == nil || !rec.LastSeen.Equal(t2) {
		t.Errorf("LastSeen = %v, want %v", rec.LastSeen, t2)
	}
	if !rec.LastSeenLocation.Equal(t1) || !rec.LastSeenBattery.Equal(t0) {
		t.Error("generic update must not touch battery/location timestamps")
	}
}

func TestLoad_SeedsCache(t *testing.T) {
	repo := newFakeRepo()
	repo.records[7] = &domain.NodeRecord{NodeID: 7, Shortname: strp("BB77")}

	c := NewCache(repo, discard())
	n, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 1 {
		t.Errorf("loaded = %d, want 1", n)
	}
	rec := c.Get(7)
	if rec == nil || rec.Shortname == nil || *rec.Shortname != "BB77" {
		t.Errorf("Get(7) = %+v, want seeded record", rec)
	}
}

func TestLoad_StoreFailureIsNotFatal(t *testing.T) {
	repo := newFakeRepo()
	repo.failNext = errors.New("connection refused")

	c := NewCache(repo, discard())
	if _, err := c.Load(context.Background()); err == nil {
		t.Error("Load should surface the store error for the caller to log")
	}
	// The cache still works after a failed load.
	rec := c.Upsert(context.Background(), 1, domain.NodeUpdate{Shortname: strp("BB01")}, domain.UpdateGeneric)
	if rec == nil {
		t.Fatal("Upsert should work in cache-only degradation")
	}
}

func TestUpsert_WriteThrough(t *testing.T) {
	repo := newFakeRepo()
	c := NewCache(repo, discard())

	c.Upsert(context.Background(), 3, domain.NodeUpdate{Shortname: strp("BB03")}, domain.UpdateGeneric)
	if repo.upserts != 1 {
		t.Errorf("repo upserts = %d, want 1", repo.upserts)
	}
	stored := repo.records[3]
	if stored == nil || stored.Shortname == nil || *stored.Shortname != "BB03" {
		t.Errorf("stored record = %+v, want shortname BB03", stored)
	}
}

func TestUpsert_StoreErrorKeepsCacheAuthoritative(t *testing.T) {
	repo := newFakeRepo()
	repo.failNext = errors.New("disk full")
	c := NewCache(repo, discard())

	c.Upsert(context.Background(), 3, domain.NodeUpdate{Voltage: f64p(25.0)}, domain.UpdateBattery)

	rec := c.Get(3)
	if rec == nil || rec.LastKnownVoltage == nil || *rec.LastKnownVoltage != 25.0 {
		t.Error("cache must keep the merged record when the store write fails")
	}
	if got := c.Stats().StoreErrors; got != 1 {
		t.Errorf("StoreErrors = %d, want 1", got)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	c := NewCache(nil, discard())
	c.Upsert(context.Background(), 1, domain.NodeUpdate{Shortname: strp("BB01")}, domain.UpdateGeneric)

	rec := c.Get(1)
	*rec.Shortname = "mutated"

	if got := c.Get(1); *got.Shortname != "BB01" {
		t.Error("mutating a returned record must not affect the cache")
	}
}

func TestStats(t *testing.T) {
	c := NewCache(newFakeRepo(), discard())
	c.Upsert(context.Background(), 1, domain.NodeUpdate{}, domain.UpdateGeneric)
	c.Upsert(context.Background(), 2, domain.NodeUpdate{}, domain.UpdateGeneric)

	s := c.Stats()
	if s.CachedNodes != 2 {
		t.Errorf("CachedNodes = %d, want 2", s.CachedNodes)
	}
	if !s.StoreAvailable {
		t.Error("StoreAvailable should be true with a repository")
	}
	if s.StoreWrites != 2 {
		t.Errorf("StoreWrites = %d, want 2", s.StoreWrites)
	}
}
