// Package status exposes the service's HTTP surface: liveness, counters,
// and the current node table.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bb-mesh-service/internal/filter"
	"bb-mesh-service/internal/mqtt"
	"bb-mesh-service/internal/node"
	"bb-mesh-service/internal/pipeline"
)

// Pinger reports whether the durable store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves the status endpoints.
type Handler struct {
	log       *slog.Logger
	db        Pinger // nil when running without a store
	conn      *mqtt.ConnManager
	proc      *pipeline.Processor
	filter    *filter.NodeFilter
	cache     *node.Cache
	startedAt time.Time
}

// NewHandler wires the status surface. db may be nil.
func NewHandler(db Pinger, conn *mqtt.ConnManager, proc *pipeline.Processor, f *filter.NodeFilter, cache *node.Cache, log *slog.Logger) *Handler {
	return &Handler{
		log:       log,
		db:        db,
		conn:      conn,
		proc:      proc,
		filter:    f,
		cache:     cache,
		startedAt: time.Now().UTC(),
	}
}

// Routes returns the chi router for the status surface.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/", h.root)
	r.Get("/health", h.health)
	r.Get("/stats", h.stats)
	r.Get("/nodes", h.nodes)
	return r
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"service": "bb-mesh-service",
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// health reports liveness. The store being down degrades durability but not
// ingest, so only a dead store with no cache makes the service unhealthy;
// the response body still names every degraded dependency.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}

	body["mqtt"] = h.conn.CurrentState().String()

	if h.db == nil {
		body["database"] = "disabled"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			body["database"] = "unavailable"
			body["status"] = "degraded"
		} else {
			body["database"] = "ok"
		}
	}

	h.writeJSON(w, status, body)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"mqtt":           h.conn.Stats(),
		"pipeline":       h.proc.Stats(),
		"filter":         h.filter.Stats(),
		"nodes":          h.cache.Stats(),
	})
}

// nodeView is the JSON rendering of one cached node.
type nodeView struct {
	NodeID         uint32     `json:"node_id"`
	Shortname      *string    `json:"shortname,omitempty"`
	Longname       *string    `json:"longname,omitempty"`
	Admitted       bool       `json:"admitted"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	Voltage        *float64   `json:"voltage,omitempty"`
	BatteryPercent *float64   `json:"battery_percent,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	LastSeenBatt   *time.Time `json:"last_seen_battery,omitempty"`
	LastSeenLoc    *time.Time `json:"last_seen_location,omitempty"`
}

func (h *Handler) nodes(w http.ResponseWriter, r *http.Request) {
	records := h.cache.All()
	views := make([]nodeView, 0, len(records))
	for _, rec := range records {
		views = append(views, nodeView{
			NodeID:         rec.NodeID,
			Shortname:      rec.Shortname,
			Longname:       rec.Longname,
			Admitted:       h.filter.IsAdmitted(rec.NodeID),
			Latitude:       rec.Latitude,
			Longitude:      rec.Longitude,
			Voltage:        rec.LastKnownVoltage,
			BatteryPercent: rec.LastKnownBatteryPercent,
			LastSeen:       rec.LastSeen,
			LastSeenBatt:   rec.LastSeenBattery,
			LastSeenLoc:    rec.LastSeenLocation,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"count": len(views), "nodes": views})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("status: write response failed", "error", err)
	}
}
