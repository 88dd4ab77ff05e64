// Package events publishes node update events (e.g. to Kafka) for downstream
// consumers such as dashboards and alerting.
package events

import (
	"context"
	"time"
)

// NodeEvent is one node state change, serialized as JSON on the wire.
// Pointer fields are omitted when the update did not carry them.
type NodeEvent struct {
	NodeID         uint32    `json:"node_id"`
	Kind           string    `json:"kind"`
	Shortname      *string   `json:"shortname,omitempty"`
	Longname       *string   `json:"longname,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Voltage        *float64  `json:"voltage,omitempty"`
	BatteryPercent *float64  `json:"battery_percent,omitempty"`
	ObservedAt     time.Time `json:"observed_at"`
}

// Producer emits node events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	// Emit sends a single node event. Implementations may block briefly;
	// returns an error only on write failure.
	Emit(ctx context.Context, event *NodeEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
