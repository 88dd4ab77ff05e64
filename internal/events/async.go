package events

import (
	"context"
	"log/slog"
	"time"
)

// emitTimeout is the max time allowed for a single async emit.
const emitTimeout = 5 * time.Second

// EmitAsync runs Emit in a goroutine with a short timeout so the pipeline is
// never blocked on the broker. Errors are logged and dropped.
//
// producer and event may be nil; EmitAsync returns immediately without
// starting a goroutine. The goroutine uses context.Background() so pipeline
// shutdown does not abort an in-flight emit.
func EmitAsync(producer Producer, event *NodeEvent, log *slog.Logger) {
	if producer == nil || event == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := producer.Emit(ctx, event); err != nil {
			log.Warn("events: async emit failed", "node_id", event.NodeID, "error", err)
		}
	}()
}
