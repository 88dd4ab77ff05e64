package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the ingest pipeline's counter instruments. A nil
// *PipelineMetrics is valid and records nothing, so the pipeline runs the
// same with metrics disabled.
type PipelineMetrics struct {
	messages     metric.Int64Counter
	packets      metric.Int64Counter
	decrypts     metric.Int64Counter
	filtered     metric.Int64Counter
	decodeErrors metric.Int64Counter
	stored       metric.Int64Counter
	storeErrors  metric.Int64Counter
}

// NewPipelineMetrics registers the pipeline counters on the given meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	var err error
	if m.messages, err = meter.Int64Counter("mesh.messages",
		metric.WithDescription("Raw bus messages received, by topic kind")); err != nil {
		return nil, err
	}
	if m.packets, err = meter.Int64Counter("mesh.packets",
		metric.WithDescription("Envelope packets decoded, by variant")); err != nil {
		return nil, err
	}
	if m.decrypts, err = meter.Int64Counter("mesh.decrypts",
		metric.WithDescription("Decryption attempts, by outcome")); err != nil {
		return nil, err
	}
	if m.filtered, err = meter.Int64Counter("mesh.packets.filtered",
		metric.WithDescription("Packets dropped by shortname admission")); err != nil {
		return nil, err
	}
	if m.decodeErrors, err = meter.Int64Counter("mesh.decode.errors",
		metric.WithDescription("Payloads that failed to decode")); err != nil {
		return nil, err
	}
	if m.stored, err = meter.Int64Counter("mesh.nodes.stored",
		metric.WithDescription("Node upserts, by update kind")); err != nil {
		return nil, err
	}
	if m.storeErrors, err = meter.Int64Counter("mesh.store.errors",
		metric.WithDescription("Node upserts that failed to persist")); err != nil {
		return nil, err
	}
	return m, nil
}

// Message records one raw bus message; kind is "envelope" or "json".
func (m *PipelineMetrics) Message(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Packet records one decoded envelope; variant is "decoded" or "encrypted".
func (m *PipelineMetrics) Packet(ctx context.Context, variant string) {
	if m == nil {
		return
	}
	m.packets.Add(ctx, 1, metric.WithAttributes(attribute.String("variant", variant)))
}

// Decrypt records one decryption attempt outcome.
func (m *PipelineMetrics) Decrypt(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.decrypts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Filtered records one packet dropped by admission filtering.
func (m *PipelineMetrics) Filtered(ctx context.Context) {
	if m == nil {
		return
	}
	m.filtered.Add(ctx, 1)
}

// DecodeError records one payload that could not be decoded.
func (m *PipelineMetrics) DecodeError(ctx context.Context) {
	if m == nil {
		return
	}
	m.decodeErrors.Add(ctx, 1)
}

// Stored records one node upsert; kind is the update kind.
func (m *PipelineMetrics) Stored(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.stored.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// StoreError records one failed node upsert.
func (m *PipelineMetrics) StoreError(ctx context.Context) {
	if m == nil {
		return
	}
	m.storeErrors.Add(ctx, 1)
}
