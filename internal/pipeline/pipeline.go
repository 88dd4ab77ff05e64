// Package pipeline wires the ingest stages together: every bus message flows
// through topic routing, envelope decoding, optional decryption, admission
// filtering, payload dispatch, and finally the node cache.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"bb-mesh-service/internal/crypto"
	"bb-mesh-service/internal/events"
	"bb-mesh-service/internal/filter"
	"bb-mesh-service/internal/mqtt"
	"bb-mesh-service/internal/node"
	"bb-mesh-service/internal/node/domain"
	"bb-mesh-service/internal/observe"
	"bb-mesh-service/internal/packet"
)

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	MessagesTotal  uint64 `json:"messages_total"`
	JSONMessages   uint64 `json:"json_messages"`
	Envelopes      uint64 `json:"envelopes"`
	EnvelopeErrors uint64 `json:"envelope_errors"`
	Decoded        uint64 `json:"decoded"`
	Encrypted      uint64 `json:"encrypted"`
	Decrypted      uint64 `json:"decrypted"`
	DecryptFailed  uint64 `json:"decrypt_failed"`
	Filtered       uint64 `json:"filtered"`
	NodesStored    uint64 `json:"nodes_stored"`
	StoreErrors    uint64 `json:"store_errors"`
	DecodeErrors   uint64 `json:"decode_errors"`
}

// Processor consumes raw bus messages and drives node state. It is safe for
// a single consumer goroutine; counters may be read concurrently.
type Processor struct {
	log       *slog.Logger
	filter    *filter.NodeFilter
	decryptor *crypto.Decryptor
	cache     *node.Cache
	producer  events.Producer          // nil disables events
	metrics   *observe.PipelineMetrics // nil disables metrics
	now       func() time.Time

	messagesTotal  atomic.Uint64
	jsonMessages   atomic.Uint64
	envelopes      atomic.Uint64
	envelopeErrors atomic.Uint64
	decoded        atomic.Uint64
	encrypted      atomic.Uint64
	decrypted      atomic.Uint64
	decryptFailed  atomic.Uint64
	filtered       atomic.Uint64
	nodesStored    atomic.Uint64
	storeErrors    atomic.Uint64
	decodeErrors   atomic.Uint64
}

// New assembles a processor. producer and metrics may be nil.
func New(f *filter.NodeFilter, d *crypto.Decryptor, cache *node.Cache, producer events.Producer, metrics *observe.PipelineMetrics, log *slog.Logger) *Processor {
	return &Processor{
		log:       log,
		filter:    f,
		decryptor: d,
		cache:     cache,
		producer:  producer,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle consumes one raw bus message. It never returns an error: a message
// that cannot be processed is counted and dropped so one bad publisher
// cannot stall the feed.
func (p *Processor) Handle(msg mqtt.Message) {
	ctx := context.Background()
	p.messagesTotal.Add(1)

	// Gateways republish a JSON rendering of each packet on a parallel
	// topic subtree. Those are observational only; node state comes from
	// the binary envelopes.
	if strings.Contains(msg.Topic, "/json/") {
		p.jsonMessages.Add(1)
		p.metrics.Message(ctx, "json")
		p.handleJSON(msg)
		return
	}
	p.metrics.Message(ctx, "envelope")

	env, err := packet.DecodeEnvelope(msg.Payload)
	if err != nil {
		p.envelopeErrors.Add(1)
		p.log.Debug("pipeline: undecodable envelope", "topic", msg.Topic, "bytes", len(msg.Payload), "error", err)
		return
	}
	p.envelopes.Add(1)

	pkt := env.Packet
	if !p.filter.ShouldProcess(pkt) {
		p.filtered.Add(1)
		p.metrics.Filtered(ctx)
		p.log.Debug("pipeline: packet filtered", "from", pkt.From, "shortname", p.filter.Shortname(pkt.From))
		return
	}

	switch pkt.Variant {
	case packet.VariantDecoded:
		p.decoded.Add(1)
		p.metrics.Packet(ctx, "decoded")
		p.dispatch(ctx, env, pkt.Decoded)
	case packet.VariantEncrypted:
		p.encrypted.Add(1)
		p.metrics.Packet(ctx, "encrypted")
		p.handleEncrypted(ctx, env)
	}
}

func (p *Processor) handleJSON(msg mqtt.Message) {
	doc, err := packet.DecodeJSON(msg.Payload)
	if err != nil {
		p.log.Debug("pipeline: bad json message", "topic", msg.Topic, "error", err)
		return
	}
	p.log.Debug("pipeline: json message", "topic", msg.Topic, "type", doc["type"])
}

// handleEncrypted tries every configured key and, on success, re-checks
// admission against the plaintext header before dispatching.
func (p *Processor) handleEncrypted(ctx context.Context, env *packet.Envelope) {
	pkt := env.Packet
	plaintext, ok := p.decryptor.TryDecrypt(pkt.Encrypted, pkt.ID, pkt.From)
	if !ok {
		p.decryptFailed.Add(1)
		p.metrics.Decrypt(ctx, false)
		p.log.Debug("pipeline: no key decrypted packet", "from", pkt.From, "packet_id", pkt.ID)
		return
	}

	data, err := packet.DecodeData(plaintext)
	if err != nil || data.Empty() {
		// A wrong key yields garbage that either fails to parse or parses
		// to a field-free message; both count as a decryption miss.
		p.decryptFailed.Add(1)
		p.metrics.Decrypt(ctx, false)
		p.log.Debug("pipeline: decrypted plaintext is not a data message", "from", pkt.From, "packet_id", pkt.ID)
		return
	}
	p.decrypted.Add(1)
	p.metrics.Decrypt(ctx, true)

	if data.Portnum != packet.PortNodeInfo && !p.filter.ShouldProcessDecrypted(pkt.From) {
		p.filtered.Add(1)
		p.metrics.Filtered(ctx)
		p.log.Debug("pipeline: decrypted packet filtered", "from", pkt.From, "shortname", p.filter.Shortname(pkt.From))
		return
	}
	p.dispatch(ctx, env, data)
}

// dispatch routes a plaintext data message by port.
func (p *Processor) dispatch(ctx context.Context, env *packet.Envelope, data *packet.Data) {
	pkt := env.Packet
	payload := packet.DecodePayload(data.Portnum, data.Payload)
	switch payload.Kind {
	case packet.KindNodeInfo:
		p.handleNodeInfo(ctx, pkt.From, payload.User)
	case packet.KindTelemetry:
		p.handleTelemetry(ctx, pkt.From, payload.Telemetry)
	case packet.KindPosition:
		p.handlePosition(ctx, pkt.From, payload.Position)
	case packet.KindText:
		p.log.Info("pipeline: text message",
			"from", pkt.From,
			"shortname", p.filter.Shortname(pkt.From),
			"channel", env.ChannelID,
			"gateway", env.GatewayID,
			"text", payload.Text)
	case packet.KindRouting, packet.KindTraceroute, packet.KindNeighborInfo:
		p.log.Debug("pipeline: routing traffic", "from", pkt.From, "port", data.Portnum.String())
	case packet.KindDecodeError:
		p.decodeErrors.Add(1)
		p.metrics.DecodeError(ctx)
		p.log.Debug("pipeline: payload decode failed", "from", pkt.From, "port", data.Portnum.String(), "bytes", len(payload.Raw))
	default:
		p.log.Debug("pipeline: unhandled port", "from", pkt.From, "port", data.Portnum.String())
	}
}

// handleNodeInfo learns the shortname regardless of admission; NODEINFO is
// how a node becomes admissible in the first place. Identity is persisted
// only for admitted nodes, and a field absent on the wire (empty string)
// never revokes admission or erases a learned value.
func (p *Processor) handleNodeInfo(ctx context.Context, from uint32, user *packet.User) {
	admitted := p.filter.IsAdmitted(from)
	if user.ShortName != "" {
		admitted = p.filter.UpdateShortname(from, user.ShortName)
	}
	if !admitted {
		p.log.Debug("pipeline: nodeinfo from unadmitted node",
			"from", from, "shortname", user.ShortName, "longname", user.LongName)
		return
	}
	upd := domain.NodeUpdate{}
	if user.ShortName != "" {
		upd.Shortname = strptr(user.ShortName)
	}
	if user.LongName != "" {
		upd.Longname = strptr(user.LongName)
	}
	p.store(ctx, from, upd, domain.UpdateGeneric)
	p.log.Info("pipeline: nodeinfo",
		"from", from, "shortname", user.ShortName, "longname", user.LongName, "admitted", admitted)
}

// handleTelemetry persists power readings for admitted nodes. The voltage
// floor rejects readings from the sensor's dead band.
func (p *Processor) handleTelemetry(ctx context.Context, from uint32, tel *packet.Telemetry) {
	voltage, batteryPercent := tel.PowerSummary()
	if voltage == nil {
		p.log.Debug("pipeline: telemetry without power metrics", "from", from)
		return
	}
	if !p.filter.IsAdmitted(from) {
		p.log.Debug("pipeline: telemetry from unadmitted node", "from", from)
		return
	}
	if *voltage <= 20.0 {
		p.log.Debug("pipeline: voltage below floor, not stored",
			"from", from, "shortname", p.filter.Shortname(from), "voltage", *voltage)
		return
	}
	upd := domain.NodeUpdate{Voltage: voltage, BatteryPercent: batteryPercent}
	p.store(ctx, from, upd, domain.UpdateBattery)
	p.log.Info("pipeline: battery stored",
		"from", from, "shortname", p.filter.Shortname(from), "voltage", *voltage)
}

func (p *Processor) handlePosition(ctx context.Context, from uint32, pos *packet.Position) {
	lat, lon, ok := pos.Coordinates()
	if !ok {
		p.log.Debug("pipeline: position without fix", "from", from)
		return
	}
	attrs := []any{"from", from, "shortname", p.filter.Shortname(from), "lat", lat, "lon", lon}
	if spd, moving := pos.Speed(); moving {
		attrs = append(attrs, "speed_kmh", spd.KMH)
	}
	if hdg, hasTrack := pos.Heading(); hasTrack {
		attrs = append(attrs, "heading", hdg.Compass)
	}
	upd := domain.NodeUpdate{Latitude: &lat, Longitude: &lon}
	p.store(ctx, from, upd, domain.UpdateLocation)
	p.log.Info("pipeline: position stored", attrs...)
}

// store upserts the cache, counts the result, and emits a node event.
func (p *Processor) store(ctx context.Context, from uint32, upd domain.NodeUpdate, kind domain.UpdateKind) {
	before := p.cache.Stats().StoreErrors
	p.cache.Upsert(ctx, from, upd, kind)
	p.nodesStored.Add(1)
	p.metrics.Stored(ctx, string(kind))
	if p.cache.Stats().StoreErrors > before {
		p.storeErrors.Add(1)
		p.metrics.StoreError(ctx)
	}

	events.EmitAsync(p.producer, &events.NodeEvent{
		NodeID:         from,
		Kind:           string(kind),
		Shortname:      upd.Shortname,
		Longname:       upd.Longname,
		Latitude:       upd.Latitude,
		Longitude:      upd.Longitude,
		Voltage:        upd.Voltage,
		BatteryPercent: upd.BatteryPercent,
		ObservedAt:     p.now(),
	}, p.log)
}

// Stats returns the pipeline counters.
func (p *Processor) Stats() Stats {
	return Stats{
		MessagesTotal:  p.messagesTotal.Load(),
		JSONMessages:   p.jsonMessages.Load(),
		Envelopes:      p.envelopes.Load(),
		EnvelopeErrors: p.envelopeErrors.Load(),
		Decoded:        p.decoded.Load(),
		Encrypted:      p.encrypted.Load(),
		Decrypted:      p.decrypted.Load(),
		DecryptFailed:  p.decryptFailed.Load(),
		Filtered:       p.filtered.Load(),
		NodesStored:    p.nodesStored.Load(),
		StoreErrors:    p.storeErrors.Load(),
		DecodeErrors:   p.decodeErrors.Load(),
	}
}

func strptr(s string) *string { return &s }
