// Package packettest builds wire-format test fixtures for the packet codec.
// Kept out of the _test files so the pipeline tests can feed the same bytes
// end to end.
package packettest

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Data encodes a Data message with the given port number and payload.
func Data(portnum uint32, payload []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(portnum))
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, payload)
	return b
}

// DecodedPacket encodes a MeshPacket whose payload_variant is decoded.
func DecodedPacket(from, id uint32, data []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, from)
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, data)
	b = protowire.AppendTag(b, 6, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, id)
	return b
}

// EncryptedPacket encodes a MeshPacket whose payload_variant is encrypted.
func EncryptedPacket(from, id uint32, ciphertext []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, from)
	b = protowire.AppendTag(b, 5, protowire.BytesType)
	b = protowire.AppendBytes(b, ciphertext)
	b = protowire.AppendTag(b, 6, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, id)
	return b
}

// Envelope wraps an encoded MeshPacket in a ServiceEnvelope.
func Envelope(gatewayID string, packet []byte) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, packet)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, gatewayID)
	return b
}

// EmptyEnvelope encodes a ServiceEnvelope with a gateway id but no packet.
func EmptyEnvelope(gatewayID string) []byte {
	var b []byte
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, gatewayID)
	return b
}

// User encodes a User (NODEINFO) payload.
func User(id, longName, shortName string) []byte {
	var b []byte
	if id != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	if longName != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, longName)
	}
	if shortName != "" {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, shortName)
	}
	return b
}

// Position encodes a Position payload with the given raw fixed-point fields.
// Zero-valued optional fields are still written explicitly; the codec treats
// a raw (0,0) coordinate pair as absent regardless.
func Position(latitudeI, longitudeI int32, groundSpeed, groundTrack uint32) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, uint32(latitudeI))
	b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, uint32(longitudeI))
	if groundSpeed != 0 {
		b = protowire.AppendTag(b, 15, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(groundSpeed))
	}
	if groundTrack != 0 {
		b = protowire.AppendTag(b, 16, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(groundTrack))
	}
	return b
}

// PowerTelemetry encodes a Telemetry payload carrying power metrics with the
// given channel-1 and channel-2 voltages.
func PowerTelemetry(ch1Voltage, ch2Voltage float32) []byte {
	var pm []byte
	pm = protowire.AppendTag(pm, 1, protowire.Fixed32Type)
	pm = protowire.AppendFixed32(pm, math.Float32bits(ch1Voltage))
	pm = protowire.AppendTag(pm, 3, protowire.Fixed32Type)
	pm = protowire.AppendFixed32(pm, math.Float32bits(ch2Voltage))

	var b []byte
	b = protowire.AppendTag(b, 5, protowire.BytesType)
	b = protowire.AppendBytes(b, pm)
	return b
}

// DeviceTelemetry encodes a Telemetry payload carrying device metrics.
func DeviceTelemetry(batteryLevel uint32, voltage float32) []byte {
	var dm []byte
	dm = protowire.AppendTag(dm, 1, protowire.VarintType)
	dm = protowire.AppendVarint(dm, uint64(batteryLevel))
	dm = protowire.AppendTag(dm, 2, protowire.Fixed32Type)
	dm = protowire.AppendFixed32(dm, math.Float32bits(voltage))

	var b []byte
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, dm)
	return b
}
