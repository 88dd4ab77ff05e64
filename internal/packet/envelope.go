// Package packet decodes the mesh wire format: the MQTT service envelope,
// the packet it carries, and the per-port application payloads. Decoding is
// hand-rolled over the protobuf wire format (encoding/protowire) against the
// mesh firmware's schema; the handful of messages this service consumes does
// not justify a generated-code pipeline.
//
// Decode failure for a known port is data, not an error: it surfaces as a
// KindDecodeError payload and never propagates past this package.
package packet

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrNoPacket is returned by DecodeEnvelope when the envelope carries no
// packet field. Such messages are dropped.
var ErrNoPacket = errors.New("packet: service envelope has no packet")

// Envelope is the outer wire wrapper published by gateways: routing metadata
// plus exactly one mesh packet.
type Envelope struct {
	Packet    *MeshPacket
	ChannelID string
	GatewayID string
}

// Variant discriminates the packet's payload union.
type Variant uint8

const (
	// VariantNone means neither union arm was present on the wire.
	VariantNone Variant = iota
	// VariantDecoded means the packet carries a plaintext Data message.
	VariantDecoded
	// VariantEncrypted means the packet carries ciphertext.
	VariantEncrypted
)

// MeshPacket is one radio packet. Exactly one of Decoded/Encrypted is
// populated, selected by Variant; the header fields (From, ID, ...) are
// always plaintext even for encrypted packets, which is what allows
// admission to be re-checked after decryption.
type MeshPacket struct {
	From     uint32
	To       uint32
	Channel  uint32
	ID       uint32
	RxTime   uint32
	RxSNR    float32
	HopLimit uint32
	RxRSSI   int32

	Variant   Variant
	Decoded   *Data
	Encrypted []byte
}

// Data is the decoded application payload: a port number and opaque bytes
// interpreted per port.
type Data struct {
	Portnum PortNum
	Payload []byte

	fields int // wire fields seen, for Empty
}

// Empty reports whether the message had no fields on the wire. A Data parsed
// from a wrong-key "plaintext" is usually malformed, but an unlucky
// keystream can yield a structurally valid, field-free message; both cases
// mean the key was wrong.
func (d *Data) Empty() bool { return d == nil || d.fields == 0 }

// DecodeEnvelope parses a binary service envelope. It returns ErrNoPacket
// for an envelope without a packet and a wire error for malformed input;
// it never panics on truncated or corrupt bytes.
func DecodeEnvelope(b []byte) (*Envelope, error) {
	env := &Envelope{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("packet: envelope tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: envelope packet field: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pkt, err := decodeMeshPacket(raw)
			if err != nil {
				return nil, err
			}
			env.Packet = pkt
		case num == 2 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: envelope channel_id: %w", protowire.ParseError(n))
			}
			b = b[n:]
			env.ChannelID = s
		case num == 3 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: envelope gateway_id: %w", protowire.ParseError(n))
			}
			b = b[n:]
			env.GatewayID = s
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("packet: envelope field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if env.Packet == nil {
		return nil, ErrNoPacket
	}
	return env, nil
}

func decodeMeshPacket(b []byte) (*MeshPacket, error) {
	pkt := &MeshPacket{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("packet: mesh packet tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: from: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pkt.From = v
		case num == 2 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: to: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pkt.To = v
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: channel: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pkt.Channel = uint32(v)
		case num == 4 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: decoded: %w", protowire.ParseError(n))
			}
			b = b[n:]
			data, err := DecodeData(raw)
			if err != nil {
				return nil, err
			}
			pkt.Variant = VariantDecoded
			pkt.Decoded = data
			pkt.Encrypted = nil
		case num == 5 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: encrypted: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pkt.Variant = VariantEncrypted
			pkt.Encrypted = raw
			pkt.Decoded = nil
		case num == 6 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: id: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pkt.ID = v
		case num == 7 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: rx_time: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pkt.RxTime = v
		case num == 8 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: rx_snr: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pkt.RxSNR = math.Float32frombits(v)
		case num == 9 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: hop_limit: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pkt.HopLimit = uint32(v)
		case num == 12 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: rx_rssi: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pkt.RxRSSI = int32(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("packet: mesh packet field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return pkt, nil
}

// DecodeData parses a Data message. Used both for the decoded arm of a
// packet and for plaintext recovered by decryption; the latter is how a
// wrong key is detected, via the returned error or Data.Empty.
func DecodeData(b []byte) (*Data, error) {
	d := &Data{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("packet: data tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: portnum: %w", protowire.ParseError(n))
			}
			b = b[n:]
			d.Portnum = PortNum(v)
			d.fields++
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: data payload: %w", protowire.ParseError(n))
			}
			b = b[n:]
			d.Payload = raw
			d.fields++
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("packet: data field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			d.fields++
		}
	}
	return d, nil
}

// DecodeJSON parses a JSON-topic message into a generic map.
func DecodeJSON(b []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("packet: json payload: %w", err)
	}
	return m, nil
}
