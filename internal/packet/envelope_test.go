package packet

import (
	"bytes"
	"errors"
	"testing"

	"bb-mesh-service/internal/packet/packettest"
)

func TestDecodeEnvelope_DecodedVariant(t *testing.T) {
	data := packettest.Data(uint32(PortTextMessage), []byte("hi"))
	raw := packettest.Envelope("!gateway1", packettest.DecodedPacket(0xAABBCC, 7, data))

	env, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.GatewayID != "!gateway1" {
		t.Errorf("GatewayID = %q, want %q", env.GatewayID, "!gateway1")
	}
	pkt := env.Packet
	if pkt.From != 0xAABBCC {
		t.Errorf("From = %#x, want 0xAABBCC", pkt.From)
	}
	if pkt.ID != 7 {
		t.Errorf("ID = %d, want 7", pkt.ID)
	}
	if pkt.Variant != VariantDecoded {
		t.Fatalf("Variant = %v, want VariantDecoded", pkt.Variant)
	}
	if pkt.Decoded.Portnum != PortTextMessage {
		t.Errorf("Portnum = %v, want TEXT_MESSAGE_APP", pkt.Decoded.Portnum)
	}
	if !bytes.Equal(pkt.Decoded.Payload, []byte("hi")) {
		t.Errorf("Payload = %q, want %q", pkt.Decoded.Payload, "hi")
	}
}

func TestDecodeEnvelope_EncryptedVariant(t *testing.T) {
	raw := packettest.Envelope("gw", packettest.EncryptedPacket(0x42, 99, []byte{1, 2, 3}))

	env, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	pkt := env.Packet
	if pkt.Variant != VariantEncrypted {
		t.Fatalf("Variant = %v, want VariantEncrypted", pkt.Variant)
	}
	if !bytes.Equal(pkt.Encrypted, []byte{1, 2, 3}) {
		t.Errorf("Encrypted = %v, want [1 2 3]", pkt.Encrypted)
	}
	if pkt.Decoded != nil {
		t.Error("Decoded should be nil for an encrypted packet")
	}
}

func TestDecodeEnvelope_MissingPacket(t *testing.T) {
	raw := packettest.EmptyEnvelope("gw")

	_, err := DecodeEnvelope(raw)
	if !errors.Is(err, ErrNoPacket) {
		t.Errorf("err = %v, want ErrNoPacket", err)
	}
}

func TestDecodeEnvelope_TruncatedInput(t *testing.T) {
	data := packettest.Data(uint32(PortTextMessage), []byte("hello"))
	raw := packettest.Envelope("gw", packettest.DecodedPacket(1, 2, data))

	for cut := 1; cut < len(raw); cut++ {
		if _, err := DecodeEnvelope(raw[:cut]); err == nil {
			// Some prefixes happen to be valid envelopes without a packet or
			// with a shorter payload; only a panic would be a bug. Decoding
			// must simply never succeed with the full packet intact.
			continue
		}
	}
}

func TestDecodeEnvelope_GarbageInput(t *testing.T) {
	if _, err := DecodeEnvelope([]byte{0xFF, 0xFF, 0xFF, 0xFF}); err == nil {
		t.Error("DecodeEnvelope of garbage should fail")
	}
}

func TestDecodeData_Empty(t *testing.T) {
	d, err := DecodeData(nil)
	if err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if !d.Empty() {
		t.Error("zero-byte Data should be Empty")
	}

	d, err = DecodeData(packettest.Data(1, []byte("x")))
	if err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if d.Empty() {
		t.Error("populated Data should not be Empty")
	}
}

func TestDecodeJSON(t *testing.T) {
	m, err := DecodeJSON([]byte(`{"from":123,"type":"position"}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if m["type"] != "position" {
		t.Errorf(`m["type"] = %v, want "position"`, m["type"])
	}

	if _, err := DecodeJSON([]byte("{not json")); err == nil {
		t.Error("DecodeJSON should reject malformed input")
	}
}
