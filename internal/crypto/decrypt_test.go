package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"testing"
)

func mustRing(t *testing.T, keys ...Key) *KeyRing {
	t.Helper()
	ring, err := NewKeyRing(keys)
	if err != nil {
		t.Fatalf("NewKeyRing: %v", err)
	}
	return ring
}

// ctrEncrypt mirrors the cipher with an explicitly supplied nonce so tests
// can pin the exact nonce layout Decrypt must derive.
func ctrEncrypt(t *testing.T, key, nonce, plain []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	out := make([]byte, len(plain))
	cipher.NewCTR(block, nonce).XORKeyStream(out, plain)
	return out
}

func TestDecrypt_Nonce16ByteKey(t *testing.T) {
	key := Key{Bytes: bytes.Repeat([]byte{0xAB}, 16), Description: "test"}
	plain := []byte("hello mesh")

	// packet_id=1, from_node=0x1234: nonce is the two ids as 8-byte LE values.
	wantNonce := []byte{
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x34, 0x12, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	ciphertext := ctrEncrypt(t, key.Bytes, wantNonce, plain)

	got, err := Decrypt(key, ciphertext, 1, 0x1234)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("plaintext = %x, want %x", got, plain)
	}
}

func TestDecrypt_Nonce32ByteKey(t *testing.T) {
	key := Key{Bytes: bytes.Repeat([]byte{0x42}, 32), Description: "test"}
	plain := []byte("thirty-two byte key payload")

	// Two LE uint32s followed by 8 zero bytes.
	wantNonce := []byte{
		0xEF, 0xBE, 0xAD, 0xDE, 0x78, 0x56, 0x34, 0x12,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	ciphertext := ctrEncrypt(t, key.Bytes, wantNonce, plain)

	got, err := Decrypt(key, ciphertext, 0xDEADBEEF, 0x12345678)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("plaintext = %x, want %x", got, plain)
	}
}

func TestDecrypt_OneByteKeyRoundTrip(t *testing.T) {
	key := Key{Bytes: []byte{0x5A}, Description: "xor"}
	plain := []byte{0x00, 0x01, 0xFF, 0x5A, 0x80, 0x7F}

	enc, err := Decrypt(key, plain, 99, 0xAABB)
	if err != nil {
		t.Fatalf("Decrypt (encrypt direction): %v", err)
	}
	dec, err := Decrypt(key, enc, 99, 0xAABB)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(dec, plain) {
		t.Errorf("round trip = %x, want %x", dec, plain)
	}
}

func TestDecrypt_UnsupportedKeyLength(t *testing.T) {
	for _, n := range []int{0, 2, 8, 24, 64} {
		key := Key{Bytes: make([]byte, n)}
		if _, err := Decrypt(key, []byte{1, 2, 3}, 1, 1); err == nil {
			t.Errorf("Decrypt with %d-byte key: want error, got nil", n)
		}
	}
}

func TestNewKeyRing_RejectsBadLength(t *testing.T) {
	_, err := NewKeyRing([]Key{{Bytes: make([]byte, 24), Description: "bad"}})
	if err == nil {
		t.Fatal("NewKeyRing should reject a 24-byte key")
	}
}

func TestParseKey_Base64(t *testing.T) {
	// The 16-byte default channel key.
	k, err := ParseKey("1PG7OiApB1nwvP+rz05pAQ==", "default")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	if len(k.Bytes) != 16 {
		t.Errorf("key length = %d, want 16", len(k.Bytes))
	}

	if _, err := ParseKey("not base64!!!", "bad"); err == nil {
		t.Error("ParseKey should reject invalid base64")
	}
}

func TestTryDecrypt_FirstUsableKeyWins(t *testing.T) {
	xor := Key{Bytes: []byte{0x01}, Description: "xor"}
	ring := mustRing(t, xor)
	dec := NewDecryptor(ring)

	plain, ok := dec.TryDecrypt([]byte{0x02, 0x03}, 1, 1)
	if !ok {
		t.Fatal("TryDecrypt should succeed with a 1-byte key")
	}
	if !bytes.Equal(plain, []byte{0x03, 0x02}) {
		t.Errorf("plaintext = %x, want 0302", plain)
	}
}

func TestTryDecrypt_ExhaustionOnEmptyCiphertext(t *testing.T) {
	ring := mustRing(t, Key{Bytes: []byte{0x01}}, Key{Bytes: bytes.Repeat([]byte{2}, 16)})
	dec := NewDecryptor(ring)

	// An empty plaintext is never a usable result, so every key is exhausted.
	if _, ok := dec.TryDecrypt(nil, 1, 1); ok {
		t.Error("TryDecrypt of empty ciphertext should report exhaustion")
	}
}

func TestTryDecrypt_KeyOrderPreserved(t *testing.T) {
	// Both 1-byte keys "succeed" structurally; the first in ring order must win.
	first := Key{Bytes: []byte{0xFF}, Description: "first"}
	second := Key{Bytes: []byte{0x00}, Description: "second"}
	dec := NewDecryptor(mustRing(t, first, second))

	plain, ok := dec.TryDecrypt([]byte{0xFF}, 1, 1)
	if !ok {
		t.Fatal("TryDecrypt failed")
	}
	if plain[0] != 0x00 {
		t.Errorf("plain[0] = %#x, want 0x00 (first key applied)", plain[0])
	}
}
