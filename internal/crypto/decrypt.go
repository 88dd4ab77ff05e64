package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
)

// ErrUnsupportedKeyLength is returned for keys that are not 1, 16, or 32
// bytes. Surfaced at startup via NewKeyRing; Decrypt repeats the check so a
// hand-built Key cannot slip past it.
var ErrUnsupportedKeyLength = errors.New("crypto: unsupported key length (want 1, 16, or 32 bytes)")

// Decrypt applies one key to ciphertext. The nonce construction depends on
// the key length:
//
//	16 bytes: packet id and source node as two 8-byte little-endian values,
//	          concatenated (AES-128-CTR).
//	32 bytes: packet id and source node as two little-endian uint32s, padded
//	          with 8 zero bytes (AES-256-CTR).
//	 1 byte:  byte-wise XOR with the key byte; no nonce.
//
// CTR mode has no integrity check, so any well-formed key "succeeds"
// structurally. Callers must validate the plaintext (a parseable, non-empty
// Data message) to tell the right key from a wrong one.
func Decrypt(key Key, ciphertext []byte, packetID uint32, fromNode uint32) ([]byte, error) {
	switch len(key.Bytes) {
	case 1:
		plain := make([]byte, len(ciphertext))
		for i, b := range ciphertext {
			plain[i] = b ^ key.Bytes[0]
		}
		return plain, nil
	case 16:
		nonce := make([]byte, 16)
		binary.LittleEndian.PutUint64(nonce[0:8], uint64(packetID))
		binary.LittleEndian.PutUint64(nonce[8:16], uint64(fromNode))
		return ctrDecrypt(key.Bytes, nonce, ciphertext)
	case 32:
		nonce := make([]byte, 16)
		binary.LittleEndian.PutUint32(nonce[0:4], packetID)
		binary.LittleEndian.PutUint32(nonce[4:8], fromNode)
		return ctrDecrypt(key.Bytes, nonce, ciphertext)
	default:
		return nil, ErrUnsupportedKeyLength
	}
}

func ctrDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCTR(block, nonce).XORKeyStream(plain, ciphertext)
	return plain, nil
}

// Decryptor tries every key in a ring against a ciphertext.
type Decryptor struct {
	ring *KeyRing
}

// NewDecryptor returns a Decryptor over the given ring.
func NewDecryptor(ring *KeyRing) *Decryptor {
	return &Decryptor{ring: ring}
}

// TryDecrypt attempts each key in ring order and returns the first non-empty
// plaintext. The second return is false when every key was exhausted.
// Individual key failures are deliberately silent; with a busy mesh, per-key
// logging floods the output without telling the operator anything.
func (d *Decryptor) TryDecrypt(ciphertext []byte, packetID uint32, fromNode uint32) ([]byte, bool) {
	for _, key := range d.ring.Keys() {
		plain, err := Decrypt(key, ciphertext, packetID, fromNode)
		if err != nil || len(plain) == 0 {
			continue
		}
		return plain, true
	}
	return nil, false
}
