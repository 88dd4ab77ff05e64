// Package crypto decrypts opportunistically-encrypted mesh packets using a
// ring of candidate keys.
package crypto

import (
	"encoding/base64"
	"fmt"
)

// Key is a single candidate decryption key. Description is operator-facing
// (config echo, logs); it never affects decryption.
type Key struct {
	Bytes       []byte
	Description string
}

// KeyRing is an ordered list of candidate keys, tried in declaration order.
// Immutable after construction.
type KeyRing struct {
	keys []Key
}

// NewKeyRing validates the supplied keys and returns a ring. A key length
// other than 1, 16, or 32 bytes is a configuration error, not a decryption
// failure, so construction fails rather than deferring to runtime.
func NewKeyRing(keys []Key) (*KeyRing, error) {
	for _, k := range keys {
		switch len(k.Bytes) {
		case 1, 16, 32:
		default:
			return nil, fmt.Errorf("%w: %q is %d bytes", ErrUnsupportedKeyLength, k.Description, len(k.Bytes))
		}
	}
	return &KeyRing{keys: keys}, nil
}

// ParseKey base64-decodes an encoded key. Meshtastic channel keys are
// exchanged as standard base64.
func ParseKey(encoded, description string) (Key, error) {
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Key{}, fmt.Errorf("decode key %q: %w", description, err)
	}
	return Key{Bytes: b, Description: description}, nil
}

// Keys returns the ring contents in trial order.
func (r *KeyRing) Keys() []Key { return r.keys }

// Len returns the number of keys in the ring.
func (r *KeyRing) Len() int { return len(r.keys) }
