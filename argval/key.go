package argval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// keyDomain prefixes key hashes for domain separation.
// Version suffix enables future algorithm migration.
const keyDomain = "quiver/key/v1"

// Key identifies one cache slot: an endpoint name plus the canonical
// form of the argument value. Keys are comparable and usable as map
// keys. Two keys are equal exactly when the endpoint names match and
// the argument values are structurally equal at all depths after
// object-key-order normalization.
type Key struct {
	Endpoint string
	Canon    string
}

// ForEndpoint derives the cache key for an endpoint and argument value.
// Pure: same inputs always yield the same key. A nil arg (absent) keys
// differently from an explicit Null and from an empty Object.
func ForEndpoint(endpoint string, arg Value) (Key, error) {
	canon, err := Canonical(arg)
	if err != nil {
		return Key{}, fmt.Errorf("canonicalize args for %q: %w", endpoint, err)
	}
	return Key{Endpoint: endpoint, Canon: canon}, nil
}

// MustForEndpoint is like ForEndpoint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustForEndpoint(endpoint string, arg Value) Key {
	k, err := ForEndpoint(endpoint, arg)
	if err != nil {
		panic(err)
	}
	return k
}

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// String renders the readable form "endpoint(canonicalArgs)".
func (k Key) String() string {
	return k.Endpoint + "(" + k.Canon + ")"
}

// Hash computes the domain-separated SHA-256 of the readable form,
// hex encoded. Used for journal rows and log correlation where the
// full canonical form would be unwieldy.
// Format: SHA256(domain + 0x00 + key)
// The null byte separator prevents domain/data boundary ambiguity.
func (k Key) Hash() string {
	h := sha256.New()
	h.Write([]byte(keyDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(k.String()))
	return hex.EncodeToString(h.Sum(nil))
}
