package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DefaultCredentialTTL bounds how old a credential may be at
// verification time.
const DefaultCredentialTTL = 5 * time.Minute

// hmacBlobLen is the fixed wire size of a packed hmac credential:
// uid(4) + created(8) + nonce(16) + mac(32).
const hmacBlobLen = 4 + 8 + 16 + blake2b.Size256

var (
	errMACMismatch   = errors.New("auth: credential mac mismatch")
	errCredExpired   = errors.New("auth: credential expired")
	errCredDestroyed = errors.New("auth: credential already destroyed")
)

// HMACBackend authenticates messages with a keyed BLAKE2b MAC over the
// credential fields and the caller-supplied message payload.
type HMACBackend struct {
	// TTL is the maximum accepted credential age. Zero means
	// DefaultCredentialTTL.
	TTL time.Duration

	// now is overridable for tests.
	now func() time.Time
}

// NewHMACBackend returns an HMAC backend with the given credential TTL.
func NewHMACBackend(ttl time.Duration) *HMACBackend {
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	return &HMACBackend{TTL: ttl, now: time.Now}
}

// Name implements Backend.
func (b *HMACBackend) Name() string { return "hmac" }

// Create implements Backend.
func (b *HMACBackend) Create(uid uint32, key, payload []byte) (*Credential, error) {
	c := &Credential{
		Backend: b.Name(),
		UID:     uid,
		Created: b.now().Truncate(time.Second),
	}
	if _, err := rand.Read(c.Nonce[:]); err != nil {
		return nil, fmt.Errorf("auth: nonce: %w", err)
	}
	mac, err := b.mac(c, key, payload)
	if err != nil {
		return nil, err
	}
	c.MAC = mac
	return c, nil
}

// Pack implements Backend.
func (b *HMACBackend) Pack(c *Credential) ([]byte, error) {
	if c.Destroyed() {
		return nil, errCredDestroyed
	}
	out := make([]byte, 0, hmacBlobLen)
	out = binary.BigEndian.AppendUint32(out, c.UID)
	out = binary.BigEndian.AppendUint64(out, uint64(c.Created.Unix()))
	out = append(out, c.Nonce[:]...)
	out = append(out, c.MAC...)
	if len(out) != hmacBlobLen {
		return nil, fmt.Errorf("auth: packed credential is %d bytes, want %d", len(out), hmacBlobLen)
	}
	return out, nil
}

// Unpack implements Backend.
func (b *HMACBackend) Unpack(blob []byte) (*Credential, error) {
	if len(blob) != hmacBlobLen {
		return nil, fmt.Errorf("auth: credential blob is %d bytes, want %d", len(blob), hmacBlobLen)
	}
	c := &Credential{Backend: b.Name()}
	c.UID = binary.BigEndian.Uint32(blob[0:4])
	c.Created = time.Unix(int64(binary.BigEndian.Uint64(blob[4:12])), 0)
	copy(c.Nonce[:], blob[12:28])
	c.MAC = append([]byte(nil), blob[28:]...)
	return c, nil
}

// Verify implements Backend. The comparison is constant time.
func (b *HMACBackend) Verify(c *Credential, key, payload []byte) error {
	if c.Destroyed() {
		return errCredDestroyed
	}
	want, err := b.mac(c, key, payload)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(want, c.MAC) != 1 {
		return errMACMismatch
	}
	ttl := b.TTL
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	if age := b.now().Sub(c.Created); age > ttl {
		return fmt.Errorf("%w: age %s exceeds ttl %s", errCredExpired, age, ttl)
	}
	return nil
}

// UID implements Backend.
func (b *HMACBackend) UID(c *Credential) (uint32, error) {
	if c.Destroyed() {
		return 0, errCredDestroyed
	}
	return c.UID, nil
}

func (b *HMACBackend) mac(c *Credential, key, payload []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, errors.New("auth: empty key")
	}
	if len(key) > 64 {
		// blake2b keys are capped at 64 bytes; fold longer keys first.
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		return nil, fmt.Errorf("auth: keyed hash: %w", err)
	}
	var scratch [12]byte
	binary.BigEndian.PutUint32(scratch[0:4], c.UID)
	binary.BigEndian.PutUint64(scratch[4:12], uint64(c.Created.Unix()))
	h.Write(scratch[:])
	h.Write(c.Nonce[:])
	h.Write(payload)
	return h.Sum(nil), nil
}
