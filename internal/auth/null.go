package auth

import (
	"encoding/binary"
	"fmt"
)

// NullBackend mints credentials that verify unconditionally. It exists
// for the no-allocation testing path, where job-step context objects
// are built without a controller round trip, and for single-user
// development clusters. Never enable it on a trust boundary.
type NullBackend struct{}

// Name implements Backend.
func (NullBackend) Name() string { return "null" }

// Create implements Backend.
func (NullBackend) Create(uid uint32, _, _ []byte) (*Credential, error) {
	return &Credential{Backend: "null", UID: uid}, nil
}

// Pack implements Backend.
func (NullBackend) Pack(c *Credential) ([]byte, error) {
	if c.Destroyed() {
		return nil, errCredDestroyed
	}
	return binary.BigEndian.AppendUint32(nil, c.UID), nil
}

// Unpack implements Backend.
func (NullBackend) Unpack(blob []byte) (*Credential, error) {
	if len(blob) != 4 {
		return nil, fmt.Errorf("auth: null credential blob is %d bytes, want 4", len(blob))
	}
	return &Credential{Backend: "null", UID: binary.BigEndian.Uint32(blob)}, nil
}

// Verify implements Backend. Always succeeds.
func (NullBackend) Verify(c *Credential, _, _ []byte) error {
	if c.Destroyed() {
		return errCredDestroyed
	}
	return nil
}

// UID implements Backend.
func (NullBackend) UID(c *Credential) (uint32, error) {
	if c.Destroyed() {
		return 0, errCredDestroyed
	}
	return c.UID, nil
}
