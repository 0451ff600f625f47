// Package auth provides pluggable message authentication for GridMesh.
//
// Every message carries an opaque credential produced and verified by a
// Backend. Backends register by name and are selected through
// configuration, so the trust boundary can be swapped without touching
// the transport.
//
// Two trust keys exist: the per-cluster key from configuration, and a
// process-lifetime global key used only when a message's flags request
// it (cross-cluster traffic). All backend-specific failures must be
// reported to wire-facing callers as the unified authentication error
// class so no backend detail leaks to the wire.
package auth

import (
	"fmt"
	"sync"
	"time"
)

// Credential is an authentication token attached to a message. It is
// created on send, verified on receive, and destroyed on both paths
// regardless of success.
type Credential struct {
	// Backend is the name of the backend that produced the credential.
	Backend string

	// UID is the identity the credential asserts.
	UID uint32

	// Created is the credential creation time.
	Created time.Time

	// Nonce makes otherwise identical credentials distinct.
	Nonce [16]byte

	// MAC is the backend's integrity tag over the fields above.
	MAC []byte

	destroyed bool
}

// Destroy wipes the credential's secret material. Safe to call more
// than once.
func (c *Credential) Destroy() {
	if c == nil || c.destroyed {
		return
	}
	for i := range c.MAC {
		c.MAC[i] = 0
	}
	c.MAC = nil
	c.destroyed = true
}

// Destroyed reports whether the credential has been wiped.
func (c *Credential) Destroyed() bool {
	return c == nil || c.destroyed
}

// Backend is the capability interface over a credential
// implementation.
type Backend interface {
	// Name returns the backend's registry name.
	Name() string

	// Create mints a credential asserting uid, keyed with key and
	// bound to payload. A verifier presenting a different payload must
	// be rejected.
	Create(uid uint32, key, payload []byte) (*Credential, error)

	// Pack serializes a credential for the wire.
	Pack(c *Credential) ([]byte, error)

	// Unpack restores a credential from its wire form without
	// verifying it.
	Unpack(blob []byte) (*Credential, error)

	// Verify checks the credential against key and the payload it was
	// created over.
	Verify(c *Credential, key, payload []byte) error

	// UID extracts the asserted identity from a verified credential.
	UID(c *Credential) (uint32, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Backend)
)

// Register adds a backend to the registry. Registering a duplicate name
// panics: backend wiring is a startup-time programming error.
func Register(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[b.Name()]; dup {
		panic(fmt.Sprintf("auth: backend %q registered twice", b.Name()))
	}
	registry[b.Name()] = b
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("auth: unknown backend %q", name)
	}
	return b, nil
}
