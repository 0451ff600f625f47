package auth

import (
	"fmt"
	"sync"

	"github.com/yndnr/gridmesh-go/internal/comm"
)

// MaxKeyLen is the fixed maximum length of the global authentication
// key. Exceeding it is a configuration-sanity violation: the process
// must not proceed.
const MaxKeyLen = 512

// KeyCache is a process-lifetime, write-once key holder. The load
// function runs exactly once; every later call observes the same key or
// the same error.
type KeyCache struct {
	once sync.Once
	key  []byte
	err  error
}

// Load returns the cached key, invoking fn on first use.
func (k *KeyCache) Load(fn func() ([]byte, error)) ([]byte, error) {
	k.once.Do(func() {
		key, err := fn()
		if err != nil {
			k.err = err
			return
		}
		if len(key) > MaxKeyLen {
			k.err = comm.ErrKeyTooLong.WithDetails(
				fmt.Sprintf("%d bytes, maximum %d", len(key), MaxKeyLen))
			return
		}
		k.key = key
	})
	return k.key, k.err
}

// globalKey caches the cross-cluster key for the process lifetime.
var globalKey KeyCache

// GlobalKey returns the process-wide global authentication key, loading
// it through fn on first use. A key longer than MaxKeyLen is an
// unrecoverable configuration error and stays fatal on every call.
func GlobalKey(fn func() ([]byte, error)) ([]byte, error) {
	return globalKey.Load(fn)
}
