package auth

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/gridmesh-go/internal/comm"
)

func TestHMACBackend_CreateVerify(t *testing.T) {
	b := NewHMACBackend(0)
	key := []byte("cluster-shared-secret")

	c, err := b.Create(1000, key, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := b.Verify(c, key, nil); err != nil {
		t.Errorf("verify with correct key: %v", err)
	}

	uid, err := b.UID(c)
	if err != nil || uid != 1000 {
		t.Errorf("uid = %d, err = %v, want 1000", uid, err)
	}
}

func TestHMACBackend_PackUnpackRoundTrip(t *testing.T) {
	b := NewHMACBackend(0)
	key := []byte("cluster-shared-secret")

	c, err := b.Create(507, key, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	blob, err := b.Pack(c)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	got, err := b.Unpack(blob)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got.UID != c.UID || !got.Created.Equal(c.Created) || got.Nonce != c.Nonce || !bytes.Equal(got.MAC, c.MAC) {
		t.Errorf("unpacked credential differs: %+v vs %+v", got, c)
	}
	if err := b.Verify(got, key, nil); err != nil {
		t.Errorf("verify unpacked: %v", err)
	}
}

func TestHMACBackend_Rejections(t *testing.T) {
	b := NewHMACBackend(0)
	key := []byte("cluster-shared-secret")

	c, err := b.Create(1000, key, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("wrong key", func(t *testing.T) {
		if err := b.Verify(c, []byte("some-other-secret"), nil); err == nil {
			t.Error("verify with mismatched key succeeded")
		}
	})

	t.Run("tampered uid", func(t *testing.T) {
		blob, _ := b.Pack(c)
		blob[3] ^= 0x01
		tampered, err := b.Unpack(blob)
		if err != nil {
			t.Fatalf("unpack: %v", err)
		}
		if err := b.Verify(tampered, key, nil); err == nil {
			t.Error("verify of tampered credential succeeded")
		}
	})

	t.Run("truncated blob", func(t *testing.T) {
		blob, _ := b.Pack(c)
		if _, err := b.Unpack(blob[:len(blob)-1]); err == nil {
			t.Error("unpack of truncated blob succeeded")
		}
	})
}

func TestHMACBackend_PayloadBinding(t *testing.T) {
	b := NewHMACBackend(0)
	key := []byte("cluster-shared-secret")

	c, err := b.Create(1000, key, []byte("message-content"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := b.Verify(c, key, []byte("message-content")); err != nil {
		t.Errorf("verify with original payload: %v", err)
	}
	if err := b.Verify(c, key, []byte("message-CONTENT")); !errors.Is(err, errMACMismatch) {
		t.Errorf("verify with altered payload: err = %v, want mac mismatch", err)
	}
	if err := b.Verify(c, key, nil); !errors.Is(err, errMACMismatch) {
		t.Errorf("verify with missing payload: err = %v, want mac mismatch", err)
	}
}

func TestHMACBackend_Expiry(t *testing.T) {
	b := NewHMACBackend(time.Minute)
	key := []byte("k")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }

	c, err := b.Create(1, key, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	b.now = func() time.Time { return base.Add(59 * time.Second) }
	if err := b.Verify(c, key, nil); err != nil {
		t.Errorf("verify inside ttl: %v", err)
	}

	b.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := b.Verify(c, key, nil); !errors.Is(err, errCredExpired) {
		t.Errorf("verify past ttl: err = %v, want expiry", err)
	}
}

func TestCredential_Destroy(t *testing.T) {
	b := NewHMACBackend(0)
	c, err := b.Create(1, []byte("k"), nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	c.Destroy()
	if !c.Destroyed() {
		t.Error("credential not marked destroyed")
	}
	if err := b.Verify(c, []byte("k"), nil); !errors.Is(err, errCredDestroyed) {
		t.Errorf("verify after destroy: err = %v", err)
	}
	if _, err := b.Pack(c); !errors.Is(err, errCredDestroyed) {
		t.Errorf("pack after destroy: err = %v", err)
	}
	// Idempotent.
	c.Destroy()
}

func TestNullBackend(t *testing.T) {
	b := NullBackend{}
	c, err := b.Create(2026, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	blob, err := b.Pack(c)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	got, err := b.Unpack(blob)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if err := b.Verify(got, nil, nil); err != nil {
		t.Errorf("verify: %v", err)
	}
	if uid, _ := b.UID(got); uid != 2026 {
		t.Errorf("uid = %d, want 2026", uid)
	}
}

func TestRegistry(t *testing.T) {
	// hmac and null are registered by the package init in register.go.
	if _, err := Lookup("hmac"); err != nil {
		t.Errorf("lookup hmac: %v", err)
	}
	if _, err := Lookup("null"); err != nil {
		t.Errorf("lookup null: %v", err)
	}
	if _, err := Lookup("munge"); err == nil {
		t.Error("lookup of unregistered backend succeeded")
	}
}

func TestKeyCache_WriteOnce(t *testing.T) {
	var kc KeyCache
	calls := 0
	load := func() ([]byte, error) {
		calls++
		return []byte("secret"), nil
	}

	k1, err := kc.Load(load)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	k2, err := kc.Load(func() ([]byte, error) {
		t.Error("second load function invoked")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if calls != 1 || !bytes.Equal(k1, k2) {
		t.Errorf("cache not write-once: calls=%d", calls)
	}
}

func TestKeyCache_OversizedKeyIsFatal(t *testing.T) {
	var kc KeyCache
	big := make([]byte, MaxKeyLen+1)

	_, err := kc.Load(func() ([]byte, error) { return big, nil })
	if !errors.Is(err, comm.ErrKeyTooLong) {
		t.Fatalf("err = %v, want key-too-long", err)
	}

	// The failure is cached: the process must never proceed with a
	// different answer later.
	_, err = kc.Load(func() ([]byte, error) { return []byte("ok"), nil })
	if !errors.Is(err, comm.ErrKeyTooLong) {
		t.Errorf("second load err = %v, want cached key-too-long", err)
	}
}

func TestKeyCache_MaxLenBoundary(t *testing.T) {
	var kc KeyCache
	exact := make([]byte, MaxKeyLen)
	if _, err := kc.Load(func() ([]byte, error) { return exact, nil }); err != nil {
		t.Errorf("key of exactly MaxKeyLen rejected: %v", err)
	}
}
