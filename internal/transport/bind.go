package transport

import (
	"net"
	"sync"
)

// bindCache resolves the configured local interface once per process.
// The pinned interface cannot change without a restart, so later calls
// observe the first resolution, success or failure.
type bindCache struct {
	once sync.Once
	addr *net.TCPAddr
	err  error
}

func (b *bindCache) resolve(host string) (*net.TCPAddr, error) {
	b.once.Do(func() {
		if host == "" {
			return
		}
		b.addr, b.err = net.ResolveTCPAddr("tcp", net.JoinHostPort(host, "0"))
	})
	return b.addr, b.err
}

var localBind bindCache

// SetLocalBind pins outbound connections to the given local interface.
// Resolution happens once for the process lifetime; an empty host
// leaves outbound binding to the kernel.
func SetLocalBind(host string) error {
	_, err := localBind.resolve(host)
	return err
}

// localBindAddr returns the pinned local address, nil when none was
// configured or resolution failed.
func localBindAddr() net.Addr {
	addr, err := localBind.resolve("")
	if err != nil || addr == nil {
		return nil
	}
	return addr
}
