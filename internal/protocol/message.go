package protocol

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/yndnr/gridmesh-go/internal/comm"
)

// ErrNotReturnCode reports a response whose caller expected a
// return-code body but received another message type.
var ErrNotReturnCode = errors.New("response is not a return-code message")

// Message is a control message owned by the caller until handed to the
// transport. After a send the credential is destroyed by the sender and
// the buffer may be released unless FlagKeepBuffer was set.
type Message struct {
	// Version is the protocol version; zero means the current Version.
	Version uint16

	// Type identifies the body payload.
	Type MsgType

	// Flags carry per-message options (FlagGlobalAuth, FlagKeepBuffer).
	Flags uint16

	// Forward describes the subtree this message must still reach.
	Forward ForwardDescriptor

	// OrigAddr is the address the message originated from, carried so
	// deep relays can identify the root sender.
	OrigAddr netip.AddrPort

	// Body is the packed typed payload. Opaque to this layer.
	Body []byte

	// RetList carries nested per-node responses on the way back up the
	// tree.
	RetList []ResponseEntry

	// Buffer holds the raw frame when FlagKeepBuffer was set on
	// receive.
	Buffer []byte
}

// NewMessage returns a leaf message of the given type with the current
// protocol version and an initialized, empty forward descriptor.
func NewMessage(t MsgType, body []byte) *Message {
	m := &Message{Version: Version, Type: t, Body: body}
	m.Forward.Init = true
	return m
}

func errFramingDetail(format string, args ...any) error {
	return comm.ErrFraming.WithDetails(fmt.Sprintf(format, args...))
}

func joinNodes(nodes []string) string {
	return strings.Join(nodes, ",")
}

func splitNodes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
