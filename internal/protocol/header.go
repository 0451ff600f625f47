package protocol

import (
	"net/netip"
	"time"
)

// forwardInit marks an initialized forward descriptor on the wire. A
// descriptor without it is treated as uninitialized and defaulted
// before use.
const forwardInit uint16 = 0xfffe

// ForwardDescriptor describes the subtree a message must still be
// relayed to. A zero Cnt means leaf message, no further forwarding.
type ForwardDescriptor struct {
	// Init reports whether the descriptor was explicitly initialized.
	Init bool

	// Nodes are the remaining target node names, in compact hostlist
	// order.
	Nodes []string

	// Timeout is the remaining per-hop timeout budget for the subtree.
	Timeout time.Duration

	// TreeWidth bounds the fan-out at each hop. Zero means use the
	// configured default.
	TreeWidth uint16
}

// Cnt returns the number of nodes still to be reached.
func (f *ForwardDescriptor) Cnt() int {
	return len(f.Nodes)
}

// Reset initializes an uninitialized descriptor: empty node list and
// the supplied default tree width.
func (f *ForwardDescriptor) Reset(defaultWidth uint16) {
	if f.Init {
		if f.TreeWidth == 0 {
			f.TreeWidth = defaultWidth
		}
		return
	}
	*f = ForwardDescriptor{Init: true, TreeWidth: defaultWidth}
}

// ResponseEntry is one per-node result produced by the forwarding tree.
// A node that never responds still yields an entry carrying an error
// code, so response-list cardinality always equals fan-out cardinality.
type ResponseEntry struct {
	// Node is the source node name.
	Node string

	// Type is the result message type, or ResponseForwardFailed for a
	// synthetic failure entry.
	Type MsgType

	// ErrCode is the comm error code for failed entries, empty on
	// success.
	ErrCode string

	// Body is the packed response payload, nil for failure entries.
	Body []byte
}

// OK reports whether the entry represents a real response.
func (e *ResponseEntry) OK() bool {
	return e.ErrCode == ""
}

// Header is the wire projection of a message's metadata.
type Header struct {
	Version    uint16
	Flags      uint16
	Type       MsgType
	BodyLength uint32
	Forward    ForwardDescriptor
	OrigAddr   netip.AddrPort
	RetList    []ResponseEntry
}

func packHeader(p *packer, h *Header) {
	p.putU16(h.Version)
	p.putU16(h.Flags)
	p.putU16(uint16(h.Type))
	p.putU32(h.BodyLength)

	if h.Forward.Init {
		p.putU16(forwardInit)
	} else {
		p.putU16(0)
	}
	p.putU16(uint16(len(h.Forward.Nodes)))
	p.putU32(uint32(h.Forward.Timeout / time.Millisecond))
	p.putU16(h.Forward.TreeWidth)
	p.putString(joinNodes(h.Forward.Nodes))

	packAddr(p, h.OrigAddr)

	p.putU16(uint16(len(h.RetList)))
	for i := range h.RetList {
		e := &h.RetList[i]
		p.putString(e.Node)
		p.putU16(uint16(e.Type))
		p.putString(e.ErrCode)
		p.putBytes(e.Body)
	}
}

func unpackHeader(r *reader) (*Header, error) {
	h := &Header{}
	var err error

	if h.Version, err = r.u16(); err != nil {
		return nil, err
	}
	if h.Flags, err = r.u16(); err != nil {
		return nil, err
	}
	t, err := r.u16()
	if err != nil {
		return nil, err
	}
	h.Type = MsgType(t)
	if h.BodyLength, err = r.u32(); err != nil {
		return nil, err
	}

	initFlag, err := r.u16()
	if err != nil {
		return nil, err
	}
	h.Forward.Init = initFlag == forwardInit
	cnt, err := r.u16()
	if err != nil {
		return nil, err
	}
	timeoutMS, err := r.u32()
	if err != nil {
		return nil, err
	}
	h.Forward.Timeout = time.Duration(timeoutMS) * time.Millisecond
	if h.Forward.TreeWidth, err = r.u16(); err != nil {
		return nil, err
	}
	nodeStr, err := r.str()
	if err != nil {
		return nil, err
	}
	h.Forward.Nodes = splitNodes(nodeStr)
	if len(h.Forward.Nodes) != int(cnt) {
		return nil, errFramingDetail("forward count %d does not match node list length %d", cnt, len(h.Forward.Nodes))
	}

	if h.OrigAddr, err = unpackAddr(r); err != nil {
		return nil, err
	}

	retCnt, err := r.u16()
	if err != nil {
		return nil, err
	}
	if retCnt > 0 {
		h.RetList = make([]ResponseEntry, 0, retCnt)
		for i := 0; i < int(retCnt); i++ {
			var e ResponseEntry
			if e.Node, err = r.str(); err != nil {
				return nil, err
			}
			et, err := r.u16()
			if err != nil {
				return nil, err
			}
			e.Type = MsgType(et)
			if e.ErrCode, err = r.str(); err != nil {
				return nil, err
			}
			body, err := r.bytes()
			if err != nil {
				return nil, err
			}
			if len(body) > 0 {
				e.Body = append([]byte(nil), body...)
			}
			h.RetList = append(h.RetList, e)
		}
	}

	return h, nil
}

func packAddr(p *packer, ap netip.AddrPort) {
	if !ap.IsValid() {
		p.putU8(0)
		p.putU16(0)
		return
	}
	b := ap.Addr().AsSlice()
	p.putU8(uint8(len(b)))
	p.buf = append(p.buf, b...)
	p.putU16(ap.Port())
}

func unpackAddr(r *reader) (netip.AddrPort, error) {
	n, err := r.u8()
	if err != nil {
		return netip.AddrPort{}, err
	}
	if n == 0 {
		if _, err := r.u16(); err != nil {
			return netip.AddrPort{}, err
		}
		return netip.AddrPort{}, nil
	}
	if n != 4 && n != 16 {
		return netip.AddrPort{}, errFramingDetail("invalid address length %d", n)
	}
	if r.remaining() < int(n) {
		return netip.AddrPort{}, errFramingDetail("short buffer reading address")
	}
	addr, _ := netip.AddrFromSlice(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	port, err := r.u16()
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addr, port), nil
}
