// Package discovery provides relay node discovery using a gossip
// protocol.
//
// Each relay gossips its presence and its control endpoint; peers use
// the membership view to build node lists for forwarding without a
// central registry.
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"sort"

	"github.com/hashicorp/memberlist"
)

// Discovery handles relay membership using the gossip protocol.
type Discovery struct {
	config     *memberlist.Config
	memberList *memberlist.Memberlist
	logger     *slog.Logger
	shutdown   bool

	// Callbacks
	onJoin  func(node, relayAddr string)
	onLeave func(node string)
}

// Config configures the discovery mechanism.
type Config struct {
	// NodeName is the unique node name gossiped to peers.
	NodeName string

	// BindAddr and BindPort are the gossip bind endpoint.
	BindAddr string
	BindPort int

	// RelayAddr is this node's control endpoint (host:port). It is
	// stored in node metadata and shared with other nodes.
	RelayAddr string

	// Seeds are the initial nodes to join.
	Seeds []string

	// Logger for logging.
	Logger *slog.Logger
}

// New creates a discovery instance and joins the seed nodes.
func New(cfg Config) (*Discovery, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeName
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort

	// Share the control endpoint through node metadata.
	if cfg.RelayAddr != "" {
		mlConfig.Delegate = &metadataDelegate{relayAddr: []byte(cfg.RelayAddr)}
	}

	// Route memberlist's own log output through ours.
	mlConfig.LogOutput = &slogWriter{logger: cfg.Logger}

	d := &Discovery{
		config: mlConfig,
		logger: cfg.Logger,
	}
	mlConfig.Events = &eventDelegate{discovery: d}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	d.memberList = ml

	if len(cfg.Seeds) > 0 {
		n, err := ml.Join(cfg.Seeds)
		if err != nil {
			ml.Shutdown()
			return nil, fmt.Errorf("join seed nodes: %w", err)
		}
		cfg.Logger.Info("joined gossip mesh",
			"node", cfg.NodeName,
			"seeds", cfg.Seeds,
			"joined_count", n)
	} else {
		cfg.Logger.Info("started discovery (bootstrap mode)",
			"node", cfg.NodeName)
	}

	return d, nil
}

// Members returns the current membership view.
func (d *Discovery) Members() []*memberlist.Node {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.Members()
}

// Nodes returns the member node names, sorted, excluding the local
// node. Suitable for building forwarding hostlists.
func (d *Discovery) Nodes() []string {
	local := d.LocalNode()
	var names []string
	for _, m := range d.Members() {
		if local != nil && m.Name == local.Name {
			continue
		}
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

// RelayAddr returns the control endpoint gossiped by the named node,
// or empty if the node is unknown or gossiped no metadata.
func (d *Discovery) RelayAddr(node string) string {
	for _, m := range d.Members() {
		if m.Name == node {
			return string(m.Meta)
		}
	}
	return ""
}

// LocalNode returns the local node information.
func (d *Discovery) LocalNode() *memberlist.Node {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.LocalNode()
}

// OnJoin registers a callback for node join events. The callback
// receives the node name and its gossiped control endpoint.
func (d *Discovery) OnJoin(fn func(node, relayAddr string)) {
	d.onJoin = fn
}

// OnLeave registers a callback for node leave events.
func (d *Discovery) OnLeave(fn func(node string)) {
	d.onLeave = fn
}

// Leave gracefully leaves the mesh.
func (d *Discovery) Leave() error {
	if d.memberList == nil {
		return nil
	}
	if err := d.memberList.Leave(0); err != nil {
		d.logger.Error("failed to leave gossip mesh", "error", err)
		return err
	}
	d.logger.Info("left gossip mesh")
	return nil
}

// Shutdown stops the discovery mechanism.
func (d *Discovery) Shutdown() error {
	if d.shutdown || d.memberList == nil {
		return nil
	}
	d.shutdown = true

	if err := d.memberList.Shutdown(); err != nil {
		return fmt.Errorf("shutdown memberlist: %w", err)
	}
	d.logger.Info("discovery shutdown complete")
	return nil
}

// eventDelegate implements memberlist.EventDelegate.
type eventDelegate struct {
	discovery *Discovery
}

// NotifyJoin is called when a node joins.
func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	gossipAddr := net.JoinHostPort(node.Addr.String(), fmt.Sprintf("%d", node.Port))

	relayAddr := string(node.Meta)
	if relayAddr == "" {
		e.discovery.logger.Warn("node joined without control metadata, using gossip address",
			"node", node.Name,
			"gossip_addr", gossipAddr)
		relayAddr = gossipAddr
	}

	e.discovery.logger.Info("node joined",
		"node", node.Name,
		"gossip_addr", gossipAddr,
		"relay_addr", relayAddr)

	if e.discovery.onJoin != nil {
		e.discovery.onJoin(node.Name, relayAddr)
	}
}

// NotifyLeave is called when a node leaves.
func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	e.discovery.logger.Info("node left",
		"node", node.Name,
		"addr", node.Addr.String())

	if e.discovery.onLeave != nil {
		e.discovery.onLeave(node.Name)
	}
}

// NotifyUpdate is called when a node is updated.
func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	e.discovery.logger.Debug("node updated",
		"node", node.Name,
		"addr", node.Addr.String())
}

// slogWriter adapts slog.Logger to io.Writer for memberlist.
type slogWriter struct {
	logger *slog.Logger
}

// Write implements io.Writer.
func (w *slogWriter) Write(p []byte) (n int, err error) {
	w.logger.Debug(string(p))
	return len(p), nil
}

// metadataDelegate provides node metadata (the control endpoint) to
// memberlist.
type metadataDelegate struct {
	relayAddr []byte
}

// NodeMeta returns metadata about this node (up to 512 bytes).
func (m *metadataDelegate) NodeMeta(limit int) []byte {
	if len(m.relayAddr) > limit {
		return m.relayAddr[:limit]
	}
	return m.relayAddr
}

// NotifyMsg is called when a user message is received (not used).
func (m *metadataDelegate) NotifyMsg([]byte) {}

// GetBroadcasts is called to get broadcasts to send (not used).
func (m *metadataDelegate) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState is used for full state sync (not used).
func (m *metadataDelegate) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState is used for full state sync (not used).
func (m *metadataDelegate) MergeRemoteState(buf []byte, join bool) {}
