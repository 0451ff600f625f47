// Package main provides the entry point for gridmesh-relay.
//
// gridmesh-relay is the per-node daemon. It serves the cluster RPC
// protocol, aggregates and forwards fan-out messages down the
// forwarding tree, and gossips its control endpoint to peers.
package main
