package trampoline

import "github.com/lightningnetwork/trampoline-electrum/wire"

// Input is the closed set of messages Broadcaster.Process accepts. Any
// value not implementing Input is rejected at compile time; any Input
// value the executor doesn't recognize is a silent no-op.
type Input interface {
	isInput()
}

// CMDBroadcast is the tick emitted every broadcastInterval by the
// broadcaster's own ticker.
type CMDBroadcast struct{}

func (CMDBroadcast) isInput() {}

// RoutingOnMsg enables (or reconfigures) routing with the given template
// parameters.
type RoutingOnMsg struct {
	Params wire.TrampolineOn
}

func (RoutingOnMsg) isInput() {}

// RoutingOffMsg disables routing.
type RoutingOffMsg struct{}

func (RoutingOffMsg) isInput() {}

// seedBroadcast is produced internally by onOperational for a peer that
// just connected and advertised PrivateRouting; it seeds broadcasters with
// an Undesired entry so the next tick picks the peer up.
type seedBroadcast struct {
	lb LastBroadcast
}

func (seedBroadcast) isInput() {}
