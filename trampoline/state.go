package trampoline

import (
	"github.com/lightningnetwork/trampoline-electrum/chanmgr"
	"github.com/lightningnetwork/trampoline-electrum/comms"
	"github.com/lightningnetwork/trampoline-electrum/wire"
)

// defaultMaxRoutableRatio is the fraction of a non-peer channel's outbound
// liquidity this node is willing to route through on behalf of a peer.
const defaultMaxRoutableRatio = 0.9

// Status is the closed set of trampoline advertisement variants a peer can
// be in. It mirrors the source's sealed TrampolineStatus: Undesired,
// StatusInit (first advertisement), or StatusUpdate (a refresh).
//
// Only this package constructs Status values; the interface exists so every
// switch over it can be checked for exhaustiveness at review time.
type Status interface {
	isStatus()

	// statusValue returns the advertised parameters, or ok=false if this
	// variant carries none (Undesired). Two Status values are considered
	// semantically equal when statusValue and ok agree, regardless of
	// whether one is an Init and the other an Update -- the wrapping
	// tag only matters for what gets put on the wire the first time a
	// peer becomes desired again.
	statusValue() (val wire.TrampolineOn, ok bool)

	// toWire renders the variant as the wire message broadcast to the
	// peer.
	toWire() wire.Message
}

// Undesired means trampoline routing is not currently available to this
// peer (either globally disabled, or this peer's channel balances can't
// support params.minMsat).
type Undesired struct{}

func (Undesired) isStatus() {}
func (Undesired) statusValue() (wire.TrampolineOn, bool) {
	return wire.TrampolineOn{}, false
}
func (Undesired) toWire() wire.Message { return &wire.TrampolineUndesired{} }

// StatusInit is the first non-undesired advertisement sent to a peer.
type StatusInit struct {
	Status wire.TrampolineOn
}

func (StatusInit) isStatus() {}
func (s StatusInit) statusValue() (wire.TrampolineOn, bool) { return s.Status, true }
func (s StatusInit) toWire() wire.Message {
	return &wire.TrampolineStatusInit{Status: s.Status}
}

// StatusUpdate is a refresh of a previously advertised status.
type StatusUpdate struct {
	Status wire.TrampolineOn
}

func (StatusUpdate) isStatus() {}
func (s StatusUpdate) statusValue() (wire.TrampolineOn, bool) { return s.Status, true }
func (s StatusUpdate) toWire() wire.Message {
	status := s.Status
	return &wire.TrampolineStatusUpdate{Status: &status}
}

// statusEqual implements the semantic equality statusValue describes.
func statusEqual(a, b Status) bool {
	av, aok := a.statusValue()
	bv, bok := b.statusValue()
	if aok != bok {
		return false
	}
	if !aok {
		return true
	}
	return av == bv
}

// LastBroadcast is the per-peer broadcaster bookkeeping: the last status
// sent, the peer's identity, and the routable ratio applied to the outbound
// liquidity of channels with other peers.
type LastBroadcast struct {
	Last             Status
	Info             comms.RemoteNodeInfo
	MaxRoutableRatio float64
}

// newLastBroadcast seeds bookkeeping for a newly operational peer: it has
// never been sent anything, so Last starts Undesired.
func newLastBroadcast(info comms.RemoteNodeInfo) LastBroadcast {
	return LastBroadcast{
		Last:             Undesired{},
		Info:             info,
		MaxRoutableRatio: defaultMaxRoutableRatio,
	}
}

// updated recomputes this peer's trampoline status from the current set of
// usable channels and the active routing template, returning the new
// bookkeeping value. It never mutates lb.
func (lb LastBroadcast) updated(chans []chanmgr.ChanAndCommits, params wire.TrampolineOn) LastBroadcast {
	var canReceiveFromPeer, canSendOut comms.MilliSatoshi

	peerKey := lb.Info.NodeIDString()
	for _, ch := range chans {
		if !ch.IsOperationalAndOpen() {
			continue
		}
		if ch.RemoteInfo().NodeIDString() == peerKey {
			canReceiveFromPeer += ch.AvailableForReceive()
			continue
		}
		canSendOut += comms.MilliSatoshi(
			float64(ch.AvailableForSend()) * lb.MaxRoutableRatio,
		)
	}

	status := params.Copy()
	status.MaxMsat = minMsat(canSendOut, canReceiveFromPeer)

	var newLast Status
	switch {
	case status.MinMsat > status.MaxMsat:
		newLast = Undesired{}
	case isUndesired(lb.Last):
		newLast = StatusInit{Status: status}
	default:
		newLast = StatusUpdate{Status: status}
	}

	lb.Last = newLast
	return lb
}

func isUndesired(s Status) bool {
	_, ok := s.statusValue()
	return !ok
}

func minMsat(a, b comms.MilliSatoshi) comms.MilliSatoshi {
	if a < b {
		return a
	}
	return b
}
