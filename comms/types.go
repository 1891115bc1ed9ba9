// Package comms defines the capability handles this module receives from
// the comms tower: worker handles, remote node identity, and the tagged
// feature bits peers advertise in their init message. The tower itself
// (message framing, transport, retries) is an external collaborator and is
// not implemented here.
package comms

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// MilliSatoshi is an amount denominated in thousandths of a satoshi.
type MilliSatoshi uint64

// FeatureBit is a single named feature bit a peer may advertise in its init
// message.
type FeatureBit uint32

const (
	// FeaturePrivateRouting marks a peer as willing to receive trampoline
	// routing advertisements for private channels.
	FeaturePrivateRouting FeatureBit = iota

	// FeatureChainSwap marks a peer as a hosted-channel swap-out
	// liquidity provider.
	FeatureChainSwap
)

// FeatureVector is a minimal bit-set of the features a remote peer
// advertised in its init message.
type FeatureVector struct {
	bits map[FeatureBit]struct{}
}

// NewFeatureVector builds a FeatureVector from the given set bits.
func NewFeatureVector(bits ...FeatureBit) *FeatureVector {
	fv := &FeatureVector{bits: make(map[FeatureBit]struct{}, len(bits))}
	for _, b := range bits {
		fv.bits[b] = struct{}{}
	}
	return fv
}

// HasFeature reports whether the vector has the given bit set.
func (f *FeatureVector) HasFeature(bit FeatureBit) bool {
	if f == nil {
		return false
	}
	_, ok := f.bits[bit]
	return ok
}

// RemoteNodeInfo identifies a Lightning peer by address and public key.
type RemoteNodeInfo struct {
	NodeID  *btcec.PublicKey
	Address string
}

// NodeIDString returns the peer's compressed public key as a string of its
// raw 33 bytes (not hex encoded). It is used as the map key identifying a
// peer's routing/swap-out state.
func (r RemoteNodeInfo) NodeIDString() string {
	if r.NodeID == nil {
		return ""
	}
	return string(r.NodeID.SerializeCompressed())
}

// NodeSpecificPair scopes an outgoing message to exactly one peer's secret
// channel, as required by CommsTower.SendMany.
type NodeSpecificPair struct {
	Info RemoteNodeInfo
}

// Worker is the comms tower's handle to a connected peer: its identity plus
// the protocol handler it will dispatch outbound messages through.
type Worker struct {
	Info            RemoteNodeInfo
	NodeSpecificPair NodeSpecificPair
	Handler         func(msg interface{})
}
