// Package chanmgr defines the read-only view this module takes of the
// channel manager: just enough of a channel's balances and counterparty to
// drive trampoline capacity math and swap-out eligibility. The channel
// manager itself (funding, commitment state, persistence) is out of scope.
package chanmgr

import "github.com/lightningnetwork/trampoline-electrum/comms"

// ChanAndCommits is a channel handle bundled with its commitment state, as
// exposed by the channel manager.
type ChanAndCommits interface {
	// RemoteInfo identifies the channel's counterparty.
	RemoteInfo() comms.RemoteNodeInfo

	// AvailableForSend is the amount this side could currently forward
	// outbound across the channel.
	AvailableForSend() comms.MilliSatoshi

	// AvailableForReceive is the amount this side could currently accept
	// inbound across the channel.
	AvailableForReceive() comms.MilliSatoshi

	// IsOperationalAndOpen reports whether the channel is usable: open,
	// with its counterparty currently connected.
	IsOperationalAndOpen() bool

	// SupportsChainSwap reports whether the counterparty has advertised
	// the ChainSwap feature on this channel's peer connection.
	SupportsChainSwap() bool
}

// ChannelManager is the read-only collaborator this module queries for the
// set of currently usable channels.
type ChannelManager interface {
	// Channels returns every channel the manager currently knows about,
	// operational or not; callers filter with IsOperationalAndOpen.
	Channels() []ChanAndCommits
}
