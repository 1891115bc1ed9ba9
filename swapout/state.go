package swapout

import (
	"time"

	"github.com/lightningnetwork/trampoline-electrum/comms"
	"github.com/lightningnetwork/trampoline-electrum/wire"
)

// minChainFee is the lowest sat/vbyte offer this handler treats as usable.
// An offer where every feerate falls below this is the same as no offer.
const minChainFee = 253

// firstResponseTimeout is how long the handler waits for any reply before
// giving up entirely.
const firstResponseTimeout = 30 * time.Second

// secondaryTimeout is how long the handler waits for additional offers once
// the first usable one has arrived.
const secondaryTimeout = 5 * time.Second

// State is the handler's lifecycle stage.
type State int

const (
	// Initial is the state before CMDStart; the handler does nothing.
	Initial State = iota

	// WaitingFirstResponse is entered by CMDStart: listeners are
	// registered, requests sent, and the 30s hard timeout is running.
	WaitingFirstResponse

	// WaitingRestOfResponses is entered once the first usable offer
	// arrives; the 5s secondary timeout is running.
	WaitingRestOfResponses

	// Finalized is the terminal state reached via CMDCancel. Further
	// messages are no-ops.
	Finalized
)

func (s State) String() string {
	switch s {
	case Initial:
		return "Initial"
	case WaitingFirstResponse:
		return "WaitingFirstResponse"
	case WaitingRestOfResponses:
		return "WaitingRestOfResponses"
	case Finalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// SwapOutResponseExt pairs a stored offer with the peer that sent it.
type SwapOutResponseExt struct {
	Msg  wire.SwapOutResponse
	Info comms.RemoteNodeInfo
}
