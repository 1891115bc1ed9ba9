package swapout

import (
	"github.com/lightningnetwork/trampoline-electrum/chanmgr"
	"github.com/lightningnetwork/trampoline-electrum/comms"
	"github.com/lightningnetwork/trampoline-electrum/wire"
)

// Input is the closed set of messages Handler.Process accepts.
type Input interface {
	isSwapOutInput()
}

// CMDStart seeds the handler with the set of channel counterparties
// eligible for swap-out and kicks off the search. chainFeeBudget is carried
// verbatim into every SwapOutRequest sent.
type CMDStart struct {
	Capable        []chanmgr.ChanAndCommits
	ChainFeeBudget uint64
}

func (CMDStart) isSwapOutInput() {}

// YesSwapOutSupport is injected by the handler's own tower listener when a
// peer replies with offers.
type YesSwapOutSupport struct {
	Worker *comms.Worker
	Msg    *wire.SwapOutResponse
}

func (YesSwapOutSupport) isSwapOutInput() {}

// NoSwapOutSupport is injected for a peer found not to support ChainSwap.
// onStart currently resolves ChainSwap support eagerly via
// ChanAndCommits.SupportsChainSwap() before any peer is listened on, so in
// practice this input is never produced by swapOutListener; it exists for a
// future negotiation path where support can only be learned asynchronously.
type NoSwapOutSupport struct {
	Worker *comms.Worker
}

func (NoSwapOutSupport) isSwapOutInput() {}

// CMDCancel ends the search: listeners are removed from every originally
// seeded peer and the handler moves to Finalized. Idempotent.
type CMDCancel struct{}

func (CMDCancel) isSwapOutInput() {}

// firstTimeoutFired is delivered by the 30s one-shot timer.
type firstTimeoutFired struct{}

func (firstTimeoutFired) isSwapOutInput() {}

// secondTimeoutFired is delivered by the 5s one-shot timer.
type secondTimeoutFired struct{}

func (secondTimeoutFired) isSwapOutInput() {}
