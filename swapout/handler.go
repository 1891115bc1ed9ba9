package swapout

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"

	"github.com/lightningnetwork/trampoline-electrum/comms"
	"github.com/lightningnetwork/trampoline-electrum/wire"
)

// Callbacks are invoked exactly once, from the handler's executor, at the
// point CMDCancel finalizes the search.
type Callbacks struct {
	// OnFound is called with every stored usable offer, either because
	// every seeded peer has answered or because a timeout forced an
	// early finish with at least one offer in hand.
	OnFound func(responses []SwapOutResponseExt)

	// OnNoProviderSwapOutSupport is called when every seeded peer has
	// been dropped (unsupported or unusable) before any timeout fired.
	OnNoProviderSwapOutSupport func()

	// OnTimeoutAndNoResponse is called when the 30s hard timeout fires
	// with zero usable offers in hand.
	OnTimeoutAndNoResponse func()
}

// Handler is a one-shot FSM soliciting swap-out feerate offers from a set of
// hosted-channel counterparties. A single instance serves exactly one
// search: construct a fresh Handler for each CMDStart.
type Handler struct {
	tower     comms.CommsTower
	clock     clock.Clock
	callbacks Callbacks

	mailbox *queue.ConcurrentQueue

	state State

	// allPeers is the full set seeded by CMDStart, kept verbatim so
	// CMDCancel can remove the listener from every one of them even
	// after some have been dropped from results.
	allPeers map[string]comms.RemoteNodeInfo

	// results holds one entry per peer still being tracked: nil means no
	// reply yet, non-nil means a usable offer was stored. A peer is
	// deleted outright once found unsupported or its offer is unusable.
	results map[string]*SwapOutResponseExt

	listener *swapOutListener

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewHandler constructs a Handler in its Initial state. Call Start to launch
// its executor before sending CMDStart.
func NewHandler(tower comms.CommsTower, clk clock.Clock, callbacks Callbacks) *Handler {
	if clk == nil {
		clk = clock.NewDefaultClock()
	}
	h := &Handler{
		tower:     tower,
		clock:     clk,
		callbacks: callbacks,
		mailbox:   queue.NewConcurrentQueue(20),
		state:     Initial,
		quit:      make(chan struct{}),
	}
	h.listener = &swapOutListener{handler: h}
	return h
}

// Start launches the executor goroutine.
func (h *Handler) Start() {
	h.mailbox.Start()
	h.wg.Add(1)
	go h.run()
}

// Stop tears down the executor and any pending timers. Idempotent.
func (h *Handler) Stop() {
	select {
	case <-h.quit:
		return
	default:
	}
	close(h.quit)
	h.mailbox.Stop()
	h.wg.Wait()
}

// Process enqueues msg for asynchronous handling on the executor.
func (h *Handler) Process(msg Input) {
	select {
	case h.mailbox.ChanIn() <- msg:
	case <-h.quit:
	}
}

func (h *Handler) run() {
	defer h.wg.Done()

	for {
		select {
		case raw, ok := <-h.mailbox.ChanOut():
			if !ok {
				return
			}
			h.handle(raw.(Input))

		case <-h.quit:
			return
		}
	}
}

func (h *Handler) handle(msg Input) {
	switch m := msg.(type) {
	case CMDStart:
		h.onStart(m)

	case YesSwapOutSupport:
		h.onYesSupport(m)

	case NoSwapOutSupport:
		h.onNoSupport(m)

	case firstTimeoutFired, secondTimeoutFired:
		if h.state == Finalized {
			return
		}
		h.doSearch(true)

	case CMDCancel:
		h.onCancel()

	default:
		log.Warnf("swapout handler: ignoring unrecognized message %T", msg)
	}
}

func (h *Handler) onStart(m CMDStart) {
	if h.state != Initial {
		return
	}

	h.allPeers = make(map[string]comms.RemoteNodeInfo, len(m.Capable))
	h.results = make(map[string]*SwapOutResponseExt, len(m.Capable))

	for _, ch := range m.Capable {
		info := ch.RemoteInfo()
		key := info.NodeIDString()

		h.allPeers[key] = info
		h.results[key] = nil

		h.tower.Listen([]comms.Listener{h.listener}, info)

		if ch.SupportsChainSwap() {
			h.tower.SendMany(&wire.SwapOutRequest{
				ChainFeeBudget: m.ChainFeeBudget,
			}, comms.NodeSpecificPair{Info: info})
			continue
		}

		delete(h.results, key)
	}

	h.state = WaitingFirstResponse
	h.scheduleTimeout(firstResponseTimeout, firstTimeoutFired{})
	h.doSearch(false)
}

func (h *Handler) onYesSupport(m YesSwapOutSupport) {
	if h.state != WaitingFirstResponse && h.state != WaitingRestOfResponses {
		return
	}
	key := m.Worker.Info.NodeIDString()
	if _, tracked := h.results[key]; !tracked {
		return
	}

	if m.Msg.AllBelowMinFee(minChainFee) {
		delete(h.results, key)
		h.doSearch(false)
		return
	}

	h.results[key] = &SwapOutResponseExt{
		Msg:  *m.Msg,
		Info: m.Worker.Info,
	}

	if h.state == WaitingFirstResponse {
		h.state = WaitingRestOfResponses
		h.scheduleTimeout(secondaryTimeout, secondTimeoutFired{})
	}

	h.doSearch(false)
}

func (h *Handler) onNoSupport(m NoSwapOutSupport) {
	if h.state != WaitingFirstResponse && h.state != WaitingRestOfResponses {
		return
	}
	delete(h.results, m.Worker.Info.NodeIDString())
	h.doSearch(false)
}

// doSearch evaluates the finish conditions in priority order. total is
// the number of peers still tracked (answered or not); responses holds
// the stored usable offers among them.
func (h *Handler) doSearch(force bool) {
	if h.state == Initial || h.state == Finalized {
		return
	}

	total := len(h.results)
	var responses []SwapOutResponseExt
	for _, r := range h.results {
		if r != nil {
			responses = append(responses, *r)
		}
	}

	switch {
	case total > 0 && len(responses) == total:
		h.finish(func() { h.invokeOnFound(responses) })

	case total == 0:
		h.finish(h.invokeOnNoProviderSupport)

	case force && len(responses) > 0:
		h.finish(func() { h.invokeOnFound(responses) })

	case force && len(responses) == 0:
		h.finish(h.invokeOnTimeout)
	}
}

func (h *Handler) finish(action func()) {
	if action != nil {
		action()
	}
	h.onCancel()
}

func (h *Handler) invokeOnFound(responses []SwapOutResponseExt) {
	if h.callbacks.OnFound != nil {
		h.callbacks.OnFound(responses)
	}
}

func (h *Handler) invokeOnNoProviderSupport() {
	if h.callbacks.OnNoProviderSwapOutSupport != nil {
		h.callbacks.OnNoProviderSwapOutSupport()
	}
}

func (h *Handler) invokeOnTimeout() {
	if h.callbacks.OnTimeoutAndNoResponse != nil {
		h.callbacks.OnTimeoutAndNoResponse()
	}
}

// onCancel removes the listener from every originally seeded peer (channels
// themselves are left alone) and moves to Finalized. Idempotent: a late
// timeout firing after Finalized is a no-op via the state guard in handle.
func (h *Handler) onCancel() {
	if h.state == Finalized {
		return
	}
	for _, info := range h.allPeers {
		h.tower.RemoveListenerNative(info, h.listener)
	}
	h.state = Finalized
}

// scheduleTimeout delivers msg onto the executor after d, unless the
// handler is torn down first.
func (h *Handler) scheduleTimeout(d time.Duration, msg Input) {
	tick := h.clock.TickAfter(d)
	go func() {
		select {
		case <-tick:
			h.Process(msg)
		case <-h.quit:
		}
	}()
}

// swapOutListener adapts a single peer's tower callbacks onto the handler's
// mailbox.
type swapOutListener struct {
	handler *Handler
}

func (l *swapOutListener) OnMessage(worker *comms.Worker, msg interface{}) {
	resp, ok := msg.(*wire.SwapOutResponse)
	if !ok {
		return
	}
	l.handler.Process(YesSwapOutSupport{Worker: worker, Msg: resp})
}
