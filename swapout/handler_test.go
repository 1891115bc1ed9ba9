package swapout

import (
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/trampoline-electrum/chanmgr"
	"github.com/lightningnetwork/trampoline-electrum/comms"
	"github.com/lightningnetwork/trampoline-electrum/wire"
)

func peerInfo(id byte) comms.RemoteNodeInfo {
	var seed [32]byte
	seed[31] = id
	seed[0] = 1
	_, pub := btcec.PrivKeyFromBytes(seed[:])
	return comms.RemoteNodeInfo{Address: string([]byte{id}), NodeID: pub}
}

type fakeSwapChan struct {
	remote  comms.RemoteNodeInfo
	capable bool
}

func (c *fakeSwapChan) RemoteInfo() comms.RemoteNodeInfo     { return c.remote }
func (c *fakeSwapChan) AvailableForSend() comms.MilliSatoshi { return 0 }
func (c *fakeSwapChan) AvailableForReceive() comms.MilliSatoshi { return 0 }
func (c *fakeSwapChan) IsOperationalAndOpen() bool           { return true }
func (c *fakeSwapChan) SupportsChainSwap() bool              { return c.capable }

type registeredListener struct {
	info     comms.RemoteNodeInfo
	listener comms.Listener
}

type fakeTower struct {
	mu        sync.Mutex
	listeners []registeredListener
	sent      []comms.RemoteNodeInfo
}

func (t *fakeTower) Listen(listeners []comms.Listener, info comms.RemoteNodeInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range listeners {
		t.listeners = append(t.listeners, registeredListener{info: info, listener: l})
	}
}

func (t *fakeTower) RemoveListenerNative(info comms.RemoteNodeInfo, listener comms.Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.listeners[:0]
	for _, r := range t.listeners {
		if r.info.NodeIDString() == info.NodeIDString() && r.listener == listener {
			continue
		}
		out = append(out, r)
	}
	t.listeners = out
}

func (t *fakeTower) SendMany(msg interface{}, pair comms.NodeSpecificPair) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, pair.Info)
}

func (t *fakeTower) remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// deliver finds the registered listener for info and feeds it msg, as the
// real tower would on an inbound SwapOutResponse.
func (t *fakeTower) deliver(info comms.RemoteNodeInfo, msg interface{}) {
	t.mu.Lock()
	var target comms.Listener
	for _, r := range t.listeners {
		if r.info.NodeIDString() == info.NodeIDString() {
			target = r.listener
			break
		}
	}
	t.mu.Unlock()
	if target != nil {
		target.OnMessage(&comms.Worker{Info: info}, msg)
	}
}

// fakeClock is a manually driven stand-in for clock.Clock.
type fakeClock struct {
	mu  sync.Mutex
	chs []chan time.Time
}

func (f *fakeClock) Now() time.Time { return time.Time{} }

func (f *fakeClock) TickAfter(time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	f.chs = append(f.chs, ch)
	return ch
}

// fireNth fires the nth scheduled timer (0-indexed in schedule order).
func (f *fakeClock) fireNth(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chs[n] <- time.Now()
}

type callbackRecorder struct {
	mu        sync.Mutex
	found     []SwapOutResponseExt
	foundN    int
	noSupport int
	timeout   int
	done      chan struct{}
}

func newCallbackRecorder() *callbackRecorder {
	return &callbackRecorder{done: make(chan struct{}, 1)}
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		OnFound: func(responses []SwapOutResponseExt) {
			r.mu.Lock()
			r.found = responses
			r.foundN++
			r.mu.Unlock()
			r.done <- struct{}{}
		},
		OnNoProviderSwapOutSupport: func() {
			r.mu.Lock()
			r.noSupport++
			r.mu.Unlock()
			r.done <- struct{}{}
		},
		OnTimeoutAndNoResponse: func() {
			r.mu.Lock()
			r.timeout++
			r.mu.Unlock()
			r.done <- struct{}{}
		},
	}
}

func waitDone(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

// TestSwapOutPartialTimeout checks that one of three capable peers
// answering with a usable offer, followed by the secondary timeout,
// forces onFound with just that one offer.
func TestSwapOutPartialTimeout(t *testing.T) {
	tower := &fakeTower{}
	fc := &fakeClock{}
	rec := newCallbackRecorder()
	h := NewHandler(tower, fc, rec.callbacks())
	h.Start()
	defer h.Stop()

	peerA, peerB, peerC := peerInfo('A'), peerInfo('B'), peerInfo('C')
	h.Process(CMDStart{
		Capable: []chanmgr.ChanAndCommits{
			&fakeSwapChan{remote: peerA, capable: true},
			&fakeSwapChan{remote: peerB, capable: true},
			&fakeSwapChan{remote: peerC, capable: true},
		},
		ChainFeeBudget: 50_000,
	})
	time.Sleep(20 * time.Millisecond)
	require.Len(t, tower.sent, 3)

	tower.deliver(peerA, &wire.SwapOutResponse{
		Feerates: []wire.Feerate{{Blocks: 6, Fee: 300}},
	})
	time.Sleep(20 * time.Millisecond)

	fc.fireNth(1) // the secondary 5s timeout
	waitDone(t, rec.done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, 1, rec.foundN)
	require.Len(t, rec.found, 1)
	require.Equal(t, peerA.NodeIDString(), rec.found[0].Info.NodeIDString())
	require.Equal(t, 0, tower.remaining())
}

// TestSwapOutHardTimeoutNoReplies checks that when nobody replies, the
// 30s hard timeout fires onTimeoutAndNoResponse.
func TestSwapOutHardTimeoutNoReplies(t *testing.T) {
	tower := &fakeTower{}
	fc := &fakeClock{}
	rec := newCallbackRecorder()
	h := NewHandler(tower, fc, rec.callbacks())
	h.Start()
	defer h.Stop()

	h.Process(CMDStart{
		Capable: []chanmgr.ChanAndCommits{
			&fakeSwapChan{remote: peerInfo('A'), capable: true},
			&fakeSwapChan{remote: peerInfo('B'), capable: true},
		},
	})
	time.Sleep(20 * time.Millisecond)

	fc.fireNth(0) // the 30s hard timeout
	waitDone(t, rec.done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, 1, rec.timeout)
	require.Equal(t, 0, tower.remaining())
}

// TestSwapOutNoProviderSupport covers the "everyone unsupported" row of the
// decision table: no peer is ChainSwap-capable, so the handler finishes
// immediately without waiting on any timeout.
func TestSwapOutNoProviderSupport(t *testing.T) {
	tower := &fakeTower{}
	fc := &fakeClock{}
	rec := newCallbackRecorder()
	h := NewHandler(tower, fc, rec.callbacks())
	h.Start()
	defer h.Stop()

	h.Process(CMDStart{
		Capable: []chanmgr.ChanAndCommits{
			&fakeSwapChan{remote: peerInfo('A'), capable: false},
			&fakeSwapChan{remote: peerInfo('B'), capable: false},
		},
	})
	waitDone(t, rec.done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, 1, rec.noSupport)
}

// TestSwapOutAllAnswered covers the "all answered" row: every peer replies
// with a usable offer before any timeout, finishing the search early.
func TestSwapOutAllAnswered(t *testing.T) {
	tower := &fakeTower{}
	fc := &fakeClock{}
	rec := newCallbackRecorder()
	h := NewHandler(tower, fc, rec.callbacks())
	h.Start()
	defer h.Stop()

	peerA, peerB := peerInfo('A'), peerInfo('B')
	h.Process(CMDStart{
		Capable: []chanmgr.ChanAndCommits{
			&fakeSwapChan{remote: peerA, capable: true},
			&fakeSwapChan{remote: peerB, capable: true},
		},
	})
	time.Sleep(20 * time.Millisecond)

	tower.deliver(peerA, &wire.SwapOutResponse{Feerates: []wire.Feerate{{Blocks: 6, Fee: 300}}})
	time.Sleep(20 * time.Millisecond)
	tower.deliver(peerB, &wire.SwapOutResponse{Feerates: []wire.Feerate{{Blocks: 2, Fee: 400}}})
	waitDone(t, rec.done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, 1, rec.foundN)
	require.Len(t, rec.found, 2)
}

// TestSwapOutUnusableOfferDropped covers the "unusable offer" edge case: a
// reply where every feerate is below minChainFee drops the peer from the
// search, so with no other peer left the handler reports no provider
// support without waiting on a timeout.
func TestSwapOutUnusableOfferDropped(t *testing.T) {
	tower := &fakeTower{}
	fc := &fakeClock{}
	rec := newCallbackRecorder()
	h := NewHandler(tower, fc, rec.callbacks())
	h.Start()
	defer h.Stop()

	peerA := peerInfo('A')
	h.Process(CMDStart{
		Capable: []chanmgr.ChanAndCommits{
			&fakeSwapChan{remote: peerA, capable: true},
		},
	})
	time.Sleep(20 * time.Millisecond)

	tower.deliver(peerA, &wire.SwapOutResponse{
		Feerates: []wire.Feerate{{Blocks: 6, Fee: 1}},
	})
	waitDone(t, rec.done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, 1, rec.noSupport)
}
