package electrumpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"

	"github.com/lightningnetwork/trampoline-electrum/comms"
)

// reconnectDelay is how long the pool waits after a disconnect before
// trying a fresh address.
const reconnectDelay = 5 * time.Second

// masterSwitchHysteresis is the margin a non-master connection must
// exceed: it is elected only once its tip is strictly more than this many
// blocks ahead of the current master's, avoiding
// flapping when peers learn blocks slightly out of order.
const masterSwitchHysteresis = 2

// poolState is the top-level connectivity state of the pool.
type poolState int

const (
	stateDisconnected poolState = iota
	stateConnected
)

// tipInfo is the last known (height, header) pair reported by a single
// connection.
type tipInfo struct {
	height int32
	header BlockHeader
}

// Config configures a new ElectrumClientPool.
type Config struct {
	// Chain identifies which server list to load.
	Chain chainhash.Hash

	// MaxChainConnectionsCount bounds concurrent connections.
	MaxChainConnectionsCount int

	// UseOnion, if false, filters .onion hosts out of the loaded server
	// list.
	UseOnion bool

	// CustomAddress, if non-nil, overrides the loaded server list
	// entirely: every connection attempt uses this address.
	CustomAddress *ServerAddress

	// NewClient constructs a client for a given address. Exposed so
	// tests can inject a fake ElectrumClient.
	NewClient func(addr ServerAddress) ElectrumClient

	// EventBus is the process-wide publisher every ElectrumReady /
	// ElectrumDisconnected is also published onto.
	EventBus comms.EventStream

	// Clock abstracts time for the reconnect delay, swappable for
	// clock.TestClock in tests.
	Clock clock.Clock
}

// Pool is a supervisor over up to MaxChainConnectionsCount concurrent
// ElectrumClient connections that elects a single master chain-tip
// source. All state is confined to a private executor goroutine.
type Pool struct {
	cfg Config

	candidates []ServerAddress

	mailbox *queue.ConcurrentQueue

	state  poolState
	master *ClientHandle
	tips   map[*ClientHandle]tipInfo

	addresses map[*ClientHandle]ServerAddress
	used      map[string]struct{}

	statusListeners []StatusListener

	blockCount uint64 // atomic, monotonic

	// masterSnap mirrors master for lock-free reads from Request/
	// SubscribeToHeaders/SubscribeToScriptHash, called off-executor by
	// callers holding a *Pool handle. Only the executor writes it.
	masterSnap atomic.Value // holds masterSnapshot

	quit chan struct{}
	wg   sync.WaitGroup
}

// masterSnapshot wraps *ClientHandle so atomic.Value always sees the same
// concrete type (a bare nil *ClientHandle would not satisfy that).
type masterSnapshot struct {
	handle *ClientHandle
}

// NewPool constructs a pool for the given chain. Returns an error if the
// chain hash is unknown or the server-list resource is corrupt; neither is
// checked when CustomAddress is set.
func NewPool(cfg Config) (*Pool, error) {
	var candidates []ServerAddress
	if cfg.CustomAddress != nil {
		candidates = []ServerAddress{*cfg.CustomAddress}
	} else {
		var err error
		candidates, err = readServerAddresses(cfg.Chain, cfg.UseOnion)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.MaxChainConnectionsCount <= 0 {
		cfg.MaxChainConnectionsCount = 4
	}

	return &Pool{
		cfg:        cfg,
		candidates: candidates,
		mailbox:    queue.NewConcurrentQueue(20),
		state:      stateDisconnected,
		tips:       make(map[*ClientHandle]tipInfo),
		addresses:  make(map[*ClientHandle]ServerAddress),
		used:       make(map[string]struct{}),
		quit:       make(chan struct{}),
	}, nil
}

// InitConnect launches min(MaxChainConnectionsCount, len(candidates))
// initial connection attempts and starts the executor.
func (p *Pool) InitConnect() {
	p.mailbox.Start()
	p.wg.Add(1)
	go p.run()

	n := p.cfg.MaxChainConnectionsCount
	if len(p.candidates) < n {
		n = len(p.candidates)
	}
	for i := 0; i < n; i++ {
		p.connect()
	}
}

// Stop tears down the executor. Not part of the source FSM (which has no
// explicit cancel, relying on the object being dropped) but required in Go
// to release the goroutine deterministically; it changes no transition
// semantics. See SPEC_FULL.md.
func (p *Pool) Stop() {
	select {
	case <-p.quit:
		return
	default:
	}
	close(p.quit)
	p.mailbox.Stop()
	p.wg.Wait()
}

// connect picks an unused address, constructs a client for it, and
// registers the pool as its status listener. Connect failures are
// reported back to the executor as electrumDisconnectedInput.
func (p *Pool) connect() {
	addr, ok := pickAddress(p.candidates, p.used)
	if !ok {
		log.Debugf("electrum pool: no unused address available")
		return
	}
	p.used[addr.String()] = struct{}{}

	client := p.cfg.NewClient(addr)
	handle := &ClientHandle{Client: client, Address: addr.String(), SSL: addr.SSL}
	p.addresses[handle] = addr

	go func() {
		ctx := context.Background()
		if err := client.Connect(ctx); err != nil {
			log.Debugf("electrum pool: connect to %s failed: %v",
				addr, err)
			p.deliver(electrumDisconnectedInput{client: handle})
			return
		}

		if err := client.SubscribeToHeaders(&headerListener{
			pool:   p,
			client: handle,
		}); err != nil {
			p.deliver(electrumDisconnectedInput{client: handle})
			return
		}
	}()
}

// headerListener adapts a single connection's header subscription
// callbacks onto the pool's mailbox.
type headerListener struct {
	pool   *Pool
	client *ClientHandle

	first sync.Once
}

func (h *headerListener) OnHeader(height int32, header BlockHeader) {
	h.first.Do(func() {
		h.pool.deliver(electrumReadyInput{
			client: h.client,
			height: height,
			tip:    header,
		})
	})
	h.pool.deliver(headerSubscriptionInput{
		client: h.client,
		height: height,
		tip:    header,
	})
}

// deliver enqueues msg for the executor, dropping it silently if the pool
// has been stopped.
func (p *Pool) deliver(msg input) {
	select {
	case p.mailbox.ChanIn() <- msg:
	case <-p.quit:
	}
}

// AddStatusListener registers l for ElectrumReady/ElectrumDisconnected
// notifications. If the pool is already Connected, the pool sends l an
// immediate ElectrumReady so it observes current state without waiting.
func (p *Pool) AddStatusListener(l StatusListener) {
	p.deliver(addListenerInput{listener: l})
}

func (p *Pool) run() {
	defer p.wg.Done()

	for {
		select {
		case raw, ok := <-p.mailbox.ChanOut():
			if !ok {
				return
			}
			p.handle(raw.(input))

		case <-p.quit:
			return
		}
	}
}

func (p *Pool) handle(msg input) {
	switch m := msg.(type) {
	case electrumReadyInput:
		p.onReady(m.client, m.height, m.tip)

	case headerSubscriptionInput:
		if _, ok := p.addresses[m.client]; !ok {
			return
		}
		if p.state == stateConnected {
			p.handleHeader(m.client, m.height, m.tip, true)
		}

	case electrumDisconnectedInput:
		p.onDisconnected(m.client)

	case reconnectInput:
		p.connect()

	case addListenerInput:
		p.statusListeners = append(p.statusListeners, m.listener)
		if p.state == stateConnected {
			tip := p.tips[p.master]
			m.listener.OnElectrumReady(&ElectrumReady{
				Src:    p.master,
				Height: tip.height,
				Tip:    tip.header,
				Addr:   p.master.Address,
			})
		}

	case syncInput:
		close(m.done)

	default:
		log.Warnf("electrum pool: ignoring unrecognized message %T", msg)
	}
}

func (p *Pool) onReady(client *ClientHandle, height int32, tip BlockHeader) {
	if _, ok := p.addresses[client]; !ok {
		return
	}
	switch p.state {
	case stateDisconnected:
		p.handleHeader(client, height, tip, false)
	case stateConnected:
		p.handleHeader(client, height, tip, true)
	}
}

// handleHeader is the single decision point for every tip report.
// connected indicates whether the pool already had a master elected when
// this report arrived.
func (p *Pool) handleHeader(client *ClientHandle, height int32, tip BlockHeader, connected bool) {
	p.updateBlockCount(height)

	if !connected {
		p.setMaster(client)
		p.tips = map[*ClientHandle]tipInfo{client: {height: height, header: tip}}
		p.state = stateConnected
		p.publishReady(client, height, tip, client.Address)
		return
	}

	masterTip := p.tips[p.master]
	if client != p.master && height > masterTip.height+masterSwitchHysteresis {
		oldMaster := p.master
		p.publishDisconnected(oldMaster)
		p.tips[client] = tipInfo{height: height, header: tip}
		p.setMaster(client)
		// The new ElectrumReady names the OLD master as its source;
		// listeners are expected to ignore the field.
		p.publishReady(oldMaster, height, tip, client.Address)
		return
	}

	p.tips[client] = tipInfo{height: height, header: tip}
}

func (p *Pool) onDisconnected(client *ClientHandle) {
	if _, ok := p.addresses[client]; !ok {
		return
	}
	delete(p.addresses, client)
	delete(p.used, client.Address)

	switch p.state {
	case stateDisconnected:
		p.scheduleReconnect()
		return

	case stateConnected:
		wasMaster := client == p.master
		delete(p.tips, client)

		if len(p.tips) == 0 {
			p.state = stateDisconnected
			p.setMaster(nil)
			p.publishDisconnected(client)
			p.scheduleReconnect()
			return
		}

		if !wasMaster {
			p.scheduleReconnect()
			return
		}

		// Disconnected client was master and tips is non-empty:
		// elect the client with the highest tip height, ties broken
		// by (height desc, address asc) for determinism.
		newMaster := p.electNewMaster()
		tip := p.tips[newMaster]
		p.setMaster(newMaster)
		p.publishReady(client, tip.height, tip.header, newMaster.Address)
		p.scheduleReconnect()
	}
}

func (p *Pool) electNewMaster() *ClientHandle {
	var best *ClientHandle
	for c, t := range p.tips {
		if best == nil {
			best = c
			continue
		}
		bestTip := p.tips[best]
		switch {
		case t.height > bestTip.height:
			best = c
		case t.height == bestTip.height && c.Address < best.Address:
			best = c
		}
	}
	return best
}

func (p *Pool) scheduleReconnect() {
	tick := p.cfg.Clock.TickAfter(reconnectDelay)
	go func() {
		select {
		case <-tick:
			p.deliver(reconnectInput{})
		case <-p.quit:
		}
	}()
}

func (p *Pool) publishReady(src *ClientHandle, height int32, tip BlockHeader, addr string) {
	ev := &ElectrumReady{Src: src, Height: height, Tip: tip, Addr: addr}
	for _, l := range p.statusListeners {
		l.OnElectrumReady(ev)
	}
	if p.cfg.EventBus != nil {
		p.cfg.EventBus.Publish(ev)
	}
}

func (p *Pool) publishDisconnected(src *ClientHandle) {
	ev := &ElectrumDisconnected{Src: src}
	for _, l := range p.statusListeners {
		l.OnElectrumDisconnected(ev)
	}
	if p.cfg.EventBus != nil {
		p.cfg.EventBus.Publish(ev)
	}
}

// updateBlockCount enforces monotonicity: a write that would decrease the
// published height is silently dropped.
func (p *Pool) updateBlockCount(height int32) {
	for {
		cur := atomic.LoadUint64(&p.blockCount)
		next := uint64(height)
		if height < 0 || next <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&p.blockCount, cur, next) {
			return
		}
	}
}

// BlockCount returns the pool's current published chain height.
func (p *Pool) BlockCount() uint64 {
	return atomic.LoadUint64(&p.blockCount)
}

var errNotConnected = fmt.Errorf("electrum pool: not connected")

// Request delegates req to the master client. Fails with errNotConnected
// if the pool isn't Connected.
func (p *Pool) Request(ctx context.Context, req Request) (Response, error) {
	master, ok := p.currentMaster()
	if !ok {
		return Response{}, errNotConnected
	}
	return master.Client.Request(ctx, req)
}

// SubscribeToHeaders delegates to the master client.
func (p *Pool) SubscribeToHeaders(l HeaderListener) error {
	master, ok := p.currentMaster()
	if !ok {
		return errNotConnected
	}
	return master.Client.SubscribeToHeaders(l)
}

// SubscribeToScriptHash delegates to the master client.
func (p *Pool) SubscribeToScriptHash(hash string, l ScriptHashListener) error {
	master, ok := p.currentMaster()
	if !ok {
		return errNotConnected
	}
	return master.Client.SubscribeToScriptHash(hash, l)
}

// setMaster updates both the executor-owned master pointer and the
// lock-free snapshot Request/SubscribeToHeaders/SubscribeToScriptHash read
// from other goroutines. Only called from the executor.
func (p *Pool) setMaster(h *ClientHandle) {
	p.master = h
	p.masterSnap.Store(masterSnapshot{handle: h})
}

// currentMaster is a lock-free read of the executor's last-published
// master, safe to call from any goroutine. A master elected concurrently
// with this read is simply not observed until the next call; callers
// already tolerate a master that churns between this read and the
// delegated request failing with the client's own error.
func (p *Pool) currentMaster() (*ClientHandle, bool) {
	snap, ok := p.masterSnap.Load().(masterSnapshot)
	if !ok || snap.handle == nil {
		return nil, false
	}
	return snap.handle, true
}
