package trampoline

import (
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/lightningnetwork/trampoline-electrum/chanmgr"
	"github.com/lightningnetwork/trampoline-electrum/comms"
	"github.com/lightningnetwork/trampoline-electrum/wire"
)

// broadcastInterval is how often the broadcaster recomputes and re-sends
// per-peer trampoline advertisements.
const broadcastInterval = 10 * time.Second

// broadcasterState is the two-state FSM governing whether routing is
// currently enabled. Note the off-branch latch documented on onRoutingOff():
// disabling routing does not move the FSM back to routingDisabled, it only
// changes the data payload. See the Open Questions note in DESIGN.md.
type broadcasterState int

const (
	routingDisabled broadcasterState = iota
	routingEnabled
)

// Broadcaster periodically recomputes per-peer trampoline routing
// advertisements and sends only the deltas, confined to a single private
// executor goroutine so broadcasters never needs its own lock.
type Broadcaster struct {
	tower   comms.CommsTower
	chanMgr chanmgr.ChannelManager

	tick ticker.Ticker

	mailbox *queue.ConcurrentQueue

	state   broadcasterState
	params  wire.TrampolineOn
	routing bool // false once RoutingOffMsg latched, independent of state

	broadcasters map[string]LastBroadcast

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewBroadcaster constructs a Broadcaster in its initial (RoutingOff,
// RoutingDisabled) state. Call Start to launch its executor.
func NewBroadcaster(tower comms.CommsTower, chanMgr chanmgr.ChannelManager) *Broadcaster {
	return &Broadcaster{
		tower:        tower,
		chanMgr:      chanMgr,
		tick:         ticker.New(broadcastInterval),
		mailbox:      queue.NewConcurrentQueue(20),
		state:        routingDisabled,
		broadcasters: make(map[string]LastBroadcast),
		quit:         make(chan struct{}),
	}
}

// Start launches the executor goroutine and the periodic tick.
func (b *Broadcaster) Start() {
	b.mailbox.Start()
	b.tick.Resume()

	b.wg.Add(1)
	go b.run()
}

// BecomeShutDown cancels the periodic tick and tears down the executor.
// Idempotent.
func (b *Broadcaster) BecomeShutDown() {
	select {
	case <-b.quit:
		return
	default:
	}
	close(b.quit)
	b.tick.Stop()
	b.mailbox.Stop()
	b.wg.Wait()
}

// Process enqueues msg for asynchronous handling on the executor and
// returns immediately.
func (b *Broadcaster) Process(msg Input) {
	select {
	case b.mailbox.ChanIn() <- msg:
	case <-b.quit:
	}
}

// OnOperational is the comms-tower callback fired when a peer becomes
// usable. If the peer advertises PrivateRouting it is seeded into
// broadcasters so the next tick picks it up.
func (b *Broadcaster) OnOperational(worker *comms.Worker, theirFeatures *comms.FeatureVector) {
	if !theirFeatures.HasFeature(comms.FeaturePrivateRouting) {
		return
	}
	b.Process(seedBroadcast{lb: newLastBroadcast(worker.Info)})
}

// OnDisconnect is the comms-tower callback fired when a peer disconnects.
// It removes that peer's broadcaster bookkeeping.
func (b *Broadcaster) OnDisconnect(worker *comms.Worker) {
	b.Process(removeBroadcast{nodeID: worker.Info.NodeIDString()})
}

// removeBroadcast is produced internally by OnDisconnect.
type removeBroadcast struct {
	nodeID string
}

func (removeBroadcast) isInput() {}

func (b *Broadcaster) run() {
	defer b.wg.Done()

	for {
		select {
		case raw, ok := <-b.mailbox.ChanOut():
			if !ok {
				return
			}
			b.handle(raw)

		case <-b.tick.Ticks():
			b.handle(CMDBroadcast{})

		case <-b.quit:
			return
		}
	}
}

func (b *Broadcaster) handle(raw interface{}) {
	switch msg := raw.(type) {
	case CMDBroadcast:
		b.onTick()

	case RoutingOnMsg:
		b.state = routingEnabled
		b.params = msg.Params
		b.routing = true

	case RoutingOffMsg:
		if b.state != routingEnabled {
			return
		}
		b.onRoutingOff()

	case seedBroadcast:
		b.broadcasters[msg.lb.Info.NodeIDString()] = msg.lb

	case removeBroadcast:
		delete(b.broadcasters, msg.nodeID)

	default:
		log.Warnf("trampoline broadcaster: ignoring unrecognized "+
			"message %T", raw)
	}
}

// onTick recomputes every peer's status, sends only the deltas, and
// atomically replaces broadcasters.
func (b *Broadcaster) onTick() {
	if b.state != routingEnabled || !b.routing {
		return
	}

	usable := b.usableChannels()
	next := make(map[string]LastBroadcast, len(b.broadcasters))

	for nodeID, lb := range b.broadcasters {
		newLB := lb.updated(usable, b.params)
		if !statusEqual(lb.Last, newLB.Last) {
			b.send(newLB.Info, newLB.Last.toWire())
		}
		next[nodeID] = newLB
	}

	b.broadcasters = next
}

// onRoutingOff unconditionally tells every peer Undesired, and the FSM
// remains in routingEnabled with the off latch set.
func (b *Broadcaster) onRoutingOff() {
	b.routing = false

	next := make(map[string]LastBroadcast, len(b.broadcasters))
	for nodeID, lb := range b.broadcasters {
		lb.Last = Undesired{}
		b.send(lb.Info, lb.Last.toWire())
		next[nodeID] = lb
	}
	b.broadcasters = next
}

func (b *Broadcaster) send(info comms.RemoteNodeInfo, msg wire.Message) {
	log.Tracef("trampoline broadcaster: sending %s to %x",
		spew.Sdump(msg), info.NodeIDString())
	b.tower.SendMany(msg, comms.NodeSpecificPair{Info: info})
}

func (b *Broadcaster) usableChannels() []chanmgr.ChanAndCommits {
	all := b.chanMgr.Channels()
	usable := make([]chanmgr.ChanAndCommits, 0, len(all))
	for _, ch := range all {
		if ch.IsOperationalAndOpen() {
			usable = append(usable, ch)
		}
	}
	return usable
}
