package electrumpool

// input is the closed set of messages the pool's executor accepts.
type input interface {
	isPoolInput()
}

// electrumReadyInput is raised once per connection, on the first header it
// reports after subscribing; later headers arrive as headerSubscriptionInput.
type electrumReadyInput struct {
	client *ClientHandle
	height int32
	tip    BlockHeader
}

func (electrumReadyInput) isPoolInput() {}

// headerSubscriptionInput is raised whenever a subscribed connection
// reports a new tip after its initial handshake.
type headerSubscriptionInput struct {
	client *ClientHandle
	height int32
	tip    BlockHeader
}

func (headerSubscriptionInput) isPoolInput() {}

// electrumDisconnectedInput is raised by a connection (or its supervising
// goroutine) when it drops.
type electrumDisconnectedInput struct {
	client *ClientHandle
}

func (electrumDisconnectedInput) isPoolInput() {}

// reconnectInput fires 5s after a disconnect to retry against a fresh
// address.
type reconnectInput struct{}

func (reconnectInput) isPoolInput() {}

// addListenerInput registers a new status listener, synthesising an
// immediate ElectrumReady if the pool is already connected.
type addListenerInput struct {
	listener StatusListener
}

func (addListenerInput) isPoolInput() {}

// syncInput is a no-op the executor closes done on after processing every
// input enqueued ahead of it, letting a caller wait for the mailbox to
// drain without registering a lasting listener.
type syncInput struct {
	done chan struct{}
}

func (syncInput) isPoolInput() {}
