package comms

// Listener is implemented by an FSM that wants to receive messages
// forwarded by the comms tower on behalf of a specific peer.
type Listener interface {
	// OnMessage is invoked by the tower for every inbound message
	// addressed to the listener's registered peer.
	OnMessage(worker *Worker, msg interface{})
}

// CommsTower is the opaque dispatch layer every FSM in this module talks
// to. It is not implemented here: the concrete tower lives outside this
// module's scope and is injected at construction time.
type CommsTower interface {
	// Listen registers listener to receive messages sent to info.
	Listen(listeners []Listener, info RemoteNodeInfo)

	// RemoveListenerNative unregisters listener from info.
	RemoveListenerNative(info RemoteNodeInfo, listener Listener)

	// SendMany sends msg (if present) to the peer identified by pair.
	// A nil msg is a deliberate no-op some callers use to probe
	// liveness; send failures are swallowed by the tower.
	SendMany(msg interface{}, pair NodeSpecificPair)
}

// EventStream is the process-wide event bus. Only Publish is consumed by
// this module.
type EventStream interface {
	Publish(event interface{})
}
