package bridge

// LocalBus is the in-process subject bus the bridge joins as a single
// aggregate endpoint. internal/localbusref provides a minimal reference
// implementation; production deployments wire in whatever subject-routed
// bus the host process already runs.
//
// The bridge is both a consumer of LocalBus notifications (see
// LocalBusConsumer, which the bus calls into for on_sub/on_unsub/on_msg and
// friends) and a producer that drives routes and notifications back into it
// through this interface.

// LocalBus is the producer-side surface InboundDispatcher and the route
// maps drive.
type LocalBus interface {
	// AddSubRoute installs the bridge's aggregate route for subject, so
	// that local publishes on it are captured and forwarded to the fabric.
	// Called on a subject's first remote subscriber (PutNew).
	AddSubRoute(subject []byte)
	// DelSubRoute removes subject's aggregate route. Called when the last
	// remote subscriber for it unsubscribes (RemRemoved).
	DelSubRoute(subject []byte)
	// AddPatternRoute is AddSubRoute for a pattern route.
	AddPatternRoute(pattern []byte)
	// DelPatternRoute is DelSubRoute for a pattern route.
	DelPatternRoute(pattern []byte)

	// NotifySub announces a remote-originated exact subscription. flag is
	// 'A' (added) or 'D' (deleted, via NotifyUnsub instead).
	NotifySub(rcnt int, flag byte, subject, reply []byte)
	// NotifyUnsub announces a remote-originated exact unsubscription.
	NotifyUnsub(rcnt int, subject []byte)
	// NotifyPsub announces a remote-originated pattern subscription.
	NotifyPsub(rcnt int, pattern []byte)
	// NotifyPunsub announces a remote-originated pattern unsubscription.
	NotifyPunsub(rcnt int, pattern []byte)

	// Publish delivers payload, published under subject with optional reply
	// subject, to every local subscriber.
	Publish(subject, reply, payload []byte)
}

// LocalBusConsumer is the bridge's consumer-side surface: the interface a
// LocalBus implementation calls into when local processes change routes or
// publish. Notifications whose originating fd equals the bridge's own are
// the bus's responsibility to suppress before calling these (the bridge
// never sees its own aggregate route's activity echoed back).
type LocalBusConsumer interface {
	OnSub(hash uint32, subject []byte, rcnt int, kind byte, reply []byte)
	OnUnsub(hash uint32, subject []byte)
	OnPsub(hash uint32, pattern []byte, rcnt int)
	OnPunsub(hash uint32, pattern []byte)
	OnMsg(subject, reply, payload []byte)
}
