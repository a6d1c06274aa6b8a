package metrics

import (
	"net/http"

	"github.com/VolantMQ/vlnats/packet"
)

// Bytes traffic counters
type Bytes interface {
	OnSent(int)
	OnRecv(int)
}

// Packets protocol operation counters
type Packets interface {
	OnSent(p packet.Type)
	OnRecv(p packet.Type)
	OnDelivered(n int)
	OnDropped(n int)
	OnNoResponders()
	OnRejected(n int)
}

// Subscriptions active subscriptions gauge
type Subscriptions interface {
	OnSubscribe()
	OnUnsubscribe(n int)
}

// Clients connection counters
type Clients interface {
	OnConnected()
	OnDisconnected()
	OnRejected()
	OnSlowConsumer()
}

// Informer gives access to counter sets
type Informer interface {
	Bytes() Bytes
	Packets() Packets
	Subs() Subscriptions
	Clients() Clients
}

// Reporter receives periodic stats deltas
type Reporter interface {
	Push(Stats)
	Shutdown() error
}

// Provider manages reporters and exposition
type Provider interface {
	Register(name string, r Reporter) error
	Snapshot() Stats
	Handler() http.Handler
	Shutdown() error
}

// IFace metrics object passed through broker components
type IFace interface {
	Informer
	Provider
}

// FlowStats sent/received pair
type FlowStats struct {
	Sent uint64
	Recv uint64
}

// Stats counters snapshot. Flow counters carry deltas since previous
// report when pushed to a reporter and absolute values from Snapshot
type Stats struct {
	Bytes         FlowStats
	Msgs          FlowStats
	Ops           FlowStats
	Delivered     uint64
	Dropped       uint64
	NoResponders  uint64
	Rejected      uint64
	Connected     uint64
	TotalClients  uint64
	RejectedConns uint64
	SlowConsumers uint64
	Subscriptions uint64
}
