package metrics

import (
	"github.com/VolantMQ/vlnats/packet"
)

type nop struct{}
type nopBytes struct{}
type nopPackets struct{}
type nopSubs struct{}
type nopClients struct{}

var _ Informer = nop{}

// Discard informer dropping every event
func Discard() Informer {
	return nop{}
}

func (nop) Bytes() Bytes { return nopBytes{} }
func (nop) Packets() Packets { return nopPackets{} }
func (nop) Subs() Subscriptions { return nopSubs{} }
func (nop) Clients() Clients { return nopClients{} }

func (nopBytes) OnSent(int) {}
func (nopBytes) OnRecv(int) {}

func (nopPackets) OnSent(packet.Type) {}
func (nopPackets) OnRecv(packet.Type) {}
func (nopPackets) OnDelivered(int) {}
func (nopPackets) OnDropped(int) {}
func (nopPackets) OnNoResponders() {}
func (nopPackets) OnRejected(int) {}

func (nopSubs) OnSubscribe() {}
func (nopSubs) OnUnsubscribe(int) {}

func (nopClients) OnConnected() {}
func (nopClients) OnDisconnected() {}
func (nopClients) OnRejected() {}
func (nopClients) OnSlowConsumer() {}
