// Package vlnats is a NATS compatible message broker.
//
// Clients speak the NATS text protocol over TCP or WebSocket:
//
//	INFO / CONNECT handshake, PUB / HPUB, SUB, UNSUB, PING / PONG
//	MSG / HMSG deliveries, +OK / -ERR in verbose mode
//
// Subjects are . separated tokens. Subscriptions may use * to match a single
// token and > to match the remaining tail. Subscriptions joined into a queue
// group share the load: each message is delivered to one member of the group.
//
// Layout:
//
//	packet         protocol codec
//	connection     per client session: reader, writer, heartbeat
//	topics         subject routing trie and queue groups
//	transport      tcp and websocket listeners
//	clients        session manager
//	server         lifecycle owner, see server.Start
//	keystore       server identity
//	configuration  config files and loggers
//	metrics        counters, prometheus exposition and stats reporter
//	cmd/vlnats     broker binary
//	cmd/vlnats-bench load generator
package vlnats

// Version of the module reported in INFO when not overridden at build time
const Version = "0.1.0"
