package packet

// Type is the type representing the NATS protocol operations.
type Type byte

const (
	// RESERVED is a reserved value and should be considered an invalid operation type
	RESERVED Type = iota

	// CONNECT Client to Server. Connection parameters.
	CONNECT

	// INFO Server to Client on connect and on every heartbeat.
	// Client to Server is rare and answered with the current server info.
	INFO

	// PING Both directions. Keep alive.
	PING

	// PONG Both directions. Reply to PING.
	PONG

	// OK Server to Client. Acknowledgement in verbose mode.
	OK

	// ERR Server to Client. Protocol error or per-op failure.
	ERR

	// PUB Client to Server. Publish message without headers.
	PUB

	// HPUB Client to Server. Publish message with headers.
	HPUB

	// SUB Client to Server. Subscribe to subject.
	SUB

	// UNSUB Client to Server. Unsubscribe, optionally after N messages.
	UNSUB

	// MSG Server to Client. Delivered message.
	MSG

	// HMSG Server to Client. Delivered message with headers.
	HMSG

	// RMSG routed message. Recognized but not supported.
	RMSG
)

var typeName = [RMSG + 1]string{
	"RESERVED",
	"CONNECT",
	"INFO",
	"PING",
	"PONG",
	"+OK",
	"-ERR",
	"PUB",
	"HPUB",
	"SUB",
	"UNSUB",
	"MSG",
	"HMSG",
	"RMSG",
}

// Name returns wire verb of the operation
func (t Type) Name() string {
	if t > RMSG {
		return "UNKNOWN"
	}

	return typeName[t]
}

// String ...
func (t Type) String() string {
	return t.Name()
}

// Valid checks if operation type is known and supported by the codec
func (t Type) Valid() bool {
	return t > RESERVED && t < RMSG
}

// HasPayload either operation carries payload after control line
func (t Type) HasPayload() bool {
	switch t {
	case PUB, HPUB, MSG, HMSG, RMSG:
		return true
	}

	return false
}

// HasHeaders either operation carries header block
func (t Type) HasHeaders() bool {
	return t == HPUB || t == HMSG
}

// typeFromVerb classifies leading token of the control line. Verbs are case-insensitive
func typeFromVerb(verb []byte) Type {
	switch len(verb) {
	case 3:
		switch {
		case equalFold(verb, "PUB"):
			return PUB
		case equalFold(verb, "SUB"):
			return SUB
		case equalFold(verb, "MSG"):
			return MSG
		case equalFold(verb, "+OK"):
			return OK
		}
	case 4:
		switch {
		case equalFold(verb, "PING"):
			return PING
		case equalFold(verb, "PONG"):
			return PONG
		case equalFold(verb, "INFO"):
			return INFO
		case equalFold(verb, "HPUB"):
			return HPUB
		case equalFold(verb, "HMSG"):
			return HMSG
		case equalFold(verb, "RMSG"):
			return RMSG
		case equalFold(verb, "-ERR"):
			return ERR
		}
	case 5:
		if equalFold(verb, "UNSUB") {
			return UNSUB
		}
	case 7:
		if equalFold(verb, "CONNECT") {
			return CONNECT
		}
	}

	return RESERVED
}

// equalFold compares ASCII verb with upper-case reference
func equalFold(b []byte, ref string) bool {
	if len(b) != len(ref) {
		return false
	}

	for i := 0; i < len(b); i++ {
		c := b[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}

		if c != ref[i] {
			return false
		}
	}

	return true
}
