package packet

// IFace implemented by every NATS protocol operation
type IFace interface {
	// Type of the operation
	Type() Type

	// Size of the operation on the wire
	Size() int

	appendTo([]byte) ([]byte, error)
}

// Connect CONNECT {json}
type Connect struct {
	Info ConnectInfo
}

// Info INFO {json}
type Info struct {
	Info ServerInfo
}

// Ping PING
type Ping struct{}

// Pong PONG
type Pong struct{}

// Ok +OK
type Ok struct{}

// Err -ERR 'reason'
type Err struct {
	Reason string
}

// Publish PUB subject [reply] size or HPUB subject [reply] hdr_size total_size.
// HPUB is used when Header is not nil
type Publish struct {
	Subject string
	Reply   string
	Header  *Header
	Payload []byte
}

// Subscribe SUB subject [queue] sid
type Subscribe struct {
	Subject string
	Queue   string
	SID     uint64
}

// UnSubscribe UNSUB sid [max_msgs]
type UnSubscribe struct {
	SID    uint64
	Max    uint64
	HasMax bool
}

// Msg MSG subject sid [reply] size or HMSG subject sid [reply] hdr_size total_size.
// HMSG is used when Header is not nil
type Msg struct {
	Subject string
	SID     uint64
	Reply   string
	Header  *Header
	Payload []byte
}

var (
	_ IFace = (*Connect)(nil)
	_ IFace = (*Info)(nil)
	_ IFace = (*Ping)(nil)
	_ IFace = (*Pong)(nil)
	_ IFace = (*Ok)(nil)
	_ IFace = (*Err)(nil)
	_ IFace = (*Publish)(nil)
	_ IFace = (*Subscribe)(nil)
	_ IFace = (*UnSubscribe)(nil)
	_ IFace = (*Msg)(nil)
)

// Type ...
func (*Connect) Type() Type { return CONNECT }

// Type ...
func (*Info) Type() Type { return INFO }

// Type ...
func (*Ping) Type() Type { return PING }

// Type ...
func (*Pong) Type() Type { return PONG }

// Type ...
func (*Ok) Type() Type { return OK }

// Type ...
func (*Err) Type() Type { return ERR }

// Type PUB or HPUB
func (p *Publish) Type() Type {
	if p.Header != nil {
		return HPUB
	}

	return PUB
}

// Type ...
func (*Subscribe) Type() Type { return SUB }

// Type ...
func (*UnSubscribe) Type() Type { return UNSUB }

// Type MSG or HMSG
func (m *Msg) Type() Type {
	if m.Header != nil {
		return HMSG
	}

	return MSG
}
