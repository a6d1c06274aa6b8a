package packet

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

const (
	// DefaultMaxPayload maximum size of message payload (headers included)
	DefaultMaxPayload = 65535

	// DefaultMaxControlLine maximum length of control line
	DefaultMaxControlLine = 4096
)

// pending control line of payload-bearing operation waiting for its payload
type pending struct {
	op      Type
	subject string
	reply   string
	sid     uint64
	hdrLen  int
	total   int
}

// Decoder splits inbound byte stream into operations.
// Not safe for concurrent use
type Decoder struct {
	buf            []byte
	off            int
	pending        *pending
	maxPayload     int
	maxControlLine int
}

// DecoderOption configures decoder
type DecoderOption func(*Decoder)

// MaxPayload limits declared payload size. Zero or negative value disables the check
func MaxPayload(val int) DecoderOption {
	return func(d *Decoder) {
		d.maxPayload = val
	}
}

// MaxControlLine limits control line length
func MaxControlLine(val int) DecoderOption {
	return func(d *Decoder) {
		if val > 0 {
			d.maxControlLine = val
		}
	}
}

// NewDecoder allocate decoder
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		maxPayload:     DefaultMaxPayload,
		maxControlLine: DefaultMaxControlLine,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Write appends data to decoder buffer. Never fails
func (d *Decoder) Write(p []byte) (int, error) {
	if d.off > 0 {
		if d.off == len(d.buf) {
			d.buf = d.buf[:0]
		} else {
			n := copy(d.buf, d.buf[d.off:])
			d.buf = d.buf[:n]
		}

		d.off = 0
	}

	d.buf = append(d.buf, p...)

	return len(p), nil
}

// Buffered number of bytes received but not yet decoded
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Reset discards buffered input and any partially decoded operation
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.off = 0
	d.pending = nil
}

// Decode returns next complete operation.
// Returns nil operation and nil error when more input required
func (d *Decoder) Decode() (IFace, error) {
	for {
		if d.pending != nil {
			return d.decodePayload()
		}

		data := d.buf[d.off:]

		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			if len(data) > d.maxControlLine {
				return nil, ErrMaxControlLine
			}

			return nil, nil
		}

		if idx > d.maxControlLine {
			return nil, ErrMaxControlLine
		}

		line := data[:idx]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}

		d.off += idx + 1

		op, err := d.decodeControl(line)
		if err != nil {
			return nil, err
		}

		if op != nil {
			return op, nil
		}

		// payload-bearing operation, loop to the second stage
	}
}

func (d *Decoder) decodeControl(line []byte) (IFace, error) {
	verb := line
	var args []byte

	if sp := bytes.IndexAny(line, " \t"); sp >= 0 {
		verb = line[:sp]
		args = bytes.TrimLeft(line[sp:], " \t")
	}

	if len(verb) == 0 {
		return nil, ErrUnknownOperation
	}

	switch typ := typeFromVerb(verb); typ {
	case PING:
		return &Ping{}, nil
	case PONG:
		return &Pong{}, nil
	case OK:
		return &Ok{}, nil
	case ERR:
		return &Err{Reason: unquote(bytes.TrimSpace(args))}, nil
	case CONNECT:
		info := DefaultConnectInfo()
		if err := json.Unmarshal(args, &info); err != nil {
			return nil, errors.Wrap(ErrParser, "CONNECT: "+err.Error())
		}

		return &Connect{Info: info}, nil
	case INFO:
		var info ServerInfo
		if err := json.Unmarshal(args, &info); err != nil {
			return nil, errors.Wrap(ErrParser, "INFO: "+err.Error())
		}

		return &Info{Info: info}, nil
	case SUB:
		return decodeSub(bytes.Fields(args))
	case UNSUB:
		return decodeUnSub(bytes.Fields(args))
	case PUB, HPUB, MSG, HMSG:
		p, err := d.decodePayloadLine(typ, bytes.Fields(args))
		if err != nil {
			return nil, err
		}

		d.pending = p
		d.reserve(p.total + 2)

		return nil, nil
	case RMSG:
		return nil, ErrUnsupported
	default:
		return nil, ErrUnknownOperation
	}
}

func decodeSub(fields [][]byte) (IFace, error) {
	s := &Subscribe{}

	switch len(fields) {
	case 2:
		s.Subject = string(fields[0])
	case 3:
		s.Subject = string(fields[0])
		s.Queue = string(fields[1])
	default:
		return nil, errors.Wrap(ErrParser, "SUB: unexpected number of arguments")
	}

	var err error
	if s.SID, err = parseUint(fields[len(fields)-1]); err != nil {
		return nil, errors.Wrap(ErrParser, "SUB: invalid sid")
	}

	return s, nil
}

func decodeUnSub(fields [][]byte) (IFace, error) {
	u := &UnSubscribe{}

	if len(fields) < 1 || len(fields) > 2 {
		return nil, errors.Wrap(ErrParser, "UNSUB: unexpected number of arguments")
	}

	var err error
	if u.SID, err = parseUint(fields[0]); err != nil {
		return nil, errors.Wrap(ErrParser, "UNSUB: invalid sid")
	}

	if len(fields) == 2 {
		if u.Max, err = parseUint(fields[1]); err != nil {
			return nil, errors.Wrap(ErrParser, "UNSUB: invalid max_msgs")
		}

		u.HasMax = true
	}

	return u, nil
}

// decodePayloadLine parses control line of PUB/HPUB/MSG/HMSG
func (d *Decoder) decodePayloadLine(typ Type, fields [][]byte) (*pending, error) {
	p := &pending{op: typ}

	// number of fields without optional reply
	required := 2
	if typ == MSG || typ == HMSG {
		required++
	}

	if typ.HasHeaders() {
		required++
	}

	switch len(fields) {
	case required:
	case required + 1:
		// reply follows subject (and sid for MSG/HMSG)
		if typ == MSG || typ == HMSG {
			p.reply = string(fields[2])
		} else {
			p.reply = string(fields[1])
		}
	default:
		return nil, errors.Wrapf(ErrParser, "%s: unexpected number of arguments", typ.Name())
	}

	p.subject = string(fields[0])

	if typ == MSG || typ == HMSG {
		sid, err := parseUint(fields[1])
		if err != nil {
			return nil, errors.Wrapf(ErrParser, "%s: invalid sid", typ.Name())
		}

		p.sid = sid
	}

	var err error

	if p.total, err = parseSize(fields[len(fields)-1]); err != nil {
		return nil, errors.Wrapf(ErrParser, "%s: invalid size", typ.Name())
	}

	if typ.HasHeaders() {
		if p.hdrLen, err = parseSize(fields[len(fields)-2]); err != nil {
			return nil, errors.Wrapf(ErrParser, "%s: invalid header size", typ.Name())
		}

		if p.hdrLen > p.total {
			return nil, errors.Wrapf(ErrParser, "%s: header size exceeds total size", typ.Name())
		}
	}

	if d.maxPayload > 0 && p.total > d.maxPayload {
		return nil, ErrMaxPayload
	}

	return p, nil
}

// decodePayload second stage: emits operation once payload and trailing CRLF are buffered
func (d *Decoder) decodePayload() (IFace, error) {
	p := d.pending
	need := p.total + 2

	data := d.buf[d.off:]
	if len(data) < need {
		return nil, nil
	}

	if data[p.total] != '\r' || data[p.total+1] != '\n' {
		return nil, errors.Wrapf(ErrParser, "%s: payload is not terminated by CRLF", p.op.Name())
	}

	var hdr *Header

	if p.op.HasHeaders() {
		var err error
		if hdr, err = ParseHeader(data[:p.hdrLen]); err != nil {
			return nil, err
		}
	}

	var payload []byte
	if n := p.total - p.hdrLen; n > 0 {
		payload = make([]byte, n)
		copy(payload, data[p.hdrLen:p.total])
	}

	d.off += need
	d.pending = nil

	switch p.op {
	case PUB, HPUB:
		return &Publish{
			Subject: p.subject,
			Reply:   p.reply,
			Header:  hdr,
			Payload: payload,
		}, nil
	default:
		return &Msg{
			Subject: p.subject,
			SID:     p.sid,
			Reply:   p.reply,
			Header:  hdr,
			Payload: payload,
		}, nil
	}
}

// reserve makes sure buffer can take n more bytes past read offset without reallocation
func (d *Decoder) reserve(n int) {
	if cap(d.buf)-d.off >= n {
		return
	}

	buf := make([]byte, len(d.buf)-d.off, n)
	copy(buf, d.buf[d.off:])

	d.buf = buf
	d.off = 0
}

func parseUint(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}

func parseSize(b []byte) (int, error) {
	v, err := strconv.ParseUint(string(b), 10, 31)
	return int(v), err
}

func unquote(b []byte) string {
	if n := len(b); n >= 2 {
		if (b[0] == '\'' && b[n-1] == '\'') || (b[0] == '"' && b[n-1] == '"') {
			return string(b[1 : n-1])
		}
	}

	return string(b)
}
