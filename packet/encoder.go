package packet

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Encode operation into newly allocated buffer
func Encode(op IFace) ([]byte, error) {
	if op == nil {
		return nil, ErrInvalidArgs
	}

	return op.appendTo(make([]byte, 0, op.Size()))
}

// AppendEncode appends encoded operation to dst
func AppendEncode(dst []byte, op IFace) ([]byte, error) {
	if op == nil {
		return dst, ErrInvalidArgs
	}

	return op.appendTo(dst)
}

// token checks subject, reply and queue fields carry no whitespace
func token(s string) bool {
	if len(s) == 0 {
		return false
	}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			return false
		}
	}

	return true
}

func appendJSON(dst []byte, verb string, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return dst, errors.Wrap(err, verb)
	}

	dst = append(dst, verb...)
	dst = append(dst, ' ')
	dst = append(dst, data...)

	return append(dst, crlf...), nil
}

func jsonSize(verb string, v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}

	return len(verb) + 1 + len(data) + 2
}

// Size ...
func (c *Connect) Size() int { return jsonSize("CONNECT", &c.Info) }

func (c *Connect) appendTo(dst []byte) ([]byte, error) {
	return appendJSON(dst, "CONNECT", &c.Info)
}

// Size ...
func (i *Info) Size() int { return jsonSize("INFO", &i.Info) }

func (i *Info) appendTo(dst []byte) ([]byte, error) {
	return appendJSON(dst, "INFO", &i.Info)
}

// Size ...
func (*Ping) Size() int { return 6 }

func (*Ping) appendTo(dst []byte) ([]byte, error) {
	return append(dst, "PING\r\n"...), nil
}

// Size ...
func (*Pong) Size() int { return 6 }

func (*Pong) appendTo(dst []byte) ([]byte, error) {
	return append(dst, "PONG\r\n"...), nil
}

// Size ...
func (*Ok) Size() int { return 5 }

func (*Ok) appendTo(dst []byte) ([]byte, error) {
	return append(dst, "+OK\r\n"...), nil
}

// Size ...
func (e *Err) Size() int { return len("-ERR '") + len(e.Reason) + len("'\r\n") }

func (e *Err) appendTo(dst []byte) ([]byte, error) {
	dst = append(dst, "-ERR '"...)
	dst = append(dst, e.Reason...)

	return append(dst, "'\r\n"...), nil
}

// Size ...
func (p *Publish) Size() int {
	return payloadOpSize(p.Type().Name(), p.Subject, "", p.Reply, p.Header, len(p.Payload))
}

func (p *Publish) appendTo(dst []byte) ([]byte, error) {
	if !token(p.Subject) {
		return dst, ErrInvalidSubject
	}

	if len(p.Reply) > 0 && !token(p.Reply) {
		return dst, ErrInvalidSubject
	}

	dst = append(dst, p.Type().Name()...)
	dst = append(dst, ' ')
	dst = append(dst, p.Subject...)

	return appendPayloadOp(dst, p.Reply, p.Header, p.Payload), nil
}

// Size ...
func (s *Subscribe) Size() int {
	sz := len("SUB ") + len(s.Subject) + 1 + len(strconv.FormatUint(s.SID, 10)) + 2
	if len(s.Queue) > 0 {
		sz += len(s.Queue) + 1
	}

	return sz
}

func (s *Subscribe) appendTo(dst []byte) ([]byte, error) {
	if !token(s.Subject) {
		return dst, ErrInvalidSubject
	}

	dst = append(dst, "SUB "...)
	dst = append(dst, s.Subject...)

	if len(s.Queue) > 0 {
		if !token(s.Queue) {
			return dst, ErrInvalidArgs
		}

		dst = append(dst, ' ')
		dst = append(dst, s.Queue...)
	}

	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, s.SID, 10)

	return append(dst, crlf...), nil
}

// Size ...
func (u *UnSubscribe) Size() int {
	sz := len("UNSUB ") + len(strconv.FormatUint(u.SID, 10)) + 2
	if u.HasMax {
		sz += 1 + len(strconv.FormatUint(u.Max, 10))
	}

	return sz
}

func (u *UnSubscribe) appendTo(dst []byte) ([]byte, error) {
	dst = append(dst, "UNSUB "...)
	dst = strconv.AppendUint(dst, u.SID, 10)

	if u.HasMax {
		dst = append(dst, ' ')
		dst = strconv.AppendUint(dst, u.Max, 10)
	}

	return append(dst, crlf...), nil
}

// Size ...
func (m *Msg) Size() int {
	return payloadOpSize(m.Type().Name(), m.Subject, strconv.FormatUint(m.SID, 10), m.Reply, m.Header, len(m.Payload))
}

func (m *Msg) appendTo(dst []byte) ([]byte, error) {
	if !token(m.Subject) {
		return dst, ErrInvalidSubject
	}

	if len(m.Reply) > 0 && !token(m.Reply) {
		return dst, ErrInvalidSubject
	}

	dst = append(dst, m.Type().Name()...)
	dst = append(dst, ' ')
	dst = append(dst, m.Subject...)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, m.SID, 10)

	return appendPayloadOp(dst, m.Reply, m.Header, m.Payload), nil
}

// appendPayloadOp writes " [reply] [hdr_size] total_size\r\n[hdr]payload\r\n"
func appendPayloadOp(dst []byte, reply string, hdr *Header, payload []byte) []byte {
	if len(reply) > 0 {
		dst = append(dst, ' ')
		dst = append(dst, reply...)
	}

	hdrLen := 0
	if hdr != nil {
		hdrLen = hdr.Size()
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(hdrLen), 10)
	}

	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(hdrLen+len(payload)), 10)
	dst = append(dst, crlf...)

	if hdr != nil {
		dst = hdr.AppendTo(dst)
	}

	dst = append(dst, payload...)

	return append(dst, crlf...)
}

func payloadOpSize(verb, subject, sid, reply string, hdr *Header, payloadLen int) int {
	sz := len(verb) + 1 + len(subject)

	if len(sid) > 0 {
		sz += 1 + len(sid)
	}

	if len(reply) > 0 {
		sz += 1 + len(reply)
	}

	hdrLen := 0
	if hdr != nil {
		hdrLen = hdr.Size()
		sz += 1 + len(strconv.Itoa(hdrLen))
	}

	sz += 1 + len(strconv.Itoa(hdrLen+payloadLen)) + 2

	return sz + hdrLen + payloadLen + 2
}
