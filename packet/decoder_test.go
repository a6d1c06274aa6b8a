package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, d *Decoder, data string) []IFace {
	_, err := d.Write([]byte(data))
	require.NoError(t, err)

	var ops []IFace

	for {
		op, err := d.Decode()
		require.NoError(t, err)

		if op == nil {
			return ops
		}

		ops = append(ops, op)
	}
}

func TestDecodeControl(t *testing.T) {
	d := NewDecoder()

	ops := decodeAll(t, d, "PING\r\nPONG\r\n+OK\r\n-ERR 'Unknown Protocol Operation'\r\nSUB foo 1\r\nSUB foo q1 2\r\nUNSUB 1\r\nUNSUB 2 5\r\n")
	require.Len(t, ops, 8)

	require.Equal(t, &Ping{}, ops[0])
	require.Equal(t, &Pong{}, ops[1])
	require.Equal(t, &Ok{}, ops[2])
	require.Equal(t, &Err{Reason: "Unknown Protocol Operation"}, ops[3])
	require.Equal(t, &Subscribe{Subject: "foo", SID: 1}, ops[4])
	require.Equal(t, &Subscribe{Subject: "foo", Queue: "q1", SID: 2}, ops[5])
	require.Equal(t, &UnSubscribe{SID: 1}, ops[6])
	require.Equal(t, &UnSubscribe{SID: 2, Max: 5, HasMax: true}, ops[7])
	require.Equal(t, 0, d.Buffered())
}

func TestDecodeLowerCaseAndTabs(t *testing.T) {
	d := NewDecoder()

	ops := decodeAll(t, d, "sub\tfoo.bar \t 9\r\nping\n")
	require.Len(t, ops, 2)
	require.Equal(t, &Subscribe{Subject: "foo.bar", SID: 9}, ops[0])
	require.Equal(t, &Ping{}, ops[1])
}

func TestDecodeConnect(t *testing.T) {
	d := NewDecoder()

	ops := decodeAll(t, d, `CONNECT {"verbose":true,"pedantic":false,"headers":true,"name":"test client","lang":"go","version":"1.0","protocol":1}`+"\r\n")
	require.Len(t, ops, 1)

	c, ok := ops[0].(*Connect)
	require.True(t, ok)
	require.True(t, c.Info.Verbose)
	require.True(t, c.Info.Headers)
	require.True(t, c.Info.Echo, "echo defaults to true when omitted")
	require.Equal(t, "test client", c.Info.Name)
	require.Equal(t, 1, c.Info.Protocol)

	ops = decodeAll(t, d, `CONNECT {"echo":false}`+"\r\n")
	require.Len(t, ops, 1)
	require.False(t, ops[0].(*Connect).Info.Echo)
}

func TestDecodeConnectMalformed(t *testing.T) {
	d := NewDecoder()

	_, _ = d.Write([]byte("CONNECT {verbose\r\n"))
	_, err := d.Decode()
	require.Error(t, err)
	require.True(t, IsProtocolError(err))
	require.Equal(t, "Parser Error", Reason(err))
}

func TestDecodePub(t *testing.T) {
	d := NewDecoder()

	ops := decodeAll(t, d, "PUB foo 5\r\nhello\r\nPUB foo.bar reply.1 0\r\n\r\n")
	require.Len(t, ops, 2)
	require.Equal(t, &Publish{Subject: "foo", Payload: []byte("hello")}, ops[0])
	require.Equal(t, &Publish{Subject: "foo.bar", Reply: "reply.1"}, ops[1])
}

func TestDecodeHPub(t *testing.T) {
	d := NewDecoder()

	hdr := "NATS/1.0\r\nHdr: V\r\n\r\n"
	ops := decodeAll(t, d, "HPUB foo r.1 20 22\r\n"+hdr+"hi\r\n")
	require.Len(t, ops, 1)

	p, ok := ops[0].(*Publish)
	require.True(t, ok)
	require.Equal(t, HPUB, p.Type())
	require.Equal(t, "foo", p.Subject)
	require.Equal(t, "r.1", p.Reply)
	require.Equal(t, "V", p.Header.Get("Hdr"))
	require.Equal(t, []byte("hi"), p.Payload)
}

func TestDecodeMsg(t *testing.T) {
	d := NewDecoder()

	ops := decodeAll(t, d, "MSG orders.new 1 3\r\nabc\r\nMSG orders.new 7 inbox.x 3\r\nabc\r\nHMSG r.1 2 inbox 16 16\r\nNATS/1.0 503\r\n\r\n\r\n")
	require.Len(t, ops, 3)
	require.Equal(t, &Msg{Subject: "orders.new", SID: 1, Payload: []byte("abc")}, ops[0])
	require.Equal(t, &Msg{Subject: "orders.new", SID: 7, Reply: "inbox.x", Payload: []byte("abc")}, ops[1])

	m := ops[2].(*Msg)
	require.Equal(t, HMSG, m.Type())
	require.Equal(t, "inbox", m.Reply)
	require.Equal(t, uint64(2), m.SID)
	require.Equal(t, 503, m.Header.Status)
	require.Nil(t, m.Payload)
}

func TestDecodeFragmented(t *testing.T) {
	d := NewDecoder()
	stream := "PUB foo 11\r\nhello world\r\nPING\r\nHPUB h 12 14\r\nNATS/1.0\r\n\r\nok\r\n"

	var ops []IFace

	for i := 0; i < len(stream); i++ {
		_, _ = d.Write([]byte{stream[i]})

		for {
			op, err := d.Decode()
			require.NoError(t, err)

			if op == nil {
				break
			}

			ops = append(ops, op)
		}
	}

	require.Len(t, ops, 3)
	require.Equal(t, []byte("hello world"), ops[0].(*Publish).Payload)
	require.Equal(t, &Ping{}, ops[1])
	require.Equal(t, []byte("ok"), ops[2].(*Publish).Payload)
	require.Equal(t, 0, d.Buffered())
}

func TestDecodePayloadIsCopied(t *testing.T) {
	d := NewDecoder()

	ops := decodeAll(t, d, "PUB a 3\r\nabc\r\n")
	require.Len(t, ops, 1)

	ops2 := decodeAll(t, d, "PUB a 3\r\nxyz\r\n")
	require.Len(t, ops2, 1)

	require.Equal(t, []byte("abc"), ops[0].(*Publish).Payload)
	require.Equal(t, []byte("xyz"), ops2[0].(*Publish).Payload)
}

func TestDecodeMaxPayload(t *testing.T) {
	d := NewDecoder(MaxPayload(4))

	// rejected before payload bytes arrive
	_, _ = d.Write([]byte("PUB foo 5\r\n"))
	op, err := d.Decode()
	require.Nil(t, op)
	require.Equal(t, ErrMaxPayload, err)
	require.Equal(t, "Maximum Payload Violation", Reason(err))
}

func TestDecodeMaxControlLine(t *testing.T) {
	d := NewDecoder(MaxControlLine(16))

	_, _ = d.Write([]byte("SUB some.very.long.subject"))
	_, err := d.Decode()
	require.Equal(t, ErrMaxControlLine, err)
}

func TestDecodeErrors(t *testing.T) {
	bad := map[string]Error{
		"FOO bar\r\n":                                   ErrUnknownOperation,
		"\r\n":                                          ErrUnknownOperation,
		"SUB foo\r\n":                                   ErrParser,
		"SUB foo q 1 2\r\n":                             ErrParser,
		"SUB foo x\r\n":                                 ErrParser,
		"UNSUB\r\n":                                     ErrParser,
		"UNSUB 1 -1\r\n":                                ErrParser,
		"PUB foo\r\n":                                   ErrParser,
		"PUB foo -1\r\n":                                ErrParser,
		"PUB foo bar baz 1\r\n":                         ErrParser,
		"PUB foo 3\r\nabcd\r\n":                         ErrParser,
		"HPUB foo 10 5\r\n":                             ErrParser,
		"HPUB foo 5 5\r\nhello\r\n":                     ErrInvalidHeader,
		"HPUB foo 14 14\r\nNATS/1.0\r\nA: b\r\n":        ErrInvalidHeader,
		"RMSG $G foo 1\r\na\r\n":                        ErrUnsupported,
		"MSG foo bar 1\r\na\r\n":                        ErrParser,
		"INFO {\"server_id\":\r\n":                      ErrParser,
		"HMSG foo 1 12 11\r\nNATS/1.0\r\n\r\n\r\n":      ErrParser,
		"PUB foo 2\r\nab\n\n":                           ErrParser,
		"HPUB foo 12 13\r\nNATS/1.0\r\n\r\nx\n\r\n":     ErrParser,
		"HPUB foo 15 17\r\nNATS/1.0\r\nX\r\n\r\nok\r\n": ErrInvalidHeader,
		"HPUB foo 14 16\r\nNATS/1.0 5\r\n\r\nok\r\n":    ErrInvalidHeader,
		"HPUB foo 19 21\r\nNATS/1.0\r\nHdr V\r\n\r\nhi\r\n": ErrInvalidHeader,
	}

	for in, expected := range bad {
		d := NewDecoder()
		_, _ = d.Write([]byte(in))

		var err error
		for {
			var op IFace
			if op, err = d.Decode(); err != nil || op == nil {
				break
			}
		}

		require.Error(t, err, in)
		require.True(t, IsProtocolError(err), in)
		require.Equal(t, expected.Error(), Reason(err), in)
	}
}

func TestDecodeReset(t *testing.T) {
	d := NewDecoder()

	_, _ = d.Write([]byte("PUB foo 5\r\nhel"))
	op, err := d.Decode()
	require.NoError(t, err)
	require.Nil(t, op)
	require.Equal(t, 3, d.Buffered())

	d.Reset()
	require.Equal(t, 0, d.Buffered())

	ops := decodeAll(t, d, "PING\r\n")
	require.Equal(t, []IFace{&Ping{}}, ops)
}
