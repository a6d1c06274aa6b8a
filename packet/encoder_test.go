package packet

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func TestEncodeWire(t *testing.T) {
	hdr := NewHeader()
	hdr.Add("Hdr", "V")

	cases := []struct {
		op  IFace
		out string
	}{
		{&Ping{}, "PING\r\n"},
		{&Pong{}, "PONG\r\n"},
		{&Ok{}, "+OK\r\n"},
		{&Err{Reason: "Invalid Subject"}, "-ERR 'Invalid Subject'\r\n"},
		{&Subscribe{Subject: "foo.*", SID: 1}, "SUB foo.* 1\r\n"},
		{&Subscribe{Subject: "foo.>", Queue: "workers", SID: 12}, "SUB foo.> workers 12\r\n"},
		{&UnSubscribe{SID: 1}, "UNSUB 1\r\n"},
		{&UnSubscribe{SID: 1, Max: 3, HasMax: true}, "UNSUB 1 3\r\n"},
		{&Publish{Subject: "foo", Payload: []byte("hello")}, "PUB foo 5\r\nhello\r\n"},
		{&Publish{Subject: "foo", Reply: "bar"}, "PUB foo bar 0\r\n\r\n"},
		{&Publish{Subject: "foo", Header: hdr, Payload: []byte("hi")}, "HPUB foo 20 22\r\nNATS/1.0\r\nHdr: V\r\n\r\nhi\r\n"},
		{&Msg{Subject: "orders.new", SID: 1, Payload: []byte("abc")}, "MSG orders.new 1 3\r\nabc\r\n"},
		{&Msg{Subject: "orders.new", SID: 1, Reply: "inbox.1", Payload: []byte("abc")}, "MSG orders.new 1 inbox.1 3\r\nabc\r\n"},
		{&Msg{Subject: "orders.new", SID: 2, Header: hdr, Payload: []byte("abc")}, "HMSG orders.new 2 20 23\r\nNATS/1.0\r\nHdr: V\r\n\r\nabc\r\n"},
		{&Msg{Subject: "r.1", SID: 3, Header: NewStatusHeader(StatusNoResponders, "")}, "HMSG r.1 3 16 16\r\nNATS/1.0 503\r\n\r\n\r\n"},
	}

	for _, c := range cases {
		buf, err := Encode(c.op)
		require.NoError(t, err, c.out)
		require.Equal(t, c.out, string(buf))
		require.Equal(t, len(c.out), c.op.Size(), c.out)
	}
}

func TestEncodeAppend(t *testing.T) {
	buf, err := AppendEncode(nil, &Ping{})
	require.NoError(t, err)

	buf, err = AppendEncode(buf, &Msg{Subject: "a", SID: 1, Payload: []byte("x")})
	require.NoError(t, err)
	require.Equal(t, "PING\r\nMSG a 1 1\r\nx\r\n", string(buf))

	_, err = AppendEncode(buf, nil)
	require.Equal(t, ErrInvalidArgs, err)

	_, err = Encode(nil)
	require.Equal(t, ErrInvalidArgs, err)
}

func TestEncodeInvalid(t *testing.T) {
	_, err := Encode(&Publish{Subject: "foo bar"})
	require.Equal(t, ErrInvalidSubject, err)

	_, err = Encode(&Publish{Subject: ""})
	require.Equal(t, ErrInvalidSubject, err)

	_, err = Encode(&Msg{Subject: "foo", Reply: "in box"})
	require.Equal(t, ErrInvalidSubject, err)

	_, err = Encode(&Subscribe{Subject: "foo\r\n", SID: 1})
	require.Equal(t, ErrInvalidSubject, err)

	_, err = Encode(&Subscribe{Subject: "foo", Queue: "a b", SID: 1})
	require.Equal(t, ErrInvalidArgs, err)
}

func TestEncodeJSON(t *testing.T) {
	buf, err := Encode(&Info{Info: ServerInfo{
		ServerID:   "NABC",
		ServerName: "vlnats",
		Version:    "0.1.0",
		Host:       "0.0.0.0",
		Port:       4222,
		Headers:    true,
		MaxPayload: 1024,
		Proto:      1,
	}})
	require.NoError(t, err)
	require.Equal(t,
		`INFO {"server_id":"NABC","server_name":"vlnats","version":"0.1.0","host":"0.0.0.0","port":4222,"headers":true,"max_payload":1024,"proto":1}`+"\r\n",
		string(buf))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	hdr := NewHeader()
	hdr.Add("A", "1")
	hdr.Add("A", "2")
	hdr.Add("Trace", "abc")

	spaced := NewStatusHeader(408, " Request Timeout ")
	spaced.Add("Pad", "  lead and trail\t")

	ops := []IFace{
		&Connect{Info: ConnectInfo{Verbose: true, Headers: true, Name: "c1", Lang: "go", Version: "1.2", Protocol: 1, Echo: false, NoResponders: true}},
		&Info{Info: ServerInfo{ServerID: "N1", Version: "0.1.0", Host: "127.0.0.1", Port: 4222, MaxPayload: 65535, Proto: 1, ClientID: 7, ConnectURLs: []string{"127.0.0.1:4222"}}},
		&Ping{},
		&Pong{},
		&Ok{},
		&Err{Reason: "Slow Consumer"},
		&Err{Reason: " spaced reason "},
		&Subscribe{Subject: "a.b.>", SID: 1},
		&Subscribe{Subject: "a.*.c", Queue: "q", SID: 2},
		&UnSubscribe{SID: 2},
		&UnSubscribe{SID: 1, Max: 10, HasMax: true},
		&Publish{Subject: "a.b.c", Payload: []byte("payload")},
		&Publish{Subject: "a.b.c", Reply: "_INBOX.1", Header: hdr, Payload: []byte("with header")},
		&Publish{Subject: "empty"},
		&Msg{Subject: "a.b.c", SID: 1, Payload: []byte("payload")},
		&Msg{Subject: "a.b.c", SID: 2, Reply: "_INBOX.1", Header: hdr, Payload: []byte("with header")},
		&Msg{Subject: "r", SID: 3, Header: NewStatusHeader(StatusNoResponders, "")},
		&Msg{Subject: "s", SID: 4, Header: spaced, Payload: []byte(" ")},
	}

	var stream []byte

	for _, op := range ops {
		var err error
		stream, err = AppendEncode(stream, op)
		require.NoError(t, err)
	}

	d := NewDecoder()
	decoded := decodeAll(t, d, string(stream))

	opts := cmp.Options{
		cmp.AllowUnexported(Header{}),
		cmpopts.EquateEmpty(),
	}

	if diff := cmp.Diff(ops, decoded, opts); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
