package connection

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/VolantMQ/vlnats/metrics"
	"github.com/VolantMQ/vlnats/packet"
	"github.com/VolantMQ/vlnats/topics"
	topicsTypes "github.com/VolantMQ/vlnats/topics/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type pipeConn struct {
	net.Conn
	id uint64
}

func (c *pipeConn) ID() uint64 {
	return c.id
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	dec  *packet.Decoder
	buf  []byte
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	return &testClient{
		t:    t,
		conn: conn,
		dec:  packet.NewDecoder(),
		buf:  make([]byte, 4096),
	}
}

func (c *testClient) send(ops ...string) {
	c.t.Helper()

	require.NoError(c.t, c.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err := c.conn.Write([]byte(strings.Join(ops, "")))
	require.NoError(c.t, err)
}

// read returns next operation or error reading connection
func (c *testClient) read() (packet.IFace, error) {
	for {
		op, err := c.dec.Decode()
		if err != nil || op != nil {
			return op, err
		}

		if err = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			return nil, err
		}

		n, err := c.conn.Read(c.buf)
		_, _ = c.dec.Write(c.buf[:n])

		if err != nil {
			if op, dErr := c.dec.Decode(); dErr != nil || op != nil {
				return op, dErr
			}

			return nil, err
		}
	}
}

func (c *testClient) next() packet.IFace {
	c.t.Helper()

	op, err := c.read()
	require.NoError(c.t, err)

	return op
}

func (c *testClient) expect(typ packet.Type) packet.IFace {
	c.t.Helper()

	op := c.next()
	require.Equal(c.t, typ, op.Type(), "got %s", op.Type())

	return op
}

func (c *testClient) expectErr(reason string) {
	c.t.Helper()

	op := c.expect(packet.ERR)
	require.Equal(c.t, reason, op.(*packet.Err).Reason)
}

func (c *testClient) expectMsg(subject string, sid uint64, payload string) *packet.Msg {
	c.t.Helper()

	op := c.next()

	msg, ok := op.(*packet.Msg)
	require.True(c.t, ok, "got %s", op.Type())
	require.Equal(c.t, subject, msg.Subject)
	require.Equal(c.t, sid, msg.SID)
	require.Equal(c.t, payload, string(msg.Payload))

	return msg
}

func (c *testClient) expectClosed() {
	c.t.Helper()

	op, err := c.read()
	require.Nil(c.t, op)
	require.Equal(c.t, io.EOF, err)
}

// sync makes sure every previously sent operation has been processed
func (c *testClient) sync() {
	c.t.Helper()

	c.send("PING\r\n")
	c.expect(packet.PONG)
}

type testEnv struct {
	s      Session
	c      *testClient
	topics topicsTypes.Provider
	stats  metrics.IFace
}

func newTestEnv(t *testing.T, id uint64, opts ...Option) *testEnv {
	t.Helper()

	tp, err := topics.New(topicsTypes.NewMemConfig())
	require.NoError(t, err)

	return newTestEnvWithTopics(t, id, tp, opts...)
}

func newTestEnvWithTopics(t *testing.T, id uint64, tp topicsTypes.Provider, opts ...Option) *testEnv {
	t.Helper()

	stats, err := metrics.New(metrics.Config{})
	require.NoError(t, err)

	srv, cl := net.Pipe()

	s, err := New(append([]Option{
		NetConn(&pipeConn{Conn: srv, id: id}),
		Topics(tp),
		Metric(stats),
		ServerInfo(packet.ServerInfo{
			ServerID:   "NTEST",
			ServerName: "test",
			Headers:    true,
			MaxPayload: packet.DefaultMaxPayload,
			Proto:      1,
		}),
	}, opts...)...)
	require.NoError(t, err)

	go s.Serve()

	env := &testEnv{
		s:      s,
		c:      newTestClient(t, cl),
		topics: tp,
		stats:  stats,
	}

	t.Cleanup(func() {
		_ = cl.Close()
		s.Stop(nil)
		<-s.Done()
		_ = stats.Shutdown()
	})

	info := env.c.expect(packet.INFO).(*packet.Info)
	require.Equal(t, id, info.Info.ClientID)
	require.Equal(t, "NTEST", info.Info.ServerID)

	return env
}

func TestNewInvalidArgs(t *testing.T) {
	_, err := New()
	require.Equal(t, ErrInvalidArgs, err)

	srv, cl := net.Pipe()
	defer srv.Close() // nolint: errcheck
	defer cl.Close()  // nolint: errcheck

	_, err = New(NetConn(&pipeConn{Conn: srv, id: 1}))
	require.Equal(t, ErrInvalidArgs, err)

	tp, err := topics.New(topicsTypes.NewMemConfig())
	require.NoError(t, err)

	_, err = New(NetConn(&pipeConn{Conn: srv, id: 1}), Topics(tp), MaxPending(0))
	require.Equal(t, ErrInvalidArgs, err)
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send("PING\r\n")
	env.c.expect(packet.PONG)

	// ops before CONNECT work with defaults
	env.c.send("ping\r\n", "PONG\r\n", "PING\r\n")
	env.c.expect(packet.PONG)
	env.c.expect(packet.PONG)
}

func TestInfoRequest(t *testing.T) {
	env := newTestEnv(t, 3)

	env.c.send("INFO {}\r\n")

	info := env.c.expect(packet.INFO).(*packet.Info)
	require.Equal(t, uint64(3), info.Info.ClientID)
}

func TestVerbose(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send(`CONNECT {"verbose":true}` + "\r\n")
	env.c.expect(packet.OK)

	env.c.send("SUB foo 1\r\n")
	env.c.expect(packet.OK)

	env.c.send("PUB foo 2\r\nhi\r\n")
	env.c.expectMsg("foo", 1, "hi")
	env.c.expect(packet.OK)

	env.c.send("UNSUB 1\r\n")
	env.c.expect(packet.OK)

	// unknown sid is silently accepted
	env.c.send("UNSUB 42\r\n")
	env.c.expect(packet.OK)

	env.c.send("PING\r\n")
	env.c.expect(packet.PONG)

	require.True(t, env.s.ConnectInfo().Verbose)
}

func TestEchoOff(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send(`CONNECT {"echo":false,"verbose":false}`+"\r\n", "SUB foo 1\r\n", "PUB foo 5\r\nhello\r\n")
	env.c.sync()

	require.Equal(t, 1, env.topics.Subscriptions(1))
}

func TestEchoDefault(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send(`CONNECT {}`+"\r\n", "SUB foo 1\r\n", "PUB foo 5\r\nhello\r\n")
	env.c.expectMsg("foo", 1, "hello")
	env.c.sync()
}

func TestInvalidSubjectKeepsConnection(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send("PUB foo..bar 1\r\nx\r\n")
	env.c.expectErr("Invalid Subject")

	env.c.send("PUB foo.* 1\r\nx\r\n")
	env.c.expectErr("Invalid Subject")

	env.c.send("SUB foo.>.bar 1\r\n")
	env.c.expectErr("Invalid Subject")

	env.c.sync()

	require.Equal(t, uint64(3), env.stats.Snapshot().Rejected)
	require.Equal(t, 0, env.topics.Subscriptions(1))
}

func TestProtocolErrorCloses(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send("SUB foo 1\r\n", "FOO bar\r\n")
	env.c.expectErr("Unknown Protocol Operation")
	env.c.expectClosed()

	<-env.s.Done()

	// teardown released subscriptions
	require.Equal(t, 0, env.topics.Count())
}

func TestErrorRightAfterInfo(t *testing.T) {
	for i := 0; i < 20; i++ {
		env := newTestEnv(t, uint64(i+1))

		env.c.send("FOO bar\r\n")
		env.c.expectErr("Unknown Protocol Operation")
		env.c.expectClosed()

		<-env.s.Done()
	}
}

func TestClientMsgRejected(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send("MSG foo 1 1\r\nx\r\n")
	env.c.expectErr("Unknown Protocol Operation")
	env.c.expectClosed()
}

func TestMaxPayload(t *testing.T) {
	env := newTestEnv(t, 1, MaxPayload(4))

	env.c.send("PUB foo 5\r\n")
	env.c.expectErr("Maximum Payload Violation")
	env.c.expectClosed()
}

func TestHPubWithoutHeadersNegotiated(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send("HPUB foo 12 14\r\nNATS/1.0\r\n\r\nhi\r\n")
	env.c.expectErr("Parser Error")
	env.c.expectClosed()
}

func TestHeaders(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send(`CONNECT {"headers":true}`+"\r\n",
		"SUB foo 1\r\n",
		"HPUB foo r.1 20 22\r\nNATS/1.0\r\nHdr: V\r\n\r\nhi\r\n")

	msg := env.c.expectMsg("foo", 1, "hi")
	require.Equal(t, packet.HMSG, msg.Type())
	require.Equal(t, "r.1", msg.Reply)
	require.Equal(t, "V", msg.Header.Get("Hdr"))
}

func TestHeadersStrippedForLegacySubscriber(t *testing.T) {
	tp, err := topics.New(topicsTypes.NewMemConfig())
	require.NoError(t, err)

	pub := newTestEnvWithTopics(t, 1, tp)
	sub := newTestEnvWithTopics(t, 2, tp)

	sub.c.send("SUB foo 7\r\n")
	sub.c.sync()

	pub.c.send(`CONNECT {"headers":true}`+"\r\n", "HPUB foo 20 22\r\nNATS/1.0\r\nHdr: V\r\n\r\nhi\r\n")
	pub.c.sync()

	msg := sub.c.expectMsg("foo", 7, "hi")
	require.Equal(t, packet.MSG, msg.Type())
}

func TestNoResponders(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send(`CONNECT {"headers":true,"no_responders":true}`+"\r\n",
		"SUB inbox 2\r\n",
		"PUB req inbox 1\r\nx\r\n")

	msg := env.c.expectMsg("inbox", 2, "")
	require.Equal(t, packet.HMSG, msg.Type())
	require.Equal(t, packet.StatusNoResponders, msg.Header.Status)
}

func TestNoRespondersRequiresOptIn(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send(`CONNECT {"headers":true}`+"\r\n",
		"SUB inbox 2\r\n",
		"PUB req inbox 1\r\nx\r\n")
	env.c.sync()
}

func TestDuplicateSubIgnored(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send("SUB foo 1\r\n", "SUB bar 1\r\n", "PUB foo 1\r\na\r\n", "PUB bar 1\r\nb\r\n")
	env.c.expectMsg("foo", 1, "a")
	env.c.sync()

	require.Equal(t, 1, env.topics.Subscriptions(1))
}

func TestAutoUnsubscribe(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send("SUB foo 1\r\n", "UNSUB 1 2\r\n")

	for i := 0; i < 3; i++ {
		env.c.send("PUB foo 1\r\nx\r\n")
	}

	env.c.expectMsg("foo", 1, "x")
	env.c.expectMsg("foo", 1, "x")
	env.c.sync()

	require.Equal(t, 0, env.topics.Subscriptions(1))
}

func TestAutoUnsubscribeZero(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send("SUB foo 1\r\n", "UNSUB 1 0\r\n", "PUB foo 1\r\nx\r\n")
	env.c.sync()

	require.Equal(t, 0, env.topics.Subscriptions(1))
}

func TestQueueSubscription(t *testing.T) {
	env := newTestEnv(t, 1)

	env.c.send("SUB work q1 1\r\n", "SUB work q1 2\r\n", "PUB work 1\r\nz\r\n")

	msg := env.c.next().(*packet.Msg)
	require.Equal(t, "work", msg.Subject)
	require.Contains(t, []uint64{1, 2}, msg.SID)

	env.c.sync()
}

func TestHeartbeat(t *testing.T) {
	clock := clockwork.NewFakeClock()

	env := newTestEnv(t, 5, Clock(clock), Heartbeat(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Minute)

		info := env.c.expect(packet.INFO).(*packet.Info)
		require.Equal(t, uint64(5), info.Info.ClientID)
	}
}

func TestLastActivity(t *testing.T) {
	clock := clockwork.NewFakeClock()

	env := newTestEnv(t, 1, Clock(clock))

	require.True(t, clock.Now().Equal(env.s.LastActivity()))

	clock.Advance(5 * time.Second)
	env.c.sync()

	require.True(t, clock.Now().Equal(env.s.LastActivity()))
}

func TestSlowConsumerDrops(t *testing.T) {
	env := newTestEnv(t, 1, MaxPending(1))

	m := &topicsTypes.Message{Subject: "foo", Payload: []byte("x")}

	dropped := 0
	for i := 0; i < 100; i++ {
		if !env.s.Publish(1, m) {
			dropped++
		}
	}

	require.Greater(t, dropped, 0)
	require.Equal(t, uint64(dropped), env.stats.Snapshot().SlowConsumers)

	// connection survives, queued deliveries arrive
	env.c.expectMsg("foo", 1, "x")
}

func TestUnencodableMessageDropped(t *testing.T) {
	env := newTestEnv(t, 1)

	require.True(t, env.s.Publish(1, &topicsTypes.Message{Subject: "foo", Reply: "bad reply", Payload: []byte("x")}))
	require.True(t, env.s.Publish(1, &topicsTypes.Message{Subject: "foo", Payload: []byte("y")}))

	// connection survives, only broken message is lost
	env.c.expectMsg("foo", 1, "y")
	env.c.sync()

	require.Equal(t, uint64(1), env.stats.Snapshot().Dropped)
}

func TestSlowConsumerClose(t *testing.T) {
	env := newTestEnv(t, 1, MaxPending(1), CloseSlowConsumers(true))

	m := &topicsTypes.Message{Subject: "foo", Payload: []byte("x")}

	for i := 0; i < 100; i++ {
		if !env.s.Publish(1, m) {
			break
		}
	}

	var last packet.IFace

	for {
		op, err := env.c.read()
		if err != nil {
			require.Equal(t, io.EOF, err)
			break
		}

		last = op
	}

	require.NotNil(t, last)
	require.Equal(t, packet.ERR, last.Type())
	require.Equal(t, "Slow Consumer", last.(*packet.Err).Reason)

	<-env.s.Done()
}

func TestStopFlushesPending(t *testing.T) {
	env := newTestEnv(t, 1)

	m := &topicsTypes.Message{Subject: "foo", Payload: []byte("x")}

	for i := 0; i < 10; i++ {
		require.True(t, env.s.Publish(uint64(i), m))
	}

	go env.s.Stop(nil)

	for i := 0; i < 10; i++ {
		env.c.expectMsg("foo", uint64(i), "x")
	}

	env.c.expectClosed()
	<-env.s.Done()
}

func TestStopDuringSubscribeBatch(t *testing.T) {
	for round := 0; round < 5; round++ {
		env := newTestEnv(t, 1)

		var batch strings.Builder
		for i := 0; i < 20000; i++ {
			batch.WriteString("SUB s." + strconv.Itoa(i) + " " + strconv.Itoa(i) + "\r\n")
		}

		written := make(chan struct{})
		go func() {
			defer close(written)

			// fails once session closes its end
			_, _ = env.c.conn.Write([]byte(batch.String()))
		}()

		require.Eventually(t, func() bool {
			return env.topics.Count() > 0
		}, 2*time.Second, time.Millisecond)

		env.s.Stop(nil)
		<-env.s.Done()
		<-written

		require.Equal(t, 0, env.topics.Count())
		require.Equal(t, 0, env.topics.Subscriptions(1))
	}
}

func TestTeardownIsolation(t *testing.T) {
	tp, err := topics.New(topicsTypes.NewMemConfig())
	require.NoError(t, err)

	a := newTestEnvWithTopics(t, 1, tp)
	b := newTestEnvWithTopics(t, 2, tp)

	a.c.send("SUB foo 1\r\n", "SUB bar 2\r\n")
	a.c.sync()
	b.c.send("SUB foo 1\r\n")
	b.c.sync()

	require.Equal(t, 3, tp.Count())

	a.s.Stop(nil)
	<-a.s.Done()

	require.Equal(t, 1, tp.Count())
	require.Equal(t, 1, tp.Subscriptions(2))

	b.c.send("PUB foo 1\r\nx\r\n")
	b.c.expectMsg("foo", 1, "x")
}

func TestConnectedGauge(t *testing.T) {
	env := newTestEnv(t, 1)
	env.c.sync()

	require.Equal(t, uint64(1), env.stats.Snapshot().Connected)

	env.s.Stop(nil)
	<-env.s.Done()

	require.Equal(t, uint64(0), env.stats.Snapshot().Connected)
}
