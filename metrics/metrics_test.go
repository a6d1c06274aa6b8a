package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/VolantMQ/vlnats/packet"
)

type testReporter struct {
	lock   sync.Mutex
	pushed []Stats
	closed bool
}

func (r *testReporter) Push(st Stats) {
	r.lock.Lock()
	r.pushed = append(r.pushed, st)
	r.lock.Unlock()
}

func (r *testReporter) Shutdown() error {
	r.closed = true
	return nil
}

func TestCounters(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)

	defer m.Shutdown() // nolint: errcheck

	m.Bytes().OnRecv(10)
	m.Bytes().OnSent(20)
	m.Packets().OnRecv(packet.PUB)
	m.Packets().OnRecv(packet.HPUB)
	m.Packets().OnRecv(packet.PING)
	m.Packets().OnSent(packet.MSG)
	m.Packets().OnSent(packet.PONG)
	m.Packets().OnDelivered(3)
	m.Packets().OnDropped(1)
	m.Clients().OnConnected()
	m.Clients().OnConnected()
	m.Clients().OnDisconnected()
	m.Clients().OnSlowConsumer()
	m.Subs().OnSubscribe()
	m.Subs().OnSubscribe()
	m.Subs().OnUnsubscribe(1)

	st := m.Snapshot()
	require.Equal(t, FlowStats{Sent: 20, Recv: 10}, st.Bytes)
	require.Equal(t, FlowStats{Sent: 1, Recv: 2}, st.Msgs)
	require.Equal(t, FlowStats{Sent: 2, Recv: 3}, st.Ops)
	require.Equal(t, uint64(3), st.Delivered)
	require.Equal(t, uint64(1), st.Dropped)
	require.Equal(t, uint64(1), st.Connected)
	require.Equal(t, uint64(2), st.TotalClients)
	require.Equal(t, uint64(1), st.SlowConsumers)
	require.Equal(t, uint64(1), st.Subscriptions)
}

func TestReportDelta(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)

	m.Bytes().OnRecv(100)
	m.Clients().OnConnected()

	r := &testReporter{}
	require.NoError(t, m.Register("test", r))
	require.Equal(t, ErrAlreadyRegistered, m.Register("test", r))

	m.Bytes().OnRecv(5)
	m.Subs().OnSubscribe()

	im := m.(*impl)
	im.report()

	m.Bytes().OnRecv(7)
	im.report()

	require.Len(t, r.pushed, 2)
	require.Equal(t, uint64(5), r.pushed[0].Bytes.Recv)
	require.Equal(t, uint64(1), r.pushed[0].Connected)
	require.Equal(t, uint64(1), r.pushed[0].Subscriptions)
	require.Equal(t, uint64(7), r.pushed[1].Bytes.Recv)
	require.Equal(t, uint64(0), r.pushed[1].TotalClients)

	require.NoError(t, m.Shutdown())
	require.True(t, r.closed)
	require.NoError(t, m.Shutdown())
}

func TestPrometheusHandler(t *testing.T) {
	m, err := New(Config{Namespace: "test"})
	require.NoError(t, err)

	defer m.Shutdown() // nolint: errcheck

	m.Clients().OnConnected()
	m.Packets().OnRecv(packet.PUB)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)

	defer resp.Body.Close() // nolint: errcheck

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, "test_connections 1"), text)
	require.True(t, strings.Contains(text, "test_msgs_received_total 1"), text)
}

func TestScheduledReports(t *testing.T) {
	m, err := New(Config{Interval: 1})
	require.NoError(t, err)
	require.NotNil(t, m.(*impl).cron)
	require.NoError(t, m.Shutdown())
}
