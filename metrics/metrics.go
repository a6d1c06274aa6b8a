package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/packet"
)

// ErrAlreadyRegistered reporter with given name already exists
var ErrAlreadyRegistered = errors.New("metrics: reporter already registered")

// Config of metrics provider
type Config struct {
	// Namespace prefix of prometheus metric names
	Namespace string

	// Interval between reports pushed to registered reporters. Zero disables reports
	Interval time.Duration

	Log *zap.SugaredLogger
}

type counter struct {
	atomic.Uint64
}

// diff returns increment since previous call and remembers current value
func (c *counter) diff(prev *uint64) uint64 {
	v := c.Load()
	d := v - *prev
	*prev = v

	return d
}

type flow struct {
	sent counter
	recv counter
}

type bytes struct {
	flow
}

type packets struct {
	ops          flow
	msgs         flow
	delivered    counter
	dropped      counter
	noResponders counter
	rejected     counter
}

type subs struct {
	total counter
}

type clients struct {
	connected counter
	total     counter
	rejected  counter
	slow      counter
}

var _ Bytes = (*bytes)(nil)
var _ Packets = (*packets)(nil)
var _ Subscriptions = (*subs)(nil)
var _ Clients = (*clients)(nil)

type stats struct {
	bytes   bytes
	packets packets
	subs    subs
	clients clients
}

type reporter struct {
	iface Reporter
	prev  Stats
}

type impl struct {
	stats
	log      *zap.SugaredLogger
	registry *prometheus.Registry
	handler  http.Handler
	cron     *cron.Cron
	lock     sync.Mutex
	once     sync.Once

	reporters map[string]*reporter
}

var _ IFace = (*impl)(nil)

// New metrics provider
func New(c Config) (IFace, error) {
	if c.Log == nil {
		c.Log = zap.NewNop().Sugar()
	}

	if c.Namespace == "" {
		c.Namespace = "vlnats"
	}

	im := &impl{
		log:       c.Log,
		registry:  prometheus.NewRegistry(),
		reporters: make(map[string]*reporter),
	}

	if err := im.registerCollectors(c.Namespace); err != nil {
		return nil, err
	}

	im.handler = promhttp.HandlerFor(im.registry, promhttp.HandlerOpts{})

	if c.Interval > 0 {
		im.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

		if _, err := im.cron.AddFunc("@every "+c.Interval.String(), im.report); err != nil {
			return nil, errors.Wrap(err, "metrics: schedule reports")
		}

		im.cron.Start()
	}

	return im, nil
}

func (im *impl) registerCollectors(ns string) error {
	counterFunc := func(name, help string, c *counter) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: ns,
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(c.Load())
		})
	}

	gaugeFunc := func(name, help string, c *counter) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(c.Load())
		})
	}

	list := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		counterFunc("bytes_received_total", "Bytes read from client connections", &im.bytes.recv),
		counterFunc("bytes_sent_total", "Bytes written to client connections", &im.bytes.sent),
		counterFunc("ops_received_total", "Protocol operations decoded", &im.packets.ops.recv),
		counterFunc("ops_sent_total", "Protocol operations encoded", &im.packets.ops.sent),
		counterFunc("msgs_received_total", "Messages published by clients", &im.packets.msgs.recv),
		counterFunc("msgs_sent_total", "Messages delivered to clients", &im.packets.msgs.sent),
		counterFunc("deliveries_total", "Messages routed to subscriptions", &im.packets.delivered),
		counterFunc("deliveries_dropped_total", "Deliveries dropped due to slow consumers", &im.packets.dropped),
		counterFunc("no_responders_total", "Status 503 replies synthesized for requests without subscribers", &im.packets.noResponders),
		counterFunc("ops_rejected_total", "Operations rejected with -ERR", &im.packets.rejected),
		gaugeFunc("connections", "Currently connected clients", &im.clients.connected),
		counterFunc("connections_total", "Accepted client connections", &im.clients.total),
		counterFunc("connections_rejected_total", "Connections rejected before session start", &im.clients.rejected),
		counterFunc("slow_consumers_total", "Slow consumer events", &im.clients.slow),
		gaugeFunc("subscriptions", "Active subscriptions", &im.subs.total),
	}

	for _, c := range list {
		if err := im.registry.Register(c); err != nil {
			return errors.Wrap(err, "metrics: register collector")
		}
	}

	return nil
}

// Register reporter to receive periodic stats
func (im *impl) Register(name string, r Reporter) error {
	im.lock.Lock()
	defer im.lock.Unlock()

	if _, ok := im.reporters[name]; ok {
		return ErrAlreadyRegistered
	}

	im.reporters[name] = &reporter{
		iface: r,
		prev:  im.Snapshot(),
	}

	return nil
}

// Shutdown stops periodic reports and shuts down reporters
func (im *impl) Shutdown() error {
	im.once.Do(func() {
		if im.cron != nil {
			<-im.cron.Stop().Done()
		}

		im.lock.Lock()
		defer im.lock.Unlock()

		for name, r := range im.reporters {
			if err := r.iface.Shutdown(); err != nil {
				im.log.Errorw("Shutdown reporter", "name", name, "error", err)
			}
		}

		im.reporters = make(map[string]*reporter)
	})

	return nil
}

// Handler serves prometheus exposition of broker counters
func (im *impl) Handler() http.Handler {
	return im.handler
}

// Snapshot absolute counter values
func (im *impl) Snapshot() Stats {
	return Stats{
		Bytes: FlowStats{
			Sent: im.bytes.sent.Load(),
			Recv: im.bytes.recv.Load(),
		},
		Msgs: FlowStats{
			Sent: im.packets.msgs.sent.Load(),
			Recv: im.packets.msgs.recv.Load(),
		},
		Ops: FlowStats{
			Sent: im.packets.ops.sent.Load(),
			Recv: im.packets.ops.recv.Load(),
		},
		Delivered:     im.packets.delivered.Load(),
		Dropped:       im.packets.dropped.Load(),
		NoResponders:  im.packets.noResponders.Load(),
		Rejected:      im.packets.rejected.Load(),
		Connected:     im.clients.connected.Load(),
		TotalClients:  im.clients.total.Load(),
		RejectedConns: im.clients.rejected.Load(),
		SlowConsumers: im.clients.slow.Load(),
		Subscriptions: im.subs.total.Load(),
	}
}

func (im *impl) Bytes() Bytes {
	return &im.bytes
}

func (im *impl) Packets() Packets {
	return &im.packets
}

func (im *impl) Clients() Clients {
	return &im.clients
}

func (im *impl) Subs() Subscriptions {
	return &im.subs
}

func (t *bytes) OnSent(n int) {
	t.sent.Add(uint64(n))
}

func (t *bytes) OnRecv(n int) {
	t.recv.Add(uint64(n))
}

func (t *packets) OnSent(p packet.Type) {
	t.ops.sent.Inc()

	if p == packet.MSG || p == packet.HMSG {
		t.msgs.sent.Inc()
	}
}

func (t *packets) OnRecv(p packet.Type) {
	t.ops.recv.Inc()

	if p == packet.PUB || p == packet.HPUB {
		t.msgs.recv.Inc()
	}
}

func (t *packets) OnDelivered(n int) {
	t.delivered.Add(uint64(n))
}

func (t *packets) OnDropped(n int) {
	t.dropped.Add(uint64(n))
}

func (t *packets) OnNoResponders() {
	t.noResponders.Inc()
}

func (t *packets) OnRejected(n int) {
	t.rejected.Add(uint64(n))
}

func (t *subs) OnSubscribe() {
	t.total.Inc()
}

func (t *subs) OnUnsubscribe(n int) {
	t.total.Sub(uint64(n))
}

func (t *clients) OnConnected() {
	t.connected.Inc()
	t.total.Inc()
}

func (t *clients) OnDisconnected() {
	t.connected.Dec()
}

func (t *clients) OnRejected() {
	t.rejected.Inc()
}

func (t *clients) OnSlowConsumer() {
	t.slow.Inc()
}

func (im *impl) report() {
	im.lock.Lock()
	defer im.lock.Unlock()

	for _, r := range im.reporters {
		r.iface.Push(im.delta(&r.prev))
	}
}

// delta flow counters since prev, gauges as is
func (im *impl) delta(prev *Stats) Stats {
	var st Stats

	st.Bytes.Sent = im.bytes.sent.diff(&prev.Bytes.Sent)
	st.Bytes.Recv = im.bytes.recv.diff(&prev.Bytes.Recv)
	st.Msgs.Sent = im.packets.msgs.sent.diff(&prev.Msgs.Sent)
	st.Msgs.Recv = im.packets.msgs.recv.diff(&prev.Msgs.Recv)
	st.Ops.Sent = im.packets.ops.sent.diff(&prev.Ops.Sent)
	st.Ops.Recv = im.packets.ops.recv.diff(&prev.Ops.Recv)
	st.Delivered = im.packets.delivered.diff(&prev.Delivered)
	st.Dropped = im.packets.dropped.diff(&prev.Dropped)
	st.NoResponders = im.packets.noResponders.diff(&prev.NoResponders)
	st.Rejected = im.packets.rejected.diff(&prev.Rejected)
	st.TotalClients = im.clients.total.diff(&prev.TotalClients)
	st.RejectedConns = im.clients.rejected.diff(&prev.RejectedConns)
	st.SlowConsumers = im.clients.slow.diff(&prev.SlowConsumers)

	st.Connected = im.clients.connected.Load()
	st.Subscriptions = im.subs.total.Load()

	return st
}
