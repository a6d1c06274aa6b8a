package connection

import (
	"net"
	"sync"
	"time"

	"github.com/bsm/ratelimit"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/configuration"
	"github.com/VolantMQ/vlnats/metrics"
	"github.com/VolantMQ/vlnats/packet"
	topicsTypes "github.com/VolantMQ/vlnats/topics/types"
	"github.com/VolantMQ/vlnats/transport"
)

// nolint: golint
var (
	ErrClosed      = errors.New("connection: closed")
	ErrShutdown    = errors.New("connection: server shutdown")
	ErrInvalidArgs = errors.New("connection: invalid arguments")
)

const (
	// DefaultHeartbeat period of INFO sent to client
	DefaultHeartbeat = 60 * time.Second

	// DefaultMaxPending length of outbound queue
	DefaultMaxPending = 65536

	// DefaultWriteDeadline bounds each flush to the network
	DefaultWriteDeadline = 2 * time.Second

	// DefaultFlushTimeout bounds flush of pending data on teardown
	DefaultFlushTimeout = time.Second
)

type state int32

const (
	stateCreated state = iota
	stateReady
	stateClosing
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateReady:
		return "ready"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	}

	return "unknown"
}

// OnCloseCb invoked once session released all of its resources
type OnCloseCb func(Session, error)

// Session of single client connection
type Session interface {
	topicsTypes.Subscriber

	// Serve runs session until connection closed. Blocks
	Serve()

	// Stop initiates teardown. Pending outbound data is flushed within flush timeout
	Stop(reason error)

	// Done closed when session released all of its resources
	Done() <-chan struct{}

	// LastActivity time of last operation received from client
	LastActivity() time.Time

	// ConnectInfo as supplied by client
	ConnectInfo() packet.ConnectInfo

	// RemoteAddr of the client
	RemoteAddr() net.Addr
}

type impl struct {
	id           uint64
	conn         transport.Conn
	topics       topicsTypes.Provider
	metric       metrics.Informer
	clock        clockwork.Clock
	log          *zap.SugaredLogger
	slowLog      *ratelimit.RateLimiter
	onClose      OnCloseCb
	rx           *reader
	tx           *writer
	info         packet.ServerInfo
	connInfo     packet.ConnectInfo
	infoLock     sync.RWMutex
	subLock      sync.Mutex
	heartbeat    time.Duration
	hbReset      chan struct{}
	quit         chan struct{}
	done         chan struct{}
	wg           sync.WaitGroup
	onConnClose  sync.Once
	cause        error
	lastActivity atomic.Int64
	state        atomic.Int32
	headers      atomic.Bool
	slowClosing  atomic.Bool
	closeSlow    bool
	flushTimeout time.Duration
}

var _ Session = (*impl)(nil)

// New allocate session for accepted connection.
// NetConn and Topics options are mandatory
func New(opts ...Option) (Session, error) {
	s := &impl{
		clock:        clockwork.NewRealClock(),
		metric:       metrics.Discard(),
		heartbeat:    DefaultHeartbeat,
		flushTimeout: DefaultFlushTimeout,
		hbReset:      make(chan struct{}, 1),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		connInfo:     packet.DefaultConnectInfo(),
		rx:           newReader(),
		tx:           newWriter(),
	}

	if err := s.SetOptions(opts...); err != nil {
		return nil, err
	}

	if s.conn == nil || s.topics == nil {
		return nil, ErrInvalidArgs
	}

	s.id = s.conn.ID()
	s.log = configuration.GetLogger().Named("session").With("client_id", s.id)

	var ip string
	if addr := s.conn.RemoteAddr(); addr != nil {
		if host, _, err := net.SplitHostPort(addr.String()); err == nil {
			ip = host
		}
	}

	s.info = s.info.ForClient(s.id, ip)

	if err := s.rx.setOptions(
		rdConn(s.conn),
		rdProcessIncoming(s.processIncoming),
		rdLog(s.log),
		rdQuit(s.quit),
	); err != nil {
		return nil, err
	}

	if err := s.tx.setOptions(
		wrConn(s.conn),
		wrOnConnClose(s.onConnectionClose),
		wrMetric(s.metric.Packets()),
		wrLog(s.log),
	); err != nil {
		return nil, err
	}

	s.tx.init()
	s.lastActivity.Store(s.clock.Now().UnixNano())

	return s, nil
}

// ID of the client
func (s *impl) ID() uint64 {
	return s.id
}

// Serve sends initial INFO and processes client operations until connection closes
func (s *impl) Serve() {
	defer func() {
		s.wg.Wait()
		s.state.Store(int32(stateClosed))
		close(s.done)

		if s.onClose != nil {
			s.onClose(s, s.cause)
		}
	}()

	s.metric.Clients().OnConnected()
	defer s.metric.Clients().OnDisconnected()

	if err := s.tx.writeNow(&packet.Info{Info: s.serverInfo()}); err != nil {
		s.onConnectionClose(errors.Wrap(err, "initial info"))
		return
	}

	// teardown waits for writer to flush from this point on
	s.tx.started.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tx.routine()
	}()

	if !s.state.CompareAndSwap(int32(stateCreated), int32(stateReady)) {
		// stopped before initial exchange completed
		s.onConnectionClose(ErrClosed)
		return
	}

	s.log.Debugw("session ready", "remote", s.conn.RemoteAddr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.heartbeatRoutine()
	}()

	s.onConnectionClose(s.rx.routine())
}

// Stop session. Effective only on first invoke
func (s *impl) Stop(reason error) {
	if reason == nil {
		reason = ErrShutdown
	}

	s.onConnectionClose(reason)
}

// Done ...
func (s *impl) Done() <-chan struct{} {
	return s.done
}

// LastActivity ...
func (s *impl) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// ConnectInfo ...
func (s *impl) ConnectInfo() packet.ConnectInfo {
	s.infoLock.RLock()
	defer s.infoLock.RUnlock()

	return s.connInfo
}

// RemoteAddr ...
func (s *impl) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Publish delivers routed message. Never blocks, returns false if delivery dropped
func (s *impl) Publish(sid uint64, m *topicsTypes.Message) bool {
	msg := &packet.Msg{
		Subject: m.Subject,
		SID:     sid,
		Reply:   m.Reply,
		Payload: m.Payload,
	}

	if s.headers.Load() {
		msg.Header = m.Header
	} else if m.Header != nil && len(m.Payload) == 0 && m.Header.Status != 0 {
		// status only message is meaningless without headers support
		return true
	}

	if s.tx.deliver(msg) {
		return true
	}

	s.onSlowConsumer()

	return false
}

func (s *impl) onSlowConsumer() {
	s.metric.Clients().OnSlowConsumer()

	if s.slowLog == nil || !s.slowLog.Limit() {
		s.log.Warnw("slow consumer detected", "pending", s.tx.pending())
	}

	if s.closeSlow && s.slowClosing.CompareAndSwap(false, true) {
		// teardown flushes and waits, never block publisher
		go s.onConnectionClose(packet.ErrSlowConsumer)
	}
}

func (s *impl) serverInfo() packet.ServerInfo {
	return s.info
}

func (s *impl) touch() {
	s.lastActivity.Store(s.clock.Now().UnixNano())
}
