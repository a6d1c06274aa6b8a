package clients

import (
	"sync"
	"time"

	"github.com/bsm/ratelimit"
	"github.com/jonboulle/clockwork"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/VolantMQ/vlnats/configuration"
	"github.com/VolantMQ/vlnats/connection"
	"github.com/VolantMQ/vlnats/metrics"
	"github.com/VolantMQ/vlnats/packet"
	topicsTypes "github.com/VolantMQ/vlnats/topics/types"
	"github.com/VolantMQ/vlnats/transport"
)

// nolint: golint
var (
	ErrShutdown    = errors.New("clients: manager shutdown")
	ErrInvalidArgs = errors.New("clients: invalid arguments")
)

// Config manager configuration
type Config struct {
	TopicsMgr          topicsTypes.Provider
	Metrics            metrics.Informer
	Clock              clockwork.Clock
	ServerInfo         packet.ServerInfo
	MaxIncoming        int
	PreSpawn           int
	MaxPayload         int
	MaxControlLine     int
	MaxPending         int
	Heartbeat          time.Duration
	WriteDeadline      time.Duration
	FlushTimeout       time.Duration
	CloseSlowConsumers bool
}

// Manager clients manager
type Manager struct {
	Config
	log           *zap.SugaredLogger
	pool          *ants.Pool
	slowLog       *ratelimit.RateLimiter
	quit          chan struct{}
	lock          sync.RWMutex
	onStop        sync.Once
	sessionsCount sync.WaitGroup
	sessions      sync.Map
}

var _ transport.Handler = (*Manager)(nil)

// NewManager create new clients manager
func NewManager(c *Config) (*Manager, error) {
	if c == nil || c.TopicsMgr == nil || c.MaxIncoming <= 0 {
		return nil, ErrInvalidArgs
	}

	m := &Manager{
		Config: *c,
		quit:   make(chan struct{}),
		log:    configuration.GetLogger().Named("sessions"),
		// one slow consumer warning per second server wide
		slowLog: ratelimit.New(1, time.Second),
	}

	if m.Metrics == nil {
		m.Metrics = metrics.Discard()
	}

	if m.Clock == nil {
		m.Clock = clockwork.NewRealClock()
	}

	var err error

	m.pool, err = ants.NewPool(m.MaxIncoming,
		ants.WithNonblocking(true),
		ants.WithPreAlloc(m.PreSpawn > 0),
		ants.WithLogger(zap.NewStdLog(m.log.Desugar())),
		ants.WithPanicHandler(func(p interface{}) {
			m.log.Errorw("session panic", "panic", p)
		}))
	if err != nil {
		return nil, errors.Wrap(err, "clients: allocate pool")
	}

	return m, nil
}

// OnConnection creates session for accepted connection and runs it on the pool.
// Error means session has not been started and connection must be closed by the caller
func (m *Manager) OnConnection(conn transport.Conn) error {
	m.lock.RLock()
	defer m.lock.RUnlock()

	select {
	case <-m.quit:
		return ErrShutdown
	default:
	}

	ses, err := connection.New(
		connection.NetConn(conn),
		connection.Topics(m.TopicsMgr),
		connection.ServerInfo(m.ServerInfo),
		connection.Metric(m.Metrics),
		connection.Clock(m.Clock),
		connection.Heartbeat(m.Heartbeat),
		connection.MaxPayload(m.MaxPayload),
		connection.MaxControlLine(m.MaxControlLine),
		connection.MaxPending(m.maxPending()),
		connection.WriteDeadline(m.WriteDeadline),
		connection.FlushTimeout(m.FlushTimeout),
		connection.CloseSlowConsumers(m.CloseSlowConsumers),
		connection.SlowConsumerLog(m.slowLog),
		connection.OnClose(m.onSessionClose),
	)
	if err != nil {
		return err
	}

	m.sessions.Store(ses.ID(), ses)
	m.sessionsCount.Add(1)

	if err = m.pool.Submit(ses.Serve); err != nil {
		m.sessions.Delete(ses.ID())
		m.sessionsCount.Done()

		return errors.Wrap(err, "clients: spawn session")
	}

	return nil
}

// Shutdown clients manager.
// Stops all active sessions and waits until they flushed and closed
func (m *Manager) Shutdown() error {
	err := ErrShutdown

	m.onStop.Do(func() {
		err = nil

		m.lock.Lock()
		close(m.quit)
		m.lock.Unlock()

		m.sessions.Range(func(k, v interface{}) bool {
			go v.(connection.Session).Stop(connection.ErrShutdown)
			return true
		})

		m.sessionsCount.Wait()
		m.pool.Release()
	})

	return err
}

// Count of active sessions
func (m *Manager) Count() int {
	count := 0

	m.sessions.Range(func(k, v interface{}) bool {
		count++
		return true
	})

	return count
}

// Session returns active session by client id
func (m *Manager) Session(id uint64) (connection.Session, bool) {
	if v, ok := m.sessions.Load(id); ok {
		return v.(connection.Session), true
	}

	return nil, false
}

// Range calls f for every active session until f returns false
func (m *Manager) Range(f func(connection.Session) bool) {
	m.sessions.Range(func(k, v interface{}) bool {
		return f(v.(connection.Session))
	})
}

func (m *Manager) onSessionClose(s connection.Session, cause error) {
	m.sessions.Delete(s.ID())
	m.sessionsCount.Done()
}

func (m *Manager) maxPending() int {
	if m.MaxPending > 0 {
		return m.MaxPending
	}

	return connection.DefaultMaxPending
}
